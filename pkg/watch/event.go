// Package watch implements the change-notification pipeline: a glob
// subscription registry, a debouncing event coalescer, a batch emitter and
// the bridge that fans events out to WebSocket subscribers.
package watch

// EventType classifies a filesystem change event.
type EventType string

const (
	EventCreate EventType = "create"
	EventModify EventType = "modify"
	EventDelete EventType = "delete"
	EventRename EventType = "rename"
)

// Event is one filesystem change notification. Size, Mtime and IsDirectory
// are optional metadata carried through to subscribers.
type Event struct {
	Type        EventType `json:"type"`
	Path        string    `json:"path"`
	Timestamp   int64     `json:"timestamp"`
	OldPath     string    `json:"oldPath,omitempty"`
	Size        *int64    `json:"size,omitempty"`
	Mtime       *int64    `json:"mtime,omitempty"`
	IsDirectory *bool     `json:"isDirectory,omitempty"`
}

// priority orders event types for prioritized emission: deletes first, then
// renames, creates, modifies.
func (t EventType) priority() int {
	switch t {
	case EventDelete:
		return 0
	case EventRename:
		return 1
	case EventCreate:
		return 2
	case EventModify:
		return 3
	default:
		return 4
	}
}
