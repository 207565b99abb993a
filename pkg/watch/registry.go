package watch

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/fsx/pkg/fspath"
)

// Conn is a subscriber connection capable of receiving serialized frames.
// Implementations must be comparable (pointer types).
type Conn interface {
	WriteMessage(data []byte) error
}

// SubscriptionEntry records one pattern subscription on a connection.
type SubscriptionEntry struct {
	Pattern   string
	Group     string
	Recursive bool
	CreatedAt time.Time
}

// SubscribeOptions carries optional subscription attributes.
type SubscribeOptions struct {
	Group     string
	Recursive bool
}

// Registry maps connections to their pattern subscriptions and answers
// fan-out queries by evaluating stored patterns against concrete paths.
type Registry struct {
	mu       sync.RWMutex
	subs     map[Conn]map[string]*SubscriptionEntry
	limit    int
	patterns *fspath.Cache
}

// NewRegistry creates a registry with a per-connection subscription cap.
// Zero means unlimited.
func NewRegistry(maxPerConn int) *Registry {
	return &Registry{
		subs:     make(map[Conn]map[string]*SubscriptionEntry),
		limit:    maxPerConn,
		patterns: fspath.NewCache(),
	}
}

// Subscribe adds a pattern subscription. Returns false when the pattern is
// already subscribed, the per-connection limit is reached, or the pattern
// is not an absolute path.
func (r *Registry) Subscribe(conn Conn, pattern string, opts SubscribeOptions) bool {
	norm, err := fspath.Normalize(pattern)
	if err != nil {
		return false
	}
	if _, err := r.patterns.Get(norm); err != nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries, ok := r.subs[conn]
	if !ok {
		entries = make(map[string]*SubscriptionEntry)
		r.subs[conn] = entries
	}
	if _, dup := entries[norm]; dup {
		return false
	}
	if r.limit > 0 && len(entries) >= r.limit {
		return false
	}

	entries[norm] = &SubscriptionEntry{
		Pattern:   norm,
		Group:     opts.Group,
		Recursive: opts.Recursive,
		CreatedAt: time.Now(),
	}
	return true
}

// Unsubscribe removes a pattern subscription, reporting whether it existed.
func (r *Registry) Unsubscribe(conn Conn, pattern string) bool {
	norm, err := fspath.Normalize(pattern)
	if err != nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries, ok := r.subs[conn]
	if !ok {
		return false
	}
	if _, exists := entries[norm]; !exists {
		return false
	}
	delete(entries, norm)
	if len(entries) == 0 {
		delete(r.subs, conn)
	}
	return true
}

// UnsubscribeGroup removes every subscription in the named group, returning
// the removed count.
func (r *Registry) UnsubscribeGroup(conn Conn, group string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, ok := r.subs[conn]
	if !ok {
		return 0
	}
	removed := 0
	for pattern, entry := range entries {
		if entry.Group == group {
			delete(entries, pattern)
			removed++
		}
	}
	if len(entries) == 0 {
		delete(r.subs, conn)
	}
	return removed
}

// SubscriptionsByGroup lists the connection's patterns in the named group.
func (r *Registry) SubscriptionsByGroup(conn Conn, group string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for pattern, entry := range r.subs[conn] {
		if entry.Group == group {
			out = append(out, pattern)
		}
	}
	sort.Strings(out)
	return out
}

// IsSubscribed reports whether the exact pattern is subscribed. No glob
// evaluation happens here.
func (r *Registry) IsSubscribed(conn Conn, pattern string) bool {
	norm, err := fspath.Normalize(pattern)
	if err != nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[conn][norm]
	return ok
}

// Subscriptions lists the connection's patterns, sorted.
func (r *Registry) Subscriptions(conn Conn) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.subs[conn]))
	for pattern := range r.subs[conn] {
		out = append(out, pattern)
	}
	sort.Strings(out)
	return out
}

// SubscriptionCount returns the number of patterns on the connection.
func (r *Registry) SubscriptionCount(conn Conn) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[conn])
}

// SubscribersForPath evaluates every stored pattern against a concrete path
// and returns the matching connections, deduplicated.
func (r *Registry) SubscribersForPath(path string) []Conn {
	norm, err := fspath.Normalize(path)
	if err != nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Conn
	for conn, entries := range r.subs {
		for pattern := range entries {
			if r.patterns.Match(pattern, norm) {
				out = append(out, conn)
				break
			}
		}
	}
	return out
}

// MatchingPatterns returns the connection's patterns that match a concrete
// path.
func (r *Registry) MatchingPatterns(conn Conn, path string) []string {
	norm, err := fspath.Normalize(path)
	if err != nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for pattern := range r.subs[conn] {
		if r.patterns.Match(pattern, norm) {
			out = append(out, pattern)
		}
	}
	sort.Strings(out)
	return out
}

// RemoveConnection drops every subscription for the connection. Idempotent.
func (r *Registry) RemoveConnection(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, conn)
}

// ConnectionCount returns the number of connections with at least one
// subscription.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// TotalSubscriptions returns the subscription count across every
// connection.
func (r *Registry) TotalSubscriptions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, entries := range r.subs {
		total += len(entries)
	}
	return total
}

// HasPattern reports whether any connection subscribes to the exact
// pattern.
func (r *Registry) HasPattern(pattern string) bool {
	norm, err := fspath.Normalize(pattern)
	if err != nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, entries := range r.subs {
		if _, ok := entries[norm]; ok {
			return true
		}
	}
	return false
}

// Protocol error codes surfaced through HandleMessage.
const (
	ErrInvalidJSON  = "invalid_json"
	ErrMissingType  = "missing_type"
	ErrUnknownType  = "unknown_type"
	ErrMissingPath  = "missing_path"
	ErrInvalidPath  = "invalid_path"
	ErrLimitReached = "limit_reached"
)

// Response is the outcome of one inbound protocol message.
type Response struct {
	Success   bool   `json:"success"`
	Type      string `json:"type,omitempty"`
	Path      string `json:"path,omitempty"`
	Recursive bool   `json:"recursive,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HandleMessage parses and dispatches one inbound text frame.
func (r *Registry) HandleMessage(conn Conn, raw string) Response {
	var msg map[string]any
	if err := json.Unmarshal([]byte(raw), &msg); err != nil || msg == nil {
		return Response{Error: ErrInvalidJSON}
	}

	typeVal, ok := msg["type"]
	if !ok {
		return Response{Error: ErrMissingType}
	}
	msgType, ok := typeVal.(string)
	if !ok || (msgType != "subscribe" && msgType != "unsubscribe") {
		return Response{Error: ErrUnknownType}
	}

	pathVal, ok := msg["path"]
	if !ok {
		return Response{Error: ErrMissingPath}
	}
	rawPath, ok := pathVal.(string)
	if !ok {
		return Response{Error: ErrInvalidPath}
	}
	norm, err := fspath.Normalize(rawPath)
	if err != nil {
		return Response{Error: ErrInvalidPath}
	}

	switch msgType {
	case "subscribe":
		recursive, _ := msg["recursive"].(bool)
		group, _ := msg["group"].(string)

		pattern := norm
		if recursive && !fspath.IsPattern(norm) {
			pattern = recursivePattern(norm)
		}
		if r.IsSubscribed(conn, pattern) {
			// Duplicate subscribe succeeds without state change.
			return Response{Success: true, Type: msgType, Path: pattern, Recursive: recursive}
		}
		if !r.Subscribe(conn, pattern, SubscribeOptions{Group: group, Recursive: recursive}) {
			return Response{Error: ErrLimitReached, Path: pattern}
		}
		return Response{Success: true, Type: msgType, Path: pattern, Recursive: recursive}

	default: // unsubscribe
		r.Unsubscribe(conn, norm)
		return Response{Success: true, Type: msgType, Path: norm}
	}
}

// recursivePattern widens a concrete path into a descendant glob.
func recursivePattern(path string) string {
	if path == "/" {
		return "/**"
	}
	return path + "/**"
}
