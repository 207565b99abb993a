package watch

import "sort"

// pendingSet accumulates coalesced events keyed by their current path,
// preserving first-arrival order. Not safe for concurrent use; callers hold
// their own lock.
type pendingSet struct {
	events map[string]*Event
	order  []string
}

func newPendingSet() *pendingSet {
	return &pendingSet{events: make(map[string]*Event)}
}

func (p *pendingSet) len() int {
	return len(p.events)
}

// add folds one event into the pending set per the coalescing table.
func (p *pendingSet) add(e Event) {
	if e.Type == EventRename {
		p.addRename(e)
		return
	}

	prev, ok := p.events[e.Path]
	if !ok {
		p.put(e)
		return
	}

	switch {
	case prev.Type == EventDelete:
		// A delete already pending for the path wins over anything that
		// follows in the same window.
		return
	case e.Type == EventDelete:
		// delete overrides pending modify, create or rename. A rename
		// A->B followed by delete B collapses to delete B: the observable
		// result is that B is gone.
		*prev = e
	case prev.Type == EventCreate && e.Type == EventModify:
		// create absorbs the modify; latest metadata wins.
		prev.Timestamp = e.Timestamp
		prev.Size = e.Size
		prev.Mtime = e.Mtime
		prev.IsDirectory = e.IsDirectory
	case prev.Type == EventRename && e.Type == EventModify:
		// rename keeps its identity; metadata updated.
		prev.Timestamp = e.Timestamp
		prev.Size = e.Size
		prev.Mtime = e.Mtime
		prev.IsDirectory = e.IsDirectory
	default:
		// modify+modify and any unspecified combination: latest wins.
		old := prev.OldPath
		*prev = e
		if e.Type == prev.Type && e.OldPath == "" {
			prev.OldPath = old
		}
	}
}

// addRename handles rename chains: a pending event keyed at the rename's
// source is re-keyed to the destination.
func (p *pendingSet) addRename(e Event) {
	if prev, ok := p.events[e.OldPath]; ok {
		if prev.Type == EventRename {
			// rename(A->B) + rename(B->C) -> rename(A->C).
			e.OldPath = prev.OldPath
		}
		p.remove(prev.Path)
	}
	if prev, ok := p.events[e.Path]; ok {
		// Something already pending at the destination is superseded.
		*prev = e
		return
	}
	p.put(e)
}

func (p *pendingSet) put(e Event) {
	cp := e
	p.events[e.Path] = &cp
	p.order = append(p.order, e.Path)
}

func (p *pendingSet) remove(path string) {
	if _, ok := p.events[path]; !ok {
		return
	}
	delete(p.events, path)
	for i, key := range p.order {
		if key == path {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// drain empties the set, returning events in first-arrival order, or
// stably priority-sorted (delete > rename > create > modify) when
// prioritize is set.
func (p *pendingSet) drain(prioritize bool) []Event {
	out := make([]Event, 0, len(p.events))
	for _, path := range p.order {
		if e, ok := p.events[path]; ok {
			out = append(out, *e)
		}
	}
	p.events = make(map[string]*Event)
	p.order = p.order[:0]

	if prioritize {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Type.priority() < out[j].Type.priority()
		})
	}
	return out
}
