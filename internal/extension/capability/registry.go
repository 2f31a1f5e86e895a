package capability

import (
	"sort"
	"sync"
)

// QualifiedID returns the namespaced id of a registration.
func QualifiedID(extensionID, localID string) string {
	return extensionID + "." + localID
}

// Registration is one entry of a Registry.
type Registration[T any] struct {
	QualifiedID string
	Owner       string
	// Group is the hook or filter type, slot name, menu type or category
	// the entry was registered under. Empty when the kind has no grouping.
	Group string
	// Seq orders entries by registration time.
	Seq   uint64
	Value T
}

// Registry is a keyed collection of registrations of one kind.
// Entries whose owner is suspended are kept but hidden from reads.
type Registry[T any] struct {
	mu        sync.RWMutex
	entries   map[string]*Registration[T]
	suspended map[string]bool
	seq       uint64
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		entries:   make(map[string]*Registration[T]),
		suspended: make(map[string]bool),
	}
}

// Register adds or replaces the entry owner.localID and returns its
// qualified id.
func (r *Registry[T]) Register(owner, localID, group string, value T) (string, error) {
	if localID == "" {
		return "", ErrEmptyID
	}
	qid := QualifiedID(owner, localID)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.entries[qid] = &Registration[T]{
		QualifiedID: qid,
		Owner:       owner,
		Group:       group,
		Seq:         r.seq,
		Value:       value,
	}
	return qid, nil
}

// Unregister removes the entry with the qualified id. It reports whether an
// entry was removed.
func (r *Registry[T]) Unregister(qid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[qid]; !ok {
		return false
	}
	delete(r.entries, qid)
	return true
}

// UnregisterWhere removes every entry of owner for which match returns true and
// returns the number removed.
func (r *Registry[T]) UnregisterWhere(owner string, match func(Registration[T]) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for qid, e := range r.entries {
		if e.Owner == owner && match(*e) {
			delete(r.entries, qid)
			n++
		}
	}
	return n
}

// UnregisterOwner removes every entry owned by owner.
func (r *Registry[T]) UnregisterOwner(owner string) int {
	n := r.UnregisterWhere(owner, func(Registration[T]) bool { return true })

	r.mu.Lock()
	delete(r.suspended, owner)
	r.mu.Unlock()
	return n
}

// SetOwnerSuspended hides or reveals every entry of owner.
func (r *Registry[T]) SetOwnerSuspended(owner string, suspended bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if suspended {
		r.suspended[owner] = true
	} else {
		delete(r.suspended, owner)
	}
}

// Get returns a visible entry by qualified id.
func (r *Registry[T]) Get(qid string) (Registration[T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[qid]
	if !ok || r.suspended[e.Owner] {
		return Registration[T]{}, false
	}
	return *e, true
}

// List returns the visible entries of a group in registration order.
// An empty group lists every visible entry.
func (r *Registry[T]) List(group string) []Registration[T] {
	r.mu.RLock()
	out := make([]Registration[T], 0, len(r.entries))
	for _, e := range r.entries {
		if r.suspended[e.Owner] {
			continue
		}
		if group != "" && e.Group != group {
			continue
		}
		out = append(out, *e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Owned returns every entry of owner, suspended or not, in registration
// order.
func (r *Registry[T]) Owned(owner string) []Registration[T] {
	r.mu.RLock()
	var out []Registration[T]
	for _, e := range r.entries {
		if e.Owner == owner {
			out = append(out, *e)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Len returns the number of entries, including suspended ones.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
