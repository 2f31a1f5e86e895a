package capability

import (
	"fmt"
	"sync"
)

// Names of the host stores extensions may subscribe to.
const (
	StoreNotes  = "notes"
	StoreVault  = "vault"
	StoreUI     = "ui"
	StoreSearch = "search"
)

// StoreNames lists the subscribable stores.
var StoreNames = []string{StoreNotes, StoreVault, StoreUI, StoreSearch}

// Listener receives a copy of a store's value after each change.
type Listener func(value any)

// Stores fans out host store changes to subscribers.
type Stores struct {
	mu   sync.RWMutex
	subs map[string]map[uint64]Listener
	seq  uint64
}

// NewStores creates the fixed set of named stores.
func NewStores() *Stores {
	s := &Stores{subs: make(map[string]map[uint64]Listener)}
	for _, name := range StoreNames {
		s.subs[name] = make(map[uint64]Listener)
	}
	return s
}

// Subscribe registers fn for changes of the named store and returns a
// function that cancels the subscription.
func (s *Stores) Subscribe(name string, fn Listener) (func(), error) {
	if fn == nil {
		return nil, ErrNilCallback
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subs, ok := s.subs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, name)
	}
	s.seq++
	id := s.seq
	subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[name], id)
			s.mu.Unlock()
		})
	}, nil
}

// Publish delivers value to every subscriber of the named store. Each
// subscriber receives its own copy. A panicking subscriber is skipped.
func (s *Stores) Publish(name string, value any) error {
	s.mu.RLock()
	subs, ok := s.subs[name]
	if !ok {
		s.mu.RUnlock()
		return fmt.Errorf("%w: %q", ErrUnknownStore, name)
	}
	listeners := make([]Listener, 0, len(subs))
	for _, fn := range subs {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		snap, err := Snapshot(value)
		if err != nil {
			return err
		}
		deliver(fn, snap)
	}
	return nil
}

// Subscribers returns the number of subscribers of the named store.
func (s *Stores) Subscribers(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[name])
}

func deliver(fn Listener, value any) {
	defer func() { _ = recover() }()
	fn(value)
}
