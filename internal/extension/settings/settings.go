// Package settings persists which extensions are enabled in a vault.
//
// The persisted document has the shape {"enabled": {"<id>": bool}}. It is
// loaded once per vault open and every change is written through
// immediately. Keys other than "enabled" are preserved on rewrite.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// Persister reads and writes the raw settings document.
type Persister interface {
	ReadExtensionSettings(vault string) ([]byte, error)
	SaveExtensionSettings(vault string, data []byte) error
}

// ErrMalformed is returned by Load when the document is not valid JSON.
var ErrMalformed = errors.New("settings document is malformed")

// PersistenceError reports a failed settings read or write.
type PersistenceError struct {
	Op  string // "read" or "write"
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("extension settings %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Store is the in-memory enabled map backed by a Persister.
type Store struct {
	mu sync.RWMutex

	persister Persister
	vault     string

	doc     []byte
	enabled map[string]bool
}

// New creates a store for a vault. Call Load before use.
func New(persister Persister, vault string) *Store {
	return &Store{
		persister: persister,
		vault:     vault,
		doc:       []byte(`{}`),
		enabled:   make(map[string]bool),
	}
}

// Load reads the persisted document. A missing document is not an error.
// A document that cannot be read or parsed leaves the store empty (every
// extension defaults to enabled) and the cause is returned so the caller can
// report it.
func (s *Store) Load() error {
	data, err := s.persister.ReadExtensionSettings(s.vault)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc = []byte(`{}`)
	s.enabled = make(map[string]bool)

	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &PersistenceError{Op: "read", Err: err}
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return &PersistenceError{Op: "read", Err: ErrMalformed}
	}

	s.doc = data
	gjson.GetBytes(data, "enabled").ForEach(func(key, value gjson.Result) bool {
		if value.IsBool() {
			s.enabled[key.String()] = value.Bool()
		}
		return true
	})
	return nil
}

// IsEnabled reports whether an extension is enabled. Extensions without an
// entry are enabled.
func (s *Store) IsEnabled(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	enabled, ok := s.enabled[id]
	return !ok || enabled
}

// Has reports whether the store holds an explicit entry for id.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.enabled[id]
	return ok
}

// Enabled returns a copy of the enabled map.
func (s *Store) Enabled() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]bool, len(s.enabled))
	for k, v := range s.enabled {
		out[k] = v
	}
	return out
}

// SetEnabled records the enabled flag for id and persists immediately.
// The in-memory value is kept even if persisting fails.
func (s *Store) SetEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled[id] = enabled
	doc, err := sjson.SetBytes(s.doc, "enabled."+escapeKey(id), enabled)
	if err != nil {
		return &PersistenceError{Op: "write", Err: err}
	}
	s.doc = doc
	return s.saveLocked()
}

// Remove deletes the entry for id and persists immediately.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.enabled[id]; !ok {
		return nil
	}
	delete(s.enabled, id)
	doc, err := sjson.DeleteBytes(s.doc, "enabled."+escapeKey(id))
	if err != nil {
		return &PersistenceError{Op: "write", Err: err}
	}
	s.doc = doc
	return s.saveLocked()
}

// Save persists the current document.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if err := s.persister.SaveExtensionSettings(s.vault, pretty.Pretty(s.doc)); err != nil {
		return &PersistenceError{Op: "write", Err: err}
	}
	return nil
}

// escapeKey escapes characters that carry meaning in sjson paths.
func escapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', ':', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
