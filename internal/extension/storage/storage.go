// Package storage provides per-extension key/value data storage inside a
// vault. Each value is a JSON document stored at
//
//	<vault>/.kairo/plugins/<extension id>/<key>.json
//
// All file access goes through an os.Root opened on the plugins directory,
// so ids and keys can never address files outside it.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultDir is the vault-relative storage directory.
const DefaultDir = ".kairo/plugins"

// DefaultMaxBytes is the largest value Write accepts (10 MB).
const DefaultMaxBytes = 10 * 1024 * 1024

// Errors returned by the store.
var (
	ErrInvalidID  = errors.New("invalid extension id")
	ErrInvalidKey = errors.New("invalid storage key")
	ErrTooLarge   = errors.New("value exceeds size limit")
	ErrNotJSON    = errors.New("value is not valid JSON")
)

var (
	idPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)
)

// ValidateID checks an extension id.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// ValidateKey checks a storage key. Keys may not start with a dot or
// contain "..".
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) || strings.HasPrefix(key, ".") || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Store is the storage of one vault.
type Store struct {
	dir      string
	maxBytes int
}

// New returns the store of a vault. A non-positive maxBytes selects
// DefaultMaxBytes.
func New(vault string, maxBytes int) *Store {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Store{
		dir:      filepath.Join(vault, filepath.FromSlash(DefaultDir)),
		maxBytes: maxBytes,
	}
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// For returns the scoped store of extension id.
func (s *Store) For(id string) (*Scoped, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	return &Scoped{store: s, id: id}, nil
}

func (s *Store) open() (*os.Root, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return os.OpenRoot(s.dir)
}

// Scoped is the storage of a single extension.
type Scoped struct {
	store *Store
	id    string
}

// ID returns the extension id.
func (s *Scoped) ID() string {
	return s.id
}

func (s *Scoped) path(key string) string {
	return s.id + "/" + key + ".json"
}

// Read returns the value of key, or nil if it is not set.
func (s *Scoped) Read(key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	root, err := s.store.open()
	if err != nil {
		return nil, err
	}
	defer root.Close()

	data, err := root.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// Write stores data under key.
func (s *Scoped) Write(key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if len(data) > s.store.maxBytes {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), s.store.maxBytes)
	}
	if !gjson.ValidBytes(data) {
		return ErrNotJSON
	}

	root, err := s.store.open()
	if err != nil {
		return err
	}
	defer root.Close()

	if err := root.MkdirAll(s.id, 0o755); err != nil {
		return fmt.Errorf("create %s storage: %w", s.id, err)
	}
	return root.WriteFile(s.path(key), data, 0o644)
}

// Delete removes key. Deleting a missing key is a no-op.
func (s *Scoped) Delete(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	root, err := s.store.open()
	if err != nil {
		return err
	}
	defer root.Close()

	if err := root.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// List returns the stored keys in lexical order.
func (s *Scoped) List() ([]string, error) {
	root, err := s.store.open()
	if err != nil {
		return nil, err
	}
	defer root.Close()

	entries, err := fs.ReadDir(root.FS(), s.id)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes all data of the extension.
func (s *Scoped) Clear() error {
	root, err := s.store.open()
	if err != nil {
		return err
	}
	defer root.Close()
	return root.RemoveAll(s.id)
}
