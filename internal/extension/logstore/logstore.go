// Package logstore keeps a bounded, in-memory history of extension
// diagnostics for the debug console.
//
// Entries are stored in a fixed-capacity ring. Inserting is O(1); once the
// ring is full the oldest entry is evicted. Entries are never mutated after
// insertion. Every entry is also mirrored to a zerolog logger, which is the
// host's own diagnostic channel.
package logstore

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultMaxLogs is the ring capacity used when none is configured.
const DefaultMaxLogs = 500

// SystemID is the extension id used for entries that are not attributable
// to a registered extension (for example a manifest that failed to parse).
const SystemID = "system"

// Level is the severity of a log entry.
type Level int

// Log levels.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the lowercase name of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel parses a level name. Unknown names map to LevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "info", "INFO":
		return LevelInfo
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Entry is a single diagnostic record.
type Entry struct {
	ID          string
	Timestamp   time.Time
	Level       Level
	ExtensionID string
	Message     string
	Details     any
}

// Store is a fixed-capacity ring of log entries.
type Store struct {
	mu sync.RWMutex

	entries []Entry
	next    int // slot the next entry is written to
	count   int

	consoleVisible bool
	mirror         zerolog.Logger
	now            func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithMirror sets the logger every entry is mirrored to.
func WithMirror(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.mirror = logger
	}
}

// WithConsoleVisible sets the initial console visibility.
func WithConsoleVisible(visible bool) Option {
	return func(s *Store) {
		s.consoleVisible = visible
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a store holding at most maxLogs entries.
// A non-positive maxLogs uses DefaultMaxLogs.
func New(maxLogs int, opts ...Option) *Store {
	if maxLogs <= 0 {
		maxLogs = DefaultMaxLogs
	}
	s := &Store{
		entries: make([]Entry, maxLogs),
		mirror:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capacity returns the maximum number of retained entries.
func (s *Store) Capacity() int {
	return len(s.entries)
}

// Log appends an entry and returns it.
func (s *Store) Log(level Level, extensionID, message string, details any) Entry {
	if extensionID == "" {
		extensionID = SystemID
	}
	entry := Entry{
		ID:          uuid.NewString(),
		Timestamp:   s.now(),
		Level:       level,
		ExtensionID: extensionID,
		Message:     message,
		Details:     snapshot(details),
	}

	s.mu.Lock()
	s.entries[s.next] = entry
	s.next = (s.next + 1) % len(s.entries)
	if s.count < len(s.entries) {
		s.count++
	}
	s.mu.Unlock()

	ev := s.mirror.WithLevel(level.zerolog()).
		Str("extension", entry.ExtensionID).
		Str("entry_id", entry.ID)
	if entry.Details != nil {
		ev = ev.Interface("details", entry.Details)
	}
	ev.Msg(message)

	return entry
}

// Debug logs at LevelDebug.
func (s *Store) Debug(extensionID, message string, details any) {
	s.Log(LevelDebug, extensionID, message, details)
}

// Info logs at LevelInfo.
func (s *Store) Info(extensionID, message string, details any) {
	s.Log(LevelInfo, extensionID, message, details)
}

// Warn logs at LevelWarn.
func (s *Store) Warn(extensionID, message string, details any) {
	s.Log(LevelWarn, extensionID, message, details)
}

// Error logs at LevelError.
func (s *Store) Error(extensionID, message string, details any) {
	s.Log(LevelError, extensionID, message, details)
}

// Entries returns the retained entries, newest first.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, s.count)
	for i := 1; i <= s.count; i++ {
		idx := (s.next - i + len(s.entries)) % len(s.entries)
		out = append(out, s.entries[idx])
	}
	return out
}

// ForExtension returns the retained entries of one extension, newest first.
func (s *Store) ForExtension(extensionID string) []Entry {
	var out []Entry
	for _, e := range s.Entries() {
		if e.ExtensionID == extensionID {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of retained entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Clear drops every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make([]Entry, len(s.entries))
	s.next = 0
	s.count = 0
}

// ToggleConsole flips console visibility and returns the new value.
// Visibility is UI state only; it does not affect what is recorded.
func (s *Store) ToggleConsole() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consoleVisible = !s.consoleVisible
	return s.consoleVisible
}

// ConsoleVisible reports whether the console is shown.
func (s *Store) ConsoleVisible() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consoleVisible
}

// snapshot copies the maps and slices of details so later changes by the
// caller never reach a stored entry. Other values are kept as they are.
func snapshot(details any) any {
	switch v := details.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = snapshot(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = snapshot(val)
		}
		return out
	case map[string]string:
		return maps.Clone(v)
	case []string:
		return slices.Clone(v)
	default:
		return details
	}
}
