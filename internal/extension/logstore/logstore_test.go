package logstore

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{Level(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.expected)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"WARN", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestNewDefaultCapacity(t *testing.T) {
	s := New(0)
	if s.Capacity() != DefaultMaxLogs {
		t.Errorf("Capacity() = %d, want %d", s.Capacity(), DefaultMaxLogs)
	}
}

func TestStoreEvictsOldest(t *testing.T) {
	const max = 5
	s := New(max)

	for i := 0; i <= max; i++ {
		s.Info("ext", fmt.Sprintf("msg-%d", i), nil)
	}

	entries := s.Entries()
	if len(entries) != max {
		t.Fatalf("len(Entries()) = %d, want %d", len(entries), max)
	}
	if entries[0].Message != fmt.Sprintf("msg-%d", max) {
		t.Errorf("head = %q, want newest msg-%d", entries[0].Message, max)
	}
	for _, e := range entries {
		if e.Message == "msg-0" {
			t.Error("oldest entry should have been evicted")
		}
	}
	if entries[len(entries)-1].Message != "msg-1" {
		t.Errorf("tail = %q, want msg-1", entries[len(entries)-1].Message)
	}
}

func TestStoreEntryFields(t *testing.T) {
	s := New(10)
	e := s.Log(LevelWarn, "", "no owner", map[string]any{"k": "v"})

	if e.ExtensionID != SystemID {
		t.Errorf("ExtensionID = %q, want %q", e.ExtensionID, SystemID)
	}
	if e.ID == "" {
		t.Error("entry id should be set")
	}
	if e.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}

	other := s.Log(LevelInfo, "a", "second", nil)
	if other.ID == e.ID {
		t.Error("entry ids should be unique")
	}
}

func TestStoreDetailsAreSnapshots(t *testing.T) {
	s := New(10)
	tags := []any{"a"}
	details := map[string]any{"count": 1, "tags": tags, "names": []string{"x"}}
	s.Log(LevelInfo, "ext", "snap", details)

	details["count"] = 2
	details["extra"] = true
	tags[0] = "changed"
	details["names"].([]string)[0] = "changed"

	got := s.Entries()[0].Details.(map[string]any)
	if got["count"] != 1 {
		t.Errorf("count = %v, want 1", got["count"])
	}
	if _, ok := got["extra"]; ok {
		t.Error("key added after insertion leaked into the entry")
	}
	if got["tags"].([]any)[0] != "a" {
		t.Errorf("tags = %v, want [a]", got["tags"])
	}
	if got["names"].([]string)[0] != "x" {
		t.Errorf("names = %v, want [x]", got["names"])
	}
}

func TestStoreForExtension(t *testing.T) {
	s := New(10)
	s.Info("a", "one", nil)
	s.Info("b", "two", nil)
	s.Error("a", "three", nil)

	got := s.ForExtension("a")
	if len(got) != 2 {
		t.Fatalf("ForExtension(a) returned %d entries, want 2", len(got))
	}
	if got[0].Message != "three" {
		t.Errorf("first = %q, want newest", got[0].Message)
	}
}

func TestStoreClear(t *testing.T) {
	s := New(3)
	s.Info("a", "one", nil)
	s.Info("a", "two", nil)
	s.Clear()

	if s.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", s.Len())
	}
	s.Info("a", "three", nil)
	if entries := s.Entries(); len(entries) != 1 || entries[0].Message != "three" {
		t.Errorf("Entries() after Clear = %+v", entries)
	}
}

func TestStoreToggleConsole(t *testing.T) {
	s := New(3)
	if s.ConsoleVisible() {
		t.Error("console should start hidden")
	}
	if !s.ToggleConsole() {
		t.Error("ToggleConsole() should return true")
	}
	if s.ToggleConsole() {
		t.Error("second ToggleConsole() should return false")
	}

	visible := New(3, WithConsoleVisible(true))
	if !visible.ConsoleVisible() {
		t.Error("WithConsoleVisible(true) not applied")
	}
}

func TestStoreMirrorsEntries(t *testing.T) {
	var buf bytes.Buffer
	s := New(3, WithMirror(zerolog.New(&buf)))

	s.Error("ext-a", "boom", "stack")

	out := buf.String()
	for _, want := range []string{`"level":"error"`, `"extension":"ext-a"`, `"message":"boom"`, `"details":"stack"`} {
		if !strings.Contains(out, want) {
			t.Errorf("mirror output %q missing %s", out, want)
		}
	}
}
