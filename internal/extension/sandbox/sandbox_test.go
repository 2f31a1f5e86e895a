package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dshills/kairo/internal/extension/capability"
	"github.com/dshills/kairo/internal/extension/security"
)

type stubEvaluator struct {
	name string
	exts []string
}

func (s stubEvaluator) Name() string                 { return s.name }
func (s stubEvaluator) Extensions() []string         { return s.exts }
func (s stubEvaluator) Patterns() []security.Pattern { return nil }
func (s stubEvaluator) Evaluate(context.Context, Source, *capability.API) (Module, error) {
	return nil, nil
}

func TestRuntimesFor(t *testing.T) {
	r := NewRuntimes(
		stubEvaluator{name: "javascript", exts: []string{".js", ".mjs"}},
		stubEvaluator{name: "lua", exts: []string{".lua"}},
	)

	tests := []struct {
		path string
		want string
	}{
		{"main.js", "javascript"},
		{"lib/Main.JS", "javascript"},
		{"init.lua", "lua"},
	}
	for _, tt := range tests {
		ev, err := r.For(tt.path)
		if err != nil {
			t.Errorf("For(%q) error = %v", tt.path, err)
			continue
		}
		if ev.Name() != tt.want {
			t.Errorf("For(%q) = %s, want %s", tt.path, ev.Name(), tt.want)
		}
	}

	if _, err := r.For("main.py"); !errors.Is(err, ErrUnsupportedRuntime) {
		t.Errorf("error = %v, want ErrUnsupportedRuntime", err)
	}
	if got := r.Extensions(); len(got) != 3 || got[0] != ".js" {
		t.Errorf("Extensions() = %v", got)
	}
}

func TestInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Interrupted(ctx, "ignored")
	if !errors.Is(err, ErrInterrupted) || !errors.Is(err, context.Canceled) {
		t.Errorf("Interrupted() = %v", err)
	}
	if err := Interrupted(context.Background(), "halt"); !errors.Is(err, ErrInterrupted) {
		t.Errorf("Interrupted() = %v", err)
	}
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Error("positive duration should set a deadline")
	}

	ctx, cancel = WithTimeout(context.Background(), 0)
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Error("zero duration should not set a deadline")
	}

	parent, cancelParent := context.WithTimeout(context.Background(), time.Hour)
	defer cancelParent()
	want, _ := parent.Deadline()
	ctx, cancel = WithTimeout(parent, time.Millisecond)
	defer cancel()
	if got, _ := ctx.Deadline(); !got.Equal(want) {
		t.Errorf("deadline = %v, want caller deadline %v", got, want)
	}
}
