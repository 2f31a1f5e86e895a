// Package sandbox defines how extension source is evaluated. A runtime
// implements Evaluator; Runtimes picks one from the extension's entry point.
//
// Runtimes build a fresh interpreter per extension whose global scope holds
// only the language's safe built-ins plus the capability API, so extension
// code has no ambient access to the host.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dshills/kairo/internal/extension/capability"
	"github.com/dshills/kairo/internal/extension/security"
)

// Errors shared by runtimes.
var (
	ErrUnsupportedRuntime = errors.New("no runtime for entry point")
	ErrClosed             = errors.New("sandbox closed")
	ErrInterrupted        = errors.New("execution interrupted")
)

// Source is the code of one extension.
type Source struct {
	ExtensionID string
	// Path is the entry point file, used in error positions.
	Path string
	Code string
}

// Module is an evaluated extension. Its exports are held only while the
// extension is loaded.
type Module interface {
	HasInitialize() bool
	HasCleanup() bool

	// Initialize calls exports.initialize(api). An awaitable result is
	// settled before returning.
	Initialize(ctx context.Context) error

	// Cleanup calls exports.cleanup().
	Cleanup(ctx context.Context) error

	// Close releases the interpreter. Callbacks registered by the module
	// fail with ErrClosed afterwards.
	Close()
}

// Evaluator runs extension source in a restricted scope.
type Evaluator interface {
	// Name identifies the runtime, e.g. "javascript".
	Name() string

	// Extensions lists the entry-point file extensions handled, with the
	// leading dot.
	Extensions() []string

	// Patterns is the deny-list applied to source before evaluation.
	Patterns() []security.Pattern

	// Evaluate runs the top level of src with api bound and returns the
	// module's exports.
	Evaluate(ctx context.Context, src Source, api *capability.API) (Module, error)
}

// Runtimes maps entry-point extensions to evaluators.
type Runtimes struct {
	byExt map[string]Evaluator
	names []string
}

// NewRuntimes registers evaluators. A later evaluator claiming the same
// file extension replaces an earlier one.
func NewRuntimes(evaluators ...Evaluator) *Runtimes {
	r := &Runtimes{byExt: make(map[string]Evaluator)}
	for _, ev := range evaluators {
		r.names = append(r.names, ev.Name())
		for _, ext := range ev.Extensions() {
			r.byExt[strings.ToLower(ext)] = ev
		}
	}
	return r
}

// For returns the evaluator of an entry point.
func (r *Runtimes) For(path string) (Evaluator, error) {
	ext := strings.ToLower(filepath.Ext(path))
	ev, ok := r.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRuntime, path)
	}
	return ev, nil
}

// Names returns the registered runtime names.
func (r *Runtimes) Names() []string {
	return append([]string(nil), r.names...)
}

// Extensions returns every handled file extension, sorted.
func (r *Runtimes) Extensions() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// WithTimeout bounds ctx by d when d is positive. A deadline already set on
// ctx by the caller takes precedence.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Interrupted wraps the cause of an interruption.
func Interrupted(ctx context.Context, detail any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	return fmt.Errorf("%w: %v", ErrInterrupted, detail)
}
