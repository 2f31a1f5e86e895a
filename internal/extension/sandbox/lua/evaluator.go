package lua

import (
	"context"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/kairo/internal/extension/capability"
	"github.com/dshills/kairo/internal/extension/logstore"
	"github.com/dshills/kairo/internal/extension/sandbox"
	"github.com/dshills/kairo/internal/extension/security"
)

// Evaluator runs Lua extensions.
type Evaluator struct {
	callTimeout time.Duration
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithTimeout bounds every call into an extension state, including
// callbacks invoked by the host.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		e.callTimeout = d
	}
}

// New creates a Lua evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{callTimeout: DefaultCallTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements sandbox.Evaluator.
func (e *Evaluator) Name() string { return "lua" }

// Extensions implements sandbox.Evaluator.
func (e *Evaluator) Extensions() []string { return []string{".lua"} }

// Patterns implements sandbox.Evaluator.
func (e *Evaluator) Patterns() []security.Pattern { return Patterns }

// Evaluate implements sandbox.Evaluator.
func (e *Evaluator) Evaluate(ctx context.Context, src sandbox.Source, api *capability.API) (sandbox.Module, error) {
	state := NewState(
		WithCallTimeout(e.callTimeout),
		WithPrint(func(line string) {
			api.Log(logstore.LevelInfo, line, nil)
		}),
	)

	apiTable := newAPIModule(state, api).Table()
	exports := state.L.NewTable()
	env := state.Environment(map[string]lua.LValue{
		"api":     apiTable,
		"exports": exports,
	})

	chunk, err := state.Compile(src.Path, src.Code, env)
	if err != nil {
		state.Close()
		return nil, err
	}
	results, err := state.Call(ctx, chunk)
	if err != nil {
		state.Close()
		return nil, err
	}

	// A chunk that returns a table provides its exports that way.
	if len(results) > 0 {
		if t, ok := results[0].(*lua.LTable); ok {
			exports = t
		}
	}

	b := state.Bridge()
	return &module{
		state:   state,
		api:     apiTable,
		init:    b.GetTableFunc(exports, "initialize"),
		cleanup: b.GetTableFunc(exports, "cleanup"),
	}, nil
}

type module struct {
	state   *State
	api     *lua.LTable
	init    *lua.LFunction
	cleanup *lua.LFunction
}

func (m *module) HasInitialize() bool { return m.init != nil }
func (m *module) HasCleanup() bool    { return m.cleanup != nil }

func (m *module) Initialize(ctx context.Context) error {
	if m.init == nil {
		return nil
	}
	_, err := m.state.Call(ctx, m.init, m.api)
	return err
}

func (m *module) Cleanup(ctx context.Context) error {
	if m.cleanup == nil {
		return nil
	}
	_, err := m.state.Call(ctx, m.cleanup)
	return err
}

func (m *module) Close() {
	m.state.Close()
}
