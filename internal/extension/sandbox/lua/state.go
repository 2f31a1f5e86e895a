package lua

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/kairo/internal/extension/sandbox"
)

// DefaultCallTimeout bounds a single call into the state.
const DefaultCallTimeout = 5 * time.Second

// safeGlobals are the base-library names copied into an extension's
// environment.
var safeGlobals = []string{
	"_VERSION",
	"assert", "error", "ipairs", "next", "pairs", "pcall", "rawequal",
	"rawget", "rawset", "select", "setmetatable", "tonumber", "tostring",
	"type", "unpack", "xpcall",
	"string", "table", "math",
}

// removedGlobals are deleted from the real globals table as well, so they
// stay unreachable even if a function escapes its environment.
var removedGlobals = []string{
	"dofile", "loadfile", "load", "loadstring", "require", "module",
	"getfenv", "setfenv", "collectgarbage", "newproxy", "_printregs",
}

// State wraps one gopher-lua state.
//
// gopher-lua's LState is not goroutine-safe. Every entry into the state
// goes through Call, which holds the state mutex for the whole call.
type State struct {
	L      *lua.LState
	bridge *Bridge

	mu          sync.Mutex
	callTimeout time.Duration
	print       func(string)
	closed      bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithCallTimeout bounds each call made through Call. Zero disables the
// bound; the caller's context still applies.
func WithCallTimeout(d time.Duration) StateOption {
	return func(s *State) {
		s.callTimeout = d
	}
}

// WithPrint routes print output.
func WithPrint(fn func(string)) StateOption {
	return func(s *State) {
		s.print = fn
	}
}

// NewState creates a state with only the safe libraries opened.
func NewState(opts ...StateOption) *State {
	s := &State{
		callTimeout: DefaultCallTimeout,
		print:       func(string) {},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	s.bridge = NewBridge(s.L)
	openSafeLibraries(s.L)
	for _, name := range removedGlobals {
		s.L.SetGlobal(name, lua.LNil)
	}
	return s
}

// openSafeLibraries opens only safe Lua standard libraries.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// io, os, debug, package and channel are never opened.
}

// Bridge returns the value converter of the state.
func (s *State) Bridge() *Bridge {
	return s.bridge
}

// Environment builds an environment table holding the safe globals, a
// print routed to the state's printer, and the given bindings.
func (s *State) Environment(bindings map[string]lua.LValue) *lua.LTable {
	env := s.L.NewTable()
	for _, name := range safeGlobals {
		if v := s.L.GetGlobal(name); v != lua.LNil {
			env.RawSetString(name, v)
		}
	}
	env.RawSetString("print", s.L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, 0, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		s.print(strings.Join(parts, "\t"))
		return 0
	}))
	for name, v := range bindings {
		env.RawSetString(name, v)
	}
	return env
}

// Compile loads code as a function whose globals are env.
func (s *State) Compile(name, code string, env *lua.LTable) (*lua.LFunction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, sandbox.ErrClosed
	}
	fn, err := s.L.Load(strings.NewReader(code), name)
	if err != nil {
		return nil, err
	}
	s.L.SetFEnv(fn, env)
	return fn, nil
}

// Call calls fn with args under the state mutex, bounded by ctx and the
// call timeout. Go arguments are converted with the bridge.
func (s *State) Call(ctx context.Context, fn *lua.LFunction, args ...any) ([]lua.LValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, sandbox.ErrClosed
	}

	ctx, cancel := sandbox.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	top := s.L.GetTop()
	s.L.Push(fn)
	for _, arg := range args {
		s.L.Push(s.bridge.ToLuaValue(arg))
	}

	if err := s.protectedCall(len(args)); err != nil {
		s.L.SetTop(top)
		if ctx.Err() != nil {
			return nil, sandbox.Interrupted(ctx, err)
		}
		return nil, err
	}

	n := s.L.GetTop() - top
	results := make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		results[i] = s.L.Get(top + i + 1)
	}
	s.L.SetTop(top)
	return results, nil
}

// protectedCall runs PCall and converts Go panics raised by host functions
// into errors.
func (s *State) protectedCall(nargs int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return s.L.PCall(nargs, lua.MultRet, nil)
}

// IsClosed returns true if the state has been closed.
func (s *State) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the state. Calls made afterwards fail with
// sandbox.ErrClosed.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.L.Close()
	s.closed = true
}
