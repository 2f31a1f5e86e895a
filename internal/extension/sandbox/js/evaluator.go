package js

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/dshills/kairo/internal/extension/capability"
	"github.com/dshills/kairo/internal/extension/sandbox"
	"github.com/dshills/kairo/internal/extension/security"
)

// DefaultCallTimeout bounds a single call into an extension runtime.
const DefaultCallTimeout = 5 * time.Second

// Evaluator runs JavaScript extensions.
type Evaluator struct {
	callTimeout time.Duration
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithTimeout bounds every call into an extension runtime, including
// callbacks invoked by the host.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		e.callTimeout = d
	}
}

// New creates a JavaScript evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{callTimeout: DefaultCallTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements sandbox.Evaluator.
func (e *Evaluator) Name() string { return "javascript" }

// Extensions implements sandbox.Evaluator.
func (e *Evaluator) Extensions() []string { return []string{".js", ".mjs", ".cjs"} }

// Patterns implements sandbox.Evaluator.
func (e *Evaluator) Patterns() []security.Pattern { return Patterns }

// Evaluate implements sandbox.Evaluator.
func (e *Evaluator) Evaluate(ctx context.Context, src sandbox.Source, api *capability.API) (sandbox.Module, error) {
	v := newVM(e.callTimeout)
	mod := &module{vm: v}

	_, err := v.run(ctx, func(rt *goja.Runtime) (goja.Value, error) {
		global := rt.GlobalObject()
		for _, name := range BlockedGlobals {
			if err := global.Delete(name); err != nil {
				return nil, fmt.Errorf("remove global %s: %w", name, err)
			}
		}
		if err := global.Set("console", newConsole(rt, api)); err != nil {
			return nil, err
		}

		mod.api = newAPIObject(rt, v, api)
		exports := rt.NewObject()

		wrapper, err := rt.RunScript(src.Path, wrap(src.Code))
		if err != nil {
			return nil, err
		}
		fn, ok := goja.AssertFunction(wrapper)
		if !ok {
			return nil, errors.New("module wrapper is not a function")
		}

		args := []goja.Value{mod.api, exports}
		for _, name := range BlockedGlobals {
			if !notParameters[name] {
				args = append(args, goja.Undefined())
			}
		}
		if _, err := fn(exports, args...); err != nil {
			return nil, err
		}

		mod.init, _ = goja.AssertFunction(exports.Get("initialize"))
		mod.cleanup, _ = goja.AssertFunction(exports.Get("cleanup"))
		return nil, nil
	})
	if err != nil {
		v.close()
		return nil, err
	}
	return mod, nil
}

// wrap builds the module wrapper expression for code.
func wrap(code string) string {
	params := []string{"api", "exports"}
	for _, name := range BlockedGlobals {
		if !notParameters[name] {
			params = append(params, name)
		}
	}
	return "(function(" + strings.Join(params, ", ") + ") {\n" + code + "\n})"
}

type module struct {
	vm      *vm
	api     *goja.Object
	init    goja.Callable
	cleanup goja.Callable
}

func (m *module) HasInitialize() bool { return m.init != nil }
func (m *module) HasCleanup() bool    { return m.cleanup != nil }

func (m *module) Initialize(ctx context.Context) error {
	if m.init == nil {
		return nil
	}
	_, err := m.vm.run(ctx, func(*goja.Runtime) (goja.Value, error) {
		res, err := m.init(goja.Undefined(), m.api)
		if err != nil {
			return nil, err
		}
		return settle(res)
	})
	return err
}

func (m *module) Cleanup(ctx context.Context) error {
	if m.cleanup == nil {
		return nil
	}
	_, err := m.vm.run(ctx, func(*goja.Runtime) (goja.Value, error) {
		res, err := m.cleanup(goja.Undefined())
		if err != nil {
			return nil, err
		}
		return settle(res)
	})
	return err
}

func (m *module) Close() {
	m.vm.close()
}

// Probe checks that the runtime can compile and run code.
func Probe() error {
	rt := goja.New()
	val, err := rt.RunString("(function (a, b) { return a + b; })(40, 2)")
	if err != nil {
		return fmt.Errorf("dynamic code probe: %w", err)
	}
	if val.ToInteger() != 42 {
		return fmt.Errorf("dynamic code probe returned %v", val)
	}
	return nil
}

var defaultPolicy = sync.OnceValue(func() *security.DynamicCodePolicy {
	return security.NewDynamicCodePolicy(true, Probe)
})

// DefaultPolicy returns the process-wide dynamic code policy, backed by
// Probe.
func DefaultPolicy() *security.DynamicCodePolicy {
	return defaultPolicy()
}
