package js

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/dshills/kairo/internal/extension/sandbox"
)

// ErrPending is returned when a promise is still pending after the job
// queue has drained.
var ErrPending = errors.New("promise did not settle")

// RejectedError reports a rejected promise.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "promise rejected: " + e.Reason
}

// vm is the goja runtime of one extension. goja runtimes are not
// goroutine-safe; run holds the mutex for the whole call.
type vm struct {
	rt          *goja.Runtime
	callTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func newVM(callTimeout time.Duration) *vm {
	return &vm{rt: goja.New(), callTimeout: callTimeout}
}

// run calls fn with the runtime, interrupting it when ctx is done or the
// call timeout elapses.
func (v *vm) run(ctx context.Context, fn func(rt *goja.Runtime) (goja.Value, error)) (result goja.Value, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, sandbox.ErrClosed
	}

	ctx, cancel := sandbox.WithTimeout(ctx, v.callTimeout)
	defer cancel()

	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		v.rt.Interrupt(ctx.Err())
		close(fired)
	})
	defer func() {
		if !stop() {
			<-fired
		}
		v.rt.ClearInterrupt()
	}()
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("javascript panic: %v", r)
		}
	}()

	val, err := fn(v.rt)
	if err != nil {
		var ie *goja.InterruptedError
		if errors.As(err, &ie) {
			return nil, sandbox.Interrupted(ctx, ie.Value())
		}
		return nil, err
	}
	return val, nil
}

func (v *vm) close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
}

// settle resolves a promise result. Non-promise values are returned as is.
func settle(val goja.Value) (goja.Value, error) {
	if val == nil {
		return nil, nil
	}
	p, ok := val.Export().(*goja.Promise)
	if !ok {
		return val, nil
	}
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return p.Result(), nil
	case goja.PromiseStateRejected:
		return nil, &RejectedError{Reason: p.Result().String()}
	default:
		return nil, ErrPending
	}
}

// export converts a JavaScript value to a Go value. undefined and null
// become nil.
func export(val goja.Value) any {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}
