package security

import (
	"errors"
	"sync"
)

// ErrDynamicCodeDisabled is returned by Err when the host configuration
// forbids dynamic code.
var ErrDynamicCodeDisabled = errors.New("dynamic code disabled by host policy")

// DynamicCodePolicy answers whether the host permits constructing and
// running new executable code. The answer is computed on first use and
// cached for the lifetime of the policy.
type DynamicCodePolicy struct {
	allow bool
	probe func() error

	once sync.Once
	err  error
}

// NewDynamicCodePolicy returns a policy. allow is the configured host
// setting; probe, when non-nil, must compile and run a trivial program and
// report any failure.
func NewDynamicCodePolicy(allow bool, probe func() error) *DynamicCodePolicy {
	return &DynamicCodePolicy{allow: allow, probe: probe}
}

// Allowed reports whether dynamic code may run.
func (p *DynamicCodePolicy) Allowed() bool {
	return p.Err() == nil
}

// Err returns the reason dynamic code is forbidden, or nil.
func (p *DynamicCodePolicy) Err() error {
	p.once.Do(func() {
		if !p.allow {
			p.err = ErrDynamicCodeDisabled
			return
		}
		if p.probe != nil {
			p.err = p.probe()
		}
	})
	return p.err
}
