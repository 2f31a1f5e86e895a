// Package security holds the static checks applied to extension source
// before it is evaluated, and the host policy that decides whether dynamic
// code may run at all.
//
// # Validation
//
// Validator rejects source that is larger than the configured limit and
// then scans it for a runtime-specific deny-list of escape patterns. Each
// sandbox runtime contributes its own []Pattern. The scan is a pre-filter
// over source text: the evaluation scope built by the runtime is what
// actually withholds host bindings.
//
// # Policy
//
// DynamicCodePolicy computes once whether the host permits constructing
// executable code. When it does not, extensions are left policy-blocked
// and never evaluated.
//
// # Limits
//
// Limits groups the numeric bounds applied to an extension: source size,
// initialize and callback timeouts, and per-extension storage writes.
package security
