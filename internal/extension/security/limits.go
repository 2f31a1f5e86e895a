package security

import "time"

// Limits defines the bounds applied to a single extension.
type Limits struct {
	// Maximum source size in bytes
	MaxSourceBytes int

	// Maximum time initialize may run
	InitializeTimeout time.Duration

	// Maximum time a registered callback may run
	CallTimeout time.Duration

	// Maximum size of one storage value in bytes
	MaxStorageBytes int
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxSourceBytes:    DefaultMaxSourceBytes,
		InitializeTimeout: 10 * time.Second,
		CallTimeout:       5 * time.Second,
		MaxStorageBytes:   10 * 1024 * 1024, // 10 MB
	}
}

// StrictLimits returns tighter limits for untrusted vaults.
func StrictLimits() Limits {
	return Limits{
		MaxSourceBytes:    128 * 1024,
		InitializeTimeout: 2 * time.Second,
		CallTimeout:       1 * time.Second,
		MaxStorageBytes:   1024 * 1024, // 1 MB
	}
}

// Normalize replaces zero or negative fields with their defaults.
func (l Limits) Normalize() Limits {
	d := DefaultLimits()
	if l.MaxSourceBytes <= 0 {
		l.MaxSourceBytes = d.MaxSourceBytes
	}
	if l.InitializeTimeout <= 0 {
		l.InitializeTimeout = d.InitializeTimeout
	}
	if l.CallTimeout <= 0 {
		l.CallTimeout = d.CallTimeout
	}
	if l.MaxStorageBytes <= 0 {
		l.MaxStorageBytes = d.MaxStorageBytes
	}
	return l
}
