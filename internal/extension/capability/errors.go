package capability

import "errors"

// Errors returned by registries and API instances.
var (
	ErrEmptyID         = errors.New("local id must not be empty")
	ErrNilCallback     = errors.New("callback must not be nil")
	ErrCommandNotFound = errors.New("command not found")
	ErrUnknownStore    = errors.New("unknown store")
	ErrDisposed        = errors.New("extension api disposed")
	ErrNoStorage       = errors.New("storage not available")
	ErrCallbackPanic   = errors.New("extension callback panicked")
)
