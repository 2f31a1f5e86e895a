package config

import (
	"errors"
	"fmt"
)

// ErrEnvironment indicates a KAIRO_* variable could not be applied.
var ErrEnvironment = errors.New("invalid environment override")

// ParseError reports a config file that is not valid TOML or does not fit
// the Config shape.
type ParseError struct {
	Path string

	// Line and Column are 1-based; zero when the decoder gave no position.
	Line   int
	Column int

	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("config %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("config %s:%d:%d: %s", e.Path, e.Line, e.Column, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError names the setting that was rejected by Validate. Path
// uses the dotted TOML key, for example "log.level".
type ValidationError struct {
	Path    string
	Message string
	Value   any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config %s: %s (got %v)", e.Path, e.Message, e.Value)
}
