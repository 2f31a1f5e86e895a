package security

import (
	"errors"
	"fmt"
	"regexp"
)

// DefaultMaxSourceBytes is the default source size limit (500 KiB).
const DefaultMaxSourceBytes = 500 * 1024

// Validation failure causes.
var (
	ErrSourceTooLarge = errors.New("source exceeds size limit")
	ErrBlockedPattern = errors.New("source contains a blocked pattern")
)

// Pattern is one entry of a deny-list.
type Pattern struct {
	Name        string
	Description string
	Expr        *regexp.Regexp
}

// NewPattern compiles a deny-list entry. It panics on a bad expression and
// is meant for package-level pattern tables.
func NewPattern(name, description, expr string) Pattern {
	return Pattern{Name: name, Description: description, Expr: regexp.MustCompile(expr)}
}

// ValidationError reports why a source was rejected.
type ValidationError struct {
	// Pattern is the name of the matching pattern, empty for size failures.
	Pattern string
	// Match is the offending text.
	Match string
	// Size and Limit are set for size failures.
	Size  int
	Limit int
	Err   error
}

func (e *ValidationError) Error() string {
	if errors.Is(e.Err, ErrSourceTooLarge) {
		return fmt.Sprintf("source is %d bytes, limit is %d", e.Size, e.Limit)
	}
	return fmt.Sprintf("blocked pattern %s: %q", e.Pattern, e.Match)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validator checks extension source before evaluation.
type Validator struct {
	maxBytes int
}

// NewValidator returns a validator with the given size limit.
// A non-positive limit selects DefaultMaxSourceBytes.
func NewValidator(maxBytes int) *Validator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxSourceBytes
	}
	return &Validator{maxBytes: maxBytes}
}

// MaxBytes returns the size limit.
func (v *Validator) MaxBytes() int {
	return v.maxBytes
}

// Validate rejects src if it is over the size limit or matches any pattern.
// The size is checked before the content is looked at.
func (v *Validator) Validate(src string, patterns []Pattern) error {
	if len(src) > v.maxBytes {
		return &ValidationError{Size: len(src), Limit: v.maxBytes, Err: ErrSourceTooLarge}
	}
	for _, p := range patterns {
		if loc := p.Expr.FindStringIndex(src); loc != nil {
			return &ValidationError{
				Pattern: p.Name,
				Match:   src[loc[0]:loc[1]],
				Err:     ErrBlockedPattern,
			}
		}
	}
	return nil
}
