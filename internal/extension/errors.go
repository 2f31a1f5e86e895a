package extension

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/kairo/internal/extension/settings"
)

// Extension runtime errors.
var (
	// ErrExtensionNotFound is returned for an id the registry does not know.
	ErrExtensionNotFound = errors.New("extension not found")

	// ErrManifestSyntax is returned when manifest.json is not valid JSON.
	ErrManifestSyntax = errors.New("manifest is not valid JSON")

	// ErrManifestInvalid is returned when a manifest breaks the schema.
	ErrManifestInvalid = errors.New("manifest is invalid")

	// ErrPolicyBlocked marks an extension the host policy keeps from running.
	// It is an expected outcome, not a failure.
	ErrPolicyBlocked = errors.New("dynamic code blocked by host policy")
)

// PersistenceError reports a settings read or write failure.
type PersistenceError = settings.PersistenceError

// ManifestError reports a manifest that could not be read or accepted.
// No Extension record exists for it.
type ManifestError struct {
	Path   string
	ID     string // set when the manifest parsed far enough to name one
	Issues []Issue
	Err    error
}

func (e *ManifestError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "manifest %s: %v", e.Path, e.Err)
	for i, issue := range e.Issues {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(issue.String())
	}
	return b.String()
}

func (e *ManifestError) Unwrap() error {
	return e.Err
}

// Evaluation phases.
const (
	PhaseEvaluate   = "evaluate"
	PhaseInitialize = "initialize"
	PhaseCleanup    = "cleanup"
)

// EvaluationError reports a failure while running extension code.
type EvaluationError struct {
	ID    string
	Phase string
	Err   error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("extension %s: %s: %v", e.ID, e.Phase, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// ConflictError reports a second folder declaring an id that is already
// registered from another folder. The existing record is kept.
type ConflictError struct {
	ID           string
	ExistingPath string
	Path         string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("extension %s: already registered from %s, ignoring %s", e.ID, e.ExistingPath, e.Path)
}
