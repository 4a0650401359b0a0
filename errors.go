package tdk

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Error is a constant error type.
type Error string

func (e Error) Error() string { return string(e) }

// ErrMissingParam is wrapped by ConfigurationError when a required key has no
// value.
const ErrMissingParam = Error("missing required parameter")

// ConfigurationError reports missing or malformed parameters. It is fatal and
// never retried.
type ConfigurationError struct {
	Key string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %v", e.Key, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// FetchError is returned when a fetch step has failed on every attempt.
type FetchError struct {
	Step     string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch step %s failed after %d attempt(s): %v", e.Step, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// TransformError indicates input data which violates the expectations of a
// transform (e.g. a missing column).
type TransformError struct {
	Step   string
	Column string
	Err    error
}

func (e *TransformError) Error() string {
	var b strings.Builder
	b.WriteString("transform")
	if e.Step != "" {
		b.WriteString(" step ")
		b.WriteString(e.Step)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " column %s", e.Column)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *TransformError) Unwrap() error { return e.Err }

// LoadError is returned when a destination is unreachable or rejects a write.
type LoadError struct {
	Step        string
	Destination string
	Attempts    int
	Err         error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load step %s into %s failed after %d attempt(s): %v", e.Step, e.Destination, e.Attempts, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// TimeoutError is returned when a single attempt of an external call exceeds
// its deadline. It is retryable.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Op, e.Timeout)
}

// CleanupWarning is logged when an artifact can't be removed. It never fails a
// run.
type CleanupWarning struct {
	Artifact ArtifactHandle
	Err      error
}

func (e *CleanupWarning) Error() string {
	return fmt.Sprintf("cleanup of %s: %v", e.Artifact, e.Err)
}

func (e *CleanupWarning) Unwrap() error { return e.Err }

// permanent marks an error which must not be retried.
type permanent struct{ err error }

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent marks err so that the runner won't retry the step that returned
// it. Returns nil for a nil err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked with
// Permanent or is a ConfigurationError or TransformError.
func IsPermanent(err error) bool {
	var p *permanent
	if errors.As(err, &p) {
		return true
	}
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return true
	}
	var te *TransformError
	return errors.As(err, &te)
}

// IsTimeout reports whether err is or wraps a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Exit codes returned by ExitCode.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitConfiguration = 2
	ExitFetch         = 3
	ExitTransform     = 4
	ExitLoad          = 5
	ExitTimeout       = 6
)

// ExitCode maps an error returned from a pipeline run to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var (
		ce *ConfigurationError
		fe *FetchError
		te *TransformError
		le *LoadError
		to *TimeoutError
	)
	switch {
	case errors.As(err, &ce):
		return ExitConfiguration
	case errors.As(err, &fe):
		return ExitFetch
	case errors.As(err, &te):
		return ExitTransform
	case errors.As(err, &le):
		return ExitLoad
	case errors.As(err, &to):
		return ExitTimeout
	}
	return ExitFailure
}

type errorList []error

func (errs errorList) Error() string {
	errstrings := make([]string, len(errs))
	for i, err := range errs {
		errstrings[i] = err.Error()
	}
	return strings.Join(errstrings, "; ")
}

// Unwrap exposes each member error to errors.Is and errors.As.
func (errs errorList) Unwrap() []error { return errs }
