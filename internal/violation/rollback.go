package violation

import (
	"errors"
	"strings"
)

// RollbackError is returned when a transaction failed and at least one
// restore step failed as well. Neither the cause nor the restore failures
// are dropped: [errors.Is] matches the cause's kind, every failure, and
// [ErrRollbackFailed].
type RollbackError struct {
	// Cause is the error that triggered the rollback.
	Cause error

	// Failures holds one error per restore step that failed.
	Failures []error

	// Restored lists what was put back successfully.
	Restored []string
}

func (e *RollbackError) Error() string {
	var b strings.Builder

	b.WriteString(ErrRollbackFailed.Error())
	b.WriteString(": ")

	if e.Cause != nil {
		b.WriteString(e.Cause.Error())
	} else {
		b.WriteString("unknown cause")
	}

	for _, f := range e.Failures {
		b.WriteString("\n  rollback: ")
		b.WriteString(f.Error())
	}

	return b.String()
}

// Is makes errors.Is(err, ErrRollbackFailed) true for any RollbackError.
func (e *RollbackError) Is(target error) bool {
	return target == ErrRollbackFailed
}

// Unwrap exposes the cause followed by every restore failure.
func (e *RollbackError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures)+1)
	if e.Cause != nil {
		out = append(out, e.Cause)
	}

	return append(out, e.Failures...)
}

// AsRollback extracts a *RollbackError from err.
func AsRollback(err error) (*RollbackError, bool) {
	var rb *RollbackError
	if errors.As(err, &rb) {
		return rb, true
	}

	return nil, false
}
