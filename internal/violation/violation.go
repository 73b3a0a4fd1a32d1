// Package violation defines the error taxonomy shared by every ledger
// component.
//
// Each failure class is a sentinel kind. Structured errors carry the kind plus
// the location of the offending file and line:
//
//	TRUTH_V4 missing END terminator (path=TRUTH.md line=41)
//
// Use [errors.Is] with a kind to classify an error at any wrapping depth:
//
//	if errors.Is(err, violation.ErrSequence) { ... }
//
// Use [errors.As] to extract the location:
//
//	var v *violation.Error
//	if errors.As(err, &v) {
//	    fmt.Println(v.Path, v.Line)
//	}
package violation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Failure kinds.
var (
	// ErrAuthority means a fact is declared in zero or several places, or in
	// a place other than its designated authority.
	ErrAuthority = errors.New("authority violation")

	// ErrFormat means a malformed header, section marker, terminator or
	// section ordering.
	ErrFormat = errors.New("format violation")

	// ErrSequence means non-contiguous versions, a project mismatch, or a
	// version marker that disagrees with the ledger.
	ErrSequence = errors.New("sequence violation")

	// ErrDraftConflict means a missing, duplicate, or version-mismatched
	// pending draft.
	ErrDraftConflict = errors.New("draft conflict")

	// ErrArchiveContract means a duplicate member, wrong nesting, or a
	// missing or mismatched manifest.
	ErrArchiveContract = errors.New("archive contract violation")

	// ErrRollbackFailed means a transaction failed and restoring the
	// pre-transaction state failed too.
	ErrRollbackFailed = errors.New("transaction rollback failure")

	// ErrIndex means the derived index artifacts are missing or malformed.
	ErrIndex = errors.New("index contract violation")
)

// Error is a classified failure with optional location context.
//
// Formats as "<msg> (path=X line=N)". The kind is not repeated in the
// message; callers that print errors prefix it via [KindOf].
type Error struct {
	Kind error
	Path string
	Line int
	Msg  string
	Err  error
}

// Error formats as "<msg>: <cause> (path=X line=N)".
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	var b strings.Builder

	b.WriteString(e.Msg)

	if e.Err != nil {
		if b.Len() > 0 {
			b.WriteString(": ")
		}

		b.WriteString(e.Err.Error())
	}

	if suffix := e.suffix(); suffix != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}

		b.WriteString(suffix)
	}

	return b.String()
}

// Is reports whether target is this error's kind.
func (e *Error) Is(target error) bool {
	return e != nil && e.Kind != nil && target == e.Kind
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

func (e *Error) suffix() string {
	var parts []string

	if e.Path != "" {
		parts = append(parts, "path="+e.Path)
	}

	if e.Line > 0 {
		parts = append(parts, "line="+strconv.Itoa(e.Line))
	}

	if len(parts) == 0 {
		return ""
	}

	return "(" + strings.Join(parts, " ") + ")"
}

// New returns a classified error without location.
func New(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// At returns a classified error located at path and line. A zero line omits
// the line from the message.
func At(kind error, path string, line int, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Line: line, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. Returns nil if err is nil.
func Wrap(kind error, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// WithPath fills in a missing path on a classified error. Other errors are
// returned unchanged.
func WithPath(err error, path string) error {
	var v *Error
	if errors.As(err, &v) && v.Path == "" {
		v.Path = path
	}

	return err
}

var kinds = []error{
	ErrRollbackFailed,
	ErrAuthority,
	ErrFormat,
	ErrSequence,
	ErrDraftConflict,
	ErrArchiveContract,
	ErrIndex,
}

// KindOf returns the kind of err, or nil if err is not classified.
// A rollback failure outranks the kind of its cause.
func KindOf(err error) error {
	if err == nil {
		return nil
	}

	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}

	return nil
}
