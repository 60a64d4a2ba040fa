// Package shuffleerr defines the error kinds the uploader distinguishes,
// per spec §7. Callers use errors.As to recover a *Error and inspect its
// Kind, or IsKind to test for one Kind directly. Kind values are not
// errors themselves, so errors.Is cannot match against them.
package shuffleerr

import "github.com/pkg/errors"

// Kind classifies an Error.
type Kind int

const (
	// Configuration is a builder-time error: fatal, refuses to construct.
	Configuration Kind = iota
	// TransientUpload means the handler reported partial or zero success;
	// local state is unchanged for the unreported partitions and the next
	// tick retries them naturally.
	TransientUpload
	// LocalIO means a candidate data/index pair could not be read; the
	// pair is skipped for this tick and logged, not fatal.
	LocalIO
	// DeadlineElapsed is soft: the worker pool continues in the
	// background but the tick returns without waiting further.
	DeadlineElapsed
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "ConfigurationError"
	case TransientUpload:
		return "TransientUploadError"
	case LocalIO:
		return "LocalIoError"
	case DeadlineElapsed:
		return "DeadlineElapsed"
	default:
		return "UnknownError"
	}
}

// Error wraps an underlying cause with a Kind so callers can branch on it.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Kind.String()
	}

	return e.Kind.String() + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New builds an Error of the given kind wrapping msg.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, cause: errors.New(msg)}
}

// Wrap builds an Error of the given kind wrapping an existing error.
func Wrap(kind Kind, err error, msg string) *Error {
	if err == nil {
		return nil
	}

	return &Error{Kind: kind, cause: errors.Wrap(err, msg)}
}

// IsKind reports whether err is (or wraps) an *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var se *Error
	if !errors.As(err, &se) {
		return false
	}

	return se.Kind == kind
}
