// Package errs defines the error kinds shared by the auction engine, the
// lobby layer and the HTTP adapter.
package errs

import "errors"

// Kind classifies an error for callers that need to react to the category
// rather than the exact condition (for example to pick an HTTP status).
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindState
	KindPermission
	KindNotFound
	KindResource
	KindIllegalMove
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindPermission:
		return "permission"
	case KindNotFound:
		return "not_found"
	case KindResource:
		return "resource"
	case KindIllegalMove:
		return "illegal_move"
	default:
		return "unknown"
	}
}

// Error is a classified error with a stable machine-readable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

// New returns a classified error. Package-level sentinels are built with it
// and compared with errors.Is.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf reports the code of the first *Error in err's chain, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}
