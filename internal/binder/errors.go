package binder

import "fmt"

// Kind enumerates the binder's error taxonomy. Callers branch on Kind
// rather than matching message text.
type Kind int

const (
	NotFound Kind = iota
	AlreadyExists
	AmbiguousReference
	MissingAlias
	ArityMismatch
	TypeMismatch
	InvalidStar
	InvalidReference
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case AmbiguousReference:
		return "AmbiguousReference"
	case MissingAlias:
		return "MissingAlias"
	case ArityMismatch:
		return "ArityMismatch"
	case TypeMismatch:
		return "TypeMismatch"
	case InvalidStar:
		return "InvalidStar"
	case InvalidReference:
		return "InvalidReference"
	default:
		return "Unknown"
	}
}

// BindError is the single error type the binder raises. The message always
// names the offending identifier, per spec.
type BindError struct {
	Kind    Kind
	Message string
}

func (e *BindError) Error() string {
	return "binder: " + e.Message
}

func newError(kind Kind, format string, args ...interface{}) *BindError {
	return &BindError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsBindError extracts a *BindError from err, if any.
func AsBindError(err error) (*BindError, bool) {
	be, ok := err.(*BindError)
	return be, ok
}
