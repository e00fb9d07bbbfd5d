package runbook

import "fmt"

// Kind classifies the failure modes the core can raise. Transport layers
// map Kind to a status code; the core itself never knows about HTTP.
type Kind int

const (
	// KindUnknown is the zero value and should never be returned.
	KindUnknown Kind = iota
	// KindNotFound means the filename does not resolve to a regular file.
	KindNotFound
	// KindBadFilename means the filename contains separators or traversal.
	KindBadFilename
	// KindValidationFailed means the validator reported one or more errors.
	KindValidationFailed
	// KindAuthorizationDenied means required claims were not satisfied.
	KindAuthorizationDenied
	// KindRecursionDetected means a cycle was found on the inbound stack.
	KindRecursionDetected
	// KindRecursionDepthExceeded means the inbound stack is already too long.
	KindRecursionDepthExceeded
	// KindInvalidEnvVarName means a caller-supplied env var name was rejected.
	KindInvalidEnvVarName
	// KindScriptTimeout means the child process ran past its timeout.
	KindScriptTimeout
	// KindInternal means an unexpected filesystem or spawn failure occurred.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindBadFilename:
		return "BadFilename"
	case KindValidationFailed:
		return "ValidationFailed"
	case KindAuthorizationDenied:
		return "AuthorizationDenied"
	case KindRecursionDetected:
		return "RecursionDetected"
	case KindRecursionDepthExceeded:
		return "RecursionDepthExceeded"
	case KindInvalidEnvVarName:
		return "InvalidEnvVarName"
	case KindScriptTimeout:
		return "ScriptTimeout"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error is the error type raised by every runbook package operation.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError constructs an *Error with the given kind and message.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError constructs an *Error wrapping an underlying cause.
func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// AsError reports whether err is an *Error and returns it.
func AsError(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}

// KindOf returns the Kind carried by err, or KindUnknown if err is not
// a *Error.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return KindUnknown
}
