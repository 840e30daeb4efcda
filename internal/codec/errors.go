package codec

import (
	"errors"
	"fmt"
)

// Kind classifies codec failures.
type Kind uint8

const (
	KindInternal Kind = iota
	KindMalformedFrame
	KindUnsupportedMethod
	KindSizeLimit
	KindMissingContext
	KindInvalidResponse
)

func (k Kind) String() string {
	switch k {
	case KindMalformedFrame:
		return "malformed_frame"
	case KindUnsupportedMethod:
		return "unsupported_method"
	case KindSizeLimit:
		return "size_limit"
	case KindMissingContext:
		return "missing_context"
	case KindInvalidResponse:
		return "invalid_response"
	default:
		return "internal"
	}
}

// Numeric codes carried by request-line failures.
const (
	CodeInvalidRequestLine = 4001
	CodeUnsupportedMethod  = 4002
	CodeRequestTooLong     = 4003
	CodeMissingCRLF        = 4004
)

// Error is a codec failure tagged with its kind, a numeric code and the
// HTTP status used when it is reported on the wire.
type Error struct {
	Kind   Kind
	Code   int
	Status int
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the Err* values below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrInternal          = &Error{Kind: KindInternal, Msg: "internal error"}
	ErrMalformedFrame    = &Error{Kind: KindMalformedFrame, Msg: "malformed frame"}
	ErrUnsupportedMethod = &Error{Kind: KindUnsupportedMethod, Msg: "unsupported method"}
	ErrSizeLimit         = &Error{Kind: KindSizeLimit, Msg: "size limit exceeded"}
	ErrMissingContext    = &Error{Kind: KindMissingContext, Msg: "missing context"}
	ErrInvalidResponse   = &Error{Kind: KindInvalidResponse, Msg: "invalid response"}
)

func newError(kind Kind, code, status int, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Status: status, Msg: fmt.Sprintf(format, args...)}
}

func malformed(code int, format string, args ...any) *Error {
	return newError(KindMalformedFrame, code, 400, format, args...)
}

func tooLarge(status int, format string, args ...any) *Error {
	return newError(KindSizeLimit, status, status, format, args...)
}

func missingContext(msg string) *Error {
	return newError(KindMissingContext, 500, 500, "%s", msg)
}

func invalidResponse(format string, args ...any) *Error {
	return newError(KindInvalidResponse, 500, 500, format, args...)
}

// asError returns err as an *Error, wrapping anything foreign as internal.
func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Code: 500, Status: 500, Msg: "internal error", Err: err}
}

// StatusOf returns the HTTP status that reports err. Errors that did not come
// from the codec map to 500.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	return 500
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
