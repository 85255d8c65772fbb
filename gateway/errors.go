package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/catalog"
	"github.com/jonwraymond/toolgate/resilience"
	"github.com/jonwraymond/toolgate/tokencache"
)

// Kind classifies a failed invocation.
type Kind string

const (
	KindUnauthenticated  Kind = "unauthenticated"
	KindForbidden        Kind = "forbidden"
	KindUnknownTool      Kind = "unknown_tool"
	KindInvalidArguments Kind = "invalid_arguments"
	KindTimeout          Kind = "timeout"
	KindHandlerError     Kind = "handler_error"
	KindTokenAcquisition Kind = "token_acquisition_error"
	KindRateLimited      Kind = "rate_limited"
	KindInternal         Kind = "internal_error"
)

// Error is the error half of a Response.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`

	// Param names the offending argument for KindInvalidArguments.
	Param string `json:"param,omitempty"`

	err error
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.err }

// KindOf returns the Kind of err, or "" when err is nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return classify(err).Kind
}

func newError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), err: cause}
}

// authError maps a failed authentication to an Error. Messages are fixed so
// that no credential detail reaches the caller.
func authError(err error) *Error {
	switch {
	case auth.IsForbidden(err):
		if errors.Is(err, auth.ErrKeyRevoked) {
			return newError(KindForbidden, err, "credential has been revoked")
		}
		return newError(KindForbidden, err, "access denied")
	case errors.Is(err, auth.ErrLookupTimeout), errors.Is(err, context.DeadlineExceeded):
		return newError(KindTimeout, err, "credential validation timed out")
	case errors.Is(err, auth.ErrMissingCredentials):
		return newError(KindUnauthenticated, err, "missing credentials")
	case errors.Is(err, auth.ErrTokenExpired):
		return newError(KindUnauthenticated, err, "credential has expired")
	default:
		return newError(KindUnauthenticated, err, "invalid credentials")
	}
}

// classify maps any invocation failure to an Error.
func classify(err error) *Error {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}
	var argErr *catalog.ArgumentError
	var panicErr *resilience.PanicError
	switch {
	case errors.As(err, &argErr):
		return &Error{Kind: KindInvalidArguments, Message: argErr.Error(), Param: argErr.Param, err: err}
	case errors.Is(err, catalog.ErrUnknownTool):
		return newError(KindUnknownTool, err, "%s", err.Error())
	case errors.Is(err, resilience.ErrRateLimitExceeded):
		return newError(KindRateLimited, err, "rate limit exceeded")
	case errors.Is(err, resilience.ErrBulkheadFull):
		return newError(KindRateLimited, err, "gateway at capacity")
	case errors.Is(err, resilience.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return newError(KindTimeout, err, "tool invocation timed out")
	case errors.Is(err, context.Canceled):
		return newError(KindTimeout, err, "tool invocation canceled")
	case errors.Is(err, tokencache.ErrTokenAcquisition):
		return newError(KindTokenAcquisition, err, "%s", err.Error())
	case errors.As(err, &panicErr):
		return newError(KindHandlerError, err, "handler panicked")
	case auth.IsForbidden(err):
		return newError(KindForbidden, err, "access denied")
	default:
		return newError(KindHandlerError, err, "%s", err.Error())
	}
}
