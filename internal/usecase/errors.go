package usecase

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
)

type ErrorCode string

const (
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorRateLimited  ErrorCode = "RATE_LIMITED"
	ErrorUpstream     ErrorCode = "UPSTREAM_ERROR"
	ErrorConflict     ErrorCode = "CONFLICT"
	ErrorInternal     ErrorCode = "INTERNAL_ERROR"
)

// Error is returned by Handle only for requests that cannot start a turn.
// Failures inside a turn degrade to an apology reply and are logged with
// their code instead.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

// classify names the failure class of an upstream or store error for logs.
func classify(err error) ErrorCode {
	var ue *Error
	switch {
	case errors.As(err, &ue):
		return ue.Code
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrAlreadyCommitted):
		return ErrorConflict
	}
	if status, ok := upstreamStatusCode(err); ok {
		if status == http.StatusTooManyRequests {
			return ErrorRateLimited
		}
		return ErrorUpstream
	}
	return ErrorInternal
}
