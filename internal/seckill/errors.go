// Package seckill holds the admission pipeline and the stock reservation
// engine: captcha and one-time path tokens, the local sold-out flags and
// the atomic reserve-then-enqueue operation.
package seckill

import (
	"errors"
	"net/http"
)

// Code is a numeric domain result code returned to clients.
type Code int

const (
	CodeBusy             Code = 500
	CodeActivityNotFound Code = 2001
	CodeNotStarted       Code = 3001
	CodeEnded            Code = 3002
	CodeRepeat           Code = 3003
	CodeSoldOut          Code = 3004
	CodeRateLimited      Code = 3005
	CodePathInvalid      Code = 3006
	CodeCaptcha          Code = 3007
	CodeQueuing          Code = 3008
	CodeOrderNotFound    Code = 4001
	CodeOrderNotUnpaid   Code = 4002
)

var codeText = map[Code]string{
	CodeBusy:             "busy, please try again",
	CodeActivityNotFound: "activity not found",
	CodeNotStarted:       "flash sale has not started",
	CodeEnded:            "flash sale has ended",
	CodeRepeat:           "repeat purchase is not allowed",
	CodeSoldOut:          "sold out",
	CodeRateLimited:      "too many requests, please slow down",
	CodePathInvalid:      "invalid purchase path",
	CodeCaptcha:          "captcha error",
	CodeQueuing:          "queuing, please wait",
	CodeOrderNotFound:    "order not found",
	CodeOrderNotUnpaid:   "order is not awaiting payment",
}

// Message returns the client-facing text of c.
func (c Code) Message() string {
	if m, ok := codeText[c]; ok {
		return m
	}
	return "unknown error"
}

// HTTPStatus maps c to the status code used by the HTTP layer.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeActivityNotFound, CodeOrderNotFound:
		return http.StatusNotFound
	case CodeNotStarted, CodeEnded:
		return http.StatusForbidden
	case CodeRepeat, CodeSoldOut, CodeOrderNotUnpaid:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodePathInvalid, CodeCaptcha:
		return http.StatusBadRequest
	case CodeQueuing:
		return http.StatusAccepted
	}
	return http.StatusServiceUnavailable
}

// Error is a domain rejection.  Err optionally carries the infrastructure
// cause of a CodeBusy rejection; it is logged, never shown to clients.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code.Message() + ": " + e.Err.Error()
	}
	return e.Code.Message()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Rejections.
var (
	ErrActivityNotFound = &Error{Code: CodeActivityNotFound}
	ErrNotStarted       = &Error{Code: CodeNotStarted}
	ErrEnded            = &Error{Code: CodeEnded}
	ErrRepeat           = &Error{Code: CodeRepeat}
	ErrSoldOut          = &Error{Code: CodeSoldOut}
	ErrRateLimited      = &Error{Code: CodeRateLimited}
	ErrPathInvalid      = &Error{Code: CodePathInvalid}
	ErrCaptcha          = &Error{Code: CodeCaptcha}
	ErrOrderNotFound    = &Error{Code: CodeOrderNotFound}
	ErrOrderNotUnpaid   = &Error{Code: CodeOrderNotUnpaid}
	ErrBusy             = &Error{Code: CodeBusy}
)

// Busy wraps a transient infrastructure failure.
func Busy(cause error) error { return &Error{Code: CodeBusy, Err: cause} }

// CodeOf extracts the domain code from err.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}
