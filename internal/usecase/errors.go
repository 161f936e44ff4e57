package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrorConfiguration ErrorCode = "CONFIGURATION_ERROR"
	ErrorUpstream      ErrorCode = "UPSTREAM_ERROR"
	ErrorInternal      ErrorCode = "INTERNAL_ERROR"
)

const (
	MessageConfiguration = "API key is not configured on the server."
	MessageInternal      = "An internal server error occurred."
	upstreamPrefix       = "Gemini API error: "
)

// Error is the failure type returned by GenerateService. Status is the HTTP
// status the caller should answer with; Body is the raw upstream text for
// ErrorUpstream.
type Error struct {
	Code   ErrorCode
	Reason string
	Status int
	Body   string
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

// Message is the text placed in the error field of the response body.
func (e *Error) Message() string {
	switch e.Code {
	case ErrorConfiguration:
		return MessageConfiguration
	case ErrorUpstream:
		return upstreamPrefix + e.Body
	default:
		return MessageInternal
	}
}

// AsError converts any error into an *Error. Unknown errors become ErrorInternal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ue *Error
	if errors.As(err, &ue) && ue != nil {
		return ue
	}
	return newError(ErrorInternal, "unexpected_error", err)
}

// NewConfigurationError reports a missing upstream credential.
func NewConfigurationError() *Error {
	return newError(ErrorConfiguration, "missing_api_key", nil)
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Status: http.StatusInternalServerError, Err: err}
}

func newUpstreamError(status int, body string, err error) *Error {
	return &Error{Code: ErrorUpstream, Reason: "gemini_error", Status: status, Body: body, Err: err}
}
