// Package apperrors defines the error taxonomy shared by handlers and
// services. Every error carries a machine code for clients and a human
// message safe to show end users; gateway descriptions stay in the cause
// chain and are only logged.
package apperrors

import (
	"errors"
	"fmt"
)

// Code is the machine-readable error class
type Code string

const (
	CodeValidation         Code = "validation_error"
	CodeConfiguration      Code = "configuration_error"
	CodeUpstreamGateway    Code = "upstream_gateway_error"
	CodeProtocol           Code = "protocol_violation"
	CodeNotFound           Code = "not_found"
	CodeIdentityResolution Code = "identity_resolution_error"
	CodePersistence        Code = "persistence_error"
	CodeInternal           Code = "internal_error"
)

// Error is the application error type. Message is user-safe; Err holds the
// underlying cause for logs.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on code so sentinel comparisons work across wrapping
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

func newError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// Validation reports malformed or missing input; not retryable
func Validation(message string) *Error {
	return newError(CodeValidation, message, nil)
}

// Configuration reports missing credentials or settings
func Configuration(message string) *Error {
	return newError(CodeConfiguration, message, nil)
}

// UpstreamGateway reports a non-success gateway response. The gateway's own
// description goes into the cause, never the user-facing message.
func UpstreamGateway(message string, cause error) *Error {
	return newError(CodeUpstreamGateway, message, cause)
}

// Protocol reports a gateway response that violates the documented contract
func Protocol(message string, cause error) *Error {
	return newError(CodeProtocol, message, cause)
}

// NotFound reports an unknown session, webhook or plan
func NotFound(message string) *Error {
	return newError(CodeNotFound, message, nil)
}

// IdentityResolution reports a failed user lookup; held, non-fatal
func IdentityResolution(message string, cause error) *Error {
	return newError(CodeIdentityResolution, message, cause)
}

// Persistence reports a write that failed after exhausting bounded retries
func Persistence(message string, cause error) *Error {
	return newError(CodePersistence, message, cause)
}

// Internal reports an unexpected failure
func Internal(message string, cause error) *Error {
	return newError(CodeInternal, message, cause)
}

// CodeOf extracts the taxonomy code from any error, defaulting to internal
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// MessageOf extracts the user-safe message from any error
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Something went wrong. Please try again later."
}
