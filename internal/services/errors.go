package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies service errors so handlers can pick a status code
type ErrorKind string

const (
	KindValidation ErrorKind = "validation_error"
	KindBusiness   ErrorKind = "business_rule_violation"
	KindNotFound   ErrorKind = "not_found"
	KindForbidden  ErrorKind = "forbidden"
	KindConflict   ErrorKind = "conflict"
	KindGateway    ErrorKind = "payment_gateway_error"
	KindInternal   ErrorKind = "internal_error"
)

// AppError is an error that is safe to show to API clients
type AppError struct {
	Kind    ErrorKind
	Message string
	Details map[string]interface{}
	Err     error // underlying cause, never sent to clients
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail attaches a detail field to the error
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

func newAppError(kind ErrorKind, format string, args ...interface{}) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ValidationError builds a 400 error for malformed input
func ValidationError(format string, args ...interface{}) *AppError {
	return newAppError(KindValidation, format, args...)
}

// BusinessError builds a 400 error for a rule violation on well-formed input
func BusinessError(format string, args ...interface{}) *AppError {
	return newAppError(KindBusiness, format, args...)
}

// NotFoundError builds a 404 error
func NotFoundError(format string, args ...interface{}) *AppError {
	return newAppError(KindNotFound, format, args...)
}

// ForbiddenError builds a 403 error
func ForbiddenError(format string, args ...interface{}) *AppError {
	return newAppError(KindForbidden, format, args...)
}

// ConflictError builds a 409 error
func ConflictError(format string, args ...interface{}) *AppError {
	return newAppError(KindConflict, format, args...)
}

// GatewayError wraps a payment provider failure
func GatewayError(err error, format string, args ...interface{}) *AppError {
	e := newAppError(KindGateway, format, args...)
	e.Err = err
	return e
}

// AsAppError extracts an *AppError from err
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
