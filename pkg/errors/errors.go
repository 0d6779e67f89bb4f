package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound           = NewError("NOT_FOUND", "resource not found", http.StatusNotFound)
	ErrValidation         = NewError("VALIDATION_ERROR", "validation failed", http.StatusBadRequest)
	ErrInternal           = NewError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
	ErrServiceUnavailable = NewError("SERVICE_UNAVAILABLE", "service unavailable", http.StatusServiceUnavailable)

	// Pipeline error classes. Config errors abort startup, fetch and publish
	// errors are cycle-scoped, decode and store errors are message-scoped.
	ErrConfig           = NewError("CONFIG_ERROR", "invalid configuration", http.StatusInternalServerError).AsFatal()
	ErrFetch            = NewError("FETCH_ERROR", "rate fetch failed", http.StatusBadGateway).AsRetryable()
	ErrPublish          = NewError("PUBLISH_FAILURE", "message publish failed", http.StatusBadGateway)
	ErrDecode           = NewError("DECODE_ERROR", "malformed message payload", http.StatusBadRequest).AsFatal()
	ErrStoreUnavailable = NewError("STORE_UNAVAILABLE", "document store unavailable", http.StatusServiceUnavailable).AsRetryable()
	ErrStoreRejected    = NewError("STORE_REJECTED", "document rejected by store", http.StatusUnprocessableEntity).AsFatal()
)

// RetryableError is implemented by errors that know whether a retry of the
// same input could succeed.
type RetryableError interface {
	error
	IsRetryable() bool
}

// FatalError is implemented by errors that know they are terminal.
type FatalError interface {
	error
	IsFatal() bool
}

// classification records an explicit retry disposition. The zero value means
// none was set and the answer comes from the cause chain or the error code.
type classification int

const (
	classUnset classification = iota
	classRetryable
	classFatal
)

// Error carries a stable machine code, an HTTP status for the query surface,
// and an optional cause chain. Instances are treated as immutable, the With*
// and As* methods return modified copies so the package sentinels stay clean.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]interface{}
	Cause   error

	class classification
}

func NewError(code, message string, status int) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

func (e *Error) Error() string {
	msg := e.Message
	if detail, ok := e.Details["message"].(string); ok && detail != "" {
		msg = detail
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable resolves the retry disposition in precedence order: an explicit
// AsRetryable or AsFatal marking, then whatever the cause chain reports, then
// a code-based default where only validation and not-found are terminal.
func (e *Error) IsRetryable() bool {
	switch e.class {
	case classRetryable:
		return true
	case classFatal:
		return false
	}

	if e.Cause != nil {
		var retryable RetryableError
		if errors.As(e.Cause, &retryable) {
			return retryable.IsRetryable()
		}
		var fatal FatalError
		if errors.As(e.Cause, &fatal) {
			return !fatal.IsFatal()
		}
	}

	return e.Code != ErrValidation.Code && e.Code != ErrNotFound.Code
}

// IsFatal is the complement of IsRetryable, an Error is never both or neither.
func (e *Error) IsFatal() bool {
	return !e.IsRetryable()
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

// WithDetail copies the detail map before writing so shared sentinels are
// never mutated through a derived error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	err.Details = copyDetails(e.Details)
	err.Details[key] = value
	return &err
}

func (e *Error) WithDetails(details map[string]interface{}) *Error {
	err := *e
	err.Details = details
	return &err
}

func (e *Error) AsRetryable() *Error {
	err := *e
	err.class = classRetryable
	return &err
}

func (e *Error) AsFatal() *Error {
	err := *e
	err.class = classFatal
	return &err
}

func copyDetails(details map[string]interface{}) map[string]interface{} {
	copied := make(map[string]interface{}, len(details)+1)
	for k, v := range details {
		copied[k] = v
	}
	return copied
}

// Wrap attaches err as the cause of appErr, or returns nil when there is
// nothing to wrap.
func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

// IsRetryable reports whether redelivery could succeed for err. Errors that
// carry no classification default to retryable.
func IsRetryable(err error) bool {
	var retryable RetryableError
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	var fatal FatalError
	if errors.As(err, &fatal) {
		return !fatal.IsFatal()
	}
	return true
}

// IsFatal reports whether err is terminal, meaning retrying the same input
// can never succeed.
func IsFatal(err error) bool {
	return !IsRetryable(err)
}

func IsNotFound(err error) bool {
	return IsCode(err, ErrNotFound.Code)
}

func IsValidation(err error) bool {
	return IsCode(err, ErrValidation.Code)
}

// IsCode reports whether err or anything it wraps carries the given code.
func IsCode(err error, code string) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// ErrorResponse is the JSON error body produced by ToErrorResponse, declared
// for API documentation.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"error_code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// ToErrorResponse renders err as the wire error body. Errors outside this
// package surface as an internal error without leaking their text.
func ToErrorResponse(err error) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}

	response := map[string]interface{}{
		"error":      appErr.Message,
		"error_code": appErr.Code,
	}
	if len(appErr.Details) > 0 {
		response["details"] = appErr.Details
	}
	return response
}
