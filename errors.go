package etlkit

import (
	"errors"
	"fmt"
)

// Error codes
const (
	ErrCodeConfig         = "CONFIG_ERROR"
	ErrCodeDuplicateName  = "DUPLICATE_NAME"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeStypeViolation = "STYPE_VIOLATION"
	ErrCodeEmptyData      = "EMPTY_DATA"
	ErrCodeNotSupported   = "NOT_SUPPORTED"
)

// Sentinel errors for use with errors.Is. Any *Error with the same code matches.
var (
	ErrConfig         = &Error{Code: ErrCodeConfig}
	ErrDuplicateName  = &Error{Code: ErrCodeDuplicateName}
	ErrNotFound       = &Error{Code: ErrCodeNotFound}
	ErrConflict       = &Error{Code: ErrCodeConflict}
	ErrStypeViolation = &Error{Code: ErrCodeStypeViolation}
	ErrEmptyData      = &Error{Code: ErrCodeEmptyData}
	ErrNotSupported   = &Error{Code: ErrCodeNotSupported}
)

// Error represents a failure of a pipeline or store operation
type Error struct {
	Code    string
	Message string
	Store   string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Store != "" {
		msg = fmt.Sprintf("[%s] %s (store: %s)", e.Code, e.Message, e.Store)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new error
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewStoreError creates a new error with store context
func NewStoreError(code, store, message string) *Error {
	return &Error{Code: code, Message: message, Store: store}
}

// Errorf creates a new error with a formatted message
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStore sets the store name on the error
func (e *Error) WithStore(store string) *Error {
	e.Store = store
	return e
}

// Wrap attaches an underlying cause to the error
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// Code returns the error code of err, or "" when err is not an *Error
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsConfigError checks if an error is a configuration error
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfig)
}

// IsDuplicateNameError checks if an error is a duplicate store name error
func IsDuplicateNameError(err error) bool {
	return errors.Is(err, ErrDuplicateName)
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsStypeViolationError checks if an error is a store type violation
func IsStypeViolationError(err error) bool {
	return errors.Is(err, ErrStypeViolation)
}

// IsEmptyDataError checks if an error is an empty data error
func IsEmptyDataError(err error) bool {
	return errors.Is(err, ErrEmptyData)
}

// IsNotSupportedError checks if an error is a not supported error
func IsNotSupportedError(err error) bool {
	return errors.Is(err, ErrNotSupported)
}
