package param

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes parameter errors.
type ErrorCode string

const (
	// ErrCodeUnknownParam indicates a name that no definition declares.
	ErrCodeUnknownParam ErrorCode = "UNKNOWN_PARAM"

	// ErrCodeInvalidValue indicates a value its binding does not accept.
	ErrCodeInvalidValue ErrorCode = "INVALID_VALUE"

	// ErrCodeNotSelection indicates a selection operation on a value parameter.
	ErrCodeNotSelection ErrorCode = "NOT_SELECTION"

	// ErrCodeInvalidDefinition indicates a malformed or duplicate definition.
	ErrCodeInvalidDefinition ErrorCode = "INVALID_DEFINITION"
)

// Error is returned by Store operations.
type Error struct {
	Code    ErrorCode
	Param   string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: parameter %q", e.Code, e.Param)
	}
	return fmt.Sprintf("%s: parameter %q: %s", e.Code, e.Param, e.Message)
}

func hasCode(err error, code ErrorCode) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// IsUnknownParam reports whether err names an undeclared parameter.
func IsUnknownParam(err error) bool {
	return hasCode(err, ErrCodeUnknownParam)
}

// IsInvalidValue reports whether err is a rejected parameter value.
func IsInvalidValue(err error) bool {
	return hasCode(err, ErrCodeInvalidValue)
}

// IsNotSelection reports whether err is a selection operation applied to a
// value parameter.
func IsNotSelection(err error) bool {
	return hasCode(err, ErrCodeNotSelection)
}

// IsInvalidDefinition reports whether err is a definition error.
func IsInvalidDefinition(err error) bool {
	return hasCode(err, ErrCodeInvalidDefinition)
}

func unknownParam(name string) *Error {
	return &Error{Code: ErrCodeUnknownParam, Param: name}
}

func invalidValue(name, format string, args ...any) *Error {
	return &Error{Code: ErrCodeInvalidValue, Param: name, Message: fmt.Sprintf(format, args...)}
}

func invalidDefinition(name, format string, args ...any) *Error {
	return &Error{Code: ErrCodeInvalidDefinition, Param: name, Message: fmt.Sprintf(format, args...)}
}
