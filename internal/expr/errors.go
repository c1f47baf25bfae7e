package expr

import (
	"errors"
	"fmt"
)

// ParseError reports a malformed expression.
type ParseError struct {
	Src     string
	Pos     int // byte offset into Src
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q at offset %d: %s", e.Src, e.Pos, e.Message)
}

// EvalErrorCode categorizes evaluation failures.
type EvalErrorCode string

const (
	// ErrCodeMissingField indicates a referenced field is absent from the row.
	ErrCodeMissingField EvalErrorCode = "MISSING_FIELD"

	// ErrCodeUnknownParam indicates a parameter reference that the scope
	// cannot resolve.
	ErrCodeUnknownParam EvalErrorCode = "UNKNOWN_PARAM"

	// ErrCodeBadArgument indicates a function received the wrong number or
	// kind of arguments.
	ErrCodeBadArgument EvalErrorCode = "BAD_ARGUMENT"

	// ErrCodeBadAccess indicates a member or index access on null.
	ErrCodeBadAccess EvalErrorCode = "BAD_ACCESS"
)

// EvalError reports an expression evaluation failure against one row.
type EvalError struct {
	Code    EvalErrorCode
	Expr    string
	Message string

	// Field is set for ErrCodeMissingField, Param for ErrCodeUnknownParam.
	Field string
	Param string
}

func (e *EvalError) Error() string {
	if e.Expr != "" {
		return fmt.Sprintf("%s: %s (expr=%q)", e.Code, e.Message, e.Expr)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsEvalError reports whether err is or wraps an *EvalError.
func IsEvalError(err error) bool {
	var ee *EvalError
	return errors.As(err, &ee)
}

// IsMissingField reports whether err is an EvalError for an absent field.
func IsMissingField(err error) bool {
	var ee *EvalError
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeMissingField
	}
	return false
}

// IsParseError reports whether err is or wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

func missingField(name string) *EvalError {
	return &EvalError{
		Code:    ErrCodeMissingField,
		Message: fmt.Sprintf("field %q is absent from row", name),
		Field:   name,
	}
}

func unknownParam(name string) *EvalError {
	return &EvalError{
		Code:    ErrCodeUnknownParam,
		Message: fmt.Sprintf("unknown parameter %q", name),
		Param:   name,
	}
}

func badArgument(fn, format string, args ...any) *EvalError {
	return &EvalError{
		Code:    ErrCodeBadArgument,
		Message: fn + ": " + fmt.Sprintf(format, args...),
	}
}
