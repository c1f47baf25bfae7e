package transform

import (
	"errors"
	"fmt"
	"strings"
)

// SchemaError reports a stage that references a field absent from its
// input schema.
type SchemaError struct {
	Stage     string
	Field     string
	Available []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: field %q not in input schema [%s]", e.Stage, e.Field, strings.Join(e.Available, ", "))
}

// EmptyAggregateError reports an operation that needs at least one valid
// value (mean, min, max) applied to a group without any.
type EmptyAggregateError struct {
	Op    Op
	Field string
	Group string
}

func (e *EmptyAggregateError) Error() string {
	if e.Group != "" {
		return fmt.Sprintf("%s(%s) over zero valid values in group %s", e.Op, e.Field, e.Group)
	}
	return fmt.Sprintf("%s(%s) over zero valid values", e.Op, e.Field)
}

// LookupAmbiguityError reports duplicate keys in a lookup's secondary table.
// It is not fatal: the first matching secondary row wins, and the error is
// surfaced as a pipeline warning.
type LookupAmbiguityError struct {
	Key   string
	Value string
	Count int
}

func (e *LookupAmbiguityError) Error() string {
	return fmt.Sprintf("lookup key %s=%q appears %d times in secondary table; first match used", e.Key, e.Value, e.Count)
}

// UnboundSourceError reports a lookup whose named dataset is not loaded.
type UnboundSourceError struct {
	Source string
}

func (e *UnboundSourceError) Error() string {
	return fmt.Sprintf("lookup source %q is not loaded", e.Source)
}

// DefinitionError reports an invalid stage definition, detected when the
// pipeline is constructed.
type DefinitionError struct {
	Index   int
	Kind    string
	Message string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("stage %d (%s): %s", e.Index, e.Kind, e.Message)
}

// StageError wraps a failure with the position and kind of the stage that
// raised it.
type StageError struct {
	Index int
	Kind  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s): %v", e.Index, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// IsSchemaError returns true if err is or wraps a *SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// IsEmptyAggregateError returns true if err is or wraps an *EmptyAggregateError.
func IsEmptyAggregateError(err error) bool {
	var ee *EmptyAggregateError
	return errors.As(err, &ee)
}

// IsDefinitionError returns true if err is or wraps a *DefinitionError.
func IsDefinitionError(err error) bool {
	var de *DefinitionError
	return errors.As(err, &de)
}

// IsUnboundSourceError returns true if err is or wraps an *UnboundSourceError.
func IsUnboundSourceError(err error) bool {
	var ue *UnboundSourceError
	return errors.As(err, &ue)
}
