package channel

import (
	"errors"
	"fmt"
)

// DefinitionError reports a malformed channel declaration.
type DefinitionError struct {
	Role    Role
	Rule    int
	Message string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("channel %s: %s", e.Role, e.Message)
}

// ResolveError reports a failure resolving a channel for one row. Rule is
// -1 when the fallback failed.
type ResolveError struct {
	Role Role
	Rule int
	Err  error
}

func (e *ResolveError) Error() string {
	if e.Rule < 0 {
		return fmt.Sprintf("channel %s: %v", e.Role, e.Err)
	}
	return fmt.Sprintf("channel %s rule %d: %v", e.Role, e.Rule, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// UnknownSelectionError reports a rule naming a parameter that is not a
// selection in the current scope.
type UnknownSelectionError struct {
	Param string
}

func (e *UnknownSelectionError) Error() string {
	return fmt.Sprintf("unknown selection parameter %q", e.Param)
}

// IsResolveError reports whether err came from resolving a channel.
func IsResolveError(err error) bool {
	var re *ResolveError
	return errors.As(err, &re)
}
