package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxRows bounds the rows a single layer may produce. Zero disables
// the limit.
const DefaultMaxRows = 0

// RowBudget caps the output of each layer pass.
//
// Pipelines can only grow a table through impute and lookup; a runaway
// impute sequence over a large key range is the case this guards against.
// Exceeding the budget fails the layer, not the chart.
type RowBudget struct {
	maxRows int
}

// NewRowBudget creates a budget with the given per-layer limit. A limit
// of zero or less is unlimited.
func NewRowBudget(maxRows int) RowBudget {
	return RowBudget{maxRows: maxRows}
}

// Check validates a layer's row count against the limit.
func (b RowBudget) Check(layer string, rows int) error {
	if b.maxRows > 0 && rows > b.maxRows {
		return &RowsExceededError{Layer: layer, Rows: rows, Limit: b.maxRows}
	}
	return nil
}

// MaxRows returns the limit, zero when unlimited.
func (b RowBudget) MaxRows() int {
	if b.maxRows < 0 {
		return 0
	}
	return b.maxRows
}

// RowsExceededError is returned when a layer produces more rows than its
// budget allows.
type RowsExceededError struct {
	Layer string
	Rows  int
	Limit int
}

// Error implements the error interface.
func (e *RowsExceededError) Error() string {
	return fmt.Sprintf("layer %s exceeded row budget: %d rows > %d limit", e.Layer, e.Rows, e.Limit)
}

// IsRowsExceededError returns true if the error is a RowsExceededError.
func IsRowsExceededError(err error) bool {
	var re *RowsExceededError
	return errors.As(err, &re)
}
