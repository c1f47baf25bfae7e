package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while a chart handles events.
//
// Layer failures are not RuntimeErrors: they become diagnostics on the
// scene. RuntimeErrors reject a whole event or a replay.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Chart identifies the affected chart.
	Chart string

	// Seq is the event sequence number, when the error belongs to one.
	Seq int64

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeStopped indicates an event was dispatched to a stopped chart.
	ErrCodeStopped RuntimeErrorCode = "CHART_STOPPED"

	// ErrCodeUnknownDataset indicates a load for a dataset no layer reads.
	ErrCodeUnknownDataset RuntimeErrorCode = "UNKNOWN_DATASET"

	// ErrCodeInvalidEvent indicates a malformed event.
	ErrCodeInvalidEvent RuntimeErrorCode = "INVALID_EVENT"

	// ErrCodeReplayMismatch indicates a replayed pass produced a different
	// scene than the one recorded.
	ErrCodeReplayMismatch RuntimeErrorCode = "REPLAY_MISMATCH"

	// ErrCodeInvalidDefinition indicates a chart definition that cannot be
	// instantiated.
	ErrCodeInvalidDefinition RuntimeErrorCode = "INVALID_DEFINITION"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Chart != "" && e.Seq > 0 {
		return fmt.Sprintf("%s: %s (chart=%s, seq=%d)", e.Code, e.Message, e.Chart, e.Seq)
	}
	if e.Chart != "" {
		return fmt.Sprintf("%s: %s (chart=%s)", e.Code, e.Message, e.Chart)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsStopped returns true if the error reports a stopped chart.
func IsStopped(err error) bool {
	return hasCode(err, ErrCodeStopped)
}

// IsReplayMismatch returns true if the error is a replay determinism
// failure.
func IsReplayMismatch(err error) bool {
	return hasCode(err, ErrCodeReplayMismatch)
}

// IsUnknownDataset returns true if the error reports a load nobody reads.
func IsUnknownDataset(err error) bool {
	return hasCode(err, ErrCodeUnknownDataset)
}

func stoppedError(chart string) *RuntimeError {
	return &RuntimeError{Code: ErrCodeStopped, Message: "chart is stopped", Chart: chart}
}

func unknownDatasetError(chart, name string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownDataset,
		Message: fmt.Sprintf("no layer reads dataset %q", name),
		Chart:   chart,
		Details: map[string]string{"dataset": name},
	}
}

func invalidEventError(chart string, ev Event, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidEvent,
		Message: fmt.Sprintf(format, args...),
		Chart:   chart,
		Details: map[string]string{"kind": string(ev.Kind), "name": ev.Name},
	}
}
