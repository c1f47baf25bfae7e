package store

import (
	"fmt"

	"github.com/roach88/chartflow/internal/ir"
)

// marshalPayload converts an event payload to canonical JSON TEXT.
// A nil payload is stored as null.
func marshalPayload(v ir.Value) (string, error) {
	if v == nil {
		v = ir.Null{}
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// unmarshalPayload parses canonical JSON TEXT back into a Value.
// Numbers go through json.Number so integers keep their digits.
func unmarshalPayload(data string) (ir.Value, error) {
	if data == "" {
		return ir.Null{}, nil
	}
	v, err := ir.UnmarshalValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return v, nil
}
