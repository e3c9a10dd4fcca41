package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/modeseq/internal/trace"
)

// marshalValues converts a signal map to canonical JSON TEXT for storage.
func marshalValues(values map[string]float64) (string, error) {
	if values == nil {
		values = map[string]float64{}
	}
	data, err := trace.MarshalCanonical(values)
	if err != nil {
		return "", fmt.Errorf("marshal values: %w", err)
	}
	return string(data), nil
}

// unmarshalValues parses JSON TEXT back into a signal map.
func unmarshalValues(data string) (map[string]float64, error) {
	values := map[string]float64{}
	if data == "" || data == "{}" {
		return values, nil
	}
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil, fmt.Errorf("unmarshal values: %w", err)
	}
	return values, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
