package expressions

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/rendis/wfgraph/pkg/schema"
)

// recordDefaults are the record fields a filter may read even when the
// record leaves them out.
var recordDefaults = map[string]func() any{
	"taskDefName":             func() any { return "" },
	"parentTaskReferenceName": func() any { return "" },
	"iteration":               func() any { return int64(0) },
	"retryCount":              func() any { return int64(0) },
	"scheduledTime":           func() any { return int64(0) },
	"startTime":               func() any { return int64(0) },
	"endTime":                 func() any { return int64(0) },
	"inputData":               func() any { return map[string]any{} },
	"outputData":              func() any { return map[string]any{} },
	"reasonForIncompletion":   func() any { return "" },
	"workerId":                func() any { return "" },
}

// RecordData converts an execution record with every filterable field
// present, zero-valued when unset.
func RecordData(r *schema.TaskResult) (map[string]any, error) {
	data, err := ToData(r)
	if err != nil {
		return nil, err
	}
	for key, zero := range recordDefaults {
		if _, ok := data[key]; !ok {
			data[key] = zero()
		}
	}
	return data, nil
}

// ToData converts a JSON-tagged value (an execution record, a whole
// execution) into the map form the engines evaluate against. Integral
// numbers become int64 so CEL comparisons against int literals hold.
func ToData(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal expression data: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("unmarshal expression data: %w", err)
	}
	return normalizeNumbers(out).(map[string]any), nil
}

func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, inner := range val {
			val[k] = normalizeNumbers(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = normalizeNumbers(inner)
		}
		return val
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return int64(val)
		}
		return val
	default:
		return v
	}
}
