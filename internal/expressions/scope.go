package expressions

import (
	"encoding/json"
	"time"

	"github.com/rendis/outpost/pkg/schema"
)

// BuildScope constructs the evaluation data map exposed to expression engines
// and tag templates. All values are plain JSON types (map[string]any, []any,
// string, float64, bool, nil) so the same scope works across CEL, expr, and jq.
//
// Namespaces:
//   - execution: id, action_ref, status, started_at, ended_at
//   - action:    ref, pack, name, runner_type
//   - runner:    name, output_key
//   - status:    the execution status as a string
//   - result:    the full result envelope (deep-copied)
//   - output:    the value at the runner's output key, nil when absent
//
// Mutable values are deep-copied so expressions can never alter the stored
// execution result.
func BuildScope(execution *schema.ActionExecution, result any) map[string]any {
	scope := map[string]any{
		"execution": map[string]any{},
		"action":    map[string]any{},
		"runner":    map[string]any{},
		"status":    "",
		"result":    nil,
		"output":    nil,
	}
	if execution == nil {
		return scope
	}

	scope["execution"] = map[string]any{
		"id":         execution.ID,
		"action_ref": execution.ActionRef,
		"status":     string(execution.Status),
		"started_at": formatTime(execution.StartedAt),
		"ended_at":   formatTime(execution.EndedAt),
	}
	scope["action"] = map[string]any{
		"ref":         execution.Action.Ref,
		"pack":        execution.Action.Pack,
		"name":        execution.Action.Name,
		"runner_type": execution.Action.RunnerType,
	}
	scope["runner"] = map[string]any{
		"name":       execution.Runner.Name,
		"output_key": execution.Runner.OutputKey,
	}
	scope["status"] = string(execution.Status)
	scope["result"] = deepCopyAny(result)

	if envelope, ok := result.(map[string]any); ok && execution.Runner.OutputKey != "" {
		if output, present := envelope[execution.Runner.OutputKey]; present {
			scope["output"] = deepCopyAny(output)
		}
	}

	return scope
}

// formatTime renders a timestamp as RFC 3339, or nil when unset.
func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// --- Deep copy utilities ---

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = deepCopyAny(v)
	}
	return cp
}

// deepCopyAny recursively deep-copies a value.
// Handles maps, slices, and primitives (which are inherently immutable).
func deepCopyAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyAny(item)
		}
		return cp
	case json.RawMessage:
		if val == nil {
			return nil
		}
		cp := make(json.RawMessage, len(val))
		copy(cp, val)
		return cp
	default:
		// Primitives (string, float64, bool, nil, int, int64) are value types.
		return v
	}
}
