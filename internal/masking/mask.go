// Package masking applies schema-guided secret redaction to execution
// results. Only values positively identified as secret by the action's
// output schema are replaced; anything that cannot be safely interpreted
// leaves the result untouched. Masking never mutates its input and never
// fails: the fallback for every uncertain condition is a no-op.
package masking

import (
	"github.com/rendis/outpost/pkg/schema"
)

// MaskSecretOutput returns the execution result with secret-marked output
// replaced by the mask sentinel, guided by the execution's action output
// schema and the runner's output key. No-op paths return the caller's
// value unchanged; masking paths return a new structure, sharing only
// untouched subtrees with the input.
func MaskSecretOutput(execution *schema.ActionExecution, result any) any {
	if execution == nil {
		return result
	}
	return MaskWithSchema(execution.Action.OutputSchema, execution.Runner.OutputKey, result)
}

// MaskWithSchema masks result using an explicit output schema and output
// key, without a full execution record.
func MaskWithSchema(outputSchema map[string]any, outputKey string, result any) any {
	if result == nil || outputKey == "" {
		return result
	}

	envelope, ok := result.(map[string]any)
	if !ok || len(envelope) == 0 {
		return result
	}

	output, present := envelope[outputKey]
	if !present {
		return result
	}

	node, wellFormed := schema.Classify(outputSchema)
	if !wellFormed {
		return result
	}

	// A secret root masks the entire output value, whatever its shape.
	if node.Secret {
		return replaceOutput(envelope, outputKey, schema.MaskSentinel)
	}

	if !node.Walkable() {
		return result
	}

	outputMap, ok := output.(map[string]any)
	if !ok {
		// Schema/value shape mismatch: deliberately left untouched.
		return result
	}

	masked, changed := maskFields(node, outputMap)
	if !changed {
		return result
	}
	return replaceOutput(envelope, outputKey, masked)
}

// maskFields walks schema properties and the output mapping in parallel.
// Returns the rebuilt mapping and whether anything was masked; when nothing
// was, callers keep the original reference.
func maskFields(node *schema.OutputSchema, value map[string]any) (map[string]any, bool) {
	out := make(map[string]any, len(value))
	changed := false

	for key, val := range value {
		prop, declared := node.Properties[key]
		if !declared {
			out[key] = val
			continue
		}

		switch {
		case prop.Secret:
			out[key] = schema.MaskSentinel
			changed = true
		case prop.Walkable():
			nested, ok := val.(map[string]any)
			if !ok {
				out[key] = val
				continue
			}
			maskedNested, nestedChanged := maskFields(prop, nested)
			if nestedChanged {
				out[key] = maskedNested
				changed = true
			} else {
				out[key] = val
			}
		default:
			out[key] = val
		}
	}

	return out, changed
}

// replaceOutput rebuilds the result envelope with a new value at the output
// key, leaving the caller's mapping untouched.
func replaceOutput(envelope map[string]any, outputKey string, value any) map[string]any {
	out := make(map[string]any, len(envelope))
	for k, v := range envelope {
		out[k] = v
	}
	out[outputKey] = value
	return out
}
