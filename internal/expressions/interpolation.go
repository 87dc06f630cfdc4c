package expressions

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rendis/outpost/pkg/schema"
)

// ResolveTemplate resolves ${{...}} references in a template string against an
// evaluation scope built by BuildScope. Triage rules use this to render tags
// like "pack:${{action.pack}}" or "status:${{status}}".
//
// A reference is a dot-delimited path whose first segment names a scope
// namespace (execution, action, runner, result, output, status). The resolved
// value is embedded inline: strings verbatim, complex values JSON-encoded.
func ResolveTemplate(template string, scope map[string]any) (string, error) {
	if !HasTemplate(template) {
		return template, nil
	}

	var result strings.Builder
	result.Grow(len(template))

	i := 0
	for i < len(template) {
		// Look for ${{ marker.
		idx := strings.Index(template[i:], "${{")
		if idx == -1 {
			result.WriteString(template[i:])
			break
		}

		// Write everything before the marker.
		result.WriteString(template[i : i+idx])
		start := i + idx + 3 // skip "${{".

		// Find the closing }}.
		end := strings.Index(template[start:], "}}")
		if end == -1 {
			return "", schema.NewError(schema.ErrCodeExpression, "unclosed ${{ reference")
		}
		end += start

		ref := strings.TrimSpace(template[start:end])

		// Reject recursive templates: no nested ${{ inside the reference.
		if strings.Contains(ref, "${{") {
			return "", schema.NewError(schema.ErrCodeExpression,
				"nested template not allowed: ${{...}} cannot contain ${{")
		}

		if ref == "" {
			return "", schema.NewError(schema.ErrCodeExpression, "empty template reference: ${{  }}")
		}

		val, err := resolveRef(ref, scope)
		if err != nil {
			return "", err
		}

		// Embed the resolved value into the rendered string.
		result.WriteString(marshalInline(val))

		i = end + 2 // skip "}}".
	}

	return result.String(), nil
}

// resolveRef resolves a single dot path like "action.pack" or "output.exit_code".
func resolveRef(ref string, scope map[string]any) (any, error) {
	parts := strings.SplitN(ref, ".", 2)
	namespace := parts[0]

	root, ok := scope[namespace]
	if !ok {
		available := mapKeys(scope)
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"unknown namespace %q in ${{%s}}; available: %s", namespace, ref, strings.Join(available, ", ")).
			WithDetails(map[string]any{"reference": ref, "available_namespaces": available})
	}

	// Bare namespace reference: ${{status}}, ${{output}}.
	if len(parts) == 1 {
		return root, nil
	}

	return traversePath(root, parts[1], ref)
}

// traversePath navigates into nested maps using a dot-delimited path.
func traversePath(root any, path, ref string) (any, error) {
	segments := strings.Split(path, ".")
	current := root

	for i, seg := range segments {
		if seg == "" {
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"empty segment in path %q at position %d", ref, i).
				WithDetails(map[string]any{"reference": ref})
		}

		switch v := current.(type) {
		case map[string]any:
			val, ok := v[seg]
			if !ok {
				availableKeys := mapKeys(v)
				return nil, schema.NewErrorf(schema.ErrCodeExpression,
					"field %q not found in %q; available: [%s]", seg, ref, strings.Join(availableKeys, ", ")).
					WithDetails(map[string]any{"reference": ref, "available_fields": availableKeys})
			}
			current = val
		default:
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"cannot traverse into non-object at %q in %q (type: %T)", seg, ref, current).
				WithDetails(map[string]any{"reference": ref})
		}
	}

	return current, nil
}

// marshalInline converts a resolved value into its inline representation.
// Strings are embedded without quotes; complex types are JSON-encoded.
func marshalInline(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return "null"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case json.RawMessage:
		return string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// mapKeys returns sorted keys from a map[string]any.
func mapKeys(m map[string]any) []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Simple insertion sort for small slices.
	for i := 1; i < len(keys); i++ {
		key := keys[i]
		j := i - 1
		for j >= 0 && keys[j] > key {
			keys[j+1] = keys[j]
			j--
		}
		keys[j+1] = key
	}
	return keys
}

// HasTemplate checks if a string contains any ${{...}} references.
func HasTemplate(s string) bool {
	return strings.Contains(s, "${{")
}
