package catalog

import "github.com/rendis/outpost/pkg/schema"

// BuiltinRunners returns the runner types every catalog starts with.
// Each runner declares the key under which action output lives in the
// result envelope, plus the envelope schema the runner guarantees.
func BuiltinRunners() []*schema.RunnerSpec {
	return []*schema.RunnerSpec{
		{
			Name:        "local-shell-cmd",
			Description: "Runs a command on the local host.",
			OutputKey:   "stdout",
			OutputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"stdout":      map[string]any{"type": "string"},
					"stderr":      map[string]any{"type": "string"},
					"return_code": map[string]any{"type": "integer"},
					"succeeded":   map[string]any{"type": "boolean"},
					"failed":      map[string]any{"type": "boolean"},
				},
			},
		},
		{
			Name:        "local-shell-script",
			Description: "Runs a script on the local host.",
			OutputKey:   "stdout",
			OutputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"stdout":      map[string]any{"type": "string"},
					"stderr":      map[string]any{"type": "string"},
					"return_code": map[string]any{"type": "integer"},
					"succeeded":   map[string]any{"type": "boolean"},
					"failed":      map[string]any{"type": "boolean"},
				},
			},
		},
		{
			Name:        "python-script",
			Description: "Runs a Python action and captures its returned value.",
			OutputKey:   "result",
			OutputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"result":    map[string]any{},
					"stdout":    map[string]any{"type": "string"},
					"stderr":    map[string]any{"type": "string"},
					"exit_code": map[string]any{"type": "integer"},
				},
				"additionalProperties": false,
			},
		},
		{
			Name:        "http-request",
			Description: "Performs an HTTP request and captures the response.",
			OutputKey:   "body",
			OutputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"status_code": map[string]any{"type": "integer"},
					"body":        map[string]any{},
					"headers":     map[string]any{"type": "object"},
				},
			},
		},
		{
			Name:        "noop",
			Description: "Produces a bare output envelope. Used for tests and wiring checks.",
			OutputKey:   "output",
		},
	}
}
