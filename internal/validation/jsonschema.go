package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/outpost/pkg/schema"
)

// Checker validates result documents against output schemas using JSON
// Schema Draft 2020-12. Compiled schemas are cached by their canonical JSON
// form, so repeated checks against the same action or runner contract skip
// recompilation. Safe for concurrent use.
type Checker struct {
	// mu guards the cache for dynamic schema compilation.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewChecker creates an empty Checker.
func NewChecker() *Checker {
	return &Checker{cache: make(map[string]*jsonschema.Schema)}
}

// Check validates instance against rawSchema. Custom annotation keywords in
// the schema (such as the secret marker) are tolerated and ignored by the
// engine.
func (c *Checker) Check(rawSchema map[string]any, instance any) (*Violation, error) {
	if len(rawSchema) == 0 {
		return nil, nil
	}

	compiled, err := c.getOrCompile(rawSchema)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "unusable output schema").WithCause(err)
	}

	// Convert the instance to a JSON-compatible value (json.Number for
	// numbers) as the jsonschema library requires.
	doc, err := toJSONValue(instance)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "failed to serialize result").WithCause(err)
	}

	verr := compiled.Validate(doc)
	if verr == nil {
		return nil, nil
	}

	var ve *jsonschema.ValidationError
	if errors.As(verr, &ve) {
		return &Violation{Messages: collectViolations(ve), Schema: rawSchema, Instance: instance}, nil
	}
	return &Violation{Messages: []string{verr.Error()}, Schema: rawSchema, Instance: instance}, nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (c *Checker) getOrCompile(rawSchema map[string]any) (*jsonschema.Schema, error) {
	keyBytes, err := json.Marshal(rawSchema)
	if err != nil {
		return nil, fmt.Errorf("canonicalize schema: %w", err)
	}
	key := string(keyBytes)

	c.mu.RLock()
	if cached, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := c.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	// Each dynamic schema gets a unique URL to avoid collisions in the compiler.
	url := fmt.Sprintf("outpost://output-schema/%d", len(c.cache))

	// Use a fresh compiler per schema to avoid resource collision.
	comp := newOutputCompiler()
	if err := comp.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := comp.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	c.cache[key] = compiled
	return compiled, nil
}

// newOutputCompiler creates a Compiler configured for output validation.
func newOutputCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	return c
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
