package validation

import (
	"context"
	"log/slog"

	"github.com/rendis/outpost/pkg/schema"
)

// OutputValidator applies the layered output contract to completed
// execution results: the runner's envelope schema over the whole result,
// then the action's output schema over the value at the runner's output
// key. Violations are reported as values, never as Go errors, so callers
// can persist the outcome as-is.
type OutputValidator struct {
	checker SchemaChecker
	logger  *slog.Logger
}

// NewOutputValidator builds an OutputValidator on top of a schema engine.
func NewOutputValidator(checker SchemaChecker, logger *slog.Logger) *OutputValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutputValidator{checker: checker, logger: logger}
}

// ValidateOutput checks result against the runner envelope schema and then
// the action output schema. The first violation replaces the result with
// the two-key error payload and flips the status to failed; the action
// layer is not consulted after an envelope violation. When every layer
// passes, the exact result and status passed in come back unmodified.
//
// A layer with no schema passes. A layer whose schema cannot be compiled,
// or whose target value is absent from the result, is skipped with a log
// line rather than failed; hard failures are reserved for the schema
// checks themselves.
func (v *OutputValidator) ValidateOutput(ctx context.Context, runnerSchema, actionSchema map[string]any, result any, status schema.ExecutionStatus, outputKey string) (any, schema.ExecutionStatus) {
	if len(runnerSchema) > 0 {
		violation, err := v.checker.Check(runnerSchema, result)
		switch {
		case err != nil:
			v.logger.WarnContext(ctx, "runner schema unusable, skipping envelope check", "error", err)
		case violation != nil:
			v.logger.DebugContext(ctx, "result failed runner envelope check")
			return schema.NewValidationErrorPayload(violation.Diagnostic()), schema.StatusFailed
		}
	}

	if len(actionSchema) > 0 {
		output, present := outputValue(result, outputKey)
		if !present {
			v.logger.DebugContext(ctx, "output key absent, skipping action output check",
				"output_key", outputKey)
			return result, status
		}

		violation, err := v.checker.Check(actionSchema, output)
		switch {
		case err != nil:
			v.logger.WarnContext(ctx, "action schema unusable, skipping output check", "error", err)
		case violation != nil:
			v.logger.DebugContext(ctx, "output failed action schema check")
			return schema.NewValidationErrorPayload(violation.Diagnostic()), schema.StatusFailed
		}
	}

	return result, status
}

// outputValue extracts the action output from the result envelope.
func outputValue(result any, outputKey string) (any, bool) {
	if outputKey == "" {
		return nil, false
	}
	envelope, ok := result.(map[string]any)
	if !ok {
		return nil, false
	}
	out, present := envelope[outputKey]
	return out, present
}
