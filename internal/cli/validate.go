package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rendis/outpost/internal/validation"
	"github.com/rendis/outpost/pkg/schema"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Action       string
	ActionSchema string
	RunnerSchema string
	OutputKey    string
	Status       string
}

// ValidateResult is the outcome document printed by the validate command.
type ValidateResult struct {
	Status schema.ExecutionStatus `json:"status"`
	Result any                    `json:"result"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <result.json>",
		Short: "Validate an execution result against its output schemas",
		Long: `Validate a result document without storing it.

The runner envelope schema is checked over the whole result, then the
action output schema over the value at the runner's output key. On
violation the command prints the replacement error payload and exits 1.
Non-succeeded results pass through unchecked.

Schemas come from the configured catalog via --action, or from explicit
schema files. Pass "-" to read the result from stdin.

Example:
  outpost validate result.json --action vault.issue_token
  cat result.json | outpost validate - --action-schema schema.yaml --output-key result`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Action, "action", "", "action ref whose schemas to validate against")
	cmd.Flags().StringVar(&opts.ActionSchema, "action-schema", "", "path to an action output schema file (YAML or JSON)")
	cmd.Flags().StringVar(&opts.RunnerSchema, "runner-schema", "", "path to a runner envelope schema file (YAML or JSON)")
	cmd.Flags().StringVar(&opts.OutputKey, "output-key", "", "result key holding the action output")
	cmd.Flags().StringVar(&opts.Status, "status", string(schema.StatusSucceeded), "execution status reported by the runner")

	return cmd
}

func runValidate(opts *ValidateOptions, resultPath string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	status := schema.ExecutionStatus(opts.Status)
	if !status.Known() {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown status %q", opts.Status))
	}

	c, err := resolveContract(ctx, opts.RootOptions, opts.Action, opts.ActionSchema, opts.RunnerSchema, opts.OutputKey)
	if err != nil {
		return err
	}

	result, err := readResultDocument(resultPath, cmd.InOrStdin())
	if err != nil {
		return err
	}

	out, outStatus := result, status
	if status == schema.StatusSucceeded {
		validator := validation.NewOutputValidator(validation.NewChecker(), quietLogger(opts.RootOptions, cmd))
		out, outStatus = validator.ValidateOutput(ctx, c.runnerSchema, c.actionSchema, result, status, c.outputKey)
	} else {
		formatter.VerboseLog("status is %s, skipping schema checks", status)
	}

	if outStatus == schema.StatusFailed && status != schema.StatusFailed {
		if err := formatter.Error(schema.ErrCodeValidation, "output validation failed", out); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "output validation failed")
	}

	return formatter.Success(ValidateResult{Status: outStatus, Result: out})
}

// quietLogger keeps one-shot commands silent unless verbose is set.
// Diagnostics go to stderr so stdout stays parseable.
func quietLogger(opts *RootOptions, cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}
