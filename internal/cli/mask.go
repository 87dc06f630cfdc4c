package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/rendis/outpost/internal/masking"
)

// MaskOptions holds flags for the mask command.
type MaskOptions struct {
	*RootOptions
	Action       string
	ActionSchema string
	OutputKey    string
}

// NewMaskCommand creates the mask command.
func NewMaskCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MaskOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mask <result.json>",
		Short: "Mask secret fields in an execution result",
		Long: `Replace secret-marked output fields in a result document with the
mask sentinel and print the masked document. The original is never
modified; results without secret markers pass through untouched.

The action output schema comes from the configured catalog via --action,
or from an explicit schema file. Pass "-" to read the result from stdin.

Example:
  outpost mask result.json --action vault.issue_token
  cat result.json | outpost mask - --action-schema schema.yaml --output-key result`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMask(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Action, "action", "", "action ref whose output schema marks the secrets")
	cmd.Flags().StringVar(&opts.ActionSchema, "action-schema", "", "path to an action output schema file (YAML or JSON)")
	cmd.Flags().StringVar(&opts.OutputKey, "output-key", "", "result key holding the action output")

	return cmd
}

func runMask(opts *MaskOptions, resultPath string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	c, err := resolveContract(ctx, opts.RootOptions, opts.Action, opts.ActionSchema, "", opts.OutputKey)
	if err != nil {
		return err
	}

	result, err := readResultDocument(resultPath, cmd.InOrStdin())
	if err != nil {
		return err
	}

	masked := masking.MaskWithSchema(c.actionSchema, c.outputKey, result)
	return formatter.Success(masked)
}
