package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// newFormatter builds the command's output formatter. Verbose logs go to
// stderr to avoid corrupting JSON output.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// readResultDocument reads a JSON result from a file, or stdin when path is "-".
func readResultDocument(path string, stdin io.Reader) (any, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read result", err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, WrapExitError(ExitCommandError, "result is not valid JSON", err)
	}
	return doc, nil
}

// readSchemaFile reads an output schema from a YAML or JSON file.
func readSchemaFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read schema", err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to parse schema", err)
	}
	return m, nil
}

// contract is the schema pair and output key a result is checked against.
type contract struct {
	runnerSchema map[string]any
	actionSchema map[string]any
	outputKey    string
}

// resolveContract assembles the validation contract from the catalog (via
// an action ref) or from explicit schema files.
func resolveContract(ctx context.Context, rootOpts *RootOptions, action, actionSchemaPath, runnerSchemaPath, outputKey string) (*contract, error) {
	if action != "" {
		if actionSchemaPath != "" || runnerSchemaPath != "" {
			return nil, NewExitError(ExitCommandError, "use either --action or explicit schema files, not both")
		}

		cfg, err := loadConfig(rootOpts)
		if err != nil {
			return nil, err
		}
		cat, err := buildCatalog(ctx, cfg, newLogger(cfg, rootOpts.Verbose))
		if err != nil {
			return nil, err
		}
		spec, err := cat.Action(action)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("action %q is not registered", action), err)
		}
		runner, err := cat.ResolveRunner(spec)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to resolve runner for %q", action), err)
		}
		return &contract{
			runnerSchema: runner.OutputSchema,
			actionSchema: spec.OutputSchema,
			outputKey:    runner.OutputKey,
		}, nil
	}

	if actionSchemaPath == "" && runnerSchemaPath == "" {
		return nil, NewExitError(ExitCommandError, "either --action or a schema file is required")
	}
	if actionSchemaPath != "" && outputKey == "" {
		return nil, NewExitError(ExitCommandError, "--output-key is required with --action-schema")
	}

	c := &contract{outputKey: outputKey}
	if actionSchemaPath != "" {
		m, err := readSchemaFile(actionSchemaPath)
		if err != nil {
			return nil, err
		}
		c.actionSchema = m
	}
	if runnerSchemaPath != "" {
		m, err := readSchemaFile(runnerSchemaPath)
		if err != nil {
			return nil, err
		}
		c.runnerSchema = m
	}
	return c, nil
}
