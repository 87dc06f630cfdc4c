package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/outpost/internal/processor"
	"github.com/rendis/outpost/pkg/schema"
)

// IngestSummary is the outcome document printed by the ingest command.
type IngestSummary struct {
	Total    int           `json:"total"`
	Stored   int           `json:"stored"`
	Failed   int           `json:"failed"`   // stored with status failed (validation failures included)
	Rejected int           `json:"rejected"` // not stored at all
	Errors   []IngestError `json:"errors,omitempty"`
}

// IngestError describes one submission the pipeline rejected.
type IngestError struct {
	Index     int    `json:"index"`
	ActionRef string `json:"action_ref,omitempty"`
	Error     string `json:"error"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <submissions.json>",
		Short: "Process a batch of execution results",
		Long: `Run a JSON array of execution submissions through the full pipeline:
schema validation, secret masking, rule evaluation and storage. Items
are processed concurrently on the configured worker pool.

Each submission needs at least "action_ref" and a terminal "status";
"result", "id", "started_at" and "ended_at" are optional. Pass "-" to
read the array from stdin.

Exits 1 when any submission is rejected.

Example:
  outpost ingest results.json
  some-runner | outpost ingest -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runIngest(opts *RootOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts, cmd)

	subs, err := readSubmissions(path, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return NewExitError(ExitCommandError, "no submissions to process")
	}

	a, err := buildApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	formatter.VerboseLog("processing %d submissions", len(subs))
	results := a.processor.ProcessBatch(ctx, subs)

	summary := IngestSummary{Total: len(subs)}
	for i, r := range results {
		if r.Err != nil {
			summary.Rejected++
			summary.Errors = append(summary.Errors, IngestError{
				Index:     i,
				ActionRef: subs[i].ActionRef,
				Error:     r.Err.Error(),
			})
			continue
		}
		summary.Stored++
		if r.Execution.Status == schema.StatusFailed {
			summary.Failed++
		}
	}

	if err := formatter.Success(summary); err != nil {
		return err
	}
	if summary.Rejected > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d submissions rejected", summary.Rejected, summary.Total))
	}
	return nil
}

// readSubmissions reads a JSON array of submissions from a file, or stdin
// when path is "-".
func readSubmissions(path string, stdin io.Reader) ([]processor.Submission, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read submissions", err)
	}

	var subs []processor.Submission
	if err := json.Unmarshal(data, &subs); err != nil {
		return nil, WrapExitError(ExitCommandError, "submissions must be a JSON array", err)
	}
	return subs, nil
}
