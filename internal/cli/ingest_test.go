package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeAppConfig writes an outpost.yaml with a throwaway database and a
// one-action catalog, for commands that build the full pipeline.
func writeAppConfig(t *testing.T, extra string) string {
	t.Helper()

	catDir := t.TempDir()
	actionSpec := `ref: vault.issue_token
runner_type: python-script
output_schema:
  type: object
  properties:
    token:
      type: string
      secret: true
    expiry:
      type: integer
  additionalProperties: false
`
	require.NoError(t, os.WriteFile(filepath.Join(catDir, "issue_token.yaml"), []byte(actionSpec), 0o644))

	dir := t.TempDir()
	cfg := fmt.Sprintf("db_path: %s\ncatalog_dir: %s\npool_size: 4\n%s",
		filepath.Join(dir, "outpost.db"), catDir, extra)
	path := filepath.Join(dir, "outpost.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func TestIngestCommand_MixedBatch(t *testing.T) {
	cfgPath := writeAppConfig(t, "")
	subs := `[
  {"action_ref": "vault.issue_token", "status": "succeeded", "result": {"result": {"token": "tok_a", "expiry": 60}}},
  {"action_ref": "vault.issue_token", "status": "succeeded", "result": {"result": {"token": 42}}},
  {"action_ref": "ghost.action", "status": "succeeded"}
]`
	subsPath := writeFile(t, "subs.json", subs)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{ConfigPath: cfgPath, Format: "text"}
	cmd := NewIngestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{subsPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 of 3 submissions rejected")

	var summary IngestSummary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &summary))
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Stored)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Rejected)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, 2, summary.Errors[0].Index)
	assert.Equal(t, "ghost.action", summary.Errors[0].ActionRef)
	assert.Contains(t, summary.Errors[0].Error, "not registered")
}

func TestIngestCommand_AllStored(t *testing.T) {
	cfgPath := writeAppConfig(t, "")
	subs := `[{"action_ref": "vault.issue_token", "status": "succeeded", "result": {"result": {"token": "tok_b", "expiry": 30}}}]`
	subsPath := writeFile(t, "subs.json", subs)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{ConfigPath: cfgPath, Format: "text"}
	cmd := NewIngestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{subsPath})

	require.NoError(t, cmd.Execute())

	var summary IngestSummary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &summary))
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Stored)
	assert.Zero(t, summary.Failed)
	assert.Zero(t, summary.Rejected)
	assert.Empty(t, summary.Errors)
}

func TestIngestCommand_JSONEnvelope(t *testing.T) {
	cfgPath := writeAppConfig(t, "")
	subs := `[{"action_ref": "vault.issue_token", "status": "succeeded", "result": {"result": {"token": "tok_c", "expiry": 30}}}]`
	subsPath := writeFile(t, "subs.json", subs)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{ConfigPath: cfgPath, Format: "json"}
	cmd := NewIngestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{subsPath})

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestIngestCommand_Stdin(t *testing.T) {
	cfgPath := writeAppConfig(t, "")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{ConfigPath: cfgPath, Format: "text"}
	cmd := NewIngestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetIn(strings.NewReader(`[{"action_ref": "vault.issue_token", "status": "succeeded", "result": {"result": {"token": "tok_d", "expiry": 10}}}]`))
	cmd.SetArgs([]string{"-"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), `"stored": 1`)
}

func TestIngestCommand_EmptyInput(t *testing.T) {
	subsPath := writeFile(t, "subs.json", `[]`)

	rootOpts := &RootOptions{Format: "text"}
	cmd := NewIngestCommand(rootOpts)
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{subsPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no submissions to process")
}

func TestIngestCommand_NotAnArray(t *testing.T) {
	subsPath := writeFile(t, "subs.json", `{"action_ref": "vault.issue_token"}`)

	rootOpts := &RootOptions{Format: "text"}
	cmd := NewIngestCommand(rootOpts)
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{subsPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "must be a JSON array")
}
