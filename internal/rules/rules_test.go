package rules

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/outpost/internal/expressions"
	"github.com/rendis/outpost/pkg/schema"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engines, err := expressions.NewEngines()
	require.NoError(t, err)
	return NewEngine(engines, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeRulesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// failedBackupScope is a failed db.backup execution scope shared by the
// evaluation tests.
func failedBackupScope() map[string]any {
	exec := &schema.ActionExecution{
		ID:        "ex-5",
		ActionRef: "db.backup",
		Action: schema.ActionSpec{
			Ref: "db.backup", Pack: "db", Name: "backup", RunnerType: "local-shell-cmd",
		},
		Runner: schema.RunnerSpec{Name: "local-shell-cmd", OutputKey: "output"},
		Status: schema.StatusFailed,
	}
	result := map[string]any{
		"output": map[string]any{
			"exit_code":   28.0,
			"duration_ms": 1500.0,
		},
		"error": "disk full",
	}
	return expressions.BuildScope(exec, result)
}

const triageRules = `
rules:
  - name: flag-failures
    dialect: cel
    criteria: status == "failed"
    tags: ["triage", "action:${{action.ref}}"]
  - name: slow-runs
    dialect: expr
    criteria: output.duration_ms > 1000
    tags: ["slow"]
  - name: has-error
    dialect: jq
    criteria: .result.error != null
    tags: ["errored"]
`

// --- Loading ---

func TestEngine_LoadFile(t *testing.T) {
	e := newTestEngine(t)

	n, err := e.LoadFile(writeRulesFile(t, triageRules))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rules := e.Rules()
	require.Len(t, rules, 3)
	assert.Equal(t, "flag-failures", rules[0].Name)
	assert.Equal(t, "cel", rules[0].Dialect)
}

func TestEngine_LoadFile_DefaultDialect(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.LoadFile(writeRulesFile(t, `
rules:
  - name: default-dialect
    criteria: status == "succeeded"
    tags: ["ok"]
`))
	require.NoError(t, err)
	assert.Equal(t, "cel", e.Rules()[0].Dialect)
}

func TestEngine_LoadFile_UnknownDialect(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.LoadFile(writeRulesFile(t, `
rules:
  - name: bad
    dialect: yaql
    criteria: "1 = 1"
    tags: ["x"]
`))
	require.Error(t, err)

	var opErr *schema.OutpostError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, schema.ErrCodeValidation, opErr.Code)
	assert.Contains(t, opErr.Message, "yaql")
}

func TestEngine_LoadFile_MissingName(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.LoadFile(writeRulesFile(t, `
rules:
  - dialect: cel
    criteria: "true"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no name")
}

func TestEngine_LoadFile_MissingCriteria(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.LoadFile(writeRulesFile(t, `
rules:
  - name: empty
    dialect: cel
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no criteria")
}

func TestEngine_LoadFile_BadYAML(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.LoadFile(writeRulesFile(t, "rules: [unclosed"))
	require.Error(t, err)
}

func TestEngine_LoadFile_MissingFile(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestEngine_LoadFile_ReplacesExisting(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.LoadFile(writeRulesFile(t, triageRules))
	require.NoError(t, err)
	require.Len(t, e.Rules(), 3)

	_, err = e.LoadFile(writeRulesFile(t, `
rules:
  - name: only-one
    dialect: cel
    criteria: "true"
    tags: ["solo"]
`))
	require.NoError(t, err)
	require.Len(t, e.Rules(), 1)
	assert.Equal(t, "only-one", e.Rules()[0].Name)
}

// --- Evaluation ---

func TestEngine_Evaluate_AllDialectsMatch(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.LoadFile(writeRulesFile(t, triageRules))
	require.NoError(t, err)

	matches := e.Evaluate(context.Background(), failedBackupScope())
	require.Len(t, matches, 3)

	// Matches keep rule order.
	assert.Equal(t, "flag-failures", matches[0].Rule)
	assert.Equal(t, []string{"triage", "action:db.backup"}, matches[0].Tags)
	assert.Equal(t, "slow-runs", matches[1].Rule)
	assert.Equal(t, []string{"slow"}, matches[1].Tags)
	assert.Equal(t, "has-error", matches[2].Rule)
}

func TestEngine_Evaluate_NoMatch(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.LoadFile(writeRulesFile(t, `
rules:
  - name: only-succeeded
    dialect: cel
    criteria: status == "succeeded"
    tags: ["ok"]
`))
	require.NoError(t, err)

	matches := e.Evaluate(context.Background(), failedBackupScope())
	assert.Empty(t, matches)
}

func TestEngine_Evaluate_NonBooleanSkipped(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.LoadFile(writeRulesFile(t, `
rules:
  - name: returns-string
    dialect: jq
    criteria: .status
    tags: ["x"]
  - name: real-match
    dialect: cel
    criteria: status == "failed"
    tags: ["y"]
`))
	require.NoError(t, err)

	matches := e.Evaluate(context.Background(), failedBackupScope())
	require.Len(t, matches, 1)
	assert.Equal(t, "real-match", matches[0].Rule)
}

func TestEngine_Evaluate_ErrorSkipped(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.LoadFile(writeRulesFile(t, `
rules:
  - name: blows-up
    dialect: expr
    criteria: output.measurements[10] > 0
    tags: ["x"]
  - name: survivor
    dialect: cel
    criteria: status == "failed"
    tags: ["y"]
`))
	require.NoError(t, err)

	matches := e.Evaluate(context.Background(), failedBackupScope())
	require.Len(t, matches, 1)
	assert.Equal(t, "survivor", matches[0].Rule)
}

func TestEngine_Evaluate_FailedTagTemplateDropped(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.LoadFile(writeRulesFile(t, `
rules:
  - name: bad-tag
    dialect: cel
    criteria: status == "failed"
    tags: ["kept", "broken:${{vault.KEY}}"]
`))
	require.NoError(t, err)

	matches := e.Evaluate(context.Background(), failedBackupScope())
	require.Len(t, matches, 1)
	assert.Equal(t, []string{"kept"}, matches[0].Tags)
}

func TestEngine_Evaluate_NoRules(t *testing.T) {
	e := newTestEngine(t)
	matches := e.Evaluate(context.Background(), failedBackupScope())
	assert.Empty(t, matches)
}

func TestEngine_Evaluate_DeepScopeAccess(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.LoadFile(writeRulesFile(t, `
rules:
  - name: exit-code-match
    dialect: expr
    criteria: output.exit_code == 28 && execution.action_ref == "db.backup"
    tags: ["exit:${{output.exit_code}}", "pack:${{action.pack}}"]
`))
	require.NoError(t, err)

	matches := e.Evaluate(context.Background(), failedBackupScope())
	require.Len(t, matches, 1)
	assert.Equal(t, []string{"exit:28", "pack:db"}, matches[0].Tags)
}
