package expressions

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/outpost/pkg/schema"
)

func TestNewCELEngine(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	assert.NotNil(t, e)
	assert.Equal(t, "cel", e.Name())
}

// --- Interface compliance ---

func TestCELEngine_ImplementsEngine(t *testing.T) {
	var _ Engine = (*CELEngine)(nil)
}

// --- Basic evaluation ---

func TestCEL_BooleanLiteral(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	out, err := e.Evaluate(context.Background(), "true", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCEL_IntegerArithmetic(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	out, err := e.Evaluate(context.Background(), "1 + 2", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), out)
}

func TestCEL_StringConcatenation(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	out, err := e.Evaluate(context.Background(), `"core" + "." + "local"`, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "core.local", out)
}

// --- Rule criteria over the execution scope ---

func TestCEL_Criteria_StatusAccess(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	data := map[string]any{"status": "failed"}

	t.Run("matching status", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `status == "failed"`, data)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})

	t.Run("non-matching status", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `status == "succeeded"`, data)
		require.NoError(t, err)
		assert.Equal(t, false, out)
	})
}

func TestCEL_Criteria_OutputAccess(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	data := map[string]any{
		"output": map[string]any{
			"exit_code": int64(0),
			"stdout":    "deployed",
		},
	}

	t.Run("nested field access", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `output.exit_code == 0`, data)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})

	t.Run("string field", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `output.stdout == "deployed"`, data)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})
}

func TestCEL_Criteria_ActionAccess(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	data := map[string]any{
		"action": map[string]any{
			"ref":  "aws.create_vm",
			"pack": "aws",
		},
	}

	out, err := e.Evaluate(context.Background(), `action.pack == "aws"`, data)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCEL_Criteria_ExecutionAccess(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	data := map[string]any{
		"execution": map[string]any{
			"id":         "ex-42",
			"action_ref": "core.local",
		},
	}

	out, err := e.Evaluate(context.Background(), `execution.action_ref == "core.local"`, data)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCEL_Criteria_ResultEnvelope(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	data := map[string]any{
		"result": map[string]any{
			"output": map[string]any{"count": int64(5)},
			"error":  []any{},
		},
	}

	t.Run("envelope field access", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `result.output.count > 3`, data)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})

	t.Run("ternary over envelope", func(t *testing.T) {
		expr := `result.output.count >= 10 ? "high" : result.output.count >= 3 ? "medium" : "low"`
		out, err := e.Evaluate(context.Background(), expr, data)
		require.NoError(t, err)
		assert.Equal(t, "medium", out)
	})
}

// --- Logical operators ---

func TestCEL_LogicalOperators(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	data := map[string]any{
		"status": "succeeded",
		"output": map[string]any{
			"retries": int64(2),
			"cached":  true,
		},
	}

	t.Run("AND", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `status == "succeeded" && output.cached`, data)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})

	t.Run("OR", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `status == "failed" || output.cached`, data)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})

	t.Run("NOT", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `!output.cached`, data)
		require.NoError(t, err)
		assert.Equal(t, false, out)
	})
}

// --- String operations ---

func TestCEL_StringOperations(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	data := map[string]any{
		"action": map[string]any{
			"ref":  "chatops.post_message",
			"pack": "chatops",
		},
	}

	t.Run("contains", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `action.ref.contains(".")`, data)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})

	t.Run("startsWith", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `action.ref.startsWith("chatops")`, data)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})

	t.Run("endsWith", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `action.ref.endsWith("post_message")`, data)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})

	t.Run("size", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `size(action.pack) > 0`, data)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})
}

// --- List operations ---

func TestCEL_ListOperations(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	data := map[string]any{
		"output": map[string]any{
			"hosts": []any{"web-1", "web-2", "db-1"},
		},
	}

	t.Run("in operator", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `"web-1" in output.hosts`, data)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})

	t.Run("not in", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `!("cache-1" in output.hosts)`, data)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})

	t.Run("size", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `size(output.hosts) == 3`, data)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})
}

// --- Map operations ---

func TestCEL_MapOperations(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	data := map[string]any{
		"result": map[string]any{
			"output": map[string]any{
				"region": "us-east-1",
			},
		},
	}

	t.Run("has macro", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `has(result.output)`, data)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})

	t.Run("has missing field", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `has(result.missing)`, data)
		require.NoError(t, err)
		assert.Equal(t, false, out)
	})

	t.Run("index access", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `result.output.region == "us-east-1"`, data)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})
}

// --- Error handling ---

func TestCEL_EmptyExpression(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), "", map[string]any{})
	require.Error(t, err)

	opErr, ok := err.(*schema.OutpostError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, opErr.Code)
	assert.Contains(t, opErr.Message, "empty")
}

func TestCEL_CompileError(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), `invalid >>>`, map[string]any{})
	require.Error(t, err)

	opErr, ok := err.(*schema.OutpostError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, opErr.Code)
	assert.Contains(t, opErr.Message, "compile")
	assert.NotNil(t, opErr.Details)
	assert.Contains(t, opErr.Details, "expression")
}

func TestCEL_RuntimeError_MissingField(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	data := map[string]any{
		"execution": map[string]any{},
	}

	_, err = e.Evaluate(context.Background(), `execution.nonexistent_field > 0`, data)
	require.Error(t, err)

	opErr, ok := err.(*schema.OutpostError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeExpression, opErr.Code)
}

func TestCEL_MissingDataKeys_DefaultToEmpty(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	// With empty data, the mapping variables default to empty maps and
	// status defaults to the empty string.
	out, err := e.Evaluate(context.Background(), `has(execution.id)`, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, false, out)

	out, err = e.Evaluate(context.Background(), `status == ""`, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

// --- Sandbox: no system access ---

func TestCEL_Sandbox_NoSystemAccess(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	// The environment only exposes execution/action/runner/result/output/status.
	// Attempting to use undefined variables should fail compilation.
	_, err = e.Evaluate(context.Background(), `os.env["HOME"]`, map[string]any{})
	require.Error(t, err)

	opErr, ok := err.(*schema.OutpostError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, opErr.Code)
}

// --- Program caching ---

func TestCEL_ProgramCaching(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	data := map[string]any{"output": map[string]any{"x": int64(1)}}

	// First call compiles and caches.
	out1, err := e.Evaluate(context.Background(), `output.x + 1`, data)
	require.NoError(t, err)

	e.mu.RLock()
	cacheLen := len(e.cache)
	e.mu.RUnlock()
	assert.Equal(t, 1, cacheLen, "program should be cached")

	// Second call uses cache.
	out2, err := e.Evaluate(context.Background(), `output.x + 1`, data)
	require.NoError(t, err)

	assert.Equal(t, out1, out2)

	e.mu.RLock()
	cacheLen2 := len(e.cache)
	e.mu.RUnlock()
	assert.Equal(t, 1, cacheLen2, "cache size should not change")
}

// --- Thread safety ---

func TestCEL_Concurrent(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 100)
	results := make([]any, 100)

	for i := range 100 {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			data := map[string]any{
				"output": map[string]any{
					"val": int64(idx),
				},
			}
			results[idx], errs[idx] = e.Evaluate(context.Background(), `output.val >= 0`, data)
		}(i)
	}
	wg.Wait()

	for i := range 100 {
		assert.NoError(t, errs[i], "goroutine %d should not error", i)
		assert.Equal(t, true, results[i], "goroutine %d should return true", i)
	}
}

func TestCEL_ConcurrentDifferentExpressions(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	expressions := []string{
		`status == "succeeded"`,
		`output.code > 10`,
		`action.pack == "aws"`,
		`size(output.hosts) == 2`,
	}

	datasets := []map[string]any{
		{"status": "succeeded"},
		{"output": map[string]any{"code": int64(20)}},
		{"action": map[string]any{"pack": "aws"}},
		{"output": map[string]any{"hosts": []any{"a", "b"}}},
	}

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			exprIdx := idx % len(expressions)
			out, err := e.Evaluate(context.Background(), expressions[exprIdx], datasets[exprIdx])
			assert.NoError(t, err, "iteration %d expr %d", idx, exprIdx)
			assert.Equal(t, true, out, "iteration %d expr %d", idx, exprIdx)
		}(i)
	}
	wg.Wait()
}

// --- Return type diversity ---

func TestCEL_ReturnTypes(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	data := map[string]any{
		"status": "succeeded",
		"output": map[string]any{"val": int64(42)},
	}

	t.Run("returns bool", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `true`, data)
		require.NoError(t, err)
		assert.IsType(t, true, out)
	})

	t.Run("returns string", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `status`, data)
		require.NoError(t, err)
		assert.IsType(t, "", out)
		assert.Equal(t, "succeeded", out)
	})

	t.Run("returns int", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `output.val`, data)
		require.NoError(t, err)
		assert.Equal(t, int64(42), out)
	})

	t.Run("returns double", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `3.14`, data)
		require.NoError(t, err)
		assert.Equal(t, 3.14, out)
	})
}

// --- Built scope integration ---

func TestCEL_AgainstBuiltScope(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	execution := &schema.ActionExecution{
		ID:        "ex-77",
		ActionRef: "packs.deploy",
		Action:    schema.ActionSpec{Ref: "packs.deploy", Pack: "packs", Name: "deploy", RunnerType: "python-script"},
		Runner:    schema.RunnerSpec{Name: "python-script", OutputKey: "output"},
		Status:    schema.StatusFailed,
	}
	result := map[string]any{
		"output": map[string]any{"exit_code": int64(1)},
		"error":  "boom",
	}

	scope := BuildScope(execution, result)

	out, err := e.Evaluate(context.Background(), `status == "failed" && output.exit_code != 0`, scope)
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = e.Evaluate(context.Background(), `execution.action_ref == action.ref`, scope)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

// --- Nil data handling ---

func TestCEL_NilData(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	// nil data should not panic.
	out, err := e.Evaluate(context.Background(), `has(execution.id)`, nil)
	require.NoError(t, err)
	assert.Equal(t, false, out)
}
