package expressions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/outpost/pkg/schema"
)

func TestNewEngines(t *testing.T) {
	engines, err := NewEngines()
	require.NoError(t, err)
	require.NotNil(t, engines)
	assert.NotNil(t, engines.CEL)
	assert.NotNil(t, engines.Expr)
	assert.NotNil(t, engines.JQ)
}

func TestEngines_ByName(t *testing.T) {
	engines, err := NewEngines()
	require.NoError(t, err)

	tests := []struct {
		dialect string
		want    string
	}{
		{"cel", "cel"},
		{"expr", "expr"},
		{"jq", "jq"},
	}

	for _, tc := range tests {
		t.Run(tc.dialect, func(t *testing.T) {
			engine, err := engines.ByName(tc.dialect)
			require.NoError(t, err)
			assert.Equal(t, tc.want, engine.Name())
		})
	}
}

func TestEngines_ByName_Unknown(t *testing.T) {
	engines, err := NewEngines()
	require.NoError(t, err)

	_, err = engines.ByName("yaql")
	require.Error(t, err)

	opErr, ok := err.(*schema.OutpostError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeExpression, opErr.Code)
	assert.Contains(t, opErr.Message, "yaql")
	assert.Contains(t, opErr.Message, "cel, expr, jq")
}
