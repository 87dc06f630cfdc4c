package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOutpostServer(t *testing.T) {
	s := NewOutpostServer(OutpostServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
}

func TestToolRegistration(t *testing.T) {
	s := NewOutpostServer(OutpostServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 5)

	expectedTools := []string{
		"outpost.process",
		"outpost.get",
		"outpost.query",
		"outpost.actions",
		"outpost.purge",
	}
	for _, name := range expectedTools {
		tool := s.mcpServer.GetTool(name)
		assert.NotNil(t, tool, "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name        string
		toolName    string
		description string
	}{
		{"process", "outpost.process", "Ingest a finished action execution: validate its result against the action's output schema, mask secret fields, and store it"},
		{"get", "outpost.get", "Fetch a stored execution, masked by default"},
		{"query", "outpost.query", "List stored executions"},
		{"actions", "outpost.actions", "List the registered actions and runner types"},
		{"purge", "outpost.purge", "Delete executions older than the retention window"},
	}

	s := NewOutpostServer(OutpostServerDeps{})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}
