package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rendis/outpost/internal/processor"
	"github.com/rendis/outpost/internal/store"
	"github.com/rendis/outpost/pkg/schema"
)

// handleProcess ingests a finished execution through the full pipeline.
func (s *OutpostServer) handleProcess(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actionRef, err := req.RequireString("action_ref")
	if err != nil {
		return mcp.NewToolResultError("action_ref is required"), nil
	}
	status, err := req.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError("status is required"), nil
	}

	sub := processor.Submission{
		ID:        req.GetString("execution_id", ""),
		ActionRef: actionRef,
		Status:    schema.ExecutionStatus(status),
	}
	if result := mcp.ParseStringMap(req, "result", nil); result != nil {
		sub.Result = result
	}
	if startedAt := req.GetString("started_at", ""); startedAt != "" {
		t, parseErr := time.Parse(time.RFC3339, startedAt)
		if parseErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid started_at: %v", parseErr)), nil
		}
		sub.StartedAt = &t
	}
	if endedAt := req.GetString("ended_at", ""); endedAt != "" {
		t, parseErr := time.Parse(time.RFC3339, endedAt)
		if parseErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid ended_at: %v", parseErr)), nil
		}
		sub.EndedAt = &t
	}

	exec, procErr := s.processor.Process(ctx, sub)
	if procErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("processing failed: %v", procErr)), nil
	}
	return marshalResult(exec)
}

// handleGet fetches a stored execution, masked unless show_secrets is set.
func (s *OutpostServer) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	executionID, err := req.RequireString("execution_id")
	if err != nil {
		return mcp.NewToolResultError("execution_id is required"), nil
	}

	opts := processor.GetOptions{
		ShowSecrets: req.GetString("show_secrets", "false") == "true",
		Key:         req.GetString("key", ""),
	}

	exec, getErr := s.processor.Get(ctx, executionID, opts)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get failed: %v", getErr)), nil
	}

	if req.GetString("history", "false") == "true" {
		events, histErr := s.processor.History(ctx, executionID)
		if histErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("history lookup failed: %v", histErr)), nil
		}
		return marshalResult(map[string]any{
			"execution": exec,
			"history":   events,
		})
	}

	return marshalResult(exec)
}

// handleQuery lists stored executions matching the filter.
func (s *OutpostServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := mcp.ParseStringMap(req, "filter", nil)

	ef := store.ExecutionFilter{
		Limit:  extractInt(filter, "limit", 50),
		Offset: extractInt(filter, "offset", 0),
	}
	if status, ok := filter["status"].(string); ok && status != "" {
		es := schema.ExecutionStatus(status)
		ef.Status = &es
	}
	if actionRef, ok := filter["action_ref"].(string); ok {
		ef.ActionRef = actionRef
	}
	if since, ok := filter["since"].(string); ok && since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			ef.Since = &t
		}
	}

	execs, queryErr := s.processor.Query(ctx, ef)
	if queryErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", queryErr)), nil
	}
	return marshalResult(map[string]any{
		"executions": execs,
		"count":      len(execs),
	})
}

// handleActions lists the catalog contents, optionally reloading from disk first.
func (s *OutpostServer) handleActions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if req.GetString("reload", "false") == "true" {
		if s.catalogDir == "" {
			return mcp.NewToolResultError("no catalog directory configured"), nil
		}
		loaded, reloadErr := s.catalog.Reload(ctx, s.catalogDir)
		if reloadErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("catalog reload failed: %v", reloadErr)), nil
		}
		return marshalResult(map[string]any{
			"actions": s.catalog.ListActions(),
			"runners": s.catalog.ListRunners(),
			"loaded":  loaded,
		})
	}

	return marshalResult(map[string]any{
		"actions": s.catalog.ListActions(),
		"runners": s.catalog.ListRunners(),
	})
}

// handlePurge deletes executions older than the retention window.
func (s *OutpostServer) handlePurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.purger == nil {
		return mcp.NewToolResultError("retention is not configured"), nil
	}

	var maxAge time.Duration
	if olderThan := req.GetString("older_than", ""); olderThan != "" {
		d, parseErr := time.ParseDuration(olderThan)
		if parseErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid older_than: %v", parseErr)), nil
		}
		maxAge = d
	}

	purged, purgeErr := s.purger.RunOnce(ctx, maxAge)
	if purgeErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("purge failed: %v", purgeErr)), nil
	}
	return marshalResult(map[string]any{"purged": purged})
}

// --- Helpers ---

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
