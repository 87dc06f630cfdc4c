package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/outpost/pkg/schema"
)

// Execution is the persisted representation of a processed action execution.
// Result holds the display projection (masked when mask_on_store is set);
// ResultRaw holds the unmasked result, sealed when a sealer is configured.
type Execution struct {
	ID              string                 `json:"id"`
	ActionRef       string                 `json:"action_ref"`
	RunnerType      string                 `json:"runner_type"`
	Status          schema.ExecutionStatus `json:"status"`
	Result          json.RawMessage        `json:"result,omitempty"`
	ResultRaw       []byte                 `json:"-"`
	Sealed          bool                   `json:"sealed,omitempty"`
	Tags            []string               `json:"tags,omitempty"`
	ValidationError json.RawMessage        `json:"validation_error,omitempty"`
	StartedAt       *time.Time             `json:"started_at,omitempty"`
	EndedAt         *time.Time             `json:"ended_at,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// HistoryEvent is an immutable entry in an execution's processing history.
type HistoryEvent struct {
	ID          int64           `json:"id"`
	ExecutionID string          `json:"execution_id"`
	Type        string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Sequence    int64           `json:"sequence"`
}

// --- Filter and update types ---

// ExecutionFilter specifies criteria for listing executions.
type ExecutionFilter struct {
	Status    *schema.ExecutionStatus `json:"status,omitempty"`
	ActionRef string                  `json:"action_ref,omitempty"`
	Since     *time.Time              `json:"since,omitempty"`
	Limit     int                     `json:"limit,omitempty"`
	Offset    int                     `json:"offset,omitempty"`
}

// ExecutionUpdate specifies mutable fields of an execution.
type ExecutionUpdate struct {
	Status          *schema.ExecutionStatus `json:"status,omitempty"`
	Result          json.RawMessage         `json:"result,omitempty"`
	ResultRaw       []byte                  `json:"-"`
	Sealed          *bool                   `json:"sealed,omitempty"`
	Tags            []string                `json:"tags,omitempty"`
	ValidationError json.RawMessage         `json:"validation_error,omitempty"`
	EndedAt         *time.Time              `json:"ended_at,omitempty"`
}
