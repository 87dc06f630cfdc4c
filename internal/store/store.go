package store

import (
	"context"
	"time"

	"github.com/rendis/outpost/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Executions
	CreateExecution(ctx context.Context, exec *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error)
	DeleteExecution(ctx context.Context, id string) error

	// Retention: removes terminal executions that ended before cutoff,
	// restricted to the given statuses when non-empty. Returns the count.
	DeleteOlderThan(ctx context.Context, cutoff time.Time, statuses []schema.ExecutionStatus) (int64, error)

	// History (append-only, per-execution sequenced)
	AppendHistory(ctx context.Context, event *HistoryEvent) error
	GetHistory(ctx context.Context, executionID string, since int64) ([]*HistoryEvent, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
