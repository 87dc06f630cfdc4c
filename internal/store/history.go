package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AppendHistory appends an event with a monotonically increasing per-execution
// sequence. The sequence read and the insert run inside one write transaction
// so concurrent appenders cannot interleave.
func (s *LibSQLStore) AppendHistory(ctx context.Context, event *HistoryEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode BeginTx alone may start a deferred transaction. Execute a
	// write-intent statement first to force write-lock acquisition.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM history WHERE execution_id = ?`, event.ExecutionID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO history (execution_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?)`,
		event.ExecutionID, event.Type, nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert history event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history event: %w", err)
	}
	return nil
}

// GetHistory returns events for an execution with sequence > since, ordered by
// sequence ASC.
func (s *LibSQLStore) GetHistory(ctx context.Context, executionID string, since int64) ([]*HistoryEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, event_type, payload, timestamp, sequence
		 FROM history WHERE execution_id = ? AND sequence > ? ORDER BY sequence ASC`,
		executionID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHistory(rows)
}

func scanHistory(rows *sql.Rows) ([]*HistoryEvent, error) {
	var events []*HistoryEvent
	for rows.Next() {
		e := &HistoryEvent{}
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.ExecutionID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}
