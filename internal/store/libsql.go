package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/outpost/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Executions ---

func (s *LibSQLStore) CreateExecution(ctx context.Context, exec *Execution) error {
	tags, err := marshalTags(exec.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (id, action_ref, runner_type, status, result, result_raw, sealed, tags, validation_error, started_at, ended_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.ActionRef, exec.RunnerType, string(exec.Status),
		nullRaw(exec.Result), nullBlob(exec.ResultRaw), exec.Sealed, tags,
		nullRaw(exec.ValidationError),
		nullTime(exec.StartedAt), nullTime(exec.EndedAt),
		timeOrNow(exec.CreatedAt), timeOrNow(exec.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	e := &Execution{}
	var (
		status               string
		result, tags, valErr sql.NullString
		resultRaw            []byte
		startedAt, endedAt   sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, action_ref, runner_type, status, result, result_raw, sealed, tags, validation_error, started_at, ended_at, created_at, updated_at
		 FROM executions WHERE id = ?`, id,
	).Scan(&e.ID, &e.ActionRef, &e.RunnerType, &status, &result, &resultRaw, &e.Sealed,
		&tags, &valErr, &startedAt, &endedAt, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("execution", id)
	}
	if err != nil {
		return nil, err
	}
	e.Status = schema.ExecutionStatus(status)
	e.Result = rawOrNil(result)
	e.ResultRaw = resultRaw
	e.Tags = unmarshalTags(tags)
	e.ValidationError = rawOrNil(valErr)
	if startedAt.Valid {
		e.StartedAt = &startedAt.Time
	}
	if endedAt.Valid {
		e.EndedAt = &endedAt.Time
	}
	return e, nil
}

func (s *LibSQLStore) UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Result != nil {
		sets = append(sets, "result = ?")
		args = append(args, string(update.Result))
	}
	if update.ResultRaw != nil {
		sets = append(sets, "result_raw = ?")
		args = append(args, update.ResultRaw)
	}
	if update.Sealed != nil {
		sets = append(sets, "sealed = ?")
		args = append(args, *update.Sealed)
	}
	if update.Tags != nil {
		tags, err := marshalTags(update.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags: %w", err)
		}
		sets = append(sets, "tags = ?")
		args = append(args, tags)
	}
	if update.ValidationError != nil {
		sets = append(sets, "validation_error = ?")
		args = append(args, string(update.ValidationError))
	}
	if update.EndedAt != nil {
		sets = append(sets, "ended_at = ?")
		args = append(args, *update.EndedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE executions SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "execution", id)
}

func (s *LibSQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error) {
	var where []string
	var args []any

	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.ActionRef != "" {
		where = append(where, "action_ref = ?")
		args = append(args, filter.ActionRef)
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := "SELECT id, action_ref, runner_type, status, result, result_raw, sealed, tags, validation_error, started_at, ended_at, created_at, updated_at FROM executions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		e := &Execution{}
		var (
			status               string
			result, tags, valErr sql.NullString
			resultRaw            []byte
			startedAt, endedAt   sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.ActionRef, &e.RunnerType, &status, &result, &resultRaw, &e.Sealed,
			&tags, &valErr, &startedAt, &endedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Status = schema.ExecutionStatus(status)
		e.Result = rawOrNil(result)
		e.ResultRaw = resultRaw
		e.Tags = unmarshalTags(tags)
		e.ValidationError = rawOrNil(valErr)
		if startedAt.Valid {
			e.StartedAt = &startedAt.Time
		}
		if endedAt.Valid {
			e.EndedAt = &endedAt.Time
		}
		executions = append(executions, e)
	}
	return executions, rows.Err()
}

func (s *LibSQLStore) DeleteExecution(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "execution", id)
}

// DeleteOlderThan removes executions that ended before cutoff. Executions
// without an ended_at fall back to created_at. When statuses is non-empty
// only those statuses are eligible.
func (s *LibSQLStore) DeleteOlderThan(ctx context.Context, cutoff time.Time, statuses []schema.ExecutionStatus) (int64, error) {
	query := `DELETE FROM executions WHERE COALESCE(ended_at, created_at) < ?`
	args := []any{cutoff}

	if len(statuses) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
		query += " AND status IN (" + placeholders + ")"
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.OutpostError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func nullBlob(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func marshalTags(tags []string) (any, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalTags(ns sql.NullString) []string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var tags []string
	_ = json.Unmarshal([]byte(ns.String), &tags)
	return tags
}
