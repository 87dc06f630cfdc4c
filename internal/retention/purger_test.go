package retention

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/outpost/internal/store"
	"github.com/rendis/outpost/pkg/schema"
)

// mockPurgeStore satisfies store.Store for purger tests.
type mockPurgeStore struct {
	store.Store
	mu        sync.Mutex
	deleted   int64
	deleteErr error
	vacuumErr error
	calls     []purgeCall
	vacuums   int
}

type purgeCall struct {
	Cutoff   time.Time
	Statuses []schema.ExecutionStatus
}

func (m *mockPurgeStore) DeleteOlderThan(_ context.Context, cutoff time.Time, statuses []schema.ExecutionStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	m.calls = append(m.calls, purgeCall{Cutoff: cutoff, Statuses: statuses})
	return m.deleted, nil
}

func (m *mockPurgeStore) Vacuum(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vacuums++
	return m.vacuumErr
}

func (m *mockPurgeStore) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockPurgeStore) lastCall() purgeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Tests ---

func TestNewPurger_ValidatesConfig(t *testing.T) {
	ms := &mockPurgeStore{}

	_, err := NewPurger(ms, Config{MaxAge: 0}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_age")

	_, err = NewPurger(ms, Config{MaxAge: time.Hour, Schedule: "not a cron"}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse retention schedule")

	_, err = NewPurger(ms, Config{
		MaxAge:   time.Hour,
		Statuses: []schema.ExecutionStatus{schema.StatusRunning},
	}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not terminal")

	_, err = NewPurger(ms, Config{
		MaxAge:   time.Hour,
		Schedule: "0 3 * * *",
		Statuses: []schema.ExecutionStatus{schema.StatusSucceeded, schema.StatusTimeout},
	}, testLogger())
	require.NoError(t, err)
}

func TestNextRun(t *testing.T) {
	ms := &mockPurgeStore{}

	p, err := NewPurger(ms, Config{MaxAge: time.Hour, Schedule: "0 3 * * *"}, testLogger())
	require.NoError(t, err)

	from := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	next, ok := p.NextRun(from)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 2, 11, 3, 0, 0, 0, time.UTC), next)

	// No schedule, no next fire.
	p, err = NewPurger(ms, Config{MaxAge: time.Hour}, testLogger())
	require.NoError(t, err)
	_, ok = p.NextRun(from)
	assert.False(t, ok)
}

func TestRunOnce_PurgesAndVacuums(t *testing.T) {
	ms := &mockPurgeStore{deleted: 7}
	statuses := []schema.ExecutionStatus{schema.StatusSucceeded}

	p, err := NewPurger(ms, Config{MaxAge: 48 * time.Hour, Statuses: statuses}, testLogger())
	require.NoError(t, err)

	purged, err := p.RunOnce(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), purged)

	require.Equal(t, 1, ms.callCount())
	call := ms.lastCall()
	assert.WithinDuration(t, time.Now().UTC().Add(-48*time.Hour), call.Cutoff, 5*time.Second)
	assert.Equal(t, statuses, call.Statuses)
	assert.Equal(t, 1, ms.vacuums)
}

func TestRunOnce_MaxAgeOverride(t *testing.T) {
	ms := &mockPurgeStore{deleted: 1}

	p, err := NewPurger(ms, Config{MaxAge: 30 * 24 * time.Hour}, testLogger())
	require.NoError(t, err)

	_, err = p.RunOnce(context.Background(), time.Hour)
	require.NoError(t, err)

	call := ms.lastCall()
	assert.WithinDuration(t, time.Now().UTC().Add(-time.Hour), call.Cutoff, 5*time.Second)
}

func TestRunOnce_NothingPurgedSkipsVacuum(t *testing.T) {
	ms := &mockPurgeStore{deleted: 0}

	p, err := NewPurger(ms, Config{MaxAge: time.Hour}, testLogger())
	require.NoError(t, err)

	purged, err := p.RunOnce(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), purged)
	assert.Equal(t, 0, ms.vacuums)
}

func TestRunOnce_StoreError(t *testing.T) {
	ms := &mockPurgeStore{deleteErr: assert.AnError}

	p, err := NewPurger(ms, Config{MaxAge: time.Hour}, testLogger())
	require.NoError(t, err)

	_, err = p.RunOnce(context.Background(), 0)
	require.Error(t, err)

	var opErr *schema.OutpostError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, schema.ErrCodeStore, opErr.Code)
}

func TestRunOnce_VacuumFailureNonFatal(t *testing.T) {
	ms := &mockPurgeStore{deleted: 3, vacuumErr: assert.AnError}

	p, err := NewPurger(ms, Config{MaxAge: time.Hour}, testLogger())
	require.NoError(t, err)

	purged, err := p.RunOnce(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), purged)
}

func TestStartStop(t *testing.T) {
	ms := &mockPurgeStore{}

	p, err := NewPurger(ms, Config{MaxAge: time.Hour, Schedule: "*/5 * * * *"}, testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))

	// Double start should error.
	err = p.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")

	require.NoError(t, p.Stop())

	// Stop again should be a no-op.
	require.NoError(t, p.Stop())
}

func TestStart_RequiresSchedule(t *testing.T) {
	ms := &mockPurgeStore{}

	p, err := NewPurger(ms, Config{MaxAge: time.Hour}, testLogger())
	require.NoError(t, err)

	err = p.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule is not configured")
}
