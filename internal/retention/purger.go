// Package retention removes executions that have aged out of their
// retention window.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/outpost/internal/store"
	"github.com/rendis/outpost/pkg/schema"
)

// Config controls what the purger removes and when.
type Config struct {
	// Schedule is a five-field cron expression for recurring purges.
	// Empty disables the background loop; RunOnce still works.
	Schedule string
	// MaxAge is how long finished executions are kept.
	MaxAge time.Duration
	// Statuses restricts purging to the given terminal statuses.
	// Empty purges every aged execution regardless of status.
	Statuses []schema.ExecutionStatus
}

// Purger deletes executions past their retention window on a cron
// schedule, reclaiming database space afterwards.
type Purger struct {
	store    store.Store
	cfg      Config
	schedule cron.Schedule
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

// NewPurger creates a Purger. The schedule, when set, must parse as a
// standard five-field cron expression and every configured status must
// be terminal.
func NewPurger(s store.Store, cfg Config, logger *slog.Logger) (*Purger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAge <= 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "retention max_age must be positive")
	}
	for _, status := range cfg.Statuses {
		if !status.IsTerminal() {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"retention status %q is not terminal", status)
		}
	}

	p := &Purger{store: s, cfg: cfg, logger: logger}
	if cfg.Schedule != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		schedule, err := parser.Parse(cfg.Schedule)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"parse retention schedule %q: %s", cfg.Schedule, err.Error()).WithCause(err)
		}
		p.schedule = schedule
	}
	return p, nil
}

// NextRun reports when the schedule fires next after from.
func (p *Purger) NextRun(from time.Time) (time.Time, bool) {
	if p.schedule == nil {
		return time.Time{}, false
	}
	return p.schedule.Next(from), true
}

// Start launches the background purge loop.
func (p *Purger) Start(ctx context.Context) error {
	if p.schedule == nil {
		return schema.NewError(schema.ErrCodeValidation, "retention schedule is not configured")
	}

	p.mu.Lock()
	if p.done != nil {
		p.mu.Unlock()
		return fmt.Errorf("purger already started")
	}
	purgeCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.mu.Unlock()

	go p.loop(purgeCtx)
	p.logger.Info("retention purger started",
		slog.String("schedule", p.cfg.Schedule),
		slog.Duration("max_age", p.cfg.MaxAge),
	)
	return nil
}

func (p *Purger) loop(ctx context.Context) {
	defer close(p.done)

	timer := time.NewTimer(p.untilNext(time.Now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if _, err := p.RunOnce(ctx, 0); err != nil {
				p.logger.Error("scheduled purge failed", slog.String("error", err.Error()))
			}
			timer.Reset(p.untilNext(time.Now()))
		}
	}
}

func (p *Purger) untilNext(now time.Time) time.Duration {
	return p.schedule.Next(now).Sub(now)
}

// RunOnce purges executions whose retention window has passed and
// reclaims file space when anything was removed. A non-positive maxAge
// falls back to the configured one.
func (p *Purger) RunOnce(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		maxAge = p.cfg.MaxAge
	}
	cutoff := time.Now().UTC().Add(-maxAge)

	purged, err := p.store.DeleteOlderThan(ctx, cutoff, p.cfg.Statuses)
	if err != nil {
		return 0, schema.NewError(schema.ErrCodeStore, "purge executions").WithCause(err)
	}
	if purged > 0 {
		if err := p.store.Vacuum(ctx); err != nil {
			p.logger.Warn("vacuum after purge failed", slog.String("error", err.Error()))
		}
	}

	p.logger.Info("executions purged",
		slog.String("event", schema.EventExecutionsPurged),
		slog.Int64("purged", purged),
		slog.Time("cutoff", cutoff),
	)
	return purged, nil
}

// Stop gracefully shuts down the purge loop.
func (p *Purger) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel == nil {
		return nil
	}

	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil

	p.logger.Info("retention purger stopped")
	return nil
}
