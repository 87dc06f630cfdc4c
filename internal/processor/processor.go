// Package processor runs the post-processing pipeline for completed action
// executions: output validation against the runner and action schemas,
// schema-guided secret masking, triage rule evaluation and persistence.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/outpost/internal/catalog"
	"github.com/rendis/outpost/internal/expressions"
	"github.com/rendis/outpost/internal/logging"
	"github.com/rendis/outpost/internal/masking"
	"github.com/rendis/outpost/internal/rules"
	"github.com/rendis/outpost/internal/secrets"
	"github.com/rendis/outpost/internal/store"
	"github.com/rendis/outpost/internal/validation"
	"github.com/rendis/outpost/pkg/schema"
)

// Submission is one completed action run handed to the processor.
type Submission struct {
	ID        string                 `json:"id,omitempty"`
	ActionRef string                 `json:"action_ref"`
	Status    schema.ExecutionStatus `json:"status"`
	Result    any                    `json:"result,omitempty"`
	StartedAt *time.Time             `json:"started_at,omitempty"`
	EndedAt   *time.Time             `json:"ended_at,omitempty"`
}

// Options configures pipeline behavior.
type Options struct {
	// ValidateOutput enables the layered schema checks for succeeded runs.
	ValidateOutput bool
	// MaskOnStore drops the raw result entirely; only the masked display
	// projection is persisted and show_secrets cannot recover the original.
	MaskOnStore bool
	// PoolSize bounds batch-processing concurrency.
	PoolSize int
}

// Config wires the processor's collaborators. Catalog, Store and Engines are
// required; Rules and Sealer are optional.
type Config struct {
	Catalog *catalog.Catalog
	Store   store.Store
	Engines *expressions.Engines
	Rules   *rules.Engine
	Sealer  secrets.Sealer
	Logger  *slog.Logger
	Options Options
}

// Processor applies the processing pipeline and serves the read side.
type Processor struct {
	catalog   *catalog.Catalog
	store     store.Store
	engines   *expressions.Engines
	rules     *rules.Engine
	sealer    secrets.Sealer
	validator *validation.OutputValidator
	pool      *WorkerPool
	opts      Options
	logger    *slog.Logger
}

// New builds a Processor from its configuration.
func New(cfg Config) (*Processor, error) {
	if cfg.Catalog == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "processor requires a catalog")
	}
	if cfg.Store == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "processor requires a store")
	}
	if cfg.Engines == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "processor requires expression engines")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		catalog:   cfg.Catalog,
		store:     cfg.Store,
		engines:   cfg.Engines,
		rules:     cfg.Rules,
		sealer:    cfg.Sealer,
		validator: validation.NewOutputValidator(validation.NewChecker(), logger),
		pool:      NewWorkerPool(cfg.Options.PoolSize),
		opts:      cfg.Options,
		logger:    logger,
	}, nil
}

// Process runs one submission through the pipeline and returns the stored
// record. The returned record carries the display projection; raw result
// bytes never leave the store through this path.
func (p *Processor) Process(ctx context.Context, sub Submission) (*store.Execution, error) {
	if sub.ActionRef == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "action_ref is required")
	}
	if !sub.Status.Known() {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown execution status %q", sub.Status)
	}
	if !sub.Status.IsTerminal() {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "execution status %q is not terminal", sub.Status)
	}

	action, err := p.catalog.Action(sub.ActionRef)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeCatalog, "action %q is not registered", sub.ActionRef).WithCause(err)
	}
	runner, err := p.catalog.ResolveRunner(action)
	if err != nil {
		return nil, err
	}

	id := sub.ID
	if id == "" {
		id = uuid.New().String()
	}
	ctx = logging.WithExecutionID(logging.WithActionRef(ctx, action.Ref), id)

	result, status := sub.Result, sub.Status

	var rawJSON json.RawMessage
	if sub.Result != nil {
		rawJSON, err = json.Marshal(sub.Result)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeProcess, "cannot encode result").WithCause(err).WithExecution(id)
		}
	}

	validationRan := false
	var payloadJSON json.RawMessage
	if p.opts.ValidateOutput && status == schema.StatusSucceeded {
		validationRan = true
		result, status = p.validator.ValidateOutput(ctx, runner.OutputSchema, action.OutputSchema, result, status, runner.OutputKey)
	}
	validationFailed := validationRan && status == schema.StatusFailed

	resultJSON := rawJSON
	if validationFailed {
		payloadJSON, err = json.Marshal(result)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeProcess, "cannot encode validation payload").WithCause(err).WithExecution(id)
		}
		resultJSON = payloadJSON
	}

	display := masking.MaskWithSchema(action.OutputSchema, runner.OutputKey, result)
	var displayJSON json.RawMessage
	if display != nil {
		displayJSON, err = json.Marshal(display)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeProcess, "cannot encode display result").WithCause(err).WithExecution(id)
		}
	}
	masked := !bytes.Equal(displayJSON, resultJSON)

	exec := &store.Execution{
		ID:              id,
		ActionRef:       action.Ref,
		RunnerType:      runner.Name,
		Status:          status,
		Result:          displayJSON,
		ValidationError: payloadJSON,
		StartedAt:       sub.StartedAt,
		EndedAt:         sub.EndedAt,
	}

	// The raw result is kept (sealed when possible) unless mask_on_store
	// says only the masked projection may exist at rest.
	if !p.opts.MaskOnStore && len(rawJSON) > 0 {
		if p.sealer != nil {
			sealed, err := p.sealer.Seal(rawJSON)
			if err != nil {
				return nil, schema.NewError(schema.ErrCodeSeal, "cannot seal raw result").WithCause(err).WithExecution(id)
			}
			exec.ResultRaw, exec.Sealed = sealed, true
		} else {
			exec.ResultRaw = rawJSON
		}
	}

	var matches []rules.Match
	if p.rules != nil {
		scope := expressions.BuildScope(&schema.ActionExecution{
			ID:        id,
			ActionRef: action.Ref,
			Action:    *action,
			Runner:    *runner,
			Status:    status,
			StartedAt: sub.StartedAt,
			EndedAt:   sub.EndedAt,
		}, result)
		matches = p.rules.Evaluate(ctx, scope)
		exec.Tags = mergeTags(matches)
	}

	if err := p.store.CreateExecution(ctx, exec); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "cannot store execution %s", id).WithCause(err)
	}

	if validationRan {
		if validationFailed {
			p.appendHistory(ctx, id, schema.EventOutputValidationFailed, payloadJSON)
		} else {
			p.appendHistory(ctx, id, schema.EventOutputValidated, nil)
		}
	}
	if masked {
		p.appendHistory(ctx, id, schema.EventOutputMasked, nil)
	}
	for _, m := range matches {
		payload, err := json.Marshal(m)
		if err != nil {
			continue
		}
		p.appendHistory(ctx, id, schema.EventRuleMatched, payload)
	}
	p.appendHistory(ctx, id, schema.EventExecutionRecorded, nil)

	p.logger.InfoContext(ctx, "execution processed",
		"status", string(status),
		"validation_failed", validationFailed,
		"masked", masked,
		"rules_matched", len(matches),
	)

	exec.ResultRaw = nil
	return exec, nil
}

// BatchResult pairs one submission's outcome with its input position.
type BatchResult struct {
	Execution *store.Execution `json:"execution,omitempty"`
	Err       error            `json:"-"`
}

// ProcessBatch fans submissions out through the worker pool, preserving
// input order in the returned slice.
func (p *Processor) ProcessBatch(ctx context.Context, subs []Submission) []BatchResult {
	results := make([]BatchResult, len(subs))
	for i, sub := range subs {
		if err := p.pool.Submit(ctx, func(ctx context.Context) error {
			exec, err := p.Process(ctx, sub)
			results[i] = BatchResult{Execution: exec, Err: err}
			return err
		}); err != nil {
			results[i] = BatchResult{Err: err}
		}
	}
	p.pool.Wait()
	return results
}

// GetOptions controls the read-side projection of a stored execution.
type GetOptions struct {
	// ShowSecrets replaces the display projection with the raw result,
	// unsealing it when needed.
	ShowSecrets bool
	// Key projects the result through a jq path (e.g. "output.instance_id").
	Key string
}

// Get fetches one execution. The result is the masked display projection
// unless ShowSecrets is set and a raw result is available.
func (p *Processor) Get(ctx context.Context, id string, opts GetOptions) (*store.Execution, error) {
	exec, err := p.store.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}

	if opts.ShowSecrets && len(exec.ResultRaw) > 0 {
		raw := exec.ResultRaw
		if exec.Sealed {
			if p.sealer == nil {
				return nil, schema.NewError(schema.ErrCodeSeal,
					"result is sealed and no sealer is configured").WithExecution(id)
			}
			raw, err = p.sealer.Open(raw)
			if err != nil {
				return nil, err
			}
		}
		exec.Result = json.RawMessage(raw)
	}
	exec.ResultRaw = nil

	if opts.Key != "" {
		projected, err := p.projectKey(ctx, exec.Result, opts.Key)
		if err != nil {
			return nil, err
		}
		exec.Result = projected
	}

	return exec, nil
}

// History returns the processing events recorded for an execution.
func (p *Processor) History(ctx context.Context, id string) ([]*store.HistoryEvent, error) {
	if _, err := p.store.GetExecution(ctx, id); err != nil {
		return nil, err
	}
	return p.store.GetHistory(ctx, id, 0)
}

// Query lists executions matching the filter, with display projections only.
func (p *Processor) Query(ctx context.Context, filter store.ExecutionFilter) ([]*store.Execution, error) {
	execs, err := p.store.ListExecutions(ctx, filter)
	if err != nil {
		return nil, err
	}
	for _, e := range execs {
		e.ResultRaw = nil
	}
	return execs, nil
}

// Metrics returns a snapshot of the worker pool metrics.
func (p *Processor) Metrics() PoolMetrics {
	return p.pool.Metrics()
}

// Shutdown drains the worker pool.
func (p *Processor) Shutdown() {
	p.pool.Shutdown()
}

// projectKey extracts a value from the result document via the jq engine.
func (p *Processor) projectKey(ctx context.Context, result json.RawMessage, key string) (json.RawMessage, error) {
	if len(result) == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeProcess, "execution has no result to project %q from", key)
	}
	var doc any
	if err := json.Unmarshal(result, &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeProcess, "stored result is not valid JSON").WithCause(err)
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeProcess, "result is not an object; cannot project %q", key)
	}

	query := key
	if !strings.HasPrefix(query, ".") {
		query = "." + query
	}
	out, err := p.engines.JQ.Evaluate(ctx, query, m)
	if err != nil {
		return nil, err
	}

	b, err := json.Marshal(out)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeProcess, "cannot encode projected result").WithCause(err)
	}
	return b, nil
}

func (p *Processor) appendHistory(ctx context.Context, execID, eventType string, payload json.RawMessage) {
	err := p.store.AppendHistory(ctx, &store.HistoryEvent{
		ExecutionID: execID,
		Type:        eventType,
		Payload:     payload,
	})
	if err != nil {
		p.logger.WarnContext(ctx, "cannot append history event", "event_type", eventType, "error", err)
	}
}

// mergeTags flattens match tags, deduplicating while preserving order.
func mergeTags(matches []rules.Match) []string {
	var tags []string
	seen := make(map[string]struct{})
	for _, m := range matches {
		for _, tag := range m.Tags {
			if _, dup := seen[tag]; dup {
				continue
			}
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}
	}
	return tags
}
