// Package rules evaluates triage rules against completed executions.
// Each rule holds a criteria expression in one of the supported dialects;
// when the criteria evaluates to boolean true, the rule's tags (after
// template resolution) are attached to the stored execution.
//
// Rule evaluation is defense in depth for the processing pipeline: a rule
// that errors, or whose criteria does not produce a boolean, is logged and
// skipped. Evaluate never fails the pipeline.
package rules

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/rendis/outpost/internal/expressions"
	"github.com/rendis/outpost/internal/logging"
	"github.com/rendis/outpost/pkg/schema"
)

// Rule is a single triage rule entry.
type Rule struct {
	Name     string   `yaml:"name" json:"name"`
	Dialect  string   `yaml:"dialect" json:"dialect"`
	Criteria string   `yaml:"criteria" json:"criteria"`
	Tags     []string `yaml:"tags" json:"tags"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// Match reports a rule whose criteria held, with its resolved tags.
type Match struct {
	Rule string   `json:"rule"`
	Tags []string `json:"tags"`
}

// Engine evaluates loaded rules over execution scopes.
type Engine struct {
	mu      sync.RWMutex
	rules   []Rule
	engines *expressions.Engines
	logger  *slog.Logger
}

// NewEngine creates a rule engine with no rules loaded.
func NewEngine(engines *expressions.Engines, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{engines: engines, logger: logger}
}

// LoadFile replaces the rule set with the rules from a YAML file.
// Every entry is validated up front: a name, a known dialect (empty defaults
// to cel) and a non-empty criteria are required.
func (e *Engine) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeValidation, "cannot read rules file %s", path).WithCause(err)
	}

	var doc ruleFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeValidation, "cannot parse rules file %s", path).WithCause(err)
	}

	for i := range doc.Rules {
		r := &doc.Rules[i]
		if r.Name == "" {
			return 0, schema.NewErrorf(schema.ErrCodeValidation, "rule %d has no name", i)
		}
		if r.Criteria == "" {
			return 0, schema.NewErrorf(schema.ErrCodeValidation, "rule %q has no criteria", r.Name)
		}
		if r.Dialect == "" {
			r.Dialect = "cel"
		}
		if _, err := e.engines.ByName(r.Dialect); err != nil {
			return 0, schema.NewErrorf(schema.ErrCodeValidation, "rule %q: unknown dialect %q", r.Name, r.Dialect)
		}
	}

	e.mu.Lock()
	e.rules = doc.Rules
	e.mu.Unlock()

	e.logger.Info("rules loaded", "path", path, "rules", len(doc.Rules))
	return len(doc.Rules), nil
}

// Rules returns a copy of the loaded rule set.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate runs every rule against the scope and returns the matches in rule
// order. Criteria must evaluate to boolean true to match; anything else
// (false, non-boolean, evaluation error) skips the rule.
func (e *Engine) Evaluate(ctx context.Context, scope map[string]any) []Match {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	var matches []Match
	for _, r := range rules {
		ruleCtx := logging.WithRuleName(ctx, r.Name)

		engine, err := e.engines.ByName(r.Dialect)
		if err != nil {
			e.logger.WarnContext(ruleCtx, "rule dialect unavailable", "rule", r.Name, "dialect", r.Dialect)
			continue
		}

		out, err := engine.Evaluate(ruleCtx, r.Criteria, scope)
		if err != nil {
			e.logger.WarnContext(ruleCtx, "rule criteria failed; skipping rule",
				"rule", r.Name, "error", err)
			continue
		}
		matched, ok := out.(bool)
		if !ok {
			e.logger.WarnContext(ruleCtx, "rule criteria did not produce a boolean; skipping rule",
				"rule", r.Name, "result_type", typeName(out))
			continue
		}
		if !matched {
			continue
		}

		matches = append(matches, Match{Rule: r.Name, Tags: e.resolveTags(ruleCtx, r, scope)})
	}
	return matches
}

// resolveTags renders each tag template against the scope. Tags that fail to
// resolve are dropped, not emitted raw.
func (e *Engine) resolveTags(ctx context.Context, r Rule, scope map[string]any) []string {
	tags := make([]string, 0, len(r.Tags))
	for _, tag := range r.Tags {
		if !expressions.HasTemplate(tag) {
			tags = append(tags, tag)
			continue
		}
		resolved, err := expressions.ResolveTemplate(tag, scope)
		if err != nil {
			e.logger.WarnContext(ctx, "rule tag template failed; dropping tag",
				"rule", r.Name, "tag", tag, "error", err)
			continue
		}
		tags = append(tags, resolved)
	}
	return tags
}

func typeName(v any) string {
	if v == nil {
		return "null"
	}
	switch v.(type) {
	case bool:
		return "boolean"
	case string:
		return "string"
	case float64, int, int64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	return "unknown"
}
