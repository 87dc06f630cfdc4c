// Package catalog holds the registered action and runner type metadata used
// to post-process execution results. Actions carry optional output schemas,
// runners declare where action output lives inside the result envelope.
package catalog

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/rendis/outpost/pkg/schema"
)

// ActionInfo is the listing view of a registered action.
type ActionInfo struct {
	Ref             string `json:"ref"`
	Description     string `json:"description,omitempty"`
	RunnerType      string `json:"runner_type"`
	HasOutputSchema bool   `json:"has_output_schema"`
	MasksSecrets    bool   `json:"masks_secrets"`
}

// RunnerInfo is the listing view of a registered runner type.
type RunnerInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	OutputKey   string `json:"output_key"`
}

// Catalog is the thread-safe action and runner registry.
type Catalog struct {
	mu      sync.RWMutex
	actions map[string]*schema.ActionSpec
	runners map[string]*schema.RunnerSpec
	logger  *slog.Logger
}

// NewCatalog creates a Catalog pre-populated with the built-in runner types.
func NewCatalog(logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Catalog{
		actions: make(map[string]*schema.ActionSpec),
		runners: make(map[string]*schema.RunnerSpec),
		logger:  logger,
	}
	for _, r := range BuiltinRunners() {
		c.runners[r.Name] = r
	}
	return c
}

// RegisterAction adds an action to the catalog. Returns error on duplicate ref
// or unknown runner type. A malformed output schema does not block
// registration; it is logged and secret masking stays disabled for the action.
func (c *Catalog) RegisterAction(spec *schema.ActionSpec) error {
	if spec == nil {
		return schema.NewError(schema.ErrCodeValidation, "action spec is nil")
	}
	if err := spec.Resolve(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.actions[spec.Ref]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "action %q already registered", spec.Ref)
	}
	if _, exists := c.runners[spec.RunnerType]; !exists {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"action %q references unknown runner type %q", spec.Ref, spec.RunnerType)
	}

	if spec.OutputSchema != nil {
		if _, ok := schema.Classify(spec.OutputSchema); !ok {
			c.logger.Warn("action output schema is malformed; secret masking disabled",
				"action_ref", spec.Ref)
		}
	}

	c.actions[spec.Ref] = spec
	return nil
}

// RegisterRunner adds a runner type to the catalog. Returns error on duplicate name.
func (c *Catalog) RegisterRunner(spec *schema.RunnerSpec) error {
	if spec == nil {
		return schema.NewError(schema.ErrCodeValidation, "runner spec is nil")
	}
	if spec.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "runner name is empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.runners[spec.Name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "runner type %q already registered", spec.Name)
	}

	c.runners[spec.Name] = spec
	return nil
}

// Action retrieves an action spec by ref.
func (c *Catalog) Action(ref string) (*schema.ActionSpec, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	spec, ok := c.actions[ref]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "action %q not registered", ref)
	}
	return spec, nil
}

// Runner retrieves a runner spec by name.
func (c *Catalog) Runner(name string) (*schema.RunnerSpec, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	spec, ok := c.runners[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "runner type %q not registered", name)
	}
	return spec, nil
}

// ResolveRunner returns the runner spec for an action's runner type.
func (c *Catalog) ResolveRunner(action *schema.ActionSpec) (*schema.RunnerSpec, error) {
	if action == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "action spec is nil")
	}
	return c.Runner(action.RunnerType)
}

// ListActions returns info for all registered actions, sorted by ref.
func (c *Catalog) ListActions() []ActionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	infos := make([]ActionInfo, 0, len(c.actions))
	for _, a := range c.actions {
		info := ActionInfo{
			Ref:             a.Ref,
			Description:     a.Description,
			RunnerType:      a.RunnerType,
			HasOutputSchema: a.OutputSchema != nil,
		}
		if node, ok := schema.Classify(a.OutputSchema); ok {
			info.MasksSecrets = node.HasSecrets()
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Ref < infos[j].Ref
	})
	return infos
}

// ListRunners returns info for all registered runner types, sorted by name.
func (c *Catalog) ListRunners() []RunnerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	infos := make([]RunnerInfo, 0, len(c.runners))
	for _, r := range c.runners {
		infos = append(infos, RunnerInfo{
			Name:        r.Name,
			Description: r.Description,
			OutputKey:   r.OutputKey,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// HasAction checks if an action is registered.
func (c *Catalog) HasAction(ref string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.actions[ref]
	return ok
}

// ActionCount returns the number of registered actions.
func (c *Catalog) ActionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.actions)
}

// Replace swaps the catalog contents with freshly loaded specs.
// Built-in runners are always preserved. Used by Reload.
func (c *Catalog) replace(actions map[string]*schema.ActionSpec, runners map[string]*schema.RunnerSpec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = actions
	c.runners = runners
}

// Reload rebuilds the catalog from dir. The swap is atomic: on any load
// error the current contents stay untouched.
func (c *Catalog) Reload(ctx context.Context, dir string) (int, error) {
	fresh := NewCatalog(c.logger)
	n, err := fresh.LoadDir(ctx, dir)
	if err != nil {
		return 0, err
	}

	fresh.mu.RLock()
	actions := fresh.actions
	runners := fresh.runners
	fresh.mu.RUnlock()

	c.replace(actions, runners)
	return n, nil
}
