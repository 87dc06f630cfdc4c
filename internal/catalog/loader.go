package catalog

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rendis/outpost/pkg/schema"
)

// RunnersFile is the reserved file name for custom runner type definitions
// inside a catalog directory.
const RunnersFile = "runners.yaml"

// runnersDoc is the on-disk shape of runners.yaml.
type runnersDoc struct {
	Runners []*schema.RunnerSpec `yaml:"runners"`
}

// LoadDir populates the catalog from a directory of YAML files.
// runners.yaml (when present) is loaded first and may add custom runner
// types; every other *.yaml / *.yml file holds one action spec.
// Returns the number of actions registered.
func (c *Catalog) LoadDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeCatalog,
			"cannot read catalog directory %q: %s", dir, err.Error()).WithCause(err)
	}

	var actionFiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if name == RunnersFile {
			if err := c.loadRunnersFile(filepath.Join(dir, name)); err != nil {
				return 0, err
			}
			continue
		}
		actionFiles = append(actionFiles, filepath.Join(dir, name))
	}
	sort.Strings(actionFiles)

	loaded := 0
	for _, path := range actionFiles {
		if err := ctx.Err(); err != nil {
			return loaded, err
		}
		if err := c.loadActionFile(path); err != nil {
			return loaded, err
		}
		loaded++
	}

	c.logger.InfoContext(ctx, "catalog loaded",
		"dir", dir, "actions", loaded, "runners", len(c.ListRunners()))
	return loaded, nil
}

// loadActionFile reads and registers a single action spec.
func (c *Catalog) loadActionFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeCatalog,
			"cannot read action file %q: %s", path, err.Error()).WithCause(err)
	}

	spec := &schema.ActionSpec{}
	if err := yaml.Unmarshal(data, spec); err != nil {
		return schema.NewErrorf(schema.ErrCodeCatalog,
			"cannot parse action file %q: %s", path, err.Error()).WithCause(err)
	}

	if err := c.RegisterAction(spec); err != nil {
		return schema.NewErrorf(schema.ErrCodeCatalog,
			"cannot register action from %q: %s", path, err.Error()).WithCause(err)
	}
	return nil
}

// loadRunnersFile reads runners.yaml and registers each custom runner type.
func (c *Catalog) loadRunnersFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeCatalog,
			"cannot read runners file %q: %s", path, err.Error()).WithCause(err)
	}

	doc := runnersDoc{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return schema.NewErrorf(schema.ErrCodeCatalog,
			"cannot parse runners file %q: %s", path, err.Error()).WithCause(err)
	}

	for _, runner := range doc.Runners {
		if err := c.RegisterRunner(runner); err != nil {
			return schema.NewErrorf(schema.ErrCodeCatalog,
				"cannot register runner from %q: %s", path, err.Error()).WithCause(err)
		}
	}
	return nil
}
