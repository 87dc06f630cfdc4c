package schema

import (
	"fmt"
	"strings"
)

// ActionSpec describes a registered action: identity, its runner binding and
// the schema its result output must satisfy. Loaded from catalog metadata.
type ActionSpec struct {
	Ref          string         `json:"ref" yaml:"ref"`
	Pack         string         `json:"pack,omitempty" yaml:"pack"`
	Name         string         `json:"name" yaml:"name"`
	Description  string         `json:"description,omitempty" yaml:"description"`
	RunnerType   string         `json:"runner_type" yaml:"runner_type"`
	OutputSchema map[string]any `json:"output_schema,omitempty" yaml:"output_schema"`
}

// Resolve fills Ref from Pack and Name when absent (and the reverse) and
// checks the fields the rest of the system depends on.
func (a *ActionSpec) Resolve() error {
	if a.Ref == "" {
		if a.Pack == "" || a.Name == "" {
			return NewError(ErrCodeCatalog, "action needs either ref or pack+name")
		}
		a.Ref = fmt.Sprintf("%s.%s", a.Pack, a.Name)
	} else if a.Pack == "" && a.Name == "" {
		if pack, name, ok := strings.Cut(a.Ref, "."); ok {
			a.Pack = pack
			a.Name = name
		} else {
			a.Name = a.Ref
		}
	}
	if a.RunnerType == "" {
		return NewErrorf(ErrCodeCatalog, "action %s has no runner_type", a.Ref)
	}
	return nil
}

// RunnerSpec describes a runner type: where action output lives inside the
// result envelope and the schema of the envelope itself.
type RunnerSpec struct {
	Name         string         `json:"name" yaml:"name"`
	Description  string         `json:"description,omitempty" yaml:"description"`
	OutputKey    string         `json:"output_key,omitempty" yaml:"output_key"`
	OutputSchema map[string]any `json:"output_schema,omitempty" yaml:"output_schema"`
}
