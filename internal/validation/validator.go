package validation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SchemaChecker is the capability the output validator needs from a schema
// engine: check one document against one schema. A nil violation with a nil
// error is a clean pass; a non-nil error means the check itself could not
// run (unusable schema, unserializable document) and the caller decides
// whether that skips or fails the layer.
type SchemaChecker interface {
	Check(rawSchema map[string]any, instance any) (*Violation, error)
}

// Violation describes a failed schema check: the engine's leaf violation
// messages plus the schema fragment and instance used to render the stored
// diagnostic.
type Violation struct {
	Messages []string
	Schema   map[string]any
	Instance any
}

// Diagnostic renders the violation in the layout persisted with failed
// executions: violation messages, the offending schema fragment, and the
// instance that failed it. The exact layout is not a stable contract;
// consumers match on substrings only.
func (v *Violation) Diagnostic() string {
	var b strings.Builder
	b.WriteString(strings.Join(v.Messages, "\n"))
	b.WriteString("\n\nFailed validating output against schema:\n")
	b.WriteString(indentJSON(v.Schema))
	b.WriteString("\n\nOn instance:\n")
	b.WriteString(indentJSON(v.Instance))
	return b.String()
}

func indentJSON(v any) string {
	b, err := json.MarshalIndent(v, "    ", "  ")
	if err != nil {
		return fmt.Sprintf("    %v", v)
	}
	return "    " + string(b)
}
