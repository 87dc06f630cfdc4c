package schema

// MaskSentinel is the fixed literal that replaces secret-marked output
// values. Display and alerting layers match on this exact string, so its
// shape must never change.
const MaskSentinel = "********"

// OutputSchema is a classified output schema node. Instances come from
// Classify and are always well-formed; a failed classification yields no
// node at all, and callers treat the schema as absent.
type OutputSchema struct {
	Type       string
	Secret     bool
	Properties map[string]*OutputSchema

	// AdditionalProperties is tri-state: nil when the keyword is absent or
	// carries a non-boolean schema form.
	AdditionalProperties *bool
}

// Walkable reports whether the node is object-typed with declared
// properties, i.e. eligible for a field-level masking walk.
func (s *OutputSchema) Walkable() bool {
	return s != nil && s.Type == "object" && len(s.Properties) > 0
}

// HasSecrets reports whether the node or any nested property carries the
// secret flag.
func (s *OutputSchema) HasSecrets() bool {
	if s == nil {
		return false
	}
	if s.Secret {
		return true
	}
	for _, prop := range s.Properties {
		if prop.HasSecrets() {
			return true
		}
	}
	return false
}

// Classify inspects a raw output schema exactly once and either returns its
// parsed node tree or reports it malformed. Malformed shapes include the
// legacy flat properties-only mapping (no type wrapper at the root), a
// bare-string property descriptor anywhere in the tree, a non-mapping
// properties value, and a non-boolean secret flag. Every downstream
// decision dispatches on this single result instead of re-inspecting the
// raw mapping.
func Classify(raw any) (*OutputSchema, bool) {
	root, ok := raw.(map[string]any)
	if !ok || len(root) == 0 {
		return nil, false
	}
	if _, present := root["type"]; !present {
		return nil, false
	}
	return classifyNode(root)
}

func classifyNode(node map[string]any) (*OutputSchema, bool) {
	out := &OutputSchema{}

	if v, present := node["type"]; present {
		t, ok := v.(string)
		if !ok {
			return nil, false
		}
		out.Type = t
	}

	if v, present := node["secret"]; present {
		b, ok := v.(bool)
		if !ok {
			return nil, false
		}
		out.Secret = b
	}

	if v, present := node["additionalProperties"]; present {
		if b, ok := v.(bool); ok {
			out.AdditionalProperties = &b
		}
	}

	if v, present := node["properties"]; present {
		props, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		out.Properties = make(map[string]*OutputSchema, len(props))
		for name, rawProp := range props {
			propNode, ok := rawProp.(map[string]any)
			if !ok {
				return nil, false
			}
			child, childOK := classifyNode(propNode)
			if !childOK {
				return nil, false
			}
			out.Properties[name] = child
		}
	}

	return out, true
}
