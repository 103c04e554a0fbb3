package workflow

import (
	"encoding/json"

	"github.com/CodeGandee/invokeai-go-client/pkg/fields"
	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// Input is one discovered workflow input. Index is assigned in form-tree
// visit order and is the stable address callers use; appending elements to
// the end of the form never renumbers earlier inputs.
type Input struct {
	Index     int          `json:"index"`
	NodeID    string       `json:"node_id"`
	NodeLabel string       `json:"node_label"`
	FieldName string       `json:"field_name"`
	Label     string       `json:"label"`
	Kind      fields.Kind  `json:"kind"`
	Required  bool         `json:"required"`
	Field     fields.Field `json:"-"`

	// original is the canonical render of the field as loaded; nil when the
	// export carried nothing renderable. Build writes only values that drift
	// from it.
	original json.RawMessage
}

// Identifier returns the node/field pair the input addresses.
func (in *Input) Identifier() schema.FieldIdentifier {
	return schema.FieldIdentifier{NodeID: in.NodeID, FieldName: in.FieldName}
}

// pendingValue reports whether the field's current value differs from the
// as-loaded render, and if so returns the JSON value to write into the
// submission clone.
func (in *Input) pendingValue() (any, bool, error) {
	v, err := in.Field.JSONValue()
	if err != nil {
		if in.original == nil {
			// Never renderable and never set; the exported literal (or
			// absence of one) stands.
			return nil, false, nil
		}
		return nil, false, err
	}

	buf, err := json.Marshal(v)
	if err != nil {
		return nil, false, schema.NewErrorf(schema.ErrCodeInternal,
			"input %d (%s): render not serializable: %v", in.Index, in.Identifier(), err).WithCause(err)
	}
	if in.original != nil && string(buf) == string(in.original) {
		return nil, false, nil
	}
	return v, true, nil
}

// discover walks the form tree and materializes one Input per node-field
// leaf, in depth-first pre-order with container children in stored order.
// Form-less exports fall back to the legacy exposedFields list.
func discover(def *schema.WorkflowDefinition, reg *fields.Registry) ([]*Input, error) {
	idents, err := collectIdentifiers(def)
	if err != nil {
		return nil, err
	}

	inputs := make([]*Input, 0, len(idents))
	for i, fi := range idents {
		in, err := buildInput(def, reg, i, fi)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// collectIdentifiers resolves the ordered field identifiers the form (or the
// legacy list) exposes. Broken references are fatal: they mean the export is
// corrupt or from an incompatible version, and silent skips would shift every
// later index.
func collectIdentifiers(def *schema.WorkflowDefinition) ([]schema.FieldIdentifier, error) {
	if def.Form == nil {
		return legacyIdentifiers(def)
	}

	if _, ok := def.Element(schema.FormRootID); !ok {
		return nil, schema.NewError(schema.ErrCodeDiscovery, "form has no root element")
	}

	var out []schema.FieldIdentifier
	seen := make(map[string]bool)

	var walk func(id string) error
	walk = func(id string) error {
		if seen[id] {
			return nil
		}
		seen[id] = true

		el, ok := def.Element(id)
		if !ok {
			return schema.NewErrorf(schema.ErrCodeDiscovery, "form element %q does not exist", id)
		}

		switch el.Type {
		case schema.ElementTypeContainer:
			for _, child := range el.Data.Children {
				if err := walk(child); err != nil {
					return err
				}
			}
		case schema.ElementTypeNodeField:
			if el.Data.FieldIdentifier == nil {
				return schema.NewErrorf(schema.ErrCodeDiscovery, "form element %q has no field identifier", id)
			}
			fi := *el.Data.FieldIdentifier
			node, ok := def.Node(fi.NodeID)
			if !ok {
				return schema.NewErrorf(schema.ErrCodeDiscovery,
					"form element %q references non-existent node %q", id, fi.NodeID).WithNode(fi.NodeID)
			}
			if _, ok := node.Data.Inputs[fi.FieldName]; !ok {
				return schema.NewErrorf(schema.ErrCodeDiscovery,
					"form element %q references missing field %s", id, fi).WithNode(fi.NodeID)
			}
			out = append(out, fi)
		}
		// Dividers, headings and text are presentation only.
		return nil
	}

	if err := walk(schema.FormRootID); err != nil {
		return nil, err
	}
	return out, nil
}

// legacyIdentifiers handles pre-form exports: the exposedFields list in
// stored order, with the same broken-reference policy as the form walk.
func legacyIdentifiers(def *schema.WorkflowDefinition) ([]schema.FieldIdentifier, error) {
	if len(def.ExposedFields) == 0 {
		return nil, nil
	}

	out := make([]schema.FieldIdentifier, 0, len(def.ExposedFields))
	for i, fi := range def.ExposedFields {
		node, ok := def.Node(fi.NodeID)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeDiscovery,
				"exposedFields[%d] references non-existent node %q", i, fi.NodeID).WithNode(fi.NodeID)
		}
		if _, ok := node.Data.Inputs[fi.FieldName]; !ok {
			return nil, schema.NewErrorf(schema.ErrCodeDiscovery,
				"exposedFields[%d] references missing field %s", i, fi).WithNode(fi.NodeID)
		}
		out = append(out, fi)
	}
	return out, nil
}

// buildInput assembles the detection record for one identifier and runs the
// registry over it. Node and field existence were checked during collection.
func buildInput(def *schema.WorkflowDefinition, reg *fields.Registry, index int, fi schema.FieldIdentifier) (*Input, error) {
	node, _ := def.Node(fi.NodeID)
	raw, _ := def.Input(fi)

	fs := &fields.FieldSchema{
		NodeID:    fi.NodeID,
		NodeType:  node.Data.Type,
		FieldName: fi.FieldName,
		Label:     raw.Label,
		Value:     raw.Value,
		Connected: def.HasIncomingEdge(fi.NodeID, fi.FieldName),
	}
	if raw.Type != nil {
		fs.DeclaredType = raw.Type.Name
	}

	f, err := reg.Build(fs)
	if err != nil {
		return nil, err
	}

	in := &Input{
		Index:     index,
		NodeID:    fi.NodeID,
		NodeLabel: def.NodeLabel(fi.NodeID),
		FieldName: fi.FieldName,
		Label:     raw.Label,
		Kind:      f.Kind(),
		Field:     f,
		Required:  !fs.Connected && !fs.HasValue() && fields.Empty(f),
	}
	if in.Label == "" {
		in.Label = fi.FieldName
	}

	if v, err := f.JSONValue(); err == nil {
		if buf, err := json.Marshal(v); err == nil {
			in.original = buf
		}
	}
	return in, nil
}

// ListInputs returns the discovered inputs in index order.
func (h *Handle) ListInputs() []*Input {
	out := make([]*Input, len(h.inputs))
	copy(out, h.inputs)
	return out
}

// InputCount returns the number of discovered inputs.
func (h *Handle) InputCount() int {
	return len(h.inputs)
}

// Input returns the input at the given index.
func (h *Handle) Input(i int) (*Input, error) {
	if i < 0 || i >= len(h.inputs) {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound,
			"input index %d out of range (workflow has %d inputs)", i, len(h.inputs))
	}
	return h.inputs[i], nil
}

// InputByField returns the input addressing the given node field, when that
// field is exposed.
func (h *Handle) InputByField(nodeID, fieldName string) (*Input, bool) {
	in, ok := h.byField[schema.FieldIdentifier{NodeID: nodeID, FieldName: fieldName}]
	return in, ok
}

// GetInputValue returns the current value of the input at the given index:
// the native value for value-bearing fields, the JSON render otherwise.
func (h *Handle) GetInputValue(i int) (any, error) {
	in, err := h.Input(i)
	if err != nil {
		return nil, err
	}
	if vf, ok := in.Field.(fields.ValueField); ok {
		return vf.Value(), nil
	}
	return in.Field.JSONValue()
}

// SetInputValue assigns a new value to the input at the given index,
// funneled through the field's own coercions. Attribute-bearing fields
// (model identifiers, colors, bounding boxes) are mutated through their
// typed accessors instead.
func (h *Handle) SetInputValue(i int, v any) error {
	in, err := h.Input(i)
	if err != nil {
		return err
	}
	vf, ok := in.Field.(fields.ValueField)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"input %d (%s) is %s and takes no direct value", i, in.Identifier(), in.Field.Kind()).
			WithNode(in.NodeID)
	}
	return vf.SetValue(v)
}
