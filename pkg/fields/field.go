// Package fields maps exported node inputs onto typed, validating field
// values. Detection is data-driven: a registry of prioritized rules inspects
// an explicit FieldSchema record, never reflection over live graph objects.
package fields

import (
	"encoding/json"

	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// Kind identifies a field variant.
type Kind string

const (
	KindString          Kind = "string"
	KindInteger         Kind = "integer"
	KindFloat           Kind = "float"
	KindBoolean         Kind = "boolean"
	KindEnum            Kind = "enum"
	KindImage           Kind = "image"
	KindBoard           Kind = "board"
	KindLatents         Kind = "latents"
	KindTensor          Kind = "tensor"
	KindModelIdentifier Kind = "model_identifier"
	KindModelConfig     Kind = "model_config"
	KindColor           Kind = "color"
	KindBoundingBox     Kind = "bounding_box"
	KindCollection      Kind = "collection"
)

// Field is one typed workflow input.
type Field interface {
	// Kind reports the variant.
	Kind() Kind
	// Validate checks the current state against the variant's constraints.
	Validate() error
	// JSONValue renders the state as the JSON value written into the graph.
	JSONValue() (any, error)
}

// ValueField is implemented by value-bearing variants. Attribute-bearing
// variants (model identifier, color, bounding box) expose their attributes
// directly instead.
type ValueField interface {
	Field
	Value() any
	SetValue(v any) error
}

// FieldSchema is the record a detection rule inspects. It is assembled from
// the export by the discovery engine; rules must not consult anything beyond
// it, so detection for one input can never depend on sibling inputs.
type FieldSchema struct {
	NodeID       string
	NodeType     string // invocation type of the owning node
	FieldName    string
	Label        string
	DeclaredType string // export type tag when present, e.g. "IntegerField"
	Value        json.RawMessage
	Choices      []string // enum options when known
	Connected    bool     // input is fed by an edge, not a literal
	Constraints  *Constraints
}

// Constraints are optional bounds attached to a field.
type Constraints struct {
	Minimum    *float64
	Maximum    *float64
	MultipleOf *float64
	MinLength  *int
	MaxLength  *int
}

// HasValue reports whether the schema carries a usable literal.
func (s *FieldSchema) HasValue() bool {
	return len(s.Value) > 0 && string(s.Value) != "null"
}

// decodeValue unmarshals the schema's literal into out. Callers must have
// checked HasValue first.
func (s *FieldSchema) decodeValue(out any) error {
	if err := json.Unmarshal(s.Value, out); err != nil {
		return schema.NewErrorf(schema.ErrCodeDiscovery, "field %s.%s: bad literal: %v", s.NodeID, s.FieldName, err).
			WithNode(s.NodeID).WithCause(err)
	}
	return nil
}

// valueObject returns the literal as a JSON object, or nil when the literal
// is absent or not an object.
func (s *FieldSchema) valueObject() map[string]any {
	if !s.HasValue() {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(s.Value, &m); err != nil {
		return nil
	}
	return m
}

// Empty reports whether a field currently holds no submittable value. Used
// for required-ness checks; numeric and boolean variants are never empty.
func Empty(f Field) bool {
	switch t := f.(type) {
	case *StringField:
		return t.Val == ""
	case *EnumField:
		return t.Val == ""
	case *ImageField:
		return t.Name == ""
	case *LatentsField:
		return t.Name == ""
	case *TensorField:
		return t.Name == ""
	case *ModelIdentifierField:
		return t.Key == "" && t.Name == ""
	case *ModelConfigField:
		return len(t.Raw) == 0
	case *CollectionField:
		return len(t.Items) == 0
	}
	return false
}
