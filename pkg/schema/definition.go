package schema

import (
	"encoding/json"
	"fmt"
)

// FormRootID is the element ID of the form tree root in exported workflows.
const FormRootID = "root"

// Form element types. Only containers and node fields affect input
// discovery; the rest are presentation-only.
const (
	ElementTypeContainer = "container"
	ElementTypeNodeField = "node-field"
	ElementTypeDivider   = "divider"
	ElementTypeHeading   = "heading"
	ElementTypeText      = "text"
)

// Node types as they appear in exports. Non-invocation nodes carry no
// executable payload.
const (
	NodeTypeInvocation   = "invocation"
	NodeTypeNotes        = "notes"
	NodeTypeCurrentImage = "current_image"
)

// WorkflowDefinition is a parsed GUI workflow export. It is immutable after
// Parse: nothing in this package or its consumers writes through it, and the
// original serialized document is retained verbatim for round-tripping.
type WorkflowDefinition struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name"`
	Author      string          `json:"author,omitempty"`
	Description string          `json:"description,omitempty"`
	Version     string          `json:"version,omitempty"`
	Contact     string          `json:"contact,omitempty"`
	Tags        string          `json:"tags,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	Meta        WorkflowMeta    `json:"meta"`
	Nodes       []Node          `json:"nodes"`
	Edges       []Edge          `json:"edges"`
	Form        *Form           `json:"form,omitempty"`
	ExposedFields []FieldIdentifier `json:"exposedFields,omitempty"` // legacy, pre-form exports

	raw       []byte
	nodeIndex map[string]int
}

// WorkflowMeta carries the export format metadata.
type WorkflowMeta struct {
	Version  string `json:"version"`
	Category string `json:"category,omitempty"` // user | default
}

// Node is one graph node of the export.
type Node struct {
	ID   string   `json:"id"`
	Type string   `json:"type"` // invocation, notes, current_image
	Data NodeData `json:"data"`
}

// NodeData is the invocation payload of a node.
type NodeData struct {
	ID             string                `json:"id"`
	Type           string                `json:"type"` // invocation type, e.g. "compel", "denoise_latents"
	Version        string                `json:"version,omitempty"`
	Label          string                `json:"label,omitempty"`
	Notes          string                `json:"notes,omitempty"`
	Inputs         map[string]InputField `json:"inputs"`
	IsOpen         *bool                 `json:"isOpen,omitempty"`
	IsIntermediate *bool                 `json:"isIntermediate,omitempty"`
	UseCache       *bool                 `json:"useCache,omitempty"`
}

// InputField is one input slot of a node as exported. Value is kept raw; the
// field registry decides how to interpret it.
type InputField struct {
	Name        string          `json:"name"`
	Label       string          `json:"label,omitempty"`
	Description string          `json:"description,omitempty"`
	Value       json.RawMessage `json:"value,omitempty"`
	Type        *FieldTypeTag   `json:"type,omitempty"` // absent in most modern exports
}

// FieldTypeTag is the declared type annotation carried by some export format
// versions.
type FieldTypeTag struct {
	Name         string `json:"name"` // e.g. "IntegerField", "BoardField"
	Cardinality  string `json:"cardinality,omitempty"`
	IsCollection bool   `json:"isCollection,omitempty"`
}

// Edge connects a source node output handle to a target node input handle.
type Edge struct {
	ID           string `json:"id,omitempty"`
	Type         string `json:"type,omitempty"` // "default"; "collapsed" edges are GUI artifacts
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle"`
	TargetHandle string `json:"targetHandle"`
}

// Form is the linearized form tree of an export. Elements reference each
// other by ID; traversal starts at FormRootID.
type Form struct {
	Elements map[string]FormElement `json:"elements"`
}

// FormElement is one entry of the form tree.
type FormElement struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	ParentID string          `json:"parentId,omitempty"`
	Data     FormElementData `json:"data"`
}

// FormElementData is the type-dependent payload of a form element. Containers
// carry ordered children; node-field elements carry the field identifier.
type FormElementData struct {
	Children        []string         `json:"children,omitempty"`
	Layout          string           `json:"layout,omitempty"` // row | column
	FieldIdentifier *FieldIdentifier `json:"fieldIdentifier,omitempty"`
	Content         string           `json:"content,omitempty"`
	Level           int              `json:"level,omitempty"`
	ShowDescription *bool            `json:"showDescription,omitempty"`
}

// FieldIdentifier names a single node input.
type FieldIdentifier struct {
	NodeID    string `json:"nodeId"`
	FieldName string `json:"fieldName"`
}

func (f FieldIdentifier) String() string {
	return f.NodeID + "." + f.FieldName
}

// ParseWorkflow decodes a workflow export. The input bytes are copied and
// retained so Raw can reproduce the document exactly as loaded. Structural
// and semantic validation beyond JSON well-formedness is the caller's job.
func ParseWorkflow(data []byte) (*WorkflowDefinition, error) {
	var def WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, NewErrorf(ErrCodeDiscovery, "workflow is not valid JSON: %v", err).WithCause(err)
	}
	if len(def.Nodes) == 0 {
		return nil, NewError(ErrCodeDiscovery, "workflow has no nodes")
	}

	def.raw = append([]byte(nil), data...)
	def.nodeIndex = make(map[string]int, len(def.Nodes))
	for i, n := range def.Nodes {
		if n.ID == "" {
			return nil, NewErrorf(ErrCodeDiscovery, "node at position %d has no id", i)
		}
		if _, dup := def.nodeIndex[n.ID]; dup {
			return nil, NewErrorf(ErrCodeDiscovery, "duplicate node id %q", n.ID).WithNode(n.ID)
		}
		def.nodeIndex[n.ID] = i
	}
	return &def, nil
}

// Raw returns a copy of the document exactly as it was loaded.
func (d *WorkflowDefinition) Raw() []byte {
	return append([]byte(nil), d.raw...)
}

// Node returns the node with the given ID.
func (d *WorkflowDefinition) Node(id string) (*Node, bool) {
	i, ok := d.nodeIndex[id]
	if !ok {
		return nil, false
	}
	return &d.Nodes[i], true
}

// Input returns the named input slot of a node.
func (d *WorkflowDefinition) Input(fi FieldIdentifier) (*InputField, bool) {
	n, ok := d.Node(fi.NodeID)
	if !ok {
		return nil, false
	}
	in, ok := n.Data.Inputs[fi.FieldName]
	if !ok {
		return nil, false
	}
	return &in, true
}

// Element returns the form element with the given ID.
func (d *WorkflowDefinition) Element(id string) (*FormElement, bool) {
	if d.Form == nil {
		return nil, false
	}
	el, ok := d.Form.Elements[id]
	if !ok {
		return nil, false
	}
	return &el, true
}

// IncomingEdges returns the edges terminating at the given node, in document
// order.
func (d *WorkflowDefinition) IncomingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range d.Edges {
		if e.Target == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// OutgoingEdges returns the edges originating at the given node, in document
// order.
func (d *WorkflowDefinition) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range d.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// HasIncomingEdge reports whether the named input receives its value from a
// connection rather than a literal.
func (d *WorkflowDefinition) HasIncomingEdge(nodeID, field string) bool {
	for _, e := range d.Edges {
		if e.Target == nodeID && e.TargetHandle == field {
			return true
		}
	}
	return false
}

// NodeLabel returns the display label for a node: the user label when set,
// otherwise the invocation type.
func (d *WorkflowDefinition) NodeLabel(nodeID string) string {
	n, ok := d.Node(nodeID)
	if !ok {
		return nodeID
	}
	if n.Data.Label != "" {
		return n.Data.Label
	}
	if n.Data.Type != "" {
		return n.Data.Type
	}
	return n.ID
}

func (d *WorkflowDefinition) String() string {
	return fmt.Sprintf("workflow %q (%d nodes, %d edges)", d.Name, len(d.Nodes), len(d.Edges))
}
