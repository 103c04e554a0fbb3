package schema

import "encoding/json"

// Graph is the execution graph shape the queue API accepts: invocation
// objects keyed by node ID, with literal input values inlined as properties,
// plus field-level edges.
type Graph struct {
	ID    string                    `json:"id,omitempty"`
	Nodes map[string]map[string]any `json:"nodes"`
	Edges []GraphEdge               `json:"edges"`
}

// GraphEdge connects an output field of one invocation to an input field of
// another.
type GraphEdge struct {
	Source      GraphEndpoint `json:"source"`
	Destination GraphEndpoint `json:"destination"`
}

// GraphEndpoint names one side of a graph edge.
type GraphEndpoint struct {
	NodeID string `json:"node_id"`
	Field  string `json:"field"`
}

// Reserved invocation object keys that are not input fields.
var reservedNodeKeys = map[string]bool{
	"id":              true,
	"type":            true,
	"is_intermediate": true,
	"use_cache":       true,
}

// IsReservedNodeKey reports whether key is graph plumbing rather than an
// input field of the invocation.
func IsReservedNodeKey(key string) bool {
	return reservedNodeKeys[key]
}

// BuildGraph projects the definition onto the queue API graph shape.
// Non-invocation nodes are dropped; GUI-only collapsed edges (no handles) are
// dropped; every input with a literal value becomes a node property. The
// result is freshly allocated and shares no memory with the definition.
func (d *WorkflowDefinition) BuildGraph() (*Graph, error) {
	g := &Graph{
		ID:    d.ID,
		Nodes: make(map[string]map[string]any, len(d.Nodes)),
	}

	for _, n := range d.Nodes {
		if n.Type != NodeTypeInvocation {
			continue
		}
		inv := map[string]any{
			"id":   n.ID,
			"type": n.Data.Type,
		}
		if n.Data.IsIntermediate != nil {
			inv["is_intermediate"] = *n.Data.IsIntermediate
		}
		if n.Data.UseCache != nil {
			inv["use_cache"] = *n.Data.UseCache
		}
		for name, in := range n.Data.Inputs {
			if len(in.Value) == 0 || string(in.Value) == "null" {
				continue
			}
			var v any
			if err := json.Unmarshal(in.Value, &v); err != nil {
				return nil, NewErrorf(ErrCodeDiscovery, "input %s.%s has unreadable value: %v", n.ID, name, err).
					WithNode(n.ID).WithCause(err)
			}
			inv[name] = v
		}
		g.Nodes[n.ID] = inv
	}

	for _, e := range d.Edges {
		if e.SourceHandle == "" || e.TargetHandle == "" {
			continue
		}
		if _, ok := g.Nodes[e.Source]; !ok {
			continue
		}
		if _, ok := g.Nodes[e.Target]; !ok {
			continue
		}
		g.Edges = append(g.Edges, GraphEdge{
			Source:      GraphEndpoint{NodeID: e.Source, Field: e.SourceHandle},
			Destination: GraphEndpoint{NodeID: e.Target, Field: e.TargetHandle},
		})
	}

	return g, nil
}

// Clone returns a deep copy. Mutating the copy never affects the original.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		ID:    g.ID,
		Nodes: make(map[string]map[string]any, len(g.Nodes)),
		Edges: append([]GraphEdge(nil), g.Edges...),
	}
	for id, inv := range g.Nodes {
		cp := make(map[string]any, len(inv))
		for k, v := range inv {
			cp[k] = deepCopyValue(v)
		}
		out.Nodes[id] = cp
	}
	return out
}

// Node returns the invocation object for a node ID.
func (g *Graph) Node(id string) (map[string]any, bool) {
	inv, ok := g.Nodes[id]
	return inv, ok
}

// SetNodeField writes an input property on a node in place. The node must
// exist; graph topology is never altered through this path.
func (g *Graph) SetNodeField(nodeID, field string, value any) error {
	inv, ok := g.Nodes[nodeID]
	if !ok {
		return NewErrorf(ErrCodeNotFound, "graph has no node %q", nodeID).WithNode(nodeID)
	}
	if IsReservedNodeKey(field) {
		return NewErrorf(ErrCodeValidation, "field %q is reserved on node %q", field, nodeID).WithNode(nodeID)
	}
	inv[field] = deepCopyValue(value)
	return nil
}

// deepCopyValue copies the JSON value universe: maps, slices, scalars.
func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(t))
		for k, e := range t {
			cp[k] = deepCopyValue(e)
		}
		return cp
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = deepCopyValue(e)
		}
		return cp
	default:
		return t
	}
}
