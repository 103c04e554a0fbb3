package diagram

import (
	"fmt"
	"sort"
	"strings"

	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// Build constructs a Model from a workflow definition. Only invocation nodes
// and fully-handled edges appear: notes nodes and GUI-only edges never
// execute, so they are not drawn. outputIDs marks nodes that persist images
// (pass the handle's OutputNodeIDs); statuses overlays invocation state keyed
// by node ID. Both may be nil.
func Build(def *schema.WorkflowDefinition, outputIDs []string, statuses map[string]string) (*Model, error) {
	if def == nil || len(def.Nodes) == 0 {
		return nil, fmt.Errorf("diagram: workflow has no nodes")
	}

	outputs := make(map[string]bool, len(outputIDs))
	for _, id := range outputIDs {
		outputs[id] = true
	}

	nodes := make([]*Node, 0, len(def.Nodes))
	index := make(map[string]*Node, len(def.Nodes))
	for _, n := range def.Nodes {
		if n.Type != schema.NodeTypeInvocation {
			continue
		}
		_, hasBoard := n.Data.Inputs["board"]
		node := &Node{
			ID:     n.ID,
			Label:  nodeLabel(n),
			Type:   n.Data.Type,
			Kind:   kindForType(n.Data.Type),
			Output: outputs[n.ID] || hasBoard,
		}
		if st := statuses[n.ID]; st != "" {
			node.Status = &StatusOverlay{Status: st}
		}
		nodes = append(nodes, node)
		index[n.ID] = node
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("diagram: workflow has no invocation nodes")
	}

	var edges []Edge
	for _, e := range def.Edges {
		if e.SourceHandle == "" || e.TargetHandle == "" {
			continue
		}
		if index[e.Source] == nil || index[e.Target] == nil {
			continue
		}
		edges = append(edges, Edge{From: e.Source, To: e.Target, Label: edgeLabel(e)})
	}

	return &Model{
		Title:  def.Name,
		Nodes:  nodes,
		Edges:  edges,
		Levels: buildLevels(nodes, edges),
	}, nil
}

// nodeLabel prefers the user-assigned label, then the invocation type.
func nodeLabel(n schema.Node) string {
	if n.Data.Label != "" {
		return n.Data.Label
	}
	if n.Data.Type != "" {
		return n.Data.Type
	}
	return n.ID
}

// edgeLabel names the data flowing over an edge. When the source and target
// handles agree the single name suffices.
func edgeLabel(e schema.Edge) string {
	if e.SourceHandle == e.TargetHandle {
		return e.SourceHandle
	}
	return e.SourceHandle + "/" + e.TargetHandle
}

// primitiveTypes are bare value invocations.
var primitiveTypes = map[string]bool{
	"integer":  true,
	"float":    true,
	"string":   true,
	"boolean":  true,
	"color":    true,
	"rand_int": true,
}

// kindForType buckets an invocation type by name. The rules are heuristic;
// new server invocation types land in NodeKindOther until classified.
func kindForType(t string) NodeKind {
	switch {
	case primitiveTypes[t] || strings.HasSuffix(t, "_collection"):
		return NodeKindPrimitive
	case strings.Contains(t, "model_loader") || strings.Contains(t, "lora") || strings.HasSuffix(t, "_loader"):
		return NodeKindModel
	case strings.Contains(t, "compel") || strings.Contains(t, "prompt") ||
		strings.Contains(t, "conditioning") || strings.Contains(t, "text_encoder") ||
		strings.Contains(t, "clip"):
		return NodeKindPrompt
	case strings.Contains(t, "latents") || strings.Contains(t, "noise") ||
		strings.Contains(t, "denoise") || strings.Contains(t, "scheduler"):
		return NodeKindLatents
	case strings.Contains(t, "image") || strings.Contains(t, "img_") ||
		strings.Contains(t, "vae_decode") || strings.Contains(t, "vae_encode") ||
		strings.Contains(t, "canvas") || t == "l2i" || t == "i2l" || t == "esrgan":
		return NodeKindImage
	default:
		return NodeKindOther
	}
}

// buildLevels groups node IDs by topological depth, Kahn style. IDs within a
// level are sorted for stable output. Nodes caught in a cycle (which the
// server would reject anyway) are appended as a final level so every node is
// drawn.
func buildLevels(nodes []*Node, edges []Edge) [][]string {
	indeg := make(map[string]int, len(nodes))
	adj := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		indeg[n.ID] = 0
	}
	for _, e := range edges {
		indeg[e.To]++
		adj[e.From] = append(adj[e.From], e.To)
	}

	frontier := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if indeg[n.ID] == 0 {
			frontier = append(frontier, n.ID)
		}
	}
	sort.Strings(frontier)

	var levels [][]string
	placed := 0
	for len(frontier) > 0 {
		levels = append(levels, frontier)
		placed += len(frontier)

		var next []string
		for _, id := range frontier {
			for _, to := range adj[id] {
				indeg[to]--
				if indeg[to] == 0 {
					next = append(next, to)
				}
			}
		}
		sort.Strings(next)
		frontier = next
	}

	if placed < len(nodes) {
		var rest []string
		for _, n := range nodes {
			if indeg[n.ID] > 0 {
				rest = append(rest, n.ID)
			}
		}
		sort.Strings(rest)
		levels = append(levels, rest)
	}
	return levels
}

// StatusesFromEvents folds invocation events into per-node statuses. Later
// events win, so replaying a journal in order yields each node's final state.
func StatusesFromEvents(events []schema.QueueEvent) map[string]string {
	statuses := make(map[string]string)
	for _, ev := range events {
		if ev.NodeID == "" {
			continue
		}
		switch ev.Type {
		case schema.EventInvocationStarted:
			statuses[ev.NodeID] = "running"
		case schema.EventInvocationComplete:
			statuses[ev.NodeID] = "completed"
		case schema.EventInvocationError:
			statuses[ev.NodeID] = "failed"
		}
	}
	return statuses
}
