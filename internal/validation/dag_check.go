package validation

import (
	"fmt"
	"sort"

	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// validateDAG runs cycle detection (Kahn's algorithm) over the invocation
// edges. The queue API rejects cyclic graphs, better to catch it at load.
func validateDAG(def *schema.WorkflowDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	nodeIDs := make(map[string]bool, len(def.Nodes))
	for _, n := range def.Nodes {
		if n.Type == schema.NodeTypeInvocation {
			nodeIDs[n.ID] = true
		}
	}

	// deps[id] = upstream nodes of id, reverse[id] = downstream nodes.
	deps := make(map[string][]string, len(nodeIDs))
	reverse := make(map[string][]string, len(nodeIDs))
	for _, e := range def.Edges {
		if e.SourceHandle == "" || e.TargetHandle == "" {
			continue
		}
		if !nodeIDs[e.Source] || !nodeIDs[e.Target] {
			continue // dangling refs already caught by semantic
		}
		deps[e.Target] = append(deps[e.Target], e.Source)
		reverse[e.Source] = append(reverse[e.Source], e.Target)
	}

	inDegree := make(map[string]int, len(nodeIDs))
	for id := range nodeIDs {
		inDegree[id] = len(deps[id])
	}

	queue := make([]string, 0, len(nodeIDs))
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	visited := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range reverse[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != len(nodeIDs) {
		var stuck []string
		for id, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		result.AddError("edges", schema.ErrCodeValidation,
			fmt.Sprintf("graph contains a cycle through %v", stuck))
	}

	return result
}
