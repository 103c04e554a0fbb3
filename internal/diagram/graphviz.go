package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// RenderImage renders a Model as a PNG using graphviz dot layout. Returns
// the PNG bytes.
func RenderImage(model *Model) ([]byte, error) {
	ctx := context.Background()

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, node := range model.Nodes {
		gvNode, nErr := graph.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
		}
		gvNode.SetLabel(firstLine(node.Label))
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
	}

	for _, edge := range model.Edges {
		fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
		if fromGV == nil || toGV == nil {
			continue
		}
		e, eErr := graph.CreateEdgeByName("", fromGV, toGV)
		if eErr == nil && edge.Label != "" {
			e.SetLabel(edge.Label)
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.PNG, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// applyNodeStyle sets graphviz attributes from node kind, output role and
// status.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	switch node.Kind {
	case NodeKindModel:
		gvNode.SetShape(cgraph.EllipseShape)
	case NodeKindPrompt:
		gvNode.SetShape(cgraph.BoxShape)
	case NodeKindLatents:
		gvNode.SetShape(cgraph.HexagonShape)
	case NodeKindImage:
		gvNode.SetShape(cgraph.BoxShape)
	case NodeKindPrimitive:
		gvNode.SetShape(cgraph.CircleShape)
		gvNode.SetWidth(0.6)
		gvNode.SetHeight(0.6)
	default:
		gvNode.SetShape(cgraph.BoxShape)
	}

	if node.Status != nil {
		applyStatusColor(gvNode, node.Status.Status)
	} else if node.Output {
		gvNode.SetStyle(cgraph.FilledNodeStyle)
		gvNode.SetFillColor("#fff3bf")
	}
}

// applyStatusColor fills the node by invocation status.
func applyStatusColor(gvNode *cgraph.Node, status string) {
	gvNode.SetStyle(cgraph.FilledNodeStyle)
	switch status {
	case "completed":
		gvNode.SetFillColor("#2d6a2d")
		gvNode.SetFontColor("white")
	case "failed":
		gvNode.SetFillColor("#8b1a1a")
		gvNode.SetFontColor("white")
	case "running":
		gvNode.SetFillColor("#1a5276")
		gvNode.SetFontColor("white")
	case "pending":
		gvNode.SetFillColor("#d3d3d3")
		gvNode.SetFontColor("black")
	}
}
