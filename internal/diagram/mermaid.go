package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a Model as a Mermaid flowchart string.
func RenderMermaid(model *Model) string {
	var b strings.Builder

	b.WriteString("graph TD\n")
	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}

	for _, node := range model.Nodes {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(node)))
	}

	for _, edge := range model.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", edge.Label)
		}
		b.WriteString(fmt.Sprintf("    %s -->%s %s\n",
			mermaidSafeID(edge.From), label, mermaidSafeID(edge.To)))
	}

	b.WriteString("\n")
	b.WriteString("    classDef completed fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef failed fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef running fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef pending fill:#6b6b6b,stroke:#4a4a4a,color:#fff\n")
	b.WriteString("    classDef output fill:#fff3bf,stroke:#b7791a,color:#000\n")

	for _, node := range model.Nodes {
		switch {
		case node.Status != nil && mermaidStatusClass(node.Status.Status) != "":
			b.WriteString(fmt.Sprintf("    class %s %s\n",
				mermaidSafeID(node.ID), mermaidStatusClass(node.Status.Status)))
		case node.Output:
			b.WriteString(fmt.Sprintf("    class %s output\n", mermaidSafeID(node.ID)))
		}
	}

	return b.String()
}

// mermaidNodeDef returns a node definition with a shape for its kind: model
// loaders are cylinders, prompts stadiums, latents hexagons, image nodes
// subroutine boxes, primitives rounded.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := firstLine(node.Label)

	switch node.Kind {
	case NodeKindModel:
		return fmt.Sprintf("%s[(%q)]", id, label)
	case NodeKindPrompt:
		return fmt.Sprintf("%s([%q])", id, label)
	case NodeKindLatents:
		return fmt.Sprintf("%s{{%q}}", id, label)
	case NodeKindImage:
		return fmt.Sprintf("%s[[%q]]", id, label)
	case NodeKindPrimitive:
		return fmt.Sprintf("%s(%q)", id, label)
	default:
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_", ":", "_")
	return r.Replace(id)
}

// mermaidStatusClass maps an invocation status to a class name.
func mermaidStatusClass(status string) string {
	switch status {
	case "completed", "failed", "running", "pending":
		return status
	default:
		return ""
	}
}
