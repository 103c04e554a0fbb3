package diagram

// NodeKind classifies a diagram node by its invocation family. Kinds only
// drive shapes and colors; unknown invocation types fall back to
// NodeKindOther.
type NodeKind string

const (
	NodeKindModel     NodeKind = "model"
	NodeKindPrompt    NodeKind = "prompt"
	NodeKindLatents   NodeKind = "latents"
	NodeKindImage     NodeKind = "image"
	NodeKindPrimitive NodeKind = "primitive"
	NodeKindOther     NodeKind = "other"
)

// Model is the renderer-independent representation of a workflow graph.
// Levels groups node IDs by topological depth for layered layouts.
type Model struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node is one invocation of the graph.
type Node struct {
	ID     string
	Label  string
	Type   string // invocation type, e.g. "denoise_latents"
	Kind   NodeKind
	Output bool // persists images
	Status *StatusOverlay
}

// StatusOverlay carries invocation state observed from queue events.
type StatusOverlay struct {
	Status string // running, completed, failed
}

// Edge is one field connection between two invocations.
type Edge struct {
	From  string
	To    string
	Label string
}
