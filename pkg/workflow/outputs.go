package workflow

import (
	"context"
	"encoding/json"

	"github.com/CodeGandee/invokeai-go-client/pkg/fields"
	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// imageNameScan collects every image_name leaf in a result payload,
// regardless of nesting. Covers single-image outputs, collection outputs and
// the legacy result shapes older servers emit.
const imageNameScan = `.. | objects | select(has("image_name")) | .image_name`

// outputCapableTypes are invocation types that persist images even when the
// export predates the board input on them.
var outputCapableTypes = map[string]bool{
	"save_image":        true,
	"l2i":               true,
	"flux_vae_decode":   true,
	"sd3_l2i":           true,
	"img_nsfw":          true,
	"img_watermark":     true,
	"esrgan":            true,
	"canvas_paste_back": true,
}

// outputNode is one classified output-capable node.
type outputNode struct {
	nodeID     string
	boardField string // name of the node's board input, "" when it has none
	inputIndex *int   // discovery index of the board input when form-exposed
}

// classifyOutputs walks the definition's invocations in document order and
// records every node that persists images: anything with a board input, plus
// the known output-capable types.
func classifyOutputs(def *schema.WorkflowDefinition, byField map[schema.FieldIdentifier]*Input) []outputNode {
	var out []outputNode
	for _, n := range def.Nodes {
		if n.Type != schema.NodeTypeInvocation {
			continue
		}

		boardField := ""
		if _, ok := n.Data.Inputs["board"]; ok {
			boardField = "board"
		}
		if boardField == "" && !outputCapableTypes[n.Data.Type] {
			continue
		}

		on := outputNode{nodeID: n.ID, boardField: boardField}
		if boardField != "" {
			if in, ok := byField[schema.FieldIdentifier{NodeID: n.ID, FieldName: boardField}]; ok {
				idx := in.Index
				on.inputIndex = &idx
			}
		}
		out = append(out, on)
	}
	return out
}

// OutputNodeIDs lists the classified output-capable node IDs in document
// order.
func (h *Handle) OutputNodeIDs() []string {
	out := make([]string, len(h.outputs))
	for i, on := range h.outputs {
		out[i] = on.nodeID
	}
	return out
}

// MapOutputs correlates a finished queue item's session results with the
// workflow's output-capable nodes. Every such node yields exactly one
// mapping; a node the execution never reached (canceled or failed mid-run)
// gets an empty image list, never an error. Callers branch on emptiness.
func (h *Handle) MapOutputs(item *schema.QueueItem) ([]schema.OutputMapping, error) {
	if item == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "queue item is nil")
	}

	out := make([]schema.OutputMapping, 0, len(h.outputs))
	for _, on := range h.outputs {
		m := schema.OutputMapping{
			NodeID:     on.nodeID,
			InputIndex: on.inputIndex,
			BoardID:    h.boardFor(on),
			ImageNames: h.imageNamesFor(item.Session, on.nodeID),
		}
		out = append(out, m)
	}
	return out, nil
}

// boardFor resolves the board an output node targets: the live field value
// when the board input is form-exposed, else the exported literal, else the
// uncategorized sentinel.
func (h *Handle) boardFor(on outputNode) string {
	if on.inputIndex != nil {
		if bf, ok := h.inputs[*on.inputIndex].Field.(*fields.BoardField); ok {
			return schema.NormalizeBoardID(bf.ID)
		}
	}

	if on.boardField != "" {
		raw, ok := h.def.Input(schema.FieldIdentifier{NodeID: on.nodeID, FieldName: on.boardField})
		if ok && len(raw.Value) > 0 {
			var obj struct {
				BoardID string `json:"board_id"`
			}
			if json.Unmarshal(raw.Value, &obj) == nil && obj.BoardID != "" {
				return schema.NormalizeBoardID(obj.BoardID)
			}
			var s string
			if json.Unmarshal(raw.Value, &s) == nil && s != "" {
				return schema.NormalizeBoardID(s)
			}
		}
	}
	return schema.BoardNone
}

// imageNamesFor extracts the image names a node produced. Modern sessions
// key results by prepared node ID with a source mapping; legacy sessions key
// them by source ID directly. Both funnel through the same deep scan.
func (h *Handle) imageNamesFor(sess *schema.Session, nodeID string) []string {
	names := []string{}
	if sess == nil {
		return names
	}

	var results []json.RawMessage
	if len(sess.SourcePreparedMapping) > 0 {
		for _, prepared := range sess.SourcePreparedMapping[nodeID] {
			if r, ok := sess.Results[prepared]; ok {
				results = append(results, r)
			}
		}
	} else if r, ok := sess.Results[nodeID]; ok {
		results = append(results, r)
	}

	for _, raw := range results {
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			h.logger.Debug("unreadable session result", "node_id", nodeID, "error", err)
			continue
		}
		found, err := h.jq.EvaluateAll(context.Background(), imageNameScan, obj)
		if err != nil {
			h.logger.Debug("result scan failed", "node_id", nodeID, "error", err)
			continue
		}
		for _, v := range found {
			if name, ok := v.(string); ok && name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}
