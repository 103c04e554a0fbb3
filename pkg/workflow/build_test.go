package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// invalidExport exposes two inputs that cannot submit as exported: an image
// with no value behind no edge, and a scheduler outside the choice set.
const invalidExport = `{
  "name": "broken",
  "meta": {"version": "3.0.0"},
  "nodes": [
    {"id": "img_1", "type": "invocation", "data": {"id": "img_1", "type": "img_resize", "inputs": {
      "image": {"name": "image", "label": "Source"}
    }}},
    {"id": "den_1", "type": "invocation", "data": {"id": "den_1", "type": "denoise_latents", "inputs": {
      "scheduler": {"name": "scheduler", "value": "warp"}
    }}}
  ],
  "edges": [],
  "form": {"elements": {
    "root": {"id": "root", "type": "container", "data": {"layout": "column", "children": ["nf_img", "nf_sched"]}},
    "nf_img": {"id": "nf_img", "type": "node-field", "parentId": "root", "data": {"fieldIdentifier": {"nodeId": "img_1", "fieldName": "image"}}},
    "nf_sched": {"id": "nf_sched", "type": "node-field", "parentId": "root", "data": {"fieldIdentifier": {"nodeId": "den_1", "fieldName": "scheduler"}}}
  }}
}`

// --- validation ---

func TestHandle_ValidateInputs_CollectsAllViolations(t *testing.T) {
	h := mustHandle(t, invalidExport)

	v := h.ValidateInputs()
	require.False(t, v.Empty())
	assert.Equal(t, []int{0, 1}, v.Indices())
	assert.Contains(t, v[0][0], "required")
	assert.Contains(t, v[1][0], "warp")

	err := v.ToError()
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	assert.Contains(t, err.Error(), "2 input(s)")
}

func TestHandle_ValidateInputs_CleanAfterFixes(t *testing.T) {
	h := mustHandle(t, invalidExport)

	require.NoError(t, h.SetInputValue(0, "upload-1.png"))
	require.NoError(t, h.SetInputValue(1, "euler"))
	assert.True(t, h.ValidateInputs().Empty())
}

func TestHandle_ValidateInputs_CleanFixture(t *testing.T) {
	h := mustHandle(t, sdxlExport)
	assert.True(t, h.ValidateInputs().Empty())
}

// --- submission building ---

func TestHandle_BuildSubmission_RefusesWhileInvalid(t *testing.T) {
	h := mustHandle(t, invalidExport)

	_, err := h.BuildSubmission()
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestHandle_BuildSubmission_SubstitutesOnlyChanged(t *testing.T) {
	h := mustHandle(t, sdxlExport)
	rawBefore := h.Definition().Raw()

	require.NoError(t, h.SetInputValue(0, "a lighthouse at dusk"))
	require.NoError(t, h.SetInputValue(2, 999))

	batch, err := h.BuildSubmission()
	require.NoError(t, err)
	require.NotNil(t, batch.Graph)
	assert.Equal(t, 1, batch.Runs)

	g := batch.Graph
	assert.Equal(t, "a lighthouse at dusk", g.Nodes["pos"]["prompt"])
	assert.Equal(t, int64(999), g.Nodes["noise_1"]["seed"])

	// Untouched fields keep their exported values, decode types included.
	assert.Equal(t, "", g.Nodes["neg"]["prompt"])
	assert.Equal(t, float64(30), g.Nodes["denoise_1"]["steps"])
	assert.Equal(t, float64(1024), g.Nodes["noise_1"]["width"])

	// Topology is untouched: same node set, same types, same edges.
	require.Len(t, g.Nodes, len(h.base.Nodes))
	for id := range h.base.Nodes {
		require.Contains(t, g.Nodes, id)
		assert.Equal(t, h.base.Nodes[id]["type"], g.Nodes[id]["type"])
	}
	assert.Equal(t, h.base.Edges, g.Edges)

	// The handle's own projection is not written through.
	assert.Equal(t, "a castle in the clouds", h.base.Nodes["pos"]["prompt"])
	assert.Equal(t, float64(123), h.base.Nodes["noise_1"]["seed"])

	// The loaded document survives byte for byte.
	assert.Equal(t, rawBefore, h.Definition().Raw())
}

func TestHandle_BuildSubmission_NoChangesMirrorsProjection(t *testing.T) {
	h := mustHandle(t, sdxlExport)

	batch, err := h.BuildSubmission()
	require.NoError(t, err)

	got, err := json.Marshal(batch.Graph)
	require.NoError(t, err)
	want, err := json.Marshal(h.base)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
}

func TestHandle_BuildSubmission_RepeatedCallsEqual(t *testing.T) {
	h := mustHandle(t, sdxlExport)
	require.NoError(t, h.SetInputValue(2, 7))

	first, err := h.BuildSubmission()
	require.NoError(t, err)
	second, err := h.BuildSubmission()
	require.NoError(t, err)

	b1, err := json.Marshal(first)
	require.NoError(t, err)
	b2, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

// --- sweeps ---

func TestHandle_BuildSweepSubmission(t *testing.T) {
	h := mustHandle(t, sdxlExport)

	batch, err := h.BuildSweepSubmission(map[int][]any{
		0: {"castle", "lighthouse", "orchard"},
		2: {int64(1), int64(2), int64(3)},
	}, 3)
	require.NoError(t, err)

	assert.Equal(t, 3, batch.Runs)
	require.Len(t, batch.Data, 1)
	require.Len(t, batch.Data[0], 2)

	// Datum order follows ascending input index.
	assert.Equal(t, "pos", batch.Data[0][0].NodePath)
	assert.Equal(t, "prompt", batch.Data[0][0].FieldName)
	assert.Equal(t, "noise_1", batch.Data[0][1].NodePath)
	assert.Equal(t, "seed", batch.Data[0][1].FieldName)
	assert.Len(t, batch.Data[0][1].Items, 3)
}

func TestHandle_BuildSweepSubmission_LengthMismatch(t *testing.T) {
	h := mustHandle(t, sdxlExport)

	_, err := h.BuildSweepSubmission(map[int][]any{2: {int64(1), int64(2)}}, 3)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	assert.Contains(t, err.Error(), "2 sweep values for 3 runs")
}

func TestHandle_BuildSweepSubmission_BadArguments(t *testing.T) {
	h := mustHandle(t, sdxlExport)

	_, err := h.BuildSweepSubmission(nil, 0)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = h.BuildSweepSubmission(map[int][]any{9: {1}}, 1)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestHandle_BuildSweepSubmission_NoSpecs(t *testing.T) {
	h := mustHandle(t, sdxlExport)

	batch, err := h.BuildSweepSubmission(nil, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, batch.Runs)
	assert.Empty(t, batch.Data)
}
