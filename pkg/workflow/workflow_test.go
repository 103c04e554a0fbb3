package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeGandee/invokeai-go-client/pkg/fields"
	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// sdxlExport is a trimmed SDXL text-to-image export: model loader, prompt
// pair, noise, denoise, decode and save, with six form-exposed inputs.
const sdxlExport = `{
  "name": "sdxl-t2i",
  "author": "tests",
  "meta": {"version": "3.0.0", "category": "user"},
  "nodes": [
    {"id": "loader", "type": "invocation", "data": {"id": "loader", "type": "sdxl_model_loader", "version": "1.0.3", "inputs": {
      "model": {"name": "model", "label": "Model", "value": {"key": "old-key", "hash": "old-hash", "name": "Juggernaut XL", "base": "sdxl", "type": "main"}}
    }}},
    {"id": "pos", "type": "invocation", "data": {"id": "pos", "type": "sdxl_compel_prompt", "label": "Positive", "inputs": {
      "prompt": {"name": "prompt", "label": "Positive Prompt", "value": "a castle in the clouds"}
    }}},
    {"id": "neg", "type": "invocation", "data": {"id": "neg", "type": "sdxl_compel_prompt", "label": "Negative", "inputs": {
      "prompt": {"name": "prompt", "label": "Negative Prompt", "value": ""}
    }}},
    {"id": "noise_1", "type": "invocation", "data": {"id": "noise_1", "type": "noise", "inputs": {
      "seed": {"name": "seed", "label": "Seed", "value": 123},
      "width": {"name": "width", "value": 1024},
      "height": {"name": "height", "value": 1024}
    }}},
    {"id": "denoise_1", "type": "invocation", "data": {"id": "denoise_1", "type": "denoise_latents", "inputs": {
      "steps": {"name": "steps", "value": 30},
      "cfg_scale": {"name": "cfg_scale", "value": 7.5}
    }}},
    {"id": "l2i_1", "type": "invocation", "data": {"id": "l2i_1", "type": "l2i", "isIntermediate": true, "inputs": {
      "latents": {"name": "latents"},
      "board": {"name": "board"}
    }}},
    {"id": "save_1", "type": "invocation", "data": {"id": "save_1", "type": "save_image", "label": "Save", "isIntermediate": false, "inputs": {
      "image": {"name": "image"},
      "board": {"name": "board", "value": {"board_id": "b-old"}}
    }}},
    {"id": "note_1", "type": "notes", "data": {"id": "note_1", "type": "notes", "inputs": {}}}
  ],
  "edges": [
    {"id": "e1", "type": "default", "source": "loader", "target": "denoise_1", "sourceHandle": "unet", "targetHandle": "unet"},
    {"id": "e2", "type": "default", "source": "pos", "target": "denoise_1", "sourceHandle": "conditioning", "targetHandle": "positive_conditioning"},
    {"id": "e3", "type": "default", "source": "neg", "target": "denoise_1", "sourceHandle": "conditioning", "targetHandle": "negative_conditioning"},
    {"id": "e4", "type": "default", "source": "noise_1", "target": "denoise_1", "sourceHandle": "noise", "targetHandle": "noise"},
    {"id": "e5", "type": "default", "source": "denoise_1", "target": "l2i_1", "sourceHandle": "latents", "targetHandle": "latents"},
    {"id": "e6", "type": "default", "source": "l2i_1", "target": "save_1", "sourceHandle": "image", "targetHandle": "image"}
  ],
  "form": {"elements": {
    "root": {"id": "root", "type": "container", "data": {"layout": "column", "children": ["hdr", "prompts", "nf_seed", "nf_steps", "nf_model", "nf_board"]}},
    "hdr": {"id": "hdr", "type": "heading", "parentId": "root", "data": {"content": "Generation"}},
    "prompts": {"id": "prompts", "type": "container", "parentId": "root", "data": {"layout": "row", "children": ["nf_pos", "nf_neg"]}},
    "nf_pos": {"id": "nf_pos", "type": "node-field", "parentId": "prompts", "data": {"fieldIdentifier": {"nodeId": "pos", "fieldName": "prompt"}}},
    "nf_neg": {"id": "nf_neg", "type": "node-field", "parentId": "prompts", "data": {"fieldIdentifier": {"nodeId": "neg", "fieldName": "prompt"}}},
    "nf_seed": {"id": "nf_seed", "type": "node-field", "parentId": "root", "data": {"fieldIdentifier": {"nodeId": "noise_1", "fieldName": "seed"}}},
    "nf_steps": {"id": "nf_steps", "type": "node-field", "parentId": "root", "data": {"fieldIdentifier": {"nodeId": "denoise_1", "fieldName": "steps"}}},
    "nf_model": {"id": "nf_model", "type": "node-field", "parentId": "root", "data": {"fieldIdentifier": {"nodeId": "loader", "fieldName": "model"}}},
    "nf_board": {"id": "nf_board", "type": "node-field", "parentId": "root", "data": {"fieldIdentifier": {"nodeId": "save_1", "fieldName": "board"}}}
  }}
}`

func mustHandle(t *testing.T, doc string) *Handle {
	t.Helper()
	def, err := schema.ParseWorkflow([]byte(doc))
	require.NoError(t, err)
	h, err := New(def)
	require.NoError(t, err)
	return h
}

// mutateExport round-trips the fixture through a map so variants stay in one
// place instead of duplicating the whole document.
func mutateExport(t *testing.T, doc string, fn func(m map[string]any)) string {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(doc), &m))
	fn(m)
	out, err := json.Marshal(m)
	require.NoError(t, err)
	return string(out)
}

func formElements(m map[string]any) map[string]any {
	return m["form"].(map[string]any)["elements"].(map[string]any)
}

// --- discovery ---

func TestNew_DiscoversFormInputs(t *testing.T) {
	h := mustHandle(t, sdxlExport)

	inputs := h.ListInputs()
	require.Len(t, inputs, 6)

	expect := []struct {
		nodeID string
		field  string
		kind   fields.Kind
	}{
		{"pos", "prompt", fields.KindString},
		{"neg", "prompt", fields.KindString},
		{"noise_1", "seed", fields.KindInteger},
		{"denoise_1", "steps", fields.KindInteger},
		{"loader", "model", fields.KindModelIdentifier},
		{"save_1", "board", fields.KindBoard},
	}
	for i, want := range expect {
		assert.Equal(t, i, inputs[i].Index)
		assert.Equal(t, want.nodeID, inputs[i].NodeID)
		assert.Equal(t, want.field, inputs[i].FieldName)
		assert.Equal(t, want.kind, inputs[i].Kind)
	}

	// Labels come from the export, falling back to the field name.
	assert.Equal(t, "Positive Prompt", inputs[0].Label)
	assert.Equal(t, "steps", inputs[3].Label)
	assert.Equal(t, "Positive", inputs[0].NodeLabel)
	assert.Equal(t, "noise", inputs[2].NodeLabel)

	// Everything in this export ships a usable value.
	for _, in := range inputs {
		assert.False(t, in.Required, "input %d should not be required", in.Index)
	}
}

func TestNew_Determinism(t *testing.T) {
	type desc struct {
		Index    int
		NodeID   string
		Field    string
		Kind     fields.Kind
		Required bool
	}
	describe := func(h *Handle) []desc {
		var out []desc
		for _, in := range h.ListInputs() {
			out = append(out, desc{in.Index, in.NodeID, in.FieldName, in.Kind, in.Required})
		}
		return out
	}

	first := describe(mustHandle(t, sdxlExport))
	for i := 0; i < 4; i++ {
		assert.Equal(t, first, describe(mustHandle(t, sdxlExport)))
	}
}

func TestNew_IndexStabilityOnAppend(t *testing.T) {
	extended := mutateExport(t, sdxlExport, func(m map[string]any) {
		els := formElements(m)
		els["nf_cfg"] = map[string]any{
			"id": "nf_cfg", "type": "node-field", "parentId": "root",
			"data": map[string]any{"fieldIdentifier": map[string]any{"nodeId": "denoise_1", "fieldName": "cfg_scale"}},
		}
		root := els["root"].(map[string]any)["data"].(map[string]any)
		root["children"] = append(root["children"].([]any), "nf_cfg")
	})

	base := mustHandle(t, sdxlExport).ListInputs()
	grown := mustHandle(t, extended).ListInputs()

	require.Len(t, grown, len(base)+1)
	for i, in := range base {
		assert.Equal(t, in.Index, grown[i].Index)
		assert.Equal(t, in.NodeID, grown[i].NodeID)
		assert.Equal(t, in.FieldName, grown[i].FieldName)
		assert.Equal(t, in.Kind, grown[i].Kind)
	}
	tail := grown[len(base)]
	assert.Equal(t, "denoise_1", tail.NodeID)
	assert.Equal(t, "cfg_scale", tail.FieldName)
	assert.Equal(t, fields.KindFloat, tail.Kind)
}

func TestNew_TypeStabilityAcrossForms(t *testing.T) {
	solo := mutateExport(t, sdxlExport, func(m map[string]any) {
		root := formElements(m)["root"].(map[string]any)["data"].(map[string]any)
		root["children"] = []any{"nf_steps"}
	})

	full := mustHandle(t, sdxlExport)
	reduced := mustHandle(t, solo)

	require.Equal(t, 1, reduced.InputCount())
	stepsFull, err := full.Input(3)
	require.NoError(t, err)
	stepsSolo, err := reduced.Input(0)
	require.NoError(t, err)

	assert.Equal(t, fields.KindInteger, stepsFull.Kind)
	assert.Equal(t, stepsFull.Kind, stepsSolo.Kind)
}

func TestNew_EmptyContainerContributesNothing(t *testing.T) {
	padded := mutateExport(t, sdxlExport, func(m map[string]any) {
		els := formElements(m)
		els["spacer"] = map[string]any{
			"id": "spacer", "type": "container", "parentId": "root",
			"data": map[string]any{"layout": "row", "children": []any{}},
		}
		root := els["root"].(map[string]any)["data"].(map[string]any)
		root["children"] = append([]any{"spacer"}, root["children"].([]any)...)
	})

	h := mustHandle(t, padded)
	assert.Equal(t, 6, h.InputCount())
	in, err := h.Input(0)
	require.NoError(t, err)
	assert.Equal(t, "pos", in.NodeID)
}

func TestNew_MissingNodeIsFatal(t *testing.T) {
	broken := mutateExport(t, sdxlExport, func(m map[string]any) {
		nf := formElements(m)["nf_seed"].(map[string]any)["data"].(map[string]any)
		nf["fieldIdentifier"] = map[string]any{"nodeId": "ghost", "fieldName": "seed"}
	})

	def, err := schema.ParseWorkflow([]byte(broken))
	require.NoError(t, err)
	_, err = New(def)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeDiscovery))
	assert.Contains(t, err.Error(), "nf_seed")
	assert.Contains(t, err.Error(), "ghost")
}

func TestNew_MissingFieldIsFatal(t *testing.T) {
	broken := mutateExport(t, sdxlExport, func(m map[string]any) {
		nf := formElements(m)["nf_seed"].(map[string]any)["data"].(map[string]any)
		nf["fieldIdentifier"] = map[string]any{"nodeId": "noise_1", "fieldName": "entropy"}
	})

	def, err := schema.ParseWorkflow([]byte(broken))
	require.NoError(t, err)
	_, err = New(def)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeDiscovery))
	assert.Contains(t, err.Error(), "nf_seed")
	assert.Contains(t, err.Error(), "entropy")
}

func TestNew_LegacyExposedFields(t *testing.T) {
	legacy := mutateExport(t, sdxlExport, func(m map[string]any) {
		delete(m, "form")
		m["exposedFields"] = []any{
			map[string]any{"nodeId": "noise_1", "fieldName": "seed"},
			map[string]any{"nodeId": "pos", "fieldName": "prompt"},
		}
	})

	h := mustHandle(t, legacy)
	inputs := h.ListInputs()
	require.Len(t, inputs, 2)
	assert.Equal(t, "noise_1", inputs[0].NodeID)
	assert.Equal(t, "seed", inputs[0].FieldName)
	assert.Equal(t, "pos", inputs[1].NodeID)
	assert.Equal(t, "prompt", inputs[1].FieldName)
}

func TestNew_NoFormNoLegacyYieldsZeroInputs(t *testing.T) {
	bare := mutateExport(t, sdxlExport, func(m map[string]any) {
		delete(m, "form")
	})

	h := mustHandle(t, bare)
	assert.Equal(t, 0, h.InputCount())
	assert.Empty(t, h.ListInputs())
}

func TestNew_NilDefinition(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

// --- load pipeline ---

func TestLoad_RunsValidationPipeline(t *testing.T) {
	h, err := Load([]byte(sdxlExport))
	require.NoError(t, err)
	assert.Equal(t, "sdxl-t2i", h.Name())
	assert.Equal(t, 6, h.InputCount())
}

func TestLoad_RejectsDanglingFormChild(t *testing.T) {
	broken := mutateExport(t, sdxlExport, func(m map[string]any) {
		root := formElements(m)["root"].(map[string]any)["data"].(map[string]any)
		root["children"] = append(root["children"].([]any), "phantom")
	})

	_, err := Load([]byte(broken))
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeDiscovery))
	assert.Contains(t, err.Error(), "rejected")
}

func TestLoad_RejectsGarbage(t *testing.T) {
	_, err := Load([]byte(`{not json`))
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeDiscovery))
}

// --- lookups ---

func TestHandle_InputLookups(t *testing.T) {
	h := mustHandle(t, sdxlExport)

	in, err := h.Input(2)
	require.NoError(t, err)
	assert.Equal(t, "noise_1", in.NodeID)

	_, err = h.Input(6)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
	_, err = h.Input(-1)
	require.Error(t, err)

	byField, ok := h.InputByField("denoise_1", "steps")
	require.True(t, ok)
	assert.Equal(t, 3, byField.Index)
	_, ok = h.InputByField("denoise_1", "cfg_scale")
	assert.False(t, ok, "cfg_scale is not form-exposed")
}

func TestHandle_GetInputValue(t *testing.T) {
	h := mustHandle(t, sdxlExport)

	v, err := h.GetInputValue(0)
	require.NoError(t, err)
	assert.Equal(t, "a castle in the clouds", v)

	v, err = h.GetInputValue(2)
	require.NoError(t, err)
	assert.Equal(t, int64(123), v)

	// Attribute-bearing fields report their JSON render.
	v, err = h.GetInputValue(4)
	require.NoError(t, err)
	model, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Juggernaut XL", model["name"])
}

func TestHandle_SetInputValue(t *testing.T) {
	h := mustHandle(t, sdxlExport)

	require.NoError(t, h.SetInputValue(0, "a lighthouse at dusk"))
	v, err := h.GetInputValue(0)
	require.NoError(t, err)
	assert.Equal(t, "a lighthouse at dusk", v)

	require.NoError(t, h.SetInputValue(2, 999))

	// Wrong type funnels through the field's own coercion error.
	err = h.SetInputValue(2, "not a number")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	// Model identifiers take no direct value.
	err = h.SetInputValue(4, "some-model")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	assert.Contains(t, err.Error(), "takes no direct value")
}
