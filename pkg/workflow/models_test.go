package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeGandee/invokeai-go-client/pkg/fields"
	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

func modelInput(t *testing.T, h *Handle) *fields.ModelIdentifierField {
	t.Helper()
	in, err := h.Input(4)
	require.NoError(t, err)
	mf, ok := in.Field.(*fields.ModelIdentifierField)
	require.True(t, ok)
	return mf
}

func TestHandle_ResolveModels_ExactName(t *testing.T) {
	h := mustHandle(t, sdxlExport)
	inventory := []schema.ModelRecord{
		{Key: "k-sd1", Hash: "h-sd1", Name: "Dreamshaper", Base: schema.BaseSD1, Type: schema.ModelTypeMain},
		{Key: "k-jug", Hash: "h-jug", Name: "Juggernaut XL", Base: schema.BaseSDXL, Type: schema.ModelTypeMain},
	}

	report, err := h.ResolveModels(context.Background(), inventory)
	require.NoError(t, err)
	require.Len(t, report.Resolutions, 1)
	assert.Empty(t, report.Misses)

	res := report.Resolutions[0]
	assert.Equal(t, 4, res.InputIndex)
	assert.Equal(t, "loader", res.NodeID)
	assert.Equal(t, "name", res.MatchedBy)
	assert.Equal(t, "old-key", res.Previous.Key)
	assert.Equal(t, "k-jug", res.Resolved.Key)

	mf := modelInput(t, h)
	assert.Equal(t, "k-jug", mf.Key)
	assert.Equal(t, "h-jug", mf.Hash)
	assert.Equal(t, schema.BaseSDXL, mf.Base)
}

func TestHandle_ResolveModels_KeyTier(t *testing.T) {
	h := mustHandle(t, sdxlExport)
	inventory := []schema.ModelRecord{
		{Key: "old-key", Hash: "h-new", Name: "Juggernaut XL v10", Base: schema.BaseSDXL, Type: schema.ModelTypeMain},
	}

	report, err := h.ResolveModels(context.Background(), inventory)
	require.NoError(t, err)
	require.Len(t, report.Resolutions, 1)
	assert.Equal(t, "key", report.Resolutions[0].MatchedBy)
	assert.Equal(t, "Juggernaut XL v10", modelInput(t, h).Name)
}

func TestHandle_ResolveModels_UniqueBase(t *testing.T) {
	h := mustHandle(t, sdxlExport)
	inventory := []schema.ModelRecord{
		{Key: "k-other", Hash: "h-other", Name: "Other XL", Base: schema.BaseSDXL, Type: schema.ModelTypeMain},
		{Key: "k-vae", Hash: "h-vae", Name: "SDXL VAE", Base: schema.BaseSDXL, Type: schema.ModelTypeVAE},
		{Key: "k-sd1", Hash: "h-sd1", Name: "Dreamshaper", Base: schema.BaseSD1, Type: schema.ModelTypeMain},
	}

	report, err := h.ResolveModels(context.Background(), inventory)
	require.NoError(t, err)
	require.Len(t, report.Resolutions, 1)
	assert.Equal(t, "base", report.Resolutions[0].MatchedBy)
	assert.Equal(t, "k-other", modelInput(t, h).Key)
}

func TestHandle_ResolveModels_AmbiguousBaseMisses(t *testing.T) {
	h := mustHandle(t, sdxlExport)
	inventory := []schema.ModelRecord{
		{Key: "k-a", Name: "First XL", Base: schema.BaseSDXL, Type: schema.ModelTypeMain},
		{Key: "k-b", Name: "Second XL", Base: schema.BaseSDXL, Type: schema.ModelTypeMain},
	}

	report, err := h.ResolveModels(context.Background(), inventory)
	require.NoError(t, err)
	assert.Empty(t, report.Resolutions)
	require.Len(t, report.Misses, 1)

	miss := report.Misses[0]
	assert.Equal(t, 4, miss.InputIndex)
	assert.Contains(t, miss.Reason, "ambiguous")

	// The field keeps its exported identity untouched.
	mf := modelInput(t, h)
	assert.Equal(t, "old-key", mf.Key)
	assert.Equal(t, "Juggernaut XL", mf.Name)
}

func TestHandle_ResolveModels_NoCandidateMisses(t *testing.T) {
	h := mustHandle(t, sdxlExport)
	inventory := []schema.ModelRecord{
		{Key: "k-sd1", Name: "Dreamshaper", Base: schema.BaseSD1, Type: schema.ModelTypeMain},
	}

	report, err := h.ResolveModels(context.Background(), inventory)
	require.NoError(t, err)
	assert.Empty(t, report.Resolutions)
	require.Len(t, report.Misses, 1)
	assert.Contains(t, report.Misses[0].Reason, "sdxl")
	assert.Equal(t, "old-key", modelInput(t, h).Key)
}

func TestHandle_ResolveModels_EmptyInventory(t *testing.T) {
	h := mustHandle(t, sdxlExport)

	report, err := h.ResolveModels(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Resolutions)
	require.Len(t, report.Misses, 1)
}

func TestHandle_ResolveModels_ResolvedValueEntersSubmission(t *testing.T) {
	h := mustHandle(t, sdxlExport)
	inventory := []schema.ModelRecord{
		{Key: "k-jug", Hash: "h-jug", Name: "Juggernaut XL", Base: schema.BaseSDXL, Type: schema.ModelTypeMain},
	}

	_, err := h.ResolveModels(context.Background(), inventory)
	require.NoError(t, err)

	batch, err := h.BuildSubmission()
	require.NoError(t, err)
	model, ok := batch.Graph.Nodes["loader"]["model"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "k-jug", model["key"])
	assert.Equal(t, "h-jug", model["hash"])

	// The handle's own projection still carries the exported identity.
	baseModel := h.base.Nodes["loader"]["model"].(map[string]any)
	assert.Equal(t, "old-key", baseModel["key"])
}

func TestHandle_ResolveModels_ContextCanceled(t *testing.T) {
	h := mustHandle(t, sdxlExport)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.ResolveModels(ctx, nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeTimeout))
}
