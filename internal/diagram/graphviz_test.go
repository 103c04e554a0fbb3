package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertPNG(t *testing.T, png []byte) {
	t.Helper()
	require.NotEmpty(t, png)
	require.Greater(t, len(png), 8, "PNG should be larger than its header")
	assert.Equal(t, byte(0x89), png[0])
	assert.Equal(t, byte('P'), png[1])
	assert.Equal(t, byte('N'), png[2])
	assert.Equal(t, byte('G'), png[3])
}

func TestRenderImage(t *testing.T) {
	model := sdxlModel(t, nil, nil)

	png, err := RenderImage(model)
	require.NoError(t, err)
	assertPNG(t, png)
}

func TestRenderImage_WithStatuses(t *testing.T) {
	statuses := map[string]string{
		"loader":    "completed",
		"denoise_1": "running",
		"save_1":    "failed",
		"noise_1":   "pending",
	}
	model := sdxlModel(t, nil, statuses)

	png, err := RenderImage(model)
	require.NoError(t, err)
	assertPNG(t, png)
}

func TestRenderImage_SingleNode(t *testing.T) {
	model := &Model{
		Title:  "one",
		Nodes:  []*Node{{ID: "only", Label: "only", Kind: NodeKindPrimitive}},
		Levels: [][]string{{"only"}},
	}

	png, err := RenderImage(model)
	require.NoError(t, err)
	assertPNG(t, png)
}
