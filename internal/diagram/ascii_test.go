package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderASCII(t *testing.T) {
	model := sdxlModel(t, nil, nil)

	output := RenderASCII(model)
	assert.NotEmpty(t, output)

	assert.Contains(t, output, "=== SDXL Pipeline ===")

	// Box-drawing characters.
	assert.Contains(t, output, "┌") // ┌
	assert.Contains(t, output, "┐") // ┐
	assert.Contains(t, output, "└") // └
	assert.Contains(t, output, "┘") // ┘
	assert.Contains(t, output, "│") // │
	assert.Contains(t, output, "─") // ─

	// Node labels, with the invocation type shown when a user label hides it.
	assert.Contains(t, output, "sdxl_model_loader")
	assert.Contains(t, output, "Positive")
	assert.Contains(t, output, "(sdxl_compel_prompt)")
	assert.Contains(t, output, "denoise_latents")
	assert.Contains(t, output, "Save")

	// Levels draw top to bottom: the loader row precedes the save row.
	assert.Less(t, strings.Index(output, "sdxl_model_loader"), strings.Index(output, "Save"))
}

func TestRenderASCII_StatusTags(t *testing.T) {
	statuses := map[string]string{
		"loader":    "completed",
		"denoise_1": "running",
		"save_1":    "failed",
		"noise_1":   "pending",
	}
	model := sdxlModel(t, nil, statuses)

	output := RenderASCII(model)

	assert.Contains(t, output, "[OK]")
	assert.Contains(t, output, "[RUN]")
	assert.Contains(t, output, "[FAIL]")
	assert.Contains(t, output, "[PEND]")
}

func TestRenderASCII_Connectors(t *testing.T) {
	model := sdxlModel(t, nil, nil)

	output := RenderASCII(model)

	// One connector between each pair of adjacent levels.
	assert.Equal(t, len(model.Levels)-1, strings.Count(output, "▼"))
}

func TestStatusTag(t *testing.T) {
	assert.Equal(t, "[OK]", statusTag("completed"))
	assert.Equal(t, "[FAIL]", statusTag("failed"))
	assert.Equal(t, "[RUN]", statusTag("running"))
	assert.Equal(t, "[PEND]", statusTag("pending"))
	assert.Equal(t, "", statusTag("canceled"))
}
