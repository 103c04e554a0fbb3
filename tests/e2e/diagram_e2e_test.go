package e2e

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeGandee/invokeai-go-client/internal/diagram"
	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
	"github.com/CodeGandee/invokeai-go-client/pkg/workflow"
)

func TestDiagramFromLoadedExport(t *testing.T) {
	wf, err := workflow.Load([]byte(sdxlExport))
	require.NoError(t, err)

	model, err := diagram.Build(wf.Definition(), wf.OutputNodeIDs(), nil)
	require.NoError(t, err)

	// Only invocation nodes are drawn, layered in execution order.
	assert.Len(t, model.Nodes, 7)
	assert.Equal(t, [][]string{
		{"loader", "neg", "noise_1", "pos"},
		{"denoise_1"},
		{"l2i_1"},
		{"save_1"},
	}, model.Levels)

	mermaid := diagram.RenderMermaid(model)
	assert.True(t, strings.HasPrefix(mermaid, "graph TD"))
	assert.Contains(t, mermaid, "%% sdxl-t2i")
	assert.Contains(t, mermaid, `pos(["Positive"])`)
	assert.Contains(t, mermaid, "denoise_1 -->|latents| l2i_1")
	assert.Contains(t, mermaid, "class l2i_1 output")
	assert.Contains(t, mermaid, "class save_1 output")
	assert.NotContains(t, mermaid, "note_1")

	ascii := diagram.RenderASCII(model)
	assert.Contains(t, ascii, "=== sdxl-t2i ===")
	assert.Contains(t, ascii, "Positive")

	png, err := diagram.RenderImage(model)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")), "expected PNG output")
}

func TestDiagramStatusOverlayFromEvents(t *testing.T) {
	wf, err := workflow.Load([]byte(sdxlExport))
	require.NoError(t, err)

	// The event trail of a run that failed halfway: later events win.
	statuses := diagram.StatusesFromEvents([]schema.QueueEvent{
		{Type: schema.EventInvocationStarted, NodeID: "loader"},
		{Type: schema.EventInvocationComplete, NodeID: "loader"},
		{Type: schema.EventInvocationStarted, NodeID: "denoise_1"},
		{Type: schema.EventInvocationError, NodeID: "denoise_1"},
		{Type: schema.EventInvocationStarted, NodeID: "l2i_1"},
		{Type: schema.EventQueueItemStatusChanged, Status: schema.ItemStatusFailed},
	})
	require.Equal(t, map[string]string{
		"loader":    "completed",
		"denoise_1": "failed",
		"l2i_1":     "running",
	}, statuses)

	model, err := diagram.Build(wf.Definition(), wf.OutputNodeIDs(), statuses)
	require.NoError(t, err)

	mermaid := diagram.RenderMermaid(model)
	assert.Contains(t, mermaid, "class loader completed")
	assert.Contains(t, mermaid, "class denoise_1 failed")
	assert.Contains(t, mermaid, "class l2i_1 running")
	// Untouched output nodes keep the output styling.
	assert.Contains(t, mermaid, "class save_1 output")

	ascii := diagram.RenderASCII(model)
	assert.Contains(t, ascii, "[FAIL]")
	assert.Contains(t, ascii, "[OK]")
}
