package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

func TestNewServer(t *testing.T) {
	s := NewServer(ServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.sessions)
	assert.NotNil(t, s.notifier)
}

func TestToolRegistration(t *testing.T) {
	s := NewServer(ServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 8)

	expectedTools := []string{
		"workflow_inputs",
		"workflow_submit",
		"workflow_status",
		"workflow_cancel",
		"list_models",
		"list_boards",
		"run_history",
		"workflow_graph",
	}
	for _, name := range expectedTools {
		tool := s.mcpServer.GetTool(name)
		assert.NotNil(t, tool, "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name        string
		toolName    string
		description string
	}{
		{"inputs", "workflow_inputs", "List the form-exposed inputs of a workflow export"},
		{"submit", "workflow_submit", "Queue one run of a workflow export, optionally overriding input values and waiting for the generated images"},
		{"status", "workflow_status", "Get the queue status of a submitted run"},
		{"cancel", "workflow_cancel", "Cancel a submitted run"},
		{"models", "list_models", "List the models installed on the server"},
		{"boards", "list_boards", "List the image boards on the server"},
		{"history", "run_history", "Query the local run journal"},
		{"graph", "workflow_graph", "Render a workflow's execution graph. Returns Mermaid flowchart syntax, ASCII art, or a base64-encoded PNG image"},
	}

	s := NewServer(ServerDeps{})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}

func TestDispatchEventJournalsAndSettles(t *testing.T) {
	ms := newTestStore()
	s := NewServer(ServerDeps{Store: ms})
	s.sessions.Register(42, "", "run-1")

	ctx := context.Background()
	s.dispatchEvent(ctx, schema.QueueEvent{
		Type:   schema.EventInvocationStarted,
		ItemID: 42,
		NodeID: "denoise_1",
	})
	assert.Len(t, ms.events["run-1"], 1)
	assert.Empty(t, ms.updates["run-1"])

	s.dispatchEvent(ctx, schema.QueueEvent{
		Type:   schema.EventQueueItemStatusChanged,
		ItemID: 42,
		Status: schema.ItemStatusCompleted,
	})
	assert.Len(t, ms.events["run-1"], 2)

	// Terminal status settles the run and drops the binding.
	require.NotEmpty(t, ms.updates["run-1"])
	last := ms.updates["run-1"][len(ms.updates["run-1"])-1]
	require.NotNil(t, last.Status)
	assert.Equal(t, schema.ItemStatusCompleted, *last.Status)
	assert.NotNil(t, last.CompletedAt)
	_, bound := s.sessions.RunFor(42)
	assert.False(t, bound)
}

func TestDispatchEventNonTerminalKeepsBinding(t *testing.T) {
	ms := newTestStore()
	s := NewServer(ServerDeps{Store: ms})
	s.sessions.Register(42, "", "run-1")

	s.dispatchEvent(context.Background(), schema.QueueEvent{
		Type:   schema.EventQueueItemStatusChanged,
		ItemID: 42,
		Status: schema.ItemStatusInProgress,
	})

	assert.Len(t, ms.events["run-1"], 1)
	assert.Empty(t, ms.updates["run-1"])
	runID, bound := s.sessions.RunFor(42)
	require.True(t, bound)
	assert.Equal(t, "run-1", runID)
}

func TestDispatchEventUnknownItem(t *testing.T) {
	ms := newTestStore()
	s := NewServer(ServerDeps{Store: ms})

	s.dispatchEvent(context.Background(), schema.QueueEvent{
		Type:   schema.EventQueueItemStatusChanged,
		ItemID: 7,
		Status: schema.ItemStatusCompleted,
	})

	assert.Empty(t, ms.events)
	assert.Empty(t, ms.updates)
}
