package mcp

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

func newTestNotifier() (*QueueNotifier, *SessionRegistry) {
	sessions := NewSessionRegistry()
	srv := server.NewMCPServer("test", "0.0.0")
	return NewQueueNotifier(srv, sessions), sessions
}

func TestQueueNotifier_NoBinding(t *testing.T) {
	n, _ := newTestNotifier()

	err := n.Notify(context.Background(), schema.QueueEvent{
		Type:   schema.EventQueueItemStatusChanged,
		ItemID: 42,
		Status: schema.ItemStatusCompleted,
	})
	assert.NoError(t, err)
}

func TestQueueNotifier_StaleSession(t *testing.T) {
	n, sessions := newTestNotifier()
	sessions.Register(42, "ghost", "run-1")

	// The session was never connected, so the push fails with a not-found
	// and the notifier detaches the session half of the binding.
	err := n.Notify(context.Background(), schema.QueueEvent{
		Type:   schema.EventQueueItemStatusChanged,
		ItemID: 42,
		Status: schema.ItemStatusCompleted,
	})
	assert.NoError(t, err)

	_, ok := sessions.SessionFor(42)
	assert.False(t, ok)
	runID, ok := sessions.RunFor(42)
	require.True(t, ok, "journal binding should survive the detach")
	assert.Equal(t, "run-1", runID)
}

func TestEventParams(t *testing.T) {
	full := eventParams(schema.QueueEvent{
		Type:      schema.EventInvocationStarted,
		QueueID:   schema.DefaultQueueID,
		ItemID:    42,
		BatchID:   "batch-1",
		SessionID: "sess-9",
		NodeID:    "denoise_1",
		NodeType:  "denoise_latents",
		Status:    schema.ItemStatusInProgress,
	})
	assert.Equal(t, schema.EventInvocationStarted, full["type"])
	assert.Equal(t, schema.DefaultQueueID, full["queue_id"])
	assert.EqualValues(t, 42, full["item_id"])
	assert.Equal(t, "batch-1", full["batch_id"])
	assert.Equal(t, "denoise_1", full["node_id"])
	assert.Equal(t, "in_progress", full["status"])

	sparse := eventParams(schema.QueueEvent{
		Type:    schema.EventQueueCleared,
		QueueID: schema.DefaultQueueID,
	})
	assert.Equal(t, schema.EventQueueCleared, sparse["type"])
	_, hasBatch := sparse["batch_id"]
	assert.False(t, hasBatch)
	_, hasNode := sparse["node_id"]
	assert.False(t, hasNode)
	_, hasStatus := sparse["status"]
	assert.False(t, hasStatus)
}
