package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"

	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// NotificationMethod is the JSON-RPC method queue events are pushed under.
const NotificationMethod = "notifications/queue/event"

// RunNotifier pushes queue events to the sessions watching their runs.
type RunNotifier interface {
	Notify(ctx context.Context, event schema.QueueEvent) error
}

// QueueNotifier implements RunNotifier using MCP server push.
type QueueNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

// NewQueueNotifier creates a notifier that pushes over the given server.
func NewQueueNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *QueueNotifier {
	return &QueueNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Notify pushes the event to the session that submitted its queue item.
// Best-effort: events for items no session is watching are dropped, and a
// session that expired between lookup and send is detached, not an error.
func (n *QueueNotifier) Notify(_ context.Context, event schema.QueueEvent) error {
	sessionID, ok := n.sessions.SessionFor(event.ItemID)
	if !ok {
		return nil
	}
	err := n.mcpServer.SendNotificationToSpecificClient(sessionID, NotificationMethod, eventParams(event))
	if errors.Is(err, server.ErrSessionNotFound) {
		n.sessions.Remove(sessionID)
		return nil
	}
	return err
}

// eventParams flattens an event into the notification payload, dropping
// zero-valued fields.
func eventParams(e schema.QueueEvent) map[string]any {
	params := map[string]any{
		"type":     e.Type,
		"queue_id": e.QueueID,
		"item_id":  e.ItemID,
	}
	if e.BatchID != "" {
		params["batch_id"] = e.BatchID
	}
	if e.SessionID != "" {
		params["session_id"] = e.SessionID
	}
	if e.NodeID != "" {
		params["node_id"] = e.NodeID
	}
	if e.NodeType != "" {
		params["node_type"] = e.NodeType
	}
	if e.Status != "" {
		params["status"] = string(e.Status)
	}
	return params
}
