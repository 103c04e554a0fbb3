// Package events distributes queue events from a server's socket.io namespace
// to in-process subscribers. The Hub fans events out over buffered channels;
// the Source feeds it from a live connection.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/CodeGandee/invokeai-go-client/internal/expressions"
	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

const defaultChannelBuffer = 64

// Filter narrows a subscription. Zero fields match everything; Expr is an
// optional CEL predicate over the event fields (type, queue_id, item_id,
// batch_id, session_id, node_id, node_type, status, payload).
type Filter struct {
	QueueID string
	BatchID string
	ItemID  int64
	Types   []string
	Expr    string
}

// subscriber holds a channel and filter for a single subscriber.
type subscriber struct {
	ch     chan schema.QueueEvent
	filter Filter
}

// Hub is an in-memory event distributor.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	seq    atomic.Uint64
	cel    *expressions.CELEngine
	logger *slog.Logger
}

// NewHub creates a Hub with its own CEL engine for Expr filters.
func NewHub() (*Hub, error) {
	cel, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &Hub{
		subs:   make(map[uint64]*subscriber),
		cel:    cel,
		logger: slog.Default(),
	}, nil
}

// SetLogger replaces the hub's logger.
func (h *Hub) SetLogger(l *slog.Logger) { h.logger = l }

// Publish sends an event to all matching subscribers.
// Non-blocking: if a subscriber's channel is full the event is dropped.
func (h *Hub) Publish(ctx context.Context, event schema.QueueEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	var data map[string]any // built once, only when some filter needs CEL

	for _, sub := range h.subs {
		if !matchFilter(sub.filter, event) {
			continue
		}
		if sub.filter.Expr != "" {
			if data == nil {
				data = eventData(event)
			}
			out, err := h.cel.Evaluate(ctx, sub.filter.Expr, data)
			if err != nil {
				h.logger.DebugContext(ctx, "event filter evaluation failed",
					slog.String("expr", sub.filter.Expr), slog.Any("error", err))
				continue
			}
			if pass, ok := out.(bool); !ok || !pass {
				continue
			}
		}
		select {
		case sub.ch <- event:
		default:
			// backpressure: drop event for slow subscriber
		}
	}
	return nil
}

// Subscribe creates a new subscription. Returns a receive-only channel, a
// cancel function, and any error. An invalid Expr fails here, not at publish.
func (h *Hub) Subscribe(ctx context.Context, filter Filter) (<-chan schema.QueueEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if filter.Expr != "" {
		if err := h.cel.Compile(filter.Expr); err != nil {
			return nil, nil, err
		}
	}

	id := h.seq.Add(1)
	ch := make(chan schema.QueueEvent, defaultChannelBuffer)

	h.mu.Lock()
	h.subs[id] = &subscriber{ch: ch, filter: filter}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}

	return ch, cancel, nil
}

// SubscriberCount reports the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// matchFilter returns true if the event passes the structural filter criteria.
func matchFilter(f Filter, e schema.QueueEvent) bool {
	if f.QueueID != "" && f.QueueID != e.QueueID {
		return false
	}
	if f.BatchID != "" && f.BatchID != e.BatchID {
		return false
	}
	if f.ItemID != 0 && f.ItemID != e.ItemID {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if t == e.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// eventData flattens an event into the CEL activation shape.
func eventData(e schema.QueueEvent) map[string]any {
	data := map[string]any{
		"type":       e.Type,
		"queue_id":   e.QueueID,
		"item_id":    e.ItemID,
		"batch_id":   e.BatchID,
		"session_id": e.SessionID,
		"node_id":    e.NodeID,
		"node_type":  e.NodeType,
		"status":     string(e.Status),
	}
	if len(e.Payload) > 0 {
		var payload map[string]any
		if err := json.Unmarshal(e.Payload, &payload); err == nil {
			data["payload"] = payload
		}
	}
	return data
}
