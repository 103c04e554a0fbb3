package schema

import "encoding/json"

// Socket event names emitted by the server's queue namespace.
const (
	EventQueueItemStatusChanged = "queue_item_status_changed"
	EventInvocationStarted      = "invocation_started"
	EventInvocationProgress     = "invocation_progress"
	EventInvocationComplete     = "invocation_complete"
	EventInvocationError        = "invocation_error"
	EventBatchEnqueued          = "batch_enqueued"
	EventQueueCleared           = "queue_cleared"
	EventModelLoadStarted       = "model_load_started"
	EventModelLoadComplete      = "model_load_complete"
)

// ItemStatus represents the lifecycle state of a queue item.
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusInProgress ItemStatus = "in_progress"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
	ItemStatusCanceled   ItemStatus = "canceled"
)

// Terminal reports whether the status is final. Failed and canceled items are
// ordinary outcomes, not errors.
func (s ItemStatus) Terminal() bool {
	switch s {
	case ItemStatusCompleted, ItemStatusFailed, ItemStatusCanceled:
		return true
	}
	return false
}

// validItemTransitions mirrors the server's queue item lifecycle. Terminal
// states have no outgoing transitions.
var validItemTransitions = map[ItemStatus][]ItemStatus{
	ItemStatusPending:    {ItemStatusInProgress, ItemStatusCanceled, ItemStatusFailed},
	ItemStatusInProgress: {ItemStatusCompleted, ItemStatusFailed, ItemStatusCanceled},
	ItemStatusCompleted:  {},
	ItemStatusFailed:     {},
	ItemStatusCanceled:   {},
}

// CanTransition reports whether moving from one item status to another is a
// lifecycle the server would produce. Used to flag out-of-order events.
func CanTransition(from, to ItemStatus) bool {
	for _, allowed := range validItemTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// QueueEvent is a normalized socket event from the server's queue namespace.
// Payload keeps the raw event body for consumers that need fields beyond the
// promoted ones.
type QueueEvent struct {
	Type      string          `json:"type"`
	QueueID   string          `json:"queue_id"`
	ItemID    int64           `json:"item_id,omitempty"`
	BatchID   string          `json:"batch_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	NodeID    string          `json:"node_id,omitempty"`
	NodeType  string          `json:"node_type,omitempty"`
	Status    ItemStatus      `json:"status,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
