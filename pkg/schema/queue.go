package schema

import "encoding/json"

// DefaultQueueID is the server's default session queue.
const DefaultQueueID = "default"

// Batch is the enqueue payload envelope: one graph plus run multiplicity and
// optional per-run value collections.
type Batch struct {
	Graph       *Graph         `json:"graph"`
	Runs        int            `json:"runs"`
	Data        [][]BatchDatum `json:"data,omitempty"`
	Origin      string         `json:"origin,omitempty"`
	Destination string         `json:"destination,omitempty"`
}

// BatchDatum supplies per-run values for one node field. All datum item
// lists inside the same inner collection are consumed in lockstep.
type BatchDatum struct {
	NodePath  string `json:"node_path"`
	FieldName string `json:"field_name"`
	Items     []any  `json:"items"`
}

// EnqueueRequest is the body of the enqueue endpoint.
type EnqueueRequest struct {
	Batch   Batch `json:"batch"`
	Prepend bool  `json:"prepend"`
}

// EnqueueResult is the server's answer to an enqueue.
type EnqueueResult struct {
	QueueID   string        `json:"queue_id"`
	Enqueued  int           `json:"enqueued"`
	Requested int           `json:"requested"`
	Batch     EnqueuedBatch `json:"batch"`
	ItemIDs   []int64       `json:"item_ids"`
	Priority  int           `json:"priority"`
}

// EnqueuedBatch echoes the accepted batch; only the assigned ID matters to
// clients.
type EnqueuedBatch struct {
	BatchID string `json:"batch_id"`
}

// QueueItem is one queued session as reported by the queue API. Timestamps
// stay strings: the server emits naive ISO stamps without a zone.
type QueueItem struct {
	ItemID         int64           `json:"item_id"`
	Status         ItemStatus      `json:"status"`
	Priority       int             `json:"priority,omitempty"`
	BatchID        string          `json:"batch_id"`
	QueueID        string          `json:"queue_id,omitempty"`
	SessionID      string          `json:"session_id"`
	ErrorType      string          `json:"error_type,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	ErrorTraceback string          `json:"error_traceback,omitempty"`
	CreatedAt      string          `json:"created_at,omitempty"`
	UpdatedAt      string          `json:"updated_at,omitempty"`
	StartedAt      string          `json:"started_at,omitempty"`
	CompletedAt    string          `json:"completed_at,omitempty"`
	FieldValues    json.RawMessage `json:"field_values,omitempty"`
	Session        *Session        `json:"session,omitempty"`
}

// Session is the executed graph state attached to a terminal queue item.
// Results are keyed by prepared (execution) node ID; SourcePreparedMapping
// translates source node IDs to prepared IDs. Older servers omit the mapping
// and key results directly by source ID.
type Session struct {
	ID                    string                     `json:"id"`
	Results               map[string]json.RawMessage `json:"results,omitempty"`
	SourcePreparedMapping map[string][]string        `json:"source_prepared_mapping,omitempty"`
	Graph                 json.RawMessage            `json:"graph,omitempty"`
	ExecutionGraph        json.RawMessage            `json:"execution_graph,omitempty"`
}

// QueueStatus is the queue-level counter snapshot.
type QueueStatus struct {
	Queue     QueueCounts     `json:"queue"`
	Processor ProcessorStatus `json:"processor"`
}

// QueueCounts breaks the queue population down by status.
type QueueCounts struct {
	QueueID    string `json:"queue_id"`
	Pending    int64  `json:"pending"`
	InProgress int64  `json:"in_progress"`
	Completed  int64  `json:"completed"`
	Failed     int64  `json:"failed"`
	Canceled   int64  `json:"canceled"`
	Total      int64  `json:"total"`
}

// ProcessorStatus reports the session processor's liveness.
type ProcessorStatus struct {
	IsStarted    bool `json:"is_started"`
	IsProcessing bool `json:"is_processing"`
}

// OutputMapping correlates one output-capable node with the images it
// produced in a run. InputIndex is nil when the node's board input is not
// exposed in the form. ImageNames is empty, never nil, when the node
// produced nothing.
type OutputMapping struct {
	NodeID     string   `json:"node_id"`
	InputIndex *int     `json:"input_index"`
	BoardID    string   `json:"board_id"`
	ImageNames []string `json:"image_names"`
}
