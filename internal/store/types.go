package store

import (
	"encoding/json"
	"time"

	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// Run is the journal entry for one submitted workflow execution. Status tracks
// the queue item lifecycle; error fields are set only for failed runs.
type Run struct {
	ID           string            `json:"id"`
	Workflow     string            `json:"workflow"`
	Path         string            `json:"path,omitempty"`
	QueueID      string            `json:"queue_id"`
	BatchID      string            `json:"batch_id,omitempty"`
	ItemID       int64             `json:"item_id,omitempty"`
	SessionID    string            `json:"session_id,omitempty"`
	Status       schema.ItemStatus `json:"status"`
	ErrorType    string            `json:"error_type,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// Artifact records one generated image attributed to a run's output node.
// InputIndex points at the board input that routed it, when one is exposed.
type Artifact struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	NodeID     string    `json:"node_id"`
	BoardID    string    `json:"board_id"`
	ImageName  string    `json:"image_name"`
	InputIndex *int      `json:"input_index,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// RunEvent is one observed queue event, sequenced per run in arrival order.
type RunEvent struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"run_id"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}

// --- Filter and update types ---

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status   *schema.ItemStatus `json:"status,omitempty"`
	Workflow string             `json:"workflow,omitempty"`
	Since    *time.Time         `json:"since,omitempty"`
	Limit    int                `json:"limit,omitempty"`
	Offset   int                `json:"offset,omitempty"`
}

// RunUpdate specifies the mutable fields of a run. Nil pointers leave the
// stored value alone; SessionID is written only when non-empty so late
// observations never blank an id recorded earlier.
type RunUpdate struct {
	Status       *schema.ItemStatus `json:"status,omitempty"`
	SessionID    string             `json:"session_id,omitempty"`
	ErrorType    *string            `json:"error_type,omitempty"`
	ErrorMessage *string            `json:"error_message,omitempty"`
	CompletedAt  *time.Time         `json:"completed_at,omitempty"`
}
