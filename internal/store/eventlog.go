package store

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// EventLog journals live queue events for a run and reads them back as a
// validated timeline.
type EventLog struct {
	store  Store
	logger *slog.Logger
}

// NewEventLog wraps a Store with event journaling operations.
func NewEventLog(s Store, logger *slog.Logger) *EventLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLog{store: s, logger: logger}
}

// Record consumes queue events from the channel and journals each one until
// the channel closes or the context is done. Both are ordinary stops; only a
// journal write failure is an error. Returns the number of events journaled.
func (el *EventLog) Record(ctx context.Context, runID string, events <-chan schema.QueueEvent) (int, error) {
	count := 0
	for {
		select {
		case <-ctx.Done():
			return count, nil
		case ev, ok := <-events:
			if !ok {
				return count, nil
			}
			if err := el.Append(ctx, runID, ev); err != nil {
				if ctx.Err() != nil {
					return count, nil
				}
				return count, err
			}
			count++
		}
	}
}

// Append journals a single queue event under the run.
func (el *EventLog) Append(ctx context.Context, runID string, ev schema.QueueEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "marshal event: %v", err).WithCause(err)
	}
	entry := &RunEvent{RunID: runID, Type: ev.Type, Payload: payload}
	if err := el.store.AppendEvent(ctx, entry); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "journal %s event: %v", ev.Type, err).WithCause(err)
	}
	el.logger.Debug("event journaled",
		"run_id", runID, "type", ev.Type, "sequence", entry.Sequence)
	return nil
}

// Timeline returns the full journaled event sequence for a run. A sequence
// gap means the journal was tampered with or a write was lost.
func (el *EventLog) Timeline(ctx context.Context, runID string) ([]*RunEvent, error) {
	events, err := el.store.Events(ctx, runID, 0)
	if err != nil {
		return nil, err
	}
	for i, e := range events {
		if want := int64(i + 1); e.Sequence != want {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"event journal for run %s has a sequence gap: expected %d, got %d",
				runID, want, e.Sequence)
		}
	}
	return events, nil
}

// Progress is the state reconstructed from a run's journaled events.
type Progress struct {
	Events       int               `json:"events"`
	LastStatus   schema.ItemStatus `json:"last_status,omitempty"`
	NodesStarted int               `json:"nodes_started"`
	NodesDone    int               `json:"nodes_done"`
	Errors       int               `json:"errors"`
}

// Replay folds a run's timeline into a progress summary.
func (el *EventLog) Replay(ctx context.Context, runID string) (*Progress, error) {
	events, err := el.Timeline(ctx, runID)
	if err != nil {
		return nil, err
	}

	p := &Progress{Events: len(events)}
	for _, e := range events {
		switch e.Type {
		case schema.EventQueueItemStatusChanged:
			var ev schema.QueueEvent
			if err := json.Unmarshal(e.Payload, &ev); err == nil && ev.Status != "" {
				p.LastStatus = ev.Status
			}
		case schema.EventInvocationStarted:
			p.NodesStarted++
		case schema.EventInvocationComplete:
			p.NodesDone++
		case schema.EventInvocationError:
			p.Errors++
		}
	}
	return p, nil
}
