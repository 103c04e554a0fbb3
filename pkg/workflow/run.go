package workflow

import (
	"context"
	"time"

	"github.com/CodeGandee/invokeai-go-client/internal/logging"
	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// Executor is the queue-facing collaborator Submit and the wait loops talk
// to. *client.Client satisfies it.
type Executor interface {
	EnqueueBatch(ctx context.Context, req *schema.EnqueueRequest) (*schema.EnqueueResult, error)
	QueueItem(ctx context.Context, itemID int64) (*schema.QueueItem, error)
	CancelQueueItem(ctx context.Context, itemID int64) (*schema.QueueItem, error)
}

// EventSource delivers queue events for event-driven waits. *events.Source
// satisfies it.
type EventSource interface {
	Subscribe(ctx context.Context, queueID string) (<-chan schema.QueueEvent, func(), error)
}

// Run identifies one submitted execution. SessionID is filled in once the
// first status observation reports it.
type Run struct {
	QueueID   string  `json:"queue_id"`
	BatchID   string  `json:"batch_id"`
	ItemIDs   []int64 `json:"item_ids"`
	SessionID string  `json:"session_id,omitempty"`
}

// ItemID returns the first queue item of the run, 0 when none were enqueued.
func (r *Run) ItemID() int64 {
	if len(r.ItemIDs) == 0 {
		return 0
	}
	return r.ItemIDs[0]
}

// WaitOptions tunes the wait loops.
type WaitOptions struct {
	// Interval is the poll cadence. Defaults to one second.
	Interval time.Duration
	// Timeout bounds the whole wait. Zero means the context alone decides.
	Timeout time.Duration
}

func (o WaitOptions) interval() time.Duration {
	if o.Interval <= 0 {
		return time.Second
	}
	return o.Interval
}

// Submit validates, builds and enqueues the workflow as a single run.
func (h *Handle) Submit(ctx context.Context, exec Executor) (*Run, error) {
	batch, err := h.BuildSubmission()
	if err != nil {
		return nil, err
	}

	res, err := exec.EnqueueBatch(ctx, &schema.EnqueueRequest{Batch: *batch})
	if err != nil {
		return nil, err
	}

	run := &Run{
		QueueID: res.QueueID,
		BatchID: res.Batch.BatchID,
		ItemIDs: res.ItemIDs,
	}
	ctx = logging.WithRun(ctx, run.QueueID, run.BatchID, run.ItemID(), "")
	h.logger.InfoContext(ctx, "workflow submitted",
		"workflow", h.def.Name,
		"enqueued", res.Enqueued,
	)
	return run, nil
}

// SubmitSweep enqueues the workflow with per-run value collections for the
// given input indices, one queue item per run.
func (h *Handle) SubmitSweep(ctx context.Context, exec Executor, values map[int][]any, runs int) (*Run, error) {
	batch, err := h.BuildSweepSubmission(values, runs)
	if err != nil {
		return nil, err
	}

	res, err := exec.EnqueueBatch(ctx, &schema.EnqueueRequest{Batch: *batch})
	if err != nil {
		return nil, err
	}

	run := &Run{
		QueueID: res.QueueID,
		BatchID: res.Batch.BatchID,
		ItemIDs: res.ItemIDs,
	}
	ctx = logging.WithRun(ctx, run.QueueID, run.BatchID, run.ItemID(), "")
	h.logger.InfoContext(ctx, "sweep submitted",
		"workflow", h.def.Name,
		"runs", runs,
		"enqueued", res.Enqueued,
	)
	return run, nil
}

// WaitForCompletion polls the run's first queue item until it reaches a
// terminal status. Completed, failed and canceled are all ordinary outcomes
// returned as data; only transport failures and context expiry are errors.
// The loop is strictly non-overlapping: one poll, then one tick.
func (h *Handle) WaitForCompletion(ctx context.Context, exec Executor, run *Run, opts WaitOptions) (*schema.QueueItem, error) {
	if run == nil || len(run.ItemIDs) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "run has no queue items to wait on")
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	itemID := run.ItemID()
	ctx = logging.WithRun(ctx, run.QueueID, run.BatchID, itemID, run.SessionID)

	ticker := time.NewTicker(opts.interval())
	defer ticker.Stop()

	for {
		item, err := exec.QueueItem(ctx, itemID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, waitExpired(itemID, ctx.Err())
			}
			return nil, err
		}
		h.observe(run, item)

		if item.Status.Terminal() {
			h.logger.InfoContext(ctx, "run finished", "status", string(item.Status))
			return item, nil
		}

		select {
		case <-ctx.Done():
			return nil, waitExpired(itemID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// WaitForEvents waits on the event stream instead of polling. When the
// subscription cannot be established the wait degrades to polling; while
// subscribed, a slow recheck poll guards against events dropped under
// backpressure. The terminal item is always re-fetched so the caller gets
// the full session results.
func (h *Handle) WaitForEvents(ctx context.Context, exec Executor, src EventSource, run *Run, opts WaitOptions) (*schema.QueueItem, error) {
	if run == nil || len(run.ItemIDs) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "run has no queue items to wait on")
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	events, unsubscribe, err := src.Subscribe(ctx, run.QueueID)
	if err != nil {
		h.logger.WarnContext(ctx, "event subscription failed, polling instead", "error", err)
		return h.WaitForCompletion(ctx, exec, run, opts)
	}
	defer unsubscribe()

	itemID := run.ItemID()
	ctx = logging.WithRun(ctx, run.QueueID, run.BatchID, itemID, run.SessionID)

	recheck := time.NewTicker(10 * opts.interval())
	defer recheck.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, waitExpired(itemID, ctx.Err())

		case ev, ok := <-events:
			if !ok {
				h.logger.WarnContext(ctx, "event stream closed, polling instead")
				return h.WaitForCompletion(ctx, exec, run, opts)
			}
			if ev.ItemID != itemID || ev.Type != schema.EventQueueItemStatusChanged {
				continue
			}
			if run.SessionID == "" && ev.SessionID != "" {
				run.SessionID = ev.SessionID
			}
			if ev.Status.Terminal() {
				return h.fetchTerminal(ctx, exec, run, itemID)
			}

		case <-recheck.C:
			item, err := exec.QueueItem(ctx, itemID)
			if err != nil {
				if ctx.Err() != nil {
					return nil, waitExpired(itemID, ctx.Err())
				}
				return nil, err
			}
			h.observe(run, item)
			if item.Status.Terminal() {
				h.logger.InfoContext(ctx, "run finished", "status", string(item.Status))
				return item, nil
			}
		}
	}
}

// Cancel requests cancellation of the run's first queue item. The request is
// fire-and-forget server-side; the returned item reflects the state at the
// time the server processed it.
func (h *Handle) Cancel(ctx context.Context, exec Executor, run *Run) (*schema.QueueItem, error) {
	if run == nil || len(run.ItemIDs) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "run has no queue items to cancel")
	}

	itemID := run.ItemID()
	ctx = logging.WithRun(ctx, run.QueueID, run.BatchID, itemID, run.SessionID)

	item, err := exec.CancelQueueItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	h.observe(run, item)
	h.logger.InfoContext(ctx, "cancel requested", "status", string(item.Status))
	return item, nil
}

// fetchTerminal re-fetches a just-terminal item so the session results are
// present even when the triggering event carried none.
func (h *Handle) fetchTerminal(ctx context.Context, exec Executor, run *Run, itemID int64) (*schema.QueueItem, error) {
	item, err := exec.QueueItem(ctx, itemID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, waitExpired(itemID, ctx.Err())
		}
		return nil, err
	}
	h.observe(run, item)
	h.logger.InfoContext(ctx, "run finished", "status", string(item.Status))
	return item, nil
}

// observe backfills run metadata from a fetched item.
func (h *Handle) observe(run *Run, item *schema.QueueItem) {
	if run.SessionID == "" && item.SessionID != "" {
		run.SessionID = item.SessionID
	}
	if run.BatchID == "" && item.BatchID != "" {
		run.BatchID = item.BatchID
	}
}

func waitExpired(itemID int64, cause error) error {
	return schema.NewErrorf(schema.ErrCodeTimeout, "waiting for queue item %d: %v", itemID, cause).
		WithCause(cause).
		WithDetails(map[string]any{"item_id": itemID})
}
