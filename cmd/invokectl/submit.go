package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/CodeGandee/invokeai-go-client/internal/events"
	"github.com/CodeGandee/invokeai-go-client/internal/store"
	"github.com/CodeGandee/invokeai-go-client/internal/sweep"
	"github.com/CodeGandee/invokeai-go-client/pkg/client"
	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
	"github.com/CodeGandee/invokeai-go-client/pkg/workflow"
)

func runSubmit(args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	var sets, sweeps multiFlag
	fs.Var(&sets, "set", "override an input as index=value (repeatable)")
	fs.Var(&sweeps, "sweep", "sweep an input as index=expression (repeatable)")
	runs := fs.Int("runs", 1, "number of queue items to enqueue")
	board := fs.String("board", "", "route generated images to this board (name or ID)")
	wait := fs.Bool("wait", false, "poll until the run reaches a terminal status")
	watch := fs.Bool("watch", false, "wait on the queue event stream instead of polling")
	timeout := fs.Duration("timeout", 10*time.Minute, "bound on the wait")
	noResolve := fs.Bool("no-resolve-models", false, "skip matching model fields against the server inventory")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: invokectl submit [flags] <workflow.json>

Queue a workflow export for execution. Model identifier fields are
matched against the server's installed models unless disabled.

Flags:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("workflow export path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp()
	h, err := a.loadWorkflow(fs.Arg(0))
	if err != nil {
		return err
	}
	c, err := a.client()
	if err != nil {
		return err
	}

	if !*noResolve {
		if err := resolveModels(ctx, a, c, h); err != nil {
			return err
		}
	}
	if err := applyAssignments(h, sets); err != nil {
		return err
	}
	if *board != "" {
		boardID, err := resolveBoardID(ctx, c, *board)
		if err != nil {
			return err
		}
		routed, err := routeBoardInputs(h, boardID)
		if err != nil {
			return err
		}
		if routed == 0 {
			return fmt.Errorf("workflow exposes no board input to route to %q", *board)
		}
	}

	run, err := enqueue(ctx, h, c, sweeps, *runs)
	if err != nil {
		return err
	}
	fmt.Printf("submitted %s: batch %s, %d item(s)\n", h.Name(), run.BatchID, len(run.ItemIDs))

	st, stErr := a.openStore(ctx)
	if stErr != nil {
		a.logger.Warn("run journal unavailable", "error", stErr)
	} else {
		defer st.Close()
	}
	journal := storeOrNil(st, stErr)
	runIDs := journalSubmission(ctx, a, journal, h, fs.Arg(0), run)
	for _, itemID := range run.ItemIDs {
		fmt.Printf("  item %d  run %s\n", itemID, shortRunID(runIDs[itemID]))
	}

	if !*wait && !*watch {
		return nil
	}
	return awaitItems(ctx, a, c, journal, h, run, runIDs, *watch, *timeout)
}

// resolveModels rewrites model identifier fields from the server inventory
// and reports what changed. Misses are informational; the server still gets
// the exported identity and makes the final call.
func resolveModels(ctx context.Context, a *app, c *client.Client, h *workflow.Handle) error {
	inventory, err := c.ListModels(ctx, client.ListModelsOptions{})
	if err != nil {
		a.logger.Warn("model inventory unavailable, submitting exported identities", "error", err)
		return nil
	}
	report, err := h.ResolveModels(ctx, inventory)
	if err != nil {
		return err
	}
	for _, r := range report.Resolutions {
		fmt.Printf("resolved input %d (%s.%s) to %s via %s\n",
			r.InputIndex, r.NodeID, r.FieldName, r.Resolved.Name, r.MatchedBy)
	}
	for _, m := range report.Misses {
		fmt.Printf("no installed model matches input %d (%s.%s): %s\n",
			m.InputIndex, m.NodeID, m.FieldName, m.Reason)
	}
	return nil
}

// resolveBoardID accepts a board ID or name. Names are looked up on the
// server; an unrecognized value passes through as an ID so offline sentinel
// values like "none" keep working.
func resolveBoardID(ctx context.Context, c *client.Client, ref string) (string, error) {
	if ref == schema.BoardNone {
		return ref, nil
	}
	boards, err := c.ListBoards(ctx, true)
	if err != nil {
		return "", fmt.Errorf("board lookup: %w", err)
	}
	for _, b := range boards {
		if b.BoardID == ref {
			return ref, nil
		}
	}
	for _, b := range boards {
		if b.BoardName == ref {
			return b.BoardID, nil
		}
	}
	return ref, nil
}

func enqueue(ctx context.Context, h *workflow.Handle, c *client.Client, sweeps []string, runs int) (*workflow.Run, error) {
	if len(sweeps) == 0 && runs <= 1 {
		return h.Submit(ctx, c)
	}
	specs, err := sweep.ParseSpecs(sweeps)
	if err != nil {
		return nil, err
	}
	values, err := sweep.NewExpander().Expand(ctx, specs, runs)
	if err != nil {
		return nil, err
	}
	return h.SubmitSweep(ctx, c, values, runs)
}

// journalSubmission records one journal run per queue item. Failures are
// warnings; the batch is already queued server-side.
func journalSubmission(ctx context.Context, a *app, st store.Store, h *workflow.Handle, path string, run *workflow.Run) map[int64]string {
	runIDs := make(map[int64]string, len(run.ItemIDs))
	if st == nil {
		return runIDs
	}
	now := time.Now().UTC()
	for _, itemID := range run.ItemIDs {
		rec := &store.Run{
			ID:        uuid.New().String(),
			Workflow:  h.Name(),
			Path:      path,
			QueueID:   run.QueueID,
			BatchID:   run.BatchID,
			ItemID:    itemID,
			Status:    schema.ItemStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := st.RecordRun(ctx, rec); err != nil {
			a.logger.Warn("run journal write failed", "item_id", itemID, "error", err)
			continue
		}
		runIDs[itemID] = rec.ID
	}
	return runIDs
}

// awaitItems waits for every queue item of the run in turn, journals the
// outcome and prints the mapped outputs.
func awaitItems(ctx context.Context, a *app, c *client.Client, st store.Store, h *workflow.Handle, run *workflow.Run, runIDs map[int64]string, watch bool, timeout time.Duration) error {
	var src *events.Source
	if watch {
		s, err := events.NewSource(c.Host(), run.QueueID, events.WithSourceLogger(a.logger))
		if err != nil {
			return err
		}
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("event stream: %w", err)
		}
		defer s.Stop()
		src = s
	}

	var firstErr error
	for _, itemID := range run.ItemIDs {
		item, err := awaitItem(ctx, a, c, st, h, run, itemID, runIDs[itemID], src, timeout)
		if err != nil {
			return err
		}
		if err := reportItem(ctx, a, st, h, item, runIDs[itemID]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func awaitItem(ctx context.Context, a *app, c *client.Client, st store.Store, h *workflow.Handle, run *workflow.Run, itemID int64, runID string, src *events.Source, timeout time.Duration) (*schema.QueueItem, error) {
	single := &workflow.Run{QueueID: run.QueueID, BatchID: run.BatchID, ItemIDs: []int64{itemID}}
	opts := workflow.WaitOptions{Timeout: timeout}

	if src == nil {
		return h.WaitForCompletion(ctx, c, single, opts)
	}

	// Journal the event stream alongside the wait so history can replay it.
	if st != nil && runID != "" {
		ch, cancel, err := src.SubscribeFiltered(ctx, events.Filter{QueueID: run.QueueID, ItemID: itemID})
		if err == nil {
			defer cancel()
			go store.NewEventLog(st, a.logger).Record(ctx, runID, ch)
		} else {
			a.logger.Warn("event journal subscription failed", "error", err)
		}
	}
	return h.WaitForEvents(ctx, c, src, single, opts)
}

// reportItem settles the journal record and prints the terminal status and
// mapped outputs of one completed item.
func reportItem(ctx context.Context, a *app, st store.Store, h *workflow.Handle, item *schema.QueueItem, runID string) error {
	settleJournal(ctx, a, st, runID, item)

	fmt.Printf("item %d: %s\n", item.ItemID, item.Status)
	if item.ErrorMessage != "" {
		fmt.Printf("  error: %s\n", item.ErrorMessage)
	}
	if item.Status != schema.ItemStatusCompleted {
		if item.ErrorMessage != "" {
			return fmt.Errorf("item %d %s: %s", item.ItemID, item.Status, item.ErrorMessage)
		}
		return fmt.Errorf("item %d %s", item.ItemID, item.Status)
	}

	mappings, err := h.MapOutputs(item)
	if err != nil {
		return fmt.Errorf("output mapping: %w", err)
	}
	for _, m := range mappings {
		for _, name := range m.ImageNames {
			fmt.Printf("  %s  board=%s  %s\n", m.NodeID, m.BoardID, name)
		}
	}
	journalOutputs(ctx, a, st, runID, mappings)
	return nil
}

func settleJournal(ctx context.Context, a *app, st store.Store, runID string, item *schema.QueueItem) {
	if st == nil || runID == "" || item == nil {
		return
	}
	status := item.Status
	update := store.RunUpdate{Status: &status, SessionID: item.SessionID}
	if status.Terminal() {
		now := time.Now().UTC()
		update.CompletedAt = &now
	}
	if item.ErrorType != "" {
		et := item.ErrorType
		update.ErrorType = &et
	}
	if item.ErrorMessage != "" {
		em := item.ErrorMessage
		update.ErrorMessage = &em
	}
	if err := st.UpdateRunStatus(ctx, runID, update); err != nil {
		a.logger.Warn("run journal update failed", "run_id", runID, "error", err)
	}
}

func journalOutputs(ctx context.Context, a *app, st store.Store, runID string, mappings []schema.OutputMapping) {
	if st == nil || runID == "" || len(mappings) == 0 {
		return
	}
	artifacts := store.FromMappings(mappings)
	if err := st.AddArtifacts(ctx, runID, artifacts); err != nil {
		a.logger.Warn("artifact journal write failed", "run_id", runID, "error", err)
	}
}

func shortRunID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
