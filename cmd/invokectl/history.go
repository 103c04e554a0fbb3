package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/CodeGandee/invokeai-go-client/internal/store"
	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	status := fs.String("status", "", "filter by terminal status (completed, failed, canceled, ...)")
	wf := fs.String("workflow", "", "filter by workflow name")
	limit := fs.Int("limit", 20, "maximum rows to list")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: invokectl history [flags] [run-id]

List journaled runs, or show one run (by ID or prefix) with its
artifacts and replayed event progress.

Flags:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	a := newApp()
	st, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("run journal: %w", err)
	}
	defer st.Close()

	if fs.NArg() > 0 {
		return historyDetail(ctx, a, st, fs.Arg(0))
	}

	filter := store.RunFilter{Workflow: *wf, Limit: *limit}
	if *status != "" {
		s := schema.ItemStatus(*status)
		filter.Status = &s
	}
	runs, err := st.ListRuns(ctx, filter)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs journaled")
		return nil
	}

	fmt.Printf("%-10s %-24s %-8s %-12s %s\n", "RUN", "WORKFLOW", "ITEM", "STATUS", "CREATED")
	for _, r := range runs {
		fmt.Printf("%-10s %-24s %-8d %-12s %s\n",
			shortRunID(r.ID), truncate(r.Workflow, 24), r.ItemID, r.Status,
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func historyDetail(ctx context.Context, a *app, st store.Store, ref string) error {
	rec, err := st.FindRun(ctx, ref)
	if err != nil {
		return err
	}

	fmt.Printf("run %s\n", rec.ID)
	fmt.Printf("  workflow: %s\n", rec.Workflow)
	if rec.Path != "" {
		fmt.Printf("  export:   %s\n", rec.Path)
	}
	fmt.Printf("  queue:    %s  batch %s  item %d\n", rec.QueueID, rec.BatchID, rec.ItemID)
	fmt.Printf("  status:   %s\n", rec.Status)
	if rec.ErrorMessage != "" {
		fmt.Printf("  error:    (%s) %s\n", rec.ErrorType, rec.ErrorMessage)
	}
	fmt.Printf("  created:  %s\n", rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if rec.CompletedAt != nil {
		fmt.Printf("  finished: %s\n", rec.CompletedAt.Local().Format("2006-01-02 15:04:05"))
	}

	artifacts, err := st.ListArtifacts(ctx, rec.ID)
	if err != nil {
		return err
	}
	if len(artifacts) > 0 {
		fmt.Println("  artifacts:")
		for _, art := range artifacts {
			fmt.Printf("    %s  board=%s  %s\n", art.NodeID, art.BoardID, art.ImageName)
		}
	}

	if progress, err := store.NewEventLog(st, a.logger).Replay(ctx, rec.ID); err == nil && progress.Events > 0 {
		fmt.Printf("  events:   %d journaled, %d/%d nodes done", progress.Events, progress.NodesDone, progress.NodesStarted)
		if progress.Errors > 0 {
			fmt.Printf(", %d errors", progress.Errors)
		}
		fmt.Println()
	}
	return nil
}
