package main

import (
	"context"
	"flag"
	"fmt"
	"os"
)

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	itemID := fs.Int64("item", 0, "queue item ID, bypassing the journal")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: invokectl status [flags] [run-id]

Report the queue status of a run, addressed by journal run ID (prefixes
work) or by explicit queue item ID.

Flags:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	a := newApp()
	c, err := a.client()
	if err != nil {
		return err
	}

	st, stErr := a.openStore(ctx)
	if stErr != nil {
		a.logger.Warn("run journal unavailable", "error", stErr)
	} else {
		defer st.Close()
	}
	var journal = storeOrNil(st, stErr)

	rec, target, err := resolveRunTarget(ctx, journal, fs.Arg(0), *itemID)
	if err != nil {
		return err
	}

	item, err := c.QueueItem(ctx, target)
	if err != nil {
		return err
	}
	if rec != nil {
		settleJournal(ctx, a, journal, rec.ID, item)
		fmt.Printf("run %s (%s)\n", shortRunID(rec.ID), rec.Workflow)
	}
	fmt.Printf("item %d: %s\n", item.ItemID, item.Status)
	if item.BatchID != "" {
		fmt.Printf("  batch: %s\n", item.BatchID)
	}
	if item.SessionID != "" {
		fmt.Printf("  session: %s\n", item.SessionID)
	}
	if item.ErrorMessage != "" {
		fmt.Printf("  error (%s): %s\n", item.ErrorType, item.ErrorMessage)
	}
	return nil
}
