package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/CodeGandee/invokeai-go-client/internal/events"
	"github.com/CodeGandee/invokeai-go-client/pkg/mcp"
)

func runMCP(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	noEvents := fs.Bool("no-events", false, "disable the queue event stream (no live notifications)")
	noStore := fs.Bool("no-store", false, "disable the run journal")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: invokectl mcp [flags]

Serve the workflow tools over MCP on stdio. Agents get live queue event
notifications for the runs they submit.

Flags:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp()
	c, err := a.client()
	if err != nil {
		return err
	}

	deps := mcp.ServerDeps{
		Executor: c,
		Catalog:  c,
		QueueID:  a.cfg.QueueID,
		Version:  version,
		Logger:   a.logger,
	}

	if !*noStore {
		st, err := a.openStore(ctx)
		if err != nil {
			a.logger.Warn("run journal unavailable", "error", err)
		} else {
			defer st.Close()
			deps.Store = st
		}
	}

	if !*noEvents {
		src, err := events.NewSource(c.Host(), a.cfg.QueueID, events.WithSourceLogger(a.logger))
		if err != nil {
			return err
		}
		if err := src.Start(ctx); err != nil {
			a.logger.Warn("event stream unavailable, notifications disabled", "error", err)
		} else {
			defer src.Stop()
			deps.Events = src
		}
	}

	return mcp.NewServer(deps).Serve(ctx)
}
