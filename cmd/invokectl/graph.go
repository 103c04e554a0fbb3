package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/CodeGandee/invokeai-go-client/internal/diagram"
	"github.com/CodeGandee/invokeai-go-client/internal/store"
	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

func runGraph(args []string) error {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	ascii := fs.Bool("ascii", false, "render ASCII art instead of Mermaid")
	pngPath := fs.String("png", "", "render a PNG image to this path")
	runRef := fs.String("run", "", "overlay per-node statuses from this journaled run")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: invokectl graph [flags] <workflow.json>

Render the workflow's execution graph. Mermaid flowchart syntax goes to
stdout by default.

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

	ctx := context.Background()
	a := newApp()
	h, err := a.loadWorkflow(fs.Arg(0))
	if err != nil {
		return err
	}

	var statuses map[string]string
	if *runRef != "" {
		statuses, err = replayStatuses(ctx, a, *runRef)
		if err != nil {
			return err
		}
	}

	model, err := diagram.Build(h.Definition(), h.OutputNodeIDs(), statuses)
	if err != nil {
		return err
	}

	switch {
	case *pngPath != "":
		png, err := diagram.RenderImage(model)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*pngPath, png, 0o644); err != nil {
			return err
		}
		fmt.Printf("PNG written to %s\n", *pngPath)
	case *ascii:
		fmt.Print(diagram.RenderASCII(model))
	default:
		fmt.Print(diagram.RenderMermaid(model))
	}
	return nil
}

// replayStatuses folds a run's journaled events into per-node statuses for
// the diagram overlay.
func replayStatuses(ctx context.Context, a *app, runRef string) (map[string]string, error) {
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("run journal: %w", err)
	}
	defer st.Close()

	rec, err := st.FindRun(ctx, runRef)
	if err != nil {
		return nil, err
	}
	timeline, err := store.NewEventLog(st, a.logger).Timeline(ctx, rec.ID)
	if err != nil {
		return nil, err
	}

	events := make([]schema.QueueEvent, 0, len(timeline))
	for _, entry := range timeline {
		var ev schema.QueueEvent
		if err := json.Unmarshal(entry.Payload, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return diagram.StatusesFromEvents(events), nil
}
