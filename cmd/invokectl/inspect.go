package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/CodeGandee/invokeai-go-client/internal/expressions"
)

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	jqExpr := fs.String("jq", "", "evaluate a jq expression against the raw export instead of listing inputs")
	asJSON := fs.Bool("json", false, "print inputs as JSON")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: invokectl inspect [flags] <workflow.json>

List the form-exposed inputs of a workflow export with their stable
indices, or query the raw export document with -jq.

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
	path := fs.Arg(0)

	if *jqExpr != "" {
		return inspectJQ(path, *jqExpr)
	}

	a := newApp()
	h, err := a.loadWorkflow(path)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(h.ListInputs())
	}

	fmt.Printf("%s (%d inputs)\n\n", h.Name(), h.InputCount())
	fmt.Printf("%-5s %-24s %-20s %-16s %s\n", "INDEX", "NODE", "FIELD", "KIND", "VALUE")
	for _, in := range h.ListInputs() {
		node := in.NodeLabel
		if node == "" {
			node = in.NodeID
		}
		value := "-"
		if v, err := h.GetInputValue(in.Index); err == nil && v != nil {
			if data, err := json.Marshal(v); err == nil {
				value = string(data)
			}
		}
		fmt.Printf("%-5d %-24s %-20s %-16s %s\n", in.Index, truncate(node, 24), in.FieldName, in.Kind, value)
	}
	return nil
}

func inspectJQ(path, expr string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse workflow export: %w", err)
	}

	results, err := expressions.NewGoJQEngine().EvaluateAll(context.Background(), expr, doc)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
