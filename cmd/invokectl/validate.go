package main

import (
	"flag"
	"fmt"
	"os"
)

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	var sets multiFlag
	fs.Var(&sets, "set", "override an input as index=value (repeatable)")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: invokectl validate [flags] <workflow.json>

Load a workflow export, apply any overrides, and report every input
violation at once. Exits non-zero when the workflow would be rejected.

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

	a := newApp()
	h, err := a.loadWorkflow(fs.Arg(0))
	if err != nil {
		return err
	}
	if err := applyAssignments(h, sets); err != nil {
		return err
	}

	violations := h.ValidateInputs()
	if violations.Empty() {
		fmt.Printf("%s: %d inputs, all valid\n", h.Name(), h.InputCount())
		return nil
	}
	for _, idx := range violations.Indices() {
		for _, msg := range violations[idx] {
			fmt.Printf("input %d: %s\n", idx, msg)
		}
	}
	return fmt.Errorf("%s failed validation", h.Name())
}
