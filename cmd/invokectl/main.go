package main

import (
	"fmt"
	"os"
)

var commands = map[string]func([]string) error{
	"init":     runInit,
	"inspect":  runInspect,
	"validate": runValidate,
	"submit":   runSubmit,
	"status":   runStatus,
	"cancel":   runCancel,
	"history":  runHistory,
	"models":   runModels,
	"boards":   runBoards,
	"graph":    runGraph,
	"schedule": runSchedule,
	"mcp":      runMCP,
}

func usage() {
	fmt.Fprintf(os.Stderr, `invokectl - InvokeAI workflow client (version %s)

Usage:
  invokectl <command> [options]

Commands:
  init       Write the settings file (~/.invokeai-client/settings.json)
  inspect    List a workflow export's form-exposed inputs (or query it with --jq)
  validate   Check that a workflow export loads and its inputs pass validation
  submit     Queue a workflow run (--set, --sweep, --board, --wait, --watch)
  status     Show the queue status of a run
  cancel     Cancel a queued or running submission
  history    List journaled runs, or show one run with artifacts and progress
  models     List the models installed on the server
  boards     List image boards (--create to add one)
  graph      Render a workflow's execution graph (mermaid, --ascii, --png)
  schedule   Run recurring submissions from a schedule file
  mcp        Serve the client as an MCP server over stdio
  version    Print the version

Run 'invokectl <command> -h' for command-specific help.
`, version)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		usage()
		os.Exit(0)
	}
	if cmd == "-v" || cmd == "--version" || cmd == "version" {
		printVersion()
		os.Exit(0)
	}

	fn, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}

	if err := fn(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
