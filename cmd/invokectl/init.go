package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
)

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	baseURL := fs.String("base-url", "", "InvokeAI server URL")
	apiKey := fs.String("api-key", "", "API key sent as Authorization bearer")
	queueID := fs.String("queue-id", "", "session queue to submit to")
	dbPath := fs.String("db-path", "", "run journal database path")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")
	timeout := fs.Int("timeout", 0, "HTTP timeout in seconds")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: invokectl init [flags]

Write %s with the given settings. Omitted flags keep
their current (or default) values.

Flags:
`, settingsPath())
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := loadConfig()
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *apiKey != "" {
		cfg.APIKey = *apiKey
	}
	if *queueID != "" {
		cfg.QueueID = *queueID
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}

	if err := os.MkdirAll(clientDir(), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	path := settingsPath()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	fmt.Printf("Config written to %s\n", path)
	return nil
}
