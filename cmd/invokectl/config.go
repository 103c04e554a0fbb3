package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// Config holds all invokectl configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	BaseURL  string `json:"base_url"`
	APIKey   string `json:"api_key,omitempty"`
	QueueID  string `json:"queue_id"`
	DBPath   string `json:"db_path"`
	LogLevel string `json:"log_level"`
	Timeout  int    `json:"timeout_seconds"`
}

func defaultConfig() Config {
	return Config{
		BaseURL:  "http://127.0.0.1:9090",
		QueueID:  schema.DefaultQueueID,
		DBPath:   filepath.Join(clientDir(), "runs.db"),
		LogLevel: "info",
		Timeout:  30,
	}
}

func clientDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".invokeai-client"
	}
	return filepath.Join(home, ".invokeai-client")
}

func settingsPath() string {
	return filepath.Join(clientDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	applyEnv(&cfg)

	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("INVOKEAI_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("INVOKEAI_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("INVOKEAI_QUEUE_ID"); v != "" {
		cfg.QueueID = v
	}
	if v := os.Getenv("INVOKEAI_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("INVOKEAI_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("INVOKEAI_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Timeout = n
		}
	}
}
