package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/CodeGandee/invokeai-go-client/internal/logging"
	"github.com/CodeGandee/invokeai-go-client/internal/store"
	"github.com/CodeGandee/invokeai-go-client/pkg/client"
	"github.com/CodeGandee/invokeai-go-client/pkg/fields"
	"github.com/CodeGandee/invokeai-go-client/pkg/workflow"
)

// app bundles the configuration and collaborators the subcommands share.
type app struct {
	cfg    Config
	logger *slog.Logger
}

func newApp() *app {
	cfg := loadConfig()
	return &app{cfg: cfg, logger: logging.Setup(cfg.LogLevel, false)}
}

func (a *app) client() (*client.Client, error) {
	opts := []client.Option{
		client.WithQueueID(a.cfg.QueueID),
		client.WithLogger(a.logger),
	}
	if a.cfg.Timeout > 0 {
		opts = append(opts, client.WithTimeout(time.Duration(a.cfg.Timeout)*time.Second))
	}
	if a.cfg.APIKey != "" {
		opts = append(opts, client.WithAPIKey(a.cfg.APIKey))
	}
	return client.New(a.cfg.BaseURL, opts...)
}

// openStore opens the run journal, creating and migrating it on first use.
func (a *app) openStore(ctx context.Context) (*store.LibSQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(a.cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	dsn := a.cfg.DBPath
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	st, err := store.NewLibSQLStore(dsn)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func (a *app) loadWorkflow(path string) (*workflow.Handle, error) {
	return workflow.LoadFile(path, workflow.WithLogger(a.logger))
}

// storeOrNil flattens a failed journal open into a nil interface so callers
// can test st == nil without tripping over a typed nil pointer.
func storeOrNil(st *store.LibSQLStore, err error) store.Store {
	if err != nil || st == nil {
		return nil
	}
	return st
}

// multiFlag collects repeated occurrences of a flag.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

// parseAssignment splits an "index=value" pair. The value parses as JSON when
// it can (numbers, booleans, objects), otherwise it is a literal string.
func parseAssignment(s string) (int, any, error) {
	k, v, ok := strings.Cut(s, "=")
	if !ok {
		return 0, nil, fmt.Errorf("assignment %q is not index=value", s)
	}
	idx, err := strconv.Atoi(strings.TrimSpace(k))
	if err != nil {
		return 0, nil, fmt.Errorf("assignment %q: %q is not an input index", s, k)
	}
	var parsed any
	if err := json.Unmarshal([]byte(v), &parsed); err != nil {
		parsed = v
	}
	return idx, parsed, nil
}

// applyAssignments sets each index=value pair on the handle, in index order.
func applyAssignments(h *workflow.Handle, sets []string) error {
	byIndex := make(map[int]any, len(sets))
	indices := make([]int, 0, len(sets))
	for _, s := range sets {
		idx, val, err := parseAssignment(s)
		if err != nil {
			return err
		}
		if _, dup := byIndex[idx]; !dup {
			indices = append(indices, idx)
		}
		byIndex[idx] = val
	}
	sort.Ints(indices)

	for _, idx := range indices {
		if err := h.SetInputValue(idx, byIndex[idx]); err != nil {
			return fmt.Errorf("set input %d: %w", idx, err)
		}
	}
	return nil
}

// applyInputMap sets values keyed by stringified index, the shape schedule
// files carry.
func applyInputMap(h *workflow.Handle, sets map[string]any) error {
	raw := make([]string, 0, len(sets))
	for k, v := range sets {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("input %s: %w", k, err)
		}
		raw = append(raw, k+"="+string(data))
	}
	return applyAssignments(h, raw)
}

// routeBoardInputs points every exposed board input at the given board and
// reports how many it touched.
func routeBoardInputs(h *workflow.Handle, boardID string) (int, error) {
	routed := 0
	for _, in := range h.ListInputs() {
		if in.Kind != fields.KindBoard {
			continue
		}
		if err := h.SetInputValue(in.Index, boardID); err != nil {
			return routed, fmt.Errorf("set board input %d: %w", in.Index, err)
		}
		routed++
	}
	return routed, nil
}

// resolveRunTarget turns a journal run reference or an explicit item ID into
// a queue item ID, with the journal record when one matches.
func resolveRunTarget(ctx context.Context, st store.Store, runRef string, itemID int64) (*store.Run, int64, error) {
	if runRef != "" {
		if st == nil {
			return nil, 0, fmt.Errorf("run lookup needs the journal; pass --item instead")
		}
		rec, err := st.FindRun(ctx, runRef)
		if err != nil {
			return nil, 0, err
		}
		if rec.ItemID == 0 {
			return nil, 0, fmt.Errorf("run %s has no queue item recorded", rec.ID)
		}
		return rec, rec.ItemID, nil
	}
	if itemID > 0 {
		return nil, itemID, nil
	}
	return nil, 0, fmt.Errorf("a run ID argument or --item is required")
}
