package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeGandee/invokeai-go-client/internal/store"
	"github.com/CodeGandee/invokeai-go-client/pkg/client"
	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// sdxlExport is a small but complete SDXL text-to-image export: six
// form-exposed inputs, two output-capable nodes (l2i_1 without a board value,
// save_1 with one), and a notes node that never executes.
const sdxlExport = `{
  "name": "sdxl-t2i",
  "author": "tests",
  "meta": {"version": "3.0.0", "category": "user"},
  "nodes": [
    {"id": "loader", "type": "invocation", "data": {"id": "loader", "type": "sdxl_model_loader", "version": "1.0.3", "inputs": {
      "model": {"name": "model", "label": "Model", "value": {"key": "old-key", "hash": "old-hash", "name": "Juggernaut XL", "base": "sdxl", "type": "main"}}
    }}},
    {"id": "pos", "type": "invocation", "data": {"id": "pos", "type": "sdxl_compel_prompt", "label": "Positive", "inputs": {
      "prompt": {"name": "prompt", "label": "Positive Prompt", "value": "a castle in the clouds"}
    }}},
    {"id": "neg", "type": "invocation", "data": {"id": "neg", "type": "sdxl_compel_prompt", "label": "Negative", "inputs": {
      "prompt": {"name": "prompt", "label": "Negative Prompt", "value": ""}
    }}},
    {"id": "noise_1", "type": "invocation", "data": {"id": "noise_1", "type": "noise", "inputs": {
      "seed": {"name": "seed", "label": "Seed", "value": 123},
      "width": {"name": "width", "value": 1024},
      "height": {"name": "height", "value": 1024}
    }}},
    {"id": "denoise_1", "type": "invocation", "data": {"id": "denoise_1", "type": "denoise_latents", "inputs": {
      "steps": {"name": "steps", "value": 30},
      "cfg_scale": {"name": "cfg_scale", "value": 7.5}
    }}},
    {"id": "l2i_1", "type": "invocation", "data": {"id": "l2i_1", "type": "l2i", "isIntermediate": true, "inputs": {
      "latents": {"name": "latents"},
      "board": {"name": "board"}
    }}},
    {"id": "save_1", "type": "invocation", "data": {"id": "save_1", "type": "save_image", "label": "Save", "isIntermediate": false, "inputs": {
      "image": {"name": "image"},
      "board": {"name": "board", "value": {"board_id": "b-old"}}
    }}},
    {"id": "note_1", "type": "notes", "data": {"id": "note_1", "type": "notes", "inputs": {}}}
  ],
  "edges": [
    {"id": "e1", "type": "default", "source": "loader", "target": "denoise_1", "sourceHandle": "unet", "targetHandle": "unet"},
    {"id": "e2", "type": "default", "source": "pos", "target": "denoise_1", "sourceHandle": "conditioning", "targetHandle": "positive_conditioning"},
    {"id": "e3", "type": "default", "source": "neg", "target": "denoise_1", "sourceHandle": "conditioning", "targetHandle": "negative_conditioning"},
    {"id": "e4", "type": "default", "source": "noise_1", "target": "denoise_1", "sourceHandle": "noise", "targetHandle": "noise"},
    {"id": "e5", "type": "default", "source": "denoise_1", "target": "l2i_1", "sourceHandle": "latents", "targetHandle": "latents"},
    {"id": "e6", "type": "default", "source": "l2i_1", "target": "save_1", "sourceHandle": "image", "targetHandle": "image"}
  ],
  "form": {"elements": {
    "root": {"id": "root", "type": "container", "data": {"layout": "column", "children": ["hdr", "prompts", "nf_seed", "nf_steps", "nf_model", "nf_board"]}},
    "hdr": {"id": "hdr", "type": "heading", "parentId": "root", "data": {"content": "Generation"}},
    "prompts": {"id": "prompts", "type": "container", "parentId": "root", "data": {"layout": "row", "children": ["nf_pos", "nf_neg"]}},
    "nf_pos": {"id": "nf_pos", "type": "node-field", "parentId": "prompts", "data": {"fieldIdentifier": {"nodeId": "pos", "fieldName": "prompt"}}},
    "nf_neg": {"id": "nf_neg", "type": "node-field", "parentId": "prompts", "data": {"fieldIdentifier": {"nodeId": "neg", "fieldName": "prompt"}}},
    "nf_seed": {"id": "nf_seed", "type": "node-field", "parentId": "root", "data": {"fieldIdentifier": {"nodeId": "noise_1", "fieldName": "seed"}}},
    "nf_steps": {"id": "nf_steps", "type": "node-field", "parentId": "root", "data": {"fieldIdentifier": {"nodeId": "denoise_1", "fieldName": "steps"}}},
    "nf_model": {"id": "nf_model", "type": "node-field", "parentId": "root", "data": {"fieldIdentifier": {"nodeId": "loader", "fieldName": "model"}}},
    "nf_board": {"id": "nf_board", "type": "node-field", "parentId": "root", "data": {"fieldIdentifier": {"nodeId": "save_1", "fieldName": "board"}}}
  }}
}`

// --- Mock Executor ---

type mockExecutor struct {
	enqueued   []*schema.EnqueueRequest
	enqueueRes *schema.EnqueueResult
	enqueueErr error
	items      map[int64]*schema.QueueItem
	itemErr    error
	canceled   []int64
	cancelErr  error
}

func (m *mockExecutor) EnqueueBatch(_ context.Context, req *schema.EnqueueRequest) (*schema.EnqueueResult, error) {
	m.enqueued = append(m.enqueued, req)
	if m.enqueueErr != nil {
		return nil, m.enqueueErr
	}
	return m.enqueueRes, nil
}

func (m *mockExecutor) QueueItem(_ context.Context, itemID int64) (*schema.QueueItem, error) {
	if m.itemErr != nil {
		return nil, m.itemErr
	}
	if item, ok := m.items[itemID]; ok {
		return item, nil
	}
	return &schema.QueueItem{ItemID: itemID, Status: schema.ItemStatusPending}, nil
}

func (m *mockExecutor) CancelQueueItem(_ context.Context, itemID int64) (*schema.QueueItem, error) {
	m.canceled = append(m.canceled, itemID)
	if m.cancelErr != nil {
		return nil, m.cancelErr
	}
	return &schema.QueueItem{ItemID: itemID, Status: schema.ItemStatusCanceled}, nil
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{
		enqueueRes: &schema.EnqueueResult{
			QueueID:  schema.DefaultQueueID,
			Enqueued: 1,
			Batch:    schema.EnqueuedBatch{BatchID: "batch-1"},
			ItemIDs:  []int64{42},
		},
		items: make(map[int64]*schema.QueueItem),
	}
}

// --- Mock Store ---

type mockStore struct {
	store.Store // embed for unimplemented methods

	runs      []*store.Run
	updates   map[string][]store.RunUpdate
	artifacts map[string][]store.Artifact
	events    map[string][]*store.RunEvent

	recordErr error
	listErr   error
}

func newTestStore() *mockStore {
	return &mockStore{
		updates:   make(map[string][]store.RunUpdate),
		artifacts: make(map[string][]store.Artifact),
		events:    make(map[string][]*store.RunEvent),
	}
}

func (m *mockStore) RecordRun(_ context.Context, run *store.Run) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *mockStore) UpdateRunStatus(_ context.Context, id string, update store.RunUpdate) error {
	m.updates[id] = append(m.updates[id], update)
	return nil
}

func (m *mockStore) FindRun(_ context.Context, idOrPrefix string) (*store.Run, error) {
	for _, r := range m.runs {
		if strings.HasPrefix(r.ID, idOrPrefix) {
			return r, nil
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeStore, "no run matches %q", idOrPrefix)
}

func (m *mockStore) ListRuns(_ context.Context, filter store.RunFilter) ([]*store.Run, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	result := make([]*store.Run, 0)
	for _, r := range m.runs {
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.Workflow != "" && r.Workflow != filter.Workflow {
			continue
		}
		result = append(result, r)
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *mockStore) AddArtifacts(_ context.Context, runID string, artifacts []store.Artifact) error {
	m.artifacts[runID] = append(m.artifacts[runID], artifacts...)
	return nil
}

func (m *mockStore) ListArtifacts(_ context.Context, runID string) ([]*store.Artifact, error) {
	result := make([]*store.Artifact, 0)
	for i := range m.artifacts[runID] {
		result = append(result, &m.artifacts[runID][i])
	}
	return result, nil
}

func (m *mockStore) AppendEvent(_ context.Context, event *store.RunEvent) error {
	event.Sequence = int64(len(m.events[event.RunID]) + 1)
	m.events[event.RunID] = append(m.events[event.RunID], event)
	return nil
}

func (m *mockStore) Events(_ context.Context, runID string, since int64) ([]*store.RunEvent, error) {
	result := make([]*store.RunEvent, 0)
	for _, e := range m.events[runID] {
		if e.Sequence > since {
			result = append(result, e)
		}
	}
	return result, nil
}

// --- Mock Catalog ---

type mockCatalog struct {
	models    []schema.ModelRecord
	modelsErr error
	boards    []schema.Board
	boardsErr error

	lastModelOpts client.ListModelsOptions
	lastIncluded  bool
}

func (m *mockCatalog) ListModels(_ context.Context, opts client.ListModelsOptions) ([]schema.ModelRecord, error) {
	m.lastModelOpts = opts
	return m.models, m.modelsErr
}

func (m *mockCatalog) ListBoards(_ context.Context, includeUncategorized bool) ([]schema.Board, error) {
	m.lastIncluded = includeUncategorized
	return m.boards, m.boardsErr
}

// --- Helpers ---

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}

func writeExport(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

// completedItem is a terminal queue item whose session produced one image per
// output node.
func completedItem() *schema.QueueItem {
	return &schema.QueueItem{
		ItemID:    42,
		Status:    schema.ItemStatusCompleted,
		BatchID:   "batch-1",
		SessionID: "sess-9",
		Session: &schema.Session{
			ID: "sess-9",
			SourcePreparedMapping: map[string][]string{
				"l2i_1":  {"l2i_1-p0"},
				"save_1": {"save_1-p0"},
			},
			Results: map[string]json.RawMessage{
				"l2i_1-p0":  json.RawMessage(`{"type": "image_output", "image": {"image_name": "img-1.png"}}`),
				"save_1-p0": json.RawMessage(`{"type": "image_output", "image": {"image_name": "img-2.png"}}`),
			},
		},
	}
}

// --- Tests ---

func TestInputsTool(t *testing.T) {
	s := NewServer(ServerDeps{})
	path := writeExport(t, sdxlExport)

	result, err := s.handleInputs(context.Background(), buildRequest("workflow_inputs", map[string]any{
		"workflow_path": path,
	}))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)

	var got struct {
		Workflow string `json:"workflow"`
		Inputs   []struct {
			Index     int    `json:"index"`
			NodeID    string `json:"node_id"`
			FieldName string `json:"field_name"`
			Label     string `json:"label"`
			Kind      string `json:"kind"`
			Required  bool   `json:"required"`
			Value     any    `json:"value"`
		} `json:"inputs"`
	}
	unmarshalResult(t, result, &got)

	assert.Equal(t, "sdxl-t2i", got.Workflow)
	require.Len(t, got.Inputs, 6)

	assert.Equal(t, 0, got.Inputs[0].Index)
	assert.Equal(t, "pos", got.Inputs[0].NodeID)
	assert.Equal(t, "prompt", got.Inputs[0].FieldName)
	assert.Equal(t, "Positive Prompt", got.Inputs[0].Label)
	assert.Equal(t, "string", got.Inputs[0].Kind)
	assert.Equal(t, "a castle in the clouds", got.Inputs[0].Value)

	assert.Equal(t, "noise_1", got.Inputs[2].NodeID)
	assert.Equal(t, "integer", got.Inputs[2].Kind)
	assert.EqualValues(t, 123, got.Inputs[2].Value)

	assert.Equal(t, "board", got.Inputs[5].Kind)
}

func TestInputsToolMissingPath(t *testing.T) {
	s := NewServer(ServerDeps{})

	result, err := s.handleInputs(context.Background(), buildRequest("workflow_inputs", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "workflow_path is required")
}

func TestInputsToolBadFile(t *testing.T) {
	s := NewServer(ServerDeps{})

	result, err := s.handleInputs(context.Background(), buildRequest("workflow_inputs", map[string]any{
		"workflow_path": filepath.Join(t.TempDir(), "missing.json"),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "workflow load failed")
}

func TestSubmitTool(t *testing.T) {
	exec := newMockExecutor()
	ms := newTestStore()
	s := NewServer(ServerDeps{Executor: exec, Store: ms})
	path := writeExport(t, sdxlExport)

	result, err := s.handleSubmit(context.Background(), buildRequest("workflow_submit", map[string]any{
		"workflow_path": path,
		"inputs": map[string]any{
			"0": "a lighthouse at dusk",
			"2": 999,
		},
	}))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)

	var got map[string]any
	unmarshalResult(t, result, &got)
	assert.NotEmpty(t, got["run_id"])
	assert.Equal(t, schema.DefaultQueueID, got["queue_id"])
	assert.Equal(t, "batch-1", got["batch_id"])
	assert.EqualValues(t, 42, got["item_id"])
	assert.Equal(t, "pending", got["status"])

	// Overridden values ride the submitted graph, untouched ones keep the
	// exported values.
	require.Len(t, exec.enqueued, 1)
	batch := exec.enqueued[0].Batch
	assert.Equal(t, 1, batch.Runs)
	assert.Equal(t, "a lighthouse at dusk", batch.Graph.Nodes["pos"]["prompt"])
	assert.EqualValues(t, 999, batch.Graph.Nodes["noise_1"]["seed"])

	// The submission lands in the journal and binds the queue item.
	require.Len(t, ms.runs, 1)
	assert.Equal(t, "sdxl-t2i", ms.runs[0].Workflow)
	assert.EqualValues(t, 42, ms.runs[0].ItemID)
	runID, ok := s.sessions.RunFor(42)
	require.True(t, ok)
	assert.Equal(t, ms.runs[0].ID, runID)
}

func TestSubmitToolWait(t *testing.T) {
	exec := newMockExecutor()
	exec.items[42] = completedItem()
	ms := newTestStore()
	s := NewServer(ServerDeps{Executor: exec, Store: ms})
	path := writeExport(t, sdxlExport)

	result, err := s.handleSubmit(context.Background(), buildRequest("workflow_submit", map[string]any{
		"workflow_path":   path,
		"wait":            true,
		"timeout_seconds": 5,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var got struct {
		RunID   string                 `json:"run_id"`
		Status  string                 `json:"status"`
		Outputs []schema.OutputMapping `json:"outputs"`
	}
	unmarshalResult(t, result, &got)

	assert.Equal(t, "completed", got.Status)
	require.Len(t, got.Outputs, 2)

	assert.Equal(t, "l2i_1", got.Outputs[0].NodeID)
	assert.Nil(t, got.Outputs[0].InputIndex)
	assert.Equal(t, schema.BoardNone, got.Outputs[0].BoardID)
	assert.Equal(t, []string{"img-1.png"}, got.Outputs[0].ImageNames)

	assert.Equal(t, "save_1", got.Outputs[1].NodeID)
	require.NotNil(t, got.Outputs[1].InputIndex)
	assert.Equal(t, 5, *got.Outputs[1].InputIndex)
	assert.Equal(t, "b-old", got.Outputs[1].BoardID)
	assert.Equal(t, []string{"img-2.png"}, got.Outputs[1].ImageNames)

	// The terminal state and both images reach the journal.
	require.NotEmpty(t, ms.updates[got.RunID])
	last := ms.updates[got.RunID][len(ms.updates[got.RunID])-1]
	require.NotNil(t, last.Status)
	assert.Equal(t, schema.ItemStatusCompleted, *last.Status)
	assert.NotNil(t, last.CompletedAt)
	assert.Len(t, ms.artifacts[got.RunID], 2)
}

func TestSubmitToolBoardRouting(t *testing.T) {
	exec := newMockExecutor()
	s := NewServer(ServerDeps{Executor: exec})
	path := writeExport(t, sdxlExport)

	result, err := s.handleSubmit(context.Background(), buildRequest("workflow_submit", map[string]any{
		"workflow_path": path,
		"board":         "gallery",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	require.Len(t, exec.enqueued, 1)
	nodes := exec.enqueued[0].Batch.Graph.Nodes
	assert.Equal(t, map[string]any{"board_id": "gallery"}, nodes["save_1"]["board"])
	// l2i_1's board is not form-exposed, so routing never touches it.
	_, hasBoard := nodes["l2i_1"]["board"]
	assert.False(t, hasBoard)
}

func TestSubmitToolBadInputs(t *testing.T) {
	s := NewServer(ServerDeps{Executor: newMockExecutor()})
	path := writeExport(t, sdxlExport)

	result, err := s.handleSubmit(context.Background(), buildRequest("workflow_submit", map[string]any{
		"workflow_path": path,
		"inputs":        map[string]any{"nine": "value"},
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "not a discovery index")
}

func TestSubmitToolExecutorError(t *testing.T) {
	exec := newMockExecutor()
	exec.enqueueErr = assert.AnError
	s := NewServer(ServerDeps{Executor: exec})
	path := writeExport(t, sdxlExport)

	result, err := s.handleSubmit(context.Background(), buildRequest("workflow_submit", map[string]any{
		"workflow_path": path,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "submission failed")
}

func TestSubmitToolJournalFailure(t *testing.T) {
	exec := newMockExecutor()
	ms := newTestStore()
	ms.recordErr = assert.AnError
	s := NewServer(ServerDeps{Executor: exec, Store: ms})
	path := writeExport(t, sdxlExport)

	result, err := s.handleSubmit(context.Background(), buildRequest("workflow_submit", map[string]any{
		"workflow_path": path,
	}))
	require.NoError(t, err)

	// The run is already queued server-side, so the tool still succeeds; it
	// just cannot hand back a journal ID.
	assert.False(t, result.IsError)
	var got map[string]any
	unmarshalResult(t, result, &got)
	_, hasRunID := got["run_id"]
	assert.False(t, hasRunID)
	assert.EqualValues(t, 42, got["item_id"])
}

func TestStatusTool(t *testing.T) {
	exec := newMockExecutor()
	exec.items[42] = &schema.QueueItem{ItemID: 42, Status: schema.ItemStatusInProgress, BatchID: "batch-1", SessionID: "sess-9"}
	ms := newTestStore()
	ms.runs = append(ms.runs, &store.Run{ID: "0a1b2c3d-run", Workflow: "sdxl-t2i", ItemID: 42, Status: schema.ItemStatusPending})
	s := NewServer(ServerDeps{Executor: exec, Store: ms})

	result, err := s.handleStatus(context.Background(), buildRequest("workflow_status", map[string]any{
		"run_id": "0a1b",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var got map[string]any
	unmarshalResult(t, result, &got)
	assert.Equal(t, "in_progress", got["status"])
	assert.Equal(t, "0a1b2c3d-run", got["run_id"])
	assert.Equal(t, "sdxl-t2i", got["workflow"])
	assert.Equal(t, "sess-9", got["session_id"])

	// The observed state is written back to the journal.
	require.NotEmpty(t, ms.updates["0a1b2c3d-run"])
	assert.Equal(t, schema.ItemStatusInProgress, *ms.updates["0a1b2c3d-run"][0].Status)
}

func TestStatusToolByItemID(t *testing.T) {
	exec := newMockExecutor()
	exec.items[42] = &schema.QueueItem{ItemID: 42, Status: schema.ItemStatusCompleted}
	s := NewServer(ServerDeps{Executor: exec})

	result, err := s.handleStatus(context.Background(), buildRequest("workflow_status", map[string]any{
		"item_id": 42,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var got map[string]any
	unmarshalResult(t, result, &got)
	assert.EqualValues(t, 42, got["item_id"])
	assert.Equal(t, "completed", got["status"])
	_, hasRunID := got["run_id"]
	assert.False(t, hasRunID)
}

func TestStatusToolMissingArgs(t *testing.T) {
	s := NewServer(ServerDeps{Executor: newMockExecutor()})

	result, err := s.handleStatus(context.Background(), buildRequest("workflow_status", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "run_id or item_id")
}

func TestStatusToolRunIDWithoutStore(t *testing.T) {
	s := NewServer(ServerDeps{Executor: newMockExecutor()})

	result, err := s.handleStatus(context.Background(), buildRequest("workflow_status", map[string]any{
		"run_id": "abc",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "item_id instead")
}

func TestCancelTool(t *testing.T) {
	exec := newMockExecutor()
	ms := newTestStore()
	ms.runs = append(ms.runs, &store.Run{ID: "run-cancel", Workflow: "sdxl-t2i", ItemID: 42, Status: schema.ItemStatusInProgress})
	s := NewServer(ServerDeps{Executor: exec, Store: ms})
	s.sessions.Register(42, "sess-a", "run-cancel")

	result, err := s.handleCancel(context.Background(), buildRequest("workflow_cancel", map[string]any{
		"run_id": "run-cancel",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var got map[string]any
	unmarshalResult(t, result, &got)
	assert.Equal(t, "canceled", got["status"])
	assert.Equal(t, "run-cancel", got["run_id"])

	assert.Equal(t, []int64{42}, exec.canceled)

	// Terminal state settles the journal and drops the binding.
	require.NotEmpty(t, ms.updates["run-cancel"])
	last := ms.updates["run-cancel"][len(ms.updates["run-cancel"])-1]
	assert.Equal(t, schema.ItemStatusCanceled, *last.Status)
	assert.NotNil(t, last.CompletedAt)
	_, bound := s.sessions.RunFor(42)
	assert.False(t, bound)
}

func TestListModels(t *testing.T) {
	cat := &mockCatalog{
		models: []schema.ModelRecord{
			{Key: "k1", Name: "Juggernaut XL", Base: schema.BaseSDXL, Type: schema.ModelTypeMain},
			{Key: "k2", Name: "sdxl-vae", Base: schema.BaseSDXL, Type: schema.ModelTypeVAE},
		},
	}
	s := NewServer(ServerDeps{Catalog: cat})

	result, err := s.handleListModels(context.Background(), buildRequest("list_models", map[string]any{
		"base": "sdxl",
		"type": "main",
		"name": "jugg",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var got struct {
		Models []schema.ModelRecord `json:"models"`
		Count  int                  `json:"count"`
	}
	unmarshalResult(t, result, &got)
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, "Juggernaut XL", got.Models[0].Name)

	assert.Equal(t, schema.BaseSDXL, cat.lastModelOpts.Base)
	assert.Equal(t, schema.ModelTypeMain, cat.lastModelOpts.Type)
	assert.Equal(t, "jugg", cat.lastModelOpts.Name)
}

func TestListModelsError(t *testing.T) {
	cat := &mockCatalog{modelsErr: assert.AnError}
	s := NewServer(ServerDeps{Catalog: cat})

	result, err := s.handleListModels(context.Background(), buildRequest("list_models", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "model listing failed")
}

func TestListBoards(t *testing.T) {
	cat := &mockCatalog{
		boards: []schema.Board{
			{BoardID: schema.BoardNone, BoardName: "Uncategorized"},
			{BoardID: "b-1", BoardName: "portraits"},
		},
	}
	s := NewServer(ServerDeps{Catalog: cat})

	result, err := s.handleListBoards(context.Background(), buildRequest("list_boards", map[string]any{}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.True(t, cat.lastIncluded, "uncategorized is included unless asked otherwise")

	var got struct {
		Boards []schema.Board `json:"boards"`
		Count  int            `json:"count"`
	}
	unmarshalResult(t, result, &got)
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, schema.BoardNone, got.Boards[0].BoardID)

	_, err = s.handleListBoards(context.Background(), buildRequest("list_boards", map[string]any{
		"include_uncategorized": false,
	}))
	require.NoError(t, err)
	assert.False(t, cat.lastIncluded)
}

func TestRunHistory(t *testing.T) {
	ms := newTestStore()
	ms.runs = append(ms.runs,
		&store.Run{ID: "run-1", Workflow: "sdxl-t2i", Status: schema.ItemStatusCompleted},
		&store.Run{ID: "run-2", Workflow: "sdxl-t2i", Status: schema.ItemStatusFailed},
		&store.Run{ID: "run-3", Workflow: "flux-dev", Status: schema.ItemStatusCompleted},
	)
	s := NewServer(ServerDeps{Store: ms})

	result, err := s.handleHistory(context.Background(), buildRequest("run_history", map[string]any{
		"status": "completed",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var got struct {
		Runs  []*store.Run `json:"runs"`
		Count int          `json:"count"`
	}
	unmarshalResult(t, result, &got)
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, "run-1", got.Runs[0].ID)
	assert.Equal(t, "run-3", got.Runs[1].ID)
}

func TestRunHistoryDetail(t *testing.T) {
	ms := newTestStore()
	ms.runs = append(ms.runs, &store.Run{ID: "run-detail", Workflow: "sdxl-t2i", Status: schema.ItemStatusCompleted})
	ms.artifacts["run-detail"] = []store.Artifact{
		{RunID: "run-detail", NodeID: "save_1", BoardID: "b-old", ImageName: "img-2.png"},
	}
	for _, ev := range []schema.QueueEvent{
		{Type: schema.EventInvocationStarted, ItemID: 42, NodeID: "denoise_1"},
		{Type: schema.EventInvocationComplete, ItemID: 42, NodeID: "denoise_1"},
		{Type: schema.EventQueueItemStatusChanged, ItemID: 42, Status: schema.ItemStatusCompleted},
	} {
		payload, err := json.Marshal(ev)
		require.NoError(t, err)
		require.NoError(t, ms.AppendEvent(context.Background(), &store.RunEvent{
			RunID: "run-detail", Type: ev.Type, Payload: payload, Timestamp: time.Now().UTC(),
		}))
	}
	s := NewServer(ServerDeps{Store: ms})

	result, err := s.handleHistory(context.Background(), buildRequest("run_history", map[string]any{
		"run_id": "run-detail",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var got struct {
		Run       *store.Run        `json:"run"`
		Artifacts []*store.Artifact `json:"artifacts"`
		Progress  *store.Progress   `json:"progress"`
	}
	unmarshalResult(t, result, &got)
	assert.Equal(t, "run-detail", got.Run.ID)
	require.Len(t, got.Artifacts, 1)
	assert.Equal(t, "img-2.png", got.Artifacts[0].ImageName)
	require.NotNil(t, got.Progress)
	assert.Equal(t, 3, got.Progress.Events)
	assert.Equal(t, 1, got.Progress.NodesDone)
	assert.Equal(t, schema.ItemStatusCompleted, got.Progress.LastStatus)
}

func TestRunHistoryNoStore(t *testing.T) {
	s := NewServer(ServerDeps{})

	result, err := s.handleHistory(context.Background(), buildRequest("run_history", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "journal is not configured")
}

func TestGraphTool(t *testing.T) {
	s := NewServer(ServerDeps{})
	path := writeExport(t, sdxlExport)

	result, err := s.handleGraph(context.Background(), buildRequest("workflow_graph", map[string]any{
		"workflow_path": path,
		"format":        "mermaid",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	mermaid := extractText(t, result)
	assert.Contains(t, mermaid, "graph TD")
	assert.Contains(t, mermaid, "denoise_1")

	result, err = s.handleGraph(context.Background(), buildRequest("workflow_graph", map[string]any{
		"workflow_path": path,
		"format":        "ascii",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, extractText(t, result), "sdxl-t2i")

	result, err = s.handleGraph(context.Background(), buildRequest("workflow_graph", map[string]any{
		"workflow_path": path,
		"format":        "pdf",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "mermaid, ascii, or image")
}

func TestGraphToolRunOverlay(t *testing.T) {
	ms := newTestStore()
	ms.runs = append(ms.runs, &store.Run{ID: "run-overlay", Workflow: "sdxl-t2i", ItemID: 42})
	payload, err := json.Marshal(schema.QueueEvent{Type: schema.EventInvocationStarted, ItemID: 42, NodeID: "denoise_1"})
	require.NoError(t, err)
	require.NoError(t, ms.AppendEvent(context.Background(), &store.RunEvent{
		RunID: "run-overlay", Type: schema.EventInvocationStarted, Payload: payload, Timestamp: time.Now().UTC(),
	}))
	s := NewServer(ServerDeps{Store: ms})
	path := writeExport(t, sdxlExport)

	result, err := s.handleGraph(context.Background(), buildRequest("workflow_graph", map[string]any{
		"workflow_path": path,
		"format":        "mermaid",
		"run_id":        "run-overlay",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, extractText(t, result), "class denoise_1 running")
}

func TestServerNoExecutor(t *testing.T) {
	s := NewServer(ServerDeps{})
	path := writeExport(t, sdxlExport)

	for _, tc := range []struct {
		name string
		call func() (*mcp.CallToolResult, error)
	}{
		{"submit", func() (*mcp.CallToolResult, error) {
			return s.handleSubmit(context.Background(), buildRequest("workflow_submit", map[string]any{"workflow_path": path}))
		}},
		{"status", func() (*mcp.CallToolResult, error) {
			return s.handleStatus(context.Background(), buildRequest("workflow_status", map[string]any{"item_id": 42}))
		}},
		{"cancel", func() (*mcp.CallToolResult, error) {
			return s.handleCancel(context.Background(), buildRequest("workflow_cancel", map[string]any{"item_id": 42}))
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			result, err := tc.call()
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, extractText(t, result), "no queue executor configured")
		})
	}
}
