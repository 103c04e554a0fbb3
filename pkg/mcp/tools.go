package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/CodeGandee/invokeai-go-client/internal/diagram"
	"github.com/CodeGandee/invokeai-go-client/internal/store"
	"github.com/CodeGandee/invokeai-go-client/pkg/client"
	"github.com/CodeGandee/invokeai-go-client/pkg/fields"
	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
	"github.com/CodeGandee/invokeai-go-client/pkg/workflow"
)

const defaultWaitTimeout = 10 * time.Minute

// handleInputs lists the discovered inputs of a workflow export.
func (s *Server) handleInputs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("workflow_path")
	if err != nil {
		return mcp.NewToolResultError("workflow_path is required"), nil
	}

	h, loadErr := s.loadWorkflow(path)
	if loadErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow load failed: %v", loadErr)), nil
	}

	inputs := make([]map[string]any, 0, h.InputCount())
	for _, in := range h.ListInputs() {
		entry := map[string]any{
			"index":      in.Index,
			"node_id":    in.NodeID,
			"node_label": in.NodeLabel,
			"field_name": in.FieldName,
			"label":      in.Label,
			"kind":       string(in.Kind),
			"required":   in.Required,
		}
		if v, vErr := h.GetInputValue(in.Index); vErr == nil {
			entry["value"] = v
		}
		inputs = append(inputs, entry)
	}

	return marshalResult(map[string]any{
		"workflow": h.Name(),
		"inputs":   inputs,
	})
}

// handleSubmit queues one run of a workflow export. With wait=true the call
// blocks until the run reaches a terminal status and the response includes
// the output mappings.
func (s *Server) handleSubmit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("workflow_path")
	if err != nil {
		return mcp.NewToolResultError("workflow_path is required"), nil
	}
	if s.executor == nil {
		return mcp.NewToolResultError("no queue executor configured"), nil
	}

	h, loadErr := s.loadWorkflow(path)
	if loadErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow load failed: %v", loadErr)), nil
	}

	if setErr := applyInputs(h, mcp.ParseStringMap(req, "inputs", nil)); setErr != nil {
		return mcp.NewToolResultError(setErr.Error()), nil
	}
	if board := req.GetString("board", ""); board != "" {
		if boardErr := routeBoards(h, board); boardErr != nil {
			return mcp.NewToolResultError(boardErr.Error()), nil
		}
	}

	run, submitErr := h.Submit(ctx, s.executor)
	if submitErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("submission failed: %v", submitErr)), nil
	}

	runID := s.journalRun(ctx, h, path, run)
	s.captureSession(ctx, run.ItemID(), runID)

	result := map[string]any{
		"queue_id": run.QueueID,
		"batch_id": run.BatchID,
		"item_id":  run.ItemID(),
		"status":   string(schema.ItemStatusPending),
	}
	if runID != "" {
		result["run_id"] = runID
	}

	if !mcp.ParseBoolean(req, "wait", false) {
		return marshalResult(result)
	}

	timeout := time.Duration(mcp.ParseInt64(req, "timeout_seconds", 0)) * time.Second
	if timeout <= 0 {
		timeout = defaultWaitTimeout
	}
	item, waitErr := s.await(ctx, h, run, timeout)
	if waitErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("wait failed: %v", waitErr)), nil
	}
	s.settleRun(ctx, runID, item)

	result["status"] = string(item.Status)
	if item.ErrorMessage != "" {
		result["error"] = item.ErrorMessage
	}

	mappings, mapErr := h.MapOutputs(item)
	if mapErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("output mapping failed: %v", mapErr)), nil
	}
	result["outputs"] = mappings
	s.journalArtifacts(ctx, runID, mappings)

	return marshalResult(result)
}

// handleStatus reports the live queue state of a run, addressed by journal
// run ID or queue item ID.
func (s *Server) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.executor == nil {
		return mcp.NewToolResultError("no queue executor configured"), nil
	}
	rec, itemID, resolveErr := s.resolveRun(ctx, req)
	if resolveErr != nil {
		return mcp.NewToolResultError(resolveErr.Error()), nil
	}

	item, itemErr := s.executor.QueueItem(ctx, itemID)
	if itemErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status query failed: %v", itemErr)), nil
	}
	if rec != nil {
		s.settleRun(ctx, rec.ID, item)
	}

	result := map[string]any{
		"item_id": item.ItemID,
		"status":  string(item.Status),
	}
	if rec != nil {
		result["run_id"] = rec.ID
		result["workflow"] = rec.Workflow
	}
	if item.BatchID != "" {
		result["batch_id"] = item.BatchID
	}
	if item.SessionID != "" {
		result["session_id"] = item.SessionID
	}
	if item.ErrorMessage != "" {
		result["error_type"] = item.ErrorType
		result["error"] = item.ErrorMessage
	}
	return marshalResult(result)
}

// handleCancel asks the queue to cancel a run.
func (s *Server) handleCancel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.executor == nil {
		return mcp.NewToolResultError("no queue executor configured"), nil
	}
	rec, itemID, resolveErr := s.resolveRun(ctx, req)
	if resolveErr != nil {
		return mcp.NewToolResultError(resolveErr.Error()), nil
	}

	item, cancelErr := s.executor.CancelQueueItem(ctx, itemID)
	if cancelErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cancel failed: %v", cancelErr)), nil
	}
	if rec != nil {
		s.settleRun(ctx, rec.ID, item)
	}
	s.sessions.Release(itemID)

	result := map[string]any{
		"item_id": item.ItemID,
		"status":  string(item.Status),
	}
	if rec != nil {
		result["run_id"] = rec.ID
	}
	return marshalResult(result)
}

// handleListModels lists the server's model inventory.
func (s *Server) handleListModels(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.catalog == nil {
		return mcp.NewToolResultError("no API client configured"), nil
	}

	opts := client.ListModelsOptions{
		Base: schema.BaseModel(req.GetString("base", "")),
		Type: schema.ModelType(req.GetString("type", "")),
		Name: req.GetString("name", ""),
	}
	models, err := s.catalog.ListModels(ctx, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("model listing failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"models": models, "count": len(models)})
}

// handleListBoards lists the server's image boards.
func (s *Server) handleListBoards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.catalog == nil {
		return mcp.NewToolResultError("no API client configured"), nil
	}

	include := mcp.ParseBoolean(req, "include_uncategorized", true)
	boards, err := s.catalog.ListBoards(ctx, include)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("board listing failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"boards": boards, "count": len(boards)})
}

// handleHistory queries the run journal: a filtered listing, or one run's
// full record with artifacts and progress when run_id is given.
func (s *Server) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("run journal is not configured"), nil
	}

	if runID := req.GetString("run_id", ""); runID != "" {
		return s.runDetail(ctx, runID)
	}

	filter := store.RunFilter{
		Workflow: req.GetString("workflow", ""),
		Limit:    int(mcp.ParseInt64(req, "limit", 50)),
	}
	if status := req.GetString("status", ""); status != "" {
		st := schema.ItemStatus(status)
		filter.Status = &st
	}

	runs, err := s.store.ListRuns(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("history query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"runs": runs, "count": len(runs)})
}

// runDetail returns one journaled run with its artifacts and the progress
// replayed from its event timeline.
func (s *Server) runDetail(ctx context.Context, runID string) (*mcp.CallToolResult, error) {
	rec, err := s.store.FindRun(ctx, runID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run lookup failed: %v", err)), nil
	}
	artifacts, err := s.store.ListArtifacts(ctx, rec.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("artifact lookup failed: %v", err)), nil
	}

	result := map[string]any{
		"run":       rec,
		"artifacts": artifacts,
	}
	if progress, pErr := s.eventLog.Replay(ctx, rec.ID); pErr == nil {
		result["progress"] = progress
	}
	return marshalResult(result)
}

// handleGraph renders a workflow's execution graph in the requested format.
func (s *Server) handleGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("workflow_path")
	if err != nil {
		return mcp.NewToolResultError("workflow_path is required"), nil
	}
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "mermaid" && format != "ascii" && format != "image" {
		return mcp.NewToolResultError("format must be mermaid, ascii, or image"), nil
	}

	h, loadErr := s.loadWorkflow(path)
	if loadErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow load failed: %v", loadErr)), nil
	}

	var statuses map[string]string
	if runID := req.GetString("run_id", ""); runID != "" {
		overlay, overlayErr := s.runStatuses(ctx, runID)
		if overlayErr != nil {
			return mcp.NewToolResultError(overlayErr.Error()), nil
		}
		statuses = overlay
	}

	model, buildErr := diagram.Build(h.Definition(), h.OutputNodeIDs(), statuses)
	if buildErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", buildErr)), nil
	}

	switch format {
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	default:
		png, imgErr := diagram.RenderImage(model)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(png)), nil
	}
}

// --- Internal helpers ---

// loadWorkflow loads and validates an export file.
func (s *Server) loadWorkflow(path string) (*workflow.Handle, error) {
	return workflow.LoadFile(path, workflow.WithLogger(s.logger))
}

// applyInputs assigns override values keyed by discovery index, in ascending
// index order so error reports are deterministic.
func applyInputs(h *workflow.Handle, overrides map[string]any) error {
	if len(overrides) == 0 {
		return nil
	}

	indices := make([]int, 0, len(overrides))
	byIndex := make(map[int]any, len(overrides))
	for k, v := range overrides {
		idx, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("input key %q is not a discovery index", k)
		}
		byIndex[idx] = v
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	for _, idx := range indices {
		if err := h.SetInputValue(idx, byIndex[idx]); err != nil {
			return fmt.Errorf("set input %d: %v", idx, err)
		}
	}
	return nil
}

// routeBoards points every exposed board input at the given board.
func routeBoards(h *workflow.Handle, boardID string) error {
	routed := 0
	for _, in := range h.ListInputs() {
		if in.Kind != fields.KindBoard {
			continue
		}
		if err := h.SetInputValue(in.Index, boardID); err != nil {
			return fmt.Errorf("set board input %d: %v", in.Index, err)
		}
		routed++
	}
	if routed == 0 {
		return fmt.Errorf("workflow exposes no board input to route to %q", boardID)
	}
	return nil
}

// await blocks until the run finishes, preferring the event stream when one
// is configured.
func (s *Server) await(ctx context.Context, h *workflow.Handle, run *workflow.Run, timeout time.Duration) (*schema.QueueItem, error) {
	opts := workflow.WaitOptions{Timeout: timeout}
	if s.events != nil {
		return h.WaitForEvents(ctx, s.executor, s.events, run, opts)
	}
	return h.WaitForCompletion(ctx, s.executor, run, opts)
}

// resolveRun turns the run_id / item_id addressing of a request into a queue
// item ID, with the journal record when the run is journaled.
func (s *Server) resolveRun(ctx context.Context, req mcp.CallToolRequest) (*store.Run, int64, error) {
	if runID := req.GetString("run_id", ""); runID != "" {
		if s.store == nil {
			return nil, 0, fmt.Errorf("run_id addressing needs the run journal; pass item_id instead")
		}
		rec, err := s.store.FindRun(ctx, runID)
		if err != nil {
			return nil, 0, fmt.Errorf("run lookup failed: %v", err)
		}
		if rec.ItemID == 0 {
			return nil, 0, fmt.Errorf("run %s has no queue item recorded", rec.ID)
		}
		return rec, rec.ItemID, nil
	}

	if itemID := mcp.ParseInt64(req, "item_id", 0); itemID > 0 {
		return nil, itemID, nil
	}
	return nil, 0, fmt.Errorf("one of run_id or item_id is required")
}

// journalRun records the submission in the run journal. The run is already
// queued server-side, so a journal failure is logged and reported as an
// empty run ID rather than failing the tool.
func (s *Server) journalRun(ctx context.Context, h *workflow.Handle, path string, run *workflow.Run) string {
	if s.store == nil {
		return ""
	}
	now := time.Now().UTC()
	rec := &store.Run{
		ID:        uuid.New().String(),
		Workflow:  h.Name(),
		Path:      path,
		QueueID:   run.QueueID,
		BatchID:   run.BatchID,
		ItemID:    run.ItemID(),
		Status:    schema.ItemStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.RecordRun(ctx, rec); err != nil {
		s.logger.WarnContext(ctx, "run journal write failed", "error", err)
		return ""
	}
	return rec.ID
}

// settleRun writes an observed queue state back to the journal.
func (s *Server) settleRun(ctx context.Context, runID string, item *schema.QueueItem) {
	if s.store == nil || runID == "" {
		return
	}
	status := item.Status
	update := store.RunUpdate{Status: &status, SessionID: item.SessionID}
	if item.Status.Terminal() {
		now := time.Now().UTC()
		update.CompletedAt = &now
	}
	if item.ErrorType != "" || item.ErrorMessage != "" {
		update.ErrorType = &item.ErrorType
		update.ErrorMessage = &item.ErrorMessage
	}
	if err := s.store.UpdateRunStatus(ctx, runID, update); err != nil {
		s.logger.WarnContext(ctx, "run journal update failed", "run_id", runID, "error", err)
	}
}

// journalArtifacts records the images a finished run produced.
func (s *Server) journalArtifacts(ctx context.Context, runID string, mappings []schema.OutputMapping) {
	if s.store == nil || runID == "" {
		return
	}
	var artifacts []store.Artifact
	for _, m := range mappings {
		for _, name := range m.ImageNames {
			artifacts = append(artifacts, store.Artifact{
				RunID:      runID,
				NodeID:     m.NodeID,
				BoardID:    m.BoardID,
				ImageName:  name,
				InputIndex: m.InputIndex,
			})
		}
	}
	if len(artifacts) == 0 {
		return
	}
	if err := s.store.AddArtifacts(ctx, runID, artifacts); err != nil {
		s.logger.WarnContext(ctx, "artifact journal write failed", "run_id", runID, "error", err)
	}
}

// runStatuses folds a journaled run's event timeline into per-node statuses
// for the diagram overlay.
func (s *Server) runStatuses(ctx context.Context, runID string) (map[string]string, error) {
	if s.store == nil {
		return nil, fmt.Errorf("run_id overlay needs the run journal")
	}
	rec, err := s.store.FindRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("run lookup failed: %v", err)
	}
	entries, err := s.eventLog.Timeline(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("event timeline failed: %v", err)
	}

	events := make([]schema.QueueEvent, 0, len(entries))
	for _, e := range entries {
		var ev schema.QueueEvent
		if json.Unmarshal(e.Payload, &ev) == nil {
			events = append(events, ev)
		}
	}
	return diagram.StatusesFromEvents(events), nil
}

// captureSession binds the calling MCP session to the queue item it just
// submitted, so queue events can be pushed back to it. Runs journaled without
// a live session still get a binding for the journal half.
func (s *Server) captureSession(ctx context.Context, itemID int64, runID string) {
	if itemID == 0 {
		return
	}
	sessionID := ""
	if session := server.ClientSessionFromContext(ctx); session != nil {
		sessionID = session.SessionID()
	}
	if sessionID == "" && runID == "" {
		return
	}
	s.sessions.Register(itemID, sessionID, runID)
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
