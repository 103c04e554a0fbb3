package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/journal.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. event log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Runs ---

const runColumns = `id, workflow, path, queue_id, batch_id, item_id, session_id, status, error_type, error_message, created_at, updated_at, completed_at`

// RecordRun inserts a new journal entry. A missing ID is assigned a fresh
// UUID; queue id and status fall back to their submission defaults.
func (s *LibSQLStore) RecordRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.QueueID == "" {
		run.QueueID = schema.DefaultQueueID
	}
	if run.Status == "" {
		run.Status = schema.ItemStatusPending
	}
	run.CreatedAt = timeOrNow(run.CreatedAt)
	run.UpdatedAt = timeOrNow(run.UpdatedAt)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Workflow, nullStr(run.Path), run.QueueID, nullStr(run.BatchID),
		nullInt(run.ItemID), nullStr(run.SessionID), string(run.Status),
		nullStr(run.ErrorType), nullStr(run.ErrorMessage),
		run.CreatedAt, run.UpdatedAt, nullTime(run.CompletedAt),
	)
	return err
}

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("run", id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// FindRun resolves a run by full id or unique id prefix. An ambiguous prefix
// is a CONFLICT, a prefix matching nothing is NOT_FOUND.
func (s *LibSQLStore) FindRun(ctx context.Context, idOrPrefix string) (*Run, error) {
	if idOrPrefix == "" {
		return nil, storeNotFound("run", idOrPrefix)
	}

	run, err := s.GetRun(ctx, idOrPrefix)
	if err == nil {
		return run, nil
	}
	if !schema.IsCode(err, schema.ErrCodeNotFound) {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id LIKE ? || '%' LIMIT 2`, idOrPrefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, storeNotFound("run", idOrPrefix)
	case 1:
		return matches[0], nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeConflict,
			"run id prefix %q is ambiguous", idOrPrefix)
	}
}

// UpdateRunStatus applies a status observation to a run. Nil update fields
// leave the stored values alone; an all-nil update is a no-op.
func (s *LibSQLStore) UpdateRunStatus(ctx context.Context, id string, update RunUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.SessionID != "" {
		sets = append(sets, "session_id = ?")
		args = append(args, update.SessionID)
	}
	if update.ErrorType != nil {
		sets = append(sets, "error_type = ?")
		args = append(args, nullStr(*update.ErrorType))
	}
	if update.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, nullStr(*update.ErrorMessage))
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE runs SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "run", id)
}

func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	var where []string
	var args []any

	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Workflow != "" {
		where = append(where, "workflow = ?")
		args = append(args, filter.Workflow)
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	r := &Run{}
	var (
		path, batchID, sessionID sql.NullString
		errType, errMsg          sql.NullString
		itemID                   sql.NullInt64
		completedAt              sql.NullTime
		status                   string
	)
	if err := row.Scan(&r.ID, &r.Workflow, &path, &r.QueueID, &batchID, &itemID, &sessionID,
		&status, &errType, &errMsg, &r.CreatedAt, &r.UpdatedAt, &completedAt); err != nil {
		return nil, err
	}
	r.Path = path.String
	r.BatchID = batchID.String
	r.ItemID = itemID.Int64
	r.SessionID = sessionID.String
	r.Status = schema.ItemStatus(status)
	r.ErrorType = errType.String
	r.ErrorMessage = errMsg.String
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	return r, nil
}

// --- Artifacts ---

// AddArtifacts journals generated images for a run in one transaction.
func (s *LibSQLStore) AddArtifacts(ctx context.Context, runID string, artifacts []Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, a := range artifacts {
		boardID := a.BoardID
		if boardID == "" {
			boardID = schema.BoardNone
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO artifacts (run_id, node_id, board_id, image_name, input_index, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			runID, a.NodeID, boardID, a.ImageName, nullIntPtr(a.InputIndex), timeOrNow(a.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert artifact %s: %w", a.ImageName, err)
		}
	}
	return tx.Commit()
}

func (s *LibSQLStore) ListArtifacts(ctx context.Context, runID string) ([]*Artifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, node_id, board_id, image_name, input_index, created_at
		 FROM artifacts WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []*Artifact
	for rows.Next() {
		a := &Artifact{}
		var inputIndex sql.NullInt64
		if err := rows.Scan(&a.ID, &a.RunID, &a.NodeID, &a.BoardID, &a.ImageName, &inputIndex, &a.CreatedAt); err != nil {
			return nil, err
		}
		if inputIndex.Valid {
			idx := int(inputIndex.Int64)
			a.InputIndex = &idx
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// FromMappings flattens output mappings into journal artifacts, one per image.
func FromMappings(mappings []schema.OutputMapping) []Artifact {
	var artifacts []Artifact
	for _, m := range mappings {
		for _, name := range m.ImageNames {
			artifacts = append(artifacts, Artifact{
				NodeID:     m.NodeID,
				BoardID:    m.BoardID,
				ImageName:  name,
				InputIndex: m.InputIndex,
			})
		}
	}
	return artifacts
}

// --- Events ---

// AppendEvent appends an event with a monotonically increasing per-run
// sequence. The write-intent statement forces lock acquisition up front; a
// deferred transaction would let two appenders read the same MAX(sequence).
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *RunEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("release write lock: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM run_events WHERE run_id = ?`, event.RunID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO run_events (run_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?)`,
		event.RunID, event.Type, nullRaw(event.Payload), event.Timestamp, seq,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return tx.Commit()
}

// Events returns a run's events with sequence > since, ordered by sequence.
func (s *LibSQLStore) Events(ctx context.Context, runID string, since int64) ([]*RunEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, event_type, payload, timestamp, sequence
		 FROM run_events WHERE run_id = ? AND sequence > ? ORDER BY sequence ASC`,
		runID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*RunEvent
	for rows.Next() {
		e := &RunEvent{}
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.ClientError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(i int64) any {
	if i == 0 {
		return nil
	}
	return i
}

func nullIntPtr(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

var _ Store = (*LibSQLStore)(nil)
