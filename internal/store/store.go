package store

import "context"

// Store is the run journal contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Runs
	RecordRun(ctx context.Context, run *Run) error
	UpdateRunStatus(ctx context.Context, id string, update RunUpdate) error
	GetRun(ctx context.Context, id string) (*Run, error)
	FindRun(ctx context.Context, idOrPrefix string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

	// Artifacts
	AddArtifacts(ctx context.Context, runID string, artifacts []Artifact) error
	ListArtifacts(ctx context.Context, runID string) ([]*Artifact, error)

	// Event journal (append-only)
	AppendEvent(ctx context.Context, event *RunEvent) error
	Events(ctx context.Context, runID string, since int64) ([]*RunEvent, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
