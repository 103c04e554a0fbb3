// Package scheduler fires recurring workflow submissions from a schedule
// file. Schedules are stateless: the file names a workflow export, fixed
// input values and a cron spec, and every due fire goes through the
// Submitter callback.
package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/CodeGandee/invokeai-go-client/internal/validation"
	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// Schedule is one recurring submission read from a schedule file. Sets maps
// input indices (as strings, JSON obliges) to the values applied before each
// submission.
type Schedule struct {
	Name     string         `json:"name"`
	Cron     string         `json:"cron"`
	Workflow string         `json:"workflow"`
	QueueID  string         `json:"queue_id,omitempty"`
	Board    string         `json:"board,omitempty"`
	Sets     map[string]any `json:"sets,omitempty"`
}

// ScheduleFile is the on-disk document shape.
type ScheduleFile struct {
	Schedules []Schedule `json:"schedules"`
}

// LoadScheduleFile reads a schedule file, validates it against the embedded
// schema and parses it.
func LoadScheduleFile(path string) ([]Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "read schedule file: %v", err).WithCause(err)
	}
	wv, err := validation.NewWorkflowValidator()
	if err != nil {
		return nil, err
	}
	if err := wv.ValidateScheduleFile(data); err != nil {
		return nil, err
	}
	var file ScheduleFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "parse schedule file: %v", err).WithCause(err)
	}
	return file.Schedules, nil
}

// Submitter dispatches one due schedule. The CLI's submit pipeline satisfies
// it.
type Submitter interface {
	SubmitSchedule(ctx context.Context, sched Schedule) error
}

// SubmitterFunc adapts a function to the Submitter interface.
type SubmitterFunc func(ctx context.Context, sched Schedule) error

func (f SubmitterFunc) SubmitSchedule(ctx context.Context, sched Schedule) error {
	return f(ctx, sched)
}

// specParser accepts standard five-field specs, six-field specs with a
// leading seconds column, and @descriptors.
var specParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// entry pairs a schedule with its parsed spec and next fire time.
type entry struct {
	schedule Schedule
	spec     cron.Schedule
	next     time.Time
}

// Scheduler evaluates schedules on a ticker and dispatches due ones.
type Scheduler struct {
	submitter Submitter
	logger    *slog.Logger
	interval  time.Duration

	mu      sync.Mutex
	entries []entry
	cancel  context.CancelFunc
	done    chan struct{}

	inflightMu sync.Mutex
	inflight   map[string]struct{} // schedule names currently firing (dedup)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval overrides the tick cadence. The default 15s suits minute
// resolution; lower it for second-resolution specs.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// New parses every schedule's cron spec up front. A bad spec or duplicate
// name fails construction naming the schedule.
func New(schedules []Schedule, submitter Submitter, logger *slog.Logger, opts ...Option) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		submitter: submitter,
		logger:    logger,
		interval:  15 * time.Second,
		inflight:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	now := time.Now()
	seen := make(map[string]struct{}, len(schedules))
	for _, sched := range schedules {
		if _, dup := seen[sched.Name]; dup {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"duplicate schedule name %q", sched.Name)
		}
		seen[sched.Name] = struct{}{}

		spec, err := specParser.Parse(sched.Cron)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"schedule %q: bad cron spec %q: %v", sched.Name, sched.Cron, err).
				WithCause(err)
		}
		s.entries = append(s.entries, entry{schedule: sched, spec: spec, next: spec.Next(now)})
	}
	return s, nil
}

// Upcoming is one schedule's next fire time.
type Upcoming struct {
	Name     string    `json:"name"`
	Workflow string    `json:"workflow"`
	Next     time.Time `json:"next"`
}

// Upcoming returns each schedule's next fire time, soonest first.
func (s *Scheduler) Upcoming() []Upcoming {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Upcoming, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, Upcoming{Name: e.schedule.Name, Workflow: e.schedule.Workflow, Next: e.next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Next.Before(out[j].Next) })
	return out
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return schema.NewError(schema.ErrCodeConflict, "scheduler already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	n := len(s.entries)
	s.mu.Unlock()

	go s.loop(runCtx, done)
	s.logger.Info("scheduler started", "schedules", n, "interval", s.interval.String())
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick advances fire times for every due schedule and dispatches them. The
// next fire is computed before dispatch so a slow submission never delays
// the schedule math.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	var due []entry
	for i := range s.entries {
		e := &s.entries[i]
		if now.Before(e.next) {
			continue
		}
		e.next = e.spec.Next(now)
		due = append(due, *e)
	}
	s.mu.Unlock()

	for _, e := range due {
		if !s.tryAcquire(e.schedule.Name) {
			s.logger.Warn("schedule still in flight, skipping fire",
				"schedule", e.schedule.Name)
			continue
		}
		go s.fire(ctx, e.schedule, e.next)
	}
}

func (s *Scheduler) fire(ctx context.Context, sched Schedule, next time.Time) {
	defer s.release(sched.Name)

	if err := s.submitter.SubmitSchedule(ctx, sched); err != nil {
		s.logger.Error("scheduled submission failed",
			"schedule", sched.Name, "error", err.Error())
		return
	}
	s.logger.Info("schedule fired",
		"schedule", sched.Name,
		"workflow", sched.Workflow,
		"next_run", next.Format(time.RFC3339))
}

// FireNow dispatches one schedule immediately, bypassing its cron spec.
func (s *Scheduler) FireNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var sched *Schedule
	for i := range s.entries {
		if s.entries[i].schedule.Name == name {
			sched = &s.entries[i].schedule
			break
		}
	}
	s.mu.Unlock()

	if sched == nil {
		return schema.NewErrorf(schema.ErrCodeNotFound, "schedule %q not found", name)
	}
	if !s.tryAcquire(name) {
		return schema.NewErrorf(schema.ErrCodeConflict, "schedule %q is already running", name)
	}
	defer s.release(name)
	return s.submitter.SubmitSchedule(ctx, *sched)
}

// tryAcquire marks the schedule as in-flight if it is not already firing.
func (s *Scheduler) tryAcquire(name string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[name]; ok {
		return false
	}
	s.inflight[name] = struct{}{}
	return true
}

func (s *Scheduler) release(name string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, name)
}

// Stop gracefully shuts down the scheduling loop. In-flight fires are not
// interrupted beyond their context. The wait happens outside the lock: the
// loop's tick needs it to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	cancel()
	<-done

	s.logger.Info("scheduler stopped")
	return nil
}
