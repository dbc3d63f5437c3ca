// Package maintenance runs periodic housekeeping that is a plain
// wall-clock cron schedule rather than the heartbeat runner's
// interval-since-last-tick model (internal/heartbeat hand-rolls that part
// per spec). Used for things like the doctor checklist refresh and
// periodic Docker-daemon re-probing. Grounded on the teacher's
// internal/cron package for schedule-config shape, but unlike the
// teacher's hand-rolled Schedule.Next walk, this package hands expressions
// straight to github.com/robfig/cron/v3's own scheduler.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Task is one unit of periodic work.
type Task struct {
	Name     string
	Schedule string // standard 5-field cron expression
	Run      func(ctx context.Context) error
}

// Scheduler runs a fixed set of Tasks on their own cron schedules.
type Scheduler struct {
	logger *slog.Logger
	cron   *cron.Cron

	mu      sync.Mutex
	lastErr map[string]error
}

// New constructs a Scheduler. The parser accepts the standard 5-field
// expression form (no seconds field, matching robfig/cron/v3's default).
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		logger:  logger.With("component", "maintenance"),
		cron:    cron.New(),
		lastErr: make(map[string]error),
	}
}

// Add registers a task. Returns an error if the schedule expression is
// invalid. Must be called before Start.
func (s *Scheduler) Add(task Task) error {
	if task.Run == nil {
		return fmt.Errorf("maintenance: task %q has no Run function", task.Name)
	}
	_, err := s.cron.AddFunc(task.Schedule, func() {
		ctx := context.Background()
		err := task.Run(ctx)
		s.mu.Lock()
		s.lastErr[task.Name] = err
		s.mu.Unlock()
		if err != nil {
			s.logger.Error("maintenance task failed", "task", task.Name, "error", err)
			return
		}
		s.logger.Debug("maintenance task completed", "task", task.Name)
	})
	if err != nil {
		return fmt.Errorf("maintenance: invalid schedule %q for task %q: %w", task.Schedule, task.Name, err)
	}
	return nil
}

// Start begins running registered tasks on their schedules. Non-blocking;
// robfig/cron/v3 runs its own goroutine internally.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, waiting for any in-flight task run to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastError returns the error from the task's most recent run, or nil if
// it has never run or last succeeded.
func (s *Scheduler) LastError(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr[name]
}
