// Package pipeline runs the extract, transform, metric, validate and load
// stages for each configured source.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salesetl/internal/logger"
)

// Scheduler errors.
var (
	ErrUnknownTask     = errors.New("unknown task")
	ErrDuplicateTask   = errors.New("task already registered")
	ErrDependencyCycle = errors.New("dependency cycle")
)

// TaskFunc is the body of a task.
type TaskFunc func(ctx context.Context) error

type task struct {
	fn   TaskFunc
	err  error
	name string
	deps []string
	done bool
}

// Scheduler runs named tasks after their dependencies. Each task runs at most
// once; running it again returns its first outcome.
type Scheduler struct {
	log   *logger.Logger
	tasks map[string]*task
}

// NewScheduler creates an empty scheduler.
func NewScheduler(log *logger.Logger) *Scheduler {
	return &Scheduler{log: log, tasks: make(map[string]*task)}
}

// Add registers a task. Dependencies are resolved when it runs.
func (s *Scheduler) Add(name string, fn TaskFunc, deps ...string) error {
	if _, ok := s.tasks[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, name)
	}

	s.tasks[name] = &task{name: name, fn: fn, deps: deps}

	return nil
}

// Run executes name after running its dependencies depth first.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	return s.run(ctx, name, make(map[string]bool))
}

// Completed reports whether name has run, successfully or not.
func (s *Scheduler) Completed(name string) bool {
	t, ok := s.tasks[name]
	return ok && t.done
}

func (s *Scheduler) run(ctx context.Context, name string, visiting map[string]bool) error {
	t, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	if t.done {
		return t.err
	}

	if visiting[name] {
		return fmt.Errorf("%w: %s", ErrDependencyCycle, name)
	}

	visiting[name] = true
	defer delete(visiting, name)

	for _, dep := range t.deps {
		if err := s.run(ctx, dep, visiting); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	s.log.Debug("executing task", "task", name)
	start := time.Now()

	t.done = true

	if err := t.fn(ctx); err != nil {
		t.err = fmt.Errorf("task %s: %w", name, err)
		s.log.Error("task failed", "task", name, "error", err)

		return t.err
	}

	s.log.Debug("task completed", "task", name, "duration", time.Since(start))

	return nil
}
