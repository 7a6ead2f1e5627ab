// Package supervisor runs the bridge's long-lived subsystems side by side and
// stops all of them as soon as one stops.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrTaskExited reports a task that returned without error while the
// process was still supposed to be running.
var ErrTaskExited = errors.New("task exited")

// ErrShutdownTimeout is returned when tasks do not stop within the grace period.
var ErrShutdownTimeout = errors.New("shutdown timed out")

const DefaultShutdownTimeout = 10 * time.Second

// Task is a named long-running function. Run must return once ctx is cancelled.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

type Supervisor struct {
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

func New(logger *slog.Logger, shutdownTimeout time.Duration) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &Supervisor{logger: logger.With("component", "supervisor"), shutdownTimeout: shutdownTimeout}
}

// Run starts every task and blocks until all have returned. The first task to
// return, with or without an error, cancels the others. Cancelling ctx is an
// orderly shutdown and yields nil; otherwise the first task's failure (or
// ErrTaskExited) is returned.
func (s *Supervisor) Run(ctx context.Context, tasks ...Task) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		g.Go(func() error {
			s.logger.Info("task started", "task", t.Name)
			err := t.Run(gctx)
			switch {
			case gctx.Err() != nil:
				s.logger.Info("task stopped", "task", t.Name, "err", err)
				return nil
			case err != nil:
				s.logger.Error("task failed", "task", t.Name, "err", err)
				return fmt.Errorf("%s: %w", t.Name, err)
			default:
				s.logger.Error("task exited unexpectedly", "task", t.Name)
				return fmt.Errorf("%s: %w", t.Name, ErrTaskExited)
			}
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-gctx.Done():
	}

	s.logger.Info("shutting down", "timeout", s.shutdownTimeout)
	timer := time.NewTimer(s.shutdownTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrShutdownTimeout
	}
}
