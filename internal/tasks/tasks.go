// Package tasks supervises short-lived background goroutines, such as the
// photo download fan-out after a picker session is confirmed.
package tasks

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Tracker launches named goroutines, recovers their panics, and lets the
// process drain them on shutdown.
type Tracker struct {
	logger *zap.Logger
	group  sync.WaitGroup
}

// NewTracker builds a tracker.
func NewTracker(logger *zap.Logger) *Tracker {
	return &Tracker{logger: logger}
}

// Go runs task on its own goroutine. A panicking task is logged and absorbed
// so it never takes the process down.
func (tracker *Tracker) Go(ctx context.Context, name string, task func(ctx context.Context) error) {
	tracker.group.Add(1)
	go func() {
		defer tracker.group.Done()
		defer func() {
			if recovered := recover(); recovered != nil {
				tracker.logger.Error("background task panicked",
					zap.String("task", name),
					zap.Any("panic", recovered))
			}
		}()
		if err := task(ctx); err != nil {
			tracker.logger.Warn("background task failed",
				zap.String("task", name),
				zap.Error(err))
			return
		}
		tracker.logger.Debug("background task finished", zap.String("task", name))
	}()
}

// Wait blocks until every launched task has returned.
func (tracker *Tracker) Wait() {
	tracker.group.Wait()
}
