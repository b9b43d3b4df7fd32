package tasks_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/tyemirov/homeboard/internal/tasks"
)

func TestWaitDrainsLaunchedTasks(t *testing.T) {
	t.Parallel()

	tracker := tasks.NewTracker(zap.NewNop())
	var completed atomic.Int64
	for i := 0; i < 5; i++ {
		tracker.Go(context.Background(), "counter", func(ctx context.Context) error {
			completed.Add(1)
			return nil
		})
	}
	tracker.Wait()
	if completed.Load() != 5 {
		t.Fatalf("expected 5 completed tasks, got %d", completed.Load())
	}
}

func TestFailingTaskDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	tracker := tasks.NewTracker(zap.NewNop())
	var succeeded atomic.Bool
	tracker.Go(context.Background(), "failing", func(ctx context.Context) error {
		return errors.New("download failed")
	})
	tracker.Go(context.Background(), "succeeding", func(ctx context.Context) error {
		succeeded.Store(true)
		return nil
	})
	tracker.Wait()
	if !succeeded.Load() {
		t.Fatal("sibling task never ran")
	}
}

func TestPanickingTaskIsAbsorbed(t *testing.T) {
	t.Parallel()

	tracker := tasks.NewTracker(zap.NewNop())
	tracker.Go(context.Background(), "panicking", func(ctx context.Context) error {
		panic("photo decode exploded")
	})
	tracker.Wait()
}
