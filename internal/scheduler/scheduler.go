// Package scheduler drives the periodic background refresh loop.
package scheduler

import (
	"context"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	intervalEnvName        = "REFRESH_INTERVAL_SECONDS"
	defaultIntervalSeconds = 3600
	minimumIntervalSeconds = 10
)

// Passer runs one full refresh pass.
type Passer interface {
	RunPass(ctx context.Context)
}

// Scheduler runs an initial pass immediately, then one pass per interval
// until its context is cancelled.
type Scheduler struct {
	passer   Passer
	interval func() time.Duration
	logger   *zap.Logger
}

// New builds a scheduler. The interval function is consulted before every
// sleep so operators can retune the cadence without a restart.
func New(passer Passer, interval func() time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{passer: passer, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled.
func (scheduler *Scheduler) Run(ctx context.Context) {
	scheduler.passer.RunPass(ctx)
	for {
		interval := scheduler.interval()
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			scheduler.logger.Info("background refresh loop stopped")
			return
		case <-timer.C:
		}
		scheduler.passer.RunPass(ctx)
	}
}

// IntervalFromEnv reads the refresh cadence from the environment, defaulting
// to an hour and clamping to a ten second floor.
func IntervalFromEnv() time.Duration {
	seconds := defaultIntervalSeconds
	if raw := os.Getenv(intervalEnvName); raw != "" {
		parsed, parseErr := strconv.Atoi(raw)
		if parseErr == nil {
			seconds = parsed
		}
	}
	if seconds < minimumIntervalSeconds {
		seconds = minimumIntervalSeconds
	}
	return time.Duration(seconds) * time.Second
}
