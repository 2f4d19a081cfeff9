// Package scheduler runs the forecast pipeline on a fixed interval. It owns
// no business logic: each tick is a plain RunPipeline call, and overlap
// protection lives in the pipeline itself.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/velocityiq/velocityiq-engine/pkg/apperrors"
	"github.com/velocityiq/velocityiq-engine/pkg/models"
)

// Pipeline is the single operation the scheduler drives.
type Pipeline interface {
	RunPipeline(ctx context.Context) (*models.ForecastRun, error)
}

// Scheduler triggers pipeline runs at a fixed interval.
type Scheduler struct {
	pipeline Pipeline
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. A non-positive interval disables it:
// Start becomes a no-op and runs happen only via the manual trigger endpoint.
func NewScheduler(pipeline Pipeline, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		pipeline: pipeline,
		interval: interval,
		logger:   logger.Named("scheduler"),
	}
}

// Start launches the background loop: one run immediately, then one per
// interval until the context is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("Forecast scheduler disabled")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go s.loop(ctx)
}

// Stop halts the loop. Safe to call multiple times or before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	s.logger.Info("Forecast scheduler started", zap.Duration("interval", s.interval))

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Forecast scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce executes a single tick. A run already in flight is skipped, not
// queued; any other failure is logged and the next tick retries in full.
func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.pipeline.RunPipeline(ctx); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyRunning) {
			s.logger.Info("Previous run still in progress, skipping tick")
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("Scheduled forecast run failed", zap.Error(err))
	}
}
