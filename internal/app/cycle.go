package app

import (
	"context"
	"errors"
	"time"

	"admission-scheduler/internal/allocator"
	"admission-scheduler/internal/service"

	"go.uber.org/zap"
)

// CycleRunner drives periodic allocation passes in the background.
type CycleRunner struct {
	scheduleService *service.ScheduleService
	interval        time.Duration
	logger          *zap.Logger
	stopChan        chan struct{}
}

func NewCycleRunner(scheduleService *service.ScheduleService, interval time.Duration, logger *zap.Logger) *CycleRunner {
	return &CycleRunner{
		scheduleService: scheduleService,
		interval:        interval,
		logger:          logger,
		stopChan:        make(chan struct{}),
	}
}

// Start launches the allocation loop.
func (r *CycleRunner) Start(ctx context.Context) {
	r.logger.Info("Starting allocation cycle runner",
		zap.Duration("interval", r.interval))
	go r.run(ctx)
}

// Stop stops the background loop.
func (r *CycleRunner) Stop() {
	r.logger.Info("Stopping allocation cycle runner")
	close(r.stopChan)
}

func (r *CycleRunner) run(ctx context.Context) {
	// First pass right away, then on the ticker.
	r.runCycle(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runCycle(ctx)
		case <-r.stopChan:
			r.logger.Info("Allocation cycle runner stopped")
			return
		case <-ctx.Done():
			r.logger.Info("Allocation cycle runner cancelled")
			return
		}
	}
}

func (r *CycleRunner) runCycle(ctx context.Context) {
	report, err := r.scheduleService.RunCycle(ctx)
	if err != nil {
		// An empty pool just means nothing arrived since the last pass.
		if errors.Is(err, allocator.ErrEmptyRequestPool) {
			r.logger.Info("No pending requests, skipping cycle")
			return
		}
		r.logger.Error("Allocation cycle failed", zap.Error(err))
		return
	}

	for _, demand := range report.Demand {
		if demand.Highlight {
			r.logger.Info("Slot demand reached open-recommendation threshold",
				zap.String("slot_id", demand.SlotID),
				zap.Int("demand", demand.Demand))
		}
	}
}
