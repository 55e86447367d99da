package reconciliation

import (
	"context"
	"sync"
	"time"

	"github.com/kislikjeka/moneyguard/pkg/logger"
)

// RunnerConfig controls the recurring full run
type RunnerConfig struct {
	Enabled  bool
	Interval time.Duration
}

// Runner executes the full reconciliation on a schedule
type Runner struct {
	engine  *Engine
	config  RunnerConfig
	logger  *logger.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewRunner creates a scheduled runner
func NewRunner(engine *Engine, config RunnerConfig, log *logger.Logger) *Runner {
	if config.Interval <= 0 {
		config.Interval = 24 * time.Hour
	}
	return &Runner{
		engine: engine,
		config: config,
		logger: log.WithField("component", "reconciliation_runner"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Run blocks, running reconciliation immediately and then every interval,
// until ctx is done or Stop is called
func (r *Runner) Run(ctx context.Context) {
	if !r.config.Enabled {
		r.logger.Info("scheduled reconciliation is disabled")
		return
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()
	defer close(r.doneCh)

	r.logger.Info("starting scheduled reconciliation", "interval", r.config.Interval)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("scheduled reconciliation stopping (context done)")
			return
		case <-r.stopCh:
			r.logger.Info("scheduled reconciliation stopping (stop signal)")
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

// Stop ends Run and waits for an in-progress run to finish
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	r.mu.Unlock()

	<-r.doneCh
}

func (r *Runner) runOnce(ctx context.Context) {
	start := time.Now()
	report, err := r.engine.Run(ctx, TriggerScheduled)
	if err != nil {
		r.logger.WithError(err).Error("scheduled reconciliation failed")
		return
	}
	r.logger.WithDuration(time.Since(start)).Info("scheduled reconciliation done",
		"run_id", report.RunID,
		"status", report.Status,
	)
}
