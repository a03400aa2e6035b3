package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codehive/swarmd/pkg/config"
	"github.com/codehive/swarmd/pkg/store"
)

// Retention periodically deletes terminal jobs older than the configured
// retention window. Queued and running jobs are never touched.
type Retention struct {
	store  store.JobStore
	cfg    *config.RetentionConfig
	logger *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRetention creates a retention sweeper. A nil cfg uses the defaults.
func NewRetention(st store.JobStore, cfg *config.RetentionConfig, logger *slog.Logger) *Retention {
	if cfg == nil {
		cfg = config.DefaultRetentionConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retention{
		store:  st,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start launches the sweep loop. The first sweep runs immediately.
func (r *Retention) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.run(ctx)
	r.logger.Info("Retention sweeper started",
		"job_retention_days", r.cfg.JobRetentionDays,
		"sweep_interval", r.cfg.SweepInterval)
}

// Stop signals the loop to exit and waits for it to finish.
func (r *Retention) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
	r.logger.Info("Retention sweeper stopped")
}

func (r *Retention) run(ctx context.Context) {
	defer r.wg.Done()

	r.sweep(ctx)

	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Retention) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -r.cfg.JobRetentionDays)
	count, err := r.store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		r.logger.Error("Retention: job sweep failed", "error", err)
		return
	}
	if count > 0 {
		r.logger.Info("Retention: deleted old jobs", "count", count, "cutoff", cutoff)
	}
}
