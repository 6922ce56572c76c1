package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/outreach-engine/internal/metrics"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// Maintenance keeps the job table moving: it re-arms jobs orphaned in
// sending, expires backlog that is too old to be worth sending, and rolls
// daily quotas over.
type Maintenance struct {
	repo       MaintenanceRepository
	staleAfter time.Duration
	maxJobAge  time.Duration
	now        func() time.Time
	log        *logger.Logger
}

// NewMaintenance creates the sweeps with the stale and expiry limits in cfg.
func NewMaintenance(repo MaintenanceRepository, cfg Config, now func() time.Time) *Maintenance {
	cfg.applyDefaults()
	if now == nil {
		now = time.Now
	}
	return &Maintenance{
		repo:       repo,
		staleAfter: cfg.StaleAfter,
		maxJobAge:  cfg.MaxJobAge,
		now:        now,
		log:        logger.With("component", "maintenance"),
	}
}

// SweepResult reports what a sweep changed.
type SweepResult struct {
	Reclaimed int `json:"reclaimed"`
	Expired   int `json:"expired"`
}

// Sweep re-arms stale sending jobs and expires overdue pending jobs.
func (m *Maintenance) Sweep(ctx context.Context) (*SweepResult, error) {
	now := m.now()
	res := &SweepResult{}

	n, err := m.repo.ReclaimStaleJobs(ctx, now.Add(-m.staleAfter))
	if err != nil {
		return nil, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	res.Reclaimed = n
	metrics.AddSwept("reclaimed", n)

	n, err = m.repo.ExpireJobs(ctx, now.Add(-m.maxJobAge), "expired")
	if err != nil {
		return res, fmt.Errorf("expire jobs: %w", err)
	}
	res.Expired = n
	metrics.AddSwept("expired", n)

	if res.Reclaimed > 0 || res.Expired > 0 {
		m.log.Info("sweep finished", "reclaimed", res.Reclaimed, "expired", res.Expired)
	}
	return res, nil
}

// ResetQuotas zeroes quota usage left over from earlier days.
func (m *Maintenance) ResetQuotas(ctx context.Context) (int, error) {
	n, err := m.repo.ResetDailyQuotas(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("reset daily quotas: %w", err)
	}
	if n > 0 {
		m.log.Info("daily quotas reset", "accounts", n)
	}
	return n, nil
}
