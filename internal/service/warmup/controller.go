// Package warmup advances sending accounts through warm-up tiers by age.
package warmup

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/metrics"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// Controller evaluates warm-up progress. Tiers only ever move forward.
type Controller struct {
	repo     Repository
	schedule Schedule
	now      func() time.Time
	log      *logger.Logger
}

// NewController creates a controller. A nil schedule uses DefaultSchedule.
func NewController(repo Repository, schedule Schedule, now func() time.Time) (*Controller, error) {
	if schedule == nil {
		schedule = DefaultSchedule
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Controller{
		repo:     repo,
		schedule: schedule,
		now:      now,
		log:      logger.With("component", "warmup"),
	}, nil
}

// TierChange records one account moving tiers.
type TierChange struct {
	AccountID  string `json:"account_id"`
	FromTier   int    `json:"from_tier"`
	ToTier     int    `json:"to_tier"`
	DailyQuota int    `json:"daily_quota"`
	Promoted   bool   `json:"promoted"`
}

// Result summarizes an evaluation pass.
type Result struct {
	Evaluated int          `json:"evaluated"`
	Changes   []TierChange `json:"changes"`
	Errors    int          `json:"errors"`
}

// Evaluate recomputes every warming account's tier from its age and applies
// forward moves. Per-account failures are logged and counted, not returned.
func (c *Controller) Evaluate(ctx context.Context) (*Result, error) {
	accounts, err := c.repo.ListWarmupAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list warm-up accounts: %w", err)
	}

	now := c.now()
	res := &Result{}
	for i := range accounts {
		a := &accounts[i]
		if a.WarmupStartedAt == nil || a.Status == domain.AccountDisabled {
			continue
		}
		res.Evaluated++

		ageDays := int(now.Sub(*a.WarmupStartedAt) / (24 * time.Hour))
		target := c.schedule.TierForAge(ageDays)
		if target.Number <= a.WarmupTier {
			continue
		}

		promote := target.Number == domain.MaxWarmupTier
		ok, err := c.repo.AdvanceWarmupTier(ctx, a.ID, a.WarmupTier, target.Number, target.DailyQuota, promote)
		if err != nil {
			res.Errors++
			c.log.Error("advance tier failed", "account_id", a.ID, "error", err)
			continue
		}
		if !ok {
			// Another evaluator moved it first.
			continue
		}

		change := TierChange{
			AccountID:  a.ID,
			FromTier:   a.WarmupTier,
			ToTier:     target.Number,
			DailyQuota: target.DailyQuota,
			Promoted:   promote && a.Status == domain.AccountWarming,
		}
		res.Changes = append(res.Changes, change)
		metrics.IncWarmupAdvance()
		if change.Promoted {
			metrics.IncAccountTransition(string(domain.AccountActive))
		}
		c.log.Info("warm-up tier advanced",
			"account_id", a.ID, "from", change.FromTier, "to", change.ToTier,
			"daily_quota", change.DailyQuota, "age_days", ageDays, "promoted", change.Promoted)
	}
	return res, nil
}
