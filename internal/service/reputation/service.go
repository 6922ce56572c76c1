// Package reputation scores sending accounts from their recent delivery
// signals and suspends or restores them when scores cross the guard band.
package reputation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/metrics"
	"github.com/ignite/outreach-engine/internal/notify"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// Service runs scoring passes followed by guard passes, one organization at
// a time.
type Service struct {
	repo   Repository
	policy Policy
	sink   notify.Sink
	now    func() time.Time
	log    *logger.Logger
}

// NewService validates the policy and builds the service.
func NewService(repo Repository, policy Policy, sink notify.Sink, now func() time.Time) (*Service, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("reputation policy: %w", err)
	}
	if sink == nil {
		sink = notify.Discard{}
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:   repo,
		policy: policy,
		sink:   sink,
		now:    now,
		log:    logger.With("component", "reputation"),
	}, nil
}

// Transition is one guard decision.
type Transition struct {
	AccountID      string               `json:"account_id"`
	OrganizationID string               `json:"organization_id"`
	From           domain.AccountStatus `json:"from"`
	To             domain.AccountStatus `json:"to"`
	Score          float64              `json:"score"`
}

// Result summarizes an evaluation.
type Result struct {
	Scored      int          `json:"scored"`
	Transitions []Transition `json:"transitions"`
	Errors      int          `json:"errors"`
}

// Evaluate scores every non-disabled account and then applies the guard
// per organization. Per-account failures are logged and counted.
func (s *Service) Evaluate(ctx context.Context) (*Result, error) {
	accounts, err := s.repo.ListScoredAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	byOrg := make(map[string][]domain.SendingAccount)
	for _, a := range accounts {
		byOrg[a.OrganizationID] = append(byOrg[a.OrganizationID], a)
	}
	orgs := make([]string, 0, len(byOrg))
	for org := range byOrg {
		orgs = append(orgs, org)
	}
	sort.Strings(orgs)

	res := &Result{}
	for _, org := range orgs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		s.evaluateOrg(ctx, byOrg[org], res)
	}
	return res, nil
}

func (s *Service) evaluateOrg(ctx context.Context, accounts []domain.SendingAccount, res *Result) {
	now := s.now()
	since := now.Add(-s.policy.Window)

	type scored struct {
		account domain.SendingAccount
		counts  domain.SignalCounts
		score   float64
	}
	var pass []scored

	for _, a := range accounts {
		counts, err := s.repo.RollingCounts(ctx, a.ID, since)
		if err != nil {
			res.Errors++
			s.log.Error("rolling counts failed", "account_id", a.ID, "error", err)
			continue
		}
		score := s.policy.Score(a.ReputationScore, counts)
		if err := s.repo.UpdateReputation(ctx, a.ID, score, counts); err != nil {
			res.Errors++
			s.log.Error("update reputation failed", "account_id", a.ID, "error", err)
			continue
		}
		res.Scored++
		metrics.SetReputationScore(a.ID, score)
		s.log.Debug("account scored",
			"account_id", a.ID, "prev", a.ReputationScore, "score", score,
			"sent", counts.Sent, "bounced", counts.Bounced, "complained", counts.Complained)
		pass = append(pass, scored{account: a, counts: counts, score: score})
	}

	// Guard runs after the whole organization is scored. Each account gets
	// at most one transition because the branches are exclusive on status.
	for _, sc := range pass {
		a := sc.account
		var to domain.AccountStatus
		var kind notify.Kind
		switch {
		case a.CanSend() && sc.score <= s.policy.SuspendAt:
			to, kind = domain.AccountSuspended, notify.AccountSuspended
		case a.Status == domain.AccountSuspended && sc.score >= s.policy.RestoreAt:
			to, kind = a.RestoreStatus(), notify.AccountRestored
		default:
			continue
		}

		ok, err := s.repo.SetAccountStatus(ctx, a.ID, a.Status, to)
		if err != nil {
			res.Errors++
			s.log.Error("account status change failed", "account_id", a.ID, "to", string(to), "error", err)
			continue
		}
		if !ok {
			continue
		}

		res.Transitions = append(res.Transitions, Transition{
			AccountID: a.ID, OrganizationID: a.OrganizationID, From: a.Status, To: to, Score: sc.score,
		})
		metrics.IncAccountTransition(string(to))
		reason := fmt.Sprintf("score %.1f (bounce %.1f%%, complaint %.2f%% over %d sends)",
			sc.score, 100*sc.counts.BounceRate(), 100*sc.counts.ComplaintRate(), sc.counts.Sent)
		s.log.Warn("account status changed",
			"account_id", a.ID, "from", string(a.Status), "to", string(to), "reason", reason)
		s.sink.Notify(ctx, notify.Notification{
			Kind:           kind,
			OrganizationID: a.OrganizationID,
			AccountID:      a.ID,
			Reason:         reason,
			Score:          sc.score,
			At:             s.now(),
		})
	}
}
