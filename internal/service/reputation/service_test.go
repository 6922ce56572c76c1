package reputation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.SendingAccount
	counts   map[string]domain.SignalCounts
	failIDs  map[string]bool
}

func newMemRepo(accounts ...domain.SendingAccount) *memRepo {
	r := &memRepo{
		accounts: make(map[string]*domain.SendingAccount),
		counts:   make(map[string]domain.SignalCounts),
		failIDs:  make(map[string]bool),
	}
	for i := range accounts {
		a := accounts[i]
		r.accounts[a.ID] = &a
	}
	return r
}

func (r *memRepo) ListScoredAccounts(context.Context) ([]domain.SendingAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SendingAccount
	for _, a := range r.accounts {
		if a.Status != domain.AccountDisabled {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memRepo) RollingCounts(_ context.Context, id string, _ time.Time) (domain.SignalCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failIDs[id] {
		return domain.SignalCounts{}, errors.New("query failed")
	}
	return r.counts[id], nil
}

func (r *memRepo) UpdateReputation(_ context.Context, id string, score float64, c domain.SignalCounts) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.accounts[id]
	a.ReputationScore = score
	a.Sent24h, a.Bounced24h, a.Complained24h, a.Delivered24h = c.Sent, c.Bounced, c.Complained, c.Delivered
	return nil
}

func (r *memRepo) SetAccountStatus(_ context.Context, id string, from, to domain.AccountStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.accounts[id]
	if a.Status != from {
		return false, nil
	}
	a.Status = to
	return true, nil
}

func (r *memRepo) get(id string) domain.SendingAccount {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.accounts[id]
}

func newService(t *testing.T, repo Repository, sink notify.Sink) *Service {
	t.Helper()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s, err := NewService(repo, DefaultPolicy(), sink, func() time.Time { return now })
	require.NoError(t, err)
	return s
}

func TestPolicyTarget(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		name   string
		counts domain.SignalCounts
		want   float64
	}{
		{"no sends", domain.SignalCounts{}, 100},
		{"below minimum sample", domain.SignalCounts{Sent: 4, Bounced: 4}, 100},
		{"clean", domain.SignalCounts{Sent: 100, Bounced: 2}, 100},
		{"bounce at threshold", domain.SignalCounts{Sent: 100, Bounced: 5}, 100},
		{"bounce 8%", domain.SignalCounts{Sent: 50, Bounced: 4}, 61},
		{"complaint 0.2%", domain.SignalCounts{Sent: 1000, Complained: 2}, 36},
		{"both, complaint dominates", domain.SignalCounts{Sent: 1000, Bounced: 60, Complained: 2}, 36},
		{"extreme bounce floors at zero", domain.SignalCounts{Sent: 10, Bounced: 10}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, p.Target(tt.counts), 1e-9)
		})
	}
}

func TestPolicyOrdering(t *testing.T) {
	p := DefaultPolicy()
	complaint := p.Target(domain.SignalCounts{Sent: 1000, Complained: 2})
	bounce := p.Target(domain.SignalCounts{Sent: 1000, Bounced: 60})
	assert.LessOrEqual(t, complaint, 40.0)
	assert.LessOrEqual(t, bounce, 70.0)
	assert.Less(t, complaint, bounce)
}

func TestPolicyScoreDampsSmallSamples(t *testing.T) {
	p := DefaultPolicy()
	// Below the minimum sample a bounce carries no penalty.
	assert.Equal(t, 100.0, p.Score(100, domain.SignalCounts{Sent: 2, Bounced: 1}))
	// 10% bounces over 10 sends only moves the score part of the way: 0.56*100 + 0.44*55.
	assert.InDelta(t, 80.2, p.Score(100, domain.SignalCounts{Sent: 10, Bounced: 1}), 1e-9)
	// The same rate over a full sample takes the target outright.
	full := p.Score(100, domain.SignalCounts{Sent: 50, Bounced: 25})
	assert.InDelta(t, p.Target(domain.SignalCounts{Sent: 50, Bounced: 25}), full, 1e-9)
	// Idle accounts drift back toward 100 with the minimum weight.
	assert.InDelta(t, 0.7*40+0.3*100, p.Score(40, domain.SignalCounts{}), 1e-9)
}

func TestPolicyScoreClamps(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 100.0, p.Score(250, domain.SignalCounts{Sent: 100}))
	assert.Equal(t, 0.0, p.Score(-40, domain.SignalCounts{Sent: 100, Bounced: 100}))
}

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	inverted := DefaultPolicy()
	inverted.SuspendAt, inverted.RestoreAt = 85, 70
	assert.Error(t, inverted.Validate())

	_, err := NewService(newMemRepo(), inverted, nil, nil)
	assert.Error(t, err)
}

func TestEvaluate_SuspendsOnHighBounceRate(t *testing.T) {
	repo := newMemRepo(domain.SendingAccount{
		ID: "acc-1", OrganizationID: "org-1", Status: domain.AccountActive, ReputationScore: 100,
	})
	repo.counts["acc-1"] = domain.SignalCounts{Sent: 50, Bounced: 4}
	rec := &notify.Recorder{}
	s := newService(t, repo, rec)

	res, err := s.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scored)
	require.Len(t, res.Transitions, 1)
	assert.Equal(t, domain.AccountSuspended, res.Transitions[0].To)

	a := repo.get("acc-1")
	assert.Equal(t, domain.AccountSuspended, a.Status)
	assert.InDelta(t, 61, a.ReputationScore, 1e-9)
	assert.Equal(t, 50, a.Sent24h)
	assert.Equal(t, 4, a.Bounced24h)

	sent := rec.OfKind(notify.AccountSuspended)
	require.Len(t, sent, 1)
	assert.Equal(t, "acc-1", sent[0].AccountID)
	assert.Equal(t, "org-1", sent[0].OrganizationID)
}

func TestEvaluate_HysteresisAndRecovery(t *testing.T) {
	repo := newMemRepo(domain.SendingAccount{
		ID: "acc-1", OrganizationID: "org-1", Status: domain.AccountSuspended, ReputationScore: 61,
	})
	rec := &notify.Recorder{}
	s := newService(t, repo, rec)
	ctx := context.Background()

	// 61 -> 72.7 -> 80.89: above the suspend line but still inside the band.
	for i := 0; i < 2; i++ {
		res, err := s.Evaluate(ctx)
		require.NoError(t, err)
		assert.Empty(t, res.Transitions)
		assert.Equal(t, domain.AccountSuspended, repo.get("acc-1").Status)
	}
	assert.InDelta(t, 80.89, repo.get("acc-1").ReputationScore, 1e-6)

	// 80.89 -> 86.62 crosses the restore line.
	res, err := s.Evaluate(ctx)
	require.NoError(t, err)
	require.Len(t, res.Transitions, 1)
	assert.Equal(t, domain.AccountActive, repo.get("acc-1").Status)
	assert.Len(t, rec.OfKind(notify.AccountRestored), 1)
}

func TestEvaluate_RestoresWarmingAccountToWarming(t *testing.T) {
	started := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)
	repo := newMemRepo(domain.SendingAccount{
		ID: "acc-1", OrganizationID: "org-1", Status: domain.AccountSuspended, ReputationScore: 84,
		WarmupStartedAt: &started, WarmupTier: 2,
	})
	s := newService(t, repo, nil)

	_, err := s.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.AccountWarming, repo.get("acc-1").Status)
}

func TestEvaluate_BandKeepsActiveAccountActive(t *testing.T) {
	repo := newMemRepo(domain.SendingAccount{
		ID: "acc-1", OrganizationID: "org-1", Status: domain.AccountActive, ReputationScore: 78,
	})
	repo.counts["acc-1"] = domain.SignalCounts{Sent: 20, Bounced: 0}
	s := newService(t, repo, nil)

	res, err := s.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Transitions)
	assert.Equal(t, domain.AccountActive, repo.get("acc-1").Status)
}

func TestEvaluate_PerAccountErrorsAreIsolated(t *testing.T) {
	repo := newMemRepo(
		domain.SendingAccount{ID: "bad", OrganizationID: "org-1", Status: domain.AccountActive, ReputationScore: 100},
		domain.SendingAccount{ID: "good", OrganizationID: "org-2", Status: domain.AccountActive, ReputationScore: 100},
		domain.SendingAccount{ID: "off", OrganizationID: "org-2", Status: domain.AccountDisabled, ReputationScore: 10},
	)
	repo.failIDs["bad"] = true
	repo.counts["good"] = domain.SignalCounts{Sent: 100, Complained: 1}
	s := newService(t, repo, nil)

	res, err := s.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.Scored)
	assert.Equal(t, domain.AccountSuspended, repo.get("good").Status)
	assert.Equal(t, 10.0, repo.get("off").ReputationScore, "disabled accounts are not scored")
}
