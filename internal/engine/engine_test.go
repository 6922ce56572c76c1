package engine_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/engine"
	"github.com/ignite/outreach-engine/internal/esp"
	"github.com/ignite/outreach-engine/internal/notify"
	"github.com/ignite/outreach-engine/internal/repository/memory"
	"github.com/ignite/outreach-engine/internal/service/dispatch"
	"github.com/ignite/outreach-engine/internal/service/reconcile"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	store   *memory.Store
	sandbox *esp.Sandbox
	clock   *clock
	sink    *notify.Recorder
	eng     *engine.Engine
}

func newHarness(t *testing.T, account domain.SendingAccount) *harness {
	t.Helper()
	h := &harness{
		store:   memory.New(),
		sandbox: esp.NewSandbox(),
		clock:   &clock{now: t0},
		sink:    &notify.Recorder{},
	}
	h.store.PutAccount(account)

	cfg := engine.DefaultConfig()
	cfg.Dispatch.BatchSize = 100
	cfg.Dispatch.MinInterval = map[domain.ProviderKind]time.Duration{}
	cfg.Dispatch.DefaultMinInterval = 0

	eng, err := engine.New(h.store, esp.NewRegistry(nil, nil, h.sandbox), cfg,
		engine.WithClock(h.clock.Now), engine.WithNotifier(h.sink))
	require.NoError(t, err)
	h.eng = eng
	return h
}

func (h *harness) addCampaign(steps []domain.Step, n int) {
	h.store.PutCampaign(domain.Campaign{
		ID: "camp-1", OrganizationID: "org-1", AccountID: "acct-1", Status: domain.CampaignDraft,
		StaticValues: map[string]string{"sender_name": "Dana"},
		Steps:        steps,
	})
	for i := 1; i <= n; i++ {
		h.store.AddRecipients(domain.Recipient{
			ID: fmt.Sprintf("r%d", i), CampaignID: "camp-1", Email: fmt.Sprintf("lead%d@acme.test", i),
			Fields: map[string]string{"first_name": fmt.Sprintf("Lead%d", i)},
		})
	}
}

func (h *harness) messageID(t *testing.T, recipientID string, step int) string {
	t.Helper()
	for _, j := range h.store.Jobs("camp-1") {
		if j.RecipientID == recipientID && j.StepIndex == step {
			require.NotEmpty(t, j.MessageID)
			return j.MessageID
		}
	}
	t.Fatalf("no job for %s step %d", recipientID, step)
	return ""
}

func (h *harness) bounce(t *testing.T, recipientID string, step int) {
	t.Helper()
	out, err := h.eng.ApplyEvent(context.Background(), domain.DeliveryEvent{
		MessageID: h.messageID(t, recipientID, step), Type: domain.EventBounced,
		OccurredAt: h.clock.Now(), Provider: "sandbox",
	})
	require.NoError(t, err)
	require.Equal(t, reconcile.Applied, out)
}

func jobsByStatus(jobs []domain.SendJob, step int) map[domain.JobStatus]int {
	out := make(map[domain.JobStatus]int)
	for _, j := range jobs {
		if j.StepIndex == step {
			out[j.Status]++
		}
	}
	return out
}

func warmingAccount() domain.SendingAccount {
	started := t0
	return domain.SendingAccount{
		ID: "acct-1", OrganizationID: "org-1", FromEmail: "dana@outreach.test", FromName: "Dana",
		Provider: domain.ProviderSandbox, Status: domain.AccountWarming,
		WarmupStartedAt: &started, WarmupTier: 1, DailyQuota: 20, ReputationScore: 100,
	}
}

func TestSequenceLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, warmingAccount())
	h.addCampaign([]domain.Step{
		{Index: 0, Subject: "Quick question, {{first_name}}", Body: "Hi {{first_name}}, {{sender_name}} here."},
		{Index: 1, Subject: "Re: quick question", Body: "Bumping this.", Delay: 48 * time.Hour},
	}, 3)

	launch, err := h.eng.LaunchCampaign(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 6, launch.JobsCreated)

	res, err := h.eng.RunDispatchCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Sent)
	assert.Equal(t, 3, jobsByStatus(h.store.Jobs("camp-1"), 0)[domain.JobSent])
	assert.Equal(t, 3, jobsByStatus(h.store.Jobs("camp-1"), 1)[domain.JobPending])
	var subjects []string
	for _, d := range h.sandbox.Delivered() {
		subjects = append(subjects, d.Message.Subject)
	}
	assert.ElementsMatch(t, []string{"Quick question, Lead1", "Quick question, Lead2", "Quick question, Lead3"}, subjects)

	h.bounce(t, "r2", 0)

	step2 := jobsByStatus(h.store.Jobs("camp-1"), 1)
	assert.Equal(t, 2, step2[domain.JobPending], "recipients still eligible for step 2")
	assert.Equal(t, 1, step2[domain.JobSkipped])

	h.clock.Advance(48 * time.Hour)
	res, err = h.eng.RunDispatchCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, []string{"camp-1"}, res.CompletedCampaigns)

	stats, err := h.eng.GetCampaignStats(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Recipients)
	assert.Equal(t, 5, stats.Sent)
	assert.Equal(t, 1, stats.Bounced)
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.Pending)
	assert.Zero(t, stats.Failed)

	perRecipient := make(map[string]int)
	for _, d := range h.sandbox.Delivered() {
		perRecipient[d.Message.To]++
	}
	assert.Equal(t, map[string]int{"lead1@acme.test": 2, "lead2@acme.test": 1, "lead3@acme.test": 2}, perRecipient)
	assert.Len(t, h.sink.OfKind(notify.CampaignExhausted), 1)
}

func TestBounceRateSuspendsAccount(t *testing.T) {
	ctx := context.Background()
	acct := warmingAccount()
	acct.Status = domain.AccountActive
	acct.WarmupStartedAt = nil
	acct.WarmupTier = 0
	acct.DailyQuota = 500
	h := newHarness(t, acct)
	h.addCampaign([]domain.Step{
		{Index: 0, Subject: "Hello {{first_name}}", Body: "intro"},
		{Index: 1, Subject: "Following up", Body: "bump", Delay: time.Hour},
	}, 50)

	_, err := h.eng.LaunchCampaign(ctx, "camp-1")
	require.NoError(t, err)
	res, err := h.eng.RunDispatchCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, 50, res.Sent)

	for _, rid := range []string{"r3", "r11", "r27", "r40"} {
		h.bounce(t, rid, 0)
	}

	rep, err := h.eng.RunReputationEvaluation(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Scored)
	require.Len(t, rep.Transitions, 1)
	assert.Equal(t, domain.AccountSuspended, rep.Transitions[0].To)

	a, _ := h.store.Account("acct-1")
	assert.Equal(t, domain.AccountSuspended, a.Status)
	assert.InDelta(t, 61.0, a.ReputationScore, 0.001)
	assert.Equal(t, 50, a.Sent24h)
	assert.Equal(t, 4, a.Bounced24h)
	assert.Len(t, h.sink.OfKind(notify.AccountSuspended), 1)

	h.clock.Advance(time.Hour)
	res, err = h.eng.RunDispatchCycle(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Due)
	assert.Zero(t, res.Sent)
	assert.Zero(t, res.Failed)

	step2 := jobsByStatus(h.store.Jobs("camp-1"), 1)
	assert.Equal(t, 46, step2[domain.JobPending])
	assert.Equal(t, 4, step2[domain.JobSkipped])
}

func TestRunTriggers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, warmingAccount())
	h.addCampaign([]domain.Step{{Index: 0, Subject: "s", Body: "b"}}, 2)
	_, err := h.eng.LaunchCampaign(ctx, "camp-1")
	require.NoError(t, err)

	out, err := h.eng.Run(ctx, engine.TriggerDispatch)
	require.NoError(t, err)
	assert.Equal(t, 2, out.(*dispatch.CycleResult).Sent)

	h.clock.Advance(24 * time.Hour)
	out, err = h.eng.Run(ctx, engine.TriggerQuotaReset)
	require.NoError(t, err)
	assert.Equal(t, &engine.QuotaResetResult{Accounts: 1}, out)

	out, err = h.eng.Run(ctx, engine.TriggerStaleSweep)
	require.NoError(t, err)
	assert.Equal(t, &dispatch.SweepResult{}, out)

	_, err = h.eng.Run(ctx, engine.Trigger("compact"))
	assert.ErrorIs(t, err, engine.ErrUnknownTrigger)
}

func TestParseTrigger(t *testing.T) {
	for _, name := range []string{"dispatch", "warmup", "reputation", "quota-reset", "stale-sweep"} {
		tr, err := engine.ParseTrigger(name)
		require.NoError(t, err)
		assert.Equal(t, engine.Trigger(name), tr)
	}
	_, err := engine.ParseTrigger("Dispatch")
	assert.ErrorIs(t, err, engine.ErrUnknownTrigger)
}

func TestWarmupEvaluationThroughEngine(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, warmingAccount())
	h.clock.Advance(9 * 24 * time.Hour)

	res, err := h.eng.RunWarmupEvaluation(ctx)
	require.NoError(t, err)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, 2, res.Changes[0].ToTier)

	a, _ := h.store.Account("acct-1")
	assert.Equal(t, 2, a.WarmupTier)
	assert.Equal(t, 50, a.DailyQuota)
}
