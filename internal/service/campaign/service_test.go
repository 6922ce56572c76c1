package campaign_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/repository/memory"
	"github.com/ignite/outreach-engine/internal/service/campaign"
)

var launchTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, steps []domain.Step, recipients ...domain.Recipient) (*memory.Store, *campaign.Service) {
	t.Helper()
	store := memory.New()
	store.PutAccount(domain.SendingAccount{
		ID: "acct-1", OrganizationID: "org-1", FromEmail: "rep@example.com",
		Provider: domain.ProviderSandbox, Status: domain.AccountActive, DailyQuota: 100,
	})
	store.PutCampaign(domain.Campaign{
		ID: "camp-1", OrganizationID: "org-1", AccountID: "acct-1",
		Status: domain.CampaignDraft, Steps: steps,
	})
	store.AddRecipients(recipients...)
	svc := campaign.NewService(store, campaign.WithClock(func() time.Time { return launchTime }))
	return store, svc
}

func recipient(id, email string) domain.Recipient {
	return domain.Recipient{ID: id, CampaignID: "camp-1", Email: email}
}

func threeSteps() []domain.Step {
	return []domain.Step{
		{Index: 0, Subject: "Hi {{first_name}}", Body: "intro"},
		{Index: 1, Subject: "Following up", Body: "bump", Delay: 48 * time.Hour},
		{Index: 2, Subject: "Last note", Body: "bye", Delay: 72 * time.Hour},
	}
}

func TestLaunch_MaterializesOneJobPerStepAndRecipient(t *testing.T) {
	store, svc := seed(t, threeSteps(),
		recipient("r1", "ann@acme.test"),
		recipient("r2", "bob@acme.test"),
	)

	res, err := svc.Launch(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 6, res.JobsCreated)
	assert.Equal(t, 2, res.Recipients)
	assert.Equal(t, 3, res.Steps)
	assert.False(t, res.AlreadyRunning)

	jobs := store.Jobs("camp-1")
	require.Len(t, jobs, 6)
	want := map[int]time.Time{
		0: launchTime,
		1: launchTime.Add(48 * time.Hour),
		2: launchTime.Add(120 * time.Hour),
	}
	for _, j := range jobs {
		assert.Equal(t, domain.JobPending, j.Status)
		assert.Equal(t, "acct-1", j.AccountID)
		assert.True(t, want[j.StepIndex].Equal(j.ScheduledAt), "step %d scheduled at %s", j.StepIndex, j.ScheduledAt)
	}

	c, err := store.GetCampaign(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignRunning, c.Status)
	require.NotNil(t, c.LaunchedAt)
}

func TestLaunch_SecondLaunchIsNoop(t *testing.T) {
	store, svc := seed(t, threeSteps(), recipient("r1", "ann@acme.test"))

	_, err := svc.Launch(context.Background(), "camp-1")
	require.NoError(t, err)

	res, err := svc.Launch(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.True(t, res.AlreadyRunning)
	assert.Zero(t, res.JobsCreated)
	assert.Len(t, store.Jobs("camp-1"), 3)
}

func TestLaunch_SkipsIneligibleRecipients(t *testing.T) {
	unsub := recipient("r3", "cat@acme.test")
	unsub.Status = domain.RecipientUnsubscribed
	store, svc := seed(t, threeSteps()[:1],
		recipient("r1", "ann@acme.test"),
		recipient("r2", "not-an-address"),
		unsub,
	)

	res, err := svc.Launch(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Recipients)
	jobs := store.Jobs("camp-1")
	require.Len(t, jobs, 1)
	assert.Equal(t, "r1", jobs[0].RecipientID)
}

func TestLaunch_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		steps   []domain.Step
		mutate  func(*memory.Store)
		recips  []domain.Recipient
		wantErr error
	}{
		{
			name:    "no steps",
			recips:  []domain.Recipient{recipient("r1", "ann@acme.test")},
			wantErr: campaign.ErrNoSteps,
		},
		{
			name: "follow-up without delay",
			steps: []domain.Step{
				{Index: 0, Subject: "a", Body: "a"},
				{Index: 1, Subject: "b", Body: "b"},
			},
			recips:  []domain.Recipient{recipient("r1", "ann@acme.test")},
			wantErr: campaign.ErrInvalidStepDelay,
		},
		{
			name:    "no eligible recipients",
			steps:   threeSteps(),
			recips:  []domain.Recipient{recipient("r1", "broken")},
			wantErr: campaign.ErrNoEligibleRecipients,
		},
		{
			name:  "suspended account",
			steps: threeSteps(),
			mutate: func(s *memory.Store) {
				a, _ := s.Account("acct-1")
				a.Status = domain.AccountSuspended
				s.PutAccount(a)
			},
			recips:  []domain.Recipient{recipient("r1", "ann@acme.test")},
			wantErr: campaign.ErrAccountUnusable,
		},
		{
			name:  "paused campaign",
			steps: threeSteps(),
			mutate: func(s *memory.Store) {
				c, _ := s.GetCampaign(context.Background(), "camp-1")
				c.Status = domain.CampaignPaused
				s.PutCampaign(*c)
			},
			recips:  []domain.Recipient{recipient("r1", "ann@acme.test")},
			wantErr: campaign.ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, svc := seed(t, tt.steps, tt.recips...)
			if tt.mutate != nil {
				tt.mutate(store)
			}
			_, err := svc.Launch(context.Background(), "camp-1")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Empty(t, store.Jobs("camp-1"))
		})
	}
}

func TestLaunch_UnknownCampaign(t *testing.T) {
	_, svc := seed(t, threeSteps())
	_, err := svc.Launch(context.Background(), "missing")
	assert.ErrorIs(t, err, campaign.ErrNotFound)

	_, err = svc.Stats(context.Background(), "missing")
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestStats_FreshLaunch(t *testing.T) {
	_, svc := seed(t, threeSteps(), recipient("r1", "ann@acme.test"), recipient("r2", "bob@acme.test"))
	_, err := svc.Launch(context.Background(), "camp-1")
	require.NoError(t, err)

	st, err := svc.Stats(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Recipients)
	assert.Equal(t, 6, st.Pending)
	assert.Zero(t, st.Sent)
	assert.Zero(t, st.Delivered)
}

func TestMaterialize_CumulativeOffsets(t *testing.T) {
	c := &domain.Campaign{ID: "c", AccountID: "a"}
	steps := []domain.Step{
		{Index: 0, Delay: time.Hour},
		{Index: 1, Delay: 2 * time.Hour},
	}
	jobs := campaign.Materialize(c, steps, []domain.Recipient{{ID: "r"}}, launchTime)
	require.Len(t, jobs, 2)
	assert.Equal(t, launchTime.Add(time.Hour), jobs[0].ScheduledAt)
	assert.Equal(t, launchTime.Add(3*time.Hour), jobs[1].ScheduledAt)
	assert.NotEqual(t, jobs[0].ID, jobs[1].ID)
}
