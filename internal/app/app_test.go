package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/ratelimit"
)

func sandboxConfig() *config.Config {
	cfg := config.Default()
	cfg.Sandbox = true
	cfg.SES.AccessKeyID = "test"
	cfg.SES.SecretAccessKey = "test"
	return cfg
}

func TestOpen_InMemory(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, sandboxConfig())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Memory)
	assert.Nil(t, a.DB)
	assert.Nil(t, a.Redis)

	a.Memory.PutAccount(domain.SendingAccount{
		ID: "acct-1", OrganizationID: "org-1", FromEmail: "dana@outreach.test",
		Provider: domain.ProviderSandbox, Status: domain.AccountActive, DailyQuota: 100, ReputationScore: 100,
	})
	a.Memory.PutCampaign(domain.Campaign{
		ID: "camp-1", OrganizationID: "org-1", AccountID: "acct-1", Status: domain.CampaignDraft,
		Steps: []domain.Step{{Index: 0, Subject: "Hi {{first_name}}", Body: "hello"}},
	})
	a.Memory.AddRecipients(domain.Recipient{
		ID: "r1", CampaignID: "camp-1", Email: "lead@acme.test", Fields: map[string]string{"first_name": "Lee"},
	})

	_, err = a.Engine.LaunchCampaign(ctx, "camp-1")
	require.NoError(t, err)
	res, err := a.Engine.RunDispatchCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
}

func TestOpen_OptionalAWSClientsOff(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, sandboxConfig())
	require.NoError(t, err)
	defer a.Close()

	s3c, err := a.S3(ctx)
	require.NoError(t, err)
	assert.Nil(t, s3c)

	ing, err := a.Ingester(ctx)
	require.NoError(t, err)
	require.NotNil(t, ing)

	poller, err := a.Poller(ctx, ing)
	require.NoError(t, err)
	assert.Nil(t, poller)
	assert.NotNil(t, a.Scheduler())
}

func TestOpen_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := sandboxConfig()
	cfg.Redis.URL = "redis://" + mr.Addr()
	cfg.OrgLimits = ratelimit.OrgLimits{PerDay: 1000}

	a, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.Redis)
	assert.NoError(t, a.Redis.Ping(context.Background()).Err())
}

func TestOpen_BadRedisURL(t *testing.T) {
	cfg := sandboxConfig()
	cfg.Redis.URL = "not a url"
	_, err := Open(context.Background(), cfg)
	assert.Error(t, err)
}
