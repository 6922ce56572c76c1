package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/engine"
	"github.com/ignite/outreach-engine/internal/service/campaign"
)

type stubEngine struct {
	ran    []engine.Trigger
	runErr error
}

func (s *stubEngine) LaunchCampaign(_ context.Context, id string) (*campaign.LaunchResult, error) {
	if id == "missing" {
		return nil, campaign.ErrNotFound
	}
	return &campaign.LaunchResult{CampaignID: id, JobsCreated: 4}, nil
}

func (s *stubEngine) GetCampaignStats(_ context.Context, id string) (*domain.CampaignStats, error) {
	return &domain.CampaignStats{CampaignID: id, Sent: 7}, nil
}

func (s *stubEngine) Run(_ context.Context, t engine.Trigger) (any, error) {
	s.ran = append(s.ran, t)
	if s.runErr != nil {
		return nil, s.runErr
	}
	return map[string]int{"n": len(s.ran)}, nil
}

func execute(t *testing.T, eng *stubEngine, args ...string) (string, bool, error) {
	t.Helper()
	closed := false
	open := func(context.Context, string) (Engine, func(), error) {
		return eng, func() { closed = true }, nil
	}
	root := newRootCmd(open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), closed, err
}

func TestLaunchCommand(t *testing.T) {
	out, closed, err := execute(t, &stubEngine{}, "launch", "camp-1")
	require.NoError(t, err)
	assert.True(t, closed)

	var res campaign.LaunchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "camp-1", res.CampaignID)
	assert.Equal(t, 4, res.JobsCreated)

	_, _, err = execute(t, &stubEngine{}, "launch", "missing")
	assert.ErrorIs(t, err, campaign.ErrNotFound)

	_, _, err = execute(t, &stubEngine{}, "launch")
	assert.Error(t, err)
}

func TestStatsCommand(t *testing.T) {
	out, _, err := execute(t, &stubEngine{}, "stats", "camp-2")
	require.NoError(t, err)
	assert.Contains(t, out, `"sent": 7`)
}

func TestTriggerCommand(t *testing.T) {
	eng := &stubEngine{}
	out, _, err := execute(t, eng, "trigger", "warmup")
	require.NoError(t, err)
	assert.Equal(t, []engine.Trigger{engine.TriggerWarmup}, eng.ran)
	assert.Contains(t, out, `"trigger": "warmup"`)

	_, _, err = execute(t, eng, "trigger", "compact")
	assert.ErrorIs(t, err, engine.ErrUnknownTrigger)
	assert.Len(t, eng.ran, 1)
}

func TestRunAllCommand(t *testing.T) {
	eng := &stubEngine{}
	_, _, err := execute(t, eng, "run-all")
	require.NoError(t, err)
	assert.Equal(t, engine.Triggers, eng.ran)

	eng = &stubEngine{runErr: errors.New("boom")}
	_, _, err = execute(t, eng, "run-all")
	require.Error(t, err)
	assert.Len(t, eng.ran, 1, "stops at the first failure")
}

func TestVersionCommandNeedsNoEngine(t *testing.T) {
	root := newRootCmd(func(context.Context, string) (Engine, func(), error) {
		t.Fatal("version must not open the engine")
		return nil, nil, nil
	})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "outreach-engine dev\n", out.String())
}
