// Package api serves the engine's HTTP surface: campaign launch and stats,
// manual triggers, provider webhooks, health and metrics.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/engine"
	"github.com/ignite/outreach-engine/internal/pkg/httputil"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/service/campaign"
)

// Engine is the subset of *engine.Engine the handlers call.
type Engine interface {
	LaunchCampaign(ctx context.Context, campaignID string) (*campaign.LaunchResult, error)
	GetCampaignStats(ctx context.Context, campaignID string) (*domain.CampaignStats, error)
	Run(ctx context.Context, t engine.Trigger) (any, error)
}

// Handlers contains the HTTP handlers for campaign and trigger operations.
type Handlers struct {
	engine Engine
	log    *logger.Logger
}

// NewHandlers creates Handlers over eng.
func NewHandlers(eng Engine) *Handlers {
	return &Handlers{engine: eng, log: logger.With("component", "api")}
}

// LaunchCampaign materializes the campaign's send jobs.
//
//	POST /api/campaigns/{id}/launch
func (h *Handlers) LaunchCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.engine.LaunchCampaign(r.Context(), id)
	if err != nil {
		h.writeCampaignError(w, id, err)
		return
	}
	if res.AlreadyRunning {
		httputil.OK(w, res)
		return
	}
	h.log.Info("campaign launched", "campaign_id", id, "jobs", res.JobsCreated)
	httputil.JSON(w, http.StatusCreated, res)
}

// GetCampaignStats returns job and recipient counts.
//
//	GET /api/campaigns/{id}/stats
func (h *Handlers) GetCampaignStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	stats, err := h.engine.GetCampaignStats(r.Context(), id)
	if err != nil {
		h.writeCampaignError(w, id, err)
		return
	}
	httputil.OK(w, stats)
}

// RunTrigger runs one periodic operation immediately.
//
//	POST /api/triggers/{name}
func (h *Handlers) RunTrigger(w http.ResponseWriter, r *http.Request) {
	t, err := engine.ParseTrigger(chi.URLParam(r, "name"))
	if err != nil {
		httputil.ErrorCode(w, http.StatusNotFound, "unknown_trigger", err.Error())
		return
	}
	out, err := h.engine.Run(r.Context(), t)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"trigger": t, "result": out})
}

var launchErrorCodes = []struct {
	err  error
	code string
}{
	{campaign.ErrInvalidTransition, "invalid_transition"},
	{campaign.ErrNoSteps, "no_steps"},
	{campaign.ErrInvalidStepDelay, "invalid_step_delay"},
	{campaign.ErrNoEligibleRecipients, "no_eligible_recipients"},
	{campaign.ErrAccountUnusable, "account_unusable"},
}

func (h *Handlers) writeCampaignError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, campaign.ErrNotFound) {
		httputil.NotFound(w, "campaign "+id+" not found")
		return
	}
	for _, c := range launchErrorCodes {
		if errors.Is(err, c.err) {
			httputil.Unprocessable(w, c.code, err.Error())
			return
		}
	}
	httputil.InternalError(w, err)
}
