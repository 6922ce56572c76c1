// Package engine assembles the delivery services over one store and exposes
// the operations that the API, the worker loops and the CLI call: campaign
// launch and stats, the periodic triggers, and event application.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/metrics"
	"github.com/ignite/outreach-engine/internal/notify"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/ratelimit"
	"github.com/ignite/outreach-engine/internal/service/campaign"
	"github.com/ignite/outreach-engine/internal/service/dispatch"
	"github.com/ignite/outreach-engine/internal/service/reconcile"
	"github.com/ignite/outreach-engine/internal/service/reputation"
	"github.com/ignite/outreach-engine/internal/service/sending"
	"github.com/ignite/outreach-engine/internal/service/warmup"
)

// Store is everything the services need from persistence. Both the Postgres
// and in-memory repositories satisfy it.
type Store interface {
	campaign.Repository
	dispatch.Repository
	dispatch.MaintenanceRepository
	warmup.Repository
	reputation.Repository
	reconcile.Repository
}

// Config groups the per-service settings.
type Config struct {
	Dispatch   dispatch.Config   `yaml:"dispatch"`
	Warmup     warmup.Schedule   `yaml:"warmup_schedule"`
	Reputation reputation.Policy `yaml:"reputation"`
}

// DefaultConfig returns production defaults for every service.
func DefaultConfig() Config {
	return Config{
		Dispatch:   dispatch.DefaultConfig(),
		Warmup:     warmup.DefaultSchedule,
		Reputation: reputation.DefaultPolicy(),
	}
}

// Trigger names a periodic operation.
type Trigger string

const (
	TriggerDispatch   Trigger = "dispatch"
	TriggerWarmup     Trigger = "warmup"
	TriggerReputation Trigger = "reputation"
	TriggerQuotaReset Trigger = "quota-reset"
	TriggerStaleSweep Trigger = "stale-sweep"
)

// Triggers lists every trigger in the order a full pass runs them.
var Triggers = []Trigger{TriggerStaleSweep, TriggerWarmup, TriggerReputation, TriggerDispatch}

// ErrUnknownTrigger is returned by Run for names outside Triggers and
// TriggerQuotaReset.
var ErrUnknownTrigger = errors.New("unknown trigger")

// ParseTrigger validates a trigger name.
func ParseTrigger(name string) (Trigger, error) {
	t := Trigger(name)
	switch t {
	case TriggerDispatch, TriggerWarmup, TriggerReputation, TriggerQuotaReset, TriggerStaleSweep:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTrigger, name)
}

type options struct {
	now        func() time.Time
	sink       notify.Sink
	locker     distlock.Locker
	orgLimiter dispatch.OrgLimiter
	pacer      *ratelimit.Pacer
	backoff    func(attempt int) time.Duration
}

// Option configures an Engine.
type Option func(*options)

// WithClock overrides the time source for every service.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithNotifier sets the sink for operational notifications.
func WithNotifier(s notify.Sink) Option { return func(o *options) { o.sink = s } }

// WithLocker sets the per-message lock used by the reconciler. Processes
// sharing a store should share a distributed locker.
func WithLocker(l distlock.Locker) Option { return func(o *options) { o.locker = l } }

// WithOrgLimiter enables organization-wide send ceilings.
func WithOrgLimiter(l dispatch.OrgLimiter) Option { return func(o *options) { o.orgLimiter = l } }

// WithPacer shares a pacer across engines in one process.
func WithPacer(p *ratelimit.Pacer) Option { return func(o *options) { o.pacer = p } }

// WithRetryBackoff overrides the dispatcher's retry schedule.
func WithRetryBackoff(f func(attempt int) time.Duration) Option {
	return func(o *options) { o.backoff = f }
}

// Engine is the facade over the delivery services.
type Engine struct {
	campaigns  *campaign.Service
	dispatcher *dispatch.Dispatcher
	maint      *dispatch.Maintenance
	warmup     *warmup.Controller
	reputation *reputation.Service
	reconciler *reconcile.Reconciler
	log        *logger.Logger
}

// New builds an Engine. Zero-valued config sections fall back to defaults.
func New(store Store, transports sending.Resolver, cfg Config, opts ...Option) (*Engine, error) {
	o := options{
		now:    time.Now,
		sink:   notify.Discard{},
		locker: distlock.NewKeyedMutex(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.Reputation == (reputation.Policy{}) {
		cfg.Reputation = reputation.DefaultPolicy()
	}

	warm, err := warmup.NewController(store, cfg.Warmup, o.now)
	if err != nil {
		return nil, fmt.Errorf("warm-up: %w", err)
	}
	rep, err := reputation.NewService(store, cfg.Reputation, o.sink, o.now)
	if err != nil {
		return nil, err
	}

	dopts := []dispatch.Option{dispatch.WithClock(o.now), dispatch.WithNotifier(o.sink)}
	if o.orgLimiter != nil {
		dopts = append(dopts, dispatch.WithOrgLimiter(o.orgLimiter))
	}
	if o.pacer != nil {
		dopts = append(dopts, dispatch.WithPacer(o.pacer))
	}
	if o.backoff != nil {
		dopts = append(dopts, dispatch.WithBackoff(o.backoff))
	}

	return &Engine{
		campaigns:  campaign.NewService(store, campaign.WithClock(o.now)),
		dispatcher: dispatch.New(store, transports, cfg.Dispatch, dopts...),
		maint:      dispatch.NewMaintenance(store, cfg.Dispatch, o.now),
		warmup:     warm,
		reputation: rep,
		reconciler: reconcile.New(store, o.locker),
		log:        logger.With("component", "engine"),
	}, nil
}

// LaunchCampaign materializes a draft campaign's send jobs and marks it
// running. Launching a campaign that already left draft is a no-op.
func (e *Engine) LaunchCampaign(ctx context.Context, campaignID string) (*campaign.LaunchResult, error) {
	return e.campaigns.Launch(ctx, campaignID)
}

// GetCampaignStats returns job and recipient counts for a campaign.
func (e *Engine) GetCampaignStats(ctx context.Context, campaignID string) (*domain.CampaignStats, error) {
	return e.campaigns.Stats(ctx, campaignID)
}

// ApplyEvent reconciles one normalized provider event.
func (e *Engine) ApplyEvent(ctx context.Context, ev domain.DeliveryEvent) (reconcile.Outcome, error) {
	return e.reconciler.Apply(ctx, ev)
}

// RunDispatchCycle sends every due job the account gates allow.
func (e *Engine) RunDispatchCycle(ctx context.Context) (*dispatch.CycleResult, error) {
	defer e.observe(TriggerDispatch)()
	return e.dispatcher.RunCycle(ctx)
}

// RunWarmupEvaluation moves warming accounts to the tier their age allows.
func (e *Engine) RunWarmupEvaluation(ctx context.Context) (*warmup.Result, error) {
	defer e.observe(TriggerWarmup)()
	return e.warmup.Evaluate(ctx)
}

// RunReputationEvaluation rescores accounts and applies suspend/restore.
func (e *Engine) RunReputationEvaluation(ctx context.Context) (*reputation.Result, error) {
	defer e.observe(TriggerReputation)()
	return e.reputation.Evaluate(ctx)
}

// RunQuotaReset zeroes every account's daily usage.
func (e *Engine) RunQuotaReset(ctx context.Context) (int, error) {
	defer e.observe(TriggerQuotaReset)()
	return e.maint.ResetQuotas(ctx)
}

// RunStaleSweep re-arms abandoned sending jobs and expires old backlog.
func (e *Engine) RunStaleSweep(ctx context.Context) (*dispatch.SweepResult, error) {
	defer e.observe(TriggerStaleSweep)()
	return e.maint.Sweep(ctx)
}

// QuotaResetResult is what Run returns for TriggerQuotaReset.
type QuotaResetResult struct {
	Accounts int `json:"accounts_reset"`
}

// Run executes a trigger by name and returns its result for display.
func (e *Engine) Run(ctx context.Context, t Trigger) (any, error) {
	switch t {
	case TriggerDispatch:
		return e.RunDispatchCycle(ctx)
	case TriggerWarmup:
		return e.RunWarmupEvaluation(ctx)
	case TriggerReputation:
		return e.RunReputationEvaluation(ctx)
	case TriggerQuotaReset:
		n, err := e.RunQuotaReset(ctx)
		if err != nil {
			return nil, err
		}
		return &QuotaResetResult{Accounts: n}, nil
	case TriggerStaleSweep:
		return e.RunStaleSweep(ctx)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTrigger, t)
}

func (e *Engine) observe(t Trigger) func() {
	start := time.Now()
	return func() {
		d := time.Since(start)
		metrics.ObserveCycle(string(t), d)
		e.log.Debug("trigger finished", "trigger", string(t), "duration_ms", d.Milliseconds())
	}
}
