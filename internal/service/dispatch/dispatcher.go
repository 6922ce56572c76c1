// Package dispatch turns due send jobs into transport calls under quota,
// pacing, and reputation constraints, and keeps the job table healthy with
// periodic maintenance sweeps.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/interpolate"
	"github.com/ignite/outreach-engine/internal/metrics"
	"github.com/ignite/outreach-engine/internal/notify"
	"github.com/ignite/outreach-engine/internal/pkg/httpretry"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/ratelimit"
	"github.com/ignite/outreach-engine/internal/service/sending"
)

const reasonAccountUnavailable = "account unavailable"

// Dispatcher runs dispatch cycles. One Dispatcher may be shared by
// concurrent callers; the store keeps them from double-sending a job.
type Dispatcher struct {
	repo       Repository
	transports sending.Resolver
	renderer   *interpolate.Renderer
	orgLimiter OrgLimiter
	pacer      *ratelimit.Pacer
	sink       notify.Sink
	cfg        Config
	now        func() time.Time
	backoff    func(attempt int) time.Duration
	log        *logger.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithOrgLimiter enables organization-wide ceilings.
func WithOrgLimiter(l OrgLimiter) Option { return func(d *Dispatcher) { d.orgLimiter = l } }

// WithNotifier sets the notification sink.
func WithNotifier(s notify.Sink) Option { return func(d *Dispatcher) { d.sink = s } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(d *Dispatcher) { d.now = now } }

// WithBackoff overrides the retry delay schedule.
func WithBackoff(f func(attempt int) time.Duration) Option {
	return func(d *Dispatcher) { d.backoff = f }
}

// WithPacer shares a pacer between dispatchers in the same process.
func WithPacer(p *ratelimit.Pacer) Option { return func(d *Dispatcher) { d.pacer = p } }

// New creates a dispatcher.
func New(repo Repository, transports sending.Resolver, cfg Config, opts ...Option) *Dispatcher {
	cfg.applyDefaults()
	d := &Dispatcher{
		repo:       repo,
		transports: transports,
		renderer:   interpolate.New(),
		pacer:      ratelimit.NewPacer(),
		sink:       notify.Discard{},
		cfg:        cfg,
		now:        time.Now,
		log:        logger.With("component", "dispatch"),
	}
	d.backoff = func(attempt int) time.Duration {
		return httpretry.Backoff(attempt, d.cfg.RetryBaseDelay, d.cfg.RetryMaxDelay)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CycleResult summarizes one dispatch cycle.
type CycleResult struct {
	Due                int      `json:"due"`
	Sent               int      `json:"sent"`
	Retried            int      `json:"retried"`
	Failed             int      `json:"failed"`
	Skipped            int      `json:"skipped"`
	Deferred           int      `json:"deferred"`
	Errors             int      `json:"errors"`
	CompletedCampaigns []string `json:"completed_campaigns,omitempty"`
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeRetried
	outcomeFailed
	outcomeSkipped
	outcomeDeferred
	outcomeLost
	outcomeError
)

var outcomeNames = map[outcome]string{
	outcomeSent:     "sent",
	outcomeRetried:  "retried",
	outcomeFailed:   "failed",
	outcomeSkipped:  "skipped",
	outcomeDeferred: "deferred",
	outcomeLost:     "lost_claim",
	outcomeError:    "error",
}

type tally struct {
	mu      sync.Mutex
	res     CycleResult
	touched map[string]bool
}

func (t *tally) add(o outcome, campaignID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch o {
	case outcomeSent:
		t.res.Sent++
	case outcomeRetried:
		t.res.Retried++
	case outcomeFailed:
		t.res.Failed++
	case outcomeSkipped:
		t.res.Skipped++
	case outcomeDeferred:
		t.res.Deferred++
	case outcomeError:
		t.res.Errors++
	}
	if o != outcomeDeferred && o != outcomeLost {
		t.touched[campaignID] = true
	}
	metrics.IncJob(outcomeNames[o])
}

// RunCycle processes one batch of due jobs. Jobs are grouped by sending
// account: accounts run concurrently, and each account's jobs run one at a
// time in scheduled order. Only a failure to list due jobs is returned;
// everything job-local is logged and tallied.
func (d *Dispatcher) RunCycle(ctx context.Context) (*CycleResult, error) {
	start := d.now()
	jobs, err := d.repo.ListDueJobs(ctx, start, d.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}

	t := &tally{touched: make(map[string]bool)}
	t.res.Due = len(jobs)
	if len(jobs) == 0 {
		return &t.res, nil
	}

	var order []string
	byAccount := make(map[string][]domain.SendJob)
	for _, j := range jobs {
		if _, ok := byAccount[j.AccountID]; !ok {
			order = append(order, j.AccountID)
		}
		byAccount[j.AccountID] = append(byAccount[j.AccountID], j)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)
	for _, accountID := range order {
		accountID := accountID
		g.Go(func() error {
			d.runAccount(gctx, accountID, byAccount[accountID], t)
			return nil
		})
	}
	_ = g.Wait()

	d.completeCampaigns(ctx, t)

	d.log.Info("dispatch cycle finished",
		"due", t.res.Due, "sent", t.res.Sent, "retried", t.res.Retried, "failed", t.res.Failed,
		"skipped", t.res.Skipped, "deferred", t.res.Deferred, "errors", t.res.Errors,
		"accounts", len(order), "elapsed", d.now().Sub(start))
	return &t.res, ctx.Err()
}

func (d *Dispatcher) runAccount(ctx context.Context, accountID string, jobs []domain.SendJob, t *tally) {
	account, err := d.repo.GetAccount(ctx, accountID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		d.log.Error("load account failed", "account_id", accountID, "error", err)
		for _, j := range jobs {
			t.add(outcomeError, j.CampaignID)
		}
		return
	}
	if account == nil {
		// Deleted accounts behave like disabled ones.
		account = &domain.SendingAccount{ID: accountID, Status: domain.AccountDisabled}
	}

	campaigns := make(map[string]*domain.Campaign)
	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		o, stop := d.processJob(ctx, account, job, campaigns)
		t.add(o, job.CampaignID)
		if stop {
			// Remaining jobs stay pending for a later cycle.
			return
		}
	}
}

func (d *Dispatcher) campaign(ctx context.Context, id string, cache map[string]*domain.Campaign) (*domain.Campaign, error) {
	if c, ok := cache[id]; ok {
		return c, nil
	}
	c, err := d.repo.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	cache[id] = c
	return c, nil
}

// processJob handles one job and reports whether the account's remaining
// jobs should wait for a later cycle.
func (d *Dispatcher) processJob(ctx context.Context, account *domain.SendingAccount, job domain.SendJob, campaigns map[string]*domain.Campaign) (outcome, bool) {
	log := d.log.With("job_id", job.ID, "campaign_id", job.CampaignID, "account_id", account.ID)

	recipient, err := d.repo.GetRecipient(ctx, job.CampaignID, job.RecipientID)
	if errors.Is(err, domain.ErrNotFound) {
		return d.skip(ctx, log, job, "recipient missing"), false
	}
	if err != nil {
		log.Error("load recipient failed", "error", err)
		return outcomeError, false
	}
	if recipient.Status.IsTerminalNegative() {
		return d.skip(ctx, log, job, "recipient "+string(recipient.Status)), false
	}

	c, err := d.campaign(ctx, job.CampaignID, campaigns)
	if err != nil {
		log.Error("load campaign failed", "error", err)
		return outcomeError, false
	}
	if c.Status == domain.CampaignPaused {
		return outcomeDeferred, false
	}

	switch account.Status {
	case domain.AccountSuspended:
		// Suspension is temporary: keep the job for when the account recovers.
		return outcomeDeferred, false
	case domain.AccountWarming, domain.AccountActive:
	default:
		return d.failUnclaimed(ctx, log, job, reasonAccountUnavailable), false
	}

	now := d.now()
	ok, err := d.repo.TryConsumeQuota(ctx, account.ID, now)
	if err != nil {
		log.Error("quota check failed", "error", err)
		return outcomeError, true
	}
	if !ok {
		log.Debug("account quota exhausted")
		return outcomeDeferred, true
	}

	if d.orgLimiter != nil {
		allowed, window, err := d.orgLimiter.Allow(ctx, account.OrganizationID)
		if err != nil || !allowed {
			d.refundQuota(ctx, log, account.ID)
			if err != nil {
				log.Error("organization limit check failed", "error", err)
				return outcomeError, true
			}
			log.Debug("organization limit reached", "window", window)
			return outcomeDeferred, true
		}
	}

	// Pace only sends that passed every gate.
	if err := d.pacer.Wait(ctx, account.ID, d.cfg.intervalFor(account.Provider)); err != nil {
		released := context.WithoutCancel(ctx)
		d.refundQuota(released, log, account.ID)
		d.releaseOrg(released, log, account.OrganizationID)
		return outcomeDeferred, true
	}

	claimed, err := d.repo.ClaimJob(ctx, job.ID, d.now())
	if err != nil || !claimed {
		d.refundQuota(ctx, log, account.ID)
		d.releaseOrg(ctx, log, account.OrganizationID)
		if err != nil {
			log.Error("claim job failed", "error", err)
			return outcomeError, false
		}
		return outcomeLost, false
	}

	return d.send(ctx, log, account, c, recipient, job)
}

func (d *Dispatcher) send(ctx context.Context, log *logger.Logger, account *domain.SendingAccount, c *domain.Campaign, r *domain.Recipient, job domain.SendJob) (outcome, bool) {
	step, ok := c.StepByIndex(job.StepIndex)
	if !ok {
		return d.fail(ctx, log, job, fmt.Sprintf("step %d missing", job.StepIndex)), false
	}

	// Templates are resolved now, not at launch, so edits to a step apply
	// to jobs that have not gone out yet.
	subject, missingSubject := d.renderer.Render(step.Subject, r.Fields, c.StaticValues)
	body, missingBody := d.renderer.Render(step.Body, r.Fields, c.StaticValues)
	if len(missingSubject)+len(missingBody) > 0 {
		log.Warn("unresolved placeholders", "subject", missingSubject, "body", missingBody)
	}

	transport, err := d.transports.TransportFor(account)
	if err != nil {
		return d.fail(ctx, log, job, err.Error()), false
	}

	msg := &sending.Message{
		IdempotencyKey: job.ID,
		FromEmail:      account.FromEmail,
		FromName:       account.FromName,
		To:             r.Email,
		Subject:        subject,
		Body:           body,
		Headers: map[string]string{
			"X-Campaign-ID": c.ID,
			"X-Job-ID":      job.ID,
		},
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	messageID, sendErr := transport.Send(sendCtx, account, msg)
	cancel()

	if sendErr == nil {
		return d.markSent(ctx, log, account, r, job, messageID), false
	}

	attempts := job.Attempts + 1
	switch class := sending.Classify(sendErr); class {
	case sending.ClassAuthRequired:
		o := d.fail(ctx, log, job, sendErr.Error())
		reason := "credentials refused: " + sendErr.Error()
		if err := d.repo.FlagAccount(ctx, account.ID, reason); err != nil {
			log.Error("flag account failed", "error", err)
		}
		d.sink.Notify(ctx, notify.Notification{
			Kind:           notify.AccountAttention,
			OrganizationID: account.OrganizationID,
			AccountID:      account.ID,
			Reason:         reason,
			At:             d.now(),
		})
		return o, true
	case sending.ClassPermanent:
		return d.fail(ctx, log, job, sendErr.Error()), false
	default:
		if attempts >= d.cfg.MaxAttempts {
			return d.fail(ctx, log, job, fmt.Sprintf("gave up after %d attempts: %v", attempts, sendErr)), false
		}
		next := d.now().Add(d.backoff(attempts))
		if err := d.repo.RetryJob(ctx, job.ID, next, sendErr.Error()); err != nil {
			log.Error("re-arm job failed", "error", err)
			return outcomeError, false
		}
		log.Warn("send failed, will retry", "attempt", attempts, "next_at", next, "error", sendErr)
		return outcomeRetried, false
	}
}

func (d *Dispatcher) markSent(ctx context.Context, log *logger.Logger, account *domain.SendingAccount, r *domain.Recipient, job domain.SendJob, messageID string) outcome {
	now := d.now()
	if err := d.repo.MarkJobSent(ctx, job.ID, messageID, now); err != nil {
		// The message went out; the stale sweep will re-arm this job.
		log.Error("mark job sent failed", "message_id", messageID, "error", err)
		return outcomeError
	}
	if _, err := d.repo.AdvanceRecipientStatus(ctx, job.CampaignID, job.RecipientID,
		domain.RecipientSent, []domain.RecipientStatus{domain.RecipientPending}); err != nil {
		log.Error("advance recipient failed", "error", err)
	}
	if err := d.repo.RecordAccountSignal(ctx, domain.AccountSignal{
		AccountID: account.ID, Kind: domain.SignalSent, MessageID: messageID, OccurredAt: now,
	}); err != nil {
		log.Error("record sent signal failed", "error", err)
	}
	log.Debug("message sent", "message_id", messageID, "step", job.StepIndex, "to", r.Email)
	return outcomeSent
}

func (d *Dispatcher) skip(ctx context.Context, log *logger.Logger, job domain.SendJob, reason string) outcome {
	ok, err := d.repo.SkipJob(ctx, job.ID, reason)
	if err != nil {
		log.Error("skip job failed", "reason", reason, "error", err)
		return outcomeError
	}
	if !ok {
		return outcomeLost
	}
	return outcomeSkipped
}

func (d *Dispatcher) fail(ctx context.Context, log *logger.Logger, job domain.SendJob, reason string) outcome {
	if err := d.repo.FailJob(ctx, job.ID, reason); err != nil {
		log.Error("fail job failed", "reason", reason, "error", err)
		return outcomeError
	}
	log.Warn("job failed", "reason", reason)
	return outcomeFailed
}

// failUnclaimed claims a pending job and fails it without touching quota.
func (d *Dispatcher) failUnclaimed(ctx context.Context, log *logger.Logger, job domain.SendJob, reason string) outcome {
	claimed, err := d.repo.ClaimJob(ctx, job.ID, d.now())
	if err != nil {
		log.Error("claim job failed", "error", err)
		return outcomeError
	}
	if !claimed {
		return outcomeLost
	}
	return d.fail(ctx, log, job, reason)
}

func (d *Dispatcher) refundQuota(ctx context.Context, log *logger.Logger, accountID string) {
	if err := d.repo.RefundQuota(ctx, accountID); err != nil {
		log.Error("refund quota failed", "error", err)
	}
}

func (d *Dispatcher) releaseOrg(ctx context.Context, log *logger.Logger, orgID string) {
	if d.orgLimiter == nil {
		return
	}
	if err := d.orgLimiter.Release(ctx, orgID); err != nil {
		log.Error("release organization limit failed", "error", err)
	}
}

// completeCampaigns marks campaigns touched this cycle as completed once
// none of their jobs can still be sent.
func (d *Dispatcher) completeCampaigns(ctx context.Context, t *tally) {
	ids := make([]string, 0, len(t.touched))
	for id := range t.touched {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		open, err := d.repo.CountOpenJobs(ctx, id)
		if err != nil {
			d.log.Error("count open jobs failed", "campaign_id", id, "error", err)
			continue
		}
		if open > 0 {
			continue
		}
		done, err := d.repo.CompleteCampaign(ctx, id, d.now())
		if err != nil {
			d.log.Error("complete campaign failed", "campaign_id", id, "error", err)
			continue
		}
		if !done {
			continue
		}
		t.res.CompletedCampaigns = append(t.res.CompletedCampaigns, id)
		c, err := d.repo.GetCampaign(ctx, id)
		if err != nil {
			d.log.Error("load completed campaign failed", "campaign_id", id, "error", err)
		}
		n := notify.Notification{Kind: notify.CampaignExhausted, CampaignID: id, Reason: "no sendable jobs left", At: d.now()}
		if c != nil {
			n.OrganizationID = c.OrganizationID
		}
		d.sink.Notify(ctx, n)
		d.log.Info("campaign completed", "campaign_id", id)
	}
}
