// Package reconcile applies normalized delivery events to recipients, jobs
// and sending accounts.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/metrics"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// Outcome is what Apply did with an event.
type Outcome string

const (
	Applied   Outcome = "applied"
	Duplicate Outcome = "duplicate"
	Dropped   Outcome = "dropped"
)

// ErrInvalidEvent is returned for events missing a message id or carrying an
// unknown type.
var ErrInvalidEvent = errors.New("invalid delivery event")

// Reconciler applies events. Events for the same message are serialized;
// events for different messages proceed in parallel.
type Reconciler struct {
	repo   Repository
	locker distlock.Locker
	log    *logger.Logger
}

// New creates a reconciler. A nil locker serializes within this process only.
func New(repo Repository, locker distlock.Locker) *Reconciler {
	if locker == nil {
		locker = distlock.NewKeyedMutex()
	}
	return &Reconciler{
		repo:   repo,
		locker: locker,
		log:    logger.With("component", "reconcile"),
	}
}

// Apply reconciles one event. Unknown message ids are dropped without error
// because providers report on mail this engine never sent.
func (r *Reconciler) Apply(ctx context.Context, ev domain.DeliveryEvent) (Outcome, error) {
	if ev.MessageID == "" || !ev.Type.Valid() {
		metrics.IncEvent(string(ev.Type), "invalid")
		return Dropped, fmt.Errorf("%w: message %q type %q", ErrInvalidEvent, ev.MessageID, ev.Type)
	}

	unlock, err := r.locker.Lock(ctx, ev.MessageID)
	if err != nil {
		return "", fmt.Errorf("lock message %s: %w", ev.MessageID, err)
	}
	defer unlock()

	outcome, err := r.apply(ctx, ev)
	if err != nil {
		metrics.IncEvent(string(ev.Type), "error")
		return "", err
	}
	metrics.IncEvent(string(ev.Type), string(outcome))
	return outcome, nil
}

func (r *Reconciler) apply(ctx context.Context, ev domain.DeliveryEvent) (Outcome, error) {
	job, err := r.repo.FindJobByMessageID(ctx, ev.MessageID)
	if errors.Is(err, domain.ErrNotFound) {
		r.log.Warn("event for unknown message dropped",
			"message_id", ev.MessageID, "type", string(ev.Type), "provider", ev.Provider)
		return Dropped, nil
	}
	if err != nil {
		return "", fmt.Errorf("find job: %w", err)
	}

	seen, err := r.repo.HasEvent(ctx, ev.MessageID, ev.Type)
	if err != nil {
		return "", fmt.Errorf("check event ledger: %w", err)
	}
	if seen {
		return Duplicate, nil
	}

	rl := rules[ev.Type]
	changed, err := r.repo.AdvanceRecipientStatus(ctx, job.CampaignID, job.RecipientID, rl.to, rl.from)
	if err != nil {
		return "", fmt.Errorf("advance recipient: %w", err)
	}

	if rl.signal != "" {
		sig := domain.AccountSignal{
			AccountID:  job.AccountID,
			Kind:       rl.signal,
			MessageID:  ev.MessageID,
			OccurredAt: ev.OccurredAt,
		}
		if err := r.repo.RecordAccountSignal(ctx, sig); err != nil {
			return "", fmt.Errorf("record account signal: %w", err)
		}
	}

	cancelled := 0
	if rl.cancel {
		cancelled, err = r.repo.SkipPendingJobs(ctx, job.CampaignID, job.RecipientID, string(ev.Type))
		if err != nil {
			return "", fmt.Errorf("cancel pending jobs: %w", err)
		}
	}

	// The ledger entry goes last: a crash before this point leaves the event
	// unrecorded and a provider redelivery replays the idempotent steps above.
	inserted, err := r.repo.RecordEvent(ctx, ev, job.ID)
	if err != nil {
		return "", fmt.Errorf("record event: %w", err)
	}
	if !inserted {
		return Duplicate, nil
	}

	r.log.Info("event applied",
		"message_id", ev.MessageID, "type", string(ev.Type), "campaign_id", job.CampaignID,
		"recipient_changed", changed, "jobs_cancelled", cancelled)
	return Applied, nil
}
