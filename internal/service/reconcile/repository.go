package reconcile

import (
	"context"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Repository is the data access the reconciler needs. Every mutation is
// idempotent so an interrupted apply can be replayed safely.
type Repository interface {
	// FindJobByMessageID resolves a provider message id to its job.
	FindJobByMessageID(ctx context.Context, messageID string) (*domain.SendJob, error)

	// GetRecipient returns a campaign recipient.
	GetRecipient(ctx context.Context, campaignID, recipientID string) (*domain.Recipient, error)

	// HasEvent reports whether (messageID, type) was already applied.
	HasEvent(ctx context.Context, messageID string, t domain.EventType) (bool, error)

	// RecordEvent stores the event in the idempotency ledger. Returns false
	// if it was already there.
	RecordEvent(ctx context.Context, ev domain.DeliveryEvent, jobID string) (bool, error)

	// AdvanceRecipientStatus sets the recipient's status to `to` only if the
	// current status is one of `from`. Returns whether it changed.
	AdvanceRecipientStatus(ctx context.Context, campaignID, recipientID string, to domain.RecipientStatus, from []domain.RecipientStatus) (bool, error)

	// SkipPendingJobs moves the recipient's pending jobs in the campaign to
	// skipped and returns how many moved.
	SkipPendingJobs(ctx context.Context, campaignID, recipientID, reason string) (int, error)

	// RecordAccountSignal counts an account outcome once per message.
	RecordAccountSignal(ctx context.Context, sig domain.AccountSignal) error
}
