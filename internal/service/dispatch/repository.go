package dispatch

import (
	"context"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Repository is the data access the dispatcher needs. Every status change is
// a compare-and-set on the current status.
type Repository interface {
	// ListDueJobs returns up to limit pending jobs scheduled at or before now,
	// oldest first. Jobs of suspended accounts, of accounts with no quota
	// left for now's day, and of paused campaigns are not returned.
	ListDueJobs(ctx context.Context, now time.Time, limit int) ([]domain.SendJob, error)

	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	GetRecipient(ctx context.Context, campaignID, recipientID string) (*domain.Recipient, error)
	GetAccount(ctx context.Context, id string) (*domain.SendingAccount, error)

	// TryConsumeQuota atomically takes one send from the account's quota for
	// day. It fails when the quota is spent or the account cannot send.
	TryConsumeQuota(ctx context.Context, accountID string, day time.Time) (bool, error)

	// RefundQuota gives back one send taken by TryConsumeQuota.
	RefundQuota(ctx context.Context, accountID string) error

	// ClaimJob moves a job from pending to sending. False means it was not
	// pending anymore.
	ClaimJob(ctx context.Context, jobID string, at time.Time) (bool, error)

	// MarkJobSent moves a sending job to sent and stores the message id.
	MarkJobSent(ctx context.Context, jobID, messageID string, at time.Time) error

	// RetryJob re-arms a sending job as pending at nextAt with one more attempt.
	RetryJob(ctx context.Context, jobID string, nextAt time.Time, lastErr string) error

	// FailJob moves a sending job to failed with one more attempt.
	FailJob(ctx context.Context, jobID, lastErr string) error

	// SkipJob moves a pending job to skipped.
	SkipJob(ctx context.Context, jobID, reason string) (bool, error)

	AdvanceRecipientStatus(ctx context.Context, campaignID, recipientID string, to domain.RecipientStatus, from []domain.RecipientStatus) (bool, error)
	RecordAccountSignal(ctx context.Context, sig domain.AccountSignal) error

	// FlagAccount records why an account needs operator attention.
	FlagAccount(ctx context.Context, accountID, reason string) error

	// CountOpenJobs counts the campaign's pending and sending jobs.
	CountOpenJobs(ctx context.Context, campaignID string) (int, error)

	// CompleteCampaign moves a running campaign to completed.
	CompleteCampaign(ctx context.Context, campaignID string, at time.Time) (bool, error)
}

// MaintenanceRepository is the data access the maintenance sweeps need.
type MaintenanceRepository interface {
	// ReclaimStaleJobs returns sending jobs claimed before the cutoff to pending.
	ReclaimStaleJobs(ctx context.Context, claimedBefore time.Time) (int, error)

	// ExpireJobs skips pending jobs scheduled before the cutoff.
	ExpireJobs(ctx context.Context, scheduledBefore time.Time, reason string) (int, error)

	// ResetDailyQuotas zeroes quota usage recorded for days before day.
	ResetDailyQuotas(ctx context.Context, day time.Time) (int, error)
}

// OrgLimiter enforces organization-wide ceilings. window names the exhausted
// window when denied.
type OrgLimiter interface {
	Allow(ctx context.Context, orgID string) (ok bool, window string, err error)
	Release(ctx context.Context, orgID string) error
}
