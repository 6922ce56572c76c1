package campaign

import (
	"context"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Repository defines the data access contract for launching and reporting
// on campaigns. Implementations must be safe for concurrent use and return
// domain.ErrNotFound for missing rows.
type Repository interface {
	// GetCampaign returns a campaign with its steps.
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)

	// ListRecipients returns every recipient enrolled in the campaign.
	ListRecipients(ctx context.Context, campaignID string) ([]domain.Recipient, error)

	// GetAccount returns a sending account.
	GetAccount(ctx context.Context, id string) (*domain.SendingAccount, error)

	// MaterializeCampaign atomically inserts jobs, ignoring any that already
	// exist for the same (campaign, step, recipient), and moves the campaign
	// from draft to running. launched is false when the campaign was no
	// longer a draft, in which case no jobs are inserted.
	MaterializeCampaign(ctx context.Context, campaignID string, launchedAt time.Time, jobs []domain.SendJob) (created int, launched bool, err error)

	// CampaignStats counts job and recipient statuses for the campaign.
	CampaignStats(ctx context.Context, campaignID string) (*domain.CampaignStats, error)
}
