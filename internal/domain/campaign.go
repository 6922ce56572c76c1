package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

// Campaign is an outreach sequence sent from one sending account to an
// enrolled contact list.
type Campaign struct {
	ID             string            `json:"id" db:"id"`
	OrganizationID string            `json:"organization_id" db:"organization_id"`
	Name           string            `json:"name" db:"name"`
	AccountID      string            `json:"account_id" db:"account_id"`
	Status         CampaignStatus    `json:"status" db:"status"`
	StaticValues   map[string]string `json:"static_values,omitempty" db:"static_values"`
	Steps          []Step            `json:"steps"`
	LaunchedAt     *time.Time        `json:"launched_at" db:"launched_at"`
	CompletedAt    *time.Time        `json:"completed_at" db:"completed_at"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at" db:"updated_at"`
}

// Step is one message in a campaign sequence. Delay is measured from the
// previous step (or from launch for the first step).
type Step struct {
	Index   int           `json:"index" db:"step_index"`
	Subject string        `json:"subject" db:"subject"`
	Body    string        `json:"body" db:"body"`
	Delay   time.Duration `json:"delay" db:"delay_seconds"`
}

// StepByIndex returns the step with the given index.
func (c *Campaign) StepByIndex(i int) (Step, bool) {
	for _, s := range c.Steps {
		if s.Index == i {
			return s, true
		}
	}
	return Step{}, false
}

// RecipientStatus tracks a recipient's progress through a campaign.
type RecipientStatus string

const (
	RecipientPending      RecipientStatus = "pending"
	RecipientSent         RecipientStatus = "sent"
	RecipientDelivered    RecipientStatus = "delivered"
	RecipientOpened       RecipientStatus = "opened"
	RecipientClicked      RecipientStatus = "clicked"
	RecipientBounced      RecipientStatus = "bounced"
	RecipientComplained   RecipientStatus = "complained"
	RecipientUnsubscribed RecipientStatus = "unsubscribed"
)

// IsTerminalNegative reports whether the status suppresses all future sends
// to the recipient in this campaign.
func (s RecipientStatus) IsTerminalNegative() bool {
	return s == RecipientBounced || s == RecipientComplained || s == RecipientUnsubscribed
}

// Recipient is a contact enrolled in a campaign.
type Recipient struct {
	ID         string            `json:"id" db:"id"`
	CampaignID string            `json:"campaign_id" db:"campaign_id"`
	Email      string            `json:"email" db:"email"`
	Fields     map[string]string `json:"fields" db:"fields"`
	Status     RecipientStatus   `json:"status" db:"status"`
	UpdatedAt  time.Time         `json:"updated_at" db:"updated_at"`
}

// CampaignStats summarizes campaign progress. Sent counts messages; the
// engagement counts are recipients at or beyond that stage.
type CampaignStats struct {
	CampaignID   string `json:"campaign_id"`
	Recipients   int    `json:"recipients"`
	Sent         int    `json:"sent"`
	Delivered    int    `json:"delivered"`
	Opened       int    `json:"opened"`
	Clicked      int    `json:"clicked"`
	Bounced      int    `json:"bounced"`
	Complained   int    `json:"complained"`
	Unsubscribed int    `json:"unsubscribed"`
	Pending      int    `json:"pending_jobs"`
	Skipped      int    `json:"skipped_jobs"`
	Failed       int    `json:"failed_jobs"`
}

// CountRecipient folds one recipient status into the stats.
func (s *CampaignStats) CountRecipient(status RecipientStatus) {
	s.Recipients++
	switch status {
	case RecipientClicked:
		s.Clicked++
		s.Opened++
		s.Delivered++
	case RecipientOpened:
		s.Opened++
		s.Delivered++
	case RecipientDelivered:
		s.Delivered++
	case RecipientBounced:
		s.Bounced++
	case RecipientComplained:
		s.Complained++
	case RecipientUnsubscribed:
		s.Unsubscribed++
	}
}

// CountJob folds one job status into the stats.
func (s *CampaignStats) CountJob(status JobStatus) {
	switch status {
	case JobSent:
		s.Sent++
	case JobPending, JobSending:
		s.Pending++
	case JobSkipped:
		s.Skipped++
	case JobFailed:
		s.Failed++
	}
}
