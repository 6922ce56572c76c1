package domain

import "time"

// JobStatus enumerates the lifecycle of a single scheduled send.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobSending JobStatus = "sending"
	JobSent    JobStatus = "sent"
	JobFailed  JobStatus = "failed"
	JobSkipped JobStatus = "skipped"
)

// IsTerminal reports whether no further transition is possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobSent || s == JobFailed || s == JobSkipped
}

var jobTransitions = map[JobStatus][]JobStatus{
	JobPending: {JobSending, JobSkipped},
	// sending -> pending re-arms a job for a retry or after a stale claim.
	JobSending: {JobSent, JobFailed, JobPending},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to JobStatus) bool {
	for _, s := range jobTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SendJob is one scheduled message: a (campaign, step, recipient) triple.
type SendJob struct {
	ID          string     `json:"id" db:"id"`
	CampaignID  string     `json:"campaign_id" db:"campaign_id"`
	StepIndex   int        `json:"step_index" db:"step_index"`
	RecipientID string     `json:"recipient_id" db:"recipient_id"`
	AccountID   string     `json:"account_id" db:"account_id"`
	ScheduledAt time.Time  `json:"scheduled_at" db:"scheduled_at"`
	Status      JobStatus  `json:"status" db:"status"`
	Attempts    int        `json:"attempts" db:"attempts"`
	LastError   string     `json:"last_error,omitempty" db:"last_error"`
	MessageID   string     `json:"message_id,omitempty" db:"message_id"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty" db:"claimed_at"`
	SentAt      *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}
