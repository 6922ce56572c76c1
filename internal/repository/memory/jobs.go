package memory

import (
	"context"
	"sort"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// ListDueJobs returns pending jobs scheduled at or before now, oldest first.
// Jobs that could only be deferred are left out: those of suspended
// accounts, of accounts with no quota left for the day, and of paused
// campaigns.
func (s *Store) ListDueJobs(_ context.Context, now time.Time, limit int) ([]domain.SendJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := dayKey(now)
	var due []domain.SendJob
	for _, j := range s.jobs {
		if j.Status == domain.JobPending && !j.ScheduledAt.After(now) && !s.held(j, day) {
			due = append(due, *j)
		}
	}
	sort.Slice(due, func(i, k int) bool {
		if !due[i].ScheduledAt.Equal(due[k].ScheduledAt) {
			return due[i].ScheduledAt.Before(due[k].ScheduledAt)
		}
		if !due[i].CreatedAt.Equal(due[k].CreatedAt) {
			return due[i].CreatedAt.Before(due[k].CreatedAt)
		}
		return due[i].ID < due[k].ID
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *Store) held(j *domain.SendJob, day string) bool {
	if c, ok := s.campaigns[j.CampaignID]; ok && c.Status == domain.CampaignPaused {
		return true
	}
	a, ok := s.accounts[j.AccountID]
	if !ok {
		// Missing accounts are listed so dispatch can fail their jobs.
		return false
	}
	switch a.Status {
	case domain.AccountSuspended:
		return true
	case domain.AccountWarming, domain.AccountActive:
		return a.DailyQuota <= 0 || (s.quotaDay[a.ID] == day && a.QuotaUsedToday >= a.DailyQuota)
	}
	return false
}

// transition applies a compare-and-set status change.
func (s *Store) transition(jobID string, from, to domain.JobStatus) (*domain.SendJob, bool, error) {
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, false, domain.ErrNotFound
	}
	if j.Status != from || !domain.CanTransition(from, to) {
		return j, false, nil
	}
	j.Status = to
	return j, true, nil
}

// ClaimJob moves a pending job to sending.
func (s *Store) ClaimJob(_ context.Context, jobID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok, err := s.transition(jobID, domain.JobPending, domain.JobSending)
	if err != nil || !ok {
		return false, err
	}
	t := at
	j.ClaimedAt = &t
	j.UpdatedAt = at
	return true, nil
}

// MarkJobSent moves a sending job to sent.
func (s *Store) MarkJobSent(_ context.Context, jobID, messageID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok, err := s.transition(jobID, domain.JobSending, domain.JobSent)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	t := at
	j.MessageID = messageID
	j.SentAt = &t
	j.Attempts++
	j.LastError = ""
	j.UpdatedAt = at
	if messageID != "" {
		s.byMessage[messageID] = j.ID
	}
	return nil
}

// RetryJob re-arms a sending job for a later attempt.
func (s *Store) RetryJob(_ context.Context, jobID string, nextAt time.Time, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok, err := s.transition(jobID, domain.JobSending, domain.JobPending)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	j.Attempts++
	j.LastError = lastErr
	j.ScheduledAt = nextAt
	j.ClaimedAt = nil
	return nil
}

// FailJob moves a sending job to failed.
func (s *Store) FailJob(_ context.Context, jobID, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok, err := s.transition(jobID, domain.JobSending, domain.JobFailed)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	j.Attempts++
	j.LastError = lastErr
	return nil
}

// SkipJob moves a pending job to skipped.
func (s *Store) SkipJob(_ context.Context, jobID, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok, err := s.transition(jobID, domain.JobPending, domain.JobSkipped)
	if err != nil || !ok {
		return false, err
	}
	j.LastError = reason
	return true, nil
}

// SkipPendingJobs skips every pending job of one recipient in a campaign.
func (s *Store) SkipPendingJobs(_ context.Context, campaignID, recipientID, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.CampaignID == campaignID && j.RecipientID == recipientID && j.Status == domain.JobPending {
			j.Status = domain.JobSkipped
			j.LastError = reason
			n++
		}
	}
	return n, nil
}

// CountOpenJobs counts pending and sending jobs.
func (s *Store) CountOpenJobs(_ context.Context, campaignID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.CampaignID == campaignID && (j.Status == domain.JobPending || j.Status == domain.JobSending) {
			n++
		}
	}
	return n, nil
}

// FindJobByMessageID resolves a provider message id.
func (s *Store) FindJobByMessageID(_ context.Context, messageID string) (*domain.SendJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byMessage[messageID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s.jobs[id]
	return &cp, nil
}

// AdvanceRecipientStatus changes the recipient's status if it is in from.
func (s *Store) AdvanceRecipientStatus(_ context.Context, campaignID, recipientID string, to domain.RecipientStatus, from []domain.RecipientStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recipients[campaignID][recipientID]
	if !ok {
		return false, domain.ErrNotFound
	}
	for _, f := range from {
		if r.Status == f {
			r.Status = to
			return true, nil
		}
	}
	return false, nil
}

// HasEvent reports whether the event is already in the ledger.
func (s *Store) HasEvent(_ context.Context, messageID string, t domain.EventType) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.events[domain.DeliveryEvent{MessageID: messageID, Type: t}.Key()]
	return ok, nil
}

// RecordEvent adds the event to the ledger unless already present.
func (s *Store) RecordEvent(_ context.Context, ev domain.DeliveryEvent, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[ev.Key()]; ok {
		return false, nil
	}
	s.events[ev.Key()] = eventRow{event: ev, jobID: jobID}
	return true, nil
}

// ReclaimStaleJobs re-arms sending jobs claimed before the cutoff.
func (s *Store) ReclaimStaleJobs(_ context.Context, claimedBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.Status == domain.JobSending && j.ClaimedAt != nil && j.ClaimedAt.Before(claimedBefore) {
			j.Status = domain.JobPending
			j.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

// ExpireJobs skips pending jobs scheduled before the cutoff.
func (s *Store) ExpireJobs(_ context.Context, scheduledBefore time.Time, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.Status == domain.JobPending && j.ScheduledAt.Before(scheduledBefore) {
			j.Status = domain.JobSkipped
			j.LastError = reason
			n++
		}
	}
	return n, nil
}
