// Package memory is an in-process implementation of every engine
// repository. It backs tests and the sandbox server; all state is lost on
// restart.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

type eventRow struct {
	event domain.DeliveryEvent
	jobID string
}

// Store holds all engine state behind one mutex, which makes every method
// atomic with respect to the others.
type Store struct {
	mu sync.Mutex

	accounts   map[string]*domain.SendingAccount
	quotaDay   map[string]string
	campaigns  map[string]*domain.Campaign
	recipients map[string]map[string]*domain.Recipient
	recOrder   map[string][]string
	jobs       map[string]*domain.SendJob
	jobKeys    map[string]string
	byMessage  map[string]string
	events     map[string]eventRow
	signals    map[string]domain.AccountSignal
}

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts:   make(map[string]*domain.SendingAccount),
		quotaDay:   make(map[string]string),
		campaigns:  make(map[string]*domain.Campaign),
		recipients: make(map[string]map[string]*domain.Recipient),
		recOrder:   make(map[string][]string),
		jobs:       make(map[string]*domain.SendJob),
		jobKeys:    make(map[string]string),
		byMessage:  make(map[string]string),
		events:     make(map[string]eventRow),
		signals:    make(map[string]domain.AccountSignal),
	}
}

func dayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

func jobKey(campaignID string, step int, recipientID string) string {
	return campaignID + "|" + strconv.Itoa(step) + "|" + recipientID
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyCampaign(c *domain.Campaign) *domain.Campaign {
	cp := *c
	cp.StaticValues = copyMap(c.StaticValues)
	cp.Steps = append([]domain.Step(nil), c.Steps...)
	return &cp
}

func copyRecipient(r *domain.Recipient) *domain.Recipient {
	cp := *r
	cp.Fields = copyMap(r.Fields)
	return &cp
}

// PutAccount inserts or replaces a sending account.
func (s *Store) PutAccount(a domain.SendingAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := a
	s.accounts[a.ID] = &cp
}

// PutCampaign inserts or replaces a campaign with its steps.
func (s *Store) PutCampaign(c domain.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = copyCampaign(&c)
}

// AddRecipients enrolls recipients in their campaigns.
func (s *Store) AddRecipients(rs ...domain.Recipient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range rs {
		r := rs[i]
		if r.Status == "" {
			r.Status = domain.RecipientPending
		}
		m, ok := s.recipients[r.CampaignID]
		if !ok {
			m = make(map[string]*domain.Recipient)
			s.recipients[r.CampaignID] = m
		}
		if _, exists := m[r.ID]; !exists {
			s.recOrder[r.CampaignID] = append(s.recOrder[r.CampaignID], r.ID)
		}
		m[r.ID] = copyRecipient(&r)
	}
}

// Jobs returns a snapshot of the campaign's jobs ordered by schedule, step
// and recipient.
func (s *Store) Jobs(campaignID string) []domain.SendJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SendJob
	for _, j := range s.jobs {
		if j.CampaignID == campaignID {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].ScheduledAt.Equal(out[k].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[k].ScheduledAt)
		}
		if out[i].StepIndex != out[k].StepIndex {
			return out[i].StepIndex < out[k].StepIndex
		}
		return out[i].RecipientID < out[k].RecipientID
	})
	return out
}

// Job returns a snapshot of one job.
func (s *Store) Job(id string) (domain.SendJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return domain.SendJob{}, false
	}
	return *j, true
}

// Account returns a snapshot of one account.
func (s *Store) Account(id string) (domain.SendingAccount, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.SendingAccount{}, false
	}
	return *a, true
}

// GetCampaign implements the repository contracts.
func (s *Store) GetCampaign(_ context.Context, id string) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyCampaign(c), nil
}

// ListRecipients returns the campaign's recipients in enrollment order.
func (s *Store) ListRecipients(_ context.Context, campaignID string) ([]domain.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Recipient, 0, len(s.recOrder[campaignID]))
	for _, id := range s.recOrder[campaignID] {
		out = append(out, *copyRecipient(s.recipients[campaignID][id]))
	}
	return out, nil
}

// GetRecipient returns one recipient.
func (s *Store) GetRecipient(_ context.Context, campaignID, recipientID string) (*domain.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recipients[campaignID][recipientID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyRecipient(r), nil
}

// GetAccount returns one account.
func (s *Store) GetAccount(_ context.Context, id string) (*domain.SendingAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// MaterializeCampaign inserts jobs and moves the campaign from draft to
// running in one step.
func (s *Store) MaterializeCampaign(_ context.Context, campaignID string, launchedAt time.Time, jobs []domain.SendJob) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return 0, false, domain.ErrNotFound
	}
	if c.Status != domain.CampaignDraft {
		return 0, false, nil
	}
	created := 0
	for i := range jobs {
		j := jobs[i]
		key := jobKey(j.CampaignID, j.StepIndex, j.RecipientID)
		if _, exists := s.jobKeys[key]; exists {
			continue
		}
		s.jobKeys[key] = j.ID
		s.jobs[j.ID] = &j
		created++
	}
	at := launchedAt
	c.Status = domain.CampaignRunning
	c.LaunchedAt = &at
	c.UpdatedAt = launchedAt
	return created, true, nil
}

// CampaignStats counts the campaign's jobs and recipients.
func (s *Store) CampaignStats(_ context.Context, campaignID string) (*domain.CampaignStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &domain.CampaignStats{CampaignID: campaignID}
	for _, r := range s.recipients[campaignID] {
		st.CountRecipient(r.Status)
	}
	for _, j := range s.jobs {
		if j.CampaignID == campaignID {
			st.CountJob(j.Status)
		}
	}
	return st, nil
}

// CompleteCampaign moves a running campaign to completed.
func (s *Store) CompleteCampaign(_ context.Context, campaignID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if c.Status != domain.CampaignRunning {
		return false, nil
	}
	t := at
	c.Status = domain.CampaignCompleted
	c.CompletedAt = &t
	c.UpdatedAt = at
	return true, nil
}
