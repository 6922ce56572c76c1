package campaign

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// Service implements campaign launch and stats. All public methods are safe
// for concurrent use if the underlying repository is.
type Service struct {
	repo Repository
	now  func() time.Time
	log  *logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a campaign service backed by the given repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo: repo,
		now:  time.Now,
		log:  logger.With("component", "campaign"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LaunchResult describes the outcome of a launch.
type LaunchResult struct {
	CampaignID     string    `json:"campaign_id"`
	JobsCreated    int       `json:"jobs_created"`
	Recipients     int       `json:"eligible_recipients"`
	Steps          int       `json:"steps"`
	AlreadyRunning bool      `json:"already_running"`
	LaunchedAt     time.Time `json:"launched_at"`
}

// Launch validates a draft campaign and materializes its schedule. Launching
// a campaign that is already running is a no-op that reports AlreadyRunning.
func (s *Service) Launch(ctx context.Context, campaignID string) (*LaunchResult, error) {
	c, err := s.getCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	switch c.Status {
	case domain.CampaignRunning:
		return &LaunchResult{CampaignID: c.ID, AlreadyRunning: true, Steps: len(c.Steps)}, nil
	case domain.CampaignDraft:
	default:
		return nil, fmt.Errorf("%w: cannot launch %s campaign", ErrInvalidTransition, c.Status)
	}

	steps, err := orderedSteps(c.Steps)
	if err != nil {
		return nil, err
	}

	account, err := s.repo.GetAccount(ctx, c.AccountID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: account %s not found", ErrAccountUnusable, c.AccountID)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if reason := account.Unusable(); reason != "" {
		return nil, fmt.Errorf("%w: %s", ErrAccountUnusable, reason)
	}

	recipients, err := s.repo.ListRecipients(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	eligible := eligibleRecipients(recipients)
	if len(eligible) == 0 {
		return nil, ErrNoEligibleRecipients
	}

	launchedAt := s.now().UTC()
	jobs := Materialize(c, steps, eligible, launchedAt)

	created, launched, err := s.repo.MaterializeCampaign(ctx, c.ID, launchedAt, jobs)
	if err != nil {
		return nil, fmt.Errorf("materialize campaign: %w", err)
	}
	if !launched {
		// Lost a race with a concurrent launch.
		return &LaunchResult{CampaignID: c.ID, AlreadyRunning: true, Steps: len(steps)}, nil
	}

	s.log.Info("campaign launched",
		"campaign_id", c.ID, "steps", len(steps), "recipients", len(eligible), "jobs", created)

	return &LaunchResult{
		CampaignID:  c.ID,
		JobsCreated: created,
		Recipients:  len(eligible),
		Steps:       len(steps),
		LaunchedAt:  launchedAt,
	}, nil
}

// Stats returns job and recipient counts for a campaign.
func (s *Service) Stats(ctx context.Context, campaignID string) (*domain.CampaignStats, error) {
	if _, err := s.getCampaign(ctx, campaignID); err != nil {
		return nil, err
	}
	stats, err := s.repo.CampaignStats(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign stats: %w", err)
	}
	stats.CampaignID = campaignID
	return stats, nil
}

func (s *Service) getCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := s.repo.GetCampaign(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// Materialize builds one pending job per (step, recipient). Step i is
// scheduled at launchedAt plus the sum of the delays of steps 0..i.
func Materialize(c *domain.Campaign, steps []domain.Step, recipients []domain.Recipient, launchedAt time.Time) []domain.SendJob {
	jobs := make([]domain.SendJob, 0, len(steps)*len(recipients))
	offset := time.Duration(0)
	for _, step := range steps {
		offset += step.Delay
		at := launchedAt.Add(offset)
		for _, r := range recipients {
			jobs = append(jobs, domain.SendJob{
				ID:          uuid.New().String(),
				CampaignID:  c.ID,
				StepIndex:   step.Index,
				RecipientID: r.ID,
				AccountID:   c.AccountID,
				ScheduledAt: at,
				Status:      domain.JobPending,
				CreatedAt:   launchedAt,
				UpdatedAt:   launchedAt,
			})
		}
	}
	return jobs
}

// orderedSteps sorts steps by index and checks that scheduled times will be
// strictly increasing across steps.
func orderedSteps(steps []domain.Step) ([]domain.Step, error) {
	if len(steps) == 0 {
		return nil, ErrNoSteps
	}
	sorted := make([]domain.Step, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	if sorted[0].Delay < 0 {
		return nil, fmt.Errorf("%w: step %d delay %s", ErrInvalidStepDelay, sorted[0].Index, sorted[0].Delay)
	}
	for _, st := range sorted[1:] {
		if st.Delay <= 0 {
			return nil, fmt.Errorf("%w: step %d delay %s", ErrInvalidStepDelay, st.Index, st.Delay)
		}
	}
	return sorted, nil
}

func eligibleRecipients(all []domain.Recipient) []domain.Recipient {
	out := make([]domain.Recipient, 0, len(all))
	for _, r := range all {
		if r.Status.IsTerminalNegative() {
			continue
		}
		if _, err := mail.ParseAddress(r.Email); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out
}
