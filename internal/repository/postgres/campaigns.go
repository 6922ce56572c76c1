package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/outreach-engine/internal/domain"
)

// GetCampaign returns a campaign with its steps ordered by index.
func (s *Store) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	var (
		c         domain.Campaign
		static    []byte
		launched  sql.NullTime
		completed sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, account_id, status, static_values,
		       launched_at, completed_at, created_at, updated_at
		FROM campaigns
		WHERE id = $1
	`, id).Scan(
		&c.ID, &c.OrganizationID, &c.Name, &c.AccountID, &c.Status, &static,
		&launched, &completed, &c.CreatedAt, &c.UpdatedAt,
	)
	if notFound(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	if c.StaticValues, err = decodeMap(static); err != nil {
		return nil, fmt.Errorf("decode static values: %w", err)
	}
	c.LaunchedAt = timePtr(launched)
	c.CompletedAt = timePtr(completed)

	rows, err := s.db.QueryContext(ctx, `
		SELECT step_index, subject, body, delay_seconds
		FROM campaign_steps
		WHERE campaign_id = $1
		ORDER BY step_index
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			st    domain.Step
			delay int64
		)
		if err := rows.Scan(&st.Index, &st.Subject, &st.Body, &delay); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		st.Delay = time.Duration(delay) * time.Second
		c.Steps = append(c.Steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	return &c, nil
}

func scanRecipient(row rowScanner) (*domain.Recipient, error) {
	var (
		r      domain.Recipient
		fields []byte
	)
	if err := row.Scan(&r.ID, &r.CampaignID, &r.Email, &fields, &r.Status, &r.UpdatedAt); err != nil {
		return nil, err
	}
	m, err := decodeMap(fields)
	if err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	r.Fields = m
	return &r, nil
}

// ListRecipients returns the campaign's recipients in enrollment order.
func (s *Store) ListRecipients(ctx context.Context, campaignID string) ([]domain.Recipient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, campaign_id, email, fields, status, updated_at
		FROM campaign_recipients
		WHERE campaign_id = $1
		ORDER BY enrolled_at, id
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		r, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// GetRecipient returns one recipient.
func (s *Store) GetRecipient(ctx context.Context, campaignID, recipientID string) (*domain.Recipient, error) {
	r, err := scanRecipient(s.db.QueryRowContext(ctx, `
		SELECT id, campaign_id, email, fields, status, updated_at
		FROM campaign_recipients
		WHERE campaign_id = $1 AND id = $2
	`, campaignID, recipientID))
	if notFound(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recipient: %w", err)
	}
	return r, nil
}

// AdvanceRecipientStatus changes the recipient's status if it is in from.
func (s *Store) AdvanceRecipientStatus(ctx context.Context, campaignID, recipientID string, to domain.RecipientStatus, from []domain.RecipientStatus) (bool, error) {
	allowed := make([]string, len(from))
	for i, f := range from {
		allowed[i] = string(f)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE campaign_recipients
		SET status = $3, updated_at = NOW()
		WHERE campaign_id = $1 AND id = $2 AND status = ANY($4)
	`, campaignID, recipientID, to, pq.Array(allowed))
	if err != nil {
		return false, fmt.Errorf("advance recipient: %w", err)
	}
	return affected(res, "advance recipient")
}

// MaterializeCampaign flips a draft campaign to running and inserts its
// jobs in one transaction. Jobs that already exist for the same
// (campaign, step, recipient) are left alone.
func (s *Store) MaterializeCampaign(ctx context.Context, campaignID string, launchedAt time.Time, jobs []domain.SendJob) (int, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'running', launched_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'draft'
	`, campaignID, launchedAt)
	if err != nil {
		return 0, false, fmt.Errorf("launch campaign: %w", err)
	}
	launched, err := affected(res, "launch campaign")
	if err != nil {
		return 0, false, err
	}
	if !launched {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = $1)`, campaignID).Scan(&exists); err != nil {
			return 0, false, fmt.Errorf("check campaign: %w", err)
		}
		if !exists {
			return 0, false, domain.ErrNotFound
		}
		return 0, false, nil
	}

	created := 0
	if len(jobs) > 0 {
		ids := make([]string, len(jobs))
		steps := make([]int64, len(jobs))
		recipients := make([]string, len(jobs))
		accounts := make([]string, len(jobs))
		scheduled := make([]string, len(jobs))
		for i, j := range jobs {
			ids[i] = j.ID
			steps[i] = int64(j.StepIndex)
			recipients[i] = j.RecipientID
			accounts[i] = j.AccountID
			scheduled[i] = j.ScheduledAt.UTC().Format(time.RFC3339Nano)
		}
		res, err = tx.ExecContext(ctx, `
			INSERT INTO send_jobs
				(id, campaign_id, step_index, recipient_id, account_id, scheduled_at, status, created_at, updated_at)
			SELECT u.id, $1, u.step_index, u.recipient_id, u.account_id, u.scheduled_at, 'pending', $2, $2
			FROM unnest($3::text[], $4::int[], $5::text[], $6::text[], $7::timestamptz[])
				AS u(id, step_index, recipient_id, account_id, scheduled_at)
			ON CONFLICT (campaign_id, step_index, recipient_id) DO NOTHING
		`, campaignID, launchedAt, pq.Array(ids), pq.Array(steps), pq.Array(recipients),
			pq.Array(accounts), pq.Array(scheduled))
		if err != nil {
			return 0, false, fmt.Errorf("insert jobs: %w", err)
		}
		if created, err = count(res, "insert jobs"); err != nil {
			return 0, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit: %w", err)
	}
	return created, true, nil
}

// CampaignStats counts recipient and job statuses.
func (s *Store) CampaignStats(ctx context.Context, campaignID string) (*domain.CampaignStats, error) {
	st := &domain.CampaignStats{CampaignID: campaignID}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM campaign_recipients WHERE campaign_id = $1 GROUP BY status
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("recipient stats: %w", err)
	}
	if err := tally(rows, func(status string) { st.CountRecipient(domain.RecipientStatus(status)) }); err != nil {
		return nil, fmt.Errorf("recipient stats: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM send_jobs WHERE campaign_id = $1 GROUP BY status
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	if err := tally(rows, func(status string) { st.CountJob(domain.JobStatus(status)) }); err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return st, nil
}

// tally calls add n times for each (status, n) row.
func tally(rows *sql.Rows, add func(string)) error {
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			add(status)
		}
	}
	return rows.Err()
}

// CountOpenJobs counts the campaign's pending and sending jobs.
func (s *Store) CountOpenJobs(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM send_jobs
		WHERE campaign_id = $1 AND status IN ('pending', 'sending')
	`, campaignID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open jobs: %w", err)
	}
	return n, nil
}

// CompleteCampaign moves a running campaign to completed.
func (s *Store) CompleteCampaign(ctx context.Context, campaignID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE campaigns SET status = 'completed', completed_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'running'
	`, campaignID, at)
	if err != nil {
		return false, fmt.Errorf("complete campaign: %w", err)
	}
	return affected(res, "complete campaign")
}
