package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

const jobColumns = `
	id, campaign_id, step_index, recipient_id, account_id, scheduled_at, status,
	attempts, last_error, COALESCE(message_id, ''), claimed_at, sent_at, created_at, updated_at`

// dueJobColumns is jobColumns qualified for queries that join send_jobs as j.
const dueJobColumns = `
	j.id, j.campaign_id, j.step_index, j.recipient_id, j.account_id, j.scheduled_at, j.status,
	j.attempts, j.last_error, COALESCE(j.message_id, ''), j.claimed_at, j.sent_at, j.created_at, j.updated_at`

func scanJob(row rowScanner) (*domain.SendJob, error) {
	var (
		j       domain.SendJob
		claimed sql.NullTime
		sent    sql.NullTime
	)
	err := row.Scan(
		&j.ID, &j.CampaignID, &j.StepIndex, &j.RecipientID, &j.AccountID, &j.ScheduledAt, &j.Status,
		&j.Attempts, &j.LastError, &j.MessageID, &claimed, &sent, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.ClaimedAt = timePtr(claimed)
	j.SentAt = timePtr(sent)
	return &j, nil
}

// ListDueJobs returns up to limit pending jobs scheduled at or before now.
// Jobs of suspended accounts, of accounts whose quota for the day is spent,
// and of paused campaigns are left out so they cannot fill the batch. Jobs
// of disabled or deleted accounts are still listed; dispatch fails them.
// Rows are not locked; ClaimJob decides which worker gets each job.
func (s *Store) ListDueJobs(ctx context.Context, now time.Time, limit int) ([]domain.SendJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+dueJobColumns+`
		FROM send_jobs j
		LEFT JOIN sending_accounts a ON a.id = j.account_id
		LEFT JOIN campaigns c ON c.id = j.campaign_id
		WHERE j.status = 'pending' AND j.scheduled_at <= $1
		  AND (c.status IS NULL OR c.status <> 'paused')
		  AND (a.id IS NULL OR a.status NOT IN ('suspended', 'warming', 'active') OR (
		        a.status IN ('warming', 'active') AND a.daily_quota > 0
		        AND (a.quota_day IS DISTINCT FROM $3::date OR a.quota_used_today < a.daily_quota)))
		ORDER BY j.scheduled_at, j.created_at, j.id
		LIMIT $2
	`, now, limit, dayKey(now))
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.SendJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// FindJobByMessageID resolves a provider message id to its job.
func (s *Store) FindJobByMessageID(ctx context.Context, messageID string) (*domain.SendJob, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM send_jobs WHERE message_id = $1`, messageID))
	if notFound(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job by message id: %w", err)
	}
	return j, nil
}

// ClaimJob moves a pending job to sending.
func (s *Store) ClaimJob(ctx context.Context, jobID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE send_jobs SET status = 'sending', claimed_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'pending'
	`, jobID, at)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	return affected(res, "claim job")
}

// fromSending runs a sending-state update and maps a missed match to
// domain.ErrNotFound.
func (s *Store) fromSending(ctx context.Context, what, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	ok, err := affected(res, what)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: job not sending: %w", what, domain.ErrNotFound)
	}
	return nil
}

// MarkJobSent moves a sending job to sent.
func (s *Store) MarkJobSent(ctx context.Context, jobID, messageID string, at time.Time) error {
	return s.fromSending(ctx, "mark job sent", `
		UPDATE send_jobs
		SET status = 'sent', message_id = NULLIF($2, ''), sent_at = $3, attempts = attempts + 1,
		    last_error = '', updated_at = $3
		WHERE id = $1 AND status = 'sending'
	`, jobID, messageID, at)
}

// RetryJob re-arms a sending job for nextAt.
func (s *Store) RetryJob(ctx context.Context, jobID string, nextAt time.Time, lastErr string) error {
	return s.fromSending(ctx, "retry job", `
		UPDATE send_jobs
		SET status = 'pending', scheduled_at = $2, last_error = $3, attempts = attempts + 1,
		    claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'sending'
	`, jobID, nextAt, lastErr)
}

// FailJob moves a sending job to failed.
func (s *Store) FailJob(ctx context.Context, jobID, lastErr string) error {
	return s.fromSending(ctx, "fail job", `
		UPDATE send_jobs
		SET status = 'failed', last_error = $2, attempts = attempts + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'sending'
	`, jobID, lastErr)
}

// SkipJob moves a pending job to skipped.
func (s *Store) SkipJob(ctx context.Context, jobID, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE send_jobs SET status = 'skipped', last_error = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, jobID, reason)
	if err != nil {
		return false, fmt.Errorf("skip job: %w", err)
	}
	return affected(res, "skip job")
}

// SkipPendingJobs skips every pending job of one recipient in a campaign.
func (s *Store) SkipPendingJobs(ctx context.Context, campaignID, recipientID, reason string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE send_jobs SET status = 'skipped', last_error = $3, updated_at = NOW()
		WHERE campaign_id = $1 AND recipient_id = $2 AND status = 'pending'
	`, campaignID, recipientID, reason)
	if err != nil {
		return 0, fmt.Errorf("skip pending jobs: %w", err)
	}
	return count(res, "skip pending jobs")
}

// ReclaimStaleJobs re-arms jobs stuck in sending since before the cutoff.
func (s *Store) ReclaimStaleJobs(ctx context.Context, claimedBefore time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE send_jobs SET status = 'pending', claimed_at = NULL, updated_at = NOW()
		WHERE status = 'sending' AND claimed_at < $1
	`, claimedBefore)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return count(res, "reclaim stale jobs")
}

// ExpireJobs skips pending jobs scheduled before the cutoff.
func (s *Store) ExpireJobs(ctx context.Context, scheduledBefore time.Time, reason string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE send_jobs SET status = 'skipped', last_error = $2, updated_at = NOW()
		WHERE status = 'pending' AND scheduled_at < $1
	`, scheduledBefore, reason)
	if err != nil {
		return 0, fmt.Errorf("expire jobs: %w", err)
	}
	return count(res, "expire jobs")
}
