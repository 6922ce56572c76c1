package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

const accountColumns = `
	id, organization_id, from_email, from_name, provider, status, is_pool,
	warmup_started_at, warmup_tier, daily_quota, quota_used_today,
	reputation_score, attention_reason, sent_24h, delivered_24h, bounced_24h,
	complained_24h, smtp_host, smtp_port, smtp_username, smtp_password,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.SendingAccount, error) {
	var (
		a       domain.SendingAccount
		started sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.OrganizationID, &a.FromEmail, &a.FromName, &a.Provider, &a.Status, &a.IsPool,
		&started, &a.WarmupTier, &a.DailyQuota, &a.QuotaUsedToday,
		&a.ReputationScore, &a.AttentionReason, &a.Sent24h, &a.Delivered24h, &a.Bounced24h,
		&a.Complained24h, &a.SMTPHost, &a.SMTPPort, &a.SMTPUsername, &a.SMTPPassword,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.WarmupStartedAt = timePtr(started)
	return &a, nil
}

// GetAccount returns one sending account.
func (s *Store) GetAccount(ctx context.Context, id string) (*domain.SendingAccount, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM sending_accounts WHERE id = $1`, id))
	if notFound(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *Store) listAccounts(ctx context.Context, where string, args ...any) ([]domain.SendingAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM sending_accounts WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.SendingAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ListWarmupAccounts returns accounts still climbing the warm-up schedule.
func (s *Store) ListWarmupAccounts(ctx context.Context) ([]domain.SendingAccount, error) {
	return s.listAccounts(ctx,
		`warmup_started_at IS NOT NULL AND warmup_tier < $1 AND status <> 'disabled'`, domain.MaxWarmupTier)
}

// ListScoredAccounts returns every account that is not disabled.
func (s *Store) ListScoredAccounts(ctx context.Context) ([]domain.SendingAccount, error) {
	return s.listAccounts(ctx, `status <> 'disabled'`)
}

// AdvanceWarmupTier moves the account forward if its tier is still fromTier.
func (s *Store) AdvanceWarmupTier(ctx context.Context, accountID string, fromTier, toTier, dailyQuota int, promote bool) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sending_accounts
		SET warmup_tier = $3,
		    daily_quota = $4,
		    status = CASE WHEN $5 AND status = 'warming' THEN 'active' ELSE status END,
		    updated_at = NOW()
		WHERE id = $1 AND warmup_tier = $2 AND $3 > $2
	`, accountID, fromTier, toTier, dailyQuota, promote)
	if err != nil {
		return false, fmt.Errorf("advance warmup tier: %w", err)
	}
	return affected(res, "advance warmup tier")
}

// TryConsumeQuota takes one send for day. A new day starts the counter over.
func (s *Store) TryConsumeQuota(ctx context.Context, accountID string, day time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sending_accounts
		SET quota_used_today = CASE WHEN quota_day = $2::date THEN quota_used_today + 1 ELSE 1 END,
		    quota_day = $2::date,
		    updated_at = NOW()
		WHERE id = $1
		  AND status IN ('warming', 'active')
		  AND daily_quota > 0
		  AND (quota_day IS DISTINCT FROM $2::date OR quota_used_today < daily_quota)
	`, accountID, dayKey(day))
	if err != nil {
		return false, fmt.Errorf("consume quota: %w", err)
	}
	return affected(res, "consume quota")
}

// RefundQuota gives one send back.
func (s *Store) RefundQuota(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sending_accounts
		SET quota_used_today = GREATEST(quota_used_today - 1, 0), updated_at = NOW()
		WHERE id = $1
	`, accountID)
	if err != nil {
		return fmt.Errorf("refund quota: %w", err)
	}
	return nil
}

// ResetDailyQuotas zeroes usage recorded for earlier days.
func (s *Store) ResetDailyQuotas(ctx context.Context, day time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sending_accounts
		SET quota_used_today = 0, quota_day = $1::date, updated_at = NOW()
		WHERE quota_day IS DISTINCT FROM $1::date AND quota_used_today > 0
	`, dayKey(day))
	if err != nil {
		return 0, fmt.Errorf("reset daily quotas: %w", err)
	}
	return count(res, "reset daily quotas")
}

// FlagAccount records why the account needs attention.
func (s *Store) FlagAccount(ctx context.Context, accountID, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sending_accounts SET attention_reason = $2, updated_at = NOW() WHERE id = $1`,
		accountID, reason)
	if err != nil {
		return fmt.Errorf("flag account: %w", err)
	}
	ok, err := affected(res, "flag account")
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}

// SetAccountStatus changes the status if it is still from.
func (s *Store) SetAccountStatus(ctx context.Context, accountID string, from, to domain.AccountStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sending_accounts SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		accountID, from, to)
	if err != nil {
		return false, fmt.Errorf("set account status: %w", err)
	}
	return affected(res, "set account status")
}

// UpdateReputation stores the score and the window it was computed from.
func (s *Store) UpdateReputation(ctx context.Context, accountID string, score float64, c domain.SignalCounts) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sending_accounts
		SET reputation_score = $2, sent_24h = $3, delivered_24h = $4,
		    bounced_24h = $5, complained_24h = $6, updated_at = NOW()
		WHERE id = $1
	`, accountID, score, c.Sent, c.Delivered, c.Bounced, c.Complained)
	if err != nil {
		return fmt.Errorf("update reputation: %w", err)
	}
	return nil
}

// RecordAccountSignal stores a signal once per (account, kind, message).
func (s *Store) RecordAccountSignal(ctx context.Context, sig domain.AccountSignal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_signals (account_id, kind, message_id, occurred_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, kind, message_id) DO NOTHING
	`, sig.AccountID, sig.Kind, sig.MessageID, sig.OccurredAt)
	if err != nil {
		return fmt.Errorf("record account signal: %w", err)
	}
	return nil
}

// RollingCounts counts the account's signals since the given time.
func (s *Store) RollingCounts(ctx context.Context, accountID string, since time.Time) (domain.SignalCounts, error) {
	var c domain.SignalCounts
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*) FROM account_signals
		WHERE account_id = $1 AND occurred_at >= $2
		GROUP BY kind
	`, accountID, since)
	if err != nil {
		return c, fmt.Errorf("rolling counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind domain.SignalKind
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return c, fmt.Errorf("scan signal count: %w", err)
		}
		switch kind {
		case domain.SignalSent:
			c.Sent = n
		case domain.SignalDelivered:
			c.Delivered = n
		case domain.SignalBounced:
			c.Bounced = n
		case domain.SignalComplained:
			c.Complained = n
		}
	}
	return c, rows.Err()
}
