package memory

import (
	"context"
	"sort"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

func (s *Store) sortedAccounts(keep func(*domain.SendingAccount) bool) []domain.SendingAccount {
	var out []domain.SendingAccount
	for _, a := range s.accounts {
		if keep(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// ListWarmupAccounts returns accounts still warming up.
func (s *Store) ListWarmupAccounts(context.Context) ([]domain.SendingAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedAccounts(func(a *domain.SendingAccount) bool {
		return a.WarmupStartedAt != nil && a.WarmupTier < domain.MaxWarmupTier && a.Status != domain.AccountDisabled
	}), nil
}

// ListScoredAccounts returns every account that is not disabled.
func (s *Store) ListScoredAccounts(context.Context) ([]domain.SendingAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedAccounts(func(a *domain.SendingAccount) bool {
		return a.Status != domain.AccountDisabled
	}), nil
}

// AdvanceWarmupTier moves an account forward if its tier is still fromTier.
func (s *Store) AdvanceWarmupTier(_ context.Context, accountID string, fromTier, toTier, dailyQuota int, promote bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if a.WarmupTier != fromTier || toTier <= fromTier {
		return false, nil
	}
	a.WarmupTier = toTier
	a.DailyQuota = dailyQuota
	if promote && a.Status == domain.AccountWarming {
		a.Status = domain.AccountActive
	}
	return true, nil
}

// TryConsumeQuota takes one send from the account's quota for day.
func (s *Store) TryConsumeQuota(_ context.Context, accountID string, day time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if !a.CanSend() {
		return false, nil
	}
	if d := dayKey(day); s.quotaDay[accountID] != d {
		s.quotaDay[accountID] = d
		a.QuotaUsedToday = 0
	}
	if a.QuotaUsedToday >= a.DailyQuota {
		return false, nil
	}
	a.QuotaUsedToday++
	return true, nil
}

// RefundQuota gives one send back.
func (s *Store) RefundQuota(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	if a.QuotaUsedToday > 0 {
		a.QuotaUsedToday--
	}
	return nil
}

// ResetDailyQuotas zeroes usage recorded for earlier days.
func (s *Store) ResetDailyQuotas(_ context.Context, day time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := dayKey(day)
	n := 0
	for id, a := range s.accounts {
		if s.quotaDay[id] != d {
			if a.QuotaUsedToday > 0 {
				n++
			}
			a.QuotaUsedToday = 0
			s.quotaDay[id] = d
		}
	}
	return n, nil
}

// FlagAccount records an attention reason.
func (s *Store) FlagAccount(_ context.Context, accountID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	a.AttentionReason = reason
	return nil
}

// SetAccountStatus changes the status if it is still from.
func (s *Store) SetAccountStatus(_ context.Context, accountID string, from, to domain.AccountStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if a.Status != from {
		return false, nil
	}
	a.Status = to
	return true, nil
}

// UpdateReputation stores the latest score and window counts.
func (s *Store) UpdateReputation(_ context.Context, accountID string, score float64, c domain.SignalCounts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	a.ReputationScore = score
	a.Sent24h = c.Sent
	a.Delivered24h = c.Delivered
	a.Bounced24h = c.Bounced
	a.Complained24h = c.Complained
	return nil
}

// RecordAccountSignal stores a signal once per (account, kind, message).
func (s *Store) RecordAccountSignal(_ context.Context, sig domain.AccountSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sig.AccountID + "|" + string(sig.Kind) + "|" + sig.MessageID
	if _, ok := s.signals[key]; !ok {
		s.signals[key] = sig
	}
	return nil
}

// RollingCounts counts the account's signals since the given time.
func (s *Store) RollingCounts(_ context.Context, accountID string, since time.Time) (domain.SignalCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c domain.SignalCounts
	for _, sig := range s.signals {
		if sig.AccountID != accountID || sig.OccurredAt.Before(since) {
			continue
		}
		switch sig.Kind {
		case domain.SignalSent:
			c.Sent++
		case domain.SignalDelivered:
			c.Delivered++
		case domain.SignalBounced:
			c.Bounced++
		case domain.SignalComplained:
			c.Complained++
		}
	}
	return c, nil
}
