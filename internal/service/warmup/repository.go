package warmup

import (
	"context"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Repository is the data access the warm-up controller needs.
type Repository interface {
	// ListWarmupAccounts returns accounts with a warm-up start that have not
	// reached the final tier and are not disabled.
	ListWarmupAccounts(ctx context.Context) ([]domain.SendingAccount, error)

	// AdvanceWarmupTier moves an account from fromTier to toTier and sets its
	// daily quota, only if its tier is still fromTier. When promote is set a
	// warming account also becomes active. Returns false when the
	// compare-and-set did not match.
	AdvanceWarmupTier(ctx context.Context, accountID string, fromTier, toTier, dailyQuota int, promote bool) (bool, error)
}
