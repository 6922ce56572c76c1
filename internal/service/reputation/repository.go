package reputation

import (
	"context"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Repository is the data access the scorer and guard need.
type Repository interface {
	// ListScoredAccounts returns every account that is not disabled.
	ListScoredAccounts(ctx context.Context) ([]domain.SendingAccount, error)

	// RollingCounts counts the account's signals since the given time.
	RollingCounts(ctx context.Context, accountID string, since time.Time) (domain.SignalCounts, error)

	// UpdateReputation stores the score and the counts it was computed from.
	UpdateReputation(ctx context.Context, accountID string, score float64, counts domain.SignalCounts) error

	// SetAccountStatus moves the account from one status to another only if
	// it is still in from. Returns false when it was not.
	SetAccountStatus(ctx context.Context, accountID string, from, to domain.AccountStatus) (bool, error)
}
