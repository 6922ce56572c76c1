// Package sending defines the transport contract the dispatcher delivers
// through.
//
// Each provider kind (SES, SMTP mailboxes, the sandbox) implements Transport.
// Transports report failures as *Error values carrying a Class so callers
// decide on retry without inspecting error text.
package sending

import (
	"context"
	"fmt"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Message is a fully rendered email ready for a transport.
type Message struct {
	// IdempotencyKey is stable across retries of the same job.
	IdempotencyKey string
	FromEmail      string
	FromName       string
	To             string
	Subject        string
	Body           string
	Headers        map[string]string
}

// Transport sends one message from one account. Implementations must be
// safe for concurrent use and must honor ctx cancellation.
type Transport interface {
	Send(ctx context.Context, account *domain.SendingAccount, msg *Message) (messageID string, err error)
}

// Resolver picks the Transport for an account.
type Resolver interface {
	TransportFor(account *domain.SendingAccount) (Transport, error)
}

// Registry is a Resolver keyed by provider kind.
type Registry map[domain.ProviderKind]Transport

// TransportFor returns the transport registered for the account's provider.
func (r Registry) TransportFor(account *domain.SendingAccount) (Transport, error) {
	t, ok := r[account.Provider]
	if !ok {
		return nil, &Error{
			Class: ClassPermanent,
			Code:  "no_transport",
			Err:   fmt.Errorf("no transport for provider %q", account.Provider),
		}
	}
	return t, nil
}
