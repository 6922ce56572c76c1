// Package esp contains the provider transports that put rendered messages on
// the wire: Amazon SES, authenticated SMTP for mailbox providers, and an
// in-memory sandbox. Every transport reports failures as sending.Error so the
// dispatcher can tell retryable trouble from permanent rejection.
package esp

import (
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/service/sending"
)

// NewRegistry maps provider kinds to the configured transports. Nil
// transports are left out, so accounts on those providers fail with
// "no_transport".
func NewRegistry(ses *SES, mailbox *SMTP, sandbox *Sandbox) sending.Registry {
	reg := sending.Registry{}
	if ses != nil {
		reg[domain.ProviderSES] = ses
	}
	if mailbox != nil {
		reg[domain.ProviderSMTP] = mailbox
		reg[domain.ProviderGmail] = mailbox
		reg[domain.ProviderOutlook] = mailbox
	}
	if sandbox != nil {
		reg[domain.ProviderSandbox] = sandbox
	}
	return reg
}
