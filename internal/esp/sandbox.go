package esp

import (
	"context"
	"strings"
	"sync"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/service/sending"
)

// Delivery is a message accepted by the sandbox.
type Delivery struct {
	MessageID string
	AccountID string
	Message   sending.Message
}

// Sandbox accepts every message without sending it. Failures can be scripted
// per recipient address for local testing.
type Sandbox struct {
	mu        sync.Mutex
	delivered []Delivery
	failures  map[string]error
}

// NewSandbox creates an empty sandbox.
func NewSandbox() *Sandbox {
	return &Sandbox{failures: make(map[string]error)}
}

// FailFor makes every send to address return err until cleared with a nil
// error.
func (s *Sandbox) FailFor(address string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(address)
	if err == nil {
		delete(s.failures, key)
		return
	}
	s.failures[key] = err
}

// Send implements sending.Transport.
func (s *Sandbox) Send(ctx context.Context, account *domain.SendingAccount, msg *sending.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", sending.Transient("cancelled", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failures[strings.ToLower(msg.To)]; ok {
		return "", err
	}
	id := newMessageID(msg.FromEmail)
	cp := *msg
	s.delivered = append(s.delivered, Delivery{MessageID: id, AccountID: account.ID, Message: cp})
	return id, nil
}

// Delivered returns a copy of the accepted messages.
func (s *Sandbox) Delivered() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Delivery(nil), s.delivered...)
}
