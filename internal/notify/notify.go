// Package notify delivers operational notifications (account suspended or
// restored, credentials refused, campaign exhausted) to external sinks.
//
// Notification is fire-and-forget: sinks log their own failures and never
// return them to the engine.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// Kind identifies what happened.
type Kind string

const (
	AccountSuspended  Kind = "account_suspended"
	AccountRestored   Kind = "account_restored"
	AccountAttention  Kind = "account_attention"
	CampaignExhausted Kind = "campaign_exhausted"
)

// Notification is one operational event.
type Notification struct {
	Kind           Kind      `json:"kind"`
	OrganizationID string    `json:"organization_id,omitempty"`
	AccountID      string    `json:"account_id,omitempty"`
	CampaignID     string    `json:"campaign_id,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Score          float64   `json:"score,omitempty"`
	At             time.Time `json:"at"`
}

// Sink receives notifications.
type Sink interface {
	Notify(ctx context.Context, n Notification)
}

// LogSink writes notifications to the structured log.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a sink that logs at WARN for account problems and INFO
// otherwise.
func NewLogSink() *LogSink {
	return &LogSink{log: logger.With("component", "notify")}
}

// Notify implements Sink.
func (s *LogSink) Notify(_ context.Context, n Notification) {
	fields := []interface{}{
		"kind", string(n.Kind), "organization_id", n.OrganizationID,
		"account_id", n.AccountID, "campaign_id", n.CampaignID, "reason", n.Reason,
	}
	switch n.Kind {
	case AccountSuspended, AccountAttention:
		s.log.Warn("notification", fields...)
	default:
		s.log.Info("notification", fields...)
	}
}

// Multi fans a notification out to several sinks.
type Multi []Sink

// Notify implements Sink.
func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, s := range m {
		if s != nil {
			s.Notify(ctx, n)
		}
	}
}

// Discard drops every notification.
type Discard struct{}

// Notify implements Sink.
func (Discard) Notify(context.Context, Notification) {}

// Recorder keeps notifications in memory. Tests and the dev server use it.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

// Notify implements Sink.
func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	r.sent = append(r.sent, n)
	r.mu.Unlock()
}

// Sent returns a copy of everything recorded so far.
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

// OfKind returns the recorded notifications of one kind.
func (r *Recorder) OfKind(k Kind) []Notification {
	var out []Notification
	for _, n := range r.Sent() {
		if n.Kind == k {
			out = append(out, n)
		}
	}
	return out
}
