package domain

import "time"

// ProviderKind identifies how a sending account reaches the outside world.
type ProviderKind string

const (
	ProviderSES     ProviderKind = "ses"
	ProviderSMTP    ProviderKind = "smtp"
	ProviderGmail   ProviderKind = "gmail"
	ProviderOutlook ProviderKind = "outlook"
	ProviderSandbox ProviderKind = "sandbox"
)

// UsesSMTP reports whether the provider is reached through an SMTP submission
// server with per-account credentials.
func (p ProviderKind) UsesSMTP() bool {
	return p == ProviderSMTP || p == ProviderGmail || p == ProviderOutlook
}

// AccountStatus enumerates the lifecycle states of a sending account.
type AccountStatus string

const (
	AccountWarming   AccountStatus = "warming"
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
	AccountDisabled  AccountStatus = "disabled"
)

// MaxWarmupTier is the final warm-up tier. Reaching it ends warm-up.
const MaxWarmupTier = 5

// SendingAccount is a mailbox, domain identity, or pooled relay node that
// messages are sent from. Accounts are never deleted while referenced;
// they are soft-disabled instead.
type SendingAccount struct {
	ID              string        `json:"id" db:"id"`
	OrganizationID  string        `json:"organization_id" db:"organization_id"`
	FromEmail       string        `json:"from_email" db:"from_email"`
	FromName        string        `json:"from_name" db:"from_name"`
	Provider        ProviderKind  `json:"provider" db:"provider"`
	Status          AccountStatus `json:"status" db:"status"`
	IsPool          bool          `json:"is_pool" db:"is_pool"`
	WarmupStartedAt *time.Time    `json:"warmup_started_at" db:"warmup_started_at"`
	WarmupTier      int           `json:"warmup_tier" db:"warmup_tier"`
	DailyQuota      int           `json:"daily_quota" db:"daily_quota"`
	QuotaUsedToday  int           `json:"quota_used_today" db:"quota_used_today"`
	ReputationScore float64       `json:"reputation_score" db:"reputation_score"`
	AttentionReason string        `json:"attention_reason,omitempty" db:"attention_reason"`

	// Rolling 24h counters, refreshed by the reputation scorer.
	Sent24h       int `json:"sent_24h" db:"sent_24h"`
	Delivered24h  int `json:"delivered_24h" db:"delivered_24h"`
	Bounced24h    int `json:"bounced_24h" db:"bounced_24h"`
	Complained24h int `json:"complained_24h" db:"complained_24h"`

	SMTPHost     string `json:"smtp_host,omitempty" db:"smtp_host"`
	SMTPPort     int    `json:"smtp_port,omitempty" db:"smtp_port"`
	SMTPUsername string `json:"-" db:"smtp_username"`
	SMTPPassword string `json:"-" db:"smtp_password"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CanSend reports whether the account may be used for dispatch right now.
func (a *SendingAccount) CanSend() bool {
	return a.Status == AccountWarming || a.Status == AccountActive
}

// Unusable returns a non-empty reason when the account must not be used to
// launch a campaign.
func (a *SendingAccount) Unusable() string {
	switch a.Status {
	case AccountDisabled:
		return "account disabled"
	case AccountSuspended:
		return "account suspended"
	}
	return ""
}

// RestoreStatus is the status a suspended account returns to once its
// reputation recovers.
func (a *SendingAccount) RestoreStatus() AccountStatus {
	if a.WarmupStartedAt != nil && a.WarmupTier < MaxWarmupTier {
		return AccountWarming
	}
	return AccountActive
}

// SignalKind is a countable account-level delivery outcome.
type SignalKind string

const (
	SignalSent       SignalKind = "sent"
	SignalDelivered  SignalKind = "delivered"
	SignalBounced    SignalKind = "bounced"
	SignalComplained SignalKind = "complained"
)

// AccountSignal is a single counted outcome for an account. Signals are unique
// per (account, kind, message) so recording one twice is harmless.
type AccountSignal struct {
	AccountID  string     `json:"account_id" db:"account_id"`
	Kind       SignalKind `json:"kind" db:"kind"`
	MessageID  string     `json:"message_id" db:"message_id"`
	OccurredAt time.Time  `json:"occurred_at" db:"occurred_at"`
}

// SignalCounts aggregates account signals over a window.
type SignalCounts struct {
	Sent       int `json:"sent"`
	Delivered  int `json:"delivered"`
	Bounced    int `json:"bounced"`
	Complained int `json:"complained"`
}

// BounceRate returns bounced/sent, or zero when nothing was sent.
func (c SignalCounts) BounceRate() float64 {
	if c.Sent == 0 {
		return 0
	}
	return float64(c.Bounced) / float64(c.Sent)
}

// ComplaintRate returns complained/sent, or zero when nothing was sent.
func (c SignalCounts) ComplaintRate() float64 {
	if c.Sent == 0 {
		return 0
	}
	return float64(c.Complained) / float64(c.Sent)
}
