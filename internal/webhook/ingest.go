package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/metrics"
	"github.com/ignite/outreach-engine/internal/pkg/httpretry"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/service/reconcile"
)

// Applier feeds normalized events to the reconciler.
type Applier interface {
	ApplyEvent(ctx context.Context, ev domain.DeliveryEvent) (reconcile.Outcome, error)
}

// ErrUnknownProvider is returned for payloads from a provider with no adapter.
var ErrUnknownProvider = errors.New("unknown webhook provider")

// Summary counts what happened to one payload.
type Summary struct {
	Applied   int  `json:"applied"`
	Duplicate int  `json:"duplicate"`
	Dropped   int  `json:"dropped"`
	Skipped   int  `json:"skipped"`
	Confirmed bool `json:"subscription_confirmed,omitempty"`
}

// Ingester parses payloads and applies the resulting events. It is shared by
// the HTTP handler and the SQS poller.
type Ingester struct {
	parsers  Parsers
	applier  Applier
	archiver Archiver
	confirm  httpretry.HTTPDoer
	log      *logger.Logger
}

// IngesterOption configures an Ingester.
type IngesterOption func(*Ingester)

// WithArchiver stores payloads that fail to parse.
func WithArchiver(a Archiver) IngesterOption { return func(i *Ingester) { i.archiver = a } }

// WithConfirmClient sets the client used to confirm SNS subscriptions.
func WithConfirmClient(c httpretry.HTTPDoer) IngesterOption { return func(i *Ingester) { i.confirm = c } }

// NewIngester creates an Ingester.
func NewIngester(parsers Parsers, applier Applier, opts ...IngesterOption) *Ingester {
	i := &Ingester{
		parsers: parsers,
		applier: applier,
		confirm: httpretry.NewRetryClient(nil, 3),
		log:     logger.With("component", "webhook"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest handles one payload. Parse failures are archived and returned.
// Store errors abort the payload so the sender retries it; events already
// applied are idempotent on retry.
func (i *Ingester) Ingest(ctx context.Context, provider string, body []byte) (*Summary, error) {
	parse, ok := i.parsers[provider]
	if !ok {
		metrics.IncWebhookPayload(provider, "unknown_provider")
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	res, err := parse(body)
	if err != nil {
		metrics.IncWebhookPayload(provider, "rejected")
		i.log.Warn("webhook payload rejected", "provider", provider, "error", err)
		if i.archiver != nil {
			if aerr := i.archiver.Archive(ctx, provider, body, err.Error()); aerr != nil {
				i.log.Error("archive payload failed", "provider", provider, "error", aerr)
			}
		}
		return nil, err
	}

	sum := &Summary{Skipped: res.Skipped}
	if res.SubscribeURL != "" {
		if err := i.confirmSubscription(ctx, res.SubscribeURL); err != nil {
			metrics.IncWebhookPayload(provider, "confirm_failed")
			return sum, err
		}
		sum.Confirmed = true
	}

	for _, ev := range res.Events {
		outcome, err := i.applier.ApplyEvent(ctx, ev)
		switch {
		case errors.Is(err, reconcile.ErrInvalidEvent):
			sum.Dropped++
		case err != nil:
			metrics.IncWebhookPayload(provider, "error")
			return sum, fmt.Errorf("apply %s event for %s: %w", ev.Type, ev.MessageID, err)
		case outcome == reconcile.Applied:
			sum.Applied++
		case outcome == reconcile.Duplicate:
			sum.Duplicate++
		default:
			sum.Dropped++
		}
	}
	metrics.IncWebhookPayload(provider, "accepted")
	return sum, nil
}

// confirmSubscription visits an SNS SubscribeURL. Only HTTPS URLs on
// amazonaws.com hosts are followed.
func (i *Ingester) confirmSubscription(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || !strings.HasSuffix(u.Hostname(), ".amazonaws.com") {
		return fmt.Errorf("refusing subscription url %q", raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return fmt.Errorf("build confirm request: %w", err)
	}
	resp, err := i.confirm.Do(req)
	if err != nil {
		return fmt.Errorf("confirm subscription: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("confirm subscription: status %d", resp.StatusCode)
	}
	i.log.Info("sns subscription confirmed", "host", u.Hostname())
	return nil
}
