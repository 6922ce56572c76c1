// Package webhook normalizes provider delivery notifications into
// domain.DeliveryEvent values and feeds them to the reconciler. Payloads
// arrive over HTTP (one route per provider) or from an SQS queue subscribed
// to SES event publishing.
//
// Parsing fails closed: a payload whose envelope cannot be read is rejected
// and archived. Inside a well-formed batch, individual elements that are
// malformed, of an uninteresting type, or soft bounces are counted as
// skipped without affecting their neighbours.
package webhook

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Result is what an adapter extracted from one payload.
type Result struct {
	Events  []domain.DeliveryEvent
	Skipped int
	// SubscribeURL is set for SNS subscription confirmations.
	SubscribeURL string
}

func (r *Result) add(ev domain.DeliveryEvent) {
	if ev.MessageID == "" || !ev.Type.Valid() {
		r.Skipped++
		return
	}
	r.Events = append(r.Events, ev)
}

// ParseFunc turns a raw payload into events. An error means the payload as
// a whole could not be understood.
type ParseFunc func(body []byte) (*Result, error)

// Parsers maps provider names, as used in webhook routes, to adapters.
type Parsers map[string]ParseFunc

// DefaultParsers returns every built-in adapter.
func DefaultParsers() Parsers {
	return Parsers{
		"ses":       ParseSES,
		"sparkpost": ParseSparkPost,
		"mailgun":   ParseMailgun,
		"sendgrid":  ParseSendGrid,
		"generic":   ParseGeneric,
	}
}

// Names lists the registered providers in order.
func (p Parsers) Names() []string {
	out := make([]string, 0, len(p))
	for name := range p {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// parseTimestamp accepts RFC 3339 strings and unix seconds, integral or
// fractional, as string or number. Unparseable values yield the zero time.
func parseTimestamp(v any) time.Time {
	switch t := v.(type) {
	case string:
		if t == "" {
			return time.Time{}
		}
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts.UTC()
		}
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return unixFloat(f)
		}
	case float64:
		if t > 0 {
			return unixFloat(t)
		}
	case int64:
		if t > 0 {
			return time.Unix(t, 0).UTC()
		}
	}
	return time.Time{}
}

func unixFloat(f float64) time.Time {
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// orNow substitutes the receive time for a missing event time.
func orNow(t time.Time, now time.Time) time.Time {
	if t.IsZero() {
		return now.UTC()
	}
	return t
}

func trimAngles(id string) string {
	return strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(id), "<"), ">")
}

func errEnvelope(provider string, err error) error {
	return fmt.Errorf("%s payload: %w", provider, err)
}

var now = time.Now
