package webhook

import (
	"encoding/json"
	"errors"

	"github.com/ignite/outreach-engine/internal/domain"
)

type mailgunPayload struct {
	EventData *struct {
		Event     string  `json:"event"`
		Severity  string  `json:"severity"`
		Reason    string  `json:"reason"`
		Timestamp float64 `json:"timestamp"`
		URL       string  `json:"url"`
		Message   struct {
			Headers struct {
				MessageID string `json:"message-id"`
			} `json:"headers"`
		} `json:"message"`
	} `json:"event-data"`
}

// ParseMailgun reads one Mailgun webhook. Temporary failures are skipped.
func ParseMailgun(body []byte) (*Result, error) {
	var p mailgunPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, errEnvelope("mailgun", err)
	}
	if p.EventData == nil {
		return nil, errEnvelope("mailgun", errors.New("missing event-data"))
	}
	d := p.EventData
	res := &Result{}
	ev := domain.DeliveryEvent{
		MessageID:  trimAngles(d.Message.Headers.MessageID),
		Provider:   "mailgun",
		OccurredAt: orNow(parseTimestamp(d.Timestamp), now()),
		Metadata:   map[string]string{"mailgun_event": d.Event},
	}
	switch d.Event {
	case "delivered":
		ev.Type = domain.EventDelivered
	case "failed":
		if d.Severity != "permanent" {
			res.Skipped++
			return res, nil
		}
		ev.Type = domain.EventBounced
		ev.Metadata["reason"] = d.Reason
	case "complained":
		ev.Type = domain.EventComplained
	case "opened":
		ev.Type = domain.EventOpened
	case "clicked":
		ev.Type = domain.EventClicked
		if d.URL != "" {
			ev.Metadata["link"] = d.URL
		}
	case "unsubscribed":
		ev.Type = domain.EventUnsubscribed
	default:
		res.Skipped++
		return res, nil
	}
	res.add(ev)
	return res, nil
}
