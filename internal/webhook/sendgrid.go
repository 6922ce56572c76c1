package webhook

import (
	"encoding/json"
	"strings"

	"github.com/ignite/outreach-engine/internal/domain"
)

type sendGridEvent struct {
	Event       string `json:"event"`
	Type        string `json:"type"`
	SGMessageID string `json:"sg_message_id"`
	Timestamp   int64  `json:"timestamp"`
	URL         string `json:"url"`
}

// ParseSendGrid reads a SendGrid event webhook batch. The message id is the
// part of sg_message_id before the first dot, which matches X-Message-Id.
// Blocked bounces are treated as soft.
func ParseSendGrid(body []byte) (*Result, error) {
	var batch []json.RawMessage
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, errEnvelope("sendgrid", err)
	}
	res := &Result{}
	for _, raw := range batch {
		var e sendGridEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			res.Skipped++
			continue
		}
		id, _, _ := strings.Cut(e.SGMessageID, ".")
		ev := domain.DeliveryEvent{
			MessageID:  id,
			Provider:   "sendgrid",
			OccurredAt: orNow(parseTimestamp(e.Timestamp), now()),
			Metadata:   map[string]string{"sendgrid_event": e.Event},
		}
		switch e.Event {
		case "delivered":
			ev.Type = domain.EventDelivered
		case "bounce":
			if e.Type == "blocked" {
				res.Skipped++
				continue
			}
			ev.Type = domain.EventBounced
		case "spamreport":
			ev.Type = domain.EventComplained
		case "open":
			ev.Type = domain.EventOpened
		case "click":
			ev.Type = domain.EventClicked
			if e.URL != "" {
				ev.Metadata["link"] = e.URL
			}
		case "unsubscribe", "group_unsubscribe":
			ev.Type = domain.EventUnsubscribed
		default:
			res.Skipped++
			continue
		}
		res.add(ev)
	}
	return res, nil
}
