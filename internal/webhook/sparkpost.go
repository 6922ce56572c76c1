package webhook

import (
	"encoding/json"

	"github.com/ignite/outreach-engine/internal/domain"
)

// SparkPost bounce classes that mean the address will never accept mail.
var sparkPostHardBounce = map[string]bool{
	"10": true, "25": true, "26": true, "30": true, "90": true,
}

type sparkPostData struct {
	Type        string `json:"type"`
	MessageID   string `json:"message_id"`
	Timestamp   any    `json:"timestamp"`
	BounceClass string `json:"bounce_class"`
	TargetLink  string `json:"target_link_url"`
}

// ParseSparkPost reads a SparkPost webhook batch: an array of
// {"msys": {"<category>": {...}}} elements.
func ParseSparkPost(body []byte) (*Result, error) {
	var batch []map[string]map[string]json.RawMessage
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, errEnvelope("sparkpost", err)
	}
	res := &Result{}
	for _, el := range batch {
		msys, ok := el["msys"]
		if !ok || len(msys) == 0 {
			res.Skipped++
			continue
		}
		for category, raw := range msys {
			var d sparkPostData
			if err := json.Unmarshal(raw, &d); err != nil {
				res.Skipped++
				continue
			}
			ev := domain.DeliveryEvent{
				MessageID:  d.MessageID,
				Provider:   "sparkpost",
				OccurredAt: orNow(parseTimestamp(d.Timestamp), now()),
				Metadata:   map[string]string{"sparkpost_type": d.Type},
			}
			switch {
			case category == "unsubscribe_event":
				ev.Type = domain.EventUnsubscribed
			case d.Type == "delivery":
				ev.Type = domain.EventDelivered
			case d.Type == "bounce" || d.Type == "out_of_band":
				if !sparkPostHardBounce[d.BounceClass] {
					res.Skipped++
					continue
				}
				ev.Type = domain.EventBounced
				ev.Metadata["bounce_class"] = d.BounceClass
			case d.Type == "spam_complaint":
				ev.Type = domain.EventComplained
			case d.Type == "open" || d.Type == "initial_open" || d.Type == "amp_open":
				ev.Type = domain.EventOpened
			case d.Type == "click" || d.Type == "amp_click":
				ev.Type = domain.EventClicked
				if d.TargetLink != "" {
					ev.Metadata["link"] = d.TargetLink
				}
			default:
				res.Skipped++
				continue
			}
			res.add(ev)
		}
	}
	return res, nil
}
