package webhook

import (
	"bytes"
	"encoding/json"

	"github.com/ignite/outreach-engine/internal/domain"
)

// ParseGeneric reads already-normalized events: one DeliveryEvent object or
// an array of them.
func ParseGeneric(body []byte) (*Result, error) {
	trimmed := bytes.TrimSpace(body)
	var raws []json.RawMessage
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, errEnvelope("generic", err)
		}
	} else {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return nil, errEnvelope("generic", err)
		}
		raws = []json.RawMessage{trimmed}
	}

	res := &Result{}
	for _, raw := range raws {
		var ev domain.DeliveryEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			res.Skipped++
			continue
		}
		if ev.Provider == "" {
			ev.Provider = "generic"
		}
		ev.OccurredAt = orNow(ev.OccurredAt, now())
		res.add(ev)
	}
	return res, nil
}
