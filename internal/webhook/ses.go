package webhook

import (
	"encoding/json"
	"errors"

	"github.com/ignite/outreach-engine/internal/domain"
)

type snsEnvelope struct {
	Type         string `json:"Type"`
	MessageID    string `json:"MessageId"`
	TopicArn     string `json:"TopicArn"`
	Message      string `json:"Message"`
	SubscribeURL string `json:"SubscribeURL"`
}

type sesTimed struct {
	Timestamp string `json:"timestamp"`
}

type sesEvent struct {
	EventType        string `json:"eventType"`
	NotificationType string `json:"notificationType"`
	Mail             struct {
		MessageID string `json:"messageId"`
		Timestamp string `json:"timestamp"`
	} `json:"mail"`
	Bounce *struct {
		BounceType    string `json:"bounceType"`
		BounceSubType string `json:"bounceSubType"`
		Timestamp     string `json:"timestamp"`
	} `json:"bounce"`
	Complaint *struct {
		FeedbackType string `json:"complaintFeedbackType"`
		Timestamp    string `json:"timestamp"`
	} `json:"complaint"`
	Delivery     *sesTimed `json:"delivery"`
	Open         *sesTimed `json:"open"`
	Click        *struct {
		Link      string `json:"link"`
		Timestamp string `json:"timestamp"`
	} `json:"click"`
	Subscription *sesTimed `json:"subscription"`
}

// ParseSES reads an SES event, either bare (SQS raw delivery) or wrapped in
// an SNS envelope. Only permanent bounces become bounce events.
func ParseSES(body []byte) (*Result, error) {
	var env snsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errEnvelope("ses", err)
	}
	res := &Result{}
	switch env.Type {
	case "SubscriptionConfirmation":
		if env.SubscribeURL == "" {
			return nil, errEnvelope("ses", errors.New("subscription confirmation without SubscribeURL"))
		}
		res.SubscribeURL = env.SubscribeURL
		return res, nil
	case "UnsubscribeConfirmation":
		return res, nil
	case "Notification":
		body = []byte(env.Message)
	}

	var ev sesEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, errEnvelope("ses", err)
	}
	kind := ev.EventType
	if kind == "" {
		kind = ev.NotificationType
	}
	if kind == "" {
		return nil, errEnvelope("ses", errors.New("no event type"))
	}

	out := domain.DeliveryEvent{
		MessageID:  ev.Mail.MessageID,
		Provider:   "ses",
		OccurredAt: parseTimestamp(ev.Mail.Timestamp),
		Metadata:   map[string]string{"ses_event": kind},
	}
	at := func(ts string) {
		if t := parseTimestamp(ts); !t.IsZero() {
			out.OccurredAt = t
		}
	}

	switch kind {
	case "Delivery":
		out.Type = domain.EventDelivered
		if ev.Delivery != nil {
			at(ev.Delivery.Timestamp)
		}
	case "Bounce":
		if ev.Bounce == nil || ev.Bounce.BounceType != "Permanent" {
			res.Skipped++
			return res, nil
		}
		out.Type = domain.EventBounced
		out.Metadata["bounce_sub_type"] = ev.Bounce.BounceSubType
		at(ev.Bounce.Timestamp)
	case "Complaint":
		out.Type = domain.EventComplained
		if ev.Complaint != nil {
			out.Metadata["feedback_type"] = ev.Complaint.FeedbackType
			at(ev.Complaint.Timestamp)
		}
	case "Open":
		out.Type = domain.EventOpened
		if ev.Open != nil {
			at(ev.Open.Timestamp)
		}
	case "Click":
		out.Type = domain.EventClicked
		if ev.Click != nil {
			out.Metadata["link"] = ev.Click.Link
			at(ev.Click.Timestamp)
		}
	case "Subscription":
		out.Type = domain.EventUnsubscribed
		if ev.Subscription != nil {
			at(ev.Subscription.Timestamp)
		}
	default:
		res.Skipped++
		return res, nil
	}
	out.OccurredAt = orNow(out.OccurredAt, now())
	res.add(out)
	return res, nil
}

