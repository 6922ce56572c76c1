package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/domain"
)

func TestParseSES(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantType domain.EventType
		wantID   string
		skipped  int
	}{
		{
			name:     "sns wrapped permanent bounce",
			body:     `{"Type":"Notification","Message":"{\"eventType\":\"Bounce\",\"mail\":{\"messageId\":\"m-1\",\"timestamp\":\"2026-03-02T09:00:00Z\"},\"bounce\":{\"bounceType\":\"Permanent\",\"bounceSubType\":\"General\",\"timestamp\":\"2026-03-02T09:01:00Z\"}}"}`,
			wantType: domain.EventBounced,
			wantID:   "m-1",
		},
		{
			name:    "transient bounce skipped",
			body:    `{"eventType":"Bounce","mail":{"messageId":"m-1"},"bounce":{"bounceType":"Transient"}}`,
			skipped: 1,
		},
		{
			name:     "raw delivery",
			body:     `{"eventType":"Delivery","mail":{"messageId":"m-2"},"delivery":{"timestamp":"2026-03-02T09:00:05Z"}}`,
			wantType: domain.EventDelivered,
			wantID:   "m-2",
		},
		{
			name:     "notification format complaint",
			body:     `{"notificationType":"Complaint","mail":{"messageId":"m-3"},"complaint":{"complaintFeedbackType":"abuse"}}`,
			wantType: domain.EventComplained,
			wantID:   "m-3",
		},
		{
			name:     "click",
			body:     `{"eventType":"Click","mail":{"messageId":"m-4"},"click":{"link":"https://acme.test"}}`,
			wantType: domain.EventClicked,
			wantID:   "m-4",
		},
		{
			name:    "send event ignored",
			body:    `{"eventType":"Send","mail":{"messageId":"m-5"}}`,
			skipped: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ParseSES([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.skipped, res.Skipped)
			if tt.wantType == "" {
				assert.Empty(t, res.Events)
				return
			}
			require.Len(t, res.Events, 1)
			assert.Equal(t, tt.wantType, res.Events[0].Type)
			assert.Equal(t, tt.wantID, res.Events[0].MessageID)
			assert.Equal(t, "ses", res.Events[0].Provider)
			assert.False(t, res.Events[0].OccurredAt.IsZero())
		})
	}
}

func TestParseSES_BounceTimestamp(t *testing.T) {
	res, err := ParseSES([]byte(`{"eventType":"Bounce","mail":{"messageId":"m-1"},"bounce":{"bounceType":"Permanent","timestamp":"2026-03-02T09:01:00Z"}}`))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 1, 0, 0, time.UTC), res.Events[0].OccurredAt)
}

func TestParseSES_SubscriptionConfirmation(t *testing.T) {
	res, err := ParseSES([]byte(`{"Type":"SubscriptionConfirmation","SubscribeURL":"https://sns.us-east-1.amazonaws.com/?Action=ConfirmSubscription"}`))
	require.NoError(t, err)
	assert.Equal(t, "https://sns.us-east-1.amazonaws.com/?Action=ConfirmSubscription", res.SubscribeURL)
	assert.Empty(t, res.Events)
}

func TestParseSES_Malformed(t *testing.T) {
	_, err := ParseSES([]byte(`not json`))
	assert.Error(t, err)
	_, err = ParseSES([]byte(`{"mail":{"messageId":"m"}}`))
	assert.Error(t, err)
}

func TestParseSparkPost(t *testing.T) {
	body := `[
		{"msys":{"message_event":{"type":"delivery","message_id":"sp-1","timestamp":"1772442000"}}},
		{"msys":{"message_event":{"type":"bounce","message_id":"sp-2","bounce_class":"10"}}},
		{"msys":{"message_event":{"type":"bounce","message_id":"sp-3","bounce_class":"21"}}},
		{"msys":{"track_event":{"type":"open","message_id":"sp-4"}}},
		{"msys":{"unsubscribe_event":{"type":"link_unsubscribe","message_id":"sp-5"}}},
		{"msys":{"message_event":{"type":"spam_complaint","message_id":"sp-6"}}},
		{"msys":{"message_event":"garbage"}},
		{"other":{}}
	]`
	res, err := ParseSparkPost([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Skipped)

	got := map[string]domain.EventType{}
	for _, ev := range res.Events {
		got[ev.MessageID] = ev.Type
	}
	assert.Equal(t, map[string]domain.EventType{
		"sp-1": domain.EventDelivered,
		"sp-2": domain.EventBounced,
		"sp-4": domain.EventOpened,
		"sp-5": domain.EventUnsubscribed,
		"sp-6": domain.EventComplained,
	}, got)
	for _, ev := range res.Events {
		if ev.MessageID == "sp-1" {
			assert.Equal(t, time.Unix(1772442000, 0).UTC(), ev.OccurredAt)
		}
	}

	_, err = ParseSparkPost([]byte(`{"msys":{}}`))
	assert.Error(t, err)
}

func TestParseMailgun(t *testing.T) {
	res, err := ParseMailgun([]byte(`{"event-data":{"event":"failed","severity":"permanent","timestamp":1772442000.5,"message":{"headers":{"message-id":"<mg-1@acme.test>"}}}}`))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "mg-1@acme.test", res.Events[0].MessageID)
	assert.Equal(t, domain.EventBounced, res.Events[0].Type)

	res, err = ParseMailgun([]byte(`{"event-data":{"event":"failed","severity":"temporary","message":{"headers":{"message-id":"mg-2"}}}}`))
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.Equal(t, 1, res.Skipped)

	_, err = ParseMailgun([]byte(`{"signature":{}}`))
	assert.Error(t, err)
}

func TestParseSendGrid(t *testing.T) {
	body := `[
		{"event":"delivered","sg_message_id":"sg-1.filterdrecv-p3mdw1-756b745b58-kmzbl-18-5F5FC76C-9.0","timestamp":1772442000},
		{"event":"bounce","type":"blocked","sg_message_id":"sg-2.x"},
		{"event":"bounce","type":"bounce","sg_message_id":"sg-3.x"},
		{"event":"spamreport","sg_message_id":"sg-4.x"},
		{"event":"processed","sg_message_id":"sg-5.x"},
		"not an object"
	]`
	res, err := ParseSendGrid([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Skipped)
	require.Len(t, res.Events, 3)
	assert.Equal(t, "sg-1", res.Events[0].MessageID)
	assert.Equal(t, domain.EventBounced, res.Events[1].Type)
	assert.Equal(t, domain.EventComplained, res.Events[2].Type)
}

func TestParseGeneric(t *testing.T) {
	res, err := ParseGeneric([]byte(`{"message_id":"g-1","type":"opened","occurred_at":"2026-03-02T09:00:00Z"}`))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "generic", res.Events[0].Provider)

	res, err = ParseGeneric([]byte(`[{"message_id":"g-1","type":"opened"},{"message_id":"g-2","type":"deferred"},{"type":"clicked"}]`))
	require.NoError(t, err)
	assert.Len(t, res.Events, 1)
	assert.Equal(t, 2, res.Skipped)

	_, err = ParseGeneric([]byte(`"just a string"`))
	assert.Error(t, err)
}
