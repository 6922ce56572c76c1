package postgres

import (
	"context"
	"fmt"

	"github.com/ignite/outreach-engine/internal/domain"
)

// HasEvent reports whether (messageID, type) is in the ledger.
func (s *Store) HasEvent(ctx context.Context, messageID string, t domain.EventType) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM delivery_events WHERE message_id = $1 AND event_type = $2)
	`, messageID, t).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check event: %w", err)
	}
	return exists, nil
}

// RecordEvent inserts the event into the ledger. It returns false when the
// event was already recorded.
func (s *Store) RecordEvent(ctx context.Context, ev domain.DeliveryEvent, jobID string) (bool, error) {
	meta, err := encodeMap(ev.Metadata)
	if err != nil {
		return false, fmt.Errorf("encode event metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_events (message_id, event_type, job_id, provider, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (message_id, event_type) DO NOTHING
	`, ev.MessageID, ev.Type, jobID, ev.Provider, meta, ev.OccurredAt)
	if err != nil {
		return false, fmt.Errorf("record event: %w", err)
	}
	return affected(res, "record event")
}
