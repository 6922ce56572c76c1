// Package postgres implements the engine repositories on PostgreSQL through
// database/sql and lib/pq. Status changes are single-statement
// compare-and-sets so concurrent workers never double-apply them.
package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/outreach-engine/internal/service/campaign"
	"github.com/ignite/outreach-engine/internal/service/dispatch"
	"github.com/ignite/outreach-engine/internal/service/reconcile"
	"github.com/ignite/outreach-engine/internal/service/reputation"
	"github.com/ignite/outreach-engine/internal/service/warmup"
)

var (
	_ campaign.Repository            = (*Store)(nil)
	_ dispatch.Repository            = (*Store)(nil)
	_ dispatch.MaintenanceRepository = (*Store)(nil)
	_ warmup.Repository              = (*Store)(nil)
	_ reputation.Repository          = (*Store)(nil)
	_ reconcile.Repository           = (*Store)(nil)
)

// Store is the Postgres-backed engine store.
type Store struct{ db *sql.DB }

// New wraps an open database handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

// DB exposes the handle for health checks and advisory locks.
func (s *Store) DB() *sql.DB { return s.db }

func dayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

func notFound(err error) bool { return errors.Is(err, sql.ErrNoRows) }

func affected(res sql.Result, what string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", what, err)
	}
	return n > 0, nil
}

func count(res sql.Result, what string) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s rows affected: %w", what, err)
	}
	return int(n), nil
}

func encodeMap(m map[string]string) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func decodeMap(b []byte) (map[string]string, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

