// Package audit persists the security event trail: every state
// transition and degraded-signal warning, append-only, queryable by
// session for incident review.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // Postgres driver

	"github.com/vigil/backend/internal/core"
	"github.com/vigil/backend/internal/events"
)

// Store is the audit sink. The core never blocks on it: writes happen
// on the recorder goroutine, off the verification tick.
type Store interface {
	RecordTransition(ctx context.Context, t core.StateTransition) error
	RecordDegraded(ctx context.Context, d core.DegradedSignal) error
	RecentTransitions(ctx context.Context, sessionID string, limit int) ([]core.StateTransition, error)
}

// PostgresStore implements Store on a plain database/sql connection.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects and ensures the schema exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("audit store connected")
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS security_transitions (
			id          BIGSERIAL PRIMARY KEY,
			session_id  TEXT NOT NULL,
			from_state  TEXT NOT NULL,
			to_state    TEXT NOT NULL,
			ema_value   DOUBLE PRECISION NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_transitions_session
			ON security_transitions (session_id, occurred_at DESC);

		CREATE TABLE IF NOT EXISTS degraded_signals (
			id                BIGSERIAL PRIMARY KEY,
			session_id        TEXT NOT NULL,
			consecutive_ticks INT NOT NULL,
			occurred_at       TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}

// Close shuts down the database pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) RecordTransition(ctx context.Context, t core.StateTransition) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO security_transitions (session_id, from_state, to_state, ema_value, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		t.SessionID, t.From.String(), t.To.String(), t.EMAValue, t.At)
	return err
}

func (s *PostgresStore) RecordDegraded(ctx context.Context, d core.DegradedSignal) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO degraded_signals (session_id, consecutive_ticks, occurred_at)
		 VALUES ($1, $2, $3)`,
		d.SessionID, d.ConsecutiveTicks, d.At)
	return err
}

func (s *PostgresStore) RecentTransitions(ctx context.Context, sessionID string, limit int) ([]core.StateTransition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, from_state, to_state, ema_value, occurred_at
		 FROM security_transitions
		 WHERE session_id = $1
		 ORDER BY occurred_at DESC
		 LIMIT $2`,
		sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.StateTransition
	for rows.Next() {
		var t core.StateTransition
		var from, to string
		if err := rows.Scan(&t.SessionID, &from, &to, &t.EMAValue, &t.At); err != nil {
			return nil, err
		}
		t.From = parseState(from)
		t.To = parseState(to)
		out = append(out, t)
	}
	return out, rows.Err()
}

func parseState(s string) core.SecurityState {
	switch s {
	case "NORMAL":
		return core.StateNormal
	case "WATCH":
		return core.StateWatch
	case "RESTRICT":
		return core.StateRestrict
	case "REAUTH":
		return core.StateReauth
	default:
		return core.StateNormal
	}
}

// Recorder bridges the event bus to the audit store on its own
// goroutine so slow writes never touch the verification tick.
type Recorder struct {
	store Store
	bus   *events.Bus
	ch    chan *events.Event
}

// NewRecorder subscribes to the audit-relevant event types.
func NewRecorder(store Store, bus *events.Bus) *Recorder {
	return &Recorder{
		store: store,
		bus:   bus,
		ch:    bus.Subscribe(events.TypeTransition, events.TypeDegraded),
	}
}

// Run consumes events until the context is cancelled.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case ev, ok := <-r.ch:
			if !ok {
				return
			}
			r.record(ctx, ev)
		case <-ctx.Done():
			r.bus.Unsubscribe(r.ch)
			return
		}
	}
}

func (r *Recorder) record(ctx context.Context, ev *events.Event) {
	var err error
	switch data := ev.Data.(type) {
	case core.StateTransition:
		err = r.store.RecordTransition(ctx, data)
	case core.DegradedSignal:
		err = r.store.RecordDegraded(ctx, data)
	}
	if err != nil {
		slog.Warn("audit write failed", "event", ev.Type, "session", ev.SessionID, "error", err)
	}
}
