// Package journal persists round audit records. Sinks receive events after
// the round has committed them, so a journal failure can never veto a state
// transition; the Postgres sink logs write errors and moves on.
package journal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opentender-io/opentender/core"
)

var log = logging.Logger("journal")

// writeTimeout bounds each journal insert so a slow database cannot stall
// the recording goroutine indefinitely.
const writeTimeout = 5 * time.Second

// MemorySink keeps the journal in process memory. It backs tests and
// single-node deployments that do not need durability.
type MemorySink struct {
	mu     sync.Mutex
	events []core.Event
}

// NewMemorySink creates an empty in-memory journal.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Record appends the event.
func (s *MemorySink) Record(ev core.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// Events returns a copy of everything recorded so far.
func (s *MemorySink) Events() []core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Event(nil), s.events...)
}

// EventsForRound returns the recorded history of one round in sequence
// order. Records arrive in commit order per round, so no sort is needed.
func (s *MemorySink) EventsForRound(_ context.Context, roundID uuid.UUID) ([]core.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Event
	for _, ev := range s.events {
		if ev.RoundID == roundID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// PostgresSink journals events to the round_events table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink wraps an existing connection pool. The schema is managed
// by the daemon's migrations, not by the sink.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// Record inserts the event. Inserts are idempotent on (round_id, seq) so a
// replayed history never duplicates rows.
func (s *PostgresSink) Record(ev core.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO round_events (round_id, seq, event_type, actor, phase, amount, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (round_id, seq) DO NOTHING`,
		ev.RoundID, ev.Seq, string(ev.Type), ev.Actor, string(ev.Phase), ev.Amount, ev.Reason, ev.At,
	)
	if err != nil {
		log.Errorw("journal write failed", "round", ev.RoundID, "seq", ev.Seq, "err", err)
	}
}

// EventsForRound loads one round's journaled history in sequence order.
func (s *PostgresSink) EventsForRound(ctx context.Context, roundID uuid.UUID) ([]core.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seq, event_type, actor, phase, amount, reason, occurred_at
		FROM round_events
		WHERE round_id = $1
		ORDER BY seq`,
		roundID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Event
	for rows.Next() {
		ev := core.Event{RoundID: roundID}
		var eventType, phase string
		if err := rows.Scan(&ev.Seq, &eventType, &ev.Actor, &phase, &ev.Amount, &ev.Reason, &ev.At); err != nil {
			return nil, err
		}
		ev.Type = core.EventType(eventType)
		ev.Phase = core.Phase(phase)
		out = append(out, ev)
	}
	return out, rows.Err()
}
