package core

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType identifies a kind of audit record.
type EventType string

const (
	EventRoundInitialized    EventType = "round_initialized"
	EventRoundActivated      EventType = "round_activated"
	EventBidAdmitted         EventType = "bid_admitted"
	EventBidWithdrawn        EventType = "bid_withdrawn"
	EventBidRefunded         EventType = "bid_refunded"
	EventParametersUpdated   EventType = "parameters_updated"
	EventRoundCancelled      EventType = "round_cancelled"
	EventWinnerSelected      EventType = "winner_selected"
	EventHaltEnabled         EventType = "halt_enabled"
	EventHaltDisabled        EventType = "halt_disabled"
	EventRoundPaused         EventType = "round_paused"
	EventRoundResumed        EventType = "round_resumed"
	EventEmergencyWithdrawal EventType = "emergency_withdrawal"
)

// Event is one append-only, timestamped audit record. The event history of a
// round is sufficient to reconstruct its full bid and phase history without
// replaying internal state.
type Event struct {
	Seq     uint64          `json:"seq"`
	RoundID uuid.UUID       `json:"round_id"`
	Type    EventType       `json:"type"`
	Actor   string          `json:"actor,omitempty"`
	Phase   Phase           `json:"phase"`
	Amount  decimal.Decimal `json:"amount"`
	Reason  string          `json:"reason,omitempty"`
	At      time.Time       `json:"at"`
}

// EventSink receives committed audit records. Implementations must not block
// settlement: a sink failure is the sink's problem, never the round's.
type EventSink interface {
	Record(Event)
}

type nopSink struct{}

func (nopSink) Record(Event) {}

// EncodeEvents serializes an event history to CBOR for persistence or
// receipt binding.
func EncodeEvents(events []Event) ([]byte, error) {
	data, err := cbor.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("encode events: %w", err)
	}
	return data, nil
}

// DecodeEvents is the inverse of EncodeEvents.
func DecodeEvents(data []byte) ([]Event, error) {
	var events []Event
	if err := cbor.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return events, nil
}

// newEvent fills the common fields of a staged record. Seq is assigned when
// the operation commits.
func (r *TenderRound) newEvent(t EventType, actor string, amount decimal.Decimal, reason string) Event {
	return Event{
		RoundID: r.id,
		Type:    t,
		Actor:   actor,
		Phase:   r.phase,
		Amount:  amount,
		Reason:  reason,
		At:      r.clock.Now(),
	}
}

// commitEvents appends staged records to the round's history and forwards
// them to the sink. Must be called with the state lock held.
func (r *TenderRound) commitEvents(staged []Event) {
	for _, ev := range staged {
		r.seq++
		ev.Seq = r.seq
		r.events = append(r.events, ev)
		r.sink.Record(ev)
	}
}
