// Package tenderapi defines the JSON wire types of the HTTP surface.
package tenderapi

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opentender-io/opentender/core"
)

// CreateRoundRequest creates and initializes a new tender round. Actor must
// be the factory authority.
type CreateRoundRequest struct {
	Actor            string          `json:"actor"`
	Organization     string          `json:"organization"`
	ContentRef       []byte          `json:"content_ref"` // base64 over the wire
	StartTime        time.Time       `json:"start_time"`
	EndTime          time.Time       `json:"end_time"`
	MinimumBid       decimal.Decimal `json:"minimum_bid"`
	RequiredStake    decimal.Decimal `json:"required_stake"`
	BidWeight        int64           `json:"bid_weight"`
	ReputationWeight int64           `json:"reputation_weight"`
}

// Params converts the request into round initialization parameters.
func (r *CreateRoundRequest) Params() core.RoundParams {
	return core.RoundParams{
		Organization:     r.Organization,
		ContentRef:       r.ContentRef,
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		MinimumBid:       r.MinimumBid,
		RequiredStake:    r.RequiredStake,
		BidWeight:        r.BidWeight,
		ReputationWeight: r.ReputationWeight,
	}
}

// SubmitBidRequest admits a sealed bid with its collateral transfer amount.
type SubmitBidRequest struct {
	Actor      string          `json:"actor"`
	Amount     decimal.Decimal `json:"amount"`
	ContentRef []byte          `json:"content_ref"`
	Collateral decimal.Decimal `json:"collateral"`
}

// ActorRequest covers the operations that only carry a caller identity:
// bid withdrawal, activation, winner selection and sweep retry.
type ActorRequest struct {
	Actor string `json:"actor"`
}

// CancelRequest cancels an active round with an auditable reason.
type CancelRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// UpdateParametersRequest revises the end time and minimum bid of a round
// that has not admitted any bids yet.
type UpdateParametersRequest struct {
	Actor      string          `json:"actor"`
	EndTime    time.Time       `json:"end_time"`
	MinimumBid decimal.Decimal `json:"minimum_bid"`
}

// HaltRequest toggles the factory's emergency halt overlay.
type HaltRequest struct {
	Actor  string `json:"actor"`
	Enable bool   `json:"enable"`
	Reason string `json:"reason"`
}

// PauseRequest toggles the organization's pause overlay.
type PauseRequest struct {
	Actor  string `json:"actor"`
	Pause  bool   `json:"pause"`
	Reason string `json:"reason"`
}

// EmergencyWithdrawRequest sweeps a stuck round's funds to a recovery
// recipient.
type EmergencyWithdrawRequest struct {
	Actor string `json:"actor"`
	To    string `json:"to"`
}

// BidView is the read model of a single bid.
type BidView struct {
	Actor       string          `json:"actor"`
	Amount      decimal.Decimal `json:"amount"`
	Collateral  decimal.Decimal `json:"collateral"`
	Status      core.BidStatus  `json:"status"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// BidViewFromCore converts a bid record. The sealed content reference is
// deliberately not exposed on the read surface.
func BidViewFromCore(b core.Bid) BidView {
	return BidView{
		Actor:       b.Actor,
		Amount:      b.Amount,
		Collateral:  b.Collateral,
		Status:      b.Status,
		SubmittedAt: b.SubmittedAt,
	}
}

// RoundView is the read model of a tender round.
type RoundView struct {
	ID                  uuid.UUID       `json:"id"`
	Organization        string          `json:"organization"`
	Phase               core.Phase      `json:"phase"`
	Winner              string          `json:"winner,omitempty"`
	StartTime           time.Time       `json:"start_time"`
	EndTime             time.Time       `json:"end_time"`
	MinimumBid          decimal.Decimal `json:"minimum_bid"`
	RequiredStake       decimal.Decimal `json:"required_stake"`
	BidWeight           int64           `json:"bid_weight"`
	ReputationWeight    int64           `json:"reputation_weight"`
	ActiveBidderCount   int             `json:"active_bidder_count"`
	TotalCollateralHeld decimal.Decimal `json:"total_collateral_held"`
	Halted              bool            `json:"halted"`
	Paused              bool            `json:"paused"`
}

// RoundViewFromCore snapshots a round for the read surface.
func RoundViewFromCore(r *core.TenderRound) RoundView {
	p := r.Params()
	view := RoundView{
		ID:                  r.ID(),
		Organization:        p.Organization,
		Phase:               r.Phase(),
		StartTime:           p.StartTime,
		EndTime:             p.EndTime,
		MinimumBid:          p.MinimumBid,
		RequiredStake:       p.RequiredStake,
		BidWeight:           p.BidWeight,
		ReputationWeight:    p.ReputationWeight,
		ActiveBidderCount:   r.ActiveBidderCount(),
		TotalCollateralHeld: r.TotalCollateralHeld(),
		Halted:              r.Halted(),
		Paused:              r.Paused(),
	}
	if winner, ok := r.Winner(); ok {
		view.Winner = winner
	}
	return view
}

// EventView is the read model of one audit record.
type EventView struct {
	Seq     uint64          `json:"seq"`
	RoundID uuid.UUID       `json:"round_id"`
	Type    core.EventType  `json:"type"`
	Actor   string          `json:"actor,omitempty"`
	Phase   core.Phase      `json:"phase"`
	Amount  decimal.Decimal `json:"amount"`
	Reason  string          `json:"reason,omitempty"`
	At      time.Time       `json:"at"`
}

// EventViewsFromCore converts an event history.
func EventViewsFromCore(events []core.Event) []EventView {
	out := make([]EventView, 0, len(events))
	for _, ev := range events {
		out = append(out, EventView{
			Seq:     ev.Seq,
			RoundID: ev.RoundID,
			Type:    ev.Type,
			Actor:   ev.Actor,
			Phase:   ev.Phase,
			Amount:  ev.Amount,
			Reason:  ev.Reason,
			At:      ev.At,
		})
	}
	return out
}

// ErrorResponse is the uniform error body. Kind carries the stable error
// class name so clients can branch without parsing messages.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// ReceiptResponse carries a signed settlement receipt, base64-encoded by
// encoding/json's []byte handling.
type ReceiptResponse struct {
	RoundID uuid.UUID `json:"round_id"`
	Receipt []byte    `json:"receipt"`
}
