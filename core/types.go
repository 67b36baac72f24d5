package core

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Phase is the lifecycle state of a tender round.
type Phase string

const (
	PhaseCreated   Phase = "Created"
	PhaseActive    Phase = "Active"
	PhaseClosed    Phase = "Closed"
	PhaseCancelled Phase = "Cancelled"
)

// Terminal reports whether no further phase transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseClosed || p == PhaseCancelled
}

// BidStatus is the lifecycle state of a single bid. BidStatusNone is the
// implicit state of an actor that has never submitted; BidStatusActive is the
// only non-terminal state.
type BidStatus string

const (
	BidStatusNone      BidStatus = "None"
	BidStatusActive    BidStatus = "Active"
	BidStatusWithdrawn BidStatus = "Withdrawn"
	BidStatusRefunded  BidStatus = "Refunded"
)

const (
	// MinDuration is the minimum distance between a round's start and end times.
	MinDuration = 7 * 24 * time.Hour

	// MinBidders is the minimum number of active bids required for settlement.
	MinBidders = 5

	// MaxScan caps the admission list length. The cap is enforced at admission
	// time so that no later operation ever iterates an unbounded bidder set.
	MaxScan = 100

	// MinContentRefLen and MaxContentRefLen bound opaque content references
	// and reason strings.
	MinContentRefLen = 1
	MaxContentRefLen = 100
)

// maxMinimumBid bounds the minimum bid so that minimumBid*100 always fits the
// int64 scoring arithmetic.
var maxMinimumBid = decimal.NewFromInt(math.MaxInt64 / 100)

// Bid is one actor's priced offer backed by refundable collateral.
type Bid struct {
	Actor       string          `json:"actor"`
	Amount      decimal.Decimal `json:"amount"`
	Collateral  decimal.Decimal `json:"collateral"`
	ContentRef  []byte          `json:"content_ref"`
	Status      BidStatus       `json:"status"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// RoundParams carries the one-shot initialization parameters of a round.
type RoundParams struct {
	Organization     string
	ContentRef       []byte
	StartTime        time.Time
	EndTime          time.Time
	MinimumBid       decimal.Decimal
	RequiredStake    decimal.Decimal
	BidWeight        int64
	ReputationWeight int64
}

// Profile is the externally tracked per-actor record used during scoring.
type Profile struct {
	MetadataRef      string
	Reputation       int64
	CollateralOnFile decimal.Decimal
}

// Registry is the boundary to the external registry/factory collaborator.
// The engine never owns this state; it only calls through the interface.
type Registry interface {
	// HasBidderRole reports whether the actor is eligible to submit bids.
	HasBidderRole(ctx context.Context, actor string) (bool, error)

	// GetProfile returns the actor's externally tracked profile. Reputation
	// is in [0,100].
	GetProfile(ctx context.Context, actor string) (Profile, error)

	// ReportOutcome is the one-way analytics callback, invoked once per
	// settled round.
	ReportOutcome(ctx context.Context, winner string, amount decimal.Decimal, success bool) error
}

// Treasury is the value-custody boundary. The engine's collateral accounting
// must never exceed the treasury's actual held balance.
type Treasury interface {
	// Balance returns the funds currently held for this round.
	Balance(ctx context.Context) (decimal.Decimal, error)

	// Transfer releases funds to the recipient. A returned error means no
	// value moved.
	Transfer(ctx context.Context, to string, amount decimal.Decimal) error
}

// Clock provides the current time. This interface enables dependency
// injection for deterministic testing of timing windows.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// defaultClock is the wall clock used in production.
var defaultClock Clock = systemClock{}

// validContentRef reports whether an opaque reference or reason is within the
// [MinContentRefLen, MaxContentRefLen] byte bounds.
func validContentRef(b []byte) bool {
	return len(b) >= MinContentRefLen && len(b) <= MaxContentRefLen
}
