package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TenderRound is the per-round auction/escrow state machine. One instance
// exists per tender; instances share no mutable state.
//
// Every mutating operation runs as a single atomic unit: it acquires the
// operation gate, mutates ledger and phase state first, and performs external
// calls (transfers, registry callbacks) last. A nested call into the same
// instance while an operation is in flight is rejected with
// ErrOperationInFlight rather than deadlocking, which is what blocks
// re-entrant double-spends through the treasury.
type TenderRound struct {
	id       uuid.UUID
	factory  string
	registry Registry
	treasury Treasury
	clock    Clock
	sink     EventSink

	// op is the re-entrancy gate; state guards field access so that
	// queries remain safe while an operation waits on an external call.
	op    sync.Mutex
	state sync.RWMutex

	initialized      bool
	organization     string
	contentRef       []byte
	startTime        time.Time
	endTime          time.Time
	minimumBid       decimal.Decimal
	requiredStake    decimal.Decimal
	bidWeight        int64
	reputationWeight int64

	phase           Phase
	winner          string
	hasWinner       bool
	outcomeReported bool

	halted bool
	paused bool

	bids                map[string]*Bid
	admissionOrder      []string
	activeBidderCount   int
	totalCollateralHeld decimal.Decimal

	events []Event
	seq    uint64
}

// Option configures a TenderRound at construction.
type Option func(*TenderRound)

// WithClock replaces the wall clock, enabling deterministic timing in tests.
func WithClock(c Clock) Option {
	return func(r *TenderRound) { r.clock = c }
}

// WithEventSink forwards committed audit records to an external sink in
// addition to the round's own history.
func WithEventSink(s EventSink) Option {
	return func(r *TenderRound) { r.sink = s }
}

// NewTenderRound constructs an empty round owned by the given factory
// authority. The round holds no parameters until Initialize populates it.
func NewTenderRound(id uuid.UUID, factory string, registry Registry, treasury Treasury, opts ...Option) *TenderRound {
	r := &TenderRound{
		id:                  id,
		factory:             factory,
		registry:            registry,
		treasury:            treasury,
		clock:               defaultClock,
		sink:                nopSink{},
		phase:               PhaseCreated,
		bids:                make(map[string]*Bid),
		totalCollateralHeld: decimal.Zero,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// beginOp acquires the re-entrancy gate or rejects the call.
func (r *TenderRound) beginOp() (func(), error) {
	if !r.op.TryLock() {
		return nil, ErrOperationInFlight
	}
	return r.op.Unlock, nil
}

// gate enforces the halt and pause overlays. Both must be clear for any
// ordinary mutating operation. Must be called with the state lock held.
func (r *TenderRound) gate() error {
	if r.halted {
		return ErrHalted
	}
	if r.paused {
		return ErrPaused
	}
	return nil
}

func (r *TenderRound) requireInitialized() error {
	if !r.initialized {
		return ErrNotInitialized
	}
	return nil
}

// validateParams checks every TenderRound invariant that Initialize and
// UpdateParameters must hold.
func validateParams(p RoundParams) error {
	if p.Organization == "" {
		return fmt.Errorf("organization: %w", ErrInvalidIdentity)
	}
	if !validContentRef(p.ContentRef) {
		return fmt.Errorf("content ref length %d: %w", len(p.ContentRef), ErrInvalidContentRef)
	}
	if p.StartTime.IsZero() || !p.EndTime.After(p.StartTime.Add(MinDuration)) {
		return fmt.Errorf("window [%s, %s): %w", p.StartTime, p.EndTime, ErrInvalidDuration)
	}
	if p.MinimumBid.Sign() <= 0 {
		return fmt.Errorf("minimum bid %s: %w", p.MinimumBid, ErrInvalidMinimumBid)
	}
	if p.MinimumBid.GreaterThan(maxMinimumBid) {
		return fmt.Errorf("minimum bid %s: %w", p.MinimumBid, ErrArithmeticBound)
	}
	if p.RequiredStake.Sign() <= 0 {
		return fmt.Errorf("required stake %s: %w", p.RequiredStake, ErrInvalidStake)
	}
	if p.BidWeight < 0 || p.ReputationWeight < 0 || p.BidWeight+p.ReputationWeight != 100 {
		return fmt.Errorf("bidWeight=%d reputationWeight=%d: %w", p.BidWeight, p.ReputationWeight, ErrInvalidWeights)
	}
	return nil
}

// Initialize populates the round exactly once. Only the factory authority may
// call it; the phase stays Created until Activate.
func (r *TenderRound) Initialize(caller string, p RoundParams) error {
	done, err := r.beginOp()
	if err != nil {
		return err
	}
	defer done()

	r.state.Lock()
	defer r.state.Unlock()

	if r.initialized {
		return ErrAlreadyInitialized
	}
	if err := r.gate(); err != nil {
		return err
	}
	if caller != r.factory {
		return fmt.Errorf("initialize requires the factory authority: %w", ErrUnauthorized)
	}
	if err := validateParams(p); err != nil {
		return err
	}

	r.organization = p.Organization
	r.contentRef = append([]byte(nil), p.ContentRef...)
	r.startTime = p.StartTime
	r.endTime = p.EndTime
	r.minimumBid = p.MinimumBid
	r.requiredStake = p.RequiredStake
	r.bidWeight = p.BidWeight
	r.reputationWeight = p.ReputationWeight
	r.initialized = true

	r.commitEvents([]Event{r.newEvent(EventRoundInitialized, p.Organization, p.MinimumBid, "")})
	return nil
}

// Activate moves the round from Created to Active. Legal only within the
// round's time window and only for the factory authority.
func (r *TenderRound) Activate(caller string) error {
	done, err := r.beginOp()
	if err != nil {
		return err
	}
	defer done()

	r.state.Lock()
	defer r.state.Unlock()

	if err := r.requireInitialized(); err != nil {
		return err
	}
	if err := r.gate(); err != nil {
		return err
	}
	if caller != r.factory {
		return fmt.Errorf("activate requires the factory authority: %w", ErrUnauthorized)
	}
	if r.phase != PhaseCreated {
		return fmt.Errorf("activate from %s: %w", r.phase, ErrWrongPhase)
	}
	now := r.clock.Now()
	if now.Before(r.startTime) || !now.Before(r.endTime) {
		return fmt.Errorf("activate at %s outside [%s, %s): %w", now, r.startTime, r.endTime, ErrOutsideWindow)
	}

	r.phase = PhaseActive
	r.commitEvents([]Event{r.newEvent(EventRoundActivated, caller, decimal.Zero, "")})
	return nil
}

// UpdateParameters changes the end time and minimum bid of a round that has
// not yet admitted any bids. Both values must actually change, and every
// duration and bound invariant is re-validated.
func (r *TenderRound) UpdateParameters(caller string, newEndTime time.Time, newMinimumBid decimal.Decimal) error {
	done, err := r.beginOp()
	if err != nil {
		return err
	}
	defer done()

	r.state.Lock()
	defer r.state.Unlock()

	if err := r.requireInitialized(); err != nil {
		return err
	}
	if err := r.gate(); err != nil {
		return err
	}
	if caller != r.organization {
		return fmt.Errorf("update requires the organization: %w", ErrUnauthorized)
	}
	if r.phase != PhaseCreated && r.phase != PhaseActive {
		return fmt.Errorf("update from %s: %w", r.phase, ErrWrongPhase)
	}
	if !r.clock.Now().Before(r.endTime) {
		return fmt.Errorf("update after end time: %w", ErrOutsideWindow)
	}
	if r.activeBidderCount != 0 {
		return fmt.Errorf("update with %d admitted bids: %w", r.activeBidderCount, ErrWrongPhase)
	}
	if newEndTime.Equal(r.endTime) || newMinimumBid.Equal(r.minimumBid) {
		return ErrUnchangedParams
	}
	if !newEndTime.After(r.startTime.Add(MinDuration)) {
		return fmt.Errorf("new end time %s: %w", newEndTime, ErrInvalidDuration)
	}
	if newMinimumBid.Sign() <= 0 {
		return fmt.Errorf("new minimum bid %s: %w", newMinimumBid, ErrInvalidMinimumBid)
	}
	if newMinimumBid.GreaterThan(maxMinimumBid) {
		return fmt.Errorf("new minimum bid %s: %w", newMinimumBid, ErrArithmeticBound)
	}

	r.endTime = newEndTime
	r.minimumBid = newMinimumBid
	r.commitEvents([]Event{r.newEvent(EventParametersUpdated, caller, newMinimumBid, newEndTime.UTC().Format(time.RFC3339))})
	return nil
}

// ID returns the round identifier.
func (r *TenderRound) ID() uuid.UUID { return r.id }

// Factory returns the external authority identity supplied at construction.
func (r *TenderRound) Factory() string { return r.factory }

// Organization returns the actor that owns the round.
func (r *TenderRound) Organization() string {
	r.state.RLock()
	defer r.state.RUnlock()
	return r.organization
}

// Phase returns the current lifecycle phase.
func (r *TenderRound) Phase() Phase {
	r.state.RLock()
	defer r.state.RUnlock()
	return r.phase
}

// Winner returns the selected winner, if settlement completed.
func (r *TenderRound) Winner() (string, bool) {
	r.state.RLock()
	defer r.state.RUnlock()
	return r.winner, r.hasWinner
}

// ActiveBidderCount returns the number of bids currently in Active status.
func (r *TenderRound) ActiveBidderCount() int {
	r.state.RLock()
	defer r.state.RUnlock()
	return r.activeBidderCount
}

// TotalCollateralHeld returns the tracked sum of collateral across Active bids.
func (r *TenderRound) TotalCollateralHeld() decimal.Decimal {
	r.state.RLock()
	defer r.state.RUnlock()
	return r.totalCollateralHeld
}

// Halted reports the emergency overlay flag.
func (r *TenderRound) Halted() bool {
	r.state.RLock()
	defer r.state.RUnlock()
	return r.halted
}

// Paused reports the pause overlay flag.
func (r *TenderRound) Paused() bool {
	r.state.RLock()
	defer r.state.RUnlock()
	return r.paused
}

// Initialized reports whether the one-shot initialization latch is set.
func (r *TenderRound) Initialized() bool {
	r.state.RLock()
	defer r.state.RUnlock()
	return r.initialized
}

// Params returns a snapshot of the round's current parameters.
func (r *TenderRound) Params() RoundParams {
	r.state.RLock()
	defer r.state.RUnlock()
	return RoundParams{
		Organization:     r.organization,
		ContentRef:       append([]byte(nil), r.contentRef...),
		StartTime:        r.startTime,
		EndTime:          r.endTime,
		MinimumBid:       r.minimumBid,
		RequiredStake:    r.requiredStake,
		BidWeight:        r.bidWeight,
		ReputationWeight: r.reputationWeight,
	}
}

// BidOf returns a copy of the actor's bid record, if one exists.
func (r *TenderRound) BidOf(actor string) (Bid, bool) {
	r.state.RLock()
	defer r.state.RUnlock()
	bid, ok := r.bids[actor]
	if !ok {
		return Bid{}, false
	}
	out := *bid
	out.ContentRef = append([]byte(nil), bid.ContentRef...)
	return out, true
}

// AdmissionOrder returns the append-only submission order of actors.
func (r *TenderRound) AdmissionOrder() []string {
	r.state.RLock()
	defer r.state.RUnlock()
	return append([]string(nil), r.admissionOrder...)
}

// Events returns a copy of the round's audit history.
func (r *TenderRound) Events() []Event {
	r.state.RLock()
	defer r.state.RUnlock()
	return append([]Event(nil), r.events...)
}
