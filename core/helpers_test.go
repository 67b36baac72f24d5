package core

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	testStart = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	testEnd   = testStart.Add(MinDuration + time.Second)
	testStake = decimal.NewFromInt(250)
)

const (
	testFactory = "factory-1"
	testOrg     = "org-1"
)

func testParams() RoundParams {
	return RoundParams{
		Organization:     testOrg,
		ContentRef:       []byte("ref://tender-docs"),
		StartTime:        testStart,
		EndTime:          testEnd,
		MinimumBid:       decimal.NewFromInt(100),
		RequiredStake:    testStake,
		BidWeight:        60,
		ReputationWeight: 40,
	}
}

type fixture struct {
	round    *TenderRound
	registry *FakeRegistry
	treasury *FakeTreasury
	clock    *ManualClock
}

// newFixture builds an uninitialized round with fake collaborators and the
// clock frozen at the window start.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	registry := NewFakeRegistry()
	treasury := NewFakeTreasury(decimal.Zero)
	clock := NewManualClock(testStart)
	opts = append([]Option{WithClock(clock)}, opts...)
	round := NewTenderRound(uuid.New(), testFactory, registry, treasury, opts...)
	return &fixture{round: round, registry: registry, treasury: treasury, clock: clock}
}

// newActiveFixture builds a round that is initialized and activated.
func newActiveFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	if err := f.round.Initialize(testFactory, testParams()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := f.round.Activate(testFactory); err != nil {
		t.Fatalf("activate: %v", err)
	}
	return f
}

// admit enrolls the actor with the given reputation, deposits the stake and
// submits a bid at the given price.
func (f *fixture) admit(t *testing.T, actor string, amount, reputation int64) {
	t.Helper()
	f.registry.Enroll(actor, reputation)
	f.treasury.Deposit(testStake)
	if err := f.round.SubmitBid(context.Background(), actor, decimal.NewFromInt(amount), []byte("ref://bid-"+actor), testStake); err != nil {
		t.Fatalf("submit bid for %s: %v", actor, err)
	}
}

// checkLedgerInvariants asserts the collateral-conservation and active-count
// invariants that must hold at all times.
func (f *fixture) checkLedgerInvariants(t *testing.T) {
	t.Helper()
	sum := decimal.Zero
	active := 0
	for _, actor := range f.round.AdmissionOrder() {
		bid, ok := f.round.BidOf(actor)
		if !ok {
			t.Fatalf("admitted actor %s has no bid record", actor)
		}
		if bid.Status == BidStatusActive {
			active++
			sum = sum.Add(bid.Collateral)
		}
	}
	if !f.round.TotalCollateralHeld().Equal(sum) {
		t.Errorf("totalCollateralHeld %s != sum of active collateral %s", f.round.TotalCollateralHeld(), sum)
	}
	if f.round.ActiveBidderCount() != active {
		t.Errorf("activeBidderCount %d != active records %d", f.round.ActiveBidderCount(), active)
	}
	balance, err := f.treasury.Balance(context.Background())
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.LessThan(f.round.TotalCollateralHeld()) {
		t.Errorf("treasury balance %s below tracked collateral %s", balance, f.round.TotalCollateralHeld())
	}
}

// eventTypes extracts the ordered event type sequence of the round history.
func eventTypes(events []Event) []EventType {
	out := make([]EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}
