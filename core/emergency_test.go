package core

import (
	"context"
	"errors"
	"testing"

	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

func TestHalt_BlocksAllMutatingOperations(t *testing.T) {
	ctx := context.Background()
	f := newActiveFixture(t)
	f.admit(t, "alice", 120, 80)
	f.registry.Enroll("bob", 70)
	f.treasury.Deposit(testStake)

	check.Nil(t, f.round.ToggleHalt(testFactory, true, "suspicious activity"))
	check.True(t, f.round.Halted())

	err := f.round.SubmitBid(ctx, "bob", decimal.NewFromInt(130), []byte("ref"), testStake)
	check.True(t, errors.Is(err, ErrHalted))

	err = f.round.WithdrawBid(ctx, "alice")
	check.True(t, errors.Is(err, ErrHalted))

	err = f.round.Cancel(ctx, testOrg, "cannot cancel while halted")
	check.True(t, errors.Is(err, ErrHalted))

	f.clock.Set(testEnd)
	err = f.round.SelectWinner(ctx, testOrg)
	check.True(t, errors.Is(err, ErrHalted))

	// Emergency withdraw still fails: the round is not Cancelled.
	err = f.round.EmergencyWithdraw(ctx, testFactory, "vault")
	check.True(t, errors.Is(err, ErrWrongPhase))

	// Clearing the halt restores normal operation.
	check.Nil(t, f.round.ToggleHalt(testFactory, false, "investigation complete"))
	check.Nil(t, f.round.WithdrawBid(ctx, "alice"))
	f.checkLedgerInvariants(t)
}

func TestToggleHalt_Rules(t *testing.T) {
	t.Run("factory only", func(t *testing.T) {
		f := newActiveFixture(t)
		err := f.round.ToggleHalt(testOrg, true, "nope")
		check.True(t, errors.Is(err, ErrUnauthorized))
	})

	t.Run("no redundant toggle", func(t *testing.T) {
		f := newActiveFixture(t)
		check.Nil(t, f.round.ToggleHalt(testFactory, true, "first"))
		err := f.round.ToggleHalt(testFactory, true, "again")
		check.True(t, errors.Is(err, ErrUnchangedParams))
	})

	t.Run("settled round cannot be halted", func(t *testing.T) {
		f := newActiveFixture(t)
		admitScenarioBids(t, f)
		f.clock.Set(testEnd)
		check.Nil(t, f.round.SelectWinner(context.Background(), testOrg))

		err := f.round.ToggleHalt(testFactory, true, "too late")
		check.True(t, errors.Is(err, ErrWrongPhase))
	})

	t.Run("reason bounds", func(t *testing.T) {
		f := newActiveFixture(t)
		err := f.round.ToggleHalt(testFactory, true, "")
		check.True(t, errors.Is(err, ErrInvalidContentRef))
	})
}

func TestPause_IsOrthogonalToHalt(t *testing.T) {
	ctx := context.Background()
	f := newActiveFixture(t)
	f.registry.Enroll("alice", 80)
	f.treasury.Deposit(testStake)

	check.Nil(t, f.round.Pause(testOrg, "maintenance"))
	err := f.round.SubmitBid(ctx, "alice", decimal.NewFromInt(120), []byte("ref"), testStake)
	check.True(t, errors.Is(err, ErrPaused))

	// The factory can still halt a paused round, and clearing only the
	// pause leaves the halt in force.
	check.Nil(t, f.round.ToggleHalt(testFactory, true, "escalated"))
	check.Nil(t, f.round.Resume(testOrg, "maintenance done"))
	err = f.round.SubmitBid(ctx, "alice", decimal.NewFromInt(120), []byte("ref"), testStake)
	check.True(t, errors.Is(err, ErrHalted))

	check.Nil(t, f.round.ToggleHalt(testFactory, false, "resolved"))
	check.Nil(t, f.round.SubmitBid(ctx, "alice", decimal.NewFromInt(120), []byte("ref"), testStake))
}

func TestPause_OrganizationOnly(t *testing.T) {
	f := newActiveFixture(t)
	err := f.round.Pause(testFactory, "nope")
	check.True(t, errors.Is(err, ErrUnauthorized))
}

func TestEmergencyWithdraw_SweepsEntireBalance(t *testing.T) {
	ctx := context.Background()
	f := newActiveFixture(t)
	admitScenarioBids(t, f)

	// Break every refund so cancellation leaves funds stuck.
	for _, actor := range f.round.AdmissionOrder() {
		f.treasury.FailFor[actor] = errors.New("recipient rejected funds")
	}
	err := f.round.Cancel(ctx, testOrg, "abandoning round")
	check.True(t, errors.Is(err, ErrTransferFailed))
	check.Equal(t, PhaseCancelled, f.round.Phase())

	// Stray funds beyond the tracked collateral are swept too.
	f.treasury.Deposit(decimal.NewFromInt(17))

	// Preconditions: factory only, and only while halted.
	err = f.round.EmergencyWithdraw(ctx, testOrg, "vault")
	check.True(t, errors.Is(err, ErrUnauthorized))
	err = f.round.EmergencyWithdraw(ctx, testFactory, "vault")
	check.True(t, errors.Is(err, ErrNotHalted))

	check.Nil(t, f.round.ToggleHalt(testFactory, true, "stuck refunds"))
	check.Nil(t, f.round.EmergencyWithdraw(ctx, testFactory, "vault"))

	check.True(t, f.round.TotalCollateralHeld().IsZero())
	last := f.treasury.Transfers[len(f.treasury.Transfers)-1]
	check.Equal(t, "vault", last.To)
	check.True(t, last.Amount.Equal(decimal.NewFromInt(5*250+17)))

	events := f.round.Events()
	check.Equal(t, EventEmergencyWithdrawal, events[len(events)-1].Type)
}
