package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// ToggleHalt flips the emergency overlay. Only the factory authority may
// toggle it, a completed round cannot be halted, and every toggle records the
// given reason. While the flag is set, every ordinary mutating operation on
// the round is rejected with ErrHalted.
func (r *TenderRound) ToggleHalt(caller string, enable bool, reason string) error {
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
	if caller != r.factory {
		return fmt.Errorf("halt toggle requires the factory authority: %w", ErrUnauthorized)
	}
	if !validContentRef([]byte(reason)) {
		return fmt.Errorf("reason length %d: %w", len(reason), ErrInvalidContentRef)
	}
	if r.halted == enable {
		return fmt.Errorf("halt flag already %v: %w", enable, ErrUnchangedParams)
	}
	if enable && r.phase == PhaseClosed {
		return fmt.Errorf("halt a settled round: %w", ErrWrongPhase)
	}

	r.halted = enable
	t := EventHaltEnabled
	if !enable {
		t = EventHaltDisabled
	}
	r.commitEvents([]Event{r.newEvent(t, caller, decimal.Zero, reason)})
	return nil
}

// Pause sets the round's independent pause overlay. Pause is the
// organization's operational brake, orthogonal to the factory's emergency
// halt; both must be clear for ordinary mutations to proceed.
func (r *TenderRound) Pause(caller, reason string) error {
	return r.setPaused(caller, reason, true)
}

// Resume clears the pause overlay.
func (r *TenderRound) Resume(caller, reason string) error {
	return r.setPaused(caller, reason, false)
}

func (r *TenderRound) setPaused(caller, reason string, paused bool) error {
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
	if caller != r.organization {
		return fmt.Errorf("pause toggle requires the organization: %w", ErrUnauthorized)
	}
	if !validContentRef([]byte(reason)) {
		return fmt.Errorf("reason length %d: %w", len(reason), ErrInvalidContentRef)
	}
	if r.paused == paused {
		return fmt.Errorf("pause flag already %v: %w", paused, ErrUnchangedParams)
	}
	if paused && r.phase.Terminal() {
		return fmt.Errorf("pause from %s: %w", r.phase, ErrWrongPhase)
	}

	r.paused = paused
	t := EventRoundPaused
	if !paused {
		t = EventRoundResumed
	}
	r.commitEvents([]Event{r.newEvent(t, caller, decimal.Zero, reason)})
	return nil
}

// EmergencyWithdraw sweeps the entire remaining treasury balance, not just
// the tracked collateral, to the given recipient. It is the last-resort
// escape valve for a stuck round: factory-only, and legal only while the
// round is both halted and Cancelled.
func (r *TenderRound) EmergencyWithdraw(ctx context.Context, caller, to string) error {
	done, err := r.beginOp()
	if err != nil {
		return err
	}
	defer done()

	r.state.Lock()
	if err := r.requireInitialized(); err != nil {
		r.state.Unlock()
		return err
	}
	if caller != r.factory {
		r.state.Unlock()
		return fmt.Errorf("emergency withdraw requires the factory authority: %w", ErrUnauthorized)
	}
	if to == "" {
		r.state.Unlock()
		return fmt.Errorf("recipient: %w", ErrInvalidIdentity)
	}
	if !r.halted {
		r.state.Unlock()
		return fmt.Errorf("emergency withdraw: %w", ErrNotHalted)
	}
	if r.phase != PhaseCancelled {
		r.state.Unlock()
		return fmt.Errorf("emergency withdraw from %s: %w", r.phase, ErrWrongPhase)
	}
	heldBefore := r.totalCollateralHeld
	r.state.Unlock()

	balance, err := r.treasury.Balance(ctx)
	if err != nil {
		return fmt.Errorf("treasury balance: %w", err)
	}
	if balance.Sign() <= 0 {
		return ErrNothingToDo
	}

	r.state.Lock()
	r.totalCollateralHeld = decimal.Zero
	ev := r.newEvent(EventEmergencyWithdrawal, to, balance, "")
	r.state.Unlock()

	if err := r.treasury.Transfer(ctx, to, balance); err != nil {
		r.state.Lock()
		r.totalCollateralHeld = heldBefore
		r.state.Unlock()
		return fmt.Errorf("sweep %s to %s: %v: %w", balance, to, err, ErrTransferFailed)
	}

	r.state.Lock()
	r.commitEvents([]Event{ev})
	r.state.Unlock()
	return nil
}
