package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// SelectWinner settles the round: it scans the admission list in submission
// order, scores every Active bid against its actor's externally tracked
// reputation, and commits the strictly-highest scorer as the winner. Ties go
// to the earlier submission.
//
// The winner and the Closed phase commit before any external call. The refund
// sweep then returns every Active bid's collateral, the winner included, and
// the analytics callback fires once the sweep completes. A failed sweep
// leaves the round Closed with the winner set and is finished via RetrySweep.
func (r *TenderRound) SelectWinner(ctx context.Context, caller string) error {
	done, err := r.beginOp()
	if err != nil {
		return err
	}
	defer done()

	r.state.Lock()
	if err := r.selectChecks(caller); err != nil {
		r.state.Unlock()
		return err
	}
	order := append([]string(nil), r.admissionOrder...)
	minimumBid := r.minimumBid
	bidWeight, reputationWeight := r.bidWeight, r.reputationWeight
	type candidate struct {
		amount decimal.Decimal
		active bool
	}
	bids := make(map[string]candidate, len(r.bids))
	for actor, bid := range r.bids {
		bids[actor] = candidate{amount: bid.Amount, active: bid.Status == BidStatusActive}
	}
	r.state.Unlock()

	// Scoring scan: external reads only, no state mutated yet. Any profile
	// or scoring failure aborts before the round commits anything, keeping
	// the outcome deterministic.
	var (
		winner       string
		winnerAmount decimal.Decimal
		bestScore    int64 = -1
		found        bool
	)
	for _, actor := range order {
		bid := bids[actor]
		if !bid.active {
			continue
		}
		profile, err := r.registry.GetProfile(ctx, actor)
		if err != nil {
			return fmt.Errorf("profile lookup for %s: %w", actor, err)
		}
		score, err := Score(minimumBid, bid.amount, profile.Reputation, bidWeight, reputationWeight)
		if err != nil {
			return fmt.Errorf("score bid by %s: %w", actor, err)
		}
		// Strictly greater: the first-seen bid wins ties.
		if score > bestScore {
			bestScore = score
			winner = actor
			winnerAmount = bid.amount
			found = true
		}
	}
	if !found {
		return ErrNoValidWinner
	}

	r.state.Lock()
	r.winner = winner
	r.hasWinner = true
	r.phase = PhaseClosed
	r.commitEvents([]Event{r.newEvent(EventWinnerSelected, winner, winnerAmount, fmt.Sprintf("score=%d", bestScore))})
	r.state.Unlock()

	if err := r.refundSweep(ctx); err != nil {
		return err
	}
	return r.reportOutcome(ctx)
}

// selectChecks validates the settlement preconditions. Must be called with
// the state lock held.
func (r *TenderRound) selectChecks(caller string) error {
	if err := r.requireInitialized(); err != nil {
		return err
	}
	if err := r.gate(); err != nil {
		return err
	}
	if caller != r.organization {
		return fmt.Errorf("settlement requires the organization: %w", ErrUnauthorized)
	}
	if r.phase != PhaseActive {
		return fmt.Errorf("settle from %s: %w", r.phase, ErrWrongPhase)
	}
	if r.clock.Now().Before(r.endTime) {
		return fmt.Errorf("settle before end time %s: %w", r.endTime, ErrOutsideWindow)
	}
	if r.hasWinner {
		return ErrWinnerSet
	}
	if r.activeBidderCount < MinBidders {
		return fmt.Errorf("%d active bidders, need %d: %w", r.activeBidderCount, MinBidders, ErrInsufficientBidders)
	}
	if len(r.admissionOrder) > MaxScan {
		return fmt.Errorf("admission list at %d entries: %w", len(r.admissionOrder), ErrScanBound)
	}
	return nil
}

// Cancel aborts an Active round before its end time and refunds every active
// bidder. The Cancelled phase commits before the sweep runs; a failed sweep
// is finished via RetrySweep.
func (r *TenderRound) Cancel(ctx context.Context, caller, reason string) error {
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
	if err := r.gate(); err != nil {
		r.state.Unlock()
		return err
	}
	if caller != r.organization {
		r.state.Unlock()
		return fmt.Errorf("cancel requires the organization: %w", ErrUnauthorized)
	}
	if r.phase != PhaseActive {
		r.state.Unlock()
		return fmt.Errorf("cancel from %s: %w", r.phase, ErrWrongPhase)
	}
	if !r.clock.Now().Before(r.endTime) {
		r.state.Unlock()
		return fmt.Errorf("cancel after end time: %w", ErrOutsideWindow)
	}
	if !validContentRef([]byte(reason)) {
		r.state.Unlock()
		return fmt.Errorf("reason length %d: %w", len(reason), ErrInvalidContentRef)
	}

	r.phase = PhaseCancelled
	r.commitEvents([]Event{r.newEvent(EventRoundCancelled, caller, decimal.Zero, reason)})
	r.state.Unlock()

	return r.refundSweep(ctx)
}

// RetrySweep finishes an interrupted refund sweep on a settled or cancelled
// round. Bidders already refunded are skipped, so retrying can never pay
// twice. When a Closed round's sweep finally completes, the deferred outcome
// report fires.
func (r *TenderRound) RetrySweep(ctx context.Context, caller string) error {
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
	if err := r.gate(); err != nil {
		r.state.Unlock()
		return err
	}
	if caller != r.organization && caller != r.factory {
		r.state.Unlock()
		return fmt.Errorf("sweep retry by %s: %w", caller, ErrUnauthorized)
	}
	if !r.phase.Terminal() {
		r.state.Unlock()
		return fmt.Errorf("sweep retry from %s: %w", r.phase, ErrWrongPhase)
	}
	if r.totalCollateralHeld.Sign() <= 0 {
		r.state.Unlock()
		return ErrNothingToDo
	}
	closed := r.phase == PhaseClosed
	r.state.Unlock()

	if err := r.refundSweep(ctx); err != nil {
		return err
	}
	if closed {
		return r.reportOutcome(ctx)
	}
	return nil
}

// refundSweep returns collateral to every bid still in Active status, in
// admission order. For each bid the ledger is mutated first and the transfer
// performed after; a transfer failure re-arms that one bid and aborts the
// sweep, so a retry resumes exactly where this call stopped. Already-paid
// bidders stay Refunded and are never paid again.
//
// Must be called with the op gate held and the state lock released.
func (r *TenderRound) refundSweep(ctx context.Context) error {
	r.state.RLock()
	held := r.totalCollateralHeld
	order := append([]string(nil), r.admissionOrder...)
	r.state.RUnlock()

	if len(order) > MaxScan {
		return fmt.Errorf("admission list at %d entries: %w", len(order), ErrScanBound)
	}

	balance, err := r.treasury.Balance(ctx)
	if err != nil {
		return fmt.Errorf("treasury balance: %w", err)
	}
	if balance.LessThan(held) {
		return fmt.Errorf("balance %s below held collateral %s: %w", balance, held, ErrInsufficientBalance)
	}

	for _, actor := range order {
		r.state.Lock()
		bid := r.bids[actor]
		if bid == nil || bid.Status != BidStatusActive || bid.Collateral.Sign() <= 0 {
			r.state.Unlock()
			continue
		}
		refund := bid.Collateral
		bid.Collateral = decimal.Zero
		bid.Status = BidStatusRefunded
		r.activeBidderCount--
		r.totalCollateralHeld = r.totalCollateralHeld.Sub(refund)
		ev := r.newEvent(EventBidRefunded, actor, refund, "")
		r.state.Unlock()

		if err := r.treasury.Transfer(ctx, actor, refund); err != nil {
			// No value moved: re-arm this bid and abort. The record for
			// this refund is dropped with the rollback.
			r.state.Lock()
			bid.Collateral = refund
			bid.Status = BidStatusActive
			r.activeBidderCount++
			r.totalCollateralHeld = r.totalCollateralHeld.Add(refund)
			r.state.Unlock()
			return fmt.Errorf("refund %s to %s: %v: %w", refund, actor, err, ErrTransferFailed)
		}

		r.state.Lock()
		r.commitEvents([]Event{ev})
		r.state.Unlock()
	}
	return nil
}

// reportOutcome fires the one-way analytics callback at most once per round.
// The latch is set before the call so a flaky collaborator cannot cause a
// double report.
func (r *TenderRound) reportOutcome(ctx context.Context) error {
	r.state.Lock()
	if r.outcomeReported || !r.hasWinner {
		r.state.Unlock()
		return nil
	}
	r.outcomeReported = true
	winner := r.winner
	amount := r.bids[winner].Amount
	r.state.Unlock()

	if err := r.registry.ReportOutcome(ctx, winner, amount, true); err != nil {
		return fmt.Errorf("outcome report: %w", err)
	}
	return nil
}
