package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// SubmitBid admits a priced bid backed by the round's fixed refundable
// collateral. The caller must already have transferred collateralTransferred
// into the round's treasury; admission verifies the declared amount against
// the required stake and takes it into the collateral accounting.
//
// An actor gets exactly one admission slot per round: a withdrawn bid is
// terminal and does not free the slot for resubmission.
func (r *TenderRound) SubmitBid(ctx context.Context, actor string, amount decimal.Decimal, contentRef []byte, collateralTransferred decimal.Decimal) error {
	done, err := r.beginOp()
	if err != nil {
		return err
	}
	defer done()

	r.state.Lock()
	if err := r.admitChecks(actor, amount, contentRef, collateralTransferred); err != nil {
		r.state.Unlock()
		return err
	}
	r.state.Unlock()

	// Role check is an external read; the op gate keeps the state snapshot
	// valid while it runs.
	eligible, err := r.registry.HasBidderRole(ctx, actor)
	if err != nil {
		return fmt.Errorf("bidder role check for %s: %w", actor, err)
	}
	if !eligible {
		return fmt.Errorf("actor %s lacks the bidder role: %w", actor, ErrUnauthorized)
	}

	r.state.Lock()
	defer r.state.Unlock()

	r.bids[actor] = &Bid{
		Actor:       actor,
		Amount:      amount,
		Collateral:  collateralTransferred,
		ContentRef:  append([]byte(nil), contentRef...),
		Status:      BidStatusActive,
		SubmittedAt: r.clock.Now(),
	}
	r.admissionOrder = append(r.admissionOrder, actor)
	r.activeBidderCount++
	r.totalCollateralHeld = r.totalCollateralHeld.Add(collateralTransferred)

	r.commitEvents([]Event{r.newEvent(EventBidAdmitted, actor, amount, "")})
	return nil
}

// admitChecks validates an admission attempt. Must be called with the state
// lock held.
func (r *TenderRound) admitChecks(actor string, amount decimal.Decimal, contentRef []byte, collateralTransferred decimal.Decimal) error {
	if err := r.requireInitialized(); err != nil {
		return err
	}
	if err := r.gate(); err != nil {
		return err
	}
	if actor == "" {
		return ErrInvalidIdentity
	}
	if r.phase != PhaseActive {
		return fmt.Errorf("bid in phase %s: %w", r.phase, ErrWrongPhase)
	}
	if !r.clock.Now().Before(r.endTime) {
		return fmt.Errorf("bid after end time: %w", ErrOutsideWindow)
	}
	if len(r.admissionOrder) >= MaxScan {
		return fmt.Errorf("admission list at %d entries: %w", len(r.admissionOrder), ErrScanBound)
	}
	if bid, ok := r.bids[actor]; ok && bid.Status != BidStatusNone {
		return fmt.Errorf("actor %s has status %s: %w", actor, bid.Status, ErrDuplicateBid)
	}
	if !validContentRef(contentRef) {
		return fmt.Errorf("content ref length %d: %w", len(contentRef), ErrInvalidContentRef)
	}
	if amount.LessThan(r.minimumBid) {
		return fmt.Errorf("bid %s below minimum %s: %w", amount, r.minimumBid, ErrInvalidAmount)
	}
	if !collateralTransferred.Equal(r.requiredStake) {
		return fmt.Errorf("collateral %s, required %s: %w", collateralTransferred, r.requiredStake, ErrWrongCollateral)
	}
	return nil
}

// WithdrawBid returns an active bid's collateral to its actor and retires the
// bid. Ledger state is mutated before the outbound transfer; if the transfer
// fails the mutation is rolled back and the whole operation fails, so the
// caller observes it as one atomic unit.
func (r *TenderRound) WithdrawBid(ctx context.Context, actor string) error {
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
	if r.phase != PhaseActive {
		r.state.Unlock()
		return fmt.Errorf("withdraw in phase %s: %w", r.phase, ErrWrongPhase)
	}
	bid, ok := r.bids[actor]
	if !ok || bid.Status != BidStatusActive {
		r.state.Unlock()
		return fmt.Errorf("withdraw by %s: %w", actor, ErrNoActiveBid)
	}

	refund := bid.Collateral
	bid.Collateral = decimal.Zero
	bid.Status = BidStatusWithdrawn
	r.activeBidderCount--
	r.totalCollateralHeld = r.totalCollateralHeld.Sub(refund)
	ev := r.newEvent(EventBidWithdrawn, actor, refund, "")
	r.state.Unlock()

	if err := r.treasury.Transfer(ctx, actor, refund); err != nil {
		r.state.Lock()
		bid.Collateral = refund
		bid.Status = BidStatusActive
		r.activeBidderCount++
		r.totalCollateralHeld = r.totalCollateralHeld.Add(refund)
		r.state.Unlock()
		return fmt.Errorf("release %s to %s: %v: %w", refund, actor, err, ErrTransferFailed)
	}

	r.state.Lock()
	r.commitEvents([]Event{ev})
	r.state.Unlock()
	return nil
}
