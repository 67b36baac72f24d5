package core

import "errors"

// Engine errors, grouped by the failure class they represent. Callers
// classify with errors.Is; operations wrap these with context via fmt.Errorf
// and %w. Every error is synchronous and leaves the round's state exactly as
// it was before the failing operation.
var (
	// Phase violations.
	ErrAlreadyInitialized = errors.New("round already initialized")
	ErrNotInitialized     = errors.New("round not initialized")
	ErrWrongPhase         = errors.New("operation not legal in current phase")

	// Timing violations.
	ErrOutsideWindow = errors.New("outside the required time window")

	// Authorization violations.
	ErrUnauthorized = errors.New("caller lacks required role")

	// Validation violations.
	ErrInvalidAmount     = errors.New("bid amount below minimum")
	ErrInvalidMinimumBid = errors.New("minimum bid out of bounds")
	ErrInvalidWeights    = errors.New("weights must be non-negative and sum to 100")
	ErrInvalidContentRef = errors.New("content reference length out of bounds")
	ErrInvalidDuration   = errors.New("round duration below minimum")
	ErrInvalidStake      = errors.New("required stake must be positive")
	ErrWrongCollateral   = errors.New("transferred collateral does not match required stake")
	ErrDuplicateBid      = errors.New("actor already has a bid in this round")
	ErrInvalidIdentity   = errors.New("actor identity required")
	ErrUnchangedParams   = errors.New("updated parameters must differ from current values")
	ErrInvalidReputation = errors.New("reputation outside [0,100]")

	// Arithmetic bound.
	ErrArithmeticBound = errors.New("value would overflow scoring arithmetic")

	// Resource bound.
	ErrScanBound           = errors.New("admission list has reached the scan bound")
	ErrInsufficientBidders = errors.New("not enough active bidders for settlement")

	// Transfer failures.
	ErrTransferFailed      = errors.New("outbound value transfer failed")
	ErrInsufficientBalance = errors.New("held balance below tracked collateral")

	// Overlay violations.
	ErrHalted    = errors.New("round is emergency-halted")
	ErrPaused    = errors.New("round is paused")
	ErrNotHalted = errors.New("operation requires the halt flag")

	// Ledger/settlement state.
	ErrNoActiveBid   = errors.New("actor has no active bid")
	ErrNoValidWinner = errors.New("no valid winner among active bids")
	ErrWinnerSet     = errors.New("winner already selected")
	ErrNothingToDo   = errors.New("nothing to sweep")

	// Re-entrancy gate.
	ErrOperationInFlight = errors.New("another operation is in flight on this round")
)
