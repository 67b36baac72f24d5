package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// Score computes the deterministic weighted score of a bid.
//
// Formula:
//
//	normalizedBid = floor(minimumBid * 100 / bidAmount)
//	score         = floor((normalizedBid*bidWeight + reputation*reputationWeight) / 100)
//
// A lower price yields a larger normalized value, so the score rewards cheap
// bids and high reputation in the configured proportion. Since
// bidAmount >= minimumBid, normalizedBid is at most 100 and the result is
// always in [0, 100].
//
// All arithmetic is exact integer arithmetic; Score rejects inputs that would
// push minimumBid*100 past the int64 width rather than compute a wrapped
// result.
func Score(minimumBid, bidAmount decimal.Decimal, reputation, bidWeight, reputationWeight int64) (int64, error) {
	if bidWeight < 0 || reputationWeight < 0 || bidWeight+reputationWeight != 100 {
		return 0, fmt.Errorf("bidWeight=%d reputationWeight=%d: %w", bidWeight, reputationWeight, ErrInvalidWeights)
	}
	if minimumBid.Sign() <= 0 {
		return 0, fmt.Errorf("minimum bid %s: %w", minimumBid, ErrInvalidMinimumBid)
	}
	if minimumBid.GreaterThan(maxMinimumBid) {
		return 0, fmt.Errorf("minimum bid %s: %w", minimumBid, ErrArithmeticBound)
	}
	if bidAmount.LessThan(minimumBid) {
		return 0, fmt.Errorf("bid %s below minimum %s: %w", bidAmount, minimumBid, ErrInvalidAmount)
	}
	if reputation < 0 || reputation > 100 {
		return 0, fmt.Errorf("reputation %d: %w", reputation, ErrInvalidReputation)
	}

	// QuoRem with precision 0 yields the exact integer quotient; both
	// operands are positive so truncation is the floor.
	quo, _ := minimumBid.Mul(oneHundred).QuoRem(bidAmount, 0)
	normalizedBid := quo.IntPart()

	return (normalizedBid*bidWeight + reputation*reputationWeight) / 100, nil
}
