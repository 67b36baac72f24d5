package core

import (
	"errors"
	"testing"

	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

func TestScore_HandComputed(t *testing.T) {
	// minimumBid=100, bidWeight=60, reputationWeight=40:
	// score = floor((floor(10000/amount)*60 + rep*40) / 100)
	minBid := decimal.NewFromInt(100)

	cases := []struct {
		amount int64
		rep    int64
		want   int64
	}{
		{120, 80, 81}, // floor(10000/120)=83 -> (83*60+80*40)/100
		{110, 90, 90}, // floor(10000/110)=90 -> (90*60+90*40)/100
		{150, 70, 67}, // floor(10000/150)=66 -> (66*60+70*40)/100
		{130, 60, 69}, // floor(10000/130)=76 -> (76*60+60*40)/100
		{140, 50, 62}, // floor(10000/140)=71 -> (71*60+50*40)/100
		{100, 100, 100},
		{100, 0, 60},
	}
	for _, tc := range cases {
		got, err := Score(minBid, decimal.NewFromInt(tc.amount), tc.rep, 60, 40)
		check.Nil(t, err)
		check.Equal(t, tc.want, got)
	}
}

func TestScore_LowerPriceScoresHigher(t *testing.T) {
	minBid := decimal.NewFromInt(500)

	cheap, err := Score(minBid, decimal.NewFromInt(550), 50, 70, 30)
	check.Nil(t, err)
	expensive, err := Score(minBid, decimal.NewFromInt(900), 50, 70, 30)
	check.Nil(t, err)

	check.True(t, cheap > expensive)
}

func TestScore_BoundedToHundred(t *testing.T) {
	// amount == minimumBid and full reputation is the maximum possible score.
	got, err := Score(decimal.NewFromInt(7), decimal.NewFromInt(7), 100, 35, 65)
	check.Nil(t, err)
	check.Equal(t, int64(100), got)
}

func TestScore_FractionalAmounts(t *testing.T) {
	// Decimal inputs floor exactly: floor(100*100 / 133.33) = 75.
	got, err := Score(decimal.NewFromInt(100), decimal.RequireFromString("133.33"), 0, 100, 0)
	check.Nil(t, err)
	check.Equal(t, int64(75), got)
}

func TestScore_InvalidInputs(t *testing.T) {
	minBid := decimal.NewFromInt(100)
	amount := decimal.NewFromInt(120)

	_, err := Score(minBid, amount, 50, 60, 50)
	check.True(t, errors.Is(err, ErrInvalidWeights))

	_, err = Score(minBid, amount, 50, -10, 110)
	check.True(t, errors.Is(err, ErrInvalidWeights))

	_, err = Score(decimal.Zero, amount, 50, 60, 40)
	check.True(t, errors.Is(err, ErrInvalidMinimumBid))

	_, err = Score(minBid, decimal.NewFromInt(99), 50, 60, 40)
	check.True(t, errors.Is(err, ErrInvalidAmount))

	_, err = Score(minBid, amount, 101, 60, 40)
	check.True(t, errors.Is(err, ErrInvalidReputation))

	_, err = Score(minBid, amount, -1, 60, 40)
	check.True(t, errors.Is(err, ErrInvalidReputation))
}

func TestScore_ArithmeticBound(t *testing.T) {
	over := maxMinimumBid.Add(decimal.NewFromInt(1))

	_, err := Score(over, over.Mul(decimal.NewFromInt(2)), 50, 60, 40)
	check.True(t, errors.Is(err, ErrArithmeticBound))

	// The bound itself is still computable.
	got, err := Score(maxMinimumBid, maxMinimumBid, 100, 60, 40)
	check.Nil(t, err)
	check.Equal(t, int64(100), got)
}
