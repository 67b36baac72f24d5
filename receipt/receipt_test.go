package receipt

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/opentender-io/opentender/core"
)

var (
	issuedAt  = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	testStart = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	testEnd   = testStart.Add(core.MinDuration + time.Second)
)

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

// settledRound drives a round through a full five-bidder settlement.
func settledRound(t *testing.T) *core.TenderRound {
	t.Helper()
	ctx := context.Background()
	registry := core.NewFakeRegistry()
	treasury := core.NewFakeTreasury(decimal.Zero)
	clock := core.NewManualClock(testStart)
	stake := decimal.NewFromInt(250)

	round := core.NewTenderRound(uuid.New(), "factory-1", registry, treasury, core.WithClock(clock))
	params := core.RoundParams{
		Organization:     "org-1",
		ContentRef:       []byte("ref://tender"),
		StartTime:        testStart,
		EndTime:          testEnd,
		MinimumBid:       decimal.NewFromInt(100),
		RequiredStake:    stake,
		BidWeight:        60,
		ReputationWeight: 40,
	}
	if err := round.Initialize("factory-1", params); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := round.Activate("factory-1"); err != nil {
		t.Fatalf("activate: %v", err)
	}

	prices := []int64{120, 110, 150, 130, 140}
	reps := []int64{80, 90, 70, 60, 50}
	actors := []string{"alpha", "bravo", "charlie", "delta", "echo"}
	for i, actor := range actors {
		registry.Enroll(actor, reps[i])
		treasury.Deposit(stake)
		err := round.SubmitBid(ctx, actor, decimal.NewFromInt(prices[i]), []byte("ref"), stake)
		if err != nil {
			t.Fatalf("submit %s: %v", actor, err)
		}
	}

	clock.Set(testEnd)
	if err := round.SelectWinner(ctx, "org-1"); err != nil {
		t.Fatalf("select winner: %v", err)
	}
	return round
}

func TestBuild_SettledRound(t *testing.T) {
	round := settledRound(t)

	rc, err := Build(round, issuedAt)
	check.Nil(t, err)
	check.Equal(t, round.ID(), rc.RoundID)
	check.Equal(t, "org-1", rc.Organization)
	check.Equal(t, core.PhaseClosed, rc.Phase)
	check.Equal(t, "bravo", rc.Winner)
	check.True(t, rc.WinningAmount.Equal(decimal.NewFromInt(110)))
	check.Equal(t, len(round.Events()), rc.EventCount)
	check.Equal(t, 32, len(rc.EventsDigest))
	check.True(t, rc.IssuedAt.Equal(issuedAt))
}

func TestBuild_RejectsOpenRound(t *testing.T) {
	registry := core.NewFakeRegistry()
	treasury := core.NewFakeTreasury(decimal.Zero)
	round := core.NewTenderRound(uuid.New(), "factory-1", registry, treasury)

	_, err := Build(round, issuedAt)
	check.True(t, errors.Is(err, core.ErrWrongPhase))
}

func TestSignVerify_RoundTrip(t *testing.T) {
	round := settledRound(t)
	rc, err := Build(round, issuedAt)
	check.Nil(t, err)

	key := newKey(t)
	signer, err := NewSigner(key)
	check.Nil(t, err)

	data, err := signer.Sign(rc)
	check.Nil(t, err)

	got, err := Verify(data, &key.PublicKey)
	check.Nil(t, err)
	check.Equal(t, rc.RoundID, got.RoundID)
	check.Equal(t, rc.Winner, got.Winner)
	check.True(t, got.WinningAmount.Equal(rc.WinningAmount))
	check.Equal(t, rc.EventsDigest, got.EventsDigest)
}

func TestVerify_WrongKey(t *testing.T) {
	round := settledRound(t)
	rc, err := Build(round, issuedAt)
	check.Nil(t, err)

	signer, err := NewSigner(newKey(t))
	check.Nil(t, err)
	data, err := signer.Sign(rc)
	check.Nil(t, err)

	other := newKey(t)
	_, err = Verify(data, &other.PublicKey)
	check.NotNil(t, err)
}

func TestVerify_TamperedPayload(t *testing.T) {
	round := settledRound(t)
	rc, err := Build(round, issuedAt)
	check.Nil(t, err)

	key := newKey(t)
	signer, err := NewSigner(key)
	check.Nil(t, err)
	data, err := signer.Sign(rc)
	check.Nil(t, err)

	data[len(data)/2] ^= 0x01
	_, err = Verify(data, &key.PublicKey)
	check.NotNil(t, err)
}

func TestExtractPayload_SkipsVerification(t *testing.T) {
	round := settledRound(t)
	rc, err := Build(round, issuedAt)
	check.Nil(t, err)

	signer, err := NewSigner(newKey(t))
	check.Nil(t, err)
	data, err := signer.Sign(rc)
	check.Nil(t, err)

	got, err := ExtractPayload(data)
	check.Nil(t, err)
	check.Equal(t, rc.Winner, got.Winner)

	_, err = ExtractPayload([]byte{0x01, 0x02})
	check.NotNil(t, err)
}
