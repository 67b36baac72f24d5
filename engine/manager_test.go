package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/opentender-io/opentender/core"
)

var testStart = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testParams() core.RoundParams {
	return core.RoundParams{
		Organization:     "org-1",
		ContentRef:       []byte("ref://tender"),
		StartTime:        testStart,
		EndTime:          testStart.Add(core.MinDuration + time.Second),
		MinimumBid:       decimal.NewFromInt(100),
		RequiredStake:    decimal.NewFromInt(250),
		BidWeight:        60,
		ReputationWeight: 40,
	}
}

func newManager() *Manager {
	registry := core.NewFakeRegistry()
	treasury := core.NewFakeTreasury(decimal.Zero)
	clock := core.NewManualClock(testStart)
	return NewManager("factory-1", registry, treasury, core.WithClock(clock))
}

func TestManager_CreateRound(t *testing.T) {
	m := newManager()

	round, err := m.CreateRound("factory-1", testParams())
	require.NoError(t, err)
	require.True(t, round.Initialized())
	require.Equal(t, core.PhaseCreated, round.Phase())
	require.Equal(t, "factory-1", round.Factory())

	got, ok := m.Get(round.ID())
	require.True(t, ok)
	require.Same(t, round, got)
}

func TestManager_CreateRound_Unauthorized(t *testing.T) {
	m := newManager()

	_, err := m.CreateRound("org-1", testParams())
	require.ErrorIs(t, err, core.ErrUnauthorized)
	require.Empty(t, m.List())
}

func TestManager_CreateRound_InvalidParams(t *testing.T) {
	m := newManager()

	params := testParams()
	params.EndTime = params.StartTime.Add(time.Hour) // below the minimum duration
	_, err := m.CreateRound("factory-1", params)
	require.True(t, errors.Is(err, core.ErrInvalidDuration))
	require.Empty(t, m.List())
}

func TestManager_ListPreservesCreationOrder(t *testing.T) {
	m := newManager()

	first, err := m.CreateRound("factory-1", testParams())
	require.NoError(t, err)
	second, err := m.CreateRound("factory-1", testParams())
	require.NoError(t, err)

	rounds := m.List()
	require.Len(t, rounds, 2)
	require.Equal(t, first.ID(), rounds[0].ID())
	require.Equal(t, second.ID(), rounds[1].ID())
}

func TestManager_GetUnknown(t *testing.T) {
	m := newManager()
	_, ok := m.Get(uuid.New())
	require.False(t, ok)
}
