package core

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// FakeRegistry is an in-memory Registry test double.
type FakeRegistry struct {
	mu         sync.Mutex
	Roles      map[string]bool
	Profiles   map[string]Profile
	RoleErr    error
	ProfileErr error
	ReportErr  error
	Reports    []ReportedOutcome
}

// ReportedOutcome records one ReportOutcome invocation.
type ReportedOutcome struct {
	Winner  string
	Amount  decimal.Decimal
	Success bool
}

// NewFakeRegistry creates an empty fake registry.
func NewFakeRegistry() *FakeRegistry {
	return &FakeRegistry{
		Roles:    make(map[string]bool),
		Profiles: make(map[string]Profile),
	}
}

// Enroll grants the bidder role with the given reputation.
func (f *FakeRegistry) Enroll(actor string, reputation int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Roles[actor] = true
	f.Profiles[actor] = Profile{MetadataRef: "meta:" + actor, Reputation: reputation}
}

func (f *FakeRegistry) HasBidderRole(_ context.Context, actor string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RoleErr != nil {
		return false, f.RoleErr
	}
	return f.Roles[actor], nil
}

func (f *FakeRegistry) GetProfile(_ context.Context, actor string) (Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ProfileErr != nil {
		return Profile{}, f.ProfileErr
	}
	return f.Profiles[actor], nil
}

func (f *FakeRegistry) ReportOutcome(_ context.Context, winner string, amount decimal.Decimal, success bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReportErr != nil {
		return f.ReportErr
	}
	f.Reports = append(f.Reports, ReportedOutcome{Winner: winner, Amount: amount, Success: success})
	return nil
}

// FakeTransfer records one outbound transfer made by a FakeTreasury.
type FakeTransfer struct {
	To     string
	Amount decimal.Decimal
}

// FakeTreasury is an in-memory Treasury test double. FailFor makes transfers
// to specific recipients fail, and OnTransfer runs before each transfer so
// tests can simulate re-entrant callbacks.
type FakeTreasury struct {
	mu         sync.Mutex
	balance    decimal.Decimal
	Transfers  []FakeTransfer
	FailFor    map[string]error
	OnTransfer func(to string, amount decimal.Decimal) error
}

// NewFakeTreasury creates a treasury holding the given balance.
func NewFakeTreasury(balance decimal.Decimal) *FakeTreasury {
	return &FakeTreasury{balance: balance, FailFor: make(map[string]error)}
}

// Deposit adds funds, mirroring an inbound collateral transfer.
func (f *FakeTreasury) Deposit(amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance = f.balance.Add(amount)
}

func (f *FakeTreasury) Balance(context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *FakeTreasury) Transfer(_ context.Context, to string, amount decimal.Decimal) error {
	f.mu.Lock()
	hook := f.OnTransfer
	f.mu.Unlock()
	if hook != nil {
		if err := hook(to, amount); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailFor[to]; err != nil {
		return err
	}
	f.balance = f.balance.Sub(amount)
	f.Transfers = append(f.Transfers, FakeTransfer{To: to, Amount: amount})
	return nil
}

// ManualClock is a Clock test double advanced by hand.
type ManualClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewManualClock creates a clock frozen at the given instant.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{t: t}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Set moves the clock to the given instant.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
