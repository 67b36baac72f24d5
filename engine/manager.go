// Package engine manages the set of live tender rounds for one deployment.
package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/opentender-io/opentender/core"
)

var log = logging.Logger("engine")

// Manager creates rounds under a single factory authority and tracks them by
// ID. Each round is an isolated instance; the manager holds no round state
// beyond the index.
type Manager struct {
	factory   string
	registry  core.Registry
	treasury  core.Treasury
	roundOpts []core.Option

	mu     sync.RWMutex
	rounds map[uuid.UUID]*core.TenderRound
	order  []uuid.UUID
}

// NewManager creates a manager whose rounds all answer to the given factory
// authority. roundOpts are applied to every round it constructs.
func NewManager(factory string, registry core.Registry, treasury core.Treasury, roundOpts ...core.Option) *Manager {
	return &Manager{
		factory:   factory,
		registry:  registry,
		treasury:  treasury,
		roundOpts: roundOpts,
		rounds:    make(map[uuid.UUID]*core.TenderRound),
	}
}

// Factory returns the authority identity rounds are created under.
func (m *Manager) Factory() string { return m.factory }

// CreateRound constructs and initializes a new round. The caller must be the
// factory authority; a round that fails initialization is discarded.
func (m *Manager) CreateRound(caller string, params core.RoundParams) (*core.TenderRound, error) {
	round := core.NewTenderRound(uuid.New(), m.factory, m.registry, m.treasury, m.roundOpts...)
	if err := round.Initialize(caller, params); err != nil {
		return nil, fmt.Errorf("create round: %w", err)
	}

	m.mu.Lock()
	m.rounds[round.ID()] = round
	m.order = append(m.order, round.ID())
	m.mu.Unlock()

	log.Infow("round created", "round", round.ID(), "organization", params.Organization)
	return round, nil
}

// Get returns the round with the given ID.
func (m *Manager) Get(id uuid.UUID) (*core.TenderRound, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	round, ok := m.rounds[id]
	return round, ok
}

// List returns all rounds in creation order.
func (m *Manager) List() []*core.TenderRound {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*core.TenderRound, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.rounds[id])
	}
	return out
}
