package store

import (
	"context"
	"sync"

	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/account"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/model"
)

// Memory keeps the journal in process memory. Used for paper trading
// and tests.
type Memory struct {
	mu        sync.Mutex
	positions map[string]model.Position
	decisions []model.Decision
	views     []account.View
}

func NewMemory() *Memory {
	return &Memory{positions: make(map[string]model.Position)}
}

func (m *Memory) SavePosition(_ context.Context, p model.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.ID] = p
	return nil
}

func (m *Memory) OpenPositions(_ context.Context) ([]model.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var open []model.Position
	for _, p := range m.positions {
		if !p.Status.Terminal() {
			open = append(open, p)
		}
	}
	return open, nil
}

func (m *Memory) RecordDecision(_ context.Context, d model.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, d)
	return nil
}

func (m *Memory) SaveAccountView(_ context.Context, v account.View) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views = append(m.views, v)
	return nil
}

func (m *Memory) Close() error { return nil }

// Decisions returns a copy of the recorded decision journal.
func (m *Memory) Decisions() []model.Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Decision, len(m.decisions))
	copy(out, m.decisions)
	return out
}

// Views returns a copy of the saved account snapshots.
func (m *Memory) Views() []account.View {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]account.View, len(m.views))
	copy(out, m.views)
	return out
}

var _ Store = (*Memory)(nil)
