package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Checker-Finance/navi/internal/navi"
	"github.com/Checker-Finance/navi/pkg/model"
)

// Memory is an in-process store used by tests and local runs.
type Memory struct {
	mu       sync.RWMutex
	trades   map[string]*model.Trade
	contacts map[string][]model.Contact
}

func NewMemory() *Memory {
	return &Memory{
		trades:   make(map[string]*model.Trade),
		contacts: make(map[string][]model.Contact),
	}
}

func (m *Memory) LoadTrade(_ context.Context, id string) (*model.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trades[id]
	if !ok {
		return nil, nil
	}
	return t.Clone(), nil
}

func (m *Memory) SaveTrade(_ context.Context, t *model.Trade) (*model.Trade, error) {
	if t == nil || t.ID == "" {
		return nil, fmt.Errorf("trade id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.trades[t.ID]
	switch {
	case !exists && t.Version != 0:
		return nil, fmt.Errorf("trade %s not stored at version %d: %w", t.ID, t.Version, navi.ErrConflict)
	case exists && current.Version != t.Version:
		return nil, fmt.Errorf("trade %s at version %d, got %d: %w", t.ID, current.Version, t.Version, navi.ErrConflict)
	}

	saved := t.Clone()
	saved.Version++
	m.trades[t.ID] = saved
	return saved.Clone(), nil
}

func (m *Memory) LoadContacts(_ context.Context, tradeID string) ([]model.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Contact, len(m.contacts[tradeID]))
	copy(out, m.contacts[tradeID])
	return out, nil
}

// SaveContacts merges by id. Existing contacts are never removed or renamed.
func (m *Memory) SaveContacts(_ context.Context, tradeID string, contacts []model.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.contacts[tradeID]
	seen := make(map[string]bool, len(existing))
	for _, c := range existing {
		seen[c.ID] = true
	}
	for _, c := range contacts {
		if c.ID == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		existing = append(existing, c)
	}
	m.contacts[tradeID] = existing
	return nil
}

// ListTrades returns the user's trades, newest first.
func (m *Memory) ListTrades(_ context.Context, userID string) ([]model.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Trade
	for _, t := range m.trades {
		if _, ok := t.RoleOf(userID); ok {
			out = append(out, *t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) HealthCheck(context.Context) error { return nil }
func (m *Memory) Close() error                      { return nil }
