package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/park285/Buckshot-KakaoTalk-bot/internal/domain"
)

// Memory is a development-only ledger used when no database is configured.
type Memory struct {
	mu sync.RWMutex

	wallets map[string]*domain.Wallet
	results map[string]domain.DuelRecord
}

func NewMemory() *Memory {
	return &Memory{
		wallets: make(map[string]*domain.Wallet),
		results: make(map[string]domain.DuelRecord),
	}
}

func (m *Memory) GetTotals(_ context.Context, playerID string) (*domain.Wallet, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, ErrInvalidPlayer
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := &domain.Wallet{PlayerID: playerID, Usage: map[string]int{}}
	if w, ok := m.wallets[playerID]; ok {
		out.Total = w.Total
		out.UpdatedAt = w.UpdatedAt
		for k, v := range w.Usage {
			out.Usage[k] = v
		}
	}
	return out, nil
}

func (m *Memory) ApplySettlement(_ context.Context, playerID string, prizeDelta int64, usageDelta map[string]int) error {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return ErrInvalidPlayer
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wallets[playerID]
	if !ok {
		w = &domain.Wallet{PlayerID: playerID, Usage: map[string]int{}}
		m.wallets[playerID] = w
	}
	w.Total += prizeDelta
	for k, v := range usageDelta {
		w.Usage[k] += v
	}
	w.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) SaveResult(_ context.Context, r domain.DuelRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.results[r.DuelID]; !exists {
		m.results[r.DuelID] = r
	}
	return nil
}

func (m *Memory) RecentResults(_ context.Context, playerID string, limit int) ([]domain.DuelRecord, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.DuelRecord
	for _, r := range m.results {
		if r.PlayerA == playerID || r.PlayerB == playerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.After(out[j].EndedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
