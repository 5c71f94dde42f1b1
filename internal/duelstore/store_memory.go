package duelstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/park285/Buckshot-KakaoTalk-bot/internal/duel"
)

// MemoryStore is the in-process store used when no Redis is configured.
// Duels are kept serialized so callers never share pointers with the store.
type MemoryStore struct {
	mu sync.RWMutex

	sessions map[string][]byte
	rooms    map[string]string
	users    map[string]map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]byte),
		rooms:    make(map[string]string),
		users:    make(map[string]map[string]struct{}),
	}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*duel.Duel, error) {
	m.mu.RLock()
	raw, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return decode(raw)
}

func (m *MemoryStore) Put(_ context.Context, d *duel.Duel) error {
	if d == nil || strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("duelstore: duel id required")
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode duel: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.sessions[d.ID]; ok {
		prev, err := decode(cur)
		if err != nil {
			return err
		}
		if prev.Version != d.Version-1 {
			return duel.ErrStaleAction
		}
	} else if d.Version != 1 {
		return duel.ErrStaleAction
	}
	if owner, ok := m.rooms[d.Room]; ok && owner != d.ID {
		if _, live := m.sessions[owner]; live {
			return duel.ErrDuelExists
		}
	}

	m.sessions[d.ID] = raw
	m.rooms[d.Room] = d.ID
	for _, p := range d.Players() {
		if m.users[p] == nil {
			m.users[p] = make(map[string]struct{})
		}
		m.users[p][d.ID] = struct{}{}
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok := m.sessions[id]
	if !ok {
		return nil
	}
	delete(m.sessions, id)
	d, err := decode(raw)
	if err != nil {
		return nil
	}
	if m.rooms[d.Room] == id {
		delete(m.rooms, d.Room)
	}
	for _, p := range d.Players() {
		delete(m.users[p], id)
		if len(m.users[p]) == 0 {
			delete(m.users, p)
		}
	}
	return nil
}

func (m *MemoryStore) ActiveByRoom(_ context.Context, room string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[room], nil
}

func (m *MemoryStore) ActiveByUser(_ context.Context, user string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.users[user]))
	for id := range m.users[user] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) ListIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
