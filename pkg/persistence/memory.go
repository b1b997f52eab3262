package persistence

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is a process local Store. History of a closed room is
// dropped ttl after its closed record was written.
type Memory struct {
	mu       sync.RWMutex
	rooms    map[string]Room
	messages map[string][]Message
	expires  map[string]time.Time
	ttl      time.Duration
	now      func() time.Time
	closed   bool
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Memory{
		rooms:    map[string]Room{},
		messages: map[string][]Message{},
		expires:  map[string]time.Time{},
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *Memory) SaveRoom(_ context.Context, room Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.prune()
	m.rooms[room.Code] = room
	if !room.ClosedAt.IsZero() {
		m.expires[room.Code] = m.now().Add(m.ttl)
	}
	return nil
}

func (m *Memory) Room(code string) (Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[code]
	return r, ok
}

func (m *Memory) AddMessage(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.prune()
	list := m.messages[msg.Room]
	i := sort.Search(len(list), func(i int) bool { return list[i].Id > msg.Id })
	list = append(list, Message{})
	copy(list[i+1:], list[i:])
	list[i] = msg
	m.messages[msg.Room] = list
	return nil
}

func (m *Memory) Messages(_ context.Context, room string, limit int, beforeId string) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	list := m.messages[room]
	end := len(list)
	if beforeId != "" {
		end = sort.Search(len(list), func(i int) bool { return list[i].Id >= beforeId })
	}
	start := 0
	if limit > 0 && end-limit > 0 {
		start = end - limit
	}
	out := make([]Message, end-start)
	copy(out, list[start:end])
	return out, nil
}

// prune drops expired rooms, must be called with the write lock held.
func (m *Memory) prune() {
	now := m.now()
	for code, at := range m.expires {
		if now.Before(at) {
			continue
		}
		delete(m.expires, code)
		delete(m.rooms, code)
		delete(m.messages, code)
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
