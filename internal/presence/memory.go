package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/lib/clock"
)

// Memory keeps presence in process. It is enough for a single instance.
type Memory struct {
	mu       sync.Mutex
	channels map[domain.Channel]map[string]*domain.Presence
	conns    map[string]domain.Channel
	clock    clock.Clock
}

func NewMemory(c clock.Clock) *Memory {
	if c == nil {
		c = clock.Real()
	}
	return &Memory{
		channels: make(map[domain.Channel]map[string]*domain.Presence),
		conns:    make(map[string]domain.Channel),
		clock:    c,
	}
}

func (m *Memory) Join(ctx context.Context, channel domain.Channel, connID string, userID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	conns, ok := m.channels[channel]
	if !ok {
		conns = make(map[string]*domain.Presence)
		m.channels[channel] = conns
	}
	if existing, ok := conns[connID]; ok {
		existing.LastSeen = now
		return false, nil
	}

	before := distinctUsers(conns)
	conns[connID] = &domain.Presence{
		ConnectionID: connID,
		UserID:       userID,
		Channel:      channel,
		JoinedAt:     now,
		LastSeen:     now,
	}
	m.conns[connID] = channel
	return distinctUsers(conns) != before, nil
}

func (m *Memory) Leave(ctx context.Context, channel domain.Channel, connID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.leaveLocked(channel, connID), nil
}

func (m *Memory) leaveLocked(channel domain.Channel, connID string) bool {
	conns, ok := m.channels[channel]
	if !ok {
		return false
	}
	if _, ok := conns[connID]; !ok {
		return false
	}

	before := distinctUsers(conns)
	delete(conns, connID)
	delete(m.conns, connID)
	after := distinctUsers(conns)
	if len(conns) == 0 {
		delete(m.channels, channel)
	}
	return after != before
}

func (m *Memory) Count(ctx context.Context, channel domain.Channel) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return distinctUsers(m.channels[channel]), nil
}

func (m *Memory) Users(ctx context.Context, channel domain.Channel) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[uuid.UUID]struct{})
	users := make([]uuid.UUID, 0)
	for _, p := range m.channels[channel] {
		if _, ok := seen[p.UserID]; ok {
			continue
		}
		seen[p.UserID] = struct{}{}
		users = append(users, p.UserID)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].String() < users[j].String() })
	return users, nil
}

func (m *Memory) Heartbeat(ctx context.Context, connID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	channel, ok := m.conns[connID]
	if !ok {
		return nil
	}
	if p, ok := m.channels[channel][connID]; ok {
		p.LastSeen = m.clock.Now()
	}
	return nil
}

func (m *Memory) Prune(ctx context.Context, cutoff time.Time) ([]domain.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	changed := make(map[domain.Channel]struct{})
	for channel, conns := range m.channels {
		for connID, p := range conns {
			if p.LastSeen.Before(cutoff) && m.leaveLocked(channel, connID) {
				changed[channel] = struct{}{}
			}
		}
	}
	return sortedChannels(changed), nil
}

func distinctUsers(conns map[string]*domain.Presence) int {
	users := make(map[uuid.UUID]struct{}, len(conns))
	for _, p := range conns {
		users[p.UserID] = struct{}{}
	}
	return len(users)
}

func sortedChannels(set map[domain.Channel]struct{}) []domain.Channel {
	channels := make([]domain.Channel, 0, len(set))
	for channel := range set {
		channels = append(channels, channel)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].String() < channels[j].String() })
	return channels
}
