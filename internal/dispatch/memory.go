package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-lifecycle/internal/models"
)

// MemoryChannel is an in-process Channel used when no Redis address is
// configured, and by tests. Snapshots are broadcast synchronously in update
// order, so subscribers observe versions strictly increasing.
type MemoryChannel struct {
	mu      sync.RWMutex
	entries map[string]models.RideRequest
	subs    map[string]map[int]*memSub
	nextSub int
}

type memSub struct {
	mu     sync.Mutex
	closed bool
	c      chan models.RideRequest
}

// send never blocks: a subscriber that stops draining has its oldest
// buffered snapshot dropped to make room. Snapshots are full values, so
// the next delivery carries everything the dropped one did.
func (s *memSub) send(req models.RideRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.c <- req:
			return
		default:
			select {
			case <-s.c:
			default:
			}
		}
	}
}

func (s *memSub) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.c)
	}
}

func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{
		entries: make(map[string]models.RideRequest),
		subs:    make(map[string]map[int]*memSub),
	}
}

func (m *MemoryChannel) Create(ctx context.Context, req models.RideRequest) (models.RideRequest, error) {
	req.ID = uuid.NewString()
	req.Version = 1
	req.CreatedAt = time.Now()

	m.mu.Lock()
	m.entries[req.ID] = req
	m.mu.Unlock()
	return req, nil
}

func (m *MemoryChannel) Update(ctx context.Context, id string, fields Fields) error {
	m.mu.Lock()
	req, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if fields.Status != nil {
		req.Status = *fields.Status
	}
	if fields.Driver != nil {
		d := *fields.Driver
		req.Driver = &d
	}
	if fields.DriverLoc != nil {
		loc := *fields.DriverLoc
		req.DriverLoc = &loc
	}
	if fields.PickupCode != nil {
		req.PickupCode = *fields.PickupCode
	}
	req.Version++
	m.entries[id] = req

	targets := make([]*memSub, 0, len(m.subs[id]))
	for _, s := range m.subs[id] {
		targets = append(targets, s)
	}
	m.mu.Unlock()

	for _, s := range targets {
		s.send(req)
	}
	return nil
}

func (m *MemoryChannel) Get(ctx context.Context, id string) (models.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.entries[id]
	if !ok {
		return models.RideRequest{}, ErrNotFound
	}
	return req, nil
}

func (m *MemoryChannel) Subscribe(ctx context.Context, id string) (*Subscription, error) {
	m.mu.Lock()
	req, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	sub := &memSub{c: make(chan models.RideRequest, 64)}
	if m.subs[id] == nil {
		m.subs[id] = make(map[int]*memSub)
	}
	key := m.nextSub
	m.nextSub++
	m.subs[id][key] = sub
	m.mu.Unlock()

	// a fresh subscription replays the current value before any change
	sub.send(req)

	return newSubscription(sub.c, func() {
		m.mu.Lock()
		delete(m.subs[id], key)
		m.mu.Unlock()
		sub.shutdown()
	}), nil
}
