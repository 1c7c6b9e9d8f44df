package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/anshulpatel/event-waitlist-service/internal/model"
)

// Memory is an in-memory Store. It favors clarity over performance and backs
// unit tests plus the MEMORY_STORE development mode.
type Memory struct {
	mu       sync.RWMutex
	events   map[string]model.Event
	regs     map[string]model.Registration
	lockWait time.Duration

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

// NewMemory constructs an empty in-memory store. lockWait bounds how long
// WithEventLock waits for the per-event lock when the caller's context has no
// earlier deadline.
func NewMemory(lockWait time.Duration) *Memory {
	return &Memory{
		events:   make(map[string]model.Event),
		regs:     make(map[string]model.Registration),
		locks:    make(map[string]chan struct{}),
		lockWait: lockWait,
	}
}

// WithEventLock serialises fn against all other locked scopes for the same
// event using a keyed one-slot semaphore.
func (m *Memory) WithEventLock(ctx context.Context, eventID string, fn func(tx Tx) error) error {
	if _, err := m.GetEvent(ctx, eventID); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.lockWait)
	defer cancel()

	release, err := m.acquire(ctx, eventID)
	if err != nil {
		return err
	}
	defer release()

	return fn(m)
}

func (m *Memory) acquire(ctx context.Context, eventID string) (func(), error) {
	m.locksMu.Lock()
	ch, ok := m.locks[eventID]
	if !ok {
		ch = make(chan struct{}, 1)
		m.locks[eventID] = ch
	}
	m.locksMu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ErrEventBusy
	}
}

func (m *Memory) CreateEvent(_ context.Context, event *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.ID] = *event
	return nil
}

func (m *Memory) GetEvent(_ context.Context, id string) (*model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.events[id]; ok {
		return &e, nil
	}
	return nil, ErrNotFound
}

func (m *Memory) ListEvents(_ context.Context) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]model.Event, 0, len(m.events))
	for _, e := range m.events {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	return events, nil
}

func (m *Memory) CreateRegistration(_ context.Context, reg *model.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[reg.ID] = *reg
	return nil
}

func (m *Memory) GetRegistration(_ context.Context, id string) (*model.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.regs[id]; ok {
		return &r, nil
	}
	return nil, ErrNotFound
}

func (m *Memory) FindActiveByUserEvent(_ context.Context, eventID, userID string) (*model.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.regs {
		if r.EventID == eventID && r.UserID == userID && r.Active() {
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CountByStatus(_ context.Context, eventID string, statuses ...model.Status) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, r := range m.regs {
		if r.EventID != eventID {
			continue
		}
		for _, s := range statuses {
			if r.Status == s {
				count++
				break
			}
		}
	}
	return count, nil
}

func (m *Memory) UpdateRegistration(_ context.Context, reg *model.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.regs[reg.ID]; !ok {
		return ErrNotFound
	}
	m.regs[reg.ID] = *reg
	return nil
}

func (m *Memory) ListWaitlisted(_ context.Context, eventID string) ([]model.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var waiting []model.Registration
	for _, r := range m.regs {
		if r.EventID == eventID && r.Status == model.StatusWaitlisted {
			waiting = append(waiting, r)
		}
	}
	sort.Slice(waiting, func(i, j int) bool {
		a, b := waiting[i], waiting[j]
		if a.WaitlistPosition != nil && b.WaitlistPosition != nil && *a.WaitlistPosition != *b.WaitlistPosition {
			return *a.WaitlistPosition < *b.WaitlistPosition
		}
		if !a.RegisteredAt.Equal(b.RegisteredAt) {
			return a.RegisteredAt.Before(b.RegisteredAt)
		}
		return a.ID < b.ID
	})
	return waiting, nil
}

func (m *Memory) ListByEvent(_ context.Context, eventID string) ([]model.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var regs []model.Registration
	for _, r := range m.regs {
		if r.EventID == eventID {
			regs = append(regs, r)
		}
	}
	sort.Slice(regs, func(i, j int) bool {
		if !regs[i].RegisteredAt.Equal(regs[j].RegisteredAt) {
			return regs[i].RegisteredAt.Before(regs[j].RegisteredAt)
		}
		return regs[i].ID < regs[j].ID
	})
	return regs, nil
}
