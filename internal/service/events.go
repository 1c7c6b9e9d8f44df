package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/anshulpatel/event-waitlist-service/internal/model"
)

const (
	maxCapacity             = 100_000
	defaultWaitlistCapacity = 50
)

// CreateEvent validates the request and persists a new event. The engine
// otherwise treats event configuration as read-only.
func (s *Service) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("event name is required")
	}
	if req.Capacity < 0 {
		return nil, fmt.Errorf("capacity must be zero (unlimited) or positive")
	}
	if req.Capacity > maxCapacity {
		return nil, fmt.Errorf("capacity cannot exceed %d", maxCapacity)
	}
	if req.WaitlistCapacity < 0 {
		return nil, fmt.Errorf("waitlist capacity must be positive")
	}
	if req.WaitlistCapacity == 0 {
		req.WaitlistCapacity = defaultWaitlistCapacity
	}
	if req.HasWaitlist && req.Capacity == 0 {
		return nil, fmt.Errorf("an unlimited event cannot have a waitlist")
	}

	event := &model.Event{
		ID:               uuid.New().String(),
		Name:             req.Name,
		Description:      strings.TrimSpace(req.Description),
		Capacity:         req.Capacity,
		HasWaitlist:      req.HasWaitlist,
		WaitlistCapacity: req.WaitlistCapacity,
		RegistrationOpen: true,
		AutoPromote:      true,
		CreatedAt:        s.now().UTC(),
	}
	if req.RegistrationOpen != nil {
		event.RegistrationOpen = *req.RegistrationOpen
	}
	if req.AutoPromote != nil {
		event.AutoPromote = *req.AutoPromote
	}

	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return event, nil
}

// ListEvents returns all events.
func (s *Service) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.store.ListEvents(ctx)
}

// GetEvent returns a single event by ID.
func (s *Service) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, fmt.Errorf("event id is required")
	}
	return s.store.GetEvent(ctx, id)
}

// ListRegistrations returns all registrations for an event, waitlist entries
// in position order behind the rest of the roster.
func (s *Service) ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.ListByEvent(ctx, eventID)
}
