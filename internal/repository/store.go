// Package repository implements persistence for events and registrations,
// including the per-event exclusion scope that serialises check-then-act
// sequences. Two implementations exist: PostgreSQL (pgx) and in-memory.
package repository

import (
	"context"
	"errors"

	"github.com/anshulpatel/event-waitlist-service/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrEventBusy is returned when the per-event lock could not be acquired in
// time. Callers may retry.
var ErrEventBusy = errors.New("event is busy, retry")

// EventStore handles persistence for events. The engine only reads event
// configuration; creation exists for the admin surface.
type EventStore interface {
	CreateEvent(ctx context.Context, event *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
}

// RegistrationStore handles persistence for registrations.
type RegistrationStore interface {
	CreateRegistration(ctx context.Context, reg *model.Registration) error
	GetRegistration(ctx context.Context, id string) (*model.Registration, error)
	// FindActiveByUserEvent returns the user's confirmed or waitlisted
	// registration for the event, or ErrNotFound.
	FindActiveByUserEvent(ctx context.Context, eventID, userID string) (*model.Registration, error)
	CountByStatus(ctx context.Context, eventID string, statuses ...model.Status) (int, error)
	UpdateRegistration(ctx context.Context, reg *model.Registration) error
	// ListWaitlisted returns waitlisted registrations for the event ordered
	// by position ascending, ties broken by registration time then id.
	ListWaitlisted(ctx context.Context, eventID string) ([]model.Registration, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
}

// Tx is the store surface available inside a per-event locked scope.
type Tx interface {
	EventStore
	RegistrationStore
}

// Store is the full persistence surface. WithEventLock runs fn while holding
// exclusive access to the given event: every count read and dependent write
// inside fn is invisible to concurrent scopes on the same event until fn
// returns. Scopes on different events proceed in parallel. WithEventLock
// returns ErrNotFound when the event does not exist and ErrEventBusy when the
// lock cannot be acquired before the context deadline; it must not be nested.
type Store interface {
	Tx
	WithEventLock(ctx context.Context, eventID string, fn func(tx Tx) error) error
}
