// Package model defines the core domain types for the registration and
// waitlist engine.
package model

import "time"

// Status is the lifecycle state of a registration.
type Status string

const (
	StatusConfirmed  Status = "confirmed"
	StatusWaitlisted Status = "waitlisted"
	StatusCancelled  Status = "cancelled"
	StatusAttended   Status = "attended"
)

// ActiveStatuses are the statuses counting toward the one-active-registration
// rule per (event, user).
var ActiveStatuses = []Status{StatusConfirmed, StatusWaitlisted}

// SeatHolderStatuses are the statuses that occupy a confirmed slot.
var SeatHolderStatuses = []Status{StatusConfirmed, StatusAttended}

// NotificationType identifies the outbound notification intent emitted after
// a registration state transition.
type NotificationType string

const (
	NotificationRegistrationConfirmation NotificationType = "registration_confirmation"
	NotificationWaitlistAddition         NotificationType = "waitlist_addition"
	NotificationWaitlistPromotion        NotificationType = "waitlist_promotion"
)

// Event represents a finite-capacity event open for registration.
// The engine reads event configuration; it never mutates it.
type Event struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Capacity         int       `json:"capacity"` // 0 = unlimited
	HasWaitlist      bool      `json:"has_waitlist"`
	WaitlistCapacity int       `json:"waitlist_capacity"`
	RegistrationOpen bool      `json:"registration_open"`
	AutoPromote      bool      `json:"auto_promote"`
	CreatedAt        time.Time `json:"created_at"`
}

// Unlimited reports whether the event has no capacity bound.
func (e *Event) Unlimited() bool {
	return e.Capacity == 0
}

// Registration represents a user's registration for an event. Records are
// never deleted; cancellation is a terminal status so the audit trail stays.
type Registration struct {
	ID                     string     `json:"id"`
	EventID                string     `json:"event_id"`
	UserID                 string     `json:"user_id"`
	Status                 Status     `json:"status"`
	WaitlistPosition       *int       `json:"waitlist_position,omitempty"`
	RegisteredAt           time.Time  `json:"registered_at"`
	ConfirmedAt            *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt            *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason     *string    `json:"cancellation_reason,omitempty"`
	AttendedAt             *time.Time `json:"attended_at,omitempty"`
	PromotedFromWaitlistAt *time.Time `json:"promoted_from_waitlist_at,omitempty"`
}

// Active reports whether the registration holds or awaits a slot.
func (r *Registration) Active() bool {
	return r.Status == StatusConfirmed || r.Status == StatusWaitlisted
}

// Counts summarises registration totals for one event. Available is nil when
// the event is unlimited.
type Counts struct {
	Confirmed  int  `json:"confirmed"`
	Waitlisted int  `json:"waitlisted"`
	Cancelled  int  `json:"cancelled"`
	Attended   int  `json:"attended"`
	Capacity   int  `json:"capacity"`
	Available  *int `json:"available"`
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	Capacity         int    `json:"capacity"`
	HasWaitlist      bool   `json:"has_waitlist"`
	WaitlistCapacity int    `json:"waitlist_capacity"`
	RegistrationOpen *bool  `json:"registration_open"`
	AutoPromote      *bool  `json:"auto_promote"`
}

// RegisterRequest is the payload for registering a user for an event.
type RegisterRequest struct {
	UserID string `json:"user_id"`
}

// RegisterResponse summarises the outcome of a registration attempt.
type RegisterResponse struct {
	ID               string `json:"id"`
	Status           Status `json:"status"`
	WaitlistPosition *int   `json:"waitlist_position,omitempty"`
	Message          string `json:"message"`
}

// CancelRequest is the payload for cancelling a registration.
type CancelRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
