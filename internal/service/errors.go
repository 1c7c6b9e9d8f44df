package service

import "errors"

// Domain failures surfaced to callers. Handlers map these to HTTP statuses
// with errors.Is; anything else is an internal error and stays opaque.
var (
	// ErrRegistrationClosed is returned when the event is not accepting registrations.
	ErrRegistrationClosed = errors.New("event is not accepting registrations")

	// ErrAlreadyRegistered is returned when the user already holds an active
	// registration for the event.
	ErrAlreadyRegistered = errors.New("user is already registered for this event")

	// ErrCapacityExceeded is returned when the event is full and has no waitlist.
	ErrCapacityExceeded = errors.New("event is fully booked")

	// ErrWaitlistFull is returned when the waitlist is at its configured limit.
	ErrWaitlistFull = errors.New("event waitlist is full")

	// ErrForbidden is returned when the caller does not own the registration.
	ErrForbidden = errors.New("registration belongs to another user")

	// ErrAlreadyCancelled guards against double cancellation.
	ErrAlreadyCancelled = errors.New("registration is already cancelled")

	// ErrInvalidStateTransition is returned when an operation's guard is not
	// satisfied by the registration's current status.
	ErrInvalidStateTransition = errors.New("operation not allowed in current registration status")
)
