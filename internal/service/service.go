// Package service implements the registration lifecycle: admission decisions
// against event capacity, waitlist ordering, the promotion cascade, and the
// notification intents each transition emits. Every check-then-act sequence
// runs inside the store's per-event lock so concurrent requests for the same
// event serialise; requests for different events proceed in parallel.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/anshulpatel/event-waitlist-service/internal/metrics"
	"github.com/anshulpatel/event-waitlist-service/internal/model"
	"github.com/anshulpatel/event-waitlist-service/internal/notify"
	"github.com/anshulpatel/event-waitlist-service/internal/repository"
)

// Notifier hands a notification intent to the delivery worker. Emission is
// fire-and-forget: it must never block or fail the triggering transition.
type Notifier interface {
	Emit(intent notify.Intent)
}

// Service orchestrates registration state transitions.
type Service struct {
	store    repository.Store
	notifier Notifier
	metrics  *metrics.Metrics
	log      *slog.Logger
	counts   *gocache.Cache
	now      func() time.Time
}

// New constructs a Service. countsTTL bounds how stale a cached GetCounts
// result may be; mutations invalidate the entry inside the locked section.
func New(store repository.Store, notifier Notifier, m *metrics.Metrics, log *slog.Logger, countsTTL time.Duration) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		metrics:  m,
		log:      log,
		counts:   gocache.New(countsTTL, 10*countsTTL),
		now:      time.Now,
	}
}

// Register admits a user to an event: confirmed while capacity remains,
// waitlisted at the tail when the event is full and has waitlist room,
// rejected otherwise. The count reads and the create are one atomic unit
// under the event lock, so concurrent requests can never overbook.
func (s *Service) Register(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	userID = strings.TrimSpace(userID)
	if eventID == "" {
		return nil, fmt.Errorf("event id is required")
	}
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	var (
		reg        *model.Registration
		intentType model.NotificationType
	)
	err := s.store.WithEventLock(ctx, eventID, func(tx repository.Tx) error {
		event, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if !event.RegistrationOpen {
			return ErrRegistrationClosed
		}

		if _, err := tx.FindActiveByUserEvent(ctx, eventID, userID); err == nil {
			return ErrAlreadyRegistered
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		confirmed, err := tx.CountByStatus(ctx, eventID, model.SeatHolderStatuses...)
		if err != nil {
			return err
		}
		waitlisted, err := tx.CountByStatus(ctx, eventID, model.StatusWaitlisted)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		base := model.Registration{
			ID:           uuid.New().String(),
			EventID:      eventID,
			UserID:       userID,
			RegisteredAt: now,
		}
		switch decide(event, confirmed, waitlisted) {
		case outcomeConfirm:
			base.Status = model.StatusConfirmed
			base.ConfirmedAt = &now
			intentType = model.NotificationRegistrationConfirmation
		case outcomeWaitlist:
			pos := waitlisted + 1
			base.Status = model.StatusWaitlisted
			base.WaitlistPosition = &pos
			intentType = model.NotificationWaitlistAddition
		case outcomeRejectCapacity:
			return ErrCapacityExceeded
		case outcomeRejectWaitlistFull:
			return ErrWaitlistFull
		}

		if err := tx.CreateRegistration(ctx, &base); err != nil {
			return err
		}
		reg = &base
		s.counts.Delete(eventID)
		return nil
	})
	if err != nil {
		if reason := rejectionReason(err); reason != "" {
			s.metrics.RegistrationsRejected.WithLabelValues(reason).Inc()
		}
		return nil, err
	}

	if reg.Status == model.StatusConfirmed {
		s.metrics.RegistrationsConfirmed.Inc()
	} else {
		s.metrics.RegistrationsWaitlisted.Inc()
	}
	s.emit(reg, intentType)
	return reg, nil
}

// Cancel marks a registration cancelled. Cancelling a seat holder frees a
// confirmed slot and, when the event auto-promotes, runs the promotion
// cascade in the same locked scope so the slot is handed over atomically.
func (s *Service) Cancel(ctx context.Context, registrationID, userID, reason string) (*model.Registration, error) {
	existing, err := s.store.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}

	var cancelled, promoted *model.Registration
	err = s.store.WithEventLock(ctx, existing.EventID, func(tx repository.Tx) error {
		reg, err := tx.GetRegistration(ctx, registrationID)
		if err != nil {
			return err
		}
		if reg.UserID != userID {
			return ErrForbidden
		}
		if reg.Status == model.StatusCancelled {
			return ErrAlreadyCancelled
		}

		freesSlot := reg.Status == model.StatusConfirmed || reg.Status == model.StatusAttended
		wasWaitlisted := reg.Status == model.StatusWaitlisted

		now := s.now().UTC()
		reg.Status = model.StatusCancelled
		reg.CancelledAt = &now
		reg.WaitlistPosition = nil
		if reason = strings.TrimSpace(reason); reason != "" {
			reg.CancellationReason = &reason
		}
		if err := tx.UpdateRegistration(ctx, reg); err != nil {
			return err
		}

		if wasWaitlisted {
			if err := s.reflowWaitlist(ctx, tx, reg.EventID); err != nil {
				return err
			}
		}
		if freesSlot {
			event, err := tx.GetEvent(ctx, reg.EventID)
			if err != nil {
				return err
			}
			if event.AutoPromote {
				p, err := s.promoteHead(ctx, tx, reg.EventID)
				if err != nil {
					return err
				}
				promoted = p
			}
		}

		cancelled = reg
		s.counts.Delete(reg.EventID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Cancellations.Inc()
	if promoted != nil {
		s.metrics.Promotions.Inc()
		s.log.Info("promoted head of waitlist",
			"event_id", promoted.EventID,
			"registration_id", promoted.ID,
			"vacated_by", cancelled.ID)
		s.emit(promoted, model.NotificationWaitlistPromotion)
	}
	return cancelled, nil
}

// AdminPromote confirms a waitlisted registration out of queue order. The
// remaining waitlist reflows to close the gap.
func (s *Service) AdminPromote(ctx context.Context, registrationID string) (*model.Registration, error) {
	existing, err := s.store.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}

	var promoted *model.Registration
	err = s.store.WithEventLock(ctx, existing.EventID, func(tx repository.Tx) error {
		reg, err := tx.GetRegistration(ctx, registrationID)
		if err != nil {
			return err
		}
		if reg.Status != model.StatusWaitlisted {
			return ErrInvalidStateTransition
		}

		now := s.now().UTC()
		reg.Status = model.StatusConfirmed
		reg.WaitlistPosition = nil
		reg.ConfirmedAt = &now
		reg.PromotedFromWaitlistAt = &now
		if err := tx.UpdateRegistration(ctx, reg); err != nil {
			return err
		}
		if err := s.reflowWaitlist(ctx, tx, reg.EventID); err != nil {
			return err
		}

		promoted = reg
		s.counts.Delete(reg.EventID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Promotions.Inc()
	s.emit(promoted, model.NotificationWaitlistPromotion)
	return promoted, nil
}

// AdminDemote moves a confirmed registration to the waitlist tail. The
// waitlist bound still applies: a demotion may not push the waitlist past its
// configured capacity.
func (s *Service) AdminDemote(ctx context.Context, registrationID string) (*model.Registration, error) {
	existing, err := s.store.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}

	var demoted *model.Registration
	err = s.store.WithEventLock(ctx, existing.EventID, func(tx repository.Tx) error {
		reg, err := tx.GetRegistration(ctx, registrationID)
		if err != nil {
			return err
		}
		if reg.Status != model.StatusConfirmed {
			return ErrInvalidStateTransition
		}

		event, err := tx.GetEvent(ctx, reg.EventID)
		if err != nil {
			return err
		}
		if !event.HasWaitlist {
			return ErrInvalidStateTransition
		}
		waitlisted, err := tx.CountByStatus(ctx, reg.EventID, model.StatusWaitlisted)
		if err != nil {
			return err
		}
		if waitlisted >= event.WaitlistCapacity {
			return ErrWaitlistFull
		}

		pos := waitlisted + 1
		reg.Status = model.StatusWaitlisted
		reg.WaitlistPosition = &pos
		reg.ConfirmedAt = nil
		if err := tx.UpdateRegistration(ctx, reg); err != nil {
			return err
		}

		demoted = reg
		s.counts.Delete(reg.EventID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Demotions.Inc()
	return demoted, nil
}

// MarkAttended records attendance for a confirmed registration. Calling it
// again on an attended registration is a no-op.
func (s *Service) MarkAttended(ctx context.Context, registrationID string) (*model.Registration, error) {
	existing, err := s.store.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}

	var attended *model.Registration
	err = s.store.WithEventLock(ctx, existing.EventID, func(tx repository.Tx) error {
		reg, err := tx.GetRegistration(ctx, registrationID)
		if err != nil {
			return err
		}
		switch reg.Status {
		case model.StatusAttended:
			attended = reg
			return nil
		case model.StatusConfirmed:
			now := s.now().UTC()
			reg.Status = model.StatusAttended
			reg.AttendedAt = &now
			if err := tx.UpdateRegistration(ctx, reg); err != nil {
				return err
			}
			attended = reg
			s.counts.Delete(reg.EventID)
			return nil
		default:
			return ErrInvalidStateTransition
		}
	})
	if err != nil {
		return nil, err
	}
	return attended, nil
}

// GetCounts returns registration totals for an event. It reads without the
// event lock and serves a short-lived cache, so results may trail in-flight
// mutations slightly; the counts are informational, not decision inputs.
func (s *Service) GetCounts(ctx context.Context, eventID string) (*model.Counts, error) {
	if cached, ok := s.counts.Get(eventID); ok {
		counts := cached.(model.Counts)
		return &counts, nil
	}

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	counts := model.Counts{Capacity: event.Capacity}
	for status, dst := range map[model.Status]*int{
		model.StatusConfirmed:  &counts.Confirmed,
		model.StatusWaitlisted: &counts.Waitlisted,
		model.StatusCancelled:  &counts.Cancelled,
		model.StatusAttended:   &counts.Attended,
	} {
		n, err := s.store.CountByStatus(ctx, eventID, status)
		if err != nil {
			return nil, err
		}
		*dst = n
	}
	if !event.Unlimited() {
		available := event.Capacity - counts.Confirmed - counts.Attended
		if available < 0 {
			available = 0
		}
		counts.Available = &available
	}

	s.counts.Set(eventID, counts, gocache.DefaultExpiration)
	return &counts, nil
}

func (s *Service) emit(reg *model.Registration, t model.NotificationType) {
	s.notifier.Emit(notify.Intent{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		UserID:         reg.UserID,
		Type:           t,
	})
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrWaitlistFull):
		return "waitlist_full"
	case errors.Is(err, ErrAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, ErrRegistrationClosed):
		return "registration_closed"
	default:
		return ""
	}
}
