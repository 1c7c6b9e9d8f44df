package service_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"github.com/anshulpatel/event-waitlist-service/internal/metrics"
	"github.com/anshulpatel/event-waitlist-service/internal/model"
	"github.com/anshulpatel/event-waitlist-service/internal/notify"
	"github.com/anshulpatel/event-waitlist-service/internal/repository"
	"github.com/anshulpatel/event-waitlist-service/internal/service"
)

// intentRecorder captures emitted notification intents for assertions.
type intentRecorder struct {
	mu      sync.Mutex
	intents []notify.Intent
}

func (r *intentRecorder) Emit(intent notify.Intent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, intent)
}

func (r *intentRecorder) byType(t model.NotificationType) []notify.Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Intent
	for _, i := range r.intents {
		if i.Type == t {
			out = append(out, i)
		}
	}
	return out
}

func newTestService(lockWait time.Duration) (*service.Service, *repository.Memory, *intentRecorder) {
	store := repository.NewMemory(lockWait)
	recorder := &intentRecorder{}
	m := metrics.New(prometheus.NewRegistry())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return service.New(store, recorder, m, log, time.Second), store, recorder
}

type ServiceSuite struct {
	suite.Suite
	svc      *service.Service
	store    *repository.Memory
	notifier *intentRecorder
	ctx      context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.svc, s.store, s.notifier = newTestService(time.Second)
	s.ctx = context.Background()
}

func (s *ServiceSuite) createEvent(capacity int, hasWaitlist bool, waitlistCapacity int, autoPromote bool) *model.Event {
	event, err := s.svc.CreateEvent(s.ctx, model.CreateEventRequest{
		Name:             "GopherCon",
		Capacity:         capacity,
		HasWaitlist:      hasWaitlist,
		WaitlistCapacity: waitlistCapacity,
		AutoPromote:      &autoPromote,
	})
	s.Require().NoError(err)
	return event
}

func (s *ServiceSuite) register(eventID, userID string) *model.Registration {
	reg, err := s.svc.Register(s.ctx, eventID, userID)
	s.Require().NoError(err)
	return reg
}

// ─── Register ─────────────────────────────────────────────────────────────────

func (s *ServiceSuite) TestRegisterCapacityNoWaitlist() {
	event := s.createEvent(2, false, 0, false)

	r1 := s.register(event.ID, "u1")
	s.Equal(model.StatusConfirmed, r1.Status)
	s.NotNil(r1.ConfirmedAt)
	s.Nil(r1.WaitlistPosition)

	r2 := s.register(event.ID, "u2")
	s.Equal(model.StatusConfirmed, r2.Status)

	_, err := s.svc.Register(s.ctx, event.ID, "u3")
	s.ErrorIs(err, service.ErrCapacityExceeded)

	s.Len(s.notifier.byType(model.NotificationRegistrationConfirmation), 2)
}

func (s *ServiceSuite) TestRegisterOverflowsToWaitlist() {
	event := s.createEvent(1, true, 2, true)

	s.register(event.ID, "u1")

	r2 := s.register(event.ID, "u2")
	s.Equal(model.StatusWaitlisted, r2.Status)
	s.Require().NotNil(r2.WaitlistPosition)
	s.Equal(1, *r2.WaitlistPosition)
	s.Nil(r2.ConfirmedAt)

	r3 := s.register(event.ID, "u3")
	s.Require().NotNil(r3.WaitlistPosition)
	s.Equal(2, *r3.WaitlistPosition)

	_, err := s.svc.Register(s.ctx, event.ID, "u4")
	s.ErrorIs(err, service.ErrWaitlistFull)

	s.Len(s.notifier.byType(model.NotificationWaitlistAddition), 2)
}

func (s *ServiceSuite) TestRegisterUnlimitedCapacity() {
	event := s.createEvent(0, false, 0, false)

	for i := 0; i < 100; i++ {
		reg := s.register(event.ID, userN(i))
		s.Equal(model.StatusConfirmed, reg.Status)
	}

	counts, err := s.svc.GetCounts(s.ctx, event.ID)
	s.Require().NoError(err)
	s.Equal(100, counts.Confirmed)
	s.Nil(counts.Available)
}

func (s *ServiceSuite) TestRegisterTwiceFails() {
	event := s.createEvent(5, false, 0, false)

	s.register(event.ID, "u1")
	_, err := s.svc.Register(s.ctx, event.ID, "u1")
	s.ErrorIs(err, service.ErrAlreadyRegistered)

	// a waitlisted registration also counts as active
	full := s.createEvent(1, true, 5, true)
	s.register(full.ID, "a")
	s.register(full.ID, "b")
	_, err = s.svc.Register(s.ctx, full.ID, "b")
	s.ErrorIs(err, service.ErrAlreadyRegistered)
}

func (s *ServiceSuite) TestRegisterAfterCancelAllowed() {
	event := s.createEvent(2, false, 0, false)

	r1 := s.register(event.ID, "u1")
	_, err := s.svc.Cancel(s.ctx, r1.ID, "u1", "")
	s.Require().NoError(err)

	r2 := s.register(event.ID, "u1")
	s.Equal(model.StatusConfirmed, r2.Status)
	s.NotEqual(r1.ID, r2.ID)
}

func (s *ServiceSuite) TestRegisterClosedEvent() {
	closed := false
	event, err := s.svc.CreateEvent(s.ctx, model.CreateEventRequest{
		Name:             "Closed",
		Capacity:         10,
		RegistrationOpen: &closed,
	})
	s.Require().NoError(err)

	_, err = s.svc.Register(s.ctx, event.ID, "u1")
	s.ErrorIs(err, service.ErrRegistrationClosed)
}

func (s *ServiceSuite) TestRegisterUnknownEvent() {
	_, err := s.svc.Register(s.ctx, "missing", "u1")
	s.ErrorIs(err, repository.ErrNotFound)
}

// ─── Cancel and the promotion cascade ─────────────────────────────────────────

func (s *ServiceSuite) TestCancelConfirmedPromotesHead() {
	event := s.createEvent(1, true, 2, true)
	r1 := s.register(event.ID, "u1")
	r2 := s.register(event.ID, "u2")
	r3 := s.register(event.ID, "u3")

	cancelled, err := s.svc.Cancel(s.ctx, r1.ID, "u1", "conflict")
	s.Require().NoError(err)
	s.Equal(model.StatusCancelled, cancelled.Status)
	s.NotNil(cancelled.CancelledAt)
	s.Require().NotNil(cancelled.CancellationReason)
	s.Equal("conflict", *cancelled.CancellationReason)

	// head of the waitlist is promoted, exactly once
	promoted, err := s.store.GetRegistration(s.ctx, r2.ID)
	s.Require().NoError(err)
	s.Equal(model.StatusConfirmed, promoted.Status)
	s.Nil(promoted.WaitlistPosition)
	s.NotNil(promoted.ConfirmedAt)
	s.NotNil(promoted.PromotedFromWaitlistAt)

	// the remaining waitlist reflows to position 1
	rest, err := s.store.GetRegistration(s.ctx, r3.ID)
	s.Require().NoError(err)
	s.Equal(model.StatusWaitlisted, rest.Status)
	s.Require().NotNil(rest.WaitlistPosition)
	s.Equal(1, *rest.WaitlistPosition)

	promotions := s.notifier.byType(model.NotificationWaitlistPromotion)
	s.Require().Len(promotions, 1)
	s.Equal(r2.ID, promotions[0].RegistrationID)
}

func (s *ServiceSuite) TestCancelWithAutoPromoteDisabled() {
	event := s.createEvent(1, true, 2, false)
	r1 := s.register(event.ID, "u1")
	r2 := s.register(event.ID, "u2")

	_, err := s.svc.Cancel(s.ctx, r1.ID, "u1", "")
	s.Require().NoError(err)

	// slot stays open, waitlist untouched
	still, err := s.store.GetRegistration(s.ctx, r2.ID)
	s.Require().NoError(err)
	s.Equal(model.StatusWaitlisted, still.Status)
	s.Empty(s.notifier.byType(model.NotificationWaitlistPromotion))

	// the open slot goes to the next register call
	r3 := s.register(event.ID, "u3")
	s.Equal(model.StatusConfirmed, r3.Status)
}

func (s *ServiceSuite) TestCancelWaitlistedReflowsOnly() {
	event := s.createEvent(1, true, 5, true)
	s.register(event.ID, "u1")
	r2 := s.register(event.ID, "u2")
	r3 := s.register(event.ID, "u3")
	r4 := s.register(event.ID, "u4")

	_, err := s.svc.Cancel(s.ctx, r2.ID, "u2", "")
	s.Require().NoError(err)

	for i, id := range []string{r3.ID, r4.ID} {
		reg, err := s.store.GetRegistration(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(model.StatusWaitlisted, reg.Status)
		s.Require().NotNil(reg.WaitlistPosition)
		s.Equal(i+1, *reg.WaitlistPosition)
	}
	s.Empty(s.notifier.byType(model.NotificationWaitlistPromotion))
}

func (s *ServiceSuite) TestCancelGuards() {
	event := s.createEvent(1, false, 0, false)
	r1 := s.register(event.ID, "u1")

	_, err := s.svc.Cancel(s.ctx, "missing", "u1", "")
	s.ErrorIs(err, repository.ErrNotFound)

	_, err = s.svc.Cancel(s.ctx, r1.ID, "intruder", "")
	s.ErrorIs(err, service.ErrForbidden)

	_, err = s.svc.Cancel(s.ctx, r1.ID, "u1", "")
	s.Require().NoError(err)
	_, err = s.svc.Cancel(s.ctx, r1.ID, "u1", "")
	s.ErrorIs(err, service.ErrAlreadyCancelled)
}

func (s *ServiceSuite) TestCancelAttendedFreesSlot() {
	event := s.createEvent(1, true, 2, true)
	r1 := s.register(event.ID, "u1")
	r2 := s.register(event.ID, "u2")

	_, err := s.svc.MarkAttended(s.ctx, r1.ID)
	s.Require().NoError(err)

	_, err = s.svc.Cancel(s.ctx, r1.ID, "u1", "left early")
	s.Require().NoError(err)

	promoted, err := s.store.GetRegistration(s.ctx, r2.ID)
	s.Require().NoError(err)
	s.Equal(model.StatusConfirmed, promoted.Status)
}

// ─── Admin promote / demote ───────────────────────────────────────────────────

func (s *ServiceSuite) TestAdminPromoteOutOfOrder() {
	event := s.createEvent(1, true, 5, true)
	s.register(event.ID, "u1")
	r2 := s.register(event.ID, "u2")
	r3 := s.register(event.ID, "u3")
	r4 := s.register(event.ID, "u4")

	promoted, err := s.svc.AdminPromote(s.ctx, r3.ID)
	s.Require().NoError(err)
	s.Equal(model.StatusConfirmed, promoted.Status)
	s.Nil(promoted.WaitlistPosition)
	s.NotNil(promoted.PromotedFromWaitlistAt)

	// gap closes: u2 stays at 1, u4 moves to 2
	for id, want := range map[string]int{r2.ID: 1, r4.ID: 2} {
		reg, err := s.store.GetRegistration(s.ctx, id)
		s.Require().NoError(err)
		s.Require().NotNil(reg.WaitlistPosition)
		s.Equal(want, *reg.WaitlistPosition)
	}

	promotions := s.notifier.byType(model.NotificationWaitlistPromotion)
	s.Require().Len(promotions, 1)
	s.Equal(r3.ID, promotions[0].RegistrationID)
}

func (s *ServiceSuite) TestAdminPromoteRequiresWaitlisted() {
	event := s.createEvent(2, false, 0, false)
	r1 := s.register(event.ID, "u1")

	_, err := s.svc.AdminPromote(s.ctx, r1.ID)
	s.ErrorIs(err, service.ErrInvalidStateTransition)
}

func (s *ServiceSuite) TestAdminDemoteAppendsToTail() {
	event := s.createEvent(2, true, 5, true)
	r1 := s.register(event.ID, "u1")
	s.register(event.ID, "u2")
	s.register(event.ID, "u3") // waitlist pos 1

	demoted, err := s.svc.AdminDemote(s.ctx, r1.ID)
	s.Require().NoError(err)
	s.Equal(model.StatusWaitlisted, demoted.Status)
	s.Require().NotNil(demoted.WaitlistPosition)
	s.Equal(2, *demoted.WaitlistPosition)
	s.Nil(demoted.ConfirmedAt)
}

func (s *ServiceSuite) TestAdminDemoteGuards() {
	event := s.createEvent(2, true, 1, true)
	r1 := s.register(event.ID, "u1")
	s.register(event.ID, "u2")
	r3 := s.register(event.ID, "u3") // fills the waitlist

	_, err := s.svc.AdminDemote(s.ctx, r3.ID)
	s.ErrorIs(err, service.ErrInvalidStateTransition, "demoting a waitlisted registration")

	_, err = s.svc.AdminDemote(s.ctx, r1.ID)
	s.ErrorIs(err, service.ErrWaitlistFull)

	noWaitlist := s.createEvent(2, false, 0, false)
	r4 := s.register(noWaitlist.ID, "u4")
	_, err = s.svc.AdminDemote(s.ctx, r4.ID)
	s.ErrorIs(err, service.ErrInvalidStateTransition)
}

// ─── Attendance ───────────────────────────────────────────────────────────────

func (s *ServiceSuite) TestMarkAttendedIdempotent() {
	event := s.createEvent(2, false, 0, false)
	r1 := s.register(event.ID, "u1")

	first, err := s.svc.MarkAttended(s.ctx, r1.ID)
	s.Require().NoError(err)
	s.Equal(model.StatusAttended, first.Status)
	s.Require().NotNil(first.AttendedAt)

	second, err := s.svc.MarkAttended(s.ctx, r1.ID)
	s.Require().NoError(err)
	s.Equal(model.StatusAttended, second.Status)
	s.Equal(*first.AttendedAt, *second.AttendedAt)
}

func (s *ServiceSuite) TestMarkAttendedRequiresConfirmed() {
	event := s.createEvent(1, true, 2, true)
	s.register(event.ID, "u1")
	r2 := s.register(event.ID, "u2")

	_, err := s.svc.MarkAttended(s.ctx, r2.ID)
	s.ErrorIs(err, service.ErrInvalidStateTransition)
}

// ─── Counts ───────────────────────────────────────────────────────────────────

func (s *ServiceSuite) TestGetCounts() {
	event := s.createEvent(3, true, 5, true)
	r1 := s.register(event.ID, "u1")
	s.register(event.ID, "u2")
	r3 := s.register(event.ID, "u3")
	s.register(event.ID, "u4") // waitlisted

	_, err := s.svc.MarkAttended(s.ctx, r3.ID)
	s.Require().NoError(err)
	_, err = s.svc.Cancel(s.ctx, r1.ID, "u1", "")
	s.Require().NoError(err)
	// cascade: u4 promoted into u1's slot

	counts, err := s.svc.GetCounts(s.ctx, event.ID)
	s.Require().NoError(err)
	s.Equal(2, counts.Confirmed)
	s.Equal(0, counts.Waitlisted)
	s.Equal(1, counts.Cancelled)
	s.Equal(1, counts.Attended)
	s.Equal(3, counts.Capacity)
	s.Require().NotNil(counts.Available)
	s.Equal(0, *counts.Available)
}

func (s *ServiceSuite) TestGetCountsInvalidatedOnMutation() {
	event := s.createEvent(5, false, 0, false)
	s.register(event.ID, "u1")

	counts, err := s.svc.GetCounts(s.ctx, event.ID)
	s.Require().NoError(err)
	s.Equal(1, counts.Confirmed)

	s.register(event.ID, "u2")
	counts, err = s.svc.GetCounts(s.ctx, event.ID)
	s.Require().NoError(err)
	s.Equal(2, counts.Confirmed)
}

// ─── Concurrency ──────────────────────────────────────────────────────────────

// TestConcurrentRegistersNeverOverbook drives many parallel registrations at
// one event and checks the confirmed count never exceeds capacity.
func (s *ServiceSuite) TestConcurrentRegistersNeverOverbook() {
	const capacity, attempts = 10, 50
	event := s.createEvent(capacity, false, 0, false)

	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.svc.Register(s.ctx, event.ID, userN(n))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	confirmed, rejected := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			confirmed++
		case errors.Is(err, service.ErrCapacityExceeded):
			rejected++
		default:
			s.FailNow("unexpected error", err)
		}
	}
	s.Equal(capacity, confirmed)
	s.Equal(attempts-capacity, rejected)

	count, err := s.store.CountByStatus(s.ctx, event.ID, model.SeatHolderStatuses...)
	s.Require().NoError(err)
	s.Equal(capacity, count)
}

func (s *ServiceSuite) TestLockContentionFailsBusy() {
	svc, store, _ := newTestService(30 * time.Millisecond)
	event, err := svc.CreateEvent(s.ctx, model.CreateEventRequest{Name: "Busy", Capacity: 5})
	s.Require().NoError(err)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = store.WithEventLock(s.ctx, event.ID, func(repository.Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	_, err = svc.Register(s.ctx, event.ID, "u1")
	s.ErrorIs(err, repository.ErrEventBusy)
	close(release)
}

func userN(n int) string {
	return fmt.Sprintf("user-%d", n)
}
