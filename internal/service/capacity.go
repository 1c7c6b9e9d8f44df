package service

import "github.com/anshulpatel/event-waitlist-service/internal/model"

// outcome classifies a registration request.
type outcome int

const (
	outcomeConfirm outcome = iota
	outcomeWaitlist
	outcomeRejectCapacity
	outcomeRejectWaitlistFull
)

// decide computes the outcome for a new registration from current counts and
// event configuration. Pure function, no I/O; callers must hold the per-event
// lock so the counts it sees cannot go stale before the dependent write.
func decide(event *model.Event, confirmedCount, waitlistedCount int) outcome {
	if event.Unlimited() || confirmedCount < event.Capacity {
		return outcomeConfirm
	}
	if !event.HasWaitlist {
		return outcomeRejectCapacity
	}
	if waitlistedCount >= event.WaitlistCapacity {
		return outcomeRejectWaitlistFull
	}
	return outcomeWaitlist
}
