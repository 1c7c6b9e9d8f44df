package service

import (
	"context"
	"fmt"

	"github.com/anshulpatel/event-waitlist-service/internal/model"
	"github.com/anshulpatel/event-waitlist-service/internal/repository"
)

// reflowWaitlist rewrites waitlist positions to the contiguous sequence 1..N,
// preserving relative order, closing any gap left by a removal or promotion.
// Entries already at their target position are skipped, which makes a reflow
// with nothing to change a no-op.
func (s *Service) reflowWaitlist(ctx context.Context, tx repository.Tx, eventID string) error {
	waiting, err := tx.ListWaitlisted(ctx, eventID)
	if err != nil {
		return fmt.Errorf("reflow waitlist: %w", err)
	}
	for i := range waiting {
		want := i + 1
		if waiting[i].WaitlistPosition != nil && *waiting[i].WaitlistPosition == want {
			continue
		}
		pos := want
		waiting[i].WaitlistPosition = &pos
		if err := tx.UpdateRegistration(ctx, &waiting[i]); err != nil {
			return fmt.Errorf("reflow waitlist: %w", err)
		}
	}
	return nil
}

// promoteHead executes the promotion cascade for one vacated confirmed slot:
// the head of the waitlist becomes confirmed and the remainder reflows.
// Exactly one registration is promoted; the cascade never chains. Returns nil
// when the waitlist is empty.
func (s *Service) promoteHead(ctx context.Context, tx repository.Tx, eventID string) (*model.Registration, error) {
	waiting, err := tx.ListWaitlisted(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("promote head: %w", err)
	}
	if len(waiting) == 0 {
		return nil, nil
	}

	head := waiting[0]
	now := s.now().UTC()
	head.Status = model.StatusConfirmed
	head.WaitlistPosition = nil
	head.ConfirmedAt = &now
	head.PromotedFromWaitlistAt = &now
	if err := tx.UpdateRegistration(ctx, &head); err != nil {
		return nil, fmt.Errorf("promote head: %w", err)
	}

	if err := s.reflowWaitlist(ctx, tx, eventID); err != nil {
		return nil, err
	}
	return &head, nil
}
