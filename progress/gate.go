package progress

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"crewportal/api/models"
)

// Gate controls the one-time training acknowledgement. Eligibility is always
// recomputed server-side at submission time; a client-reported "100%" is
// never trusted.
type Gate struct {
	store      Store
	aggregator *Aggregator
	notifier   *Notifier
	audit      AuditSink // optional
	clock      Clock
}

func NewGate(store Store, agg *Aggregator, notifier *Notifier, audit AuditSink, clock Clock) *Gate {
	if clock == nil {
		clock = RealClock{}
	}
	return &Gate{
		store:      store,
		aggregator: agg,
		notifier:   notifier,
		audit:      audit,
		clock:      clock,
	}
}

// SubmitAcknowledgement flips the acknowledged flag if the user is eligible.
// The flag-set itself is a conditional update in the store, so two concurrent
// submissions that both pass the eligibility check still resolve to exactly
// one success; the loser gets ErrAlreadyAcknowledged. clientIP is recorded on
// the audit event only; pass "" when there is no originating request.
func (g *Gate) SubmitAcknowledgement(ctx context.Context, userID, clientIP string) error {
	bd, err := g.aggregator.Breakdown(ctx, userID)
	if err != nil {
		return fmt.Errorf("acknowledgement eligibility check for %s: %w", userID, err)
	}
	if !bd.CanAcknowledge {
		if bd.Acknowledged {
			return ErrAlreadyAcknowledged
		}
		return ErrIncompleteProgress
	}

	now := g.clock.Now()
	if err := g.store.Acknowledge(ctx, userID, now); err != nil {
		return fmt.Errorf("acknowledge %s: %w", userID, err)
	}
	log.Printf("Training acknowledged by %s", userID)

	if refreshed, err := g.aggregator.Breakdown(ctx, userID); err == nil && g.notifier != nil {
		g.notifier.Publish(Event{
			UserID:    userID,
			Kind:      EventAcknowledged,
			At:        now,
			Breakdown: refreshed,
		})
	}
	if g.audit != nil {
		ev := models.VisitAuditEvent{
			EventID:   uuid.New().String(),
			UserEmail: userID,
			EventType: "acknowledged",
			Timestamp: now,
			Completed: true,
			IPAddress: clientIP,
		}
		if err := g.audit.Append(ctx, []models.VisitAuditEvent{ev}); err != nil {
			log.Printf("ERROR: append acknowledgement audit event: %v", err)
		}
	}
	return nil
}
