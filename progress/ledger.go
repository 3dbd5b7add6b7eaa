package progress

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"crewportal/api/catalog"
	"crewportal/api/models"
)

// Ledger records per-user, per-section visit state. All mutations go through
// the store's atomic merge so concurrent sessions for the same user never
// lose dwell time, and every successful mutation is published to the notifier
// with a refreshed breakdown.
type Ledger struct {
	store      Store
	catalog    *catalog.Catalog
	aggregator *Aggregator
	notifier   *Notifier
	audit      AuditSink // optional
	clock      Clock
}

func NewLedger(store Store, cat *catalog.Catalog, agg *Aggregator, notifier *Notifier, audit AuditSink, clock Clock) *Ledger {
	if clock == nil {
		clock = RealClock{}
	}
	return &Ledger{
		store:      store,
		catalog:    cat,
		aggregator: agg,
		notifier:   notifier,
		audit:      audit,
		clock:      clock,
	}
}

// RecordVisit merges one reported dwell interval into the user's record for
// the section. The ledger trusts each caller's dwellSeconds once; not
// resubmitting the same interval is the caller's job. Returns the refreshed
// breakdown so the caller sees its own write. clientIP is recorded on the
// audit event only; pass "" when there is no originating request.
func (l *Ledger) RecordVisit(ctx context.Context, userID, sectionID string, dwellSeconds int, clientIP string) (*models.ProgressBreakdown, error) {
	if dwellSeconds < 0 {
		return nil, fmt.Errorf("dwellSeconds must be >= 0, got %d", dwellSeconds)
	}
	def, ok := l.catalog.PolicyFor(sectionID)
	if !ok {
		log.Printf("RecordVisit: section %q not in catalog, skipping (user %s)", sectionID, userID)
		return nil, fmt.Errorf("section %q: %w", sectionID, ErrUnknownSection)
	}

	now := l.clock.Now()
	rec, err := l.store.UpsertVisit(ctx, userID, sectionID, dwellSeconds, def.RequiredDwellSeconds, now)
	if err != nil {
		return nil, fmt.Errorf("record visit for %s/%s: %w", userID, sectionID, err)
	}

	bd := l.publish(ctx, userID, EventVisitRecorded)
	l.appendAudit(ctx, models.VisitAuditEvent{
		EventID:           uuid.New().String(),
		UserEmail:         userID,
		SectionID:         sectionID,
		EventType:         "visit",
		Timestamp:         now,
		DwellSeconds:      dwellSeconds,
		CumulativeSeconds: rec.CumulativeSeconds,
		Completed:         rec.Completed,
		IPAddress:         clientIP,
	})
	return bd, nil
}

// AdminOverrideVisit force-completes a section for a user. It exists for
// administrative corrections and goes through the same atomic update and
// notification path as RecordVisit, never a raw field write.
func (l *Ledger) AdminOverrideVisit(ctx context.Context, userID, sectionID, clientIP string) (*models.ProgressBreakdown, error) {
	def, ok := l.catalog.PolicyFor(sectionID)
	if !ok {
		return nil, fmt.Errorf("section %q: %w", sectionID, ErrUnknownSection)
	}

	now := l.clock.Now()
	rec, err := l.store.OverrideVisit(ctx, userID, sectionID, def.RequiredDwellSeconds, now)
	if err != nil {
		return nil, fmt.Errorf("override visit for %s/%s: %w", userID, sectionID, err)
	}
	log.Printf("AdminOverrideVisit: section %s force-completed for user %s", sectionID, userID)

	bd := l.publish(ctx, userID, EventVisitRecorded)
	l.appendAudit(ctx, models.VisitAuditEvent{
		EventID:           uuid.New().String(),
		UserEmail:         userID,
		SectionID:         sectionID,
		EventType:         "override",
		Timestamp:         now,
		CumulativeSeconds: rec.CumulativeSeconds,
		Completed:         rec.Completed,
		IPAddress:         clientIP,
	})
	return bd, nil
}

// publish recomputes the breakdown and fans it out to the user's
// subscribers. A failed recompute after a successful write is logged, not
// surfaced: the write already happened.
func (l *Ledger) publish(ctx context.Context, userID string, kind EventKind) *models.ProgressBreakdown {
	bd, err := l.aggregator.Breakdown(ctx, userID)
	if err != nil {
		log.Printf("ERROR: recompute breakdown for %s after write: %v", userID, err)
	}
	if bd != nil && l.notifier != nil {
		l.notifier.Publish(Event{
			UserID:    userID,
			Kind:      kind,
			At:        l.clock.Now(),
			Breakdown: bd,
		})
	}
	return bd
}

func (l *Ledger) appendAudit(ctx context.Context, ev models.VisitAuditEvent) {
	if l.audit == nil {
		return
	}
	if err := l.audit.Append(ctx, []models.VisitAuditEvent{ev}); err != nil {
		log.Printf("ERROR: append audit event %s: %v", ev.EventID, err)
	}
}
