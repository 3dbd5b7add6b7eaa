package progress

import (
	"context"
	"time"

	"crewportal/api/models"
)

// Store is the persistence boundary for the tracking engine. Implementations
// must make UpsertVisit, OverrideVisit and Acknowledge atomic per key: the
// read-modify-write may never be a plain read followed by a write, or
// concurrent sessions lose dwell time.
type Store interface {
	// UpsertVisit merges one reported visit into the (userID, sectionID)
	// record: creates the record on first visit, otherwise adds dwellSeconds
	// to the accumulated total, refreshes lastVisit and recomputes the
	// completed flag as a monotonic OR against requiredSeconds. Also bumps
	// the user's lastActive. Returns the merged record.
	UpsertVisit(ctx context.Context, userID, sectionID string, dwellSeconds, requiredSeconds int, now time.Time) (*models.VisitRecord, error)

	// OverrideVisit force-completes the (userID, sectionID) record, raising
	// cumulative seconds to at least requiredSeconds. Same atomicity rules as
	// UpsertVisit.
	OverrideVisit(ctx context.Context, userID, sectionID string, requiredSeconds int, now time.Time) (*models.VisitRecord, error)

	// VisitRecords returns all visit records for the user keyed by section
	// id. A user with no visits yet returns an empty map, not an error.
	VisitRecords(ctx context.Context, userID string) (map[string]models.VisitRecord, error)

	// UserState returns the per-user progress fields (role, blocked,
	// acknowledged, lastActive). ErrUnknownUser when the user does not exist.
	UserState(ctx context.Context, userID string) (*models.User, error)

	// Acknowledge flips the one-way acknowledged flag. The check-and-set is
	// atomic: exactly one concurrent caller succeeds, the rest get
	// ErrAlreadyAcknowledged.
	Acknowledge(ctx context.Context, userID string, now time.Time) error

	// ListUsers returns progress state for every known user.
	ListUsers(ctx context.Context) ([]models.User, error)
}

// AuditSink receives append-only copies of ledger mutations for engagement
// analytics. Sinks are best-effort: a sink failure never fails the write
// path.
type AuditSink interface {
	Append(ctx context.Context, events []models.VisitAuditEvent) error
}
