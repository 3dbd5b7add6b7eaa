package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"crewportal/api/models"
	"crewportal/api/progress"
)

// ProgressStore is the Postgres adapter behind the tracking engine. The
// atomic conditional-update primitive the engine requires is plain SQL: the
// visit merge is a single upsert that adds dwell time and ORs the completed
// flag server-side, and the acknowledgement is a conditional UPDATE guarded
// by acknowledged = FALSE.
type ProgressStore struct {
	db *sql.DB
}

func NewProgressStore(db *sql.DB) *ProgressStore {
	return &ProgressStore{db: db}
}

func (s *ProgressStore) UpsertVisit(ctx context.Context, userID, sectionID string, dwellSeconds, requiredSeconds int, now time.Time) (*models.VisitRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin visit tx", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET last_active = $2, updated_at = $2 WHERE email = $1`,
		userID, now)
	if err != nil {
		return nil, storeErr("update last_active", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, storeErr("update last_active", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("user %q: %w", userID, progress.ErrUnknownUser)
	}

	// Accumulation and the monotonic completed flag are computed inside the
	// upsert, so concurrent sessions merging into the same record can never
	// lose dwell time.
	rec := &models.VisitRecord{}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO visit_records (user_email, section_id, first_visit, last_visit, cumulative_seconds, completed)
		VALUES ($1, $2, $3, $3, $4, $4 >= $5)
		ON CONFLICT (user_email, section_id) DO UPDATE SET
			last_visit         = EXCLUDED.last_visit,
			cumulative_seconds = visit_records.cumulative_seconds + EXCLUDED.cumulative_seconds,
			completed          = visit_records.completed
			                     OR (visit_records.cumulative_seconds + EXCLUDED.cumulative_seconds >= $5)
		RETURNING section_id, first_visit, last_visit, cumulative_seconds, completed;
	`, userID, sectionID, now, dwellSeconds, requiredSeconds).Scan(
		&rec.SectionID,
		&rec.FirstVisit,
		&rec.LastVisit,
		&rec.CumulativeSeconds,
		&rec.Completed,
	)
	if err != nil {
		return nil, storeErr("upsert visit record", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr("commit visit tx", err)
	}
	return rec, nil
}

func (s *ProgressStore) OverrideVisit(ctx context.Context, userID, sectionID string, requiredSeconds int, now time.Time) (*models.VisitRecord, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, userID).Scan(&exists)
	if err != nil {
		return nil, storeErr("check user for override", err)
	}
	if !exists {
		return nil, fmt.Errorf("user %q: %w", userID, progress.ErrUnknownUser)
	}

	rec := &models.VisitRecord{}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO visit_records (user_email, section_id, first_visit, last_visit, cumulative_seconds, completed)
		VALUES ($1, $2, $3, $3, $4, TRUE)
		ON CONFLICT (user_email, section_id) DO UPDATE SET
			last_visit         = EXCLUDED.last_visit,
			cumulative_seconds = GREATEST(visit_records.cumulative_seconds, $4),
			completed          = TRUE
		RETURNING section_id, first_visit, last_visit, cumulative_seconds, completed;
	`, userID, sectionID, now, requiredSeconds).Scan(
		&rec.SectionID,
		&rec.FirstVisit,
		&rec.LastVisit,
		&rec.CumulativeSeconds,
		&rec.Completed,
	)
	if err != nil {
		return nil, storeErr("override visit record", err)
	}
	return rec, nil
}

func (s *ProgressStore) VisitRecords(ctx context.Context, userID string) (map[string]models.VisitRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT section_id, first_visit, last_visit, cumulative_seconds, completed
		FROM visit_records
		WHERE user_email = $1;
	`, userID)
	if err != nil {
		return nil, storeErr("query visit records", err)
	}
	defer rows.Close()

	records := make(map[string]models.VisitRecord)
	for rows.Next() {
		var rec models.VisitRecord
		if err := rows.Scan(&rec.SectionID, &rec.FirstVisit, &rec.LastVisit, &rec.CumulativeSeconds, &rec.Completed); err != nil {
			return nil, storeErr("scan visit record", err)
		}
		records[rec.SectionID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate visit records", err)
	}
	return records, nil
}

func (s *ProgressStore) UserState(ctx context.Context, userID string) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, role, is_admin, blocked, acknowledged, acknowledged_at, last_active, created_at, updated_at
		FROM users
		WHERE email = $1;
	`, userID).Scan(
		&user.ID,
		&user.Email,
		&user.Role,
		&user.IsAdmin,
		&user.Blocked,
		&user.Acknowledged,
		&user.AcknowledgedAt,
		&user.LastActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", userID, progress.ErrUnknownUser)
		}
		return nil, storeErr("query user state", err)
	}
	return user, nil
}

func (s *ProgressStore) Acknowledge(ctx context.Context, userID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET acknowledged = TRUE, acknowledged_at = $2, updated_at = $2
		WHERE email = $1 AND acknowledged = FALSE;
	`, userID, now)
	if err != nil {
		return storeErr("acknowledge", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeErr("acknowledge", err)
	}
	if affected == 1 {
		return nil
	}

	// No row updated: either the user does not exist or a concurrent caller
	// already won the flag.
	var acknowledged bool
	err = s.db.QueryRowContext(ctx, `SELECT acknowledged FROM users WHERE email = $1`, userID).Scan(&acknowledged)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("user %q: %w", userID, progress.ErrUnknownUser)
		}
		return storeErr("acknowledge recheck", err)
	}
	if acknowledged {
		return progress.ErrAlreadyAcknowledged
	}
	return fmt.Errorf("acknowledge %q: %w", userID, progress.ErrConflict)
}

func (s *ProgressStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, role, is_admin, blocked, acknowledged, acknowledged_at, last_active, created_at, updated_at
		FROM users
		ORDER BY email;
	`)
	if err != nil {
		return nil, storeErr("query users", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(
			&user.ID,
			&user.Email,
			&user.Role,
			&user.IsAdmin,
			&user.Blocked,
			&user.Acknowledged,
			&user.AcknowledgedAt,
			&user.LastActive,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, storeErr("scan user", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate users", err)
	}
	return users, nil
}

// storeErr maps driver failures onto the engine's error taxonomy.
// Serialization failures and deadlocks are retryable conflicts; everything
// else surfaces as store unavailability.
func storeErr(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%s: %w: %v", op, progress.ErrConflict, err)
		}
	}
	return fmt.Errorf("%s: %w: %v", op, progress.ErrStoreUnavailable, err)
}
