// api/store/audit_store.go
package store

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"crewportal/api/database"
	"crewportal/api/models"
	"crewportal/api/utils"
)

// AuditStore appends visit audit events to ClickHouse and serves the admin
// engagement charts from them. It satisfies progress.AuditSink.
type AuditStore struct {
	DB *database.ClickHouseClient
}

func NewAuditStore(chClient *database.ClickHouseClient) *AuditStore {
	return &AuditStore{
		DB: chClient,
	}
}

func (s *AuditStore) Append(ctx context.Context, events []models.VisitAuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Column names and order must exactly match the ClickHouse table schema.
	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO visit_audit_events (
			event_id, user_email, section_id, event_type, timestamp,
			dwell_seconds, cumulative_seconds, completed, ip_address
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, event := range events {
		err := batch.Append(
			event.EventID,
			event.UserEmail,
			event.SectionID,
			event.EventType,
			event.Timestamp,
			event.DwellSeconds,
			event.CumulativeSeconds,
			event.Completed,
			event.IPAddress,
		)
		if err != nil {
			log.Printf("Error appending audit event to batch (EventID: %s): %v", event.EventID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	return nil
}

func (s *AuditStore) GetVisitCountsOverTime(ctx context.Context, interval string, start, end time.Time, sectionFilter string) ([]models.SectionCountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	args := []interface{}{start, end}

	selectCols := fmt.Sprintf("toStartOf%s(timestamp) as time_bucket, count() as total_visits", interval)
	groupByCols := "time_bucket"
	whereClause := "WHERE event_type = 'visit' AND timestamp >= ? AND timestamp <= ?"
	orderByCols := "time_bucket ASC"
	isFilteringBySection := sectionFilter != ""

	if isFilteringBySection {
		selectCols += ", section_id"
		groupByCols += ", section_id"
		whereClause += " AND section_id = ?"
		args = append(args, sectionFilter)
		orderByCols += ", section_id ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM visit_audit_events
		%s
		GROUP BY %s
		ORDER BY %s
	`, selectCols, whereClause, groupByCols, orderByCols)

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query visit counts over time: %w", err)
	}
	defer rows.Close()

	var results []models.SectionCountByTime
	for rows.Next() {
		var (
			timeBucket    time.Time
			count         uint64
			sectionIDDB   string
			currentResult models.SectionCountByTime
		)

		if isFilteringBySection {
			if err := rows.Scan(&timeBucket, &count, &sectionIDDB); err != nil {
				log.Printf("Error scanning row for visit counts over time (with section filter): %v", err)
				continue
			}
			currentResult.SectionID = &sectionIDDB
		} else {
			if err := rows.Scan(&timeBucket, &count); err != nil {
				log.Printf("Error scanning row for visit counts over time (no section filter): %v", err)
				continue
			}
			currentResult.SectionID = nil
		}

		currentResult.Time = timeBucket
		currentResult.Count = count
		results = append(results, currentResult)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during visit counts over time query: %w", err)
	}

	return results, nil
}

func (s *AuditStore) GetAverageDwell(ctx context.Context, sectionFilter string, start, end time.Time) (float64, error) {
	query := `SELECT avg(dwell_seconds) FROM visit_audit_events WHERE event_type = 'visit' AND timestamp >= ? AND timestamp <= ?`
	args := []interface{}{start, end}

	if sectionFilter != "" {
		query += ` AND section_id = ?`
		args = append(args, sectionFilter)
	}

	var avgDwell float64
	err := s.DB.Conn.QueryRow(ctx, query, args...).Scan(&avgDwell)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return 0.0, nil
		}
		return 0.0, fmt.Errorf("failed to query average dwell: %w", err)
	}

	// avg() returns NaN when no rows match, which standard JSON marshalling
	// rejects.
	if math.IsNaN(avgDwell) {
		return 0.0, nil
	}

	return avgDwell, nil
}

func (s *AuditStore) GetUniqueVisitorsOverTime(ctx context.Context, interval string, start, end time.Time) ([]models.SectionCountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	query := fmt.Sprintf(`
		SELECT toStartOf%s(timestamp) AS time_bucket, uniq(user_email) AS unique_visitors
		FROM visit_audit_events
		WHERE event_type = 'visit' AND timestamp >= ? AND timestamp <= ?
		GROUP BY time_bucket
		ORDER BY time_bucket ASC
	`, interval)

	rows, err := s.DB.Conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query unique visitors over time: %w", err)
	}
	defer rows.Close()

	var results []models.SectionCountByTime
	for rows.Next() {
		var timeBucket time.Time
		var uniqueVisitors uint64
		if err := rows.Scan(&timeBucket, &uniqueVisitors); err != nil {
			log.Printf("Error scanning row for unique visitors: %v", err)
			continue
		}
		results = append(results, models.SectionCountByTime{
			Time:  timeBucket,
			Count: uniqueVisitors,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for unique visitors: %w", err)
	}

	return results, nil
}

func (s *AuditStore) GetTopSections(ctx context.Context, start, end time.Time, limit uint64) ([]models.TopSectionResult, error) {
	if limit == 0 {
		limit = 10 // Default limit if 0 is passed
	}

	query := `
		SELECT section_id, count() as visit_count
		FROM visit_audit_events
		WHERE event_type = 'visit' AND timestamp >= ? AND timestamp <= ?
		GROUP BY section_id
		ORDER BY visit_count DESC
		LIMIT ?
	`
	rows, err := s.DB.Conn.Query(ctx, query, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top sections: %w", err)
	}
	defer rows.Close()

	var results []models.TopSectionResult
	for rows.Next() {
		var sectionID string
		var count uint64
		if err := rows.Scan(&sectionID, &count); err != nil {
			log.Printf("Error scanning row for top sections: %v", err)
			continue
		}
		results = append(results, models.TopSectionResult{
			SectionID: sectionID,
			Count:     count,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for top sections: %w", err)
	}

	return results, nil
}
