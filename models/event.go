// api/models/event.go
package models

import "time"

// VisitAuditEvent is one append-only row in the ClickHouse visit audit
// stream. The stream is an engagement analytics feed, not the source of
// truth for progress; that lives in Postgres.
type VisitAuditEvent struct {
	EventID           string    `json:"eventId"`
	UserEmail         string    `json:"userEmail"`
	SectionID         string    `json:"sectionId"`
	EventType         string    `json:"eventType"` // visit | override | acknowledged
	Timestamp         time.Time `json:"timestamp"`
	DwellSeconds      int       `json:"dwellSeconds"`
	CumulativeSeconds int       `json:"cumulativeSeconds"`
	Completed         bool      `json:"completed"`
	IPAddress         string    `json:"ipAddress"`
}

type SectionCountByTime struct {
	Time      time.Time `json:"time"`
	SectionID *string   `json:"sectionId,omitempty"`
	Count     uint64    `json:"count"`
}

type TopSectionResult struct {
	SectionID string `json:"sectionId"`
	Count     uint64 `json:"count"`
}
