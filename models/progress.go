package models

import "time"

// VisitRecord is the stored per-(user, section) visit state. CumulativeSeconds
// only grows and Completed never reverts to false once set.
type VisitRecord struct {
	SectionID         string    `json:"sectionId"`
	FirstVisit        time.Time `json:"firstVisit"`
	LastVisit         time.Time `json:"lastVisit"`
	CumulativeSeconds int       `json:"cumulativeSeconds"`
	Completed         bool      `json:"completed"`
}

// SectionDetail is one row of a ProgressBreakdown.
type SectionDetail struct {
	ID              string `json:"id"`
	Label           string `json:"label"`
	Completed       bool   `json:"completed"`
	SecondsSpent    int    `json:"secondsSpent"`
	SecondsRequired int    `json:"secondsRequired"`
}

// ProgressBreakdown is a derived view of one user's training state. It is
// recomputed on demand and never persisted. Stale is set when the store could
// not be read and the breakdown carries zeroed best-effort data.
type ProgressBreakdown struct {
	Percentage             int             `json:"percentage"`
	SectionDetails         []SectionDetail `json:"sectionDetails"`
	SectionsCompletedCount int             `json:"sectionsCompletedCount"`
	TotalSections          int             `json:"totalSections"`
	CanAcknowledge         bool            `json:"canAcknowledge"`
	Acknowledged           bool            `json:"acknowledged"`
	Stale                  bool            `json:"stale,omitempty"`
}

// Band is the administrative classification of a user's training state.
type Band string

const (
	BandExcellent Band = "excellent"
	BandGood      Band = "good"
	BandPoor      Band = "poor"
	BandInactive  Band = "inactive"
)

// UserClassification is one user's row in an AdminSnapshot.
type UserClassification struct {
	User              string `json:"user"`
	CompletedSections int    `json:"completedSections"`
	TotalSections     int    `json:"totalSections"`
	Percentage        int    `json:"percentage"`
	DaysSinceActive   int    `json:"daysSinceActive"`
	Acknowledged      bool   `json:"acknowledged"`
	Band              Band   `json:"band"`
}

// FleetTotals are simple sums over the per-user classifications.
type FleetTotals struct {
	TotalUsers        int          `json:"totalUsers"`
	ActiveUsers       int          `json:"activeUsers"`
	BlockedUsers      int          `json:"blockedUsers"`
	AcknowledgedCount int          `json:"acknowledgedCount"`
	Bands             map[Band]int `json:"bands"`
}

// AdminSnapshot is the read-time fleet projection served to the admin
// dashboard. It never exposes raw visit records.
type AdminSnapshot struct {
	Users       []UserClassification `json:"users"`
	Totals      FleetTotals          `json:"totals"`
	GeneratedAt time.Time            `json:"generatedAt"`
}

type VisitRequest struct {
	SectionID    string `json:"sectionId" binding:"required"`
	DwellSeconds int    `json:"dwellSeconds" binding:"min=0"`
}

type OverrideVisitRequest struct {
	Email     string `json:"email" binding:"required,email"`
	SectionID string `json:"sectionId" binding:"required"`
}
