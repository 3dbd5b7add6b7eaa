package progress

import (
	"context"
	"errors"
	"math"

	"crewportal/api/catalog"
	"crewportal/api/models"
)

// Aggregator computes a user's completion percentage and per-section
// breakdown. It is a pure read over stored state: Breakdown never mutates the
// ledger, and there is exactly one completion formula: a section counts when
// its stored completed flag is set, which the ledger derives from the
// section's visit-only or dwell-threshold policy.
type Aggregator struct {
	store   Store
	catalog *catalog.Catalog
}

func NewAggregator(store Store, cat *catalog.Catalog) *Aggregator {
	return &Aggregator{store: store, catalog: cat}
}

// Breakdown recomputes the user's progress from stored state. On a store
// failure it still returns a zeroed breakdown with Stale set alongside the
// error, so read paths can serve best-effort data while write paths treat the
// error as fatal.
func (a *Aggregator) Breakdown(ctx context.Context, userID string) (*models.ProgressBreakdown, error) {
	state, err := a.store.UserState(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUnknownUser) {
			return nil, err
		}
		return a.staleBreakdown(), err
	}

	records, err := a.store.VisitRecords(ctx, userID)
	if err != nil {
		return a.staleBreakdown(), err
	}

	sections := a.catalog.Sections()
	details := make([]models.SectionDetail, 0, len(sections))
	completed := 0
	for _, def := range sections {
		rec, visited := records[def.ID]
		detail := models.SectionDetail{
			ID:              def.ID,
			Label:           def.Label,
			SecondsRequired: def.RequiredDwellSeconds,
		}
		if visited {
			detail.Completed = rec.Completed
			detail.SecondsSpent = rec.CumulativeSeconds
		}
		if detail.Completed {
			completed++
		}
		details = append(details, detail)
	}

	pct := percentage(completed, len(sections))
	return &models.ProgressBreakdown{
		Percentage:             pct,
		SectionDetails:         details,
		SectionsCompletedCount: completed,
		TotalSections:          len(sections),
		Acknowledged:           state.Acknowledged,
		CanAcknowledge:         pct == 100 && state.Role == models.RoleTracked && !state.Acknowledged,
	}, nil
}

// percentage rounds half up and clamps to [0,100].
func percentage(completed, total int) int {
	if total == 0 {
		return 0
	}
	pct := int(math.Round(float64(completed) / float64(total) * 100))
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}

func (a *Aggregator) staleBreakdown() *models.ProgressBreakdown {
	sections := a.catalog.Sections()
	details := make([]models.SectionDetail, 0, len(sections))
	for _, def := range sections {
		details = append(details, models.SectionDetail{
			ID:              def.ID,
			Label:           def.Label,
			SecondsRequired: def.RequiredDwellSeconds,
		})
	}
	return &models.ProgressBreakdown{
		SectionDetails: details,
		TotalSections:  len(sections),
		Stale:          true,
	}
}
