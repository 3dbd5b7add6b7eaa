package progress

import (
	"context"
	"fmt"
	"log"
	"time"

	"crewportal/api/models"
)

// Rollup projects per-user progress into fleet-wide statistics for the admin
// dashboard. It performs no writes; excluded accounts appear neither in the
// per-user rows nor in the fleet totals.
type Rollup struct {
	store      Store
	aggregator *Aggregator
	clock      Clock
}

func NewRollup(store Store, agg *Aggregator, clock Clock) *Rollup {
	if clock == nil {
		clock = RealClock{}
	}
	return &Rollup{store: store, aggregator: agg, clock: clock}
}

// FleetSnapshot classifies every non-excluded user and sums the fleet
// totals. Users whose breakdown could not be read are classified from the
// stale zeroed breakdown rather than dropped, so the totals stay complete.
func (r *Rollup) FleetSnapshot(ctx context.Context, excluded map[string]struct{}) (*models.AdminSnapshot, error) {
	users, err := r.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users for fleet snapshot: %w", err)
	}

	now := r.clock.Now()
	snapshot := &models.AdminSnapshot{
		GeneratedAt: now,
		Totals:      models.FleetTotals{Bands: make(map[models.Band]int)},
	}

	for _, u := range users {
		if _, hidden := excluded[u.Email]; hidden {
			continue
		}
		bd, err := r.aggregator.Breakdown(ctx, u.Email)
		if err != nil {
			log.Printf("ERROR: fleet snapshot breakdown for %s: %v", u.Email, err)
			if bd == nil {
				continue
			}
		}

		days := daysSinceActive(u, now)
		row := models.UserClassification{
			User:              u.Email,
			CompletedSections: bd.SectionsCompletedCount,
			TotalSections:     bd.TotalSections,
			Percentage:        bd.Percentage,
			DaysSinceActive:   days,
			Acknowledged:      u.Acknowledged,
			Band:              classify(bd.Percentage, u.Acknowledged, days),
		}
		snapshot.Users = append(snapshot.Users, row)

		snapshot.Totals.TotalUsers++
		if u.Blocked {
			snapshot.Totals.BlockedUsers++
		} else {
			snapshot.Totals.ActiveUsers++
		}
		if u.Acknowledged {
			snapshot.Totals.AcknowledgedCount++
		}
		snapshot.Totals.Bands[row.Band]++
	}

	return snapshot, nil
}

// classify assigns the administrative band. Evaluation order matters:
// Excellent and Good are checked before Inactive, so a highly-engaged but
// currently-idle user is classified by progress, not recency.
func classify(pct int, acknowledged bool, daysSinceActive int) models.Band {
	switch {
	case pct == 100 && acknowledged:
		return models.BandExcellent
	case pct >= 70:
		return models.BandGood
	case daysSinceActive > 7:
		return models.BandInactive
	default:
		return models.BandPoor
	}
}

// daysSinceActive floors the elapsed time to whole days. A user who never
// visited anything is measured from account creation.
func daysSinceActive(u models.User, now time.Time) int {
	ref := u.CreatedAt
	if u.LastActive != nil {
		ref = *u.LastActive
	}
	days := int(now.Sub(ref).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
