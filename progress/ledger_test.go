package progress_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"crewportal/api/progress"
)

func TestRecordVisit_VisitOnlySectionCompletesImmediately(t *testing.T) {
	e := newEngine(twoSectionCatalog())
	e.addTrackedUser("ann@example.com")

	bd, err := e.ledger.RecordVisit(context.Background(), "ann@example.com", "intro", 0, "")
	require.NoError(t, err)
	require.Equal(t, 1, bd.SectionsCompletedCount)
	require.True(t, bd.SectionDetails[0].Completed)
}

func TestRecordVisit_DwellThresholdAccumulates(t *testing.T) {
	e := newEngine(twoSectionCatalog())
	e.addTrackedUser("ann@example.com")
	ctx := context.Background()

	bd, err := e.ledger.RecordVisit(ctx, "ann@example.com", "policy", 10, "")
	require.NoError(t, err)
	require.False(t, bd.SectionDetails[1].Completed)
	require.Equal(t, 10, bd.SectionDetails[1].SecondsSpent)

	bd, err = e.ledger.RecordVisit(ctx, "ann@example.com", "policy", 10, "")
	require.NoError(t, err)
	require.False(t, bd.SectionDetails[1].Completed)

	bd, err = e.ledger.RecordVisit(ctx, "ann@example.com", "policy", 10, "")
	require.NoError(t, err)
	require.True(t, bd.SectionDetails[1].Completed)
	require.Equal(t, 30, bd.SectionDetails[1].SecondsSpent)
}

func TestRecordVisit_MonotonicAccumulationAndCompletion(t *testing.T) {
	e := newEngine(twoSectionCatalog())
	e.addTrackedUser("ann@example.com")
	ctx := context.Background()

	prevSeconds := 0
	completedSeen := false
	for _, dwell := range []int{5, 0, 17, 8, 0, 3} {
		bd, err := e.ledger.RecordVisit(ctx, "ann@example.com", "policy", dwell, "")
		require.NoError(t, err)
		detail := bd.SectionDetails[1]
		require.GreaterOrEqual(t, detail.SecondsSpent, prevSeconds)
		if completedSeen {
			require.True(t, detail.Completed, "completed flag must never revert")
		}
		completedSeen = completedSeen || detail.Completed
		prevSeconds = detail.SecondsSpent
	}
	require.True(t, completedSeen)
}

func TestRecordVisit_ConcurrentMergesLoseNoDwellTime(t *testing.T) {
	e := newEngine(twoSectionCatalog())
	e.addTrackedUser("ann@example.com")
	ctx := context.Background()

	const callers = 50
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ledger.RecordVisit(ctx, "ann@example.com", "policy", 2, "")
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	bd, err := e.aggregator.Breakdown(ctx, "ann@example.com")
	require.NoError(t, err)
	require.Equal(t, callers*2, bd.SectionDetails[1].SecondsSpent)
}

func TestRecordVisit_UnknownSection(t *testing.T) {
	e := newEngine(twoSectionCatalog())
	e.addTrackedUser("ann@example.com")

	_, err := e.ledger.RecordVisit(context.Background(), "ann@example.com", "nope", 10, "")
	require.ErrorIs(t, err, progress.ErrUnknownSection)

	// The failed call must be a no-op.
	bd, err := e.aggregator.Breakdown(context.Background(), "ann@example.com")
	require.NoError(t, err)
	require.Equal(t, 0, bd.SectionsCompletedCount)
}

func TestRecordVisit_UnknownUser(t *testing.T) {
	e := newEngine(twoSectionCatalog())

	_, err := e.ledger.RecordVisit(context.Background(), "ghost@example.com", "intro", 0, "")
	require.ErrorIs(t, err, progress.ErrUnknownUser)
}

func TestRecordVisit_RejectsNegativeDwell(t *testing.T) {
	e := newEngine(twoSectionCatalog())
	e.addTrackedUser("ann@example.com")

	_, err := e.ledger.RecordVisit(context.Background(), "ann@example.com", "policy", -1, "")
	require.Error(t, err)
}

func TestRecordVisit_UpdatesLastActiveAndTimestamps(t *testing.T) {
	e := newEngine(twoSectionCatalog())
	e.addTrackedUser("ann@example.com")
	ctx := context.Background()

	first := e.clock.Now()
	_, err := e.ledger.RecordVisit(ctx, "ann@example.com", "policy", 5, "")
	require.NoError(t, err)

	e.clock.Advance(2 * time.Hour)
	second := e.clock.Now()
	_, err = e.ledger.RecordVisit(ctx, "ann@example.com", "policy", 5, "")
	require.NoError(t, err)

	records, err := e.store.VisitRecords(ctx, "ann@example.com")
	require.NoError(t, err)
	rec := records["policy"]
	require.Equal(t, first, rec.FirstVisit)
	require.Equal(t, second, rec.LastVisit)

	state, err := e.store.UserState(ctx, "ann@example.com")
	require.NoError(t, err)
	require.NotNil(t, state.LastActive)
	require.Equal(t, second, *state.LastActive)
}

func TestRecordVisit_PublishesRefreshedBreakdown(t *testing.T) {
	e := newEngine(twoSectionCatalog())
	e.addTrackedUser("ann@example.com")

	received := make(chan progress.Event, 1)
	sub := e.notifier.Subscribe("ann@example.com", func(ev progress.Event) {
		received <- ev
	})
	defer sub.Close()

	_, err := e.ledger.RecordVisit(context.Background(), "ann@example.com", "intro", 0, "")
	require.NoError(t, err)

	select {
	case ev := <-received:
		require.Equal(t, progress.EventVisitRecorded, ev.Kind)
		require.Equal(t, "ann@example.com", ev.UserID)
		require.NotNil(t, ev.Breakdown)
		require.Equal(t, 1, ev.Breakdown.SectionsCompletedCount)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestAdminOverrideVisit_ForceCompletesThroughLedger(t *testing.T) {
	e := newEngine(twoSectionCatalog())
	e.addTrackedUser("ann@example.com")
	ctx := context.Background()

	bd, err := e.ledger.AdminOverrideVisit(ctx, "ann@example.com", "policy", "")
	require.NoError(t, err)
	require.True(t, bd.SectionDetails[1].Completed)
	require.Equal(t, 30, bd.SectionDetails[1].SecondsSpent)

	// Override never lowers accumulated dwell time.
	_, err = e.ledger.RecordVisit(ctx, "ann@example.com", "policy", 15, "")
	require.NoError(t, err)
	bd, err = e.ledger.AdminOverrideVisit(ctx, "ann@example.com", "policy", "")
	require.NoError(t, err)
	require.Equal(t, 45, bd.SectionDetails[1].SecondsSpent)
	require.True(t, bd.SectionDetails[1].Completed)

	_, err = e.ledger.AdminOverrideVisit(ctx, "ghost@example.com", "policy", "")
	require.ErrorIs(t, err, progress.ErrUnknownUser)
}

func TestRecordVisit_StalledSessionDoesNotDelayWrites(t *testing.T) {
	e := newEngine(twoSectionCatalog())
	e.addTrackedUser("ann@example.com")

	// One open session whose event callback never returns until released.
	release := make(chan struct{})
	sub := e.notifier.Subscribe("ann@example.com", func(progress.Event) { <-release })
	defer sub.Close()
	defer close(release)

	const visits = 20
	done := make(chan error, 1)
	go func() {
		for i := 0; i < visits; i++ {
			if _, err := e.ledger.RecordVisit(context.Background(), "ann@example.com", "policy", 1, ""); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("visit recording stalled behind a slow event subscriber")
	}

	recs, err := e.store.VisitRecords(context.Background(), "ann@example.com")
	require.NoError(t, err)
	require.Equal(t, visits, recs["policy"].CumulativeSeconds)
}

func TestRecordVisit_AuditEventCarriesClientIP(t *testing.T) {
	e := newEngine(twoSectionCatalog())
	e.addTrackedUser("ann@example.com")
	sink := &recordingSink{}
	ledger := progress.NewLedger(e.store, e.catalog, e.aggregator, e.notifier, sink, e.clock)
	ctx := context.Background()

	_, err := ledger.RecordVisit(ctx, "ann@example.com", "policy", 10, "203.0.113.7")
	require.NoError(t, err)

	_, err = ledger.AdminOverrideVisit(ctx, "ann@example.com", "intro", "198.51.100.4")
	require.NoError(t, err)

	events := sink.all()
	require.Len(t, events, 2)
	require.Equal(t, "visit", events[0].EventType)
	require.Equal(t, "203.0.113.7", events[0].IPAddress)
	require.Equal(t, "override", events[1].EventType)
	require.Equal(t, "198.51.100.4", events[1].IPAddress)
}
