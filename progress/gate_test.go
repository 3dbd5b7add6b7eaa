package progress_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"crewportal/api/models"
	"crewportal/api/progress"
)

func completeAll(t *testing.T, e *engine, email string) {
	t.Helper()
	for _, def := range e.catalog.Sections() {
		_, err := e.ledger.AdminOverrideVisit(context.Background(), email, def.ID, "")
		require.NoError(t, err)
	}
}

func TestSubmitAcknowledgement_Succeeds(t *testing.T) {
	e := newEngine(twoSectionCatalog())
	e.addTrackedUser("ann@example.com")
	ctx := context.Background()
	completeAll(t, e, "ann@example.com")

	require.NoError(t, e.gate.SubmitAcknowledgement(ctx, "ann@example.com", ""))

	state, err := e.store.UserState(ctx, "ann@example.com")
	require.NoError(t, err)
	require.True(t, state.Acknowledged)
	require.NotNil(t, state.AcknowledgedAt)
	require.Equal(t, e.clock.Now(), *state.AcknowledgedAt)
}

func TestSubmitAcknowledgement_RejectsIncompleteProgress(t *testing.T) {
	e := newEngine(twoSectionCatalog())
	e.addTrackedUser("ann@example.com")
	ctx := context.Background()

	_, err := e.ledger.RecordVisit(ctx, "ann@example.com", "intro", 0, "")
	require.NoError(t, err)

	err = e.gate.SubmitAcknowledgement(ctx, "ann@example.com", "")
	require.ErrorIs(t, err, progress.ErrIncompleteProgress)
}

func TestSubmitAcknowledgement_RejectsUntrackedRole(t *testing.T) {
	e := newEngine(twoSectionCatalog())
	e.store.AddUser(models.User{Email: "shore@example.com", Role: models.RoleUntracked, CreatedAt: e.clock.Now()})
	completeAll(t, e, "shore@example.com")

	err := e.gate.SubmitAcknowledgement(context.Background(), "shore@example.com", "")
	require.ErrorIs(t, err, progress.ErrIncompleteProgress)
}

func TestSubmitAcknowledgement_SecondSubmissionFails(t *testing.T) {
	e := newEngine(twoSectionCatalog())
	e.addTrackedUser("ann@example.com")
	ctx := context.Background()
	completeAll(t, e, "ann@example.com")

	require.NoError(t, e.gate.SubmitAcknowledgement(ctx, "ann@example.com", ""))

	firstAt := func() *models.User {
		state, err := e.store.UserState(ctx, "ann@example.com")
		require.NoError(t, err)
		return state
	}().AcknowledgedAt

	e.clock.Advance(1)
	err := e.gate.SubmitAcknowledgement(ctx, "ann@example.com", "")
	require.ErrorIs(t, err, progress.ErrAlreadyAcknowledged)

	// The timestamp is set exactly once and never changes.
	state, err := e.store.UserState(ctx, "ann@example.com")
	require.NoError(t, err)
	require.Equal(t, *firstAt, *state.AcknowledgedAt)
}

func TestSubmitAcknowledgement_ConcurrentSubmissionsSingleFire(t *testing.T) {
	e := newEngine(twoSectionCatalog())
	e.addTrackedUser("ann@example.com")
	ctx := context.Background()
	completeAll(t, e, "ann@example.com")

	const callers = 8
	results := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.gate.SubmitAcknowledgement(ctx, "ann@example.com", "")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			require.ErrorIs(t, err, progress.ErrAlreadyAcknowledged)
		}
	}
	require.Equal(t, 1, successes, "exactly one concurrent submission may win")
}

func TestSubmitAcknowledgement_UnknownUser(t *testing.T) {
	e := newEngine(twoSectionCatalog())

	err := e.gate.SubmitAcknowledgement(context.Background(), "ghost@example.com", "")
	require.ErrorIs(t, err, progress.ErrUnknownUser)
}

func TestSubmitAcknowledgement_StoreFailureIsPropagated(t *testing.T) {
	e := newEngine(twoSectionCatalog())
	e.addTrackedUser("ann@example.com")
	completeAll(t, e, "ann@example.com")
	e.store.FailReads = true

	err := e.gate.SubmitAcknowledgement(context.Background(), "ann@example.com", "")
	require.ErrorIs(t, err, progress.ErrStoreUnavailable)
}

func TestSubmitAcknowledgement_AuditEventCarriesClientIP(t *testing.T) {
	e := newEngine(twoSectionCatalog())
	e.addTrackedUser("ann@example.com")
	completeAll(t, e, "ann@example.com")
	sink := &recordingSink{}
	gate := progress.NewGate(e.store, e.aggregator, e.notifier, sink, e.clock)

	require.NoError(t, gate.SubmitAcknowledgement(context.Background(), "ann@example.com", "203.0.113.7"))

	events := sink.all()
	require.Len(t, events, 1)
	require.Equal(t, "acknowledged", events[0].EventType)
	require.Equal(t, "203.0.113.7", events[0].IPAddress)
}
