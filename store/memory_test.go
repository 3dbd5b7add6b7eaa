package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"crewportal/api/models"
	"crewportal/api/progress"
)

var _ progress.Store = (*MemoryStore)(nil)

func TestMemoryStore_ConcurrentUpsertsSum(t *testing.T) {
	s := NewMemoryStore()
	s.AddUser(models.User{Email: "ann@example.com", Role: models.RoleTracked})
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	const callers = 64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpsertVisit(context.Background(), "ann@example.com", "policy", 3, 300, now)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	records, err := s.VisitRecords(context.Background(), "ann@example.com")
	require.NoError(t, err)
	require.Equal(t, callers*3, records["policy"].CumulativeSeconds)
	require.False(t, records["policy"].Completed)
}

func TestMemoryStore_ConcurrentAcknowledgeSingleWinner(t *testing.T) {
	s := NewMemoryStore()
	s.AddUser(models.User{Email: "ann@example.com", Role: models.RoleTracked})
	now := time.Now().UTC()

	const callers = 16
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Acknowledge(context.Background(), "ann@example.com", now)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, progress.ErrAlreadyAcknowledged)
		}
	}
	require.Equal(t, 1, wins)
}

func TestMemoryStore_UnknownUser(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.UpsertVisit(context.Background(), "ghost@example.com", "policy", 1, 30, time.Now())
	require.ErrorIs(t, err, progress.ErrUnknownUser)

	_, err = s.UserState(context.Background(), "ghost@example.com")
	require.ErrorIs(t, err, progress.ErrUnknownUser)

	err = s.Acknowledge(context.Background(), "ghost@example.com", time.Now())
	require.ErrorIs(t, err, progress.ErrUnknownUser)
}
