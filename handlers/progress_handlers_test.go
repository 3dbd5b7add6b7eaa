package handlers_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"crewportal/api/catalog"
	"crewportal/api/handlers"
	"crewportal/api/models"
	"crewportal/api/progress"
	"crewportal/api/store"
)

// conflictOnceStore fails the first n Acknowledge calls with a retryable
// conflict, then delegates to the in-memory store.
type conflictOnceStore struct {
	*store.MemoryStore

	mu        sync.Mutex
	conflicts int
	attempts  int
}

func (s *conflictOnceStore) Acknowledge(ctx context.Context, userID string, now time.Time) error {
	s.mu.Lock()
	s.attempts++
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return fmt.Errorf("acknowledge %q: %w", userID, progress.ErrConflict)
	}
	s.mu.Unlock()
	return s.MemoryStore.Acknowledge(ctx, userID, now)
}

func TestSubmitAcknowledgement_RetriesOnceOnConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cs := &conflictOnceStore{MemoryStore: store.NewMemoryStore(), conflicts: 1}
	cat := catalog.New([]catalog.SectionDefinition{
		{ID: "intro", Label: "Intro", RequiredDwellSeconds: 0},
	})
	agg := progress.NewAggregator(cs, cat)
	notifier := progress.NewNotifier()
	ledger := progress.NewLedger(cs, cat, agg, notifier, nil, nil)
	gate := progress.NewGate(cs, agg, notifier, nil, nil)
	h := handlers.NewProgressHandlers(cat, ledger, agg, gate, notifier)

	cs.AddUser(models.User{Email: "ann@example.com", Role: models.RoleTracked})
	_, err := ledger.RecordVisit(context.Background(), "ann@example.com", "intro", 0, "")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/training/acknowledge", nil)
	c.Set("user_email", "ann@example.com")

	h.SubmitAcknowledgement(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 2, cs.attempts)

	state, err := cs.UserState(context.Background(), "ann@example.com")
	require.NoError(t, err)
	require.True(t, state.Acknowledged)
}
