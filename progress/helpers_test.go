package progress_test

import (
	"context"
	"sync"
	"time"

	"crewportal/api/catalog"
	"crewportal/api/models"
	"crewportal/api/progress"
	"crewportal/api/store"
)

// stubClock returns a fixed time and can be advanced. Safe for concurrent
// use.
type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStubClock() *stubClock {
	return &stubClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// engine bundles a fully wired tracking engine over the in-memory store.
type engine struct {
	store      *store.MemoryStore
	clock      *stubClock
	catalog    *catalog.Catalog
	notifier   *progress.Notifier
	aggregator *progress.Aggregator
	ledger     *progress.Ledger
	gate       *progress.Gate
	rollup     *progress.Rollup
}

func newEngine(cat *catalog.Catalog) *engine {
	e := &engine{
		store:    store.NewMemoryStore(),
		clock:    newStubClock(),
		catalog:  cat,
		notifier: progress.NewNotifier(),
	}
	e.aggregator = progress.NewAggregator(e.store, e.catalog)
	e.ledger = progress.NewLedger(e.store, e.catalog, e.aggregator, e.notifier, nil, e.clock)
	e.gate = progress.NewGate(e.store, e.aggregator, e.notifier, nil, e.clock)
	e.rollup = progress.NewRollup(e.store, e.aggregator, e.clock)
	return e
}

func (e *engine) addTrackedUser(email string) {
	e.store.AddUser(models.User{
		Email:     email,
		Role:      models.RoleTracked,
		CreatedAt: e.clock.Now(),
	})
}

// recordingSink captures audit events in memory for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []models.VisitAuditEvent
}

func (s *recordingSink) Append(_ context.Context, evs []models.VisitAuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evs...)
	return nil
}

func (s *recordingSink) all() []models.VisitAuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.VisitAuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

// twoSectionCatalog has one visit-only section and one 30-second
// dwell-threshold section.
func twoSectionCatalog() *catalog.Catalog {
	return catalog.New([]catalog.SectionDefinition{
		{ID: "intro", Label: "Intro", RequiredDwellSeconds: 0},
		{ID: "policy", Label: "Policy", RequiredDwellSeconds: 30},
	})
}
