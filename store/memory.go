package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crewportal/api/models"
	"crewportal/api/progress"
)

// MemoryStore is an in-memory progress.Store with the same atomicity
// semantics as the Postgres adapter: every mutation is a single
// read-modify-write under one lock. Used by tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	users   map[string]*models.User
	records map[string]map[string]*models.VisitRecord

	// FailReads simulates store unavailability for read paths.
	FailReads bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]*models.User),
		records: make(map[string]map[string]*models.VisitRecord),
	}
}

// AddUser seeds a user. Not part of progress.Store.
func (s *MemoryStore) AddUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.Email] = &u
}

func (s *MemoryStore) UpsertVisit(ctx context.Context, userID, sectionID string, dwellSeconds, requiredSeconds int, now time.Time) (*models.VisitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", userID, progress.ErrUnknownUser)
	}
	active := now
	user.LastActive = &active
	user.UpdatedAt = now

	if s.records[userID] == nil {
		s.records[userID] = make(map[string]*models.VisitRecord)
	}
	rec, ok := s.records[userID][sectionID]
	if !ok {
		rec = &models.VisitRecord{SectionID: sectionID, FirstVisit: now}
		s.records[userID][sectionID] = rec
	}
	rec.LastVisit = now
	rec.CumulativeSeconds += dwellSeconds
	rec.Completed = rec.Completed || rec.CumulativeSeconds >= requiredSeconds

	out := *rec
	return &out, nil
}

func (s *MemoryStore) OverrideVisit(ctx context.Context, userID, sectionID string, requiredSeconds int, now time.Time) (*models.VisitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, fmt.Errorf("user %q: %w", userID, progress.ErrUnknownUser)
	}
	if s.records[userID] == nil {
		s.records[userID] = make(map[string]*models.VisitRecord)
	}
	rec, ok := s.records[userID][sectionID]
	if !ok {
		rec = &models.VisitRecord{SectionID: sectionID, FirstVisit: now}
		s.records[userID][sectionID] = rec
	}
	rec.LastVisit = now
	if rec.CumulativeSeconds < requiredSeconds {
		rec.CumulativeSeconds = requiredSeconds
	}
	rec.Completed = true

	out := *rec
	return &out, nil
}

func (s *MemoryStore) VisitRecords(ctx context.Context, userID string) (map[string]models.VisitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailReads {
		return nil, fmt.Errorf("read visit records: %w", progress.ErrStoreUnavailable)
	}
	out := make(map[string]models.VisitRecord, len(s.records[userID]))
	for id, rec := range s.records[userID] {
		out[id] = *rec
	}
	return out, nil
}

func (s *MemoryStore) UserState(ctx context.Context, userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", userID, progress.ErrUnknownUser)
	}
	if s.FailReads {
		return nil, fmt.Errorf("read user state: %w", progress.ErrStoreUnavailable)
	}
	out := *user
	return &out, nil
}

func (s *MemoryStore) Acknowledge(ctx context.Context, userID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %q: %w", userID, progress.ErrUnknownUser)
	}
	if user.Acknowledged {
		return progress.ErrAlreadyAcknowledged
	}
	user.Acknowledged = true
	at := now
	user.AcknowledgedAt = &at
	user.UpdatedAt = now
	return nil
}

func (s *MemoryStore) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, *u)
	}
	return users, nil
}
