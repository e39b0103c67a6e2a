package store

import (
	"sort"
	"sync"
	"time"

	"carbonq/pkg/domain"
)

// MemoryStore is an in-memory Store used by tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]domain.User // keyed by user ID
	byEmail map[string]string      // email -> user ID
	queries map[string][]domain.QueryRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]domain.User),
		byEmail: make(map[string]string),
		queries: make(map[string][]domain.QueryRecord),
	}
}

func (s *MemoryStore) SaveUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.users[u.ID]; ok && old.Email != u.Email {
		delete(s.byEmail, old.Email)
	}
	s.users[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *MemoryStore) HasUserEmail(email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byEmail[email]
	return ok, nil
}

func (s *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) AppendQuery(record domain.QueryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries[record.UserID] = append(s.queries[record.UserID], record)
	return nil
}

func (s *MemoryStore) ListQueriesByUser(userID string) ([]domain.QueryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedCopy(s.queries[userID]), nil
}

func (s *MemoryStore) ListQueriesSince(userID string, since time.Time) ([]domain.QueryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.QueryRecord
	for _, r := range s.queries[userID] {
		if !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	return sortedCopy(out), nil
}

func (s *MemoryStore) ListRecentQueries(userID string, limit int) ([]domain.QueryRecord, error) {
	if limit <= 0 {
		return []domain.QueryRecord{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := sortedCopy(s.queries[userID])
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// sortedCopy returns records newest first, matching the SQL stores.
func sortedCopy(records []domain.QueryRecord) []domain.QueryRecord {
	out := make([]domain.QueryRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
