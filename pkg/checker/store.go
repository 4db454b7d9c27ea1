package checker

import (
	"context"
	"sync"
)

// List names one of the checker's string sets.
type List string

const (
	BlockedDomains   List = "blocked_domains"
	BlockedAddresses List = "blocked_emails"
	TempDomains      List = "temp_domains"
)

// Store persists the checker lists. Members are stored as given; Checker
// normalizes them before calling.
type Store interface {
	// Add inserts members and returns how many were new.
	Add(ctx context.Context, list List, members ...string) (int, error)
	// Remove deletes member and reports whether it was present.
	Remove(ctx context.Context, list List, member string) (bool, error)
	Has(ctx context.Context, list List, member string) (bool, error)
	Count(ctx context.Context, list List) (int, error)
}

// MemoryStore keeps lists in process memory.
type MemoryStore struct {
	lists map[List]map[string]struct{}
	mu    sync.RWMutex
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{lists: make(map[List]map[string]struct{})}
}

func (s *MemoryStore) Add(_ context.Context, list List, members ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.lists[list]
	if !ok {
		set = make(map[string]struct{}, len(members))
		s.lists[list] = set
	}

	added := 0
	for _, m := range members {
		if _, ok := set[m]; ok {
			continue
		}
		set[m] = struct{}{}
		added++
	}
	return added, nil
}

func (s *MemoryStore) Remove(_ context.Context, list List, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.lists[list]
	if _, ok := set[member]; !ok {
		return false, nil
	}
	delete(set, member)
	return true, nil
}

func (s *MemoryStore) Has(_ context.Context, list List, member string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.lists[list][member]
	return ok, nil
}

func (s *MemoryStore) Count(_ context.Context, list List) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.lists[list]), nil
}
