package memory

import (
	"context"
	"sort"
	"sync"

	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/storage"
)

// JournalStore is an in-memory implementation of storage.JournalStore.
type JournalStore struct {
	mu     sync.RWMutex
	ids    map[string]struct{}
	events []*domain.Event
}

// NewJournalStore creates a new in-memory journal store.
func NewJournalStore() *JournalStore {
	return &JournalStore{
		ids: make(map[string]struct{}),
	}
}

// Append adds an event. Returns ErrDuplicateKey if the event ID exists.
func (s *JournalStore) Append(_ context.Context, e *domain.Event) error {
	if e == nil || e.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[e.ID]; exists {
		return storage.ErrDuplicateKey
	}

	eventCopy := *e
	s.ids[e.ID] = struct{}{}
	s.events = append(s.events, &eventCopy)
	return nil
}

// GetBySale retrieves the most recent events of a sale, ordered by ledger
// time ascending.
func (s *JournalStore) GetBySale(_ context.Context, sale domain.Pubkey, limit int) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Event
	for _, e := range s.events {
		if e.Sale == sale {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}

	// Stable keeps append order for events committed within the same second
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].LedgerTime < result[j].LedgerTime
	})

	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

var _ storage.JournalStore = (*JournalStore)(nil)
