package memory

import (
	"bytes"
	"context"
	"sync"

	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/storage"
)

// AccountStore is an in-memory implementation of storage.AccountStore.
// Each address has its own lock; a unit of work holds the locks of exactly
// the addresses it declared, acquired in sorted order.
type AccountStore struct {
	mu   sync.RWMutex
	data map[domain.Pubkey][]byte

	locksMu sync.Mutex
	locks   map[domain.Pubkey]*sync.Mutex
}

// NewAccountStore creates a new in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		data:  make(map[domain.Pubkey][]byte),
		locks: make(map[domain.Pubkey]*sync.Mutex),
	}
}

// Get returns the encoded account at addr. Returns ErrNotFound if not exists.
func (s *AccountStore) Get(_ context.Context, addr domain.Pubkey) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[addr]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return bytes.Clone(data), nil
}

// Atomically runs fn while holding the locks of the declared addresses.
func (s *AccountStore) Atomically(ctx context.Context, declared []domain.Pubkey, fn func(storage.Tx) error) error {
	if len(declared) == 0 || fn == nil {
		return storage.ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	keys := storage.SortedUnique(declared)
	held := make([]*sync.Mutex, 0, len(keys))
	for _, k := range keys {
		l := s.lockFor(k)
		l.Lock()
		held = append(held, l)
	}
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}()

	tx := storage.NewBufferedTx(keys, s.snapshot(keys))
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range tx.Writes() {
		s.data[w.Addr] = bytes.Clone(w.Data)
	}
	return nil
}

// Len returns the number of stored accounts.
func (s *AccountStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *AccountStore) snapshot(keys []domain.Pubkey) map[domain.Pubkey][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[domain.Pubkey][]byte, len(keys))
	for _, k := range keys {
		if data, ok := s.data[k]; ok {
			out[k] = data
		}
	}
	return out
}

func (s *AccountStore) lockFor(addr domain.Pubkey) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[addr]
	if !ok {
		l = &sync.Mutex{}
		s.locks[addr] = l
	}
	return l
}

var _ storage.AccountStore = (*AccountStore)(nil)
