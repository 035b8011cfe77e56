package storage

import (
	"context"

	"crowdsale-ledger/internal/domain"
)

// Tx is the view of the ledger granted to one atomic unit of work.
// Only addresses declared when the unit was opened are accessible.
type Tx interface {
	// Get returns the encoded account at addr. Returns ErrNotFound if the
	// address is empty and ErrUndeclaredAccount if it was not declared.
	Get(addr domain.Pubkey) ([]byte, error)

	// Exists reports whether an account is stored at addr.
	Exists(addr domain.Pubkey) (bool, error)

	// Put writes data at addr, replacing any existing account.
	Put(addr domain.Pubkey, data []byte) error

	// Create writes data at addr. Returns ErrDuplicateKey if occupied.
	Create(addr domain.Pubkey, data []byte) error
}

// AccountStore holds encoded ledger accounts keyed by address.
type AccountStore interface {
	// Get returns the encoded account at addr outside any transaction.
	// Returns ErrNotFound if not exists.
	Get(ctx context.Context, addr domain.Pubkey) ([]byte, error)

	// Atomically runs fn with exclusive access to the declared addresses.
	// Writes made through the Tx are committed together only if fn returns
	// nil; otherwise nothing is written. Units that declare disjoint sets
	// may run in parallel. fn may be invoked more than once by optimistic
	// backends and must not have side effects outside the Tx.
	Atomically(ctx context.Context, declared []domain.Pubkey, fn func(Tx) error) error
}

// JournalStore provides access to the append-only journal of committed
// transitions.
type JournalStore interface {
	// Append adds an event. Returns ErrDuplicateKey if the event ID exists.
	Append(ctx context.Context, e *domain.Event) error

	// GetBySale retrieves the most recent events of a sale, ordered by
	// ledger time ascending. limit <= 0 means no limit.
	GetBySale(ctx context.Context, sale domain.Pubkey, limit int) ([]*domain.Event, error)
}
