package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/observability"
	"crowdsale-ledger/internal/storage"
)

const (
	accountKeyPrefix = "crowdsale:acct:"

	// DefaultMaxAttempts bounds optimistic retries of one unit of work.
	DefaultMaxAttempts = 16
)

// AccountStore implements storage.AccountStore on Redis. A unit of work
// WATCHes exactly its declared keys and commits with MULTI/EXEC, so it only
// conflicts with units that wrote one of those keys in the meantime.
type AccountStore struct {
	client      *redis.Client
	maxAttempts int
}

// AccountStoreOption configures an AccountStore.
type AccountStoreOption func(*AccountStore)

// WithMaxAttempts sets the optimistic retry budget.
func WithMaxAttempts(n int) AccountStoreOption {
	return func(s *AccountStore) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(client *redis.Client, opts ...AccountStoreOption) *AccountStore {
	s := &AccountStore{
		client:      client,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

func accountKey(addr domain.Pubkey) string {
	return accountKeyPrefix + addr.String()
}

// Get returns the encoded account at addr. Returns ErrNotFound if not exists.
func (s *AccountStore) Get(ctx context.Context, addr domain.Pubkey) ([]byte, error) {
	data, err := s.client.Get(ctx, accountKey(addr)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return data, nil
}

// Atomically runs fn against a watched snapshot of the declared keys and
// retries when another unit commits to one of them first. Returns
// ErrConflict when the retry budget is exhausted.
func (s *AccountStore) Atomically(ctx context.Context, declared []domain.Pubkey, fn func(storage.Tx) error) error {
	if len(declared) == 0 || fn == nil {
		return storage.ErrInvalidInput
	}

	addrs := storage.SortedUnique(declared)
	keys := make([]string, len(addrs))
	for i, a := range addrs {
		keys[i] = accountKey(a)
	}

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		var fnErr error
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			snapshot, err := load(ctx, rtx, addrs, keys)
			if err != nil {
				return err
			}

			buffered := storage.NewBufferedTx(addrs, snapshot)
			if fnErr = fn(buffered); fnErr != nil {
				return fnErr
			}

			writes := buffered.Writes()
			if len(writes) == 0 {
				return nil
			}
			_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, w := range writes {
					pipe.Set(ctx, accountKey(w.Addr), w.Data, 0)
				}
				return nil
			})
			return err
		}, keys...)

		switch {
		case fnErr != nil:
			return fnErr
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			observability.RecordStoreConflict("redis")
			if err := backoff(ctx, attempt); err != nil {
				return err
			}
		default:
			return fmt.Errorf("redis transaction: %w", err)
		}
	}
	return storage.ErrConflict
}

func load(ctx context.Context, rtx *redis.Tx, addrs []domain.Pubkey, keys []string) (map[domain.Pubkey][]byte, error) {
	vals, err := rtx.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}

	out := make(map[domain.Pubkey][]byte, len(vals))
	for i, v := range vals {
		switch val := v.(type) {
		case nil:
		case string:
			out[addrs[i]] = []byte(val)
		default:
			return nil, fmt.Errorf("load accounts: unexpected value type %T", v)
		}
	}
	return out, nil
}

func backoff(ctx context.Context, attempt int) error {
	delay := time.Duration(attempt+1) * time.Millisecond
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
