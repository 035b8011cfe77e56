package postgres

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"crowdsale-ledger/internal/codec"
	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/observability"
	"crowdsale-ledger/internal/storage"
)

// AccountStore implements storage.AccountStore using PostgreSQL.
// A unit of work takes one transaction-scoped advisory lock per declared
// address, so units on disjoint addresses proceed in parallel and absent
// addresses are locked as well as existing rows.
type AccountStore struct {
	pool *Pool
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(pool *Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

// Get returns the encoded account at addr. Returns ErrNotFound if not exists.
func (s *AccountStore) Get(ctx context.Context, addr domain.Pubkey) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM accounts WHERE address = $1`, addr[:]).Scan(&data)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return data, nil
}

// Atomically runs fn inside one database transaction holding the advisory
// locks of the declared addresses.
func (s *AccountStore) Atomically(ctx context.Context, declared []domain.Pubkey, fn func(storage.Tx) error) error {
	if len(declared) == 0 || fn == nil {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	var fnErr error
	err := s.inTx(ctx, storage.SortedUnique(declared), func(tx storage.Tx) error {
		fnErr = fn(tx)
		return fnErr
	})
	if fnErr != nil {
		// Rejections from fn are not database failures.
		observability.RecordDBQuery("postgres", "atomically", time.Since(start).Seconds(), nil)
		return fnErr
	}
	observability.RecordDBQuery("postgres", "atomically", time.Since(start).Seconds(), err)
	return err
}

func (s *AccountStore) inTx(ctx context.Context, keys []domain.Pubkey, fn func(storage.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, k := range keys {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockID(k)); err != nil {
			return fmt.Errorf("lock account %s: %w", k, err)
		}
	}

	snapshot, err := loadAccounts(ctx, tx, keys)
	if err != nil {
		return err
	}

	buffered := storage.NewBufferedTx(keys, snapshot)
	if err := fn(buffered); err != nil {
		return err
	}

	for _, w := range buffered.Writes() {
		if err := writeAccount(ctx, tx, w); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func loadAccounts(ctx context.Context, tx pgx.Tx, keys []domain.Pubkey) (map[domain.Pubkey][]byte, error) {
	raw := make([][]byte, len(keys))
	for i, k := range keys {
		raw[i] = k.Bytes()
	}

	rows, err := tx.Query(ctx, `SELECT address, data FROM accounts WHERE address = ANY($1)`, raw)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.Pubkey][]byte, len(keys))
	for rows.Next() {
		var address, data []byte
		if err := rows.Scan(&address, &data); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		pk, err := domain.PubkeyFromBytes(address)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out[pk] = data
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

func writeAccount(ctx context.Context, tx pgx.Tx, w storage.Write) error {
	kind, err := codec.KindOf(w.Data)
	if err != nil {
		kind = "unknown"
	}

	if w.Created {
		_, err := tx.Exec(ctx, `
			INSERT INTO accounts (address, kind, data) VALUES ($1, $2, $3)
		`, w.Addr[:], kind, w.Data)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert account: %w", err)
		}
		return nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO accounts (address, kind, data) VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE
		SET kind = EXCLUDED.kind,
		    data = EXCLUDED.data,
		    version = accounts.version + 1,
		    updated_at = now()
	`, w.Addr[:], kind, w.Data)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// lockID maps an address to an advisory lock key. Every unit takes its keys
// in sorted address order, so two units never wait on each other in a cycle.
func lockID(addr domain.Pubkey) int64 {
	return int64(binary.BigEndian.Uint64(addr[:8]))
}
