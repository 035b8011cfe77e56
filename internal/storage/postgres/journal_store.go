package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"

	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/storage"
)

// JournalStore implements storage.JournalStore using PostgreSQL.
type JournalStore struct {
	pool *Pool
}

// NewJournalStore creates a new JournalStore.
func NewJournalStore(pool *Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.JournalStore = (*JournalStore)(nil)

// Append adds an event. Returns ErrDuplicateKey if the event ID exists.
func (s *JournalStore) Append(ctx context.Context, e *domain.Event) error {
	if e == nil || e.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO sale_events (
			id, kind, sale, signer, amount, allocation, ledger_time, signature,
			total_deposited, total_sold, vault_balance, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.pool.Exec(ctx, query,
		e.ID,
		string(e.Kind),
		e.Sale.String(),
		e.Signer.String(),
		numericFromUint64(e.Amount),
		numericFromUint64(e.Allocation),
		e.LedgerTime,
		e.Signature,
		numericFromUint64(e.TotalDeposited),
		numericFromUint64(e.TotalSold),
		numericFromUint64(e.VaultBalance),
		e.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert sale event: %w", err)
	}
	return nil
}

// GetBySale retrieves the most recent events of a sale, ordered by ledger
// time ascending.
func (s *JournalStore) GetBySale(ctx context.Context, sale domain.Pubkey, limit int) ([]*domain.Event, error) {
	query := `
		SELECT id::text, kind, sale, signer, amount, allocation, ledger_time, signature,
		       total_deposited, total_sold, vault_balance, created_at
		FROM (
			SELECT * FROM sale_events
			WHERE sale = $1
			ORDER BY ledger_time DESC, seq DESC
			LIMIT $2
		) recent
		ORDER BY ledger_time ASC, seq ASC
	`

	var lim *int64
	if limit > 0 {
		l := int64(limit)
		lim = &l
	}

	rows, err := s.pool.Query(ctx, query, sale.String(), lim)
	if err != nil {
		return nil, fmt.Errorf("query sale events: %w", err)
	}
	defer rows.Close()

	var result []*domain.Event
	for rows.Next() {
		var (
			e                                           domain.Event
			kind, saleStr, signerStr                    string
			amount, allocation, deposited, sold, vault pgtype.Numeric
		)
		err := rows.Scan(
			&e.ID, &kind, &saleStr, &signerStr, &amount, &allocation, &e.LedgerTime, &e.Signature,
			&deposited, &sold, &vault, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sale event: %w", err)
		}
		e.Kind = domain.EventKind(kind)
		if e.Sale, err = domain.ParsePubkey(saleStr); err != nil {
			return nil, fmt.Errorf("scan sale event: %w", err)
		}
		if e.Signer, err = domain.ParsePubkey(signerStr); err != nil {
			return nil, fmt.Errorf("scan sale event: %w", err)
		}
		for _, f := range []struct {
			src *pgtype.Numeric
			dst *uint64
		}{
			{&amount, &e.Amount},
			{&allocation, &e.Allocation},
			{&deposited, &e.TotalDeposited},
			{&sold, &e.TotalSold},
			{&vault, &e.VaultBalance},
		} {
			if *f.dst, err = uint64FromNumeric(*f.src); err != nil {
				return nil, fmt.Errorf("scan sale event %s: %w", e.ID, err)
			}
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale events: %w", err)
	}
	return result, nil
}

func numericFromUint64(v uint64) pgtype.Numeric {
	return pgtype.Numeric{Int: new(big.Int).SetUint64(v), Valid: true}
}

var bigTen = big.NewInt(10)

// uint64FromNumeric converts an integral NUMERIC value. Postgres may return
// trailing zeros folded into a positive exponent.
func uint64FromNumeric(n pgtype.Numeric) (uint64, error) {
	if !n.Valid || n.NaN || n.InfinityModifier != pgtype.Finite {
		return 0, fmt.Errorf("numeric is not a finite value")
	}
	v := new(big.Int).Set(n.Int)
	switch {
	case n.Exp > 0:
		v.Mul(v, new(big.Int).Exp(bigTen, big.NewInt(int64(n.Exp)), nil))
	case n.Exp < 0:
		div := new(big.Int).Exp(bigTen, big.NewInt(int64(-n.Exp)), nil)
		var rem big.Int
		v.QuoRem(v, div, &rem)
		if rem.Sign() != 0 {
			return 0, fmt.Errorf("numeric %s is not integral", n.Int)
		}
	}
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("numeric out of uint64 range")
	}
	return v.Uint64(), nil
}
