package clickhouse

import (
	"context"
	"fmt"

	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/storage"
)

// JournalStore implements storage.JournalStore using ClickHouse.
// The table is a ReplacingMergeTree keyed by event ID; Append checks for an
// existing ID first since MergeTree does not enforce uniqueness at insert.
type JournalStore struct {
	conn *Conn
}

// NewJournalStore creates a new JournalStore.
func NewJournalStore(conn *Conn) *JournalStore {
	return &JournalStore{conn: conn}
}

// Compile-time interface check.
var _ storage.JournalStore = (*JournalStore)(nil)

// Append adds an event. Returns ErrDuplicateKey if the event ID exists.
func (s *JournalStore) Append(ctx context.Context, e *domain.Event) error {
	if e == nil || e.ID == "" {
		return storage.ErrInvalidInput
	}

	exists, err := s.exists(ctx, e.ID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO sale_events (
			id, kind, sale, signer, amount, allocation, ledger_time, signature,
			total_deposited, total_sold, vault_balance, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		e.ID, string(e.Kind), e.Sale.String(), e.Signer.String(),
		e.Amount, e.Allocation, e.LedgerTime, e.Signature,
		e.TotalDeposited, e.TotalSold, e.VaultBalance, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetBySale retrieves the most recent events of a sale, ordered by ledger
// time ascending.
func (s *JournalStore) GetBySale(ctx context.Context, sale domain.Pubkey, limit int) ([]*domain.Event, error) {
	query := `
		SELECT id, kind, sale, signer, amount, allocation, ledger_time, signature,
		       total_deposited, total_sold, vault_balance, created_at
		FROM sale_events FINAL
		WHERE sale = ?
		ORDER BY ledger_time DESC, created_at DESC
	`
	args := []interface{}{sale.String()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, uint64(limit))
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query by sale: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	// Query returns newest first so LIMIT keeps the latest events
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// exists checks if an event with the given ID exists.
func (s *JournalStore) exists(ctx context.Context, id string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM sale_events WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanEvents scans multiple rows.
func scanEvents(rows chRows) ([]*domain.Event, error) {
	var events []*domain.Event

	for rows.Next() {
		var e domain.Event
		var kind, sale, signer string

		err := rows.Scan(
			&e.ID, &kind, &sale, &signer,
			&e.Amount, &e.Allocation, &e.LedgerTime, &e.Signature,
			&e.TotalDeposited, &e.TotalSold, &e.VaultBalance, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sale event row: %w", err)
		}

		e.Kind = domain.EventKind(kind)
		if e.Sale, err = domain.ParsePubkey(sale); err != nil {
			return nil, fmt.Errorf("scan sale event row: %w", err)
		}
		if e.Signer, err = domain.ParsePubkey(signer); err != nil {
			return nil, fmt.Errorf("scan sale event row: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale event rows: %w", err)
	}

	return events, nil
}
