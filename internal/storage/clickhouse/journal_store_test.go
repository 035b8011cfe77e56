package clickhouse

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/storage"
)

func key(b byte) domain.Pubkey {
	var pk domain.Pubkey
	pk[0] = b
	pk[31] = b
	return pk
}

func TestJournalStore_AppendAndGetBySale(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewJournalStore(conn)
	ctx := context.Background()
	sale := key(1)

	events := []*domain.Event{
		{ID: uuid.NewString(), Kind: domain.EventInitialized, Sale: sale, Signer: key(2), LedgerTime: 100, CreatedAt: 1},
		{ID: uuid.NewString(), Kind: domain.EventFunded, Sale: sale, Signer: key(2), Amount: 70_000_000_000_000, TotalDeposited: 70_000_000_000_000, VaultBalance: 70_000_000_000_000, LedgerTime: 200, CreatedAt: 2},
		{ID: uuid.NewString(), Kind: domain.EventPurchased, Sale: sale, Signer: key(3), Amount: 1_000_000_000, Allocation: 5_000_000_000, TotalDeposited: 70_000_000_000_000, TotalSold: 5_000_000_000, VaultBalance: 69_995_000_000_000, LedgerTime: 300, Signature: "sig", CreatedAt: 3},
		{ID: uuid.NewString(), Kind: domain.EventInitialized, Sale: key(9), Signer: key(9), LedgerTime: 10, CreatedAt: 4},
	}
	for _, e := range events {
		require.NoError(t, store.Append(ctx, e))
	}

	got, err := store.GetBySale(ctx, sale, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, events[0].ID, got[0].ID)
	assert.Equal(t, *events[2], *got[2])

	latest, err := store.GetBySale(ctx, sale, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, domain.EventFunded, latest[0].Kind)
	assert.Equal(t, domain.EventPurchased, latest[1].Kind)

	err = store.Append(ctx, events[1])
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}
