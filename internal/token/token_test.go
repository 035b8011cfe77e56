package token

import (
	"context"
	"crypto/ed25519"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"crowdsale-ledger/internal/address"
	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/storage"
	"crowdsale-ledger/internal/storage/memory"
)

// key returns the public key of a deterministic ed25519 seed.
func key(b byte) domain.Pubkey {
	seed := make([]byte, ed25519.SeedSize)
	seed[0], seed[31] = b, b
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	pk, _ := domain.PubkeyFromBytes(pub)
	return pk
}

type fixture struct {
	store   *memory.AccountStore
	bank    *Bank
	mint    domain.Pubkey
	minter  domain.Pubkey
	alice   domain.Pubkey
	bob     domain.Pubkey
	aliceTA domain.Pubkey
	bobTA   domain.Pubkey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		store:  memory.NewAccountStore(),
		mint:   key(1),
		minter: key(2),
		alice:  key(3),
		bob:    key(4),
	}
	f.bank = NewBank(f.store, address.NewDeriver(address.DefaultProgramID), zaptest.NewLogger(t))

	require.NoError(t, f.bank.CreateMint(ctx, f.mint, f.minter, 9))
	var err error
	f.aliceTA, err = f.bank.CreateHolding(ctx, f.alice, f.mint)
	require.NoError(t, err)
	f.bobTA, err = f.bank.CreateHolding(ctx, f.bob, f.mint)
	require.NoError(t, err)
	require.NoError(t, f.bank.MintTo(ctx, f.mint, f.aliceTA, f.minter, 1_000))
	return f
}

func (f *fixture) transfer(from, to, authority domain.Pubkey, amount uint64) error {
	return f.store.Atomically(context.Background(), []domain.Pubkey{from, to}, func(tx storage.Tx) error {
		return Transfer(tx, from, to, authority, amount)
	})
}

func TestTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.transfer(f.aliceTA, f.bobTA, f.alice, 400))

	a, err := f.bank.Holding(ctx, f.aliceTA)
	require.NoError(t, err)
	b, err := f.bank.Holding(ctx, f.bobTA)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), a.Amount)
	assert.Equal(t, uint64(400), b.Amount)
}

func TestTransfer_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	otherMint := key(9)
	require.NoError(t, f.bank.CreateMint(ctx, otherMint, f.minter, 6))
	otherTA, err := f.bank.CreateHolding(ctx, f.bob, otherMint)
	require.NoError(t, err)

	assert.ErrorIs(t, f.transfer(f.aliceTA, f.bobTA, f.bob, 1), ErrOwnerMismatch)
	assert.ErrorIs(t, f.transfer(f.aliceTA, otherTA, f.alice, 1), ErrMintMismatch)
	assert.ErrorIs(t, f.transfer(f.aliceTA, f.bobTA, f.alice, 1_001), ErrInsufficientFunds)

	a, err := f.bank.Holding(ctx, f.aliceTA)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), a.Amount, "rejected transfers must not move tokens")
}

func TestMintTo_RequiresAuthority(t *testing.T) {
	f := newFixture(t)
	err := f.bank.MintTo(context.Background(), f.mint, f.aliceTA, f.alice, 1)
	assert.ErrorIs(t, err, ErrMintAuthority)

	m, err := f.bank.Mint(context.Background(), f.mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), m.Supply)
}

func TestCreateHolding_Duplicate(t *testing.T) {
	f := newFixture(t)
	_, err := f.bank.CreateHolding(context.Background(), f.alice, f.mint)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestNative(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	balance, err := f.bank.Airdrop(ctx, f.alice, 5_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000), balance)

	err = f.store.Atomically(ctx, []domain.Pubkey{f.alice, f.bob}, func(tx storage.Tx) error {
		if err := DebitNative(tx, f.alice, 2_000); err != nil {
			return err
		}
		return CreditNative(tx, f.bob, 2_000)
	})
	require.NoError(t, err)

	a, _ := f.bank.Balance(ctx, f.alice)
	b, _ := f.bank.Balance(ctx, f.bob)
	assert.Equal(t, uint64(3_000), a)
	assert.Equal(t, uint64(2_000), b)

	err = f.store.Atomically(ctx, []domain.Pubkey{f.bob}, func(tx storage.Tx) error {
		return DebitNative(tx, f.bob, 2_001)
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = f.bank.Airdrop(ctx, f.bob, math.MaxUint64)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestBank_RejectsProgramAddresses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	deriver := address.NewDeriver(address.DefaultProgramID)
	sale, _ := deriver.Sale(f.alice)
	entry, _ := deriver.BuyerEntry(sale, f.bob)

	for _, addr := range []domain.Pubkey{sale, entry, f.aliceTA} {
		_, err := f.bank.Airdrop(ctx, addr, 1)
		assert.ErrorIs(t, err, ErrProgramAddress)
		assert.ErrorIs(t, f.bank.CreateMint(ctx, addr, f.minter, 9), ErrProgramAddress)

		_, err = f.store.Get(ctx, addr)
		if addr != f.aliceTA {
			assert.ErrorIs(t, err, storage.ErrNotFound)
		}
	}
}
