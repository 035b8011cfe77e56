package token

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"crowdsale-ledger/internal/address"
	"crowdsale-ledger/internal/codec"
	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/storage"
)

// ErrMintAuthority is returned when minting is attempted by a party other
// than the mint authority.
var ErrMintAuthority = errors.New("token: signer is not the mint authority")

// ErrProgramAddress is returned when a harness operation targets an
// off-curve address. Those are derived by the program for its own records.
var ErrProgramAddress = errors.New("token: address is reserved for program-derived accounts")

// Bank runs the harness operations that sit outside the sale program:
// creating mints and holdings, minting supply, and airdropping native funds.
type Bank struct {
	store   storage.AccountStore
	deriver *address.Deriver
	logger  *zap.Logger
}

// NewBank creates a Bank.
func NewBank(store storage.AccountStore, deriver *address.Deriver, logger *zap.Logger) *Bank {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bank{store: store, deriver: deriver, logger: logger.Named("bank")}
}

// Airdrop credits lamports to owner and returns the new balance.
func (b *Bank) Airdrop(ctx context.Context, owner domain.Pubkey, lamports uint64) (uint64, error) {
	if !address.IsOnCurve(owner[:]) {
		return 0, fmt.Errorf("airdrop to %s: %w", owner, ErrProgramAddress)
	}
	var balance uint64
	err := b.store.Atomically(ctx, []domain.Pubkey{owner}, func(tx storage.Tx) error {
		if err := CreditNative(tx, owner, lamports); err != nil {
			return err
		}
		var err error
		balance, err = NativeBalance(tx, owner)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("airdrop: %w", err)
	}
	b.logger.Info("airdrop", zap.Stringer("owner", owner), zap.Uint64("lamports", lamports))
	return balance, nil
}

// CreateMint creates a mint at addr.
func (b *Bank) CreateMint(ctx context.Context, addr, authority domain.Pubkey, decimals uint8) error {
	if !address.IsOnCurve(addr[:]) {
		return fmt.Errorf("create mint at %s: %w", addr, ErrProgramAddress)
	}
	err := b.store.Atomically(ctx, []domain.Pubkey{addr}, func(tx storage.Tx) error {
		return create(tx, addr, &domain.Mint{Authority: authority, Decimals: decimals})
	})
	if err != nil {
		return fmt.Errorf("create mint: %w", err)
	}
	b.logger.Info("mint created", zap.Stringer("mint", addr), zap.Uint8("decimals", decimals))
	return nil
}

// CreateHolding creates the canonical holding of owner for mint and returns
// its address.
func (b *Bank) CreateHolding(ctx context.Context, owner, mint domain.Pubkey) (domain.Pubkey, error) {
	addr := b.deriver.Holding(owner, mint)
	err := b.store.Atomically(ctx, []domain.Pubkey{addr, mint}, func(tx storage.Tx) error {
		if _, err := LoadMint(tx, mint); err != nil {
			return fmt.Errorf("load mint: %w", err)
		}
		_, err := CreateHolding(tx, addr, mint, owner)
		return err
	})
	if err != nil {
		return domain.Pubkey{}, fmt.Errorf("create holding: %w", err)
	}
	return addr, nil
}

// MintTo mints amount new tokens into the holding at dest. authority is
// compared with the mint's authority but is not a verified signer.
func (b *Bank) MintTo(ctx context.Context, mint, dest, authority domain.Pubkey, amount uint64) error {
	err := b.store.Atomically(ctx, []domain.Pubkey{mint, dest}, func(tx storage.Tx) error {
		m, err := LoadMint(tx, mint)
		if err != nil {
			return fmt.Errorf("load mint: %w", err)
		}
		if m.Authority != authority {
			return ErrMintAuthority
		}
		h, err := LoadHolding(tx, dest)
		if err != nil {
			return fmt.Errorf("load holding: %w", err)
		}
		if h.Mint != mint {
			return ErrMintMismatch
		}
		if m.Supply > math.MaxUint64-amount || h.Amount > math.MaxUint64-amount {
			return ErrOverflow
		}
		m.Supply += amount
		h.Amount += amount
		if err := store(tx, mint, m); err != nil {
			return err
		}
		return StoreHolding(tx, dest, h)
	})
	if err != nil {
		return fmt.Errorf("mint to: %w", err)
	}
	b.logger.Info("minted", zap.Stringer("mint", mint), zap.Stringer("dest", dest), zap.Uint64("amount", amount))
	return nil
}

// Balance returns the native balance of owner.
func (b *Bank) Balance(ctx context.Context, owner domain.Pubkey) (uint64, error) {
	data, err := b.store.Get(ctx, owner)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	acct := &domain.NativeAccount{}
	if err := codec.Decode(data, acct); err != nil {
		return 0, err
	}
	return acct.Lamports, nil
}

// Holding returns the holding stored at addr.
func (b *Bank) Holding(ctx context.Context, addr domain.Pubkey) (*domain.TokenHolding, error) {
	data, err := b.store.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	h := &domain.TokenHolding{}
	if err := codec.Decode(data, h); err != nil {
		return nil, err
	}
	return h, nil
}

// Mint returns the mint stored at addr.
func (b *Bank) Mint(ctx context.Context, addr domain.Pubkey) (*domain.Mint, error) {
	data, err := b.store.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	m := &domain.Mint{}
	if err := codec.Decode(data, m); err != nil {
		return nil, err
	}
	return m, nil
}
