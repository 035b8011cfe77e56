// Package token implements token holdings and native balances on top of a
// storage.Tx: the transfer primitive used by the sale program and the mint
// operations used by the dev harness.
package token

import (
	"errors"
	"fmt"
	"math"

	"crowdsale-ledger/internal/codec"
	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/storage"
)

var (
	// ErrMintMismatch is returned when two holdings are of different mints.
	ErrMintMismatch = errors.New("token: mint mismatch")
	// ErrInsufficientFunds is returned when a debit exceeds the balance.
	ErrInsufficientFunds = errors.New("token: insufficient funds")
	// ErrOwnerMismatch is returned when the signer does not own the source.
	ErrOwnerMismatch = errors.New("token: owner mismatch")
	// ErrOverflow is returned when a credit would overflow uint64.
	ErrOverflow = errors.New("token: amount overflow")
)

// LoadHolding reads the holding at addr.
func LoadHolding(tx storage.Tx, addr domain.Pubkey) (*domain.TokenHolding, error) {
	h := &domain.TokenHolding{}
	if err := load(tx, addr, h); err != nil {
		return nil, err
	}
	return h, nil
}

// StoreHolding writes h at addr.
func StoreHolding(tx storage.Tx, addr domain.Pubkey, h *domain.TokenHolding) error {
	return store(tx, addr, h)
}

// LoadMint reads the mint at addr.
func LoadMint(tx storage.Tx, addr domain.Pubkey) (*domain.Mint, error) {
	m := &domain.Mint{}
	if err := load(tx, addr, m); err != nil {
		return nil, err
	}
	return m, nil
}

// NativeBalance returns the native balance of owner. An absent account has
// a zero balance.
func NativeBalance(tx storage.Tx, owner domain.Pubkey) (uint64, error) {
	acct := &domain.NativeAccount{}
	err := load(tx, owner, acct)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acct.Lamports, nil
}

// Transfer moves amount tokens from one holding to another. authority must
// own the source holding and both holdings must be of the same mint.
func Transfer(tx storage.Tx, from, to, authority domain.Pubkey, amount uint64) error {
	src, err := LoadHolding(tx, from)
	if err != nil {
		return fmt.Errorf("load source holding: %w", err)
	}
	dst, err := LoadHolding(tx, to)
	if err != nil {
		return fmt.Errorf("load destination holding: %w", err)
	}

	if src.Owner != authority {
		return ErrOwnerMismatch
	}
	if src.Mint != dst.Mint {
		return ErrMintMismatch
	}
	if src.Amount < amount {
		return ErrInsufficientFunds
	}
	if from == to {
		return nil
	}
	if dst.Amount > math.MaxUint64-amount {
		return ErrOverflow
	}

	src.Amount -= amount
	dst.Amount += amount
	if err := StoreHolding(tx, from, src); err != nil {
		return err
	}
	return StoreHolding(tx, to, dst)
}

// DebitNative removes amount from owner's native balance.
func DebitNative(tx storage.Tx, owner domain.Pubkey, amount uint64) error {
	balance, err := NativeBalance(tx, owner)
	if err != nil {
		return err
	}
	if balance < amount {
		return ErrInsufficientFunds
	}
	return store(tx, owner, &domain.NativeAccount{Owner: owner, Lamports: balance - amount})
}

// CreditNative adds amount to owner's native balance, creating the account
// if needed.
func CreditNative(tx storage.Tx, owner domain.Pubkey, amount uint64) error {
	balance, err := NativeBalance(tx, owner)
	if err != nil {
		return err
	}
	if balance > math.MaxUint64-amount {
		return ErrOverflow
	}
	return store(tx, owner, &domain.NativeAccount{Owner: owner, Lamports: balance + amount})
}

func load(tx storage.Tx, addr domain.Pubkey, acct codec.Account) error {
	data, err := tx.Get(addr)
	if err != nil {
		return err
	}
	return codec.Decode(data, acct)
}

func store(tx storage.Tx, addr domain.Pubkey, acct codec.Account) error {
	data, err := codec.Encode(acct)
	if err != nil {
		return err
	}
	return tx.Put(addr, data)
}

func create(tx storage.Tx, addr domain.Pubkey, acct codec.Account) error {
	data, err := codec.Encode(acct)
	if err != nil {
		return err
	}
	return tx.Create(addr, data)
}

// CreateHolding creates an empty holding of mint for owner at addr.
func CreateHolding(tx storage.Tx, addr, mint, owner domain.Pubkey) (*domain.TokenHolding, error) {
	h := &domain.TokenHolding{Mint: mint, Owner: owner}
	if err := create(tx, addr, h); err != nil {
		return nil, err
	}
	return h, nil
}
