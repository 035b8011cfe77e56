package crowdsale

import (
	"errors"
	"fmt"

	"crowdsale-ledger/internal/codec"
	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/storage"
	"crowdsale-ledger/internal/token"
)

// Account sets named by each instruction. The signer is implicit.

// InitializeAccounts are the accounts of initialize.
type InitializeAccounts struct {
	Sale  domain.Pubkey
	Vault domain.Pubkey
	Mint  domain.Pubkey
}

// ConfigureAccounts are the accounts of configure.
type ConfigureAccounts struct {
	Sale domain.Pubkey
}

// FundAccounts are the accounts of fund.
type FundAccounts struct {
	Sale   domain.Pubkey
	Vault  domain.Pubkey
	Source domain.Pubkey // authority's holding of the sale mint
}

// PurchaseAccounts are the accounts of purchase.
type PurchaseAccounts struct {
	Sale        domain.Pubkey
	Vault       domain.Pubkey
	BuyerEntry  domain.Pubkey
	Destination domain.Pubkey // buyer's holding of the sale mint
}

// WithdrawAccounts are the accounts of withdraw.
type WithdrawAccounts struct {
	Sale domain.Pubkey
}

// EndSaleAccounts are the accounts of endSale.
type EndSaleAccounts struct {
	Sale        domain.Pubkey
	Vault       domain.Pubkey
	Destination domain.Pubkey // authority's holding of the sale mint
}

// InitializeAccountsFor derives the accounts of initialize for authority.
func (c *Controller) InitializeAccountsFor(authority, mint domain.Pubkey) InitializeAccounts {
	a := c.deriver.ForAuthority(authority)
	return InitializeAccounts{Sale: a.Sale, Vault: a.Vault, Mint: mint}
}

// PurchaseAccountsFor derives the accounts of a purchase by buyer from the
// sale of authority into destination.
func (c *Controller) PurchaseAccountsFor(authority, buyer, destination domain.Pubkey) PurchaseAccounts {
	a := c.deriver.ForAuthority(authority)
	entry, _ := c.deriver.BuyerEntry(a.Sale, buyer)
	return PurchaseAccounts{Sale: a.Sale, Vault: a.Vault, BuyerEntry: entry, Destination: destination}
}

// decodeAccount loads addr into acct. An empty address is
// ErrAccountNotInitialized and an account of another kind is
// ErrInvalidAccount.
func decodeAccount(tx storage.Tx, addr domain.Pubkey, acct codec.Account) error {
	data, err := tx.Get(addr)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrAccountNotInitialized, acct.AccountKind(), addr)
	}
	if err != nil {
		return err
	}
	if err := codec.Decode(data, acct); err != nil {
		if errors.Is(err, codec.ErrDiscriminatorMismatch) {
			return fmt.Errorf("%w: %s is not a %s", ErrInvalidAccount, addr, acct.AccountKind())
		}
		return err
	}
	return nil
}

func putAccount(tx storage.Tx, addr domain.Pubkey, acct codec.Account) error {
	data, err := codec.Encode(acct)
	if err != nil {
		return err
	}
	return tx.Put(addr, data)
}

func createAccount(tx storage.Tx, addr domain.Pubkey, acct codec.Account) error {
	data, err := codec.Encode(acct)
	if err != nil {
		return err
	}
	return tx.Create(addr, data)
}

func loadSale(tx storage.Tx, addr domain.Pubkey) (*domain.SaleRecord, error) {
	s := &domain.SaleRecord{}
	if err := decodeAccount(tx, addr, s); err != nil {
		return nil, err
	}
	return s, nil
}

func loadHolding(tx storage.Tx, addr domain.Pubkey) (*domain.TokenHolding, error) {
	h := &domain.TokenHolding{}
	if err := decodeAccount(tx, addr, h); err != nil {
		return nil, err
	}
	return h, nil
}

// loadVault loads the vault of sale and checks it is the one the sale was
// created with.
func loadVault(tx storage.Tx, sale *domain.SaleRecord, saleAddr, vaultAddr domain.Pubkey) (*domain.VaultAccount, error) {
	if vaultAddr != sale.Vault {
		return nil, fmt.Errorf("%w: vault %s does not belong to sale %s", ErrInvalidAccount, vaultAddr, saleAddr)
	}
	v, err := loadHolding(tx, vaultAddr)
	if err != nil {
		return nil, err
	}
	if v.Owner != saleAddr || v.Mint != sale.TokenMint {
		return nil, fmt.Errorf("%w: vault %s", ErrInvalidAccount, vaultAddr)
	}
	return v, nil
}

// loadUserHolding loads a holding that must be owned by owner and hold the
// sale mint.
func loadUserHolding(tx storage.Tx, addr, owner, mint domain.Pubkey) (*domain.TokenHolding, error) {
	h, err := loadHolding(tx, addr)
	if err != nil {
		return nil, err
	}
	if h.Owner != owner {
		return nil, fmt.Errorf("%w: holding %s is not owned by %s", ErrInvalidAccount, addr, owner)
	}
	if h.Mint != mint {
		return nil, ErrMintMismatch
	}
	return h, nil
}

// tokenError maps transfer primitive failures onto transition errors.
func tokenError(err error) error {
	switch {
	case errors.Is(err, token.ErrMintMismatch):
		return ErrMintMismatch
	case errors.Is(err, token.ErrInsufficientFunds):
		return ErrInsufficientBalance
	case errors.Is(err, token.ErrOwnerMismatch):
		return ErrUnauthorized
	case errors.Is(err, token.ErrOverflow):
		return ErrArithmeticOverflow
	default:
		return err
	}
}
