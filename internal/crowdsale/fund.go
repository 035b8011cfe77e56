package crowdsale

import (
	"context"
	"math"

	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/storage"
	"crowdsale-ledger/internal/token"
)

// Fund moves amount tokens from the authority's source holding into the
// vault and adds them to TotalDeposited.
func (c *Controller) Fund(ctx context.Context, inv Invocation, accts FundAccounts, amount uint64) (*Result, error) {
	declared := []domain.Pubkey{accts.Sale, accts.Vault, accts.Source}

	return c.execute(ctx, domain.EventFunded, inv, declared, func(tx storage.Tx, now int64) (*Result, error) {
		record, err := loadSale(tx, accts.Sale)
		if err != nil {
			return nil, err
		}
		if record.Authority != inv.Signer {
			return nil, ErrUnauthorized
		}
		if record.Closed {
			return nil, ErrSaleClosed
		}
		vault, err := loadVault(tx, record, accts.Sale, accts.Vault)
		if err != nil {
			return nil, err
		}
		if amount == 0 {
			return nil, ErrInvalidParameters
		}

		source, err := loadHolding(tx, accts.Source)
		if err != nil {
			return nil, err
		}
		if source.Mint != record.TokenMint {
			return nil, ErrMintMismatch
		}
		if source.Owner != inv.Signer {
			return nil, ErrUnauthorized
		}
		if source.Amount < amount {
			return nil, ErrInsufficientBalance
		}
		if record.TotalDeposited > math.MaxUint64-amount || vault.Amount > math.MaxUint64-amount {
			return nil, ErrArithmeticOverflow
		}

		if err := token.Transfer(tx, accts.Source, accts.Vault, inv.Signer, amount); err != nil {
			return nil, tokenError(err)
		}
		record.TotalDeposited += amount
		if err := putAccount(tx, accts.Sale, record); err != nil {
			return nil, err
		}

		vault.Amount += amount
		source.Amount -= amount

		e := newEvent(accts.Sale, record, vault.Amount, now)
		e.Amount = amount
		return &Result{Event: e, Sale: record, Vault: vault, Holding: source}, nil
	})
}
