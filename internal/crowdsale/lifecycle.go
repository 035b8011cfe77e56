package crowdsale

import (
	"context"
	"fmt"

	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/storage"
)

// ConfigureParams are the tunable fields of a sale.
type ConfigureParams struct {
	MinContribution uint64
	MaxContribution uint64
	StartTime       int64
	EndTime         int64
	Price           uint64
}

// Validate checks the parameter invariants.
func (p ConfigureParams) Validate() error {
	switch {
	case p.StartTime >= p.EndTime:
		return fmt.Errorf("%w: start_time %d must precede end_time %d", ErrInvalidParameters, p.StartTime, p.EndTime)
	case p.MinContribution > p.MaxContribution:
		return fmt.Errorf("%w: min_contribution %d exceeds max_contribution %d", ErrInvalidParameters, p.MinContribution, p.MaxContribution)
	case p.Price == 0:
		return fmt.Errorf("%w: price must be positive", ErrInvalidParameters)
	}
	return nil
}

// Initialize creates the sale record of the signer and its empty vault.
// The sale and vault addresses must be the ones derived from the signer.
// Fails with ErrAlreadyInitialized, leaving state untouched, if either
// address is occupied.
func (c *Controller) Initialize(ctx context.Context, inv Invocation, accts InitializeAccounts) (*Result, error) {
	declared := []domain.Pubkey{accts.Sale, accts.Vault, accts.Mint}

	return c.execute(ctx, domain.EventInitialized, inv, declared, func(tx storage.Tx, now int64) (*Result, error) {
		sale, saleBump := c.deriver.Sale(inv.Signer)
		if accts.Sale != sale {
			return nil, fmt.Errorf("%w: sale %s is not derived from %s", ErrInvalidAccount, accts.Sale, inv.Signer)
		}
		vault, vaultBump := c.deriver.Vault(sale)
		if accts.Vault != vault {
			return nil, fmt.Errorf("%w: vault %s is not derived from sale %s", ErrInvalidAccount, accts.Vault, sale)
		}

		for _, addr := range []domain.Pubkey{sale, vault} {
			occupied, err := tx.Exists(addr)
			if err != nil {
				return nil, err
			}
			if occupied {
				return nil, ErrAlreadyInitialized
			}
		}

		mint := &domain.Mint{}
		if err := decodeAccount(tx, accts.Mint, mint); err != nil {
			return nil, err
		}

		record := &domain.SaleRecord{
			Authority:     inv.Signer,
			TokenMint:     accts.Mint,
			Vault:         vault,
			TokenDecimals: mint.Decimals,
			Bump:          saleBump,
			VaultBump:     vaultBump,
		}
		holding := &domain.VaultAccount{Mint: accts.Mint, Owner: sale}

		if err := createAccount(tx, sale, record); err != nil {
			return nil, err
		}
		if err := createAccount(tx, vault, holding); err != nil {
			return nil, err
		}

		return &Result{
			Event: newEvent(sale, record, 0, now),
			Sale:  record,
			Vault: holding,
		}, nil
	})
}

// Configure overwrites the sale parameters. Totals are untouched.
func (c *Controller) Configure(ctx context.Context, inv Invocation, accts ConfigureAccounts, p ConfigureParams) (*Result, error) {
	declared := []domain.Pubkey{accts.Sale}

	return c.execute(ctx, domain.EventConfigured, inv, declared, func(tx storage.Tx, now int64) (*Result, error) {
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
		if err := p.Validate(); err != nil {
			return nil, err
		}

		record.MinContribution = p.MinContribution
		record.MaxContribution = p.MaxContribution
		record.StartTime = p.StartTime
		record.EndTime = p.EndTime
		record.Price = p.Price

		if err := putAccount(tx, accts.Sale, record); err != nil {
			return nil, err
		}

		e := newEvent(accts.Sale, record, record.TotalDeposited-record.TotalSold, now)
		e.Amount = p.Price
		return &Result{Event: e, Sale: record}, nil
	})
}
