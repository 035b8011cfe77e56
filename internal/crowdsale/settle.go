package crowdsale

import (
	"context"
	"fmt"
	"math"

	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/storage"
	"crowdsale-ledger/internal/token"
)

// Withdraw pays amount native base units out of the sale escrow to the
// authority.
func (c *Controller) Withdraw(ctx context.Context, inv Invocation, accts WithdrawAccounts, amount uint64) (*Result, error) {
	declared := []domain.Pubkey{accts.Sale}

	return c.execute(ctx, domain.EventWithdrawn, inv, declared, func(tx storage.Tx, now int64) (*Result, error) {
		record, err := loadSale(tx, accts.Sale)
		if err != nil {
			return nil, err
		}
		if record.Authority != inv.Signer {
			return nil, ErrUnauthorized
		}
		if amount == 0 {
			return nil, ErrInvalidParameters
		}
		if amount > record.EscrowBalance {
			return nil, fmt.Errorf("%w: escrow holds %d", ErrInsufficientBalance, record.EscrowBalance)
		}
		if record.TotalWithdrawn > math.MaxUint64-amount {
			return nil, ErrArithmeticOverflow
		}

		if err := token.CreditNative(tx, inv.Signer, amount); err != nil {
			return nil, tokenError(err)
		}
		record.EscrowBalance -= amount
		record.TotalWithdrawn += amount
		if err := putAccount(tx, accts.Sale, record); err != nil {
			return nil, err
		}

		e := newEvent(accts.Sale, record, record.TotalDeposited-record.TotalSold, now)
		e.Amount = amount
		return &Result{Event: e, Sale: record}, nil
	})
}

// EndSale closes a sale whose window has passed and returns the unsold
// inventory to the authority. The reclaimed amount leaves TotalDeposited so
// the vault keeps matching TotalDeposited - TotalSold.
func (c *Controller) EndSale(ctx context.Context, inv Invocation, accts EndSaleAccounts) (*Result, error) {
	declared := []domain.Pubkey{accts.Sale, accts.Vault, accts.Destination}

	return c.execute(ctx, domain.EventEnded, inv, declared, func(tx storage.Tx, now int64) (*Result, error) {
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
		if !record.Configured() || now <= record.EndTime {
			return nil, fmt.Errorf("%w: now %d, end %d", ErrSaleNotEnded, now, record.EndTime)
		}
		vault, err := loadVault(tx, record, accts.Sale, accts.Vault)
		if err != nil {
			return nil, err
		}
		dest, err := loadUserHolding(tx, accts.Destination, inv.Signer, record.TokenMint)
		if err != nil {
			return nil, err
		}

		remainder := vault.Amount
		if remainder != record.TotalDeposited-record.TotalSold {
			return nil, fmt.Errorf("vault balance %d does not match deposited %d - sold %d",
				remainder, record.TotalDeposited, record.TotalSold)
		}
		if dest.Amount > math.MaxUint64-remainder || record.TotalReclaimed > math.MaxUint64-remainder {
			return nil, ErrArithmeticOverflow
		}

		if remainder > 0 {
			if err := token.Transfer(tx, accts.Vault, accts.Destination, accts.Sale, remainder); err != nil {
				return nil, tokenError(err)
			}
		}
		vault.Amount = 0
		dest.Amount += remainder
		record.TotalDeposited -= remainder
		record.TotalReclaimed += remainder
		record.Closed = true
		if err := putAccount(tx, accts.Sale, record); err != nil {
			return nil, err
		}

		e := newEvent(accts.Sale, record, 0, now)
		e.Amount = remainder
		return &Result{Event: e, Sale: record, Vault: vault, Holding: dest}, nil
	})
}
