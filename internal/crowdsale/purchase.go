package crowdsale

import (
	"context"
	"errors"
	"fmt"
	"math"

	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/storage"
	"crowdsale-ledger/internal/token"
)

// Purchase sells tokens to the signer for contribution native base units.
//
// Checks run in a fixed order and the first failure is reported: declared
// accounts, sale window, contribution bounds, conversion, vault inventory,
// buyer balance. Only then are the mutations applied: the buyer's native
// payment moves into the sale escrow, the allocation moves from the vault
// to the destination holding, TotalSold grows and the buyer's ledger entry
// is created or updated. They commit together or not at all.
func (c *Controller) Purchase(ctx context.Context, inv Invocation, accts PurchaseAccounts, contribution uint64) (*Result, error) {
	declared := []domain.Pubkey{accts.Sale, accts.Vault, accts.BuyerEntry, accts.Destination}

	return c.execute(ctx, domain.EventPurchased, inv, declared, func(tx storage.Tx, now int64) (*Result, error) {
		buyer := inv.Signer

		record, err := loadSale(tx, accts.Sale)
		if err != nil {
			return nil, err
		}
		vault, err := loadVault(tx, record, accts.Sale, accts.Vault)
		if err != nil {
			return nil, err
		}
		entryAddr, entryBump := c.deriver.BuyerEntry(accts.Sale, buyer)
		if accts.BuyerEntry != entryAddr {
			return nil, fmt.Errorf("%w: buyer entry %s is not derived from sale %s and buyer %s", ErrInvalidAccount, accts.BuyerEntry, accts.Sale, buyer)
		}
		dest, err := loadUserHolding(tx, accts.Destination, buyer, record.TokenMint)
		if err != nil {
			return nil, err
		}

		if !record.Active(now) {
			return nil, fmt.Errorf("%w: now %d outside [%d, %d]", ErrSaleNotActive, now, record.StartTime, record.EndTime)
		}
		if record.Closed {
			return nil, ErrSaleClosed
		}

		if contribution == 0 || contribution < record.MinContribution || contribution > record.MaxContribution {
			return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrAmountOutOfBounds, contribution, record.MinContribution, record.MaxContribution)
		}

		allocation, err := Allocation(contribution, record.Price, record.TokenDecimals)
		if err != nil {
			return nil, err
		}

		if vault.Amount < allocation {
			return nil, fmt.Errorf("%w: vault holds %d, allocation needs %d", ErrInsufficientVaultInventory, vault.Amount, allocation)
		}

		balance, err := token.NativeBalance(tx, buyer)
		if err != nil {
			return nil, err
		}
		if balance < contribution {
			return nil, ErrInsufficientBalance
		}

		entry := &domain.BuyerLedgerEntry{Sale: accts.Sale, Buyer: buyer, Bump: entryBump}
		err = decodeAccount(tx, accts.BuyerEntry, entry)
		isNew := errors.Is(err, ErrAccountNotInitialized)
		if err != nil && !isNew {
			return nil, err
		}
		if entry.Sale != accts.Sale || entry.Buyer != buyer {
			return nil, fmt.Errorf("%w: buyer entry %s", ErrInvalidAccount, accts.BuyerEntry)
		}

		if record.EscrowBalance > math.MaxUint64-contribution ||
			record.TotalRaised > math.MaxUint64-contribution ||
			record.TotalSold > math.MaxUint64-allocation ||
			entry.CumulativeContribution > math.MaxUint64-contribution ||
			entry.CumulativeAllocation > math.MaxUint64-allocation ||
			dest.Amount > math.MaxUint64-allocation {
			return nil, ErrArithmeticOverflow
		}

		if err := token.DebitNative(tx, buyer, contribution); err != nil {
			return nil, tokenError(err)
		}
		record.EscrowBalance += contribution
		record.TotalRaised += contribution

		if err := token.Transfer(tx, accts.Vault, accts.Destination, accts.Sale, allocation); err != nil {
			return nil, tokenError(err)
		}
		vault.Amount -= allocation
		dest.Amount += allocation
		record.TotalSold += allocation

		entry.CumulativeContribution += contribution
		entry.CumulativeAllocation += allocation
		entry.PurchaseCount++

		if err := putAccount(tx, accts.Sale, record); err != nil {
			return nil, err
		}
		if isNew {
			err = createAccount(tx, accts.BuyerEntry, entry)
		} else {
			err = putAccount(tx, accts.BuyerEntry, entry)
		}
		if err != nil {
			return nil, err
		}

		e := newEvent(accts.Sale, record, vault.Amount, now)
		e.Amount = contribution
		e.Allocation = allocation
		return &Result{Event: e, Sale: record, Vault: vault, Entry: entry, Holding: dest}, nil
	})
}
