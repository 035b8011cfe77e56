package crowdsale

import (
	"context"

	"crowdsale-ledger/internal/codec"
	"crowdsale-ledger/internal/domain"
)

// Sale returns the sale record at addr.
func (c *Controller) Sale(ctx context.Context, addr domain.Pubkey) (*domain.SaleRecord, error) {
	s := &domain.SaleRecord{}
	if err := c.read(ctx, addr, s); err != nil {
		return nil, err
	}
	return s, nil
}

// SaleOf returns the address and record of the sale created by authority.
func (c *Controller) SaleOf(ctx context.Context, authority domain.Pubkey) (domain.Pubkey, *domain.SaleRecord, error) {
	addr, _ := c.deriver.Sale(authority)
	s, err := c.Sale(ctx, addr)
	return addr, s, err
}

// Vault returns the vault holding at addr.
func (c *Controller) Vault(ctx context.Context, addr domain.Pubkey) (*domain.VaultAccount, error) {
	v := &domain.VaultAccount{}
	if err := c.read(ctx, addr, v); err != nil {
		return nil, err
	}
	return v, nil
}

// BuyerEntry returns the ledger entry of buyer in sale.
func (c *Controller) BuyerEntry(ctx context.Context, sale, buyer domain.Pubkey) (*domain.BuyerLedgerEntry, error) {
	addr, _ := c.deriver.BuyerEntry(sale, buyer)
	e := &domain.BuyerLedgerEntry{}
	if err := c.read(ctx, addr, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Holding returns the token holding at addr.
func (c *Controller) Holding(ctx context.Context, addr domain.Pubkey) (*domain.TokenHolding, error) {
	h := &domain.TokenHolding{}
	if err := c.read(ctx, addr, h); err != nil {
		return nil, err
	}
	return h, nil
}

// AccountData returns the raw encoded account at addr.
func (c *Controller) AccountData(ctx context.Context, addr domain.Pubkey) ([]byte, error) {
	return c.store.Get(ctx, addr)
}

func (c *Controller) read(ctx context.Context, addr domain.Pubkey, acct codec.Account) error {
	data, err := c.store.Get(ctx, addr)
	if err != nil {
		return err
	}
	return codec.Decode(data, acct)
}
