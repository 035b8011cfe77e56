package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/mr-tron/base58"

	"crowdsale-ledger/internal/codec"
	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/storage"
)

// DefaultJournalLimit caps getJournal when no limit is given.
const DefaultJournalLimit = 100

// method adapts a typed handler to the raw params form.
func method[P any](fn func(context.Context, *P) (any, error)) methodFunc {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			return nil, invalidParams("missing params")
		}
		var p P
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return nil, invalidParams("decode params: %v", err)
		}
		return fn(ctx, &p)
	}
}

func (s *Server) registerMethods() map[string]methodFunc {
	m := map[string]methodFunc{
		MethodSendInstruction: method(s.sendInstruction),
		MethodGetSale:         method(s.getSale),
		MethodGetVault:        method(s.getVault),
		MethodGetBuyerEntry:   method(s.getBuyerEntry),
		MethodGetTokenHolding: method(s.getTokenHolding),
		MethodGetBalance:      method(s.getBalance),
		MethodGetAccountInfo:  method(s.getAccountInfo),
		MethodDeriveAddresses: method(s.deriveAddresses),
		MethodGetJournal:      method(s.getJournal),
	}
	if s.cfg.DevFaucet {
		m[MethodRequestAirdrop] = method(s.requestAirdrop)
		m[MethodCreateMint] = method(s.createMint)
		m[MethodCreateHolding] = method(s.createHolding)
		m[MethodMintTo] = method(s.mintTo)
	}
	return m
}

func (s *Server) sendInstruction(ctx context.Context, p *SendInstructionParams) (any, error) {
	res, err := s.cfg.Processor.Process(ctx, p)
	if err != nil {
		return nil, err
	}
	return &SendInstructionResult{
		Signature: base58.Encode(p.Signature[:]),
		Event:     res.Event,
	}, nil
}

func (s *Server) getSale(ctx context.Context, p *GetSaleParams) (any, error) {
	ctl := s.cfg.Controller
	switch {
	case p.Address != nil && p.Authority == nil:
		rec, err := ctl.Sale(ctx, *p.Address)
		if err != nil {
			return nil, err
		}
		return NewSaleInfo(*p.Address, rec), nil
	case p.Authority != nil && p.Address == nil:
		addr, rec, err := ctl.SaleOf(ctx, *p.Authority)
		if err != nil {
			return nil, err
		}
		return NewSaleInfo(addr, rec), nil
	}
	return nil, invalidParams("exactly one of address or authority is required")
}

func (s *Server) getVault(ctx context.Context, p *AddressParams) (any, error) {
	v, err := s.cfg.Controller.Vault(ctx, p.Address)
	if err != nil {
		return nil, err
	}
	return &HoldingInfo{Address: p.Address, Mint: v.Mint, Owner: v.Owner, Amount: v.Amount}, nil
}

func (s *Server) getTokenHolding(ctx context.Context, p *AddressParams) (any, error) {
	h, err := s.cfg.Controller.Holding(ctx, p.Address)
	if err != nil {
		return nil, err
	}
	return &HoldingInfo{Address: p.Address, Mint: h.Mint, Owner: h.Owner, Amount: h.Amount}, nil
}

func (s *Server) getBuyerEntry(ctx context.Context, p *GetBuyerEntryParams) (any, error) {
	e, err := s.cfg.Controller.BuyerEntry(ctx, p.Sale, p.Buyer)
	if err != nil {
		return nil, err
	}
	addr, _ := s.cfg.Controller.Deriver().BuyerEntry(p.Sale, p.Buyer)
	return &BuyerEntryInfo{
		Address:                addr,
		Sale:                   e.Sale,
		Buyer:                  e.Buyer,
		CumulativeContribution: e.CumulativeContribution,
		CumulativeAllocation:   e.CumulativeAllocation,
		PurchaseCount:          e.PurchaseCount,
	}, nil
}

func (s *Server) getBalance(ctx context.Context, p *GetBalanceParams) (any, error) {
	lamports, err := s.cfg.Bank.Balance(ctx, p.Owner)
	if err != nil {
		return nil, err
	}
	return &BalanceResult{Lamports: lamports}, nil
}

// getAccountInfo returns null for an empty address.
func (s *Server) getAccountInfo(ctx context.Context, p *AddressParams) (any, error) {
	data, err := s.cfg.Controller.AccountData(ctx, p.Address)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	kind, err := codec.KindOf(data)
	if err != nil {
		kind = "unknown"
	}
	return &AccountInfo{Address: p.Address, Kind: kind, Data: data}, nil
}

func (s *Server) deriveAddresses(_ context.Context, p *DeriveAddressesParams) (any, error) {
	d := s.cfg.Controller.Deriver()
	a := d.ForAuthority(p.Authority)
	out := &DerivedAddresses{
		Program:   d.ProgramID(),
		Sale:      a.Sale,
		SaleBump:  a.SaleBump,
		Vault:     a.Vault,
		VaultBump: a.VaultBump,
	}
	if p.Buyer != nil {
		entry, _ := d.BuyerEntry(a.Sale, *p.Buyer)
		out.BuyerEntry = &entry
		if p.Mint != nil {
			h := d.Holding(*p.Buyer, *p.Mint)
			out.BuyerHolding = &h
		}
	}
	if p.Mint != nil {
		h := d.Holding(p.Authority, *p.Mint)
		out.AuthorityHolding = &h
	}
	return out, nil
}

func (s *Server) getJournal(ctx context.Context, p *GetJournalParams) (any, error) {
	if s.cfg.Journal == nil {
		return []*domain.Event{}, nil
	}
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultJournalLimit
	}
	evts, err := s.cfg.Journal.GetBySale(ctx, p.Sale, limit)
	if err != nil {
		return nil, err
	}
	if evts == nil {
		evts = []*domain.Event{}
	}
	return evts, nil
}

func (s *Server) requestAirdrop(ctx context.Context, p *RequestAirdropParams) (any, error) {
	if p.Lamports == 0 {
		return nil, invalidParams("lamports must be positive")
	}
	balance, err := s.cfg.Bank.Airdrop(ctx, p.Owner, p.Lamports)
	if err != nil {
		return nil, err
	}
	return &BalanceResult{Lamports: balance}, nil
}

func (s *Server) createMint(ctx context.Context, p *CreateMintParams) (any, error) {
	if err := s.cfg.Bank.CreateMint(ctx, p.Address, p.Authority, p.Decimals); err != nil {
		return nil, err
	}
	return &AddressParams{Address: p.Address}, nil
}

func (s *Server) createHolding(ctx context.Context, p *CreateHoldingParams) (any, error) {
	addr, err := s.cfg.Bank.CreateHolding(ctx, p.Owner, p.Mint)
	if err != nil {
		return nil, err
	}
	return &AddressParams{Address: addr}, nil
}

func (s *Server) mintTo(ctx context.Context, p *MintToParams) (any, error) {
	if err := s.cfg.Bank.MintTo(ctx, p.Mint, p.Destination, p.Authority, p.Amount); err != nil {
		return nil, err
	}
	h, err := s.cfg.Bank.Holding(ctx, p.Destination)
	if err != nil {
		return nil, err
	}
	return &HoldingInfo{Address: p.Destination, Mint: h.Mint, Owner: h.Owner, Amount: h.Amount}, nil
}
