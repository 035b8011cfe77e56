package instruction

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"crowdsale-ledger/internal/crowdsale"
	"crowdsale-ledger/internal/domain"
)

// ConfigureParams is the wire form of configure's parameters.
type ConfigureParams struct {
	MinContribution uint64
	MaxContribution uint64
	StartTime       int64
	EndTime         int64
	Price           uint64
}

// AmountParams carries the single amount of fund, purchase and withdraw.
type AmountParams struct {
	Amount uint64
}

// Empty is the parameter set of initialize and end_sale.
type Empty struct{}

// EncodeData prefixes the Borsh encoding of params with the kind's
// discriminator.
func EncodeData(k Kind, params any) ([]byte, error) {
	d := DataDiscriminator(k)
	if _, ok := params.(Empty); ok {
		return d[:], nil
	}
	body, err := bin.MarshalBorsh(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", k, err)
	}
	return append(d[:], body...), nil
}

// DecodeData checks the discriminator of data and decodes the rest into out.
// out may be nil for kinds without parameters.
func DecodeData(k Kind, data []byte, out any) error {
	d := DataDiscriminator(k)
	if len(data) < len(d) || !bytes.Equal(data[:len(d)], d[:]) {
		return fmt.Errorf("%w: discriminator does not match %s", ErrMalformedData, k)
	}
	if out == nil {
		if len(data) != len(d) {
			return fmt.Errorf("%w: %s takes no parameters", ErrMalformedData, k)
		}
		return nil
	}
	body := data[len(d):]
	if err := bin.UnmarshalBorsh(out, body); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	consumed, err := bin.MarshalBorsh(out)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	if len(consumed) != len(body) {
		return fmt.Errorf("%w: %d trailing bytes after %s parameters", ErrMalformedData, len(body)-len(consumed), k)
	}
	return nil
}

// Builders. Each fills Kind, Accounts and Data; the caller signs the result.

// NewInitialize builds an initialize instruction.
func NewInitialize(program, signer domain.Pubkey, nonce uint64, a crowdsale.InitializeAccounts) Instruction {
	return build(program, signer, nonce, KindInitialize, Empty{}, a.Sale, a.Vault, a.Mint)
}

// NewConfigure builds a configure instruction.
func NewConfigure(program, signer domain.Pubkey, nonce uint64, a crowdsale.ConfigureAccounts, p crowdsale.ConfigureParams) Instruction {
	return build(program, signer, nonce, KindConfigure, &ConfigureParams{
		MinContribution: p.MinContribution,
		MaxContribution: p.MaxContribution,
		StartTime:       p.StartTime,
		EndTime:         p.EndTime,
		Price:           p.Price,
	}, a.Sale)
}

// NewFund builds a fund instruction.
func NewFund(program, signer domain.Pubkey, nonce uint64, a crowdsale.FundAccounts, amount uint64) Instruction {
	return build(program, signer, nonce, KindFund, &AmountParams{Amount: amount}, a.Sale, a.Vault, a.Source)
}

// NewPurchase builds a purchase instruction.
func NewPurchase(program, signer domain.Pubkey, nonce uint64, a crowdsale.PurchaseAccounts, contribution uint64) Instruction {
	return build(program, signer, nonce, KindPurchase, &AmountParams{Amount: contribution}, a.Sale, a.Vault, a.BuyerEntry, a.Destination)
}

// NewWithdraw builds a withdraw instruction.
func NewWithdraw(program, signer domain.Pubkey, nonce uint64, a crowdsale.WithdrawAccounts, amount uint64) Instruction {
	return build(program, signer, nonce, KindWithdraw, &AmountParams{Amount: amount}, a.Sale)
}

// NewEndSale builds an end_sale instruction.
func NewEndSale(program, signer domain.Pubkey, nonce uint64, a crowdsale.EndSaleAccounts) Instruction {
	return build(program, signer, nonce, KindEndSale, Empty{}, a.Sale, a.Vault, a.Destination)
}

func build(program, signer domain.Pubkey, nonce uint64, k Kind, params any, accounts ...domain.Pubkey) Instruction {
	data, err := EncodeData(k, params)
	if err != nil {
		// Parameter structs are fixed-size integers and always encode.
		panic(err)
	}
	return Instruction{
		Program:  program,
		Kind:     k,
		Signer:   signer,
		Nonce:    nonce,
		Accounts: accounts,
		Data:     data,
	}
}
