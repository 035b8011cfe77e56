package codec

import (
	"bytes"
	"errors"
	"testing"

	"crowdsale-ledger/internal/domain"
)

func key(b byte) domain.Pubkey {
	var pk domain.Pubkey
	pk[0] = b
	pk[31] = b
	return pk
}

func TestEncodeDecode_SaleRecord(t *testing.T) {
	in := &domain.SaleRecord{
		Authority:       key(1),
		TokenMint:       key(2),
		Vault:           key(3),
		TokenDecimals:   9,
		Bump:            254,
		VaultBump:       253,
		MinContribution: 200_000_000,
		MaxContribution: 5_000_000_000,
		StartTime:       -5,
		EndTime:         1_700_000_000,
		Price:           200_000_000,
		TotalDeposited:  70_000_000_000_000,
		TotalSold:       5_000_000_000,
		EscrowBalance:   1_000_000_000,
		TotalRaised:     1_000_000_000,
		Closed:          true,
	}

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	d := Discriminator(domain.KindSaleRecord)
	if !bytes.Equal(data[:DiscriminatorLength], d[:]) {
		t.Fatalf("missing discriminator prefix")
	}

	out := &domain.SaleRecord{}
	if err := Decode(data, out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if *out != *in {
		t.Errorf("Decode = %+v, want %+v", out, in)
	}
}

func TestEncode_Deterministic(t *testing.T) {
	entry := &domain.BuyerLedgerEntry{Sale: key(1), Buyer: key(2), CumulativeContribution: 10, CumulativeAllocation: 50, PurchaseCount: 1, Bump: 250}
	a, err := Encode(entry)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b, _ := Encode(entry)
	if !bytes.Equal(a, b) {
		t.Error("encoding is not deterministic")
	}
}

func TestDecode_WrongKind(t *testing.T) {
	data, err := Encode(&domain.TokenHolding{Mint: key(1), Owner: key(2), Amount: 7})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	err = Decode(data, &domain.SaleRecord{})
	if !errors.Is(err, ErrDiscriminatorMismatch) {
		t.Errorf("Decode error = %v, want ErrDiscriminatorMismatch", err)
	}
}

func TestDecode_ShortData(t *testing.T) {
	if err := Decode([]byte{1, 2, 3}, &domain.Mint{}); !errors.Is(err, ErrShortData) {
		t.Errorf("Decode error = %v, want ErrShortData", err)
	}
}

func TestDecodeAny(t *testing.T) {
	tests := []struct {
		name string
		acct Account
	}{
		{"mint", &domain.Mint{Authority: key(9), Decimals: 6, Supply: 1000}},
		{"native", &domain.NativeAccount{Owner: key(4), Lamports: 42}},
		{"receipt", &domain.Receipt{Signer: key(5), Kind: "purchase", ProcessedAt: 99}},
		{"holding", &domain.TokenHolding{Mint: key(1), Owner: key(2), Amount: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.acct)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := DecodeAny(data)
			if err != nil {
				t.Fatalf("DecodeAny: %v", err)
			}
			if got.AccountKind() != tt.acct.AccountKind() {
				t.Errorf("kind = %s, want %s", got.AccountKind(), tt.acct.AccountKind())
			}
		})
	}

	if _, err := KindOf(make([]byte, 16)); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("KindOf(zeros) error = %v, want ErrUnknownKind", err)
	}
}
