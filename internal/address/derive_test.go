package address

import (
	"bytes"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdsale-ledger/internal/domain"
)

func testKey(b byte) domain.Pubkey {
	var pk domain.Pubkey
	for i := range pk {
		pk[i] = b + byte(i)
	}
	return pk
}

func TestDerive_MatchesSolanaFindProgramAddress(t *testing.T) {
	programID := DefaultProgramID
	authority := testKey(7)

	cases := []struct {
		name  string
		seeds [][]byte
	}{
		{"sale", [][]byte{[]byte(SeedSale), authority[:]}},
		{"vault", [][]byte{[]byte(SeedVault), authority[:]}},
		{"buyer entry", [][]byte{[]byte(SeedBuyerEntry), authority[:], testKey(99).Bytes()}},
		{"namespace only", [][]byte{[]byte("crowdsale")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, gotBump, err := Derive(programID, tc.seeds...)
			require.NoError(t, err)

			want, wantBump, err := solana.FindProgramAddress(tc.seeds, solana.PublicKeyFromBytes(programID[:]))
			require.NoError(t, err)

			assert.Equal(t, want.String(), got.String())
			assert.Equal(t, wantBump, gotBump)
			assert.False(t, IsOnCurve(got[:]))
		})
	}
}

func TestDerive_Deterministic(t *testing.T) {
	d := NewDeriver(DefaultProgramID)
	authority := testKey(1)

	a1, b1 := d.Sale(authority)
	a2, b2 := d.Sale(authority)
	if a1 != a2 || b1 != b2 {
		t.Fatalf("Sale() not deterministic: %s/%d vs %s/%d", a1, b1, a2, b2)
	}

	other, _ := d.Sale(testKey(2))
	if other == a1 {
		t.Fatal("different authorities derived the same sale address")
	}
}

func TestDeriver_BuyerEntryScopedBySale(t *testing.T) {
	d := NewDeriver(DefaultProgramID)
	buyer := testKey(50)
	saleA, _ := d.Sale(testKey(1))
	saleB, _ := d.Sale(testKey(2))

	entryA, _ := d.BuyerEntry(saleA, buyer)
	entryB, _ := d.BuyerEntry(saleB, buyer)
	if entryA == entryB {
		t.Fatal("buyer entry must differ across sales")
	}
}

func TestDeriver_ForAuthority(t *testing.T) {
	d := NewDeriver(DefaultProgramID)
	authority := testKey(3)

	addrs := d.ForAuthority(authority)
	sale, saleBump := d.Sale(authority)
	vault, vaultBump := d.Vault(sale)

	assert.Equal(t, sale, addrs.Sale)
	assert.Equal(t, saleBump, addrs.SaleBump)
	assert.Equal(t, vault, addrs.Vault)
	assert.Equal(t, vaultBump, addrs.VaultBump)
	assert.NotEqual(t, addrs.Sale, addrs.Vault)
}

func TestCreate_Limits(t *testing.T) {
	long := bytes.Repeat([]byte{1}, MaxSeedLength+1)
	_, err := Create(DefaultProgramID, long)
	assert.ErrorIs(t, err, ErrMaxSeedLength)

	many := make([][]byte, MaxSeeds+1)
	for i := range many {
		many[i] = []byte{byte(i)}
	}
	_, err = Create(DefaultProgramID, many...)
	assert.ErrorIs(t, err, ErrTooManySeeds)

	_, _, err = Derive(DefaultProgramID, many[:MaxSeeds]...)
	assert.ErrorIs(t, err, ErrTooManySeeds)
}

func TestReceipt_DistinctPerSignature(t *testing.T) {
	d := NewDeriver(DefaultProgramID)
	r1 := d.Receipt([]byte("sig-1"))
	r2 := d.Receipt([]byte("sig-2"))
	if r1 == r2 {
		t.Fatal("receipts collided")
	}
	if r1 != d.Receipt([]byte("sig-1")) {
		t.Fatal("receipt not deterministic")
	}
}
