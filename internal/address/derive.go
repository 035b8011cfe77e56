// Package address derives deterministic account addresses from a namespace
// tag and the identities that own the account. The derived address is a
// SHA256 hash forced off the ed25519 curve, so no private key can sign for it.
package address

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"crowdsale-ledger/internal/domain"
)

const (
	// MaxSeeds is the maximum number of seeds, including the bump byte.
	MaxSeeds = 16
	// MaxSeedLength is the maximum length of a single seed in bytes.
	MaxSeedLength = 32

	pdaMarker = "ProgramDerivedAddress"
)

// Namespace tags.
const (
	SeedSale       = "crowdsale"
	SeedVault      = "crowdsale token vault"
	SeedBuyerEntry = "user account info"
	SeedHolding    = "token holding"
	SeedReceipt    = "receipt"
)

var (
	// ErrMaxSeedLength is returned when a seed is longer than MaxSeedLength.
	ErrMaxSeedLength = errors.New("seed exceeds maximum length")
	// ErrTooManySeeds is returned when more than MaxSeeds seeds are given.
	ErrTooManySeeds = errors.New("too many seeds")
	// ErrOnCurve is returned when a candidate address is a valid curve point.
	ErrOnCurve = errors.New("address lies on the ed25519 curve")
	// ErrNoViableBump is returned when no bump produces an off-curve address.
	ErrNoViableBump = errors.New("unable to find a viable bump")
)

// Create computes the address for seeds (bump already appended) under
// programID. It fails when the result lies on the curve.
func Create(programID domain.Pubkey, seeds ...[]byte) (domain.Pubkey, error) {
	var out domain.Pubkey
	if len(seeds) > MaxSeeds {
		return out, ErrTooManySeeds
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return out, ErrMaxSeedLength
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))
	copy(out[:], h.Sum(nil))

	if IsOnCurve(out[:]) {
		return domain.Pubkey{}, ErrOnCurve
	}
	return out, nil
}

// Derive searches bumps from 255 down to 1 and returns the first off-curve
// address together with its bump.
func Derive(programID domain.Pubkey, seeds ...[]byte) (domain.Pubkey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := uint8(255); bump > 0; bump-- {
		withBump[len(seeds)] = []byte{bump}
		addr, err := Create(programID, withBump...)
		if err == nil {
			return addr, bump, nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return domain.Pubkey{}, 0, err
		}
	}
	return domain.Pubkey{}, 0, ErrNoViableBump
}

// IsOnCurve reports whether b decodes to a valid ed25519 point.
func IsOnCurve(b []byte) bool {
	if len(b) != domain.PubkeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// Deriver binds address derivation to one program ID.
type Deriver struct {
	programID domain.Pubkey
}

// NewDeriver creates a Deriver for programID.
func NewDeriver(programID domain.Pubkey) *Deriver {
	return &Deriver{programID: programID}
}

// ProgramID returns the program ID the deriver is bound to.
func (d *Deriver) ProgramID() domain.Pubkey {
	return d.programID
}

// Sale returns the sale address of an authority.
func (d *Deriver) Sale(authority domain.Pubkey) (domain.Pubkey, uint8) {
	return d.must(SeedSale, authority[:])
}

// Vault returns the vault address of a sale.
func (d *Deriver) Vault(sale domain.Pubkey) (domain.Pubkey, uint8) {
	return d.must(SeedVault, sale[:])
}

// BuyerEntry returns the ledger entry address of buyer within sale.
func (d *Deriver) BuyerEntry(sale, buyer domain.Pubkey) (domain.Pubkey, uint8) {
	return d.must(SeedBuyerEntry, sale[:], buyer[:])
}

// Holding returns the canonical token holding of owner for mint.
func (d *Deriver) Holding(owner, mint domain.Pubkey) domain.Pubkey {
	addr, _ := d.must(SeedHolding, owner[:], mint[:])
	return addr
}

// Receipt returns the replay receipt address of an instruction signature.
func (d *Deriver) Receipt(signature []byte) domain.Pubkey {
	sum := sha256.Sum256(signature)
	addr, _ := d.must(SeedReceipt, sum[:])
	return addr
}

// SaleAddresses is the full set of derived addresses for one authority.
type SaleAddresses struct {
	Sale      domain.Pubkey `json:"sale"`
	SaleBump  uint8         `json:"sale_bump"`
	Vault     domain.Pubkey `json:"vault"`
	VaultBump uint8         `json:"vault_bump"`
}

// ForAuthority derives the sale and vault addresses of authority.
func (d *Deriver) ForAuthority(authority domain.Pubkey) SaleAddresses {
	sale, saleBump := d.Sale(authority)
	vault, vaultBump := d.Vault(sale)
	return SaleAddresses{Sale: sale, SaleBump: saleBump, Vault: vault, VaultBump: vaultBump}
}

// must derives with fixed-size seeds, which cannot exceed the limits.
func (d *Deriver) must(namespace string, ids ...[]byte) (domain.Pubkey, uint8) {
	seeds := make([][]byte, 0, len(ids)+1)
	seeds = append(seeds, []byte(namespace))
	seeds = append(seeds, ids...)
	addr, bump, err := Derive(d.programID, seeds...)
	if err != nil {
		panic(fmt.Sprintf("derive %q: %v", namespace, err))
	}
	return addr, bump
}

// DefaultProgramID is the program ID used when none is configured.
var DefaultProgramID = domain.MustPubkey("DSbxRLwyjrjiQPoK3fb8rMs7tKQsTqnB1xyssqGdV5Z4")
