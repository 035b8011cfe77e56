// Package codec encodes ledger accounts as an 8-byte kind discriminator
// followed by the Borsh serialization of the record.
package codec

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"crowdsale-ledger/internal/domain"
)

// DiscriminatorLength is the size of the kind prefix.
const DiscriminatorLength = 8

var (
	// ErrDiscriminatorMismatch is returned when data holds a different kind.
	ErrDiscriminatorMismatch = errors.New("account discriminator mismatch")
	// ErrShortData is returned when data cannot hold a discriminator.
	ErrShortData = errors.New("account data too short")
	// ErrUnknownKind is returned by KindOf for unregistered discriminators.
	ErrUnknownKind = errors.New("unknown account kind")
)

// Account is a record that can be stored in the ledger.
type Account interface {
	AccountKind() string
}

// Discriminator returns the first 8 bytes of sha256("account:" + kind).
func Discriminator(kind string) [DiscriminatorLength]byte {
	var d [DiscriminatorLength]byte
	sum := sha256.Sum256([]byte("account:" + kind))
	copy(d[:], sum[:DiscriminatorLength])
	return d
}

var known = func() map[[DiscriminatorLength]byte]string {
	m := make(map[[DiscriminatorLength]byte]string)
	for _, kind := range []string{
		domain.KindSaleRecord,
		domain.KindBuyerEntry,
		domain.KindHolding,
		domain.KindMint,
		domain.KindNative,
		domain.KindReceipt,
	} {
		m[Discriminator(kind)] = kind
	}
	return m
}()

// Encode serializes acct with its discriminator.
func Encode(acct Account) ([]byte, error) {
	body, err := bin.MarshalBorsh(acct)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", acct.AccountKind(), err)
	}
	d := Discriminator(acct.AccountKind())
	out := make([]byte, 0, DiscriminatorLength+len(body))
	out = append(out, d[:]...)
	return append(out, body...), nil
}

// Decode deserializes data into acct after checking the discriminator.
func Decode(data []byte, acct Account) error {
	if len(data) < DiscriminatorLength {
		return ErrShortData
	}
	d := Discriminator(acct.AccountKind())
	if !bytes.Equal(data[:DiscriminatorLength], d[:]) {
		return fmt.Errorf("decode %s: %w", acct.AccountKind(), ErrDiscriminatorMismatch)
	}
	if err := bin.UnmarshalBorsh(acct, data[DiscriminatorLength:]); err != nil {
		return fmt.Errorf("decode %s: %w", acct.AccountKind(), err)
	}
	return nil
}

// KindOf returns the account kind stored in data.
func KindOf(data []byte) (string, error) {
	if len(data) < DiscriminatorLength {
		return "", ErrShortData
	}
	var d [DiscriminatorLength]byte
	copy(d[:], data)
	kind, ok := known[d]
	if !ok {
		return "", ErrUnknownKind
	}
	return kind, nil
}

// DecodeAny decodes data into a freshly allocated record of the stored kind.
func DecodeAny(data []byte) (Account, error) {
	kind, err := KindOf(data)
	if err != nil {
		return nil, err
	}
	var acct Account
	switch kind {
	case domain.KindSaleRecord:
		acct = &domain.SaleRecord{}
	case domain.KindBuyerEntry:
		acct = &domain.BuyerLedgerEntry{}
	case domain.KindHolding:
		acct = &domain.TokenHolding{}
	case domain.KindMint:
		acct = &domain.Mint{}
	case domain.KindNative:
		acct = &domain.NativeAccount{}
	case domain.KindReceipt:
		acct = &domain.Receipt{}
	default:
		return nil, ErrUnknownKind
	}
	if err := Decode(data, acct); err != nil {
		return nil, err
	}
	return acct, nil
}
