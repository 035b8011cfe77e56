// Package instruction defines the signed request envelope accepted by the
// ledger node. An instruction names its kind, its signer, the accounts it
// touches in a fixed per-kind order, and Borsh-encoded parameters. The
// signer signs the canonical message bytes with ed25519.
package instruction

import (
	"crypto/sha256"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"crowdsale-ledger/internal/domain"
)

// Kind names the sale operation an instruction invokes.
type Kind string

const (
	KindInitialize Kind = "initialize"
	KindConfigure  Kind = "configure"
	KindFund       Kind = "fund"
	KindPurchase   Kind = "purchase"
	KindWithdraw   Kind = "withdraw"
	KindEndSale    Kind = "end_sale"
)

// accountCounts is the number of accounts each kind names.
var accountCounts = map[Kind]int{
	KindInitialize: 3, // sale, vault, mint
	KindConfigure:  1, // sale
	KindFund:       3, // sale, vault, source
	KindPurchase:   4, // sale, vault, buyer entry, destination
	KindWithdraw:   1, // sale
	KindEndSale:    3, // sale, vault, destination
}

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	_, ok := accountCounts[k]
	return ok
}

var (
	// ErrUnknownKind is returned for an instruction of an unknown kind.
	ErrUnknownKind = errors.New("unknown instruction kind")
	// ErrAccountCount is returned when an instruction names the wrong number
	// of accounts for its kind.
	ErrAccountCount = errors.New("wrong number of accounts")
	// ErrBadSignature is returned when the signature does not verify.
	ErrBadSignature = errors.New("signature verification failed")
	// ErrSignerMismatch is returned when signing with a key that is not the
	// instruction's signer.
	ErrSignerMismatch = errors.New("private key does not match signer")
	// ErrMalformedData is returned when the parameters cannot be decoded.
	ErrMalformedData = errors.New("malformed instruction data")
)

// Instruction is an unsigned request.
type Instruction struct {
	Program  domain.Pubkey   `json:"program"`
	Kind     Kind            `json:"kind"`
	Signer   domain.Pubkey   `json:"signer"`
	Nonce    uint64          `json:"nonce"`
	Accounts []domain.Pubkey `json:"accounts"`
	Data     []byte          `json:"data"`
}

// message is the canonical Borsh layout that gets signed.
type message struct {
	Program  [32]byte
	Kind     string
	Signer   [32]byte
	Nonce    uint64
	Accounts [][32]byte
	Data     []byte
}

// Message returns the canonical bytes covered by the signature.
func (ins *Instruction) Message() ([]byte, error) {
	m := message{
		Program:  ins.Program,
		Kind:     string(ins.Kind),
		Signer:   ins.Signer,
		Nonce:    ins.Nonce,
		Accounts: make([][32]byte, len(ins.Accounts)),
		Data:     ins.Data,
	}
	for i, a := range ins.Accounts {
		m.Accounts[i] = a
	}
	out, err := bin.MarshalBorsh(&m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return out, nil
}

// Validate checks the kind and account count.
func (ins *Instruction) Validate() error {
	want, ok := accountCounts[ins.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, ins.Kind)
	}
	if len(ins.Accounts) != want {
		return fmt.Errorf("%w: %s takes %d, got %d", ErrAccountCount, ins.Kind, want, len(ins.Accounts))
	}
	return nil
}

// Signed is an instruction with the signer's ed25519 signature.
type Signed struct {
	Instruction Instruction      `json:"instruction"`
	Signature   solana.Signature `json:"signature"`
}

// Sign signs ins with key, which must belong to ins.Signer.
func Sign(ins Instruction, key solana.PrivateKey) (*Signed, error) {
	pub := key.PublicKey()
	if domain.Pubkey(pub) != ins.Signer {
		return nil, fmt.Errorf("%w: key %s, signer %s", ErrSignerMismatch, pub, ins.Signer)
	}
	msg, err := ins.Message()
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(msg)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return &Signed{Instruction: ins, Signature: sig}, nil
}

// Verify checks the signature against the instruction's signer.
func (s *Signed) Verify() error {
	msg, err := s.Instruction.Message()
	if err != nil {
		return err
	}
	if !s.Signature.Verify(solana.PublicKeyFromBytes(s.Instruction.Signer[:]), msg) {
		return ErrBadSignature
	}
	return nil
}

// DataDiscriminator returns the first 8 bytes of sha256("global:" + kind),
// the prefix of every instruction's data.
func DataDiscriminator(k Kind) [8]byte {
	var d [8]byte
	sum := sha256.Sum256([]byte("global:" + string(k)))
	copy(d[:], sum[:8])
	return d
}
