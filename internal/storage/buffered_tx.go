package storage

import (
	"bytes"
	"sort"

	"crowdsale-ledger/internal/domain"
)

// Write is a pending mutation recorded by a BufferedTx.
type Write struct {
	Addr    domain.Pubkey
	Data    []byte
	Created bool // address was empty in the snapshot
}

// BufferedTx is a Tx over a snapshot of the declared accounts. Writes are
// buffered in order until the backend applies them.
type BufferedTx struct {
	declared map[domain.Pubkey]struct{}
	current  map[domain.Pubkey][]byte
	order    []domain.Pubkey
	created  map[domain.Pubkey]bool
}

// NewBufferedTx creates a BufferedTx. snapshot holds the stored data of every
// declared address that is occupied; it is not modified.
func NewBufferedTx(declared []domain.Pubkey, snapshot map[domain.Pubkey][]byte) *BufferedTx {
	tx := &BufferedTx{
		declared: make(map[domain.Pubkey]struct{}, len(declared)),
		current:  make(map[domain.Pubkey][]byte, len(snapshot)),
		created:  make(map[domain.Pubkey]bool),
	}
	for _, addr := range declared {
		tx.declared[addr] = struct{}{}
	}
	for addr, data := range snapshot {
		tx.current[addr] = data
	}
	return tx
}

func (tx *BufferedTx) check(addr domain.Pubkey) error {
	if _, ok := tx.declared[addr]; !ok {
		return ErrUndeclaredAccount
	}
	return nil
}

// Get implements Tx.
func (tx *BufferedTx) Get(addr domain.Pubkey) ([]byte, error) {
	if err := tx.check(addr); err != nil {
		return nil, err
	}
	data, ok := tx.current[addr]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(data), nil
}

// Exists implements Tx.
func (tx *BufferedTx) Exists(addr domain.Pubkey) (bool, error) {
	if err := tx.check(addr); err != nil {
		return false, err
	}
	_, ok := tx.current[addr]
	return ok, nil
}

// Put implements Tx.
func (tx *BufferedTx) Put(addr domain.Pubkey, data []byte) error {
	if err := tx.check(addr); err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrInvalidInput
	}
	tx.write(addr, data)
	return nil
}

// Create implements Tx.
func (tx *BufferedTx) Create(addr domain.Pubkey, data []byte) error {
	if err := tx.check(addr); err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrInvalidInput
	}
	if _, ok := tx.current[addr]; ok {
		return ErrDuplicateKey
	}
	tx.created[addr] = true
	tx.write(addr, data)
	return nil
}

func (tx *BufferedTx) write(addr domain.Pubkey, data []byte) {
	if !tx.dirty(addr) {
		tx.order = append(tx.order, addr)
	}
	tx.current[addr] = bytes.Clone(data)
}

func (tx *BufferedTx) dirty(addr domain.Pubkey) bool {
	for _, a := range tx.order {
		if a == addr {
			return true
		}
	}
	return false
}

// Writes returns the buffered mutations in first-write order, one per address.
func (tx *BufferedTx) Writes() []Write {
	out := make([]Write, 0, len(tx.order))
	for _, addr := range tx.order {
		out = append(out, Write{Addr: addr, Data: tx.current[addr], Created: tx.created[addr]})
	}
	return out
}

var _ Tx = (*BufferedTx)(nil)

// SortedUnique returns addrs deduplicated and in ascending byte order.
// Backends acquire locks in this order so that overlapping units cannot
// deadlock.
func SortedUnique(addrs []domain.Pubkey) []domain.Pubkey {
	seen := make(map[domain.Pubkey]struct{}, len(addrs))
	out := make([]domain.Pubkey, 0, len(addrs))
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
