package domain

// NativeDecimals is the number of decimals of the native currency.
// It is used for display only; conversion math works in base units.
const NativeDecimals = 9

// Mint describes a token type.
type Mint struct {
	Authority Pubkey // may mint new supply
	Decimals  uint8
	Supply    uint64
}

// AccountKind implements codec.Account.
func (*Mint) AccountKind() string { return KindMint }

// TokenHolding is a balance of one mint owned by one party.
type TokenHolding struct {
	Mint   Pubkey
	Owner  Pubkey
	Amount uint64
}

// AccountKind implements codec.Account.
func (*TokenHolding) AccountKind() string { return KindHolding }

// VaultAccount is the program-owned holding that stores a sale's unsold
// inventory. Its owner is the sale address, so only the sale can move tokens
// out of it.
type VaultAccount = TokenHolding

// NativeAccount holds a party's native-currency balance. It lives at the
// party's own address.
type NativeAccount struct {
	Owner    Pubkey
	Lamports uint64
}

// AccountKind implements codec.Account.
func (*NativeAccount) AccountKind() string { return KindNative }

// Receipt marks an instruction signature as processed.
type Receipt struct {
	Signer      Pubkey
	Kind        string
	ProcessedAt int64 // unix seconds
}

// AccountKind implements codec.Account.
func (*Receipt) AccountKind() string { return KindReceipt }
