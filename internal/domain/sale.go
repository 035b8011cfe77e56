package domain

// Account kinds. The kind name selects the 8-byte discriminator that prefixes
// every stored account.
const (
	KindSaleRecord = "SaleRecord"
	KindBuyerEntry = "UserAccountInfo"
	KindHolding    = "TokenHolding"
	KindMint       = "Mint"
	KindNative     = "NativeAccount"
	KindReceipt    = "Receipt"
)

// SaleRecord is the persistent configuration and running totals of one sale.
// Exactly one exists per authority.
type SaleRecord struct {
	Authority       Pubkey // sole configurer and funder
	TokenMint       Pubkey // mint of the token being sold
	Vault           Pubkey // program-owned holding of sale inventory
	TokenDecimals   uint8  // decimals of TokenMint, captured at initialize
	Bump            uint8  // derivation nonce of the sale address
	VaultBump       uint8  // derivation nonce of the vault address
	MinContribution uint64 // per-purchase lower bound, native base units
	MaxContribution uint64 // per-purchase upper bound, native base units
	StartTime       int64  // unix seconds, inclusive
	EndTime         int64  // unix seconds, inclusive
	Price           uint64 // native base units per whole token
	TotalDeposited  uint64 // token base units moved into the vault, net of reclaims
	TotalSold       uint64 // token base units moved out of the vault to buyers
	TotalReclaimed  uint64 // unsold inventory returned to the authority at end
	TotalRaised     uint64 // native base units ever contributed
	EscrowBalance   uint64 // native base units held for the authority
	TotalWithdrawn  uint64 // native base units paid out to the authority
	Closed          bool   // set by end-of-sale settlement
}

// AccountKind implements codec.Account.
func (*SaleRecord) AccountKind() string { return KindSaleRecord }

// Configured reports whether configure has run at least once.
func (s *SaleRecord) Configured() bool {
	return s.Price > 0
}

// Active reports whether now lies within [StartTime, EndTime].
func (s *SaleRecord) Active(now int64) bool {
	return s.Configured() && now >= s.StartTime && now <= s.EndTime
}

// BuyerLedgerEntry is the per-(sale, buyer) running totals of purchases.
type BuyerLedgerEntry struct {
	Sale                   Pubkey
	Buyer                  Pubkey
	CumulativeContribution uint64 // native base units
	CumulativeAllocation   uint64 // token base units
	PurchaseCount          uint64
	Bump                   uint8
}

// AccountKind implements codec.Account.
func (*BuyerLedgerEntry) AccountKind() string { return KindBuyerEntry }
