package rpc

import (
	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/instruction"
)

// Method names.
const (
	MethodSendInstruction = "sendInstruction"
	MethodGetSale         = "getSale"
	MethodGetVault        = "getVault"
	MethodGetBuyerEntry   = "getBuyerEntry"
	MethodGetTokenHolding = "getTokenHolding"
	MethodGetBalance      = "getBalance"
	MethodGetAccountInfo  = "getAccountInfo"
	MethodDeriveAddresses = "deriveAddresses"
	MethodGetJournal      = "getJournal"

	// Dev faucet methods, enabled by DEV_FAUCET.
	MethodRequestAirdrop = "requestAirdrop"
	MethodCreateMint     = "createMint"
	MethodCreateHolding  = "createHolding"
	MethodMintTo         = "mintTo"
)

// SendInstructionParams carries one signed instruction.
type SendInstructionParams = instruction.Signed

// SendInstructionResult is the outcome of a committed instruction.
type SendInstructionResult struct {
	Signature string        `json:"signature"`
	Event     *domain.Event `json:"event"`
}

// AddressParams selects one account.
type AddressParams struct {
	Address domain.Pubkey `json:"address"`
}

// GetSaleParams selects a sale by address or by authority.
type GetSaleParams struct {
	Address   *domain.Pubkey `json:"address,omitempty"`
	Authority *domain.Pubkey `json:"authority,omitempty"`
}

// SaleInfo is the JSON view of a SaleRecord.
type SaleInfo struct {
	Address         domain.Pubkey `json:"address"`
	Authority       domain.Pubkey `json:"authority"`
	TokenMint       domain.Pubkey `json:"token_mint"`
	Vault           domain.Pubkey `json:"vault"`
	TokenDecimals   uint8         `json:"token_decimals"`
	Bump            uint8         `json:"bump"`
	VaultBump       uint8         `json:"vault_bump"`
	MinContribution uint64        `json:"min_contribution"`
	MaxContribution uint64        `json:"max_contribution"`
	StartTime       int64         `json:"start_time"`
	EndTime         int64         `json:"end_time"`
	Price           uint64        `json:"price"`
	TotalDeposited  uint64        `json:"total_deposited"`
	TotalSold       uint64        `json:"total_sold"`
	TotalReclaimed  uint64        `json:"total_reclaimed"`
	TotalRaised     uint64        `json:"total_raised"`
	EscrowBalance   uint64        `json:"escrow_balance"`
	TotalWithdrawn  uint64        `json:"total_withdrawn"`
	Closed          bool          `json:"closed"`
}

// NewSaleInfo builds the view of s stored at addr.
func NewSaleInfo(addr domain.Pubkey, s *domain.SaleRecord) *SaleInfo {
	return &SaleInfo{
		Address:         addr,
		Authority:       s.Authority,
		TokenMint:       s.TokenMint,
		Vault:           s.Vault,
		TokenDecimals:   s.TokenDecimals,
		Bump:            s.Bump,
		VaultBump:       s.VaultBump,
		MinContribution: s.MinContribution,
		MaxContribution: s.MaxContribution,
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		Price:           s.Price,
		TotalDeposited:  s.TotalDeposited,
		TotalSold:       s.TotalSold,
		TotalReclaimed:  s.TotalReclaimed,
		TotalRaised:     s.TotalRaised,
		EscrowBalance:   s.EscrowBalance,
		TotalWithdrawn:  s.TotalWithdrawn,
		Closed:          s.Closed,
	}
}

// HoldingInfo is the JSON view of a token holding or vault.
type HoldingInfo struct {
	Address domain.Pubkey `json:"address"`
	Mint    domain.Pubkey `json:"mint"`
	Owner   domain.Pubkey `json:"owner"`
	Amount  uint64        `json:"amount"`
}

// GetBuyerEntryParams selects a buyer's ledger entry.
type GetBuyerEntryParams struct {
	Sale  domain.Pubkey `json:"sale"`
	Buyer domain.Pubkey `json:"buyer"`
}

// BuyerEntryInfo is the JSON view of a BuyerLedgerEntry.
type BuyerEntryInfo struct {
	Address                domain.Pubkey `json:"address"`
	Sale                   domain.Pubkey `json:"sale"`
	Buyer                  domain.Pubkey `json:"buyer"`
	CumulativeContribution uint64        `json:"cumulative_contribution"`
	CumulativeAllocation   uint64        `json:"cumulative_allocation"`
	PurchaseCount          uint64        `json:"purchase_count"`
}

// GetBalanceParams selects a native account.
type GetBalanceParams struct {
	Owner domain.Pubkey `json:"owner"`
}

// BalanceResult is a native balance in base units.
type BalanceResult struct {
	Lamports uint64 `json:"lamports"`
}

// AccountInfo is a raw stored account. Data is base64 in JSON.
type AccountInfo struct {
	Address domain.Pubkey `json:"address"`
	Kind    string        `json:"kind"`
	Data    []byte        `json:"data"`
}

// DeriveAddressesParams names the identities to derive from. Buyer and Mint
// are optional.
type DeriveAddressesParams struct {
	Authority domain.Pubkey  `json:"authority"`
	Buyer     *domain.Pubkey `json:"buyer,omitempty"`
	Mint      *domain.Pubkey `json:"mint,omitempty"`
}

// DerivedAddresses are the program-derived addresses of a sale and,
// optionally, of one buyer.
type DerivedAddresses struct {
	Program          domain.Pubkey  `json:"program"`
	Sale             domain.Pubkey  `json:"sale"`
	SaleBump         uint8          `json:"sale_bump"`
	Vault            domain.Pubkey  `json:"vault"`
	VaultBump        uint8          `json:"vault_bump"`
	BuyerEntry       *domain.Pubkey `json:"buyer_entry,omitempty"`
	BuyerHolding     *domain.Pubkey `json:"buyer_holding,omitempty"`
	AuthorityHolding *domain.Pubkey `json:"authority_holding,omitempty"`
}

// GetJournalParams selects journal events of a sale.
type GetJournalParams struct {
	Sale  domain.Pubkey `json:"sale"`
	Limit int           `json:"limit,omitempty"`
}

// RequestAirdropParams credits native units.
type RequestAirdropParams struct {
	Owner    domain.Pubkey `json:"owner"`
	Lamports uint64        `json:"lamports"`
}

// CreateMintParams creates a mint.
type CreateMintParams struct {
	Address   domain.Pubkey `json:"address"`
	Authority domain.Pubkey `json:"authority"`
	Decimals  uint8         `json:"decimals"`
}

// CreateHoldingParams creates the canonical holding of owner for mint.
type CreateHoldingParams struct {
	Owner domain.Pubkey `json:"owner"`
	Mint  domain.Pubkey `json:"mint"`
}

// MintToParams mints new supply into a holding.
type MintToParams struct {
	Mint        domain.Pubkey `json:"mint"`
	Destination domain.Pubkey `json:"destination"`
	Authority   domain.Pubkey `json:"authority"`
	Amount      uint64        `json:"amount"`
}
