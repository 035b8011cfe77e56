package domain

// EventKind names the operation that produced an Event.
type EventKind string

const (
	EventInitialized EventKind = "initialized"
	EventConfigured  EventKind = "configured"
	EventFunded      EventKind = "funded"
	EventPurchased   EventKind = "purchased"
	EventWithdrawn   EventKind = "withdrawn"
	EventEnded       EventKind = "ended"
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a known value.
func (k EventKind) IsValid() bool {
	switch k {
	case EventInitialized, EventConfigured, EventFunded, EventPurchased, EventWithdrawn, EventEnded:
		return true
	}
	return false
}

// Event is the journal record of one committed state transition.
// Corresponds to the sale_events table in PostgreSQL and ClickHouse.
type Event struct {
	ID             string    `json:"id"`
	Kind           EventKind `json:"kind"`
	Sale           Pubkey    `json:"sale"`
	Signer         Pubkey    `json:"signer"`
	Amount         uint64    `json:"amount"`          // native or token base units depending on Kind
	Allocation     uint64    `json:"allocation"`      // token base units, purchase only
	LedgerTime     int64     `json:"ledger_time"`     // unix seconds from the ledger clock
	Signature      string    `json:"signature"`       // empty for direct calls
	TotalDeposited uint64    `json:"total_deposited"` // sale totals after the transition
	TotalSold      uint64    `json:"total_sold"`
	VaultBalance   uint64    `json:"vault_balance"`
	CreatedAt      int64     `json:"created_at"`      // wall clock, ms
}
