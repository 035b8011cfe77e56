// Package crowdsale implements the sale program: the state transitions that
// create, configure, fund and settle a sale and sell its inventory to
// buyers. Every transition runs inside one storage unit of work that
// declares exactly the accounts it touches, checks every precondition
// before mutating anything, and commits all-or-nothing.
package crowdsale

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"crowdsale-ledger/internal/address"
	"crowdsale-ledger/internal/clock"
	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/events"
	"crowdsale-ledger/internal/observability"
	"crowdsale-ledger/internal/storage"
)

// publishTimeout bounds event delivery after a commit.
const publishTimeout = 10 * time.Second

// Controller applies sale transitions to an account store.
type Controller struct {
	store   storage.AccountStore
	deriver *address.Deriver
	clock   clock.Clock
	sink    events.Sink
	logger  *zap.Logger
	wall    func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the ledger clock. Defaults to clock.NewSystem().
func WithClock(c clock.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithSink sets the sink that receives committed events.
func WithSink(s events.Sink) Option {
	return func(ctl *Controller) { ctl.sink = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(ctl *Controller) { ctl.logger = l }
}

// NewController creates a Controller.
func NewController(store storage.AccountStore, deriver *address.Deriver, opts ...Option) *Controller {
	c := &Controller{
		store:   store,
		deriver: deriver,
		clock:   clock.NewSystem(),
		sink:    events.Nop{},
		logger:  zap.NewNop(),
		wall:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("crowdsale")
	return c
}

// Deriver returns the address deriver the controller validates against.
func (c *Controller) Deriver() *address.Deriver {
	return c.deriver
}

// Invocation identifies who requested a transition.
type Invocation struct {
	// Signer is the verified identity of the caller.
	Signer domain.Pubkey
	// Signature is the raw signature of the request. When set, the
	// transition also records a replay receipt and a second request with
	// the same signature fails with ErrAlreadyProcessed.
	Signature []byte
}

// Result carries the records touched by a committed transition.
type Result struct {
	Event   *domain.Event
	Sale    *domain.SaleRecord
	Vault   *domain.VaultAccount
	Entry   *domain.BuyerLedgerEntry
	Holding *domain.TokenHolding
}

// transition is the body of one operation. It runs inside the unit of work
// and may be invoked more than once by optimistic stores.
type transition func(tx storage.Tx, now int64) (*Result, error)

// execute runs fn as one atomic unit over declared plus the signer and, for
// signed requests, the replay receipt.
func (c *Controller) execute(ctx context.Context, op domain.EventKind, inv Invocation, declared []domain.Pubkey, fn transition) (*Result, error) {
	start := time.Now()

	accounts := append([]domain.Pubkey{inv.Signer}, declared...)
	var receipt domain.Pubkey
	signed := len(inv.Signature) > 0
	if signed {
		receipt = c.deriver.Receipt(inv.Signature)
		accounts = append(accounts, receipt)
	}

	var res *Result
	err := c.store.Atomically(ctx, accounts, func(tx storage.Tx) error {
		res = nil
		now := c.clock.Now()

		if signed {
			seen, err := tx.Exists(receipt)
			if err != nil {
				return err
			}
			if seen {
				return ErrAlreadyProcessed
			}
		}

		r, err := fn(tx, now)
		if err != nil {
			return err
		}

		if signed {
			err := createAccount(tx, receipt, &domain.Receipt{
				Signer:      inv.Signer,
				Kind:        op.String(),
				ProcessedAt: now,
			})
			if err != nil {
				return fmt.Errorf("record receipt: %w", err)
			}
		}
		res = r
		return nil
	})

	elapsed := time.Since(start).Seconds()
	if err != nil {
		err = classify(err)
		result := Name(err)
		if result == "" {
			result = "error"
			c.logger.Error("transition failed", zap.String("op", op.String()), zap.Stringer("signer", inv.Signer), zap.Error(err))
		} else {
			c.logger.Debug("transition rejected", zap.String("op", op.String()), zap.Stringer("signer", inv.Signer), zap.String("error", result))
		}
		observability.RecordTransition(op.String(), result, elapsed)
		return nil, err
	}

	e := res.Event
	e.ID = uuid.NewString()
	e.Kind = op
	e.Signer = inv.Signer
	e.CreatedAt = c.wall().UnixMilli()
	if signed {
		e.Signature = base58.Encode(inv.Signature)
	}

	observability.RecordTransition(op.String(), "committed", elapsed)
	observability.RecordCommit(e.LedgerTime)
	if res.Sale != nil {
		observability.UpdateSaleState(e.Sale.String(), e.VaultBalance, res.Sale.TotalSold, res.Sale.EscrowBalance)
	}

	c.logger.Info("transition committed",
		zap.String("op", op.String()),
		zap.Stringer("sale", e.Sale),
		zap.Stringer("signer", e.Signer),
		zap.Uint64("amount", e.Amount),
		zap.Uint64("allocation", e.Allocation),
		zap.Int64("ledger_time", e.LedgerTime),
	)

	// The transition is committed; delivery must outlive a cancelled request.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := c.sink.Publish(pubCtx, e); err != nil {
		c.logger.Warn("event delivery failed", zap.String("event_id", e.ID), zap.Error(err))
	}
	return res, nil
}

// classify maps storage-level failures that mean the caller named the wrong
// accounts onto transition errors. Everything else passes through.
func classify(err error) error {
	switch {
	case IsRejection(err):
		return err
	case errors.Is(err, storage.ErrUndeclaredAccount):
		return fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	default:
		return err
	}
}

// newEvent fills the sale totals common to every event.
func newEvent(sale domain.Pubkey, record *domain.SaleRecord, vaultBalance uint64, now int64) *domain.Event {
	return &domain.Event{
		Sale:           sale,
		LedgerTime:     now,
		TotalDeposited: record.TotalDeposited,
		TotalSold:      record.TotalSold,
		VaultBalance:   vaultBalance,
	}
}
