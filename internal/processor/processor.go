// Package processor turns signed instructions into controller calls.
package processor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"crowdsale-ledger/internal/crowdsale"
	"crowdsale-ledger/internal/instruction"
)

// ErrWrongProgram is returned for instructions addressed to another program.
var ErrWrongProgram = errors.New("instruction addressed to another program")

// Processor verifies and dispatches signed instructions.
type Processor struct {
	ctl    *crowdsale.Controller
	logger *zap.Logger
}

// New creates a Processor.
func New(ctl *crowdsale.Controller, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{ctl: ctl, logger: logger.Named("processor")}
}

// Process verifies s and applies it. Malformed envelopes fail with one of
// the instruction package errors; a bad signature is ErrUnauthorized;
// everything else is the controller's outcome.
func (p *Processor) Process(ctx context.Context, s *instruction.Signed) (*crowdsale.Result, error) {
	ins := &s.Instruction
	if ins.Program != p.ctl.Deriver().ProgramID() {
		return nil, fmt.Errorf("%w: %s", ErrWrongProgram, ins.Program)
	}
	if err := ins.Validate(); err != nil {
		return nil, err
	}
	if err := s.Verify(); err != nil {
		if errors.Is(err, instruction.ErrBadSignature) {
			p.logger.Debug("rejected unsigned instruction", zap.String("kind", string(ins.Kind)), zap.Stringer("signer", ins.Signer))
			return nil, fmt.Errorf("%w: %v", crowdsale.ErrUnauthorized, err)
		}
		return nil, err
	}

	inv := crowdsale.Invocation{Signer: ins.Signer, Signature: s.Signature[:]}
	acc := ins.Accounts

	switch ins.Kind {
	case instruction.KindInitialize:
		if err := instruction.DecodeData(ins.Kind, ins.Data, nil); err != nil {
			return nil, err
		}
		return p.ctl.Initialize(ctx, inv, crowdsale.InitializeAccounts{Sale: acc[0], Vault: acc[1], Mint: acc[2]})

	case instruction.KindConfigure:
		var params instruction.ConfigureParams
		if err := instruction.DecodeData(ins.Kind, ins.Data, &params); err != nil {
			return nil, err
		}
		return p.ctl.Configure(ctx, inv, crowdsale.ConfigureAccounts{Sale: acc[0]}, crowdsale.ConfigureParams{
			MinContribution: params.MinContribution,
			MaxContribution: params.MaxContribution,
			StartTime:       params.StartTime,
			EndTime:         params.EndTime,
			Price:           params.Price,
		})

	case instruction.KindFund:
		amount, err := decodeAmount(ins)
		if err != nil {
			return nil, err
		}
		return p.ctl.Fund(ctx, inv, crowdsale.FundAccounts{Sale: acc[0], Vault: acc[1], Source: acc[2]}, amount)

	case instruction.KindPurchase:
		amount, err := decodeAmount(ins)
		if err != nil {
			return nil, err
		}
		return p.ctl.Purchase(ctx, inv, crowdsale.PurchaseAccounts{Sale: acc[0], Vault: acc[1], BuyerEntry: acc[2], Destination: acc[3]}, amount)

	case instruction.KindWithdraw:
		amount, err := decodeAmount(ins)
		if err != nil {
			return nil, err
		}
		return p.ctl.Withdraw(ctx, inv, crowdsale.WithdrawAccounts{Sale: acc[0]}, amount)

	case instruction.KindEndSale:
		if err := instruction.DecodeData(ins.Kind, ins.Data, nil); err != nil {
			return nil, err
		}
		return p.ctl.EndSale(ctx, inv, crowdsale.EndSaleAccounts{Sale: acc[0], Vault: acc[1], Destination: acc[2]})
	}

	// Validate rejects unknown kinds.
	return nil, fmt.Errorf("%w: %q", instruction.ErrUnknownKind, ins.Kind)
}

func decodeAmount(ins *instruction.Instruction) (uint64, error) {
	var params instruction.AmountParams
	if err := instruction.DecodeData(ins.Kind, ins.Data, &params); err != nil {
		return 0, err
	}
	return params.Amount, nil
}

// IsMalformed reports whether err means the envelope itself was invalid,
// as opposed to a rejected or failed transition.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrWrongProgram) ||
		errors.Is(err, instruction.ErrUnknownKind) ||
		errors.Is(err, instruction.ErrAccountCount) ||
		errors.Is(err, instruction.ErrMalformedData)
}
