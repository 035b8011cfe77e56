package main

import (
	"fmt"
	"io"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"

	"crowdsale-ledger/internal/client"
	"crowdsale-ledger/internal/crowdsale"
	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/instruction"
	"crowdsale-ledger/internal/rpc"
)

func newClient(c *cli.Context) *client.Client {
	return client.New(c.String("url"))
}

// nonce makes otherwise identical instructions sign differently.
func nonce() uint64 {
	return uint64(time.Now().UnixNano())
}

// submit signs ins, sends it and prints the committed event.
func submit(c *cli.Context, cl *client.Client, ins instruction.Instruction, key solana.PrivateKey) error {
	p, err := newPrinter(c)
	if err != nil {
		return err
	}
	signed, err := instruction.Sign(ins, key)
	if err != nil {
		return err
	}
	res, err := cl.SendInstruction(c.Context, signed)
	if err != nil {
		return fmt.Errorf("%s: %w", ins.Kind, err)
	}
	return p.print(res, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %s committed\n", ins.Kind)
		fmt.Fprintf(w, "  Signature: %s\n", res.Signature)
		if e := res.Event; e != nil {
			fmt.Fprintf(w, "  Sale:      %s\n", e.Sale)
			if e.Amount > 0 {
				fmt.Fprintf(w, "  Amount:    %d\n", e.Amount)
			}
			if e.Allocation > 0 {
				fmt.Fprintf(w, "  Allocated: %d\n", e.Allocation)
			}
			fmt.Fprintf(w, "  Vault:     %d\n", e.VaultBalance)
		}
	})
}

// saleContext loads the signer, the derived addresses of authority and,
// when it exists, the sale itself.
type saleContext struct {
	key     solana.PrivateKey
	signer  domain.Pubkey
	derived *rpc.DerivedAddresses
	sale    *rpc.SaleInfo
}

func loadSaleContext(c *cli.Context, cl *client.Client, authority *domain.Pubkey, mint *domain.Pubkey, needSale bool) (*saleContext, error) {
	key, signer, err := loadSigner(c)
	if err != nil {
		return nil, err
	}
	if authority == nil {
		authority = &signer
	}

	sc := &saleContext{key: key, signer: signer}
	if needSale {
		sc.sale, err = cl.GetSaleByAuthority(c.Context, *authority)
		if err != nil {
			return nil, fmt.Errorf("load sale of %s: %w", authority, err)
		}
		mint = &sc.sale.TokenMint
	}

	p := rpc.DeriveAddressesParams{Authority: *authority, Buyer: &signer, Mint: mint}
	sc.derived, err = cl.DeriveAddresses(c.Context, p)
	if err != nil {
		return nil, fmt.Errorf("derive addresses: %w", err)
	}
	return sc, nil
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Create the signer's sale record and vault for a mint",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mint", Usage: "Token mint sold by the sale", Required: true},
		},
		Action: func(c *cli.Context) error {
			cl := newClient(c)
			mint, err := parsePubkeyFlag(c, "mint", nil)
			if err != nil {
				return err
			}
			sc, err := loadSaleContext(c, cl, nil, &mint, false)
			if err != nil {
				return err
			}
			accts := crowdsale.InitializeAccounts{Sale: sc.derived.Sale, Vault: sc.derived.Vault, Mint: mint}
			return submit(c, cl, instruction.NewInitialize(sc.derived.Program, sc.signer, nonce(), accts), sc.key)
		},
	}
}

func configureCommand() *cli.Command {
	return &cli.Command{
		Name:  "configure",
		Usage: "Set contribution bounds, window and price of the signer's sale",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "min", Usage: "Minimum contribution per purchase in SOL", Required: true},
			&cli.StringFlag{Name: "max", Usage: "Maximum contribution per purchase in SOL", Required: true},
			&cli.StringFlag{Name: "start", Usage: "Window start (unix seconds or RFC 3339)", Required: true},
			&cli.StringFlag{Name: "end", Usage: "Window end (unix seconds or RFC 3339)", Required: true},
			&cli.StringFlag{Name: "price", Usage: "Price in SOL per whole token", Required: true},
		},
		Action: func(c *cli.Context) error {
			var params crowdsale.ConfigureParams
			var err error
			if params.MinContribution, err = parseUnits(c.String("min"), NativeDecimals); err != nil {
				return fmt.Errorf("--min: %w", err)
			}
			if params.MaxContribution, err = parseUnits(c.String("max"), NativeDecimals); err != nil {
				return fmt.Errorf("--max: %w", err)
			}
			if params.StartTime, err = parseTime(c.String("start")); err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			if params.EndTime, err = parseTime(c.String("end")); err != nil {
				return fmt.Errorf("--end: %w", err)
			}
			if params.Price, err = parseUnits(c.String("price"), NativeDecimals); err != nil {
				return fmt.Errorf("--price: %w", err)
			}
			if err := params.Validate(); err != nil {
				return err
			}

			cl := newClient(c)
			sc, err := loadSaleContext(c, cl, nil, nil, false)
			if err != nil {
				return err
			}
			accts := crowdsale.ConfigureAccounts{Sale: sc.derived.Sale}
			return submit(c, cl, instruction.NewConfigure(sc.derived.Program, sc.signer, nonce(), accts, params), sc.key)
		},
	}
}

func fundCommand() *cli.Command {
	return &cli.Command{
		Name:  "fund",
		Usage: "Move tokens from the signer's holding into the sale vault",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "amount", Usage: "Whole tokens to deposit", Required: true},
			&cli.StringFlag{Name: "source", Usage: "Source holding (defaults to the signer's canonical holding)"},
		},
		Action: func(c *cli.Context) error {
			cl := newClient(c)
			sc, err := loadSaleContext(c, cl, nil, nil, true)
			if err != nil {
				return err
			}
			amount, err := parseUnits(c.String("amount"), sc.sale.TokenDecimals)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}
			source, err := parsePubkeyFlag(c, "source", sc.derived.AuthorityHolding)
			if err != nil {
				return err
			}
			accts := crowdsale.FundAccounts{Sale: sc.derived.Sale, Vault: sc.derived.Vault, Source: source}
			return submit(c, cl, instruction.NewFund(sc.derived.Program, sc.signer, nonce(), accts, amount), sc.key)
		},
	}
}

func withdrawCommand() *cli.Command {
	return &cli.Command{
		Name:  "withdraw",
		Usage: "Pull raised SOL from the sale escrow to the signer",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "amount", Usage: "SOL to withdraw (defaults to the whole escrow)"},
		},
		Action: func(c *cli.Context) error {
			cl := newClient(c)
			sc, err := loadSaleContext(c, cl, nil, nil, true)
			if err != nil {
				return err
			}
			amount := sc.sale.EscrowBalance
			if v := c.String("amount"); v != "" {
				if amount, err = parseUnits(v, NativeDecimals); err != nil {
					return fmt.Errorf("--amount: %w", err)
				}
			}
			accts := crowdsale.WithdrawAccounts{Sale: sc.derived.Sale}
			return submit(c, cl, instruction.NewWithdraw(sc.derived.Program, sc.signer, nonce(), accts, amount), sc.key)
		},
	}
}

func endCommand() *cli.Command {
	return &cli.Command{
		Name:  "end",
		Usage: "Close an ended sale and reclaim unsold tokens",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "destination", Usage: "Holding receiving unsold tokens (defaults to the signer's canonical holding)"},
		},
		Action: func(c *cli.Context) error {
			cl := newClient(c)
			sc, err := loadSaleContext(c, cl, nil, nil, true)
			if err != nil {
				return err
			}
			dest, err := parsePubkeyFlag(c, "destination", sc.derived.AuthorityHolding)
			if err != nil {
				return err
			}
			accts := crowdsale.EndSaleAccounts{Sale: sc.derived.Sale, Vault: sc.derived.Vault, Destination: dest}
			return submit(c, cl, instruction.NewEndSale(sc.derived.Program, sc.signer, nonce(), accts), sc.key)
		},
	}
}

func buyCommand() *cli.Command {
	return &cli.Command{
		Name:  "buy",
		Usage: "Purchase tokens from a sale",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "authority", Usage: "Sale authority", Required: true},
			&cli.StringFlag{Name: "sol", Usage: "SOL to contribute"},
			&cli.StringFlag{Name: "tokens", Usage: "Whole tokens to buy; the contribution is the exact cost"},
			&cli.BoolFlag{Name: "create-holding", Usage: "Create the destination holding first (dev faucet)"},
		},
		Action: func(c *cli.Context) error {
			if (c.String("sol") == "") == (c.String("tokens") == "") {
				return fmt.Errorf("exactly one of --sol or --tokens is required")
			}
			cl := newClient(c)
			authority, err := parsePubkeyFlag(c, "authority", nil)
			if err != nil {
				return err
			}
			sc, err := loadSaleContext(c, cl, &authority, nil, true)
			if err != nil {
				return err
			}

			var contribution uint64
			if v := c.String("sol"); v != "" {
				if contribution, err = parseUnits(v, NativeDecimals); err != nil {
					return fmt.Errorf("--sol: %w", err)
				}
			} else {
				tokens, err := parseUnits(c.String("tokens"), sc.sale.TokenDecimals)
				if err != nil {
					return fmt.Errorf("--tokens: %w", err)
				}
				if contribution, err = crowdsale.Cost(tokens, sc.sale.Price, sc.sale.TokenDecimals); err != nil {
					return fmt.Errorf("--tokens: %w", err)
				}
			}

			dest := *sc.derived.BuyerHolding
			if c.Bool("create-holding") {
				if _, err := cl.GetTokenHolding(c.Context, dest); err != nil {
					if dest, err = cl.CreateHolding(c.Context, sc.signer, sc.sale.TokenMint); err != nil {
						return fmt.Errorf("create holding: %w", err)
					}
				}
			}

			accts := crowdsale.PurchaseAccounts{
				Sale:        sc.derived.Sale,
				Vault:       sc.derived.Vault,
				BuyerEntry:  *sc.derived.BuyerEntry,
				Destination: dest,
			}
			return submit(c, cl, instruction.NewPurchase(sc.derived.Program, sc.signer, nonce(), accts, contribution), sc.key)
		},
	}
}
