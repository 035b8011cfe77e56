package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/rpc"
)

// signerOr returns the pubkey in flag name, or the keypair's pubkey.
func signerOr(c *cli.Context, name string) (domain.Pubkey, error) {
	if c.String(name) != "" {
		return parsePubkeyFlag(c, name, nil)
	}
	_, signer, err := loadSigner(c)
	return signer, err
}

func addressCommand() *cli.Command {
	return &cli.Command{
		Name:  "address",
		Usage: "Show the derived sale, vault and holding addresses",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "authority", Usage: "Sale authority (defaults to the signer)"},
			&cli.StringFlag{Name: "buyer", Usage: "Buyer whose entry and holding to derive"},
			&cli.StringFlag{Name: "mint", Usage: "Mint for holding addresses"},
		},
		Action: func(c *cli.Context) error {
			p, err := newPrinter(c)
			if err != nil {
				return err
			}
			authority, err := signerOr(c, "authority")
			if err != nil {
				return err
			}
			params := rpc.DeriveAddressesParams{Authority: authority}
			if c.String("buyer") != "" {
				buyer, err := parsePubkeyFlag(c, "buyer", nil)
				if err != nil {
					return err
				}
				params.Buyer = &buyer
			}
			if c.String("mint") != "" {
				mint, err := parsePubkeyFlag(c, "mint", nil)
				if err != nil {
					return err
				}
				params.Mint = &mint
			}

			d, err := newClient(c).DeriveAddresses(c.Context, params)
			if err != nil {
				return err
			}
			return p.print(d, func(w io.Writer) {
				fmt.Fprintf(w, "Program:           %s\n", d.Program)
				fmt.Fprintf(w, "Sale:              %s (bump %d)\n", d.Sale, d.SaleBump)
				fmt.Fprintf(w, "Vault:             %s (bump %d)\n", d.Vault, d.VaultBump)
				if d.AuthorityHolding != nil {
					fmt.Fprintf(w, "Authority holding: %s\n", d.AuthorityHolding)
				}
				if d.BuyerEntry != nil {
					fmt.Fprintf(w, "Buyer entry:       %s\n", d.BuyerEntry)
				}
				if d.BuyerHolding != nil {
					fmt.Fprintf(w, "Buyer holding:     %s\n", d.BuyerHolding)
				}
			})
		},
	}
}

func showSaleCommand() *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Show a sale",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "authority", Usage: "Sale authority (defaults to the signer)"},
		},
		Action: func(c *cli.Context) error {
			p, err := newPrinter(c)
			if err != nil {
				return err
			}
			authority, err := signerOr(c, "authority")
			if err != nil {
				return err
			}
			s, err := newClient(c).GetSaleByAuthority(c.Context, authority)
			if err != nil {
				return err
			}
			return p.print(s, func(w io.Writer) {
				dec := s.TokenDecimals
				fmt.Fprintf(w, "Sale:            %s\n", s.Address)
				fmt.Fprintf(w, "Authority:       %s\n", s.Authority)
				fmt.Fprintf(w, "Mint:            %s (%d decimals)\n", s.TokenMint, dec)
				fmt.Fprintf(w, "Vault:           %s\n", s.Vault)
				if s.Price == 0 {
					fmt.Fprintf(w, "Status:          unconfigured\n")
				} else {
					fmt.Fprintf(w, "Window:          %s .. %s\n", formatTime(s.StartTime), formatTime(s.EndTime))
					fmt.Fprintf(w, "Price:           %s per token\n", formatSOL(s.Price))
					fmt.Fprintf(w, "Contribution:    %s .. %s\n", formatSOL(s.MinContribution), formatSOL(s.MaxContribution))
				}
				fmt.Fprintf(w, "Deposited:       %s\n", formatUnits(s.TotalDeposited, dec))
				fmt.Fprintf(w, "Sold:            %s\n", formatUnits(s.TotalSold, dec))
				fmt.Fprintf(w, "Reclaimed:       %s\n", formatUnits(s.TotalReclaimed, dec))
				fmt.Fprintf(w, "Raised:          %s\n", formatSOL(s.TotalRaised))
				fmt.Fprintf(w, "Escrow:          %s\n", formatSOL(s.EscrowBalance))
				fmt.Fprintf(w, "Closed:          %t\n", s.Closed)
			})
		},
	}
}

func entryCommand() *cli.Command {
	return &cli.Command{
		Name:  "entry",
		Usage: "Show a buyer's ledger entry in a sale",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "authority", Usage: "Sale authority", Required: true},
			&cli.StringFlag{Name: "buyer", Usage: "Buyer (defaults to the signer)"},
		},
		Action: func(c *cli.Context) error {
			p, err := newPrinter(c)
			if err != nil {
				return err
			}
			authority, err := parsePubkeyFlag(c, "authority", nil)
			if err != nil {
				return err
			}
			buyer, err := signerOr(c, "buyer")
			if err != nil {
				return err
			}
			cl := newClient(c)
			sale, err := cl.GetSaleByAuthority(c.Context, authority)
			if err != nil {
				return err
			}
			e, err := cl.GetBuyerEntry(c.Context, sale.Address, buyer)
			if err != nil {
				return err
			}
			return p.print(e, func(w io.Writer) {
				fmt.Fprintf(w, "Entry:        %s\n", e.Address)
				fmt.Fprintf(w, "Buyer:        %s\n", e.Buyer)
				fmt.Fprintf(w, "Contributed:  %s\n", formatSOL(e.CumulativeContribution))
				fmt.Fprintf(w, "Allocated:    %s\n", formatUnits(e.CumulativeAllocation, sale.TokenDecimals))
				fmt.Fprintf(w, "Purchases:    %d\n", e.PurchaseCount)
			})
		},
	}
}

func balanceCommand() *cli.Command {
	return &cli.Command{
		Name:  "balance",
		Usage: "Show native and, with --mint, token balances",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "owner", Usage: "Account owner (defaults to the signer)"},
			&cli.StringFlag{Name: "mint", Usage: "Also show the owner's holding of this mint"},
		},
		Action: func(c *cli.Context) error {
			p, err := newPrinter(c)
			if err != nil {
				return err
			}
			owner, err := signerOr(c, "owner")
			if err != nil {
				return err
			}
			cl := newClient(c)
			lamports, err := cl.GetBalance(c.Context, owner)
			if err != nil {
				return err
			}

			out := struct {
				Owner    domain.Pubkey    `json:"owner"`
				Lamports uint64           `json:"lamports"`
				Holding  *rpc.HoldingInfo `json:"holding,omitempty"`
			}{Owner: owner, Lamports: lamports}

			if c.String("mint") != "" {
				mint, err := parsePubkeyFlag(c, "mint", nil)
				if err != nil {
					return err
				}
				d, err := cl.DeriveAddresses(c.Context, rpc.DeriveAddressesParams{Authority: owner, Mint: &mint})
				if err != nil {
					return err
				}
				out.Holding, err = cl.GetTokenHolding(c.Context, *d.AuthorityHolding)
				if err != nil {
					var rpcErr *rpc.Error
					if !errors.As(err, &rpcErr) {
						return err
					}
				}
			}

			return p.print(out, func(w io.Writer) {
				fmt.Fprintf(w, "%s\n", formatSOL(out.Lamports))
				if out.Holding != nil {
					fmt.Fprintf(w, "%d base units of %s in %s\n", out.Holding.Amount, out.Holding.Mint, out.Holding.Address)
				}
			})
		},
	}
}

func journalCommand() *cli.Command {
	return &cli.Command{
		Name:  "journal",
		Usage: "List journaled events of a sale",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "authority", Usage: "Sale authority (defaults to the signer)"},
			&cli.IntFlag{Name: "limit", Usage: "Maximum number of events", Value: 50},
		},
		Action: func(c *cli.Context) error {
			p, err := newPrinter(c)
			if err != nil {
				return err
			}
			authority, err := signerOr(c, "authority")
			if err != nil {
				return err
			}
			cl := newClient(c)
			d, err := cl.DeriveAddresses(c.Context, rpc.DeriveAddressesParams{Authority: authority})
			if err != nil {
				return err
			}
			evts, err := cl.GetJournal(c.Context, d.Sale, c.Int("limit"))
			if err != nil {
				return err
			}
			return p.print(evts, func(w io.Writer) {
				if len(evts) == 0 {
					fmt.Fprintln(w, "No events")
					return
				}
				for _, e := range evts {
					printEvent(w, e)
				}
			})
		},
	}
}

func printEvent(w io.Writer, e *domain.Event) {
	fmt.Fprintf(w, "%s  %-11s signer=%s amount=%d allocation=%d vault=%d\n",
		formatTime(e.LedgerTime), e.Kind, e.Signer, e.Amount, e.Allocation, e.VaultBalance)
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Stream committed events until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sale", Usage: "Only events of this sale address"},
			&cli.IntFlag{Name: "count", Usage: "Exit after this many events (0 streams forever)"},
		},
		Action: func(c *cli.Context) error {
			p, err := newPrinter(c)
			if err != nil {
				return err
			}
			var sale domain.Pubkey
			if c.String("sale") != "" {
				if sale, err = parsePubkeyFlag(c, "sale", nil); err != nil {
					return err
				}
			}

			logger := zap.NewNop()
			stream, err := newClient(c).Subscribe(c.Context, sale, nil, logger)
			if err != nil {
				return err
			}
			defer stream.Close()

			seen := 0
			for e := range stream.C {
				if err := p.print(e, func(w io.Writer) { printEvent(w, e) }); err != nil {
					return err
				}
				seen++
				if n := c.Int("count"); n > 0 && seen >= n {
					return nil
				}
			}
			return nil
		},
	}
}
