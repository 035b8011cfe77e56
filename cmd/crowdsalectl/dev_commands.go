package main

import (
	"fmt"
	"io"

	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"

	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/rpc"
)

func airdropCommand() *cli.Command {
	return &cli.Command{
		Name:      "airdrop",
		Usage:     "Credit SOL to an account",
		ArgsUsage: "AMOUNT_SOL",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "to", Usage: "Recipient (defaults to the signer)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("amount is required")
			}
			p, err := newPrinter(c)
			if err != nil {
				return err
			}
			lamports, err := parseUnits(c.Args().Get(0), NativeDecimals)
			if err != nil {
				return err
			}
			to, err := signerOr(c, "to")
			if err != nil {
				return err
			}
			balance, err := newClient(c).RequestAirdrop(c.Context, to, lamports)
			if err != nil {
				return err
			}
			return p.print(rpc.BalanceResult{Lamports: balance}, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Airdropped %s to %s\n", formatSOL(lamports), to)
				fmt.Fprintf(w, "  Balance: %s\n", formatSOL(balance))
			})
		},
	}
}

func createMintCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-mint",
		Usage: "Create a mint whose authority is the signer",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "address", Usage: "Mint address (random when empty)"},
			&cli.UintFlag{Name: "decimals", Usage: "Token decimals", Value: 9},
		},
		Action: func(c *cli.Context) error {
			p, err := newPrinter(c)
			if err != nil {
				return err
			}
			_, signer, err := loadSigner(c)
			if err != nil {
				return err
			}
			var mint domain.Pubkey
			if c.String("address") != "" {
				if mint, err = parsePubkeyFlag(c, "address", nil); err != nil {
					return err
				}
			} else {
				k, err := solana.NewRandomPrivateKey()
				if err != nil {
					return err
				}
				mint = domain.Pubkey(k.PublicKey())
			}
			decimals := c.Uint("decimals")
			if decimals > 255 {
				return fmt.Errorf("--decimals: %d out of range", decimals)
			}
			if err := newClient(c).CreateMint(c.Context, mint, signer, uint8(decimals)); err != nil {
				return err
			}
			return p.print(rpc.AddressParams{Address: mint}, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Created mint %s (%d decimals)\n", mint, decimals)
			})
		},
	}
}

func createHoldingCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-holding",
		Usage: "Create the canonical holding of an owner for a mint",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mint", Usage: "Token mint", Required: true},
			&cli.StringFlag{Name: "owner", Usage: "Holding owner (defaults to the signer)"},
		},
		Action: func(c *cli.Context) error {
			p, err := newPrinter(c)
			if err != nil {
				return err
			}
			mint, err := parsePubkeyFlag(c, "mint", nil)
			if err != nil {
				return err
			}
			owner, err := signerOr(c, "owner")
			if err != nil {
				return err
			}
			addr, err := newClient(c).CreateHolding(c.Context, owner, mint)
			if err != nil {
				return err
			}
			return p.print(rpc.AddressParams{Address: addr}, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Created holding %s\n", addr)
			})
		},
	}
}

func mintToCommand() *cli.Command {
	return &cli.Command{
		Name:      "mint-to",
		Usage:     "Mint tokens into an owner's canonical holding, creating it if needed",
		ArgsUsage: "AMOUNT_TOKENS",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mint", Usage: "Token mint", Required: true},
			&cli.StringFlag{Name: "to", Usage: "Holding owner (defaults to the signer)"},
			&cli.UintFlag{Name: "decimals", Usage: "Token decimals of AMOUNT_TOKENS", Value: 9},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("amount is required")
			}
			p, err := newPrinter(c)
			if err != nil {
				return err
			}
			_, signer, err := loadSigner(c)
			if err != nil {
				return err
			}
			mint, err := parsePubkeyFlag(c, "mint", nil)
			if err != nil {
				return err
			}
			owner, err := parsePubkeyFlag(c, "to", &signer)
			if err != nil {
				return err
			}
			amount, err := parseUnits(c.Args().Get(0), uint8(c.Uint("decimals")))
			if err != nil {
				return err
			}

			cl := newClient(c)
			d, err := cl.DeriveAddresses(c.Context, rpc.DeriveAddressesParams{Authority: owner, Mint: &mint})
			if err != nil {
				return err
			}
			dest := *d.AuthorityHolding
			if info, err := cl.GetAccountInfo(c.Context, dest); err != nil {
				return err
			} else if info == nil {
				if dest, err = cl.CreateHolding(c.Context, owner, mint); err != nil {
					return fmt.Errorf("create holding: %w", err)
				}
			}

			h, err := cl.MintTo(c.Context, mint, dest, signer, amount)
			if err != nil {
				return err
			}
			return p.print(h, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Minted %d base units to %s\n", amount, h.Address)
				fmt.Fprintf(w, "  Balance: %d\n", h.Amount)
			})
		},
	}
}
