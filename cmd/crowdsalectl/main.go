// Command crowdsalectl signs and submits crowdsale instructions and reads
// ledger state over JSON-RPC.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func defaultKeypairPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "id.json"
	}
	return filepath.Join(home, ".config", "solana", "id.json")
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "crowdsalectl",
		Usage: "Crowdsale ledger client",
		Description: `Signs sale instructions with a local keypair and submits them to a ledger node.

The keypair file uses the solana-keygen JSON format. Native amounts are given in
SOL and token amounts in whole tokens; both accept decimals.`,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Aliases: []string{"u"},
				Usage:   "Ledger node JSON-RPC URL",
				EnvVars: []string{"CROWDSALE_URL"},
				Value:   "http://localhost:8899",
			},
			&cli.StringFlag{
				Name:    "keypair",
				Aliases: []string{"k"},
				Usage:   "Signer keypair file",
				EnvVars: []string{"CROWDSALE_KEYPAIR"},
				Value:   defaultKeypairPath(),
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq filter applied to the JSON output (implies --json)",
			},
		},
		Commands: []*cli.Command{
			keygenCommand(),
			addressCommand(),
			{
				Name:  "sale",
				Usage: "Sale administration",
				Subcommands: []*cli.Command{
					initCommand(),
					configureCommand(),
					fundCommand(),
					withdrawCommand(),
					endCommand(),
					showSaleCommand(),
				},
			},
			buyCommand(),
			entryCommand(),
			balanceCommand(),
			journalCommand(),
			watchCommand(),
			{
				Name:  "dev",
				Usage: "Dev faucet commands (node must run with DEV_FAUCET)",
				Subcommands: []*cli.Command{
					airdropCommand(),
					createMintCommand(),
					createHoldingCommand(),
					mintToCommand(),
				},
			},
		},
	}
}
