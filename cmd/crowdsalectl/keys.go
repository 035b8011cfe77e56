package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"

	"crowdsale-ledger/internal/domain"
)

func loadSigner(c *cli.Context) (solana.PrivateKey, domain.Pubkey, error) {
	path := c.String("keypair")
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, domain.Pubkey{}, fmt.Errorf("load keypair %s: %w", path, err)
	}
	return key, domain.Pubkey(key.PublicKey()), nil
}

// writeKeygenFile stores key as a JSON array of its 64 bytes, the format
// solana-keygen uses.
func writeKeygenFile(path string, key solana.PrivateKey, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// parsePubkeyFlag reads a base58 address from a flag, falling back to the
// signer when the flag is empty and fallback is set.
func parsePubkeyFlag(c *cli.Context, name string, fallback *domain.Pubkey) (domain.Pubkey, error) {
	v := c.String(name)
	if v == "" {
		if fallback != nil {
			return *fallback, nil
		}
		return domain.Pubkey{}, fmt.Errorf("--%s is required", name)
	}
	pk, err := domain.ParsePubkey(v)
	if err != nil {
		return domain.Pubkey{}, fmt.Errorf("--%s: %w", name, err)
	}
	return pk, nil
}

func keygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Generate a new keypair file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "outfile",
				Aliases: []string{"o"},
				Usage:   "Output path (defaults to --keypair)",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite an existing file",
			},
		},
		Action: func(c *cli.Context) error {
			p, err := newPrinter(c)
			if err != nil {
				return err
			}
			path := c.String("outfile")
			if path == "" {
				path = c.String("keypair")
			}

			key, err := solana.NewRandomPrivateKey()
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			if err := writeKeygenFile(path, key, c.Bool("force")); err != nil {
				return err
			}

			pub := domain.Pubkey(key.PublicKey())
			return p.print(map[string]string{"pubkey": pub.String(), "path": path}, func(w io.Writer) {
				fmt.Fprintf(w, "Wrote keypair to %s\n", path)
				fmt.Fprintf(w, "pubkey: %s\n", pub)
			})
		},
	}
}
