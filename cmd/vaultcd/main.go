// Command vaultcd wires argument parsing and subcommand dispatch around the
// chunker, storage pipeline, and restore walker. It owns no core logic of
// its own beyond wiring stdin/stdout to the library and turning errors into
// a non-zero exit.
package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	gokitlog "github.com/go-kit/log"
	"github.com/urfave/cli/v2"

	"github.com/halvard/vaultcd/internal/logging"
	"github.com/halvard/vaultcd/internal/pipeline"
	"github.com/halvard/vaultcd/internal/repo"
	"github.com/halvard/vaultcd/internal/restore"
	"github.com/halvard/vaultcd/internal/rollsum"
)

func main() {
	logger := logging.New(os.Stderr)

	app := &cli.App{
		Name:  "vaultcd",
		Usage: "content-addressed, encrypted deduplicating backup store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "repo",
				Aliases: []string{"r"},
				Value:   ".",
				Usage:   "repository root directory",
			},
		},
		Commands: []*cli.Command{
			initCommand(),
			saveCommand(logger),
			loadCommand(logger),
			historyCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logging.Error(logger, "msg", "fatal", "err", err)
		fmt.Fprintln(os.Stderr, "vaultcd:", err)
		os.Exit(1)
	}
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "create a repository and generate a keypair",
		Action: func(c *cli.Context) error {
			pubHex, secHex, err := repo.Init(c.String("repo"))
			if err != nil {
				return fmt.Errorf("init: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "public key:  %s\n", pubHex)
			fmt.Fprintf(c.App.Writer, "secret key:  %s\n", secHex)
			fmt.Fprintln(c.App.Writer, "the secret key is not written to disk; store it somewhere safe")
			return nil
		},
	}
}

func saveCommand(logger gokitlog.Logger) *cli.Command {
	return &cli.Command{
		Name:      "save",
		Usage:     "chunk, deduplicate, encrypt, and store a byte stream",
		ArgsUsage: "<path|->",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tag", Usage: "optional label recorded in the history ledger"},
			&cli.UintFlag{Name: "bits", Value: rollsum.DefaultBits, Usage: "target chunk size as 2^bits bytes"},
			&cli.IntFlag{Name: "bufsize", Value: pipeline.DefaultReadBufferSize, Usage: "input read buffer size in bytes"},
		},
		Action: func(c *cli.Context) error {
			root := c.String("repo")
			r, err := repo.Open(root, logger)
			if err != nil {
				return err
			}

			path := c.Args().First()
			if path == "" {
				return fmt.Errorf("save: missing input path (use - for stdin)")
			}
			src, closeFn, err := openInput(path)
			if err != nil {
				return fmt.Errorf("save: %w", err)
			}
			defer closeFn()

			logging.Info(r.Logger(), "msg", "save start", "path", path)

			digest, kind, err := pipeline.Store(src, r, rollsum.NewParams(c.Uint("bits")), c.Int("bufsize"))
			if err != nil {
				logging.Error(r.Logger(), "msg", "save failed", "err", err)
				return fmt.Errorf("save: %w", err)
			}

			digestHex := hex.EncodeToString(digest)
			fmt.Fprintf(c.App.Writer, "%s %s\n", digestHex, kind)
			logging.Info(r.Logger(), "msg", "save finished", "digest", digestHex, "kind", kind.String())

			bytesWritten, err := inputSize(path)
			if err != nil {
				bytesWritten = -1
			}
			entry := repo.HistoryEntry{
				Tag:        c.String("tag"),
				RootDigest: digestHex,
				Kind:       kind.String(),
				Bytes:      bytesWritten,
				Time:       time.Now().UTC().Format(time.RFC3339),
			}
			if err := repo.AppendHistory(root, entry); err != nil {
				logging.Error(r.Logger(), "msg", "history append failed", "err", err)
				return fmt.Errorf("save: record history: %w", err)
			}
			return nil
		},
	}
}

func loadCommand(logger gokitlog.Logger) *cli.Command {
	return &cli.Command{
		Name:      "load",
		Usage:     "reconstruct a byte stream from its root digest",
		ArgsUsage: "<digest_hex> [path|-]",
		Action: func(c *cli.Context) error {
			root := c.String("repo")
			r, err := repo.Open(root, logger)
			if err != nil {
				return err
			}

			digestHex := c.Args().First()
			if digestHex == "" {
				return fmt.Errorf("load: missing digest argument")
			}
			digest, err := hex.DecodeString(digestHex)
			if err != nil {
				return fmt.Errorf("load: decode digest: %w", err)
			}

			sec, err := repo.LoadSecretKey(root, c.App.ErrWriter, c.App.Reader)
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}
			r.WithSecretKey(sec)

			out := c.Args().Get(1)
			dst, closeFn, err := openOutput(out, c.App.Writer)
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}
			defer closeFn()

			logging.Info(r.Logger(), "msg", "load start", "digest", digestHex)
			if err := restore.Load(r, digest, dst); err != nil {
				logging.Error(r.Logger(), "msg", "load failed", "err", err)
				return fmt.Errorf("load: %w", err)
			}
			logging.Info(r.Logger(), "msg", "load finished", "digest", digestHex)
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "list past save operations",
		Action: func(c *cli.Context) error {
			entries, err := repo.ReadHistory(c.String("repo"))
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			for _, e := range entries {
				tag := e.Tag
				if tag == "" {
					tag = "-"
				}
				fmt.Fprintf(c.App.Writer, "%s  %-5s  %10d  %-20s  %s\n", e.Time, e.Kind, e.Bytes, tag, e.RootDigest)
			}
			return nil
		},
	}
}

func openInput(path string) (io.Reader, func() error, error) {
	if path == "-" {
		return os.Stdin, func() error { return nil }, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, f.Close, nil
}

func openOutput(path string, fallback io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return fallback, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, f.Close, nil
}

func inputSize(path string) (int64, error) {
	if path == "-" {
		return -1, nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
