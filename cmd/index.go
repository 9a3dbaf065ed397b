package main

import (
	"fmt"
	"os"

	"github.com/storacha/ddebsyms/internal/cmdutil"
	"github.com/storacha/ddebsyms/pkg/ddebs/index"
	"github.com/urfave/cli/v2"
)

var indexCommand = &cli.Command{
	Name:  "index",
	Usage: "Bring the build ID index up to date with the scan cache and print its statistics.",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "rebuild",
			Usage: "Rebuild from the scan cache even if the stored index is current.",
		},
		&cli.BoolFlag{
			Name:  "export",
			Usage: "Print every scanned build ID as a \"BuildID: <id> <path> <archive>\" line instead.",
		},
	},
	Action: func(cCtx *cli.Context) error {
		ctx := cCtx.Context
		cfg := cmdutil.MustGetConfig(cCtx)
		state := cmdutil.MustOpenState(ctx, cfg)
		defer state.Close()

		if cCtx.Bool("export") {
			_, err := index.Export(ctx, state.Scanned, os.Stdout)
			return err
		}

		store := cmdutil.IndexStore(cfg)

		var (
			idx   *index.Index
			stats index.Stats
			err   error
		)
		if cCtx.Bool("rebuild") {
			idx, stats, err = index.Build(ctx, state.Scanned)
			if err == nil {
				err = store.Save(idx)
			}
		} else {
			idx, stats, err = store.Load(ctx, state.Scanned)
		}
		if err != nil {
			return err
		}

		fmt.Printf("%d build IDs", idx.Len())
		if stats.Rebuilt {
			fmt.Printf(" from %d archives (%d collisions, %d invalid IDs skipped)", stats.Packages, stats.Collisions, stats.Invalid)
		}
		fmt.Println()
		return nil
	},
}

var lookupCommand = &cli.Command{
	Name:      "lookup",
	Usage:     "Print the file and archive carrying each given build ID.",
	UsageText: "lookup <build-id>...",
	Action: func(cCtx *cli.Context) error {
		if cCtx.NArg() == 0 {
			return fmt.Errorf("at least one build ID is required")
		}
		ctx := cCtx.Context
		cfg := cmdutil.MustGetConfig(cCtx)
		state := cmdutil.MustOpenState(ctx, cfg)
		defer state.Close()

		idx, _, err := cmdutil.IndexStore(cfg).Load(ctx, state.Scanned)
		if err != nil {
			return err
		}
		for _, id := range cCtx.Args().Slice() {
			entry, ok := idx.Lookup(id)
			if !ok {
				fmt.Printf("%s\tnot found\n", id)
				continue
			}
			fmt.Printf("%s\t%s\t%s\n", id, entry.Path, entry.Owner)
		}
		return nil
	},
}
