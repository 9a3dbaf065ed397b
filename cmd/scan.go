package main

import (
	"fmt"
	"iter"

	"github.com/spf13/afero"
	"github.com/storacha/ddebsyms/internal/cmdutil"
	"github.com/storacha/ddebsyms/pkg/ddebs/crawl"
	"github.com/storacha/ddebsyms/pkg/ddebs/model"
	"github.com/storacha/ddebsyms/pkg/ddebs/pipeline"
	"github.com/storacha/ddebsyms/pkg/ddebs/scans"
	"github.com/storacha/ddebsyms/pkg/ddebs/scans/probe"
	"github.com/storacha/ddebsyms/pkg/ddebs/scans/walker"
	"github.com/urfave/cli/v2"
)

var scanCommand = &cli.Command{
	Name:  "scan",
	Usage: "Crawl the repository and record the build IDs of every new debug symbol package.",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "pool-url",
			Usage:   "Root of the package pool to crawl.",
			EnvVars: env("POOL_URL"),
		},
		&cli.StringSliceFlag{
			Name:    "packages-url",
			Usage:   "Enumerate archives from these Packages index files instead of crawling the pool.",
			EnvVars: env("PACKAGES_URLS"),
		},
		&cli.StringSliceFlag{
			Name:    "arch",
			Usage:   "Architectures to scan. Defaults to amd64 and i386.",
			EnvVars: env("ARCHES"),
		},
		&cli.IntFlag{
			Name:    "workers",
			Aliases: []string{"j"},
			Usage:   "Archives processed in parallel. Defaults to one per CPU.",
			EnvVars: env("WORKERS"),
		},
		&cli.IntFlag{
			Name:    "queue-size",
			Usage:   "Archives queued ahead of the workers.",
			EnvVars: env("QUEUE_SIZE"),
		},
	},
	Action: scan,
}

func scan(cCtx *cli.Context) error {
	ctx := cCtx.Context
	cfg := cmdutil.MustGetConfig(cCtx)
	state := cmdutil.MustOpenState(ctx, cfg)
	defer state.Close()

	fetcher := cmdutil.NewFetcher(cfg)
	scanner := scans.Scanner{
		Fs:       afero.NewOsFs(),
		TempDir:  cfg.StatePath("scratch"),
		Fetcher:  fetcher,
		Unpacker: cmdutil.MustGetDpkg(cfg),
		Prober:   probe.ELF{},
		WalkerFn: walker.WalkFiles,
	}

	var batches iter.Seq[model.Batch]
	p := pipeline.Scan{
		Scanner:   scanner,
		Scanned:   state.Scanned,
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Ledger:    state.Ledger(),
	}
	if len(cfg.PackagesURLs) > 0 {
		base, err := cmdutil.RepositoryBase(cfg.PoolURL)
		if err != nil {
			return err
		}
		c := crawl.IndexCrawler{Fetcher: fetcher, Scanned: state.Scanned, Arches: cfg.Arches}
		batches = c.Crawl(ctx, cfg.PackagesURLs, base)
	} else {
		c := crawl.Crawler{
			Lister:  crawl.HTMLLister{Fetcher: fetcher},
			Listed:  state.Listed,
			Scanned: state.Scanned,
			Arches:  cfg.Arches,
		}
		batches = c.Crawl(ctx, cfg.PoolURL)
		p.MarkDone = c.MarkListed
	}

	update, stop := cmdutil.StartSpinner("scanning")
	p.Progress = func(s pipeline.ScanStats) {
		update(fmt.Sprintf("scanned %d of %d archives (%d failed)", s.Scanned, s.Archives, s.Failed))
	}
	stats, err := p.Run(ctx, batches)
	stop()
	fmt.Printf("Scanned %d archives in %d directories, %d failed.\n", stats.Scanned, stats.Batches, stats.Failed)
	if err != nil {
		return fmt.Errorf("scan stopped: %w", err)
	}
	return nil
}
