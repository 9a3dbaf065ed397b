package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/storacha/ddebsyms/internal/cmdutil"
	"github.com/storacha/ddebsyms/internal/config"
	"github.com/storacha/ddebsyms/pkg/ddebs/model"
	"github.com/storacha/ddebsyms/pkg/ddebs/pipeline"
	"github.com/storacha/ddebsyms/pkg/ddebs/report"
	"github.com/storacha/ddebsyms/pkg/ddebs/symbols"
	"github.com/urfave/cli/v2"
)

// requestFlags choose where the missing symbols come from. Without either
// flag the most recent daily report is used.
var requestFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "crash",
		Usage: "Resolve the modules missing symbols in this processed crash.",
	},
	&cli.StringFlag{
		Name:  "report",
		Usage: "Read missing symbols from this local report file.",
	},
	&cli.StringFlag{
		Name:    "report-url",
		Usage:   "Daily missing symbols report URL; {date} is replaced with YYYYMMDD.",
		EnvVars: env("REPORT_URL"),
	},
	&cli.StringFlag{
		Name:    "crash-url",
		Usage:   "Processed crash URL; {crash_id} is replaced with the crash ID.",
		EnvVars: env("CRASH_URL"),
	},
	&cli.IntFlag{
		Name:    "lookback",
		Usage:   "Days to search back for a daily report.",
		EnvVars: env("LOOKBACK"),
	},
}

var planCommand = &cli.Command{
	Name:   "plan",
	Usage:  "Show which archives and files a resolve would process, without fetching any archive.",
	Flags:  requestFlags,
	Action: plan,
}

var resolveCommand = &cli.Command{
	Name:  "resolve",
	Usage: "Produce a symbol archive for the missing symbols found in the build ID index.",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Path of the symbol archive.",
			EnvVars: env("OUTPUT"),
		},
		&cli.StringFlag{
			Name:    "dump-syms",
			Usage:   "Path to dump_syms.",
			EnvVars: env("DUMP_SYMS"),
		},
		&cli.StringFlag{
			Name:    "symbol-server",
			Usage:   "Symbols already published here are not regenerated.",
			EnvVars: env("SYMBOL_SERVER"),
		},
		&cli.BoolFlag{
			Name:  "no-server-check",
			Usage: "Regenerate symbols even if the symbol server has them.",
		},
		&cli.IntFlag{
			Name:    "resolve-workers",
			Usage:   "Archives processed in parallel.",
			EnvVars: env("RESOLVE_WORKERS"),
		},
		&cli.StringFlag{
			Name:    "manifest-prefix",
			Usage:   "Prefix of the manifest file inside the archive.",
			EnvVars: env("MANIFEST_PREFIX"),
		},
		&cli.StringFlag{Name: "s3-endpoint", Usage: "Upload the archive to this S3-compatible endpoint.", EnvVars: env("S3_ENDPOINT")},
		&cli.StringFlag{Name: "s3-region", EnvVars: env("S3_REGION")},
		&cli.StringFlag{Name: "s3-access-key", EnvVars: env("S3_ACCESS_KEY")},
		&cli.StringFlag{Name: "s3-secret-key", EnvVars: env("S3_SECRET_KEY")},
		&cli.StringFlag{Name: "s3-bucket", EnvVars: env("S3_BUCKET")},
		&cli.StringFlag{Name: "s3-prefix", EnvVars: env("S3_PREFIX")},
		&cli.BoolFlag{Name: "s3-use-ssl", EnvVars: env("S3_USE_SSL")},
	}, requestFlags...),
	Action: resolve,
}

func requests(cCtx *cli.Context, cfg config.Config) ([]model.MissingSymbolRequest, error) {
	if path := cCtx.String("report"); path != "" {
		return report.FromFile(afero.NewOsFs(), path)
	}
	src := report.Source{
		Fetcher:   cmdutil.NewFetcher(cfg),
		Fs:        afero.NewOsFs(),
		CacheDir:  cfg.StatePath("reports"),
		ReportURL: cfg.ReportURL,
		CrashURL:  cfg.CrashURL,
		Lookback:  cfg.Lookback,
	}
	if id := cCtx.String("crash"); id != "" {
		return src.FromCrash(cCtx.Context, id)
	}
	return src.Latest(cCtx.Context)
}

func plan(cCtx *cli.Context) error {
	ctx := cCtx.Context
	cfg := cmdutil.MustGetConfig(cCtx)
	state := cmdutil.MustOpenState(ctx, cfg)
	defer state.Close()

	reqs, err := requests(cCtx, cfg)
	if err != nil {
		return err
	}
	idx, _, err := cmdutil.IndexStore(cfg).Load(ctx, state.Scanned)
	if err != nil {
		return err
	}

	p, stats := pipeline.Resolve{Index: idx}.Plan(reqs)
	for _, owner := range p.Owners() {
		fmt.Println(owner)
		for _, t := range p[owner] {
			fmt.Printf("\t%s -> %s\n", t.Path, t.SymbolName)
		}
	}
	fmt.Printf("%d requests: %d matched, %d not in the index, %d malformed; %d archives to fetch.\n",
		stats.Requests, stats.Matched, stats.Unmatched, stats.Invalid, len(p))
	return nil
}

func resolve(cCtx *cli.Context) error {
	ctx := cCtx.Context
	cfg := cmdutil.MustGetConfig(cCtx)
	state := cmdutil.MustOpenState(ctx, cfg)
	defer state.Close()

	fetcher := cmdutil.NewFetcher(cfg)
	dpkg := cmdutil.MustGetDpkg(cfg)
	dumper := symbols.Dumper{
		Fs:        afero.NewOsFs(),
		TempDir:   cfg.StatePath("scratch"),
		Fetcher:   fetcher,
		Extractor: dpkg,
		Converter: cmdutil.MustGetDumpSyms(cfg),
	}
	if cfg.SymbolServer != "" && !cCtx.Bool("no-server-check") {
		server, err := symbols.NewServer(cfg.SymbolServer, fetcher)
		if err != nil {
			return err
		}
		dumper.Server = server
	}

	reqs, err := requests(cCtx, cfg)
	if err != nil {
		return err
	}
	if len(reqs) == 0 {
		fmt.Println("No missing symbols to resolve.")
		return nil
	}
	idx, _, err := cmdutil.IndexStore(cfg).Load(ctx, state.Scanned)
	if err != nil {
		return err
	}

	update, stop := cmdutil.StartSpinner("resolving")
	res, err := pipeline.Resolve{
		Index:          idx,
		Dumper:         dumper,
		Fs:             afero.NewOsFs(),
		Output:         cfg.Output,
		ManifestPrefix: cfg.ManifestPrefix,
		Workers:        cfg.ResolveWorkers,
		Ledger:         state.Ledger(),
		Uploader:       cmdutil.MustGetUploader(cfg),
		Progress: func(s pipeline.ResolveStats) {
			update(fmt.Sprintf("%d symbol files from %d archives (%d failed)", s.Symbols, s.Archives, s.ArchivesFailed))
		},
	}.Run(ctx, reqs)
	stop()
	if err != nil {
		return fmt.Errorf("resolve stopped: %w", err)
	}

	s := res.Stats
	fmt.Printf("%d requests: %d matched, %d not in the index, %d malformed.\n", s.Requests, s.Matched, s.Unmatched, s.Invalid)
	if res.Archive == nil {
		fmt.Println("No symbol files produced.")
		return nil
	}
	fmt.Printf("Wrote %d symbol files to %s (%d archives failed).\n", len(res.Archive.Symbols), res.Archive.Path, s.ArchivesFailed)
	if res.ObjectKey != "" {
		fmt.Printf("Uploaded to %s/%s.\n", cfg.S3.Bucket, res.ObjectKey)
	}
	return nil
}
