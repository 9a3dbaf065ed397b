// Package cmdutil provides utility functions specifically for the ddebsyms CLI.
package cmdutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/afero"
	"github.com/storacha/ddebsyms/internal/config"
	"github.com/storacha/ddebsyms/pkg/ddebs/dedup"
	"github.com/storacha/ddebsyms/pkg/ddebs/dpkg"
	"github.com/storacha/ddebsyms/pkg/ddebs/fetch"
	"github.com/storacha/ddebsyms/pkg/ddebs/index"
	"github.com/storacha/ddebsyms/pkg/ddebs/model"
	"github.com/storacha/ddebsyms/pkg/ddebs/objstore"
	"github.com/storacha/ddebsyms/pkg/ddebs/pipeline"
	"github.com/storacha/ddebsyms/pkg/ddebs/sqlrepo"
	"github.com/storacha/ddebsyms/pkg/ddebs/symbols"
	"github.com/storacha/ddebsyms/pkg/ddebs/types"
	"github.com/urfave/cli/v2"
)

// Namespaces of the SQL cache backend.
const (
	ListedNamespace  = "listed"
	ScannedNamespace = "scanned"
)

// MustGetConfig layers the config file named by --config, the environment and
// the global flags.
func MustGetConfig(cCtx *cli.Context) config.Config {
	path := cCtx.String("config")
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(afero.NewOsFs(), path)
	if err != nil {
		log.Fatalf("loading config: %s", err)
	}
	cfg = config.Merge(cfg, FlagOverrides(cCtx))
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %s", err)
	}
	return cfg
}

// FlagOverrides returns the settings given on the command line or through
// their environment variables. Flags that were not set are left zero.
func FlagOverrides(cCtx *cli.Context) config.Config {
	var cfg config.Config
	str := func(name string, dst *string) {
		if cCtx.IsSet(name) {
			*dst = cCtx.String(name)
		}
	}
	num := func(name string, dst *int) {
		if cCtx.IsSet(name) {
			*dst = cCtx.Int(name)
		}
	}
	str("pool-url", &cfg.PoolURL)
	if cCtx.IsSet("packages-url") {
		cfg.PackagesURLs = cCtx.StringSlice("packages-url")
	}
	if cCtx.IsSet("arch") {
		cfg.Arches = cCtx.StringSlice("arch")
	}
	num("workers", &cfg.Workers)
	num("queue-size", &cfg.QueueSize)
	if cCtx.IsSet("timeout") {
		cfg.FetchTimeout = cCtx.Duration("timeout")
	}
	str("state-dir", &cfg.StateDir)
	str("backend", &cfg.Backend)
	str("dsn", &cfg.DSN)
	str("dpkg", &cfg.Dpkg)
	str("dump-syms", &cfg.DumpSyms)
	str("symbol-server", &cfg.SymbolServer)
	str("report-url", &cfg.ReportURL)
	str("crash-url", &cfg.CrashURL)
	num("lookback", &cfg.Lookback)
	num("resolve-workers", &cfg.ResolveWorkers)
	str("output", &cfg.Output)
	str("manifest-prefix", &cfg.ManifestPrefix)
	str("s3-endpoint", &cfg.S3.Endpoint)
	str("s3-region", &cfg.S3.Region)
	str("s3-access-key", &cfg.S3.AccessKey)
	str("s3-secret-key", &cfg.S3.SecretKey)
	str("s3-bucket", &cfg.S3.Bucket)
	str("s3-prefix", &cfg.S3.Prefix)
	if cCtx.IsSet("s3-use-ssl") {
		cfg.S3.UseSSL = cCtx.Bool("s3-use-ssl")
	}
	return cfg
}

// State is the persistent state of a run: the two caches and, for the SQL
// backends, the run ledger.
type State struct {
	Listed  dedup.Cache[bool]
	Scanned dedup.Cache[model.PackageScan]
	// Runs is nil for the JSON backend.
	Runs *sqlrepo.Runs
	db   *sql.DB
}

// Ledger returns the run ledger, or nil when the backend has none.
func (s *State) Ledger() pipeline.Ledger {
	if s.Runs == nil {
		return nil
	}
	return s.Runs
}

func (s *State) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// OpenState opens the caches of the configured backend, creating the state
// directory as needed.
func OpenState(ctx context.Context, cfg config.Config) (*State, error) {
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	if cfg.Backend == config.BackendJSON {
		fsys := afero.NewOsFs()
		return &State{
			Listed:  dedup.OpenFile[bool](fsys, cfg.StatePath("listed.json")),
			Scanned: dedup.OpenFile[model.PackageScan](fsys, cfg.StatePath("scanned.json")),
		}, nil
	}

	db, err := sqlrepo.Open(ctx, cfg.DatabaseDSN())
	if err != nil {
		return nil, err
	}
	listed, err := sqlrepo.NewCache[bool](db, ListedNamespace)
	if err != nil {
		db.Close()
		return nil, err
	}
	scanned, err := sqlrepo.NewCache[model.PackageScan](db, ScannedNamespace)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &State{Listed: listed, Scanned: scanned, Runs: sqlrepo.NewRuns(db), db: db}, nil
}

// MustOpenState is OpenState, exiting on failure.
func MustOpenState(ctx context.Context, cfg config.Config) *State {
	s, err := OpenState(ctx, cfg)
	if err != nil {
		log.Fatalf("opening state: %s", err)
	}
	return s
}

// IndexStore is where the build ID index is persisted.
func IndexStore(cfg config.Config) index.Store {
	return index.Store{Fs: afero.NewOsFs(), Path: cfg.StatePath("index.json")}
}

func NewFetcher(cfg config.Config) *fetch.HTTPFetcher {
	return fetch.NewHTTPFetcher(fetch.WithTimeout(cfg.FetchTimeout))
}

// MustGetDpkg resolves dpkg-deb. Without it no archive can be read, so a
// missing tool ends the program.
func MustGetDpkg(cfg config.Config) dpkg.Deb {
	d, err := dpkg.New(cfg.Dpkg)
	if err != nil {
		fatalTool(err)
	}
	return d
}

// MustGetDumpSyms resolves dump_syms.
func MustGetDumpSyms(cfg config.Config) symbols.DumpSyms {
	d, err := symbols.NewDumpSyms(cfg.DumpSyms)
	if err != nil {
		fatalTool(err)
	}
	return d
}

func fatalTool(err error) {
	var missing types.ErrMissingTool
	if errors.As(err, &missing) {
		log.Fatalf("%s is required but was not found; install it or set its path in the config: %s", missing.Tool, err)
	}
	log.Fatal(err)
}

// MustGetUploader returns the configured bucket uploader, or nil when no
// bucket is configured.
func MustGetUploader(cfg config.Config) objstore.Uploader {
	if !cfg.S3.Enabled() {
		return nil
	}
	u, err := objstore.NewS3Uploader(afero.NewOsFs(), cfg.S3)
	if err != nil {
		log.Fatalf("configuring object storage: %s", err)
	}
	return u
}

// RepositoryBase returns the repository root of the pool URL, against which
// Packages index Filename fields are resolved.
func RepositoryBase(poolURL string) (string, error) {
	u, err := url.Parse(poolURL)
	if err != nil {
		return "", fmt.Errorf("parsing pool URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("pool URL %q is not absolute", poolURL)
	}
	return u.Scheme + "://" + u.Host + "/", nil
}

// StartSpinner shows an animated status line on stderr until the returned
// function is called. It stays silent when stderr is not a terminal.
func StartSpinner(suffix string) (update func(string), stop func()) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr)) // Spinner: ⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏
	s.Suffix = " " + suffix
	s.Start()
	update = func(msg string) {
		s.Lock()
		s.Suffix = " " + msg
		s.Unlock()
	}
	return update, s.Stop
}
