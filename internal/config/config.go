// Package config holds the settings shared by the ddebsyms commands. Values are
// layered: DefaultConfig, then the YAML config file, then the environment and
// flags applied by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/afero"
	"github.com/storacha/ddebsyms/pkg/ddebs/objstore"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPoolURL      = "http://ddebs.ubuntu.com/pool/main/"
	DefaultReportURL    = "https://crash-analysis.mozilla.com/crash_analysis/{date}/{date}-missing-symbols.txt"
	DefaultCrashURL     = "https://crash-stats.mozilla.com/api/ProcessedCrash/?crash_id={crash_id}&datatype=processed"
	DefaultSymbolServer = "https://s3-us-west-2.amazonaws.com/org.mozilla.crash-stats.symbols-public/v1/"
	DefaultOutput       = "symbols.zip"
	DefaultStateDirName = ".ddebsyms"
	DefaultFileName     = "config.yaml"
)

// Cache backends.
const (
	BackendJSON     = "json"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Config struct {
	PoolURL      string        `yaml:"pool_url"`
	PackagesURLs []string      `yaml:"packages_urls"`
	Arches       []string      `yaml:"arches"`
	Workers      int           `yaml:"workers"`
	QueueSize    int           `yaml:"queue_size"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// StateDir holds the caches, the index and downloaded reports.
	StateDir string `yaml:"state_dir"`
	Backend  string `yaml:"backend"`
	// DSN is the database for the sqlite and postgres backends. Empty with
	// sqlite means a database file in StateDir.
	DSN string `yaml:"dsn"`

	Dpkg           string `yaml:"dpkg"`
	DumpSyms       string `yaml:"dump_syms"`
	SymbolServer   string `yaml:"symbol_server"`
	ReportURL      string `yaml:"report_url"`
	CrashURL       string `yaml:"crash_url"`
	Lookback       int    `yaml:"lookback_days"`
	ResolveWorkers int    `yaml:"resolve_workers"`
	Output         string `yaml:"output"`
	ManifestPrefix string `yaml:"manifest_prefix"`

	S3 objstore.Config `yaml:"s3"`
}

// DefaultDir returns ~/.ddebsyms, or a relative .ddebsyms when there is no
// home directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultStateDirName
	}
	return filepath.Join(home, DefaultStateDirName)
}

// DefaultPath is where the config file is looked for when none is given.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), DefaultFileName)
}

func DefaultConfig() Config {
	return Config{
		PoolURL:      DefaultPoolURL,
		FetchTimeout: 5 * time.Minute,
		StateDir:     DefaultDir(),
		Backend:      BackendJSON,
		SymbolServer: DefaultSymbolServer,
		ReportURL:    DefaultReportURL,
		CrashURL:     DefaultCrashURL,
		Output:       DefaultOutput,
	}
}

// Load reads the YAML file at path over DefaultConfig. A missing file is not an
// error; the defaults are returned.
func Load(fsys afero.Fs, path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := afero.ReadFile(fsys, path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return Merge(cfg, file), nil
}

// Merge returns base with every non-zero field of overlay applied on top.
func Merge(base, overlay Config) Config {
	out := base
	setString(&out.PoolURL, overlay.PoolURL)
	if len(overlay.PackagesURLs) > 0 {
		out.PackagesURLs = slices.Clone(overlay.PackagesURLs)
	}
	if len(overlay.Arches) > 0 {
		out.Arches = slices.Clone(overlay.Arches)
	}
	setInt(&out.Workers, overlay.Workers)
	setInt(&out.QueueSize, overlay.QueueSize)
	if overlay.FetchTimeout > 0 {
		out.FetchTimeout = overlay.FetchTimeout
	}
	setString(&out.StateDir, overlay.StateDir)
	setString(&out.Backend, overlay.Backend)
	setString(&out.DSN, overlay.DSN)
	setString(&out.Dpkg, overlay.Dpkg)
	setString(&out.DumpSyms, overlay.DumpSyms)
	setString(&out.SymbolServer, overlay.SymbolServer)
	setString(&out.ReportURL, overlay.ReportURL)
	setString(&out.CrashURL, overlay.CrashURL)
	setInt(&out.Lookback, overlay.Lookback)
	setInt(&out.ResolveWorkers, overlay.ResolveWorkers)
	setString(&out.Output, overlay.Output)
	setString(&out.ManifestPrefix, overlay.ManifestPrefix)

	setString(&out.S3.Endpoint, overlay.S3.Endpoint)
	setString(&out.S3.Region, overlay.S3.Region)
	setString(&out.S3.AccessKey, overlay.S3.AccessKey)
	setString(&out.S3.SecretKey, overlay.S3.SecretKey)
	setString(&out.S3.Bucket, overlay.S3.Bucket)
	setString(&out.S3.Prefix, overlay.S3.Prefix)
	out.S3.UseSSL = out.S3.UseSSL || overlay.S3.UseSSL
	return out
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// Validate checks the settings every command relies on.
func (c Config) Validate() error {
	if c.PoolURL == "" && len(c.PackagesURLs) == 0 {
		return errors.New("a pool URL or at least one Packages index URL is required")
	}
	if c.StateDir == "" {
		return errors.New("state directory is required")
	}
	if c.Workers < 0 || c.QueueSize < 0 || c.ResolveWorkers < 0 || c.Lookback < 0 {
		return errors.New("worker, queue and lookback settings must not be negative")
	}
	switch c.Backend {
	case BackendJSON, BackendSQLite:
	case BackendPostgres:
		if c.DSN == "" {
			return errors.New("the postgres backend requires a DSN")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Backend)
	}
	return nil
}

// StatePath returns the path of name inside the state directory.
func (c Config) StatePath(name string) string {
	return filepath.Join(c.StateDir, name)
}

// DatabaseDSN returns the DSN of the sqlite or postgres backend.
func (c Config) DatabaseDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return c.StatePath("ddebsyms.db")
}
