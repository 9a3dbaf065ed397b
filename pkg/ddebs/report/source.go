// Package report obtains the set of missing symbols to resolve, either from a
// dated missing-symbols report or from a single processed crash.
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/afero"
	"github.com/storacha/ddebsyms/pkg/ddebs/dedup"
	"github.com/storacha/ddebsyms/pkg/ddebs/model"
)

var log = logging.Logger("ddebs/report")

// DefaultLookback is how many days back Latest searches for a report.
const DefaultLookback = 5

// Fetcher retrieves a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string, w io.Writer) error
}

// Source locates missing-symbol reports.
type Source struct {
	Fetcher Fetcher
	// Fs and CacheDir hold downloaded reports, by file name. A cached report
	// is never fetched again.
	Fs       afero.Fs
	CacheDir string
	// ReportURL contains "{date}", replaced with a YYYYMMDD date.
	ReportURL string
	// CrashURL contains "{crash_id}".
	CrashURL string
	// Lookback is the number of days, today included, to try. Zero means
	// DefaultLookback.
	Lookback int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Latest returns the requests of the most recent report available, trying
// today first and then each previous day. Finding no report is not an error.
func (s Source) Latest(ctx context.Context) ([]model.MissingSymbolRequest, error) {
	if s.ReportURL == "" {
		return nil, fmt.Errorf("no missing symbols report URL configured")
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	days := s.Lookback
	if days <= 0 {
		days = DefaultLookback
	}

	for n := range days {
		date := now().AddDate(0, 0, -n).Format("20060102")
		u := strings.ReplaceAll(s.ReportURL, "{date}", date)
		data, err := s.report(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Debugw("no missing symbols report", "url", u, "err", err)
			continue
		}
		if len(data) == 0 {
			continue
		}
		reqs, err := ParseCSV(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		log.Infow("read missing symbols report", "url", u, "requests", len(reqs))
		return reqs, nil
	}
	log.Warnw("no missing symbols report found", "days", days)
	return nil, nil
}

func (s Source) report(ctx context.Context, u string) ([]byte, error) {
	cached := ""
	if s.Fs != nil && s.CacheDir != "" {
		cached = filepath.Join(s.CacheDir, reportName(u))
		if data, err := afero.ReadFile(s.Fs, cached); err == nil {
			log.Debugw("using cached report", "path", cached)
			return data, nil
		}
	}

	var buf bytes.Buffer
	if err := s.Fetcher.Fetch(ctx, u, &buf); err != nil {
		return nil, err
	}
	if cached != "" {
		if err := dedup.WriteFileAtomic(s.Fs, cached, buf.Bytes()); err != nil {
			log.Warnw("caching report", "path", cached, "err", err)
		}
	}
	return buf.Bytes(), nil
}

func reportName(u string) string {
	if parsed, err := url.Parse(u); err == nil {
		return path.Base(parsed.Path)
	}
	return path.Base(u)
}

// FromCrash returns the modules with missing symbols in one processed crash.
func (s Source) FromCrash(ctx context.Context, crashID string) ([]model.MissingSymbolRequest, error) {
	if s.CrashURL == "" {
		return nil, fmt.Errorf("no crash report URL configured")
	}
	u := strings.ReplaceAll(s.CrashURL, "{crash_id}", url.QueryEscape(crashID))
	var buf bytes.Buffer
	if err := s.Fetcher.Fetch(ctx, u, &buf); err != nil {
		return nil, fmt.Errorf("fetching crash %s: %w", crashID, err)
	}
	reqs, err := ParseCrash(&buf)
	if err != nil {
		return nil, fmt.Errorf("crash %s: %w", crashID, err)
	}
	log.Infow("read crash report", "crash_id", crashID, "requests", len(reqs))
	return reqs, nil
}

// FromFile parses a missing-symbols report stored at path.
func FromFile(fsys afero.Fs, path string) ([]model.MissingSymbolRequest, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening report: %w", err)
	}
	defer f.Close()
	return ParseCSV(f)
}
