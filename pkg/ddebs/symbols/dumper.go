// Package symbols produces Breakpad symbol files for resolved binaries and
// collects them into a zip archive with a manifest.
package symbols

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/afero"
	"github.com/storacha/ddebsyms/pkg/ddebs/model"
	"github.com/storacha/ddebsyms/pkg/ddebs/resolve"
)

var log = logging.Logger("ddebs/symbols")

// Dumper fetches one archive, extracts the planned files from it and converts
// each of them.
type Dumper struct {
	// Fs holds the scratch directories. It must be the OS file system in
	// production, since extraction and conversion run external programs.
	Fs        afero.Fs
	TempDir   string
	Fetcher   Fetcher
	Extractor Extractor
	Converter Converter
	// Server, if set, filters out targets that are already published.
	Server Checker
}

// Process returns the symbol artifacts for targets in the archive at owner. A
// target whose conversion fails is logged and dropped; fetch and extraction
// failures fail the whole archive.
func (d Dumper) Process(ctx context.Context, owner string, targets []resolve.Target) ([]model.SymbolArtifact, error) {
	targets = d.unpublished(ctx, targets)
	if len(targets) == 0 {
		log.Infow("all symbols already published", "url", owner)
		return nil, nil
	}
	log.Infow("processing archive", "url", owner, "files", len(targets))

	base := d.TempDir
	if base == "" {
		base = os.TempDir()
	}
	if err := d.Fs.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("creating scratch parent %s: %w", base, err)
	}
	scratch, err := afero.TempDir(d.Fs, base, "ddebsyms-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	defer func() {
		if err := d.Fs.RemoveAll(scratch); err != nil {
			log.Warnw("removing scratch directory", "path", scratch, "err", err)
		}
	}()

	archivePath := filepath.Join(scratch, "archive.deb")
	f, err := d.Fs.Create(archivePath)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", archivePath, err)
	}
	if err := d.Fetcher.Fetch(ctx, owner, f); err != nil {
		f.Close()
		return nil, fmt.Errorf("fetching %s: %w", owner, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing %s: %w", archivePath, err)
	}

	names := make([]string, 0, len(targets))
	for _, t := range targets {
		names = append(names, t.Path)
	}
	root := filepath.Join(scratch, "root")
	found, err := d.Extractor.ExtractFiles(ctx, archivePath, root, names)
	if err != nil {
		return nil, fmt.Errorf("extracting from %s: %w", owner, err)
	}

	var artifacts []model.SymbolArtifact
	for _, t := range targets {
		local, ok := found[t.Path]
		if !ok {
			continue
		}
		contents, err := d.Converter.Convert(ctx, local)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warnw("converting symbols", "url", owner, "path", t.Path, "err", err)
			continue
		}
		if len(contents) == 0 {
			continue
		}
		log.Debugw("converted symbols", "url", owner, "path", t.Path, "symbol_file", t.SymbolName)
		artifacts = append(artifacts, model.SymbolArtifact{Name: t.SymbolName, Contents: contents})
	}
	return artifacts, nil
}

func (d Dumper) unpublished(ctx context.Context, targets []resolve.Target) []resolve.Target {
	if d.Server == nil {
		return targets
	}
	var out []resolve.Target
	for _, t := range targets {
		if d.Server.Has(ctx, t.SymbolName) {
			log.Debugw("symbol file already published", "symbol_file", t.SymbolName)
			continue
		}
		out = append(out, t)
	}
	return out
}
