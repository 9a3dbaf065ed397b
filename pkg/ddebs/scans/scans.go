// Package scans turns a package archive URL into the set of build IDs carried
// by the files it installs.
package scans

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/multiformats/go-multihash"
	"github.com/spf13/afero"
	"github.com/storacha/ddebsyms/pkg/ddebs/buildid"
	"github.com/storacha/ddebsyms/pkg/ddebs/model"
	"github.com/storacha/ddebsyms/pkg/ddebs/scans/walker"
)

var log = logging.Logger("ddebs/scans")

// WalkerFn is a function type that defines how to walk the extracted tree.
type WalkerFn func(fsys fs.FS, root string, visitor walker.FileVisitor) error

// Scanner is a dependency container for scanning archives.
type Scanner struct {
	// Fs holds the scratch directories. Production code uses the OS file
	// system so that external unpack tools can write into it.
	Fs afero.Fs
	// TempDir is the parent of the per-archive scratch directories. Empty
	// means the system temp directory.
	TempDir  string
	Fetcher  Fetcher
	Unpacker Unpacker
	Prober   Prober
	WalkerFn WalkerFn
}

// Process fetches the archive at url, unpacks it into a scratch directory and
// probes every regular file in it. The scratch directory is removed on every
// return path. A file whose probe fails is logged and skipped; fetch, unpack
// and walk failures fail the whole archive.
func (s Scanner) Process(ctx context.Context, url string) (*model.PackageScan, error) {
	base := s.TempDir
	if base == "" {
		base = os.TempDir()
	}
	if err := s.Fs.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("creating scratch parent %s: %w", base, err)
	}
	scratch, err := afero.TempDir(s.Fs, base, "ddebscan-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	defer func() {
		if err := s.Fs.RemoveAll(scratch); err != nil {
			log.Warnw("removing scratch directory", "path", scratch, "err", err)
		}
	}()

	archivePath := filepath.Join(scratch, "archive.deb")
	digest, err := s.fetch(ctx, url, archivePath)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}

	root := filepath.Join(scratch, "root")
	if err := s.Fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating extraction root: %w", err)
	}
	if err := s.Unpacker.Unpack(ctx, archivePath, root); err != nil {
		return nil, fmt.Errorf("unpacking %s: %w", url, err)
	}

	files, err := s.probeTree(ctx, url, afero.NewIOFS(afero.NewBasePathFs(s.Fs, root)))
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", url, err)
	}

	log.Infow("scanned archive", "url", url, "binaries", len(files))
	return &model.PackageScan{
		Files:     files,
		ScannedAt: time.Now().UTC(),
		Digest:    digest,
	}, nil
}

// fetch downloads url to path and returns the hex multihash of its bytes.
func (s Scanner) fetch(ctx context.Context, url, path string) (string, error) {
	f, err := s.Fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	h := sha256.New()
	if err := s.Fetcher.Fetch(ctx, url, io.MultiWriter(f, h)); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", path, err)
	}
	mh, err := multihash.Encode(h.Sum(nil), multihash.SHA2_256)
	if err != nil {
		return "", fmt.Errorf("encoding digest: %w", err)
	}
	return multihash.Multihash(mh).HexString(), nil
}

func (s Scanner) probeTree(ctx context.Context, url string, fsys fs.FS) ([]model.FileID, error) {
	walk := s.WalkerFn
	if walk == nil {
		walk = walker.WalkFiles
	}

	files := []model.FileID{}
	err := walk(fsys, ".", walker.FileVisitorFunc(func(path string, _ fs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, err := s.Prober.Probe(fsys, path)
		if err != nil {
			log.Warnw("probe failed, treating as no build ID", "url", url, "path", path, "err", err)
			return nil
		}
		if id == "" {
			return nil
		}
		if !buildid.Valid(id) {
			log.Debugw("ignoring malformed build ID", "url", url, "path", path, "id", id)
			return nil
		}
		files = append(files, model.FileID{Path: "/" + path, BuildID: strings.ToLower(id)})
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return files, nil
}
