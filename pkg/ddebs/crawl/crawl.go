// Package crawl enumerates package archives in a repository that have not been
// scanned yet.
//
// A pool is laid out as root/prefix/package/archive, e.g.
// pool/main/f/foo/libfoo1-dbgsym_1.0_amd64.ddeb. The crawler lists one prefix
// directory at a time, then each package directory inside it, and yields the
// unscanned archives of each package directory as a batch. A package
// directory is recorded as listed only once its whole batch has been scanned,
// via MarkListed, so an interrupted crawl resumes where it stopped.
package crawl

import (
	"context"
	"iter"
	"net/url"
	"path"
	"slices"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/storacha/ddebsyms/pkg/ddebs/dedup"
	"github.com/storacha/ddebsyms/pkg/ddebs/model"
)

var log = logging.Logger("ddebs/crawl")

// DefaultArches are the architecture tags kept by default: 64-bit and 32-bit
// x86.
var DefaultArches = []string{"amd64", "i386"}

// ArchOf returns the architecture tag of an archive URL: the part of the file
// name stem after its last underscore.
func ArchOf(archiveURL string) string {
	p := archiveURL
	if u, err := url.Parse(archiveURL); err == nil {
		p = u.Path
	}
	base := path.Base(p)
	stem := strings.TrimSuffix(base, path.Ext(base))
	i := strings.LastIndexByte(stem, '_')
	if i < 0 {
		return ""
	}
	return stem[i+1:]
}

// Crawler walks an HTML pool listing.
type Crawler struct {
	Lister Lister
	// Listed holds package directory URLs whose archives have all been
	// scanned.
	Listed dedup.Cache[bool]
	// Scanned holds archive URLs that have been scanned.
	Scanned dedup.Cache[model.PackageScan]
	// Arches restricts archives by architecture tag. Empty means
	// DefaultArches.
	Arches []string
}

// Crawl yields one batch per package directory that has not been fully
// scanned, in listing order. A listing that cannot be fetched is logged and
// its subtree skipped for this run. Iteration stops when ctx is done.
func (c Crawler) Crawl(ctx context.Context, root string) iter.Seq[model.Batch] {
	return func(yield func(model.Batch) bool) {
		prefixes, err := c.Lister.List(ctx, root)
		if err != nil {
			log.Errorw("listing repository root", "url", root, "err", err)
			return
		}
		var skipped, yielded int
		defer func() {
			log.Infow("crawl finished", "root", root, "batches", yielded, "already_listed", skipped)
		}()

		for _, prefix := range directories(prefixes) {
			if ctx.Err() != nil {
				return
			}
			dirs, err := c.Lister.List(ctx, prefix)
			if err != nil {
				log.Warnw("listing prefix directory, skipping", "url", prefix, "err", err)
				continue
			}
			log.Debugw("listed prefix", "url", prefix, "packages", len(dirs))

			for _, dirURL := range directories(dirs) {
				if ctx.Err() != nil {
					return
				}
				done, ok, err := c.Listed.Get(ctx, dirURL)
				if err != nil {
					log.Warnw("reading listed cache", "url", dirURL, "err", err)
				} else if ok && done {
					skipped++
					continue
				}
				batch, err := c.batch(ctx, dirURL)
				if err != nil {
					log.Warnw("listing package directory, skipping", "url", dirURL, "err", err)
					continue
				}
				yielded++
				if !yield(batch) {
					return
				}
			}
		}
	}
}

func (c Crawler) batch(ctx context.Context, dirURL string) (model.Batch, error) {
	dir, err := model.NewDirectoryEntry(dirURL)
	if err != nil {
		return model.Batch{}, err
	}
	entries, err := c.Lister.List(ctx, dirURL)
	if err != nil {
		return model.Batch{}, err
	}
	archives, err := pending(ctx, c.Scanned, c.Arches, entries)
	if err != nil {
		return model.Batch{}, err
	}
	return model.Batch{Dir: dir, Archives: archives}, nil
}

// MarkListed records that every archive in the batch has been scanned.
func (c Crawler) MarkListed(ctx context.Context, batch model.Batch) error {
	return c.Listed.Set(ctx, batch.Dir.URL, true)
}

// pending filters urls down to archives of an allowed architecture that are
// not in scanned.
func pending(ctx context.Context, scanned dedup.Cache[model.PackageScan], arches []string, urls []string) ([]model.RepositoryEntry, error) {
	if len(arches) == 0 {
		arches = DefaultArches
	}
	var out []model.RepositoryEntry
	for _, u := range urls {
		if strings.HasSuffix(u, "/") {
			continue
		}
		arch := ArchOf(u)
		if !slices.Contains(arches, arch) {
			continue
		}
		_, ok, err := scanned.Get(ctx, u)
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}
		entry, err := model.NewArchiveEntry(u, arch)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func directories(urls []string) []string {
	var dirs []string
	for _, u := range urls {
		if strings.HasSuffix(u, "/") {
			dirs = append(dirs, u)
		}
	}
	return dirs
}
