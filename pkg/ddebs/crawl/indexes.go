package crawl

import (
	"bytes"
	"context"
	"iter"
	"net/url"

	"github.com/storacha/ddebsyms/pkg/ddebs/dedup"
	"github.com/storacha/ddebsyms/pkg/ddebs/model"
	"github.com/storacha/ddebsyms/pkg/ddebs/packages"
)

// IndexCrawler enumerates archives from Packages index files, e.g.
// dists/noble/main/binary-amd64/Packages, instead of walking the pool.
type IndexCrawler struct {
	Fetcher Fetcher
	Scanned dedup.Cache[model.PackageScan]
	Arches  []string
}

// Crawl yields one batch per index holding its unscanned archives. Archive
// URLs are the index Filename fields resolved against base. An index that
// cannot be fetched or parsed is logged and skipped.
func (c IndexCrawler) Crawl(ctx context.Context, indexURLs []string, base string) iter.Seq[model.Batch] {
	return func(yield func(model.Batch) bool) {
		baseURL, err := url.Parse(base)
		if err != nil {
			log.Errorw("parsing repository base URL", "url", base, "err", err)
			return
		}
		for _, indexURL := range indexURLs {
			if ctx.Err() != nil {
				return
			}
			batch, err := c.batch(ctx, baseURL, indexURL)
			if err != nil {
				log.Warnw("reading packages index, skipping", "url", indexURL, "err", err)
				continue
			}
			if !yield(batch) {
				return
			}
		}
	}
}

func (c IndexCrawler) batch(ctx context.Context, base *url.URL, indexURL string) (model.Batch, error) {
	dir, err := model.NewDirectoryEntry(indexURL)
	if err != nil {
		return model.Batch{}, err
	}
	var buf bytes.Buffer
	if err := c.Fetcher.Fetch(ctx, indexURL, &buf); err != nil {
		return model.Batch{}, err
	}
	idx, err := packages.Parse(&buf)
	if err != nil {
		return model.Batch{}, err
	}

	urls := make([]string, 0, len(idx.Order))
	for _, filename := range idx.Order {
		ref, err := url.Parse(filename)
		if err != nil {
			log.Warnw("bad filename in packages index", "index", indexURL, "filename", filename, "err", err)
			continue
		}
		urls = append(urls, base.ResolveReference(ref).String())
	}
	archives, err := pending(ctx, c.Scanned, c.Arches, urls)
	if err != nil {
		return model.Batch{}, err
	}
	log.Infow("read packages index", "url", indexURL, "packages", len(idx.Order), "pending", len(archives))
	return model.Batch{Dir: dir, Archives: archives}, nil
}
