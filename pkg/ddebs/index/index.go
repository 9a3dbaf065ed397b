// Package index derives the build ID index from the scan cache: a mapping from
// the normalized debug identifier to the file that carries it and the archive
// that installs that file. The index holds nothing the cache does not, so it
// can be discarded and rebuilt at any time.
package index

import (
	"context"
	"fmt"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/storacha/ddebsyms/pkg/ddebs/buildid"
	"github.com/storacha/ddebsyms/pkg/ddebs/dedup"
	"github.com/storacha/ddebsyms/pkg/ddebs/model"
)

var log = logging.Logger("ddebs/index")

// Entry is where a build ID was seen.
type Entry struct {
	// BuildID is the identifier as the probe reported it.
	BuildID   string    `json:"build_id"`
	Path      string    `json:"path"`
	Owner     string    `json:"owner"`
	ScannedAt time.Time `json:"scanned_at"`
}

// Index maps normalized identifiers to entries.
type Index struct {
	Entries map[string]Entry `json:"entries"`
	// Source is the state of the cache the index was built from.
	Source Source `json:"source"`
}

// Source identifies a version of the scan cache. A persisted index is only
// reused while the cache still reports the same Source.
type Source struct {
	ModTime  time.Time `json:"mod_time"`
	Packages int       `json:"packages"`
}

// Matches reports whether s and o describe the same cache state.
func (s Source) Matches(o Source) bool {
	return s.ModTime.Equal(o.ModTime) && s.Packages == o.Packages
}

// SourceOf reports the current state of cache.
func SourceOf(ctx context.Context, cache dedup.Cache[model.PackageScan]) (Source, error) {
	mod, err := cache.ModTime(ctx)
	if err != nil {
		return Source{}, fmt.Errorf("checking cache age: %w", err)
	}
	n, err := cache.Len(ctx)
	if err != nil {
		return Source{}, fmt.Errorf("counting cache entries: %w", err)
	}
	return Source{ModTime: mod, Packages: n}, nil
}

// Stats describes an index build.
type Stats struct {
	Packages   int
	Facts      int
	Collisions int
	Invalid    int
	// Rebuilt is false when the index was loaded from its persisted copy.
	Rebuilt bool
}

// Lookup finds id, given either as a raw build ID or in normalized form.
func (i *Index) Lookup(id string) (Entry, bool) {
	key, err := buildid.Canonical(id)
	if err != nil {
		return Entry{}, false
	}
	e, ok := i.Entries[key]
	return e, ok
}

func (i *Index) Len() int {
	return len(i.Entries)
}

// Build walks the scan cache in key order and indexes every fact. When two
// archives claim the same identifier the most recently scanned one wins, and
// on equal scan times the one later in key order. Each such collision is
// logged and counted.
//
// The cache state is read before the walk, so a write that lands during the
// build leaves the index stale rather than labelled current.
func Build(ctx context.Context, cache dedup.Cache[model.PackageScan]) (*Index, Stats, error) {
	mod, err := cache.ModTime(ctx)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("checking cache age: %w", err)
	}
	idx := &Index{Entries: make(map[string]Entry)}
	stats := Stats{Rebuilt: true}

	err = cache.Range(ctx, func(owner string, scan model.PackageScan) error {
		stats.Packages++
		for _, fact := range scan.Facts(owner) {
			key, err := buildid.Normalize(fact.BuildID)
			if err != nil {
				stats.Invalid++
				log.Debugw("skipping invalid build ID", "owner", owner, "path", fact.Path, "id", fact.BuildID)
				continue
			}
			stats.Facts++
			entry := Entry{BuildID: fact.BuildID, Path: fact.Path, Owner: owner, ScannedAt: scan.ScannedAt}

			prev, ok := idx.Entries[key]
			if ok && prev.Owner != owner {
				stats.Collisions++
				winner := entry
				if prev.ScannedAt.After(entry.ScannedAt) {
					winner = prev
				}
				log.Warnw("build ID claimed by more than one archive",
					"id", key, "previous", prev.Owner, "current", owner, "kept", winner.Owner)
				entry = winner
			}
			idx.Entries[key] = entry
		}
		return nil
	})
	if err != nil {
		return nil, Stats{}, fmt.Errorf("reading scan cache: %w", err)
	}
	idx.Source = Source{ModTime: mod, Packages: stats.Packages}

	log.Infow("built build ID index", "packages", stats.Packages, "ids", idx.Len(), "collisions", stats.Collisions)
	return idx, stats, nil
}
