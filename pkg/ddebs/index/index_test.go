package index_test

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/storacha/ddebsyms/pkg/ddebs/dedup"
	"github.com/storacha/ddebsyms/pkg/ddebs/index"
	"github.com/storacha/ddebsyms/pkg/ddebs/model"
	"github.com/stretchr/testify/require"
)

const (
	rawFoo        = "99c2106c44189e354e1826aa285a0ccf7cbdf726"
	normalizedFoo = "6C10C2991844359E4E1826AA285A0CCF0"
	rawBar        = "0123456789abcdef0123456789abcdef01234567"

	archiveA = "http://ddebs.example.com/pool/main/a/a/liba-dbgsym_1_amd64.ddeb"
	archiveB = "http://ddebs.example.com/pool/main/b/b/libb-dbgsym_1_amd64.ddeb"
)

var (
	older = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
)

func TestBuild(t *testing.T) {
	t.Run("indexes every fact under its normalized ID", func(t *testing.T) {
		cache := dedup.NewMemory[model.PackageScan]()
		require.NoError(t, cache.Set(t.Context(), archiveA, model.PackageScan{
			Files: []model.FileID{
				{Path: "/usr/lib/libfoo.so", BuildID: rawFoo},
				{Path: "/usr/lib/libbar.so", BuildID: rawBar},
			},
			ScannedAt: older,
		}))
		require.NoError(t, cache.Set(t.Context(), archiveB, model.PackageScan{Files: []model.FileID{}}))

		idx, stats, err := index.Build(t.Context(), cache)
		require.NoError(t, err)
		require.Equal(t, 2, stats.Packages)
		require.Equal(t, 2, stats.Facts)
		require.Zero(t, stats.Collisions)
		require.True(t, stats.Rebuilt)
		require.Equal(t, 2, idx.Len())

		want := index.Entry{BuildID: rawFoo, Path: "/usr/lib/libfoo.so", Owner: archiveA, ScannedAt: older}
		require.Equal(t, want, idx.Entries[normalizedFoo])

		got, ok := idx.Lookup(rawFoo)
		require.True(t, ok)
		require.Equal(t, want, got)
		got, ok = idx.Lookup(normalizedFoo)
		require.True(t, ok)
		require.Equal(t, want, got)
	})

	t.Run("unknown and malformed lookups miss", func(t *testing.T) {
		idx, _, err := index.Build(t.Context(), dedup.NewMemory[model.PackageScan]())
		require.NoError(t, err)
		_, ok := idx.Lookup(rawFoo)
		require.False(t, ok)
		_, ok = idx.Lookup("not-an-id")
		require.False(t, ok)
	})

	t.Run("the most recently scanned archive wins a collision", func(t *testing.T) {
		cache := dedup.NewMemory[model.PackageScan]()
		require.NoError(t, cache.Set(t.Context(), archiveA, model.PackageScan{
			Files:     []model.FileID{{Path: "/usr/lib/a.so", BuildID: rawFoo}},
			ScannedAt: newer,
		}))
		require.NoError(t, cache.Set(t.Context(), archiveB, model.PackageScan{
			Files:     []model.FileID{{Path: "/usr/lib/b.so", BuildID: rawFoo}},
			ScannedAt: older,
		}))

		idx, stats, err := index.Build(t.Context(), cache)
		require.NoError(t, err)
		require.Equal(t, 1, stats.Collisions)
		got, _ := idx.Lookup(rawFoo)
		require.Equal(t, archiveA, got.Owner)
		require.Equal(t, "/usr/lib/a.so", got.Path)
	})

	t.Run("equal scan times fall back to key order", func(t *testing.T) {
		cache := dedup.NewMemory[model.PackageScan]()
		for _, owner := range []string{archiveB, archiveA} {
			require.NoError(t, cache.Set(t.Context(), owner, model.PackageScan{
				Files:     []model.FileID{{Path: "/usr/lib/x.so", BuildID: rawFoo}},
				ScannedAt: older,
			}))
		}
		idx, stats, err := index.Build(t.Context(), cache)
		require.NoError(t, err)
		require.Equal(t, 1, stats.Collisions)
		got, _ := idx.Lookup(rawFoo)
		require.Equal(t, archiveB, got.Owner)
	})

	t.Run("the same ID twice in one archive is not a collision", func(t *testing.T) {
		cache := dedup.NewMemory[model.PackageScan]()
		require.NoError(t, cache.Set(t.Context(), archiveA, model.PackageScan{
			Files: []model.FileID{
				{Path: "/usr/lib/libfoo.so.1", BuildID: rawFoo},
				{Path: "/usr/lib/debug/.build-id/99/c2106c44189e354e1826aa285a0ccf7cbdf726.debug", BuildID: rawFoo},
			},
		}))
		_, stats, err := index.Build(t.Context(), cache)
		require.NoError(t, err)
		require.Zero(t, stats.Collisions)
		require.Equal(t, 2, stats.Facts)
	})

	t.Run("malformed IDs are counted and skipped", func(t *testing.T) {
		cache := dedup.NewMemory[model.PackageScan]()
		require.NoError(t, cache.Set(t.Context(), archiveA, model.PackageScan{
			Files: []model.FileID{{Path: "/usr/lib/x.so", BuildID: "abc"}},
		}))
		idx, stats, err := index.Build(t.Context(), cache)
		require.NoError(t, err)
		require.Equal(t, 1, stats.Invalid)
		require.Zero(t, idx.Len())
	})
}

func TestStore(t *testing.T) {
	seed := func(t *testing.T) *dedup.Memory[model.PackageScan] {
		cache := dedup.NewMemory[model.PackageScan]()
		require.NoError(t, cache.Set(t.Context(), archiveA, model.PackageScan{
			Files:     []model.FileID{{Path: "/usr/lib/libfoo.so", BuildID: rawFoo}},
			ScannedAt: older,
		}))
		return cache
	}

	t.Run("builds and persists when no copy exists", func(t *testing.T) {
		store := index.Store{Fs: afero.NewMemMapFs(), Path: "/state/index.json"}
		idx, stats, err := store.Load(t.Context(), seed(t))
		require.NoError(t, err)
		require.True(t, stats.Rebuilt)
		require.Equal(t, 1, idx.Len())

		exists, err := afero.Exists(store.Fs, store.Path)
		require.NoError(t, err)
		require.True(t, exists)
	})

	t.Run("loads a copy built from the current cache", func(t *testing.T) {
		store := index.Store{Fs: afero.NewMemMapFs(), Path: "/state/index.json"}
		cache := seed(t)
		first, _, err := store.Load(t.Context(), cache)
		require.NoError(t, err)

		second, stats, err := store.Load(t.Context(), cache)
		require.NoError(t, err)
		require.False(t, stats.Rebuilt)
		require.Equal(t, first.Entries, second.Entries)
	})

	t.Run("rebuilds when the cache changed since", func(t *testing.T) {
		store := index.Store{Fs: afero.NewMemMapFs(), Path: "/state/index.json"}
		cache := seed(t)
		_, _, err := store.Load(t.Context(), cache)
		require.NoError(t, err)

		require.NoError(t, cache.Set(t.Context(), archiveB, model.PackageScan{
			Files: []model.FileID{{Path: "/usr/lib/libbar.so", BuildID: rawBar}},
		}))
		idx, stats, err := store.Load(t.Context(), cache)
		require.NoError(t, err)
		require.True(t, stats.Rebuilt)
		_, ok := idx.Lookup(rawBar)
		require.True(t, ok)
	})

	t.Run("rebuilds when the cache was deleted", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		store := index.Store{Fs: fsys, Path: "/state/index.json"}
		cache := dedup.OpenFile[model.PackageScan](fsys, "/state/scanned.json")
		require.NoError(t, cache.Set(t.Context(), archiveA, model.PackageScan{
			Files: []model.FileID{{Path: "/usr/lib/libfoo.so", BuildID: rawFoo}},
		}))
		idx, _, err := store.Load(t.Context(), cache)
		require.NoError(t, err)
		require.Equal(t, 1, idx.Len())

		require.NoError(t, fsys.Remove("/state/scanned.json"))
		reopened := dedup.OpenFile[model.PackageScan](fsys, "/state/scanned.json")
		idx, stats, err := store.Load(t.Context(), reopened)
		require.NoError(t, err)
		require.True(t, stats.Rebuilt)
		require.Zero(t, idx.Len())
		_, ok := idx.Lookup(rawFoo)
		require.False(t, ok)
	})

	t.Run("rebuilds when the cache was replaced by one of another size", func(t *testing.T) {
		store := index.Store{Fs: afero.NewMemMapFs(), Path: "/state/index.json"}
		cache := seed(t)
		_, _, err := store.Load(t.Context(), cache)
		require.NoError(t, err)

		mod, err := cache.ModTime(t.Context())
		require.NoError(t, err)
		replaced := staticCache{Cache: dedup.NewMemory[model.PackageScan](), mod: mod}
		idx, stats, err := store.Load(t.Context(), replaced)
		require.NoError(t, err)
		require.True(t, stats.Rebuilt)
		require.Zero(t, idx.Len())
	})

	t.Run("records the cache state it was built from", func(t *testing.T) {
		cache := seed(t)
		idx, _, err := index.Build(t.Context(), cache)
		require.NoError(t, err)
		current, err := index.SourceOf(t.Context(), cache)
		require.NoError(t, err)
		require.True(t, idx.Source.Matches(current))
		require.Equal(t, 1, idx.Source.Packages)
	})

	t.Run("rebuilds over a corrupt copy", func(t *testing.T) {
		store := index.Store{Fs: afero.NewMemMapFs(), Path: "/state/index.json"}
		cache := seed(t)
		require.NoError(t, afero.WriteFile(store.Fs, store.Path, []byte("{not json"), 0o644))

		idx, stats, err := store.Load(t.Context(), cache)
		require.NoError(t, err)
		require.True(t, stats.Rebuilt)
		_, ok := idx.Lookup(rawFoo)
		require.True(t, ok)
	})

	t.Run("a persist failure still returns the index", func(t *testing.T) {
		store := index.Store{Fs: afero.NewReadOnlyFs(afero.NewMemMapFs()), Path: "/state/index.json"}
		idx, _, err := store.Load(t.Context(), seed(t))
		require.NoError(t, err)
		require.Equal(t, 1, idx.Len())
	})
}

// staticCache reports a fixed modification time regardless of its contents.
type staticCache struct {
	dedup.Cache[model.PackageScan]
	mod time.Time
}

func (c staticCache) ModTime(context.Context) (time.Time, error) {
	return c.mod, nil
}
