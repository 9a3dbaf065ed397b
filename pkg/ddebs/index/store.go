package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/afero"
	"github.com/storacha/ddebsyms/pkg/ddebs/dedup"
	"github.com/storacha/ddebsyms/pkg/ddebs/model"
)

// Store persists the index next to the cache it was derived from.
type Store struct {
	Fs   afero.Fs
	Path string
}

// Load returns the persisted index if it was built from the cache in its
// current state, and otherwise rebuilds it from the cache and persists the
// result. A cache that was deleted or emptied since counts as changed. A
// persisted copy that cannot be decoded is rebuilt. Failing to persist a
// rebuilt index is logged; the index is still returned.
func (s Store) Load(ctx context.Context, cache dedup.Cache[model.PackageScan]) (*Index, Stats, error) {
	current, err := SourceOf(ctx, cache)
	if err != nil {
		return nil, Stats{}, err
	}

	idx, err := s.read()
	switch {
	case err == nil && idx.Source.Matches(current):
		log.Infow("loaded build ID index", "path", s.Path, "ids", idx.Len())
		return idx, Stats{}, nil
	case err == nil:
		log.Infow("scan cache changed, rebuilding index", "path", s.Path,
			"built_from", idx.Source.Packages, "cache", current.Packages)
	case !errors.Is(err, fs.ErrNotExist):
		log.Warnw("persisted index unusable, rebuilding", "path", s.Path, "err", err)
	}

	idx, stats, err := Build(ctx, cache)
	if err != nil {
		return nil, Stats{}, err
	}
	if err := s.Save(idx); err != nil {
		log.Warnw("persisting build ID index", "path", s.Path, "err", err)
	}
	return idx, stats, nil
}

// Save writes idx atomically.
func (s Store) Save(idx *Index) error {
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	return dedup.WriteFileAtomic(s.Fs, s.Path, data)
}

func (s Store) read() (*Index, error) {
	data, err := afero.ReadFile(s.Fs, s.Path)
	if err != nil {
		return nil, err
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.Path, err)
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]Entry)
	}
	return &idx, nil
}
