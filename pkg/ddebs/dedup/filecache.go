package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"slices"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/afero"
)

var log = logging.Logger("ddebs/dedup")

// FileCache is a Cache persisted as a single JSON object at a fixed path. Every
// Set rewrites the whole document through WriteFileAtomic.
//
// Writers are serialized on writeMu for the whole encode and write, while mu
// only guards the in-memory map, so readers never wait on the disk.
type FileCache[V any] struct {
	fs   afero.Fs
	path string

	writeMu sync.Mutex
	mu      sync.RWMutex
	entries map[string]V
}

var _ Cache[bool] = (*FileCache[bool])(nil)

// OpenFile loads the cache stored at path. A missing file yields an empty
// cache. An unreadable or corrupt file also yields an empty cache, which means
// everything is reprocessed; that case is logged as a warning.
func OpenFile[V any](fsys afero.Fs, path string) *FileCache[V] {
	c := &FileCache[V]{
		fs:      fsys,
		path:    path,
		entries: make(map[string]V),
	}

	data, err := afero.ReadFile(fsys, path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Debugf("no cache at %s, starting empty", path)
		return c
	case err != nil:
		log.Warnw("cache unreadable, starting empty", "path", path, "err", err)
		return c
	}

	entries := make(map[string]V)
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Warnw("cache corrupt, starting empty", "path", path, "err", err)
		return c
	}
	c.entries = entries
	log.Infof("loaded %d entries from %s", len(entries), path)
	return c
}

func (c *FileCache[V]) Get(_ context.Context, key string) (V, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok, nil
}

// Set makes value durable under key before it becomes visible to Get. A failed
// write leaves both the file and the in-memory state as they were.
func (c *FileCache[V]) Set(ctx context.Context, key string, value V) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	// Only writers mutate entries and they hold writeMu, so the map cannot
	// change between this snapshot and the insert below.
	c.mu.RLock()
	next := maps.Clone(c.entries)
	c.mu.RUnlock()
	next[key] = value

	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}
	if err := WriteFileAtomic(c.fs, c.path, data); err != nil {
		return fmt.Errorf("persisting %s: %w", key, err)
	}

	c.mu.Lock()
	c.entries[key] = value
	c.mu.Unlock()
	return nil
}

func (c *FileCache[V]) Range(ctx context.Context, fn func(key string, value V) error) error {
	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	snapshot := maps.Clone(c.entries)
	c.mu.RUnlock()

	slices.Sort(keys)
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k, snapshot[k]); err != nil {
			return err
		}
	}
	return nil
}

func (c *FileCache[V]) Len(_ context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), nil
}

func (c *FileCache[V]) ModTime(_ context.Context) (time.Time, error) {
	info, err := c.fs.Stat(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("statting %s: %w", c.path, err)
	}
	return info.ModTime(), nil
}
