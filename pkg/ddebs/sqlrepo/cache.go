package sqlrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/storacha/ddebsyms/pkg/ddebs/dedup"
)

const defaultLRUSize = 4096

// Cache is a dedup.Cache stored in the cache_entries table under a namespace,
// so the listed-directory and scanned-archive caches can share one database.
// Recently used values are kept in an LRU in front of the table.
type Cache[V any] struct {
	db        *sql.DB
	namespace string

	mu     sync.Mutex
	recent *lru.Cache[string, V]
}

var _ dedup.Cache[bool] = (*Cache[bool])(nil)

// NewCache returns the cache for namespace.
func NewCache[V any](db *sql.DB, namespace string) (*Cache[V], error) {
	recent, err := lru.New[string, V](defaultLRUSize)
	if err != nil {
		return nil, err
	}
	return &Cache[V]{db: db, namespace: namespace, recent: recent}, nil
}

func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if v, ok := c.recent.Get(key); ok {
		return v, true, nil
	}

	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM cache_entries WHERE namespace = $1 AND key = $2`,
		c.namespace, key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("reading %s/%s: %w", c.namespace, key, err)
	}

	var v V
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		log.Warnw("undecodable cache entry, treating as absent", "namespace", c.namespace, "key", key, "err", err)
		return zero, false, nil
	}
	c.recent.Add(key, v)
	return v, true, nil
}

// Set upserts the entry. The write is committed before Set returns.
func (c *Cache[V]) Set(ctx context.Context, key string, value V) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO cache_entries (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, c.namespace, key, string(data), time.Now().UnixNano())
	if err != nil {
		c.recent.Remove(key)
		return fmt.Errorf("persisting %s/%s: %w", c.namespace, key, err)
	}
	c.recent.Add(key, value)
	return nil
}

func (c *Cache[V]) Range(ctx context.Context, fn func(key string, value V) error) error {
	type row struct {
		key, value string
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT key, value FROM cache_entries WHERE namespace = $1 ORDER BY key`,
		c.namespace,
	)
	if err != nil {
		return fmt.Errorf("listing %s: %w", c.namespace, err)
	}
	// Rows are buffered so fn may use the database.
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.key, &r.value); err != nil {
			rows.Close()
			return err
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, r := range all {
		if err := ctx.Err(); err != nil {
			return err
		}
		var v V
		if err := json.Unmarshal([]byte(r.value), &v); err != nil {
			log.Warnw("undecodable cache entry, skipping", "namespace", c.namespace, "key", r.key, "err", err)
			continue
		}
		if err := fn(r.key, v); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache[V]) Len(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cache_entries WHERE namespace = $1`, c.namespace,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", c.namespace, err)
	}
	return n, nil
}

func (c *Cache[V]) ModTime(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := c.db.QueryRowContext(ctx,
		`SELECT MAX(updated_at) FROM cache_entries WHERE namespace = $1`, c.namespace,
	).Scan(timestampScanner(&t))
	if err != nil {
		return time.Time{}, fmt.Errorf("reading %s modification time: %w", c.namespace, err)
	}
	return t, nil
}
