// Package parsecache caches parsed dumps keyed by file name and content hash.
//
// Parsing is cheap for a single dump but a full re-ingest of a large scrape directory
// re-reads thousands of files; the cache lets repeated runs skip the parser entirely.
// Concurrent lookups for the same key are collapsed by sfcache.
package parsecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/codeGROOVE-dev/sfcache"
	"github.com/codeGROOVE-dev/sfcache/pkg/store/localfs"
	"github.com/codeGROOVE-dev/sfcache/pkg/store/null"

	"github.com/codeGROOVE-dev/sociograph/pkg/dump"
)

// Stats tracks cache hit/miss statistics.
type Stats struct {
	Hits   int64
	Misses int64
}

// Cacher allows callers to plug in another cache implementation.
type Cacher interface {
	GetSet(ctx context.Context, key string, fetch func(context.Context) ([]byte, error), ttl ...time.Duration) ([]byte, error)
	TTL() time.Duration
}

// Cache wraps sfcache for parsed dump caching.
type Cache struct {
	*sfcache.TieredCache[string, []byte]

	hits   atomic.Int64
	misses atomic.Int64
	ttl    time.Duration
}

// Namespace is the default on-disk namespace. It carries the encoding version of
// cached dumps; entries written under another version are never read back.
const Namespace = "parsed-dumps-v1"

// Option configures a Cache.
type Option func(*options)

type options struct {
	namespace string
	ttl       time.Duration
}

// WithTTL sets how long parsed dumps stay cached. Zero keeps them until evicted.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithNamespace separates entries written by different encodings or callers.
func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

// Open returns a Cache persisted under dir. An empty dir keeps entries in memory only.
func Open(dir string, opts ...Option) (*Cache, error) {
	o := options{namespace: Namespace}
	for _, opt := range opts {
		opt(&o)
	}

	var tiered []sfcache.Option
	if o.ttl > 0 {
		tiered = append(tiered, sfcache.TTL(o.ttl))
	}

	if dir == "" {
		tc, err := sfcache.NewTiered[string, []byte](null.New[string, []byte](), tiered...)
		if err != nil {
			return nil, fmt.Errorf("create cache: %w", err)
		}
		return &Cache{TieredCache: tc, ttl: o.ttl}, nil
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	persist, err := localfs.New[string, []byte](o.namespace, dir)
	if err != nil {
		return nil, fmt.Errorf("open %s cache in %s: %w", o.namespace, dir, err)
	}
	tc, err := sfcache.NewTiered[string, []byte](persist, tiered...)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &Cache{TieredCache: tc, ttl: o.ttl}, nil
}

// TTL implements Cacher.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Stats returns the hit/miss counters of Parse calls made through c.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Key derives the cache key for a dump. The name takes part because it carries the
// dump kind and account; identical bytes under two names parse differently.
func Key(name string, content []byte) string {
	h := sha256.New()
	h.Write([]byte(filepath.Base(name)))
	h.Write([]byte{0})
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// Parse returns the parsed dump for name/content, consulting cache first.
// A nil cache parses directly. Parse errors are never cached.
func Parse(ctx context.Context, cache Cacher, name string, content []byte, logger *slog.Logger) (*dump.Dump, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cache == nil {
		return dump.Parse(name, content)
	}

	var parsed *dump.Dump
	data, err := cache.GetSet(ctx, Key(name, content), func(context.Context) ([]byte, error) {
		d, err := dump.Parse(name, content)
		if err != nil {
			return nil, err
		}
		parsed = d
		logger.Debug("parse cache miss", "source", d.Source)
		return json.Marshal(d)
	}, cache.TTL())
	if err != nil {
		return nil, err
	}

	c, ok := cache.(*Cache)
	if parsed != nil {
		if ok {
			c.misses.Add(1)
		}
		return parsed, nil
	}
	if ok {
		c.hits.Add(1)
	}

	var d dump.Dump
	if err := json.Unmarshal(data, &d); err != nil {
		logger.Warn("discarding undecodable cache entry", "name", name, "error", err)
		return dump.Parse(name, content)
	}
	if d.Kind == dump.KindComments && d.Comments == nil {
		d.Comments = []dump.Comment{}
	}
	return &d, nil
}
