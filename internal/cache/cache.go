// Package cache composes the SQL analyzer, the invalidation decider, and the
// index-backed store into the cadabra cache surface.
package cache

import (
	"context"
	"fmt"

	"github.com/cadabra-cache/cadabra/internal/analysis"
	"github.com/cadabra-cache/cadabra/internal/invalidate"
	"github.com/cadabra-cache/cadabra/internal/logging"
	"github.com/cadabra-cache/cadabra/internal/store"
)

// StorageError marks a failure in the persistence layer, as opposed to an
// analysis failure on the caller's SQL.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Options configures New. The zero value gives an in-memory database with
// default capacity and a silent logger.
type Options struct {
	// Path locates the SQLite database; empty means ":memory:".
	Path string
	// LRUCapacity bounds the deserialized-result front; zero means the
	// store default.
	LRUCapacity int
	// Hints maps table names to primary-key column names, augmenting the
	// built-in id/uuid heuristic.
	Hints map[string]string
	// Logger receives invalidation decisions at debug level; nil disables
	// logging.
	Logger logging.Logger
}

// Cache is the cadabra cache: it analyzes SELECT statements into cache keys,
// persists registered results, and invalidates entries affected by writes.
// All methods are safe for concurrent use.
type Cache struct {
	analyzer *analysis.Analyzer
	store    *store.Store
	log      logging.Logger
}

// New opens the backing store and wires the analyzer's primary-key knowledge
// into the store's row index.
func New(ctx context.Context, opts Options) (*Cache, error) {
	path := opts.Path
	if path == "" {
		path = ":memory:"
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}
	analyzer := analysis.New(opts.Hints)

	storeOpts := []store.Option{
		store.WithPKMatch(analyzer.PKColumn),
	}
	if opts.LRUCapacity > 0 {
		storeOpts = append(storeOpts, store.WithLRUCapacity(opts.LRUCapacity))
	}
	s, err := store.Open(ctx, path, storeOpts...)
	if err != nil {
		return nil, storageErr("open", err)
	}
	return &Cache{analyzer: analyzer, store: s, log: log}, nil
}

// Analyzer exposes the cache's analyzer so callers can derive cache keys and
// write descriptions with the same primary-key hints the cache indexes by.
func (c *Cache) Analyzer() *analysis.Analyzer {
	return c.analyzer
}

// Register analyzes the SELECT, stores the result under its fingerprint, and
// returns the cache key. Registering the same fingerprint again replaces the
// stored result.
func (c *Cache) Register(ctx context.Context, query string, params *analysis.Params, result []byte) (*analysis.CacheKey, error) {
	key, err := c.analyzer.AnalyzeSelect(query, params)
	if err != nil {
		return nil, err
	}
	if err := c.store.Register(ctx, key.Fingerprint, result, key); err != nil {
		return nil, storageErr("register", err)
	}
	c.log.Debug("registered entry", "fingerprint", key.Fingerprint, "classification", string(key.Classification))
	return key, nil
}

// Get returns the stored result for a fingerprint. The second return value is
// false on a miss.
func (c *Cache) Get(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	result, ok, err := c.store.Get(ctx, fingerprint)
	if err != nil {
		return nil, false, storageErr("get", err)
	}
	return result, ok, nil
}

// Invalidate analyzes the write, deletes every cached entry the decider marks
// as affected, and returns the write description together with the deleted
// fingerprints.
func (c *Cache) Invalidate(ctx context.Context, query string, params *analysis.Params) (*analysis.WriteInfo, []string, error) {
	w, err := c.analyzer.AnalyzeWrite(query, params)
	if err != nil {
		return nil, nil, err
	}
	affected, err := c.decide(ctx, w)
	if err != nil {
		return nil, nil, err
	}
	if len(affected) == 0 {
		return w, nil, nil
	}
	if _, err := c.store.DeleteFingerprints(ctx, affected); err != nil {
		return nil, nil, storageErr("delete", err)
	}
	c.log.Debug("invalidated entries", "table", w.Table, "operation", string(w.Operation), "count", len(affected))
	return w, affected, nil
}

// ShouldInvalidate runs the same analysis and decision as Invalidate but
// deletes nothing: it reports which fingerprints the write would invalidate.
func (c *Cache) ShouldInvalidate(ctx context.Context, query string, params *analysis.Params) (*analysis.WriteInfo, []string, error) {
	w, err := c.analyzer.AnalyzeWrite(query, params)
	if err != nil {
		return nil, nil, err
	}
	affected, err := c.decide(ctx, w)
	if err != nil {
		return nil, nil, err
	}
	return w, affected, nil
}

func (c *Cache) decide(ctx context.Context, w *analysis.WriteInfo) ([]string, error) {
	candidates, err := c.store.Candidates(ctx, w)
	if err != nil {
		return nil, storageErr("enumerate", err)
	}
	var affected []string
	for _, cand := range candidates {
		if invalidate.ShouldInvalidate(cand.Key, w) {
			affected = append(affected, cand.Fingerprint)
		}
	}
	return affected, nil
}

// ClearTable removes every entry indexed under the table and returns how many
// were deleted. A second call on an already-clear table returns zero.
func (c *Cache) ClearTable(ctx context.Context, table string) (int, error) {
	fps, err := c.store.TableFingerprints(ctx, table)
	if err != nil {
		return 0, storageErr("enumerate", err)
	}
	n, err := c.store.DeleteFingerprints(ctx, fps)
	if err != nil {
		return 0, storageErr("delete", err)
	}
	c.log.Debug("cleared table", "table", table, "count", n)
	return n, nil
}

// Metrics summarizes the stored state.
func (c *Cache) Metrics(ctx context.Context) (*store.Metrics, error) {
	m, err := c.store.Metrics(ctx)
	if err != nil {
		return nil, storageErr("metrics", err)
	}
	return m, nil
}

// Close releases the backing store.
func (c *Cache) Close() error {
	return c.store.Close()
}
