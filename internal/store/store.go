// Package store persists cache entries in an embedded SQLite database with
// four secondary indexes (by table, by row, by column, by aggregate) and an
// in-process LRU front for deserialized results.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"github.com/cadabra-cache/cadabra/internal/analysis"
)

// DefaultLRUCapacity bounds the in-process result front.
const DefaultLRUCapacity = 1000

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	fingerprint TEXT PRIMARY KEY,
	result      BLOB NOT NULL,
	cache_key   TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS by_table (
	table_name  TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	PRIMARY KEY (table_name, fingerprint)
);
CREATE TABLE IF NOT EXISTS by_row (
	table_name  TEXT NOT NULL,
	row_id      TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	PRIMARY KEY (table_name, row_id, fingerprint)
);
CREATE TABLE IF NOT EXISTS by_column (
	table_name  TEXT NOT NULL,
	column_name TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	PRIMARY KEY (table_name, column_name, fingerprint)
);
CREATE TABLE IF NOT EXISTS by_aggregate (
	table_name  TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	PRIMARY KEY (table_name, fingerprint)
);
`

// Store owns the database handle, the prepared-statement set, and the LRU
// front. All methods are safe for concurrent use.
type Store struct {
	db  *sql.DB
	lru *lru.Cache[string, []byte]
	pk  func(table, column string) bool

	insertEntry     *sql.Stmt
	insertByTable   *sql.Stmt
	insertByRow     *sql.Stmt
	insertByColumn  *sql.Stmt
	insertByAgg     *sql.Stmt
	selectResult    *sql.Stmt
	selectByTable   *sql.Stmt
	selectByAgg     *sql.Stmt
}

type options struct {
	lruCapacity int
	pk          func(table, column string) bool
}

// Option configures Open.
type Option func(*options)

// WithLRUCapacity overrides the result-front capacity.
func WithLRUCapacity(n int) Option {
	return func(o *options) { o.lruCapacity = n }
}

// WithPKMatch overrides the predicate deciding which condition columns index
// an entry in by_row. The default accepts id and uuid.
func WithPKMatch(fn func(table, column string) bool) Option {
	return func(o *options) { o.pk = fn }
}

func defaultPKMatch(_ string, column string) bool {
	switch strings.ToLower(column) {
	case "id", "uuid":
		return true
	}
	return false
}

// Open opens or creates the database at path (":memory:" for a private
// in-memory database), applies the schema, and prepares the statement set.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	o := options{lruCapacity: DefaultLRUCapacity, pk: defaultPKMatch}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps an in-memory database alive across calls
	// and serializes SQLite writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	front, err := lru.New[string, []byte](o.lruCapacity)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("building LRU front: %w", err)
	}

	s := &Store{db: db, lru: front, pk: o.pk}
	if err := s.prepare(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) prepare(ctx context.Context) error {
	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.insertEntry, "INSERT OR REPLACE INTO cache_entries (fingerprint, result, cache_key, created_at) VALUES (?, ?, ?, ?)"},
		{&s.insertByTable, "INSERT OR IGNORE INTO by_table (table_name, fingerprint) VALUES (?, ?)"},
		{&s.insertByRow, "INSERT OR IGNORE INTO by_row (table_name, row_id, fingerprint) VALUES (?, ?, ?)"},
		{&s.insertByColumn, "INSERT OR IGNORE INTO by_column (table_name, column_name, fingerprint) VALUES (?, ?, ?)"},
		{&s.insertByAgg, "INSERT OR IGNORE INTO by_aggregate (table_name, fingerprint) VALUES (?, ?)"},
		{&s.selectResult, "SELECT result FROM cache_entries WHERE fingerprint = ?"},
		{&s.selectByTable, "SELECT fingerprint FROM by_table WHERE table_name = ?"},
		{&s.selectByAgg, "SELECT fingerprint FROM by_aggregate WHERE table_name = ?"},
	}
	for _, entry := range stmts {
		stmt, err := s.db.PrepareContext(ctx, entry.query)
		if err != nil {
			s.closeStmts()
			return fmt.Errorf("preparing %q: %w", entry.query, err)
		}
		*entry.dst = stmt
	}
	return nil
}

func (s *Store) closeStmts() {
	for _, stmt := range []*sql.Stmt{
		s.insertEntry, s.insertByTable, s.insertByRow, s.insertByColumn,
		s.insertByAgg, s.selectResult, s.selectByTable, s.selectByAgg,
	} {
		if stmt != nil {
			stmt.Close()
		}
	}
}

// Close releases the prepared statements and the database handle.
func (s *Store) Close() error {
	s.closeStmts()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// PKMatch reports whether the configured predicate treats column as a row
// identifier for table.
func (s *Store) PKMatch(table, column string) bool {
	return s.pk(table, column)
}

// rowIDs recovers the by_row index values for one table access.
func rowIDs(access analysis.TableAccess, pk func(table, column string) bool) []string {
	var ids []string
	for _, cond := range access.Conditions {
		if cond.Value == nil || !pk(access.Table, cond.Column) {
			continue
		}
		switch cond.Operator {
		case analysis.OpEq:
			ids = append(ids, cond.Value.Canonical())
		case analysis.OpIn:
			for _, member := range cond.Value.ListVal {
				ids = append(ids, member.Canonical())
			}
		}
	}
	return ids
}
