package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cadabra-cache/cadabra/internal/analysis"
)

// batchSize caps the number of placeholders per IN-clause statement.
const batchSize = 500

// Register upserts the cache entry and its secondary-index rows in one write
// transaction.
func (s *Store) Register(ctx context.Context, fp string, result []byte, key *analysis.CacheKey) error {
	keyJSON, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("encoding cache key: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.StmtContext(ctx, s.insertEntry).ExecContext(ctx, fp, result, string(keyJSON), time.Now().Unix()); err != nil {
		return fmt.Errorf("upserting entry %s: %w", fp, err)
	}
	for _, access := range key.Tables {
		if _, err := tx.StmtContext(ctx, s.insertByTable).ExecContext(ctx, access.Table, fp); err != nil {
			return fmt.Errorf("indexing table %s: %w", access.Table, err)
		}
		for _, rowID := range rowIDs(access, s.pk) {
			if _, err := tx.StmtContext(ctx, s.insertByRow).ExecContext(ctx, access.Table, rowID, fp); err != nil {
				return fmt.Errorf("indexing row %s of %s: %w", rowID, access.Table, err)
			}
		}
		for _, entry := range access.Columns {
			for _, column := range analysis.BaseColumns(entry) {
				if column == "*" {
					continue
				}
				if _, err := tx.StmtContext(ctx, s.insertByColumn).ExecContext(ctx, access.Table, strings.ToLower(column), fp); err != nil {
					return fmt.Errorf("indexing column %s of %s: %w", column, access.Table, err)
				}
			}
		}
		if key.Classification == analysis.ClassAggregate {
			if _, err := tx.StmtContext(ctx, s.insertByAgg).ExecContext(ctx, access.Table, fp); err != nil {
				return fmt.Errorf("indexing aggregate over %s: %w", access.Table, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing register of %s: %w", fp, err)
	}
	return nil
}

// Get returns the stored result for a fingerprint. The LRU front is
// consulted first; a database hit populates it. The second return value is
// false when no entry exists.
func (s *Store) Get(ctx context.Context, fp string) ([]byte, bool, error) {
	if result, ok := s.lru.Get(fp); ok {
		return result, true, nil
	}
	var result []byte
	err := s.selectResult.QueryRowContext(ctx, fp).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading entry %s: %w", fp, err)
	}
	s.lru.Add(fp, result)
	return result, true, nil
}

// Candidate pairs a stored fingerprint with its materialized cache key.
type Candidate struct {
	Fingerprint string
	Key         *analysis.CacheKey
}

// Candidates enumerates the fingerprints a write might invalidate, using the
// narrowest applicable indexes, and materializes their stored cache keys.
func (s *Store) Candidates(ctx context.Context, w *analysis.WriteInfo) ([]Candidate, error) {
	fps := make(map[string]bool)

	if len(w.AffectedRows) > 0 {
		if err := s.collectKeyed(ctx, fps, "by_row", "row_id", w.Table, w.AffectedRows); err != nil {
			return nil, err
		}
		if len(w.ModifiedColumns) > 0 {
			columns := make([]string, len(w.ModifiedColumns))
			for i, column := range w.ModifiedColumns {
				columns[i] = strings.ToLower(column)
			}
			if err := s.collectKeyed(ctx, fps, "by_column", "column_name", w.Table, columns); err != nil {
				return nil, err
			}
		}
	}
	// Entries without row-level conditions are reachable only through the
	// table index.
	if err := s.collectStmt(ctx, fps, s.selectByTable, w.Table); err != nil {
		return nil, err
	}
	if w.Operation == analysis.WriteInsert || w.Operation == analysis.WriteDelete {
		if err := s.collectStmt(ctx, fps, s.selectByAgg, w.Table); err != nil {
			return nil, err
		}
	}
	return s.materialize(ctx, fps)
}

func (s *Store) collectStmt(ctx context.Context, into map[string]bool, stmt *sql.Stmt, table string) error {
	rows, err := stmt.QueryContext(ctx, table)
	if err != nil {
		return fmt.Errorf("enumerating candidates for %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return fmt.Errorf("scanning candidate: %w", err)
		}
		into[fp] = true
	}
	return rows.Err()
}

func (s *Store) collectKeyed(ctx context.Context, into map[string]bool, table, keyColumn, tableName string, keys []string) error {
	for _, chunk := range chunks(keys) {
		query := fmt.Sprintf("SELECT fingerprint FROM %s WHERE table_name = ? AND %s IN (%s)",
			table, keyColumn, placeholders(len(chunk)))
		args := make([]any, 0, len(chunk)+1)
		args = append(args, tableName)
		for _, key := range chunk {
			args = append(args, key)
		}
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("enumerating %s candidates for %s: %w", table, tableName, err)
		}
		for rows.Next() {
			var fp string
			if err := rows.Scan(&fp); err != nil {
				rows.Close()
				return fmt.Errorf("scanning candidate: %w", err)
			}
			into[fp] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}
	return nil
}

func (s *Store) materialize(ctx context.Context, fps map[string]bool) ([]Candidate, error) {
	if len(fps) == 0 {
		return nil, nil
	}
	ordered := make([]string, 0, len(fps))
	for fp := range fps {
		ordered = append(ordered, fp)
	}
	var out []Candidate
	for _, chunk := range chunks(ordered) {
		query := fmt.Sprintf("SELECT fingerprint, cache_key FROM cache_entries WHERE fingerprint IN (%s)",
			placeholders(len(chunk)))
		rows, err := s.db.QueryContext(ctx, query, toArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("materializing candidates: %w", err)
		}
		for rows.Next() {
			var fp, keyJSON string
			if err := rows.Scan(&fp, &keyJSON); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning candidate key: %w", err)
			}
			key := new(analysis.CacheKey)
			if err := json.Unmarshal([]byte(keyJSON), key); err != nil {
				rows.Close()
				return nil, fmt.Errorf("decoding cache key of %s: %w", fp, err)
			}
			out = append(out, Candidate{Fingerprint: fp, Key: key})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// DeleteFingerprints removes the entries and all their secondary-index rows
// in one write transaction, then evicts them from the LRU front. It returns
// the number of cache entries actually deleted.
func (s *Store) DeleteFingerprints(ctx context.Context, fps []string) (int, error) {
	if len(fps) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	deleted := 0
	for _, chunk := range chunks(fps) {
		ph := placeholders(len(chunk))
		args := toArgs(chunk)
		res, err := tx.ExecContext(ctx, "DELETE FROM cache_entries WHERE fingerprint IN ("+ph+")", args...)
		if err != nil {
			return 0, fmt.Errorf("deleting entries: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("counting deleted entries: %w", err)
		}
		deleted += int(n)
		for _, index := range []string{"by_table", "by_row", "by_column", "by_aggregate"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+index+" WHERE fingerprint IN ("+ph+")", args...); err != nil {
				return 0, fmt.Errorf("deleting %s rows: %w", index, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing delete: %w", err)
	}
	for _, fp := range fps {
		s.lru.Remove(fp)
	}
	return deleted, nil
}

// TableFingerprints returns every fingerprint indexed under a table.
func (s *Store) TableFingerprints(ctx context.Context, table string) ([]string, error) {
	fps := make(map[string]bool)
	if err := s.collectStmt(ctx, fps, s.selectByTable, table); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(fps))
	for fp := range fps {
		out = append(out, fp)
	}
	return out, nil
}

// IndexSizes counts the rows of each secondary index.
type IndexSizes struct {
	Table     int `json:"table"`
	Row       int `json:"row"`
	Column    int `json:"column"`
	Aggregate int `json:"aggregate"`
}

// Metrics summarizes the stored state.
type Metrics struct {
	TotalEntries int            `json:"total_entries"`
	ByTable      map[string]int `json:"by_table"`
	IndexSizes   IndexSizes     `json:"index_sizes"`
}

// Metrics reads entry, per-table, and index-size counts.
func (s *Store) Metrics(ctx context.Context) (*Metrics, error) {
	m := &Metrics{ByTable: make(map[string]int)}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache_entries").Scan(&m.TotalEntries); err != nil {
		return nil, fmt.Errorf("counting entries: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, "SELECT table_name, COUNT(DISTINCT fingerprint) FROM by_table GROUP BY table_name")
	if err != nil {
		return nil, fmt.Errorf("counting per-table entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var table string
		var count int
		if err := rows.Scan(&table, &count); err != nil {
			return nil, fmt.Errorf("scanning per-table count: %w", err)
		}
		m.ByTable[table] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, entry := range []struct {
		index string
		dst   *int
	}{
		{"by_table", &m.IndexSizes.Table},
		{"by_row", &m.IndexSizes.Row},
		{"by_column", &m.IndexSizes.Column},
		{"by_aggregate", &m.IndexSizes.Aggregate},
	} {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+entry.index).Scan(entry.dst); err != nil {
			return nil, fmt.Errorf("counting %s: %w", entry.index, err)
		}
	}
	return m, nil
}

func chunks(items []string) [][]string {
	var out [][]string
	for len(items) > batchSize {
		out = append(out, items[:batchSize])
		items = items[batchSize:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(items []string) []any {
	args := make([]any, len(items))
	for i, item := range items {
		args[i] = item
	}
	return args
}
