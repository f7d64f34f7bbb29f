// Package invalidate decides whether a cached SELECT result survives a
// write statement. The decision is conservative: ShouldInvalidate returns
// true unless one of its analyses proves the write cannot change the cached
// result.
//
// Conditions are treated conjunctively even when the original WHERE clause
// used OR. For a disjunction this is unsound: a disjointness or row proof on
// one branch spares the entry even when another branch still matches the
// written rows.
package invalidate

import (
	"strings"

	"github.com/cadabra-cache/cadabra/internal/analysis"
)

// ShouldInvalidate reports whether the write described by w can change the
// result cached under k.
func ShouldInvalidate(k *analysis.CacheKey, w *analysis.WriteInfo) bool {
	if !touchesTable(k, w.Table) {
		return false
	}
	switch w.Operation {
	case analysis.WriteInsert:
		// The inserted row values are not extracted, so any insert into a
		// cached table may satisfy the cached WHERE.
		return true
	case analysis.WriteDelete:
		return deleteInvalidates(k, w)
	case analysis.WriteUpdate:
		return updateInvalidates(k, w)
	}
	return true
}

func touchesTable(k *analysis.CacheKey, table string) bool {
	for _, access := range k.Tables {
		if strings.EqualFold(access.Table, table) {
			return true
		}
	}
	return false
}

func deleteInvalidates(k *analysis.CacheKey, w *analysis.WriteInfo) bool {
	if k.Classification == analysis.ClassAggregate || k.Classification == analysis.ClassJoin {
		return true
	}
	anchor := k.Tables[0]
	if !strings.EqualFold(anchor.Table, w.Table) {
		return true
	}
	if len(w.Conditions) > 0 && len(anchor.Conditions) > 0 &&
		conditionsDisjoint(anchor.Conditions, w.Conditions) {
		return false
	}
	if len(w.AffectedRows) > 0 {
		if cols := writeRowColumns(w); hasRowConditions(anchor.Conditions, cols) {
			return rowOverlap(anchor.Conditions, cols, w.AffectedRows)
		}
	}
	return true
}

func updateInvalidates(k *analysis.CacheKey, w *analysis.WriteInfo) bool {
	// Anchor conditions aggregate predicates from every joined table under
	// bare column names, so they prove nothing about a write to a different
	// table: a cached "u.id = 1" and a write's "id = 5" on another table
	// would otherwise look disjoint.
	anchor := k.Tables[0]
	anchorWrite := strings.EqualFold(anchor.Table, w.Table)
	if len(w.ModifiedColumns) == 0 {
		if !anchorWrite {
			return true
		}
		if len(w.Conditions) > 0 && len(anchor.Conditions) > 0 &&
			conditionsDisjoint(anchor.Conditions, w.Conditions) {
			return false
		}
		if len(w.AffectedRows) > 0 {
			if cols := writeRowColumns(w); hasRowConditions(anchor.Conditions, cols) {
				return rowOverlap(anchor.Conditions, cols, w.AffectedRows)
			}
		}
		return true
	}

	colHit := columnOverlap(selectedColumns(k), w.ModifiedColumns)
	if !colHit && k.Classification != analysis.ClassJoin {
		return false
	}
	joinHit := false
	if k.Classification == analysis.ClassJoin {
		joinHit = joinColumnOverlap(k, w)
	}
	if !colHit && !joinHit {
		return false
	}
	if !anchorWrite {
		return true
	}
	if len(w.Conditions) > 0 && len(anchor.Conditions) > 0 &&
		conditionsDisjoint(anchor.Conditions, w.Conditions) {
		return false
	}
	if len(w.AffectedRows) > 0 {
		if cols := writeRowColumns(w); hasRowConditions(anchor.Conditions, cols) {
			return rowOverlap(anchor.Conditions, cols, w.AffectedRows)
		}
	}
	return true
}

// selectedColumns unions the column lists of every cached table access.
// Unqualified columns attach to the first table during extraction, so a
// per-table lookup would miss selections that belong to the written table.
func selectedColumns(k *analysis.CacheKey) []string {
	if len(k.Tables) == 1 {
		return k.Tables[0].Columns
	}
	var out []string
	for _, access := range k.Tables {
		out = append(out, access.Columns...)
	}
	return out
}
