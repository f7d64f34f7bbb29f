package invalidate

import (
	"strings"

	"github.com/cadabra-cache/cadabra/internal/analysis"
)

// columnOverlap reports whether a modified column appears in the selected
// list. A "*" selection overlaps everything; aggregate wrappers are stripped
// so SUM(amount) counts as a selection of amount.
func columnOverlap(selected, modified []string) bool {
	for _, entry := range selected {
		for _, name := range analysis.BaseColumns(entry) {
			if name == "*" {
				return true
			}
			for _, mod := range modified {
				if strings.EqualFold(name, mod) {
					return true
				}
			}
		}
	}
	return false
}

// joinColumnOverlap reports whether a modified column participates in a join
// condition on the side that resolves to the written table.
func joinColumnOverlap(k *analysis.CacheKey, w *analysis.WriteInfo) bool {
	resolve := make(map[string]string, len(k.Tables)*2)
	for _, access := range k.Tables {
		resolve[strings.ToLower(access.Table)] = access.Table
		if access.Alias != "" {
			resolve[strings.ToLower(access.Alias)] = access.Table
		}
	}
	for _, jc := range k.Tables[0].JoinConditions {
		for _, mod := range w.ModifiedColumns {
			if strings.EqualFold(jc.LeftColumn, mod) &&
				strings.EqualFold(resolve[strings.ToLower(jc.LeftTable)], w.Table) {
				return true
			}
			if strings.EqualFold(jc.RightColumn, mod) &&
				strings.EqualFold(resolve[strings.ToLower(jc.RightTable)], w.Table) {
				return true
			}
		}
	}
	return false
}

// writeRowColumns collects the columns whose equality and IN conditions
// supplied the write's affected row identifiers. Cached conditions on other
// columns carry values from a different domain and prove nothing about row
// membership.
func writeRowColumns(w *analysis.WriteInfo) map[string]bool {
	cols := make(map[string]bool, len(w.Conditions))
	for _, cond := range w.Conditions {
		if cond.Value == nil {
			continue
		}
		if cond.Operator == analysis.OpEq || cond.Operator == analysis.OpIn {
			cols[strings.ToLower(cond.Column)] = true
		}
	}
	return cols
}

// rowOverlap compares the cached equality and IN conditions on the write's
// row-identifier columns against the rows the write touches. A cached table
// without any such condition may match any row, which counts as overlap.
func rowOverlap(conds []analysis.Condition, rowColumns map[string]bool, affected []string) bool {
	rows := make(map[string]bool, len(affected))
	for _, id := range affected {
		rows[id] = true
	}
	sawRowCondition := false
	for _, cond := range conds {
		if cond.Value == nil || !rowColumns[strings.ToLower(cond.Column)] {
			continue
		}
		switch cond.Operator {
		case analysis.OpEq:
			sawRowCondition = true
			if rows[cond.Value.Canonical()] {
				return true
			}
		case analysis.OpIn:
			sawRowCondition = true
			for _, member := range cond.Value.ListVal {
				if rows[member.Canonical()] {
					return true
				}
			}
		}
	}
	return !sawRowCondition
}

func hasRowConditions(conds []analysis.Condition, rowColumns map[string]bool) bool {
	for _, cond := range conds {
		if cond.Value == nil || !rowColumns[strings.ToLower(cond.Column)] {
			continue
		}
		if cond.Operator == analysis.OpEq || cond.Operator == analysis.OpIn {
			return true
		}
	}
	return false
}
