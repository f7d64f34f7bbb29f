package analysis

import "strings"

// defaultPKColumns are the column names treated as row identifiers when no
// schema hint overrides them.
var defaultPKColumns = map[string]bool{
	"id":   true,
	"uuid": true,
}

// classify assigns the invalidation bucket for a SELECT's extracted facts.
// Set operations and subqueries force complex; aggregates come next, then
// multi-table joins; an equality or IN on a row-identifier column makes a
// single-table query a row lookup.
func classify(f *selectFacts, pk func(table, column string) bool) Classification {
	if f.setOp != SetNone || f.hasSubquery {
		return ClassComplex
	}
	if f.hasAggregate {
		return ClassAggregate
	}
	if len(f.tables) > 1 {
		return ClassJoin
	}
	table := f.tables[0]
	for _, cond := range table.Conditions {
		if cond.Operator != OpEq && cond.Operator != OpIn {
			continue
		}
		if pk(table.Table, cond.Column) {
			return ClassRowLookup
		}
	}
	return ClassComplex
}

func defaultPK(_ string, column string) bool {
	return defaultPKColumns[strings.ToLower(column)]
}
