package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// fingerprint derives the deterministic short identifier of a cache key.
// Simple primary-key lookups get the human-readable "{table}:{col}={value}:
// row-lookup" form; everything else hashes a canonical record with SHA-256
// truncated to 16 hex characters.
func fingerprint(k *CacheKey, pk func(table, column string) bool) string {
	if fp, ok := rowLookupFingerprint(k, pk); ok {
		return fp
	}
	return structuralFingerprint(k)
}

func rowLookupFingerprint(k *CacheKey, pk func(table, column string) bool) (string, bool) {
	if k.Classification != ClassRowLookup || len(k.Tables) != 1 {
		return "", false
	}
	if len(k.OrderBy) > 0 || k.Limit != nil || k.Offset != nil ||
		k.Distinct || k.HasSubquery || k.SetOperation != SetNone {
		return "", false
	}
	table := k.Tables[0]
	if len(table.Conditions) != 1 {
		return "", false
	}
	cond := table.Conditions[0]
	if !pk(table.Table, cond.Column) || cond.Value == nil {
		return "", false
	}
	column := strings.ToLower(cond.Column)
	switch cond.Operator {
	case OpEq:
		return fmt.Sprintf("%s:%s=%s:row-lookup", table.Table, column, cond.Value.Canonical()), true
	case OpIn:
		sorted := sortValues(cond.Value.ListVal)
		parts := make([]string, len(sorted))
		for i, member := range sorted {
			parts[i] = member.Canonical()
		}
		return fmt.Sprintf("%s:%s=%s:row-lookup", table.Table, column, strings.Join(parts, ",")), true
	}
	return "", false
}

// structuralFingerprint serializes the canonical record with sorted JSON
// keys and sorted member lists, then truncates SHA-256 to 64 bits.
func structuralFingerprint(k *CacheKey) string {
	record := map[string]any{
		"tables":         canonicalTables(k.Tables),
		"classification": string(k.Classification),
		"order_by":       canonicalOrderBy(k.OrderBy),
		"limit":          k.Limit,
		"offset":         k.Offset,
		"distinct":       k.Distinct,
		"has_subquery":   k.HasSubquery,
		"set_operation":  string(k.SetOperation),
	}
	data, err := json.Marshal(record)
	if err != nil {
		// The record is built from plain maps, slices, and scalars; this
		// cannot fail at runtime.
		panic(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

func canonicalTables(tables []TableAccess) []map[string]any {
	out := make([]map[string]any, len(tables))
	for i, table := range tables {
		columns := make([]string, len(table.Columns))
		copy(columns, table.Columns)
		sort.Strings(columns)

		conds := make([]map[string]any, len(table.Conditions))
		sortedConds := make([]Condition, len(table.Conditions))
		copy(sortedConds, table.Conditions)
		sort.SliceStable(sortedConds, func(a, b int) bool {
			return sortedConds[a].Column < sortedConds[b].Column
		})
		for j, cond := range sortedConds {
			entry := map[string]any{
				"column":   cond.Column,
				"operator": string(cond.Operator),
			}
			if cond.Value != nil {
				value := *cond.Value
				if value.Kind == ValueList && cond.Operator != OpBetween && cond.Operator != OpNotBetween {
					value = Value{Kind: ValueList, ListVal: sortValues(value.ListVal)}
				}
				entry["value"] = value
			}
			conds[j] = entry
		}

		sortedJoins := make([]JoinCondition, len(table.JoinConditions))
		copy(sortedJoins, table.JoinConditions)
		sort.SliceStable(sortedJoins, func(a, b int) bool {
			return sortedJoins[a].LeftTable < sortedJoins[b].LeftTable
		})
		joins := make([]map[string]any, len(sortedJoins))
		for j, jc := range sortedJoins {
			joins[j] = map[string]any{
				"left_table":   jc.LeftTable,
				"left_column":  jc.LeftColumn,
				"right_table":  jc.RightTable,
				"right_column": jc.RightColumn,
				"join_type":    string(jc.JoinType),
			}
		}

		out[i] = map[string]any{
			"table":           table.Table,
			"alias":           table.Alias,
			"columns":         columns,
			"conditions":      conds,
			"join_conditions": joins,
		}
	}
	return out
}

func canonicalOrderBy(items []OrderBy) []map[string]any {
	out := make([]map[string]any, len(items))
	for i, item := range items {
		out[i] = map[string]any{"column": item.Column, "order": item.Order}
	}
	return out
}
