// Package analysis turns SQL statements into the structured descriptors the
// cache keys and invalidates on: CacheKey for SELECTs, WriteInfo for
// INSERT/UPDATE/DELETE.
package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Operator identifies a condition operator.
type Operator string

// Condition operators.
const (
	OpEq         Operator = "="
	OpNe         Operator = "!="
	OpGt         Operator = ">"
	OpLt         Operator = "<"
	OpGe         Operator = ">="
	OpLe         Operator = "<="
	OpIn         Operator = "IN"
	OpNotIn      Operator = "NOT_IN"
	OpLike       Operator = "LIKE"
	OpNotLike    Operator = "NOT_LIKE"
	OpBetween    Operator = "BETWEEN"
	OpNotBetween Operator = "NOT_BETWEEN"
	OpIsNull     Operator = "IS_NULL"
	OpIsNotNull  Operator = "IS_NOT_NULL"
	OpExists     Operator = "EXISTS"
	OpNotExists  Operator = "NOT_EXISTS"
)

// Condition is one WHERE predicate. Value is absent for null-tests and
// EXISTS sentinels, a list for IN/NOT_IN, and a 2-element list for BETWEEN.
type Condition struct {
	Column   string   `json:"column"`
	Operator Operator `json:"operator"`
	Value    *Value   `json:"value,omitempty"`
}

// JoinType identifies how a join condition joins its two sides.
type JoinType string

// Join types.
const (
	JoinInner JoinType = "INNER"
	JoinLeft  JoinType = "LEFT"
	JoinRight JoinType = "RIGHT"
	JoinFull  JoinType = "FULL"
	JoinCross JoinType = "CROSS"
)

// JoinCondition is a structural equi-join captured from an ON clause of the
// form a.x = b.y. Left and right table fields hold the declared alias or
// table name as written.
type JoinCondition struct {
	LeftTable   string   `json:"left_table"`
	LeftColumn  string   `json:"left_column"`
	RightTable  string   `json:"right_table"`
	RightColumn string   `json:"right_column"`
	JoinType    JoinType `json:"join_type"`
}

// TableAccess describes one table touched by a SELECT. For multi-table
// queries the first table owns the aggregated condition and join-condition
// sets; the remaining tables carry only their selected columns.
type TableAccess struct {
	Table          string          `json:"table"`
	Alias          string          `json:"alias,omitempty"`
	Columns        []string        `json:"columns,omitempty"`
	Conditions     []Condition     `json:"conditions,omitempty"`
	JoinConditions []JoinCondition `json:"join_conditions,omitempty"`
}

// Classification buckets a SELECT by the invalidation strategy it needs.
type Classification string

// Classifications.
const (
	ClassRowLookup Classification = "row-lookup"
	ClassAggregate Classification = "aggregate"
	ClassJoin      Classification = "join"
	ClassComplex   Classification = "complex"
)

// SetOperation tags a compound SELECT.
type SetOperation string

// Set operations. The zero value means no set operation.
const (
	SetNone      SetOperation = ""
	SetUnion     SetOperation = "UNION"
	SetUnionAll  SetOperation = "UNION_ALL"
	SetIntersect SetOperation = "INTERSECT"
	SetExcept    SetOperation = "EXCEPT"
)

// OrderBy is one ORDER BY entry of a cache key.
type OrderBy struct {
	Column string `json:"column"`
	Order  string `json:"order"`
}

// CacheKey is the full semantic descriptor of a cacheable SELECT. The
// fingerprint is a pure function of the remaining fields.
type CacheKey struct {
	Tables         []TableAccess  `json:"tables"`
	Classification Classification `json:"classification"`
	NormalizedSQL  string         `json:"normalized_sql"`
	OrderBy        []OrderBy      `json:"order_by,omitempty"`
	Limit          *int64         `json:"limit,omitempty"`
	Offset         *int64         `json:"offset,omitempty"`
	Distinct       bool           `json:"distinct,omitempty"`
	HasSubquery    bool           `json:"has_subquery,omitempty"`
	SetOperation   SetOperation   `json:"set_operation,omitempty"`
	Fingerprint    string         `json:"fingerprint"`
}

// Operation tags a write statement.
type Operation string

// Write operations.
const (
	WriteInsert Operation = "INSERT"
	WriteUpdate Operation = "UPDATE"
	WriteDelete Operation = "DELETE"
)

// WriteInfo is the semantic descriptor of a write statement. AffectedRows is
// populated only when row identifiers are recoverable from equality or IN
// conditions on a primary-key column; ModifiedColumns only for UPDATE.
type WriteInfo struct {
	Table           string      `json:"table"`
	Operation       Operation   `json:"operation"`
	AffectedRows    []string    `json:"affected_rows,omitempty"`
	ModifiedColumns []string    `json:"modified_columns,omitempty"`
	Conditions      []Condition `json:"conditions,omitempty"`
}

// Params carries bound parameter values, either positional or named.
type Params struct {
	Positional []Value
	Named      map[string]Value
}

// Positional wraps an ordered parameter list.
func Positional(values ...Value) *Params {
	return &Params{Positional: values}
}

// Named wraps a named parameter mapping.
func Named(values map[string]Value) *Params {
	return &Params{Named: values}
}

// IsEmpty reports whether no parameter values are present.
func (p *Params) IsEmpty() bool {
	return p == nil || (len(p.Positional) == 0 && len(p.Named) == 0)
}

// UnmarshalJSON accepts either a JSON array (positional) or object (named).
func (p *Params) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*p = Params{}
		return nil
	}
	switch trimmed[0] {
	case '[':
		var values []Value
		if err := json.Unmarshal(trimmed, &values); err != nil {
			return err
		}
		*p = Params{Positional: values}
		return nil
	case '{':
		var values map[string]Value
		if err := json.Unmarshal(trimmed, &values); err != nil {
			return err
		}
		*p = Params{Named: values}
		return nil
	}
	return fmt.Errorf("params must be an array or an object")
}

// MarshalJSON renders the positional form when present, else the named form.
func (p Params) MarshalJSON() ([]byte, error) {
	if len(p.Named) > 0 {
		return json.Marshal(p.Named)
	}
	return json.Marshal(p.Positional)
}
