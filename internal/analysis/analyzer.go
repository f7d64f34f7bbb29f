package analysis

import (
	"strings"

	"github.com/cadabra-cache/cadabra/internal/sqlast"
)

// Analyzer is the analysis façade: it composes the parameter binder, the
// normalizer, the parser, the extractor, the classifier, and the fingerprint
// into the two entry points AnalyzeSelect and AnalyzeWrite.
//
// Hints extend the default row-identifier column set {id, uuid} with one
// primary-key column per table; they are fixed at construction so analysis
// stays deterministic.
type Analyzer struct {
	hints map[string]string
}

// New constructs an Analyzer. The hints map table names to their primary-key
// column and may be nil.
func New(hints map[string]string) *Analyzer {
	normalized := make(map[string]string, len(hints))
	for table, column := range hints {
		normalized[table] = strings.ToLower(column)
	}
	return &Analyzer{hints: normalized}
}

// PKColumn reports whether column is a row identifier for table.
func (a *Analyzer) PKColumn(table, column string) bool {
	if defaultPK(table, column) {
		return true
	}
	return a.hints[table] == strings.ToLower(column)
}

// AnalyzeSelect reduces a SELECT statement and its bound parameters to a
// CacheKey. It fails with an *AnalysisError of kind parse_failed when the
// input does not scan or parse, and kind unsupported when the statement is
// not an analyzable SELECT.
func (a *Analyzer) AnalyzeSelect(sql string, params *Params) (*CacheKey, error) {
	bound, err := Bind(sql, params)
	if err != nil {
		return nil, err
	}
	normalized, err := Normalize(bound)
	if err != nil {
		return nil, err
	}
	stmt, err := sqlast.Parse(normalized)
	if err != nil {
		return nil, parseFailed("parsing statement", err)
	}
	sel, ok := stmt.(*sqlast.SelectStmt)
	if !ok {
		return nil, unsupported("expected a SELECT statement")
	}
	facts, err := extractSelect(sel)
	if err != nil {
		return nil, err
	}
	key := &CacheKey{
		Tables:         facts.tables,
		NormalizedSQL:  normalized,
		OrderBy:        facts.orderBy,
		Limit:          facts.limit,
		Offset:         facts.offset,
		Distinct:       facts.distinct,
		HasSubquery:    facts.hasSubquery,
		SetOperation:   facts.setOp,
	}
	key.Classification = classify(facts, a.PKColumn)
	key.Fingerprint = fingerprint(key, a.PKColumn)
	return key, nil
}

// AnalyzeWrite reduces an INSERT, UPDATE, or DELETE statement and its bound
// parameters to a WriteInfo. The failure domain matches AnalyzeSelect.
func (a *Analyzer) AnalyzeWrite(sql string, params *Params) (*WriteInfo, error) {
	bound, err := Bind(sql, params)
	if err != nil {
		return nil, err
	}
	stmt, err := sqlast.Parse(bound)
	if err != nil {
		return nil, parseFailed("parsing statement", err)
	}
	return extractWrite(stmt, a.PKColumn)
}
