package analysis

import (
	"strconv"
	"strings"

	"github.com/cadabra-cache/cadabra/internal/sqlast"
)

// selectFacts is the structured output of the AST extractor for a SELECT.
type selectFacts struct {
	tables       []TableAccess
	orderBy      []OrderBy
	limit        *int64
	offset       *int64
	distinct     bool
	hasAggregate bool
	hasSubquery  bool
	setOp        SetOperation
}

var aggregateFuncs = map[string]bool{
	"COUNT":        true,
	"SUM":          true,
	"AVG":          true,
	"MIN":          true,
	"MAX":          true,
	"TOTAL":        true,
	"GROUP_CONCAT": true,
}

// extractSelect reduces a parsed SELECT to table accesses, conditions,
// joins, and the shape flags the classifier and fingerprint consume.
//
// Column references attach to their declared table; unattributed columns and
// every condition attach to the first table, which anchors all downstream
// analysis for multi-table queries.
func extractSelect(sel *sqlast.SelectStmt) (*selectFacts, error) {
	ex := &extractor{}
	if err := ex.addBranch(sel, true); err != nil {
		return nil, err
	}
	for _, clause := range sel.Compound {
		if ex.facts.setOp == SetNone {
			ex.facts.setOp = mapSetOp(clause.Op)
		}
		if err := ex.addBranch(clause.Select, false); err != nil {
			return nil, err
		}
	}
	if len(sel.Compound) > 0 {
		// ORDER BY and LIMIT of a compound query parse onto the trailing
		// branch; surface them when the first branch carries none.
		last := sel.Compound[len(sel.Compound)-1].Select
		if len(ex.facts.orderBy) == 0 {
			ex.facts.orderBy = convertOrderBy(last.OrderBy)
		}
		if ex.facts.limit == nil {
			ex.facts.limit, ex.facts.offset = convertLimit(last.Limit)
		}
	}
	if len(ex.facts.tables) == 0 {
		return nil, unsupported("no analyzable table in FROM clause")
	}
	ex.facts.tables[0].Conditions = ex.conds
	ex.facts.tables[0].JoinConditions = ex.joins
	return &ex.facts, nil
}

type extractor struct {
	facts selectFacts
	conds []Condition
	joins []JoinCondition
}

func (ex *extractor) addBranch(sel *sqlast.SelectStmt, first bool) error {
	branchStart := len(ex.facts.tables)
	aliasToIdx := make(map[string]int)
	for _, ref := range sel.From {
		if ref.Subquery != nil {
			ex.facts.hasSubquery = true
			continue
		}
		idx := len(ex.facts.tables)
		access := TableAccess{Table: ref.Table}
		if ref.Alias != "" && ref.Alias != ref.Table {
			access.Alias = ref.Alias
		}
		ex.facts.tables = append(ex.facts.tables, access)
		aliasToIdx[ref.Table] = idx
		if ref.Alias != "" {
			aliasToIdx[ref.Alias] = idx
		}
	}
	if len(ex.facts.tables) == branchStart {
		if first {
			return unsupported("no analyzable table in FROM clause")
		}
		return nil
	}
	anchor := &ex.facts.tables[branchStart]

	for i, ref := range sel.From {
		if i == 0 || ref.Table == "" {
			continue
		}
		switch {
		case ref.On != nil:
			if jc, ok := equiJoin(ref.On, mapJoinType(ref.Join)); ok {
				ex.joins = append(ex.joins, jc)
			} else {
				// Non-equi ON clauses degrade to opaque conditions on the
				// anchor table.
				walkConditions(ref.On, &ex.conds)
			}
			if exprHasSubquery(ref.On) {
				ex.facts.hasSubquery = true
			}
		case len(ref.Using) > 0:
			for _, col := range ref.Using {
				ex.joins = append(ex.joins, JoinCondition{
					LeftTable:   tableLabel(sel.From[0]),
					LeftColumn:  col,
					RightTable:  tableLabel(ref),
					RightColumn: col,
					JoinType:    mapJoinType(ref.Join),
				})
			}
		}
	}

	for _, item := range sel.Columns {
		ex.addSelectItem(item, anchor, aliasToIdx)
	}
	if sel.Where != nil {
		walkConditions(sel.Where, &ex.conds)
		if exprHasSubquery(sel.Where) {
			ex.facts.hasSubquery = true
		}
	}
	for _, e := range sel.GroupBy {
		if exprHasSubquery(e) {
			ex.facts.hasSubquery = true
		}
	}
	if sel.Having != nil && exprHasSubquery(sel.Having) {
		ex.facts.hasSubquery = true
	}
	if first {
		ex.facts.distinct = sel.Distinct
		ex.facts.orderBy = convertOrderBy(sel.OrderBy)
		ex.facts.limit, ex.facts.offset = convertLimit(sel.Limit)
	}
	return nil
}

func (ex *extractor) addSelectItem(item sqlast.SelectItem, anchor *TableAccess, aliasToIdx map[string]int) {
	target := anchor
	column := ""
	switch {
	case item.Star:
		column = "*"
		if idx, ok := aliasToIdx[item.StarTable]; item.StarTable != "" && ok {
			target = &ex.facts.tables[idx]
		}
	default:
		if exprHasSubquery(item.Expr) {
			ex.facts.hasSubquery = true
		}
		switch e := item.Expr.(type) {
		case *sqlast.ColumnRef:
			column = e.Name
			if idx, ok := aliasToIdx[e.Table]; e.Table != "" && ok {
				target = &ex.facts.tables[idx]
			}
		case *sqlast.FuncCall:
			column = exprText(e)
			if aggregateFuncs[e.Name] {
				ex.facts.hasAggregate = true
			}
			if len(e.Args) == 1 {
				if ref, ok := e.Args[0].(*sqlast.ColumnRef); ok && ref.Table != "" {
					if idx, ok := aliasToIdx[ref.Table]; ok {
						target = &ex.facts.tables[idx]
					}
				}
			}
		default:
			column = exprText(item.Expr)
		}
	}
	if column != "" {
		target.Columns = append(target.Columns, column)
	}
}

func tableLabel(ref sqlast.TableRef) string {
	if ref.Alias != "" {
		return ref.Alias
	}
	return ref.Table
}

// equiJoin recognizes ON clauses of the exact shape a.x = b.y.
func equiJoin(on sqlast.Expr, join JoinType) (JoinCondition, bool) {
	cmp, ok := on.(*sqlast.CompareExpr)
	if !ok || cmp.Op != "=" {
		return JoinCondition{}, false
	}
	left, ok := cmp.Left.(*sqlast.ColumnRef)
	if !ok || left.Table == "" {
		return JoinCondition{}, false
	}
	right, ok := cmp.Right.(*sqlast.ColumnRef)
	if !ok || right.Table == "" {
		return JoinCondition{}, false
	}
	return JoinCondition{
		LeftTable:   left.Table,
		LeftColumn:  left.Name,
		RightTable:  right.Table,
		RightColumn: right.Name,
		JoinType:    join,
	}, true
}

func mapJoinType(j sqlast.JoinType) JoinType {
	switch j {
	case sqlast.JoinLeft:
		return JoinLeft
	case sqlast.JoinRight:
		return JoinRight
	case sqlast.JoinFull:
		return JoinFull
	case sqlast.JoinCross:
		return JoinCross
	default:
		return JoinInner
	}
}

func mapSetOp(op sqlast.SetOp) SetOperation {
	switch op {
	case sqlast.SetOpUnionAll:
		return SetUnionAll
	case sqlast.SetOpIntersect:
		return SetIntersect
	case sqlast.SetOpExcept:
		return SetExcept
	default:
		return SetUnion
	}
}

func convertOrderBy(items []sqlast.OrderItem) []OrderBy {
	if len(items) == 0 {
		return nil
	}
	out := make([]OrderBy, len(items))
	for i, item := range items {
		order := "ASC"
		if item.Desc {
			order = "DESC"
		}
		out[i] = OrderBy{Column: exprText(item.Expr), Order: order}
	}
	return out
}

func convertLimit(limit *sqlast.LimitClause) (*int64, *int64) {
	if limit == nil {
		return nil, nil
	}
	count := limit.Count
	if !limit.HasOffset {
		return &count, nil
	}
	offset := limit.Offset
	return &count, &offset
}

// walkConditions flattens the WHERE subtree into a single condition list.
// AND and OR both flatten by concatenation; downstream analysis treats the
// result as conjunctive, which over-approximates disjunctions.
func walkConditions(e sqlast.Expr, out *[]Condition) {
	switch node := e.(type) {
	case *sqlast.AndExpr:
		walkConditions(node.Left, out)
		walkConditions(node.Right, out)
	case *sqlast.OrExpr:
		walkConditions(node.Left, out)
		walkConditions(node.Right, out)
	case *sqlast.NotExpr:
		walkConditions(node.Expr, out)
	case *sqlast.CompareExpr:
		if cond, ok := compareCondition(node); ok {
			*out = append(*out, cond)
		}
	case *sqlast.LikeExpr:
		if cond, ok := likeCondition(node); ok {
			*out = append(*out, cond)
		}
	case *sqlast.InExpr:
		if cond, ok := inCondition(node); ok {
			*out = append(*out, cond)
		}
	case *sqlast.BetweenExpr:
		if cond, ok := betweenCondition(node); ok {
			*out = append(*out, cond)
		}
	case *sqlast.IsNullExpr:
		op := OpIsNull
		if node.Not {
			op = OpIsNotNull
		}
		*out = append(*out, Condition{Column: exprText(node.Expr), Operator: op})
	case *sqlast.ExistsExpr:
		op := OpExists
		if node.Not {
			op = OpNotExists
		}
		*out = append(*out, Condition{Column: "EXISTS", Operator: op})
	}
}

func compareCondition(node *sqlast.CompareExpr) (Condition, bool) {
	leftCol, leftIsCol := node.Left.(*sqlast.ColumnRef)
	rightCol, rightIsCol := node.Right.(*sqlast.ColumnRef)
	switch {
	case leftIsCol && rightIsCol:
		v := Str(rightCol.Name)
		return Condition{Column: leftCol.Name, Operator: Operator(node.Op), Value: &v}, true
	case leftIsCol:
		value, ok := literalValue(node.Right)
		if !ok {
			return Condition{}, false
		}
		return canonicalCompare(leftCol.Name, Operator(node.Op), value), true
	case rightIsCol:
		value, ok := literalValue(node.Left)
		if !ok {
			return Condition{}, false
		}
		return canonicalCompare(rightCol.Name, flipOperator(Operator(node.Op)), value), true
	}
	return Condition{}, false
}

// canonicalCompare folds "= NULL" and "!= NULL" into the null-test operators
// so both spellings produce one canonical condition.
func canonicalCompare(column string, op Operator, value Value) Condition {
	if value.Kind == ValueNull {
		switch op {
		case OpEq:
			return Condition{Column: column, Operator: OpIsNull}
		case OpNe:
			return Condition{Column: column, Operator: OpIsNotNull}
		}
	}
	return Condition{Column: column, Operator: op, Value: &value}
}

func likeCondition(node *sqlast.LikeExpr) (Condition, bool) {
	col, ok := node.Left.(*sqlast.ColumnRef)
	if !ok {
		return Condition{}, false
	}
	value, ok := literalValue(node.Right)
	if !ok {
		return Condition{}, false
	}
	op := OpLike
	if node.Not {
		op = OpNotLike
	}
	return Condition{Column: col.Name, Operator: op, Value: &value}, true
}

func inCondition(node *sqlast.InExpr) (Condition, bool) {
	if node.Subquery != nil {
		// Subquery membership is tracked by the hasSubquery flag alone.
		return Condition{}, false
	}
	column := exprText(node.Left)
	var members []Value
	for _, e := range node.List {
		if v, ok := literalValue(e); ok {
			members = append(members, v)
		}
	}
	op := OpIn
	if node.Not {
		op = OpNotIn
	}
	v := List(members...)
	return Condition{Column: column, Operator: op, Value: &v}, true
}

func betweenCondition(node *sqlast.BetweenExpr) (Condition, bool) {
	col, ok := node.Left.(*sqlast.ColumnRef)
	if !ok {
		return Condition{}, false
	}
	from, ok := literalValue(node.From)
	if !ok {
		return Condition{}, false
	}
	to, ok := literalValue(node.To)
	if !ok {
		return Condition{}, false
	}
	op := OpBetween
	if node.Not {
		op = OpNotBetween
	}
	v := List(from, to)
	return Condition{Column: col.Name, Operator: op, Value: &v}, true
}

func flipOperator(op Operator) Operator {
	switch op {
	case OpGt:
		return OpLt
	case OpLt:
		return OpGt
	case OpGe:
		return OpLe
	case OpLe:
		return OpGe
	}
	return op
}

func literalValue(e sqlast.Expr) (Value, bool) {
	switch node := e.(type) {
	case *sqlast.Literal:
		switch node.Kind {
		case sqlast.LiteralNumber:
			if i, err := strconv.ParseInt(node.Text, 10, 64); err == nil {
				return Int(i), true
			}
			f, err := strconv.ParseFloat(node.Text, 64)
			if err != nil {
				return Value{}, false
			}
			return Float(f), true
		case sqlast.LiteralString:
			return Str(node.Text), true
		case sqlast.LiteralNull:
			return Null(), true
		case sqlast.LiteralBool:
			return Bool(node.Text == "TRUE"), true
		case sqlast.LiteralParam:
			// An unbound placeholder participates as an opaque string.
			return Str(node.Text), true
		}
	case *sqlast.UnaryExpr:
		inner, ok := literalValue(node.Expr)
		if !ok || node.Op != "-" {
			return Value{}, false
		}
		switch inner.Kind {
		case ValueInt:
			return Int(-inner.IntVal), true
		case ValueFloat:
			return Float(-inner.FloatVal), true
		}
	}
	return Value{}, false
}

func exprHasSubquery(e sqlast.Expr) bool {
	switch node := e.(type) {
	case *sqlast.SubqueryExpr:
		return true
	case *sqlast.ExistsExpr:
		return true
	case *sqlast.InExpr:
		if node.Subquery != nil {
			return true
		}
		for _, item := range node.List {
			if exprHasSubquery(item) {
				return true
			}
		}
	case *sqlast.AndExpr:
		return exprHasSubquery(node.Left) || exprHasSubquery(node.Right)
	case *sqlast.OrExpr:
		return exprHasSubquery(node.Left) || exprHasSubquery(node.Right)
	case *sqlast.NotExpr:
		return exprHasSubquery(node.Expr)
	case *sqlast.CompareExpr:
		return exprHasSubquery(node.Left) || exprHasSubquery(node.Right)
	case *sqlast.LikeExpr:
		return exprHasSubquery(node.Left) || exprHasSubquery(node.Right)
	case *sqlast.BetweenExpr:
		return exprHasSubquery(node.Left) || exprHasSubquery(node.From) || exprHasSubquery(node.To)
	case *sqlast.IsNullExpr:
		return exprHasSubquery(node.Expr)
	case *sqlast.FuncCall:
		for _, arg := range node.Args {
			if exprHasSubquery(arg) {
				return true
			}
		}
	case *sqlast.ArithExpr:
		return exprHasSubquery(node.Left) || exprHasSubquery(node.Right)
	case *sqlast.UnaryExpr:
		return exprHasSubquery(node.Expr)
	}
	return false
}

// exprText renders an expression for column lists and ORDER BY entries.
// Column references render as their bare name so overlap analysis compares
// names without qualifiers.
func exprText(e sqlast.Expr) string {
	switch node := e.(type) {
	case *sqlast.ColumnRef:
		return node.Name
	case *sqlast.Literal:
		return node.Text
	case *sqlast.FuncCall:
		if node.Star {
			return node.Name + "(*)"
		}
		parts := make([]string, len(node.Args))
		for i, arg := range node.Args {
			parts[i] = exprText(arg)
		}
		inner := strings.Join(parts, ",")
		if node.Distinct {
			inner = "DISTINCT " + inner
		}
		return node.Name + "(" + inner + ")"
	case *sqlast.ArithExpr:
		return exprText(node.Left) + node.Op + exprText(node.Right)
	case *sqlast.UnaryExpr:
		return node.Op + exprText(node.Expr)
	case *sqlast.SubqueryExpr:
		return "(SELECT)"
	}
	return "expr"
}

// extractWrite reduces a parsed write statement to a WriteInfo. The pk
// predicate decides which columns count as row identifiers for the table.
func extractWrite(stmt sqlast.Statement, pk func(table, column string) bool) (*WriteInfo, error) {
	switch node := stmt.(type) {
	case *sqlast.InsertStmt:
		if node.Table == "" {
			return nil, unsupported("INSERT without a target table")
		}
		return &WriteInfo{Table: node.Table, Operation: WriteInsert}, nil
	case *sqlast.UpdateStmt:
		if node.Table == "" {
			return nil, unsupported("UPDATE without a target table")
		}
		info := &WriteInfo{Table: node.Table, Operation: WriteUpdate}
		for _, assign := range node.Set {
			info.ModifiedColumns = append(info.ModifiedColumns, assign.Column)
		}
		if node.Where != nil {
			walkConditions(node.Where, &info.Conditions)
		}
		info.AffectedRows = affectedRows(node.Table, info.Conditions, pk)
		return info, nil
	case *sqlast.DeleteStmt:
		if node.Table == "" {
			return nil, unsupported("DELETE without a target table")
		}
		info := &WriteInfo{Table: node.Table, Operation: WriteDelete}
		if node.Where != nil {
			walkConditions(node.Where, &info.Conditions)
		}
		info.AffectedRows = affectedRows(node.Table, info.Conditions, pk)
		return info, nil
	case *sqlast.SelectStmt:
		return nil, unsupported("SELECT is not a write statement")
	}
	return nil, unsupported("unrecognized statement")
}

// affectedRows recovers row identifiers from equality and IN conditions on
// primary-key columns.
func affectedRows(table string, conds []Condition, pk func(table, column string) bool) []string {
	var rows []string
	for _, cond := range conds {
		if !pk(table, cond.Column) || cond.Value == nil {
			continue
		}
		switch cond.Operator {
		case OpEq:
			rows = append(rows, cond.Value.Canonical())
		case OpIn:
			for _, member := range cond.Value.ListVal {
				rows = append(rows, member.Canonical())
			}
		}
	}
	return rows
}
