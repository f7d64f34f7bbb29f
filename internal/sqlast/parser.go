package sqlast

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cadabra-cache/cadabra/internal/sqlscan"
)

// ParseError reports a syntax error with the position of the offending token.
type ParseError struct {
	Line    int
	Column  int
	Message string
}

// Error returns the printable representation of the parse error.
func (e *ParseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// Parse scans and parses a single SQL statement. When the input contains a
// batch separated by semicolons, only the first statement is consumed.
func Parse(sql string) (Statement, error) {
	tokens, err := sqlscan.Scan(sql)
	if err != nil {
		var scanErr *sqlscan.Error
		if ok := asScanError(err, &scanErr); ok {
			return nil, &ParseError{Line: scanErr.Line, Column: scanErr.Column, Message: scanErr.Message}
		}
		return nil, &ParseError{Line: 1, Column: 1, Message: err.Error()}
	}
	p := &parser{tokens: tokens}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if p.peek().Kind != sqlscan.KindEOF && p.peek().Text != ";" {
		return nil, p.errorf("unexpected %q after statement", p.peek().Text)
	}
	return stmt, nil
}

func asScanError(err error, target **sqlscan.Error) bool {
	se, ok := err.(*sqlscan.Error)
	if ok {
		*target = se
	}
	return ok
}

type parser struct {
	tokens []sqlscan.Token
	pos    int
}

func (p *parser) peek() sqlscan.Token {
	if p.pos >= len(p.tokens) {
		return sqlscan.Token{Kind: sqlscan.KindEOF}
	}
	return p.tokens[p.pos]
}

func (p *parser) peekAt(n int) sqlscan.Token {
	if p.pos+n >= len(p.tokens) {
		return sqlscan.Token{Kind: sqlscan.KindEOF}
	}
	return p.tokens[p.pos+n]
}

func (p *parser) next() sqlscan.Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *parser) matchKeyword(kw string) bool {
	tok := p.peek()
	if tok.Kind == sqlscan.KindKeyword && tok.Text == kw {
		p.pos++
		return true
	}
	return false
}

func (p *parser) isKeyword(kw string) bool {
	tok := p.peek()
	return tok.Kind == sqlscan.KindKeyword && tok.Text == kw
}

func (p *parser) matchSymbol(sym string) bool {
	tok := p.peek()
	if tok.Kind == sqlscan.KindSymbol && tok.Text == sym {
		p.pos++
		return true
	}
	return false
}

func (p *parser) isSymbol(sym string) bool {
	tok := p.peek()
	return tok.Kind == sqlscan.KindSymbol && tok.Text == sym
}

func (p *parser) expectKeyword(kw string) error {
	if !p.matchKeyword(kw) {
		return p.errorf("expected %s, found %q", kw, p.peek().Text)
	}
	return nil
}

func (p *parser) expectSymbol(sym string) error {
	if !p.matchSymbol(sym) {
		return p.errorf("expected %q, found %q", sym, p.peek().Text)
	}
	return nil
}

func (p *parser) expectIdentifier() (string, error) {
	tok := p.peek()
	if tok.Kind != sqlscan.KindIdentifier {
		return "", p.errorf("expected identifier, found %q", tok.Text)
	}
	p.pos++
	return sqlscan.NormalizeIdentifier(tok.Text), nil
}

func (p *parser) errorf(format string, args ...any) error {
	tok := p.peek()
	return &ParseError{Line: tok.Line, Column: tok.Column, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) parseStatement() (Statement, error) {
	tok := p.peek()
	if tok.Kind != sqlscan.KindKeyword {
		return nil, p.errorf("expected SELECT, INSERT, UPDATE, or DELETE, found %q", tok.Text)
	}
	switch tok.Text {
	case "SELECT":
		return p.parseSelect()
	case "INSERT":
		return p.parseInsert()
	case "UPDATE":
		return p.parseUpdate()
	case "DELETE":
		return p.parseDelete()
	default:
		return nil, p.errorf("unsupported statement %q", tok.Text)
	}
}

// parseSelect parses a SELECT with optional set-operation continuations.
// Trailing ORDER BY and LIMIT clauses bind to the branch they follow, so a
// compound query carries them on its last branch.
func (p *parser) parseSelect() (*SelectStmt, error) {
	first, err := p.parseSelectCore()
	if err != nil {
		return nil, err
	}
	last := first
	for {
		var op SetOp
		switch {
		case p.matchKeyword("UNION"):
			if p.matchKeyword("ALL") {
				op = SetOpUnionAll
			} else {
				op = SetOpUnion
			}
		case p.matchKeyword("INTERSECT"):
			op = SetOpIntersect
		case p.matchKeyword("EXCEPT"):
			op = SetOpExcept
		default:
			if err := p.parseSelectTail(last); err != nil {
				return nil, err
			}
			return first, nil
		}
		branch, err := p.parseSelectCore()
		if err != nil {
			return nil, err
		}
		first.Compound = append(first.Compound, CompoundClause{Op: op, Select: branch})
		last = branch
	}
}

// parseSelectCore parses SELECT through HAVING, leaving ORDER BY, LIMIT, and
// set operators to the caller.
func (p *parser) parseSelectCore() (*SelectStmt, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	sel := &SelectStmt{}
	if p.matchKeyword("DISTINCT") {
		sel.Distinct = true
	} else {
		p.matchKeyword("ALL")
	}
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		sel.Columns = append(sel.Columns, item)
		if !p.matchSymbol(",") {
			break
		}
	}
	if p.matchKeyword("FROM") {
		from, err := p.parseTableRefs()
		if err != nil {
			return nil, err
		}
		sel.From = from
	}
	if p.matchKeyword("WHERE") {
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sel.Where = where
	}
	if p.matchKeyword("GROUP") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			sel.GroupBy = append(sel.GroupBy, e)
			if !p.matchSymbol(",") {
				break
			}
		}
	}
	if p.matchKeyword("HAVING") {
		having, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sel.Having = having
	}
	return sel, nil
}

func (p *parser) parseSelectTail(sel *SelectStmt) error {
	if p.matchKeyword("ORDER") {
		if err := p.expectKeyword("BY"); err != nil {
			return err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return err
			}
			item := OrderItem{Expr: e}
			if p.matchKeyword("DESC") {
				item.Desc = true
			} else {
				p.matchKeyword("ASC")
			}
			sel.OrderBy = append(sel.OrderBy, item)
			if !p.matchSymbol(",") {
				break
			}
		}
	}
	if p.matchKeyword("LIMIT") {
		first, err := p.parseNonNegativeInt()
		if err != nil {
			return err
		}
		limit := &LimitClause{Count: first}
		switch {
		case p.matchSymbol(","):
			// MySQL LIMIT offset, count form.
			count, err := p.parseNonNegativeInt()
			if err != nil {
				return err
			}
			limit.Offset = first
			limit.Count = count
			limit.HasOffset = true
		case p.matchKeyword("OFFSET"):
			offset, err := p.parseNonNegativeInt()
			if err != nil {
				return err
			}
			limit.Offset = offset
			limit.HasOffset = true
		}
		sel.Limit = limit
	}
	return nil
}

func (p *parser) parseNonNegativeInt() (int64, error) {
	tok := p.peek()
	if tok.Kind != sqlscan.KindNumber {
		return 0, p.errorf("expected integer, found %q", tok.Text)
	}
	n, err := strconv.ParseInt(tok.Text, 10, 64)
	if err != nil {
		return 0, p.errorf("expected integer, found %q", tok.Text)
	}
	p.pos++
	return n, nil
}

func (p *parser) parseSelectItem() (SelectItem, error) {
	if p.isSymbol("*") {
		p.pos++
		return SelectItem{Star: true}, nil
	}
	// Qualified star: table.*
	if p.peek().Kind == sqlscan.KindIdentifier &&
		p.peekAt(1).Kind == sqlscan.KindSymbol && p.peekAt(1).Text == "." &&
		p.peekAt(2).Kind == sqlscan.KindSymbol && p.peekAt(2).Text == "*" {
		table := sqlscan.NormalizeIdentifier(p.next().Text)
		p.next() // '.'
		p.next() // '*'
		return SelectItem{Star: true, StarTable: table}, nil
	}
	expr, err := p.parseExpr()
	if err != nil {
		return SelectItem{}, err
	}
	item := SelectItem{Expr: expr}
	if p.matchKeyword("AS") {
		alias, err := p.expectIdentifier()
		if err != nil {
			return SelectItem{}, err
		}
		item.Alias = alias
	} else if p.peek().Kind == sqlscan.KindIdentifier {
		item.Alias = sqlscan.NormalizeIdentifier(p.next().Text)
	}
	return item, nil
}

func (p *parser) parseTableRefs() ([]TableRef, error) {
	first, err := p.parseTableRef(JoinNone)
	if err != nil {
		return nil, err
	}
	refs := []TableRef{first}
	for {
		switch {
		case p.matchSymbol(","):
			ref, err := p.parseTableRef(JoinCross)
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		case p.isKeyword("JOIN") || p.isKeyword("INNER") || p.isKeyword("LEFT") ||
			p.isKeyword("RIGHT") || p.isKeyword("FULL") || p.isKeyword("CROSS"):
			join, err := p.parseJoinType()
			if err != nil {
				return nil, err
			}
			ref, err := p.parseTableRef(join)
			if err != nil {
				return nil, err
			}
			if join != JoinCross {
				switch {
				case p.matchKeyword("ON"):
					on, err := p.parseExpr()
					if err != nil {
						return nil, err
					}
					ref.On = on
				case p.matchKeyword("USING"):
					if err := p.expectSymbol("("); err != nil {
						return nil, err
					}
					for {
						col, err := p.expectIdentifier()
						if err != nil {
							return nil, err
						}
						ref.Using = append(ref.Using, col)
						if !p.matchSymbol(",") {
							break
						}
					}
					if err := p.expectSymbol(")"); err != nil {
						return nil, err
					}
				}
			}
			refs = append(refs, ref)
		default:
			return refs, nil
		}
	}
}

func (p *parser) parseJoinType() (JoinType, error) {
	switch {
	case p.matchKeyword("JOIN"):
		return JoinInner, nil
	case p.matchKeyword("INNER"):
		return JoinInner, p.expectKeyword("JOIN")
	case p.matchKeyword("CROSS"):
		return JoinCross, p.expectKeyword("JOIN")
	case p.matchKeyword("LEFT"):
		p.matchKeyword("OUTER")
		return JoinLeft, p.expectKeyword("JOIN")
	case p.matchKeyword("RIGHT"):
		p.matchKeyword("OUTER")
		return JoinRight, p.expectKeyword("JOIN")
	case p.matchKeyword("FULL"):
		p.matchKeyword("OUTER")
		return JoinFull, p.expectKeyword("JOIN")
	}
	return JoinNone, p.errorf("expected join clause, found %q", p.peek().Text)
}

func (p *parser) parseTableRef(join JoinType) (TableRef, error) {
	ref := TableRef{Join: join}
	if p.matchSymbol("(") {
		sub, err := p.parseSelect()
		if err != nil {
			return TableRef{}, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return TableRef{}, err
		}
		ref.Subquery = sub
	} else {
		name, err := p.expectIdentifier()
		if err != nil {
			return TableRef{}, err
		}
		ref.Table = name
	}
	if p.matchKeyword("AS") {
		alias, err := p.expectIdentifier()
		if err != nil {
			return TableRef{}, err
		}
		ref.Alias = alias
	} else if p.peek().Kind == sqlscan.KindIdentifier {
		ref.Alias = sqlscan.NormalizeIdentifier(p.next().Text)
	}
	return ref, nil
}

func (p *parser) parseInsert() (*InsertStmt, error) {
	if err := p.expectKeyword("INSERT"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	table, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	ins := &InsertStmt{Table: table}
	if p.isSymbol("(") {
		p.pos++
		for {
			col, err := p.expectIdentifier()
			if err != nil {
				return nil, err
			}
			ins.Columns = append(ins.Columns, col)
			if !p.matchSymbol(",") {
				break
			}
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
	}
	switch {
	case p.matchKeyword("VALUES"):
		for {
			if err := p.expectSymbol("("); err != nil {
				return nil, err
			}
			var row []Expr
			for {
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				row = append(row, e)
				if !p.matchSymbol(",") {
					break
				}
			}
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
			ins.Rows = append(ins.Rows, row)
			if !p.matchSymbol(",") {
				break
			}
		}
	case p.isKeyword("SELECT"):
		sel, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		ins.Select = sel
	default:
		return nil, p.errorf("expected VALUES or SELECT, found %q", p.peek().Text)
	}
	return ins, nil
}

func (p *parser) parseUpdate() (*UpdateStmt, error) {
	if err := p.expectKeyword("UPDATE"); err != nil {
		return nil, err
	}
	table, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	upd := &UpdateStmt{Table: table}
	if p.matchKeyword("AS") {
		alias, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		upd.Alias = alias
	} else if p.peek().Kind == sqlscan.KindIdentifier && !p.isKeyword("SET") {
		upd.Alias = sqlscan.NormalizeIdentifier(p.next().Text)
	}
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}
	for {
		col, err := p.parseAssignmentTarget()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol("="); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		upd.Set = append(upd.Set, Assignment{Column: col, Value: val})
		if !p.matchSymbol(",") {
			break
		}
	}
	if p.matchKeyword("WHERE") {
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		upd.Where = where
	}
	return upd, nil
}

// parseAssignmentTarget accepts "col" or "table.col" and returns the bare
// column name.
func (p *parser) parseAssignmentTarget() (string, error) {
	name, err := p.expectIdentifier()
	if err != nil {
		return "", err
	}
	if p.isSymbol(".") {
		p.pos++
		col, err := p.expectIdentifier()
		if err != nil {
			return "", err
		}
		return col, nil
	}
	return name, nil
}

func (p *parser) parseDelete() (*DeleteStmt, error) {
	if err := p.expectKeyword("DELETE"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	del := &DeleteStmt{Table: table}
	if p.matchKeyword("AS") {
		alias, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		del.Alias = alias
	} else if p.peek().Kind == sqlscan.KindIdentifier {
		del.Alias = sqlscan.NormalizeIdentifier(p.next().Text)
	}
	if p.matchKeyword("WHERE") {
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		del.Where = where
	}
	return del, nil
}

// Expression grammar, loosest binding first: OR, AND, NOT, predicates,
// additive, multiplicative, unary, primary.

func (p *parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.matchKeyword("OR") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &OrExpr{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		if p.isKeyword("AND") {
			p.pos++
			right, err := p.parseNot()
			if err != nil {
				return nil, err
			}
			left = &AndExpr{Left: left, Right: right}
			continue
		}
		return left, nil
	}
}

func (p *parser) parseNot() (Expr, error) {
	if p.matchKeyword("NOT") {
		if p.isKeyword("EXISTS") {
			return p.parseExists(true)
		}
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Expr: inner}, nil
	}
	return p.parsePredicate()
}

func (p *parser) parsePredicate() (Expr, error) {
	if p.isKeyword("EXISTS") {
		return p.parseExists(false)
	}
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		switch {
		case tok.Kind == sqlscan.KindSymbol && isComparisonOp(tok.Text):
			p.pos++
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &CompareExpr{Op: normalizeCompareOp(tok.Text), Left: left, Right: right}
			continue
		case tok.Kind == sqlscan.KindKeyword && tok.Text == "IS":
			p.pos++
			not := p.matchKeyword("NOT")
			if err := p.expectKeyword("NULL"); err != nil {
				return nil, err
			}
			left = &IsNullExpr{Not: not, Expr: left}
			continue
		case tok.Kind == sqlscan.KindKeyword && tok.Text == "NOT":
			after := p.peekAt(1)
			if after.Kind != sqlscan.KindKeyword {
				return left, nil
			}
			switch after.Text {
			case "IN":
				p.pos += 2
				e, err := p.parseInTail(left, true)
				if err != nil {
					return nil, err
				}
				left = e
				continue
			case "LIKE":
				p.pos += 2
				right, err := p.parseAdditive()
				if err != nil {
					return nil, err
				}
				left = &LikeExpr{Not: true, Left: left, Right: right}
				continue
			case "BETWEEN":
				p.pos += 2
				e, err := p.parseBetweenTail(left, true)
				if err != nil {
					return nil, err
				}
				left = e
				continue
			default:
				return left, nil
			}
		case tok.Kind == sqlscan.KindKeyword && tok.Text == "IN":
			p.pos++
			e, err := p.parseInTail(left, false)
			if err != nil {
				return nil, err
			}
			left = e
			continue
		case tok.Kind == sqlscan.KindKeyword && tok.Text == "LIKE":
			p.pos++
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &LikeExpr{Not: false, Left: left, Right: right}
			continue
		case tok.Kind == sqlscan.KindKeyword && tok.Text == "BETWEEN":
			p.pos++
			e, err := p.parseBetweenTail(left, false)
			if err != nil {
				return nil, err
			}
			left = e
			continue
		}
		return left, nil
	}
}

func (p *parser) parseExists(not bool) (Expr, error) {
	if err := p.expectKeyword("EXISTS"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	sub, err := p.parseSelect()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return &ExistsExpr{Not: not, Subquery: sub}, nil
}

func (p *parser) parseInTail(left Expr, not bool) (Expr, error) {
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	if p.isKeyword("SELECT") {
		sub, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return &InExpr{Not: not, Left: left, Subquery: sub}, nil
	}
	in := &InExpr{Not: not, Left: left}
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		in.List = append(in.List, e)
		if !p.matchSymbol(",") {
			break
		}
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return in, nil
}

func (p *parser) parseBetweenTail(left Expr, not bool) (Expr, error) {
	from, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("AND"); err != nil {
		return nil, err
	}
	to, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return &BetweenExpr{Not: not, Left: left, From: from, To: to}, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.Kind == sqlscan.KindSymbol && (tok.Text == "+" || tok.Text == "-" || tok.Text == "|") {
			p.pos++
			right, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			left = &ArithExpr{Op: tok.Text, Left: left, Right: right}
			continue
		}
		return left, nil
	}
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.Kind == sqlscan.KindSymbol && (tok.Text == "*" || tok.Text == "/" || tok.Text == "%") {
			// A '*' directly before a closing delimiter is a star column,
			// not multiplication; that case never reaches here because the
			// select-list handles it first.
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = &ArithExpr{Op: tok.Text, Left: left, Right: right}
			continue
		}
		return left, nil
	}
}

func (p *parser) parseUnary() (Expr, error) {
	tok := p.peek()
	if tok.Kind == sqlscan.KindSymbol && (tok.Text == "-" || tok.Text == "+") {
		p.pos++
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: tok.Text, Expr: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.Kind {
	case sqlscan.KindNumber:
		p.pos++
		return &Literal{Kind: LiteralNumber, Text: tok.Text}, nil
	case sqlscan.KindString:
		p.pos++
		return &Literal{Kind: LiteralString, Text: unquoteString(tok.Text)}, nil
	case sqlscan.KindParam:
		p.pos++
		return &Literal{Kind: LiteralParam, Text: tok.Text}, nil
	case sqlscan.KindKeyword:
		switch tok.Text {
		case "NULL":
			p.pos++
			return &Literal{Kind: LiteralNull, Text: "NULL"}, nil
		case "TRUE":
			p.pos++
			return &Literal{Kind: LiteralBool, Text: "TRUE"}, nil
		case "FALSE":
			p.pos++
			return &Literal{Kind: LiteralBool, Text: "FALSE"}, nil
		}
		return nil, p.errorf("unexpected keyword %q in expression", tok.Text)
	case sqlscan.KindIdentifier:
		return p.parseIdentifierExpr()
	case sqlscan.KindSymbol:
		if tok.Text == "(" {
			p.pos++
			if p.isKeyword("SELECT") {
				sub, err := p.parseSelect()
				if err != nil {
					return nil, err
				}
				if err := p.expectSymbol(")"); err != nil {
					return nil, err
				}
				return &SubqueryExpr{Select: sub}, nil
			}
			inner, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
			return inner, nil
		}
		if tok.Text == "*" {
			p.pos++
			return &ColumnRef{Name: "*"}, nil
		}
	}
	return nil, p.errorf("unexpected %q in expression", tok.Text)
}

func (p *parser) parseIdentifierExpr() (Expr, error) {
	name, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	if p.isSymbol("(") {
		return p.parseFuncCall(name)
	}
	if p.isSymbol(".") && p.peekAt(1).Kind == sqlscan.KindIdentifier {
		p.pos++
		col, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		return &ColumnRef{Table: name, Name: col}, nil
	}
	if p.isSymbol(".") && p.peekAt(1).Kind == sqlscan.KindSymbol && p.peekAt(1).Text == "*" {
		p.pos += 2
		return &ColumnRef{Table: name, Name: "*"}, nil
	}
	return &ColumnRef{Name: name}, nil
}

func (p *parser) parseFuncCall(name string) (Expr, error) {
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	fn := &FuncCall{Name: strings.ToUpper(name)}
	if p.matchSymbol(")") {
		return fn, nil
	}
	if p.matchKeyword("DISTINCT") {
		fn.Distinct = true
	}
	if p.isSymbol("*") {
		p.pos++
		fn.Star = true
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return fn, nil
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		fn.Args = append(fn.Args, arg)
		if !p.matchSymbol(",") {
			break
		}
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return fn, nil
}

func isComparisonOp(sym string) bool {
	switch sym {
	case "=", "!=", "<>", "<", "<=", ">", ">=":
		return true
	}
	return false
}

func normalizeCompareOp(sym string) string {
	if sym == "<>" {
		return "!="
	}
	return sym
}

func unquoteString(text string) string {
	if len(text) >= 2 && text[0] == '\'' && text[len(text)-1] == '\'' {
		return strings.ReplaceAll(text[1:len(text)-1], "''", "'")
	}
	return text
}
