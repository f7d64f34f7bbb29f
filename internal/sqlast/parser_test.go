package sqlast_test

import (
	"testing"

	"github.com/cadabra-cache/cadabra/internal/sqlast"
)

func TestParseSelect(t *testing.T) {
	testCases := []struct {
		name   string
		sql    string
		assert func(t *testing.T, sel *sqlast.SelectStmt)
	}{
		{
			name: "star single table",
			sql:  "SELECT * FROM users",
			assert: func(t *testing.T, sel *sqlast.SelectStmt) {
				t.Helper()
				if len(sel.Columns) != 1 || !sel.Columns[0].Star {
					t.Fatalf("expected star select list, got %+v", sel.Columns)
				}
				if len(sel.From) != 1 || sel.From[0].Table != "users" {
					t.Fatalf("expected FROM users, got %+v", sel.From)
				}
			},
		},
		{
			name: "where equality",
			sql:  "SELECT id, name FROM users WHERE id = 10",
			assert: func(t *testing.T, sel *sqlast.SelectStmt) {
				t.Helper()
				cmp, ok := sel.Where.(*sqlast.CompareExpr)
				if !ok {
					t.Fatalf("expected CompareExpr, got %T", sel.Where)
				}
				if cmp.Op != "=" {
					t.Errorf("expected =, got %q", cmp.Op)
				}
				col, ok := cmp.Left.(*sqlast.ColumnRef)
				if !ok || col.Name != "id" {
					t.Errorf("unexpected left side %+v", cmp.Left)
				}
				lit, ok := cmp.Right.(*sqlast.Literal)
				if !ok || lit.Kind != sqlast.LiteralNumber || lit.Text != "10" {
					t.Errorf("unexpected right side %+v", cmp.Right)
				}
			},
		},
		{
			name: "diamond operator normalized",
			sql:  "SELECT * FROM users WHERE status <> 'deleted'",
			assert: func(t *testing.T, sel *sqlast.SelectStmt) {
				t.Helper()
				cmp := sel.Where.(*sqlast.CompareExpr)
				if cmp.Op != "!=" {
					t.Errorf("expected <> normalized to !=, got %q", cmp.Op)
				}
				lit := cmp.Right.(*sqlast.Literal)
				if lit.Kind != sqlast.LiteralString || lit.Text != "deleted" {
					t.Errorf("unexpected literal %+v", lit)
				}
			},
		},
		{
			name: "in list",
			sql:  "SELECT * FROM users WHERE id IN (1, 2, 3)",
			assert: func(t *testing.T, sel *sqlast.SelectStmt) {
				t.Helper()
				in, ok := sel.Where.(*sqlast.InExpr)
				if !ok {
					t.Fatalf("expected InExpr, got %T", sel.Where)
				}
				if in.Not || len(in.List) != 3 || in.Subquery != nil {
					t.Errorf("unexpected InExpr %+v", in)
				}
			},
		},
		{
			name: "not in subquery",
			sql:  "SELECT * FROM users WHERE id NOT IN (SELECT user_id FROM banned)",
			assert: func(t *testing.T, sel *sqlast.SelectStmt) {
				t.Helper()
				in, ok := sel.Where.(*sqlast.InExpr)
				if !ok {
					t.Fatalf("expected InExpr, got %T", sel.Where)
				}
				if !in.Not || in.Subquery == nil {
					t.Errorf("unexpected InExpr %+v", in)
				}
			},
		},
		{
			name: "between and is null",
			sql:  "SELECT * FROM orders WHERE total BETWEEN 10 AND 20 AND shipped_at IS NOT NULL",
			assert: func(t *testing.T, sel *sqlast.SelectStmt) {
				t.Helper()
				and, ok := sel.Where.(*sqlast.AndExpr)
				if !ok {
					t.Fatalf("expected AndExpr, got %T", sel.Where)
				}
				between, ok := and.Left.(*sqlast.BetweenExpr)
				if !ok || between.Not {
					t.Fatalf("expected BetweenExpr, got %+v", and.Left)
				}
				isNull, ok := and.Right.(*sqlast.IsNullExpr)
				if !ok || !isNull.Not {
					t.Fatalf("expected IS NOT NULL, got %+v", and.Right)
				}
			},
		},
		{
			name: "exists",
			sql:  "SELECT * FROM users u WHERE EXISTS (SELECT 1 FROM orders WHERE orders.user_id = u.id)",
			assert: func(t *testing.T, sel *sqlast.SelectStmt) {
				t.Helper()
				exists, ok := sel.Where.(*sqlast.ExistsExpr)
				if !ok || exists.Not {
					t.Fatalf("expected ExistsExpr, got %T", sel.Where)
				}
				if sel.From[0].Alias != "u" {
					t.Errorf("expected alias u, got %q", sel.From[0].Alias)
				}
			},
		},
		{
			name: "inner join with on",
			sql:  "SELECT u.name, o.total FROM users u JOIN orders o ON u.id = o.user_id",
			assert: func(t *testing.T, sel *sqlast.SelectStmt) {
				t.Helper()
				if len(sel.From) != 2 {
					t.Fatalf("expected 2 FROM items, got %d", len(sel.From))
				}
				second := sel.From[1]
				if second.Join != sqlast.JoinInner || second.Table != "orders" || second.On == nil {
					t.Errorf("unexpected join item %+v", second)
				}
			},
		},
		{
			name: "left outer join",
			sql:  "SELECT * FROM users LEFT OUTER JOIN orders ON users.id = orders.user_id",
			assert: func(t *testing.T, sel *sqlast.SelectStmt) {
				t.Helper()
				if sel.From[1].Join != sqlast.JoinLeft {
					t.Errorf("expected LEFT join, got %q", sel.From[1].Join)
				}
			},
		},
		{
			name: "order limit offset",
			sql:  "SELECT * FROM users ORDER BY name DESC, id LIMIT 10 OFFSET 5",
			assert: func(t *testing.T, sel *sqlast.SelectStmt) {
				t.Helper()
				if len(sel.OrderBy) != 2 || !sel.OrderBy[0].Desc || sel.OrderBy[1].Desc {
					t.Fatalf("unexpected order by %+v", sel.OrderBy)
				}
				if sel.Limit == nil || sel.Limit.Count != 10 || sel.Limit.Offset != 5 || !sel.Limit.HasOffset {
					t.Fatalf("unexpected limit %+v", sel.Limit)
				}
			},
		},
		{
			name: "mysql comma limit",
			sql:  "SELECT * FROM users LIMIT 5, 10",
			assert: func(t *testing.T, sel *sqlast.SelectStmt) {
				t.Helper()
				if sel.Limit == nil || sel.Limit.Count != 10 || sel.Limit.Offset != 5 {
					t.Fatalf("unexpected limit %+v", sel.Limit)
				}
			},
		},
		{
			name: "union all carries tail on last branch",
			sql:  "SELECT id FROM users UNION ALL SELECT id FROM admins ORDER BY id LIMIT 3",
			assert: func(t *testing.T, sel *sqlast.SelectStmt) {
				t.Helper()
				if len(sel.Compound) != 1 || sel.Compound[0].Op != sqlast.SetOpUnionAll {
					t.Fatalf("unexpected compound %+v", sel.Compound)
				}
				branch := sel.Compound[0].Select
				if len(branch.OrderBy) != 1 || branch.Limit == nil || branch.Limit.Count != 3 {
					t.Fatalf("expected tail on last branch, got %+v", branch)
				}
			},
		},
		{
			name: "aggregate with group by",
			sql:  "SELECT status, COUNT(*) FROM orders GROUP BY status HAVING COUNT(*) > 5",
			assert: func(t *testing.T, sel *sqlast.SelectStmt) {
				t.Helper()
				fn, ok := sel.Columns[1].Expr.(*sqlast.FuncCall)
				if !ok || fn.Name != "COUNT" || !fn.Star {
					t.Fatalf("unexpected aggregate %+v", sel.Columns[1].Expr)
				}
				if len(sel.GroupBy) != 1 || sel.Having == nil {
					t.Errorf("expected GROUP BY and HAVING")
				}
			},
		},
		{
			name: "derived table",
			sql:  "SELECT * FROM (SELECT id FROM users) AS sub",
			assert: func(t *testing.T, sel *sqlast.SelectStmt) {
				t.Helper()
				if sel.From[0].Subquery == nil || sel.From[0].Alias != "sub" {
					t.Fatalf("expected derived table, got %+v", sel.From[0])
				}
			},
		},
		{
			name: "backticked identifiers",
			sql:  "SELECT `name` FROM `users` WHERE `id` = 1",
			assert: func(t *testing.T, sel *sqlast.SelectStmt) {
				t.Helper()
				if sel.From[0].Table != "users" {
					t.Errorf("expected unquoted table, got %q", sel.From[0].Table)
				}
				col := sel.Columns[0].Expr.(*sqlast.ColumnRef)
				if col.Name != "name" {
					t.Errorf("expected unquoted column, got %q", col.Name)
				}
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			stmt, err := sqlast.Parse(tc.sql)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tc.sql, err)
			}
			sel, ok := stmt.(*sqlast.SelectStmt)
			if !ok {
				t.Fatalf("expected *SelectStmt, got %T", stmt)
			}
			tc.assert(t, sel)
		})
	}
}

func TestParseWrites(t *testing.T) {
	t.Run("insert values", func(t *testing.T) {
		stmt, err := sqlast.Parse("INSERT INTO users (id, name) VALUES (1, 'Ada'), (2, 'Grace')")
		if err != nil {
			t.Fatal(err)
		}
		ins, ok := stmt.(*sqlast.InsertStmt)
		if !ok {
			t.Fatalf("expected *InsertStmt, got %T", stmt)
		}
		if ins.Table != "users" || len(ins.Columns) != 2 || len(ins.Rows) != 2 {
			t.Errorf("unexpected insert %+v", ins)
		}
	})

	t.Run("insert select", func(t *testing.T) {
		stmt, err := sqlast.Parse("INSERT INTO archive SELECT * FROM users WHERE active = FALSE")
		if err != nil {
			t.Fatal(err)
		}
		ins := stmt.(*sqlast.InsertStmt)
		if ins.Select == nil {
			t.Error("expected INSERT ... SELECT form")
		}
	})

	t.Run("update", func(t *testing.T) {
		stmt, err := sqlast.Parse("UPDATE users SET name = 'X', email = NULL WHERE id = 7")
		if err != nil {
			t.Fatal(err)
		}
		upd, ok := stmt.(*sqlast.UpdateStmt)
		if !ok {
			t.Fatalf("expected *UpdateStmt, got %T", stmt)
		}
		if upd.Table != "users" || len(upd.Set) != 2 || upd.Where == nil {
			t.Errorf("unexpected update %+v", upd)
		}
		if upd.Set[0].Column != "name" || upd.Set[1].Column != "email" {
			t.Errorf("unexpected SET targets %+v", upd.Set)
		}
	})

	t.Run("update qualified set target", func(t *testing.T) {
		stmt, err := sqlast.Parse("UPDATE users u SET u.name = 'X' WHERE u.id = 7")
		if err != nil {
			t.Fatal(err)
		}
		upd := stmt.(*sqlast.UpdateStmt)
		if upd.Alias != "u" || upd.Set[0].Column != "name" {
			t.Errorf("unexpected update %+v", upd)
		}
	})

	t.Run("delete", func(t *testing.T) {
		stmt, err := sqlast.Parse("DELETE FROM users WHERE id IN (1, 2)")
		if err != nil {
			t.Fatal(err)
		}
		del, ok := stmt.(*sqlast.DeleteStmt)
		if !ok {
			t.Fatalf("expected *DeleteStmt, got %T", stmt)
		}
		if del.Table != "users" || del.Where == nil {
			t.Errorf("unexpected delete %+v", del)
		}
	})
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name string
		sql  string
	}{
		{name: "empty", sql: ""},
		{name: "not a statement", sql: "EXPLAIN SELECT 1"},
		{name: "missing from target", sql: "SELECT * FROM"},
		{name: "dangling where", sql: "SELECT * FROM users WHERE"},
		{name: "unterminated string", sql: "SELECT * FROM users WHERE name = 'x"},
		{name: "unbalanced parens", sql: "SELECT * FROM users WHERE id IN (1, 2"},
		{name: "trailing garbage", sql: "SELECT * FROM users users2 extra"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := sqlast.Parse(tc.sql); err == nil {
				t.Fatalf("Parse(%q) should fail", tc.sql)
			}
		})
	}
}

func TestParseTakesFirstStatement(t *testing.T) {
	stmt, err := sqlast.Parse("SELECT * FROM users;")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := stmt.(*sqlast.SelectStmt); !ok {
		t.Fatalf("expected *SelectStmt, got %T", stmt)
	}
}
