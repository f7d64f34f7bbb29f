package analysis

import (
	"errors"
	"testing"
)

func TestBind(t *testing.T) {
	tests := []struct {
		name   string
		sql    string
		params *Params
		want   string
	}{
		{
			name:   "no params returns input",
			sql:    "SELECT * FROM users WHERE id = 1",
			params: nil,
			want:   "SELECT * FROM users WHERE id = 1",
		},
		{
			name:   "positional in order",
			sql:    "SELECT * FROM users WHERE id = ? AND age > ?",
			params: Positional(Int(10), Int(21)),
			want:   "SELECT * FROM users WHERE id = 10 AND age > 21",
		},
		{
			name:   "string quoting",
			sql:    "SELECT * FROM users WHERE name = ?",
			params: Positional(Str("O'Brien")),
			want:   "SELECT * FROM users WHERE name = 'O''Brien'",
		},
		{
			name:   "null bool and float",
			sql:    "SELECT * FROM t WHERE a = ? AND b = ? AND c = ?",
			params: Positional(Null(), Bool(true), Float(2.5)),
			want:   "SELECT * FROM t WHERE a = NULL AND b = TRUE AND c = 2.5",
		},
		{
			name:   "list expands inside IN parens",
			sql:    "SELECT * FROM users WHERE id IN (?)",
			params: Positional(List(Int(3), Int(1), Int(2))),
			want:   "SELECT * FROM users WHERE id IN (3,1,2)",
		},
		{
			name:   "list outside IN renders as tuple",
			sql:    "SELECT * FROM t WHERE pair = ?",
			params: Positional(List(Int(1), Int(2))),
			want:   "SELECT * FROM t WHERE pair = (1,2)",
		},
		{
			name:   "numbered params by index",
			sql:    "SELECT * FROM t WHERE a = $2 AND b = $1",
			params: Positional(Str("first"), Str("second")),
			want:   "SELECT * FROM t WHERE a = 'second' AND b = 'first'",
		},
		{
			name:   "numbered param out of range stays verbatim",
			sql:    "SELECT * FROM t WHERE a = $1 AND b = $3",
			params: Positional(Int(1)),
			want:   "SELECT * FROM t WHERE a = 1 AND b = $3",
		},
		{
			name:   "named params",
			sql:    "SELECT * FROM t WHERE a >= :min AND a <= :max",
			params: Named(map[string]Value{"min": Int(1), "max": Int(9)}),
			want:   "SELECT * FROM t WHERE a >= 1 AND a <= 9",
		},
		{
			name:   "missing named stays verbatim",
			sql:    "SELECT * FROM t WHERE a = :known AND b = :unknown",
			params: Named(map[string]Value{"known": Int(5)}),
			want:   "SELECT * FROM t WHERE a = 5 AND b = :unknown",
		},
		{
			name:   "exhausted positional stays verbatim",
			sql:    "SELECT * FROM t WHERE a = ? AND b = ?",
			params: Positional(Int(1)),
			want:   "SELECT * FROM t WHERE a = 1 AND b = ?",
		},
		{
			name:   "question mark inside string untouched",
			sql:    "SELECT '?' FROM t WHERE id = ?",
			params: Positional(Int(4)),
			want:   "SELECT '?' FROM t WHERE id = 4",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Bind(tt.sql, tt.params)
			if err != nil {
				t.Fatalf("Bind() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Bind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBindMixedStyles(t *testing.T) {
	_, err := Bind("SELECT * FROM t WHERE a = ? AND b = $1", Positional(Int(1), Int(2)))
	var aerr *AnalysisError
	if !errors.As(err, &aerr) {
		t.Fatalf("Bind() error = %v, want *AnalysisError", err)
	}
	if aerr.Kind != KindUnsupported {
		t.Errorf("error kind = %q, want %q", aerr.Kind, KindUnsupported)
	}
}
