// Package bench holds end-to-end benchmarks over the analysis and cache
// layers.
package bench

import (
	"context"
	"testing"

	"github.com/cadabra-cache/cadabra/internal/analysis"
	"github.com/cadabra-cache/cadabra/internal/cache"
)

func BenchmarkAnalyzeSelectRowLookup(b *testing.B) {
	analyzer := analysis.New(nil)
	params := analysis.Positional(analysis.Int(10))

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := analyzer.AnalyzeSelect("SELECT * FROM users WHERE id = ?", params); err != nil {
			b.Fatalf("analyze: %v", err)
		}
	}
}

func BenchmarkAnalyzeSelectJoin(b *testing.B) {
	analyzer := analysis.New(nil)
	sql := "SELECT u.name, o.total FROM users u JOIN orders o ON u.id = o.user_id WHERE o.status = ? ORDER BY o.total DESC LIMIT 20"
	params := analysis.Positional(analysis.Str("open"))

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := analyzer.AnalyzeSelect(sql, params); err != nil {
			b.Fatalf("analyze: %v", err)
		}
	}
}

func BenchmarkAnalyzeWrite(b *testing.B) {
	analyzer := analysis.New(nil)
	params := analysis.Positional(analysis.Str("x@y.z"), analysis.Int(10))

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := analyzer.AnalyzeWrite("UPDATE users SET email = ? WHERE id = ?", params); err != nil {
			b.Fatalf("analyze: %v", err)
		}
	}
}

func BenchmarkRegisterAndInvalidate(b *testing.B) {
	ctx := context.Background()
	c, err := cache.New(ctx, cache.Options{})
	if err != nil {
		b.Fatalf("opening cache: %v", err)
	}
	defer c.Close()

	result := []byte(`[{"id":10,"name":"Ada"}]`)
	selectParams := analysis.Positional(analysis.Int(10))
	writeParams := analysis.Positional(analysis.Str("x@y.z"), analysis.Int(10))

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := c.Register(ctx, "SELECT * FROM users WHERE id = ?", selectParams, result); err != nil {
			b.Fatalf("register: %v", err)
		}
		if _, _, err := c.Invalidate(ctx, "UPDATE users SET email = ? WHERE id = ?", writeParams); err != nil {
			b.Fatalf("invalidate: %v", err)
		}
	}
}
