// Package harness loads the synthetic e-commerce dataset shipped under
// testdata/ and renders it into the read/write SQL workload the integration
// tests drive through the cache.
package harness

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/cadabra-cache/cadabra/internal/analysis"
)

// User is one row of the users fixture.
type User struct {
	ID    int64  `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
}

// Product is one row of the products fixture.
type Product struct {
	ID    int64           `json:"id"`
	SKU   string          `json:"sku"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Order is one row of the orders fixture.
type Order struct {
	ID     uuid.UUID       `json:"id"`
	UserID int64           `json:"user_id"`
	Total  decimal.Decimal `json:"total"`
	Status string          `json:"status"`
}

// Dataset is the fully parsed fixture.
type Dataset struct {
	Users    []User
	Products []Product
	Orders   []Order
}

// rawProduct and rawOrder carry the string forms from YAML; prices and order
// ids are validated into decimal.Decimal and uuid.UUID during Parse.
type rawProduct struct {
	ID    int64  `yaml:"id"`
	SKU   string `yaml:"sku"`
	Name  string `yaml:"name"`
	Price string `yaml:"price"`
}

type rawOrder struct {
	ID     string `yaml:"id"`
	UserID int64  `yaml:"user_id"`
	Total  string `yaml:"total"`
	Status string `yaml:"status"`
}

type rawDataset struct {
	Users    []User       `yaml:"users"`
	Products []rawProduct `yaml:"products"`
	Orders   []rawOrder   `yaml:"orders"`
}

// Parse decodes and validates a YAML fixture.
func Parse(data []byte) (*Dataset, error) {
	var raw rawDataset
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing fixture: %w", err)
	}
	if len(raw.Users) == 0 || len(raw.Products) == 0 || len(raw.Orders) == 0 {
		return nil, fmt.Errorf("fixture needs users, products, and orders; got %d/%d/%d",
			len(raw.Users), len(raw.Products), len(raw.Orders))
	}

	d := &Dataset{Users: raw.Users}
	for _, p := range raw.Products {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, fmt.Errorf("product %s: price %q: %w", p.SKU, p.Price, err)
		}
		d.Products = append(d.Products, Product{ID: p.ID, SKU: p.SKU, Name: p.Name, Price: price})
	}
	for _, o := range raw.Orders {
		id, err := uuid.Parse(o.ID)
		if err != nil {
			return nil, fmt.Errorf("order id %q: %w", o.ID, err)
		}
		total, err := decimal.NewFromString(o.Total)
		if err != nil {
			return nil, fmt.Errorf("order %s: total %q: %w", o.ID, o.Total, err)
		}
		d.Orders = append(d.Orders, Order{ID: id, UserID: o.UserID, Total: total, Status: o.Status})
	}
	return d, nil
}

// Load reads and parses a fixture file.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}
	return Parse(data)
}

// Case pairs one cached SELECT with one write and records whether the write
// must evict the cached entry.
type Case struct {
	Name         string
	SelectSQL    string
	SelectParams *analysis.Params
	Result       []byte
	WriteSQL     string
	WriteParams  *analysis.Params
	WantEvicted  bool
}

// Workload renders the dataset into register/write pairs covering row, column,
// aggregate, range, and join precision.
func (d *Dataset) Workload() []Case {
	first, second := d.Users[0], d.Users[1]
	order := d.Orders[0]

	return []Case{
		{
			Name:         "update evicts the row it touches",
			SelectSQL:    "SELECT * FROM users WHERE id = ?",
			SelectParams: analysis.Positional(analysis.Int(first.ID)),
			Result:       mustJSON([]User{first}),
			WriteSQL:     "UPDATE users SET email = ? WHERE id = ?",
			WriteParams:  analysis.Positional(analysis.Str("new@example.com"), analysis.Int(first.ID)),
			WantEvicted:  true,
		},
		{
			Name:         "update spares other rows",
			SelectSQL:    "SELECT * FROM users WHERE id = ?",
			SelectParams: analysis.Positional(analysis.Int(second.ID)),
			Result:       mustJSON([]User{second}),
			WriteSQL:     "UPDATE users SET email = ? WHERE id = ?",
			WriteParams:  analysis.Positional(analysis.Str("new@example.com"), analysis.Int(first.ID)),
			WantEvicted:  false,
		},
		{
			Name:         "update spares unselected columns",
			SelectSQL:    "SELECT name FROM users WHERE id = ?",
			SelectParams: analysis.Positional(analysis.Int(first.ID)),
			Result:       mustJSON([]map[string]string{{"name": first.Name}}),
			WriteSQL:     "UPDATE users SET email = ? WHERE id = ?",
			WriteParams:  analysis.Positional(analysis.Str("new@example.com"), analysis.Int(first.ID)),
			WantEvicted:  false,
		},
		{
			Name:        "insert evicts aggregates",
			SelectSQL:   "SELECT COUNT(*) FROM products",
			Result:      mustJSON([]map[string]int{{"COUNT(*)": len(d.Products)}}),
			WriteSQL:    "INSERT INTO products (id, sku, name, price) VALUES (?, ?, ?, ?)",
			WriteParams: analysis.Positional(analysis.Int(104), analysis.Str("HD-0004"), analysis.Str("Headphones"), analysis.Str("89.99")),
			WantEvicted: true,
		},
		{
			Name:         "delete evicts the order it removes",
			SelectSQL:    "SELECT * FROM orders WHERE id = ?",
			SelectParams: analysis.Positional(analysis.Str(order.ID.String())),
			Result:       mustJSON([]Order{order}),
			WriteSQL:     "DELETE FROM orders WHERE id = ?",
			WriteParams:  analysis.Positional(analysis.Str(order.ID.String())),
			WantEvicted:  true,
		},
		{
			Name:         "range-disjoint update spares the entry",
			SelectSQL:    "SELECT * FROM products WHERE price > ?",
			SelectParams: analysis.Positional(analysis.Int(100)),
			Result:       mustJSON(d.expensiveProducts(decimal.NewFromInt(100))),
			WriteSQL:     "UPDATE products SET name = ? WHERE price < ?",
			WriteParams:  analysis.Positional(analysis.Str("Sale item"), analysis.Int(50)),
			WantEvicted:  false,
		},
		{
			Name:         "join evicts through the joined table",
			SelectSQL:    "SELECT u.name, o.total FROM users u JOIN orders o ON u.id = o.user_id WHERE u.id = ?",
			SelectParams: analysis.Positional(analysis.Int(order.UserID)),
			Result:       mustJSON([]map[string]string{{"name": first.Name, "total": order.Total.String()}}),
			WriteSQL:     "UPDATE orders SET total = ? WHERE id = ?",
			WriteParams:  analysis.Positional(analysis.Str("500.00"), analysis.Str(order.ID.String())),
			WantEvicted:  true,
		},
	}
}

func (d *Dataset) expensiveProducts(threshold decimal.Decimal) []Product {
	var out []Product
	for _, p := range d.Products {
		if p.Price.GreaterThan(threshold) {
			out = append(out, p)
		}
	}
	return out
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
