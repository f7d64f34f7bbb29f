package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ValueKind discriminates the variants of Value.
type ValueKind int

// Value variants.
const (
	ValueNull ValueKind = iota
	ValueInt
	ValueFloat
	ValueBool
	ValueString
	ValueList
)

// Value is the tagged union carried by bound parameters and extracted
// condition operands.
type Value struct {
	Kind     ValueKind
	IntVal   int64
	FloatVal float64
	BoolVal  bool
	StrVal   string
	ListVal  []Value
}

// Null returns the null value.
func Null() Value { return Value{Kind: ValueNull} }

// Int wraps an integer.
func Int(v int64) Value { return Value{Kind: ValueInt, IntVal: v} }

// Float wraps a floating point number.
func Float(v float64) Value { return Value{Kind: ValueFloat, FloatVal: v} }

// Bool wraps a boolean.
func Bool(v bool) Value { return Value{Kind: ValueBool, BoolVal: v} }

// Str wraps a string.
func Str(v string) Value { return Value{Kind: ValueString, StrVal: v} }

// List wraps an ordered list of values.
func List(items ...Value) Value { return Value{Kind: ValueList, ListVal: items} }

// Canonical returns the plain text form used for row identifiers, sorting,
// and the human-readable fingerprint. Strings render without quotes.
func (v Value) Canonical() string {
	switch v.Kind {
	case ValueNull:
		return "NULL"
	case ValueInt:
		return strconv.FormatInt(v.IntVal, 10)
	case ValueFloat:
		return strconv.FormatFloat(v.FloatVal, 'g', -1, 64)
	case ValueBool:
		return strconv.FormatBool(v.BoolVal)
	case ValueString:
		return v.StrVal
	case ValueList:
		parts := make([]string, len(v.ListVal))
		for i, item := range v.ListVal {
			parts[i] = item.Canonical()
		}
		return strings.Join(parts, ",")
	}
	return ""
}

// SQLLiteral renders the value as a SQL literal. Lists render as a
// parenthesized tuple.
func (v Value) SQLLiteral() string {
	switch v.Kind {
	case ValueNull:
		return "NULL"
	case ValueInt:
		return strconv.FormatInt(v.IntVal, 10)
	case ValueFloat:
		return strconv.FormatFloat(v.FloatVal, 'g', -1, 64)
	case ValueBool:
		if v.BoolVal {
			return "TRUE"
		}
		return "FALSE"
	case ValueString:
		return "'" + strings.ReplaceAll(v.StrVal, "'", "''") + "'"
	case ValueList:
		return "(" + v.joinScalars() + ")"
	}
	return "NULL"
}

// joinScalars renders list members comma-joined without surrounding parens,
// for splicing into an existing IN (...) clause.
func (v Value) joinScalars() string {
	parts := make([]string, len(v.ListVal))
	for i, item := range v.ListVal {
		parts[i] = item.SQLLiteral()
	}
	return strings.Join(parts, ",")
}

// Numeric reports the value as an exact decimal when it is a number or a
// numeric-looking string.
func (v Value) Numeric() (decimal.Decimal, bool) {
	switch v.Kind {
	case ValueInt:
		return decimal.NewFromInt(v.IntVal), true
	case ValueFloat:
		return decimal.NewFromFloat(v.FloatVal), true
	case ValueString:
		d, err := decimal.NewFromString(strings.TrimSpace(v.StrVal))
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	}
	return decimal.Decimal{}, false
}

// MarshalJSON renders the native JSON form: null, number, bool, string, or
// array. The representation round-trips through UnmarshalJSON, except that a
// Float with an integral value is written without a fraction and decodes as
// an Int.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueNull:
		return []byte("null"), nil
	case ValueInt:
		return []byte(strconv.FormatInt(v.IntVal, 10)), nil
	case ValueFloat:
		return json.Marshal(v.FloatVal)
	case ValueBool:
		return json.Marshal(v.BoolVal)
	case ValueString:
		return json.Marshal(v.StrVal)
	case ValueList:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v.ListVal {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unknown value kind %d", v.Kind)
}

// UnmarshalJSON infers the variant from the JSON token. Integral numbers
// decode as ValueInt, other numbers as ValueFloat.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty value")
	}
	switch trimmed[0] {
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		items := make([]Value, len(raw))
		for i, r := range raw {
			if err := items[i].UnmarshalJSON(r); err != nil {
				return err
			}
		}
		*v = Value{Kind: ValueList, ListVal: items}
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = Str(s)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case 'n':
		if string(trimmed) != "null" {
			return fmt.Errorf("invalid value %q", trimmed)
		}
		*v = Null()
		return nil
	default:
		text := string(trimmed)
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			*v = Int(i)
			return nil
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return fmt.Errorf("invalid value %q", trimmed)
		}
		*v = Float(f)
		return nil
	}
}

// sortValues orders list members ascending: numerically when every member is
// numeric, lexicographically by canonical form otherwise.
func sortValues(items []Value) []Value {
	sorted := make([]Value, len(items))
	copy(sorted, items)
	allNumeric := true
	for _, item := range sorted {
		if _, ok := item.Numeric(); !ok {
			allNumeric = false
			break
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if allNumeric {
			a, _ := sorted[i].Numeric()
			b, _ := sorted[j].Numeric()
			return a.LessThan(b)
		}
		return sorted[i].Canonical() < sorted[j].Canonical()
	})
	return sorted
}
