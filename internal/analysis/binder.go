package analysis

import (
	"strconv"
	"strings"

	"github.com/cadabra-cache/cadabra/internal/sqlscan"
)

// Bind inlines bound parameter values into the SQL text so later stages see
// literal values. Placeholders inside string literals and comments are never
// substituted because detection runs on the token stream.
//
// Exactly one placeholder style may appear: "?" positional, "$N" numbered,
// or ":name" named. Unmatched placeholders remain verbatim. When no
// placeholder is present or params is empty, the input is returned unchanged.
func Bind(sql string, params *Params) (string, error) {
	if params.IsEmpty() {
		return sql, nil
	}
	tokens, err := sqlscan.Scan(sql)
	if err != nil {
		return "", parseFailed("scanning for placeholders", err)
	}
	var paramIdx []int
	for i, tok := range tokens {
		if tok.Kind == sqlscan.KindParam {
			paramIdx = append(paramIdx, i)
		}
	}
	if len(paramIdx) == 0 {
		return sql, nil
	}
	style, err := detectStyle(tokens, paramIdx)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	last := 0
	positional := 0
	for _, i := range paramIdx {
		tok := tokens[i]
		replacement, ok := bindOne(tokens, i, tok, style, params, &positional)
		if !ok {
			continue
		}
		out.WriteString(sql[last:tok.Start])
		out.WriteString(replacement)
		last = tok.End
	}
	out.WriteString(sql[last:])
	return out.String(), nil
}

func detectStyle(tokens []sqlscan.Token, paramIdx []int) (byte, error) {
	var style byte
	for _, i := range paramIdx {
		text := tokens[i].Text
		var s byte
		switch {
		case text == "?":
			s = '?'
		case strings.HasPrefix(text, "$"):
			s = '$'
		default:
			s = ':'
		}
		if style == 0 {
			style = s
		} else if style != s {
			return 0, unsupported("mixed placeholder styles")
		}
	}
	return style, nil
}

// bindOne resolves the literal for one placeholder token. The bool result is
// false when the placeholder must remain verbatim.
func bindOne(tokens []sqlscan.Token, i int, tok sqlscan.Token, style byte, params *Params, positional *int) (string, bool) {
	switch style {
	case '?':
		if *positional >= len(params.Positional) {
			return "", false
		}
		value := params.Positional[*positional]
		*positional++
		return renderPlaceholder(tokens, i, value), true
	case '$':
		n, err := strconv.Atoi(tok.Text[1:])
		if err != nil || n < 1 || n > len(params.Positional) {
			return "", false
		}
		return renderPlaceholder(tokens, i, params.Positional[n-1]), true
	default:
		name := tok.Text[1:]
		value, ok := params.Named[name]
		if !ok {
			return "", false
		}
		return renderPlaceholder(tokens, i, value), true
	}
}

// renderPlaceholder renders a value for the placeholder at token index i.
// Inside an "IN (?)" shape a list value reuses the surrounding parentheses.
func renderPlaceholder(tokens []sqlscan.Token, i int, value Value) string {
	if value.Kind == ValueList && inParenAfterIN(tokens, i) {
		return value.joinScalars()
	}
	return value.SQLLiteral()
}

func inParenAfterIN(tokens []sqlscan.Token, i int) bool {
	if i < 2 || i+1 >= len(tokens) {
		return false
	}
	open := tokens[i-1]
	kw := tokens[i-2]
	closing := tokens[i+1]
	return kw.Kind == sqlscan.KindKeyword && kw.Text == "IN" &&
		open.Kind == sqlscan.KindSymbol && open.Text == "(" &&
		closing.Kind == sqlscan.KindSymbol && closing.Text == ")"
}
