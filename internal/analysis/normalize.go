package analysis

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cadabra-cache/cadabra/internal/sqlscan"
)

var ormAliasRe = regexp.MustCompile(`^t[0-9]+$`)

var simpleIdentRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Normalize canonicalizes the SQL text: whitespace collapses to single
// separators, spaces around commas and parentheses disappear, backticks
// around simple identifiers are stripped, ORM-style aliases matching t[0-9]+
// are rewritten back to their table names, and IN (...) literal lists are
// reordered (numeric ascending when all members are numeric, lexicographic
// otherwise). Only the first statement of a batch is retained.
func Normalize(sql string) (string, error) {
	tokens, err := sqlscan.Scan(sql)
	if err != nil {
		return "", parseFailed("scanning for normalization", err)
	}
	tokens = truncateStatement(tokens)
	tokens = rewriteORMAliases(tokens)
	sortInLists(tokens)
	return render(tokens), nil
}

func truncateStatement(tokens []sqlscan.Token) []sqlscan.Token {
	for i, tok := range tokens {
		if tok.Kind == sqlscan.KindEOF || (tok.Kind == sqlscan.KindSymbol && tok.Text == ";") {
			return tokens[:i]
		}
	}
	return tokens
}

// rewriteORMAliases collects alias declarations of the form "table [AS] tN"
// in FROM, JOIN, and UPDATE positions, drops the declarations, and rewrites
// every remaining reference to the alias with the table name.
func rewriteORMAliases(tokens []sqlscan.Token) []sqlscan.Token {
	aliases := make(map[string]string)
	remove := make(map[int]bool)
	inFrom := false
	tryDecl := func(j int) {
		if j >= len(tokens) || tokens[j].Kind != sqlscan.KindIdentifier {
			return
		}
		table := sqlscan.NormalizeIdentifier(tokens[j].Text)
		k := j + 1
		asIdx := -1
		if k < len(tokens) && tokens[k].Kind == sqlscan.KindKeyword && tokens[k].Text == "AS" {
			asIdx = k
			k++
		}
		if k >= len(tokens) || tokens[k].Kind != sqlscan.KindIdentifier {
			return
		}
		alias := sqlscan.NormalizeIdentifier(tokens[k].Text)
		if !ormAliasRe.MatchString(alias) {
			return
		}
		aliases[alias] = table
		if asIdx >= 0 {
			remove[asIdx] = true
		}
		remove[k] = true
	}
	for i, tok := range tokens {
		switch {
		case tok.Kind == sqlscan.KindKeyword:
			switch tok.Text {
			case "FROM", "JOIN", "UPDATE":
				inFrom = true
				tryDecl(i + 1)
			case "WHERE", "GROUP", "HAVING", "ORDER", "LIMIT", "SET",
				"ON", "USING", "UNION", "INTERSECT", "EXCEPT", "VALUES":
				inFrom = false
			}
		case inFrom && tok.Kind == sqlscan.KindSymbol && tok.Text == ",":
			tryDecl(i + 1)
		}
	}
	if len(aliases) == 0 {
		return tokens
	}
	out := make([]sqlscan.Token, 0, len(tokens))
	for i, tok := range tokens {
		if remove[i] {
			continue
		}
		if tok.Kind == sqlscan.KindIdentifier {
			if table, ok := aliases[sqlscan.NormalizeIdentifier(tok.Text)]; ok {
				tok.Text = table
			}
		}
		out = append(out, tok)
	}
	return out
}

// sortInLists reorders the literal members of every IN (...) list in place.
func sortInLists(tokens []sqlscan.Token) {
	for i := 0; i < len(tokens); i++ {
		if tokens[i].Kind != sqlscan.KindKeyword || tokens[i].Text != "IN" {
			continue
		}
		if i+1 >= len(tokens) || tokens[i+1].Kind != sqlscan.KindSymbol || tokens[i+1].Text != "(" {
			continue
		}
		var members []int
		ok := false
		expectLiteral := true
		for j := i + 2; j < len(tokens); j++ {
			tok := tokens[j]
			if expectLiteral {
				if tok.Kind != sqlscan.KindNumber && tok.Kind != sqlscan.KindString {
					break
				}
				members = append(members, j)
				expectLiteral = false
				continue
			}
			if tok.Kind == sqlscan.KindSymbol && tok.Text == "," {
				expectLiteral = true
				continue
			}
			if tok.Kind == sqlscan.KindSymbol && tok.Text == ")" {
				ok = true
			}
			break
		}
		if !ok || len(members) < 2 {
			continue
		}
		texts := make([]string, len(members))
		allNumeric := true
		for j, idx := range members {
			texts[j] = tokens[idx].Text
			if tokens[idx].Kind != sqlscan.KindNumber {
				allNumeric = false
			}
		}
		sort.SliceStable(texts, func(a, b int) bool {
			if allNumeric {
				av, _ := strconv.ParseFloat(texts[a], 64)
				bv, _ := strconv.ParseFloat(texts[b], 64)
				return av < bv
			}
			return literalSortKey(texts[a]) < literalSortKey(texts[b])
		})
		for j, idx := range members {
			tokens[idx].Text = texts[j]
		}
	}
}

func literalSortKey(text string) string {
	if len(text) >= 2 && text[0] == '\'' && text[len(text)-1] == '\'' {
		return strings.ReplaceAll(text[1:len(text)-1], "''", "'")
	}
	return text
}

func render(tokens []sqlscan.Token) string {
	var out strings.Builder
	prev := ""
	for _, tok := range tokens {
		text := tok.Text
		if tok.Kind == sqlscan.KindIdentifier {
			unquoted := sqlscan.NormalizeIdentifier(text)
			if simpleIdentRe.MatchString(unquoted) && !sqlscan.IsKeyword(unquoted) {
				text = unquoted
			}
		}
		if out.Len() > 0 && needsSpace(prev, text) {
			out.WriteByte(' ')
		}
		out.WriteString(text)
		prev = text
	}
	return out.String()
}

func needsSpace(prev, next string) bool {
	switch prev {
	case "(", ".", ",", ")":
		return false
	}
	switch next {
	case ",", ")", ".", "(", ";":
		return false
	}
	return true
}
