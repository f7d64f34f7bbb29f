// Package schemahints extracts primary-key hints from CREATE TABLE DDL. The
// analyzer treats columns named id or uuid as row identifiers; a schema file
// extends that to tables whose primary key is named differently.
package schemahints

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

//nolint:govet // Participle struct tags are DSL, not reflect tags
type schemaFile struct {
	Tables []*createTable `(@@ ";"*)*`
}

//nolint:govet // Participle struct tags are DSL, not reflect tags
type createTable struct {
	Name  string       `"CREATE" "TABLE" ("IF" "NOT" "EXISTS")? @(Ident | QuotedIdent)`
	Items []*tableItem `"(" @@ ("," @@)* ")"`
}

//nolint:govet // Participle struct tags are DSL, not reflect tags
type tableItem struct {
	Constraint *tableConstraint `@@`
	Column     *columnDef       `| @@`
}

//nolint:govet // Participle struct tags are DSL, not reflect tags
type tableConstraint struct {
	Name    string      `("CONSTRAINT" @Ident)?`
	Primary []string    `( "PRIMARY" "KEY" "(" @(Ident | QuotedIdent) ("," @(Ident | QuotedIdent))* ")"`
	Foreign *foreignKey `| @@`
	Unique  []string    `| "UNIQUE" "(" @(Ident | QuotedIdent) ("," @(Ident | QuotedIdent))* ")" )`
}

//nolint:govet // Participle struct tags are DSL, not reflect tags
type foreignKey struct {
	Columns []string    `"FOREIGN" "KEY" "(" @(Ident | QuotedIdent) ("," @(Ident | QuotedIdent))* ")"`
	Refs    *references `@@`
}

//nolint:govet // Participle struct tags are DSL, not reflect tags
type columnDef struct {
	Name  string        `@(Ident | QuotedIdent)`
	Type  *typeName     `@@`
	Attrs []*columnAttr `@@*`
}

//nolint:govet // Participle struct tags are DSL, not reflect tags
type typeName struct {
	Name string   `@Ident`
	Args []string `("(" @Number ("," @Number)* ")")?`
}

//nolint:govet // Participle struct tags are DSL, not reflect tags
type columnAttr struct {
	PrimaryKey bool        `@("PRIMARY" "KEY")`
	NotNull    bool        `| @("NOT" "NULL")`
	Unique     bool        `| @"UNIQUE"`
	AutoInc    bool        `| @("AUTOINCREMENT" | "AUTO_INCREMENT")`
	Default    string      `| "DEFAULT" @(String | Number | Ident)`
	Collate    string      `| "COLLATE" @Ident`
	Refs       *references `| @@`
}

//nolint:govet // Participle struct tags are DSL, not reflect tags
type references struct {
	Table  string `"REFERENCES" @(Ident | QuotedIdent)`
	Column string `("(" @(Ident | QuotedIdent) ")")?`
}

//nolint:govet // Participle DSL uses unkeyed fields
var ddlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{"Whitespace", `[ \t\r\n]+`},
	{"Comment", `--[^\n]*`},
	{"BlockComment", `/\*[\s\S]*?\*/`},
	{"String", `'(?:[^']|'')*'`},
	{"QuotedIdent", "`[^`]+`|\"[^\"]+\""},
	{"Number", `-?[0-9]+(?:\.[0-9]+)?`},
	{"Ident", `[A-Za-z_][A-Za-z0-9_]*`},
	{"Symbol", `[(),;.]`},
})

var ddlParser = participle.MustBuild[schemaFile](
	participle.Lexer(ddlLexer),
	participle.CaseInsensitive("Ident"),
	participle.Elide("Whitespace", "Comment", "BlockComment"),
	participle.UseLookahead(4),
)

// Parse reads CREATE TABLE statements and returns a table-to-primary-key
// mapping. Composite primary keys yield no hint: the row index only tracks
// single-column identifiers.
func Parse(ddl string) (map[string]string, error) {
	if strings.TrimSpace(ddl) == "" {
		return map[string]string{}, nil
	}
	file, err := ddlParser.ParseString("", ddl)
	if err != nil {
		return nil, fmt.Errorf("parsing schema DDL: %w", err)
	}
	hints := make(map[string]string, len(file.Tables))
	for _, table := range file.Tables {
		if pk, ok := primaryKey(table); ok {
			hints[unquote(table.Name)] = pk
		}
	}
	return hints, nil
}

// Load parses the schema file at path.
func Load(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	hints, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("schema file %s: %w", path, err)
	}
	return hints, nil
}

func primaryKey(table *createTable) (string, bool) {
	for _, item := range table.Items {
		if item.Constraint != nil && len(item.Constraint.Primary) == 1 {
			return unquote(item.Constraint.Primary[0]), true
		}
	}
	for _, item := range table.Items {
		if item.Column == nil {
			continue
		}
		for _, attr := range item.Column.Attrs {
			if attr.PrimaryKey {
				return unquote(item.Column.Name), true
			}
		}
	}
	return "", false
}

func unquote(name string) string {
	if len(name) >= 2 {
		switch {
		case name[0] == '`' && name[len(name)-1] == '`',
			name[0] == '"' && name[len(name)-1] == '"':
			return name[1 : len(name)-1]
		}
	}
	return name
}
