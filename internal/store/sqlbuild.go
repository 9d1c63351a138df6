package store

import (
	"fmt"
	"strings"
)

// Dialect captures the per-backend differences in generated SQL.
type Dialect struct {
	// QuoteIdent quotes a table, column, or routine name.
	QuoteIdent func(name string) string
	// Placeholder returns the bind marker for the n-th (1-based) parameter.
	Placeholder func(n int) string
}

// QuoteWith returns an identifier quoter that wraps names in open/close and
// doubles any embedded close character, so a name can never leave identifier
// position.
func QuoteWith(open, close string) func(string) string {
	return func(name string) string {
		return open + strings.ReplaceAll(name, close, close+close) + close
	}
}

// BuildInsert renders a multi-row parameterized INSERT for rows of the given
// width and returns the statement along with its flattened arguments.
func BuildInsert(d Dialect, table string, columns []string, rows [][]Cell) (string, []any, error) {
	if table == "" {
		return "", nil, fmt.Errorf("insert: table is empty")
	}
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("insert: columns is empty")
	}
	if len(rows) == 0 {
		return "", nil, fmt.Errorf("insert: no rows")
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.QuoteIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.QuoteIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	n := 0
	for ri, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("insert: row %d has %d cells, want %d", ri+1, len(row), len(columns))
		}
		if ri > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for ci, cell := range row {
			if ci > 0 {
				b.WriteString(", ")
			}
			n++
			b.WriteString(d.Placeholder(n))
			args = append(args, cell.Arg())
		}
		b.WriteByte(')')
	}
	return b.String(), args, nil
}

// EscapeLike escapes LIKE wildcards in s using backslash as the escape character.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
