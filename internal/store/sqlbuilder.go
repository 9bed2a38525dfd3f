package store

import (
	"fmt"
	"strings"
)

// Placeholder produces the dialect-specific bind-parameter marker for the
// n-th (1-indexed) argument of a query, e.g. "$1" for lib/pq, "?" for
// modernc.org/sqlite.
type Placeholder func(n int) string

// QuoteIdent double-quotes a SQL identifier, escaping embedded quotes. Both
// backends this module ships (Postgres and SQLite) accept ANSI
// double-quoted identifiers.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// CompileWhere lowers a Predicate into a parameterized SQL WHERE clause
// (without the "WHERE" keyword) and its ordered bind arguments, using ph to
// render each placeholder. A nil predicate compiles to "TRUE" — it admits
// every row, matching Query/Delete's "nil predicate matches everything"
// contract.
func CompileWhere(pred Predicate, ph Placeholder) (string, []any) {
	args := make([]any, 0, 4)
	clause := compile(pred, ph, &args)
	if clause == "" {
		return "TRUE", args
	}
	return clause, args
}

func compile(pred Predicate, ph Placeholder, args *[]any) string {
	switch p := pred.(type) {
	case nil:
		return ""
	case Compare:
		*args = append(*args, p.Value)
		return fmt.Sprintf("%s %s %s", QuoteIdent(p.Column), p.Op, ph(len(*args)))
	case Conjunction:
		left := compile(p.Left, ph, args)
		right := compile(p.Right, ph, args)
		return fmt.Sprintf("(%s AND %s)", left, right)
	default:
		panic(fmt.Sprintf("store: unknown predicate type %T", pred))
	}
}

// BuildCreateTable renders a CREATE TABLE statement for the given column
// names/SQL types (already dialect-mapped by the caller) and optional
// composite primary key.
func BuildCreateTable(name string, columnNames, columnSQLTypes []string, primaryKey []string) string {
	cols := make([]string, len(columnNames))
	for i, n := range columnNames {
		cols[i] = fmt.Sprintf("%s %s", QuoteIdent(n), columnSQLTypes[i])
	}

	var pk string
	if len(primaryKey) > 0 {
		quoted := make([]string, len(primaryKey))
		for i, c := range primaryKey {
			quoted[i] = QuoteIdent(c)
		}
		pk = fmt.Sprintf(", PRIMARY KEY (%s)", strings.Join(quoted, ", "))
	}

	return fmt.Sprintf("CREATE TABLE %s (%s%s)", QuoteIdent(name), strings.Join(cols, ", "), pk)
}

// BuildInsert renders a parameterized INSERT statement for one row's worth
// of columns.
func BuildInsert(name string, columnNames []string, ph Placeholder) string {
	quoted := make([]string, len(columnNames))
	marks := make([]string, len(columnNames))
	for i, n := range columnNames {
		quoted[i] = QuoteIdent(n)
		marks[i] = ph(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", QuoteIdent(name), strings.Join(quoted, ", "), strings.Join(marks, ", "))
}

// BuildSelect renders a parameterized SELECT * ... WHERE statement.
func BuildSelect(name string, whereClause string) string {
	return fmt.Sprintf("SELECT * FROM %s WHERE %s", QuoteIdent(name), whereClause)
}

// BuildDelete renders a parameterized DELETE ... WHERE statement.
func BuildDelete(name string, whereClause string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s", QuoteIdent(name), whereClause)
}
