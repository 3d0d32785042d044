package renderer

import (
	"fmt"
	"strings"

	"github.com/vitebski/form-schema-synth/pkg/models"
)

// columnDef is one column of a CREATE TABLE body.
type columnDef struct {
	Name     string
	SQLType  string
	Nullable bool
	Identity bool
	// Default is emitted as a raw SQL expression.
	Default string
}

// columnDefs converts planned columns into CREATE TABLE column definitions.
func columnDefs(cols []models.Column) []columnDef {
	defs := make([]columnDef, 0, len(cols))
	for _, c := range cols {
		defs = append(defs, columnDef{Name: c.Name, SQLType: c.SQLType, Nullable: c.IsNullable, Identity: c.IsIdentity, Default: c.Default})
	}
	return defs
}

// quoteIdent quotes a single identifier segment for SQL Server using
// bracket syntax, escaping any closing brackets.
//
//	name      -> [name]
//	weird]id  -> [weird]]id]
func quoteIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

// qualified quotes a schema-qualified object name: [schema].[name].
func qualified(schema, name string) string {
	return quoteIdent(schema) + "." + quoteIdent(name)
}

// QuoteString renders a Unicode string literal, doubling embedded quotes.
// Line breaks are spliced in with NCHAR so that no literal spans lines and a
// line reading GO can never appear inside one:
//
//	a\nb  -> N'a' + NCHAR(10) + N'b'
func QuoteString(s string) string {
	var b strings.Builder
	b.WriteString("N'")
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString("''")
		case '\r':
			b.WriteString("' + NCHAR(13) + N'")
		case '\n':
			b.WriteString("' + NCHAR(10) + N'")
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// CommentText flattens s onto one line so it can follow "--".
func CommentText(s string) string {
	return strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(s)
}

// createTable wraps CREATE TABLE in an IF OBJECT_ID(...) IS NULL guard since
// T-SQL has no CREATE TABLE IF NOT EXISTS. Extra clauses (keys, unique
// constraints) follow the columns.
func createTable(schema, table string, cols []columnDef, clauses ...string) string {
	lines := make([]string, 0, len(cols)+len(clauses))
	for _, c := range cols {
		var sb strings.Builder
		sb.WriteString(quoteIdent(c.Name))
		sb.WriteByte(' ')
		sb.WriteString(c.SQLType)
		if c.Identity {
			sb.WriteString(" IDENTITY(1,1)")
		}
		if c.Nullable {
			sb.WriteString(" NULL")
		} else {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		lines = append(lines, sb.String())
	}
	lines = append(lines, clauses...)

	fqn := qualified(schema, table)
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  CREATE TABLE %s (\n    %s\n  );\nEND;",
		fqn,
		fqn,
		strings.Join(lines, ",\n    "),
	)
}

// primaryKey renders a PRIMARY KEY clause over the given columns.
func primaryKey(cols ...string) string {
	return fmt.Sprintf("PRIMARY KEY (%s)", quoteList(cols))
}

func quoteList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

// addForeignKey adds a named constraint unless it already exists.
func addForeignKey(schema, table, constraint, column, refTable, refColumn string, cascade bool) string {
	onDelete := "NO ACTION"
	if cascade {
		onDelete = "CASCADE"
	}
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'F') IS NULL\n  ALTER TABLE %s ADD CONSTRAINT %s\n    FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s;",
		qualified(schema, constraint),
		qualified(schema, table),
		quoteIdent(constraint),
		quoteIdent(column),
		qualified(schema, refTable),
		quoteIdent(refColumn),
		onDelete,
	)
}

// createIndex adds a nonclustered index unless one with the name exists on
// the table.
func createIndex(schema, table, index string, cols ...string) string {
	fqn := qualified(schema, table)
	return fmt.Sprintf(
		"IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = %s AND object_id = OBJECT_ID(N'%s'))\n  CREATE NONCLUSTERED INDEX %s ON %s (%s);",
		QuoteString(index),
		fqn,
		quoteIdent(index),
		fqn,
		quoteList(cols),
	)
}

// sqlDefault renders a column default usable as a parameter default.
func sqlDefault(def string) string {
	if strings.TrimSpace(def) == "" {
		return "NULL"
	}
	return def
}
