package renderer

import (
	"fmt"
	"strings"

	"github.com/vitebski/form-schema-synth/internal/layout"
	"github.com/vitebski/form-schema-synth/internal/sanitizer"
)

// DefaultPageSize is the @Take default of list procedures.
const DefaultPageSize = 100

// Param is one procedure parameter bound to a column.
type Param struct {
	Name    string
	Column  string
	SQLType string
	Default string
}

// dataParams names one parameter per data column. Names are unique against
// the reserved system parameters and leave room for the @ prefix.
func dataParams(t layout.TablePlan, reserved ...string) []Param {
	scope := sanitizer.NewScope(sanitizer.Column)
	scope.Reserve(reserved...)
	params := make([]Param, 0, len(t.Columns))
	for _, c := range t.Columns {
		def := "NULL"
		if !c.SQL.Nullable {
			def = sqlDefault(c.SQL.Default)
		}
		params = append(params, Param{
			Name:    "@" + scope.Claim(sanitizer.Truncate(c.Name, sanitizer.MaxIdentifierLength-8)),
			Column:  c.Name,
			SQLType: c.SQL.Name,
			Default: def,
		})
	}
	return params
}

// InsertParams returns the data parameters of a table's insert procedure.
// The key, foreign key and item order parameters are not included.
func InsertParams(t layout.TablePlan) []Param {
	if t.Parent >= 0 {
		return dataParams(t, t.KeyColumn, t.ForeignKey, layout.ItemOrderColumn)
	}
	return dataParams(t, t.KeyColumn)
}

func procHeader(schema, name string, params []string) string {
	head := "CREATE OR ALTER PROCEDURE " + qualified(schema, name)
	if len(params) > 0 {
		head += "\n    " + strings.Join(params, ",\n    ")
	}
	return head + "\nAS\nBEGIN\n    SET NOCOUNT ON;\n"
}

func procBody(header string, stmts ...string) string {
	return header + "    " + strings.Join(stmts, "\n    ") + "\nEND;"
}

func declare(params []Param) []string {
	out := make([]string, 0, len(params))
	for _, p := range params {
		out = append(out, fmt.Sprintf("%s %s = %s", p.Name, p.SQLType, p.Default))
	}
	return out
}

func selectColumns(t layout.TablePlan) string {
	cols := []string{t.KeyColumn}
	if t.Parent < 0 {
		cols = append(cols, layout.CreatedDateColumn, layout.ModifiedDateColumn)
	} else {
		cols = append(cols, t.ForeignKey, layout.ItemOrderColumn)
	}
	for _, c := range t.Columns {
		cols = append(cols, c.Name)
	}
	return quoteList(cols)
}

// flatProcedure renders one CRUD procedure of a flat table.
func flatProcedure(l *layout.FlatLayout, t layout.TablePlan, p layout.Procedure) string {
	fqn := qualified(l.Schema, t.Name)
	key := quoteIdent(t.KeyColumn)
	keyParam := "@" + t.KeyColumn

	switch p.Kind {
	case layout.ProcInsert, layout.ProcInsertItem:
		var fixed []string
		var cols, vals []string
		if t.Parent >= 0 {
			fixed = []string{"@" + t.ForeignKey + " INT", "@" + layout.ItemOrderColumn + " INT = 0"}
			cols = []string{t.ForeignKey, layout.ItemOrderColumn}
			vals = []string{"@" + t.ForeignKey, "@" + layout.ItemOrderColumn}
		}
		params := InsertParams(t)
		for _, dp := range params {
			cols = append(cols, dp.Column)
			vals = append(vals, dp.Name)
		}
		decls := append(fixed, declare(params)...)
		decls = append(decls, keyParam+" INT OUTPUT")

		insert := fmt.Sprintf("INSERT INTO %s DEFAULT VALUES;", fqn)
		if len(cols) > 0 {
			insert = fmt.Sprintf("INSERT INTO %s (%s)\n    VALUES (%s);", fqn, quoteList(cols), strings.Join(vals, ", "))
		}
		return procBody(procHeader(l.Schema, p.Name, decls),
			insert,
			fmt.Sprintf("SET %s = CAST(SCOPE_IDENTITY() AS INT);", keyParam))

	case layout.ProcUpdate, layout.ProcUpdateItem:
		reserved := []string{t.KeyColumn}
		if t.Parent >= 0 {
			reserved = append(reserved, layout.ItemOrderColumn)
		}
		params := dataParams(t, reserved...)
		decls := []string{keyParam + " INT"}
		var sets []string
		if t.Parent >= 0 {
			decls = append(decls, "@"+layout.ItemOrderColumn+" INT = NULL")
			sets = append(sets, fmt.Sprintf("%s = ISNULL(@%s, %s)",
				quoteIdent(layout.ItemOrderColumn), layout.ItemOrderColumn, quoteIdent(layout.ItemOrderColumn)))
		}
		decls = append(decls, declare(params)...)
		for _, dp := range params {
			sets = append(sets, fmt.Sprintf("%s = %s", quoteIdent(dp.Column), dp.Name))
		}
		if t.Parent < 0 {
			sets = append(sets, quoteIdent(layout.ModifiedDateColumn)+" = SYSUTCDATETIME()")
		}
		return procBody(procHeader(l.Schema, p.Name, decls),
			fmt.Sprintf("UPDATE %s\n    SET %s\n    WHERE %s = %s;", fqn, strings.Join(sets, ",\n        "), key, keyParam),
			"SELECT @@ROWCOUNT AS RowsAffected;")

	case layout.ProcGet:
		return procBody(procHeader(l.Schema, p.Name, []string{keyParam + " INT"}),
			fmt.Sprintf("SELECT %s\n    FROM %s\n    WHERE %s = %s;", selectColumns(t), fqn, key, keyParam))

	case layout.ProcDelete, layout.ProcDeleteItem:
		return procBody(procHeader(l.Schema, p.Name, []string{keyParam + " INT"}),
			fmt.Sprintf("DELETE FROM %s WHERE %s = %s;", fqn, key, keyParam),
			"SELECT @@ROWCOUNT AS RowsAffected;")

	case layout.ProcList:
		return procBody(procHeader(l.Schema, p.Name, []string{"@Skip INT = 0", fmt.Sprintf("@Take INT = %d", DefaultPageSize)}),
			fmt.Sprintf("SELECT %s\n    FROM %s\n    ORDER BY %s\n    OFFSET @Skip ROWS FETCH NEXT @Take ROWS ONLY;", selectColumns(t), fqn, key))

	case layout.ProcGetByParent:
		fk := "@" + t.ForeignKey
		return procBody(procHeader(l.Schema, p.Name, []string{fk + " INT"}),
			fmt.Sprintf("SELECT %s\n    FROM %s\n    WHERE %s = %s\n    ORDER BY %s, %s;",
				selectColumns(t), fqn, quoteIdent(t.ForeignKey), fk, quoteIdent(layout.ItemOrderColumn), key))
	}
	return ""
}
