// Package layout decides the physical names of everything a schema graph
// turns into: tables, columns, keys, lookup tables, procedures and views.
//
// Both the renderer and the deployment mapping builder read these plans, so
// the emitted SQL and the recorded mapping cannot disagree.
package layout

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/vitebski/form-schema-synth/internal/analyzer"
	"github.com/vitebski/form-schema-synth/internal/controltype"
	"github.com/vitebski/form-schema-synth/internal/sanitizer"
	"github.com/vitebski/form-schema-synth/pkg/models"
)

// DefaultSchema is used when Options.SchemaName is empty.
const DefaultSchema = "dbo"

// System columns of flat tables.
const (
	MainKeyColumn      = "SubmissionId"
	CreatedDateColumn  = "CreatedDate"
	ModifiedDateColumn = "ModifiedDate"
	ItemOrderColumn    = "ItemOrder"
	LookupCodeColumn   = "Code"
	LookupTextColumn   = "DisplayText"
	LookupTextType     = "NVARCHAR(MAX)"

	lookupCodeType = "NVARCHAR(255)"
)

// Options tunes physical naming.
type Options struct {
	SchemaName string
}

// Schema returns the configured schema name or DefaultSchema.
func (o Options) Schema() string {
	if s := strings.TrimSpace(o.SchemaName); s != "" {
		return sanitizer.Sanitize(s, sanitizer.Table)
	}
	return DefaultSchema
}

// ProcedureKind names the CRUD operation a generated procedure performs.
type ProcedureKind string

const (
	ProcInsert      ProcedureKind = "Insert"
	ProcUpdate      ProcedureKind = "Update"
	ProcGet         ProcedureKind = "Get"
	ProcDelete      ProcedureKind = "Delete"
	ProcList        ProcedureKind = "List"
	ProcInsertItem  ProcedureKind = "InsertItem"
	ProcUpdateItem  ProcedureKind = "UpdateItem"
	ProcDeleteItem  ProcedureKind = "DeleteItem"
	ProcGetByParent ProcedureKind = "GetByParent"
)

var (
	mainProcedures    = []ProcedureKind{ProcInsert, ProcUpdate, ProcGet, ProcDelete, ProcList}
	sectionProcedures = []ProcedureKind{ProcInsertItem, ProcUpdateItem, ProcDeleteItem, ProcGetByParent}
)

// Procedure is a generated stored procedure name.
type Procedure struct {
	Kind ProcedureKind
	Name string
}

// ColumnPlan is a data column derived from one control.
type ColumnPlan struct {
	Name         string
	FieldName    string
	Label        string
	ControlIndex int
	ControlType  string
	SQL          controltype.SQLType
	// Lookup is the index into FlatLayout.Lookups, or -1.
	Lookup int
}

// TablePlan is one physical table of the flat strategy.
type TablePlan struct {
	Name       string
	Category   models.TableCategory
	SectionKey string
	GraphIndex int
	KeyColumn  string
	// Parent is the plan index of the parent table, or -1 for the main table.
	Parent     int
	ForeignKey string
	Columns    []ColumnPlan
	Procedures []Procedure
}

// Procedure returns the name of the procedure of the given kind.
func (t TablePlan) Procedure(kind ProcedureKind) string {
	for _, p := range t.Procedures {
		if p.Kind == kind {
			return p.Name
		}
	}
	return ""
}

// LookupPlan is a code/display table backing one closed-choice column.
type LookupPlan struct {
	Name        string
	FieldName   string
	OwnerTable  int
	OwnerColumn string
	CodeType    string
	Values      []models.LookupValue
}

// IndexPlan is a nonclustered index on a foreign key column.
type IndexPlan struct {
	Name   string
	Table  string
	Column string
}

// FlatLayout is the complete naming plan of the flat strategy. Tables[0]
// is the main table; section tables follow in pre-order.
type FlatLayout struct {
	Schema      string
	FormName    string
	Tables      []TablePlan
	Lookups     []LookupPlan
	ForeignKeys []models.ForeignKey
	Indexes     []IndexPlan
	ViewName    string
	Warnings    []string
}

// Main returns the main table plan.
func (l *FlatLayout) Main() *TablePlan {
	return &l.Tables[0]
}

// TableNames returns every table name, lookups first, then data tables.
func (l *FlatLayout) TableNames() []string {
	names := make([]string, 0, len(l.Lookups)+len(l.Tables))
	for _, lk := range l.Lookups {
		names = append(names, lk.Name)
	}
	for _, t := range l.Tables {
		names = append(names, t.Name)
	}
	return names
}

// Procedures returns every procedure name in emission order.
func (l *FlatLayout) Procedures() []string {
	var names []string
	for _, t := range l.Tables {
		for _, p := range t.Procedures {
			names = append(names, p.Name)
		}
	}
	return names
}

// Columns returns the physical columns of table ti: system columns first,
// then one column per data control.
func (l *FlatLayout) Columns(ti int) []models.Column {
	t := l.Tables[ti]
	cols := []models.Column{{Name: t.KeyColumn, SQLType: "INT", IsPrimaryKey: true, IsIdentity: true}}
	if t.Parent < 0 {
		cols = append(cols,
			models.Column{Name: CreatedDateColumn, SQLType: "DATETIME2", Default: "SYSUTCDATETIME()"},
			models.Column{Name: ModifiedDateColumn, SQLType: "DATETIME2", IsNullable: true})
	} else {
		cols = append(cols,
			models.Column{Name: t.ForeignKey, SQLType: "INT"},
			models.Column{Name: ItemOrderColumn, SQLType: "INT", Default: "0"})
	}
	for _, c := range t.Columns {
		cols = append(cols, models.Column{
			Name:        c.Name,
			SQLType:     c.SQL.Name,
			IsNullable:  c.SQL.Nullable,
			Default:     c.SQL.Default,
			FieldName:   c.FieldName,
			ControlType: c.ControlType,
		})
	}
	return cols
}

// Columns returns the code and display columns of a lookup table.
func (lk LookupPlan) Columns() []models.Column {
	return []models.Column{
		{Name: LookupCodeColumn, SQLType: lk.CodeType, IsPrimaryKey: true},
		{Name: LookupTextColumn, SQLType: LookupTextType},
	}
}

// TableInfos describes every table in TableNames order.
func (l *FlatLayout) TableInfos() []models.TableInfo {
	infos := make([]models.TableInfo, 0, len(l.Lookups)+len(l.Tables))
	for _, lk := range l.Lookups {
		infos = append(infos, models.TableInfo{Name: lk.Name, Category: models.LookupTable, Columns: lk.Columns()})
	}
	for i, t := range l.Tables {
		infos = append(infos, models.TableInfo{Name: t.Name, Category: t.Category, Columns: l.Columns(i)})
	}
	return infos
}

// PlanFlat computes the flat-strategy naming plan for a graph. Object names
// (tables, procedures, views, constraints) share one namespace per call.
func PlanFlat(g *analyzer.SchemaGraph, opts Options) *FlatLayout {
	l := &FlatLayout{Schema: opts.Schema(), FormName: g.FormName}
	objects := sanitizer.NewScope(sanitizer.Table)

	mainName := objects.Unique(g.FormName)
	main := TablePlan{
		Name:       mainName,
		Category:   models.MainTable,
		GraphIndex: -1,
		KeyColumn:  MainKeyColumn,
		Parent:     -1,
	}
	mainCols := sanitizer.NewScope(sanitizer.Column)
	mainCols.Reserve(MainKeyColumn, CreatedDateColumn, ModifiedDateColumn)
	main.Columns = planColumns(g, g.MainColumns, mainCols)
	l.Tables = append(l.Tables, main)

	// graph table index -> plan index
	planIndex := make(map[int]int, len(g.Tables))
	for gi, rt := range g.Tables {
		parent := 0
		if rt.Parent >= 0 {
			parent = planIndex[rt.Parent]
		}
		parentPlan := l.Tables[parent]

		cols := sanitizer.NewScope(sanitizer.Column)
		fkColumn := parentPlan.KeyColumn
		cols.Reserve(fkColumn, ItemOrderColumn)
		keyColumn := cols.Claim(sanitizer.Truncate(sanitizer.Sanitize(rt.Key, sanitizer.Column), sanitizer.MaxIdentifierLength-2) + "Id")

		tp := TablePlan{
			Name:       objects.Claim(sanitizer.Join(sanitizer.Table, parentPlan.Name, rt.Key)),
			Category:   models.SectionTable,
			SectionKey: rt.Key,
			GraphIndex: gi,
			KeyColumn:  keyColumn,
			Parent:     parent,
			ForeignKey: fkColumn,
			Columns:    planColumns(g, rt.Controls, cols),
		}
		planIndex[gi] = len(l.Tables)
		l.Tables = append(l.Tables, tp)
	}

	l.planLookups(g, objects)

	for i := range l.Tables {
		kinds := sectionProcedures
		if i == 0 {
			kinds = mainProcedures
		}
		for _, kind := range kinds {
			l.Tables[i].Procedures = append(l.Tables[i].Procedures, Procedure{
				Kind: kind,
				Name: objects.Claim(sanitizer.Truncate("usp_"+l.Tables[i].Name, sanitizer.MaxIdentifierLength-len(kind)-1) + "_" + string(kind)),
			})
		}
	}
	l.ViewName = objects.Claim(sanitizer.Truncate("vw_"+mainName, sanitizer.MaxIdentifierLength))

	l.planKeys(objects)
	return l
}

func planColumns(g *analyzer.SchemaGraph, controls []int, scope *sanitizer.Scope) []ColumnPlan {
	var cols []ColumnPlan
	for _, ci := range controls {
		c := g.Controls[ci]
		info := controltype.ForControl(c)
		if !info.HasData() {
			continue
		}
		cols = append(cols, ColumnPlan{
			Name:         scope.Unique(c.FieldName()),
			FieldName:    c.FieldName(),
			Label:        c.Label,
			ControlIndex: ci,
			ControlType:  info.Name,
			SQL:          info.SQL,
			Lookup:       -1,
		})
	}
	return cols
}

// planLookups creates one lookup table per closed-choice column.
func (l *FlatLayout) planLookups(g *analyzer.SchemaGraph, objects *sanitizer.Scope) {
	owner := make(map[int][2]int) // control index -> (table, column)
	for ti, t := range l.Tables {
		for ci, col := range t.Columns {
			owner[col.ControlIndex] = [2]int{ti, ci}
		}
	}

	for _, ci := range g.LookupTables {
		pos, ok := owner[ci]
		if !ok {
			continue
		}
		table := &l.Tables[pos[0]]
		col := &table.Columns[pos[1]]
		c := g.Controls[ci]

		if controltype.ForControl(c).Category == controltype.CategoryBoolean {
			l.Warnings = append(l.Warnings, fmt.Sprintf("options of checkbox %q are ignored; the column stays BIT", c.FieldName()))
			continue
		}

		codeType := col.SQL.Name
		retype := !strings.HasPrefix(codeType, "NVARCHAR(") || strings.Contains(codeType, "MAX")
		if retype {
			codeType = lookupCodeType
		}

		values, skipped := lookupValues(c.DataOptions, textWidth(codeType))
		if skipped > 0 {
			l.Warnings = append(l.Warnings, fmt.Sprintf("%d empty or duplicate option(s) of %q skipped", skipped, c.FieldName()))
		}
		if len(values) == 0 {
			l.Warnings = append(l.Warnings, fmt.Sprintf("%q has no usable options; no lookup table generated", c.FieldName()))
			continue
		}

		if retype {
			l.Warnings = append(l.Warnings, fmt.Sprintf("column %s.%s retyped from %s to %s to reference its lookup table", table.Name, col.Name, col.SQL.Name, codeType))
			col.SQL = controltype.SQLType{Name: codeType, Nullable: true}
		}

		col.Lookup = len(l.Lookups)
		l.Lookups = append(l.Lookups, LookupPlan{
			Name:        objects.Claim(sanitizer.Join(sanitizer.Table, table.Name, col.Name, "Lookup")),
			FieldName:   c.FieldName(),
			OwnerTable:  pos[0],
			OwnerColumn: col.Name,
			CodeType:    col.SQL.Name,
			Values:      values,
		})
	}
}

// lookupValues orders options by their declared order, clips codes to width
// and drops empty and duplicate codes. Codes compare case-insensitively like
// the primary key.
func lookupValues(options []models.DataOption, width int) ([]models.LookupValue, int) {
	sorted := make([]models.DataOption, len(options))
	copy(sorted, options)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	seen := make(map[string]bool)
	values := make([]models.LookupValue, 0, len(sorted))
	skipped := 0
	for _, o := range sorted {
		code := sanitizer.Clip(strings.TrimSpace(o.Value), width)
		key := strings.ToLower(code)
		if code == "" || seen[key] {
			skipped++
			continue
		}
		seen[key] = true
		text := o.DisplayText
		if strings.TrimSpace(text) == "" {
			text = code
		}
		values = append(values, models.LookupValue{Code: code, DisplayText: text})
	}
	return values, skipped
}

// textWidth returns n for NVARCHAR(n); other types report no bound.
func textWidth(sqlType string) int {
	var n int
	if _, err := fmt.Sscanf(strings.ToUpper(sqlType), "NVARCHAR(%d)", &n); err != nil || n <= 0 {
		return math.MaxInt
	}
	return n
}

// planKeys names every foreign key constraint and its supporting index.
func (l *FlatLayout) planKeys(objects *sanitizer.Scope) {
	// Index names are unique per table.
	indexes := make(map[string]*sanitizer.Scope)
	add := func(table, column, refTable, refColumn string, nullable, cascade bool) {
		if indexes[table] == nil {
			indexes[table] = sanitizer.NewScope(sanitizer.Table)
		}
		l.ForeignKeys = append(l.ForeignKeys, models.ForeignKey{
			Table:            table,
			Column:           column,
			ReferencedTable:  refTable,
			ReferencedColumn: refColumn,
			IsNullable:       nullable,
			ConstraintName:   objects.Claim(sanitizer.Truncate("FK_"+table+"_"+column, sanitizer.MaxIdentifierLength)),
			CascadeDelete:    cascade,
		})
		l.Indexes = append(l.Indexes, IndexPlan{
			Name:   indexes[table].Claim(sanitizer.Truncate("IX_"+table+"_"+column, sanitizer.MaxIdentifierLength)),
			Table:  table,
			Column: column,
		})
	}

	for _, t := range l.Tables {
		if t.Parent >= 0 {
			parent := l.Tables[t.Parent]
			add(t.Name, t.ForeignKey, parent.Name, parent.KeyColumn, false, true)
		}
		for _, col := range t.Columns {
			if col.Lookup >= 0 {
				add(t.Name, col.Name, l.Lookups[col.Lookup].Name, LookupCodeColumn, true, false)
			}
		}
	}
}
