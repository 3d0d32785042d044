package models

// Column represents a physical column of a synthesized table
type Column struct {
	Name         string
	SQLType      string
	IsNullable   bool
	Default      string
	IsPrimaryKey bool
	IsIdentity   bool
	// FieldName is the control the column was derived from; empty for system columns.
	FieldName   string
	ControlType string
}

// ForeignKey represents a foreign key relationship between synthesized tables
type ForeignKey struct {
	Table            string
	Column           string
	ReferencedTable  string
	ReferencedColumn string
	IsNullable       bool
	ConstraintName   string
	CascadeDelete    bool
}

// TableCategory represents the role a table plays in the synthesized schema
type TableCategory int

const (
	MainTable TableCategory = iota
	SectionTable
	LookupTable
	MetaTable
)

// String returns the display name of the category
func (c TableCategory) String() string {
	switch c {
	case MainTable:
		return "Main"
	case SectionTable:
		return "Section"
	case LookupTable:
		return "Lookup"
	case MetaTable:
		return "Meta"
	default:
		return "Unknown"
	}
}

// TableInfo represents information about a synthesized table
type TableInfo struct {
	Name     string
	Category TableCategory
	Columns  []Column
}

// FormOutcome is the result of synthesizing a single form within a batch
type FormOutcome struct {
	FormName string
	Success  bool
	Reason   string
	Warnings int
}

// BatchSummary represents the result of a multi-form synthesis run
type BatchSummary struct {
	Strategy  Strategy
	Succeeded []string
	Failed    []FormOutcome
	Scripts   int
	Tables    int
}
