package analyzer

import "github.com/vitebski/form-schema-synth/pkg/models"

// MainTableKey is the parent key of tables that hang off the main table.
const MainTableKey = ""

// WarningCode classifies data-quality findings. Warnings never fail a run.
type WarningCode string

const (
	WarnUnknownSection           WarningCode = "unknown-section"
	WarnMissingRepeatingName     WarningCode = "missing-repeating-name"
	WarnImplicitRepeatingSection WarningCode = "implicit-repeating-section"
	WarnPromotedSection          WarningCode = "promoted-section"
	WarnSectionCycle             WarningCode = "section-cycle"
	WarnOrphanNestedSection      WarningCode = "orphan-nested-section"
	WarnEmptyForm                WarningCode = "empty-form"
)

// Warning is a data-quality issue found while analyzing a form
type Warning struct {
	Code    WarningCode
	Subject string
	Message string
}

// RepeatingTable is one repeating or nested-repeating section table.
// Parent, Children and Controls are indices into the owning SchemaGraph.
type RepeatingTable struct {
	Key            string
	Section        models.SectionDefinition
	Parent         int
	ParentTableKey string
	Children       []int
	Controls       []int
	Depth          int
}

// SchemaGraph is the transient result of analyzing one form. Tables are laid
// out in pre-order, so a parent always has a lower index than its children.
type SchemaGraph struct {
	FormName     string
	Controls     []models.ControlDefinition
	MainColumns  []int
	Tables       []RepeatingTable
	LookupTables []int
	Warnings     []Warning

	placement  []int
	tableIndex map[string]int
}

func newSchemaGraph(formName string) *SchemaGraph {
	return &SchemaGraph{
		FormName:   formName,
		tableIndex: make(map[string]int),
	}
}

func (g *SchemaGraph) warn(code WarningCode, subject, message string) {
	g.Warnings = append(g.Warnings, Warning{Code: code, Subject: subject, Message: message})
}

// RepeatingTable returns the table for a section key
func (g *SchemaGraph) RepeatingTable(key string) (*RepeatingTable, bool) {
	idx, ok := g.tableIndex[key]
	if !ok {
		return nil, false
	}
	return &g.Tables[idx], true
}

// TableOf returns the index of the table control i was placed in, or -1
// for the main table.
func (g *SchemaGraph) TableOf(i int) int {
	if i < 0 || i >= len(g.placement) {
		return -1
	}
	return g.placement[i]
}

// SectionPath returns the section keys from the outermost repeating
// ancestor down to table idx.
func (g *SchemaGraph) SectionPath(idx int) []string {
	var path []string
	for cur := idx; cur >= 0; cur = g.Tables[cur].Parent {
		path = append([]string{g.Tables[cur].Key}, path...)
	}
	return path
}

// IsEmpty reports whether the form produced neither columns nor child tables
func (g *SchemaGraph) IsEmpty() bool {
	return len(g.Controls) == 0 && len(g.Tables) == 0
}

// HasWarning reports whether a warning with the given code was recorded
func (g *SchemaGraph) HasWarning(code WarningCode) bool {
	for _, w := range g.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}
