package analyzer

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/form-schema-synth/pkg/models"
)

// SchemaAnalyzer partitions a form's controls into main-table columns,
// repeating-section tables and lookup candidates
type SchemaAnalyzer struct {
	Logger *logrus.Logger
}

// NewSchemaAnalyzer creates a new schema analyzer
func NewSchemaAnalyzer(logger *logrus.Logger) *SchemaAnalyzer {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &SchemaAnalyzer{Logger: logger}
}

// sectionDecl is a section merged across all views of a form
type sectionDecl struct {
	def       models.SectionDefinition
	repeating bool
	order     int
}

// analysis holds the state of a single Analyze call
type analysis struct {
	form     models.FormModel
	graph    *SchemaGraph
	sections map[string]*sectionDecl
	declared []string
}

// Analyze builds the schema graph for a form. It performs no I/O and is
// deterministic for a given input.
func (sa *SchemaAnalyzer) Analyze(form models.FormModel) (*SchemaGraph, error) {
	if strings.TrimSpace(form.Name) == "" {
		return nil, fmt.Errorf("form has no name")
	}

	a := &analysis{
		form:     form,
		graph:    newSchemaGraph(form.Name),
		sections: make(map[string]*sectionDecl),
	}

	a.collectSections()
	a.collectControls()
	a.promoteDirectRepeatingSections()
	a.buildTables()
	a.placeControls()
	a.collectLookups()

	g := a.graph
	if len(g.Controls) == 0 && len(g.Tables) == 0 {
		g.warn(WarnEmptyForm, form.Name, "form has no data controls; a minimal main table will be generated")
	}

	for _, w := range g.Warnings {
		sa.Logger.Warningf("Form %s: %s (%s)", form.Name, w.Message, w.Subject)
	}
	sa.Logger.Debugf("Analyzed form %s: %d main columns, %d repeating tables, %d lookup candidates",
		form.Name, len(g.MainColumns), len(g.Tables), len(g.LookupTables))

	return g, nil
}

// collectSections merges section declarations from every view. The first
// declaration of a name wins, but a later repeating declaration promotes it.
func (a *analysis) collectSections() {
	for _, view := range a.form.Views {
		for _, sec := range view.Sections {
			name := strings.TrimSpace(sec.Name)
			if name == "" {
				continue
			}
			sec.Name = name
			sec.Type = models.ParseSectionType(string(sec.Type))
			if existing, ok := a.sections[name]; ok {
				if sec.Type.IsRepeating() && !existing.repeating {
					existing.def.Type = sec.Type
					existing.repeating = true
				}
				continue
			}
			a.sections[name] = &sectionDecl{def: sec, repeating: sec.Type.IsRepeating(), order: len(a.declared)}
			a.declared = append(a.declared, name)
		}
	}
}

// collectControls gathers data-carrying controls in document order,
// skipping controls merged into a parent and duplicate bindings.
func (a *analysis) collectControls() {
	seen := make(map[string]bool)
	for _, view := range a.form.Views {
		controls := make([]models.ControlDefinition, len(view.Controls))
		copy(controls, view.Controls)
		sort.SliceStable(controls, func(i, j int) bool {
			return controls[i].DocIndex < controls[j].DocIndex
		})

		for _, c := range controls {
			if c.MergedIntoParent {
				continue
			}
			key := dedupeKey(c)
			if key != "" && seen[key] {
				continue
			}
			seen[key] = true
			a.graph.Controls = append(a.graph.Controls, c)
		}
	}
}

func dedupeKey(c models.ControlDefinition) string {
	if b := strings.TrimSpace(c.Binding); b != "" {
		return "b:" + b
	}
	if n := strings.TrimSpace(c.Name); n != "" {
		return "n:" + n
	}
	return ""
}

// promoteDirectRepeatingSections makes sure every section named by a
// control's direct repeating flag exists as a repeating section.
func (a *analysis) promoteDirectRepeatingSections() {
	for _, c := range a.graph.Controls {
		if !c.IsInRepeatingSection {
			continue
		}
		name := strings.TrimSpace(c.RepeatingSectionName)
		if name == "" {
			continue
		}
		decl, ok := a.sections[name]
		if !ok {
			a.sections[name] = &sectionDecl{
				def:       models.SectionDefinition{Name: name, Type: models.SectionRepeating},
				repeating: true,
				order:     len(a.declared),
			}
			a.declared = append(a.declared, name)
			a.graph.warn(WarnImplicitRepeatingSection, name,
				fmt.Sprintf("repeating section %q is not declared; creating it under the main table", name))
			continue
		}
		if !decl.repeating {
			decl.repeating = true
			a.graph.warn(WarnPromotedSection, name,
				fmt.Sprintf("section %q is declared %s but holds repeating controls; treating it as repeating", name, decl.def.Type))
		}
	}
}

// nearestRepeating walks up the parentSection chain starting at name
// (inclusive) and returns the first repeating section, or "" for the main
// table. problem is set when the chain names an undeclared section or loops.
func (a *analysis) nearestRepeating(name string, visited map[string]bool) (key string, problem WarningCode) {
	for cur := strings.TrimSpace(name); cur != ""; {
		if visited[cur] {
			return "", WarnSectionCycle
		}
		visited[cur] = true
		decl, ok := a.sections[cur]
		if !ok {
			return "", WarnUnknownSection
		}
		if decl.repeating {
			return cur, ""
		}
		cur = strings.TrimSpace(decl.def.ParentSection)
	}
	return "", ""
}

// buildTables creates one table per repeating section, resolves each table's
// parent, breaks cycles, and lays the arena out in pre-order.
func (a *analysis) buildTables() {
	type node struct {
		key    string
		def    models.SectionDefinition
		parent string
	}

	var nodes []node
	for _, name := range a.declared {
		decl := a.sections[name]
		if !decl.repeating {
			continue
		}
		visited := map[string]bool{name: true}
		parent, problem := a.nearestRepeating(decl.def.ParentSection, visited)
		switch problem {
		case WarnUnknownSection:
			a.graph.warn(WarnUnknownSection, name,
				fmt.Sprintf("section %q names unknown parent %q; attaching it to the main table", name, decl.def.ParentSection))
		case WarnSectionCycle:
			a.graph.warn(WarnSectionCycle, name,
				fmt.Sprintf("section %q has a cyclic parent chain; attaching it to the main table", name))
		}
		nodes = append(nodes, node{key: name, def: decl.def, parent: parent})
	}

	// Repeating sections can still form a cycle among themselves through
	// parent pointers; cut each cycle at the first table that closes it.
	parentOf := make(map[string]string, len(nodes))
	for _, n := range nodes {
		parentOf[n.key] = n.parent
	}
	for i := range nodes {
		seen := map[string]bool{nodes[i].key: true}
		for cur := parentOf[nodes[i].key]; cur != ""; cur = parentOf[cur] {
			if seen[cur] {
				a.graph.warn(WarnSectionCycle, nodes[i].key,
					fmt.Sprintf("section %q is nested inside itself; attaching it to the main table", nodes[i].key))
				nodes[i].parent = ""
				parentOf[nodes[i].key] = ""
				break
			}
			seen[cur] = true
		}
	}

	children := make(map[string][]string)
	var roots []string
	for _, n := range nodes {
		if n.parent == "" {
			roots = append(roots, n.key)
		} else {
			children[n.parent] = append(children[n.parent], n.key)
		}
	}
	defs := make(map[string]models.SectionDefinition, len(nodes))
	for _, n := range nodes {
		defs[n.key] = n.def
	}

	var visit func(key string, parent int, depth int)
	visit = func(key string, parent int, depth int) {
		idx := len(a.graph.Tables)
		parentKey := MainTableKey
		if parent >= 0 {
			parentKey = a.graph.Tables[parent].Key
			a.graph.Tables[parent].Children = append(a.graph.Tables[parent].Children, idx)
		}
		a.graph.Tables = append(a.graph.Tables, RepeatingTable{
			Key:            key,
			Section:        defs[key],
			Parent:         parent,
			ParentTableKey: parentKey,
			Depth:          depth,
		})
		a.graph.tableIndex[key] = idx
		for _, child := range children[key] {
			visit(child, idx, depth+1)
		}
	}
	for _, root := range roots {
		if defs[root].Type == models.SectionNestedRepeating {
			a.graph.warn(WarnOrphanNestedSection, root,
				fmt.Sprintf("nested-repeating section %q has no repeating ancestor; its table references the main table", root))
		}
		visit(root, -1, 1)
	}
}

// placeControls assigns every control to exactly one table.
func (a *analysis) placeControls() {
	g := a.graph
	g.placement = make([]int, len(g.Controls))

	for i, c := range g.Controls {
		table := -1

		switch {
		case c.IsInRepeatingSection && strings.TrimSpace(c.RepeatingSectionName) != "":
			// The direct flag wins over parentSection.
			table = g.tableIndex[strings.TrimSpace(c.RepeatingSectionName)]

		case strings.TrimSpace(c.ParentSection) != "":
			if c.IsInRepeatingSection {
				g.warn(WarnMissingRepeatingName, c.FieldName(),
					fmt.Sprintf("control %q is flagged repeating without a section name; using its parent section", c.FieldName()))
			}
			key, problem := a.nearestRepeating(c.ParentSection, make(map[string]bool))
			switch problem {
			case WarnUnknownSection:
				g.warn(WarnUnknownSection, c.FieldName(),
					fmt.Sprintf("control %q references unknown section %q; placing it in the main table", c.FieldName(), c.ParentSection))
			case WarnSectionCycle:
				g.warn(WarnSectionCycle, c.FieldName(),
					fmt.Sprintf("control %q sits in a cyclic section chain; placing it in the main table", c.FieldName()))
			}
			if key != "" {
				table = g.tableIndex[key]
			}

		case c.IsInRepeatingSection:
			g.warn(WarnMissingRepeatingName, c.FieldName(),
				fmt.Sprintf("control %q is flagged repeating without a section name; placing it in the main table", c.FieldName()))
		}

		g.placement[i] = table
		if table < 0 {
			g.MainColumns = append(g.MainColumns, i)
		} else {
			g.Tables[table].Controls = append(g.Tables[table].Controls, i)
		}
	}
}

func (a *analysis) collectLookups() {
	for i, c := range a.graph.Controls {
		if len(c.DataOptions) > 0 {
			a.graph.LookupTables = append(a.graph.LookupTables, i)
		}
	}
}
