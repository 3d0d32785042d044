package renderer

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/form-schema-synth/internal/analyzer"
	"github.com/vitebski/form-schema-synth/internal/layout"
	"github.com/vitebski/form-schema-synth/internal/sanitizer"
	"github.com/vitebski/form-schema-synth/pkg/models"
)

// FlatRenderer renders one table per form plus one per repeating section.
type FlatRenderer struct {
	Options layout.Options
	Logger  *logrus.Logger
}

// Strategy returns models.FlatTables
func (r *FlatRenderer) Strategy() models.Strategy {
	return models.FlatTables
}

// Render emits tables in dependency order, then lookup data, foreign keys,
// indexes, CRUD procedures and the flattened view.
func (r *FlatRenderer) Render(g *analyzer.SchemaGraph) (*ScriptSet, error) {
	l := layout.PlanFlat(g, r.Options)
	set := &ScriptSet{
		Strategy: models.FlatTables,
		FormName: g.FormName,
		Warnings: append(graphWarnings(g), l.Warnings...),
	}
	for _, w := range l.Warnings {
		r.Logger.Warningf("Form %s: %s", g.FormName, w)
	}

	order, err := analyzer.DependencyOrder(l.TableNames(), l.ForeignKeys)
	if err != nil {
		return nil, fmt.Errorf("ordering tables of form %s: %w", g.FormName, err)
	}

	tables := make(map[string]int, len(l.Tables))
	for i, t := range l.Tables {
		tables[t.Name] = i
	}
	lookups := make(map[string]int, len(l.Lookups))
	for i, lk := range l.Lookups {
		lookups[lk.Name] = i
	}

	for _, name := range order {
		if i, ok := lookups[name]; ok {
			set.add(r.lookupTable(l, l.Lookups[i]))
			continue
		}
		set.add(r.dataTable(l, tables[name]))
	}
	for _, lk := range l.Lookups {
		set.add(r.lookupData(l, lk))
	}
	for _, fk := range l.ForeignKeys {
		set.add(Script{
			Name:        qualified(l.Schema, fk.ConstraintName),
			Type:        ConstraintScript,
			Description: fmt.Sprintf("%s.%s references %s.%s", fk.Table, fk.Column, fk.ReferencedTable, fk.ReferencedColumn),
			Content:     addForeignKey(l.Schema, fk.Table, fk.ConstraintName, fk.Column, fk.ReferencedTable, fk.ReferencedColumn, fk.CascadeDelete),
			References:  []string{fk.Table, fk.ReferencedTable},
		})
	}
	for _, ix := range l.Indexes {
		set.add(Script{
			Name:        qualified(l.Schema, ix.Table) + "." + quoteIdent(ix.Name),
			Type:        IndexScript,
			Description: fmt.Sprintf("Index on %s.%s", ix.Table, ix.Column),
			Content:     createIndex(l.Schema, ix.Table, ix.Name, ix.Column),
			References:  []string{ix.Table},
		})
	}
	for _, t := range l.Tables {
		for _, p := range t.Procedures {
			set.add(Script{
				Name:        qualified(l.Schema, p.Name),
				Type:        StoredProcedureScript,
				Description: fmt.Sprintf("%s procedure for %s", p.Kind, t.Name),
				Content:     flatProcedure(l, t, p),
				References:  []string{t.Name},
			})
		}
	}
	set.add(r.view(l))

	set.renumber()
	if err := set.Validate(); err != nil {
		return nil, err
	}

	r.Logger.Infof("Rendered %d scripts for form %s (%d tables, %d lookup tables)",
		len(set.Scripts), g.FormName, len(l.Tables), len(l.Lookups))
	return set, nil
}

func (r *FlatRenderer) dataTable(l *layout.FlatLayout, ti int) Script {
	t := l.Tables[ti]
	var refs []string
	desc := fmt.Sprintf("Main table of form %s", l.FormName)
	if t.Parent >= 0 {
		parent := l.Tables[t.Parent]
		refs = []string{parent.Name}
		desc = fmt.Sprintf("Repeating section %s of %s", t.SectionKey, parent.Name)
	}

	return Script{
		Name:        qualified(l.Schema, t.Name),
		Type:        TableScript,
		Description: desc,
		Content:     createTable(l.Schema, t.Name, columnDefs(l.Columns(ti)), primaryKey(t.KeyColumn)),
		Table:       t.Name,
		References:  refs,
	}
}

func (r *FlatRenderer) lookupTable(l *layout.FlatLayout, lk layout.LookupPlan) Script {
	return Script{
		Name:        qualified(l.Schema, lk.Name),
		Type:        TableScript,
		Description: fmt.Sprintf("Lookup values of %s", lk.FieldName),
		Content:     createTable(l.Schema, lk.Name, columnDefs(lk.Columns()), primaryKey(layout.LookupCodeColumn)),
		Table:       lk.Name,
	}
}

// lookupData inserts each option once; reruns leave existing rows alone.
func (r *FlatRenderer) lookupData(l *layout.FlatLayout, lk layout.LookupPlan) Script {
	fqn := qualified(l.Schema, lk.Name)
	stmts := make([]string, 0, len(lk.Values))
	for _, v := range lk.Values {
		stmts = append(stmts, fmt.Sprintf(
			"IF NOT EXISTS (SELECT 1 FROM %s WHERE %s = %s)\n  INSERT INTO %s (%s, %s) VALUES (%s, %s);",
			fqn, quoteIdent(layout.LookupCodeColumn), QuoteString(v.Code),
			fqn, quoteIdent(layout.LookupCodeColumn), quoteIdent(layout.LookupTextColumn),
			QuoteString(v.Code), QuoteString(v.DisplayText),
		))
	}
	return Script{
		Name:        fqn + " (data)",
		Type:        LookupDataScript,
		Description: fmt.Sprintf("%d value(s) for %s", len(lk.Values), lk.FieldName),
		Content:     strings.Join(stmts, "\n"),
		References:  []string{lk.Name},
	}
}

// view flattens the main table and resolves lookup codes to display text.
func (r *FlatRenderer) view(l *layout.FlatLayout) Script {
	main := l.Main()
	aliases := sanitizer.NewScope(sanitizer.Column)
	aliases.Reserve(layout.MainKeyColumn, layout.CreatedDateColumn, layout.ModifiedDateColumn)
	for _, c := range main.Columns {
		aliases.Reserve(c.Name)
	}

	selects := []string{
		"t." + quoteIdent(layout.MainKeyColumn),
		"t." + quoteIdent(layout.CreatedDateColumn),
		"t." + quoteIdent(layout.ModifiedDateColumn),
	}
	var joins []string
	refs := []string{main.Name}
	for _, c := range main.Columns {
		selects = append(selects, "t."+quoteIdent(c.Name))
		if c.Lookup < 0 {
			continue
		}
		lk := l.Lookups[c.Lookup]
		alias := fmt.Sprintf("l%d", len(joins)+1)
		display := aliases.Claim(sanitizer.Truncate(c.Name, sanitizer.MaxIdentifierLength-len(layout.LookupTextColumn)-1) + "_" + layout.LookupTextColumn)
		selects = append(selects, fmt.Sprintf("%s.%s AS %s", alias, quoteIdent(layout.LookupTextColumn), quoteIdent(display)))
		joins = append(joins, fmt.Sprintf("LEFT JOIN %s AS %s ON %s.%s = t.%s",
			qualified(l.Schema, lk.Name), alias, alias, quoteIdent(layout.LookupCodeColumn), quoteIdent(c.Name)))
		refs = append(refs, lk.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE OR ALTER VIEW %s\nAS\nSELECT\n    %s\nFROM %s AS t",
		qualified(l.Schema, l.ViewName), strings.Join(selects, ",\n    "), qualified(l.Schema, main.Name))
	for _, j := range joins {
		b.WriteString("\n" + j)
	}
	b.WriteString(";")

	return Script{
		Name:        qualified(l.Schema, l.ViewName),
		Type:        ViewScript,
		Description: fmt.Sprintf("Flattened view of %s", main.Name),
		Content:     b.String(),
		References:  refs,
	}
}
