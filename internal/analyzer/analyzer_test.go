package analyzer

import (
	"reflect"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/form-schema-synth/pkg/models"
)

func newTestAnalyzer() *SchemaAnalyzer {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress log output during tests
	return NewSchemaAnalyzer(logger)
}

func singleView(name string, sections []models.SectionDefinition, controls ...models.ControlDefinition) models.FormModel {
	return models.FormModel{
		Name: name,
		Views: []models.ViewDefinition{{
			ViewName: "View 1",
			Sections: sections,
			Controls: controls,
		}},
	}
}

func mustAnalyze(t *testing.T, form models.FormModel) *SchemaGraph {
	t.Helper()
	g, err := newTestAnalyzer().Analyze(form)
	if err != nil {
		t.Fatalf("Analyze(%q) returned error: %v", form.Name, err)
	}
	return g
}

// placedIn returns the key of the table holding the named control, or "" for main.
func placedIn(t *testing.T, g *SchemaGraph, name string) string {
	t.Helper()
	for i, c := range g.Controls {
		if c.Name != name {
			continue
		}
		if ti := g.TableOf(i); ti >= 0 {
			return g.Tables[ti].Key
		}
		return MainTableKey
	}
	t.Fatalf("control %q was not collected", name)
	return ""
}

func TestNewSchemaAnalyzer(t *testing.T) {
	logger := logrus.New()
	analyzer := NewSchemaAnalyzer(logger)
	if analyzer.Logger != logger {
		t.Error("Expected analyzer.Logger to be the given logger")
	}
	if NewSchemaAnalyzer(nil).Logger == nil {
		t.Error("Expected a default logger when none is given")
	}
}

func TestAnalyzeRequiresName(t *testing.T) {
	if _, err := newTestAnalyzer().Analyze(models.FormModel{Name: "  "}); err == nil {
		t.Error("Expected an error for a form without a name")
	}
}

func TestEveryControlPlacedOnce(t *testing.T) {
	form := singleView("Order",
		[]models.SectionDefinition{
			{Name: "Lines", Type: models.SectionRepeating},
			{Name: "Serials", Type: models.SectionNestedRepeating, ParentSection: "Lines"},
			{Name: "Shipping", Type: models.SectionPlain},
		},
		models.ControlDefinition{Name: "Customer", Type: "TextBox", DocIndex: 1},
		models.ControlDefinition{Name: "Street", Type: "TextBox", DocIndex: 2, ParentSection: "Shipping"},
		models.ControlDefinition{Name: "Sku", Type: "TextBox", DocIndex: 3, ParentSection: "Lines"},
		models.ControlDefinition{Name: "Serial", Type: "TextBox", DocIndex: 4, ParentSection: "Serials"},
		models.ControlDefinition{Name: "Ghost", Type: "TextBox", DocIndex: 5, ParentSection: "Nowhere"},
	)
	g := mustAnalyze(t, form)

	placed := len(g.MainColumns)
	for _, tbl := range g.Tables {
		placed += len(tbl.Controls)
	}
	if placed != len(g.Controls) {
		t.Errorf("Expected %d placements, got %d", len(g.Controls), placed)
	}

	want := map[string]string{
		"Customer": MainTableKey,
		"Street":   MainTableKey,
		"Sku":      "Lines",
		"Serial":   "Serials",
		"Ghost":    MainTableKey,
	}
	for name, key := range want {
		if got := placedIn(t, g, name); got != key {
			t.Errorf("Expected %s in %q, got %q", name, key, got)
		}
	}
}

func TestDirectFlagWinsOverParentSection(t *testing.T) {
	form := singleView("Expense",
		[]models.SectionDefinition{
			{Name: "Receipts", Type: models.SectionRepeating},
			{Name: "Mileage", Type: models.SectionRepeating},
		},
		models.ControlDefinition{
			Name:                 "Amount",
			Type:                 "NumberBox",
			ParentSection:        "Mileage",
			IsInRepeatingSection: true,
			RepeatingSectionName: "Receipts",
		},
	)
	g := mustAnalyze(t, form)

	if got := placedIn(t, g, "Amount"); got != "Receipts" {
		t.Errorf("Expected Amount in Receipts, got %q", got)
	}
}

func TestNestedTables(t *testing.T) {
	form := singleView("TravelRequest",
		[]models.SectionDefinition{
			{Name: "RoundTrip", Type: models.SectionNestedRepeating, ParentSection: "Leg"},
			{Name: "Leg", Type: models.SectionPlain, ParentSection: "Trips"},
			{Name: "Trips", Type: models.SectionRepeating},
		},
		models.ControlDefinition{Name: "Destination", Type: "TextBox", ParentSection: "Leg"},
		models.ControlDefinition{Name: "ReturnDate", Type: "DatePicker", ParentSection: "RoundTrip"},
	)
	g := mustAnalyze(t, form)

	if len(g.Tables) != 2 {
		t.Fatalf("Expected 2 tables, got %d", len(g.Tables))
	}
	trips, ok := g.RepeatingTable("Trips")
	if !ok {
		t.Fatal("Expected a Trips table")
	}
	roundTrip, ok := g.RepeatingTable("RoundTrip")
	if !ok {
		t.Fatal("Expected a RoundTrip table")
	}
	// pre-order puts the parent first even though it was declared last
	if g.Tables[0].Key != "Trips" {
		t.Errorf("Expected Trips first, got %s", g.Tables[0].Key)
	}
	if trips.Parent != -1 || trips.ParentTableKey != MainTableKey || trips.Depth != 1 {
		t.Errorf("Unexpected Trips placement: %+v", *trips)
	}
	if roundTrip.Parent != 0 || roundTrip.ParentTableKey != "Trips" || roundTrip.Depth != 2 {
		t.Errorf("Unexpected RoundTrip placement: %+v", *roundTrip)
	}
	if !reflect.DeepEqual(trips.Children, []int{1}) {
		t.Errorf("Expected Trips children [1], got %v", trips.Children)
	}
	if path := g.SectionPath(1); !reflect.DeepEqual(path, []string{"Trips", "RoundTrip"}) {
		t.Errorf("Unexpected section path %v", path)
	}
	if got := placedIn(t, g, "Destination"); got != "Trips" {
		t.Errorf("Expected Destination in Trips, got %q", got)
	}
	if len(g.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", g.Warnings)
	}
}

func TestImplicitAndPromotedSections(t *testing.T) {
	form := singleView("Inspection",
		[]models.SectionDefinition{{Name: "Findings", Type: models.SectionPlain}},
		models.ControlDefinition{Name: "Finding", Type: "TextBox", IsInRepeatingSection: true, RepeatingSectionName: "Findings"},
		models.ControlDefinition{Name: "Photo", Type: "FileUpload", IsInRepeatingSection: true, RepeatingSectionName: "Photos"},
		models.ControlDefinition{Name: "Stray", Type: "TextBox", IsInRepeatingSection: true},
	)
	g := mustAnalyze(t, form)

	if !g.HasWarning(WarnPromotedSection) {
		t.Error("Expected a promoted-section warning")
	}
	if !g.HasWarning(WarnImplicitRepeatingSection) {
		t.Error("Expected an implicit-repeating-section warning")
	}
	if !g.HasWarning(WarnMissingRepeatingName) {
		t.Error("Expected a missing-repeating-name warning")
	}
	if _, ok := g.RepeatingTable("Photos"); !ok {
		t.Error("Expected an implicit Photos table")
	}
	if got := placedIn(t, g, "Finding"); got != "Findings" {
		t.Errorf("Expected Finding in Findings, got %q", got)
	}
	if got := placedIn(t, g, "Stray"); got != MainTableKey {
		t.Errorf("Expected Stray in the main table, got %q", got)
	}
}

func TestUnknownSection(t *testing.T) {
	form := singleView("Survey",
		[]models.SectionDefinition{{Name: "Rows", Type: models.SectionRepeating, ParentSection: "Missing"}},
		models.ControlDefinition{Name: "Answer", Type: "TextBox", ParentSection: "Nope"},
	)
	g := mustAnalyze(t, form)

	count := 0
	for _, w := range g.Warnings {
		if w.Code == WarnUnknownSection {
			count++
		}
	}
	if count != 2 {
		t.Errorf("Expected 2 unknown-section warnings, got %d", count)
	}
	if rows, _ := g.RepeatingTable("Rows"); rows == nil || rows.Parent != -1 {
		t.Error("Expected Rows to hang off the main table")
	}
}

func TestSectionCycles(t *testing.T) {
	form := singleView("Loop",
		[]models.SectionDefinition{
			{Name: "A", Type: models.SectionRepeating, ParentSection: "B"},
			{Name: "B", Type: models.SectionRepeating, ParentSection: "A"},
			{Name: "P1", Type: models.SectionPlain, ParentSection: "P2"},
			{Name: "P2", Type: models.SectionPlain, ParentSection: "P1"},
		},
		models.ControlDefinition{Name: "Inner", Type: "TextBox", ParentSection: "P1"},
	)
	g := mustAnalyze(t, form)

	if !g.HasWarning(WarnSectionCycle) {
		t.Fatal("Expected a section-cycle warning")
	}
	if len(g.Tables) != 2 {
		t.Fatalf("Expected 2 tables, got %d", len(g.Tables))
	}
	for i, tbl := range g.Tables {
		if tbl.Parent >= i {
			t.Errorf("Table %s has parent %d not before it", tbl.Key, tbl.Parent)
		}
	}
	if g.Tables[0].Parent != -1 {
		t.Error("Expected the cycle to be cut at a root table")
	}
	if got := placedIn(t, g, "Inner"); got != MainTableKey {
		t.Errorf("Expected Inner in the main table, got %q", got)
	}
}

func TestOrphanNestedSection(t *testing.T) {
	form := singleView("Orphan",
		[]models.SectionDefinition{{Name: "Items", Type: models.SectionNestedRepeating}},
		models.ControlDefinition{Name: "Qty", Type: "NumberBox", ParentSection: "Items"},
	)
	g := mustAnalyze(t, form)

	if !g.HasWarning(WarnOrphanNestedSection) {
		t.Error("Expected an orphan-nested-section warning")
	}
	if got := placedIn(t, g, "Qty"); got != "Items" {
		t.Errorf("Expected Qty in Items, got %q", got)
	}
}

func TestControlsDeduplicatedAndOrdered(t *testing.T) {
	form := models.FormModel{
		Name: "Contact",
		Views: []models.ViewDefinition{
			{
				ViewName: "Edit",
				Controls: []models.ControlDefinition{
					{Name: "Email", Type: "EmailBox", Binding: "my:Email", DocIndex: 3},
					{Name: "Name", Type: "TextBox", Binding: "my:Name", DocIndex: 1},
					{Name: "NameLabel", Type: "Label", DocIndex: 2, MergedIntoParent: true},
				},
			},
			{
				ViewName: "Print",
				Controls: []models.ControlDefinition{
					{Name: "EmailCopy", Type: "EmailBox", Binding: "my:Email", DocIndex: 1},
					{Name: "Phone", Type: "TextBox", DocIndex: 2},
				},
			},
		},
	}
	g := mustAnalyze(t, form)

	var names []string
	for _, c := range g.Controls {
		names = append(names, c.Name)
	}
	if want := []string{"Name", "Email", "Phone"}; !reflect.DeepEqual(names, want) {
		t.Errorf("Expected controls %v, got %v", want, names)
	}
}

func TestLookupCandidates(t *testing.T) {
	form := singleView("Ticket", nil,
		models.ControlDefinition{Name: "Title", Type: "TextBox", DocIndex: 1},
		models.ControlDefinition{Name: "Priority", Type: "DropDown", DocIndex: 2, DataOptions: []models.DataOption{
			{Value: "High", Order: 1}, {Value: "Low", Order: 2},
		}},
	)
	g := mustAnalyze(t, form)

	if !reflect.DeepEqual(g.LookupTables, []int{1}) {
		t.Errorf("Expected lookup candidates [1], got %v", g.LookupTables)
	}
}

func TestEmptyForm(t *testing.T) {
	g := mustAnalyze(t, models.FormModel{Name: "Blank", Views: []models.ViewDefinition{{ViewName: "Empty"}}})

	if !g.IsEmpty() {
		t.Error("Expected an empty graph")
	}
	if !g.HasWarning(WarnEmptyForm) {
		t.Error("Expected an empty-form warning")
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	form := singleView("Order",
		[]models.SectionDefinition{
			{Name: "Lines", Type: models.SectionRepeating},
			{Name: "Notes", Type: models.SectionRepeating},
		},
		models.ControlDefinition{Name: "Sku", Type: "TextBox", ParentSection: "Lines"},
		models.ControlDefinition{Name: "Note", Type: "TextArea", ParentSection: "Notes"},
	)

	first := mustAnalyze(t, form)
	for i := 0; i < 5; i++ {
		if again := mustAnalyze(t, form); !reflect.DeepEqual(first, again) {
			t.Fatal("Expected identical graphs for identical input")
		}
	}
}

func TestDependencyOrder(t *testing.T) {
	tables := []string{"comments", "posts", "users"}
	foreignKeys := []models.ForeignKey{
		{Table: "posts", Column: "user_id", ReferencedTable: "users", ReferencedColumn: "id"},
		{Table: "comments", Column: "post_id", ReferencedTable: "posts", ReferencedColumn: "id"},
		{Table: "comments", Column: "parent_id", ReferencedTable: "comments", ReferencedColumn: "id", IsNullable: true},
		{Table: "comments", Column: "tag", ReferencedTable: "tags", ReferencedColumn: "code", IsNullable: true},
	}

	ordered, err := DependencyOrder(tables, foreignKeys)
	if err != nil {
		t.Fatalf("DependencyOrder returned error: %v", err)
	}
	if want := []string{"users", "posts", "comments"}; !reflect.DeepEqual(ordered, want) {
		t.Errorf("Expected %v, got %v", want, ordered)
	}
	if circular := CircularTables(tables, foreignKeys); len(circular) != 0 {
		t.Errorf("Expected 0 circular tables, got %d", len(circular))
	}
}

func TestDependencyOrderCycle(t *testing.T) {
	tables := []string{"a", "b", "c"}
	foreignKeys := []models.ForeignKey{
		{Table: "a", Column: "b_id", ReferencedTable: "b", ReferencedColumn: "id"},
		{Table: "b", Column: "a_id", ReferencedTable: "a", ReferencedColumn: "id"},
		{Table: "c", Column: "a_id", ReferencedTable: "a", ReferencedColumn: "id"},
	}

	_, err := DependencyOrder(tables, foreignKeys)
	if err == nil {
		t.Fatal("Expected an error for circular foreign keys")
	}
	if !strings.Contains(err.Error(), "a, b") {
		t.Errorf("Expected the error to name a and b, got %v", err)
	}

	circular := CircularTables(tables, foreignKeys)
	if len(circular) != 2 || !circular["a"] || !circular["b"] {
		t.Errorf("Expected a and b to be circular, got %v", circular)
	}
}
