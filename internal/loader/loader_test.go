package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/form-schema-synth/pkg/models"
)

const travelJSON = `{
  "name": "TravelRequest",
  "views": [{
    "viewName": "View 1",
    "sections": [
      {"name": "Trips", "type": "repeating"},
      {"name": "RoundTrip", "type": "nested-repeating", "parentSection": "Trips"}
    ],
    "controls": [
      {"name": "Approved", "type": "DropDown", "docIndex": 1,
       "dataOptions": [{"value": "Yes", "displayText": "Yes", "order": 1}, {"value": "No", "order": 2}]},
      {"name": "DepartureDate", "type": "DatePicker", "docIndex": 2, "parentSection": "RoundTrip",
       "properties": {"format": "short"}}
    ]
  }]
}`

func newLoader(t *testing.T) *Loader {
	t.Helper()
	l, err := New(nil)
	require.NoError(t, err)
	return l
}

func TestParseSingleForm(t *testing.T) {
	forms, err := newLoader(t).Parse([]byte(travelJSON), "travel.json")
	require.NoError(t, err)
	require.Len(t, forms, 1)

	f := forms[0]
	assert.Equal(t, "TravelRequest", f.Name)
	require.Len(t, f.Views, 1)
	assert.Equal(t, models.SectionNestedRepeating, f.Views[0].Sections[1].Type)
	assert.Equal(t, "Trips", f.Views[0].Sections[1].ParentSection)
	require.Len(t, f.Views[0].Controls[0].DataOptions, 2)
	assert.Equal(t, "short", f.Views[0].Controls[1].Properties["format"])
}

func TestParseArray(t *testing.T) {
	doc := `[` + travelJSON + `, {"name": "Blank", "views": [{"viewName": "Empty"}]}]`
	forms, err := newLoader(t).Parse([]byte(doc), "batch.json")
	require.NoError(t, err)
	require.Len(t, forms, 2)
	assert.Equal(t, "Blank", forms[1].Name)
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "not json", doc: `{"name": `},
		{name: "missing views", doc: `{"name": "X"}`},
		{name: "name not a string", doc: `{"name": 7, "views": []}`},
		{name: "section without name", doc: `{"name": "X", "views": [{"sections": [{"type": "repeating"}]}]}`},
		{name: "option without value", doc: `{"name": "X", "views": [{"controls": [{"name": "c", "dataOptions": [{"displayText": "a"}]}]}]}`},
		{name: "fractional doc index", doc: `{"name": "X", "views": [{"controls": [{"name": "c", "docIndex": 1.5}]}]}`},
		{name: "scalar", doc: `"form"`},
	}

	l := newLoader(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Parse([]byte(tt.doc), "bad.json")
			require.ErrorIs(t, err, ErrInvalidForm)
			assert.Contains(t, err.Error(), "bad.json")
		})
	}
}

func TestLoadPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(`{"name": "B", "views": []}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(`{"name": "A", "views": []}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`ignored`), 0o644))
	single := filepath.Join(t.TempDir(), "travel.json")
	require.NoError(t, os.WriteFile(single, []byte(travelJSON), 0o644))

	forms, err := newLoader(t).LoadPaths([]string{dir, single})
	require.NoError(t, err)

	var names []string
	for _, f := range forms {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"A", "B", "TravelRequest"}, names)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := newLoader(t).LoadFile(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
