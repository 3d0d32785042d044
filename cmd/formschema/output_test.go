package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vitebski/form-schema-synth/internal/layout"
	"github.com/vitebski/form-schema-synth/internal/pipeline"
	"github.com/vitebski/form-schema-synth/pkg/models"
)

func TestFileNames(t *testing.T) {
	results := []*pipeline.FormResult{
		{Form: models.FormModel{Name: "A B"}},
		nil,
		{Form: models.FormModel{Name: "A_B"}},
		{Form: models.FormModel{Name: "a b"}},
	}

	got := fileNames(results)
	want := []string{"A_B", "", "A_B_2", "a_b_3"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Result %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestWriteOutputsKeepsFormsApart(t *testing.T) {
	s := pipeline.NewSynthesizer(layout.Options{}, 1, nil)
	var results []*pipeline.FormResult
	for _, name := range []string{"A B", "A_B"} {
		form := models.FormModel{
			Name: name,
			Views: []models.ViewDefinition{{
				Controls: []models.ControlDefinition{{Name: "Notes", Type: "TextBox", DocIndex: 1}},
			}},
		}
		res, err := s.SynthesizeForm(form, models.NormalizedQA)
		if err != nil {
			t.Fatalf("SynthesizeForm(%q) returned error: %v", name, err)
		}
		results = append(results, res)
	}

	dir := t.TempDir()
	if err := writeMappings(dir, results); err != nil {
		t.Fatalf("writeMappings returned error: %v", err)
	}
	if err := writeSamples(dir, results, layout.Options{}, 1, 1, nil); err != nil {
		t.Fatalf("writeSamples returned error: %v", err)
	}

	for _, file := range []string{"A_B.mapping.json", "A_B_2.mapping.json", "A_B.sample.sql", "A_B_2.sample.sql"} {
		if _, err := os.Stat(filepath.Join(dir, file)); err != nil {
			t.Errorf("Expected %s to be written: %v", file, err)
		}
	}
}
