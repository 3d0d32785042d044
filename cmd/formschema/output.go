package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/form-schema-synth/internal/connector"
	"github.com/vitebski/form-schema-synth/internal/generator"
	"github.com/vitebski/form-schema-synth/internal/layout"
	"github.com/vitebski/form-schema-synth/internal/mapping"
	"github.com/vitebski/form-schema-synth/internal/pipeline"
	"github.com/vitebski/form-schema-synth/internal/sanitizer"
	"github.com/vitebski/form-schema-synth/internal/utils"
	"github.com/vitebski/form-schema-synth/pkg/models"
)

func writeScript(path, text string) error {
	if path == "" || path == "-" {
		_, err := io.WriteString(os.Stdout, text)
		return err
	}
	return os.WriteFile(path, []byte(text), 0o644)
}

// fileNames gives every result a distinct file name stem. Forms whose names
// sanitize alike get _2, _3 suffixes in input order.
func fileNames(results []*pipeline.FormResult) []string {
	scope := sanitizer.NewScope(sanitizer.Table)
	names := make([]string, len(results))
	for i, res := range results {
		if res != nil {
			names[i] = scope.Unique(res.Form.Name)
		}
	}
	return names
}

func writeMappings(dir string, results []*pipeline.FormResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	names := fileNames(results)
	for i, res := range results {
		if res == nil {
			continue
		}
		data, err := json.MarshalIndent(res.Mapping, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal mapping of %s: %w", res.Form.Name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, names[i]+".mapping.json"), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func writeSamples(dir string, results []*pipeline.FormResult, opts layout.Options, count int, seed int64, logger *logrus.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	names := fileNames(results)
	for i, res := range results {
		if res == nil {
			continue
		}
		sg := generator.NewSampleGenerator(seed, logger)
		sg.Submissions = count

		var text string
		switch res.Scripts.Strategy {
		case models.FlatTables:
			text = sg.FlatScript(layout.PlanFlat(res.Graph, opts))
		case models.NormalizedQA:
			var err error
			if text, err = sg.NormalizedScript(layout.PlanNormalized(res.Graph, opts)); err != nil {
				return err
			}
		}
		if err := os.WriteFile(filepath.Join(dir, names[i]+".sample.sql"), []byte(text), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// deployAll deploys every synthesized form in input order and reports
// whether all of them succeeded.
func deployAll(ctx context.Context, s *pipeline.Synthesizer, db *connector.DatabaseConnector, results []*pipeline.FormResult, enrichedDir string, report io.Writer) bool {
	if enrichedDir != "" {
		if err := os.MkdirAll(enrichedDir, 0o755); err != nil {
			s.Logger.Errorf("Failed to create %s: %v", enrichedDir, err)
			return false
		}
	}

	ok := true
	names := fileNames(results)
	for i, res := range results {
		if res == nil {
			continue
		}
		out, err := s.Deploy(ctx, db, res)
		if err != nil {
			s.Logger.Errorf("Form %s: %v", res.Form.Name, err)
			ok = false
			continue
		}
		utils.PrintVerificationResults(report, res.Form.Name, out.Missing)
		if len(out.Missing) > 0 {
			ok = false
		}
		if enrichedDir == "" {
			continue
		}
		data, err := mapping.MarshalEnriched(*out.Enriched)
		if err != nil {
			s.Logger.Errorf("Form %s: %v", res.Form.Name, err)
			ok = false
			continue
		}
		if err := os.WriteFile(filepath.Join(enrichedDir, names[i]+".json"), data, 0o644); err != nil {
			s.Logger.Errorf("Form %s: %v", res.Form.Name, err)
			ok = false
		}
	}
	return ok
}
