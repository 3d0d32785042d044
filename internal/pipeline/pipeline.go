// Package pipeline runs forms through analysis, rendering and mapping, and
// hands rendered scripts to an executor for deployment.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/form-schema-synth/internal/analyzer"
	"github.com/vitebski/form-schema-synth/internal/connector"
	"github.com/vitebski/form-schema-synth/internal/layout"
	"github.com/vitebski/form-schema-synth/internal/mapping"
	"github.com/vitebski/form-schema-synth/internal/renderer"
	"github.com/vitebski/form-schema-synth/pkg/models"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds SynthesizeBatch when no limit is configured.
const DefaultConcurrency = 4

// Executor runs the batches of a rendered script against a database.
type Executor interface {
	ExecuteBatches(ctx context.Context, batches []string) connector.ExecutionResult
}

// Verifier is implemented by executors that can confirm objects exist after
// a deployment.
type Verifier interface {
	MissingObjects(ctx context.Context, schema string, names []string) ([]string, error)
}

// MappingSaver persists deployment mappings.
type MappingSaver interface {
	Save(ctx context.Context, m *models.DeploymentMapping) error
}

// Synthesizer turns form models into scripts and mappings
type Synthesizer struct {
	Analyzer    *analyzer.SchemaAnalyzer
	Options     layout.Options
	Concurrency int
	// Store receives the mapping of every successful deployment; optional.
	Store  MappingSaver
	Logger *logrus.Logger
}

// FormResult is the synthesis output of one form
type FormResult struct {
	Form    models.FormModel
	Graph   *analyzer.SchemaGraph
	Scripts *renderer.ScriptSet
	Mapping *models.DeploymentMapping
}

// BatchResult holds per-form results in input order and the merged script.
// Results of failed forms are nil.
type BatchResult struct {
	Results []*FormResult
	Scripts *renderer.ScriptSet
	Summary models.BatchSummary
}

// DeployResult reports one deployment
type DeployResult struct {
	Execution connector.ExecutionResult
	Enriched  *models.FormModel
	// Missing lists mapped objects the database could not resolve afterwards.
	Missing []string
}

// NewSynthesizer creates a new synthesizer
func NewSynthesizer(opts layout.Options, concurrency int, logger *logrus.Logger) *Synthesizer {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Synthesizer{
		Analyzer:    analyzer.NewSchemaAnalyzer(logger),
		Options:     opts,
		Concurrency: concurrency,
		Logger:      logger,
	}
}

// SynthesizeForm analyzes and renders one form and builds its mapping.
func (s *Synthesizer) SynthesizeForm(form models.FormModel, strategy models.Strategy) (*FormResult, error) {
	r, err := renderer.New(strategy, s.Options, s.Logger)
	if err != nil {
		return nil, err
	}

	g, err := s.Analyzer.Analyze(form)
	if err != nil {
		return nil, fmt.Errorf("analyzing form: %w", err)
	}
	set, err := r.Render(g)
	if err != nil {
		return nil, fmt.Errorf("rendering form %s: %w", form.Name, err)
	}
	m, err := mapping.Build(form, g, strategy, s.Options)
	if err != nil {
		return nil, fmt.Errorf("building mapping of form %s: %w", form.Name, err)
	}
	m.ScriptChecksum = layout.Checksum(set.Text())

	return &FormResult{Form: form, Graph: g, Scripts: set, Mapping: m}, nil
}

// SynthesizeBatch synthesizes forms concurrently and merges their scripts
// in input order, so the combined script matches a sequential run. A form
// that fails is recorded in the summary and the rest continue. An invalid
// strategy fails the whole batch before any form is processed.
func (s *Synthesizer) SynthesizeBatch(ctx context.Context, forms []models.FormModel, strategy models.Strategy) (*BatchResult, error) {
	if _, err := renderer.New(strategy, s.Options, s.Logger); err != nil {
		return nil, err
	}

	results := make([]*FormResult, len(forms))
	errs := make([]error, len(forms))

	eg, egCtx := errgroup.WithContext(ctx)
	limit := s.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	eg.SetLimit(limit)
	for i := range forms {
		i := i
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			results[i], errs[i] = s.SynthesizeForm(forms[i], strategy)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	batch := &BatchResult{
		Results: make([]*FormResult, len(forms)),
		Scripts: &renderer.ScriptSet{Strategy: strategy},
		Summary: models.BatchSummary{Strategy: strategy},
	}
	tableOwner := make(map[string]string)

	for i, form := range forms {
		name := displayName(form, i)
		res, err := results[i], errs[i]
		if err == nil && strategy == models.FlatTables {
			err = claimTables(tableOwner, res.Scripts.Tables(), name)
		}
		if err == nil {
			err = batch.Scripts.Merge(res.Scripts)
		}
		if err != nil {
			s.Logger.Errorf("Form %s failed: %v", name, err)
			batch.Summary.Failed = append(batch.Summary.Failed, models.FormOutcome{FormName: name, Reason: err.Error()})
			continue
		}

		batch.Results[i] = res
		batch.Summary.Succeeded = append(batch.Summary.Succeeded, name)
		s.Logger.Infof("Form %s synthesized: %d scripts, %d warnings", name, len(res.Scripts.Scripts), len(res.Scripts.Warnings))
	}

	if len(batch.Summary.Succeeded) == 1 {
		batch.Scripts.FormName = batch.Summary.Succeeded[0]
	}
	batch.Summary.Scripts = len(batch.Scripts.Scripts)
	batch.Summary.Tables = len(batch.Scripts.Tables())
	return batch, nil
}

func displayName(form models.FormModel, i int) string {
	if name := strings.TrimSpace(form.Name); name != "" {
		return name
	}
	return fmt.Sprintf("form #%d", i+1)
}

// claimTables records the tables of a form. SQL Server compares names
// case-insensitively, so two forms may not produce tables that differ only
// in case.
func claimTables(owner map[string]string, tables []string, form string) error {
	for _, t := range tables {
		if prev, ok := owner[strings.ToLower(t)]; ok {
			return fmt.Errorf("table %s is already generated by form %s", t, prev)
		}
	}
	for _, t := range tables {
		owner[strings.ToLower(t)] = form
	}
	return nil
}

// Deploy executes a form's script. Only a successful execution is followed
// by enrichment and, when a store is configured, by saving the mapping.
func (s *Synthesizer) Deploy(ctx context.Context, exec Executor, res *FormResult) (*DeployResult, error) {
	if res == nil || res.Scripts == nil {
		return nil, fmt.Errorf("nothing to deploy")
	}

	s.Logger.Infof("Deploying form %s (%d scripts)", res.Form.Name, len(res.Scripts.Scripts))
	out := &DeployResult{Execution: exec.ExecuteBatches(ctx, res.Scripts.Batches())}

	enriched, err := mapping.Enrich(res.Form, res.Mapping, &out.Execution)
	if err != nil {
		s.Logger.Errorf("Deployment of form %s failed: %s", res.Form.Name, out.Execution.Message)
		return out, err
	}
	out.Enriched = &enriched

	if v, ok := exec.(Verifier); ok {
		missing, err := v.MissingObjects(ctx, res.Mapping.SchemaName, mapping.Objects(res.Mapping))
		if err != nil {
			s.Logger.Warningf("Could not verify objects of form %s: %v", res.Form.Name, err)
		} else if len(missing) > 0 {
			out.Missing = missing
			s.Logger.Warningf("Form %s deployed but %d object(s) are missing: %s", res.Form.Name, len(missing), strings.Join(missing, ", "))
		}
	}

	if s.Store != nil {
		if err := s.Store.Save(ctx, res.Mapping); err != nil {
			return out, fmt.Errorf("saving mapping of form %s: %w", res.Form.Name, err)
		}
	}

	s.Logger.Infof("Form %s deployed: %s", res.Form.Name, out.Execution.Message)
	return out, nil
}
