// Package mapping records which database objects a form was deployed to.
//
// A mapping is derived from the same layout plan the renderer uses, so the
// mapping and the emitted SQL always agree.
package mapping

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vitebski/form-schema-synth/internal/analyzer"
	"github.com/vitebski/form-schema-synth/internal/connector"
	"github.com/vitebski/form-schema-synth/internal/layout"
	"github.com/vitebski/form-schema-synth/pkg/models"
)

// ErrDeploymentNotSucceeded is returned by Enrich when the deployment failed
// or was never attempted.
var ErrDeploymentNotSucceeded = errors.New("deployment did not succeed")

// Build derives the deployment mapping of a form. It is pure.
func Build(form models.FormModel, g *analyzer.SchemaGraph, strategy models.Strategy, opts layout.Options) (*models.DeploymentMapping, error) {
	if g == nil {
		return nil, fmt.Errorf("form %s has not been analyzed", form.Name)
	}
	if !strings.EqualFold(strings.TrimSpace(form.Name), strings.TrimSpace(g.FormName)) {
		return nil, fmt.Errorf("graph of form %s does not belong to form %s", g.FormName, form.Name)
	}

	switch strategy {
	case models.FlatTables:
		return buildFlat(layout.PlanFlat(g, opts)), nil
	case models.NormalizedQA:
		return buildNormalized(layout.PlanNormalized(g, opts)), nil
	case models.StrategyUnspecified:
		return nil, models.ErrStrategyRequired
	default:
		return nil, fmt.Errorf("%w: %d", models.ErrUnsupportedStrategy, int(strategy))
	}
}

func newMapping(formName string, strategy models.Strategy, schema string) *models.DeploymentMapping {
	return &models.DeploymentMapping{
		FormName:                 formName,
		Strategy:                 strategy.String(),
		SchemaName:               schema,
		ColumnMappings:           []models.ColumnMapping{},
		RepeatingSectionMappings: []models.RepeatingSectionMapping{},
		LookupTableMappings:      []models.LookupTableMapping{},
		StoredProcedures:         []string{},
		Views:                    []string{},
	}
}

func buildFlat(l *layout.FlatLayout) *models.DeploymentMapping {
	m := newMapping(l.FormName, models.FlatTables, l.Schema)
	m.MainTableName = l.Main().Name

	for ti, t := range l.Tables {
		cols := make([]models.ColumnMapping, 0, len(t.Columns))
		for _, c := range t.Columns {
			cols = append(cols, models.ColumnMapping{
				FieldName:     c.FieldName,
				ColumnName:    c.Name,
				TableName:     t.Name,
				SQLType:       c.SQL.Name,
				ControlType:   c.ControlType,
				IsInMainTable: ti == 0,
			})
		}
		m.ColumnMappings = append(m.ColumnMappings, cols...)
		if t.Parent < 0 {
			continue
		}
		m.RepeatingSectionMappings = append(m.RepeatingSectionMappings, models.RepeatingSectionMapping{
			SectionName:      t.SectionKey,
			TableName:        t.Name,
			ParentTableName:  l.Tables[t.Parent].Name,
			ForeignKeyColumn: t.ForeignKey,
			Columns:          cols,
		})
	}

	for _, lk := range l.Lookups {
		m.LookupTableMappings = append(m.LookupTableMappings, models.LookupTableMapping{
			FieldName:       lk.FieldName,
			LookupTableName: lk.Name,
			Values:          lk.Values,
		})
	}
	m.StoredProcedures = append(m.StoredProcedures, l.Procedures()...)
	m.Views = append(m.Views, l.ViewName)
	return m
}

// buildNormalized maps every question onto its typed Answers column. Each
// repeating section path maps onto Answers, keyed by submission and
// instance path.
func buildNormalized(l *layout.NormalizedLayout) *models.DeploymentMapping {
	m := newMapping(l.FormName, models.NormalizedQA, l.Schema)
	m.MainTableName = layout.SubmissionsTable

	bySection := make(map[string][]models.ColumnMapping)
	for _, q := range l.Questions {
		cm := models.ColumnMapping{
			FieldName:     q.FieldName,
			ColumnName:    q.AnswerColumn,
			TableName:     layout.AnswersTable,
			SQLType:       q.SQLType,
			ControlType:   q.ControlType,
			IsInMainTable: !q.IsRepeating,
		}
		m.ColumnMappings = append(m.ColumnMappings, cm)
		if q.IsRepeating {
			bySection[q.SectionPath] = append(bySection[q.SectionPath], cm)
		}
		if len(q.Options) > 0 {
			values := make([]models.LookupValue, 0, len(q.Options))
			for _, o := range q.Options {
				values = append(values, models.LookupValue{Code: o.Value, DisplayText: o.DisplayText})
			}
			m.LookupTableMappings = append(m.LookupTableMappings, models.LookupTableMapping{
				FieldName:       q.FieldName,
				LookupTableName: layout.QuestionOptionsTable,
				Values:          values,
			})
		}
	}

	for _, path := range l.Sections {
		cols := bySection[path]
		if cols == nil {
			cols = []models.ColumnMapping{}
		}
		m.RepeatingSectionMappings = append(m.RepeatingSectionMappings, models.RepeatingSectionMapping{
			SectionName:      path,
			TableName:        layout.AnswersTable,
			ParentTableName:  layout.SubmissionsTable,
			ForeignKeyColumn: "SubmissionId",
			Columns:          cols,
		})
	}

	m.StoredProcedures = append(m.StoredProcedures, layout.MetaProcedures...)
	m.Views = append(m.Views, layout.FormAnswersView)
	return m
}

// Objects lists every named object a mapping claims exists: tables,
// procedures and views.
func Objects(m *models.DeploymentMapping) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	add(m.MainTableName)
	for _, rs := range m.RepeatingSectionMappings {
		add(rs.TableName)
	}
	for _, lk := range m.LookupTableMappings {
		add(lk.LookupTableName)
	}
	for _, p := range m.StoredProcedures {
		add(p)
	}
	for _, v := range m.Views {
		add(v)
	}
	return names
}

// Enrich attaches the mapping to a copy of the form. It refuses when result
// is nil (deployment never attempted) or reports failure.
func Enrich(form models.FormModel, m *models.DeploymentMapping, result *connector.ExecutionResult) (models.FormModel, error) {
	if result == nil {
		return form, fmt.Errorf("%w: form %s was never deployed", ErrDeploymentNotSucceeded, form.Name)
	}
	if !result.Success {
		return form, fmt.Errorf("%w: form %s: %s", ErrDeploymentNotSucceeded, form.Name, result.Message)
	}
	if m == nil {
		return form, fmt.Errorf("no deployment mapping for form %s", form.Name)
	}
	enriched := form
	enriched.DeploymentMapping = m
	return enriched, nil
}

// MarshalEnriched serializes an enriched form as indented JSON.
func MarshalEnriched(form models.FormModel) ([]byte, error) {
	if form.DeploymentMapping == nil {
		return nil, fmt.Errorf("form %s carries no deployment mapping", form.Name)
	}
	data, err := json.MarshalIndent(form, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal enriched form %s: %w", form.Name, err)
	}
	return data, nil
}
