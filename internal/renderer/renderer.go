// Package renderer turns an analyzed form into ordered T-SQL scripts under
// one of the storage strategies.
package renderer

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/form-schema-synth/internal/analyzer"
	"github.com/vitebski/form-schema-synth/internal/layout"
	"github.com/vitebski/form-schema-synth/pkg/models"
)

// Renderer emits the scripts of one strategy for a schema graph.
type Renderer interface {
	Strategy() models.Strategy
	Render(g *analyzer.SchemaGraph) (*ScriptSet, error)
}

// New returns the renderer for a strategy. There is no default strategy.
func New(strategy models.Strategy, opts layout.Options, logger *logrus.Logger) (Renderer, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	switch strategy {
	case models.FlatTables:
		return &FlatRenderer{Options: opts, Logger: logger}, nil
	case models.NormalizedQA:
		return &NormalizedRenderer{Options: opts, Logger: logger}, nil
	case models.StrategyUnspecified:
		return nil, models.ErrStrategyRequired
	default:
		return nil, fmt.Errorf("%w: %d", models.ErrUnsupportedStrategy, int(strategy))
	}
}

func graphWarnings(g *analyzer.SchemaGraph) []string {
	warnings := make([]string, 0, len(g.Warnings))
	for _, w := range g.Warnings {
		warnings = append(warnings, fmt.Sprintf("[%s] %s", w.Code, w.Message))
	}
	return warnings
}
