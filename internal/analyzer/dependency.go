package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vitebski/form-schema-synth/pkg/models"
	"github.com/yourbasic/graph"
)

// buildDependencyGraph indexes tables and adds an edge from every referenced
// table to the table that references it. Self-references and references to
// tables outside the list are ignored.
func buildDependencyGraph(tables []string, foreignKeys []models.ForeignKey) (*graph.Mutable, map[string]int) {
	tableIndexMap := make(map[string]int, len(tables))
	for i, table := range tables {
		tableIndexMap[table] = i
	}

	g := graph.New(len(tables))
	for _, fk := range foreignKeys {
		if fk.Table == fk.ReferencedTable {
			continue
		}
		srcIdx, ok := tableIndexMap[fk.ReferencedTable]
		if !ok {
			continue
		}
		destIdx, ok := tableIndexMap[fk.Table]
		if !ok {
			continue
		}
		// weight 1 for mandatory keys, 2 for optional ones
		weight := int64(2)
		if !fk.IsNullable {
			weight = 1
		}
		g.AddCost(srcIdx, destIdx, weight)
	}
	return g, tableIndexMap
}

// DependencyOrder returns tables ordered so every referenced table precedes
// the tables whose foreign keys reference it. The result is deterministic for
// a given input. A cycle is an error naming the tables involved.
func DependencyOrder(tables []string, foreignKeys []models.ForeignKey) ([]string, error) {
	g, _ := buildDependencyGraph(tables, foreignKeys)

	order, ok := graph.TopSort(graph.Sort(g))
	if !ok {
		circular := CircularTables(tables, foreignKeys)
		names := make([]string, 0, len(circular))
		for table := range circular {
			names = append(names, table)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("circular foreign keys between tables: %s", strings.Join(names, ", "))
	}

	orderedTables := make([]string, 0, len(order))
	for _, idx := range order {
		orderedTables = append(orderedTables, tables[idx])
	}
	return orderedTables, nil
}

// CircularTables returns tables involved in circular dependencies
func CircularTables(tables []string, foreignKeys []models.ForeignKey) map[string]bool {
	g, _ := buildDependencyGraph(tables, foreignKeys)

	circularTables := make(map[string]bool)
	for _, component := range graph.StrongComponents(g) {
		if len(component) < 2 {
			continue
		}
		for _, idx := range component {
			circularTables[tables[idx]] = true
		}
	}
	return circularTables
}
