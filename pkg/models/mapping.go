package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStrategyRequired is returned when no generation strategy was chosen
	ErrStrategyRequired = errors.New("generation strategy is required")
	// ErrUnsupportedStrategy is returned for strategy values outside the enum
	ErrUnsupportedStrategy = errors.New("unsupported generation strategy")
)

// Strategy selects how a schema graph is rendered
type Strategy int

const (
	StrategyUnspecified Strategy = iota
	FlatTables
	NormalizedQA
)

// String returns the stable name of the strategy
func (s Strategy) String() string {
	switch s {
	case FlatTables:
		return "FlatTables"
	case NormalizedQA:
		return "NormalizedQA"
	default:
		return "Unspecified"
	}
}

// ParseStrategy parses a strategy name. An empty value is a caller error,
// never defaulted.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return StrategyUnspecified, ErrStrategyRequired
	case "flat", "flattables", "flat-tables", "flat_tables":
		return FlatTables, nil
	case "normalized", "normalizedqa", "normalized-qa", "normalized_qa", "qa":
		return NormalizedQA, nil
	default:
		return StrategyUnspecified, fmt.Errorf("%w: %q", ErrUnsupportedStrategy, s)
	}
}

// DeploymentMapping records the database objects realized for one form
type DeploymentMapping struct {
	FormName                 string                    `json:"formName"`
	Strategy                 string                    `json:"strategy"`
	SchemaName               string                    `json:"schemaName"`
	MainTableName            string                    `json:"mainTableName"`
	ColumnMappings           []ColumnMapping           `json:"columnMappings"`
	RepeatingSectionMappings []RepeatingSectionMapping `json:"repeatingSectionMappings"`
	LookupTableMappings      []LookupTableMapping      `json:"lookupTableMappings"`
	StoredProcedures         []string                  `json:"storedProcedures"`
	Views                    []string                  `json:"views"`
	ScriptChecksum           string                    `json:"scriptChecksum,omitempty"`
}

// ColumnMapping maps a form field onto a physical column
type ColumnMapping struct {
	FieldName     string `json:"fieldName"`
	ColumnName    string `json:"columnName"`
	TableName     string `json:"tableName"`
	SQLType       string `json:"sqlType"`
	ControlType   string `json:"controlType"`
	IsInMainTable bool   `json:"isInMainTable"`
}

// RepeatingSectionMapping maps a repeating section onto its child table
type RepeatingSectionMapping struct {
	SectionName      string          `json:"sectionName"`
	TableName        string          `json:"tableName"`
	ParentTableName  string          `json:"parentTableName"`
	ForeignKeyColumn string          `json:"foreignKeyColumn"`
	Columns          []ColumnMapping `json:"columns"`
}

// LookupTableMapping maps a closed-choice field onto its lookup table
type LookupTableMapping struct {
	FieldName       string        `json:"fieldName"`
	LookupTableName string        `json:"lookupTableName"`
	Values          []LookupValue `json:"values"`
}

// LookupValue is one code/display pair of a lookup table
type LookupValue struct {
	Code        string `json:"code"`
	DisplayText string `json:"displayText"`
}
