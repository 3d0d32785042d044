package models

import "strings"

// SectionType is the declared kind of a form section
type SectionType string

const (
	SectionPlain           SectionType = "plain"
	SectionOptional        SectionType = "optional"
	SectionDynamic         SectionType = "dynamic"
	SectionRepeating       SectionType = "repeating"
	SectionNestedRepeating SectionType = "nested-repeating"
	SectionConditional     SectionType = "conditional"
)

// ParseSectionType normalizes a section type string. Unknown values parse as plain.
func ParseSectionType(s string) SectionType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "optional":
		return SectionOptional
	case "dynamic":
		return SectionDynamic
	case "repeating":
		return SectionRepeating
	case "nested-repeating", "nestedrepeating", "nested_repeating":
		return SectionNestedRepeating
	case "conditional":
		return SectionConditional
	default:
		return SectionPlain
	}
}

// IsRepeating reports whether sections of this type get their own table
func (t SectionType) IsRepeating() bool {
	return t == SectionRepeating || t == SectionNestedRepeating
}

// FormModel is the root of one analyzed form
type FormModel struct {
	Name              string             `json:"name"`
	Views             []ViewDefinition   `json:"views"`
	DataColumns       []DataColumn       `json:"dataColumns,omitempty"`
	Metadata          FormMetadata       `json:"metadata"`
	DynamicSections   []DynamicSection   `json:"dynamicSections,omitempty"`
	DeploymentMapping *DeploymentMapping `json:"deploymentMapping,omitempty"`
}

// ViewDefinition is one page of a form
type ViewDefinition struct {
	ViewName string              `json:"viewName"`
	Controls []ControlDefinition `json:"controls"`
	Sections []SectionDefinition `json:"sections"`
}

// SectionDefinition is a logical grouping of controls
type SectionDefinition struct {
	Name          string      `json:"name"`
	Type          SectionType `json:"type"`
	ControlID     string      `json:"controlId,omitempty"`
	ParentSection string      `json:"parentSection,omitempty"`
}

// DataOption is one entry of a closed choice list
type DataOption struct {
	Value       string `json:"value"`
	DisplayText string `json:"displayText"`
	Order       int    `json:"order"`
	IsDefault   bool   `json:"isDefault"`
}

// ControlDefinition is an atomic field of a form
type ControlDefinition struct {
	Name                 string            `json:"name"`
	Label                string            `json:"label,omitempty"`
	Type                 string            `json:"type"`
	Binding              string            `json:"binding,omitempty"`
	ParentSection        string            `json:"parentSection,omitempty"`
	IsInRepeatingSection bool              `json:"isInRepeatingSection,omitempty"`
	RepeatingSectionName string            `json:"repeatingSectionName,omitempty"`
	DataOptions          []DataOption      `json:"dataOptions,omitempty"`
	ColumnSpan           int               `json:"columnSpan,omitempty"`
	RowSpan              int               `json:"rowSpan,omitempty"`
	DocIndex             int               `json:"docIndex"`
	MergedIntoParent     bool              `json:"mergedIntoParent,omitempty"`
	Properties           map[string]string `json:"properties,omitempty"`
}

// FieldName is the name a control is known by in mappings: its name, or
// its binding when the control is unnamed.
func (c ControlDefinition) FieldName() string {
	if strings.TrimSpace(c.Name) != "" {
		return c.Name
	}
	return c.Binding
}

// DataColumn is an inferred, cross-view data column
type DataColumn struct {
	Name        string `json:"name"`
	Binding     string `json:"binding,omitempty"`
	Type        string `json:"type,omitempty"`
	IsRepeating bool   `json:"isRepeating,omitempty"`
}

// FormMetadata holds the analyzer's summary counts
type FormMetadata struct {
	TotalControls     int `json:"totalControls"`
	TotalSections     int `json:"totalSections"`
	DynamicSections   int `json:"dynamicSectionCount"`
	RepeatingSections int `json:"repeatingSectionCount"`
}

// DynamicSection describes a conditionally shown section
type DynamicSection struct {
	Name      string `json:"name"`
	Condition string `json:"condition,omitempty"`
	ControlID string `json:"controlId,omitempty"`
}
