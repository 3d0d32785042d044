package controltype

import (
	"testing"

	"github.com/vitebski/form-schema-synth/pkg/models"
)

func TestMapSQLType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		controlType string
		want        string
		nullable    bool
	}{
		{controlType: "TextBox", want: "NVARCHAR(255)", nullable: true},
		{controlType: "rich text", want: "NVARCHAR(MAX)", nullable: true},
		{controlType: "PeoplePicker", want: "NVARCHAR(255)", nullable: true},
		{controlType: "hyperlink", want: "NVARCHAR(2048)", nullable: true},
		{controlType: "DatePicker", want: "DATETIME2", nullable: true},
		{controlType: "check-box", want: "BIT", nullable: false},
		{controlType: "NumberBox", want: "DECIMAL(18,4)", nullable: true},
		{controlType: "FileAttachment", want: "VARBINARY(MAX)", nullable: true},
		{controlType: "DropDown", want: "NVARCHAR(255)", nullable: true},
		{controlType: "HologramInput", want: "NVARCHAR(MAX)", nullable: true},
		{controlType: "", want: "NVARCHAR(MAX)", nullable: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.controlType, func(t *testing.T) {
			t.Parallel()

			got := MapSQLType(tt.controlType)
			if got.Name != tt.want {
				t.Fatalf("MapSQLType(%q) = %q, want %q", tt.controlType, got.Name, tt.want)
			}
			if got.Nullable != tt.nullable {
				t.Fatalf("MapSQLType(%q).Nullable = %v, want %v", tt.controlType, got.Nullable, tt.nullable)
			}
		})
	}
}

func TestCheckBoxDefault(t *testing.T) {
	if got := MapSQLType("CheckBox").Default; got != "0" {
		t.Errorf("Expected checkbox default 0, got %q", got)
	}
}

func TestEveryTypeHasARow(t *testing.T) {
	for ct := Unknown; ct <= RepeatingTable; ct++ {
		if _, ok := table[ct]; !ok {
			t.Errorf("Expected a table row for control type %d", ct)
		}
	}
}

func TestHasData(t *testing.T) {
	for _, name := range []string{"Button", "Label", "RepeatingTable", "RepeatingSection", "Section"} {
		if Lookup(name).HasData() {
			t.Errorf("Expected %s to carry no data", name)
		}
	}
	for _, name := range []string{"TextBox", "CheckBox", "DropDown", "Mystery"} {
		if !Lookup(name).HasData() {
			t.Errorf("Expected %s to carry data", name)
		}
	}
}

func TestForControlNumericHint(t *testing.T) {
	c := models.ControlDefinition{
		Name:       "Amount",
		Type:       "TextBox",
		Properties: map[string]string{"dataType": "Decimal"},
	}
	info := ForControl(c)
	if info.SQL.Name != "DECIMAL(18,4)" {
		t.Errorf("Expected numeric hint to map to DECIMAL(18,4), got %s", info.SQL.Name)
	}
	if info.Name != "TextBox" {
		t.Errorf("Expected control type name to stay TextBox, got %s", info.Name)
	}

	c.Type = "DatePicker"
	if got := ForControl(c).SQL.Name; got != "DATETIME2" {
		t.Errorf("Expected hint to be ignored for non-text controls, got %s", got)
	}
}
