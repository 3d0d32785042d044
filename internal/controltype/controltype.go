// Package controltype models the fixed control-type vocabulary of the form
// model as a closed set and maps each type to its SQL column policy.
//
// The table in this file is the only place control types are interpreted;
// adding a control type is a one-row edit.
package controltype

import (
	"strings"

	"github.com/vitebski/form-schema-synth/pkg/models"
)

// ControlType is a member of the closed control-type vocabulary.
type ControlType int

const (
	Unknown ControlType = iota
	TextBox
	RichText
	MultilineText
	PeoplePicker
	Hyperlink
	DropDown
	ComboBox
	ListBox
	RadioButton
	MultiSelect
	CheckBox
	DatePicker
	DateTimePicker
	NumberBox
	FileAttachment
	PictureButton
	Button
	Label
	Expression
	Section
	OptionalSection
	RepeatingSection
	RepeatingTable
)

// Category groups control types by the kind of data they hold.
type Category string

const (
	CategoryText         Category = "text"
	CategoryPerson       Category = "person"
	CategoryChoice       Category = "choice"
	CategoryBoolean      Category = "boolean"
	CategoryDate         Category = "date"
	CategoryNumeric      Category = "numeric"
	CategoryBinary       Category = "binary"
	CategoryPresentation Category = "presentation"
	CategoryContainer    Category = "container"
)

// SQLType is the column policy for a control type.
type SQLType struct {
	Name     string
	Nullable bool
	Default  string
}

// Info describes one control type.
type Info struct {
	Name     string
	Category Category
	Icon     string
	SQL      SQLType
}

// HasData reports whether controls of this kind produce a column.
func (i Info) HasData() bool {
	return i.Category != CategoryPresentation && i.Category != CategoryContainer
}

var (
	nvarchar255 = SQLType{Name: "NVARCHAR(255)", Nullable: true}
	nvarcharMax = SQLType{Name: "NVARCHAR(MAX)", Nullable: true}
	decimalType = SQLType{Name: "DECIMAL(18,4)", Nullable: true}
	noColumn    = SQLType{}
)

var table = map[ControlType]Info{
	Unknown:          {Name: "Unknown", Category: CategoryText, Icon: "question", SQL: nvarcharMax},
	TextBox:          {Name: "TextBox", Category: CategoryText, Icon: "textbox", SQL: nvarchar255},
	RichText:         {Name: "RichText", Category: CategoryText, Icon: "richtext", SQL: nvarcharMax},
	MultilineText:    {Name: "MultilineText", Category: CategoryText, Icon: "textarea", SQL: nvarcharMax},
	PeoplePicker:     {Name: "PeoplePicker", Category: CategoryPerson, Icon: "person", SQL: nvarchar255},
	Hyperlink:        {Name: "Hyperlink", Category: CategoryText, Icon: "link", SQL: SQLType{Name: "NVARCHAR(2048)", Nullable: true}},
	DropDown:         {Name: "DropDown", Category: CategoryChoice, Icon: "dropdown", SQL: nvarchar255},
	ComboBox:         {Name: "ComboBox", Category: CategoryChoice, Icon: "combobox", SQL: nvarchar255},
	ListBox:          {Name: "ListBox", Category: CategoryChoice, Icon: "listbox", SQL: nvarchar255},
	RadioButton:      {Name: "RadioButton", Category: CategoryChoice, Icon: "radio", SQL: nvarchar255},
	MultiSelect:      {Name: "MultiSelect", Category: CategoryChoice, Icon: "multiselect", SQL: nvarchar255},
	CheckBox:         {Name: "CheckBox", Category: CategoryBoolean, Icon: "checkbox", SQL: SQLType{Name: "BIT", Nullable: false, Default: "0"}},
	DatePicker:       {Name: "DatePicker", Category: CategoryDate, Icon: "calendar", SQL: SQLType{Name: "DATETIME2", Nullable: true}},
	DateTimePicker:   {Name: "DateTimePicker", Category: CategoryDate, Icon: "clock", SQL: SQLType{Name: "DATETIME2", Nullable: true}},
	NumberBox:        {Name: "NumberBox", Category: CategoryNumeric, Icon: "number", SQL: decimalType},
	FileAttachment:   {Name: "FileAttachment", Category: CategoryBinary, Icon: "paperclip", SQL: SQLType{Name: "VARBINARY(MAX)", Nullable: true}},
	PictureButton:    {Name: "PictureButton", Category: CategoryBinary, Icon: "image", SQL: SQLType{Name: "VARBINARY(MAX)", Nullable: true}},
	Button:           {Name: "Button", Category: CategoryPresentation, Icon: "button", SQL: noColumn},
	Label:            {Name: "Label", Category: CategoryPresentation, Icon: "label", SQL: noColumn},
	Expression:       {Name: "Expression", Category: CategoryPresentation, Icon: "function", SQL: noColumn},
	Section:          {Name: "Section", Category: CategoryContainer, Icon: "section", SQL: noColumn},
	OptionalSection:  {Name: "OptionalSection", Category: CategoryContainer, Icon: "section", SQL: noColumn},
	RepeatingSection: {Name: "RepeatingSection", Category: CategoryContainer, Icon: "repeat", SQL: noColumn},
	RepeatingTable:   {Name: "RepeatingTable", Category: CategoryContainer, Icon: "table", SQL: noColumn},
}

// aliases maps normalized vocabulary spellings onto control types.
var aliases = map[string]ControlType{
	"textbox": TextBox, "text": TextBox, "textfield": TextBox, "plaintext": TextBox,
	"richtext": RichText, "richtextbox": RichText,
	"multilinetext": MultilineText, "textarea": MultilineText,
	"peoplepicker": PeoplePicker, "personpicker": PeoplePicker, "contactselector": PeoplePicker, "person": PeoplePicker,
	"hyperlink": Hyperlink, "link": Hyperlink, "url": Hyperlink,
	"dropdown": DropDown, "dropdownlist": DropDown, "dropdownlistbox": DropDown, "choice": DropDown,
	"combobox": ComboBox,
	"listbox":  ListBox,
	"radiobutton": RadioButton, "radio": RadioButton, "optionbutton": RadioButton,
	"multiselect": MultiSelect, "multipleselectionlist": MultiSelect, "multiselectlistbox": MultiSelect,
	"checkbox":   CheckBox,
	"datepicker": DatePicker, "date": DatePicker,
	"datetimepicker": DateTimePicker, "datetime": DateTimePicker,
	"numberbox": NumberBox, "number": NumberBox, "numeric": NumberBox, "decimal": NumberBox,
	"fileattachment": FileAttachment, "attachment": FileAttachment, "file": FileAttachment,
	"picturebutton": PictureButton, "picture": PictureButton, "inkpicture": PictureButton,
	"button": Button,
	"label":  Label, "statictext": Label,
	"expression": Expression, "expressionbox": Expression, "calculatedvalue": Expression,
	"section": Section,
	"optionalsection":  OptionalSection,
	"repeatingsection": RepeatingSection,
	"repeatingtable":   RepeatingTable,
}

// numericDataTypes are properties["dataType"] values that turn a text
// control into a numeric column.
var numericDataTypes = map[string]bool{
	"decimal": true, "double": true, "number": true, "integer": true, "int": true, "currency": true, "float": true,
}

// Parse maps a control type string onto the vocabulary. Matching ignores
// case, spaces, dashes and underscores; unknown strings return Unknown.
func Parse(s string) ControlType {
	key := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(s)))
	if ct, ok := aliases[key]; ok {
		return ct
	}
	return Unknown
}

// Info returns the table row for t.
func (t ControlType) Info() Info {
	if info, ok := table[t]; ok {
		return info
	}
	return table[Unknown]
}

// String returns the canonical name of t.
func (t ControlType) String() string {
	return t.Info().Name
}

// Lookup returns the table row for a raw control type string.
func Lookup(controlType string) Info {
	return Parse(controlType).Info()
}

// MapSQLType maps a control type string to its SQL column policy. It is
// total: unknown types map to NVARCHAR(MAX).
func MapSQLType(controlType string) SQLType {
	return Lookup(controlType).SQL
}

// ForControl resolves the row for a concrete control, honoring a numeric
// dataType hint on text controls.
func ForControl(c models.ControlDefinition) Info {
	info := Lookup(c.Type)
	if info.Category == CategoryText && c.Properties != nil {
		if numericDataTypes[strings.ToLower(strings.TrimSpace(c.Properties["dataType"]))] {
			hinted := NumberBox.Info()
			hinted.Name = info.Name
			return hinted
		}
	}
	return info
}
