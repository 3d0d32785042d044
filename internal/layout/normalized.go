package layout

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/vitebski/form-schema-synth/internal/analyzer"
	"github.com/vitebski/form-schema-synth/internal/controltype"
	"github.com/vitebski/form-schema-synth/internal/sanitizer"
	"github.com/zeebo/xxh3"
)

// Fixed objects of the normalized question/answer meta-schema.
const (
	FormsTable           = "Forms"
	QuestionsTable       = "Questions"
	QuestionOptionsTable = "QuestionOptions"
	SubmissionsTable     = "Submissions"
	AnswersTable         = "Answers"

	SubmitFormProcedure       = "usp_SubmitForm"
	GetSubmissionProcedure    = "usp_GetSubmission"
	ListSubmissionsProcedure  = "usp_ListSubmissions"
	DeleteSubmissionProcedure = "usp_DeleteSubmission"

	FormAnswersView = "vw_FormAnswers"
)

// Answer value columns; a question's SQL type selects one.
const (
	AnswerText   = "AnswerText"
	AnswerNumber = "AnswerNumber"
	AnswerDate   = "AnswerDate"
	AnswerBit    = "AnswerBit"
)

// Widths of the meta-schema's bounded text columns. Values longer than these
// are clipped before they are written.
const (
	FormNameLength    = 255
	FieldNameLength   = 255
	OptionValueLength = 255
)

// MetaTables lists the meta-schema tables.
var MetaTables = []string{FormsTable, QuestionsTable, QuestionOptionsTable, SubmissionsTable, AnswersTable}

// MetaProcedures lists the generic procedures of the meta-schema.
var MetaProcedures = []string{SubmitFormProcedure, GetSubmissionProcedure, ListSubmissionsProcedure, DeleteSubmissionProcedure}

// namespace seeds the name-based form and question ids.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:form-schema-synth"))

// QuestionOption is one registered choice of a question.
type QuestionOption struct {
	Value       string
	DisplayText string
	SortOrder   int
	IsDefault   bool
}

// Question is one control registered as a row of the Questions table.
type Question struct {
	ID           uuid.UUID
	Key          string
	FieldName    string
	Label        string
	ControlType  string
	SQLType      string
	AnswerColumn string
	SectionPath  string
	IsRepeating  bool
	DisplayOrder int
	Options      []QuestionOption
}

// NormalizedLayout is the registration plan of one form under the
// normalized strategy.
type NormalizedLayout struct {
	Schema   string
	FormName string
	// RegisteredName is FormName clipped to the Forms.FormName column; it is
	// the name usp_SubmitForm is called with.
	RegisteredName string
	FormID         uuid.UUID
	Questions []Question
	// Sections lists repeating section paths in pre-order.
	Sections []string
}

// FormID returns the deterministic id of a form name.
func FormID(formName string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(strings.ToLower(strings.TrimSpace(formName))))
}

// PlanNormalized computes question keys and ids for a graph.
func PlanNormalized(g *analyzer.SchemaGraph, opts Options) *NormalizedLayout {
	registered := sanitizer.Clip(g.FormName, FormNameLength)
	l := &NormalizedLayout{
		Schema:         opts.Schema(),
		FormName:       g.FormName,
		RegisteredName: registered,
		FormID:         FormID(registered),
	}
	keys := sanitizer.NewScope(sanitizer.Column)

	for ti := range g.Tables {
		l.Sections = append(l.Sections, strings.Join(g.SectionPath(ti), "/"))
	}

	order := 0
	for ci, c := range g.Controls {
		info := controltype.ForControl(c)
		if !info.HasData() {
			continue
		}
		order++
		key := keys.Unique(c.FieldName())
		q := Question{
			ID:           uuid.NewSHA1(l.FormID, []byte(strings.ToLower(key))),
			Key:          key,
			FieldName:    sanitizer.Clip(c.FieldName(), FieldNameLength),
			Label:        c.Label,
			ControlType:  info.Name,
			SQLType:      info.SQL.Name,
			AnswerColumn: AnswerColumnFor(info.SQL.Name),
			DisplayOrder: order,
		}
		if ti := g.TableOf(ci); ti >= 0 {
			q.SectionPath = strings.Join(g.SectionPath(ti), "/")
			q.IsRepeating = true
		}
		seen := make(map[string]bool)
		for _, o := range c.DataOptions {
			v := sanitizer.Clip(strings.TrimSpace(o.Value), OptionValueLength)
			if v == "" || seen[strings.ToLower(v)] {
				continue
			}
			seen[strings.ToLower(v)] = true
			text := o.DisplayText
			if strings.TrimSpace(text) == "" {
				text = v
			}
			q.Options = append(q.Options, QuestionOption{Value: v, DisplayText: text, SortOrder: o.Order, IsDefault: o.IsDefault})
		}
		l.Questions = append(l.Questions, q)
	}
	return l
}

// AnswerColumnFor picks the typed Answers column for a SQL type.
func AnswerColumnFor(sqlType string) string {
	t := strings.ToUpper(sqlType)
	switch {
	case t == "BIT":
		return AnswerBit
	case strings.HasPrefix(t, "DATE"):
		return AnswerDate
	case strings.HasPrefix(t, "DECIMAL"), strings.HasPrefix(t, "INT"), strings.HasPrefix(t, "NUMERIC"):
		return AnswerNumber
	default:
		return AnswerText
	}
}

// Checksum fingerprints rendered script text.
func Checksum(text string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(text))
}
