package generator

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/jaswdr/faker"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/form-schema-synth/internal/controltype"
	"github.com/vitebski/form-schema-synth/internal/layout"
	"github.com/vitebski/form-schema-synth/internal/renderer"
)

// Defaults for NewSampleGenerator
const (
	DefaultSubmissions = 3
	DefaultMaxItems    = 3
)

// dates are drawn from a fixed window so a seed always yields the same script
var dateBase = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// SampleGenerator writes T-SQL scripts that submit fake form data through
// the generated procedures
type SampleGenerator struct {
	Faker       faker.Faker
	Submissions int
	MaxItems    int
	Logger      *logrus.Logger
}

// NewSampleGenerator creates a generator whose output depends only on seed
func NewSampleGenerator(seed int64, logger *logrus.Logger) *SampleGenerator {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &SampleGenerator{
		Faker:       faker.NewWithSeed(rand.NewSource(seed)),
		Submissions: DefaultSubmissions,
		MaxItems:    DefaultMaxItems,
		Logger:      logger,
	}
}

// value is one generated answer in its SQL literal and raw text forms
type value struct {
	SQL string
	Raw string
}

// FlatScript submits sample rows through the Insert and InsertItem procedures
// of a flat layout. Every submission is its own batch; section rows receive
// the key returned by their parent's insert.
func (sg *SampleGenerator) FlatScript(l *layout.FlatLayout) string {
	children := make(map[int][]int)
	for i, t := range l.Tables {
		if t.Parent >= 0 {
			children[t.Parent] = append(children[t.Parent], i)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "-- Sample submissions for %s\n\n", renderer.CommentText(l.FormName))
	for n := 1; n <= sg.submissions(); n++ {
		fmt.Fprintf(&sb, "-- Submission %d\n", n)
		keys, vars := 0, 0
		var insert func(ti int, parentKey string, order int)
		insert = func(ti int, parentKey string, order int) {
			t := l.Tables[ti]
			keys++
			keyVar := fmt.Sprintf("@Key%d", keys)

			var args []string
			kind := layout.ProcInsert
			if t.Parent >= 0 {
				kind = layout.ProcInsertItem
				args = append(args,
					fmt.Sprintf("@%s = %s", t.ForeignKey, parentKey),
					fmt.Sprintf("@%s = %d", layout.ItemOrderColumn, order))
			}
			params := renderer.InsertParams(t)
			for i, col := range t.Columns {
				v, ok := sg.column(l, col)
				if !ok {
					continue
				}
				args = append(args, fmt.Sprintf("%s = %s", params[i].Name, execArg(&sb, &vars, v)))
			}
			args = append(args, fmt.Sprintf("@%s = %s OUTPUT", t.KeyColumn, keyVar))

			fmt.Fprintf(&sb, "DECLARE %s INT;\n", keyVar)
			fmt.Fprintf(&sb, "EXEC %s\n    %s;\n", qualified(l.Schema, t.Procedure(kind)), strings.Join(args, ",\n    "))

			for _, child := range children[ti] {
				count := sg.items()
				for item := 1; item <= count; item++ {
					insert(child, keyVar, item)
				}
			}
		}
		insert(0, "", 0)
		sb.WriteString(renderer.BatchTerminator + "\n\n")
	}

	sg.Logger.Debugf("Generated %d sample submission(s) for %s", sg.submissions(), l.FormName)
	return sb.String()
}

type answer struct {
	Question string `json:"question"`
	Value    string `json:"value"`
	Instance string `json:"instance,omitempty"`
}

type payload struct {
	Answers []answer `json:"answers"`
}

// NormalizedScript submits sample answers through usp_SubmitForm. Repeating
// answers carry an instance path such as Trips[2]/RoundTrip[1].
func (sg *SampleGenerator) NormalizedScript(l *layout.NormalizedLayout) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "-- Sample submissions for %s\n\n", renderer.CommentText(l.FormName))

	for n := 1; n <= sg.submissions(); n++ {
		instances := sg.instances(l.Sections)

		var p payload
		p.Answers = []answer{}
		for _, q := range l.Questions {
			paths := []string{""}
			if q.IsRepeating {
				paths = instances[q.SectionPath]
			}
			var codes []string
			for _, o := range q.Options {
				codes = append(codes, o.Value)
			}
			for _, path := range paths {
				v, ok := sg.generate(q.FieldName, q.ControlType, q.SQLType, codes)
				if !ok {
					continue
				}
				p.Answers = append(p.Answers, answer{Question: q.Key, Value: v.Raw, Instance: path})
			}
		}

		doc, err := json.Marshal(p)
		if err != nil {
			return "", fmt.Errorf("failed to encode sample payload: %w", err)
		}
		fmt.Fprintf(&sb, "-- Submission %d\n", n)
		vars := 0
		formName := execArg(&sb, &vars, text(l.RegisteredName))
		submittedBy := execArg(&sb, &vars, text(sg.Faker.Person().Name()))
		sb.WriteString("DECLARE @SubmissionId BIGINT;\n")
		fmt.Fprintf(&sb, "EXEC %s\n    @FormName = %s,\n    @Payload = %s,\n    @SubmittedBy = %s,\n    @SubmissionId = @SubmissionId OUTPUT;\n",
			qualified(l.Schema, layout.SubmitFormProcedure), formName, execArg(&sb, &vars, text(string(doc))), submittedBy)
		sb.WriteString(renderer.BatchTerminator + "\n\n")
	}

	sg.Logger.Debugf("Generated %d sample payload(s) for %s", sg.submissions(), l.FormName)
	return sb.String(), nil
}

// instances expands section paths (parents listed first) into instance
// paths for one submission.
func (sg *SampleGenerator) instances(sections []string) map[string][]string {
	out := make(map[string][]string, len(sections))
	for _, section := range sections {
		parents := []string{""}
		name := section
		if i := strings.LastIndex(section, "/"); i >= 0 {
			parents = out[section[:i]]
			name = section[i+1:]
		}
		for _, parent := range parents {
			count := sg.items()
			for item := 1; item <= count; item++ {
				path := fmt.Sprintf("%s[%d]", name, item)
				if parent != "" {
					path = parent + "/" + path
				}
				out[section] = append(out[section], path)
			}
		}
	}
	return out
}

func (sg *SampleGenerator) submissions() int {
	if sg.Submissions < 1 {
		return 1
	}
	return sg.Submissions
}

func (sg *SampleGenerator) items() int {
	return 1 + sg.intn(sg.MaxItems)
}

// intn returns a value in [0, n).
func (sg *SampleGenerator) intn(n int) int {
	if n <= 1 {
		return 0
	}
	return sg.Faker.IntBetween(0, n-1)
}

func (sg *SampleGenerator) column(l *layout.FlatLayout, col layout.ColumnPlan) (value, bool) {
	var codes []string
	if col.Lookup >= 0 {
		for _, v := range l.Lookups[col.Lookup].Values {
			codes = append(codes, v.Code)
		}
	}
	return sg.generate(col.FieldName, col.ControlType, col.SQL.Name, codes)
}

// generate produces a value for a field. Binary fields are left to their
// NULL default.
func (sg *SampleGenerator) generate(field, controlType, sqlType string, codes []string) (value, bool) {
	if len(codes) > 0 {
		return text(codes[sg.intn(len(codes))]), true
	}

	t := strings.ToUpper(sqlType)
	switch {
	case t == "BIT":
		if sg.Faker.Boolean().Bool() {
			return value{SQL: "1", Raw: "1"}, true
		}
		return value{SQL: "0", Raw: "0"}, true
	case strings.HasPrefix(t, "DATE"):
		d := dateBase.AddDate(0, 0, sg.Faker.IntBetween(0, 730)).Format("2006-01-02")
		return value{SQL: "'" + d + "'", Raw: d}, true
	case strings.HasPrefix(t, "DECIMAL"), strings.HasPrefix(t, "INT"):
		n := fmt.Sprintf("%d.%02d", sg.Faker.IntBetween(1, 999), sg.Faker.IntBetween(0, 99))
		return value{SQL: n, Raw: n}, true
	case strings.HasPrefix(t, "VARBINARY"):
		return value{}, false
	}

	s := sg.textFor(strings.ToLower(field), controltype.Lookup(controlType))
	if !strings.Contains(t, "MAX") && len([]rune(s)) > 255 {
		s = string([]rune(s)[:255])
	}
	return text(s), true
}

// textFor picks realistic text from the field name, falling back to the
// control's category.
func (sg *SampleGenerator) textFor(name string, info controltype.Info) string {
	switch {
	case strings.Contains(name, "email"):
		return sg.Faker.Internet().Email()
	case strings.Contains(name, "phone"):
		return sg.Faker.Phone().Number()
	case strings.Contains(name, "company"):
		return sg.Faker.Company().Name()
	case strings.Contains(name, "first"):
		return sg.Faker.Person().FirstName()
	case strings.Contains(name, "last"):
		return sg.Faker.Person().LastName()
	case strings.Contains(name, "name"):
		return sg.Faker.Person().Name()
	case strings.Contains(name, "address") || strings.Contains(name, "street"):
		return sg.Faker.Address().StreetAddress()
	case strings.Contains(name, "city") || strings.Contains(name, "destination"):
		return sg.Faker.Address().City()
	case strings.Contains(name, "country"):
		return sg.Faker.Address().Country()
	case strings.Contains(name, "zip") || strings.Contains(name, "postal"):
		return sg.Faker.Address().PostCode()
	case strings.Contains(name, "url") || strings.Contains(name, "website"):
		return sg.Faker.Internet().URL()
	}

	switch {
	case info.Category == controltype.CategoryPerson:
		return sg.Faker.Person().Name()
	case info.Name == "Hyperlink":
		return sg.Faker.Internet().URL()
	case strings.Contains(info.SQL.Name, "MAX"):
		return sg.Faker.Lorem().Paragraph(2)
	default:
		return sg.Faker.Lorem().Sentence(4)
	}
}

func text(s string) value {
	return value{SQL: renderer.QuoteString(s), Raw: s}
}

// execArg returns v as an EXEC argument. EXEC accepts only constants and
// variables, so text spanning lines is bound to a variable first.
func execArg(sb *strings.Builder, vars *int, v value) string {
	if !strings.ContainsAny(v.Raw, "\r\n") {
		return v.SQL
	}
	*vars++
	name := fmt.Sprintf("@Text%d", *vars)
	fmt.Fprintf(sb, "DECLARE %s NVARCHAR(MAX) = %s;\n", name, v.SQL)
	return name
}

func qualified(schema, name string) string {
	return "[" + schema + "].[" + name + "]"
}
