package renderer

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/form-schema-synth/internal/analyzer"
	"github.com/vitebski/form-schema-synth/internal/layout"
	"github.com/vitebski/form-schema-synth/pkg/models"
)

// NormalizedRenderer stores every form in one fixed question/answer schema.
// Only the registration script depends on the form; everything else is
// identical for every form and collapses when sets are merged.
type NormalizedRenderer struct {
	Options layout.Options
	Logger  *logrus.Logger
}

// Strategy returns models.NormalizedQA
func (r *NormalizedRenderer) Strategy() models.Strategy {
	return models.NormalizedQA
}

// metaKeys are the foreign keys of the meta-schema. Only owned rows cascade;
// SQL Server rejects multiple cascade paths into Answers.
var metaKeys = []models.ForeignKey{
	{Table: layout.QuestionsTable, Column: "FormId", ReferencedTable: layout.FormsTable, ReferencedColumn: "FormId", ConstraintName: "FK_Questions_FormId"},
	{Table: layout.QuestionOptionsTable, Column: "QuestionId", ReferencedTable: layout.QuestionsTable, ReferencedColumn: "QuestionId", ConstraintName: "FK_QuestionOptions_QuestionId", CascadeDelete: true},
	{Table: layout.SubmissionsTable, Column: "FormId", ReferencedTable: layout.FormsTable, ReferencedColumn: "FormId", ConstraintName: "FK_Submissions_FormId"},
	{Table: layout.AnswersTable, Column: "SubmissionId", ReferencedTable: layout.SubmissionsTable, ReferencedColumn: "SubmissionId", ConstraintName: "FK_Answers_SubmissionId", CascadeDelete: true},
	{Table: layout.AnswersTable, Column: "QuestionId", ReferencedTable: layout.QuestionsTable, ReferencedColumn: "QuestionId", ConstraintName: "FK_Answers_QuestionId"},
}

var metaColumns = map[string][]columnDef{
	layout.FormsTable: {
		{Name: "FormId", SQLType: "UNIQUEIDENTIFIER"},
		{Name: "FormName", SQLType: nvarchar(layout.FormNameLength)},
		{Name: "CreatedDate", SQLType: "DATETIME2", Default: "SYSUTCDATETIME()"},
	},
	layout.QuestionsTable: {
		{Name: "QuestionId", SQLType: "UNIQUEIDENTIFIER"},
		{Name: "FormId", SQLType: "UNIQUEIDENTIFIER"},
		{Name: "QuestionKey", SQLType: "NVARCHAR(128)"},
		{Name: "FieldName", SQLType: nvarchar(layout.FieldNameLength)},
		{Name: "Label", SQLType: "NVARCHAR(MAX)", Nullable: true},
		{Name: "ControlType", SQLType: "NVARCHAR(50)"},
		{Name: "SqlType", SQLType: "NVARCHAR(50)"},
		{Name: "AnswerColumn", SQLType: "NVARCHAR(20)"},
		{Name: "SectionPath", SQLType: "NVARCHAR(MAX)", Nullable: true},
		{Name: "IsRepeating", SQLType: "BIT", Default: "0"},
		{Name: "DisplayOrder", SQLType: "INT", Default: "0"},
	},
	layout.QuestionOptionsTable: {
		{Name: "QuestionOptionId", SQLType: "INT", Identity: true},
		{Name: "QuestionId", SQLType: "UNIQUEIDENTIFIER"},
		{Name: "OptionValue", SQLType: nvarchar(layout.OptionValueLength)},
		{Name: "DisplayText", SQLType: "NVARCHAR(MAX)"},
		{Name: "SortOrder", SQLType: "INT", Default: "0"},
		{Name: "IsDefault", SQLType: "BIT", Default: "0"},
	},
	layout.SubmissionsTable: {
		{Name: "SubmissionId", SQLType: "BIGINT", Identity: true},
		{Name: "FormId", SQLType: "UNIQUEIDENTIFIER"},
		{Name: "SubmittedBy", SQLType: "NVARCHAR(255)", Nullable: true},
		{Name: "SubmittedDate", SQLType: "DATETIME2", Default: "SYSUTCDATETIME()"},
	},
	layout.AnswersTable: {
		{Name: "AnswerId", SQLType: "BIGINT", Identity: true},
		{Name: "SubmissionId", SQLType: "BIGINT"},
		{Name: "QuestionId", SQLType: "UNIQUEIDENTIFIER"},
		{Name: "InstancePath", SQLType: "NVARCHAR(400)", Default: "N''"},
		{Name: layout.AnswerText, SQLType: "NVARCHAR(MAX)", Nullable: true},
		{Name: layout.AnswerNumber, SQLType: "DECIMAL(18,4)", Nullable: true},
		{Name: layout.AnswerDate, SQLType: "DATETIME2", Nullable: true},
		{Name: layout.AnswerBit, SQLType: "BIT", Nullable: true},
	},
}

var metaClauses = map[string][]string{
	layout.FormsTable:           {primaryKey("FormId"), "CONSTRAINT [UQ_Forms_FormName] UNIQUE ([FormName])"},
	layout.QuestionsTable:       {primaryKey("QuestionId"), "CONSTRAINT [UQ_Questions_FormId_QuestionKey] UNIQUE ([FormId], [QuestionKey])"},
	layout.QuestionOptionsTable: {primaryKey("QuestionOptionId"), "CONSTRAINT [UQ_QuestionOptions_QuestionId_OptionValue] UNIQUE ([QuestionId], [OptionValue])"},
	layout.SubmissionsTable:     {primaryKey("SubmissionId")},
	layout.AnswersTable:         {primaryKey("AnswerId")},
}

// Render emits the shared meta-schema followed by the form's registration.
func (r *NormalizedRenderer) Render(g *analyzer.SchemaGraph) (*ScriptSet, error) {
	l := layout.PlanNormalized(g, r.Options)
	set := &ScriptSet{
		Strategy: models.NormalizedQA,
		FormName: g.FormName,
		Warnings: graphWarnings(g),
	}

	order, err := analyzer.DependencyOrder(layout.MetaTables, metaKeys)
	if err != nil {
		return nil, fmt.Errorf("ordering meta-schema: %w", err)
	}
	for _, table := range order {
		set.add(Script{
			Name:        qualified(l.Schema, table),
			Type:        TableScript,
			Description: "Question/answer meta-schema",
			Content:     createTable(l.Schema, table, metaColumns[table], metaClauses[table]...),
			Table:       table,
		})
	}
	set.add(registration(l))

	for _, fk := range metaKeys {
		set.add(Script{
			Name:        qualified(l.Schema, fk.ConstraintName),
			Type:        ConstraintScript,
			Description: fmt.Sprintf("%s.%s references %s.%s", fk.Table, fk.Column, fk.ReferencedTable, fk.ReferencedColumn),
			Content:     addForeignKey(l.Schema, fk.Table, fk.ConstraintName, fk.Column, fk.ReferencedTable, fk.ReferencedColumn, fk.CascadeDelete),
			References:  []string{fk.Table, fk.ReferencedTable},
		})
		ix := "IX_" + fk.Table + "_" + fk.Column
		set.add(Script{
			Name:        qualified(l.Schema, fk.Table) + "." + quoteIdent(ix),
			Type:        IndexScript,
			Description: fmt.Sprintf("Index on %s.%s", fk.Table, fk.Column),
			Content:     createIndex(l.Schema, fk.Table, ix, fk.Column),
			References:  []string{fk.Table},
		})
	}

	for _, name := range layout.MetaProcedures {
		set.add(Script{
			Name:        qualified(l.Schema, name),
			Type:        StoredProcedureScript,
			Description: "Generic submission procedure",
			Content:     metaProcedure(l.Schema, name),
			References:  []string{layout.FormsTable, layout.QuestionsTable, layout.SubmissionsTable, layout.AnswersTable},
		})
	}
	set.add(Script{
		Name:        qualified(l.Schema, layout.FormAnswersView),
		Type:        ViewScript,
		Description: "Answers joined with their questions and submissions",
		Content:     formAnswersView(l.Schema),
		References:  []string{layout.FormsTable, layout.QuestionsTable, layout.SubmissionsTable, layout.AnswersTable},
	})

	set.renumber()
	if err := set.Validate(); err != nil {
		return nil, err
	}

	r.Logger.Infof("Rendered %d scripts for form %s (%d questions)", len(set.Scripts), g.FormName, len(l.Questions))
	return set, nil
}

// RegistrationName is the script name of a form's registration batch.
func RegistrationName(formName string) string {
	return "Register " + strings.ToLower(strings.TrimSpace(formName))
}

// registration upserts the form, its questions and their options.
func registration(l *layout.NormalizedLayout) Script {
	s := func(table string) string { return qualified(l.Schema, table) }
	stmts := []string{
		fmt.Sprintf("DECLARE @FormId UNIQUEIDENTIFIER = '%s';", l.FormID),
		fmt.Sprintf("IF NOT EXISTS (SELECT 1 FROM %s WHERE [FormId] = @FormId)\n  INSERT INTO %s ([FormId], [FormName]) VALUES (@FormId, %s);",
			s(layout.FormsTable), s(layout.FormsTable), QuoteString(l.RegisteredName)),
	}
	refs := []string{layout.FormsTable}

	if len(l.Questions) > 0 {
		rows := make([]string, 0, len(l.Questions))
		var options []string
		for _, q := range l.Questions {
			section := "NULL"
			if q.SectionPath != "" {
				section = QuoteString(q.SectionPath)
			}
			rows = append(rows, fmt.Sprintf("('%s', %s, %s, %s, %s, %s, %s, %s, %d, %d)",
				q.ID, QuoteString(q.Key), QuoteString(q.FieldName), QuoteString(q.Label), QuoteString(q.ControlType),
				QuoteString(q.SQLType), QuoteString(q.AnswerColumn), section, boolBit(q.IsRepeating), q.DisplayOrder))
			for _, o := range q.Options {
				options = append(options, fmt.Sprintf("('%s', %s, %s, %d, %d)",
					q.ID, QuoteString(o.Value), QuoteString(o.DisplayText), o.SortOrder, boolBit(o.IsDefault)))
			}
		}
		stmts = append(stmts, fmt.Sprintf(`MERGE %s AS target
USING (VALUES
    %s
) AS source ([QuestionId], [QuestionKey], [FieldName], [Label], [ControlType], [SqlType], [AnswerColumn], [SectionPath], [IsRepeating], [DisplayOrder])
ON target.[QuestionId] = source.[QuestionId]
WHEN MATCHED THEN UPDATE SET
    target.[Label] = source.[Label],
    target.[ControlType] = source.[ControlType],
    target.[SqlType] = source.[SqlType],
    target.[AnswerColumn] = source.[AnswerColumn],
    target.[SectionPath] = source.[SectionPath],
    target.[IsRepeating] = source.[IsRepeating],
    target.[DisplayOrder] = source.[DisplayOrder]
WHEN NOT MATCHED THEN
    INSERT ([QuestionId], [FormId], [QuestionKey], [FieldName], [Label], [ControlType], [SqlType], [AnswerColumn], [SectionPath], [IsRepeating], [DisplayOrder])
    VALUES (source.[QuestionId], @FormId, source.[QuestionKey], source.[FieldName], source.[Label], source.[ControlType], source.[SqlType], source.[AnswerColumn], source.[SectionPath], source.[IsRepeating], source.[DisplayOrder]);`,
			s(layout.QuestionsTable), strings.Join(rows, ",\n    ")))
		refs = append(refs, layout.QuestionsTable)

		if len(options) > 0 {
			stmts = append(stmts, fmt.Sprintf(`MERGE %s AS target
USING (VALUES
    %s
) AS source ([QuestionId], [OptionValue], [DisplayText], [SortOrder], [IsDefault])
ON target.[QuestionId] = source.[QuestionId] AND target.[OptionValue] = source.[OptionValue]
WHEN MATCHED THEN UPDATE SET
    target.[DisplayText] = source.[DisplayText],
    target.[SortOrder] = source.[SortOrder],
    target.[IsDefault] = source.[IsDefault]
WHEN NOT MATCHED THEN
    INSERT ([QuestionId], [OptionValue], [DisplayText], [SortOrder], [IsDefault])
    VALUES (source.[QuestionId], source.[OptionValue], source.[DisplayText], source.[SortOrder], source.[IsDefault]);`,
				s(layout.QuestionOptionsTable), strings.Join(options, ",\n    ")))
			refs = append(refs, layout.QuestionOptionsTable)
		}
	}

	return Script{
		Name:        RegistrationName(l.FormName),
		Type:        LookupDataScript,
		Description: fmt.Sprintf("Registers form %s with %d question(s)", l.FormName, len(l.Questions)),
		Content:     strings.Join(stmts, "\n"),
		References:  refs,
	}
}

func nvarchar(n int) string {
	return fmt.Sprintf("NVARCHAR(%d)", n)
}

func boolBit(b bool) int {
	if b {
		return 1
	}
	return 0
}

func metaProcedure(schema, name string) string {
	s := func(table string) string { return qualified(schema, table) }
	switch name {
	case layout.SubmitFormProcedure:
		return procBody(procHeader(schema, name, []string{
			"@FormName NVARCHAR(255)",
			"@Payload NVARCHAR(MAX)",
			"@SubmittedBy NVARCHAR(255) = NULL",
			"@SubmissionId BIGINT OUTPUT",
		}),
			fmt.Sprintf("DECLARE @FormId UNIQUEIDENTIFIER = (SELECT [FormId] FROM %s WHERE [FormName] = @FormName);", s(layout.FormsTable)),
			"IF @FormId IS NULL\n    BEGIN\n        RAISERROR(N'Form %s is not registered.', 16, 1, @FormName);\n        RETURN;\n    END;",
			"IF ISJSON(@Payload) = 0\n    BEGIN\n        RAISERROR(N'Payload is not valid JSON.', 16, 1);\n        RETURN;\n    END;",
			"BEGIN TRY\n        BEGIN TRANSACTION;",
			fmt.Sprintf("    INSERT INTO %s ([FormId], [SubmittedBy]) VALUES (@FormId, @SubmittedBy);", s(layout.SubmissionsTable)),
			"    SET @SubmissionId = CAST(SCOPE_IDENTITY() AS BIGINT);",
			fmt.Sprintf(`    INSERT INTO %s ([SubmissionId], [QuestionId], [InstancePath], [AnswerText], [AnswerNumber], [AnswerDate], [AnswerBit])
        SELECT @SubmissionId, q.[QuestionId], ISNULL(a.[instance], N''),
            CASE WHEN q.[AnswerColumn] = N'%s' THEN a.[value] END,
            CASE WHEN q.[AnswerColumn] = N'%s' THEN TRY_CONVERT(DECIMAL(18,4), a.[value]) END,
            CASE WHEN q.[AnswerColumn] = N'%s' THEN TRY_CONVERT(DATETIME2, a.[value]) END,
            CASE WHEN q.[AnswerColumn] = N'%s' THEN TRY_CONVERT(BIT, a.[value]) END
        FROM OPENJSON(@Payload, N'$.answers')
            WITH ([question] NVARCHAR(128) N'$.question', [value] NVARCHAR(MAX) N'$.value', [instance] NVARCHAR(400) N'$.instance') AS a
        JOIN %s AS q ON q.[FormId] = @FormId AND q.[QuestionKey] = a.[question];`,
				s(layout.AnswersTable), layout.AnswerText, layout.AnswerNumber, layout.AnswerDate, layout.AnswerBit, s(layout.QuestionsTable)),
			"    COMMIT TRANSACTION;\n    END TRY\n    BEGIN CATCH\n        IF @@TRANCOUNT > 0 ROLLBACK TRANSACTION;\n        THROW;\n    END CATCH;",
		)

	case layout.GetSubmissionProcedure:
		return procBody(procHeader(schema, name, []string{"@SubmissionId BIGINT"}),
			fmt.Sprintf("SELECT s.[SubmissionId], f.[FormName], s.[SubmittedBy], s.[SubmittedDate]\n    FROM %s AS s\n    JOIN %s AS f ON f.[FormId] = s.[FormId]\n    WHERE s.[SubmissionId] = @SubmissionId;",
				s(layout.SubmissionsTable), s(layout.FormsTable)),
			fmt.Sprintf("SELECT q.[QuestionKey], q.[SectionPath], a.[InstancePath], a.[AnswerText], a.[AnswerNumber], a.[AnswerDate], a.[AnswerBit]\n    FROM %s AS a\n    JOIN %s AS q ON q.[QuestionId] = a.[QuestionId]\n    WHERE a.[SubmissionId] = @SubmissionId\n    ORDER BY q.[DisplayOrder], a.[InstancePath];",
				s(layout.AnswersTable), s(layout.QuestionsTable)))

	case layout.ListSubmissionsProcedure:
		return procBody(procHeader(schema, name, []string{"@FormName NVARCHAR(255) = NULL", "@Skip INT = 0", fmt.Sprintf("@Take INT = %d", DefaultPageSize)}),
			fmt.Sprintf("SELECT s.[SubmissionId], f.[FormName], s.[SubmittedBy], s.[SubmittedDate]\n    FROM %s AS s\n    JOIN %s AS f ON f.[FormId] = s.[FormId]\n    WHERE @FormName IS NULL OR f.[FormName] = @FormName\n    ORDER BY s.[SubmissionId]\n    OFFSET @Skip ROWS FETCH NEXT @Take ROWS ONLY;",
				s(layout.SubmissionsTable), s(layout.FormsTable)))

	case layout.DeleteSubmissionProcedure:
		return procBody(procHeader(schema, name, []string{"@SubmissionId BIGINT"}),
			fmt.Sprintf("DELETE FROM %s WHERE [SubmissionId] = @SubmissionId;", s(layout.SubmissionsTable)),
			"SELECT @@ROWCOUNT AS RowsAffected;")
	}
	return ""
}

func formAnswersView(schema string) string {
	return fmt.Sprintf(`CREATE OR ALTER VIEW %s
AS
SELECT
    f.[FormName],
    s.[SubmissionId],
    s.[SubmittedBy],
    s.[SubmittedDate],
    q.[QuestionKey],
    q.[Label],
    q.[SectionPath],
    a.[InstancePath],
    COALESCE(a.[AnswerText], CONVERT(NVARCHAR(MAX), a.[AnswerNumber]), CONVERT(NVARCHAR(33), a.[AnswerDate], 126), CONVERT(NVARCHAR(1), a.[AnswerBit])) AS [AnswerValue],
    a.[AnswerNumber],
    a.[AnswerDate],
    a.[AnswerBit]
FROM %s AS a
JOIN %s AS s ON s.[SubmissionId] = a.[SubmissionId]
JOIN %s AS f ON f.[FormId] = s.[FormId]
JOIN %s AS q ON q.[QuestionId] = a.[QuestionId];`,
		qualified(schema, layout.FormAnswersView),
		qualified(schema, layout.AnswersTable),
		qualified(schema, layout.SubmissionsTable),
		qualified(schema, layout.FormsTable),
		qualified(schema, layout.QuestionsTable))
}
