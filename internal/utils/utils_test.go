package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/form-schema-synth/internal/analyzer"
	"github.com/vitebski/form-schema-synth/internal/layout"
	"github.com/vitebski/form-schema-synth/pkg/models"
)

func TestSetupLogging(t *testing.T) {
	t.Setenv("FORMSCHEMA_LOG_LEVEL", "")

	// Test with default log level
	logger := SetupLogging("")
	if logger.Level != logrus.InfoLevel {
		t.Errorf("Expected log level to be info, got %s", logger.Level)
	}

	// Test with specific log level
	logger = SetupLogging("debug")
	if logger.Level != logrus.DebugLevel {
		t.Errorf("Expected log level to be debug, got %s", logger.Level)
	}

	logger = SetupLogging("warn")
	if logger.Level != logrus.WarnLevel {
		t.Errorf("Expected log level to be warn, got %s", logger.Level)
	}

	// Test with invalid log level (should default to info)
	logger = SetupLogging("invalid")
	if logger.Level != logrus.InfoLevel {
		t.Errorf("Expected log level to be info for invalid input, got %s", logger.Level)
	}

	// Environment variable applies when no level is given
	t.Setenv("FORMSCHEMA_LOG_LEVEL", "error")
	logger = SetupLogging("")
	if logger.Level != logrus.ErrorLevel {
		t.Errorf("Expected log level to be error from the environment, got %s", logger.Level)
	}
}

func TestLoadEnvironmentVariables(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress log output during tests

	for _, v := range []string{"MSSQL_HOST", "MSSQL_USER", "MSSQL_PASSWORD", "MSSQL_DATABASE"} {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}

	dir := t.TempDir()
	if LoadEnvironmentVariables(filepath.Join(dir, ".env"), logger) {
		t.Error("Expected missing connection variables to be reported")
	}

	envFile := filepath.Join(dir, ".env")
	content := "MSSQL_HOST=db.local\nMSSQL_USER=sa\nMSSQL_PASSWORD=secret\nMSSQL_DATABASE=Forms\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	if !LoadEnvironmentVariables(envFile, logger) {
		t.Error("Expected connection variables to be loaded from the .env file")
	}
	if got := os.Getenv("MSSQL_HOST"); got != "db.local" {
		t.Errorf("Expected MSSQL_HOST to be db.local, got %q", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	// Test with environment variable set
	t.Setenv("TEST_ENV_INT", "42")
	value := GetEnvInt("TEST_ENV_INT", 10)
	if value != 42 {
		t.Errorf("Expected value to be 42, got %d", value)
	}

	// Test with environment variable empty
	t.Setenv("TEST_ENV_INT", "")
	value = GetEnvInt("TEST_ENV_INT", 10)
	if value != 10 {
		t.Errorf("Expected value to be 10 (default), got %d", value)
	}

	// Test with invalid integer
	t.Setenv("TEST_ENV_INT", "not-an-int")
	value = GetEnvInt("TEST_ENV_INT", 10)
	if value != 10 {
		t.Errorf("Expected value to be 10 (default) for invalid input, got %d", value)
	}
}

func TestValidateConnectionParams(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress log output during tests

	tests := []struct {
		name                                 string
		host, user, password, database, port string
		want                                 bool
	}{
		{name: "valid", host: "localhost", user: "sa", password: "pw", database: "Forms", port: "1433", want: true},
		{name: "missing host", user: "sa", password: "pw", database: "Forms", port: "1433"},
		{name: "missing user", host: "localhost", password: "pw", database: "Forms", port: "1433"},
		{name: "missing database", host: "localhost", user: "sa", password: "pw", port: "1433"},
		{name: "invalid port", host: "localhost", user: "sa", password: "pw", database: "Forms", port: "not-a-port"},
		{name: "empty password allowed", host: "localhost", user: "sa", database: "Forms", port: "1433", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateConnectionParams(tt.host, tt.user, tt.password, tt.database, tt.port, logger)
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, models.BatchSummary{
		Strategy:  models.FlatTables,
		Succeeded: []string{"Order"},
		Failed:    []models.FormOutcome{{FormName: "Broken", Reason: "form has no name"}},
		Scripts:   20,
		Tables:    3,
	})

	out := buf.String()
	for _, want := range []string{"Strategy: FlatTables", "Forms processed: 2", "Failed forms: 1", "  - Broken: form has no name", "Tables generated: 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected summary to contain %q, got:\n%s", want, out)
		}
	}
}

func TestPrintSchemaAnalysis(t *testing.T) {
	form := models.FormModel{
		Name: "Order",
		Views: []models.ViewDefinition{{
			Sections: []models.SectionDefinition{{Name: "Lines", Type: models.SectionRepeating}},
			Controls: []models.ControlDefinition{
				{Name: "Status", Type: "DropDown", DataOptions: []models.DataOption{{Value: "Open"}}},
				{Name: "Sku", Type: "TextBox", ParentSection: "Lines"},
				{Name: "Ghost", Type: "TextBox", ParentSection: "Missing"},
			},
		}},
	}
	g, err := analyzer.NewSchemaAnalyzer(nil).Analyze(form)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	PrintSchemaAnalysis(&buf, g, layout.PlanFlat(g, layout.Options{}))

	out := buf.String()
	for _, want := range []string{
		"FORM SCHEMA ANALYSIS REPORT: Order",
		"Repeating section tables: 1",
		"Lookup tables: 1",
		"[unknown-section]",
		"Order_Status_Lookup (Lookup, 2 column(s))",
		"Order_Lines (Section, 4 column(s))",
		"Sku NVARCHAR(255) NULL <- Sku (TextBox)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected report to contain %q, got:\n%s", want, out)
		}
	}
	if strings.Index(out, "Order (Main") > strings.Index(out, "Order_Lines (Section") {
		t.Error("Expected the main table to be listed before its section table")
	}
}

func TestPrintVerificationResults(t *testing.T) {
	var buf bytes.Buffer
	PrintVerificationResults(&buf, "Order", nil)
	if !strings.Contains(buf.String(), "All mapped objects exist") {
		t.Errorf("Unexpected output:\n%s", buf.String())
	}

	buf.Reset()
	PrintVerificationResults(&buf, "Order", []string{"vw_Order"})
	if !strings.Contains(buf.String(), "1 object(s) are missing") || !strings.Contains(buf.String(), "  - vw_Order") {
		t.Errorf("Unexpected output:\n%s", buf.String())
	}
}
