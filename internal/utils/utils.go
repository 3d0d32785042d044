package utils

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/form-schema-synth/internal/analyzer"
	"github.com/vitebski/form-schema-synth/internal/layout"
	"github.com/vitebski/form-schema-synth/pkg/models"
)

// SetupLogging configures the logging system
func SetupLogging(logLevel string) *logrus.Logger {
	// Create a new logger
	logger := logrus.New()

	// Get log level from environment variable or parameter
	levelStr := logLevel
	if levelStr == "" {
		levelStr = os.Getenv("FORMSCHEMA_LOG_LEVEL")
		if levelStr == "" {
			levelStr = "info"
		}
	}

	// Parse log level
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}

	// Configure logger
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetOutput(os.Stdout)

	logger.Debugf("Logging configured with level: %s", level)
	return logger
}

// LoadEnvironmentVariables loads environment variables from .env file. It
// reports whether every connection variable a deployment needs is set.
func LoadEnvironmentVariables(envFile string, logger *logrus.Logger) bool {
	// Check if a sample .env file exists but not the actual .env file
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		sampleEnvFile := envFile + ".sample"
		if _, err := os.Stat(sampleEnvFile); err == nil {
			logger.Infof("No %s file found, but %s exists. Consider copying %s to %s and updating it.",
				envFile, sampleEnvFile, sampleEnvFile, envFile)
		}
	}

	// Load environment variables from .env file if it exists
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			logger.Warningf("Error loading %s file: %v", envFile, err)
		} else {
			logger.Infof("Loaded environment variables from %s", envFile)
		}
	} else {
		logger.Debugf("No %s file found, using existing environment variables", envFile)
	}

	// Check for required environment variables
	requiredVars := []string{"MSSQL_HOST", "MSSQL_USER", "MSSQL_PASSWORD", "MSSQL_DATABASE"}
	var missingVars []string

	for _, v := range requiredVars {
		if os.Getenv(v) == "" {
			missingVars = append(missingVars, v)
		}
	}

	if len(missingVars) > 0 {
		logger.Debugf("Connection variables not set: %s", strings.Join(missingVars, ", "))
		return false
	}

	// Log all available MSSQL_* environment variables (for debugging)
	if logger.Level == logrus.DebugLevel {
		for _, env := range os.Environ() {
			if strings.HasPrefix(env, "MSSQL_") {
				parts := strings.SplitN(env, "=", 2)
				if len(parts) == 2 {
					// Mask password
					if parts[0] == "MSSQL_PASSWORD" {
						logger.Debugf("%s=********", parts[0])
					} else {
						logger.Debugf("%s=%s", parts[0], parts[1])
					}
				}
			}
		}
	}

	return true
}

// GetEnvInt gets an integer value from environment variable
func GetEnvInt(varName string, defaultValue int) int {
	value := os.Getenv(varName)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// ValidateConnectionParams validates database connection parameters
func ValidateConnectionParams(host, user, password, database, port string, logger *logrus.Logger) bool {
	if host == "" {
		logger.Error("Database host is required")
		return false
	}

	if user == "" {
		logger.Error("Database user is required")
		return false
	}

	if password == "" { // Empty password is allowed
		logger.Warning("Database password is empty")
	}

	if database == "" {
		logger.Error("Database name is required")
		return false
	}

	if _, err := strconv.Atoi(port); err != nil {
		logger.Errorf("Invalid port number: %s", port)
		return false
	}

	return true
}

// PrintSummary prints the outcome of a synthesis run
func PrintSummary(w io.Writer, summary models.BatchSummary) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 50))
	fmt.Fprintln(w, "FORM SCHEMA SYNTHESIS SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "Strategy: %s\n", summary.Strategy)
	fmt.Fprintf(w, "Forms processed: %d\n", len(summary.Succeeded)+len(summary.Failed))
	fmt.Fprintf(w, "Successfully synthesized forms: %d\n", len(summary.Succeeded))
	fmt.Fprintf(w, "Failed forms: %d\n", len(summary.Failed))
	fmt.Fprintf(w, "Scripts generated: %d\n", summary.Scripts)
	fmt.Fprintf(w, "Tables generated: %d\n", summary.Tables)

	if len(summary.Failed) > 0 {
		fmt.Fprintln(w, "\nFailed forms:")
		for _, f := range summary.Failed {
			fmt.Fprintf(w, "  - %s: %s\n", f.FormName, f.Reason)
		}
	}

	fmt.Fprintln(w, strings.Repeat("=", 50))
}

// PrintSchemaAnalysis prints a detailed analysis of a form's schema graph and
// the flat tables it turns into
func PrintSchemaAnalysis(w io.Writer, g *analyzer.SchemaGraph, l *layout.FlatLayout) {
	infos := l.TableInfos()
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	orderedTables, err := analyzer.DependencyOrder(names, l.ForeignKeys)
	circularTables := analyzer.CircularTables(names, l.ForeignKeys)

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
	fmt.Fprintf(w, "FORM SCHEMA ANALYSIS REPORT: %s\n", g.FormName)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	// Basic statistics
	fmt.Fprintln(w, "\n1. BASIC STATISTICS")
	fmt.Fprintf(w, "   Data controls: %d\n", len(g.Controls))
	fmt.Fprintf(w, "   Main table columns: %d\n", len(g.MainColumns))
	fmt.Fprintf(w, "   Repeating section tables: %d\n", len(g.Tables))
	fmt.Fprintf(w, "   Lookup tables: %d\n", len(l.Lookups))
	fmt.Fprintf(w, "   Foreign keys: %d\n", len(l.ForeignKeys))
	fmt.Fprintf(w, "   Tables in circular dependencies: %d\n", len(circularTables))

	// Section hierarchy
	if len(g.Tables) > 0 {
		fmt.Fprintln(w, "\n2. REPEATING SECTIONS")
		for i, t := range g.Tables {
			fmt.Fprintf(w, "   %s%s (%d field(s))\n", strings.Repeat("  ", t.Depth-1), strings.Join(g.SectionPath(i), " > "), len(t.Controls))
		}
	}

	// Warnings
	if len(g.Warnings) > 0 || len(l.Warnings) > 0 {
		fmt.Fprintln(w, "\n3. WARNINGS")
		for _, warn := range g.Warnings {
			fmt.Fprintf(w, "   [%s] %s\n", warn.Code, warn.Message)
		}
		for _, warn := range l.Warnings {
			fmt.Fprintf(w, "   %s\n", warn)
		}
	}

	// Circular dependencies
	if len(circularTables) > 0 {
		var circularTablesList []string
		for table := range circularTables {
			circularTablesList = append(circularTablesList, table)
		}
		sort.Strings(circularTablesList)
		fmt.Fprintln(w, "\n4. CIRCULAR DEPENDENCIES")
		fmt.Fprintf(w, "   Tables involved: %s\n", strings.Join(circularTablesList, ", "))
	}

	// Table creation order
	fmt.Fprintln(w, "\n5. TABLE CREATION ORDER")
	if err != nil {
		fmt.Fprintf(w, "   %v\n", err)
	}
	category := make(map[string]models.TableInfo, len(infos))
	for _, info := range infos {
		category[info.Name] = info
	}
	for i, table := range orderedTables {
		info := category[table]
		fmt.Fprintf(w, "   %3d. %s (%s, %d column(s))\n", i+1, table, info.Category, len(info.Columns))
		for _, col := range info.Columns {
			null := "NOT NULL"
			if col.IsNullable {
				null = "NULL"
			}
			source := ""
			if col.FieldName != "" {
				source = fmt.Sprintf(" <- %s (%s)", col.FieldName, col.ControlType)
			}
			fmt.Fprintf(w, "        %s %s %s%s\n", col.Name, col.SQLType, null, source)
		}
	}

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
}

// PrintVerificationResults prints which deployed objects could not be found
func PrintVerificationResults(w io.Writer, formName string, missing []string) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 50))
	fmt.Fprintf(w, "DEPLOYMENT VERIFICATION RESULTS: %s\n", formName)
	fmt.Fprintln(w, strings.Repeat("=", 50))

	if len(missing) == 0 {
		fmt.Fprintln(w, "✅ All mapped objects exist")
		fmt.Fprintln(w, strings.Repeat("=", 50))
		return
	}

	fmt.Fprintf(w, "❌ %d object(s) are missing:\n", len(missing))
	for _, name := range missing {
		fmt.Fprintf(w, "  - %s\n", name)
	}
	fmt.Fprintln(w, strings.Repeat("=", 50))
}
