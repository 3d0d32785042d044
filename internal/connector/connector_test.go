package connector

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/microsoft/go-mssqldb/msdsn"
	"github.com/sirupsen/logrus"
)

func TestNewDatabaseConnector(t *testing.T) {
	// Set environment variables for testing
	t.Setenv("MSSQL_HOST", "test-host")
	t.Setenv("MSSQL_USER", "test-user")
	t.Setenv("MSSQL_PASSWORD", "test-password")
	t.Setenv("MSSQL_DATABASE", "test-database")
	t.Setenv("MSSQL_PORT", "1434")

	logger := createTestLogger()

	db := NewDatabaseConnector("", "", "", "", "", logger)

	if db.Host != "test-host" {
		t.Errorf("Expected host to be 'test-host', got '%s'", db.Host)
	}
	if db.User != "test-user" {
		t.Errorf("Expected user to be 'test-user', got '%s'", db.User)
	}
	if db.Password != "test-password" {
		t.Errorf("Expected password to be 'test-password', got '%s'", db.Password)
	}
	if db.Database != "test-database" {
		t.Errorf("Expected database to be 'test-database', got '%s'", db.Database)
	}
	if db.Port != "1434" {
		t.Errorf("Expected port to be '1434', got '%s'", db.Port)
	}

	// Test with explicit parameters
	db = NewDatabaseConnector("explicit-host", "explicit-user", "explicit-password", "explicit-database", "1435", logger)

	if db.Host != "explicit-host" {
		t.Errorf("Expected host to be 'explicit-host', got '%s'", db.Host)
	}
	if db.Database != "explicit-database" {
		t.Errorf("Expected database to be 'explicit-database', got '%s'", db.Database)
	}
	if db.Port != "1435" {
		t.Errorf("Expected port to be '1435', got '%s'", db.Port)
	}
}

func TestDSN(t *testing.T) {
	db := NewDatabaseConnector("db.local", "deployer", "p@ss;word", "Forms", "1433", createTestLogger())

	dsn := db.DSN()
	if !strings.HasPrefix(dsn, "sqlserver://") {
		t.Fatalf("Expected sqlserver scheme, got %s", dsn)
	}
	if !strings.Contains(dsn, "database=Forms") {
		t.Errorf("Expected database parameter in %s", dsn)
	}
	if _, err := msdsn.Parse(dsn); err != nil {
		t.Errorf("Expected DSN to parse, got %v", err)
	}
}

func TestConnectRequiresDatabase(t *testing.T) {
	db := &DatabaseConnector{Host: "localhost", Port: DefaultPort, Logger: createTestLogger()}
	if err := db.Connect(context.Background()); err == nil {
		t.Error("Expected error when database name is empty")
	}
}

func TestSplitBatches(t *testing.T) {
	script := "-- header\n\nCREATE TABLE A (x INT);\nGO\n-- only a comment\nGO\n  go  \nSELECT 1;\nSELECT 2;\nGO\nGOTO_LABEL:\nPRINT 'x';\n"

	batches := SplitBatches(script)
	want := []string{
		"-- header\n\nCREATE TABLE A (x INT);",
		"SELECT 1;\nSELECT 2;",
		"GOTO_LABEL:\nPRINT 'x';",
	}
	if len(batches) != len(want) {
		t.Fatalf("Expected %d batches, got %d: %q", len(want), len(batches), batches)
	}
	for i := range want {
		if batches[i] != want[i] {
			t.Errorf("Batch %d: expected %q, got %q", i+1, want[i], batches[i])
		}
	}
}

func TestSplitBatchesKeepsQuotedGo(t *testing.T) {
	script := "INSERT INTO T VALUES (N'first\nGO\nstill text');\nGO\n" +
		"/* a note\nGO\n*/ SELECT 1;\nGO\n" +
		"-- it's a comment\nSELECT [odd'name] FROM T WHERE x = N'it''s';\nGO\n"

	batches := SplitBatches(script)
	want := []string{
		"INSERT INTO T VALUES (N'first\nGO\nstill text');",
		"/* a note\nGO\n*/ SELECT 1;",
		"-- it's a comment\nSELECT [odd'name] FROM T WHERE x = N'it''s';",
	}
	if len(batches) != len(want) {
		t.Fatalf("Expected %d batches, got %d: %q", len(want), len(batches), batches)
	}
	for i := range want {
		if batches[i] != want[i] {
			t.Errorf("Batch %d: expected %q, got %q", i+1, want[i], batches[i])
		}
	}
}

func TestExecuteBatches(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO A VALUES (N'x' + NCHAR(10) + N'GO');").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	db := NewWithDB(sqlDB, createTestLogger())
	result := db.ExecuteBatches(context.Background(), []string{"INSERT INTO A VALUES (N'x' + NCHAR(10) + N'GO');"})

	if !result.Success || result.Batches != 1 || result.RowsAffected != 1 {
		t.Errorf("Unexpected result: %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestExecuteScriptCommits(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE A (x INT);").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO A VALUES (1);").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	db := NewWithDB(sqlDB, createTestLogger())
	result := db.ExecuteScript(context.Background(), "CREATE TABLE A (x INT);\nGO\nINSERT INTO A VALUES (1);\nGO\n")

	if !result.Success {
		t.Fatalf("Expected success, got %q", result.Message)
	}
	if result.RowsAffected != 1 {
		t.Errorf("Expected 1 row affected, got %d", result.RowsAffected)
	}
	if result.Batches != 2 {
		t.Errorf("Expected 2 batches, got %d", result.Batches)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestExecuteScriptRollsBack(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE A (x INT);").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE B (y INT);").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	db := NewWithDB(sqlDB, createTestLogger())
	result := db.ExecuteScript(context.Background(), "CREATE TABLE A (x INT);\nGO\nCREATE TABLE B (y INT);\nGO\nCREATE TABLE C (z INT);\nGO\n")

	if result.Success {
		t.Fatal("Expected failure")
	}
	if result.FailedBatch != 2 {
		t.Errorf("Expected batch 2 to fail, got %d", result.FailedBatch)
	}
	if !strings.Contains(result.Message, "permission denied") {
		t.Errorf("Expected driver error in message, got %q", result.Message)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestMissingObjects(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer sqlDB.Close()

	query := "SELECT OBJECT_ID(@p1) AS id"
	mock.ExpectQuery(query).WithArgs("[dbo].[Survey]").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(581577110)))
	mock.ExpectQuery(query).WithArgs("[dbo].[usp_Survey_Insert]").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(nil))

	db := NewWithDB(sqlDB, createTestLogger())
	missing, err := db.MissingObjects(context.Background(), "dbo", []string{"Survey", "usp_Survey_Insert"})
	if err != nil {
		t.Fatalf("MissingObjects: %v", err)
	}
	if len(missing) != 1 || missing[0] != "usp_Survey_Insert" {
		t.Errorf("Expected [usp_Survey_Insert], got %v", missing)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

// Helper function to create a test logger
func createTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
