// Package connector executes rendered scripts against SQL Server. It is the
// only package that touches a live database.
package connector

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/microsoft/go-mssqldb/msdsn"
	"github.com/sirupsen/logrus"

	_ "github.com/microsoft/go-mssqldb"
)

// DefaultPort is the SQL Server port used when none is configured.
const DefaultPort = "1433"

// ExecutionResult reports the outcome of running one script.
type ExecutionResult struct {
	Success      bool
	RowsAffected int64
	Message      string
	// FailedBatch is the 1-based batch that failed, or 0.
	FailedBatch  int
	Batches      int
}

// DatabaseConnector handles database connection and script execution
type DatabaseConnector struct {
	Host     string
	User     string
	Password string
	Database string
	Port     string
	DB       *sql.DB
	Logger   *logrus.Logger
}

// NewDatabaseConnector creates a new database connector. Empty arguments
// fall back to the MSSQL_* environment variables.
func NewDatabaseConnector(host, user, password, database, port string, logger *logrus.Logger) *DatabaseConnector {
	if host == "" {
		host = getEnvOrDefault("MSSQL_HOST", "localhost")
	}
	if user == "" {
		user = getEnvOrDefault("MSSQL_USER", "sa")
	}
	if password == "" {
		password = getEnvOrDefault("MSSQL_PASSWORD", "")
	}
	if database == "" {
		database = getEnvOrDefault("MSSQL_DATABASE", "")
	}
	if port == "" {
		port = getEnvOrDefault("MSSQL_PORT", DefaultPort)
	}

	return &DatabaseConnector{
		Host:     host,
		User:     user,
		Password: password,
		Database: database,
		Port:     port,
		Logger:   ensureLogger(logger),
	}
}

// NewWithDB wraps an already open database handle.
func NewWithDB(db *sql.DB, logger *logrus.Logger) *DatabaseConnector {
	return &DatabaseConnector{DB: db, Logger: ensureLogger(logger)}
}

func ensureLogger(logger *logrus.Logger) *logrus.Logger {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return logger
}

// DSN returns the sqlserver:// connection string for the configured target.
func (dc *DatabaseConnector) DSN() string {
	u := &url.URL{
		Scheme: "sqlserver",
		User:   url.UserPassword(dc.User, dc.Password),
		Host:   dc.Host + ":" + dc.Port,
	}
	q := url.Values{}
	q.Set("database", dc.Database)
	u.RawQuery = q.Encode()
	return u.String()
}

// Connect establishes a connection to the SQL Server database
func (dc *DatabaseConnector) Connect(ctx context.Context) error {
	if dc.Database == "" {
		return fmt.Errorf("database name must be provided either as an argument or as MSSQL_DATABASE environment variable")
	}

	dsn := dc.DSN()
	if _, err := msdsn.Parse(dsn); err != nil {
		return fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		dc.Logger.Errorf("Error connecting to SQL Server database: %v", err)
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		dc.Logger.Errorf("Error pinging SQL Server database: %v", err)
		_ = db.Close()
		return err
	}

	dc.DB = db
	dc.Logger.Infof("Connected to SQL Server database: %s", dc.Database)
	return nil
}

// Disconnect closes the database connection
func (dc *DatabaseConnector) Disconnect() {
	if dc.DB != nil {
		err := dc.DB.Close()
		if err != nil {
			dc.Logger.Errorf("Error closing database connection: %v", err)
		} else {
			dc.Logger.Info("SQL Server connection closed")
		}
	}
}

// SplitBatches splits a script on lines consisting of the GO batch
// terminator. A GO line inside a string literal or a block comment is part of
// the batch. Batches holding only comments and whitespace are dropped.
func SplitBatches(script string) []string {
	var batches []string
	var current strings.Builder
	flush := func() {
		if hasStatements(current.String()) {
			batches = append(batches, strings.TrimSpace(current.String()))
		}
		current.Reset()
	}

	state := inCode
	scanner := bufio.NewScanner(strings.NewReader(script))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if state == inCode && strings.EqualFold(strings.TrimSpace(line), "GO") {
			flush()
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		state = state.scan(line)
	}
	flush()
	return batches
}

// lexState is where a line of T-SQL leaves the lexer.
type lexState int

const (
	inCode lexState = iota
	inString
	inBlockComment
)

// scan advances the state over one line. Quotes in line comments and
// bracketed identifiers are ignored; '' is an escaped quote.
func (st lexState) scan(line string) lexState {
	for i := 0; i < len(line); i++ {
		next := byte(0)
		if i+1 < len(line) {
			next = line[i+1]
		}
		switch st {
		case inString:
			if line[i] == '\'' {
				if next == '\'' {
					i++
					continue
				}
				st = inCode
			}
		case inBlockComment:
			if line[i] == '*' && next == '/' {
				i++
				st = inCode
			}
		default:
			switch {
			case line[i] == '\'':
				st = inString
			case line[i] == '-' && next == '-':
				return st
			case line[i] == '/' && next == '*':
				i++
				st = inBlockComment
			case line[i] == '[':
				for i++; i < len(line); i++ {
					if line[i] == ']' {
						if i+1 < len(line) && line[i+1] == ']' {
							i++
							continue
						}
						break
					}
				}
			}
		}
	}
	return st
}

func hasStatements(batch string) bool {
	for _, line := range strings.Split(batch, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return true
		}
	}
	return false
}

// ExecuteScript splits script on GO lines and runs it with ExecuteBatches.
func (dc *DatabaseConnector) ExecuteScript(ctx context.Context, script string) ExecutionResult {
	return dc.ExecuteBatches(ctx, SplitBatches(script))
}

// ExecuteBatches runs every batch in one transaction. Any failure rolls the
// whole script back. Nothing is retried.
func (dc *DatabaseConnector) ExecuteBatches(ctx context.Context, batches []string) ExecutionResult {
	result := ExecutionResult{Batches: len(batches)}

	if dc.DB == nil {
		if err := dc.Connect(ctx); err != nil {
			result.Message = fmt.Sprintf("connection failed: %v", err)
			return result
		}
	}

	tx, err := dc.DB.BeginTx(ctx, nil)
	if err != nil {
		dc.Logger.Errorf("Error starting transaction: %v", err)
		result.Message = fmt.Sprintf("begin transaction: %v", err)
		return result
	}

	var total int64
	for i, batch := range batches {
		res, err := tx.ExecContext(ctx, batch)
		if err != nil {
			dc.Logger.Errorf("Error executing batch %d/%d: %v", i+1, len(batches), err)
			_ = tx.Rollback()
			result.FailedBatch = i + 1
			result.Message = fmt.Sprintf("batch %d of %d failed: %v", i+1, len(batches), err)
			return result
		}
		affected, err := res.RowsAffected()
		if err != nil {
			dc.Logger.Debugf("Rows affected unavailable for batch %d: %v", i+1, err)
			continue
		}
		if affected > 0 {
			total += affected
		}
	}

	if err := tx.Commit(); err != nil {
		dc.Logger.Errorf("Error committing transaction: %v", err)
		_ = tx.Rollback()
		result.Message = fmt.Sprintf("commit: %v", err)
		return result
	}

	result.Success = true
	result.RowsAffected = total
	result.Message = fmt.Sprintf("executed %d batch(es)", len(batches))
	dc.Logger.Infof("Script executed: %d batches, %d rows affected", len(batches), total)
	return result
}

// ExecuteQuery executes a SQL query and returns the results
func (dc *DatabaseConnector) ExecuteQuery(ctx context.Context, query string, params ...interface{}) ([]map[string]interface{}, error) {
	if dc.DB == nil {
		if err := dc.Connect(ctx); err != nil {
			return nil, err
		}
	}

	rows, err := dc.DB.QueryContext(ctx, query, params...)
	if err != nil {
		dc.Logger.Errorf("Error executing query: %v", err)
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		dc.Logger.Errorf("Error getting columns: %v", err)
		return nil, err
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range columns {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			dc.Logger.Errorf("Error scanning row: %v", err)
			return nil, err
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		dc.Logger.Errorf("Error iterating rows: %v", err)
		return nil, err
	}

	return results, nil
}

// MissingObjects returns the schema-qualified objects that OBJECT_ID cannot
// resolve.
func (dc *DatabaseConnector) MissingObjects(ctx context.Context, schema string, names []string) ([]string, error) {
	var missing []string
	for _, name := range names {
		qualified := "[" + strings.ReplaceAll(schema, "]", "]]") + "].[" + strings.ReplaceAll(name, "]", "]]") + "]"
		rows, err := dc.ExecuteQuery(ctx, "SELECT OBJECT_ID(@p1) AS id", qualified)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", qualified, err)
		}
		if len(rows) == 0 || rows[0]["id"] == nil {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

// getEnvOrDefault gets an environment variable or returns a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
