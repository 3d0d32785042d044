// Package store keeps the latest deployment mapping of every form in a local
// SQLite file. Saving a mapping replaces the previous one for the same form
// and strategy.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/form-schema-synth/pkg/models"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no mapping is stored for a form.
var ErrNotFound = errors.New("mapping not found")

// Entry summarizes one stored mapping.
type Entry struct {
	FormName string
	Strategy string
	Checksum string
	SavedAt  time.Time
}

// MappingStore persists deployment mappings
type MappingStore struct {
	db     *sql.DB
	now    func() time.Time
	Logger *logrus.Logger
}

// Open opens or creates the store at path. ":memory:" keeps it in memory.
func Open(ctx context.Context, path string, logger *logrus.Logger) (*MappingStore, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		dsn = "file:" + path
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mapping store: %w", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	s := &MappingStore{db: db, now: time.Now, Logger: logger}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Debugf("Mapping store opened at %s", path)
	return s, nil
}

func (s *MappingStore) init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS mappings (
			form_key TEXT NOT NULL,
			strategy TEXT NOT NULL,
			form_name TEXT NOT NULL,
			checksum TEXT NOT NULL,
			document TEXT NOT NULL,
			saved_at TEXT NOT NULL,
			PRIMARY KEY (form_key, strategy)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init mapping store: %w", err)
		}
	}
	return nil
}

func formKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Save stores m, replacing any mapping of the same form and strategy.
func (s *MappingStore) Save(ctx context.Context, m *models.DeploymentMapping) error {
	if m == nil || strings.TrimSpace(m.FormName) == "" {
		return fmt.Errorf("mapping has no form name")
	}
	doc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal mapping of %s: %w", m.FormName, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mappings (form_key, strategy, form_name, checksum, document, saved_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (form_key, strategy) DO UPDATE SET
			form_name = excluded.form_name,
			checksum = excluded.checksum,
			document = excluded.document,
			saved_at = excluded.saved_at`,
		formKey(m.FormName), m.Strategy, m.FormName, m.ScriptChecksum, string(doc),
		s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save mapping of %s: %w", m.FormName, err)
	}
	s.Logger.Infof("Saved %s mapping of form %s", m.Strategy, m.FormName)
	return nil
}

// Load returns the stored mapping of a form under a strategy.
func (s *MappingStore) Load(ctx context.Context, formName string, strategy models.Strategy) (*models.DeploymentMapping, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM mappings WHERE form_key = ? AND strategy = ?`,
		formKey(formName), strategy.String()).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotFound, formName, strategy)
	}
	if err != nil {
		return nil, fmt.Errorf("load mapping of %s: %w", formName, err)
	}

	var m models.DeploymentMapping
	if err := json.Unmarshal([]byte(doc), &m); err != nil {
		return nil, fmt.Errorf("decode mapping of %s: %w", formName, err)
	}
	return &m, nil
}

// List returns every stored mapping ordered by form and strategy.
func (s *MappingStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT form_name, strategy, checksum, saved_at FROM mappings ORDER BY form_key, strategy`)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var savedAt string
		if err := rows.Scan(&e.FormName, &e.Strategy, &e.Checksum, &savedAt); err != nil {
			return nil, err
		}
		if e.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
			return nil, fmt.Errorf("mapping of %s has a bad timestamp: %w", e.FormName, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database
func (s *MappingStore) Close() error {
	return s.db.Close()
}
