// Package loader reads form models from JSON documents. A document holds
// one form object or an array of forms and is validated against an embedded
// JSON Schema before it is decoded.
package loader

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/form-schema-synth/pkg/models"
)

// ErrInvalidForm is returned when a document does not describe forms.
var ErrInvalidForm = errors.New("invalid form document")

//go:embed form.schema.json
var formSchema []byte

// Loader validates and decodes form documents
type Loader struct {
	schema *jsonschema.Resolved
	Logger *logrus.Logger
}

// New compiles the embedded form schema.
func New(logger *logrus.Logger) (*Loader, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	var schema jsonschema.Schema
	if err := json.Unmarshal(formSchema, &schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal form schema: %w", err)
	}
	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve form schema: %w", err)
	}
	return &Loader{schema: resolved, Logger: logger}, nil
}

// Parse validates data and decodes the forms it holds. source names the
// document in errors.
func (l *Loader) Parse(data []byte, source string) ([]models.FormModel, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidForm, source, err)
	}
	if err := l.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidForm, source, err)
	}

	var forms []models.FormModel
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		if err := json.Unmarshal(data, &forms); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidForm, source, err)
		}
	} else {
		var form models.FormModel
		if err := json.Unmarshal(data, &form); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidForm, source, err)
		}
		forms = append(forms, form)
	}

	l.Logger.Debugf("Loaded %d form(s) from %s", len(forms), source)
	return forms, nil
}

// LoadFile reads and parses one JSON document.
func (l *Loader) LoadFile(path string) ([]models.FormModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return l.Parse(data, path)
}

// LoadPaths loads every path in order. A directory contributes its *.json
// files in lexical order.
func (l *Loader) LoadPaths(paths []string) ([]models.FormModel, error) {
	var forms []models.FormModel
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		files := []string{p}
		if info.IsDir() {
			if files, err = jsonFiles(p); err != nil {
				return nil, err
			}
		}
		for _, f := range files {
			loaded, err := l.LoadFile(f)
			if err != nil {
				return nil, err
			}
			forms = append(forms, loaded...)
		}
	}
	l.Logger.Infof("Loaded %d form(s) from %d path(s)", len(forms), len(paths))
	return forms, nil
}

func jsonFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
