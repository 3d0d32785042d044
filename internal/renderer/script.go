package renderer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vitebski/form-schema-synth/pkg/models"
)

// BatchTerminator separates executable batches in rendered scripts.
const BatchTerminator = "GO"

// ErrOrdering is returned when a script references a table that is not
// created before it.
var ErrOrdering = errors.New("script ordering violates table dependencies")

// ScriptType classifies a generated script. Values follow emission order.
type ScriptType int

const (
	TableScript ScriptType = iota
	LookupDataScript
	ConstraintScript
	IndexScript
	StoredProcedureScript
	ViewScript
)

// String returns the display name of the script type
func (t ScriptType) String() string {
	switch t {
	case TableScript:
		return "Table"
	case ConstraintScript:
		return "Constraint"
	case IndexScript:
		return "Index"
	case LookupDataScript:
		return "LookupData"
	case StoredProcedureScript:
		return "StoredProcedure"
	case ViewScript:
		return "View"
	default:
		return "Unknown"
	}
}

// Script is one executable batch.
type Script struct {
	Name           string
	Type           ScriptType
	Description    string
	Content        string
	ExecutionOrder int
	// Table is the table a TableScript creates.
	Table string
	// References lists tables the script depends on.
	References []string
}

// ScriptSet is the ordered output of one render call, or of several merged.
type ScriptSet struct {
	Strategy models.Strategy
	FormName string
	Scripts  []Script
	Warnings []string
}

func (s *ScriptSet) add(script Script) {
	s.Scripts = append(s.Scripts, script)
}

// renumber assigns 1-based execution orders in slice order.
func (s *ScriptSet) renumber() {
	for i := range s.Scripts {
		s.Scripts[i].ExecutionOrder = i + 1
	}
}

// Tables returns the names of tables created by the set, in order.
func (s *ScriptSet) Tables() []string {
	var tables []string
	for _, sc := range s.Scripts {
		if sc.Type == TableScript {
			tables = append(tables, sc.Table)
		}
	}
	return tables
}

// Count returns how many scripts of the given type the set holds.
func (s *ScriptSet) Count(t ScriptType) int {
	n := 0
	for _, sc := range s.Scripts {
		if sc.Type == t {
			n++
		}
	}
	return n
}

// Validate checks the ordering invariant: every table a script references
// is created by an earlier Table script in the same set.
func (s *ScriptSet) Validate() error {
	created := make(map[string]bool)
	for _, sc := range s.Scripts {
		for _, ref := range sc.References {
			if !created[ref] {
				return fmt.Errorf("%w: %s %q references %s before it is created", ErrOrdering, sc.Type, sc.Name, ref)
			}
		}
		if sc.Type == TableScript {
			created[sc.Table] = true
		}
	}
	return nil
}

// Merge appends other's scripts. Scripts already present with identical
// content are skipped, which is how a shared meta-schema ends up emitted
// once. A name present with different content is a conflict and nothing is
// merged.
func (s *ScriptSet) Merge(other *ScriptSet) error {
	existing := make(map[string]string, len(s.Scripts))
	for _, sc := range s.Scripts {
		existing[sc.Name] = sc.Content
	}

	var fresh []Script
	for _, sc := range other.Scripts {
		content, ok := existing[sc.Name]
		if !ok {
			fresh = append(fresh, sc)
			continue
		}
		if content != sc.Content {
			return fmt.Errorf("%s %q conflicts with an object already generated in this batch", sc.Type, sc.Name)
		}
	}

	s.Scripts = append(s.Scripts, fresh...)
	s.Warnings = append(s.Warnings, other.Warnings...)
	s.renumber()
	return nil
}

// Text renders the set as one script, each batch followed by GO.
func (s *ScriptSet) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "-- Strategy: %s\n", s.Strategy)
	if s.FormName != "" {
		fmt.Fprintf(&b, "-- Form: %s\n", CommentText(s.FormName))
	}
	fmt.Fprintf(&b, "-- Scripts: %d\n\n", len(s.Scripts))

	for _, sc := range s.Scripts {
		fmt.Fprintf(&b, "-- %d. %s: %s\n", sc.ExecutionOrder, sc.Type, CommentText(sc.Name))
		if sc.Description != "" {
			fmt.Fprintf(&b, "-- %s\n", CommentText(sc.Description))
		}
		b.WriteString(strings.TrimRight(sc.Content, "\n"))
		b.WriteString("\n" + BatchTerminator + "\n\n")
	}
	return b.String()
}

// Batches returns the content of each script in execution order.
func (s *ScriptSet) Batches() []string {
	batches := make([]string, 0, len(s.Scripts))
	for _, sc := range s.Scripts {
		batches = append(batches, sc.Content)
	}
	return batches
}
