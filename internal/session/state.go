package session

import (
	"fmt"
	"strings"

	"github.com/tordrt/schemadiag/internal/check"
	"github.com/tordrt/schemadiag/internal/recovery"
	"github.com/tordrt/schemadiag/internal/schema"
	"github.com/tordrt/schemadiag/internal/timeline"
)

// View is the screen a front end should present
type View int

const (
	Home View = iota
	SchemaView
	TimelineView
	DiagnoseView
	RecoverView
	HelpView
)

var viewNames = map[View]string{
	Home:         "home",
	SchemaView:   "schema",
	TimelineView: "timeline",
	DiagnoseView: "diagnose",
	RecoverView:  "recover",
	HelpView:     "help",
}

func (v View) String() string {
	if name, ok := viewNames[v]; ok {
		return name
	}
	return fmt.Sprintf("View(%d)", int(v))
}

// MarshalText implements encoding.TextMarshaler
func (v View) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (v *View) UnmarshalText(text []byte) error {
	for view, name := range viewNames {
		if strings.EqualFold(name, string(text)) {
			*v = view
			return nil
		}
	}
	return fmt.Errorf("unknown view %q", string(text))
}

// SelectionKind says which list a Selection points into
type SelectionKind string

const (
	TablesHeader      SelectionKind = "tables"
	TableItem         SelectionKind = "table"
	ConstraintsHeader SelectionKind = "constraints"
	ConstraintItem    SelectionKind = "constraint"
)

// Selection is the cursor over tables or constraints.
// Index is only meaningful for TableItem and ConstraintItem.
type Selection struct {
	Kind  SelectionKind `json:"kind"`
	Index int           `json:"index"`
}

func (s Selection) String() string {
	switch s.Kind {
	case TableItem, ConstraintItem:
		return fmt.Sprintf("%s[%d]", s.Kind, s.Index)
	default:
		return string(s.Kind)
	}
}

// ConstraintNode is the display state of one constraint
type ConstraintNode struct {
	Name           string `json:"name"`
	Type           string `json:"constraint_type"`
	TableName      string `json:"table_name"`
	Satisfied      bool   `json:"satisfied"`
	Degraded       bool   `json:"degraded,omitempty"`
	ViolationCount int64  `json:"violation_count"`
	Message        string `json:"message"`
}

// State is an immutable snapshot of a session. Commands never mutate a
// published State; they publish a new one.
type State struct {
	ID          string                        `json:"id"`
	View        View                          `json:"view"`
	Connected   bool                          `json:"connected"`
	Dialect     string                        `json:"dialect,omitempty"`
	Database    string                        `json:"database,omitempty"`
	Schema      *schema.Model                 `json:"schema,omitempty"`
	FDs         []schema.FunctionalDependency `json:"functional_dependencies,omitempty"`
	Constraints []ConstraintNode              `json:"constraints,omitempty"`
	Results     []check.Result                `json:"results,omitempty"`
	Plan        *recovery.Plan                `json:"plan,omitempty"`
	Timeline    []timeline.Event              `json:"timeline,omitempty"`
	Selection   Selection                     `json:"selection"`
	Status      string                        `json:"status"`
	Running     bool                          `json:"running"`
	InputMode   bool                          `json:"input_mode"`
	Input       string                        `json:"input,omitempty"`
	ProofStatus string                        `json:"proof_status,omitempty"`
	Quit        bool                          `json:"quit,omitempty"`
}

func initialState(id string) State {
	return State{
		ID:        id,
		View:      Home,
		Selection: Selection{Kind: TablesHeader},
		Status:    "Press 'c' to connect, '?' for help",
	}
}

// Violations returns the unsatisfied results
func (s State) Violations() []check.Result {
	var out []check.Result
	for _, r := range s.Results {
		if !r.Satisfied {
			out = append(out, r)
		}
	}
	return out
}

func tableCount(s State) int {
	if s.Schema == nil {
		return 0
	}
	return len(s.Schema.Tables)
}

// uncheckedNodes lists every constraint provisionally satisfied until diagnosed
func uncheckedNodes(constraints []schema.Constraint) []ConstraintNode {
	nodes := make([]ConstraintNode, len(constraints))
	for i, c := range constraints {
		nodes[i] = ConstraintNode{
			Name:      c.Name,
			Type:      c.Type.String(),
			TableName: c.TableName,
			Satisfied: true,
			Message:   "Not yet checked",
		}
	}
	return nodes
}

func resultNodes(results []check.Result) []ConstraintNode {
	nodes := make([]ConstraintNode, len(results))
	for i, r := range results {
		node := ConstraintNode{
			Name:      r.ConstraintName,
			Type:      r.ConstraintType,
			TableName: r.TableName,
			Satisfied: r.Satisfied,
			Degraded:  r.Degraded,
			Message:   "OK",
		}
		switch {
		case r.Violation != nil:
			node.ViolationCount = r.Violation.ViolationCount
			node.Message = r.Violation.Explanation
		case r.Degraded:
			node.Message = "Check failed, assumed satisfied: " + r.Warning
		}
		nodes[i] = node
	}
	return nodes
}

// clampSelection moves the cursor to the nearest valid position after a list shrinks
func clampSelection(sel Selection, tables, constraints int) Selection {
	switch sel.Kind {
	case TableItem:
		if tables == 0 {
			return Selection{Kind: TablesHeader}
		}
		if sel.Index >= tables {
			sel.Index = tables - 1
		}
	case ConstraintItem:
		if constraints == 0 {
			return Selection{Kind: ConstraintsHeader}
		}
		if sel.Index >= constraints {
			sel.Index = constraints - 1
		}
	case TablesHeader, ConstraintsHeader:
	default:
		return Selection{Kind: TablesHeader}
	}
	if sel.Index < 0 {
		sel.Index = 0
	}
	return sel
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
