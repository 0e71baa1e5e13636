package session

import (
	"context"
	"strings"
	"unicode"
)

// Control keys understood by HandleKey
const (
	KeyEnter     = '\r'
	KeyEscape    = '\x1b'
	KeyBackspace = '\x7f'
)

// HandleKey applies one keypress. In input mode keys edit the connection
// string; otherwise they switch views, move the cursor or run commands.
// Errors are those of the command the key triggered; the status message
// already describes them.
func (s *Session) HandleKey(ctx context.Context, key rune) (State, error) {
	if s.State().InputMode {
		switch key {
		case KeyEnter, '\n':
			return s.SubmitInput(ctx)
		case KeyEscape:
			return s.CancelInput(), nil
		case KeyBackspace, '\b':
			return s.Backspace(), nil
		default:
			return s.InputRune(key), nil
		}
	}

	switch key {
	case 'q':
		return s.update(func(st *State) { st.Quit = true }), nil
	case 'h':
		return s.setView(Home), nil
	case 's':
		if s.State().Schema == nil {
			return s.setStatus("No schema loaded. Connect first."), nil
		}
		return s.setView(SchemaView), nil
	case 't':
		return s.setView(TimelineView), nil
	case 'd':
		return s.setView(DiagnoseView), nil
	case 'r':
		return s.setView(RecoverView), nil
	case '?':
		return s.setView(HelpView), nil
	case 'c':
		if s.State().Connected {
			return s.State(), nil
		}
		return s.BeginInput(), nil
	case 'D':
		return s.Disconnect(), nil
	case 'j', 'J':
		return s.MoveDown(), nil
	case 'k', 'K':
		return s.MoveUp(), nil
	case 'R':
		return s.Refresh(ctx)
	case KeyEnter, '\n':
		return s.enter(ctx)
	default:
		return s.State(), nil
	}
}

func (s *Session) enter(ctx context.Context) (State, error) {
	cur := s.State()
	switch cur.View {
	case DiagnoseView:
		return s.RunDiagnostics(ctx)
	case RecoverView:
		if cur.Plan == nil {
			return s.GenerateRecoveryPlan(ctx)
		}
	}
	return cur, nil
}

// SetView switches the presented view. Moving between the schema and the
// diagnose views moves the cursor to the list that view shows.
func (s *Session) SetView(v View) State {
	return s.setView(v)
}

func (s *Session) setView(v View) State {
	return s.update(func(st *State) {
		st.View = v
		switch {
		case v == SchemaView && (st.Selection.Kind == ConstraintsHeader || st.Selection.Kind == ConstraintItem):
			st.Selection = Selection{Kind: TablesHeader}
		case v == DiagnoseView && (st.Selection.Kind == TablesHeader || st.Selection.Kind == TableItem):
			st.Selection = Selection{Kind: ConstraintsHeader}
		}
	})
}

// MoveDown advances the cursor; from a header it enters the first item
func (s *Session) MoveDown() State {
	return s.update(func(st *State) {
		tables, constraints := tableCount(*st), len(st.Constraints)
		sel := st.Selection
		switch sel.Kind {
		case TablesHeader:
			if tables > 0 {
				sel = Selection{Kind: TableItem}
			}
		case TableItem:
			if sel.Index+1 < tables {
				sel.Index++
			}
		case ConstraintsHeader:
			if constraints > 0 {
				sel = Selection{Kind: ConstraintItem}
			}
		case ConstraintItem:
			if sel.Index+1 < constraints {
				sel.Index++
			}
		}
		st.Selection = clampSelection(sel, tables, constraints)
	})
}

// MoveUp moves the cursor back; above the first item it returns to the header
func (s *Session) MoveUp() State {
	return s.update(func(st *State) {
		sel := st.Selection
		switch sel.Kind {
		case TableItem:
			if sel.Index == 0 {
				sel = Selection{Kind: TablesHeader}
			} else {
				sel.Index--
			}
		case ConstraintItem:
			if sel.Index == 0 {
				sel = Selection{Kind: ConstraintsHeader}
			} else {
				sel.Index--
			}
		}
		st.Selection = clampSelection(sel, tableCount(*st), len(st.Constraints))
	})
}

// BeginInput starts capturing a connection string
func (s *Session) BeginInput() State {
	return s.update(func(st *State) {
		st.InputMode = true
		st.Input = ""
		st.Status = "Enter connection string (Enter to confirm, Esc to cancel)"
	})
}

// InputRune appends a printable rune to the connection string
func (s *Session) InputRune(r rune) State {
	if !unicode.IsPrint(r) {
		return s.State()
	}
	return s.update(func(st *State) {
		if st.InputMode {
			st.Input += string(r)
		}
	})
}

// Backspace removes the last rune of the connection string
func (s *Session) Backspace() State {
	return s.update(func(st *State) {
		if runes := []rune(st.Input); len(runes) > 0 {
			st.Input = string(runes[:len(runes)-1])
		}
	})
}

// CancelInput leaves input mode without connecting
func (s *Session) CancelInput() State {
	return s.update(func(st *State) {
		st.InputMode = false
		st.Input = ""
		st.Status = "Connection cancelled"
	})
}

// SubmitInput leaves input mode and connects with the captured string.
// An empty string cancels.
func (s *Session) SubmitInput(ctx context.Context) (State, error) {
	var url string
	s.update(func(st *State) {
		url = strings.TrimSpace(st.Input)
		st.InputMode = false
		st.Input = ""
	})
	if url == "" {
		return s.setStatus("Connection cancelled"), nil
	}
	return s.Connect(ctx, url)
}
