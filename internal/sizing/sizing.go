// Package sizing implements the per-terminal sizing state machine:
// it decides when a cell should grow to fit content, serialises
// growth requests against the renderer's configure/commit cycle, and
// accounts for lines produced while a resize is pending so none are
// lost or double-counted.
package sizing

import "math"

// ActionKind discriminates the action a state transition emits.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionRequestGrowth
	ActionApplyResize
	ActionRestoreScrollback
)

// Action is emitted by every transition method. Only the field that
// matches Kind is meaningful.
type Action struct {
	Kind         ActionKind
	TargetRows   uint16 // RequestGrowth
	Rows         uint16 // ApplyResize
	Lines        uint32 // RestoreScrollback
}

func none() Action { return Action{Kind: ActionNone} }

// Phase discriminates which variant of State is active.
type Phase int

const (
	PhaseStable Phase = iota
	PhaseGrowthRequested
	PhaseResizing
)

// State is the sizing state machine for a single terminal. Only the
// fields relevant to the current Phase are meaningful, mirroring a
// tagged union: Stable{rows,content_rows} | GrowthRequested{...} |
// Resizing{...}.
type State struct {
	Phase Phase

	// Stable
	Rows uint16

	// GrowthRequested
	CurrentRows uint16
	TargetRows  uint16

	// Resizing
	FromRows uint16
	ToRows   uint16

	ContentRowsField  uint32
	PendingScrollback uint32
}

// New creates a Stable state machine with the given initial row count.
func New(initialRows uint16) *State {
	return &State{Phase: PhaseStable, Rows: initialRows}
}

// ContentRows returns the total lines ever committed in Stable.
func (s *State) ContentRows() uint32 { return s.ContentRowsField }

// CurrentRowsValue returns the current row count regardless of phase.
func (s *State) CurrentRowsValue() uint16 {
	switch s.Phase {
	case PhaseStable:
		return s.Rows
	case PhaseGrowthRequested:
		return s.CurrentRows
	case PhaseResizing:
		return s.FromRows
	default:
		return 0
	}
}

// IsStable reports whether the machine is in the Stable phase.
func (s *State) IsStable() bool { return s.Phase == PhaseStable }

// OnNewLine processes a new line arriving from the PTY. In Stable it
// increments content_rows and, if that makes content_rows exceed rows
// (and growth hasn't already been requested), transitions to
// GrowthRequested. In all other phases it only accounts the line into
// pending_scrollback.
func (s *State) OnNewLine() Action {
	switch s.Phase {
	case PhaseStable:
		if s.ContentRowsField < math.MaxUint32 {
			s.ContentRowsField++
		}
		if s.ContentRowsField > uint32(s.Rows) {
			target := s.ContentRowsField
			if target > uint32(math.MaxUint16) {
				target = uint32(math.MaxUint16)
			}
			rows := s.Rows
			s.Phase = PhaseGrowthRequested
			s.CurrentRows = rows
			s.TargetRows = uint16(target)
			return Action{Kind: ActionRequestGrowth, TargetRows: uint16(target)}
		}
		return none()
	case PhaseGrowthRequested, PhaseResizing:
		s.PendingScrollback++
		return none()
	default:
		return none()
	}
}

// OnConfigure processes the renderer's acknowledgement of a requested
// row count (or an unsolicited resize while Stable).
func (s *State) OnConfigure(newRows uint16) Action {
	switch s.Phase {
	case PhaseStable:
		if newRows == s.Rows {
			return none()
		}
		from := s.Rows
		s.Phase = PhaseResizing
		s.FromRows = from
		s.ToRows = newRows
		s.PendingScrollback = 0
		return Action{Kind: ActionApplyResize, Rows: newRows}

	case PhaseGrowthRequested:
		cur := s.CurrentRows
		cr := s.ContentRowsField
		psb := s.PendingScrollback
		s.Phase = PhaseResizing
		s.FromRows = cur
		s.ToRows = newRows
		s.ContentRowsField = cr
		s.PendingScrollback = psb
		return Action{Kind: ActionApplyResize, Rows: newRows}

	case PhaseResizing:
		if newRows == s.ToRows {
			return none()
		}
		s.ToRows = newRows
		return Action{Kind: ActionApplyResize, Rows: newRows}

	default:
		return none()
	}
}

// OnResizeComplete transitions Resizing back to Stable, reporting any
// scrollback that needs restoring.
func (s *State) OnResizeComplete() Action {
	if s.Phase != PhaseResizing {
		return none()
	}
	to := s.ToRows
	cr := s.ContentRowsField
	psb := s.PendingScrollback

	s.Phase = PhaseStable
	s.Rows = to
	s.ContentRowsField = cr
	s.PendingScrollback = 0

	if psb > 0 {
		return Action{Kind: ActionRestoreScrollback, Lines: psb}
	}
	return none()
}

// RequestGrowth explicitly requests growth to a target row count
// while Stable (used e.g. for the one-shot full-viewport resize on
// entering the alternate screen). No-op outside Stable.
func (s *State) RequestGrowth(targetRows uint16) Action {
	if s.Phase != PhaseStable {
		return none()
	}
	rows := s.Rows
	cr := s.ContentRowsField
	s.Phase = PhaseGrowthRequested
	s.CurrentRows = rows
	s.TargetRows = targetRows
	s.ContentRowsField = cr
	s.PendingScrollback = 0
	return none()
}
