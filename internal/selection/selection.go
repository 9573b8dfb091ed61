// Package selection implements cross-window text selection: dragging
// a selection across multiple stacked terminals (and their title
// bars) and extracting the combined text as if the stack were one
// continuous terminal.
package selection

import (
	"strings"
	"time"

	"github.com/karlb/termstack/internal/coords"
	"github.com/karlb/termstack/internal/stack"
	"github.com/karlb/termstack/internal/terminal"
)

// MaxSelectionWindows bounds how many cells a single drag can span,
// to keep per-frame selection bookkeeping bounded on very tall stacks.
const MaxSelectionWindows = 50

// motionThrottle limits how often UpdateCrossSelection does work while
// the pointer is moving, avoiding redundant per-terminal selection
// updates on every mouse-move event.
const motionThrottle = 16 * time.Millisecond

// titleBarHeight mirrors stack.TitleBarHeight; selection math treats
// both terminal title bars and external SSD title bars the same way.
const titleBarHeight = stack.TitleBarHeight

// PositionKind discriminates where within a cell a point landed.
type PositionKind int

const (
	PositionContent PositionKind = iota
	PositionTitleBar
)

// Position is a point within a single cell, either a character index
// into its title bar or a column/row into its terminal grid.
type Position struct {
	Kind      PositionKind
	CharIndex int
	Col, Row  int
}

// Anchor is one end of a cross-selection: a cell index plus a
// position within that cell.
type Anchor struct {
	WindowIndex int
	Position    Position
}

// CrossSelection is an in-progress or completed drag selection
// spanning one or more cells.
type CrossSelection struct {
	Start      Anchor
	End        Anchor
	Active     bool
	LastUpdate time.Time
}

// New starts a cross-selection anchored at the given cell/position.
func New(windowIndex int, pos Position) *CrossSelection {
	return &CrossSelection{
		Start:      Anchor{WindowIndex: windowIndex, Position: pos},
		End:        Anchor{WindowIndex: windowIndex, Position: pos},
		Active:     true,
		LastUpdate: time.Now(),
	}
}

// WindowRange returns the selection's cell span in ascending order.
func (c *CrossSelection) WindowRange() (first, last int) {
	if c.Start.WindowIndex <= c.End.WindowIndex {
		return c.Start.WindowIndex, c.End.WindowIndex
	}
	return c.End.WindowIndex, c.Start.WindowIndex
}

// IsMultiWindow reports whether the selection spans more than one cell.
func (c *CrossSelection) IsMultiWindow() bool {
	first, last := c.WindowRange()
	return first != last
}

// ContainsWindow reports whether index falls within the selection's span.
func (c *CrossSelection) ContainsWindow(index int) bool {
	first, last := c.WindowRange()
	return index >= first && index <= last
}

// IsWindowFullySelected reports whether index is a middle window in a
// multi-window selection (neither the first nor the last cell), whose
// entire content is therefore included.
func (c *CrossSelection) IsWindowFullySelected(index int) bool {
	first, last := c.WindowRange()
	return index > first && index < last
}

// hasTitleBar reports whether the cell has a visible title bar: shown
// for command terminals and non-CSD external windows.
func hasTitleBar(cell stack.Window, terminals *terminal.Manager) bool {
	if cell.Kind == stack.KindTerminal {
		t := terminals.Get(cell.TerminalID)
		return t != nil && t.ShowTitleBar
	}
	return cell.External != nil && !cell.External.UsesCSD
}

func cellTitle(cell stack.Window, terminals *terminal.Manager) string {
	if cell.Kind == stack.KindTerminal {
		if t := terminals.Get(cell.TerminalID); t != nil {
			return t.Title
		}
		return ""
	}
	if cell.External != nil {
		return cell.External.Command
	}
	return ""
}

// PositionAt determines which cell a render-space point landed on and
// whether it hit that cell's title bar or content area.
func PositionAt(s *stack.TermStack, terminals *terminal.Manager, renderX float64, renderY coords.RenderY) (windowIndex int, pos Position, ok bool) {
	idx := s.WindowAt(renderY)
	if idx < 0 || idx >= len(s.LayoutNodes) {
		return 0, Position{}, false
	}
	node := s.LayoutNodes[idx]

	l := s.RecalculateLayout()
	top := int32(l.Positions[idx].Y) + node.Height

	if hasTitleBar(node.Cell, terminals) {
		titleBarBottom := top - titleBarHeight
		if int32(renderY) >= titleBarBottom {
			charIndex := int(renderX) / 8 // approximate monospace advance
			if charIndex < 0 {
				charIndex = 0
			}
			return idx, Position{Kind: PositionTitleBar, CharIndex: charIndex}, true
		}
	}

	if node.Cell.Kind == stack.KindTerminal {
		t := terminals.Get(node.Cell.TerminalID)
		if t == nil {
			return 0, Position{}, false
		}
		cw, ch := t.CellSize()
		titleOffset := int32(0)
		if hasTitleBar(node.Cell, terminals) {
			titleOffset = titleBarHeight
		}
		contentTop := top - titleOffset
		localY := contentTop - int32(renderY)
		if localY < 0 {
			localY = 0
		}
		localX := renderX
		if localX < 0 {
			localX = 0
		}
		col := int(localX / float64(cw))
		row := int(float64(localY) / float64(ch))
		return idx, Position{Kind: PositionContent, Col: col, Row: row}, true
	}

	// External windows have no selectable text content; a click on
	// their (title-bar-less) body hits nothing.
	if hasTitleBar(node.Cell, terminals) {
		return idx, Position{Kind: PositionTitleBar, CharIndex: 0}, true
	}
	return 0, Position{}, false
}

// Start begins a cross-window selection at a render-space point,
// clearing any previous terminal-internal selections first.
func Start(s *stack.TermStack, terminals *terminal.Manager, renderX float64, renderY coords.RenderY) *CrossSelection {
	idx, pos, ok := PositionAt(s, terminals, renderX, renderY)
	if !ok {
		return nil
	}

	for _, node := range s.LayoutNodes {
		if node.Cell.Kind != stack.KindTerminal {
			continue
		}
		if t := terminals.Get(node.Cell.TerminalID); t != nil {
			t.Emulator().ClearSelection()
		}
	}

	if pos.Kind == PositionContent {
		if t := terminals.Get(s.LayoutNodes[idx].Cell.TerminalID); t != nil {
			t.Emulator().StartSelection(pos.Col, pos.Row)
			t.MarkDirty()
		}
	}

	return New(idx, pos)
}

// Update extends an in-progress cross-selection to a new render-space
// point, throttled to motionThrottle. It returns false if nothing was
// updated (not active, throttled, or the point hit nothing).
func Update(sel *CrossSelection, s *stack.TermStack, terminals *terminal.Manager, renderX float64, renderY coords.RenderY) bool {
	if sel == nil || !sel.Active {
		return false
	}
	now := time.Now()
	if now.Sub(sel.LastUpdate) < motionThrottle {
		return false
	}

	endWindow, endPos, ok := PositionAt(s, terminals, renderX, renderY)
	if !ok {
		return false
	}

	endWindow = clampSelectionWindow(sel.Start.WindowIndex, endWindow)
	sel.End = Anchor{WindowIndex: endWindow, Position: endPos}
	sel.LastUpdate = now

	updateTerminalSelections(sel, s, terminals)
	return true
}

// updateTerminalSelections pushes the cross-selection's range down
// into each spanned terminal's own internal selection, so each grid
// renders its own highlighted span.
func updateTerminalSelections(sel *CrossSelection, s *stack.TermStack, terminals *terminal.Manager) {
	first, last := sel.WindowRange()

	for _, node := range s.LayoutNodes {
		if node.Cell.Kind != stack.KindTerminal {
			continue
		}
		if t := terminals.Get(node.Cell.TerminalID); t != nil {
			t.Emulator().ClearSelection()
		}
	}

	for idx, node := range s.LayoutNodes {
		if idx < first || idx > last {
			continue
		}
		if node.Cell.Kind != stack.KindTerminal {
			continue
		}
		t := terminals.Get(node.Cell.TerminalID)
		if t == nil {
			continue
		}

		contentRows := t.ContentRows()
		gridRows := t.GridRows()
		maxCol := int(t.Cols()) - 1
		if maxCol < 0 {
			maxCol = 0
		}
		lastContentRow := minInt(contentRows-1, gridRows-1)
		maxRow := gridRows - 1

		startCol, startRow, endCol, endRow, skip := rangeForWindow(sel, idx, first, last, maxCol, maxRow, lastContentRow)
		if skip {
			continue
		}

		t.Emulator().StartSelection(startCol, startRow)
		t.Emulator().ExtendSelection(endCol, endRow)
		t.MarkDirty()
	}
}

func rangeForWindow(sel *CrossSelection, idx, first, last, maxCol, maxRow, lastContentRow int) (startCol, startRow, endCol, endRow int, skip bool) {
	if first == last {
		if sel.Start.Position.Kind != PositionContent || sel.End.Position.Kind != PositionContent {
			return 0, 0, 0, 0, true
		}
		return clampInt(sel.Start.Position.Col, maxCol), clampInt(sel.Start.Position.Row, maxRow),
			clampInt(sel.End.Position.Col, maxCol), clampInt(sel.End.Position.Row, maxRow), false
	}

	if idx == first {
		anchor := sel.Start.Position
		if sel.Start.WindowIndex != first {
			anchor = sel.End.Position
		}
		if anchor.Kind != PositionContent {
			return 0, 0, maxCol, lastContentRow, false
		}
		return clampInt(anchor.Col, maxCol), clampInt(anchor.Row, maxRow), maxCol, lastContentRow, false
	}

	if idx == last {
		anchor := sel.Start.Position
		if sel.Start.WindowIndex != last {
			anchor = sel.End.Position
		}
		if anchor.Kind != PositionContent {
			return 0, 0, 0, 0, true
		}
		return 0, 0, clampInt(anchor.Col, maxCol), clampInt(anchor.Row, maxRow), false
	}

	return 0, 0, maxCol, lastContentRow, false
}

// End completes a cross-selection (it remains visible but no longer
// updates on motion) and returns the combined selected text, or ""
// if nothing was selected.
func End(sel *CrossSelection, s *stack.TermStack, terminals *terminal.Manager) string {
	if sel == nil {
		return ""
	}
	sel.Active = false
	return extractText(sel, s, terminals)
}

func extractText(sel *CrossSelection, s *stack.TermStack, terminals *terminal.Manager) string {
	first, last := sel.WindowRange()
	topAnchor, bottomAnchor := sel.Start, sel.End
	if sel.Start.WindowIndex > sel.End.WindowIndex {
		topAnchor, bottomAnchor = sel.End, sel.Start
	}

	var b strings.Builder
	for idx := first; idx <= last; idx++ {
		if idx < 0 || idx >= len(s.LayoutNodes) {
			continue
		}
		node := s.LayoutNodes[idx]

		hasTB := hasTitleBar(node.Cell, terminals)
		title := cellTitle(node.Cell, terminals)
		isFirst := idx == first
		isLast := idx == last

		if idx > first && b.Len() > 0 {
			b.WriteByte('\n')
		}

		if hasTB {
			titleRunes := []rune(title)
			startOK, start := titleStart(isFirst, topAnchor)
			endOK, end := titleEnd(isLast, bottomAnchor, len(titleRunes))
			if startOK && endOK && start <= end && start < len(titleRunes) {
				if end >= len(titleRunes) {
					end = len(titleRunes) - 1
				}
				slice := string(titleRunes[start : end+1])
				if slice != "" {
					b.WriteString(slice)
					b.WriteByte('\n')
				}
			}
		}

		if node.Cell.Kind == stack.KindTerminal {
			t := terminals.Get(node.Cell.TerminalID)
			if t == nil {
				continue
			}
			if text := t.Emulator().SelectedText(); text != "" {
				b.WriteString(text)
			}
		}
	}

	return b.String()
}

func titleStart(isFirst bool, anchor Anchor) (ok bool, index int) {
	if !isFirst {
		return true, 0
	}
	if anchor.Position.Kind == PositionTitleBar {
		return true, anchor.Position.CharIndex
	}
	return false, 0
}

func titleEnd(isLast bool, anchor Anchor, titleLen int) (ok bool, index int) {
	last := titleLen - 1
	if last < 0 {
		last = 0
	}
	if !isLast {
		return true, last
	}
	if anchor.Position.Kind == PositionTitleBar {
		return true, anchor.Position.CharIndex
	}
	return true, last
}

func clampSelectionWindow(startWindow, endWindow int) int {
	var span int
	if endWindow >= startWindow {
		span = endWindow - startWindow + 1
	} else {
		span = startWindow - endWindow + 1
	}
	if span <= MaxSelectionWindows {
		return endWindow
	}
	if endWindow >= startWindow {
		return startWindow + MaxSelectionWindows - 1
	}
	clamped := startWindow - MaxSelectionWindows + 1
	if clamped < 0 {
		clamped = 0
	}
	return clamped
}

func clampInt(v, max int) int {
	if max < 0 {
		return 0
	}
	if v > max {
		return max
	}
	if v < 0 {
		return 0
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
