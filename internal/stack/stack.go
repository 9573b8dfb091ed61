// Package stack holds the compositor's ordered column of cells: the
// layout node vector, identity-based focus tracking, and the external
// window resize/commit reconciliation state machine. It is the single
// source of truth the frame loop reads to compute layout and the
// input layer reads to route events.
package stack

import (
	"time"

	"github.com/karlb/termstack/internal/coords"
	"github.com/karlb/termstack/internal/layout"
	"github.com/karlb/termstack/internal/terminal"
)

const (
	// ResizeTimeout bounds how long an external window resize waits
	// for the client to commit before the compositor gives up and
	// reverts to the last known-good height.
	ResizeTimeout = 5000 * time.Millisecond

	// MinConfigureInterval throttles configure events sent to an
	// external window during a drag resize.
	MinConfigureInterval = 100 * time.Millisecond

	// ResizeHandleSize is the hit-test zone height, in pixels, around
	// a cell's bottom edge for starting a drag resize.
	ResizeHandleSize int32 = 8
)

// WindowKind discriminates what a layout node holds.
type WindowKind int

const (
	KindTerminal WindowKind = iota
	KindExternal
)

// ExternalID identifies an external (Wayland toplevel) window.
type ExternalID string

// Window is the payload of a single layout node: either a managed
// terminal or an external window entry.
type Window struct {
	Kind       WindowKind
	TerminalID terminal.ID
	External   *ExternalEntry
}

// ResizeState discriminates an external window's resize lifecycle.
type ResizeState int

const (
	// StateActive: no resize in flight, Height is authoritative.
	StateActive ResizeState = iota
	// StatePendingResize: a configure was sent and the compositor is
	// waiting for the client to commit a matching buffer size.
	StatePendingResize
	// StateAwaitingCommit: like PendingResize but completing on a
	// commit of TargetHeight. HandleCommit handles it; nothing in this
	// package sets it (ResizeAllExternalWindows leaves states as they are).
	StateAwaitingCommit
)

// ExternalEntry is an external window's compositor-side bookkeeping.
type ExternalEntry struct {
	ID       ExternalID
	Command  string
	UsesCSD  bool
	IsForegroundGui bool
	OutputTerminal  *terminal.ID

	State            ResizeState
	CurrentHeight    int32
	RequestedHeight  int32
	TargetHeight     int32
	RequestedAt      time.Time
}

// CurrentHeightValue returns the height to treat as authoritative for
// layout purposes regardless of resize state.
func (e *ExternalEntry) CurrentHeightValue() int32 {
	switch e.State {
	case StatePendingResize:
		return e.CurrentHeight
	default:
		return e.CurrentHeight
	}
}

// LayoutNode is one entry in the ordered column.
type LayoutNode struct {
	Cell   Window
	Height int32
}

// FocusedWindow identifies the focused cell by identity, not index, so
// insertions/removals elsewhere in the column never silently move
// focus to the wrong cell.
type FocusedWindow struct {
	IsTerminal bool
	TerminalID terminal.ID
	ExternalID ExternalID
}

// DragResize tracks an in-progress manual drag resize of a cell.
type DragResize struct {
	WindowIndex       int
	TargetHeight      int32
	LastSentHeight    *int32
	LastConfigureTime time.Time
}

// TermStack is the ordered column of cells plus focus and resize state.
type TermStack struct {
	LayoutNodes []LayoutNode

	focusedWindow    *FocusedWindow
	cachedIndexValid bool
	cachedIndexValue int

	OutputWidth  int32
	OutputHeight int32
	ScrollOffset int32

	Resizing              *DragResize
	ExternalWindowResized *struct {
		Index  int
		Height int32
	}
}

// New creates an empty stack sized to the given output.
func New(outputWidth, outputHeight int32) *TermStack {
	return &TermStack{OutputWidth: outputWidth, OutputHeight: outputHeight}
}

// invalidateFocusedIndexCache must be called after any mutation to
// LayoutNodes or focusedWindow.
func (s *TermStack) invalidateFocusedIndexCache() {
	s.cachedIndexValid = false
}

// FocusedIndex returns the index of the focused cell, or -1 if none is
// focused or the focused cell no longer exists. Cached within a frame.
func (s *TermStack) FocusedIndex() int {
	if s.cachedIndexValid {
		return s.cachedIndexValue
	}
	idx := s.computeFocusedIndex()
	s.cachedIndexValid = true
	s.cachedIndexValue = idx
	return idx
}

func (s *TermStack) computeFocusedIndex() int {
	if s.focusedWindow == nil {
		return -1
	}
	for i, node := range s.LayoutNodes {
		if s.focusedWindow.IsTerminal && node.Cell.Kind == KindTerminal && node.Cell.TerminalID == s.focusedWindow.TerminalID {
			return i
		}
		if !s.focusedWindow.IsTerminal && node.Cell.Kind == KindExternal && node.Cell.External != nil && node.Cell.External.ID == s.focusedWindow.ExternalID {
			return i
		}
	}
	return -1
}

// focusedOrLast returns the focused index, or the length of the
// column if nothing is focused — the natural insertion point.
func (s *TermStack) focusedOrLast() int {
	if idx := s.FocusedIndex(); idx >= 0 {
		return idx
	}
	return len(s.LayoutNodes)
}

// SetFocusByIndex focuses the cell at index by identity.
func (s *TermStack) SetFocusByIndex(index int) {
	if index < 0 || index >= len(s.LayoutNodes) {
		return
	}
	node := s.LayoutNodes[index]
	if node.Cell.Kind == KindTerminal {
		s.focusedWindow = &FocusedWindow{IsTerminal: true, TerminalID: node.Cell.TerminalID}
	} else if node.Cell.External != nil {
		s.focusedWindow = &FocusedWindow{IsTerminal: false, ExternalID: node.Cell.External.ID}
	}
	s.invalidateFocusedIndexCache()
}

// ClearFocus focuses nothing.
func (s *TermStack) ClearFocus() {
	s.focusedWindow = nil
	s.invalidateFocusedIndexCache()
}

// IsTerminalFocused reports whether the focused cell is a terminal.
func (s *TermStack) IsTerminalFocused() bool {
	return s.focusedWindow != nil && s.focusedWindow.IsTerminal
}

// IsExternalFocused reports whether the focused cell is an external window.
func (s *TermStack) IsExternalFocused() bool {
	return s.focusedWindow != nil && !s.focusedWindow.IsTerminal
}

// FocusedTerminal returns the focused terminal's ID, if any.
func (s *TermStack) FocusedTerminal() (terminal.ID, bool) {
	if s.focusedWindow != nil && s.focusedWindow.IsTerminal {
		return s.focusedWindow.TerminalID, true
	}
	return 0, false
}

// AddTerminal inserts a terminal cell above the focused position (or
// at the end if nothing is focused), focusing it if nothing else was
// already focused.
func (s *TermStack) AddTerminal(id terminal.ID) int {
	insertIndex := s.focusedOrLast()
	node := LayoutNode{Cell: Window{Kind: KindTerminal, TerminalID: id}, Height: 0}
	s.LayoutNodes = insertAt(s.LayoutNodes, insertIndex, node)

	if s.focusedWindow == nil {
		s.focusedWindow = &FocusedWindow{IsTerminal: true, TerminalID: id}
	}
	s.invalidateFocusedIndexCache()
	return insertIndex
}

// AddWindow inserts an external window. If entry.OutputTerminal is
// set, the window is inserted at that terminal's position, pushing it
// down (GUI, Output, Launcher ordering); otherwise it inserts at the
// focused position. Foreground GUI windows steal focus.
func (s *TermStack) AddWindow(entry *ExternalEntry) int {
	insertIndex := s.focusedOrLast()
	if entry.OutputTerminal != nil {
		for i, node := range s.LayoutNodes {
			if node.Cell.Kind == KindTerminal && node.Cell.TerminalID == *entry.OutputTerminal {
				insertIndex = i
				break
			}
		}
	}

	node := LayoutNode{Cell: Window{Kind: KindExternal, External: entry}, Height: int32(entry.CurrentHeight)}
	s.LayoutNodes = insertAt(s.LayoutNodes, insertIndex, node)

	if entry.IsForegroundGui {
		s.SetFocusByIndex(insertIndex)
	}
	s.invalidateFocusedIndexCache()
	return insertIndex
}

// RemoveTerminal removes the layout node for the given terminal ID, if
// present, fixing up focus afterward.
func (s *TermStack) RemoveTerminal(id terminal.ID) {
	for i, node := range s.LayoutNodes {
		if node.Cell.Kind == KindTerminal && node.Cell.TerminalID == id {
			s.LayoutNodes = removeAt(s.LayoutNodes, i)
			s.updateFocusAfterRemoval(i)
			return
		}
	}
}

// RemoveWindow removes the layout node for the given external ID, if
// present, and returns its output terminal ID when it was a foreground
// GUI window (the caller should restore the launching terminal).
func (s *TermStack) RemoveWindow(id ExternalID) (outputTerminal *terminal.ID, wasForeground bool) {
	for i, node := range s.LayoutNodes {
		if node.Cell.Kind == KindExternal && node.Cell.External != nil && node.Cell.External.ID == id {
			entry := node.Cell.External
			s.LayoutNodes = removeAt(s.LayoutNodes, i)
			s.updateFocusAfterRemoval(i)
			if entry.IsForegroundGui {
				return entry.OutputTerminal, true
			}
			return entry.OutputTerminal, false
		}
	}
	return nil, false
}

// updateFocusAfterRemoval re-focuses an adjacent cell only if the
// removed cell was the focused one; identity-based focus means any
// other removal leaves focus untouched.
func (s *TermStack) updateFocusAfterRemoval(removedIndex int) {
	if len(s.LayoutNodes) == 0 {
		s.ClearFocus()
		return
	}
	if s.FocusedIndex() >= 0 {
		return
	}

	newIndex := removedIndex
	if newIndex >= len(s.LayoutNodes) {
		newIndex = len(s.LayoutNodes) - 1
	}
	s.SetFocusByIndex(newIndex)
}

// FocusNext focuses the next visible cell after the current one,
// skipping hidden terminals via isVisible, with a hard boundary: it
// never wraps past the last cell.
func (s *TermStack) FocusNext(isVisible func(terminal.ID) bool) {
	current := s.FocusedIndex()
	if current < 0 {
		return
	}
	for i := current + 1; i < len(s.LayoutNodes); i++ {
		if s.cellVisible(s.LayoutNodes[i].Cell, isVisible) {
			s.SetFocusByIndex(i)
			return
		}
	}
}

// FocusPrev focuses the previous visible cell before the current one,
// skipping hidden terminals, never wrapping past the first cell.
func (s *TermStack) FocusPrev(isVisible func(terminal.ID) bool) {
	current := s.FocusedIndex()
	if current <= 0 {
		return
	}
	for i := current - 1; i >= 0; i-- {
		if s.cellVisible(s.LayoutNodes[i].Cell, isVisible) {
			s.SetFocusByIndex(i)
			return
		}
	}
}

func (s *TermStack) cellVisible(w Window, isVisible func(terminal.ID) bool) bool {
	if w.Kind == KindTerminal {
		return isVisible(w.TerminalID)
	}
	return true
}

// Scroll adjusts the scroll offset, clamped to the valid range for the
// current set of heights.
func (s *TermStack) Scroll(delta int32) {
	heights := s.heights()
	total := sumHeights(heights)
	s.ScrollOffset = layout.ClampScroll(s.ScrollOffset+delta, total, s.OutputHeight)
}

func (s *TermStack) scrollToShowWindowBottom(index int) {
	heights := s.heights()
	scroll, changed := layout.ScrollToShowBottom(heights, index, s.OutputHeight, s.ScrollOffset)
	if changed {
		s.ScrollOffset = scroll
	}
}

// RecalculateLayout recomputes render-space positions for every node.
func (s *TermStack) RecalculateLayout() layout.ColumnLayout {
	return layout.Calculate(s.heights(), s.OutputHeight, s.ScrollOffset)
}

func (s *TermStack) heights() []int32 {
	out := make([]int32, len(s.LayoutNodes))
	for i, n := range s.LayoutNodes {
		out[i] = n.Height
	}
	return out
}

func sumHeights(h []int32) int32 {
	var total int32
	for _, v := range h {
		total += v
	}
	return total
}

func insertAt(nodes []LayoutNode, index int, node LayoutNode) []LayoutNode {
	if index < 0 {
		index = 0
	}
	if index > len(nodes) {
		index = len(nodes)
	}
	nodes = append(nodes, LayoutNode{})
	copy(nodes[index+1:], nodes[index:])
	nodes[index] = node
	return nodes
}

func removeAt(nodes []LayoutNode, index int) []LayoutNode {
	return append(nodes[:index], nodes[index+1:]...)
}

// WindowAt returns the index of the layout node occupying render-space
// row renderY, or -1 if none.
func (s *TermStack) WindowAt(renderY coords.RenderY) int {
	l := s.RecalculateLayout()
	for i, p := range l.Positions {
		if int32(p.Y) <= int32(renderY) && int32(renderY) < int32(p.Y)+p.Height {
			return i
		}
	}
	return -1
}
