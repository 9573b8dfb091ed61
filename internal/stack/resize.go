package stack

import (
	"time"

	"github.com/karlb/termstack/internal/coords"
)

// TitleBarHeight is the chrome TermStack draws above an SSD external
// window's content area.
const TitleBarHeight int32 = 24

// RequestResize begins a resize of the external window at index to
// newHeight (the total cell height, title bar included), recording the
// pending state so HandleCommit can recognize completion. It does
// nothing when the height is unchanged. No height conversion happens
// here: SurfaceHeight gives the surface-local height to configure, and
// sending the configure is the caller's job.
func (s *TermStack) RequestResize(index int, newHeight int32) {
	if index < 0 || index >= len(s.LayoutNodes) {
		return
	}
	entry := s.LayoutNodes[index].Cell.External
	if entry == nil {
		return
	}

	current := entry.CurrentHeightValue()
	if current == newHeight {
		return
	}

	entry.State = StatePendingResize
	entry.RequestedHeight = newHeight
	entry.RequestedAt = time.Now()
}

// SurfaceHeight returns the content-area height a client should see
// for a given total cell height, accounting for the title bar on SSD
// (non-CSD) windows.
func (e *ExternalEntry) SurfaceHeight(totalHeight int32) int32 {
	if e.UsesCSD {
		return totalHeight
	}
	if totalHeight < TitleBarHeight {
		return 0
	}
	return totalHeight - TitleBarHeight
}

// ResizeAllExternalWindows is called when the output itself is
// resized. It records the new output width only; it does not change
// any external window's resize state, and reconfiguring each window to
// the new width at its current height is left to the caller.
func (s *TermStack) ResizeAllExternalWindows(newWidth int32) {
	s.OutputWidth = newWidth
	for i := range s.LayoutNodes {
		entry := s.LayoutNodes[i].Cell.External
		if entry == nil {
			continue
		}
		_ = entry.CurrentHeightValue()
		// The actual configure send is the caller's responsibility
		// (it owns the wlbridge handle); nothing is recorded per window
		// here, so HandleCommit treats the resulting commit by the
		// window's existing state.
	}
}

// HandleCommit reconciles a client's committed surface size against
// any pending resize for the external window at index. committedSurfaceHeight
// is the content-area height the client actually drew, as reported by
// the protocol layer.
func (s *TermStack) HandleCommit(index int, committedSurfaceHeight int32) {
	if index < 0 || index >= len(s.LayoutNodes) {
		return
	}

	// Skip commits while actively drag-resizing this window: commits
	// mid-drag carry the old size and would overwrite visual updates.
	if s.Resizing != nil && s.Resizing.WindowIndex == index {
		return
	}

	entry := s.LayoutNodes[index].Cell.External
	if entry == nil {
		return
	}

	committedWindowHeight := committedSurfaceHeight
	if !entry.UsesCSD {
		committedWindowHeight += TitleBarHeight
	}

	switch entry.State {
	case StatePendingResize:
		if committedWindowHeight == entry.RequestedHeight {
			entry.State = StateActive
			entry.CurrentHeight = committedWindowHeight
			s.LayoutNodes[index].Height = committedWindowHeight
			s.ExternalWindowResized = &struct {
				Index  int
				Height int32
			}{Index: index, Height: committedWindowHeight}

			// If the drag moved on while the commit was in flight,
			// reset the throttle so the next UpdateDragResize sends the
			// newer target immediately.
			if s.Resizing != nil && s.Resizing.WindowIndex == index {
				if s.Resizing.TargetHeight != committedWindowHeight {
					s.Resizing.LastSentHeight = nil
					s.Resizing.LastConfigureTime = time.Now().Add(-MinConfigureInterval)
				}
			}
		}

	case StateAwaitingCommit:
		if committedWindowHeight == entry.TargetHeight {
			entry.State = StateActive
			entry.CurrentHeight = committedWindowHeight
			s.LayoutNodes[index].Height = committedWindowHeight
			s.ExternalWindowResized = &struct {
				Index  int
				Height int32
			}{Index: index, Height: committedWindowHeight}
		}

	case StateActive:
		if committedWindowHeight != entry.CurrentHeight {
			entry.CurrentHeight = committedWindowHeight
			s.LayoutNodes[index].Height = committedWindowHeight
			s.ExternalWindowResized = &struct {
				Index  int
				Height int32
			}{Index: index, Height: committedWindowHeight}
		}
	}
}

// CancelStalePendingResizes reverts any external window resize that
// has waited longer than ResizeTimeout for a client commit.
func (s *TermStack) CancelStalePendingResizes() {
	now := time.Now()
	for i := range s.LayoutNodes {
		entry := s.LayoutNodes[i].Cell.External
		if entry == nil || entry.State != StatePendingResize {
			continue
		}
		if now.Sub(entry.RequestedAt) > ResizeTimeout {
			entry.State = StateActive
		}
	}
}

// FindResizeHandleAt returns the index of the cell whose bottom-edge
// resize handle contains screenY, or -1 if none. There is never a
// handle below the last cell, and a single-cell stack has none at all.
func (s *TermStack) FindResizeHandleAt(screenY coords.ScreenY) int {
	if len(s.LayoutNodes) < 2 {
		return -1
	}

	screenYValue := int32(screenY)
	contentY := -s.ScrollOffset
	halfHandle := ResizeHandleSize / 2

	for i, node := range s.LayoutNodes {
		bottomY := contentY + node.Height
		if i < len(s.LayoutNodes)-1 && screenYValue >= bottomY-halfHandle && screenYValue <= bottomY+halfHandle {
			return i
		}
		contentY = bottomY
	}
	return -1
}

// StartDragResize begins a manual drag resize of the cell at index.
func (s *TermStack) StartDragResize(index int, initialTarget int32) {
	s.Resizing = &DragResize{WindowIndex: index, TargetHeight: initialTarget, LastConfigureTime: time.Now().Add(-MinConfigureInterval)}
}

// UpdateDragResize moves the drag target height, throttled to
// MinConfigureInterval between sends. It returns the height the
// caller should actually configure to, and whether a send should
// happen now.
func (s *TermStack) UpdateDragResize(newTarget int32) (height int32, shouldSend bool) {
	if s.Resizing == nil {
		return 0, false
	}
	s.Resizing.TargetHeight = newTarget

	if s.Resizing.LastSentHeight != nil && *s.Resizing.LastSentHeight == newTarget {
		return newTarget, false
	}
	if time.Since(s.Resizing.LastConfigureTime) < MinConfigureInterval {
		return newTarget, false
	}

	s.Resizing.LastSentHeight = &newTarget
	s.Resizing.LastConfigureTime = time.Now()
	return newTarget, true
}

// EndDragResize finalizes a drag resize, clearing drag state.
func (s *TermStack) EndDragResize() {
	s.Resizing = nil
}
