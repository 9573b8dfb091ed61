// Package layout implements the pure column layout function: placing a
// sequence of heterogeneous cell heights into a single vertically
// scrollable column and deriving render-space positions and
// visibility.
package layout

import "github.com/karlb/termstack/internal/coords"

// Position is a single cell's placement in render space.
type Position struct {
	Y       coords.RenderY
	Height  int32
	Visible bool
}

// ColumnLayout is the result of laying out a sequence of cell heights.
type ColumnLayout struct {
	Positions    []Position
	TotalHeight  int32
	VisibleStart int32 // first content-space Y visible in the viewport
	VisibleEnd   int32 // one past the last content-space Y visible
}

// Empty returns a layout with no cells.
func Empty() ColumnLayout {
	return ColumnLayout{}
}

// Calculate lays out heights top-down in content space (cell 0 first),
// then converts each to render space via the standard Y-flip formula.
// It is a pure function: identical inputs yield identical outputs.
func Calculate(heights []int32, outputHeight, scroll int32) ColumnLayout {
	positions := make([]Position, len(heights))
	var contentY int32
	for i, h := range heights {
		renderY := coords.ContentToRender(coords.ContentY(contentY), h, outputHeight, scroll)
		visible := int32(renderY) < outputHeight && int32(renderY)+h > 0
		positions[i] = Position{Y: renderY, Height: h, Visible: visible}
		contentY += h
	}

	visStart := scroll
	visEnd := scroll + outputHeight
	if visEnd > contentY {
		visEnd = contentY
	}
	if visStart > visEnd {
		visStart = visEnd
	}

	return ColumnLayout{
		Positions:    positions,
		TotalHeight:  contentY,
		VisibleStart: visStart,
		VisibleEnd:   visEnd,
	}
}

// MaxScroll returns the largest scroll offset that still shows content,
// given the total content height and the viewport height.
func MaxScroll(totalHeight, outputHeight int32) int32 {
	if totalHeight <= outputHeight {
		return 0
	}
	return totalHeight - outputHeight
}

// ClampScroll clamps a scroll value to [0, max_scroll].
func ClampScroll(scroll, totalHeight, outputHeight int32) int32 {
	max := MaxScroll(totalHeight, outputHeight)
	if scroll < 0 {
		return 0
	}
	if scroll > max {
		return max
	}
	return scroll
}

// ScrollToShowBottom returns the minimal scroll that makes cell i's
// bottom edge visible, or (currentScroll, false) if it is already visible.
func ScrollToShowBottom(heights []int32, i int, outputHeight, currentScroll int32) (int32, bool) {
	if i < 0 || i >= len(heights) {
		return 0, false
	}
	var contentY int32
	for j := 0; j < i; j++ {
		contentY += heights[j]
	}
	bottom := contentY + heights[i]
	total := contentY + heights[i]
	for j := i + 1; j < len(heights); j++ {
		total += heights[j]
	}

	if bottom <= currentScroll+outputHeight {
		return currentScroll, false
	}
	newScroll := bottom - outputHeight
	return ClampScroll(newScroll, sumHeights(heights), outputHeight), true
}

// ScrollToShow returns the minimal scroll adjustment that brings cell
// i fully or partially into view, adjusting upward if the cell's top
// is above the viewport and downward if its bottom is below it.
func ScrollToShow(heights []int32, i int, outputHeight, currentScroll int32) (int32, bool) {
	if i < 0 || i >= len(heights) {
		return currentScroll, false
	}
	var contentY int32
	for j := 0; j < i; j++ {
		contentY += heights[j]
	}
	top := contentY
	bottom := contentY + heights[i]

	if top < currentScroll {
		return ClampScroll(top, sumHeights(heights), outputHeight), true
	}
	if bottom > currentScroll+outputHeight {
		newScroll := bottom - outputHeight
		return ClampScroll(newScroll, sumHeights(heights), outputHeight), true
	}
	return currentScroll, false
}

// VisibleIndices returns the indices of cells marked visible in a
// layout, preserving order.
func (l ColumnLayout) VisibleIndices() []int {
	var out []int
	for i, p := range l.Positions {
		if p.Visible {
			out = append(out, i)
		}
	}
	return out
}

// CheckInvariants verifies adjacency (no gaps, no overlap) and that
// the sum of heights equals the total height. It returns an error
// describing the first violation found, or nil.
func (l ColumnLayout) CheckInvariants() error {
	var sum int32
	for i, p := range l.Positions {
		sum += p.Height
		if i == 0 {
			continue
		}
		prev := l.Positions[i-1]
		if int32(prev.Y) != int32(p.Y)+p.Height {
			return &InvariantError{Index: i, Detail: "adjacency violated"}
		}
	}
	if sum != l.TotalHeight {
		return &InvariantError{Index: -1, Detail: "total height mismatch"}
	}
	return nil
}

// InvariantError describes a layout invariant violation.
type InvariantError struct {
	Index  int
	Detail string
}

func (e *InvariantError) Error() string {
	return e.Detail
}

func sumHeights(heights []int32) int32 {
	var total int32
	for _, h := range heights {
		total += h
	}
	return total
}
