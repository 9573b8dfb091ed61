// Package coords defines the three linear Y coordinate spaces used by
// the compositor and the total conversion functions between them.
//
// Screen Y is 0 at the top of the output, down-positive; pointer events
// arrive in this space. Render Y is 0 at the bottom, up-positive; the
// renderer consumes this. Content Y is 0 at the top of the column,
// down-positive, independent of scroll.
package coords

// ScreenY is a pointer-event vertical coordinate, 0 at the top.
type ScreenY int32

// RenderY is a GPU-oriented vertical coordinate, 0 at the bottom.
type RenderY int32

// ContentY is a position along the unscrolled column, 0 at the top.
type ContentY int32

// ContentToRender converts a content-space Y to render-space Y.
//
// render_y = H - content_y - height - scroll
func ContentToRender(c ContentY, height, outputHeight, scroll int32) RenderY {
	return RenderY(outputHeight - int32(c) - height - scroll)
}

// RenderToContent converts a render-space Y back to content-space Y.
func RenderToContent(r RenderY, height, outputHeight, scroll int32) ContentY {
	return ContentY(outputHeight - int32(r) - height - scroll)
}

// ScreenToRender converts screen Y to render Y: screen_y + render_y == H.
func ScreenToRender(s ScreenY, outputHeight int32) RenderY {
	return RenderY(outputHeight - int32(s))
}

// RenderToScreen converts render Y to screen Y.
func RenderToScreen(r RenderY, outputHeight int32) ScreenY {
	return ScreenY(outputHeight - int32(r))
}

// Value returns the underlying int32 for screen Y.
func (s ScreenY) Value() int32 { return int32(s) }

// Value returns the underlying int32 for render Y.
func (r RenderY) Value() int32 { return int32(r) }

// Value returns the underlying int32 for content Y.
func (c ContentY) Value() int32 { return int32(c) }
