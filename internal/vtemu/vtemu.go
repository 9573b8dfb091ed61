// Package vtemu wraps github.com/charmbracelet/x/vt to give each cell
// a VT100/xterm-256color screen buffer: feeding PTY bytes in, tracking
// alternate-screen state and per-line selection, and rendering the
// grid out to an ARGB32 pixel buffer through a caller-supplied glyph
// rasterizer.
package vtemu

import (
	"image/color"
	"sync"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/vt"
	"github.com/gdamore/tcell/v2"
)

// DefaultScrollback is the scrollback line cap used when none is given.
const DefaultScrollback = 20000

// altScreenEnter and altScreenExit are the DEC private-mode sequences
// that toggle the alternate screen buffer; xterm-256color programs
// use one of these three pairs.
var altScreenEnter = [][]byte{
	[]byte("\x1b[?1049h"),
	[]byte("\x1b[?47h"),
	[]byte("\x1b[?1047h"),
}

var altScreenExit = [][]byte{
	[]byte("\x1b[?1049l"),
	[]byte("\x1b[?47l"),
	[]byte("\x1b[?1047l"),
}

// Cell is a single screen cell's character and formatting.
type Cell struct {
	Content string
	FG      color.Color
	BG      color.Color
	Bold    bool
	Dim     bool
	Italic  bool
}

// Selection marks a run of cells selected for copy, anchored at Start
// and extended to End. Rows/cols are in grid space.
type Selection struct {
	StartCol, StartRow int
	EndCol, EndRow     int
	Active             bool
}

// Emulator is a VT100-compatible screen buffer for one terminal cell.
type Emulator struct {
	mu sync.Mutex

	term vt.Terminal
	rows int
	cols int

	scrollback    []string
	maxScrollback int

	altScreen   bool
	lastContent int // index of the last row with non-blank content
	selection   Selection
}

// New creates an emulator of the given size with the default
// scrollback cap.
func New(cols, rows int) *Emulator {
	return NewWithScrollback(cols, rows, DefaultScrollback)
}

// NewWithScrollback creates an emulator with a custom scrollback cap.
func NewWithScrollback(cols, rows, scrollback int) *Emulator {
	return &Emulator{
		term:          vt.NewSafeEmulator(cols, rows),
		rows:          rows,
		cols:          cols,
		maxScrollback: scrollback,
		lastContent:   -1,
	}
}

// Write feeds PTY output to the emulator, tracking alternate-screen
// transitions and content-row high-water mark as a side effect.
func (e *Emulator) Write(data []byte) {
	e.mu.Lock()
	for _, seq := range altScreenEnter {
		if containsSeq(data, seq) {
			e.altScreen = true
		}
	}
	for _, seq := range altScreenExit {
		if containsSeq(data, seq) {
			e.altScreen = false
		}
	}
	e.mu.Unlock()

	e.term.Write(data)
	e.updateLastContentLine()
}

// IsAlternateScreen reports whether the terminal is currently showing
// the alternate screen buffer (full-screen TUI apps like fzf or vim).
func (e *Emulator) IsAlternateScreen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.altScreen
}

// Size returns the current grid dimensions.
func (e *Emulator) Size() (cols, rows int) {
	return e.term.Width(), e.term.Height()
}

// Resize changes the grid dimensions.
func (e *Emulator) Resize(cols, rows int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rows, e.cols = rows, cols
	e.term.Resize(cols, rows)
}

// CursorPosition returns the cursor's (col, row).
func (e *Emulator) CursorPosition() (col, row int) {
	pos := e.term.CursorPosition()
	return pos.X, pos.Y
}

// CellAt returns the cell at (col, row), or a blank cell if out of range.
func (e *Emulator) CellAt(col, row int) Cell {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cellAtLocked(col, row)
}

func (e *Emulator) cellAtLocked(col, row int) Cell {
	c := e.term.CellAt(col, row)
	if c == nil {
		return Cell{Content: " "}
	}
	content := c.Content
	if content == "" {
		content = " "
	}
	return Cell{
		Content: content,
		FG:      c.Style.Fg,
		BG:      c.Style.Bg,
		Bold:    c.Style.Attrs&uv.AttrBold != 0,
		Dim:     c.Style.Attrs&uv.AttrFaint != 0,
		Italic:  c.Style.Attrs&uv.AttrItalic != 0,
	}
}

// ContentRows returns one more than the highest row index that has
// ever held non-blank content (blank rows above it are counted too).
// It is separate from the vt library's own internal scrollback and from
// the sizing state machine's own line counter.
func (e *Emulator) ContentRows() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastContent + 1
}

// LastContentLine returns the index of the last row with non-blank
// content, or -1 if the grid is entirely blank.
func (e *Emulator) LastContentLine() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastContent
}

// HasMeaningfulContent reports whether any row holds non-blank content.
func (e *Emulator) HasMeaningfulContent() bool {
	return e.LastContentLine() >= 0
}

func (e *Emulator) updateLastContentLine() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for row := e.rows - 1; row > e.lastContent; row-- {
		if e.rowHasContentLocked(row) {
			e.lastContent = row
			break
		}
	}
}

func (e *Emulator) rowHasContentLocked(row int) bool {
	for col := 0; col < e.cols; col++ {
		c := e.term.CellAt(col, row)
		if c != nil && c.Content != "" && c.Content != " " {
			return true
		}
	}
	return false
}

// Scrollback returns a copy of the accumulated scrollback lines.
func (e *Emulator) Scrollback() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.scrollback))
	copy(out, e.scrollback)
	return out
}

// PushScrollback appends a line that has scrolled off the top of the
// grid, trimming the oldest line once the cap is exceeded.
func (e *Emulator) PushScrollback(line string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scrollback = append(e.scrollback, line)
	if len(e.scrollback) > e.maxScrollback {
		e.scrollback = e.scrollback[1:]
	}
}

// StartSelection begins a selection at the given grid cell.
func (e *Emulator) StartSelection(col, row int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selection = Selection{StartCol: col, StartRow: row, EndCol: col, EndRow: row, Active: true}
}

// ExtendSelection moves the active selection's end point.
func (e *Emulator) ExtendSelection(col, row int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.selection.Active {
		return
	}
	e.selection.EndCol, e.selection.EndRow = col, row
}

// ClearSelection clears any active selection.
func (e *Emulator) ClearSelection() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selection = Selection{}
}

// HasSelection reports whether a selection is active.
func (e *Emulator) HasSelection() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selection.Active
}

// SelectedText renders the active selection to plain text, normalizing
// start/end order and concatenating full selected rows with newlines.
func (e *Emulator) SelectedText() string {
	e.mu.Lock()
	sel := e.selection
	e.mu.Unlock()
	if !sel.Active {
		return ""
	}

	startRow, endRow := sel.StartRow, sel.EndRow
	startCol, endCol := sel.StartCol, sel.EndCol
	if startRow > endRow || (startRow == endRow && startCol > endCol) {
		startRow, endRow = endRow, startRow
		startCol, endCol = endCol, startCol
	}

	var out []rune
	for row := startRow; row <= endRow; row++ {
		colFrom, colTo := 0, e.cols-1
		if row == startRow {
			colFrom = startCol
		}
		if row == endRow {
			colTo = endCol
		}
		for col := colFrom; col <= colTo && col < e.cols; col++ {
			cell := e.CellAt(col, row)
			runes := []rune(cell.Content)
			if len(runes) > 0 {
				out = append(out, runes[0])
			} else {
				out = append(out, ' ')
			}
		}
		if row != endRow {
			out = append(out, '\n')
		}
	}
	return string(out)
}

func containsSeq(data, seq []byte) bool {
	if len(seq) == 0 || len(seq) > len(data) {
		return false
	}
	for i := 0; i+len(seq) <= len(data); i++ {
		match := true
		for j := range seq {
			if data[i+j] != seq[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// GlyphRasterizer draws a single grid cell's glyph into an ARGB32
// buffer. Implementations own font selection and hinting; vtemu only
// knows grid cells and colors.
type GlyphRasterizer interface {
	// DrawCell paints cell at pixel (x, y) within a buffer of the
	// given stride (bytes per row), writing premultiplied ARGB32.
	DrawCell(buf []byte, stride, x, y int, cell Cell, cellWidth, cellHeight int, cursor bool)
}

// Render paints the full grid into an ARGB32 buffer sized
// cellWidth*cols x cellHeight*rows, using rasterizer for each cell.
func (e *Emulator) Render(rasterizer GlyphRasterizer, buf []byte, stride, cellWidth, cellHeight int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cursorCol, cursorRow := e.term.CursorPosition().X, e.term.CursorPosition().Y
	for row := 0; row < e.rows; row++ {
		for col := 0; col < e.cols; col++ {
			cell := e.cellAtLocked(col, row)
			isCursor := col == cursorCol && row == cursorRow
			rasterizer.DrawCell(buf, stride, col*cellWidth, row*cellHeight, cell, cellWidth, cellHeight, isCursor)
		}
	}
}

// EncodeKey translates a tcell key event into the byte sequence a PTY
// client expects, covering the common xterm control and cursor keys.
func EncodeKey(key tcell.Key, r rune, mods tcell.ModMask) []byte {
	if key == tcell.KeyRune {
		if mods&tcell.ModAlt != 0 {
			return append([]byte{0x1b}, []byte(string(r))...)
		}
		return []byte(string(r))
	}

	// tcell gives Enter/Tab/Backspace their own named keys even though
	// they share the same underlying codes as KeyCtrlM/KeyCtrlI/KeyCtrlH,
	// so these must be checked before the generic Ctrl+letter range below.
	switch key {
	case tcell.KeyEnter:
		return []byte{'\r'}
	case tcell.KeyTab:
		return []byte{'\t'}
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		return []byte{0x7f}
	}

	// tcell's KeyCtrlA..KeyCtrlZ are the ASCII control codes 1..26 in
	// order, so every Ctrl+letter combination is this one range check
	// rather than 26 enumerated cases.
	if key >= tcell.KeyCtrlA && key <= tcell.KeyCtrlZ {
		return []byte{byte(key)}
	}

	switch key {
	case tcell.KeyEsc:
		return []byte{0x1b}
	case tcell.KeyUp:
		return []byte("\x1b[A")
	case tcell.KeyDown:
		return []byte("\x1b[B")
	case tcell.KeyRight:
		return []byte("\x1b[C")
	case tcell.KeyLeft:
		return []byte("\x1b[D")
	case tcell.KeyHome:
		return []byte("\x1b[H")
	case tcell.KeyEnd:
		return []byte("\x1b[F")
	case tcell.KeyPgUp:
		return []byte("\x1b[5~")
	case tcell.KeyPgDn:
		return []byte("\x1b[6~")
	case tcell.KeyDelete:
		return []byte("\x1b[3~")
	case tcell.KeyInsert:
		return []byte("\x1b[2~")
	case tcell.KeyF1:
		return []byte("\x1bOP")
	case tcell.KeyF2:
		return []byte("\x1bOQ")
	case tcell.KeyF3:
		return []byte("\x1bOR")
	case tcell.KeyF4:
		return []byte("\x1bOS")
	case tcell.KeyF5, tcell.KeyF6, tcell.KeyF7, tcell.KeyF8, tcell.KeyF9, tcell.KeyF10, tcell.KeyF11, tcell.KeyF12:
		seqs := [...]string{"\x1b[15~", "\x1b[17~", "\x1b[18~", "\x1b[19~", "\x1b[20~", "\x1b[21~", "\x1b[23~", "\x1b[24~"}
		return []byte(seqs[key-tcell.KeyF5])
	default:
		return nil
	}
}
