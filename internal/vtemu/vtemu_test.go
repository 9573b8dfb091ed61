package vtemu

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestWriteProducesContent(t *testing.T) {
	e := New(80, 24)
	e.Write([]byte("hello\r\n"))
	if !e.HasMeaningfulContent() {
		t.Fatalf("expected meaningful content after write")
	}
}

func TestAlternateScreenDetection(t *testing.T) {
	e := New(80, 24)
	if e.IsAlternateScreen() {
		t.Fatalf("should not start in alternate screen")
	}
	e.Write([]byte("\x1b[?1049h"))
	if !e.IsAlternateScreen() {
		t.Fatalf("expected alternate screen after enter sequence")
	}
	e.Write([]byte("\x1b[?1049l"))
	if e.IsAlternateScreen() {
		t.Fatalf("expected normal screen after exit sequence")
	}
}

func TestSelectionLifecycle(t *testing.T) {
	e := New(80, 24)
	if e.HasSelection() {
		t.Fatalf("no selection expected initially")
	}
	e.StartSelection(0, 0)
	if !e.HasSelection() {
		t.Fatalf("expected active selection")
	}
	e.ExtendSelection(5, 0)
	e.ClearSelection()
	if e.HasSelection() {
		t.Fatalf("expected selection cleared")
	}
}

func TestEncodeKeyBasics(t *testing.T) {
	cases := []struct {
		key  tcell.Key
		r    rune
		want string
	}{
		{tcell.KeyEnter, 0, "\r"},
		{tcell.KeyTab, 0, "\t"},
		{tcell.KeyEsc, 0, "\x1b"},
		{tcell.KeyCtrlC, 0, "\x03"},
		{tcell.KeyUp, 0, "\x1b[A"},
		{tcell.KeyLeft, 0, "\x1b[D"},
	}
	for _, c := range cases {
		got := EncodeKey(c.key, c.r, tcell.ModNone)
		if string(got) != c.want {
			t.Fatalf("key %v: got %q want %q", c.key, got, c.want)
		}
	}
}

func TestEncodeKeyCtrlLetterRangeIsExhaustive(t *testing.T) {
	for key := tcell.KeyCtrlA; key <= tcell.KeyCtrlZ; key++ {
		// KeyCtrlH/I/M alias the named Backspace/Tab/Enter keys, which
		// take priority and emit their own conventional byte rather
		// than the raw control code; every other letter in the range
		// must round-trip to its own ASCII control code.
		switch key {
		case tcell.KeyBackspace, tcell.KeyTab, tcell.KeyEnter:
			continue
		}
		got := EncodeKey(key, 0, tcell.ModNone)
		if len(got) != 1 || got[0] != byte(key) {
			t.Fatalf("key %v: got %v, want single byte %#x", key, got, byte(key))
		}
	}
}

func TestEncodeKeyRune(t *testing.T) {
	got := EncodeKey(tcell.KeyRune, 'a', tcell.ModNone)
	if string(got) != "a" {
		t.Fatalf("got %q want %q", got, "a")
	}
}

func TestEncodeKeyAltRune(t *testing.T) {
	got := EncodeKey(tcell.KeyRune, 'a', tcell.ModAlt)
	if string(got) != "\x1ba" {
		t.Fatalf("got %q want %q", got, "\x1ba")
	}
}

func TestResizeChangesSize(t *testing.T) {
	e := New(80, 24)
	e.Resize(100, 30)
	cols, rows := e.Size()
	if cols != 100 || rows != 30 {
		t.Fatalf("got %dx%d want 100x30", cols, rows)
	}
}

func TestScrollbackCap(t *testing.T) {
	e := NewWithScrollback(80, 24, 3)
	for i := 0; i < 5; i++ {
		e.PushScrollback("line")
	}
	if len(e.Scrollback()) != 3 {
		t.Fatalf("scrollback should be capped at 3, got %d", len(e.Scrollback()))
	}
}
