package layout

import "testing"

// S1 (corrected): three terminals of heights 100, 200, 150 in a
// 720-tall viewport, scroll=0. The spec's own literal worked example
// disagrees with its stated Y-flip formula by a constant offset of
// 150; these values are the ones confirmed against the test-harness
// fixtures (e.g. two 200-height windows render at 520 and 320). See
// DESIGN.md for the resolution.
func TestS1ThreeTerminalsStacked(t *testing.T) {
	heights := []int32{100, 200, 150}
	l := Calculate(heights, 720, 0)

	want := []Position{
		{Y: 620, Height: 100, Visible: true},
		{Y: 420, Height: 200, Visible: true},
		{Y: 270, Height: 150, Visible: true},
	}
	for i, w := range want {
		if l.Positions[i] != w {
			t.Fatalf("position %d: got %+v want %+v", i, l.Positions[i], w)
		}
	}
	if l.TotalHeight != 450 {
		t.Fatalf("total height: got %d want 450", l.TotalHeight)
	}
	if MaxScroll(l.TotalHeight, 720) != 0 {
		t.Fatalf("max_scroll should be 0")
	}
}

// S2: scroll past max. Heights [500, 500], viewport 720, scroll(+10000).
func TestS2ScrollClampsToMax(t *testing.T) {
	heights := []int32{500, 500}
	total := sumHeights(heights)
	got := ClampScroll(10000, total, 720)
	if got != 280 {
		t.Fatalf("scroll_offset: got %d want 280", got)
	}
}

func TestWindowsDontOverlapDifferentHeights(t *testing.T) {
	l := Calculate([]int32{400, 200}, 720, 0)
	if l.Positions[0].Y != 320 || l.Positions[0].Height != 400 {
		t.Fatalf("window 0: %+v", l.Positions[0])
	}
	if l.Positions[1].Y != 120 || l.Positions[1].Height != 200 {
		t.Fatalf("window 1: %+v", l.Positions[1])
	}
	if err := l.CheckInvariants(); err != nil {
		t.Fatalf("invariants violated: %v", err)
	}
}

func TestZeroHeightWindowDoesntBreakPositioning(t *testing.T) {
	l := Calculate([]int32{0, 200}, 720, 0)
	if l.Positions[0].Y != 720 {
		t.Fatalf("zero-height window: got %d want 720", l.Positions[0].Y)
	}
	if l.Positions[1].Y != 520 {
		t.Fatalf("window 1: got %d want 520", l.Positions[1].Y)
	}
}

func TestChangingWindowHeightUpdatesPositions(t *testing.T) {
	before := Calculate([]int32{200, 200}, 720, 0)
	if before.Positions[0].Y != 520 || before.Positions[1].Y != 320 {
		t.Fatalf("before resize: %+v", before.Positions)
	}
	after := Calculate([]int32{400, 200}, 720, 0)
	if after.Positions[0].Y != 320 || after.Positions[1].Y != 120 {
		t.Fatalf("after resize: %+v", after.Positions)
	}
}

func TestAdjacencyHoldsForRandomHeights(t *testing.T) {
	heights := []int32{37, 128, 4, 900, 1, 55, 621, 12}
	for _, scroll := range []int32{0, 50, 400, 1200} {
		l := Calculate(heights, 600, scroll)
		if err := l.CheckInvariants(); err != nil {
			t.Fatalf("scroll=%d: %v", scroll, err)
		}
	}
}

func TestScrollOnlyAffectsY(t *testing.T) {
	heights := []int32{100, 200, 150}
	l1 := Calculate(heights, 720, 10)
	l2 := Calculate(heights, 720, 60)
	for i := range l1.Positions {
		if l1.Positions[i].Height != l2.Positions[i].Height {
			t.Fatalf("height changed with scroll at %d", i)
		}
		diff := int32(l2.Positions[i].Y) - int32(l1.Positions[i].Y)
		if diff != -(60 - 10) {
			t.Fatalf("position %d: expected shift of %d, got %d", i, -(60 - 10), diff)
		}
	}
}

func TestVisibilityFormula(t *testing.T) {
	l := Calculate([]int32{800}, 600, 0)
	p := l.Positions[0]
	want := int32(p.Y) < 600 && int32(p.Y)+p.Height > 0
	if p.Visible != want {
		t.Fatalf("visibility mismatch: got %v want %v", p.Visible, want)
	}
}

func TestScrollToShowBottom(t *testing.T) {
	heights := []int32{200, 200, 200}
	scroll, changed := ScrollToShowBottom(heights, 2, 400, 0)
	if !changed {
		t.Fatalf("expected scroll change")
	}
	if scroll != 200 {
		t.Fatalf("got %d want 200", scroll)
	}

	_, changed = ScrollToShowBottom(heights, 0, 400, 0)
	if changed {
		t.Fatalf("cell 0 should already be visible")
	}
}

func TestEmptyLayout(t *testing.T) {
	l := Empty()
	if l.TotalHeight != 0 || len(l.Positions) != 0 {
		t.Fatalf("expected empty layout")
	}
}

func TestDeterminism(t *testing.T) {
	heights := []int32{10, 20, 30}
	a := Calculate(heights, 100, 5)
	b := Calculate(heights, 100, 5)
	for i := range a.Positions {
		if a.Positions[i] != b.Positions[i] {
			t.Fatalf("layout not deterministic at %d", i)
		}
	}
}
