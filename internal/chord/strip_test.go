package chord_test

import (
	"testing"

	"macrokit/internal/chord"
	"macrokit/internal/model"
	"macrokit/internal/testutil"
)

func TestStripHeadDropsChordNoiseAndRebaselines(t *testing.T) {
	m := chord.NewMatcher("Ctrl+Shift+M")
	events := []model.MacroEvent{
		testutil.KeyDown(10, "Ctrl+Shift+M"),
		testutil.KeyUp(15, "Ctrl+Shift"),
		testutil.MouseDown(300, model.ButtonLeft),
	}
	out := chord.StripHead(events, m)
	if len(out) != 1 {
		t.Fatalf("expected 1 surviving event, got %+v", out)
	}
	if out[0].Kind != model.KindMouseDown || out[0].OffsetMs != 0 {
		t.Fatalf("expected rebased mouse-down at 0, got %+v", out[0])
	}
}

func TestStripHeadStopsAtWindowBoundary(t *testing.T) {
	m := chord.NewMatcher("Ctrl+Shift+M")
	events := []model.MacroEvent{
		testutil.KeyDown(50, "Ctrl"),
		// Chord-matching but outside the head window: content, not noise.
		testutil.KeyDown(250, "Ctrl+Shift+M"),
	}
	out := chord.StripHead(events, m)
	if len(out) != 1 || out[0].OffsetMs != 0 {
		t.Fatalf("expected only the in-window press stripped, got %+v", out)
	}
	if out[0].Key != "Ctrl+Shift+M" {
		t.Fatalf("expected the late press kept, got %+v", out[0])
	}
}

func TestStripHeadStopsAtFirstNonMatch(t *testing.T) {
	m := chord.NewMatcher("Ctrl+Shift+M")
	events := []model.MacroEvent{
		testutil.KeyDown(5, "A"),
		testutil.KeyDown(10, "Ctrl+Shift+M"),
	}
	out := chord.StripHead(events, m)
	if len(out) != 2 {
		t.Fatalf("expected nothing stripped past a real keystroke, got %+v", out)
	}
}

func TestStripTailDropsTrailingChordNoise(t *testing.T) {
	m := chord.NewMatcher("Ctrl+Shift+M")
	events := []model.MacroEvent{
		testutil.KeyDown(0, "A"),
		testutil.KeyUp(40, "A"),
		testutil.KeyDown(900, "Ctrl"),
		testutil.KeyDown(1000, "Ctrl+Shift+M"),
	}
	out := chord.StripTail(events, m)
	if len(out) != 2 {
		t.Fatalf("expected trailing chord presses stripped, got %+v", out)
	}
	// Tail strip never rebases offsets.
	if out[1].OffsetMs != 40 {
		t.Fatalf("expected offsets untouched, got %+v", out[1])
	}
}

func TestStripTailRespectsWindow(t *testing.T) {
	m := chord.NewMatcher("Ctrl+Shift+M")
	events := []model.MacroEvent{
		testutil.KeyDown(0, "Ctrl"),
		testutil.KeyDown(1000, "A"),
		testutil.KeyDown(1400, "Ctrl"),
	}
	out := chord.StripTail(events, m)
	// Last event at 1400; only events within 300ms of it qualify, and the
	// strip stops at the "A" press.
	if len(out) != 2 {
		t.Fatalf("expected only the final press stripped, got %+v", out)
	}
}

func TestRemoveExactChordEventsKeepsFuzzy(t *testing.T) {
	m := chord.NewMatcher("Ctrl+Shift+M")
	events := []model.MacroEvent{
		testutil.KeyDown(0, "Ctrl+C"),
		testutil.KeyDown(500, "Ctrl+Shift+M"),
		testutil.KeyDown(600, "Ctrl"),
		testutil.KeyUp(700, "Shift+Ctrl+M"),
	}
	out := chord.RemoveExactChordEvents(events, m)
	if len(out) != 2 {
		t.Fatalf("expected exact echoes removed, got %+v", out)
	}
	if out[0].Key != "Ctrl+C" || out[1].Key != "Ctrl" {
		t.Fatalf("expected fuzzy and foreign events kept, got %+v", out)
	}
}

func TestApplyTrimsUITriggeredPassThrough(t *testing.T) {
	m := chord.NewMatcher("Ctrl+Shift+M")
	events := []model.MacroEvent{
		testutil.KeyDown(10, "Ctrl+Shift+M"),
		testutil.KeyDown(500, "A"),
	}
	out := chord.ApplyTrims(events, m, false, false)
	if len(out) != 2 {
		t.Fatalf("expected UI-triggered capture untouched, got %+v", out)
	}
}

func TestApplyTrimsHotkeyStartOnly(t *testing.T) {
	m := chord.NewMatcher("Ctrl+Shift+M")
	events := []model.MacroEvent{
		testutil.KeyDown(10, "Ctrl+Shift+M"),
		testutil.KeyDown(500, "A"),
		testutil.KeyDown(900, "Ctrl+Shift+M"),
	}
	out := chord.ApplyTrims(events, m, true, false)
	// Head stripped and rebased; the mid/tail exact echo removed; no tail
	// window strip for a UI stop.
	if len(out) != 1 || out[0].Key != "A" || out[0].OffsetMs != 0 {
		t.Fatalf("expected single rebased keystroke, got %+v", out)
	}
}

func TestApplyTrimsHotkeyStartAndStop(t *testing.T) {
	m := chord.NewMatcher("Ctrl+Shift+M")
	events := []model.MacroEvent{
		testutil.KeyDown(10, "Ctrl+Shift+M"),
		testutil.KeyUp(15, "Ctrl+Shift"),
		testutil.MouseDown(300, model.ButtonLeft),
		testutil.MouseUp(360, model.ButtonLeft),
		testutil.KeyDown(1190, "Ctrl"),
		testutil.KeyDown(1200, "Ctrl+Shift+M"),
	}
	out := chord.ApplyTrims(events, m, true, true)
	if len(out) != 2 {
		t.Fatalf("expected only the click pair, got %+v", out)
	}
	if out[0].OffsetMs != 0 || out[1].OffsetMs != 60 {
		t.Fatalf("expected rebased click offsets 0 and 60, got %+v", out)
	}
}

func TestApplyTrimsNilMatcher(t *testing.T) {
	events := []model.MacroEvent{testutil.KeyDown(0, "A")}
	out := chord.ApplyTrims(events, nil, true, true)
	if len(out) != 1 {
		t.Fatalf("expected pass-through with no configured chord, got %+v", out)
	}
}
