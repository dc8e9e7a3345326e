package testutil

import "macrokit/internal/model"

// Event builders used across the playback and session tests.

func KeyDown(offsetMs int64, key string) model.MacroEvent {
	return model.MacroEvent{OffsetMs: offsetMs, Kind: model.KindKeyDown, Key: key}
}

func KeyUp(offsetMs int64, key string) model.MacroEvent {
	return model.MacroEvent{OffsetMs: offsetMs, Kind: model.KindKeyUp, Key: key}
}

func MouseDown(offsetMs int64, button model.MouseButton) model.MacroEvent {
	return model.MacroEvent{OffsetMs: offsetMs, Kind: model.KindMouseDown, Button: button}
}

func MouseUp(offsetMs int64, button model.MouseButton) model.MacroEvent {
	return model.MacroEvent{OffsetMs: offsetMs, Kind: model.KindMouseUp, Button: button}
}

func MouseMove(offsetMs int64, x, y int) model.MacroEvent {
	return model.MacroEvent{OffsetMs: offsetMs, Kind: model.KindMouseMove, X: x, Y: y}
}

func Scroll(offsetMs, dx, dy int64) model.MacroEvent {
	return model.MacroEvent{OffsetMs: offsetMs, Kind: model.KindScroll, DeltaX: dx, DeltaY: dy}
}
