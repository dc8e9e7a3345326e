// Package sanitize normalizes raw captured event lists into the canonical
// form the rest of the engine assumes: non-negative offsets, in-domain enum
// values, trimmed key labels, ascending offset order.
package sanitize

import (
	"sort"
	"strings"

	"macrokit/internal/model"
)

// Events returns a sanitized copy of in. It is pure and total: invalid input
// degrades to a safe default instead of erroring, and applying it twice
// yields the same result as applying it once.
func Events(in []model.MacroEvent) []model.MacroEvent {
	out := make([]model.MacroEvent, 0, len(in))
	for _, ev := range in {
		if !ev.Kind.Valid() {
			continue
		}
		if ev.OffsetMs < 0 {
			ev.OffsetMs = 0
		}
		switch ev.Kind {
		case model.KindMouseDown, model.KindMouseUp:
			ev.Button = model.NormalizeButton(ev.Button)
			ev.X, ev.Y = 0, 0
			ev.Key = ""
			ev.DeltaX, ev.DeltaY = 0, 0
		case model.KindKeyDown, model.KindKeyUp:
			ev.Key = strings.TrimSpace(ev.Key)
			ev.X, ev.Y = 0, 0
			ev.Button = ""
			ev.DeltaX, ev.DeltaY = 0, 0
		case model.KindMouseMove:
			ev.Button = ""
			ev.Key = ""
			ev.DeltaX, ev.DeltaY = 0, 0
		case model.KindScroll:
			ev.X, ev.Y = 0, 0
			ev.Button = ""
			ev.Key = ""
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OffsetMs < out[j].OffsetMs
	})
	return out
}
