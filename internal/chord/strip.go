package chord

import "macrokit/internal/model"

// Capture windows for hotkey stripping. Pressing the toggle chord to start a
// recording is itself captured, so chord presses near the very start (and,
// when the stop was hotkey-triggered, near the very end) are treated as
// control noise rather than macro content.
const (
	HeadStripWindowMs = 200
	TailStripWindowMs = 300
)

// Classify classifies a captured event. Non-key events never match.
func (m *Matcher) Classify(ev model.MacroEvent) Match {
	if m == nil || !ev.Kind.IsKey() {
		return MatchNone
	}
	return m.ClassifyLabel(ev.Key)
}

// StripHead drops leading fuzzy chord matches that occur within the head
// window of recording start, then re-baselines the remaining offsets to
// start at zero.
func StripHead(events []model.MacroEvent, m *Matcher) []model.MacroEvent {
	if m == nil || len(events) == 0 {
		return events
	}
	i := 0
	for i < len(events) {
		ev := events[i]
		if ev.OffsetMs > HeadStripWindowMs || m.Classify(ev) == MatchNone {
			break
		}
		i++
	}
	if i == 0 {
		return events
	}
	rest := events[i:]
	out := make([]model.MacroEvent, len(rest))
	copy(out, rest)
	if len(out) > 0 {
		base := out[0].OffsetMs
		for j := range out {
			out[j].OffsetMs -= base
		}
	}
	return out
}

// StripTail drops trailing fuzzy chord matches within the tail window
// measured backward from the last event's offset. Offsets are not rebased.
// Only used when the recording was stopped by the same hotkey; a UI stop
// must keep trailing real keystrokes.
func StripTail(events []model.MacroEvent, m *Matcher) []model.MacroEvent {
	if m == nil || len(events) == 0 {
		return events
	}
	end := events[len(events)-1].OffsetMs
	i := len(events)
	for i > 0 {
		ev := events[i-1]
		if end-ev.OffsetMs > TailStripWindowMs || m.Classify(ev) == MatchNone {
			break
		}
		i--
	}
	if i == len(events) {
		return events
	}
	out := make([]model.MacroEvent, i)
	copy(out, events[:i])
	return out
}

// RemoveExactChordEvents deletes every event whose full combo exactly equals
// the configured chord, regardless of position. Handles chord echoes
// mid-capture from OS auto-repeat.
func RemoveExactChordEvents(events []model.MacroEvent, m *Matcher) []model.MacroEvent {
	if m == nil {
		return events
	}
	out := make([]model.MacroEvent, 0, len(events))
	for _, ev := range events {
		if m.Classify(ev) == MatchExact {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// ApplyTrims runs the full strip pipeline in the required order: head strip
// when the recording was hotkey-started, exact-chord removal always, tail
// strip when it was hotkey-stopped. A nil matcher passes events through.
func ApplyTrims(events []model.MacroEvent, m *Matcher, hotkeyStarted, hotkeyStopped bool) []model.MacroEvent {
	if m == nil || (!hotkeyStarted && !hotkeyStopped) {
		return events
	}
	if hotkeyStarted {
		events = StripHead(events, m)
	}
	events = RemoveExactChordEvents(events, m)
	if hotkeyStopped {
		events = StripTail(events, m)
	}
	return events
}
