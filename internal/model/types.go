package model

import "time"

// EventKind discriminates the MacroEvent variants. The kebab-case values are
// the wire form shared with every process and with the native engine.
type EventKind string

const (
	KindMouseMove EventKind = "mouse-move"
	KindMouseDown EventKind = "mouse-down"
	KindMouseUp   EventKind = "mouse-up"
	KindKeyDown   EventKind = "key-down"
	KindKeyUp     EventKind = "key-up"
	KindScroll    EventKind = "scroll"
)

// Valid reports whether k is one of the known event kinds.
func (k EventKind) Valid() bool {
	switch k {
	case KindMouseMove, KindMouseDown, KindMouseUp, KindKeyDown, KindKeyUp, KindScroll:
		return true
	}
	return false
}

// IsKey reports whether k is a keyboard variant.
func (k EventKind) IsKey() bool {
	return k == KindKeyDown || k == KindKeyUp
}

type MouseButton string

const (
	ButtonLeft    MouseButton = "left"
	ButtonRight   MouseButton = "right"
	ButtonMiddle  MouseButton = "middle"
	ButtonUnknown MouseButton = "unknown"
)

// NormalizeButton coerces out-of-domain button values to ButtonUnknown.
func NormalizeButton(b MouseButton) MouseButton {
	switch b {
	case ButtonLeft, ButtonRight, ButtonMiddle:
		return b
	}
	return ButtonUnknown
}

// MacroEvent is one captured input event. Which payload fields are meaningful
// depends on Kind; consumers switch on Kind exhaustively rather than probing
// fields.
type MacroEvent struct {
	ID       string    `json:"id,omitempty"`
	OffsetMs int64     `json:"offset_ms"`
	Kind     EventKind `json:"type"`

	// mouse-move
	X int `json:"x,omitempty"`
	Y int `json:"y,omitempty"`

	// mouse-down / mouse-up
	Button MouseButton `json:"button,omitempty"`

	// key-down / key-up. Labels carry the full modifier combo the recorder
	// observed, e.g. "Ctrl+Shift+M".
	Key string `json:"key,omitempty"`

	// scroll
	DeltaX int64 `json:"delta_x,omitempty"`
	DeltaY int64 `json:"delta_y,omitempty"`
}

// Playback speed bounds for stored macros. The native pacing contract allows
// down to 0.1 but the library clamps edits to this range.
const (
	MinPlaybackSpeed     = 0.25
	MaxPlaybackSpeed     = 3.0
	DefaultPlaybackSpeed = 1.0
)

// ClampSpeed forces a playback speed into the stored-macro range. A
// non-positive value falls back to the default rather than the minimum.
func ClampSpeed(speed float64) float64 {
	if speed <= 0 {
		return DefaultPlaybackSpeed
	}
	if speed < MinPlaybackSpeed {
		return MinPlaybackSpeed
	}
	if speed > MaxPlaybackSpeed {
		return MaxPlaybackSpeed
	}
	return speed
}

// MacroSequence is a saved macro owned by the library.
type MacroSequence struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Tags          []string     `json:"tags,omitempty"`
	Events        []MacroEvent `json:"events"`
	LoopEnabled   bool         `json:"loop_enabled"`
	LoopDelayMs   int64        `json:"loop_delay_ms"`
	PlaybackSpeed float64      `json:"playback_speed"`
	Hotkey        string       `json:"hotkey,omitempty"`
	LastRun       *time.Time   `json:"last_run,omitempty"`

	// ScrollNormalized marks that legacy scroll deltas have already been
	// sign-inverted to the native convention. One-way: once set the
	// transform must never reapply.
	ScrollNormalized bool `json:"scroll_normalized"`
}

// Clone returns a deep copy safe to hand across goroutines.
func (m MacroSequence) Clone() MacroSequence {
	out := m
	if m.Events != nil {
		out.Events = append([]MacroEvent(nil), m.Events...)
	}
	if m.Tags != nil {
		out.Tags = append([]string(nil), m.Tags...)
	}
	if m.LastRun != nil {
		t := *m.LastRun
		out.LastRun = &t
	}
	return out
}

// QueueState is the broadcastable queue snapshot: macro ids plus the queue's
// own loop settings and whether a queue run is in flight.
type QueueState struct {
	Items       []string `json:"items"`
	LoopEnabled bool     `json:"loop_enabled"`
	LoopDelayMs int64    `json:"loop_delay_ms"`
	Running     bool     `json:"running"`
}

// Equal is the deep comparison used to gate rebroadcasts.
func (q QueueState) Equal(other QueueState) bool {
	if q.LoopEnabled != other.LoopEnabled || q.LoopDelayMs != other.LoopDelayMs || q.Running != other.Running {
		return false
	}
	if len(q.Items) != len(other.Items) {
		return false
	}
	for i := range q.Items {
		if q.Items[i] != other.Items[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy with its own items slice.
func (q QueueState) Clone() QueueState {
	out := q
	if q.Items != nil {
		out.Items = append([]string(nil), q.Items...)
	}
	return out
}

// PlaybackState is the terminal state reported by the native engine for one
// playback context.
type PlaybackState string

const (
	PlaybackFinished PlaybackState = "finished"
	PlaybackStopped  PlaybackState = "stopped"
)

// PlaybackSignal is the asynchronous completion signal from the native
// engine. An empty ContextID is the broadcast stop-all used on app shutdown.
type PlaybackSignal struct {
	ContextID string        `json:"context_id"`
	State     PlaybackState `json:"state"`
}

type LogLevel string

const (
	LogInfo LogLevel = "info"
	LogWarn LogLevel = "warn"
)

// LogEntry is one user-facing activity log record. Recoverable failures land
// here instead of surfacing as errors.
type LogEntry struct {
	At      time.Time `json:"at"`
	Level   LogLevel  `json:"level"`
	Message string    `json:"message"`
}
