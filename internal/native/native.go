// Package native declares the contracts of the platform collaborators the
// engine consumes: the input capture/injection engine and the global hotkey
// registrar. Implementations live outside the core; Sim provides an
// injection-free playback implementation of the pacing contract.
package native

import (
	"errors"

	"macrokit/internal/model"
)

var (
	ErrRecordingActive      = errors.New("recording already in progress")
	ErrNoRecording          = errors.New("no active recording")
	ErrRecordingUnsupported = errors.New("recording not supported by this engine")
	ErrNoEvents             = errors.New("no macro events supplied")
)

// Status is the native engine's own view of the recorder, used for
// reconciliation after a crash or late attach.
type Status struct {
	Recording bool
}

// Engine is the native record/playback collaborator. Play is asynchronous:
// the call returns once playback is accepted and a PlaybackSignal tagged with
// the context id arrives on Signals when the run finishes or is stopped. A
// signal with an empty context id means stop-all.
//
// The pacing contract: events replay at offsetMs/speed spacing, the whole
// sequence repeats loops times, speed is floored at 0.1 and loops at 1.
type Engine interface {
	StartRecording() error
	StopRecording() ([]model.MacroEvent, error)
	Play(events []model.MacroEvent, speed float64, loops int, contextID string) error
	CancelPlayback() error
	QueryStatus() (Status, error)
	Signals() <-chan model.PlaybackSignal
}

// KeyState is the physical state reported per hotkey event.
type KeyState string

const (
	KeyPressed  KeyState = "pressed"
	KeyReleased KeyState = "released"
)

// HotkeyEvent is one physical press or release of a registered chord.
type HotkeyEvent struct {
	Chord string
	State KeyState
}

// Registrar is the global hotkey collaborator. Delivery is per physical key
// event; debouncing repeated presses and recovering from missed releases is
// the engine's job (internal/hotkey).
type Registrar interface {
	Register(chord string, fn func(HotkeyEvent)) error
	Unregister(chord string)
}
