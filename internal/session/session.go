// Package session governs one recording lifecycle:
// Idle → Recording → CaptureReady → {Idle via save/discard, ephemeral play}.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"macrokit/internal/chord"
	"macrokit/internal/model"
	"macrokit/internal/native"
	"macrokit/internal/playback"
	"macrokit/internal/sanitize"
)

type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateCaptureReady State = "capture-ready"
)

// Trigger records how a start or stop was initiated. Hotkey-triggered
// boundaries engage the chord strip pipeline; UI-triggered ones must not.
type Trigger string

const (
	TriggerUI     Trigger = "ui"
	TriggerHotkey Trigger = "hotkey"
)

var (
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("not recording")
	ErrNoCapture        = errors.New("no pending capture")
)

// Status is the session snapshot surfaced to UI processes.
type Status struct {
	State            State
	Recording        bool
	PendingEvents    int
	PendingKeyEvents int
}

// Session is the per-process recording state machine. Only one recording may
// be active per logical recorder across all processes; Start probes the
// shared native engine to refuse a second concurrent recording.
type Session struct {
	mu        sync.Mutex
	eng       native.Engine
	ctrl      *playback.Controller
	log       *Log
	state     State
	pending   []model.MacroEvent
	startedBy Trigger
	stopping  bool

	// matcher returns the current record-hotkey matcher; nil when no hotkey
	// is configured.
	matcher func() *chord.Matcher
	// onCaptureReady broadcasts a capture-ready notification (event count).
	onCaptureReady func(count int)
}

func New(eng native.Engine, ctrl *playback.Controller, log *Log) *Session {
	return &Session{
		eng:     eng,
		ctrl:    ctrl,
		log:     log,
		state:   StateIdle,
		matcher: func() *chord.Matcher { return nil },
	}
}

// SetMatcherSource wires the record-hotkey matcher provider.
func (s *Session) SetMatcherSource(fn func() *chord.Matcher) {
	s.mu.Lock()
	s.matcher = fn
	s.mu.Unlock()
}

// OnCaptureReady wires the broadcast hook invoked when a non-empty capture
// becomes ready.
func (s *Session) OnCaptureReady(fn func(count int)) {
	s.mu.Lock()
	s.onCaptureReady = fn
	s.mu.Unlock()
}

// Start begins recording. No-op (with a log entry) when already recording,
// when a stop is in flight, or when the shared recorder is busy in another
// process. On native failure the session reverts to Idle.
func (s *Session) Start(trigger Trigger) error {
	s.mu.Lock()
	if s.state == StateRecording || s.stopping {
		s.mu.Unlock()
		s.log.Info("Recording already in progress")
		return ErrAlreadyRecording
	}
	s.mu.Unlock()

	// Cross-process guard: the recorder is one logical device; another
	// process may hold it.
	if st, err := s.eng.QueryStatus(); err == nil && st.Recording {
		s.log.Info("Recorder busy in another window")
		return ErrAlreadyRecording
	}

	if err := s.eng.StartRecording(); err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		s.log.Warn(fmt.Sprintf("Failed to start recording: %v", err))
		return fmt.Errorf("start recording: %w", err)
	}

	s.mu.Lock()
	s.state = StateRecording
	s.pending = nil
	s.startedBy = trigger
	s.mu.Unlock()
	s.log.Info("Recording")
	return nil
}

// Stop ends the recording, sanitizes the raw capture, and applies hotkey
// strips according to how start/stop were triggered. An empty result returns
// to Idle with an informational entry; a non-empty one enters CaptureReady
// and broadcasts capture-ready.
func (s *Session) Stop(trigger Trigger) error {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		// The recorder may have been started by another process; reconcile
		// best-effort before reporting.
		if st, err := s.eng.QueryStatus(); err == nil && st.Recording {
			s.log.Info("Recorder owned by another window")
		}
		return ErrNotRecording
	}
	s.stopping = true
	startedBy := s.startedBy
	matcherFn := s.matcher
	s.mu.Unlock()

	raw, err := s.eng.StopRecording()
	if err != nil {
		// Keep Recording rather than silently going Idle.
		s.mu.Lock()
		s.stopping = false
		s.mu.Unlock()
		s.log.Warn(fmt.Sprintf("Failed to stop recording: %v", err))
		return fmt.Errorf("stop recording: %w", err)
	}

	events := sanitize.Events(raw)
	var m *chord.Matcher
	if matcherFn != nil {
		m = matcherFn()
	}
	events = chord.ApplyTrims(events, m, startedBy == TriggerHotkey, trigger == TriggerHotkey)

	s.mu.Lock()
	s.stopping = false
	if len(events) == 0 {
		s.state = StateIdle
		s.pending = nil
		s.mu.Unlock()
		s.log.Info("Empty capture discarded")
		return nil
	}
	s.state = StateCaptureReady
	s.pending = events
	hook := s.onCaptureReady
	s.mu.Unlock()

	s.log.Info("Capture ready")
	if hook != nil {
		hook(len(events))
	}
	return nil
}

// Save materializes the pending capture as a MacroSequence with default
// speed, loop disabled, and no hotkey, returning to Idle. The caller owns
// inserting it at the head of the library.
func (s *Session) Save(name string) (model.MacroSequence, error) {
	s.mu.Lock()
	if s.state != StateCaptureReady {
		s.mu.Unlock()
		return model.MacroSequence{}, ErrNoCapture
	}
	events := s.pending
	s.state = StateIdle
	s.pending = nil
	s.mu.Unlock()

	seq := model.MacroSequence{
		ID:            uuid.NewString(),
		Name:          name,
		Events:        events,
		PlaybackSpeed: model.DefaultPlaybackSpeed,
		// Fresh captures already follow the native scroll convention.
		ScrollNormalized: true,
	}
	s.log.Info("Saved")
	return seq, nil
}

// Discard drops the pending capture and returns to Idle.
func (s *Session) Discard() error {
	s.mu.Lock()
	if s.state != StateCaptureReady {
		s.mu.Unlock()
		return ErrNoCapture
	}
	s.state = StateIdle
	s.pending = nil
	s.mu.Unlock()
	s.log.Info("Capture discarded")
	return nil
}

// PlayOnce plays the pending capture without saving it. Session state is
// unchanged: the capture stays ready for save or discard.
func (s *Session) PlayOnce() error {
	s.mu.Lock()
	if s.state != StateCaptureReady {
		s.mu.Unlock()
		return ErrNoCapture
	}
	events := append([]model.MacroEvent(nil), s.pending...)
	s.mu.Unlock()

	_, _, err := s.ctrl.Play(events, playback.Options{Speed: model.DefaultPlaybackSpeed, Loops: 1})
	if err != nil {
		s.log.Warn(fmt.Sprintf("Failed to play capture: %v", err))
		return err
	}
	s.log.Info("Playing")
	return nil
}

// Pending returns a copy of the pending capture, if any.
func (s *Session) Pending() ([]model.MacroEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCaptureReady {
		return nil, false
	}
	return append([]model.MacroEvent(nil), s.pending...), true
}

// Toggle starts or stops depending on current state; the hotkey path calls
// this on every accepted press.
func (s *Session) Toggle(trigger Trigger) {
	s.mu.Lock()
	recording := s.state == StateRecording
	s.mu.Unlock()
	if recording {
		_ = s.Stop(trigger)
		return
	}
	_ = s.Start(trigger)
}

// Status reports the current state with pending-capture counters.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := 0
	for _, ev := range s.pending {
		if ev.Kind.IsKey() {
			keys++
		}
	}
	return Status{
		State:            s.state,
		Recording:        s.state == StateRecording,
		PendingEvents:    len(s.pending),
		PendingKeyEvents: keys,
	}
}
