package testutil

import (
	"sync"

	"macrokit/internal/model"
	"macrokit/internal/native"
)

// FakeEngine is a scriptable native.Engine. Completions are driven by the
// test through Complete (or AutoComplete for fire-and-forget paths).
type FakeEngine struct {
	mu        sync.Mutex
	recording bool
	captured  []model.MacroEvent

	StartErr  error
	StopErr   error
	PlayErr   error
	StatusErr error

	// AutoComplete makes every accepted Play resolve itself immediately as
	// finished, for tests that do not care about completion timing.
	AutoComplete bool

	plays   []FakePlay
	cancels int
	signals chan model.PlaybackSignal
}

// FakePlay records one accepted Play call.
type FakePlay struct {
	Events    []model.MacroEvent
	Speed     float64
	Loops     int
	ContextID string
}

func NewFakeEngine() *FakeEngine {
	return &FakeEngine{signals: make(chan model.PlaybackSignal, 16)}
}

// Capture sets the events the next StopRecording returns.
func (f *FakeEngine) Capture(events []model.MacroEvent) {
	f.mu.Lock()
	f.captured = append([]model.MacroEvent(nil), events...)
	f.mu.Unlock()
}

func (f *FakeEngine) StartRecording() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartErr != nil {
		return f.StartErr
	}
	if f.recording {
		return native.ErrRecordingActive
	}
	f.recording = true
	return nil
}

func (f *FakeEngine) StopRecording() ([]model.MacroEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StopErr != nil {
		return nil, f.StopErr
	}
	if !f.recording {
		return nil, native.ErrNoRecording
	}
	f.recording = false
	return append([]model.MacroEvent(nil), f.captured...), nil
}

func (f *FakeEngine) Play(events []model.MacroEvent, speed float64, loops int, contextID string) error {
	f.mu.Lock()
	if f.PlayErr != nil {
		err := f.PlayErr
		f.mu.Unlock()
		return err
	}
	f.plays = append(f.plays, FakePlay{
		Events:    append([]model.MacroEvent(nil), events...),
		Speed:     speed,
		Loops:     loops,
		ContextID: contextID,
	})
	auto := f.AutoComplete
	f.mu.Unlock()
	if auto {
		f.signals <- model.PlaybackSignal{ContextID: contextID, State: model.PlaybackFinished}
	}
	return nil
}

func (f *FakeEngine) CancelPlayback() error {
	f.mu.Lock()
	f.cancels++
	f.mu.Unlock()
	return nil
}

func (f *FakeEngine) QueryStatus() (native.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StatusErr != nil {
		return native.Status{}, f.StatusErr
	}
	return native.Status{Recording: f.recording}, nil
}

func (f *FakeEngine) Signals() <-chan model.PlaybackSignal {
	return f.signals
}

// Complete resolves the playback with the given context id.
func (f *FakeEngine) Complete(contextID string, state model.PlaybackState) {
	f.signals <- model.PlaybackSignal{ContextID: contextID, State: state}
}

// Plays returns a copy of the accepted Play calls so far.
func (f *FakeEngine) Plays() []FakePlay {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakePlay(nil), f.plays...)
}

// LastPlay returns the most recent accepted Play call.
func (f *FakeEngine) LastPlay() (FakePlay, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.plays) == 0 {
		return FakePlay{}, false
	}
	return f.plays[len(f.plays)-1], true
}

// Cancels returns how many times CancelPlayback was called.
func (f *FakeEngine) Cancels() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels
}

// FakeRegistrar is an in-memory native.Registrar with helpers to synthesize
// chord press/release delivery.
type FakeRegistrar struct {
	mu        sync.Mutex
	callbacks map[string]func(native.HotkeyEvent)
	RegErr    error
}

func NewFakeRegistrar() *FakeRegistrar {
	return &FakeRegistrar{callbacks: make(map[string]func(native.HotkeyEvent))}
}

func (r *FakeRegistrar) Register(chord string, fn func(native.HotkeyEvent)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.RegErr != nil {
		return r.RegErr
	}
	r.callbacks[chord] = fn
	return nil
}

func (r *FakeRegistrar) Unregister(chord string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.callbacks, chord)
}

// Registered reports whether the chord currently has a callback.
func (r *FakeRegistrar) Registered(chord string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.callbacks[chord]
	return ok
}

// Press delivers a pressed event for the chord, if registered.
func (r *FakeRegistrar) Press(chord string) {
	r.deliver(chord, native.KeyPressed)
}

// Release delivers a released event for the chord, if registered.
func (r *FakeRegistrar) Release(chord string) {
	r.deliver(chord, native.KeyReleased)
}

func (r *FakeRegistrar) deliver(chord string, state native.KeyState) {
	r.mu.Lock()
	fn := r.callbacks[chord]
	r.mu.Unlock()
	if fn != nil {
		fn(native.HotkeyEvent{Chord: chord, State: state})
	}
}
