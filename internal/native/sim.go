package native

import (
	"sync"
	"sync/atomic"
	"time"

	"macrokit/internal/model"
)

const stopPollSlice = 5 * time.Millisecond

// Sim is a playback-only Engine that honors the pacing contract without
// touching the OS input queue: it sleeps through event offsets in small
// slices so a cancel takes effect within one slice. Recording is not
// supported.
type Sim struct {
	mu      sync.Mutex
	signals chan model.PlaybackSignal
	stop    *atomic.Bool
}

func NewSim() *Sim {
	return &Sim{signals: make(chan model.PlaybackSignal, 16)}
}

func (s *Sim) StartRecording() error { return ErrRecordingUnsupported }

func (s *Sim) StopRecording() ([]model.MacroEvent, error) {
	return nil, ErrNoRecording
}

func (s *Sim) QueryStatus() (Status, error) { return Status{Recording: false}, nil }

func (s *Sim) Signals() <-chan model.PlaybackSignal { return s.signals }

// Play starts a paced run in the background, superseding any run in flight.
func (s *Sim) Play(events []model.MacroEvent, speed float64, loops int, contextID string) error {
	if len(events) == 0 {
		return ErrNoEvents
	}
	if speed < 0.1 {
		speed = 0.1
	}
	if loops < 1 {
		loops = 1
	}

	s.mu.Lock()
	if s.stop != nil {
		s.stop.Store(true)
	}
	flag := &atomic.Bool{}
	s.stop = flag
	s.mu.Unlock()

	run := append([]model.MacroEvent(nil), events...)
	go s.run(run, speed, loops, contextID, flag)
	return nil
}

func (s *Sim) run(events []model.MacroEvent, speed float64, loops int, contextID string, flag *atomic.Bool) {
	stopped := false
outer:
	for i := 0; i < loops; i++ {
		var lastOffset int64
		for _, ev := range events {
			delay := ev.OffsetMs - lastOffset
			if delay < 0 {
				delay = 0
			}
			paced := time.Duration(float64(delay)/speed) * time.Millisecond
			if !sleepUnlessStopped(paced, flag) {
				stopped = true
				break outer
			}
			// Injection would happen here; Sim only keeps time.
			lastOffset = ev.OffsetMs
		}
	}

	state := model.PlaybackFinished
	if stopped {
		state = model.PlaybackStopped
	}
	s.signals <- model.PlaybackSignal{ContextID: contextID, State: state}
}

// CancelPlayback stops the current run, if any. Idempotent.
func (s *Sim) CancelPlayback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		s.stop.Store(true)
	}
	return nil
}

// Shutdown emits the broadcast stop-all signal after stopping any run.
func (s *Sim) Shutdown() {
	_ = s.CancelPlayback()
	s.signals <- model.PlaybackSignal{ContextID: "", State: model.PlaybackStopped}
}

func sleepUnlessStopped(d time.Duration, flag *atomic.Bool) bool {
	for waited := time.Duration(0); waited < d; {
		if flag.Load() {
			return false
		}
		slice := stopPollSlice
		if remaining := d - waited; remaining < slice {
			slice = remaining
		}
		time.Sleep(slice)
		waited += slice
	}
	return !flag.Load()
}
