package playback

import (
	"sync"
	"time"

	"macrokit/internal/model"
)

// Resolver looks a macro up by id at fire time. Loops never hold a macro
// value across a delay: the macro may be edited or deleted while the timer
// is pending.
type Resolver func(id string) (model.MacroSequence, bool)

// LoopScheduler re-arms a looping macro after each completed playback plus
// the macro's configured delay, until explicitly stopped.
type LoopScheduler struct {
	mu      sync.Mutex
	ctrl    *Controller
	resolve Resolver
	active  map[string]bool
	timers  map[string]*time.Timer
}

func NewLoopScheduler(ctrl *Controller, resolve Resolver) *LoopScheduler {
	return &LoopScheduler{
		ctrl:    ctrl,
		resolve: resolve,
		active:  make(map[string]bool),
		timers:  make(map[string]*time.Timer),
	}
}

// ScheduleNext activates the loop and arms its delay timer without an
// immediate replay. Called when a playback of a loop-enabled macro
// completes; the timer chain then sustains itself until StopLoop. No-op if
// the loop is already active.
func (s *LoopScheduler) ScheduleNext(id string, delayMs int64) {
	s.mu.Lock()
	if s.active[id] {
		s.mu.Unlock()
		return
	}
	s.active[id] = true
	s.mu.Unlock()

	s.arm(id, delayMs)
}

// StopLoop cancels the pending timer and removes the id from the active set.
// If that macro is the one currently playing, the in-flight playback is
// cancelled too.
func (s *LoopScheduler) StopLoop(id string) {
	s.mu.Lock()
	delete(s.active, id)
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	if current, ok := s.ctrl.CurrentMacro(); ok && current == id {
		s.ctrl.Cancel()
	}
}

// StopAll stops every active loop.
func (s *LoopScheduler) StopAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.StopLoop(id)
	}
}

// Active reports whether the macro currently has a live loop.
func (s *LoopScheduler) Active(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[id]
}

func (s *LoopScheduler) playCycle(id string) {
	s.mu.Lock()
	if !s.active[id] {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	seq, ok := s.resolve(id)
	if !ok || !seq.LoopEnabled {
		// Deleted or loop disabled while armed.
		s.StopLoop(id)
		return
	}

	_, done, err := s.ctrl.Play(seq.Events, Options{
		Speed:   seq.PlaybackSpeed,
		Loops:   1,
		MacroID: id,
	})
	if err != nil {
		s.StopLoop(id)
		return
	}

	go func() {
		state := <-done
		if state != model.PlaybackFinished {
			s.StopLoop(id)
			return
		}
		s.arm(id, seq.LoopDelayMs)
	}()
}

func (s *LoopScheduler) arm(id string, delayMs int64) {
	if delayMs < 0 {
		delayMs = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active[id] {
		return
	}
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	s.timers[id] = time.AfterFunc(time.Duration(delayMs)*time.Millisecond, func() {
		s.mu.Lock()
		delete(s.timers, id)
		live := s.active[id]
		s.mu.Unlock()
		if live {
			s.playCycle(id)
		}
	})
}
