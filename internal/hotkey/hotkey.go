// Package hotkey layers toggle semantics on the raw global-hotkey
// registrar: repeated "pressed" deliveries while a chord is held are
// debounced, and a press with no release inside the fallback window is
// treated as an implicit release so a missed OS event cannot wedge the
// toggle.
package hotkey

import (
	"fmt"
	"sync"
	"time"

	"macrokit/internal/native"
)

// DefaultHoldFallback is how long a chord may stay "pressed" with no release
// before the service synthesizes one.
const DefaultHoldFallback = 1500 * time.Millisecond

// Service owns all chord bindings for one process.
type Service struct {
	mu       sync.Mutex
	reg      native.Registrar
	fallback time.Duration
	bindings map[string]*binding
}

type binding struct {
	chord    string
	fn       func()
	pressed  bool
	fallback *time.Timer
}

func NewService(reg native.Registrar, fallback time.Duration) *Service {
	if fallback <= 0 {
		fallback = DefaultHoldFallback
	}
	return &Service{
		reg:      reg,
		fallback: fallback,
		bindings: make(map[string]*binding),
	}
}

// Bind registers the chord and invokes fn once per accepted press.
func (s *Service) Bind(chordStr string, fn func()) error {
	s.mu.Lock()
	if _, exists := s.bindings[chordStr]; exists {
		s.mu.Unlock()
		return fmt.Errorf("chord already bound: %s", chordStr)
	}
	b := &binding{chord: chordStr, fn: fn}
	s.bindings[chordStr] = b
	s.mu.Unlock()

	if err := s.reg.Register(chordStr, func(ev native.HotkeyEvent) {
		s.handle(b, ev)
	}); err != nil {
		s.mu.Lock()
		delete(s.bindings, chordStr)
		s.mu.Unlock()
		return fmt.Errorf("register %s: %w", chordStr, err)
	}
	return nil
}

// Unbind releases the chord. No-op if not bound.
func (s *Service) Unbind(chordStr string) {
	s.mu.Lock()
	b, ok := s.bindings[chordStr]
	if ok {
		delete(s.bindings, chordStr)
		if b.fallback != nil {
			b.fallback.Stop()
		}
	}
	s.mu.Unlock()
	if ok {
		s.reg.Unregister(chordStr)
	}
}

// Rebind moves a binding from one chord to another, keeping the callback.
// An empty new chord just unbinds.
func (s *Service) Rebind(oldChord, newChord string, fn func()) error {
	if oldChord != "" {
		s.Unbind(oldChord)
	}
	if newChord == "" {
		return nil
	}
	return s.Bind(newChord, fn)
}

// Close releases every binding.
func (s *Service) Close() {
	s.mu.Lock()
	chords := make([]string, 0, len(s.bindings))
	for chordStr := range s.bindings {
		chords = append(chords, chordStr)
	}
	s.mu.Unlock()
	for _, chordStr := range chords {
		s.Unbind(chordStr)
	}
}

func (s *Service) handle(b *binding, ev native.HotkeyEvent) {
	switch ev.State {
	case native.KeyPressed:
		s.mu.Lock()
		if b.pressed {
			// OS auto-repeat while held.
			s.mu.Unlock()
			return
		}
		b.pressed = true
		if b.fallback != nil {
			b.fallback.Stop()
		}
		b.fallback = time.AfterFunc(s.fallback, func() {
			s.mu.Lock()
			b.pressed = false
			b.fallback = nil
			s.mu.Unlock()
		})
		fn := b.fn
		s.mu.Unlock()
		fn()
	case native.KeyReleased:
		s.mu.Lock()
		b.pressed = false
		if b.fallback != nil {
			b.fallback.Stop()
			b.fallback = nil
		}
		s.mu.Unlock()
	}
}
