// Package library owns the in-process macro collection. Mutations are
// single-writer per process; cross-process convergence happens by snapshot
// broadcast, not by locking.
package library

import (
	"sync"
	"time"

	"macrokit/internal/model"
)

// Library holds the ordered macro list, newest first.
type Library struct {
	mu     sync.Mutex
	macros []model.MacroSequence
}

func New() *Library {
	return &Library{}
}

// InsertHead puts a freshly saved macro at the head of the list.
func (l *Library) InsertHead(seq model.MacroSequence) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.macros = append([]model.MacroSequence{seq.Clone()}, l.macros...)
}

// Macro returns a copy of the macro with the given id.
func (l *Library) Macro(id string) (model.MacroSequence, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.macros {
		if m.ID == id {
			return m.Clone(), true
		}
	}
	return model.MacroSequence{}, false
}

// List returns a copy of the whole collection in order.
func (l *Library) List() []model.MacroSequence {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.MacroSequence, len(l.macros))
	for i, m := range l.macros {
		out[i] = m.Clone()
	}
	return out
}

// Replace overwrites the collection from a snapshot (remote apply or
// persistence load).
func (l *Library) Replace(snapshot []model.MacroSequence) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.macros = make([]model.MacroSequence, len(snapshot))
	for i, m := range snapshot {
		l.macros[i] = m.Clone()
	}
}

// Delete removes the macro; reports whether it existed.
func (l *Library) Delete(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, m := range l.macros {
		if m.ID == id {
			l.macros = append(l.macros[:i], l.macros[i+1:]...)
			return true
		}
	}
	return false
}

func (l *Library) update(id string, mutate func(*model.MacroSequence)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.macros {
		if l.macros[i].ID == id {
			mutate(&l.macros[i])
			return true
		}
	}
	return false
}

// Rename sets the macro's display name.
func (l *Library) Rename(id, name string) bool {
	return l.update(id, func(m *model.MacroSequence) { m.Name = name })
}

// SetSpeed sets the playback speed, clamped to the stored-macro range.
func (l *Library) SetSpeed(id string, speed float64) bool {
	return l.update(id, func(m *model.MacroSequence) {
		m.PlaybackSpeed = model.ClampSpeed(speed)
	})
}

// SetLoop sets the macro's loop flag and delay (floored at zero).
func (l *Library) SetLoop(id string, enabled bool, delayMs int64) bool {
	if delayMs < 0 {
		delayMs = 0
	}
	return l.update(id, func(m *model.MacroSequence) {
		m.LoopEnabled = enabled
		m.LoopDelayMs = delayMs
	})
}

// SetHotkey binds (or, with an empty chord, unbinds) the macro's playback
// hotkey.
func (l *Library) SetHotkey(id, chord string) bool {
	return l.update(id, func(m *model.MacroSequence) { m.Hotkey = chord })
}

// SetEvents replaces the macro's event list.
func (l *Library) SetEvents(id string, events []model.MacroEvent) bool {
	return l.update(id, func(m *model.MacroSequence) {
		m.Events = append([]model.MacroEvent(nil), events...)
	})
}

// MarkRun stamps the macro's last-run time.
func (l *Library) MarkRun(id string, at time.Time) bool {
	return l.update(id, func(m *model.MacroSequence) {
		t := at.UTC()
		m.LastRun = &t
	})
}

// NormalizeScroll sign-inverts a legacy macro's scroll deltas to the native
// convention. One-way: the flag guarantees the transform never reapplies.
func (l *Library) NormalizeScroll(id string) bool {
	return l.update(id, func(m *model.MacroSequence) {
		if m.ScrollNormalized {
			return
		}
		for i := range m.Events {
			if m.Events[i].Kind == model.KindScroll {
				m.Events[i].DeltaX = -m.Events[i].DeltaX
				m.Events[i].DeltaY = -m.Events[i].DeltaY
			}
		}
		m.ScrollNormalized = true
	})
}

// Len reports the number of macros.
func (l *Library) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.macros)
}
