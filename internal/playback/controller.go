// Package playback executes macros through the native engine: a controller
// correlating playback requests with their asynchronous completion signals,
// a per-macro loop scheduler, and the queue orchestrator.
package playback

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"macrokit/internal/model"
	"macrokit/internal/native"
)

var ErrNoEvents = errors.New("no events to play")

// Options tunes one playback request. A zero ContextID is assigned a fresh
// uuid; MacroID is optional provenance used by the loop scheduler and queue.
type Options struct {
	Speed     float64
	Loops     int
	ContextID string
	MacroID   string
}

// Controller delegates playback to the native engine and resolves a
// per-context done channel when the matching completion signal arrives.
// One playback at a time per process: a new request supersedes the previous
// context by asking the native engine to stop, never by force-killing.
type Controller struct {
	mu       sync.Mutex
	eng      native.Engine
	waiters  map[string]chan model.PlaybackState
	current  string
	macroID  string
	stopping bool
}

func NewController(eng native.Engine) *Controller {
	c := &Controller{
		eng:     eng,
		waiters: make(map[string]chan model.PlaybackState),
	}
	go c.consumeSignals()
	return c
}

// Play starts events at the given speed/loops and returns the context id and
// a channel that yields the terminal state exactly once. The channel is
// buffered: callers may abandon it without leaking a goroutine.
func (c *Controller) Play(events []model.MacroEvent, opts Options) (string, <-chan model.PlaybackState, error) {
	if len(events) == 0 {
		return "", nil, ErrNoEvents
	}
	speed := opts.Speed
	if speed <= 0 {
		speed = model.DefaultPlaybackSpeed
	}
	loops := opts.Loops
	if loops < 1 {
		loops = 1
	}
	contextID := opts.ContextID
	if contextID == "" {
		contextID = uuid.NewString()
	}

	c.mu.Lock()
	if c.current != "" {
		// Supersede: optimistic local stop, native is asked, not forced.
		_ = c.eng.CancelPlayback()
	}
	done := make(chan model.PlaybackState, 1)
	c.waiters[contextID] = done
	c.current = contextID
	c.macroID = opts.MacroID
	c.stopping = false
	c.mu.Unlock()

	if err := c.eng.Play(events, speed, loops, contextID); err != nil {
		c.mu.Lock()
		delete(c.waiters, contextID)
		if c.current == contextID {
			c.current = ""
			c.macroID = ""
		}
		c.mu.Unlock()
		return "", nil, fmt.Errorf("native play: %w", err)
	}
	return contextID, done, nil
}

// Cancel asks the native engine to stop the current playback and
// optimistically marks local state as not-playing. Idempotent and
// single-flight: only one outstanding stop request at a time.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		return
	}
	c.stopping = true
	c.current = ""
	c.macroID = ""
	c.mu.Unlock()

	_ = c.eng.CancelPlayback()
}

// Playing reports whether this process believes a playback is in flight.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != ""
}

// CurrentMacro returns the macro id of the in-flight playback, if any.
func (c *Controller) CurrentMacro() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == "" || c.macroID == "" {
		return "", false
	}
	return c.macroID, true
}

func (c *Controller) consumeSignals() {
	for sig := range c.eng.Signals() {
		c.dispatch(sig)
	}
}

func (c *Controller) dispatch(sig model.PlaybackSignal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sig.ContextID == "" {
		// Broadcast stop-all: resolve every outstanding waiter.
		for id, done := range c.waiters {
			done <- model.PlaybackStopped
			close(done)
			delete(c.waiters, id)
		}
		c.current = ""
		c.macroID = ""
		c.stopping = false
		return
	}
	if done, ok := c.waiters[sig.ContextID]; ok {
		done <- sig.State
		close(done)
		delete(c.waiters, sig.ContextID)
	}
	if c.current == sig.ContextID {
		c.current = ""
		c.macroID = ""
	}
	c.stopping = false
}
