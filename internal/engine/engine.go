// Package engine is the per-process coordinator: one Engine instance owns
// the macro library, recording session, playback scheduling, hotkey
// bindings, and the cross-process synchronizer, and funnels every mutation
// through the same apply-and-broadcast helpers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"macrokit/internal/bus"
	"macrokit/internal/chord"
	"macrokit/internal/config"
	"macrokit/internal/hotkey"
	"macrokit/internal/library"
	"macrokit/internal/model"
	"macrokit/internal/native"
	"macrokit/internal/playback"
	"macrokit/internal/sanitize"
	"macrokit/internal/session"
	"macrokit/internal/store"
	"macrokit/internal/syncer"
)

var ErrMacroNotFound = errors.New("macro not found")

const (
	settingRecordHotkey = "record_hotkey"
	settingQueueHotkey  = "queue_hotkey"

	persistTimeout = 5 * time.Second
)

// Deps are the collaborators an Engine is wired with. Registrar and Store
// may be nil (no global hotkeys / no persistence).
type Deps struct {
	Native    native.Engine
	Bus       bus.Bus
	Registrar native.Registrar
	Store     *store.Store
}

// Status is the process-level snapshot surfaced to the UI.
type Status struct {
	Recording      bool
	BufferedEvents int
	Playing        bool
	QueueRunning   bool
}

type Engine struct {
	cfg        config.Config
	instanceID string

	log     *session.Log
	lib     *library.Library
	ctrl    *playback.Controller
	loops   *playback.LoopScheduler
	queue   *playback.Queue
	sess    *session.Session
	sync    *syncer.Syncer
	hotkeys *hotkey.Service
	store   *store.Store

	// hotkey wiring state; macroChords maps macro id to its bound chord.
	mu           sync.Mutex
	recordHotkey string
	queueHotkey  string
	macroChords  map[string]string
	matcher      *chord.Matcher
}

func New(cfg config.Config, deps Deps) *Engine {
	e := &Engine{
		cfg:         cfg,
		instanceID:  uuid.NewString(),
		log:         session.NewLog(),
		lib:         library.New(),
		store:       deps.Store,
		macroChords: make(map[string]string),
	}
	e.ctrl = playback.NewController(deps.Native)
	e.loops = playback.NewLoopScheduler(e.ctrl, e.lib.Macro)
	e.queue = playback.NewQueue(e.ctrl, e.lib.Macro)
	e.queue.OnChange(func(st model.QueueState) {
		e.sync.BroadcastQueue(st)
	})
	e.sess = session.New(deps.Native, e.ctrl, e.log)
	e.sess.SetMatcherSource(func() *chord.Matcher {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.matcher
	})
	e.sess.OnCaptureReady(func(count int) {
		e.sync.BroadcastCaptureReady(count)
	})
	e.sync = syncer.New(deps.Bus, e.instanceID, syncer.Handlers{
		OnLibrary:      e.applyRemoteLibrary,
		OnQueue:        e.applyRemoteQueue,
		OnQueueHotkey:  e.applyRemoteQueueHotkey,
		OnCaptureReady: e.onRemoteCaptureReady,
	})
	if deps.Registrar != nil {
		e.hotkeys = hotkey.NewService(deps.Registrar, cfg.HotkeyHoldFallback)
	}
	return e
}

// InstanceID returns this process's synchronizer identity.
func (e *Engine) InstanceID() string { return e.instanceID }

// Log returns the activity log.
func (e *Engine) Log() *session.Log { return e.log }

// Library returns the macro library (single writer: this engine).
func (e *Engine) Library() *library.Library { return e.lib }

// Start loads persisted state, binds hotkeys, and joins the broadcast
// protocol.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.store != nil {
		macros, err := e.store.LoadLibrary(ctx)
		if err != nil {
			e.mu.Unlock()
			return fmt.Errorf("load library: %w", err)
		}
		e.lib.Replace(macros)

		if v, ok, err := e.store.GetSetting(ctx, settingRecordHotkey); err != nil {
			e.mu.Unlock()
			return fmt.Errorf("load record hotkey: %w", err)
		} else if ok {
			e.recordHotkey = v
		}
		if v, ok, err := e.store.GetSetting(ctx, settingQueueHotkey); err != nil {
			e.mu.Unlock()
			return fmt.Errorf("load queue hotkey: %w", err)
		} else if ok {
			e.queueHotkey = v
		}
	}
	if e.recordHotkey == "" {
		e.recordHotkey = e.cfg.DefaultRecordHotkey
	}
	e.matcher = chord.NewMatcher(e.recordHotkey)
	recordHotkey := e.recordHotkey
	queueHotkey := e.queueHotkey
	e.mu.Unlock()

	if e.hotkeys != nil {
		if recordHotkey != "" {
			if err := e.hotkeys.Bind(recordHotkey, func() {
				e.sess.Toggle(session.TriggerHotkey)
			}); err != nil {
				e.log.Warn(fmt.Sprintf("Record hotkey unavailable: %v", err))
			}
		}
		if queueHotkey != "" {
			if err := e.hotkeys.Bind(queueHotkey, e.toggleQueue); err != nil {
				e.log.Warn(fmt.Sprintf("Queue hotkey unavailable: %v", err))
			}
		}
		e.rebindMacroHotkeys()
	}

	e.sync.Start()
	return nil
}

// Close releases hotkeys, leaves the protocol, and stops all playback.
func (e *Engine) Close() {
	if e.hotkeys != nil {
		e.hotkeys.Close()
	}
	e.sync.Stop()
	e.queue.Stop()
	e.loops.StopAll()
	e.ctrl.Cancel()
}

// --- recording session -----------------------------------------------------

func (e *Engine) StartRecording() error { return e.sess.Start(session.TriggerUI) }
func (e *Engine) StopRecording() error  { return e.sess.Stop(session.TriggerUI) }
func (e *Engine) DiscardCapture() error { return e.sess.Discard() }
func (e *Engine) PlayCapture() error    { return e.sess.PlayOnce() }

// SaveCapture turns the pending capture into a library macro at the head of
// the list.
func (e *Engine) SaveCapture(name string) (model.MacroSequence, error) {
	seq, err := e.sess.Save(name)
	if err != nil {
		return model.MacroSequence{}, err
	}
	e.lib.InsertHead(seq)
	e.broadcastLibrary()
	return seq, nil
}

// --- macro operations ------------------------------------------------------

// PlayMacro plays one macro at its configured speed. If the macro is
// loop-enabled when the playback finishes, the loop scheduler takes over.
func (e *Engine) PlayMacro(id string) error {
	seq, ok := e.lib.Macro(id)
	if !ok {
		e.log.Info("Macro no longer exists")
		return ErrMacroNotFound
	}
	if len(seq.Events) == 0 {
		e.log.Info("Macro has no events")
		return nil
	}
	_, done, err := e.ctrl.Play(seq.Events, playback.Options{
		Speed:   seq.PlaybackSpeed,
		Loops:   1,
		MacroID: id,
	})
	if err != nil {
		e.log.Warn(fmt.Sprintf("Failed to play macro: %v", err))
		return err
	}
	e.log.Info("Playing")
	e.lib.MarkRun(id, time.Now())
	e.broadcastLibrary()

	go func() {
		if state := <-done; state != model.PlaybackFinished {
			return
		}
		if cur, ok := e.lib.Macro(id); ok && cur.LoopEnabled {
			e.loops.ScheduleNext(id, cur.LoopDelayMs)
		}
	}()
	return nil
}

// StopPlayback cancels whatever is currently playing and any loop on it.
func (e *Engine) StopPlayback() {
	if id, ok := e.ctrl.CurrentMacro(); ok {
		e.loops.StopLoop(id)
	}
	e.ctrl.Cancel()
}

// DeleteMacro removes the macro, its loop, and its hotkey binding.
func (e *Engine) DeleteMacro(id string) {
	e.loops.StopLoop(id)
	e.mu.Lock()
	chordStr, bound := e.macroChords[id]
	delete(e.macroChords, id)
	e.mu.Unlock()
	if bound && e.hotkeys != nil {
		e.hotkeys.Unbind(chordStr)
	}
	if !e.lib.Delete(id) {
		return
	}
	e.log.Info("Macro removed")
	e.broadcastLibrary()
}

// RenameMacro sets the display name.
func (e *Engine) RenameMacro(id, name string) {
	if e.lib.Rename(id, name) {
		e.broadcastLibrary()
	}
}

// SetMacroSpeed clamps and stores the playback speed.
func (e *Engine) SetMacroSpeed(id string, speed float64) {
	if e.lib.SetSpeed(id, speed) {
		e.broadcastLibrary()
	}
}

// SetMacroLoop updates loop settings; disabling stops a live loop.
func (e *Engine) SetMacroLoop(id string, enabled bool, delayMs int64) {
	if !e.lib.SetLoop(id, enabled, delayMs) {
		return
	}
	if !enabled {
		e.loops.StopLoop(id)
	}
	e.broadcastLibrary()
}

// UpdateMacroEvents replaces a macro's event list. A live loop is stopped
// for the edit and re-armed afterwards so no stale timer references the
// pre-edit events.
func (e *Engine) UpdateMacroEvents(id string, events []model.MacroEvent) {
	wasLooping := e.loops.Active(id)
	if wasLooping {
		e.loops.StopLoop(id)
	}
	if !e.lib.SetEvents(id, sanitize.Events(events)) {
		return
	}
	if wasLooping {
		if cur, ok := e.lib.Macro(id); ok && cur.LoopEnabled {
			e.loops.ScheduleNext(id, cur.LoopDelayMs)
		}
	}
	e.broadcastLibrary()
}

// NormalizeMacroScroll applies the one-way legacy scroll migration.
func (e *Engine) NormalizeMacroScroll(id string) {
	if e.lib.NormalizeScroll(id) {
		e.broadcastLibrary()
	}
}

// SetMacroHotkey binds (or clears) a chord that plays the macro.
func (e *Engine) SetMacroHotkey(id, chordStr string) error {
	if _, ok := e.lib.Macro(id); !ok {
		return ErrMacroNotFound
	}
	e.mu.Lock()
	old := e.macroChords[id]
	e.mu.Unlock()
	if e.hotkeys != nil {
		if err := e.hotkeys.Rebind(old, chordStr, func() { _ = e.PlayMacro(id) }); err != nil {
			return err
		}
	}
	e.mu.Lock()
	if chordStr == "" {
		delete(e.macroChords, id)
	} else {
		e.macroChords[id] = chordStr
	}
	e.mu.Unlock()
	e.lib.SetHotkey(id, chordStr)
	e.broadcastLibrary()
	return nil
}

// SetRecordHotkey changes the chord that toggles the recorder.
func (e *Engine) SetRecordHotkey(chordStr string) error {
	e.mu.Lock()
	old := e.recordHotkey
	e.mu.Unlock()
	if e.hotkeys != nil {
		if err := e.hotkeys.Rebind(old, chordStr, func() {
			e.sess.Toggle(session.TriggerHotkey)
		}); err != nil {
			return err
		}
	}
	e.mu.Lock()
	e.recordHotkey = chordStr
	e.matcher = chord.NewMatcher(chordStr)
	e.mu.Unlock()
	e.putSetting(settingRecordHotkey, chordStr)
	return nil
}

// --- queue operations ------------------------------------------------------

func (e *Engine) EnqueueMacro(id string) { e.queue.Enqueue(id) }
func (e *Engine) RemoveQueueItem(i int)  { e.queue.RemoveAt(i) }

func (e *Engine) QueueState() model.QueueState {
	return e.queue.State()
}

func (e *Engine) SetQueueLoop(enabled bool, delayMs int64) {
	e.queue.SetLoop(enabled, delayMs)
}

func (e *Engine) PlayQueue() error {
	err := e.queue.Play()
	switch {
	case errors.Is(err, playback.ErrQueueRunning):
		e.log.Info("Queue already running")
	case errors.Is(err, playback.ErrQueueEmpty):
		e.log.Info("Queue is empty")
	case err == nil:
		e.log.Info("Playing queue")
	}
	return err
}

func (e *Engine) StopQueue() {
	e.queue.Stop()
	e.log.Info("Queue stopped")
}

func (e *Engine) ClearQueue() {
	e.queue.Clear()
	e.log.Info("Queue cleared")
}

// SetQueueHotkey changes the chord that toggles queue playback.
func (e *Engine) SetQueueHotkey(chordStr string) error {
	e.mu.Lock()
	old := e.queueHotkey
	e.mu.Unlock()
	if e.hotkeys != nil {
		if err := e.hotkeys.Rebind(old, chordStr, e.toggleQueue); err != nil {
			return err
		}
	}
	e.mu.Lock()
	e.queueHotkey = chordStr
	e.mu.Unlock()
	e.putSetting(settingQueueHotkey, chordStr)
	e.sync.BroadcastQueueHotkey(chordStr)
	return nil
}

func (e *Engine) toggleQueue() {
	if e.queue.State().Running {
		e.StopQueue()
		return
	}
	_ = e.PlayQueue()
}

// --- status ----------------------------------------------------------------

func (e *Engine) SessionStatus() session.Status { return e.sess.Status() }

func (e *Engine) Status() Status {
	st := e.sess.Status()
	return Status{
		Recording:      st.Recording,
		BufferedEvents: st.PendingEvents,
		Playing:        e.ctrl.Playing(),
		QueueRunning:   e.queue.State().Running,
	}
}

// --- synchronizer appliers -------------------------------------------------

func (e *Engine) applyRemoteLibrary(macros []model.MacroSequence) {
	e.lib.Replace(macros)
	e.rebindMacroHotkeys()
	// The triggered rebroadcast is swallowed by the suppress flag; the
	// persist side effect still runs.
	e.broadcastLibrary()
}

func (e *Engine) applyRemoteQueue(st model.QueueState) {
	e.queue.Apply(st)
}

func (e *Engine) applyRemoteQueueHotkey(chordStr string) {
	e.mu.Lock()
	old := e.queueHotkey
	e.mu.Unlock()
	if e.hotkeys != nil {
		if err := e.hotkeys.Rebind(old, chordStr, e.toggleQueue); err != nil {
			e.log.Warn(fmt.Sprintf("Queue hotkey unavailable: %v", err))
		}
	}
	e.mu.Lock()
	e.queueHotkey = chordStr
	e.mu.Unlock()
	e.putSetting(settingQueueHotkey, chordStr)
	// Consume the suppress flag raised by the synchronizer.
	e.sync.BroadcastQueueHotkey(chordStr)
}

func (e *Engine) onRemoteCaptureReady(note syncer.CaptureReadyNote) {
	e.log.Info("Capture ready in another window")
}

// --- helpers ---------------------------------------------------------------

// broadcastLibrary is the single exit point for library mutations: snapshot,
// broadcast (subject to suppression/equality), persist.
func (e *Engine) broadcastLibrary() {
	snapshot := e.lib.List()
	e.sync.BroadcastLibrary(snapshot)
	if e.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := e.store.ReplaceLibrary(ctx, snapshot); err != nil {
			e.log.Warn(fmt.Sprintf("Failed to persist library: %v", err))
		}
	}
}

func (e *Engine) putSetting(key, value string) {
	if e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := e.store.PutSetting(ctx, key, value); err != nil {
		e.log.Warn(fmt.Sprintf("Failed to persist %s: %v", key, err))
	}
}

func (e *Engine) rebindMacroHotkeys() {
	if e.hotkeys == nil {
		return
	}
	e.mu.Lock()
	stale := e.macroChords
	e.macroChords = make(map[string]string)
	e.mu.Unlock()
	for _, chordStr := range stale {
		e.hotkeys.Unbind(chordStr)
	}
	for _, m := range e.lib.List() {
		if m.Hotkey == "" {
			continue
		}
		id := m.ID
		if err := e.hotkeys.Bind(m.Hotkey, func() { _ = e.PlayMacro(id) }); err != nil {
			e.log.Warn(fmt.Sprintf("Macro hotkey unavailable: %v", err))
			continue
		}
		e.mu.Lock()
		e.macroChords[id] = m.Hotkey
		e.mu.Unlock()
	}
}
