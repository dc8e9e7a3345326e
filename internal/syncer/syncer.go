// Package syncer keeps every live UI process convergent on the macro
// library, queue state, and queue hotkey, and fans out capture-ready
// notifications. The protocol is last-write-wins per topic with
// instance-tagged echo suppression: no consensus, no vector clocks.
package syncer

import (
	"encoding/json"
	"sync"

	"github.com/tidwall/gjson"

	"macrokit/internal/bus"
	"macrokit/internal/model"
)

const (
	TopicLibrary      = "macro-library"
	TopicQueue        = "queue-state"
	TopicQueueHotkey  = "queue-hotkey"
	TopicCaptureReady = "capture-ready"
	TopicQueueRequest = "queue-state-request"
)

// envelope wraps every broadcast body with the sender's instance id so
// receivers can drop their own echoes.
type envelope struct {
	SenderID string          `json:"sender_id"`
	Body     json.RawMessage `json:"body"`
}

// CaptureReadyNote is the capture-ready broadcast body.
type CaptureReadyNote struct {
	EventCount int `json:"event_count"`
}

// Handlers are the apply-locally callbacks invoked for accepted remote
// payloads. The synchronizer raises its suppress flag before calling, so a
// state-change hook that re-enters BroadcastX will not echo the value back.
type Handlers struct {
	OnLibrary      func([]model.MacroSequence)
	OnQueue        func(model.QueueState)
	OnQueueHotkey  func(string)
	OnCaptureReady func(CaptureReadyNote)
}

// Syncer is one process's connection to the broadcast protocol.
type Syncer struct {
	bus        bus.Bus
	instanceID string
	handlers   Handlers

	mu          sync.Mutex
	suppress    map[string]bool
	lastLibrary []model.MacroSequence
	lastQueue   model.QueueState
	lastHotkey  string
	queueSeen   bool
	unsubs      []func()
}

func New(b bus.Bus, instanceID string, handlers Handlers) *Syncer {
	return &Syncer{
		bus:        b,
		instanceID: instanceID,
		handlers:   handlers,
		suppress:   make(map[string]bool),
	}
}

// InstanceID returns this process's instance id.
func (s *Syncer) InstanceID() string { return s.instanceID }

// Start subscribes to all topics and, as a late joiner with no queue state
// yet, asks the other processes for their current snapshot.
func (s *Syncer) Start() {
	subs := []struct {
		topic string
		fn    bus.Handler
	}{
		{TopicLibrary, s.handleLibrary},
		{TopicQueue, s.handleQueue},
		{TopicQueueHotkey, s.handleQueueHotkey},
		{TopicCaptureReady, s.handleCaptureReady},
		{TopicQueueRequest, s.handleQueueRequest},
	}
	s.mu.Lock()
	for _, sub := range subs {
		s.unsubs = append(s.unsubs, s.bus.Listen(sub.topic, sub.fn))
	}
	seen := s.queueSeen
	s.mu.Unlock()

	if !seen {
		s.emit(TopicQueueRequest, struct{}{})
	}
}

// Stop unsubscribes from every topic.
func (s *Syncer) Stop() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}

// BroadcastLibrary emits the library snapshot unless this update is the
// local application of a remote one, or the value is unchanged.
func (s *Syncer) BroadcastLibrary(macros []model.MacroSequence) {
	s.mu.Lock()
	if s.suppress[TopicLibrary] {
		s.suppress[TopicLibrary] = false
		s.lastLibrary = cloneLibrary(macros)
		s.mu.Unlock()
		return
	}
	if librariesEqual(s.lastLibrary, macros) {
		s.mu.Unlock()
		return
	}
	s.lastLibrary = cloneLibrary(macros)
	s.mu.Unlock()
	s.emit(TopicLibrary, macros)
}

// BroadcastQueue emits the queue snapshot under the same suppression and
// equality rules.
func (s *Syncer) BroadcastQueue(st model.QueueState) {
	s.mu.Lock()
	if s.suppress[TopicQueue] {
		s.suppress[TopicQueue] = false
		s.lastQueue = st.Clone()
		s.queueSeen = true
		s.mu.Unlock()
		return
	}
	if s.queueSeen && s.lastQueue.Equal(st) {
		s.mu.Unlock()
		return
	}
	s.lastQueue = st.Clone()
	s.queueSeen = true
	s.mu.Unlock()
	s.emit(TopicQueue, st)
}

// BroadcastQueueHotkey emits the queue hotkey chord.
func (s *Syncer) BroadcastQueueHotkey(chord string) {
	s.mu.Lock()
	if s.suppress[TopicQueueHotkey] {
		s.suppress[TopicQueueHotkey] = false
		s.lastHotkey = chord
		s.mu.Unlock()
		return
	}
	if s.lastHotkey == chord {
		s.mu.Unlock()
		return
	}
	s.lastHotkey = chord
	s.mu.Unlock()
	s.emit(TopicQueueHotkey, chord)
}

// BroadcastCaptureReady notifies other processes that a capture is waiting.
func (s *Syncer) BroadcastCaptureReady(count int) {
	s.emit(TopicCaptureReady, CaptureReadyNote{EventCount: count})
}

func (s *Syncer) emit(topic string, body any) {
	raw, err := json.Marshal(body)
	if err != nil {
		return
	}
	payload, err := json.Marshal(envelope{SenderID: s.instanceID, Body: raw})
	if err != nil {
		return
	}
	_ = s.bus.Emit(topic, payload)
}

// accept validates an inbound frame and returns its body unless the frame is
// malformed or our own echo. The bus has no schema enforcement, so anything
// that does not parse is dropped as noise.
func (s *Syncer) accept(payload []byte) ([]byte, bool) {
	if !gjson.ValidBytes(payload) {
		return nil, false
	}
	sender := gjson.GetBytes(payload, "sender_id")
	if !sender.Exists() || sender.Type != gjson.String || sender.Str == "" {
		return nil, false
	}
	if sender.Str == s.instanceID {
		return nil, false
	}
	body := gjson.GetBytes(payload, "body")
	if !body.Exists() {
		return nil, false
	}
	return []byte(body.Raw), true
}

func (s *Syncer) handleLibrary(payload []byte) {
	body, ok := s.accept(payload)
	if !ok {
		return
	}
	var macros []model.MacroSequence
	if err := json.Unmarshal(body, &macros); err != nil {
		return
	}
	s.mu.Lock()
	s.suppress[TopicLibrary] = true
	s.lastLibrary = cloneLibrary(macros)
	fn := s.handlers.OnLibrary
	s.mu.Unlock()
	if fn != nil {
		fn(macros)
	}
}

func (s *Syncer) handleQueue(payload []byte) {
	body, ok := s.accept(payload)
	if !ok {
		return
	}
	var st model.QueueState
	if err := json.Unmarshal(body, &st); err != nil {
		return
	}
	s.mu.Lock()
	s.suppress[TopicQueue] = true
	s.lastQueue = st.Clone()
	s.queueSeen = true
	fn := s.handlers.OnQueue
	s.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (s *Syncer) handleQueueHotkey(payload []byte) {
	body, ok := s.accept(payload)
	if !ok {
		return
	}
	var chord string
	if err := json.Unmarshal(body, &chord); err != nil {
		return
	}
	s.mu.Lock()
	s.suppress[TopicQueueHotkey] = true
	s.lastHotkey = chord
	fn := s.handlers.OnQueueHotkey
	s.mu.Unlock()
	if fn != nil {
		fn(chord)
	}
}

func (s *Syncer) handleCaptureReady(payload []byte) {
	body, ok := s.accept(payload)
	if !ok {
		return
	}
	var note CaptureReadyNote
	if err := json.Unmarshal(body, &note); err != nil {
		return
	}
	if fn := s.handlers.OnCaptureReady; fn != nil {
		fn(note)
	}
}

// handleQueueRequest answers a late joiner by re-emitting the current queue
// snapshot, bypassing the equality gate.
func (s *Syncer) handleQueueRequest(payload []byte) {
	if _, ok := s.accept(payload); !ok {
		return
	}
	s.mu.Lock()
	seen := s.queueSeen
	st := s.lastQueue.Clone()
	s.mu.Unlock()
	if !seen {
		return
	}
	s.emit(TopicQueue, st)
}

func cloneLibrary(macros []model.MacroSequence) []model.MacroSequence {
	out := make([]model.MacroSequence, len(macros))
	for i, m := range macros {
		out[i] = m.Clone()
	}
	return out
}

func librariesEqual(a, b []model.MacroSequence) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sequencesEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func sequencesEqual(a, b model.MacroSequence) bool {
	if a.ID != b.ID || a.Name != b.Name || a.LoopEnabled != b.LoopEnabled ||
		a.LoopDelayMs != b.LoopDelayMs || a.PlaybackSpeed != b.PlaybackSpeed ||
		a.Hotkey != b.Hotkey || a.ScrollNormalized != b.ScrollNormalized {
		return false
	}
	if len(a.Events) != len(b.Events) || len(a.Tags) != len(b.Tags) {
		return false
	}
	for i := range a.Tags {
		if a.Tags[i] != b.Tags[i] {
			return false
		}
	}
	for i := range a.Events {
		if a.Events[i] != b.Events[i] {
			return false
		}
	}
	if (a.LastRun == nil) != (b.LastRun == nil) {
		return false
	}
	if a.LastRun != nil && !a.LastRun.Equal(*b.LastRun) {
		return false
	}
	return true
}
