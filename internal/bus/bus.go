// Package bus is the publish/subscribe transport between UI processes.
// Delivery is at-least-once to currently-connected processes only; there is
// no replay, no cross-topic ordering, and the broker echoes every frame back
// to all clients including the sender. Echo filtering is the subscriber's
// job (internal/syncer).
package bus

import "sync"

// Handler receives the raw payload of one frame on a topic.
type Handler func(payload []byte)

// Bus is the transport contract consumed by the synchronizer.
type Bus interface {
	Emit(topic string, payload []byte) error
	// Listen subscribes fn to a topic and returns its unsubscribe func.
	Listen(topic string, fn Handler) (unsubscribe func())
	Close() error
}

// Memory is an in-process Bus that mirrors broker semantics: every emitted
// frame is delivered to every listener on the topic, the emitter's own
// listeners included. Used by tests and single-process runs.
type Memory struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]Handler
	closed bool
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[int]Handler)}
}

func (m *Memory) Emit(topic string, payload []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	handlers := make([]Handler, 0, len(m.subs[topic]))
	for _, fn := range m.subs[topic] {
		handlers = append(handlers, fn)
	}
	m.mu.Unlock()

	frame := append([]byte(nil), payload...)
	for _, fn := range handlers {
		fn(frame)
	}
	return nil
}

func (m *Memory) Listen(topic string, fn Handler) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs[topic] == nil {
		m.subs[topic] = make(map[int]Handler)
	}
	id := m.nextID
	m.nextID++
	m.subs[topic][id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[topic], id)
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.subs = make(map[string]map[int]Handler)
	return nil
}
