package syncer_test

import (
	"sync"
	"testing"

	"macrokit/internal/bus"
	"macrokit/internal/model"
	"macrokit/internal/syncer"
	"macrokit/internal/testutil"
)

// frameCounter counts raw frames on a topic, independent of the syncers.
type frameCounter struct {
	mu    sync.Mutex
	count int
}

func (f *frameCounter) listen(b bus.Bus, topic string) {
	b.Listen(topic, func([]byte) {
		f.mu.Lock()
		f.count++
		f.mu.Unlock()
	})
}

func (f *frameCounter) get() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func TestQueueBroadcastAppliesRemotelyWithoutEcho(t *testing.T) {
	b := bus.NewMemory()
	counter := &frameCounter{}
	counter.listen(b, syncer.TopicQueue)

	var applied model.QueueState
	var syncB *syncer.Syncer
	syncA := syncer.New(b, "proc-a", syncer.Handlers{})
	syncB = syncer.New(b, "proc-b", syncer.Handlers{
		OnQueue: func(st model.QueueState) {
			applied = st
			// The apply hook rebroadcasts, mirroring the engine's change
			// hook; suppression must swallow it.
			syncB.BroadcastQueue(st)
		},
	})
	syncA.Start()
	syncB.Start()

	st := model.QueueState{Items: []string{"m1", "m2"}, LoopEnabled: true, LoopDelayMs: 250}
	syncA.BroadcastQueue(st)

	if len(applied.Items) != 2 || !applied.LoopEnabled {
		t.Fatalf("expected remote apply, got %+v", applied)
	}
	if got := counter.get(); got != 1 {
		t.Fatalf("expected exactly 1 queue frame on the wire, got %d", got)
	}
}

func TestBroadcastEqualityGateSuppressesRepeats(t *testing.T) {
	b := bus.NewMemory()
	counter := &frameCounter{}
	counter.listen(b, syncer.TopicQueue)

	s := syncer.New(b, "proc-a", syncer.Handlers{})
	st := model.QueueState{Items: []string{"m1"}}
	s.BroadcastQueue(st)
	s.BroadcastQueue(st)
	s.BroadcastQueue(st.Clone())
	if got := counter.get(); got != 1 {
		t.Fatalf("expected repeat broadcasts gated, got %d frames", got)
	}

	st.Items = append(st.Items, "m2")
	s.BroadcastQueue(st)
	if got := counter.get(); got != 2 {
		t.Fatalf("expected changed state to emit, got %d frames", got)
	}
}

func TestLibraryBroadcastRoundTrip(t *testing.T) {
	b := bus.NewMemory()
	var applied []model.MacroSequence
	syncA := syncer.New(b, "proc-a", syncer.Handlers{})
	syncB := syncer.New(b, "proc-b", syncer.Handlers{
		OnLibrary: func(macros []model.MacroSequence) { applied = macros },
	})
	syncA.Start()
	syncB.Start()

	syncA.BroadcastLibrary([]model.MacroSequence{testutil.SeedMacro("m1", "one")})
	if len(applied) != 1 || applied[0].ID != "m1" {
		t.Fatalf("expected library applied remotely, got %+v", applied)
	}
}

func TestOwnFramesIgnored(t *testing.T) {
	b := bus.NewMemory()
	called := false
	s := syncer.New(b, "proc-a", syncer.Handlers{
		OnQueue: func(model.QueueState) { called = true },
	})
	s.Start()
	s.BroadcastQueue(model.QueueState{Items: []string{"m1"}})
	if called {
		t.Fatalf("expected own echo dropped")
	}
}

func TestMalformedFramesDropped(t *testing.T) {
	b := bus.NewMemory()
	called := false
	s := syncer.New(b, "proc-a", syncer.Handlers{
		OnQueue: func(model.QueueState) { called = true },
	})
	s.Start()

	for _, payload := range [][]byte{
		[]byte("not json"),
		[]byte(`{"body":{}}`),
		[]byte(`{"sender_id":"","body":{}}`),
		[]byte(`{"sender_id":"proc-b"}`),
		[]byte(`{"sender_id":"proc-b","body":"not a queue"}`),
	} {
		_ = b.Emit(syncer.TopicQueue, payload)
	}
	if called {
		t.Fatalf("expected malformed frames dropped before the handler")
	}
}

func TestLateJoinerRequestsQueueSnapshot(t *testing.T) {
	b := bus.NewMemory()
	syncA := syncer.New(b, "proc-a", syncer.Handlers{})
	syncA.Start()
	syncA.BroadcastQueue(model.QueueState{Items: []string{"m1", "m2"}})

	var applied model.QueueState
	syncB := syncer.New(b, "proc-b", syncer.Handlers{
		OnQueue: func(st model.QueueState) { applied = st },
	})
	// Start emits the snapshot request; A answers with its last queue.
	syncB.Start()
	if len(applied.Items) != 2 {
		t.Fatalf("expected late joiner to receive queue snapshot, got %+v", applied)
	}
}

func TestQueueHotkeyBroadcast(t *testing.T) {
	b := bus.NewMemory()
	var applied string
	syncA := syncer.New(b, "proc-a", syncer.Handlers{})
	syncB := syncer.New(b, "proc-b", syncer.Handlers{
		OnQueueHotkey: func(chord string) { applied = chord },
	})
	syncA.Start()
	syncB.Start()

	syncA.BroadcastQueueHotkey("Ctrl+Alt+Q")
	if applied != "Ctrl+Alt+Q" {
		t.Fatalf("expected hotkey applied remotely, got %q", applied)
	}
}

func TestCaptureReadyBroadcast(t *testing.T) {
	b := bus.NewMemory()
	var note syncer.CaptureReadyNote
	syncA := syncer.New(b, "proc-a", syncer.Handlers{})
	syncB := syncer.New(b, "proc-b", syncer.Handlers{
		OnCaptureReady: func(n syncer.CaptureReadyNote) { note = n },
	})
	syncA.Start()
	syncB.Start()

	syncA.BroadcastCaptureReady(7)
	if note.EventCount != 7 {
		t.Fatalf("expected capture-ready note with 7 events, got %+v", note)
	}
}
