package playback_test

import (
	"testing"
	"time"

	"macrokit/internal/model"
	"macrokit/internal/playback"
	"macrokit/internal/testutil"
)

func waitState(t *testing.T, done <-chan model.PlaybackState) model.PlaybackState {
	t.Helper()
	select {
	case state := <-done:
		return state
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for playback completion")
		return ""
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for condition")
}

func TestControllerPlayResolvesFinished(t *testing.T) {
	eng := testutil.NewFakeEngine()
	ctrl := playback.NewController(eng)

	ctxID, done, err := ctrl.Play([]model.MacroEvent{testutil.KeyDown(0, "A")}, playback.Options{})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if !ctrl.Playing() {
		t.Fatalf("expected playing after accepted play")
	}
	eng.Complete(ctxID, model.PlaybackFinished)
	if state := waitState(t, done); state != model.PlaybackFinished {
		t.Fatalf("expected finished, got %v", state)
	}
	waitUntil(t, func() bool { return !ctrl.Playing() })
}

func TestControllerPlayRejectsEmptyEvents(t *testing.T) {
	ctrl := playback.NewController(testutil.NewFakeEngine())
	if _, _, err := ctrl.Play(nil, playback.Options{}); err != playback.ErrNoEvents {
		t.Fatalf("expected ErrNoEvents, got %v", err)
	}
}

func TestControllerPlaySupersedesCurrent(t *testing.T) {
	eng := testutil.NewFakeEngine()
	ctrl := playback.NewController(eng)

	ctx1, done1, err := ctrl.Play([]model.MacroEvent{testutil.KeyDown(0, "A")}, playback.Options{MacroID: "m1"})
	if err != nil {
		t.Fatalf("play 1: %v", err)
	}
	ctx2, done2, err := ctrl.Play([]model.MacroEvent{testutil.KeyDown(0, "B")}, playback.Options{MacroID: "m2"})
	if err != nil {
		t.Fatalf("play 2: %v", err)
	}
	if eng.Cancels() != 1 {
		t.Fatalf("expected one native cancel for supersede, got %d", eng.Cancels())
	}

	eng.Complete(ctx1, model.PlaybackStopped)
	eng.Complete(ctx2, model.PlaybackFinished)
	if state := waitState(t, done1); state != model.PlaybackStopped {
		t.Fatalf("expected superseded run stopped, got %v", state)
	}
	if state := waitState(t, done2); state != model.PlaybackFinished {
		t.Fatalf("expected second run finished, got %v", state)
	}
}

func TestControllerCancelIsIdempotent(t *testing.T) {
	eng := testutil.NewFakeEngine()
	ctrl := playback.NewController(eng)

	ctxID, done, err := ctrl.Play([]model.MacroEvent{testutil.KeyDown(0, "A")}, playback.Options{})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	ctrl.Cancel()
	ctrl.Cancel()
	if eng.Cancels() != 1 {
		t.Fatalf("expected single-flight cancel, got %d", eng.Cancels())
	}
	if ctrl.Playing() {
		t.Fatalf("expected optimistic not-playing after cancel")
	}
	eng.Complete(ctxID, model.PlaybackStopped)
	if state := waitState(t, done); state != model.PlaybackStopped {
		t.Fatalf("expected stopped, got %v", state)
	}
}

func TestControllerStopAllResolvesEveryWaiter(t *testing.T) {
	eng := testutil.NewFakeEngine()
	ctrl := playback.NewController(eng)

	_, done1, err := ctrl.Play([]model.MacroEvent{testutil.KeyDown(0, "A")}, playback.Options{})
	if err != nil {
		t.Fatalf("play 1: %v", err)
	}
	_, done2, err := ctrl.Play([]model.MacroEvent{testutil.KeyDown(0, "B")}, playback.Options{})
	if err != nil {
		t.Fatalf("play 2: %v", err)
	}

	eng.Complete("", model.PlaybackStopped)
	if state := waitState(t, done1); state != model.PlaybackStopped {
		t.Fatalf("expected stop-all to stop waiter 1, got %v", state)
	}
	if state := waitState(t, done2); state != model.PlaybackStopped {
		t.Fatalf("expected stop-all to stop waiter 2, got %v", state)
	}
	waitUntil(t, func() bool { return !ctrl.Playing() })
}

func TestControllerCurrentMacro(t *testing.T) {
	eng := testutil.NewFakeEngine()
	ctrl := playback.NewController(eng)

	ctxID, _, err := ctrl.Play([]model.MacroEvent{testutil.KeyDown(0, "A")}, playback.Options{MacroID: "m1"})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if id, ok := ctrl.CurrentMacro(); !ok || id != "m1" {
		t.Fatalf("expected current macro m1, got %q %v", id, ok)
	}
	eng.Complete(ctxID, model.PlaybackFinished)
	waitUntil(t, func() bool {
		_, ok := ctrl.CurrentMacro()
		return !ok
	})
}
