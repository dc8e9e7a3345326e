package session_test

import (
	"errors"
	"reflect"
	"testing"

	"macrokit/internal/chord"
	"macrokit/internal/model"
	"macrokit/internal/playback"
	"macrokit/internal/session"
	"macrokit/internal/testutil"
)

func newSession(eng *testutil.FakeEngine) *session.Session {
	return session.New(eng, playback.NewController(eng), session.NewLog())
}

func TestSessionLifecycleLogOrder(t *testing.T) {
	eng := testutil.NewFakeEngine()
	log := session.NewLog()
	sess := session.New(eng, playback.NewController(eng), log)
	eng.Capture([]model.MacroEvent{
		testutil.KeyDown(0, "A"),
		testutil.KeyUp(40, "A"),
	})

	if err := sess.Start(session.TriggerUI); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sess.Stop(session.TriggerUI); err != nil {
		t.Fatalf("stop: %v", err)
	}
	seq, err := sess.Save("demo")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if seq.Name != "demo" || seq.ID == "" {
		t.Fatalf("expected named macro with id, got %+v", seq)
	}
	if seq.PlaybackSpeed != model.DefaultPlaybackSpeed || !seq.ScrollNormalized {
		t.Fatalf("expected default speed and normalized scroll, got %+v", seq)
	}

	want := []string{"Recording", "Capture ready", "Saved"}
	if got := log.Messages(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected log %v, got %v", want, got)
	}
}

func TestSessionStartWhileRecording(t *testing.T) {
	eng := testutil.NewFakeEngine()
	sess := newSession(eng)
	if err := sess.Start(session.TriggerUI); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sess.Start(session.TriggerUI); !errors.Is(err, session.ErrAlreadyRecording) {
		t.Fatalf("expected ErrAlreadyRecording, got %v", err)
	}
}

func TestSessionStartWhenRecorderBusyElsewhere(t *testing.T) {
	eng := testutil.NewFakeEngine()
	// Another process holds the recorder: simulate via a direct native start.
	if err := eng.StartRecording(); err != nil {
		t.Fatalf("seed native recording: %v", err)
	}
	log := session.NewLog()
	sess := session.New(eng, playback.NewController(eng), log)
	if err := sess.Start(session.TriggerUI); !errors.Is(err, session.ErrAlreadyRecording) {
		t.Fatalf("expected ErrAlreadyRecording, got %v", err)
	}
	msgs := log.Messages()
	if len(msgs) != 1 || msgs[0] != "Recorder busy in another window" {
		t.Fatalf("expected busy log entry, got %v", msgs)
	}
}

func TestSessionStartNativeFailureRevertsIdle(t *testing.T) {
	eng := testutil.NewFakeEngine()
	eng.StartErr = errors.New("tap denied")
	sess := newSession(eng)
	if err := sess.Start(session.TriggerUI); err == nil {
		t.Fatalf("expected start error")
	}
	st := sess.Status()
	if st.State != session.StateIdle || st.Recording {
		t.Fatalf("expected idle after native failure, got %+v", st)
	}
}

func TestSessionStopWithoutRecording(t *testing.T) {
	eng := testutil.NewFakeEngine()
	sess := newSession(eng)
	if err := sess.Stop(session.TriggerUI); !errors.Is(err, session.ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording, got %v", err)
	}
}

func TestSessionStopNativeFailureKeepsRecording(t *testing.T) {
	eng := testutil.NewFakeEngine()
	sess := newSession(eng)
	if err := sess.Start(session.TriggerUI); err != nil {
		t.Fatalf("start: %v", err)
	}
	eng.StopErr = errors.New("tap lost")
	if err := sess.Stop(session.TriggerUI); err == nil {
		t.Fatalf("expected stop error")
	}
	if st := sess.Status(); !st.Recording {
		t.Fatalf("expected still recording after native stop failure, got %+v", st)
	}
}

func TestSessionEmptyCaptureDiscarded(t *testing.T) {
	eng := testutil.NewFakeEngine()
	log := session.NewLog()
	sess := session.New(eng, playback.NewController(eng), log)
	if err := sess.Start(session.TriggerUI); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sess.Stop(session.TriggerUI); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if st := sess.Status(); st.State != session.StateIdle {
		t.Fatalf("expected idle after empty capture, got %+v", st)
	}
	msgs := log.Messages()
	if msgs[len(msgs)-1] != "Empty capture discarded" {
		t.Fatalf("expected empty-capture log, got %v", msgs)
	}
	if _, err := sess.Save("x"); !errors.Is(err, session.ErrNoCapture) {
		t.Fatalf("expected ErrNoCapture, got %v", err)
	}
}

func TestSessionHotkeyTrimsApplied(t *testing.T) {
	eng := testutil.NewFakeEngine()
	sess := newSession(eng)
	sess.SetMatcherSource(func() *chord.Matcher {
		return chord.NewMatcher("Ctrl+Shift+M")
	})
	eng.Capture([]model.MacroEvent{
		testutil.KeyDown(10, "Ctrl+Shift+M"),
		testutil.KeyUp(15, "Ctrl+Shift"),
		testutil.MouseDown(300, model.ButtonLeft),
	})

	if err := sess.Start(session.TriggerHotkey); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sess.Stop(session.TriggerHotkey); err != nil {
		t.Fatalf("stop: %v", err)
	}
	pending, ok := sess.Pending()
	if !ok {
		t.Fatalf("expected pending capture")
	}
	if len(pending) != 1 || pending[0].Kind != model.KindMouseDown || pending[0].OffsetMs != 0 {
		t.Fatalf("expected trimmed rebased capture, got %+v", pending)
	}
}

func TestSessionUITriggeredCaptureKeepsChordPresses(t *testing.T) {
	eng := testutil.NewFakeEngine()
	sess := newSession(eng)
	sess.SetMatcherSource(func() *chord.Matcher {
		return chord.NewMatcher("Ctrl+Shift+M")
	})
	eng.Capture([]model.MacroEvent{
		testutil.KeyDown(10, "Ctrl+Shift+M"),
		testutil.MouseDown(300, model.ButtonLeft),
	})

	if err := sess.Start(session.TriggerUI); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sess.Stop(session.TriggerUI); err != nil {
		t.Fatalf("stop: %v", err)
	}
	pending, _ := sess.Pending()
	if len(pending) != 2 {
		t.Fatalf("expected untrimmed UI capture, got %+v", pending)
	}
}

func TestSessionCaptureReadyHook(t *testing.T) {
	eng := testutil.NewFakeEngine()
	sess := newSession(eng)
	var gotCount int
	sess.OnCaptureReady(func(count int) { gotCount = count })
	eng.Capture([]model.MacroEvent{
		testutil.KeyDown(0, "A"),
		testutil.KeyUp(40, "A"),
	})
	if err := sess.Start(session.TriggerUI); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sess.Stop(session.TriggerUI); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if gotCount != 2 {
		t.Fatalf("expected capture-ready hook with 2 events, got %d", gotCount)
	}
}

func TestSessionPlayOnceKeepsCapture(t *testing.T) {
	eng := testutil.NewFakeEngine()
	sess := newSession(eng)
	eng.Capture([]model.MacroEvent{testutil.KeyDown(0, "A")})
	if err := sess.Start(session.TriggerUI); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sess.Stop(session.TriggerUI); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := sess.PlayOnce(); err != nil {
		t.Fatalf("play once: %v", err)
	}
	if st := sess.Status(); st.State != session.StateCaptureReady {
		t.Fatalf("expected capture still ready after play, got %+v", st)
	}
	if plays := eng.Plays(); len(plays) != 1 {
		t.Fatalf("expected one play, got %+v", plays)
	}
}

func TestSessionDiscard(t *testing.T) {
	eng := testutil.NewFakeEngine()
	sess := newSession(eng)
	eng.Capture([]model.MacroEvent{testutil.KeyDown(0, "A")})
	if err := sess.Start(session.TriggerUI); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sess.Stop(session.TriggerUI); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := sess.Discard(); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, ok := sess.Pending(); ok {
		t.Fatalf("expected no pending capture after discard")
	}
}

func TestSessionToggle(t *testing.T) {
	eng := testutil.NewFakeEngine()
	sess := newSession(eng)
	eng.Capture([]model.MacroEvent{testutil.KeyDown(0, "A")})
	sess.Toggle(session.TriggerHotkey)
	if st := sess.Status(); !st.Recording {
		t.Fatalf("expected toggle to start recording, got %+v", st)
	}
	sess.Toggle(session.TriggerHotkey)
	if st := sess.Status(); st.Recording {
		t.Fatalf("expected toggle to stop recording, got %+v", st)
	}
}

func TestSessionStatusCountsKeyEvents(t *testing.T) {
	eng := testutil.NewFakeEngine()
	sess := newSession(eng)
	eng.Capture([]model.MacroEvent{
		testutil.KeyDown(0, "A"),
		testutil.MouseMove(10, 5, 5),
		testutil.KeyUp(20, "A"),
	})
	if err := sess.Start(session.TriggerUI); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sess.Stop(session.TriggerUI); err != nil {
		t.Fatalf("stop: %v", err)
	}
	st := sess.Status()
	if st.PendingEvents != 3 || st.PendingKeyEvents != 2 {
		t.Fatalf("expected 3 events / 2 key events, got %+v", st)
	}
}
