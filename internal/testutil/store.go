package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"macrokit/internal/model"
	"macrokit/internal/store"
)

func NewStore(t *testing.T) (*store.Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "macrokit-test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	if err := store.ApplyMigrations(ctx, st.DB()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return st, ctx
}

// SeedMacro builds a minimal saved macro with a single key press/release pair.
func SeedMacro(id, name string) model.MacroSequence {
	return model.MacroSequence{
		ID:   id,
		Name: name,
		Events: []model.MacroEvent{
			KeyDown(0, "A"),
			KeyUp(40, "A"),
		},
		PlaybackSpeed:    model.DefaultPlaybackSpeed,
		ScrollNormalized: true,
	}
}

// SeedMacroAt is SeedMacro with a pinned last-run time, handy for equality
// assertions across persistence round trips.
func SeedMacroAt(id, name string, lastRun time.Time) model.MacroSequence {
	m := SeedMacro(id, name)
	lr := lastRun.UTC()
	m.LastRun = &lr
	return m
}
