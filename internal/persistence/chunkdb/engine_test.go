package chunkdb

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"craftwell.io/internal/world"
)

func contextWithCancel() (context.Context, context.CancelFunc) {
	return context.WithCancel(context.Background())
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func testWorld() *world.World {
	return world.New(world.Options{Gen: world.Generator{Seed: 5, Ground: 12, Relief: 4, Grass: 1, Dirt: 7, Stone: 3}})
}

func TestFlushPersistsAndClearsDirty(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "world.db"))
	w := testWorld()
	e := NewEngine(db, w, time.Minute, 0, nil)

	if _, _, err := w.SetBlock(3, 30, 3, 4); err != nil {
		t.Fatalf("set: %v", err)
	}
	if n := e.Flush(); n != 1 {
		t.Fatalf("flushed %d chunks, want 1", n)
	}
	if w.DirtyCount() != 0 {
		t.Fatalf("chunk still dirty after flush")
	}
	// Nothing dirty: the next pass is a no-op.
	if n := e.Flush(); n != 0 {
		t.Fatalf("idle flush wrote %d chunks", n)
	}

	got, ok, err := db.ReadChunk(0, 0)
	if err != nil || !ok {
		t.Fatalf("read back: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, w.SnapshotChunk(0, 0)) {
		t.Fatalf("persisted chunk differs from live snapshot")
	}
}

func TestEditDuringFlushKeepsChunkDirty(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "world.db"))
	w := testWorld()
	e := NewEngine(db, w, time.Minute, 0, nil)

	if _, _, err := w.SetBlock(1, 30, 1, 4); err != nil {
		t.Fatalf("set: %v", err)
	}
	snap := w.DirtySnapshots()[0]

	// A write lands between snapshot and MarkClean: the stale revision must
	// not clear the flag.
	if _, _, err := w.SetBlock(1, 31, 1, 5); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := db.WriteChunk(snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.MarkClean(snap.P, snap.Q, snap.Revision)
	if w.DirtyCount() != 1 {
		t.Fatalf("later edit was lost by a stale MarkClean")
	}

	// The engine's next pass picks up the newer revision.
	if n := e.Flush(); n != 1 {
		t.Fatalf("flush after late edit wrote %d chunks, want 1", n)
	}
	got, _, err := db.ReadChunk(0, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(got, w.SnapshotChunk(0, 0)) {
		t.Fatalf("final persisted state misses the late edit")
	}
}

func TestFlushFailureRetainsDirtyStateAndCounts(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "world.db"))
	w := testWorld()
	e := NewEngine(db, w, time.Minute, 0, nil)

	if _, _, err := w.SetBlock(2, 30, 2, 6); err != nil {
		t.Fatalf("set: %v", err)
	}
	_ = db.Close()

	if n := e.Flush(); n != 0 {
		t.Fatalf("flush against a closed db wrote %d chunks", n)
	}
	s := e.Stats()
	if s.FlushErrors == 0 {
		t.Fatalf("flush error not counted")
	}
	if w.DirtyCount() != 1 {
		t.Fatalf("failed flush cleared the dirty flag")
	}
}

func TestRunFlushesOnDirtyThresholdAndShutdown(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "world.db"))
	w := testWorld()
	e := NewEngine(db, w, time.Hour, 1, nil)

	ctx, cancel := contextWithCancel()
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	if _, _, err := w.SetBlock(7, 30, 7, 4); err != nil {
		t.Fatalf("set: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return w.DirtyCount() == 0 })

	// Shutdown runs one final pass over anything still dirty.
	if _, _, err := w.SetBlock(8, 30, 8, 4); err != nil {
		t.Fatalf("set: %v", err)
	}
	cancel()
	<-done
	if w.DirtyCount() != 0 {
		t.Fatalf("final flush skipped a dirty chunk")
	}
}
