package world

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestSetBlockLastWriteWins(t *testing.T) {
	w := New(Options{Gen: testGen(1)})

	for i := uint16(1); i <= 5; i++ {
		if _, _, err := w.SetBlock(3, 40, 3, i); err != nil {
			t.Fatalf("set failed: %v", err)
		}
	}
	if got := w.GetBlock(3, 40, 3); got != 5 {
		t.Fatalf("final material = %d, want 5", got)
	}

	// Concurrent writers to one coordinate: the stored value must be one of
	// the written values, and a subsequent serialized write always wins.
	var wg sync.WaitGroup
	for i := 1; i <= 32; i++ {
		wg.Add(1)
		go func(m uint16) {
			defer wg.Done()
			if _, _, err := w.SetBlock(9, 50, 9, m); err != nil {
				t.Errorf("concurrent set failed: %v", err)
			}
		}(uint16(i))
	}
	wg.Wait()
	got := w.GetBlock(9, 50, 9)
	if got < 1 || got > 32 {
		t.Fatalf("stored material %d was never written", got)
	}
	if _, _, err := w.SetBlock(9, 50, 9, 99); err != nil {
		t.Fatalf("final set failed: %v", err)
	}
	if got := w.GetBlock(9, 50, 9); got != 99 {
		t.Fatalf("last write did not win: got %d", got)
	}
}

func TestSetBlockReturnsOwningChunk(t *testing.T) {
	w := New(Options{Gen: testGen(1)})
	p, q, err := w.SetBlock(-1, 30, 65, 4)
	if err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if p != -1 || q != 2 {
		t.Fatalf("owning chunk = (%d,%d), want (-1,2)", p, q)
	}
}

func TestSetBlockOutOfRange(t *testing.T) {
	w := New(Options{Gen: testGen(1), MinY: 0, MaxY: 255})
	for _, y := range []int{-1, 256, 4000} {
		_, _, err := w.SetBlock(0, y, 0, 1)
		var oor *OutOfRangeError
		if !errors.As(err, &oor) {
			t.Fatalf("y=%d: expected OutOfRangeError, got %v", y, err)
		}
	}
	// The rejected edits left no trace.
	if w.GetBlock(0, 256, 0) != 0 {
		t.Fatalf("out of range read should be air")
	}
}

func TestSnapshotIdempotentAndConsistent(t *testing.T) {
	w := New(Options{Gen: testGen(7)})
	if _, _, err := w.SetBlock(3, 10, 3, 1); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	a := w.SnapshotChunk(0, 0)
	b := w.SnapshotChunk(0, 0)
	if a.Revision != b.Revision || a.Len() != b.Len() {
		t.Fatalf("back-to-back snapshots differ: rev %d/%d len %d/%d", a.Revision, b.Revision, a.Len(), b.Len())
	}
	for i := range a.Offsets {
		if a.Offsets[i] != b.Offsets[i] || a.Materials[i] != b.Materials[i] {
			t.Fatalf("back-to-back snapshots differ at %d", i)
		}
	}

	found := false
	for i := 0; i < a.Len(); i++ {
		x, y, z, m := a.At(i)
		if x == 3 && y == 10 && z == 3 {
			found = m == 1
		}
	}
	if !found {
		t.Fatalf("snapshot missing the applied edit")
	}
}

func TestChunksAreIndependent(t *testing.T) {
	w := New(Options{Gen: testGen(3)})
	before := w.SnapshotChunk(1, 1)
	if _, _, err := w.SetBlock(3, 40, 3, 9); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	after := w.SnapshotChunk(1, 1)
	if before.Revision != after.Revision || before.Len() != after.Len() {
		t.Fatalf("edit in chunk (0,0) disturbed chunk (1,1)")
	}
}

func TestDirtyTrackingAndMarkClean(t *testing.T) {
	w := New(Options{Gen: testGen(5)})
	w.SnapshotChunk(0, 0) // generation marks dirty
	if n := w.DirtyCount(); n != 1 {
		t.Fatalf("dirty count after generation = %d, want 1", n)
	}

	snaps := w.DirtySnapshots()
	if len(snaps) != 1 {
		t.Fatalf("dirty snapshots = %d, want 1", len(snaps))
	}
	w.MarkClean(snaps[0].P, snaps[0].Q, snaps[0].Revision)
	if n := w.DirtyCount(); n != 0 {
		t.Fatalf("dirty count after flush = %d, want 0", n)
	}

	if _, _, err := w.SetBlock(1, 20, 1, 2); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if n := w.DirtyCount(); n != 1 {
		t.Fatalf("dirty count after edit = %d, want 1", n)
	}
}

type fakeStore struct {
	snaps map[ChunkKey]ChunkSnapshot
	errs  map[ChunkKey]error
}

func (s *fakeStore) ReadChunk(p, q int) (ChunkSnapshot, bool, error) {
	k := ChunkKey{P: p, Q: q}
	if err := s.errs[k]; err != nil {
		return ChunkSnapshot{}, false, err
	}
	snap, ok := s.snaps[k]
	return snap, ok, nil
}

func TestGetOrLoadChunkPrefersStore(t *testing.T) {
	stored := ChunkSnapshot{
		P: 2, Q: -1, Revision: 17,
		Offsets:   []uint32{packOffset(4, 12, 4)},
		Materials: []uint16{11},
	}
	st := &fakeStore{snaps: map[ChunkKey]ChunkSnapshot{{P: 2, Q: -1}: stored}}
	w := New(Options{Gen: testGen(9), Store: st})

	snap := w.SnapshotChunk(2, -1)
	if snap.Revision != 17 || snap.Len() != 1 || snap.Materials[0] != 11 {
		t.Fatalf("expected stored chunk, got rev=%d len=%d", snap.Revision, snap.Len())
	}
	// Loaded chunks are clean until edited.
	if n := w.DirtyCount(); n != 0 {
		t.Fatalf("dirty count after load = %d, want 0", n)
	}
}

func TestGetOrLoadChunkGeneratesOnStoreError(t *testing.T) {
	st := &fakeStore{errs: map[ChunkKey]error{{P: 0, Q: 0}: fmt.Errorf("disk gone")}}
	w := New(Options{Gen: testGen(9), Store: st})
	snap := w.SnapshotChunk(0, 0)
	if snap.Len() == 0 {
		t.Fatalf("expected generated terrain fallback")
	}
}

func TestInstallChunkArrivesClean(t *testing.T) {
	w := New(Options{Gen: testGen(4)})
	w.InstallChunk(ChunkSnapshot{
		P: 0, Q: 0, Revision: 5,
		Offsets:   []uint32{packOffset(1, 2, 3)},
		Materials: []uint16{8},
	})
	snap := w.SnapshotChunk(0, 0)
	if snap.Revision != 5 || snap.Len() != 1 {
		t.Fatalf("installed chunk rev=%d len=%d, want 5/1", snap.Revision, snap.Len())
	}
	if n := w.DirtyCount(); n != 0 {
		t.Fatalf("installed chunk should be clean, dirty=%d", n)
	}
	if got := w.GetBlock(1, 2, 3); got != 8 {
		t.Fatalf("installed block = %d, want 8", got)
	}
}
