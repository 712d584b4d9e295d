package world

import "testing"

func TestOffsetPackRoundTrip(t *testing.T) {
	cases := [][3]int{
		{0, 0, 0},
		{31, 0, 31},
		{3, 10, 3},
		{31, 255, 31},
		{15, 128, 7},
	}
	for _, c := range cases {
		lx, y, lz := unpackOffset(packOffset(c[0], c[1], c[2]))
		if lx != c[0] || y != c[1] || lz != c[2] {
			t.Fatalf("pack/unpack (%d,%d,%d) became (%d,%d,%d)", c[0], c[1], c[2], lx, y, lz)
		}
	}
}

func TestChunkKeyForNegativeCoords(t *testing.T) {
	cases := []struct {
		x, z int
		p, q int
	}{
		{0, 0, 0, 0},
		{31, 31, 0, 0},
		{32, 0, 1, 0},
		{-1, -1, -1, -1},
		{-32, -32, -1, -1},
		{-33, -33, -2, -2},
	}
	for _, c := range cases {
		k := ChunkKeyFor(c.x, c.z)
		if k.P != c.p || k.Q != c.q {
			t.Fatalf("ChunkKeyFor(%d,%d) = (%d,%d), want (%d,%d)", c.x, c.z, k.P, k.Q, c.p, c.q)
		}
	}
}

func TestChunkRevisionAdvancesOnlyOnChange(t *testing.T) {
	ch := &Chunk{key: ChunkKey{}, blocks: map[uint32]uint16{}}

	ch.set(3, 10, 3, 1)
	if ch.revision != 1 {
		t.Fatalf("revision after first set = %d, want 1", ch.revision)
	}
	ch.set(3, 10, 3, 1)
	if ch.revision != 1 {
		t.Fatalf("revision after identical set = %d, want 1", ch.revision)
	}
	ch.set(3, 10, 3, 2)
	if ch.revision != 2 {
		t.Fatalf("revision after replace = %d, want 2", ch.revision)
	}
	ch.set(3, 10, 3, 0)
	if ch.revision != 3 {
		t.Fatalf("revision after delete = %d, want 3", ch.revision)
	}
	ch.set(3, 10, 3, 0)
	if ch.revision != 3 {
		t.Fatalf("revision after deleting air = %d, want 3", ch.revision)
	}
	if got := ch.get(3, 10, 3); got != 0 {
		t.Fatalf("deleted block reads %d, want 0", got)
	}
}

func TestChunkSnapshotSortedAndImmutable(t *testing.T) {
	ch := &Chunk{key: ChunkKey{P: 1, Q: -2}, blocks: map[uint32]uint16{}}
	ch.set(5, 20, 5, 7)
	ch.set(0, 0, 0, 3)
	ch.set(31, 255, 31, 9)

	snap := ch.Snapshot()
	if snap.Len() != 3 {
		t.Fatalf("snapshot has %d blocks, want 3", snap.Len())
	}
	for i := 1; i < snap.Len(); i++ {
		if snap.Offsets[i-1] >= snap.Offsets[i] {
			t.Fatalf("offsets not strictly ascending at %d", i)
		}
	}
	x, y, z, w := snap.At(0)
	if x != 1*ChunkSize+0 || y != 0 || z != -2*ChunkSize+0 || w != 3 {
		t.Fatalf("At(0) = (%d,%d,%d,%d), want (32,0,-64,3)", x, y, z, w)
	}

	// A later edit must not show up in the copy already taken.
	ch.set(0, 0, 0, 4)
	if snap.Materials[0] != 3 {
		t.Fatalf("snapshot mutated by later edit: %d", snap.Materials[0])
	}
}

func TestMarkCleanOnlyAtMatchingRevision(t *testing.T) {
	ch := &Chunk{key: ChunkKey{}, blocks: map[uint32]uint16{}}
	ch.set(1, 1, 1, 1)
	snap := ch.Snapshot()

	ch.set(2, 2, 2, 2)
	ch.markClean(snap.Revision)
	if !ch.dirty {
		t.Fatalf("chunk edited past the snapshot must stay dirty")
	}

	snap = ch.Snapshot()
	ch.markClean(snap.Revision)
	if ch.dirty {
		t.Fatalf("chunk flushed at the current revision must be clean")
	}
}
