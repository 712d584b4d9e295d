package world

import (
	"sort"
	"sync"
)

const (
	// ChunkSize is the chunk side length in blocks; chunk coordinates are
	// block coordinates floor-divided by it.
	ChunkSize = 32
	// MaxHeight bounds the representable y coordinate inside a chunk.
	MaxHeight = 256
)

// ChunkKey identifies one chunk.
type ChunkKey struct {
	P, Q int
}

// ChunkKeyFor returns the key of the chunk owning block (x, z).
func ChunkKeyFor(x, z int) ChunkKey {
	return ChunkKey{P: FloorDiv(x, ChunkSize), Q: FloorDiv(z, ChunkSize)}
}

// Chunk holds one chunk's sparse block map. All access is serialized by the
// chunk's own mutex; distinct chunks never contend.
type Chunk struct {
	key ChunkKey

	once sync.Once

	mu       sync.Mutex
	blocks   map[uint32]uint16 // nil until populated
	revision uint64
	dirty    bool
}

// Key returns the chunk's coordinates.
func (c *Chunk) Key() ChunkKey { return c.key }

// set stores material w at local offset (lx, y, lz); zero removes. The
// revision advances only when stored state actually changes.
func (c *Chunk) set(lx, y, lz int, w uint16) {
	off := packOffset(lx, y, lz)
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, exists := c.blocks[off]
	if w == 0 {
		if !exists {
			return
		}
		delete(c.blocks, off)
	} else {
		if exists && cur == w {
			return
		}
		c.blocks[off] = w
	}
	c.revision++
	c.dirty = true
}

// get returns the material at local offset (lx, y, lz); zero means air.
func (c *Chunk) get(lx, y, lz int) uint16 {
	off := packOffset(lx, y, lz)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocks[off]
}

// Snapshot returns an immutable point-in-time copy of the chunk.
func (c *Chunk) Snapshot() ChunkSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Chunk) snapshotLocked() ChunkSnapshot {
	offs := make([]uint32, 0, len(c.blocks))
	for off := range c.blocks {
		offs = append(offs, off)
	}
	sort.Slice(offs, func(i, j int) bool { return offs[i] < offs[j] })
	mats := make([]uint16, len(offs))
	for i, off := range offs {
		mats[i] = c.blocks[off]
	}
	return ChunkSnapshot{
		P:         c.key.P,
		Q:         c.key.Q,
		Revision:  c.revision,
		Offsets:   offs,
		Materials: mats,
	}
}

// markClean clears the dirty flag if no edit landed since the snapshot at
// revision rev was taken.
func (c *Chunk) markClean(rev uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.revision == rev {
		c.dirty = false
	}
}

// ChunkSnapshot is an immutable copy of one chunk's contents. Offsets are
// sorted ascending with Materials parallel to them.
type ChunkSnapshot struct {
	P, Q      int
	Revision  uint64
	Offsets   []uint32
	Materials []uint16
}

// Len returns the number of stored blocks.
func (s ChunkSnapshot) Len() int { return len(s.Offsets) }

// At returns the i-th block in world coordinates.
func (s ChunkSnapshot) At(i int) (x, y, z int, w uint16) {
	lx, ly, lz := unpackOffset(s.Offsets[i])
	return s.P*ChunkSize + lx, ly, s.Q*ChunkSize + lz, s.Materials[i]
}

func packOffset(lx, y, lz int) uint32 {
	return uint32(y)<<10 | uint32(lx)<<5 | uint32(lz)
}

func unpackOffset(off uint32) (lx, y, lz int) {
	return int(off >> 5 & 31), int(off >> 10), int(off & 31)
}

// FloorDiv divides rounding toward negative infinity. b must be positive.
func FloorDiv(a, b int) int {
	q := a / b
	if a%b < 0 {
		q--
	}
	return q
}

// Mod returns the non-negative remainder of a by b. b must be positive.
func Mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
