// Package world owns the authoritative voxel state: a map of sparse chunks
// with per-chunk serialization, default terrain generation, and dirty
// tracking for the persistence engine.
package world

import (
	"io"
	"log"
	"sort"
	"sync"
)

// Store supplies previously persisted chunk contents during load-on-demand.
type Store interface {
	// ReadChunk returns the stored snapshot for (p, q); ok reports whether a
	// record exists.
	ReadChunk(p, q int) (ChunkSnapshot, bool, error)
}

// Options configures a World.
type Options struct {
	Gen   Generator
	MinY  int // inclusive lower vertical bound
	MaxY  int // inclusive upper vertical bound; zero means MaxHeight-1
	Store Store
	Log   *log.Logger
}

// World is the single authoritative copy of block state. Connection
// handlers mutate it only through its synchronized operations.
type World struct {
	log   *log.Logger
	gen   Generator
	store Store
	minY  int
	maxY  int

	mu     sync.RWMutex
	chunks map[ChunkKey]*Chunk
}

func New(o Options) *World {
	if o.MaxY <= 0 {
		o.MaxY = MaxHeight - 1
	}
	if o.Log == nil {
		o.Log = log.New(io.Discard, "", 0)
	}
	return &World{
		log:    o.Log,
		gen:    o.Gen,
		store:  o.Store,
		minY:   o.MinY,
		maxY:   o.MaxY,
		chunks: make(map[ChunkKey]*Chunk),
	}
}

// GetOrLoadChunk returns chunk (p, q), populating it from the store or the
// generator on first reference. Populating one chunk never blocks access to
// other chunks.
func (w *World) GetOrLoadChunk(p, q int) *Chunk {
	k := ChunkKey{P: p, Q: q}
	w.mu.RLock()
	ch := w.chunks[k]
	w.mu.RUnlock()
	if ch == nil {
		w.mu.Lock()
		if ch = w.chunks[k]; ch == nil {
			ch = &Chunk{key: k}
			w.chunks[k] = ch
		}
		w.mu.Unlock()
	}
	ch.once.Do(func() { w.populate(ch) })
	return ch
}

func (w *World) populate(ch *Chunk) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.blocks != nil {
		return
	}
	if w.store != nil {
		snap, ok, err := w.store.ReadChunk(ch.key.P, ch.key.Q)
		if err != nil {
			w.log.Printf("chunk (%d,%d): store read failed, generating: %v", ch.key.P, ch.key.Q, err)
		} else if ok {
			ch.blocks = snap.toMap()
			ch.revision = snap.Revision
			return
		}
	}
	w.gen.fill(ch)
}

// SetBlock stores material wmat at (x, y, z), marks the owning chunk dirty,
// and returns its coordinates for fan-out. Material zero removes the block;
// placing over an existing block replaces it.
func (w *World) SetBlock(x, y, z int, wmat uint16) (p, q int, err error) {
	if y < w.minY || y > w.maxY {
		return 0, 0, &OutOfRangeError{X: x, Y: y, Z: z, MinY: w.minY, MaxY: w.maxY}
	}
	k := ChunkKeyFor(x, z)
	ch := w.GetOrLoadChunk(k.P, k.Q)
	ch.set(Mod(x, ChunkSize), y, Mod(z, ChunkSize), wmat)
	return k.P, k.Q, nil
}

// GetBlock returns the material at (x, y, z); zero means air or out of
// bounds.
func (w *World) GetBlock(x, y, z int) uint16 {
	if y < w.minY || y > w.maxY {
		return 0
	}
	k := ChunkKeyFor(x, z)
	return w.GetOrLoadChunk(k.P, k.Q).get(Mod(x, ChunkSize), y, Mod(z, ChunkSize))
}

// SnapshotChunk returns an immutable copy of chunk (p, q), loading it first
// if needed.
func (w *World) SnapshotChunk(p, q int) ChunkSnapshot {
	return w.GetOrLoadChunk(p, q).Snapshot()
}

// InstallChunk seeds a chunk from persisted state at startup. The chunk
// arrives clean.
func (w *World) InstallChunk(snap ChunkSnapshot) {
	k := ChunkKey{P: snap.P, Q: snap.Q}
	ch := &Chunk{key: k, blocks: snap.toMap(), revision: snap.Revision}
	w.mu.Lock()
	w.chunks[k] = ch
	w.mu.Unlock()
}

// DirtySnapshots returns key-ordered snapshots of every chunk with
// unflushed edits.
func (w *World) DirtySnapshots() []ChunkSnapshot {
	var out []ChunkSnapshot
	for _, ch := range w.loadedChunks() {
		ch.mu.Lock()
		if ch.dirty && ch.blocks != nil {
			out = append(out, ch.snapshotLocked())
		}
		ch.mu.Unlock()
	}
	return out
}

// AllSnapshots returns key-ordered snapshots of every loaded chunk.
func (w *World) AllSnapshots() []ChunkSnapshot {
	var out []ChunkSnapshot
	for _, ch := range w.loadedChunks() {
		ch.mu.Lock()
		if ch.blocks != nil {
			out = append(out, ch.snapshotLocked())
		}
		ch.mu.Unlock()
	}
	return out
}

func (w *World) loadedChunks() []*Chunk {
	w.mu.RLock()
	chunks := make([]*Chunk, 0, len(w.chunks))
	for _, ch := range w.chunks {
		chunks = append(chunks, ch)
	}
	w.mu.RUnlock()
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].key.P != chunks[j].key.P {
			return chunks[i].key.P < chunks[j].key.P
		}
		return chunks[i].key.Q < chunks[j].key.Q
	})
	return chunks
}

// MarkClean clears the dirty flag of chunk (p, q) unless an edit landed
// after revision rev.
func (w *World) MarkClean(p, q int, rev uint64) {
	w.mu.RLock()
	ch := w.chunks[ChunkKey{P: p, Q: q}]
	w.mu.RUnlock()
	if ch != nil {
		ch.markClean(rev)
	}
}

// ChunkCount returns the number of loaded chunks.
func (w *World) ChunkCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.chunks)
}

// DirtyCount returns the number of chunks awaiting flush.
func (w *World) DirtyCount() int {
	n := 0
	for _, ch := range w.loadedChunks() {
		ch.mu.Lock()
		if ch.dirty {
			n++
		}
		ch.mu.Unlock()
	}
	return n
}

func (s ChunkSnapshot) toMap() map[uint32]uint16 {
	m := make(map[uint32]uint16, len(s.Offsets))
	for i, off := range s.Offsets {
		m[off] = s.Materials[i]
	}
	return m
}
