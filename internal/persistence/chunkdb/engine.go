package chunkdb

import (
	"context"
	"io"
	"log"
	"sync/atomic"
	"time"

	"craftwell.io/internal/world"
)

// Engine flushes dirty chunks to the database on a timer or when the dirty
// count crosses a threshold. A failed write is logged and stays dirty for
// the next cycle; the serving path is never blocked and in-memory state is
// never dropped.
type Engine struct {
	db    *DB
	world *world.World
	log   *log.Logger

	interval  time.Duration
	threshold int

	flushes       atomic.Int64
	flushErrors   atomic.Int64
	chunksWritten atomic.Int64
	lastFlushUnix atomic.Int64
}

// EngineStats is a point-in-time copy of the engine's counters.
type EngineStats struct {
	Flushes       int64
	FlushErrors   int64
	ChunksWritten int64
	LastFlushUnix int64
}

func NewEngine(db *DB, w *world.World, interval time.Duration, dirtyThreshold int, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Engine{
		db:        db,
		world:     w,
		log:       logger,
		interval:  interval,
		threshold: dirtyThreshold,
	}
}

// Run drives periodic flushes until ctx is cancelled, then performs one
// final best-effort flush.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			e.Flush()
			return
		case <-ticker.C:
			due := time.Since(last) >= e.interval
			if !due && e.threshold > 0 {
				due = e.world.DirtyCount() >= e.threshold
			}
			if due {
				e.Flush()
				last = time.Now()
			}
		}
	}
}

// Flush writes every dirty chunk once and returns how many were persisted.
// Chunks whose write failed remain dirty.
func (e *Engine) Flush() int {
	dirty := e.world.DirtySnapshots()
	if len(dirty) == 0 {
		return 0
	}
	e.flushes.Add(1)
	written := 0
	for _, snap := range dirty {
		if err := e.db.WriteChunk(snap); err != nil {
			e.flushErrors.Add(1)
			e.log.Printf("flush chunk (%d,%d): %v", snap.P, snap.Q, err)
			continue
		}
		e.world.MarkClean(snap.P, snap.Q, snap.Revision)
		written++
	}
	e.chunksWritten.Add(int64(written))
	e.lastFlushUnix.Store(time.Now().Unix())
	if written > 0 {
		e.log.Printf("flushed %d/%d dirty chunks", written, len(dirty))
	}
	return written
}

func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Flushes:       e.flushes.Load(),
		FlushErrors:   e.flushErrors.Load(),
		ChunksWritten: e.chunksWritten.Load(),
		LastFlushUnix: e.lastFlushUnix.Load(),
	}
}
