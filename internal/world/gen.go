package world

// Generator produces default terrain for chunks with no stored record: a
// ground slab whose surface height varies by a seeded hash, stone at depth,
// dirt strata, a grass cap. The same (seed, x, z) always yields the same
// column, so regeneration is idempotent.
type Generator struct {
	Seed   int64
	Ground int // lowest surface height
	Relief int // surface height spread in blocks

	Grass uint16
	Dirt  uint16
	Stone uint16
}

// SurfaceY returns the terrain surface height of column (x, z).
func (g Generator) SurfaceY(x, z int) int {
	spread := g.Relief
	if spread <= 0 {
		spread = 1
	}
	return g.Ground + int(hash2(g.Seed, x, z)%uint64(spread))
}

// fill writes the terrain pattern into an unpopulated chunk. The caller
// holds the chunk lock.
func (g Generator) fill(ch *Chunk) {
	ch.blocks = make(map[uint32]uint16, ChunkSize*ChunkSize)
	baseX := ch.key.P * ChunkSize
	baseZ := ch.key.Q * ChunkSize
	for lz := 0; lz < ChunkSize; lz++ {
		for lx := 0; lx < ChunkSize; lx++ {
			h := g.SurfaceY(baseX+lx, baseZ+lz)
			if h >= MaxHeight {
				h = MaxHeight - 1
			}
			for y := 0; y <= h; y++ {
				w := g.Stone
				switch {
				case y == h:
					w = g.Grass
				case y >= h-3:
					w = g.Dirt
				}
				if w == 0 {
					continue
				}
				ch.blocks[packOffset(lx, y, lz)] = w
			}
		}
	}
	ch.revision = 1
	ch.dirty = true
}

func mix64(v uint64) uint64 {
	v += 0x9e3779b97f4a7c15
	v = (v ^ (v >> 30)) * 0xbf58476d1ce4e5b9
	v = (v ^ (v >> 27)) * 0x94d049bb133111eb
	return v ^ (v >> 31)
}

func hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	return mix64(uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9))
}
