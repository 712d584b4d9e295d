package chunkdb

import (
	"encoding/binary"
	"fmt"

	"craftwell.io/internal/world"
)

// Block records are stored as a single blob per chunk: 6 bytes per block,
// little-endian packed offset (4) then material id (2), sorted by offset.
// Sorting makes the encoding deterministic, so identical chunk contents
// always produce identical blobs.
const blockRecordSize = 6

func encodeBlocks(snap world.ChunkSnapshot) []byte {
	buf := make([]byte, 0, snap.Len()*blockRecordSize)
	for i, off := range snap.Offsets {
		var rec [blockRecordSize]byte
		binary.LittleEndian.PutUint32(rec[0:4], off)
		binary.LittleEndian.PutUint16(rec[4:6], snap.Materials[i])
		buf = append(buf, rec[:]...)
	}
	return buf
}

func decodeBlocks(p, q int, revision uint64, blob []byte) (world.ChunkSnapshot, error) {
	if len(blob)%blockRecordSize != 0 {
		return world.ChunkSnapshot{}, fmt.Errorf("chunk (%d,%d): blob length %d is not a record multiple", p, q, len(blob))
	}
	n := len(blob) / blockRecordSize
	snap := world.ChunkSnapshot{
		P:         p,
		Q:         q,
		Revision:  revision,
		Offsets:   make([]uint32, n),
		Materials: make([]uint16, n),
	}
	var prev uint32
	for i := 0; i < n; i++ {
		rec := blob[i*blockRecordSize:]
		off := binary.LittleEndian.Uint32(rec[0:4])
		if i > 0 && off <= prev {
			return world.ChunkSnapshot{}, fmt.Errorf("chunk (%d,%d): offsets not strictly ascending at record %d", p, q, i)
		}
		prev = off
		snap.Offsets[i] = off
		snap.Materials[i] = binary.LittleEndian.Uint16(rec[4:6])
	}
	return snap, nil
}
