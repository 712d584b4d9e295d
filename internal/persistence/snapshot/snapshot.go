// Package snapshot reads and writes whole-world backup files: a JSON header
// line followed by a gob body, both through a zstd stream. Backups are a
// coarse complement to the per-chunk database, used for offline export,
// import, and disaster recovery.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

type Header struct {
	Version   int    `json:"version"`
	CreatedAt string `json:"created_at"`
	Seed      int64  `json:"seed"`
	Chunks    int    `json:"chunks"`
}

type Backup struct {
	Header Header    `json:"header"`
	Chunks []ChunkV1 `json:"chunks"`
}

type ChunkV1 struct {
	P         int      `json:"p"`
	Q         int      `json:"q"`
	Revision  uint64   `json:"revision"`
	Offsets   []uint32 `json:"offsets"`
	Materials []uint16 `json:"materials"`
}

// NewBackup stamps a version-1 header over the given chunks.
func NewBackup(seed int64, chunks []ChunkV1) Backup {
	return Backup{
		Header: Header{
			Version:   1,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
			Seed:      seed,
			Chunks:    len(chunks),
		},
		Chunks: chunks,
	}
}

// WriteBackup writes b to path via a temp file and rename, so a crash
// mid-write never leaves a half-written backup under the final name.
func WriteBackup(path string, b Backup) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	err = writeBody(f, b)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeBody(f *os.File, b Backup) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(b.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&b); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadBackup(path string) (Backup, error) {
	var b Backup
	f, err := os.Open(path)
	if err != nil {
		return b, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return b, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line exists for quick inspection; the gob body repeats it.
	if _, err := br.ReadBytes('\n'); err != nil {
		return b, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&b); err != nil {
		return b, fmt.Errorf("gob decode: %w", err)
	}
	return b, nil
}

// ReadHeader decodes only the JSON header line, without the body.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
