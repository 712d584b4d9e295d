// Command admin inspects and repairs the server's on-disk state while the
// server is stopped: chunk database statistics, offline backups, restores,
// and event log dumps.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"craftwell.io/internal/persistence/chunkdb"
	"craftwell.io/internal/persistence/eventlog"
	"craftwell.io/internal/persistence/snapshot"
	"craftwell.io/internal/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "stats":
			statsCmd(os.Args[2:])
			return
		case "chunks":
			chunksCmd(os.Args[2:])
			return
		case "export":
			exportCmd(os.Args[2:])
			return
		case "import":
			importCmd(os.Args[2:])
			return
		case "events":
			eventsCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: admin <stats|chunks|export|import|events> [flags]")
	os.Exit(2)
}

func openDB(path string) *chunkdb.DB {
	db, err := chunkdb.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open db:", err)
		os.Exit(1)
	}
	return db
}

func statsCmd(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	dbPath := fs.String("db", "./data/chunks.db", "chunk database path")
	_ = fs.Parse(args)

	db := openDB(*dbPath)
	defer db.Close()

	s, err := db.Stats()
	if err != nil {
		fmt.Fprintln(os.Stderr, "stats:", err)
		os.Exit(1)
	}
	seed, _, _ := db.Meta("seed")
	fmt.Printf("seed:         %s\n", seed)
	fmt.Printf("chunks:       %d\n", s.Chunks)
	fmt.Printf("blocks:       %d\n", s.Blocks)
	fmt.Printf("max revision: %d\n", s.MaxRevision)
}

func chunksCmd(args []string) {
	fs := flag.NewFlagSet("chunks", flag.ExitOnError)
	dbPath := fs.String("db", "./data/chunks.db", "chunk database path")
	_ = fs.Parse(args)

	db := openDB(*dbPath)
	defer db.Close()

	err := db.LoadAll(func(snap world.ChunkSnapshot) error {
		fmt.Printf("%d,%d\trev=%d\tblocks=%d\n", snap.P, snap.Q, snap.Revision, snap.Len())
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "load:", err)
		os.Exit(1)
	}
}

func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dbPath := fs.String("db", "./data/chunks.db", "chunk database path")
	outPath := fs.String("out", "", "output backup path (default: <unix>.snap.zst)")
	_ = fs.Parse(args)

	db := openDB(*dbPath)
	defer db.Close()

	var seed int64
	if raw, ok, _ := db.Meta("seed"); ok {
		seed, _ = strconv.ParseInt(raw, 10, 64)
	}

	var chunks []snapshot.ChunkV1
	err := db.LoadAll(func(snap world.ChunkSnapshot) error {
		chunks = append(chunks, snapshot.ChunkV1{
			P: snap.P, Q: snap.Q, Revision: snap.Revision,
			Offsets: snap.Offsets, Materials: snap.Materials,
		})
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "load:", err)
		os.Exit(1)
	}

	path := *outPath
	if path == "" {
		path = fmt.Sprintf("%d.snap.zst", time.Now().Unix())
	}
	if err := snapshot.WriteBackup(path, snapshot.NewBackup(seed, chunks)); err != nil {
		fmt.Fprintln(os.Stderr, "write backup:", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s: %d chunks\n", path, len(chunks))
}

func importCmd(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	dbPath := fs.String("db", "./data/chunks.db", "chunk database path")
	inPath := fs.String("in", "", "backup path to restore (required)")
	force := fs.Bool("force", false, "allow restoring into a non-empty database")
	_ = fs.Parse(args)

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "missing -in")
		os.Exit(2)
	}

	b, err := snapshot.ReadBackup(*inPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read backup:", err)
		os.Exit(1)
	}

	db := openDB(*dbPath)
	defer db.Close()

	s, err := db.Stats()
	if err != nil {
		fmt.Fprintln(os.Stderr, "stats:", err)
		os.Exit(1)
	}
	if s.Chunks > 0 && !*force {
		fmt.Fprintf(os.Stderr, "database already holds %d chunks; pass -force to overwrite\n", s.Chunks)
		os.Exit(2)
	}

	for _, c := range b.Chunks {
		snap := world.ChunkSnapshot{
			P: c.P, Q: c.Q, Revision: c.Revision,
			Offsets: c.Offsets, Materials: c.Materials,
		}
		if err := db.WriteChunk(snap); err != nil {
			fmt.Fprintf(os.Stderr, "write chunk (%d,%d): %v\n", c.P, c.Q, err)
			os.Exit(1)
		}
	}
	if err := db.SetMeta("seed", strconv.FormatInt(b.Header.Seed, 10)); err != nil {
		fmt.Fprintln(os.Stderr, "store seed:", err)
		os.Exit(1)
	}
	fmt.Printf("restored %d chunks from %s (seed %d)\n", len(b.Chunks), *inPath, b.Header.Seed)
}

func eventsCmd(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	dir := fs.String("dir", "./data/events", "event log directory")
	_ = fs.Parse(args)

	entries, err := eventlog.ReadAll(*dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read events:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			fmt.Fprintln(os.Stderr, "encode:", err)
			os.Exit(1)
		}
	}
}
