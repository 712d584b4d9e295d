package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"craftwell.io/internal/catalog"
	"craftwell.io/internal/persistence/chunkdb"
	"craftwell.io/internal/persistence/eventlog"
	"craftwell.io/internal/persistence/snapshot"
	"craftwell.io/internal/player"
	"craftwell.io/internal/server"
	"craftwell.io/internal/transport/ws"
	"craftwell.io/internal/tuning"
	"craftwell.io/internal/world"
)

func main() {
	var (
		listen      = flag.String("listen", "", "game listen address (default from tuning)")
		opsListen   = flag.String("ops_listen", "", "ops http listen address (default from tuning, empty string in tuning disables)")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (empty: built-in defaults)")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		catalogPath = flag.String("catalog", "", "path to materials catalog json (empty: built-in table)")
		seed        = flag.Int64("seed", 0, "terrain seed (used only when starting a fresh world)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune := tuning.Defaults()
	if *tuningPath != "" {
		var err error
		tune, err = tuning.Load(*tuningPath)
		if err != nil {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	if *listen != "" {
		tune.Listen = *listen
	}
	if *opsListen != "" {
		tune.OpsListen = *opsListen
	}
	if *seed != 0 {
		tune.Seed = *seed
	}

	cat := catalog.Default()
	if *catalogPath != "" {
		var err error
		cat, err = catalog.Load(*catalogPath)
		if err != nil {
			logger.Fatalf("load catalog: %v", err)
		}
	}
	grass, ok1 := cat.ID("GRASS")
	dirt, ok2 := cat.ID("DIRT")
	stone, ok3 := cat.ID("STONE")
	if !ok1 || !ok2 || !ok3 {
		logger.Fatalf("catalog missing terrain materials (GRASS/DIRT/STONE)")
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}
	db, err := chunkdb.Open(filepath.Join(*dataDir, "chunks.db"))
	if err != nil {
		logger.Fatalf("open chunk db: %v", err)
	}
	defer db.Close()

	// The seed is pinned on first start; terrain regenerated later must match
	// what was persisted.
	if stored, ok, err := db.Meta("seed"); err != nil {
		logger.Fatalf("read seed: %v", err)
	} else if ok {
		v, perr := strconv.ParseInt(stored, 10, 64)
		if perr != nil {
			logger.Fatalf("stored seed %q: %v", stored, perr)
		}
		if v != tune.Seed {
			logger.Printf("seed %d ignored, world was created with %d", tune.Seed, v)
		}
		tune.Seed = v
	} else if err := db.SetMeta("seed", strconv.FormatInt(tune.Seed, 10)); err != nil {
		logger.Fatalf("store seed: %v", err)
	}

	w := world.New(world.Options{
		Gen: world.Generator{
			Seed:   tune.Seed,
			Ground: tune.World.Ground,
			Relief: tune.World.Relief,
			Grass:  grass,
			Dirt:   dirt,
			Stone:  stone,
		},
		MinY:  tune.World.MinY,
		MaxY:  tune.World.MaxY,
		Store: db,
		Log:   logger,
	})
	if err := db.LoadAll(func(snap world.ChunkSnapshot) error {
		w.InstallChunk(snap)
		return nil
	}); err != nil {
		logger.Fatalf("load chunks: %v", err)
	}
	logger.Printf("world ready: seed=%d chunks=%d", tune.Seed, w.ChunkCount())

	events := eventlog.NewLogger(filepath.Join(*dataDir, "events"), logger)
	defer events.Close()

	srv := server.New(server.Config{
		Addr:         tune.Listen,
		MOTD:         tune.MOTD,
		DayLength:    tune.DayLength,
		IdleTimeout:  time.Duration(tune.Net.IdleTimeoutS) * time.Second,
		WriteTimeout: time.Duration(tune.Net.WriteTimeoutS) * time.Second,
		QueueDepth:   tune.Net.QueueDepth,
		ChatRate:     tune.Chat.RatePerS,
		ChatBurst:    tune.Chat.Burst,
	}, w, player.NewRegistry(), events, logger)
	if err := srv.Listen(); err != nil {
		logger.Fatalf("listen %s: %v", tune.Listen, err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	engine := chunkdb.NewEngine(db, w,
		time.Duration(tune.Persist.FlushIntervalS)*time.Second,
		tune.Persist.FlushDirtyThreshold, logger)
	engineDone := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(engineDone)
	}()

	backupDir := filepath.Join(*dataDir, "backups")
	if tune.Persist.BackupIntervalS > 0 {
		go runBackups(ctx, w, tune.Seed, backupDir, time.Duration(tune.Persist.BackupIntervalS)*time.Second, logger)
	}

	if tune.OpsListen != "" {
		go runOps(ctx, srv, w, engine, db, logger, tune.OpsListen)
	}

	start := time.Now()
	if err := srv.Serve(ctx); err != nil {
		logger.Fatalf("serve: %v", err)
	}

	// Shutdown: wait for the final flush, then leave one last backup behind.
	<-engineDone
	if tune.Persist.BackupIntervalS > 0 {
		if err := writeBackup(w, tune.Seed, backupDir); err != nil {
			logger.Printf("final backup: %v", err)
		}
	}
	logger.Printf("shutdown after %s", time.Since(start).Round(time.Second))
}

func runOps(ctx context.Context, srv *server.Server, w *world.World, engine *chunkdb.Engine, db *chunkdb.DB, logger *log.Logger, addr string) {
	start := time.Now()
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{
			"ok":       true,
			"uptime_s": int(time.Since(start).Seconds()),
			"players":  srv.Players(),
			"chunks":   w.ChunkCount(),
		})
	})

	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		srv.Metrics().WritePrometheus(rw)

		fmt.Fprintf(rw, "# HELP craftwell_players Registered players.\n")
		fmt.Fprintf(rw, "# TYPE craftwell_players gauge\n")
		fmt.Fprintf(rw, "craftwell_players %d\n", srv.Players())

		fmt.Fprintf(rw, "# HELP craftwell_world_chunks Loaded chunk count.\n")
		fmt.Fprintf(rw, "# TYPE craftwell_world_chunks gauge\n")
		fmt.Fprintf(rw, "craftwell_world_chunks %d\n", w.ChunkCount())

		fmt.Fprintf(rw, "# HELP craftwell_world_chunks_dirty Chunks awaiting a flush.\n")
		fmt.Fprintf(rw, "# TYPE craftwell_world_chunks_dirty gauge\n")
		fmt.Fprintf(rw, "craftwell_world_chunks_dirty %d\n", w.DirtyCount())

		es := engine.Stats()
		fmt.Fprintf(rw, "# HELP craftwell_flushes_total Persistence flush cycles.\n")
		fmt.Fprintf(rw, "# TYPE craftwell_flushes_total counter\n")
		fmt.Fprintf(rw, "craftwell_flushes_total %d\n", es.Flushes)
		fmt.Fprintf(rw, "# HELP craftwell_flush_errors_total Chunk writes that failed during a flush.\n")
		fmt.Fprintf(rw, "# TYPE craftwell_flush_errors_total counter\n")
		fmt.Fprintf(rw, "craftwell_flush_errors_total %d\n", es.FlushErrors)
		fmt.Fprintf(rw, "# HELP craftwell_chunks_written_total Chunk rows written.\n")
		fmt.Fprintf(rw, "# TYPE craftwell_chunks_written_total counter\n")
		fmt.Fprintf(rw, "craftwell_chunks_written_total %d\n", es.ChunksWritten)
		fmt.Fprintf(rw, "# HELP craftwell_last_flush_timestamp_seconds Unix time of the last flush.\n")
		fmt.Fprintf(rw, "# TYPE craftwell_last_flush_timestamp_seconds gauge\n")
		fmt.Fprintf(rw, "craftwell_last_flush_timestamp_seconds %d\n", es.LastFlushUnix)

		if ds, err := db.Stats(); err == nil {
			fmt.Fprintf(rw, "# HELP craftwell_db_chunks Chunk rows in the database.\n")
			fmt.Fprintf(rw, "# TYPE craftwell_db_chunks gauge\n")
			fmt.Fprintf(rw, "craftwell_db_chunks %d\n", ds.Chunks)
			fmt.Fprintf(rw, "# HELP craftwell_db_blocks Blocks stored across all chunk rows.\n")
			fmt.Fprintf(rw, "# TYPE craftwell_db_blocks gauge\n")
			fmt.Fprintf(rw, "craftwell_db_blocks %d\n", ds.Blocks)
		}
	})

	mux.HandleFunc("/ws", ws.NewServer(func(nc net.Conn) { srv.HandleConn(ctx, nc) }, logger).Handler())

	if envBool("CW_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	hs := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = hs.Shutdown(ctx2)
	}()
	logger.Printf("ops listening on %s", addr)
	if err := hs.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Printf("ops server: %v", err)
	}
}

func runBackups(ctx context.Context, w *world.World, seed int64, dir string, interval time.Duration, logger *log.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := writeBackup(w, seed, dir); err != nil {
				logger.Printf("backup: %v", err)
			}
		}
	}
}

func writeBackup(w *world.World, seed int64, dir string) error {
	snaps := w.AllSnapshots()
	chunks := make([]snapshot.ChunkV1, 0, len(snaps))
	for _, s := range snaps {
		chunks = append(chunks, snapshot.ChunkV1{
			P: s.P, Q: s.Q, Revision: s.Revision,
			Offsets: s.Offsets, Materials: s.Materials,
		})
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.snap.zst", time.Now().Unix()))
	return snapshot.WriteBackup(path, snapshot.NewBackup(seed, chunks))
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
