// Package chunkdb persists chunks to SQLite: one row per chunk keyed by
// (p, q), holding the revision and a deterministic block blob. Writes are
// transactional, so a crash mid-flush leaves the previous record intact and
// reloading twice yields identical world state.
package chunkdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"craftwell.io/internal/world"
)

// DB is the chunk database. It holds a single connection; SQLite serializes
// writers anyway and one connection avoids lock churn under WAL.
type DB struct {
	db *sql.DB
}

func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, storageErr("mkdir", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storageErr("open", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, storageErr("pragmas", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, storageErr("schema", err)
	}
	return &DB{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			p INTEGER NOT NULL,
			q INTEGER NOT NULL,
			revision INTEGER NOT NULL,
			blocks BLOB NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (p, q)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// SetMeta stores a key/value pair in the meta table.
func (d *DB) SetMeta(key, value string) error {
	_, err := d.db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`, key, value)
	return storageErr("set meta", err)
}

// Meta returns the stored value for key; ok reports whether it exists.
func (d *DB) Meta(key string) (string, bool, error) {
	var v string
	err := d.db.QueryRow(`SELECT value FROM meta WHERE key=?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageErr("read meta", err)
	}
	return v, true, nil
}

// ReadChunk implements world.Store.
func (d *DB) ReadChunk(p, q int) (world.ChunkSnapshot, bool, error) {
	var revision uint64
	var blob []byte
	err := d.db.QueryRow(`SELECT revision, blocks FROM chunks WHERE p=? AND q=?`, p, q).Scan(&revision, &blob)
	if err == sql.ErrNoRows {
		return world.ChunkSnapshot{}, false, nil
	}
	if err != nil {
		return world.ChunkSnapshot{}, false, storageErr("read chunk", err)
	}
	snap, err := decodeBlocks(p, q, revision, blob)
	if err != nil {
		return world.ChunkSnapshot{}, false, storageErr("decode chunk", err)
	}
	return snap, true, nil
}

// WriteChunk upserts one chunk record inside a transaction.
func (d *DB) WriteChunk(snap world.ChunkSnapshot) error {
	tx, err := d.db.Begin()
	if err != nil {
		return storageErr("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO chunks(p,q,revision,blocks,updated_at) VALUES(?,?,?,?,?)`,
		snap.P, snap.Q, int64(snap.Revision), encodeBlocks(snap), now,
	); err != nil {
		return storageErr("write chunk", err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

// LoadAll streams every stored chunk in key order.
func (d *DB) LoadAll(fn func(world.ChunkSnapshot) error) error {
	rows, err := d.db.Query(`SELECT p, q, revision, blocks FROM chunks ORDER BY p, q`)
	if err != nil {
		return storageErr("load", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p, q int
		var revision uint64
		var blob []byte
		if err := rows.Scan(&p, &q, &revision, &blob); err != nil {
			return storageErr("scan chunk", err)
		}
		snap, err := decodeBlocks(p, q, revision, blob)
		if err != nil {
			return storageErr("decode chunk", err)
		}
		if err := fn(snap); err != nil {
			return err
		}
	}
	return storageErr("load", rows.Err())
}

// Stats summarizes the stored world for admin tooling.
type Stats struct {
	Chunks      int
	Blocks      int
	MaxRevision uint64
}

func (d *DB) Stats() (Stats, error) {
	var s Stats
	err := d.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(blocks)),0), COALESCE(MAX(revision),0) FROM chunks`,
	).Scan(&s.Chunks, &s.Blocks, &s.MaxRevision)
	if err != nil {
		return s, storageErr("stats", err)
	}
	s.Blocks /= blockRecordSize
	return s, nil
}
