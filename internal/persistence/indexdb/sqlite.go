package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelterra.ai/internal/sim/world"
)

// SQLiteIndex is a queryable read model of world builds and served chunks.
// JSONL chunk logs remain the source of truth; the index may drop rows under load.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan world.ChunkServed
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTotal      atomic.Uint64
	writeFailTotal atomic.Uint64
}

type SQLiteStats struct {
	QueueDepth     int
	QueueCapacity  int
	DropTotal      uint64
	WriteFailTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan world.ChunkServed, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-only workload.
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
		`CREATE TABLE IF NOT EXISTS worlds (
			id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			world_w INTEGER NOT NULL,
			world_h INTEGER NOT NULL,
			sea_level REAL NOT NULL,
			tuning_digest TEXT NOT NULL,
			grid_digest TEXT NOT NULL,
			build_ms INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunk_serves (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			world_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			cx INTEGER NOT NULL,
			cy INTEGER NOT NULL,
			ok INTEGER NOT NULL,
			code TEXT,
			base_z INTEGER NOT NULL,
			layers INTEGER NOT NULL,
			digest TEXT,
			bytes INTEGER NOT NULL,
			gen_us INTEGER NOT NULL,
			served_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunk_serves_key ON chunk_serves(world_id, cx, cy);`,
		`CREATE INDEX IF NOT EXISTS idx_chunk_serves_session ON chunk_serves(session_id, seq);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordWorld upserts a world build row synchronously.
func (s *SQLiteIndex) RecordWorld(rec world.WorldRecord) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	_, err := s.db.ExecContext(context.Background(),
		`INSERT OR REPLACE INTO worlds(id,seed,world_w,world_h,sea_level,tuning_digest,grid_digest,build_ms,created_at) VALUES(?,?,?,?,?,?,?,?,?)`,
		rec.ID, int64(rec.Seed), rec.WorldW, rec.WorldH, float64(rec.SeaLevel), rec.TuningDigest, rec.GridDigest, rec.BuildMillis, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record world %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteIndex) RecordChunkServed(rec world.ChunkServed) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- rec:
	default:
		s.dropTotal.Add(1)
	}
}

func (s *SQLiteIndex) Stats() SQLiteStats {
	if s == nil {
		return SQLiteStats{}
	}
	return SQLiteStats{
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
		DropTotal:      s.dropTotal.Load(),
		WriteFailTotal: s.writeFailTotal.Load(),
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertServe, _ := s.db.Prepare(`INSERT INTO chunk_serves(world_id,session_id,cx,cy,ok,code,base_z,layers,digest,bytes,gen_us,served_at) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertServe != nil {
			_ = insertServe.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeFailTotal.Add(uint64(opCount))
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.writeFailTotal.Add(uint64(opCount) + 1)
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	// Commit on size, on age, or when the queue drains so readers see rows promptly.
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil || insertServe == nil {
			s.writeFailTotal.Add(1)
			continue
		}
		ok := 0
		if r.OK {
			ok = 1
		}
		if _, err := tx.Stmt(insertServe).Exec(
			r.WorldID,
			r.SessionID,
			r.Key[0], r.Key[1],
			ok,
			r.Code,
			r.BaseZ,
			r.Layers,
			r.Digest,
			r.Bytes,
			r.GenMicros,
			r.ServedAt,
		); err != nil {
			rollback()
			continue
		}
		opCount++
		flushIfNeeded()
	}

	commit()
}
