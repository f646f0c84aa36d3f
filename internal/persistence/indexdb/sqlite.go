// Package indexdb maintains a sqlite index of runs, their per-block
// measures, and their final metrics. The JSONL history files remain the
// source of truth; this index exists for querying across runs.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tomslee/ridehail-sub001/internal/sim/engine"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type req struct {
	row blockRow

	// flush, when set, asks the writer to commit and reply.
	flush chan struct{}
}

type blockRow struct {
	RunID        string
	Block        int
	VehicleCount int
	RequestRate  float64
	Price        float64
	Measures     engine.Measures
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
		// High buffer: a fast headless run emits blocks quicker than
		// sqlite commits them.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
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
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			scenario TEXT NOT NULL,
			started_at TEXT NOT NULL,
			city_size INTEGER NOT NULL,
			vehicle_count INTEGER NOT NULL,
			base_demand REAL NOT NULL,
			time_blocks INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			config_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS history (
			run_id TEXT NOT NULL,
			block INTEGER NOT NULL,
			vehicle_count INTEGER NOT NULL,
			request_rate REAL NOT NULL,
			price REAL NOT NULL,
			vehicle_fraction_p1 REAL NOT NULL,
			vehicle_fraction_p2 REAL NOT NULL,
			vehicle_fraction_p3 REAL NOT NULL,
			mean_wait_time REAL NOT NULL,
			mean_ride_time REAL NOT NULL,
			wait_fraction REAL NOT NULL,
			completed_per_block REAL NOT NULL,
			PRIMARY KEY (run_id, block)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_history_run ON history(run_id);`,
		`CREATE TABLE IF NOT EXISTS metrics (
			run_id TEXT NOT NULL,
			name TEXT NOT NULL,
			value REAL NOT NULL,
			PRIMARY KEY (run_id, name)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_name ON metrics(name);`,
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

// RecordRun registers a run before its first block. Synchronous: the
// caller wants the row present before history rows arrive.
func (s *SQLiteIndex) RecordRun(runID, scenario string, cfg engine.Config) error {
	if s == nil {
		return nil
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO runs(run_id,scenario,started_at,city_size,vehicle_count,base_demand,time_blocks,seed,config_json)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		runID,
		scenario,
		time.Now().UTC().Format(time.RFC3339Nano),
		cfg.CitySize,
		cfg.VehicleCount,
		cfg.BaseDemand,
		cfg.TimeBlocks,
		cfg.Seed,
		string(cfgJSON),
	)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`)
	return err
}

// WriteBlock enqueues one block's measures. Never blocks the sim loop.
func (s *SQLiteIndex) WriteBlock(runID string, snap engine.BlockSnapshot) {
	if s == nil || s.closed.Load() {
		return
	}
	r := blockRow{
		RunID:        runID,
		Block:        snap.Block,
		VehicleCount: snap.VehicleCount,
		RequestRate:  snap.RequestRate,
		Price:        snap.Price,
		Measures:     snap.Measures,
	}
	select {
	case s.ch <- req{row: r}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
	}
}

// RecordResults stores the final named metrics of a run. Synchronous,
// called once at run end after Flush.
func (s *SQLiteIndex) RecordResults(runID string, metrics map[string]float64) error {
	if s == nil {
		return nil
	}
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO metrics(run_id,name,value) VALUES(?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for name, value := range metrics {
		if _, err := stmt.Exec(runID, name, value); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Flush waits until every block row enqueued before the call has been
// committed.
func (s *SQLiteIndex) Flush() {
	if s == nil || s.closed.Load() {
		return
	}
	done := make(chan struct{})
	s.ch <- req{flush: done}
	<-done
}

// BlockCount reports how many history rows a run has. Used by callers
// that verify a run was fully indexed.
func (s *SQLiteIndex) BlockCount(runID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM history WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

// Metric reads one final metric back.
func (s *SQLiteIndex) Metric(runID, name string) (float64, error) {
	var v float64
	err := s.db.QueryRow(`SELECT value FROM metrics WHERE run_id = ? AND name = ?`, runID, name).Scan(&v)
	return v, err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertBlock, _ := s.db.Prepare(`INSERT OR REPLACE INTO history(
		run_id,block,vehicle_count,request_rate,price,
		vehicle_fraction_p1,vehicle_fraction_p2,vehicle_fraction_p3,
		mean_wait_time,mean_ride_time,wait_fraction,completed_per_block
	) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertBlock != nil {
			_ = insertBlock.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
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
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for q := range s.ch {
		if q.flush != nil {
			commit()
			close(q.flush)
			continue
		}
		begin()
		if tx == nil || insertBlock == nil {
			continue
		}
		r := q.row
		m := r.Measures
		if _, err := tx.Stmt(insertBlock).Exec(
			r.RunID,
			r.Block,
			r.VehicleCount,
			r.RequestRate,
			r.Price,
			m.VehicleFractionP1,
			m.VehicleFractionP2,
			m.VehicleFractionP3,
			m.MeanWaitTime,
			m.MeanRideTime,
			m.WaitFraction,
			m.CompletedPerBlock,
		); err != nil {
			rollback()
			continue
		}
		opCount++
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
