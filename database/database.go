// Package database persists benchmark runs and their per-iteration timings.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB handles database operations
type DB struct {
	Db *sql.DB
}

// RunRecord represents one harness run in the database
type RunRecord struct {
	ID         int64
	Timestamp  time.Time
	Workload   string
	Args       string
	Iterations int
	MinNs      int64
	MaxNs      int64
	MeanNs     int64
	MedianNs   int64
}

// TimingRecord is one iteration's elapsed time within a run
type TimingRecord struct {
	RunID     int64
	Iteration int
	ElapsedNs int64
}

func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	dbPath := filepath.Join(dataDir, "snapbench.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %v", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %v", err)
	}

	return &DB{Db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp  DATETIME NOT NULL,
		workload   TEXT NOT NULL,
		args       TEXT,
		iterations INTEGER NOT NULL,
		min_ns     INTEGER,
		max_ns     INTEGER,
		mean_ns    INTEGER,
		median_ns  INTEGER
	);

	CREATE TABLE IF NOT EXISTS timings (
		run_id    INTEGER NOT NULL,
		iteration INTEGER NOT NULL,
		elapsed_ns INTEGER NOT NULL,
		FOREIGN KEY(run_id) REFERENCES runs(id)
	);`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %v", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);",
		"CREATE INDEX IF NOT EXISTS idx_runs_workload ON runs(workload);",
		"CREATE INDEX IF NOT EXISTS idx_timings_run ON timings(run_id);",
	}

	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %v", err)
		}
	}

	return nil
}

// InsertRun stores a run's summary and returns its id.
func (db *DB) InsertRun(rec *RunRecord) (int64, error) {
	result, err := db.Db.Exec(`
		INSERT INTO runs (timestamp, workload, args, iterations, min_ns, max_ns, mean_ns, median_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp, rec.Workload, rec.Args, rec.Iterations,
		rec.MinNs, rec.MaxNs, rec.MeanNs, rec.MedianNs,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %v", err)
	}
	return result.LastInsertId()
}

// InsertTimings stores the per-iteration timing sequence of a run.
func (db *DB) InsertTimings(runID int64, times []time.Duration) error {
	tx, err := db.Db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}

	stmt, err := tx.Prepare("INSERT INTO timings (run_id, iteration, elapsed_ns) VALUES (?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %v", err)
	}
	defer stmt.Close()

	for i, t := range times {
		if _, err := stmt.Exec(runID, i, t.Nanoseconds()); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert timing %d: %v", i, err)
		}
	}

	return tx.Commit()
}

// Runs returns the most recent runs, newest first.
func (db *DB) Runs(limit int) ([]RunRecord, error) {
	rows, err := db.Db.Query(`
		SELECT id, timestamp, workload, args, iterations, min_ns, max_ns, mean_ns, median_ns
		FROM runs ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %v", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Workload, &r.Args, &r.Iterations,
			&r.MinNs, &r.MaxNs, &r.MeanNs, &r.MedianNs); err != nil {
			return nil, fmt.Errorf("failed to scan run: %v", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Timings returns a run's iteration timings in iteration order.
func (db *DB) Timings(runID int64) ([]TimingRecord, error) {
	rows, err := db.Db.Query(`
		SELECT run_id, iteration, elapsed_ns
		FROM timings WHERE run_id = ? ORDER BY iteration`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query timings: %v", err)
	}
	defer rows.Close()

	var timings []TimingRecord
	for rows.Next() {
		var t TimingRecord
		if err := rows.Scan(&t.RunID, &t.Iteration, &t.ElapsedNs); err != nil {
			return nil, fmt.Errorf("failed to scan timing: %v", err)
		}
		timings = append(timings, t)
	}
	return timings, rows.Err()
}

// JoinArgs flattens an argv for storage.
func JoinArgs(argv []string) string {
	return strings.Join(argv, " ")
}

func (db *DB) Close() error {
	return db.Db.Close()
}
