package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// RunRecord is one row of the runs table.
type RunRecord struct {
	RunID        string
	Started      time.Time
	Finished     time.Time
	Instruments  int
	Units        int
	OK           int
	Failed       int
	Skipped      int
	Hits         int
	Extends      int
	Full         int
	SuccessRatio float64
}

// UnitRecord is one recorded unit outcome.
type UnitRecord struct {
	RunID    string
	Tier     string
	Family   string
	Status   string
	Action   string
	Reason   string
	Rows     int
	LastDate string
}

// Reader provides read-only access to the run ledger.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// RecentRuns returns up to limit runs, newest first.
func (r *Reader) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, instruments, units, ok, failed, skipped,
			hits, extends, full_recomputes, success_ratio
		FROM runs
		ORDER BY started_at DESC, run_id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var started, finished int64
		if err := rows.Scan(&rec.RunID, &started, &finished, &rec.Instruments, &rec.Units, &rec.OK,
			&rec.Failed, &rec.Skipped, &rec.Hits, &rec.Extends, &rec.Full, &rec.SuccessRatio); err != nil {
			return nil, fmt.Errorf("sqlite scan runs: %w", err)
		}
		rec.Started = time.Unix(started, 0).UTC()
		rec.Finished = time.Unix(finished, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UnitHistory returns the recorded outcomes of one instrument and family,
// newest run first.
func (r *Reader) UnitHistory(ctx context.Context, code, family string, limit int) ([]UnitRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.run_id, u.tier, u.family, u.status, u.action, COALESCE(u.reason, ''), COALESCE(u.row_count, 0),
			COALESCE(u.last_date, '')
		FROM unit_outcomes u JOIN runs r ON r.run_id = u.run_id
		WHERE u.code = ? AND u.family = ?
		ORDER BY r.started_at DESC, u.tier ASC
		LIMIT ?
	`, code, family, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query unit_outcomes: %w", err)
	}
	defer rows.Close()

	var out []UnitRecord
	for rows.Next() {
		var u UnitRecord
		if err := rows.Scan(&u.RunID, &u.Tier, &u.Family, &u.Status, &u.Action, &u.Reason, &u.Rows, &u.LastDate); err != nil {
			return nil, fmt.Errorf("sqlite scan unit_outcomes: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}
