package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// WriterConfig configures the SQLite run ledger.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/runs.db"
}

// Writer records batch runs in SQLite. It implements model.RunRecorder.
type Writer struct {
	db *sql.DB
}

var _ model.RunRecorder = (*Writer)(nil)

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens the ledger in WAL mode and creates the schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", dsn(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened run ledger at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func dsn(path string) string {
	if path == ":memory:" {
		return "file::memory:?cache=shared&_busy_timeout=5000"
	}
	return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id        TEXT    PRIMARY KEY,
			started_at    INTEGER NOT NULL,
			finished_at   INTEGER NOT NULL,
			instruments   INTEGER NOT NULL,
			units         INTEGER NOT NULL,
			ok            INTEGER NOT NULL,
			failed        INTEGER NOT NULL,
			skipped       INTEGER NOT NULL,
			removed       INTEGER NOT NULL,
			hits          INTEGER NOT NULL,
			extends       INTEGER NOT NULL,
			full_recomputes INTEGER NOT NULL,
			fallbacks     INTEGER NOT NULL,
			dropped_rows  INTEGER NOT NULL,
			stale_sources INTEGER NOT NULL,
			success_ratio REAL    NOT NULL
		);

		CREATE TABLE IF NOT EXISTS unit_outcomes (
			run_id      TEXT    NOT NULL,
			code        TEXT    NOT NULL,
			tier        TEXT    NOT NULL,
			family      TEXT    NOT NULL,
			status      TEXT    NOT NULL,
			action      TEXT    NOT NULL,
			reason      TEXT,
			err_kind    TEXT,
			row_count   INTEGER,
			new_rows    INTEGER,
			fallback    INTEGER,
			last_date   TEXT,
			duration_ms INTEGER,
			PRIMARY KEY (run_id, code, tier, family)
		);

		CREATE INDEX IF NOT EXISTS idx_unit_outcomes_code ON unit_outcomes (code, family);
	`)
	return err
}

// RecordRun stores the summary and all unit outcomes in one transaction.
func (w *Writer) RecordRun(ctx context.Context, s *model.RunSummary) error {
	start := time.Now()
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (run_id, started_at, finished_at, instruments, units, ok, failed,
			skipped, removed, hits, extends, full_recomputes, fallbacks, dropped_rows, stale_sources, success_ratio)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.RunID, s.Started.Unix(), s.Finished.Unix(), s.Instruments, s.Units, s.OK, s.Failed,
		s.Skipped, s.Removed, s.Hits, s.Extends, s.Full, s.Fallbacks, s.DroppedRows, s.StaleSources, s.SuccessRatio())
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO unit_outcomes (run_id, code, tier, family, status, action, reason,
			err_kind, row_count, new_rows, fallback, last_date, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, o := range s.Outcomes {
		lastDate := ""
		if o.Latest != nil {
			lastDate = model.FormatDate(o.Latest.Date)
		}
		_, err := stmt.ExecContext(ctx, s.RunID, o.Code, o.Tier, o.Family, string(o.Status), string(o.Action),
			o.Reason, o.ErrKind, o.Rows, o.NewRows, o.Fallback, lastDate, o.Duration.Milliseconds())
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert outcome %s/%s/%s: %w", o.Tier, o.Family, o.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	log.Printf("[sqlite] recorded run %s (%d outcomes) in %v", s.RunID, len(s.Outcomes), time.Since(start))
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
