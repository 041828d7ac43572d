// Package postgres mirrors indicator tables into a long-format Postgres table
// for downstream SQL consumers.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/output"
)

const defaultTable = "etf_indicator_values"

// Config configures the sink.
type Config struct {
	DSN       string // e.g. "postgres://etl@localhost/etf?sslmode=disable"
	Table     string
	Precision int32 // negative selects model.DefaultPrecision
}

// Sink replaces the rows of one (tier, family, instrument) table per call.
// It implements model.TableSink and is safe for concurrent use.
type Sink struct {
	db        *sql.DB
	table     string
	precision int32
}

var _ model.TableSink = (*Sink)(nil)

// New connects, pings and creates the target table.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	s := newSink(db, cfg)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, s.createSQL()); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	log.Printf("[postgres] syncing tables into %s", s.table)
	return s, nil
}

func newSink(db *sql.DB, cfg Config) *Sink {
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	prec := cfg.Precision
	if prec < 0 {
		prec = model.DefaultPrecision
	}
	return &Sink{db: db, table: table, precision: prec}
}

var columns = []string{"tier", "family", "instrument_code", "trade_date", "field", "value", "calc_timestamp"}

func (s *Sink) createSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	tier            TEXT             NOT NULL,
	family          TEXT             NOT NULL,
	instrument_code TEXT             NOT NULL,
	trade_date      DATE             NOT NULL,
	field           TEXT             NOT NULL,
	value           DOUBLE PRECISION,
	calc_timestamp  TIMESTAMP        NOT NULL,
	PRIMARY KEY (tier, family, instrument_code, trade_date, field)
)`, pq.QuoteIdentifier(s.table))
}

func (s *Sink) deleteSQL() string {
	return fmt.Sprintf(`DELETE FROM %s WHERE tier = $1 AND family = $2 AND instrument_code = $3`,
		pq.QuoteIdentifier(s.table))
}

func (s *Sink) copySQL() string {
	return pq.CopyIn(s.table, columns...)
}

// SyncTable replaces the stored rows of t in one transaction using COPY.
func (s *Sink) SyncTable(ctx context.Context, tier string, t *model.Table) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.deleteSQL(), tier, t.Family, t.Code); err != nil {
		tx.Rollback()
		return fmt.Errorf("postgres delete %s/%s/%s: %w", tier, t.Family, t.Code, err)
	}

	stmt, err := tx.PrepareContext(ctx, s.copySQL())
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("postgres copy prepare: %w", err)
	}
	for _, r := range output.LongRows(t, s.precision) {
		var v interface{}
		if r.Value != nil {
			v = *r.Value
		}
		if _, err := stmt.ExecContext(ctx, tier, t.Family, t.Code, r.Date, r.Field, v, r.CalcTimestamp); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("postgres copy row: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		tx.Rollback()
		return fmt.Errorf("postgres copy flush: %w", err)
	}
	if err := stmt.Close(); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// DeleteTable removes every row of an instrument that left a tier.
func (s *Sink) DeleteTable(ctx context.Context, tier, family, code string) error {
	if _, err := s.db.ExecContext(ctx, s.deleteSQL(), tier, family, code); err != nil {
		return fmt.Errorf("postgres delete %s/%s/%s: %w", tier, family, code, err)
	}
	return nil
}

// Close closes the pool.
func (s *Sink) Close() error {
	return s.db.Close()
}
