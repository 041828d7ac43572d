package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the batch coordinator from concrete stores
// (SQLite, Redis, Postgres). All of them are optional collaborators that run
// after the per-unit work has finished.

// RunRecorder persists the outcome of a batch run.
type RunRecorder interface {
	// RecordRun stores the summary and every unit outcome of one run.
	RecordRun(ctx context.Context, s *RunSummary) error

	// Close releases underlying resources.
	Close() error
}

// LatestPublisher makes the most recent indicator row of each unit available
// to low-latency consumers.
type LatestPublisher interface {
	// PublishLatest writes the latest row of every unit that produced one.
	PublishLatest(ctx context.Context, outcomes []UnitOutcome) error

	// PublishSummary announces a finished run.
	PublishSummary(ctx context.Context, s *RunSummary) error

	// Close releases underlying resources.
	Close() error
}

// TableSink mirrors indicator tables into a downstream store.
type TableSink interface {
	// SyncTable upserts the rows of one (tier, family, instrument) table.
	SyncTable(ctx context.Context, tier string, t *Table) error

	// DeleteTable removes a table that left its tier.
	DeleteTable(ctx context.Context, tier, family, code string) error

	// Close releases underlying resources.
	Close() error
}
