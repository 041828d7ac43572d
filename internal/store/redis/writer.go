package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
)

const (
	defaultLatestTTL = 7 * 24 * time.Hour
	pipelineBatch    = 500
	runStreamMaxLen  = 1000

	// SummaryChannel receives one message per finished run.
	SummaryChannel = "pub:etfind:run"
	runStream      = "etfind:runs"
)

// WriterConfig configures the Redis publisher.
type WriterConfig struct {
	Addr      string // Redis address, e.g. "localhost:6379"
	Password  string
	DB        int
	LatestTTL time.Duration
	Precision int32 // decimals in published values; negative selects the default
}

// Writer publishes the latest indicator row of every unit and a summary of
// every run. It implements model.LatestPublisher; all calls go through a
// circuit breaker so a dead Redis costs one timeout, not one per unit.
type Writer struct {
	client    *goredis.Client
	cb        *CircuitBreaker
	ttl       time.Duration
	precision int32
}

var _ model.LatestPublisher = (*Writer)(nil)

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// Breaker exposes the circuit breaker so callers can hook state changes.
func (w *Writer) Breaker() *CircuitBreaker { return w.cb }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg WriterConfig) *Writer {
	ttl := cfg.LatestTTL
	if ttl <= 0 {
		ttl = defaultLatestTTL
	}
	prec := cfg.Precision
	if prec < 0 {
		prec = model.DefaultPrecision
	}
	return &Writer{
		client:    client,
		cb:        NewCircuitBreaker(3, 30*time.Second),
		ttl:       ttl,
		precision: prec,
	}
}

// LatestKey is the key holding the newest row of one unit.
func LatestKey(tier, family, code string) string {
	return "ind:latest:" + tier + ":" + family + ":" + code
}

// UpdateChannel is the pubsub channel announcing new rows of one family in one tier.
func UpdateChannel(tier, family string) string {
	return "pub:ind:" + tier + ":" + family
}

// LatestPayload is the JSON document stored under LatestKey.
type LatestPayload struct {
	Code          string            `json:"instrument_code"`
	Tier          string            `json:"tier"`
	Family        string            `json:"family"`
	Date          string            `json:"date"`
	Values        map[string]string `json:"values"` // fixed decimals; nulls omitted
	CalcTimestamp string            `json:"calc_timestamp"`
	Action        string            `json:"action"`
}

// NewLatestPayload builds the payload for o, or returns false when o has no row.
func NewLatestPayload(o model.UnitOutcome, precision int32) (LatestPayload, bool) {
	if o.Latest == nil || len(o.Fields) != len(o.Latest.Values) {
		return LatestPayload{}, false
	}
	p := LatestPayload{
		Code:          o.Code,
		Tier:          o.Tier,
		Family:        o.Family,
		Date:          model.FormatDate(o.Latest.Date),
		Values:        make(map[string]string, len(o.Fields)),
		CalcTimestamp: o.Latest.CalcTime.Format(model.TimestampLayout),
		Action:        string(o.Action),
	}
	for i, f := range o.Fields {
		if s := model.FormatValue(o.Latest.Values[i], precision); s != "" {
			p.Values[f] = s
		}
	}
	return p, true
}

// PublishLatest writes the newest row of each unit (SET with TTL), deletes
// the keys of removed units and announces non-cached changes on the family
// channel. Pipelines are flushed every pipelineBatch units.
func (w *Writer) PublishLatest(ctx context.Context, outcomes []model.UnitOutcome) error {
	for start := 0; start < len(outcomes); start += pipelineBatch {
		end := start + pipelineBatch
		if end > len(outcomes) {
			end = len(outcomes)
		}
		batch := outcomes[start:end]
		err := w.cb.Execute(func() error {
			return w.writeLatestBatch(ctx, batch)
		})
		if err != nil {
			return fmt.Errorf("redis publish latest [%d:%d]: %w", start, end, err)
		}
	}
	return nil
}

func (w *Writer) writeLatestBatch(ctx context.Context, batch []model.UnitOutcome) error {
	pipe := w.client.Pipeline()
	queued := 0
	for _, o := range batch {
		key := LatestKey(o.Tier, o.Family, o.Code)
		if o.Action == model.ActionRemoved {
			pipe.Del(ctx, key)
			queued++
			continue
		}
		p, ok := NewLatestPayload(o, w.precision)
		if !ok {
			continue
		}
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		pipe.Set(ctx, key, data, w.ttl)
		if o.Action != model.ActionCacheHit {
			pipe.Publish(ctx, UpdateChannel(o.Tier, o.Family), data)
		}
		queued++
	}
	if queued == 0 {
		return nil
	}
	_, err := pipe.Exec(ctx)
	return err
}

// RunMessage is the summary document published per run.
type RunMessage struct {
	RunID        string  `json:"run_id"`
	Started      string  `json:"started"`
	Finished     string  `json:"finished"`
	Instruments  int     `json:"instruments"`
	Units        int     `json:"units"`
	OK           int     `json:"ok"`
	Failed       int     `json:"failed"`
	Skipped      int     `json:"skipped"`
	Hits         int     `json:"hits"`
	Extends      int     `json:"extends"`
	Full         int     `json:"full_recomputes"`
	SuccessRatio float64 `json:"success_ratio"`
}

// NewRunMessage flattens a summary for publishing.
func NewRunMessage(s *model.RunSummary) RunMessage {
	return RunMessage{
		RunID:        s.RunID,
		Started:      s.Started.Format(time.RFC3339),
		Finished:     s.Finished.Format(time.RFC3339),
		Instruments:  s.Instruments,
		Units:        s.Units,
		OK:           s.OK,
		Failed:       s.Failed,
		Skipped:      s.Skipped,
		Hits:         s.Hits,
		Extends:      s.Extends,
		Full:         s.Full,
		SuccessRatio: s.SuccessRatio(),
	}
}

// PublishSummary appends the run to a capped stream and publishes it.
func (w *Writer) PublishSummary(ctx context.Context, s *model.RunSummary) error {
	data, err := json.Marshal(NewRunMessage(s))
	if err != nil {
		return err
	}
	return w.cb.Execute(func() error {
		pipe := w.client.Pipeline()
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: runStream,
			MaxLen: runStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": string(data)},
		})
		pipe.Set(ctx, "etfind:run:latest", data, 0)
		pipe.Publish(ctx, SummaryChannel, data)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// Close closes the client.
func (w *Writer) Close() error {
	return w.client.Close()
}
