package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
)

func TestSQLBuilders(t *testing.T) {
	s := newSink(nil, Config{})
	assert.Equal(t, defaultTable, s.table)

	create := s.createSQL()
	assert.Contains(t, create, `CREATE TABLE IF NOT EXISTS "etf_indicator_values"`)
	assert.Contains(t, create, "PRIMARY KEY (tier, family, instrument_code, trade_date, field)")

	assert.Equal(t,
		`DELETE FROM "etf_indicator_values" WHERE tier = $1 AND family = $2 AND instrument_code = $3`,
		s.deleteSQL())
	assert.Equal(t,
		`COPY "etf_indicator_values" ("tier", "family", "instrument_code", "trade_date", "field", "value", "calc_timestamp") FROM STDIN`,
		s.copySQL())
}

func TestSQLBuilders_QuotesCustomTable(t *testing.T) {
	s := newSink(nil, Config{Table: `ind"values`, Precision: 4})
	assert.Equal(t, int32(4), s.precision)
	assert.Contains(t, s.deleteSQL(), `DELETE FROM "ind""values"`)
}

func TestNewSink_PrecisionZeroIsKept(t *testing.T) {
	assert.Equal(t, int32(0), newSink(nil, Config{Precision: 0}).precision)
	assert.Equal(t, model.DefaultPrecision, newSink(nil, Config{Precision: -1}).precision)
}

func TestNew_UnreachableServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := New(ctx, Config{DSN: "postgres://etl@127.0.0.1:1/etf?sslmode=disable&connect_timeout=1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres ping")
}
