package tier

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
)

func barsWithTurnover(vs ...float64) []model.Bar {
	out := make([]model.Bar, len(vs))
	for i, v := range vs {
		out[i] = model.Bar{Close: 1, Turnover: v}
	}
	return out
}

func TestAvgTurnover_TrailingWindowInWan(t *testing.T) {
	// 千元 → 万元: 40000 千元 = 4000 万元
	bars := barsWithTurnover(10000, 40000, 40000)
	assert.InDelta(t, 4000, AvgTurnover(bars, 2), 1e-9)
	assert.InDelta(t, 3000, AvgTurnover(bars, 60), 1e-9)
	assert.Equal(t, 0.0, AvgTurnover(nil, 60))
}

func TestClassify_ThresholdsAndAllowLists(t *testing.T) {
	f, err := NewFilter(DefaultTiers(), 60, StaticAllowLists{"5000万门槛": {"510300.SH"}})
	require.NoError(t, err)

	avg, tiers := f.Classify("510300", barsWithTurnover(60000, 60000))
	assert.InDelta(t, 6000, avg, 1e-9)
	assert.Equal(t, []string{"3000万门槛", "5000万门槛"}, tiers)

	// qualifies on turnover but is not on the 5000 list
	_, tiers = f.Classify("159915", barsWithTurnover(60000))
	assert.Equal(t, []string{"3000万门槛"}, tiers)

	_, tiers = f.Classify("159001", barsWithTurnover(1000))
	assert.Empty(t, tiers)
}

func TestClassify_TierTransitionBetweenRuns(t *testing.T) {
	f, err := NewFilter(DefaultTiers(), 3, nil)
	require.NoError(t, err)

	run1 := barsWithTurnover(35000, 35000, 35000)
	_, tiers := f.Classify("A", run1)
	assert.Equal(t, []string{"3000万门槛"}, tiers)

	run2 := append(run1, barsWithTurnover(80000, 80000, 80000)...)
	_, tiers = f.Classify("A", run2)
	assert.Equal(t, []string{"3000万门槛", "5000万门槛"}, tiers)

	run3 := append(run2, barsWithTurnover(1000, 1000, 1000)...)
	_, tiers = f.Classify("A", run3)
	assert.Empty(t, tiers)
}

func TestValidate(t *testing.T) {
	assert.Error(t, Validate(nil))
	assert.Error(t, Validate([]Tier{{Name: ""}}))
	assert.Error(t, Validate([]Tier{{Name: "a"}, {Name: "a"}}))
	assert.Error(t, Validate([]Tier{{Name: "a", MinTurnover: -1}}))
	assert.NoError(t, Validate(DefaultTiers()))
}

func TestAllowList_ReadWriteRoundTrip(t *testing.T) {
	set, err := ReadAllowList(strings.NewReader("# header\n510300\n\n 159915.SZ \n#159001\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"510300": true, "159915": true}, set)

	dir := t.TempDir()
	require.NoError(t, WriteAllowList(dir, "3000万门槛", []string{"159915", "510300"}, 3000, time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)))

	got, ok, err := DirAllowLists{Dir: dir}.Load("3000万门槛")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]bool{"510300": true, "159915": true}, got)

	_, ok, err = DirAllowLists{Dir: dir}.Load("5000万门槛")
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
	assert.FileExists(t, filepath.Join(dir, "3000万门槛.txt"))
}

func TestMembership_Sorted(t *testing.T) {
	m := Membership{}
	m.Add("b", []string{"t1", "t2"})
	m.Add("a", []string{"t1"})
	assert.Equal(t, []string{"a", "b"}, m.Sorted("t1"))
	assert.Equal(t, []string{"b"}, m.Sorted("t2"))
	assert.Empty(t, m.Sorted("t3"))
}
