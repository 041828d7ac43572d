package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpecs(t *testing.T) {
	specs, err := ParseSpecs("sma:5,10,x,-3; RSI:6 ;OBV")
	require.NoError(t, err)
	require.Len(t, specs, 3)
	assert.Equal(t, FamilySpec{Name: "SMA", Periods: []int{5, 10}}, specs[0])
	assert.Equal(t, []int{6}, specs[1].Periods)
	assert.Empty(t, specs[2].Periods)

	_, err = ParseSpecs("SMA:5;KDJ:9")
	assert.ErrorContains(t, err, "KDJ")
	_, err = ParseSpecs("SMA:5;sma:10")
	assert.ErrorContains(t, err, "duplicate")
	_, err = ParseSpecs("")
	assert.Error(t, err)
}

func TestBuild_DefaultsAndFields(t *testing.T) {
	def, err := Build(FamilySpec{Name: "sma"}, 8)
	require.NoError(t, err)
	assert.Equal(t, "SMA", def.Family)
	assert.Equal(t, []string{"SMA_5", "SMA_10", "SMA_20", "SMA_60", "SMA_DIFF_5_20", "SMA_DIFF_5_20_PCT"}, def.Fields)
	assert.Equal(t, 60, def.MinBars)
	assert.Equal(t, 60, def.Lookback)

	macd, err := Build(FamilySpec{Name: "MACD"}, 8)
	require.NoError(t, err)
	assert.Equal(t, 35, macd.MinBars)

	_, err = Build(FamilySpec{Name: "MACD", Periods: []int{26, 12, 9}}, 8)
	assert.Error(t, err)
	_, err = Build(FamilySpec{Name: "BOLL", Periods: []int{1}}, 8)
	assert.Error(t, err)
	_, err = Build(FamilySpec{Name: "RSI", Periods: []int{0}}, 8)
	assert.Error(t, err)
}

func TestFingerprint_ChangesWithEveryNumericParameter(t *testing.T) {
	base, err := Build(FamilySpec{Name: "BOLL"}, 8)
	require.NoError(t, err)
	same, err := Build(FamilySpec{Name: "BOLL", Periods: []int{20}, Params: map[string]float64{"k": 2}}, 8)
	require.NoError(t, err)
	assert.Equal(t, base.Fingerprint(), same.Fingerprint())

	for name, spec := range map[string]FamilySpec{
		"period": {Name: "BOLL", Periods: []int{21}},
		"k":      {Name: "BOLL", Params: map[string]float64{"k": 2.5}},
	} {
		d, err := Build(spec, 8)
		require.NoError(t, err)
		assert.NotEqual(t, base.Fingerprint(), d.Fingerprint(), name)
	}

	lowPrec, err := Build(FamilySpec{Name: "BOLL"}, 4)
	require.NoError(t, err)
	assert.NotEqual(t, base.Fingerprint(), lowPrec.Fingerprint(), "precision")
}

func TestRegistry_AllFamiliesBuildWithDefaults(t *testing.T) {
	defs, err := BuildAll(DefaultSpecs(), 8)
	require.NoError(t, err)
	assert.Len(t, defs, len(Names()))
	for _, d := range defs {
		assert.NotEmpty(t, d.Fields, d.Family)
		assert.Positive(t, d.MinBars, d.Family)
		assert.Positive(t, d.Lookback, d.Family)
	}
}
