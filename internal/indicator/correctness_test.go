package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
var calcTS = time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

func closes(vs ...float64) []model.Bar {
	bars := make([]model.Bar, len(vs))
	for i, v := range vs {
		bars[i] = model.Bar{
			Code: "510300", Date: day0.AddDate(0, 0, i),
			Open: v, High: v, Low: v, Close: v, Volume: 1000 + float64(i), Turnover: 5000,
		}
	}
	return bars
}

func ohlc(h, l, c []float64) []model.Bar {
	bars := make([]model.Bar, len(c))
	for i := range c {
		bars[i] = model.Bar{Code: "510300", Date: day0.AddDate(0, 0, i), Open: c[i], High: h[i], Low: l[i], Close: c[i], Volume: 100}
	}
	return bars
}

func mustBuild(t *testing.T, spec FamilySpec) *Definition {
	t.Helper()
	def, err := Build(spec, model.DefaultPrecision)
	if err != nil {
		t.Fatalf("build %s: %v", spec.Name, err)
	}
	return def
}

func column(t *testing.T, res Result, def *Definition, field string) []float64 {
	t.Helper()
	idx := def.FieldIndex(field)
	if idx < 0 {
		t.Fatalf("field %s not in %v", field, def.Fields)
	}
	out := make([]float64, len(res.Table.Rows))
	for i, r := range res.Table.Rows {
		out[i] = r.Values[idx]
	}
	return out
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if model.IsNull(got) {
		t.Errorf("%s: got null, want %.8f", label, want)
		return
	}
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.8f, want %.8f (tol=%.8f, diff=%.8f)", label, got, want, tol, math.Abs(got-want))
	}
}

func assertNull(t *testing.T, label string, got float64) {
	t.Helper()
	if !model.IsNull(got) {
		t.Errorf("%s: got %.8f, want null", label, got)
	}
}

// ────────────────────────────────────────────────────────────
// SMA / WMA / EMA
// ────────────────────────────────────────────────────────────

func TestSMA_TwentyPeriod_WarmupBoundary(t *testing.T) {
	// closes [10]*19 + [11]; SMA(20) on row 20 = (10*19 + 11)/20 = 10.05
	vs := make([]float64, 0, 20)
	for i := 0; i < 19; i++ {
		vs = append(vs, 10)
	}
	vs = append(vs, 11)

	def := mustBuild(t, FamilySpec{Name: "SMA", Periods: []int{20}})
	res := Compute(def, "510300", closes(vs...), calcTS)
	if res.Status != StatusOK {
		t.Fatalf("status %s", res.Status)
	}
	col := column(t, res, def, "SMA_20")
	for i := 0; i < 19; i++ {
		assertNull(t, "SMA_20 warm-up row", col[i])
	}
	if got := model.FormatValue(col[19], def.Precision); got != "10.05000000" {
		t.Errorf("SMA_20 row 20 = %s, want 10.05000000", got)
	}
}

func TestSMA_SpreadFields(t *testing.T) {
	def := mustBuild(t, FamilySpec{Name: "SMA", Periods: []int{2, 4}, Params: map[string]float64{"diff_short": 2, "diff_long": 4}})
	res := Compute(def, "X", closes(1, 2, 3, 4, 5), calcTS)
	// row 4: SMA_2 = 4.5, SMA_4 = 3.5, diff 1, pct 1/3.5
	assertClose(t, "SMA_2", column(t, res, def, "SMA_2")[4], 4.5, 1e-9)
	assertClose(t, "SMA_4", column(t, res, def, "SMA_4")[4], 3.5, 1e-9)
	assertClose(t, "SMA_DIFF_2_4", column(t, res, def, "SMA_DIFF_2_4")[4], 1, 1e-9)
	assertClose(t, "SMA_DIFF_2_4_PCT", column(t, res, def, "SMA_DIFF_2_4_PCT")[4], 28.57142857, 1e-8)
	assertNull(t, "SMA_DIFF_2_4 before long warm-up", column(t, res, def, "SMA_DIFF_2_4")[2])
}

func TestWMA_Correctness_Period3(t *testing.T) {
	// WMA(3) weights 1,2,3 oldest → newest
	// row 3: (1+4+9)/6 = 2.33333333, row 4: (2+6+12)/6 = 3.33333333
	def := mustBuild(t, FamilySpec{Name: "WMA", Periods: []int{3}})
	col := column(t, Compute(def, "X", closes(1, 2, 3, 4), calcTS), def, "WMA_3")
	assertNull(t, "WMA_3 row 2", col[1])
	assertClose(t, "WMA_3 row 3", col[2], 14.0/6, 1e-8)
	assertClose(t, "WMA_3 row 4", col[3], 20.0/6, 1e-8)
}

func TestEMA_SeedModes(t *testing.T) {
	// span 3 → α = 0.5; closes 2,4,6,8
	// seed first: 2, 3, 4.5, 6.25   (defined from row 3)
	// seed sma:   -, -, 4, 6
	first := mustBuild(t, FamilySpec{Name: "EMA", Periods: []int{3}})
	col := column(t, Compute(first, "X", closes(2, 4, 6, 8), calcTS), first, "EMA_3")
	assertNull(t, "EMA_3 row 2", col[1])
	assertClose(t, "EMA_3 row 3", col[2], 4.5, 1e-9)
	assertClose(t, "EMA_3 row 4", col[3], 6.25, 1e-9)

	sma := mustBuild(t, FamilySpec{Name: "EMA", Periods: []int{3}, Params: map[string]float64{"seed_sma": 1}})
	col = column(t, Compute(sma, "X", closes(2, 4, 6, 8), calcTS), sma, "EMA_3")
	assertClose(t, "EMA_3 sma seed row 3", col[2], 4, 1e-9)
	assertClose(t, "EMA_3 sma seed row 4", col[3], 6, 1e-9)

	if first.Fingerprint() == sma.Fingerprint() {
		t.Error("seed mode must change the fingerprint")
	}
}

func TestEMA_ShortMomentum(t *testing.T) {
	// span 2 → α = 2/3; closes 2,4,6,8 give EMA_2 2, 3.33333333, 5.11111111, 7.03703704
	def := mustBuild(t, FamilySpec{Name: "EMA", Periods: []int{2, 3}, Params: map[string]float64{"diff_short": 2, "diff_long": 3}})
	mom := column(t, Compute(def, "X", closes(2, 4, 6, 8), calcTS), def, "EMA2_MOMENTUM")
	assertNull(t, "EMA2_MOMENTUM row 2", mom[1])
	assertClose(t, "EMA2_MOMENTUM row 3", mom[2], 46.0/9-10.0/3, 1e-8)
	assertClose(t, "EMA2_MOMENTUM row 4", mom[3], 190.0/27-46.0/9, 1e-8)

	noSpread := mustBuild(t, FamilySpec{Name: "EMA", Periods: []int{2}})
	if noSpread.FieldIndex("EMA2_MOMENTUM") >= 0 {
		t.Error("momentum needs the spread pair")
	}
}

// ────────────────────────────────────────────────────────────
// MACD
// ────────────────────────────────────────────────────────────

func TestMACD_WarmupAndBar(t *testing.T) {
	def := mustBuild(t, FamilySpec{Name: "MACD", Periods: []int{3, 5, 2}})
	vs := []float64{10, 10.5, 10.2, 10.8, 11.1, 10.9, 11.4, 11.8}
	res := Compute(def, "X", closes(vs...), calcTS)
	dif := column(t, res, def, "DIF")
	dea := column(t, res, def, "DEA")
	bar := column(t, res, def, "MACD_BAR")

	for i := 0; i < 4; i++ {
		assertNull(t, "DIF warm-up", dif[i])
	}
	for i := 0; i < 5; i++ {
		assertNull(t, "DEA warm-up", dea[i])
	}

	// recompute DIF by hand with pandas-style recurrences
	fast, slow := vs[0], vs[0]
	for i := 1; i < len(vs); i++ {
		fast = 0.5*vs[i] + 0.5*fast
		slow = (1.0/3)*vs[i] + (2.0/3)*slow
	}
	assertClose(t, "DIF last", dif[len(vs)-1], fast-slow, 1e-8)
	for i := 5; i < len(vs); i++ {
		assertClose(t, "MACD_BAR", bar[i], 2*(dif[i]-dea[i]), 1e-7)
	}

	difMom := column(t, res, def, "DIF_MOMENTUM")
	deaMom := column(t, res, def, "DEA_MOMENTUM")
	assertNull(t, "DIF_MOMENTUM first DIF", difMom[4])
	assertNull(t, "DEA_MOMENTUM first DEA", deaMom[5])
	for i := 5; i < len(vs); i++ {
		assertClose(t, "DIF_MOMENTUM", difMom[i], dif[i]-dif[i-1], 1e-7)
	}
	for i := 6; i < len(vs); i++ {
		assertClose(t, "DEA_MOMENTUM", deaMom[i], dea[i]-dea[i-1], 1e-7)
	}
}

// ────────────────────────────────────────────────────────────
// Bollinger / division guard
// ────────────────────────────────────────────────────────────

func TestBOLL_Correctness_Period3(t *testing.T) {
	// closes 1,2,3: mid 2, sample sd 1 → upper 4, lower 0, width 200%, position 75%
	def := mustBuild(t, FamilySpec{Name: "BOLL", Periods: []int{3}})
	res := Compute(def, "X", closes(1, 2, 3), calcTS)
	assertClose(t, "BB_MIDDLE", column(t, res, def, "BB_MIDDLE")[2], 2, 1e-9)
	assertClose(t, "BB_UPPER", column(t, res, def, "BB_UPPER")[2], 4, 1e-9)
	assertClose(t, "BB_LOWER", column(t, res, def, "BB_LOWER")[2], 0, 1e-9)
	assertClose(t, "BB_WIDTH", column(t, res, def, "BB_WIDTH")[2], 200, 1e-9)
	assertClose(t, "BB_POSITION", column(t, res, def, "BB_POSITION")[2], 75, 1e-9)
}

func TestBOLL_ZeroBandwidth_NullThenRecovers(t *testing.T) {
	// flat closes give upper == lower; position is null on that date and
	// defined again as soon as the band opens.
	def := mustBuild(t, FamilySpec{Name: "BOLL", Periods: []int{3}})
	res := Compute(def, "X", closes(5, 5, 5, 6), calcTS)
	pos := column(t, res, def, "BB_POSITION")
	assertNull(t, "BB_POSITION flat", pos[2])
	assertClose(t, "BB_WIDTH flat", column(t, res, def, "BB_WIDTH")[2], 0, 1e-12)
	assertClose(t, "BB_POSITION next day", pos[3], 78.8675135, 1e-6)
}

// ────────────────────────────────────────────────────────────
// ATR / volatility
// ────────────────────────────────────────────────────────────

func TestATR_Correctness_Period2(t *testing.T) {
	// TR: 1, 1.5, 0.8; EMA span 2 (α=2/3) seeded with TR0:
	// 1, 1.33333333, 0.97777778
	def := mustBuild(t, FamilySpec{Name: "ATR", Periods: []int{2}})
	bars := ohlc([]float64{10, 11, 10.8}, []float64{9, 9.5, 10}, []float64{9.5, 10.5, 10.2})
	res := Compute(def, "X", bars, calcTS)
	tr := column(t, res, def, "TR")
	atr := column(t, res, def, "ATR_2")
	assertClose(t, "TR 1", tr[0], 1, 1e-9)
	assertClose(t, "TR 2", tr[1], 1.5, 1e-9)
	assertClose(t, "TR 3", tr[2], 0.8, 1e-9)
	assertNull(t, "ATR warm-up", atr[0])
	assertClose(t, "ATR 2", atr[1], 1.33333333, 1e-8)
	assertClose(t, "ATR 3", atr[2], 0.97777778, 1e-8)
	assertClose(t, "ATR_PERCENT 3", column(t, res, def, "ATR_PERCENT")[2], 0.97777778/10.2*100, 1e-6)

	// ATR 4/3 → 44/45 is a change of -26.67%; range 10.8-10 = 0.8
	chg := column(t, res, def, "ATR_CHANGE_RATE")
	assertNull(t, "ATR_CHANGE_RATE 2", chg[1])
	assertClose(t, "ATR_CHANGE_RATE 3", chg[2], -26.66666667, 1e-6)
	assertClose(t, "ATR_RATIO_HL 3", column(t, res, def, "ATR_RATIO_HL")[2], 44.0/45/0.8*100, 1e-6)
}

func TestATR_LimitMoveAdjustment(t *testing.T) {
	def := mustBuild(t, FamilySpec{Name: "ATR", Periods: []int{2}})
	bars := ohlc([]float64{10, 11, 11}, []float64{9, 10, 10}, []float64{9.5, 10.5, 10.5})
	bars[1].ChangePct = 10
	bars[1].PrevClose = 10
	tr := column(t, Compute(def, "X", bars, calcTS), def, "TR")
	// max(1, |11-10|, |10-10|) = 1, amplified by 1.2
	assertClose(t, "TR limit move", tr[1], 1.2, 1e-9)
}

func TestVOL_SampleStdOfReturns(t *testing.T) {
	def := mustBuild(t, FamilySpec{Name: "VOL", Periods: []int{2}, Params: map[string]float64{"annualize": 0}})
	res := Compute(def, "X", closes(100, 110, 99), calcTS)
	vol := column(t, res, def, "VOL_2")
	assertNull(t, "VOL_2 row 2", vol[1])
	assertClose(t, "VOL_2 row 3", vol[2], math.Sqrt(0.02), 1e-8)

	ann := mustBuild(t, FamilySpec{Name: "VOL", Periods: []int{2}})
	vol = column(t, Compute(ann, "X", closes(100, 110, 99), calcTS), ann, "VOL_2")
	assertClose(t, "VOL_2 annualized", vol[2], math.Sqrt(0.02)*math.Sqrt(252), 1e-7)
}

func TestVOL_ShortLongRatio(t *testing.T) {
	// returns +0.1, -0.1, +0.1: VOL_2 = √0.02, VOL_3 = √(0.02/1.5)
	def := mustBuild(t, FamilySpec{Name: "VOL", Periods: []int{2, 3},
		Params: map[string]float64{"annualize": 0, "ratio_short": 2, "ratio_long": 3}})
	res := Compute(def, "X", closes(100, 110, 99, 108.9), calcTS)
	ratio := column(t, res, def, "VOL_RATIO_2_3")
	assertNull(t, "VOL_RATIO_2_3 row 3", ratio[2])
	assertClose(t, "VOL_RATIO_2_3 row 4", ratio[3], math.Sqrt(1.5), 1e-6)
	if def.Fields[len(def.Fields)-1] != "PRICE_RANGE" {
		t.Errorf("fields %v, want PRICE_RANGE last", def.Fields)
	}

	defaults := mustBuild(t, FamilySpec{Name: "VOL"})
	if defaults.FieldIndex("VOL_60") < 0 || defaults.FieldIndex("VOL_RATIO_20_60") < 0 {
		t.Errorf("default fields %v", defaults.Fields)
	}
}

// ────────────────────────────────────────────────────────────
// RSI / Williams %R / momentum
// ────────────────────────────────────────────────────────────

func TestRSI_Wilder_Period2(t *testing.T) {
	// changes +1, -0.5, +1; α = 0.5 seeded with the first change
	// gains 1, 0.5, 0.75; losses 0, 0.25, 0.125
	def := mustBuild(t, FamilySpec{Name: "RSI", Periods: []int{2}})
	col := column(t, Compute(def, "X", closes(10, 11, 10.5, 11.5), calcTS), def, "RSI_2")
	assertNull(t, "RSI row 1", col[0])
	assertNull(t, "RSI row 2", col[1])
	assertClose(t, "RSI row 3", col[2], 66.66666667, 1e-7)
	assertClose(t, "RSI row 4", col[3], 85.71428571, 1e-7)
}

func TestRSI_EdgeCases(t *testing.T) {
	def := mustBuild(t, FamilySpec{Name: "RSI", Periods: []int{2}})
	up := column(t, Compute(def, "X", closes(1, 2, 3, 4), calcTS), def, "RSI_2")
	assertClose(t, "RSI all gains", up[3], 100, 1e-9)

	flat := column(t, Compute(def, "X", closes(5, 5, 5, 5), calcTS), def, "RSI_2")
	assertNull(t, "RSI flat", flat[3])
}

func TestRSI_SpreadAndChangeRate(t *testing.T) {
	def := mustBuild(t, FamilySpec{Name: "RSI", Periods: []int{2, 3},
		Params: map[string]float64{"diff_short": 2, "diff_long": 3, "change_period": 2}})
	res := Compute(def, "X", closes(10, 11, 10.5, 11.5), calcTS)
	r2 := column(t, res, def, "RSI_2")
	r3 := column(t, res, def, "RSI_3")
	diff := column(t, res, def, "RSI_DIFF_2_3")
	assertClose(t, "RSI_DIFF_2_3 row 4", diff[3], r2[3]-r3[3], 1e-7)

	// RSI_2 66.67 → 85.71 is +28.57%
	chg := column(t, res, def, "RSI_CHANGE_RATE")
	assertNull(t, "RSI_CHANGE_RATE row 3", chg[2])
	assertClose(t, "RSI_CHANGE_RATE row 4", chg[3], 28.57142857, 1e-6)
}

func TestWR_Correctness_Period3(t *testing.T) {
	// HH 12, LL 8, close 11 → -100*(12-11)/(12-8) = -25
	def := mustBuild(t, FamilySpec{Name: "WR", Periods: []int{3}})
	bars := ohlc([]float64{10, 11, 12}, []float64{8, 9, 10}, []float64{9, 10, 11})
	col := column(t, Compute(def, "X", bars, calcTS), def, "WR_3")
	assertNull(t, "WR row 2", col[1])
	assertClose(t, "WR row 3", col[2], -25, 1e-9)
}

func TestWR_DerivedFields(t *testing.T) {
	// WR_2: -, -33.33, -33.33, -100; WR_3: -, -, -25, -66.67
	def := mustBuild(t, FamilySpec{Name: "WR", Periods: []int{2, 3},
		Params: map[string]float64{"diff_short": 2, "diff_long": 3, "base": 2, "range_period": 2}})
	bars := ohlc([]float64{10, 11, 12, 12}, []float64{8, 9, 10, 10}, []float64{9, 10, 11, 10})
	res := Compute(def, "X", bars, calcTS)

	assertClose(t, "WR_2 row 4", column(t, res, def, "WR_2")[3], -100, 1e-9)
	assertClose(t, "WR_3 row 4", column(t, res, def, "WR_3")[3], -66.66666667, 1e-7)
	assertClose(t, "WR_DIFF_2_3 row 4", column(t, res, def, "WR_DIFF_2_3")[3], -33.33333333, 1e-7)

	rng := column(t, res, def, "WR_RANGE")
	assertNull(t, "WR_RANGE over a null", rng[1])
	assertClose(t, "WR_RANGE row 3", rng[2], 0, 1e-9)
	assertClose(t, "WR_RANGE row 4", rng[3], 66.66666667, 1e-7)

	chg := column(t, res, def, "WR_CHANGE_RATE")
	assertNull(t, "WR_CHANGE_RATE row 2", chg[1])
	assertClose(t, "WR_CHANGE_RATE row 3", chg[2], 0, 1e-9)
	assertClose(t, "WR_CHANGE_RATE row 4", chg[3], -200, 1e-6)
}

func TestClip(t *testing.T) {
	if got := clip(-800, wrChangeLimit); got != -wrChangeLimit {
		t.Errorf("clip(-800) = %v", got)
	}
	if got := clip(12.5, wrChangeLimit); got != 12.5 {
		t.Errorf("clip(12.5) = %v", got)
	}
	assertNull(t, "clip(null)", clip(model.Null, wrChangeLimit))
}

func TestMOM_MomentumAndROC(t *testing.T) {
	def := mustBuild(t, FamilySpec{Name: "MOM", Periods: []int{2},
		Params: map[string]float64{"roc_short": 1, "roc_mid": 2, "roc_long": 0}})
	if got := def.Fields; len(got) != 3 || got[1] != "ROC_1" || got[2] != "ROC_2" {
		t.Fatalf("fields %v", got)
	}
	res := Compute(def, "X", closes(10, 11, 12.1), calcTS)
	assertNull(t, "MOMENTUM_2 row 2", column(t, res, def, "MOMENTUM_2")[1])
	assertClose(t, "MOMENTUM_2 row 3", column(t, res, def, "MOMENTUM_2")[2], 2.1, 1e-9)
	assertClose(t, "ROC_1 row 2", column(t, res, def, "ROC_1")[1], 10, 1e-9)
	assertClose(t, "ROC_2 row 3", column(t, res, def, "ROC_2")[2], 21, 1e-9)

	defaults := mustBuild(t, FamilySpec{Name: "MOM"})
	want := []string{"MOMENTUM_10", "MOMENTUM_20", "ROC_5", "ROC_12", "ROC_25"}
	if len(defaults.Fields) != len(want) {
		t.Fatalf("default fields %v, want %v", defaults.Fields, want)
	}
	for i, f := range want {
		if defaults.Fields[i] != f {
			t.Errorf("field %d = %s, want %s", i, defaults.Fields[i], f)
		}
	}
	if defaults.MinBars != 26 {
		t.Errorf("MinBars = %d, want 26", defaults.MinBars)
	}

	if _, err := Build(FamilySpec{Name: "MOM", Params: map[string]float64{"roc_mid": 5}}, 8); err == nil {
		t.Error("expected error for a repeated ROC horizon")
	}
}

// ────────────────────────────────────────────────────────────
// Volume families
// ────────────────────────────────────────────────────────────

func TestOBV_SeededWithFirstVolume(t *testing.T) {
	// closes 10, 11, 10, 10; volumes 100, 200, 50, 70
	// OBV 100, 300, 250, 250; MA2 -, 200, 275, 250; change1 -, 200%, -16.67%, 0
	bars := closes(10, 11, 10, 10)
	for i, v := range []float64{100, 200, 50, 70} {
		bars[i].Volume = v
	}
	def := mustBuild(t, FamilySpec{Name: "OBV", Periods: []int{2, 1}})
	res := Compute(def, "X", bars, calcTS)
	obv := column(t, res, def, "OBV")
	ma := column(t, res, def, "OBV_MA2")
	chg := column(t, res, def, "OBV_CHANGE_1")
	for i, want := range []float64{100, 300, 250, 250} {
		assertClose(t, "OBV", obv[i], want, 1e-9)
	}
	assertNull(t, "OBV_MA2 row 1", ma[0])
	assertClose(t, "OBV_MA2 row 3", ma[2], 275, 1e-9)
	assertNull(t, "OBV_CHANGE_1 row 1", chg[0])
	assertClose(t, "OBV_CHANGE_1 row 2", chg[1], 200, 1e-9)
	assertClose(t, "OBV_CHANGE_1 row 3", chg[2], -16.66666667, 1e-7)
	assertClose(t, "OBV_CHANGE_1 row 4", chg[3], 0, 1e-9)
}

func TestVMA_Ratios(t *testing.T) {
	bars := closes(1, 1, 1, 1)
	for i, v := range []float64{10, 20, 30, 40} {
		bars[i].Volume = v
	}
	def := mustBuild(t, FamilySpec{Name: "VMA", Periods: []int{2, 4}})
	res := Compute(def, "X", bars, calcTS)
	assertClose(t, "VMA_2", column(t, res, def, "VMA_2")[3], 35, 1e-9)
	assertClose(t, "VMA_4", column(t, res, def, "VMA_4")[3], 25, 1e-9)
	assertClose(t, "VOLUME_RATIO_2", column(t, res, def, "VOLUME_RATIO_2")[3], 40.0/35, 1e-8)
	assertClose(t, "VOLUME_RATIO_4", column(t, res, def, "VOLUME_RATIO_4")[3], 1.6, 1e-9)
	assertClose(t, "VOLUME_TREND_2_4", column(t, res, def, "VOLUME_TREND_2_4")[3], 1.4, 1e-9)

	chg := column(t, res, def, "VOLUME_CHANGE_RATE")
	assertNull(t, "VOLUME_CHANGE_RATE row 1", chg[0])
	assertClose(t, "VOLUME_CHANGE_RATE row 2", chg[1], 1, 1e-9)
	assertClose(t, "VOLUME_CHANGE_RATE row 4", chg[3], 1.0/3, 1e-8)

	defaults := mustBuild(t, FamilySpec{Name: "VMA"})
	for _, f := range []string{"VOLUME_RATIO_10", "VOLUME_RATIO_20", "VOLUME_TREND_5_10", "VOLUME_TREND_10_20"} {
		if defaults.FieldIndex(f) < 0 {
			t.Errorf("default fields %v miss %s", defaults.Fields, f)
		}
	}
}

func TestPV_PerfectCorrelation(t *testing.T) {
	vs := []float64{10, 10.4, 10.1, 10.9, 10.6, 11.2, 11.0}
	bars := closes(vs...)
	for i := range bars {
		bars[i].Volume = vs[i] * 1000
	}
	def := mustBuild(t, FamilySpec{Name: "PV", Periods: []int{3}, Params: map[string]float64{"vpt_ratio": 2}})
	res := Compute(def, "X", bars, calcTS)
	corr := column(t, res, def, "PV_CORR_3")
	for i := 0; i < 3; i++ {
		assertNull(t, "PV_CORR_3 warm-up", corr[i])
	}
	for i := 3; i < len(vs); i++ {
		assertClose(t, "PV_CORR_3", corr[i], 1, 1e-6)
	}
	assertClose(t, "VPT row 1", column(t, res, def, "VPT")[0], 0, 1e-12)

	vpt := column(t, res, def, "VPT")
	mom := column(t, res, def, "VPT_MOMENTUM")
	assertNull(t, "VPT_MOMENTUM row 1", mom[0])
	for i := 1; i < len(vs); i++ {
		assertClose(t, "VPT_MOMENTUM", mom[i], vpt[i]-vpt[i-1], 1e-6)
	}
}

// ────────────────────────────────────────────────────────────
// Failure modes
// ────────────────────────────────────────────────────────────

func TestCompute_InsufficientData(t *testing.T) {
	def := mustBuild(t, FamilySpec{Name: "SMA"})
	res := Compute(def, "X", closes(1, 2, 3), calcTS)
	if res.Status != StatusInsufficient {
		t.Fatalf("status %s, want %s", res.Status, StatusInsufficient)
	}
	if len(res.Table.Rows) != 0 {
		t.Errorf("rows = %d, want 0", len(res.Table.Rows))
	}
	if res := Compute(def, "X", nil, calcTS); res.Status != StatusInsufficient {
		t.Errorf("empty input status %s", res.Status)
	}
}
