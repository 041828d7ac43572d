package indicator

import (
	"fmt"
	"math"
	"strconv"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
)

// rsiCalc uses Wilder smoothing (α = 1/period) of gains and losses.
// RSI = 100·avgGain/(avgGain+avgLoss), which is undefined only when both are zero.
type rsiCalc struct {
	prev    *window
	gains   []*ewm
	losses  []*ewm
	periods []int

	short, long int     // RSI_short − RSI_long, -1 without the field
	base        int     // index of the RSI whose change rate is reported, -1 without
	hist        *series // that RSI's recent values
}

func (c *rsiCalc) update(bar model.Bar, out []float64) {
	change := bar.Close - c.prev.last()
	c.prev.push(bar.Close)

	gain, loss := model.Null, model.Null
	if !model.IsNull(change) {
		gain, loss = 0, 0
		if change > 0 {
			gain = change
		} else if change < 0 {
			loss = -change
		}
	}
	for i, p := range c.periods {
		g := c.gains[i].push(gain)
		l := c.losses[i].push(loss)
		if c.gains[i].count < p {
			out[i] = model.Null
			continue
		}
		out[i] = model.SafeDiv(g, g+l) * 100
	}

	n := len(c.periods)
	if c.short >= 0 {
		out[n] = out[c.short] - out[c.long]
		n++
	}
	if c.base >= 0 {
		c.hist.push(out[c.base])
		out[n] = c.hist.changeRate(1)
	}
}

func (c *rsiCalc) nodes() []node {
	ns := []node{c.prev}
	for i := range c.periods {
		ns = append(ns, c.gains[i], c.losses[i])
	}
	if c.hist != nil {
		ns = append(ns, c.hist)
	}
	return ns
}

func buildRSI(spec FamilySpec) (*Definition, error) {
	periods := spec.Periods
	short := int(param(spec, "diff_short", 6))
	long := int(param(spec, "diff_long", 24))
	si, li := indexOf(periods, short), indexOf(periods, long)
	if si < 0 || li < 0 || short == long {
		si, li = -1, -1
	}
	basePeriod := int(param(spec, "change_period", 12))
	bi := indexOf(periods, basePeriod)

	fields := make([]string, 0, len(periods)+2)
	for _, p := range periods {
		fields = append(fields, "RSI_"+strconv.Itoa(p))
	}
	params := periodParams("period", periods)
	minBars := maxInt(periods...) + 1
	if si >= 0 {
		fields = append(fields, "RSI_DIFF_"+strconv.Itoa(short)+"_"+strconv.Itoa(long))
		params = append(params, Param{"diff_short", float64(short)}, Param{"diff_long", float64(long)})
	}
	if bi >= 0 {
		fields = append(fields, "RSI_CHANGE_RATE")
		params = append(params, Param{"change_period", float64(basePeriod)})
		minBars = maxInt(minBars, basePeriod+2)
	}
	return &Definition{
		Fields:   fields,
		Params:   params,
		MinBars:  minBars,
		Lookback: 2,
		build: func() calculator {
			c := &rsiCalc{prev: newWindow(1), periods: periods, short: si, long: li, base: bi}
			if bi >= 0 {
				c.hist = newSeries(2)
			}
			for _, p := range periods {
				c.gains = append(c.gains, newWilder(p))
				c.losses = append(c.losses, newWilder(p))
			}
			return c
		},
	}, nil
}

// wrCalc: Williams %R = −100·(HH − close)/(HH − LL), the spread between a
// short and a long %R, and the recent range and daily change of a base %R.
type wrCalc struct {
	highs, lows []*window

	short, long int // -1 without the spread field
	base        int // -1 without the range and change fields
	hist        *series
}

// wrChangeLimit clips the daily change rate of %R, which explodes near zero.
const wrChangeLimit = 500

func (c *wrCalc) update(bar model.Bar, out []float64) {
	for i := range c.highs {
		c.highs[i].push(bar.High)
		c.lows[i].push(bar.Low)
		hh, ll := c.highs[i].max(), c.lows[i].min()
		out[i] = model.SafeDiv(hh-bar.Close, hh-ll) * -100
	}

	n := len(c.highs)
	if c.short >= 0 {
		out[n] = out[c.short] - out[c.long]
		n++
	}
	if c.base >= 0 {
		c.hist.push(out[c.base])
		out[n] = c.hist.span()
		out[n+1] = clip(c.hist.changeRate(1), wrChangeLimit)
	}
}

func (c *wrCalc) nodes() []node {
	ns := make([]node, 0, 2*len(c.highs)+1)
	for i := range c.highs {
		ns = append(ns, c.highs[i], c.lows[i])
	}
	if c.hist != nil {
		ns = append(ns, c.hist)
	}
	return ns
}

// clip bounds v to [-limit, limit]; Null passes through.
func clip(v, limit float64) float64 {
	if model.IsNull(v) {
		return v
	}
	return math.Max(-limit, math.Min(limit, v))
}

func buildWR(spec FamilySpec) (*Definition, error) {
	periods := spec.Periods
	short := int(param(spec, "diff_short", 9))
	long := int(param(spec, "diff_long", 21))
	si, li := indexOf(periods, short), indexOf(periods, long)
	if si < 0 || li < 0 || short == long {
		si, li = -1, -1
	}
	basePeriod := int(param(spec, "base", 14))
	rangePeriod := int(param(spec, "range_period", 5))
	bi := indexOf(periods, basePeriod)
	if rangePeriod < 2 {
		return nil, fmt.Errorf("range_period %d must be at least 2", rangePeriod)
	}

	fields := make([]string, 0, len(periods)+3)
	for _, p := range periods {
		fields = append(fields, "WR_"+strconv.Itoa(p))
	}
	params := periodParams("period", periods)
	minBars := maxInt(periods...)
	if si >= 0 {
		fields = append(fields, "WR_DIFF_"+strconv.Itoa(short)+"_"+strconv.Itoa(long))
		params = append(params, Param{"diff_short", float64(short)}, Param{"diff_long", float64(long)})
	}
	if bi >= 0 {
		fields = append(fields, "WR_RANGE", "WR_CHANGE_RATE")
		params = append(params, Param{"base", float64(basePeriod)}, Param{"range_period", float64(rangePeriod)})
		minBars = maxInt(minBars, basePeriod+rangePeriod-1)
	}
	return &Definition{
		Fields:   fields,
		Params:   params,
		MinBars:  minBars,
		Lookback: minBars,
		build: func() calculator {
			c := &wrCalc{short: si, long: li, base: bi}
			if bi >= 0 {
				c.hist = newSeries(rangePeriod)
			}
			for _, p := range periods {
				c.highs = append(c.highs, newWindow(p))
				c.lows = append(c.lows, newWindow(p))
			}
			return c
		},
	}, nil
}

// momCalc: MOMENTUM_n = close − close[n bars ago] and ROC_m, the same change
// in percent, over an independent set of horizons.
type momCalc struct {
	closes   *window // longest horizon + 1 closes
	momentum []int
	roc      []int
}

// closeAgo returns the close k bars before the latest, or Null.
func (c *momCalc) closeAgo(k int) float64 {
	n := c.closes.len()
	if k >= n {
		return model.Null
	}
	return c.closes.at(n - 1 - k)
}

func (c *momCalc) update(bar model.Bar, out []float64) {
	c.closes.push(bar.Close)
	for i, p := range c.momentum {
		out[i] = bar.Close - c.closeAgo(p)
	}
	n := len(c.momentum)
	for i, p := range c.roc {
		base := c.closeAgo(p)
		out[n+i] = model.SafeDiv(bar.Close-base, base) * 100
	}
}

func (c *momCalc) nodes() []node { return []node{c.closes} }

// defaultROC are the ROC horizons used when no roc_* parameter is given.
var defaultROC = map[string]float64{"roc_short": 5, "roc_mid": 12, "roc_long": 25}

func buildMOM(spec FamilySpec) (*Definition, error) {
	periods := spec.Periods
	fields := make([]string, 0, len(periods)+3)
	for _, p := range periods {
		fields = append(fields, "MOMENTUM_"+strconv.Itoa(p))
	}
	params := periodParams("period", periods)

	var roc []int
	for _, key := range []string{"roc_short", "roc_mid", "roc_long"} {
		p := int(param(spec, key, defaultROC[key]))
		if p <= 0 {
			continue
		}
		if indexOf(roc, p) >= 0 {
			return nil, fmt.Errorf("%s %d repeats another ROC horizon", key, p)
		}
		roc = append(roc, p)
		fields = append(fields, "ROC_"+strconv.Itoa(p))
		params = append(params, Param{key, float64(p)})
	}
	longest := maxInt(maxInt(periods...), maxInt(roc...))
	return &Definition{
		Fields:   fields,
		Params:   params,
		MinBars:  longest + 1,
		Lookback: longest + 1,
		build: func() calculator {
			return &momCalc{closes: newWindow(longest + 1), momentum: periods, roc: roc}
		},
	}, nil
}
