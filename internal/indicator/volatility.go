package indicator

import (
	"fmt"
	"math"
	"strconv"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
)

// tradingDaysPerYear annualizes daily volatility.
const tradingDaysPerYear = 252

type bollCalc struct {
	win *window
	k   float64
}

func (c *bollCalc) update(bar model.Bar, out []float64) {
	c.win.push(bar.Close)
	mid := c.win.mean()
	sd := c.win.std()
	upper := mid + c.k*sd
	lower := mid - c.k*sd
	out[0] = mid
	out[1] = upper
	out[2] = lower
	out[3] = model.SafeDiv(upper-lower, mid) * 100
	out[4] = model.SafeDiv(bar.Close-lower, upper-lower) * 100
}

func (c *bollCalc) nodes() []node { return []node{c.win} }

func buildBOLL(spec FamilySpec) (*Definition, error) {
	if len(spec.Periods) != 1 {
		return nil, fmt.Errorf("want a single period, got %v", spec.Periods)
	}
	period := spec.Periods[0]
	if period < 2 {
		return nil, fmt.Errorf("period %d too short for a standard deviation", period)
	}
	k := param(spec, "k", 2)
	return &Definition{
		Fields:   []string{"BB_MIDDLE", "BB_UPPER", "BB_LOWER", "BB_WIDTH", "BB_POSITION"},
		Params:   []Param{{"period", float64(period)}, {"k", k}},
		MinBars:  period,
		Lookback: period,
		build: func() calculator {
			return &bollCalc{win: newWindow(period), k: k}
		},
	}, nil
}

// atrCalc: true range with limit-move amplification, smoothed by an EMA.
type atrCalc struct {
	prev      *window // previous close
	atr       *ewm
	atrs      *series
	period    int
	threshold float64
	adjust    float64
}

func (c *atrCalc) update(bar model.Bar, out []float64) {
	prevClose := bar.PrevClose
	if prevClose <= 0 {
		prevClose = c.prev.last()
	}
	tr := bar.High - bar.Low
	if !model.IsNull(prevClose) {
		tr = math.Max(tr, math.Max(math.Abs(bar.High-prevClose), math.Abs(bar.Low-prevClose)))
	}
	if c.threshold > 0 && math.Abs(bar.ChangePct) >= c.threshold {
		tr *= c.adjust
	}
	c.prev.push(bar.Close)

	atr := c.atr.push(tr)
	if c.atr.count < c.period {
		atr = model.Null
	}
	c.atrs.push(atr)
	out[0] = tr
	out[1] = atr
	out[2] = model.SafeDiv(atr, bar.Close) * 100
	out[3] = c.atrs.changeRate(1)
	out[4] = model.SafeDiv(atr, bar.High-bar.Low) * 100
}

func (c *atrCalc) nodes() []node { return []node{c.prev, c.atr, c.atrs} }

func buildATR(spec FamilySpec) (*Definition, error) {
	if len(spec.Periods) != 1 {
		return nil, fmt.Errorf("want a single period, got %v", spec.Periods)
	}
	period := spec.Periods[0]
	threshold := param(spec, "limit_threshold", 9.8)
	adjust := param(spec, "limit_adjustment", 1.2)
	return &Definition{
		Fields: []string{"TR", "ATR_" + strconv.Itoa(period), "ATR_PERCENT", "ATR_CHANGE_RATE", "ATR_RATIO_HL"},
		Params: []Param{
			{"period", float64(period)}, {"limit_threshold", threshold}, {"limit_adjustment", adjust},
		},
		MinBars:  period + 1,
		Lookback: 2,
		build: func() calculator {
			return &atrCalc{
				prev:      newWindow(1),
				atr:       newEMA(period, SeedFirst),
				atrs:      newSeries(2),
				period:    period,
				threshold: threshold,
				adjust:    adjust,
			}
		},
	}, nil
}

// volCalc: rolling standard deviation of daily returns, optionally annualized,
// the ratio of a short to a long volatility, and the day's price range
// relative to the previous close.
type volCalc struct {
	prev        *window
	wins        []*window
	annualize   bool
	short, long int // indexes into wins, -1 without the ratio field
}

func (c *volCalc) update(bar model.Bar, out []float64) {
	last := c.prev.last()
	ret := model.SafeDiv(bar.Close-last, last)
	c.prev.push(bar.Close)

	scale := 1.0
	if c.annualize {
		scale = math.Sqrt(tradingDaysPerYear)
	}
	for i, w := range c.wins {
		w.push(ret)
		out[i] = w.std() * scale
	}

	n := len(c.wins)
	if c.short >= 0 {
		out[n] = model.SafeDiv(out[c.short], out[c.long])
		n++
	}

	base := bar.PrevClose
	if base <= 0 {
		base = last
	}
	out[n] = model.SafeDiv(bar.High-bar.Low, base) * 100
}

func (c *volCalc) nodes() []node {
	ns := []node{c.prev}
	for _, w := range c.wins {
		ns = append(ns, w)
	}
	return ns
}

func buildVOL(spec FamilySpec) (*Definition, error) {
	annualize := param(spec, "annualize", 1) != 0
	periods := spec.Periods
	short := int(param(spec, "ratio_short", 20))
	long := int(param(spec, "ratio_long", 60))
	si, li := indexOf(periods, short), indexOf(periods, long)
	if si < 0 || li < 0 || short == long {
		si, li = -1, -1
	}

	fields := make([]string, 0, len(periods)+2)
	for _, p := range periods {
		if p < 2 {
			return nil, fmt.Errorf("period %d too short for a standard deviation", p)
		}
		fields = append(fields, "VOL_"+strconv.Itoa(p))
	}
	params := periodParams("period", periods)
	if si >= 0 {
		fields = append(fields, "VOL_RATIO_"+strconv.Itoa(short)+"_"+strconv.Itoa(long))
		params = append(params, Param{"ratio_short", float64(short)}, Param{"ratio_long", float64(long)})
	}
	fields = append(fields, "PRICE_RANGE")
	params = append(params, Param{"annualize", boolParam(annualize)})
	return &Definition{
		Fields:   fields,
		Params:   params,
		MinBars:  maxInt(periods...) + 1,
		Lookback: maxInt(periods...) + 1,
		build: func() calculator {
			c := &volCalc{prev: newWindow(1), annualize: annualize, short: si, long: li}
			for _, p := range periods {
				c.wins = append(c.wins, newWindow(p))
			}
			return c
		},
	}, nil
}
