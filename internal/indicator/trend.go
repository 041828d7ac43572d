package indicator

import (
	"fmt"
	"strconv"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
)

// maCalc covers SMA, WMA and EMA: one average per period plus the spread
// between a short and a long average.
type maCalc struct {
	kind    string
	periods []int
	wins    []*window
	emas    []*ewm
	short   int // index into periods, -1 without spread fields
	long    int
	mom     *series // short EMA, for its day-over-day change
}

func (c *maCalc) update(bar model.Bar, out []float64) {
	for i, p := range c.periods {
		switch c.kind {
		case "EMA":
			v := c.emas[i].push(bar.Close)
			if c.emas[i].count < p {
				v = model.Null
			}
			out[i] = v
		case "WMA":
			c.wins[i].push(bar.Close)
			out[i] = c.wins[i].wma()
		default:
			c.wins[i].push(bar.Close)
			out[i] = c.wins[i].mean()
		}
	}
	if c.short >= 0 {
		n := len(c.periods)
		diff := out[c.short] - out[c.long]
		out[n] = diff
		out[n+1] = model.SafeDiv(diff, out[c.long]) * 100
		if c.mom != nil {
			c.mom.push(out[c.short])
			out[n+2] = c.mom.diff(1)
		}
	}
}

func (c *maCalc) nodes() []node {
	ns := make([]node, 0, len(c.periods))
	for _, w := range c.wins {
		ns = append(ns, w)
	}
	for _, e := range c.emas {
		ns = append(ns, e)
	}
	if c.mom != nil {
		ns = append(ns, c.mom)
	}
	return ns
}

func buildMA(kind string, spec FamilySpec, defShort, defLong int) (*Definition, error) {
	periods := spec.Periods
	short := int(param(spec, "diff_short", float64(defShort)))
	long := int(param(spec, "diff_long", float64(defLong)))
	seed := SeedFirst
	if param(spec, "seed_sma", 0) != 0 {
		seed = SeedSMA
	}

	si, li := indexOf(periods, short), indexOf(periods, long)
	if si < 0 || li < 0 || short == long {
		si, li = -1, -1
	}

	fields := make([]string, 0, len(periods)+2)
	for _, p := range periods {
		fields = append(fields, kind+"_"+strconv.Itoa(p))
	}
	params := periodParams("period", periods)
	if si >= 0 {
		suffix := "_" + strconv.Itoa(short) + "_" + strconv.Itoa(long)
		fields = append(fields, kind+"_DIFF"+suffix, kind+"_DIFF"+suffix+"_PCT")
		params = append(params, Param{"diff_short", float64(short)}, Param{"diff_long", float64(long)})
	}
	momentum := kind == "EMA" && si >= 0
	if momentum {
		fields = append(fields, kind+strconv.Itoa(short)+"_MOMENTUM")
	}
	lookback := maxInt(periods...)
	if kind == "EMA" {
		params = append(params, Param{"seed_sma", boolParam(seed == SeedSMA)})
		lookback = 1
		if momentum {
			lookback = 2
		}
	}
	minBars := maxInt(periods...)
	if momentum {
		minBars = maxInt(minBars, short+1)
	}

	return &Definition{
		Fields:   fields,
		Params:   params,
		MinBars:  minBars,
		Lookback: lookback,
		build: func() calculator {
			c := &maCalc{kind: kind, periods: periods, short: si, long: li}
			if momentum {
				c.mom = newSeries(2)
			}
			for _, p := range periods {
				if kind == "EMA" {
					c.emas = append(c.emas, newEMA(p, seed))
				} else {
					c.wins = append(c.wins, newWindow(p))
				}
			}
			return c
		},
	}, nil
}

func buildSMA(spec FamilySpec) (*Definition, error) { return buildMA("SMA", spec, 5, 20) }
func buildWMA(spec FamilySpec) (*Definition, error) { return buildMA("WMA", spec, 5, 20) }
func buildEMA(spec FamilySpec) (*Definition, error) { return buildMA("EMA", spec, 12, 26) }

// macdCalc: DIF = EMA(fast) − EMA(slow), DEA = EMA(DIF, signal), bar = 2·(DIF − DEA),
// plus the day-over-day change of DIF and DEA.
type macdCalc struct {
	fast, slow, signal *ewm
	slowP, signalP     int
	difs, deas         *series
}

func (c *macdCalc) update(bar model.Bar, out []float64) {
	f := c.fast.push(bar.Close)
	s := c.slow.push(bar.Close)
	dif := f - s
	dea := c.signal.push(dif)

	if c.slow.count < c.slowP {
		dif = model.Null
	}
	if c.slow.count < c.slowP+c.signalP-1 {
		dea = model.Null
	}
	out[0] = dif
	out[1] = dea
	out[2] = 2 * (dif - dea)

	c.difs.push(dif)
	c.deas.push(dea)
	out[3] = c.difs.diff(1)
	out[4] = c.deas.diff(1)
}

func (c *macdCalc) nodes() []node { return []node{c.fast, c.slow, c.signal, c.difs, c.deas} }

func buildMACD(spec FamilySpec) (*Definition, error) {
	if len(spec.Periods) != 3 {
		return nil, fmt.Errorf("want periods fast,slow,signal, got %v", spec.Periods)
	}
	fast, slow, signal := spec.Periods[0], spec.Periods[1], spec.Periods[2]
	if fast >= slow {
		return nil, fmt.Errorf("fast period %d must be below slow period %d", fast, slow)
	}
	seed := SeedFirst
	if param(spec, "seed_sma", 0) != 0 {
		seed = SeedSMA
	}
	return &Definition{
		Fields: []string{"DIF", "DEA", "MACD_BAR", "DIF_MOMENTUM", "DEA_MOMENTUM"},
		Params: []Param{
			{"fast", float64(fast)}, {"slow", float64(slow)}, {"signal", float64(signal)},
			{"seed_sma", boolParam(seed == SeedSMA)},
		},
		MinBars:  slow + signal,
		Lookback: 2,
		build: func() calculator {
			return &macdCalc{
				fast:    newEMA(fast, seed),
				slow:    newEMA(slow, seed),
				signal:  newEMA(signal, seed),
				slowP:   slow,
				signalP: signal,
				difs:    newSeries(2),
				deas:    newSeries(2),
			}
		},
	}, nil
}

func boolParam(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
