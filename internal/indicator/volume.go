package indicator

import (
	"fmt"
	"math"
	"strconv"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
)

// obvCalc: on-balance volume seeded with the first bar's volume, its moving
// average and its percentage change over a few horizons.
type obvCalc struct {
	prev *window
	obv  *cumulative
	ma   *window
	lags []*window
}

func (c *obvCalc) update(bar model.Bar, out []float64) {
	last := c.prev.last()
	var obv float64
	switch {
	case model.IsNull(last):
		obv = c.obv.set(bar.Volume)
	case bar.Close > last:
		obv = c.obv.add(bar.Volume)
	case bar.Close < last:
		obv = c.obv.add(-bar.Volume)
	default:
		obv = c.obv.add(0)
	}
	c.prev.push(bar.Close)
	c.ma.push(obv)

	out[0] = obv
	out[1] = c.ma.mean()
	for i, w := range c.lags {
		w.push(obv)
		base := w.oldest()
		out[2+i] = model.SafeDiv(obv-base, math.Abs(base)) * 100
	}
}

func (c *obvCalc) nodes() []node {
	ns := []node{c.prev, c.obv, c.ma}
	for _, w := range c.lags {
		ns = append(ns, w)
	}
	return ns
}

func buildOBV(spec FamilySpec) (*Definition, error) {
	if len(spec.Periods) < 1 {
		return nil, fmt.Errorf("want periods ma[,change...], got %v", spec.Periods)
	}
	ma, changes := spec.Periods[0], spec.Periods[1:]
	fields := []string{"OBV", "OBV_MA" + strconv.Itoa(ma)}
	for _, p := range changes {
		fields = append(fields, "OBV_CHANGE_"+strconv.Itoa(p))
	}
	params := []Param{{"ma", float64(ma)}}
	params = append(params, periodParams("change", changes)...)
	need := ma
	for _, p := range changes {
		need = maxInt(need, p+1)
	}
	return &Definition{
		Fields:   fields,
		Params:   params,
		MinBars:  need,
		Lookback: need,
		build: func() calculator {
			c := &obvCalc{prev: newWindow(1), obv: &cumulative{}, ma: newWindow(ma)}
			for _, p := range changes {
				c.lags = append(c.lags, newWindow(p+1))
			}
			return c
		},
	}, nil
}

// vmaCalc: volume moving averages, volume relative to each of them, the
// ratio of each VMA to the next longer one and the daily volume change.
type vmaCalc struct {
	wins []*window
	vols *series
}

func (c *vmaCalc) update(bar model.Bar, out []float64) {
	n := len(c.wins)
	for i, w := range c.wins {
		w.push(bar.Volume)
		out[i] = w.mean()
		out[n+i] = model.SafeDiv(bar.Volume, out[i])
	}
	for i := 1; i < n; i++ {
		out[2*n+i-1] = model.SafeDiv(out[i-1], out[i])
	}
	c.vols.push(bar.Volume)
	prev := c.vols.ago(1)
	out[3*n-1] = model.SafeDiv(bar.Volume-prev, prev)
}

func (c *vmaCalc) nodes() []node {
	ns := make([]node, 0, len(c.wins)+1)
	for _, w := range c.wins {
		ns = append(ns, w)
	}
	return append(ns, c.vols)
}

func buildVMA(spec FamilySpec) (*Definition, error) {
	periods := spec.Periods
	fields := make([]string, 0, 3*len(periods))
	for _, p := range periods {
		fields = append(fields, "VMA_"+strconv.Itoa(p))
	}
	for _, p := range periods {
		fields = append(fields, "VOLUME_RATIO_"+strconv.Itoa(p))
	}
	for i := 1; i < len(periods); i++ {
		fields = append(fields, "VOLUME_TREND_"+strconv.Itoa(periods[i-1])+"_"+strconv.Itoa(periods[i]))
	}
	fields = append(fields, "VOLUME_CHANGE_RATE")
	need := maxInt(maxInt(periods...), 2)
	return &Definition{
		Fields:   fields,
		Params:   periodParams("period", periods),
		MinBars:  need,
		Lookback: need,
		build: func() calculator {
			c := &vmaCalc{vols: newSeries(2)}
			for _, p := range periods {
				c.wins = append(c.wins, newWindow(p))
			}
			return c
		},
	}, nil
}

// pvCalc: rolling correlation between daily price and volume changes, and the
// volume-price trend with its ratio to its own moving average.
type pvCalc struct {
	prevClose *window
	prevVol   *window
	corrs     []*pairWindow
	vpt       *cumulative
	vpts      *series
	vptMA     *window
}

func (c *pvCalc) update(bar model.Bar, out []float64) {
	lastClose, lastVol := c.prevClose.last(), c.prevVol.last()
	priceChg := model.SafeDiv(bar.Close-lastClose, lastClose)
	volChg := model.SafeDiv(bar.Volume-lastVol, lastVol)
	c.prevClose.push(bar.Close)
	c.prevVol.push(bar.Volume)

	for i, p := range c.corrs {
		p.push(priceChg, volChg)
		out[i] = p.corr()
	}

	contrib := 0.0
	if !model.IsNull(priceChg) {
		contrib = priceChg * bar.Volume
	}
	vpt := c.vpt.add(contrib)
	c.vpts.push(vpt)
	c.vptMA.push(vpt)
	n := len(c.corrs)
	out[n] = vpt
	out[n+1] = c.vpts.diff(1)
	out[n+2] = model.SafeDiv(vpt, c.vptMA.mean())
}

func (c *pvCalc) nodes() []node {
	ns := []node{c.prevClose, c.prevVol}
	for _, p := range c.corrs {
		ns = append(ns, p.x, p.y)
	}
	return append(ns, c.vpt, c.vpts, c.vptMA)
}

func buildPV(spec FamilySpec) (*Definition, error) {
	periods := spec.Periods
	ratio := int(param(spec, "vpt_ratio", 20))
	if ratio <= 0 {
		return nil, fmt.Errorf("vpt_ratio %d must be positive", ratio)
	}
	fields := make([]string, 0, len(periods)+3)
	for _, p := range periods {
		if p < 2 {
			return nil, fmt.Errorf("period %d too short for a correlation", p)
		}
		fields = append(fields, "PV_CORR_"+strconv.Itoa(p))
	}
	fields = append(fields, "VPT", "VPT_MOMENTUM", "VPT_RATIO")
	params := periodParams("period", periods)
	params = append(params, Param{"vpt_ratio", float64(ratio)})
	need := maxInt(maxInt(periods...)+1, ratio)
	return &Definition{
		Fields:   fields,
		Params:   params,
		MinBars:  need,
		Lookback: need,
		build: func() calculator {
			c := &pvCalc{
				prevClose: newWindow(1),
				prevVol:   newWindow(1),
				vpt:       &cumulative{},
				vpts:      newSeries(2),
				vptMA:     newWindow(ratio),
			}
			for _, p := range periods {
				c.corrs = append(c.corrs, newPairWindow(p))
			}
			return c
		},
	}, nil
}
