package indicator

import (
	"fmt"
	"math"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
)

// node is a streaming building block whose state can be checkpointed.
type node interface {
	state() NodeState
	restore(s NodeState) error
}

// window keeps the last period defined values in a preallocated circular buffer.
// Aggregates are summed directly over the buffer in chronological order, so the
// result depends only on the values held, never on how the buffer was filled.
type window struct {
	period int
	buf    []float64
	idx    int // next write position
	count  int // total values received
}

func newWindow(period int) *window {
	return &window{period: period, buf: make([]float64, period)}
}

// push adds v; undefined values are ignored.
func (w *window) push(v float64) {
	if model.IsNull(v) {
		return
	}
	w.buf[w.idx] = v
	w.idx = (w.idx + 1) % w.period
	w.count++
}

func (w *window) full() bool { return w.count >= w.period }

func (w *window) len() int {
	if w.count < w.period {
		return w.count
	}
	return w.period
}

// at returns the i-th held value, oldest first.
func (w *window) at(i int) float64 {
	if w.count < w.period {
		return w.buf[i]
	}
	return w.buf[(w.idx+i)%w.period]
}

// last returns the most recent value, or Null when empty.
func (w *window) last() float64 {
	if w.count == 0 {
		return model.Null
	}
	return w.at(w.len() - 1)
}

// oldest returns the value period-1 pushes ago once the window is full.
func (w *window) oldest() float64 {
	if !w.full() {
		return model.Null
	}
	return w.at(0)
}

func (w *window) sum() float64 {
	s := 0.0
	for i := 0; i < w.period; i++ {
		s += w.at(i)
	}
	return s
}

func (w *window) mean() float64 {
	if !w.full() {
		return model.Null
	}
	return w.sum() / float64(w.period)
}

// std is the sample standard deviation (ddof=1).
func (w *window) std() float64 {
	if !w.full() || w.period < 2 {
		return model.Null
	}
	m := w.sum() / float64(w.period)
	ss := 0.0
	for i := 0; i < w.period; i++ {
		d := w.at(i) - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(w.period-1))
}

func (w *window) min() float64 {
	if !w.full() {
		return model.Null
	}
	m := w.at(0)
	for i := 1; i < w.period; i++ {
		if v := w.at(i); v < m {
			m = v
		}
	}
	return m
}

func (w *window) max() float64 {
	if !w.full() {
		return model.Null
	}
	m := w.at(0)
	for i := 1; i < w.period; i++ {
		if v := w.at(i); v > m {
			m = v
		}
	}
	return m
}

// wma is the linearly weighted mean, weight 1 on the oldest value and period on the newest.
func (w *window) wma() float64 {
	if !w.full() {
		return model.Null
	}
	num := 0.0
	for i := 0; i < w.period; i++ {
		num += float64(i+1) * w.at(i)
	}
	den := float64(w.period*(w.period+1)) / 2
	return num / den
}

func (w *window) state() NodeState {
	n := w.len()
	buf := make([]float64, n)
	for i := 0; i < n; i++ {
		buf[i] = w.at(i)
	}
	return NodeState{Kind: "window", Period: w.period, Buf: buf, Count: w.count}
}

func (w *window) restore(s NodeState) error {
	if s.Kind != "window" || s.Period != w.period {
		return fmt.Errorf("want window(%d), got %s(%d)", w.period, s.Kind, s.Period)
	}
	want := s.Count
	if want > w.period {
		want = w.period
	}
	if s.Count < 0 || len(s.Buf) != want {
		return fmt.Errorf("window(%d) holds %d values for count %d", w.period, len(s.Buf), s.Count)
	}
	w.buf = make([]float64, w.period)
	copy(w.buf, s.Buf)
	w.idx = len(s.Buf) % w.period
	w.count = s.Count
	return nil
}

// pairWindow keeps two aligned windows for rolling correlation.
// A pair is only recorded when both sides are defined.
type pairWindow struct {
	x, y *window
}

func newPairWindow(period int) *pairWindow {
	return &pairWindow{x: newWindow(period), y: newWindow(period)}
}

func (p *pairWindow) push(x, y float64) {
	if model.IsNull(x) || model.IsNull(y) {
		return
	}
	p.x.push(x)
	p.y.push(y)
}

// corr is the Pearson correlation of the held pairs; Null when either side has no variance.
func (p *pairWindow) corr() float64 {
	if !p.x.full() {
		return model.Null
	}
	n := float64(p.x.period)
	mx, my := p.x.sum()/n, p.y.sum()/n
	var sxy, sxx, syy float64
	for i := 0; i < p.x.period; i++ {
		dx, dy := p.x.at(i)-mx, p.y.at(i)-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	return model.SafeDiv(sxy, math.Sqrt(sxx*syy))
}

// series keeps the last period values of a derived series with nulls kept in
// place, so lags and rolling extremes refer to calendar positions rather than
// to the last defined values.
type series struct {
	period int
	buf    []float64
	idx    int
	count  int
}

func newSeries(period int) *series {
	return &series{period: period, buf: make([]float64, period)}
}

func (s *series) push(v float64) {
	s.buf[s.idx] = v
	s.idx = (s.idx + 1) % s.period
	s.count++
}

func (s *series) len() int {
	if s.count < s.period {
		return s.count
	}
	return s.period
}

// ago returns the value pushed k steps before the latest, or Null if there is none.
func (s *series) ago(k int) float64 {
	if k >= s.period || k >= s.count {
		return model.Null
	}
	return s.buf[(s.idx-1-k+2*s.period)%s.period]
}

// diff is latest − value k steps earlier.
func (s *series) diff(k int) float64 {
	return s.ago(0) - s.ago(k)
}

// changeRate is the percent change over k steps relative to |earlier|.
func (s *series) changeRate(k int) float64 {
	base := s.ago(k)
	return model.SafeDiv(s.ago(0)-base, math.Abs(base)) * 100
}

// span is max − min of a full window; Null when any held value is null.
func (s *series) span() float64 {
	if s.count < s.period {
		return model.Null
	}
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, v := range s.buf {
		if model.IsNull(v) {
			return model.Null
		}
		hi = math.Max(hi, v)
		lo = math.Min(lo, v)
	}
	return hi - lo
}

func (s *series) state() NodeState {
	n := s.len()
	buf := make([]float64, n)
	var nulls []int
	for i := 0; i < n; i++ {
		v := s.buf[(s.idx-n+i+s.period)%s.period]
		if model.IsNull(v) {
			nulls = append(nulls, i)
			v = 0
		}
		buf[i] = v
	}
	return NodeState{Kind: "series", Period: s.period, Buf: buf, Nulls: nulls, Count: s.count}
}

func (s *series) restore(st NodeState) error {
	if st.Kind != "series" || st.Period != s.period {
		return fmt.Errorf("want series(%d), got %s(%d)", s.period, st.Kind, st.Period)
	}
	want := st.Count
	if want > s.period {
		want = s.period
	}
	if st.Count < 0 || len(st.Buf) != want {
		return fmt.Errorf("series(%d) holds %d values for count %d", s.period, len(st.Buf), st.Count)
	}
	s.buf = make([]float64, s.period)
	copy(s.buf, st.Buf)
	for _, i := range st.Nulls {
		if i < 0 || i >= len(st.Buf) {
			return fmt.Errorf("series(%d) null index %d out of range", s.period, i)
		}
		s.buf[i] = model.Null
	}
	s.idx = len(st.Buf) % s.period
	s.count = st.Count
	return nil
}
