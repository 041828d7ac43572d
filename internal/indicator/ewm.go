package indicator

import (
	"fmt"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
)

// Seed modes of an exponential recurrence.
const (
	SeedFirst = "first" // y[0] = x[0]
	SeedSMA   = "sma"   // y[span-1] = mean(x[0..span-1])
)

// ewm is the recurrence y[t] = α·x[t] + (1−α)·y[t−1].
// O(1) per update; the whole history is summarized by (count, sum, value).
type ewm struct {
	alpha float64
	span  int
	seed  string
	count int
	sum   float64
	value float64
}

// newEMA returns an ewm with α = 2/(span+1).
func newEMA(span int, seed string) *ewm {
	return &ewm{alpha: 2.0 / float64(span+1), span: span, seed: seed}
}

// newWilder returns an ewm with α = 1/period, seeded with the first value.
func newWilder(period int) *ewm {
	return &ewm{alpha: 1.0 / float64(period), span: period, seed: SeedFirst}
}

// push feeds x and returns the current value, or Null while unseeded.
// Undefined inputs leave the state untouched.
func (e *ewm) push(x float64) float64 {
	if model.IsNull(x) {
		return e.current()
	}
	e.count++
	if e.seed == SeedSMA && e.count <= e.span {
		e.sum += x
		if e.count == e.span {
			e.value = e.sum / float64(e.span)
		}
		return e.current()
	}
	if e.count == 1 {
		e.value = x
		return e.value
	}
	e.value = e.alpha*x + (1-e.alpha)*e.value
	return e.value
}

func (e *ewm) seeded() bool {
	if e.seed == SeedSMA {
		return e.count >= e.span
	}
	return e.count >= 1
}

func (e *ewm) current() float64 {
	if !e.seeded() {
		return model.Null
	}
	return e.value
}

func (e *ewm) state() NodeState {
	return NodeState{
		Kind:   "ewm",
		Period: e.span,
		Alpha:  e.alpha,
		Seed:   e.seed,
		Count:  e.count,
		Sum:    e.sum,
		Value:  e.value,
	}
}

func (e *ewm) restore(s NodeState) error {
	if s.Kind != "ewm" || s.Period != e.span || s.Seed != e.seed || s.Alpha != e.alpha {
		return fmt.Errorf("want ewm(%d,%s), got %s(%d,%s)", e.span, e.seed, s.Kind, s.Period, s.Seed)
	}
	if s.Count < 0 {
		return fmt.Errorf("ewm count %d", s.Count)
	}
	e.count = s.Count
	e.sum = s.Sum
	e.value = s.Value
	return nil
}

// cumulative is a running total (OBV, VPT).
type cumulative struct {
	count int
	value float64
}

func (c *cumulative) add(v float64) float64 {
	if !model.IsNull(v) {
		c.value += v
		c.count++
	}
	return c.current()
}

// set overrides the running total; used to seed OBV with the first volume.
func (c *cumulative) set(v float64) float64 {
	c.value = v
	c.count++
	return c.value
}

func (c *cumulative) current() float64 {
	if c.count == 0 {
		return model.Null
	}
	return c.value
}

func (c *cumulative) state() NodeState {
	return NodeState{Kind: "cum", Count: c.count, Value: c.value}
}

func (c *cumulative) restore(s NodeState) error {
	if s.Kind != "cum" || s.Count < 0 {
		return fmt.Errorf("want cum, got %s", s.Kind)
	}
	c.count = s.Count
	c.value = s.Value
	return nil
}
