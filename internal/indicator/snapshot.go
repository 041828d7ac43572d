package indicator

import (
	"fmt"
	"time"
)

// NodeState holds the serialized state of one streaming node.
type NodeState struct {
	Kind   string `json:"kind"`   // "window", "series", "ewm", "cum"
	Period int    `json:"period"` // window length or EMA span

	// window and series fields; Buf is in chronological order and Nulls
	// lists the Buf positions that hold a null
	Buf   []float64 `json:"buf,omitempty"`
	Nulls []int     `json:"nulls,omitempty"`
	Count int       `json:"count"`

	// ewm / cum fields
	Alpha float64 `json:"alpha,omitempty"`
	Seed  string  `json:"seed,omitempty"`
	Sum   float64 `json:"sum,omitempty"`
	Value float64 `json:"value"`
}

// Checkpoint is the complete calculator state of one family after LastDate.
// Restoring it and feeding the bars that follow reproduces a full run.
type Checkpoint struct {
	Family   string      `json:"family"`
	Bars     int         `json:"bars"`
	LastDate time.Time   `json:"last_date"`
	Lookback int         `json:"lookback"`
	Nodes    []NodeState `json:"nodes"`
}

func snapshotCalculator(def *Definition, c calculator, bars int, last time.Time) Checkpoint {
	ns := c.nodes()
	cp := Checkpoint{
		Family:   def.Family,
		Bars:     bars,
		LastDate: last,
		Lookback: def.Lookback,
		Nodes:    make([]NodeState, 0, len(ns)),
	}
	for _, n := range ns {
		cp.Nodes = append(cp.Nodes, n.state())
	}
	return cp
}

// restoreCalculator builds a fresh calculator for def and loads cp into it.
// Node count, kinds and periods must line up exactly.
func restoreCalculator(def *Definition, cp Checkpoint) (calculator, error) {
	if cp.Family != def.Family {
		return nil, fmt.Errorf("checkpoint family %q, want %q", cp.Family, def.Family)
	}
	if cp.Lookback != def.Lookback {
		return nil, fmt.Errorf("checkpoint lookback %d, want %d", cp.Lookback, def.Lookback)
	}
	c := def.build()
	ns := c.nodes()
	if len(ns) != len(cp.Nodes) {
		return nil, fmt.Errorf("checkpoint has %d nodes, want %d", len(cp.Nodes), len(ns))
	}
	for i, n := range ns {
		if err := n.restore(cp.Nodes[i]); err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
	}
	return c, nil
}

// Validate checks the checkpoint against def without restoring it.
func (cp Checkpoint) Validate(def *Definition) error {
	if cp.Bars <= 0 || cp.LastDate.IsZero() {
		return fmt.Errorf("empty checkpoint")
	}
	_, err := restoreCalculator(def, cp)
	return err
}
