// Package indicator is the generic indicator engine.
//
// Every indicator family is a Definition: an ordered list of output fields,
// the numeric parameters that shape them, and a constructor for a calculator
// built from a handful of streaming nodes (trailing windows, exponential
// recurrences, running sums). Calculators consume bars one at a time, so a
// full computation and a continuation from a checkpoint execute exactly the
// same floating-point operations in the same order.
package indicator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
)

// engineVersion is mixed into every fingerprint; bump it when a formula changes.
const engineVersion = 2

// Param is one named numeric parameter of a family.
type Param struct {
	Name  string
	Value float64
}

// Definition describes one indicator family with concrete parameters.
type Definition struct {
	Family    string
	Fields    []string
	Params    []Param
	Precision int32

	// MinBars is the number of clean bars needed before every field can be defined.
	MinBars int
	// Lookback is the exact number of trailing raw bars that determine the
	// windowed part of the state; recurrences are carried in the checkpoint.
	Lookback int

	build func() calculator
}

// calculator is the per-instrument streaming state of one family.
type calculator interface {
	// update consumes the next bar and writes one unrounded value per field into out.
	update(bar model.Bar, out []float64)
	// nodes lists the stateful building blocks in a stable order.
	nodes() []node
}

// Fingerprint hashes everything that shapes the numbers of this family.
func (d *Definition) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "v%d|%s|p%d|", engineVersion, d.Family, d.Precision)
	b.WriteString(strings.Join(d.Fields, ","))
	for _, p := range d.Params {
		b.WriteString("|")
		b.WriteString(p.Name)
		b.WriteString("=")
		b.WriteString(strconv.FormatFloat(p.Value, 'g', -1, 64))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// FieldIndex returns the position of a field, or -1.
func (d *Definition) FieldIndex(name string) int {
	for i, f := range d.Fields {
		if f == name {
			return i
		}
	}
	return -1
}

func (d *Definition) String() string {
	parts := make([]string, 0, len(d.Params))
	for _, p := range d.Params {
		parts = append(parts, p.Name+"="+strconv.FormatFloat(p.Value, 'g', -1, 64))
	}
	return d.Family + "(" + strings.Join(parts, ",") + ")"
}
