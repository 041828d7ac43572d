package indicator

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
)

// FamilySpec is the configured form of one family: which periods to compute and
// any extra numeric parameters. Empty Periods select the family defaults.
type FamilySpec struct {
	Name    string             `yaml:"name" json:"name"`
	Periods []int              `yaml:"periods,omitempty" json:"periods,omitempty"`
	Params  map[string]float64 `yaml:"params,omitempty" json:"params,omitempty"`
}

type familyInfo struct {
	defaults []int
	build    func(spec FamilySpec) (*Definition, error)
}

var registry = map[string]familyInfo{}

func register(name string, defaults []int, build func(spec FamilySpec) (*Definition, error)) {
	if _, dup := registry[name]; dup {
		panic("indicator: family registered twice: " + name)
	}
	registry[name] = familyInfo{defaults: defaults, build: build}
}

func init() {
	register("SMA", []int{5, 10, 20, 60}, buildSMA)
	register("EMA", []int{12, 26}, buildEMA)
	register("WMA", []int{3, 5, 10, 20}, buildWMA)
	register("MACD", []int{12, 26, 9}, buildMACD)
	register("BOLL", []int{20}, buildBOLL)
	register("ATR", []int{10}, buildATR)
	register("VOL", []int{10, 20, 30, 60}, buildVOL)
	register("RSI", []int{6, 12, 24}, buildRSI)
	register("WR", []int{9, 14, 21}, buildWR)
	register("OBV", []int{10, 5, 20}, buildOBV)
	register("VMA", []int{5, 10, 20}, buildVMA)
	register("MOM", []int{10, 20}, buildMOM)
	register("PV", []int{10, 20, 30}, buildPV)
}

// Names returns the registered family names, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DefaultSpecs returns one spec per registered family with default periods.
func DefaultSpecs() []FamilySpec {
	names := Names()
	specs := make([]FamilySpec, 0, len(names))
	for _, n := range names {
		specs = append(specs, FamilySpec{Name: n})
	}
	return specs
}

// Build turns a spec into a Definition rounded to precision decimals.
func Build(spec FamilySpec, precision int32) (*Definition, error) {
	name := strings.ToUpper(strings.TrimSpace(spec.Name))
	info, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown indicator family %q", spec.Name)
	}
	spec.Name = name
	if len(spec.Periods) == 0 {
		spec.Periods = append([]int(nil), info.defaults...)
	}
	for _, p := range spec.Periods {
		if p <= 0 {
			return nil, fmt.Errorf("%s: period %d must be positive", name, p)
		}
	}
	def, err := info.build(spec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	def.Family = name
	def.Precision = precision
	return def, nil
}

// BuildAll builds every spec and rejects duplicate family names.
func BuildAll(specs []FamilySpec, precision int32) ([]*Definition, error) {
	if err := ValidateSpecs(specs); err != nil {
		return nil, err
	}
	defs := make([]*Definition, 0, len(specs))
	for _, s := range specs {
		d, err := Build(s, precision)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// ValidateSpecs checks names, periods and duplicates without building.
func ValidateSpecs(specs []FamilySpec) error {
	if len(specs) == 0 {
		return fmt.Errorf("no indicator families configured")
	}
	seen := make(map[string]bool, len(specs))
	for i, s := range specs {
		name := strings.ToUpper(strings.TrimSpace(s.Name))
		if _, ok := registry[name]; !ok {
			return fmt.Errorf("family %d: unknown indicator family %q (known: %s)", i, s.Name, strings.Join(Names(), ","))
		}
		if seen[name] {
			return fmt.Errorf("family %d: duplicate family %s", i, name)
		}
		seen[name] = true
		for _, p := range s.Periods {
			if p <= 0 {
				return fmt.Errorf("family %s: period %d must be positive", name, p)
			}
		}
	}
	return nil
}

// ParseSpecs parses the compact form "SMA:5,10,20;RSI:6,12;OBV".
// Invalid periods are skipped with a log line; an unknown family is an error.
func ParseSpecs(s string) ([]FamilySpec, error) {
	var specs []FamilySpec
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, list, _ := strings.Cut(part, ":")
		spec := FamilySpec{Name: strings.ToUpper(strings.TrimSpace(name))}
		for _, p := range strings.Split(list, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			n, err := strconv.Atoi(p)
			if err != nil || n <= 0 {
				log.Printf("[indicator] %s: skipping invalid period %q", spec.Name, p)
				continue
			}
			spec.Periods = append(spec.Periods, n)
		}
		specs = append(specs, spec)
	}
	if err := ValidateSpecs(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

func param(spec FamilySpec, key string, def float64) float64 {
	if v, ok := spec.Params[key]; ok {
		return v
	}
	return def
}

func maxInt(vs ...int) int {
	m := 0
	for _, v := range vs {
		if v > m {
			m = v
		}
	}
	return m
}

func indexOf(vs []int, v int) int {
	for i, x := range vs {
		if x == v {
			return i
		}
	}
	return -1
}

func periodParams(prefix string, periods []int) []Param {
	ps := make([]Param, 0, len(periods))
	for _, p := range periods {
		ps = append(ps, Param{Name: prefix, Value: float64(p)})
	}
	return ps
}
