package scene

import (
	"math"

	"github.com/aclements/go-moremath/scale"
	"github.com/aclements/go-moremath/stats"

	"github.com/roach88/chartflow/internal/ir"
)

// Policy decides whether layers share a scale.
type Policy string

const (
	Shared      Policy = "shared"
	Independent Policy = "independent"
)

// Resolution maps scale names ("x", "y", "color", ...) to a policy. Scales
// not listed are shared.
type Resolution map[string]Policy

func (r Resolution) policy(name string) Policy {
	if p, ok := r[name]; ok && p != "" {
		return p
	}
	return Shared
}

// Scale types.
const (
	ScaleLinear  = "linear"
	ScaleOrdinal = "ordinal"
)

// Scale is the domain of one visual attribute. Linear scales have a
// [min, max] domain; ordinal scales list distinct values in first-seen
// order.
type Scale struct {
	Name   string     `json:"name"`
	Type   string     `json:"type"`
	Domain []ir.Value `json:"domain"`
}

// Map normalizes v into [0, 1] over a linear domain. ok is false for
// ordinal scales, empty domains and non-numeric values.
func (s *Scale) Map(v ir.Value) (float64, bool) {
	if s == nil || s.Type != ScaleLinear || len(s.Domain) != 2 {
		return 0, false
	}
	n, ok := v.(ir.Number)
	if !ok || math.IsNaN(float64(n)) {
		return 0, false
	}
	lo, hi := ir.ToNumber(s.Domain[0]), ir.ToNumber(s.Domain[1])
	if lo == hi {
		return 0.5, true
	}
	return scale.Linear{Min: lo, Max: hi}.Map(float64(n)), true
}

// Index returns the position of v in an ordinal domain, or -1.
func (s *Scale) Index(v ir.Value) int {
	if s == nil {
		return -1
	}
	k := ir.Key(v)
	for i, d := range s.Domain {
		if ir.Key(d) == k {
			return i
		}
	}
	return -1
}

func (s *Scale) value() ir.Value {
	return ir.Object{
		"name":   ir.String(s.Name),
		"type":   ir.String(s.Type),
		"domain": ir.List(s.Domain),
	}
}

// domainBuilder accumulates the values a scale must cover.
type domainBuilder struct {
	name        string
	nominal     []ir.Value
	seen        map[string]bool
	allNumbers  bool
	declared    string // declared field type, if any
	fixedDomain []ir.Value
}

func newDomainBuilder(name string) *domainBuilder {
	return &domainBuilder{name: name, seen: make(map[string]bool), allNumbers: true}
}

func (b *domainBuilder) add(v ir.Value) {
	if !ir.IsValid(v) {
		return
	}
	if _, ok := v.(ir.Number); !ok {
		b.allNumbers = false
	}
	if k := ir.Key(v); !b.seen[k] {
		b.seen[k] = true
		b.nominal = append(b.nominal, v)
	}
}

func (b *domainBuilder) linear() bool {
	switch b.declared {
	case "quantitative", "temporal":
		return true
	case "nominal", "ordinal":
		return false
	}
	return b.allNumbers && len(b.nominal) > 0
}

func (b *domainBuilder) build() *Scale {
	if b.fixedDomain != nil {
		typ := ScaleOrdinal
		if b.linear() && len(b.fixedDomain) == 2 {
			typ = ScaleLinear
		}
		return &Scale{Name: b.name, Type: typ, Domain: b.fixedDomain}
	}
	if b.linear() {
		s := &Scale{Name: b.name, Type: ScaleLinear}
		xs := make([]float64, 0, len(b.nominal))
		for _, v := range b.nominal {
			if x := ir.ToNumber(v); !math.IsNaN(x) {
				xs = append(xs, x)
			}
		}
		if len(xs) > 0 {
			lo, hi := stats.Bounds(xs)
			s.Domain = []ir.Value{ir.Number(lo), ir.Number(hi)}
		}
		return s
	}
	return &Scale{Name: b.name, Type: ScaleOrdinal, Domain: b.nominal}
}
