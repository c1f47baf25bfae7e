package channel

import (
	"slices"

	"github.com/roach88/chartflow/internal/expr"
	"github.com/roach88/chartflow/internal/ir"
	"github.com/roach88/chartflow/internal/param"
)

// Role is the visual attribute a channel drives.
type Role string

const (
	RoleX           Role = "x"
	RoleY           Role = "y"
	RoleX2          Role = "x2"
	RoleY2          Role = "y2"
	RoleTheta       Role = "theta"
	RoleRadius      Role = "radius"
	RoleLongitude   Role = "longitude"
	RoleLatitude    Role = "latitude"
	RoleColor       Role = "color"
	RoleStroke      Role = "stroke"
	RoleSize        Role = "size"
	RoleStrokeWidth Role = "strokeWidth"
	RoleOpacity     Role = "opacity"
	RoleTooltip     Role = "tooltip"
	RoleText        Role = "text"
)

// Kind groups roles that share a scale kind.
type Kind string

const (
	KindPosition Kind = "position"
	KindColor    Kind = "color"
	KindSize     Kind = "size"
	KindOpacity  Kind = "opacity"
	KindTooltip  Kind = "tooltip"
	KindText     Kind = "text"
)

var roleKinds = map[Role]Kind{
	RoleX:           KindPosition,
	RoleY:           KindPosition,
	RoleX2:          KindPosition,
	RoleY2:          KindPosition,
	RoleTheta:       KindPosition,
	RoleRadius:      KindPosition,
	RoleLongitude:   KindPosition,
	RoleLatitude:    KindPosition,
	RoleColor:       KindColor,
	RoleStroke:      KindColor,
	RoleSize:        KindSize,
	RoleStrokeWidth: KindSize,
	RoleOpacity:     KindOpacity,
	RoleTooltip:     KindTooltip,
	RoleText:        KindText,
}

// Known reports whether r is a supported role.
func (r Role) Known() bool {
	_, ok := roleKinds[r]
	return ok
}

// Kind returns the scale kind of r.
func (r Role) Kind() Kind {
	return roleKinds[r]
}

// Scale returns the name of the scale r feeds. Secondary position roles
// share their primary's scale; every other role has its own. Tooltip and
// text roles have no scale and return "".
func (r Role) Scale() string {
	switch r {
	case RoleX2:
		return string(RoleX)
	case RoleY2:
		return string(RoleY)
	case RoleTooltip, RoleText:
		return ""
	}
	return string(r)
}

// Field types, as declared on a channel.
const (
	TypeQuantitative = "quantitative"
	TypeNominal      = "nominal"
	TypeOrdinal      = "ordinal"
	TypeTemporal     = "temporal"
)

// Empty decides how a selection rule treats an empty selection.
type Empty string

const (
	// EmptyAll matches every row while nothing is selected ("show all").
	EmptyAll Empty = "all"

	// EmptyNone matches no row while nothing is selected ("dim all").
	EmptyNone Empty = "none"
)

// Rule is one conditional branch of a channel. Exactly one of Test and
// Param is set. When the rule matches, the channel takes Field's value from
// the row, or Value when Field is empty.
type Rule struct {
	Test  *expr.Expr
	Param string
	Empty Empty

	Field string
	Value ir.Value
}

// TooltipField is one entry of a tooltip bundle.
type TooltipField struct {
	Field  string
	Title  string
	Format string
}

// Channel maps rows to one visual attribute. Rules are tried in order and
// the first match wins; otherwise the fallback applies: Field's value when
// set, else Value.
type Channel struct {
	Role   Role
	Field  string
	Value  ir.Value
	Type   string
	Title  string
	Format string
	Rules  []Rule

	// Tooltip lists the entries of a tooltip channel.
	Tooltip []TooltipField

	// Domain, when set, replaces the data-driven scale domain.
	Domain []ir.Value
}

// Scope supplies parameter values and selection sets. *param.Snapshot
// implements it.
type Scope interface {
	expr.Scope
	Selection(name string) (param.Selection, bool)
}

// Params returns the parameters the channel reads, in first-reference
// order.
func (c Channel) Params() []string {
	var out []string
	add := func(name string) {
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	for _, r := range c.Rules {
		if r.Param != "" {
			add(r.Param)
		}
		if r.Test != nil {
			for _, p := range r.Test.Params() {
				add(p)
			}
		}
	}
	return out
}

// Fields returns the row fields the channel reads.
func (c Channel) Fields() []string {
	var out []string
	add := func(name string) {
		if name != "" && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	add(c.Field)
	for _, r := range c.Rules {
		add(r.Field)
		if r.Test != nil {
			for _, f := range r.Test.Fields() {
				add(f)
			}
		}
	}
	for _, t := range c.Tooltip {
		add(t.Field)
	}
	return out
}

// Validate checks the channel declaration.
func (c Channel) Validate() error {
	if !c.Role.Known() {
		return &DefinitionError{Role: c.Role, Message: "unknown role"}
	}
	if c.Field != "" && c.Value != nil {
		return &DefinitionError{Role: c.Role, Message: "field and value are mutually exclusive"}
	}
	if c.Format != "" && !ValidFormat(c.Format) {
		return &DefinitionError{Role: c.Role, Message: "unsupported format " + c.Format}
	}
	for i, r := range c.Rules {
		if (r.Test == nil) == (r.Param == "") {
			return &DefinitionError{Role: c.Role, Rule: i, Message: "rule needs exactly one of test and param"}
		}
		switch r.Empty {
		case "", EmptyAll, EmptyNone:
		default:
			return &DefinitionError{Role: c.Role, Rule: i, Message: "unknown empty policy " + string(r.Empty)}
		}
		if r.Field != "" && r.Value != nil {
			return &DefinitionError{Role: c.Role, Rule: i, Message: "field and value are mutually exclusive"}
		}
	}
	for _, t := range c.Tooltip {
		if t.Field == "" {
			return &DefinitionError{Role: c.Role, Message: "tooltip entry without field"}
		}
		if t.Format != "" && !ValidFormat(t.Format) {
			return &DefinitionError{Role: c.Role, Message: "unsupported format " + t.Format}
		}
	}
	return nil
}
