package scene

import (
	"log/slog"

	"github.com/roach88/chartflow/internal/channel"
	"github.com/roach88/chartflow/internal/ir"
)

// LayerOutput is the result of one layer's pass, as handed to Compose. A
// layer whose pipeline or encoding failed carries Err and no items.
type LayerOutput struct {
	Name     string
	Mark     string
	Channels []channel.Channel
	Items    []channel.Item
	Err      error
}

// Layer is one composed layer. Scales maps each scale the layer uses to
// its effective scale: the chart-wide one when shared, the layer's own when
// independent.
type Layer struct {
	Name       string
	Mark       string
	Items      []channel.Item
	Scales     map[string]*Scale
	Diagnostic string
}

// Failed reports whether the layer could not be computed.
func (l *Layer) Failed() bool {
	return l.Diagnostic != ""
}

// Scene is the renderable output of a chart: layers in draw order (later
// layers paint over earlier ones) and the shared scales.
type Scene struct {
	Layers []*Layer
	Scales map[string]*Scale
}

// Layer returns the layer called name, or nil.
func (s *Scene) Layer(name string) *Layer {
	for _, l := range s.Layers {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// Compose builds the scene. Shared scales union the values of every
// successful layer; independent scales see only their own layer. Failed
// layers keep their position with a diagnostic and contribute nothing.
func Compose(layers []LayerOutput, resolve Resolution) *Scene {
	sc := &Scene{Scales: make(map[string]*Scale)}
	shared := make(map[string]*domainBuilder)
	var sharedOrder []string

	perLayer := make([]map[string]*domainBuilder, len(layers))
	for i, lo := range layers {
		perLayer[i] = make(map[string]*domainBuilder)
		if lo.Err != nil {
			continue
		}
		for _, ch := range lo.Channels {
			name := ch.Role.Scale()
			if name == "" {
				continue
			}
			var b *domainBuilder
			if resolve.policy(name) == Independent {
				b = perLayer[i][name]
				if b == nil {
					b = newDomainBuilder(name)
					perLayer[i][name] = b
				}
			} else {
				b = shared[name]
				if b == nil {
					b = newDomainBuilder(name)
					shared[name] = b
					sharedOrder = append(sharedOrder, name)
				}
			}
			collect(b, ch, lo.Items)
		}
	}

	for _, name := range sharedOrder {
		sc.Scales[name] = shared[name].build()
	}

	for i, lo := range layers {
		l := &Layer{Name: lo.Name, Mark: lo.Mark, Scales: make(map[string]*Scale)}
		if lo.Err != nil {
			l.Diagnostic = lo.Err.Error()
			slog.Error("layer failed",
				"layer", lo.Name,
				"error", lo.Err,
			)
			sc.Layers = append(sc.Layers, l)
			continue
		}
		l.Items = lo.Items
		for _, ch := range lo.Channels {
			name := ch.Role.Scale()
			if name == "" {
				continue
			}
			if b, ok := perLayer[i][name]; ok {
				if _, built := l.Scales[name]; !built {
					l.Scales[name] = b.build()
				}
				continue
			}
			l.Scales[name] = sc.Scales[name]
		}
		sc.Layers = append(sc.Layers, l)
	}
	return sc
}

// collect feeds a channel's data values into a domain. Literal channels
// do not contribute; field fallbacks and field rules do.
func collect(b *domainBuilder, ch channel.Channel, items []channel.Item) {
	if ch.Type != "" {
		b.declared = ch.Type
	}
	if len(ch.Domain) > 0 {
		b.fixedDomain = ch.Domain
	}
	var fields []string
	if ch.Field != "" {
		fields = append(fields, ch.Field)
	}
	for _, r := range ch.Rules {
		if r.Field != "" {
			fields = append(fields, r.Field)
		}
	}
	for _, it := range items {
		for _, f := range fields {
			if v, ok := it.Row[f]; ok {
				b.add(v)
			}
		}
	}
}

// Value renders the scene as a canonical value, for hashing and golden
// files.
func (s *Scene) Value() ir.Value {
	layers := make(ir.List, len(s.Layers))
	for i, l := range s.Layers {
		items := make(ir.List, len(l.Items))
		for j, it := range l.Items {
			items[j] = ir.Object{
				"row":      ir.Object(it.Row),
				"channels": it.Channels,
			}
		}
		scales := make(ir.Object, len(l.Scales))
		for name, sc := range l.Scales {
			scales[name] = sc.value()
		}
		obj := ir.Object{
			"name":   ir.String(l.Name),
			"mark":   ir.String(l.Mark),
			"items":  items,
			"scales": scales,
		}
		if l.Diagnostic != "" {
			obj["diagnostic"] = ir.String(l.Diagnostic)
		}
		layers[i] = obj
	}
	scales := make(ir.Object, len(s.Scales))
	for name, sc := range s.Scales {
		scales[name] = sc.value()
	}
	return ir.Object{"layers": layers, "scales": scales}
}

// Hash returns the content hash of the scene.
func (s *Scene) Hash() (string, error) {
	return ir.SceneHash(s.Value())
}
