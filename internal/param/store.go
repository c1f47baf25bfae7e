package param

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/chartflow/internal/ir"
)

// Listener observes changes of one parameter. value is the new value as
// expressions observe it.
type Listener func(name string, value ir.Value)

type subscription struct {
	id int
	fn Listener
}

// Store holds the current values of a chart instance's parameters.
//
// Mutations validate against the parameter's binding, overwrite the value,
// then invoke that parameter's listeners synchronously, in subscription
// order, on the calling goroutine. Listeners run without the store lock
// held, so they may read the store.
//
// Parameters are independent: a mutation of one never touches another.
type Store struct {
	mu         sync.RWMutex
	defs       map[string]Definition
	order      []string
	values     map[string]ir.Value
	selections map[string]Selection
	listeners  map[string][]subscription
	nextID     int
}

// NewStore creates a store holding every definition at its default.
func NewStore(defs ...Definition) (*Store, error) {
	s := &Store{
		defs:       make(map[string]Definition, len(defs)),
		values:     make(map[string]ir.Value, len(defs)),
		selections: make(map[string]Selection),
		listeners:  make(map[string][]subscription),
	}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.defs[d.Name]; dup {
			return nil, invalidDefinition(d.Name, "declared twice")
		}
		s.defs[d.Name] = d
		s.order = append(s.order, d.Name)
		s.resetLocked(d)
	}
	return s, nil
}

// Names returns parameter names in declaration order.
func (s *Store) Names() []string {
	return slices.Clone(s.order)
}

// Definition returns the declaration of name.
func (s *Store) Definition(name string) (Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.defs[name]
	return d, ok
}

// Definitions returns all declarations in declaration order.
func (s *Store) Definitions() []Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Definition, len(s.order))
	for i, n := range s.order {
		out[i] = s.defs[n]
	}
	return out
}

// Get returns the current value of name. Selections are returned in their
// list-of-objects form.
func (s *Store) Get(name string) (ir.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	if !ok {
		return nil, unknownParam(name)
	}
	return v, nil
}

// Selection returns the current selection set of a selection parameter.
func (s *Store) Selection(name string) (Selection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.defs[name]
	if !ok {
		return Selection{}, unknownParam(name)
	}
	if !d.IsSelection() {
		return Selection{}, &Error{Code: ErrCodeNotSelection, Param: name}
	}
	return s.selections[name].clone(), nil
}

// Set validates and assigns a value, then notifies listeners. For selection
// parameters, Null clears and a list of field objects replaces the set.
func (s *Store) Set(name string, value ir.Value) error {
	if value == nil {
		value = ir.Null{}
	}
	return s.mutate(name, func(d Definition) error {
		if d.IsSelection() {
			sel, err := d.selectionFrom(value)
			if err != nil {
				return err
			}
			s.setSelectionLocked(name, sel)
			return nil
		}
		if err := d.check(value); err != nil {
			return err
		}
		s.values[name] = value
		return nil
	})
}

// Check reports whether Set(name, value) would succeed, without changing
// anything or notifying listeners.
func (s *Store) Check(name string, value ir.Value) error {
	if value == nil {
		value = ir.Null{}
	}
	s.mu.RLock()
	d, ok := s.defs[name]
	s.mu.RUnlock()
	if !ok {
		return unknownParam(name)
	}
	if d.IsSelection() {
		_, err := d.selectionFrom(value)
		return err
	}
	return d.check(value)
}

// Reset restores the declared default and notifies listeners.
func (s *Store) Reset(name string) error {
	return s.mutate(name, func(d Definition) error {
		s.resetLocked(d)
		return nil
	})
}

// Select replaces a selection with the given tuples, each ordered like the
// binding's fields.
func (s *Store) Select(name string, tuples ...[]ir.Value) error {
	return s.mutateSelection(name, func(sel Selection) (Selection, error) {
		next := Selection{Fields: sel.Fields}
		for _, t := range tuples {
			if len(t) != len(sel.Fields) {
				return Selection{}, invalidValue(name, "tuple has %d values for %d fields", len(t), len(sel.Fields))
			}
			next = next.with(t)
		}
		return next, nil
	})
}

// Toggle adds the tuple to a selection, or removes it if already selected.
func (s *Store) Toggle(name string, tuple []ir.Value) error {
	return s.mutateSelection(name, func(sel Selection) (Selection, error) {
		if len(tuple) != len(sel.Fields) {
			return Selection{}, invalidValue(name, "tuple has %d values for %d fields", len(tuple), len(sel.Fields))
		}
		return sel.toggled(tuple), nil
	})
}

// Clear empties a selection.
func (s *Store) Clear(name string) error {
	return s.mutateSelection(name, func(sel Selection) (Selection, error) {
		return Selection{Fields: sel.Fields}, nil
	})
}

// Subscribe registers a listener for changes of name. The returned function
// removes it; calling it more than once is harmless.
func (s *Store) Subscribe(name string, fn Listener) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[name]; !ok {
		return nil, unknownParam(name)
	}
	s.nextID++
	id := s.nextID
	s.listeners[name] = append(s.listeners[name], subscription{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.listeners[name] = slices.DeleteFunc(s.listeners[name], func(sub subscription) bool {
			return sub.id == id
		})
	}, nil
}

// Snapshot captures every current value. A snapshot never changes after
// creation; one is taken per recomputation pass.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &Snapshot{
		values:     make(map[string]ir.Value, len(s.values)),
		selections: make(map[string]Selection, len(s.selections)),
	}
	for k, v := range s.values {
		snap.values[k] = v
	}
	for k, sel := range s.selections {
		snap.selections[k] = sel.clone()
	}
	return snap
}

func (s *Store) mutate(name string, apply func(Definition) error) error {
	s.mu.Lock()
	d, ok := s.defs[name]
	if !ok {
		s.mu.Unlock()
		return unknownParam(name)
	}
	if err := apply(d); err != nil {
		s.mu.Unlock()
		return err
	}
	value := s.values[name]
	subs := slices.Clone(s.listeners[name])
	s.mu.Unlock()

	slog.Debug("parameter changed",
		"param", name,
		"value", ir.ToString(value),
		"listeners", len(subs),
	)
	for _, sub := range subs {
		sub.fn(name, value)
	}
	return nil
}

func (s *Store) mutateSelection(name string, apply func(Selection) (Selection, error)) error {
	return s.mutate(name, func(d Definition) error {
		if !d.IsSelection() {
			return &Error{Code: ErrCodeNotSelection, Param: name}
		}
		next, err := apply(s.selections[name])
		if err != nil {
			return err
		}
		s.setSelectionLocked(name, next)
		return nil
	})
}

func (s *Store) setSelectionLocked(name string, sel Selection) {
	s.selections[name] = sel
	s.values[name] = sel.Value()
}

func (s *Store) resetLocked(d Definition) {
	if d.IsSelection() {
		// Definitions are validated before reset, so the default converts.
		sel, _ := d.selectionFrom(d.Default)
		sel.Fields = slices.Clone(d.Binding.Fields)
		s.setSelectionLocked(d.Name, sel)
		return
	}
	s.values[d.Name] = d.defaultValue()
}
