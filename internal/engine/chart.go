package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/chartflow/internal/channel"
	"github.com/roach88/chartflow/internal/ir"
	"github.com/roach88/chartflow/internal/param"
	"github.com/roach88/chartflow/internal/scene"
	"github.com/roach88/chartflow/internal/store"
	"github.com/roach88/chartflow/internal/transform"
)

// DefaultParallelism bounds how many layers of one pass recompute at once.
const DefaultParallelism = 4

// LayerDef is one layer of a chart: where its rows come from, how they are
// shaped and how they are encoded.
type LayerDef struct {
	Name string

	// Data names the layer's input dataset. Empty means the chart's.
	Data string

	Pipeline *transform.Pipeline
	Mark     string
	Channels []channel.Channel
}

// Definition is a compiled chart, ready to instantiate.
type Definition struct {
	Name string

	// Data names the dataset layers read unless they override it.
	Data string

	// Inline holds datasets declared literally in the chart. They are
	// loaded when the chart is created.
	Inline map[string]ir.Table

	Params  []param.Definition
	Layers  []LayerDef
	Resolve scene.Resolution
}

func (d Definition) layerData(i int) string {
	if d.Layers[i].Data != "" {
		return d.Layers[i].Data
	}
	return d.Data
}

// Pass is the outcome of handling one event: which layers were recomputed
// and the scene that resulted.
type Pass struct {
	ID         string
	Seq        int64
	EventID    string
	Event      Event
	Recomputed []string
	Scene      *scene.Scene
	SceneHash  string

	// TableHashes holds the content hash of each recomputed layer's final
	// table, keyed by layer name. Failed layers are absent.
	TableHashes map[string]string
}

// SceneListener observes every completed pass.
type SceneListener func(Pass)

// Chart is the runtime of one chart instance.
//
// External events (dataset loads, parameter changes) are submitted with
// Dispatch or the typed helpers and applied strictly in arrival order by a
// single writer, either the Run loop or Drain. No event is dropped or
// coalesced: each runs its own recomputation pass to completion before the
// next is dequeued.
//
// A parameter mutation recomputes exactly the layers whose pipeline or
// channels reference it. Those layers run in parallel, bounded by
// WithParallelism; stages within a layer run sequentially. A failing layer
// is rendered with a diagnostic and does not affect the others.
type Chart struct {
	def     Definition
	params  *param.Store
	deps    *dependencyIndex
	queue   *eventQueue
	clock   Sequencer
	passGen PassGenerator
	store   *store.Store
	budget  RowBudget

	parallelism int

	// loop serializes event handling between Run and Drain.
	loop sync.Mutex

	dirtyMu sync.Mutex
	dirty   map[int]bool

	mu       sync.RWMutex
	datasets map[string]ir.Table
	outputs  []scene.LayerOutput
	scene    *scene.Scene
	last     Pass

	listenersMu sync.Mutex
	listeners   []listenerEntry
	nextID      int
}

type listenerEntry struct {
	id int
	fn SceneListener
}

// Option configures a Chart.
type Option func(*Chart)

// WithStore records every applied event and pass in s.
func WithStore(s *store.Store) Option {
	return func(c *Chart) {
		c.store = s
	}
}

// WithParallelism bounds concurrent layer recomputation. Values below 1
// mean 1.
func WithParallelism(n int) Option {
	return func(c *Chart) {
		c.parallelism = max(n, 1)
	}
}

// WithPassGenerator sets the source of pass IDs.
func WithPassGenerator(g PassGenerator) Option {
	return func(c *Chart) {
		c.passGen = g
	}
}

// WithClock sets the logical clock stamping events.
func WithClock(s Sequencer) Option {
	return func(c *Chart) {
		c.clock = s
	}
}

// WithMaxRows fails any layer whose pipeline produces more than n rows.
func WithMaxRows(n int) Option {
	return func(c *Chart) {
		c.budget = NewRowBudget(n)
	}
}

// New instantiates a chart. Inline datasets are loaded and an initial scene
// is composed before New returns; the initial scene is not recorded.
func New(def Definition, opts ...Option) (*Chart, error) {
	def.Layers = slices.Clone(def.Layers)
	for i := range def.Layers {
		if def.Layers[i].Pipeline == nil {
			def.Layers[i].Pipeline = emptyPipeline()
		}
	}
	if err := validateDefinition(def); err != nil {
		return nil, err
	}

	params, err := param.NewStore(def.Params...)
	if err != nil {
		return nil, fmt.Errorf("chart %s: %w", def.Name, err)
	}

	c := &Chart{
		def:         def,
		params:      params,
		deps:        buildDependencies(def),
		queue:       newEventQueue(),
		clock:       NewClock(),
		passGen:     UUIDv7Generator{},
		budget:      NewRowBudget(DefaultMaxRows),
		parallelism: DefaultParallelism,
		dirty:       make(map[int]bool),
		datasets:    make(map[string]ir.Table, len(def.Inline)),
		outputs:     make([]scene.LayerOutput, len(def.Layers)),
	}
	for _, opt := range opts {
		opt(c)
	}

	for name, t := range def.Inline {
		c.datasets[name] = t
	}

	// Mutations mark dependent layers dirty; the pass that follows the
	// event recomputes them.
	for _, name := range params.Names() {
		if _, err := params.Subscribe(name, func(name string, _ ir.Value) {
			c.markDirty(c.deps.params(name))
		}); err != nil {
			return nil, fmt.Errorf("chart %s: %w", def.Name, err)
		}
	}

	results := c.recompute(context.Background(), c.deps.all(), params.Snapshot())
	c.commit(results)
	c.mu.Lock()
	c.last = Pass{Scene: c.scene, Recomputed: layerNames(def, c.deps.all())}
	c.mu.Unlock()

	return c, nil
}

func validateDefinition(def Definition) error {
	fail := func(format string, args ...any) error {
		return &RuntimeError{Code: ErrCodeInvalidDefinition, Message: fmt.Sprintf(format, args...), Chart: def.Name}
	}
	if def.Name == "" {
		return fail("chart has no name")
	}
	declared := make(map[string]bool, len(def.Params))
	for _, p := range def.Params {
		declared[p.Name] = true
	}
	seen := make(map[string]bool, len(def.Layers))
	for i, l := range def.Layers {
		if l.Name == "" {
			return fail("layer %d has no name", i)
		}
		if seen[l.Name] {
			return fail("layer %q declared twice", l.Name)
		}
		seen[l.Name] = true
		if def.layerData(i) == "" {
			return fail("layer %q has no data source", l.Name)
		}
		for _, p := range l.Pipeline.Params() {
			if !declared[p] {
				return fail("layer %q references undeclared parameter %q", l.Name, p)
			}
		}
		for _, ch := range l.Channels {
			if err := ch.Validate(); err != nil {
				return fmt.Errorf("chart %s layer %s: %w", def.Name, l.Name, err)
			}
			for _, p := range ch.Params() {
				if !declared[p] {
					return fail("layer %q channel %s references undeclared parameter %q", l.Name, ch.Role, p)
				}
			}
		}
	}
	return nil
}

// Name returns the chart name.
func (c *Chart) Name() string {
	return c.def.Name
}

// Dispatch submits an event for processing.
// Thread-safe: may be called from any goroutine.
func (c *Chart) Dispatch(ev Event) error {
	if !c.queue.Enqueue(ev) {
		return stoppedError(c.def.Name)
	}
	slog.Debug("event dispatched",
		"chart", c.def.Name,
		"kind", ev.Kind,
		"name", ev.Name,
	)
	return nil
}

// Load dispatches a dataset load.
func (c *Chart) Load(dataset string, t ir.Table) error {
	return c.Dispatch(Load(dataset, t))
}

// SetParameter validates value against the parameter's binding and
// dispatches the assignment. Invalid values are rejected here, before they
// reach the queue.
func (c *Chart) SetParameter(name string, value ir.Value) error {
	if err := c.params.Check(name, value); err != nil {
		return err
	}
	return c.Dispatch(Set(name, value))
}

// GetParameter returns the current value of a parameter. Values change only
// when the event that sets them is applied.
func (c *Chart) GetParameter(name string) (ir.Value, error) {
	return c.params.Get(name)
}

// ResetParameter dispatches a reset to the declared default.
func (c *Chart) ResetParameter(name string) error {
	if _, err := c.params.Get(name); err != nil {
		return err
	}
	return c.Dispatch(Reset(name))
}

// SelectValues dispatches a selection replacement.
func (c *Chart) SelectValues(name string, tuples ...[]ir.Value) error {
	if err := c.requireSelection(name); err != nil {
		return err
	}
	return c.Dispatch(Select(name, tuples...))
}

// ToggleValue dispatches a selection toggle, as a legend click does.
func (c *Chart) ToggleValue(name string, tuple ...ir.Value) error {
	if err := c.requireSelection(name); err != nil {
		return err
	}
	return c.Dispatch(Toggle(name, tuple...))
}

// ClearSelection dispatches a selection clear.
func (c *Chart) ClearSelection(name string) error {
	if err := c.requireSelection(name); err != nil {
		return err
	}
	return c.Dispatch(Clear(name))
}

func (c *Chart) requireSelection(name string) error {
	_, err := c.params.Selection(name)
	return err
}

// Selection returns the current set of a selection parameter.
func (c *Chart) Selection(name string) (param.Selection, error) {
	return c.params.Selection(name)
}

// Bindings returns the parameter declarations a UI renders controls from,
// in declaration order.
func (c *Chart) Bindings() []param.Definition {
	return c.params.Definitions()
}

// Dependencies returns the parameters and datasets a layer reads.
func (c *Chart) Dependencies(layer string) (params, datasets []string, ok bool) {
	for i, l := range c.def.Layers {
		if l.Name == layer {
			return slices.Clone(c.deps.layerParams[i]), slices.Clone(c.deps.layerDatasets[i]), true
		}
	}
	return nil, nil, false
}

// Scene returns the most recently composed scene.
func (c *Chart) Scene() *scene.Scene {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scene
}

// LastPass returns the most recent pass. Before any event is applied it
// describes the initial render.
func (c *Chart) LastPass() Pass {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Pending returns the number of queued, unapplied events.
func (c *Chart) Pending() int {
	return c.queue.Len()
}

// Subscribe registers a listener for completed passes. Listeners run on the
// event loop goroutine, after the scene is committed. The returned function
// removes the listener.
func (c *Chart) Subscribe(fn SceneListener) func() {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		c.listeners = slices.DeleteFunc(c.listeners, func(e listenerEntry) bool {
			return e.id == id
		})
	}
}

// Run starts the single-writer event loop.
// Blocks until the context is cancelled or Stop is called and the queue is
// drained.
//
// ERROR HANDLING: a rejected event is logged with its context and the loop
// continues. The chart's state is unchanged by a rejected event.
func (c *Chart) Run(ctx context.Context) error {
	slog.Info("chart starting", "chart", c.def.Name)

	for {
		ev, ok := c.queue.TryDequeue()
		if ok {
			if _, err := c.handle(ctx, ev); err != nil {
				logEventError(c.def.Name, ev, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("chart stopping: context cancelled", "chart", c.def.Name)
			c.queue.Close()
			return ctx.Err()

		case <-c.queue.Wait():
			// The signal channel closes with the queue.
			if c.queue.Closed() && c.queue.Len() == 0 {
				slog.Info("chart stopping: queue closed", "chart", c.def.Name)
				return nil
			}
		}
	}
}

// Drain applies every queued event on the calling goroutine and returns
// the rejected events' errors joined. It is the synchronous alternative to
// Run, used by the CLI, the harness and tests.
func (c *Chart) Drain(ctx context.Context) error {
	var errs []error
	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		ev, ok := c.queue.TryDequeue()
		if !ok {
			return errors.Join(errs...)
		}
		if _, err := c.handle(ctx, ev); err != nil {
			logEventError(c.def.Name, ev, err)
			errs = append(errs, err)
		}
	}
}

// Stop closes the event queue. Events already queued are still applied by
// Run before it returns.
func (c *Chart) Stop() {
	c.queue.Close()
}

func logEventError(chart string, ev Event, err error) {
	slog.Error("event rejected",
		"chart", chart,
		"kind", ev.Kind,
		"name", ev.Name,
		"error", err,
	)
}

// handle applies one event and runs its pass.
func (c *Chart) handle(ctx context.Context, ev Event) (Pass, error) {
	c.loop.Lock()
	defer c.loop.Unlock()

	c.takeDirty()
	if err := c.apply(ev); err != nil {
		c.takeDirty()
		return Pass{}, err
	}
	dirty := c.takeDirty()
	// Until the pass runs, a failure leaves the applied change pending so
	// the next pass renders it.
	abort := func(err error) (Pass, error) {
		c.markDirty(dirty)
		return Pass{}, err
	}

	seq := c.clock.Next()
	payload := ev.Payload()
	eventID, err := ir.EventID(c.def.Name, seq, string(ev.Kind), ev.Name, payload)
	if err != nil {
		return abort(fmt.Errorf("event id: %w", err))
	}

	if c.store != nil {
		err := c.store.WriteEvent(ctx, store.EventRecord{
			ID:      eventID,
			Chart:   c.def.Name,
			Seq:     seq,
			Kind:    string(ev.Kind),
			Name:    ev.Name,
			Payload: payload,
		})
		if err != nil {
			return abort(fmt.Errorf("record event: %w", err))
		}
	}

	slog.Debug("processing event",
		"chart", c.def.Name,
		"seq", seq,
		"kind", ev.Kind,
		"name", ev.Name,
		"layers", len(dirty),
	)

	// An in-flight pass is never cancelled.
	results := c.recompute(context.WithoutCancel(ctx), dirty, c.params.Snapshot())
	sc := c.commit(results)

	hash, err := sc.Hash()
	if err != nil {
		return Pass{}, fmt.Errorf("scene hash: %w", err)
	}

	pass := Pass{
		ID:          c.passGen.Generate(),
		Seq:         seq,
		EventID:     eventID,
		Event:       ev,
		Recomputed:  layerNames(c.def, dirty),
		Scene:       sc,
		SceneHash:   hash,
		TableHashes: make(map[string]string, len(results)),
	}
	for _, r := range results {
		if r.output.Err == nil {
			pass.TableHashes[r.output.Name] = r.tableHash
		}
	}

	if c.store != nil {
		if err := c.record(ctx, pass, results); err != nil {
			return pass, err
		}
	}

	c.mu.Lock()
	c.last = pass
	c.mu.Unlock()

	slog.Info("pass completed",
		"chart", c.def.Name,
		"seq", seq,
		"pass_id", pass.ID,
		"recomputed", len(dirty),
		"scene_hash", hash,
	)

	c.notify(pass)
	return pass, nil
}

// apply mutates chart state for one event. Parameter mutations mark their
// dependent layers dirty through the store's listeners.
func (c *Chart) apply(ev Event) error {
	switch ev.Kind {
	case EventLoad:
		if ev.Table == nil {
			return invalidEventError(c.def.Name, ev, "load without a table")
		}
		layers := c.deps.datasets(ev.Name)
		if len(layers) == 0 {
			return unknownDatasetError(c.def.Name, ev.Name)
		}
		c.mu.Lock()
		c.datasets[ev.Name] = *ev.Table
		c.mu.Unlock()
		c.markDirty(layers)
		slog.Info("dataset loaded",
			"chart", c.def.Name,
			"dataset", ev.Name,
			"rows", ev.Table.Len(),
		)
		return nil
	case EventSet:
		return c.params.Set(ev.Name, ev.Value)
	case EventReset:
		return c.params.Reset(ev.Name)
	case EventSelect:
		return c.params.Select(ev.Name, ev.Tuples...)
	case EventToggle:
		if len(ev.Tuples) != 1 {
			return invalidEventError(c.def.Name, ev, "toggle needs exactly one tuple, got %d", len(ev.Tuples))
		}
		return c.params.Toggle(ev.Name, ev.Tuples[0])
	case EventClear:
		return c.params.Clear(ev.Name)
	}
	return invalidEventError(c.def.Name, ev, "unknown event kind %q", ev.Kind)
}

func (c *Chart) markDirty(layers []int) {
	c.dirtyMu.Lock()
	defer c.dirtyMu.Unlock()
	for _, i := range layers {
		c.dirty[i] = true
	}
}

// takeDirty returns the dirty layers in declaration order and clears the
// set.
func (c *Chart) takeDirty() []int {
	c.dirtyMu.Lock()
	defer c.dirtyMu.Unlock()
	out := slices.Sorted(maps.Keys(c.dirty))
	clear(c.dirty)
	return out
}

// commit stores recomputed layer outputs and composes the scene from every
// layer's latest output.
func (c *Chart) commit(results []layerResult) *scene.Scene {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range results {
		c.outputs[r.index] = r.output
	}
	c.scene = scene.Compose(slices.Clone(c.outputs), c.def.Resolve)
	return c.scene
}

func (c *Chart) record(ctx context.Context, pass Pass, results []layerResult) error {
	passes := make([]store.PassRecord, 0, len(results))
	for _, r := range results {
		p := store.PassRecord{
			Layer:      r.output.Name,
			LayerIndex: r.index,
			Rows:       r.rows,
			TableHash:  r.tableHash,
		}
		if r.output.Err != nil {
			p.Error = r.output.Err.Error()
		}
		passes = append(passes, p)
	}
	_, err := c.store.WritePassAtomic(ctx, store.SceneRecord{
		EventID:   pass.EventID,
		PassID:    pass.ID,
		Chart:     c.def.Name,
		Seq:       pass.Seq,
		SceneHash: pass.SceneHash,
	}, passes)
	if err != nil {
		return fmt.Errorf("record pass: %w", err)
	}
	return nil
}

func (c *Chart) notify(pass Pass) {
	c.listenersMu.Lock()
	subs := slices.Clone(c.listeners)
	c.listenersMu.Unlock()
	for _, s := range subs {
		s.fn(pass)
	}
}

func layerNames(def Definition, idx []int) []string {
	names := make([]string, len(idx))
	for i, n := range idx {
		names[i] = def.Layers[n].Name
	}
	return names
}
