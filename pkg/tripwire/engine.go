package tripwire

import (
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// triggerKey addresses one dispatch bucket. line is zero for start and
// return points.
type triggerKey struct {
	unit string
	kind EventKind
	line int
}

type dispatchTable map[triggerKey][]*Handler

// FiringRecord describes one handler firing, delivered to the engine's
// observer (the dashboard, typically).
type FiringRecord struct {
	HandlerID string    `json:"handler_id"`
	Unit      string    `json:"unit"`
	Kind      string    `json:"kind"`
	Line      int       `json:"line"`
	Time      time.Time `json:"time"`
}

// FiringObserver receives firing records synchronously on the dispatching
// goroutine; implementations must not block.
type FiringObserver func(FiringRecord)

// Engine is the process-wide dispatch registry. It maps trigger points to
// the handlers active there, receives raw execution events from the
// substrate, and keeps per-unit event delivery enabled exactly while at
// least one non-removed handler references the unit.
//
// The hot lookup path reads an atomic snapshot of the dispatch table;
// registration and removal rebuild the snapshot under a mutex. Construct
// independent engines freely: there is no implicit singleton.
type Engine struct {
	substrate Substrate
	logger    *slog.Logger
	debugger  Debugger
	observer  atomic.Pointer[FiringObserver]

	mu       sync.Mutex
	table    atomic.Pointer[dispatchTable]
	watching map[string]*watchRef
	handlers map[string]*Handler
}

type watchRef struct {
	unit  *CodeUnit
	count int
}

// Option configures an engine.
type Option func(*Engine)

// WithLogger sets the engine's structured logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithDebugger sets the debugger Break callbacks suspend into. The default
// is a console debugger on stdin/stdout.
func WithDebugger(d Debugger) Option {
	return func(e *Engine) { e.debugger = d }
}

// New creates an engine over an instrumentation substrate.
func New(sub Substrate, opts ...Option) *Engine {
	e := &Engine{
		substrate: sub,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		debugger:  NewConsoleDebugger(),
		watching:  make(map[string]*watchRef),
		handlers:  make(map[string]*Handler),
	}
	empty := make(dispatchTable)
	e.table.Store(&empty)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Substrate returns the substrate the engine dispatches for.
func (e *Engine) Substrate() Substrate { return e.substrate }

// SetObserver installs a firing observer. A nil fn removes it.
func (e *Engine) SetObserver(fn FiringObserver) {
	if fn == nil {
		e.observer.Store(nil)
		return
	}
	e.observer.Store(&fn)
}

// Handlers returns a snapshot of every registered, non-removed handler.
func (e *Engine) Handlers() []*Handler {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Handler, 0, len(e.handlers))
	for _, h := range e.handlers {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// WatchedUnits returns the names of units currently traced by the
// substrate on the engine's behalf.
func (e *Engine) WatchedUnits() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.watching))
	for name := range e.watching {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Clear unregisters every handler, empties the registry, and tells the
// substrate to stop observing every unit the engine had watched.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, h := range e.handlers {
		h.state.Store(int32(HandlerRemoved))
	}
	for _, ref := range e.watching {
		e.substrate.Unwatch(ref.unit)
	}
	e.handlers = make(map[string]*Handler)
	e.watching = make(map[string]*watchRef)
	empty := make(dispatchTable)
	e.table.Store(&empty)
	e.logger.Debug("registry cleared")
}

// register builds a handler for the trigger and publishes it into the
// dispatch table, enabling substrate tracing for any unit not yet watched.
func (e *Engine) register(t *Trigger, cbs []*Callback) *Handler {
	h := newHandler(t, cbs)

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.cloneTable()
	units := make(map[string]*CodeUnit)
	for _, p := range t.points {
		key := pointKey(p)
		next[key] = append(next[key], h)
		units[p.Unit.Name()] = p.Unit
	}
	e.table.Store(&next)
	e.handlers[h.id] = h

	for name, u := range units {
		ref := e.watching[name]
		if ref == nil {
			ref = &watchRef{unit: u}
			e.watching[name] = ref
			e.substrate.Watch(u, e)
			e.logger.Debug("watching unit", "unit", name)
		}
		ref.count++
	}

	e.logger.Debug("handler registered", "handler", h.id, "points", len(t.points))
	return h
}

// unregister removes the handler's registry entries and re-evaluates
// whether its units still need tracing; the last reference turns substrate
// delivery off again.
func (e *Engine) unregister(h *Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.handlers[h.id]; !ok {
		return
	}
	delete(e.handlers, h.id)

	next := e.cloneTable()
	units := make(map[string]*CodeUnit)
	for _, p := range h.trigger.points {
		key := pointKey(p)
		bucket := next[key]
		trimmed := bucket[:0]
		for _, other := range bucket {
			if other != h {
				trimmed = append(trimmed, other)
			}
		}
		if len(trimmed) == 0 {
			delete(next, key)
		} else {
			next[key] = trimmed
		}
		units[p.Unit.Name()] = p.Unit
	}
	e.table.Store(&next)

	for name, u := range units {
		ref := e.watching[name]
		if ref == nil {
			continue
		}
		ref.count--
		if ref.count <= 0 {
			delete(e.watching, name)
			e.substrate.Unwatch(u)
			e.logger.Debug("unwatching unit", "unit", name)
		}
	}

	e.logger.Debug("handler removed", "handler", h.id)
}

// cloneTable deep-copies the current dispatch table. Buckets are copied so
// in-flight readers of the previous snapshot stay consistent.
func (e *Engine) cloneTable() dispatchTable {
	cur := *e.table.Load()
	next := make(dispatchTable, len(cur)+1)
	for key, bucket := range cur {
		copied := make([]*Handler, len(bucket))
		copy(copied, bucket)
		next[key] = copied
	}
	return next
}

func pointKey(p TriggerPoint) triggerKey {
	key := triggerKey{unit: p.Unit.Name(), kind: p.Kind}
	if p.Kind == LineEvent {
		key.line = p.Line
	}
	return key
}

// Dispatch receives one raw execution event from the substrate and invokes
// matching, enabled handlers in registration order on the calling
// goroutine. When no handler matches it returns after a single map lookup
// on an atomic snapshot; this is the fast path.
//
// A condition signalling DISABLE transitions its handler to Disabled and
// skips the callback chain. Condition, redirect, and callback errors abort
// dispatch and propagate to the substrate, which surfaces them through the
// instrumented execution point.
func (e *Engine) Dispatch(ev Event) error {
	table := *e.table.Load()
	key := triggerKey{unit: ev.Unit.Name(), kind: ev.Kind}
	if ev.Kind == LineEvent {
		key.line = ev.Line
	}
	bucket := table[key]
	if len(bucket) == 0 {
		return nil
	}

	for _, h := range bucket {
		if h.State() != HandlerActive {
			continue
		}
		if cond := h.trigger.cond; cond != nil {
			fire, disable, err := cond.eval(ev)
			if err != nil {
				return err
			}
			if disable {
				h.disableFromSentinel()
				continue
			}
			if !fire {
				continue
			}
		}

		h.fired.Add(1)
		e.notify(h, ev)
		for _, cb := range h.callbacks {
			if err := cb.fire(e, h, ev); err != nil {
				return err
			}
			if h.State() != HandlerActive {
				break
			}
		}
	}
	return nil
}

func (e *Engine) notify(h *Handler, ev Event) {
	fn := e.observer.Load()
	if fn == nil {
		return
	}
	(*fn)(FiringRecord{
		HandlerID: h.id,
		Unit:      ev.Unit.Name(),
		Kind:      ev.Kind.String(),
		Line:      ev.Line,
		Time:      time.Now(),
	})
}
