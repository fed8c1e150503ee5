package tripwire

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/xid"
)

// HandlerState is a handler's lifecycle state.
type HandlerState int32

const (
	// HandlerActive handlers fire on matching events.
	HandlerActive HandlerState = iota
	// HandlerDisabled handlers stay registered but never fire. Their code
	// units remain traced so re-enabling is cheap.
	HandlerDisabled
	// HandlerRemoved is terminal: the handler holds no registry entries and
	// no transition leaves this state.
	HandlerRemoved
)

func (s HandlerState) String() string {
	switch s {
	case HandlerActive:
		return "active"
	case HandlerDisabled:
		return "disabled"
	case HandlerRemoved:
		return "removed"
	default:
		return fmt.Sprintf("HandlerState(%d)", int32(s))
	}
}

// ErrRemoved is returned by lifecycle calls on a removed handler.
var ErrRemoved = fmt.Errorf("handler already removed")

// Handler is the live binding of trigger points, an optional condition, and
// an ordered callback chain. Lifecycle methods are safe to call from any
// goroutine; state changes affect future firings only, never a callback
// already in flight.
type Handler struct {
	id        string
	engine    *Engine
	trigger   *Trigger
	callbacks []*Callback
	state     atomic.Int32
	fired     atomic.Uint64
}

func newHandler(t *Trigger, cbs []*Callback) *Handler {
	h := &Handler{
		id:        xid.New().String(),
		engine:    t.engine,
		trigger:   t,
		callbacks: cbs,
	}
	h.state.Store(int32(HandlerActive))
	return h
}

// ID returns the handler's unique identity.
func (h *Handler) ID() string { return h.id }

// State returns the current lifecycle state.
func (h *Handler) State() HandlerState { return HandlerState(h.state.Load()) }

// Points returns the trigger points the handler is bound to.
func (h *Handler) Points() []TriggerPoint { return h.trigger.Points() }

// FireCount returns how many times the handler's callback chain has run.
func (h *Handler) FireCount() uint64 { return h.fired.Load() }

// Enable transitions a disabled handler back to active. Enabling a removed
// handler fails: removal is terminal.
func (h *Handler) Enable() error {
	return h.transition(HandlerActive)
}

// Disable stops future firings while keeping the handler registered.
func (h *Handler) Disable() error {
	return h.transition(HandlerDisabled)
}

func (h *Handler) transition(to HandlerState) error {
	for {
		cur := h.state.Load()
		if HandlerState(cur) == HandlerRemoved {
			return ErrRemoved
		}
		if h.state.CompareAndSwap(cur, int32(to)) {
			return nil
		}
	}
}

// disableFromSentinel is the DISABLE pathway: transition to Disabled, not
// Removed, and swallow the race against a concurrent Remove.
func (h *Handler) disableFromSentinel() {
	_ = h.transition(HandlerDisabled)
}

// Remove unregisters the handler and releases substrate tracing for any
// code unit no other handler still references. Remove is idempotent and
// terminal; it does not cancel a callback already in flight.
func (h *Handler) Remove() {
	for {
		cur := h.state.Load()
		if HandlerState(cur) == HandlerRemoved {
			return
		}
		if h.state.CompareAndSwap(cur, int32(HandlerRemoved)) {
			break
		}
	}
	h.engine.unregister(h)
}

// Close removes the handler. It implements io.Closer so a handler can be
// scoped with defer.
func (h *Handler) Close() error {
	h.Remove()
	return nil
}

// Scoped runs fn and guarantees the handler is removed on every exit path,
// including error returns and panics.
func Scoped(h *Handler, fn func() error) error {
	defer h.Remove()
	return fn()
}
