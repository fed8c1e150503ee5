package tripwire

import "fmt"

// EventKind discriminates the execution events a substrate can deliver.
type EventKind uint8

const (
	// LineEvent fires when execution reaches a source line.
	LineEvent EventKind = iota
	// StartEvent fires when a unit begins execution, before its first
	// statement.
	StartEvent
	// ReturnEvent fires once per return from a unit, including early
	// returns, carrying the about-to-be-returned value.
	ReturnEvent
)

func (k EventKind) String() string {
	switch k {
	case LineEvent:
		return "line"
	case StartEvent:
		return "start"
	case ReturnEvent:
		return "return"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Frame is the handle to a live execution context. The substrate supplies
// one per event; all methods are only valid while the event is being
// dispatched, on the dispatching goroutine.
type Frame interface {
	// Local returns the value of a visible local binding.
	Local(name string) (any, bool)

	// SetLocal overwrites a binding in the current scope. Execution resumes
	// with the new value.
	SetLocal(name string, value any)

	// LocalNames returns the names of all visible bindings, sorted.
	LocalNames() []string

	// Line returns the line the frame is currently positioned at. After a
	// successful Redirect it reports the redirected line.
	Line() int

	// Redirect moves the execution point to the given absolute line,
	// skipping every intervening statement. Frame state other than the
	// execution point is preserved.
	Redirect(line int) error

	// ReturnValue returns the value about to be returned. It reports false
	// anywhere but a return event.
	ReturnValue() (any, bool)
}

// Event is one raw execution event delivered by the substrate. Line is only
// meaningful for LineEvent.
type Event struct {
	Unit  *CodeUnit
	Kind  EventKind
	Line  int
	Frame Frame
}

// EventSink receives substrate events synchronously, on the goroutine
// executing the instrumented code. An error returned from Dispatch must
// propagate out through the instrumented execution point itself.
type EventSink interface {
	Dispatch(ev Event) error
}

// Substrate is the low-level execution-tracing capability the engine
// consumes. Each host runtime supplies its own implementation; the script
// interpreter under pkg/tripwire/script is the reference one.
type Substrate interface {
	// Units returns every code unit the substrate can currently observe.
	Units() []*CodeUnit

	// Watch enables event delivery for the unit, routing events to sink.
	// Watching an already-watched unit replaces its sink.
	Watch(u *CodeUnit, sink EventSink)

	// Unwatch disables event delivery for the unit.
	Unwatch(u *CodeUnit)
}

// SnippetRunner is an optional substrate capability: executing a code
// snippet of the host language against a live frame. Exec callbacks require
// it; attaching one to an engine whose substrate does not implement it is a
// registration error.
type SnippetRunner interface {
	// CheckSnippet validates snippet syntax without running it.
	CheckSnippet(src string) error

	// RunSnippet executes the snippet with the frame's locals in scope.
	// Assignments mutate the frame directly.
	RunSnippet(src string, f Frame) error
}
