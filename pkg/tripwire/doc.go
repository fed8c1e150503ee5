// Package tripwire provides a trigger-resolution and event-dispatch engine
// for attaching behavior to specific points inside a running program's
// source. Trigger points are located by flexible descriptors (line numbers,
// text patterns, regular expressions, or named lifecycle events) rather than
// by fixed instrumentation hooks placed in advance.
//
// # Quick Start
//
// Create an engine over an instrumentation substrate and register a handler:
//
//	prog, _ := script.Parse(src)
//	interp := script.NewInterp(prog)
//	engine := tripwire.New(interp)
//
//	unit, _ := interp.Unit("inc")
//	trg, err := engine.When(tripwire.Unit(unit),
//		[]tripwire.Identifier{tripwire.Text("x += 0")},
//	)
//	h, err := trg.Do(tripwire.Exec("x = x + 1"))
//	defer h.Close()
//
// Every time execution reaches a line whose indentation-stripped text starts
// with "x += 0", the snippet runs against the live frame.
//
// # Identifiers
//
// An identifier describes where a trigger fires within a code unit:
//
//	tripwire.Line(42)          // absolute line number
//	tripwire.Offset(2)         // declaration line + 2
//	tripwire.Text("return x")  // prefix match, indentation-stripped
//	tripwire.Pattern(re)       // regexp match anywhere in the line
//	tripwire.Start             // unit entry, before the first statement
//	tripwire.Return            // every return, carrying the return value
//	tripwire.All(ids...)       // intersection: a line must satisfy all
//
// Passing several identifiers to When forms a union: the handler fires at
// every point any of them resolves to.
//
// # Callbacks
//
// Callbacks act on the live frame, chained in attach order:
//
//	tripwire.Exec("x = 1")            // snippet run by the substrate
//	tripwire.Call(fn, "x", "_frame")  // function fed locals by name
//	tripwire.Break()                  // suspend into the debugger
//	tripwire.Goto("+2")               // jump, offsets anchored at the current line
//
// # Conditions and the DISABLE sentinel
//
// A condition gates firing. Textual conditions are compiled expressions over
// the frame's locals; predicates receive declared bindings by name. A
// condition or Call callback returning tripwire.Disable transitions the
// handler to Disabled: it stays registered but never fires until Enable is
// called.
//
// # Concurrency
//
// Dispatch runs inline on whatever goroutine executes instrumented code.
// The hot lookup path reads an atomic snapshot of the dispatch table and
// never blocks on concurrent Enable/Disable/Remove; for one trigger point,
// handlers fire in registration order.
package tripwire
