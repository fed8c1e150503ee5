package tripwire

import "fmt"

type callbackKind uint8

const (
	execSnippetCallback callbackKind = iota
	execFuncCallback
	breakCallback
	gotoCallback
)

// Callback is one action in a handler's chain: execute code against the
// live frame, suspend into the debugger, or redirect the execution point.
type Callback struct {
	kind    callbackKind
	snippet string
	fn      PredicateFunc
	params  []string
	target  Identifier
	err     error
}

// Exec builds a callback that runs a host-language snippet against the
// current frame. Assignments in the snippet mutate the frame's bindings.
// Requires a substrate implementing SnippetRunner.
func Exec(snippet string) *Callback {
	return &Callback{kind: execSnippetCallback, snippet: snippet}
}

// Call builds a callback that invokes fn with the declared frame bindings.
// The reserved parameters _frame, _unit and _retval inject the frame
// handle, the firing code unit, and (at return points only) the value about
// to be returned. If fn returns a map of names to values, each named
// binding is overwritten before execution resumes; if it returns Disable,
// the owning handler is disabled; any other result is ignored.
func Call(fn PredicateFunc, params ...string) *Callback {
	return &Callback{kind: execFuncCallback, fn: fn, params: params}
}

// Break builds a callback that suspends into the engine's debugger,
// anchored at the current execution point. Normal flow resumes when the
// debugger session ends.
func Break() *Callback {
	return &Callback{kind: breakCallback}
}

// Goto builds a callback that jumps to the target identifier, skipping
// every intervening statement. Targets follow the usual identifier syntax,
// except relative offsets are anchored to the currently executing line and
// may be negative. An unresolved or ambiguous target is a fatal error at
// fire time.
func Goto(target any) *Callback {
	id, err := Ident(target)
	return &Callback{kind: gotoCallback, target: id, err: err}
}

// When attaches the callback to a trigger, registering and returning the
// resulting handler. It is the callback-first twin of Trigger.Do.
func (c *Callback) When(t *Trigger) (*Handler, error) {
	return t.Attach(c)
}

func (c *Callback) String() string {
	switch c.kind {
	case execSnippetCallback:
		return fmt.Sprintf("exec(%q)", c.snippet)
	case execFuncCallback:
		return fmt.Sprintf("call(%v)", c.params)
	case breakCallback:
		return "break"
	case gotoCallback:
		return fmt.Sprintf("goto(%s)", c.target)
	default:
		return "callback"
	}
}

// validate runs the registration-time checks for a callback about to be
// bound to the given trigger points.
func (c *Callback) validate(e *Engine, units []*CodeUnit, points []TriggerPoint) error {
	if c.err != nil {
		return c.err
	}
	switch c.kind {
	case execSnippetCallback:
		runner, ok := e.substrate.(SnippetRunner)
		if !ok {
			return fmt.Errorf("substrate %T cannot execute snippets", e.substrate)
		}
		if err := runner.CheckSnippet(c.snippet); err != nil {
			return fmt.Errorf("invalid snippet %q: %w", c.snippet, err)
		}
	case execFuncCallback:
		return checkParams(c.params, units, points, "callback")
	}
	return nil
}

// fire executes the callback against a live event. Errors propagate out
// through the instrumented execution point.
func (c *Callback) fire(e *Engine, h *Handler, ev Event) error {
	switch c.kind {
	case execSnippetCallback:
		runner := e.substrate.(SnippetRunner)
		if err := runner.RunSnippet(c.snippet, ev.Frame); err != nil {
			return &CallbackError{Handler: h.ID(), Err: err}
		}

	case execFuncCallback:
		args, err := callArgs(c.params, ev)
		if err != nil {
			return &CallbackError{Handler: h.ID(), Err: err}
		}
		result, err := c.fn(args)
		if err != nil {
			return &CallbackError{Handler: h.ID(), Err: err}
		}
		switch t := result.(type) {
		case DisableSentinel:
			h.disableFromSentinel()
		case map[string]any:
			for name, v := range t {
				ev.Frame.SetLocal(name, v)
			}
		case Args:
			for name, v := range t {
				ev.Frame.SetLocal(name, v)
			}
		}

	case breakCallback:
		if err := e.debugger.Enter(ev.Unit, ev.Frame); err != nil {
			return &CallbackError{Handler: h.ID(), Err: err}
		}

	case gotoCallback:
		if err := c.redirect(ev); err != nil {
			return err
		}
	}
	return nil
}

// redirect resolves the goto target against the firing unit, anchored at
// the currently executing line, and moves the execution point there.
func (c *Callback) redirect(ev Event) error {
	pts, err := c.target.resolve(ev.Unit, ev.Frame.Line())
	if err != nil {
		return &RedirectError{Target: c.target.String(), Reason: "unresolved target", Err: err}
	}
	var lines []TriggerPoint
	for _, p := range pts {
		if p.Kind == LineEvent {
			lines = append(lines, p)
		}
	}
	if len(lines) == 0 {
		return &RedirectError{Target: c.target.String(), Reason: "target is not a source line"}
	}
	if len(lines) > 1 {
		return &RedirectError{
			Target: c.target.String(),
			Reason: fmt.Sprintf("ambiguous: matches %d lines of %q", len(lines), ev.Unit.Name()),
		}
	}
	if err := ev.Frame.Redirect(lines[0].Line); err != nil {
		return &RedirectError{Target: c.target.String(), Reason: "jump rejected", Err: err}
	}
	return nil
}
