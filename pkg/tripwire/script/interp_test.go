package script

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chosenoffset/tripwire/pkg/tripwire"
)

func mustParse(t *testing.T, src string) *Program {
	t.Helper()
	prog, err := Parse(src)
	require.NoError(t, err)
	return prog
}

func TestCallEvaluates(t *testing.T) {
	prog := mustParse(t, `func add(a, b) {
	total = a + b
	return total
}

func negate(x) {
	return -x
}

func compose(a, b) {
	s = add(a, b)
	return negate(s)
}
`)
	in := NewInterp(prog)

	tests := []struct {
		fn   string
		args []any
		want any
	}{
		{"add", []any{1, 2}, int64(3)},
		{"add", []any{1.5, 2.0}, 3.5},
		{"add", []any{"a", "b"}, "ab"},
		{"negate", []any{4}, int64(-4)},
		{"compose", []any{1, 2}, int64(-3)},
	}
	for _, tt := range tests {
		got, err := in.Call(tt.fn, tt.args...)
		require.NoError(t, err, tt.fn)
		assert.Equal(t, tt.want, got)
	}
}

func TestCallErrors(t *testing.T) {
	prog := mustParse(t, `func div(a, b) {
	return a / b
}
`)
	in := NewInterp(prog)

	_, err := in.Call("missing")
	assert.ErrorContains(t, err, "undefined function")

	_, err = in.Call("div", 1)
	assert.ErrorContains(t, err, "takes 2 arguments")

	_, err = in.Call("div", 1, 0)
	assert.ErrorContains(t, err, "division by zero")
}

func TestOpAssignRequiresExisting(t *testing.T) {
	prog := mustParse(t, `func f() {
	y += 1
}
`)
	in := NewInterp(prog)
	_, err := in.Call("f")
	assert.ErrorContains(t, err, "undefined variable")
}

func TestImplicitReturn(t *testing.T) {
	prog := mustParse(t, `func f() {
	x = 1
}
`)
	in := NewInterp(prog)
	got, err := in.Call("f")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPrintBuiltin(t *testing.T) {
	prog := mustParse(t, `func greet(name) {
	print("hello", name)
}
`)
	var out strings.Builder
	in := NewInterp(prog, WithOutput(&out))
	_, err := in.Call("greet", "world")
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", out.String())
}

// recordingSink collects every event the interpreter delivers.
type recordingSink struct {
	events []string
}

func (s *recordingSink) Dispatch(ev tripwire.Event) error {
	switch ev.Kind {
	case tripwire.LineEvent:
		s.events = append(s.events, ev.Unit.Name()+":line")
	default:
		s.events = append(s.events, ev.Unit.Name()+":"+ev.Kind.String())
	}
	return nil
}

func TestEventDelivery(t *testing.T) {
	prog := mustParse(t, `func outer() {
	inner()
	return 1
}

func inner() {
	x = 0
}
`)
	in := NewInterp(prog)

	sink := &recordingSink{}
	outer, _ := in.Unit("outer")
	inner, _ := in.Unit("inner")
	in.Watch(outer, sink)
	in.Watch(inner, sink)

	_, err := in.Call("outer")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"outer:start",
		"outer:line", // inner()
		"inner:start",
		"inner:line", // x = 0
		"inner:return",
		"outer:line", // return 1
		"outer:return",
	}, sink.events)

	// Unwatch turns delivery off again.
	in.Unwatch(inner)
	sink.events = nil
	_, err = in.Call("outer")
	require.NoError(t, err)
	for _, ev := range sink.events {
		assert.NotContains(t, ev, "inner")
	}
}

// newEngine parses a program and wires an engine over its interpreter.
func newEngine(t *testing.T, src string) (*Interp, *tripwire.Engine) {
	t.Helper()
	prog := mustParse(t, src)
	in := NewInterp(prog)
	return in, tripwire.New(in)
}

func TestExecSnippetMutatesFrame(t *testing.T) {
	in, engine := newEngine(t, `func compute(n) {
	x = 0
	y = x + n
	return y
}
`)
	u, _ := in.Unit("compute")

	h, err := engine.Instrument(tripwire.Unit(u)).
		At("y = x + n").
		Exec("x = 10").
		Apply()
	require.NoError(t, err)
	defer h.Remove()

	got, err := in.Call("compute", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(11), got, "snippet ran before the instrumented statement")
}

func TestSameLineFiresPerExecution(t *testing.T) {
	in, engine := newEngine(t, `func twice() {
	helper()
	helper()
}

func helper() {
	x = 1
}
`)
	u, _ := in.Unit("helper")

	h, err := engine.Instrument(tripwire.Unit(u)).
		At("x = 1").
		Call(func(tripwire.Args) (any, error) { return nil, nil }).
		Apply()
	require.NoError(t, err)
	defer h.Remove()

	_, err = in.Call("twice")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), h.FireCount())
}

func TestConditionSeesLiveLocals(t *testing.T) {
	in, engine := newEngine(t, `func steps() {
	i = 1
	i = 2
	i = 3
	return i
}
`)
	u, _ := in.Unit("steps")

	var seen []any
	h, err := engine.Instrument(tripwire.Unit(u)).
		At("i =").
		If("i != nil && i >= 2").
		Call(func(args tripwire.Args) (any, error) {
			seen = append(seen, args["i"])
			return nil, nil
		}, "i").
		Apply()
	require.NoError(t, err)
	defer h.Remove()

	_, err = in.Call("steps")
	require.NoError(t, err)

	// "i =" matches every assignment; the condition reads the value before
	// the statement runs, so the first two firings are filtered out.
	assert.Equal(t, []any{int64(2)}, seen)
}

func TestDisableStopsFutureFirings(t *testing.T) {
	in, engine := newEngine(t, `func poke() {
	x = 1
}
`)
	u, _ := in.Unit("poke")

	fired := 0
	h, err := engine.Instrument(tripwire.Unit(u)).
		At("x = 1").
		Call(func(tripwire.Args) (any, error) {
			fired++
			return tripwire.Disable, nil
		}).
		Apply()
	require.NoError(t, err)
	defer h.Remove()

	for i := 0; i < 3; i++ {
		_, err := in.Call("poke")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, fired)
	assert.Equal(t, tripwire.HandlerDisabled, h.State())

	require.NoError(t, h.Enable())
	_, err = in.Call("poke")
	require.NoError(t, err)
	assert.Equal(t, 2, fired)
}

func TestGotoSkipsStatements(t *testing.T) {
	in, engine := newEngine(t, `func guard() {
	flag = 0
	flag = 1
	return flag
}
`)
	u, _ := in.Unit("guard")

	h, err := engine.Instrument(tripwire.Unit(u)).
		At("flag = 1").
		Goto("return flag").
		Apply()
	require.NoError(t, err)
	defer h.Remove()

	got, err := in.Call("guard")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got, "redirect skipped the second assignment")
}

func TestGotoBackwardOffset(t *testing.T) {
	in, engine := newEngine(t, `func once() {
	a = 1
	b = 2
	return a + b
}
`)
	u, _ := in.Unit("once")

	// Fire only the first time through line 3, jump back to line 2 once.
	fired := false
	h, err := engine.Instrument(tripwire.Unit(u)).
		At("b = 2").
		IfFunc(func(tripwire.Args) (any, error) {
			if fired {
				return false, nil
			}
			fired = true
			return true, nil
		}).
		Goto("-1").
		Apply()
	require.NoError(t, err)
	defer h.Remove()

	got, err := in.Call("once")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got, "re-executed a = 1, then ran b = 2 normally")
}

func TestChainSeesRedirectedLine(t *testing.T) {
	in, engine := newEngine(t, `func run() {
	a = 1
	b = 2
	return b
}
`)
	u, _ := in.Unit("run")

	var lineAfter int
	h, err := engine.Instrument(tripwire.Unit(u)).
		At("a = 1").
		Goto("return b").
		Call(func(args tripwire.Args) (any, error) {
			f := args["_frame"].(tripwire.Frame)
			lineAfter = f.Line()
			return nil, nil
		}, "_frame").
		Apply()
	require.NoError(t, err)
	defer h.Remove()

	_, err = in.Call("run")
	// b was never assigned, so the return statement fails.
	assert.ErrorContains(t, err, "undefined variable")
	assert.Equal(t, 4, lineAfter, "callbacks after a goto observe the redirected line")
}

func TestStartAndReturnEvents(t *testing.T) {
	in, engine := newEngine(t, `func calc(n) {
	n = n * 2
	return n
}
`)
	u, _ := in.Unit("calc")

	var retval any
	hStart, err := engine.Instrument(tripwire.Unit(u)).
		WhenCalled().
		Exec("n = 10").
		Apply()
	require.NoError(t, err)
	defer hStart.Remove()

	hRet, err := engine.Instrument(tripwire.Unit(u)).
		WhenReturned().
		Call(func(args tripwire.Args) (any, error) {
			retval = args["_retval"]
			return nil, nil
		}, "_retval").
		Apply()
	require.NoError(t, err)
	defer hRet.Remove()

	got, err := in.Call("calc", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(20), got, "start hook rewrote the argument")
	assert.Equal(t, int64(20), retval)
}

func TestRedirectAtReturnFails(t *testing.T) {
	in, engine := newEngine(t, `func f() {
	x = 1
	return x
}
`)
	u, _ := in.Unit("f")

	h, err := engine.Instrument(tripwire.Unit(u)).
		WhenReturned().
		Goto(2).
		Apply()
	require.NoError(t, err)
	defer h.Remove()

	_, err = in.Call("f")
	var redirErr *tripwire.RedirectError
	require.ErrorAs(t, err, &redirErr)
}

func TestInvalidSnippetRejectedAtRegistration(t *testing.T) {
	in, engine := newEngine(t, `func f() {
	x = 1
}
`)
	u, _ := in.Unit("f")

	_, err := engine.Instrument(tripwire.Unit(u)).
		At("x = 1").
		Exec("return 1").
		Apply()
	require.Error(t, err)
	assert.Empty(t, engine.Handlers())
	_ = in
}

func TestConditionUnknownNameFailsEarly(t *testing.T) {
	in, engine := newEngine(t, `func f(a) {
	b = a
	return b
}
`)
	u, _ := in.Unit("f")

	// The parser declared a and b, so a typo is caught at Apply.
	_, err := engine.Instrument(tripwire.Unit(u)).
		At("b = a").
		If("bb > 0").
		Call(func(tripwire.Args) (any, error) { return nil, nil }).
		Apply()
	require.Error(t, err)
	_ = in
}

func TestTextMatchFiresPerMatchedLine(t *testing.T) {
	in, engine := newEngine(t, `func bump(x) {
	x += 0
	x += 0
	return x
}
`)
	u, _ := in.Unit("bump")

	h, err := engine.Instrument(tripwire.Unit(u)).
		At("x += 0").
		Exec("x += 1").
		Apply()
	require.NoError(t, err)
	defer h.Remove()

	got, err := in.Call("bump", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got, "one firing per matched line")
	assert.Equal(t, uint64(2), h.FireCount())
}

func TestConditionalRewrite(t *testing.T) {
	in, engine := newEngine(t, `func echo(x) {
	return x
}
`)
	u, _ := in.Unit("echo")

	h, err := engine.Instrument(tripwire.Unit(u)).
		At("return x").
		If("x == 0").
		Exec("x = 1").
		Apply()
	require.NoError(t, err)
	defer h.Remove()

	got, err := in.Call("echo", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	got, err = in.Call("echo", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got, "condition false, frame untouched")
}

func TestDisableFromConditionIsSticky(t *testing.T) {
	in, engine := newEngine(t, `func echo(x) {
	return x
}
`)
	u, _ := in.Unit("echo")

	h, err := engine.Instrument(tripwire.Unit(u)).
		At("return x").
		IfFunc(func(args tripwire.Args) (any, error) {
			if args["x"] != int64(0) {
				return tripwire.Disable, nil
			}
			return true, nil
		}, "x").
		Exec("x = 1").
		Apply()
	require.NoError(t, err)
	defer h.Remove()

	got, err := in.Call("echo", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	got, err = in.Call("echo", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got, "DISABLE skips the chain for this firing too")
	assert.Equal(t, tripwire.HandlerDisabled, h.State())

	got, err = in.Call("echo", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got, "stays disabled until an explicit Enable")
}

func TestRemoveIsTerminal(t *testing.T) {
	in, engine := newEngine(t, `func echo(x) {
	return x
}
`)
	u, _ := in.Unit("echo")

	h, err := engine.Instrument(tripwire.Unit(u)).
		At("return x").
		Exec("x = 1").
		Apply()
	require.NoError(t, err)

	h.Remove()
	assert.ErrorIs(t, h.Enable(), tripwire.ErrRemoved)

	got, err := in.Call("echo", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestRedirectThenExecute(t *testing.T) {
	in, engine := newEngine(t, `func f(x) {
	x = 5
	return x
}
`)
	u, _ := in.Unit("f")

	// The goto moves execution first; the snippet still runs in the same
	// firing, and its effect lands at the redirected point.
	h, err := engine.Instrument(tripwire.Unit(u)).
		At("x = 5").
		Goto("return x").
		Exec("x = 9").
		Apply()
	require.NoError(t, err)
	defer h.Remove()

	got, err := in.Call("f", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got, "x = 5 skipped, snippet effect kept")
}

func TestSnippetRunner(t *testing.T) {
	prog := mustParse(t, `func f() {
	x = 1
}
`)
	in := NewInterp(prog)

	require.NoError(t, in.CheckSnippet("x = 1\ny = x * 2"))
	assert.Error(t, in.CheckSnippet("func nope() {"))
	assert.Error(t, in.CheckSnippet("return 3"))
}
