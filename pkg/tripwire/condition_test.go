package tripwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCondExprCompilesAgainstBindings(t *testing.T) {
	u := counterUnit()
	points := []TriggerPoint{{Unit: u, Kind: LineEvent, Line: 12}}

	cond := CondExpr("x > 3")
	require.NoError(t, cond.bind([]*CodeUnit{u}, points))

	// An unknown name fails at bind time, not first fire.
	bad := CondExpr("missing > 3")
	err := bad.bind([]*CodeUnit{u}, points)
	var condErr *ConditionError
	require.ErrorAs(t, err, &condErr)
}

func TestCondExprOrderingOverDeclaredBindings(t *testing.T) {
	u := counterUnit()
	points := []TriggerPoint{{Unit: u, Kind: LineEvent, Line: 12}}

	// Ordering and arithmetic compile against bindings whose runtime types
	// are unknown at registration.
	for _, src := range []string{"x > 3", "x >= n", "x + n > 3", "x * 2 < n"} {
		cond := CondExpr(src)
		require.NoError(t, cond.bind([]*CodeUnit{u}, points), src)
	}
}

func TestCondExprCrossUnitBindings(t *testing.T) {
	a := NewCodeUnit("alpha", "func alpha(a)\n  a = 1\n", 1)
	a.DeclareBindings("a")
	b := NewCodeUnit("beta", "func beta(b)\n  b = 2\n", 10)
	b.DeclareBindings("b")

	// "a" is only a binding of alpha, so registering over both units is a
	// resolution-time error, same as the predicate path.
	cond := CondExpr("a > 0")
	err := cond.bind([]*CodeUnit{a, b}, []TriggerPoint{
		{Unit: a, Kind: LineEvent, Line: 2},
		{Unit: b, Kind: LineEvent, Line: 11},
	})
	var condErr *ConditionError
	require.ErrorAs(t, err, &condErr)

	// A unit that declared no bindings does not veto.
	o := opaqueUnit()
	cond = CondExpr("a > 0")
	require.NoError(t, cond.bind([]*CodeUnit{a, o}, []TriggerPoint{
		{Unit: a, Kind: LineEvent, Line: 2},
		{Unit: o, Kind: LineEvent, Line: 31},
	}))
}

func TestCondExprLenientWithoutBindings(t *testing.T) {
	u := opaqueUnit()
	points := []TriggerPoint{{Unit: u, Kind: LineEvent, Line: 31}}

	// The unit declared no bindings, so unknown names must be allowed.
	cond := CondExpr("whatever > 3")
	require.NoError(t, cond.bind([]*CodeUnit{u}, points))
}

func TestCondExprEval(t *testing.T) {
	u := counterUnit()
	points := []TriggerPoint{{Unit: u, Kind: LineEvent, Line: 12}}

	tests := []struct {
		name string
		src  string
		x    any
		fire bool
	}{
		{"true comparison", "x > 3", int64(5), true},
		{"false comparison", "x > 3", int64(1), false},
		{"arithmetic comparison", "x + n > 3", int64(5), true},
		{"nil binding is falsy", "x", nil, false},
		{"nonzero is truthy", "x", int64(2), true},
		{"zero is falsy", "x", int64(0), false},
		{"empty string is falsy", "x", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := CondExpr(tt.src)
			require.NoError(t, cond.bind([]*CodeUnit{u}, points))

			f := newFakeFrame(12)
			f.locals["x"] = tt.x
			f.locals["n"] = int64(1)
			fire, disable, err := cond.eval(lineEvent(u, 12, f))
			require.NoError(t, err)
			assert.False(t, disable)
			assert.Equal(t, tt.fire, fire)
		})
	}
}

func TestCondExprDisableSentinel(t *testing.T) {
	u := counterUnit()
	points := []TriggerPoint{{Unit: u, Kind: LineEvent, Line: 12}}

	cond := CondExpr(`x > 3 ? true : DISABLE`)
	require.NoError(t, cond.bind([]*CodeUnit{u}, points))

	f := newFakeFrame(12)
	f.locals["x"] = int64(1)
	f.locals["n"] = int64(1)
	fire, disable, err := cond.eval(lineEvent(u, 12, f))
	require.NoError(t, err)
	assert.False(t, fire)
	assert.True(t, disable)
}

func TestCondFuncParamsValidated(t *testing.T) {
	u := counterUnit()
	linePoints := []TriggerPoint{{Unit: u, Kind: LineEvent, Line: 12}}
	returnPoints := []TriggerPoint{{Unit: u, Kind: ReturnEvent}}

	ok := CondFunc(func(args Args) (any, error) { return true, nil }, "x", "_frame")
	require.NoError(t, ok.bind([]*CodeUnit{u}, linePoints))

	// Unknown parameter against a unit with declared bindings.
	bad := CondFunc(func(args Args) (any, error) { return true, nil }, "missing")
	assert.Error(t, bad.bind([]*CodeUnit{u}, linePoints))

	// _retval only binds at return points.
	rv := CondFunc(func(args Args) (any, error) { return true, nil }, "_retval")
	assert.Error(t, rv.bind([]*CodeUnit{u}, linePoints))
	require.NoError(t, rv.bind([]*CodeUnit{u}, returnPoints))
}

func TestCondFuncEval(t *testing.T) {
	u := counterUnit()
	points := []TriggerPoint{{Unit: u, Kind: LineEvent, Line: 12}}

	var got Args
	cond := CondFunc(func(args Args) (any, error) {
		got = args
		return args["x"], nil
	}, "x", "_frame")
	require.NoError(t, cond.bind([]*CodeUnit{u}, points))

	f := newFakeFrame(12)
	f.locals["x"] = int64(7)
	fire, disable, err := cond.eval(lineEvent(u, 12, f))
	require.NoError(t, err)
	assert.True(t, fire)
	assert.False(t, disable)
	assert.Equal(t, int64(7), got["x"])
	assert.Same(t, f, got["_frame"].(*fakeFrame))
}

func TestCallArgsRetval(t *testing.T) {
	u := counterUnit()

	f := newFakeFrame(0)
	f.atReturn = true
	f.retval = int64(42)
	args, err := callArgs([]string{"_retval", "_unit"}, Event{Unit: u, Kind: ReturnEvent, Frame: f})
	require.NoError(t, err)
	assert.Equal(t, int64(42), args["_retval"])
	assert.Same(t, u, args["_unit"].(*CodeUnit))

	// Outside a return event _retval is unavailable.
	f2 := newFakeFrame(12)
	_, err = callArgs([]string{"_retval"}, lineEvent(u, 12, f2))
	assert.Error(t, err)
}
