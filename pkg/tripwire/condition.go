package tripwire

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

// DisableSentinel is the type of the Disable marker. It is recognized
// wherever a condition or callback result is interpreted.
type DisableSentinel struct{}

// Disable is the distinguished result meaning "stop firing this handler
// from now on". Returning it from a condition or a Call callback
// transitions the owning handler to Disabled without removing it; an
// explicit Enable restores firing.
var Disable = DisableSentinel{}

// Args carries frame bindings into predicates and Call callbacks, keyed by
// the declared parameter names.
type Args map[string]any

// PredicateFunc is a condition or callback body fed frame bindings by name.
type PredicateFunc func(args Args) (any, error)

const (
	frameArg  = "_frame"
	retvalArg = "_retval"
	unitArg   = "_unit"
)

// Condition gates a handler's firing: either a textual expression compiled
// against the frame's locals, or a predicate receiving declared bindings by
// name. A DISABLE result disables the owning handler; any other falsy
// result skips just the current firing.
type Condition struct {
	src     string
	program *vm.Program

	fn     PredicateFunc
	params []string
}

// CondExpr builds a condition from a textual expression. It is compiled at
// registration time against the unit's declared bindings, so an unknown
// name fails immediately rather than at first fire. The DISABLE sentinel is
// available inside the expression as DISABLE.
func CondExpr(src string) *Condition {
	return &Condition{src: src}
}

// CondFunc builds a condition from a predicate. params declares which frame
// bindings the predicate receives; the reserved names _frame and _retval
// inject the frame handle and the about-to-be-returned value.
func CondFunc(fn PredicateFunc, params ...string) *Condition {
	return &Condition{fn: fn, params: params}
}

// bind validates the condition against the resolved units and, for textual
// conditions, compiles it. Points are the trigger points the condition will
// gate; _retval is only admitted when every point is a return point.
//
// Expression names go through the same per-unit check as predicate
// parameters: a name must be a binding of every unit that declares
// bindings. Typing is left to evaluation, since binding values carry
// arbitrary runtime types.
func (c *Condition) bind(units []*CodeUnit, points []TriggerPoint) error {
	if c.fn != nil {
		return checkParams(c.params, units, points, "condition")
	}

	tree, err := parser.Parse(c.src)
	if err != nil {
		return &ConditionError{Detail: fmt.Sprintf("cannot parse %q", c.src), Err: err}
	}
	var names []string
	for _, name := range exprIdents(tree.Node) {
		if name == "DISABLE" {
			continue
		}
		names = append(names, name)
	}
	if err := checkParams(names, units, points, "condition"); err != nil {
		return err
	}

	program, err := expr.Compile(c.src, expr.AllowUndefinedVariables())
	if err != nil {
		return &ConditionError{Detail: fmt.Sprintf("cannot compile %q", c.src), Err: err}
	}
	c.program = program
	return nil
}

// identVisitor collects the distinct identifiers an expression references.
type identVisitor struct {
	seen  map[string]struct{}
	names []string
}

func (v *identVisitor) Visit(node *ast.Node) {
	id, ok := (*node).(*ast.IdentifierNode)
	if !ok {
		return
	}
	if _, dup := v.seen[id.Value]; dup {
		return
	}
	v.seen[id.Value] = struct{}{}
	v.names = append(v.names, id.Value)
}

func exprIdents(node ast.Node) []string {
	v := &identVisitor{seen: make(map[string]struct{})}
	ast.Walk(&node, v)
	return v.names
}

// eval gates one firing. disable means the owning handler must transition
// to Disabled; fire is only meaningful when disable is false.
func (c *Condition) eval(ev Event) (fire bool, disable bool, err error) {
	var result any
	if c.fn != nil {
		args, err := callArgs(c.params, ev)
		if err != nil {
			return false, false, &ConditionError{Detail: "predicate arguments", Err: err}
		}
		result, err = c.fn(args)
		if err != nil {
			return false, false, &ConditionError{Detail: "predicate failed", Err: err}
		}
	} else {
		env := frameEnv(ev)
		env["DISABLE"] = Disable
		env[unitArg] = ev.Unit
		result, err = expr.Run(c.program, env)
		if err != nil {
			return false, false, &ConditionError{Detail: fmt.Sprintf("evaluating %q", c.src), Err: err}
		}
	}

	if _, ok := result.(DisableSentinel); ok {
		return false, true, nil
	}
	return truthy(result), false, nil
}

// frameEnv snapshots the frame's locals for read-only expression
// evaluation.
func frameEnv(ev Event) map[string]any {
	env := make(map[string]any)
	for _, name := range ev.Frame.LocalNames() {
		if v, ok := ev.Frame.Local(name); ok {
			env[name] = v
		}
	}
	env[frameArg] = ev.Frame
	env[retvalArg] = any(nil)
	if rv, ok := ev.Frame.ReturnValue(); ok {
		env[retvalArg] = rv
	}
	return env
}

// callArgs materializes declared parameters from the firing frame.
func callArgs(params []string, ev Event) (Args, error) {
	args := make(Args, len(params))
	for _, name := range params {
		switch name {
		case frameArg:
			args[name] = ev.Frame
		case unitArg:
			args[name] = ev.Unit
		case retvalArg:
			rv, ok := ev.Frame.ReturnValue()
			if !ok {
				return nil, fmt.Errorf("%s is only available in <return> callbacks", retvalArg)
			}
			args[name] = rv
		default:
			v, ok := ev.Frame.Local(name)
			if !ok {
				return nil, fmt.Errorf("argument %q not found in frame locals", name)
			}
			args[name] = v
		}
	}
	return args, nil
}

// checkParams validates declared parameter names at registration time,
// wherever statically determinable.
func checkParams(params []string, units []*CodeUnit, points []TriggerPoint, what string) error {
	for _, name := range params {
		switch name {
		case frameArg, unitArg:
			continue
		case retvalArg:
			for _, p := range points {
				if p.Kind != ReturnEvent {
					return &ConditionError{
						Detail: fmt.Sprintf("%s declares %s but fires at %s", what, retvalArg, p),
					}
				}
			}
			continue
		}
		for _, u := range units {
			names := u.Bindings()
			if names == nil {
				continue
			}
			if !containsString(names, name) {
				return &ConditionError{
					Detail: fmt.Sprintf("%s parameter %q is not a binding of %q", what, name, u.Name()),
				}
			}
		}
	}
	return nil
}

// truthy interprets a condition result: nil and false skip the firing,
// zero numbers and empty strings count as false, everything else fires.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}
