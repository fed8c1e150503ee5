package script

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/chosenoffset/tripwire/pkg/tripwire"
)

// Interp executes a parsed program and implements the tripwire
// instrumentation substrate: it delivers start, line, and return events for
// watched units to the attached sink, synchronously on the calling
// goroutine, and honors execution-point redirects between statements.
//
// It also implements tripwire.SnippetRunner, so Exec callbacks can run
// script statements against a live frame.
type Interp struct {
	prog *Program
	out  io.Writer

	mu    sync.RWMutex
	sinks map[string]tripwire.EventSink
}

// InterpOption configures an interpreter.
type InterpOption func(*Interp)

// WithOutput redirects the print builtin. The default is stdout.
func WithOutput(w io.Writer) InterpOption {
	return func(in *Interp) { in.out = w }
}

// NewInterp creates an interpreter for a parsed program.
func NewInterp(prog *Program, opts ...InterpOption) *Interp {
	in := &Interp{
		prog:  prog,
		out:   os.Stdout,
		sinks: make(map[string]tripwire.EventSink),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Program returns the parsed program the interpreter runs.
func (in *Interp) Program() *Program { return in.prog }

// Unit returns the code unit of the named function.
func (in *Interp) Unit(name string) (*tripwire.CodeUnit, bool) {
	return in.prog.Unit(name)
}

// Units implements tripwire.Substrate.
func (in *Interp) Units() []*tripwire.CodeUnit {
	return in.prog.CodeUnits()
}

// Watch implements tripwire.Substrate: it enables event delivery for the
// unit. Takes effect for calls that start after it returns.
func (in *Interp) Watch(u *tripwire.CodeUnit, sink tripwire.EventSink) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.sinks[u.Name()] = sink
}

// Unwatch implements tripwire.Substrate.
func (in *Interp) Unwatch(u *tripwire.CodeUnit) {
	in.mu.Lock()
	defer in.mu.Unlock()
	delete(in.sinks, u.Name())
}

func (in *Interp) sinkFor(name string) tripwire.EventSink {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.sinks[name]
}

// Call invokes a declared function with the given arguments. Integers are
// normalized to int64. Instrumentation errors (a failing condition or
// callback, a bad redirect) propagate out of Call exactly as a script
// runtime error would.
func (in *Interp) Call(name string, args ...any) (any, error) {
	fn, ok := in.prog.fn(name)
	if !ok {
		return nil, fmt.Errorf("undefined function %q", name)
	}
	if len(args) != len(fn.Params) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", name, len(fn.Params), len(args))
	}
	locals := make(map[string]any, len(fn.Params))
	for i, p := range fn.Params {
		locals[p] = normalize(args[i])
	}
	return in.run(fn, locals)
}

func (in *Interp) run(fn *FuncDecl, locals map[string]any) (any, error) {
	f := &frame{fn: fn, locals: locals, line: fn.Line, pendingRedirect: -1}

	pc := 0
	if sink := in.sinkFor(fn.Name); sink != nil {
		err := sink.Dispatch(tripwire.Event{Unit: fn.unit, Kind: tripwire.StartEvent, Frame: f})
		if err != nil {
			return nil, err
		}
		if next, ok := f.takeRedirect(fn); ok {
			pc = next
		}
	}

	for pc < len(fn.Body) {
		st := fn.Body[pc]
		f.line = st.Pos()

		if sink := in.sinkFor(fn.Name); sink != nil {
			ev := tripwire.Event{Unit: fn.unit, Kind: tripwire.LineEvent, Line: st.Pos(), Frame: f}
			if err := sink.Dispatch(ev); err != nil {
				return nil, err
			}
			if next, ok := f.takeRedirect(fn); ok {
				pc = next
				continue
			}
		}

		switch st := st.(type) {
		case *ReturnStmt:
			var rv any
			if st.Value != nil {
				var err error
				rv, err = in.eval(st.Value, f)
				if err != nil {
					return nil, err
				}
			}
			return in.finishReturn(fn, f, rv)
		default:
			if err := in.execStmt(st, f); err != nil {
				return nil, err
			}
		}
		pc++
	}

	// Falling off the end is an implicit bare return.
	return in.finishReturn(fn, f, nil)
}

func (in *Interp) finishReturn(fn *FuncDecl, f *frame, rv any) (any, error) {
	f.retval = rv
	f.atReturn = true
	if sink := in.sinkFor(fn.Name); sink != nil {
		err := sink.Dispatch(tripwire.Event{Unit: fn.unit, Kind: tripwire.ReturnEvent, Frame: f})
		if err != nil {
			return nil, err
		}
	}
	return rv, nil
}

// scope abstracts variable storage so statements run both against an
// interpreter frame and, via RunSnippet, against any live tripwire frame.
type scope interface {
	get(name string) (any, bool)
	set(name string, v any)
}

func (in *Interp) execStmt(st Stmt, sc scope) error {
	switch st := st.(type) {
	case *AssignStmt:
		val, err := in.eval(st.Value, sc)
		if err != nil {
			return err
		}
		if st.Op == "=" {
			sc.set(st.Name, val)
			return nil
		}
		cur, ok := sc.get(st.Name)
		if !ok {
			return fmt.Errorf("line %d: undefined variable %q", st.Pos(), st.Name)
		}
		res, err := applyBinary(st.Op[:1], cur, val)
		if err != nil {
			return fmt.Errorf("line %d: %w", st.Pos(), err)
		}
		sc.set(st.Name, res)
		return nil

	case *ExprStmt:
		_, err := in.eval(st.X, sc)
		return err

	case *ReturnStmt:
		return fmt.Errorf("line %d: return is not allowed here", st.Pos())

	default:
		return fmt.Errorf("unknown statement %T", st)
	}
}

func (in *Interp) eval(e Expr, sc scope) (any, error) {
	switch e := e.(type) {
	case *IntLit:
		return e.Value, nil
	case *FloatLit:
		return e.Value, nil
	case *StringLit:
		return e.Value, nil
	case *BoolLit:
		return e.Value, nil

	case *Ident:
		v, ok := sc.get(e.Name)
		if !ok {
			return nil, fmt.Errorf("undefined variable %q", e.Name)
		}
		return v, nil

	case *PrefixExpr:
		right, err := in.eval(e.Right, sc)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case "-":
			switch v := right.(type) {
			case int64:
				return -v, nil
			case float64:
				return -v, nil
			}
			return nil, fmt.Errorf("cannot negate %T", right)
		case "!":
			b, ok := right.(bool)
			if !ok {
				return nil, fmt.Errorf("cannot apply ! to %T", right)
			}
			return !b, nil
		}
		return nil, fmt.Errorf("unknown prefix operator %q", e.Op)

	case *InfixExpr:
		// Logical operators short-circuit.
		if e.Op == "&&" || e.Op == "||" {
			left, err := in.evalBool(e.Left, sc)
			if err != nil {
				return nil, err
			}
			if e.Op == "&&" && !left {
				return false, nil
			}
			if e.Op == "||" && left {
				return true, nil
			}
			return in.evalBool(e.Right, sc)
		}
		left, err := in.eval(e.Left, sc)
		if err != nil {
			return nil, err
		}
		right, err := in.eval(e.Right, sc)
		if err != nil {
			return nil, err
		}
		return applyBinary(e.Op, left, right)

	case *CallExpr:
		args := make([]any, len(e.Args))
		for i, a := range e.Args {
			v, err := in.eval(a, sc)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		if e.Func == "print" {
			fmt.Fprintln(in.out, args...)
			return nil, nil
		}
		if _, ok := in.prog.fn(e.Func); ok {
			return in.Call(e.Func, args...)
		}
		return nil, fmt.Errorf("undefined function %q", e.Func)

	default:
		return nil, fmt.Errorf("unknown expression %T", e)
	}
}

func (in *Interp) evalBool(e Expr, sc scope) (bool, error) {
	v, err := in.eval(e, sc)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %T", v)
	}
	return b, nil
}

// CheckSnippet implements tripwire.SnippetRunner.
func (in *Interp) CheckSnippet(src string) error {
	_, err := ParseSnippet(src)
	return err
}

// RunSnippet implements tripwire.SnippetRunner: statements execute with the
// frame's bindings in scope, and assignments mutate the frame directly.
func (in *Interp) RunSnippet(src string, f tripwire.Frame) error {
	stmts, err := ParseSnippet(src)
	if err != nil {
		return err
	}
	sc := frameScope{f}
	for _, st := range stmts {
		if err := in.execStmt(st, sc); err != nil {
			return err
		}
	}
	return nil
}

// frameScope adapts any tripwire.Frame to the interpreter's scope.
type frameScope struct {
	f tripwire.Frame
}

func (s frameScope) get(name string) (any, bool) { return s.f.Local(name) }
func (s frameScope) set(name string, v any)      { s.f.SetLocal(name, v) }

// frame is one live function activation and the tripwire.Frame handed to
// dispatched events.
type frame struct {
	fn              *FuncDecl
	locals          map[string]any
	line            int
	pendingRedirect int
	retval          any
	atReturn        bool
}

var _ tripwire.Frame = (*frame)(nil)

func (f *frame) get(name string) (any, bool) { return f.Local(name) }
func (f *frame) set(name string, v any)      { f.SetLocal(name, v) }

// Local implements tripwire.Frame.
func (f *frame) Local(name string) (any, bool) {
	v, ok := f.locals[name]
	return v, ok
}

// SetLocal implements tripwire.Frame.
func (f *frame) SetLocal(name string, value any) {
	f.locals[name] = normalize(value)
}

// LocalNames implements tripwire.Frame.
func (f *frame) LocalNames() []string {
	names := make([]string, 0, len(f.locals))
	for name := range f.locals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Line implements tripwire.Frame.
func (f *frame) Line() int { return f.line }

// Redirect implements tripwire.Frame: the jump is recorded immediately (so
// later callbacks in the same firing observe the redirected line) and taken
// by the interpreter when the current dispatch returns.
func (f *frame) Redirect(line int) error {
	if f.atReturn {
		return fmt.Errorf("cannot redirect at a return event")
	}
	if _, ok := f.fn.indexOfLine(line); !ok {
		return fmt.Errorf("no statement at line %d in %q", line, f.fn.Name)
	}
	f.pendingRedirect = line
	f.line = line
	return nil
}

// ReturnValue implements tripwire.Frame.
func (f *frame) ReturnValue() (any, bool) {
	if !f.atReturn {
		return nil, false
	}
	return f.retval, true
}

func (f *frame) takeRedirect(fn *FuncDecl) (int, bool) {
	if f.pendingRedirect < 0 {
		return 0, false
	}
	pc, _ := fn.indexOfLine(f.pendingRedirect)
	f.pendingRedirect = -1
	return pc, true
}

// normalize maps host integers onto the interpreter's int64 representation.
func normalize(v any) any {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return int64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

// applyBinary evaluates one arithmetic or comparison operation with int64
// over float64 promotion.
func applyBinary(op string, left, right any) (any, error) {
	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok {
			switch op {
			case "+":
				return ls + rs, nil
			case "==":
				return ls == rs, nil
			case "!=":
				return ls != rs, nil
			case "<":
				return ls < rs, nil
			case ">":
				return ls > rs, nil
			case "<=":
				return ls <= rs, nil
			case ">=":
				return ls >= rs, nil
			}
			return nil, fmt.Errorf("operator %q not defined on strings", op)
		}
	}

	if lb, ok := left.(bool); ok {
		if rb, ok := right.(bool); ok {
			switch op {
			case "==":
				return lb == rb, nil
			case "!=":
				return lb != rb, nil
			}
			return nil, fmt.Errorf("operator %q not defined on booleans", op)
		}
	}

	li, lInt := toInt(left)
	ri, rInt := toInt(right)
	if lInt && rInt {
		switch op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		case "/":
			if ri == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return li / ri, nil
		case "%":
			if ri == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return li % ri, nil
		case "==":
			return li == ri, nil
		case "!=":
			return li != ri, nil
		case "<":
			return li < ri, nil
		case ">":
			return li > ri, nil
		case "<=":
			return li <= ri, nil
		case ">=":
			return li >= ri, nil
		}
		return nil, fmt.Errorf("unknown operator %q", op)
	}

	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if !lok || !rok {
		return nil, fmt.Errorf("operator %q not defined on %T and %T", op, left, right)
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case "==":
		return lf == rf, nil
	case "!=":
		return lf != rf, nil
	case "<":
		return lf < rf, nil
	case ">":
		return lf > rf, nil
	case "<=":
		return lf <= rf, nil
	case ">=":
		return lf >= rf, nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

func toInt(v any) (int64, bool) {
	n, ok := v.(int64)
	return n, ok
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}
