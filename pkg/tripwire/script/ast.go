// Package script implements a small interpreted script language that serves
// as the reference instrumentation substrate for tripwire. Programs are
// sets of functions with flat statement bodies; the interpreter emits
// start, per-line, and return events for watched units and honors
// execution-point redirects.
package script

import (
	"strings"

	"github.com/chosenoffset/tripwire/pkg/tripwire"
)

// Node is the common interface of all AST nodes.
type Node interface {
	String() string
}

// Stmt is a statement node. Pos returns its absolute source line.
type Stmt interface {
	Node
	stmtNode()
	Pos() int
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Program is a parsed script: an ordered set of function declarations.
// It implements tripwire.UnitGroup.
type Program struct {
	Funcs []*FuncDecl

	index map[string]*FuncDecl
}

// CodeUnits returns one code unit per declared function.
func (p *Program) CodeUnits() []*tripwire.CodeUnit {
	units := make([]*tripwire.CodeUnit, 0, len(p.Funcs))
	for _, fn := range p.Funcs {
		units = append(units, fn.unit)
	}
	return units
}

// Unit returns the code unit of the named function.
func (p *Program) Unit(name string) (*tripwire.CodeUnit, bool) {
	fn, ok := p.index[name]
	if !ok {
		return nil, false
	}
	return fn.unit, true
}

func (p *Program) fn(name string) (*FuncDecl, bool) {
	fn, ok := p.index[name]
	return fn, ok
}

func (p *Program) String() string {
	parts := make([]string, len(p.Funcs))
	for i, fn := range p.Funcs {
		parts[i] = fn.String()
	}
	return strings.Join(parts, "\n")
}

// FuncDecl is one function: the instrumentable code unit of the script
// substrate. Line and EndLine are the absolute lines of the declaration and
// the closing brace.
type FuncDecl struct {
	Name    string
	Params  []string
	Body    []Stmt
	Line    int
	EndLine int

	unit      *tripwire.CodeUnit
	stmtIndex map[int]int
}

// indexOfLine maps an absolute source line to the statement at that line.
func (fn *FuncDecl) indexOfLine(line int) (int, bool) {
	pc, ok := fn.stmtIndex[line]
	return pc, ok
}

func (fn *FuncDecl) String() string {
	return "func " + fn.Name + "(" + strings.Join(fn.Params, ", ") + ")"
}

// AssignStmt is "name = expr" or an op-assignment such as "name += expr".
type AssignStmt struct {
	Line  int
	Name  string
	Op    string // one of = += -= *= /=
	Value Expr
}

func (s *AssignStmt) stmtNode() {}
func (s *AssignStmt) Pos() int  { return s.Line }
func (s *AssignStmt) String() string {
	return s.Name + " " + s.Op + " " + s.Value.String()
}

// ReturnStmt returns from the enclosing function; Value may be nil.
type ReturnStmt struct {
	Line  int
	Value Expr
}

func (s *ReturnStmt) stmtNode() {}
func (s *ReturnStmt) Pos() int  { return s.Line }
func (s *ReturnStmt) String() string {
	if s.Value == nil {
		return "return"
	}
	return "return " + s.Value.String()
}

// ExprStmt evaluates an expression for its side effects, typically a call.
type ExprStmt struct {
	Line int
	X    Expr
}

func (s *ExprStmt) stmtNode()      {}
func (s *ExprStmt) Pos() int       { return s.Line }
func (s *ExprStmt) String() string { return s.X.String() }

// Ident references a variable.
type Ident struct {
	Name string
}

func (e *Ident) exprNode()      {}
func (e *Ident) String() string { return e.Name }

// IntLit is an integer literal.
type IntLit struct {
	Value int64
	Text  string
}

func (e *IntLit) exprNode()      {}
func (e *IntLit) String() string { return e.Text }

// FloatLit is a floating point literal.
type FloatLit struct {
	Value float64
	Text  string
}

func (e *FloatLit) exprNode()      {}
func (e *FloatLit) String() string { return e.Text }

// StringLit is a double-quoted string literal.
type StringLit struct {
	Value string
}

func (e *StringLit) exprNode()      {}
func (e *StringLit) String() string { return `"` + e.Value + `"` }

// BoolLit is true or false.
type BoolLit struct {
	Value bool
}

func (e *BoolLit) exprNode() {}
func (e *BoolLit) String() string {
	if e.Value {
		return "true"
	}
	return "false"
}

// PrefixExpr is !x or -x.
type PrefixExpr struct {
	Op    string
	Right Expr
}

func (e *PrefixExpr) exprNode()      {}
func (e *PrefixExpr) String() string { return "(" + e.Op + e.Right.String() + ")" }

// InfixExpr is a binary operation.
type InfixExpr struct {
	Left  Expr
	Op    string
	Right Expr
}

func (e *InfixExpr) exprNode() {}
func (e *InfixExpr) String() string {
	return "(" + e.Left.String() + " " + e.Op + " " + e.Right.String() + ")"
}

// CallExpr calls a builtin or another function of the program.
type CallExpr struct {
	Func string
	Args []Expr
}

func (e *CallExpr) exprNode() {}
func (e *CallExpr) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	return e.Func + "(" + strings.Join(args, ", ") + ")"
}
