package script

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chosenoffset/tripwire/pkg/tripwire"
)

const (
	_ int = iota
	LOWEST
	LOGICAL     // && ||
	EQUALS      // == !=
	LESSGREATER // > or <
	SUM         // + -
	PRODUCT     // * / %
	PREFIX      // -X or !X
	CALL        // f(X)
)

var precedences = map[TokenType]int{
	EQ:      EQUALS,
	NOT_EQ:  EQUALS,
	LT:      LESSGREATER,
	GT:      LESSGREATER,
	LTE:     LESSGREATER,
	GTE:     LESSGREATER,
	AND:     LOGICAL,
	OR:      LOGICAL,
	PLUS:    SUM,
	MINUS:   SUM,
	STAR:    PRODUCT,
	SLASH:   PRODUCT,
	PERCENT: PRODUCT,
}

var assignOps = map[TokenType]string{
	ASSIGN:       "=",
	PLUS_ASSIGN:  "+=",
	MINUS_ASSIGN: "-=",
	STAR_ASSIGN:  "*=",
	SLASH_ASSIGN: "/=",
}

type Parser struct {
	l *Lexer

	curToken  Token
	peekToken Token

	errors []string
}

func newParser(l *Lexer) *Parser {
	p := &Parser{
		l:      l,
		errors: []string{},
	}

	// Read two tokens, so curToken and peekToken are both set
	p.nextToken()
	p.nextToken()

	return p
}

// Parse parses a complete script: a sequence of function declarations. Each
// function becomes one code unit with its line table, fingerprint, and
// declared bindings.
func Parse(src string) (*Program, error) {
	p := newParser(NewLexer(src))
	prog := p.parseProgram(src)
	if len(p.errors) > 0 {
		return nil, fmt.Errorf("parse errors: %s", strings.Join(p.errors, "; "))
	}
	return prog, nil
}

// ParseSnippet parses a bare statement list, the form Exec callbacks use.
// Function declarations and return statements are not allowed.
func ParseSnippet(src string) ([]Stmt, error) {
	p := newParser(NewLexer(src))
	var stmts []Stmt
	p.skipNewlines()
	for !p.curTokenIs(EOF) {
		if p.curTokenIs(FUNC) {
			p.addError("function declarations are not allowed in a snippet")
			break
		}
		if p.curTokenIs(RETURN) {
			p.addError("return is not allowed in a snippet")
			break
		}
		stmt := p.parseStatement()
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
		p.nextToken()
		p.skipNewlines()
	}
	if len(p.errors) > 0 {
		return nil, fmt.Errorf("parse errors: %s", strings.Join(p.errors, "; "))
	}
	return stmts, nil
}

func (p *Parser) parseProgram(src string) *Program {
	prog := &Program{index: make(map[string]*FuncDecl)}
	srcLines := strings.Split(src, "\n")

	p.skipNewlines()
	for !p.curTokenIs(EOF) {
		if !p.curTokenIs(FUNC) {
			p.addError(fmt.Sprintf("expected func declaration, got %s at line %d", p.curToken.Type, p.curToken.Line))
			return prog
		}
		fn := p.parseFuncDecl()
		if fn == nil {
			return prog
		}
		if _, dup := prog.index[fn.Name]; dup {
			p.addError(fmt.Sprintf("function %q redeclared at line %d", fn.Name, fn.Line))
			return prog
		}
		bindUnit(fn, srcLines)
		prog.Funcs = append(prog.Funcs, fn)
		prog.index[fn.Name] = fn
		p.nextToken()
		p.skipNewlines()
	}
	return prog
}

// bindUnit attaches the tripwire code unit: the function's own slice of
// source lines, its statement index, and the bindings a condition may
// reference (parameters plus every assigned name).
func bindUnit(fn *FuncDecl, srcLines []string) {
	first := fn.Line - 1
	last := fn.EndLine
	if first < 0 {
		first = 0
	}
	if last > len(srcLines) {
		last = len(srcLines)
	}
	source := strings.Join(srcLines[first:last], "\n") + "\n"
	fn.unit = tripwire.NewCodeUnit(fn.Name, source, fn.Line)

	fn.stmtIndex = make(map[int]int, len(fn.Body))
	names := append([]string(nil), fn.Params...)
	for pc, st := range fn.Body {
		fn.stmtIndex[st.Pos()] = pc
		if as, ok := st.(*AssignStmt); ok {
			names = append(names, as.Name)
		}
	}
	fn.unit.DeclareBindings(names...)
}

func (p *Parser) parseFuncDecl() *FuncDecl {
	fn := &FuncDecl{Line: p.curToken.Line}

	if !p.expectPeek(IDENT) {
		return nil
	}
	fn.Name = p.curToken.Literal

	if !p.expectPeek(LPAREN) {
		return nil
	}
	fn.Params = p.parseParams()
	if fn.Params == nil && len(p.errors) > 0 {
		return nil
	}

	if !p.expectPeek(LBRACE) {
		return nil
	}
	p.nextToken()

	for {
		p.skipNewlines()
		if p.curTokenIs(RBRACE) {
			fn.EndLine = p.curToken.Line
			return fn
		}
		if p.curTokenIs(EOF) {
			p.addError(fmt.Sprintf("unterminated body of %q", fn.Name))
			return nil
		}
		stmt := p.parseStatement()
		if stmt == nil {
			return nil
		}
		fn.Body = append(fn.Body, stmt)
		p.nextToken()
	}
}

func (p *Parser) parseParams() []string {
	params := []string{}

	if p.peekTokenIs(RPAREN) {
		p.nextToken()
		return params
	}

	if !p.expectPeek(IDENT) {
		return nil
	}
	params = append(params, p.curToken.Literal)

	for p.peekTokenIs(COMMA) {
		p.nextToken()
		if !p.expectPeek(IDENT) {
			return nil
		}
		params = append(params, p.curToken.Literal)
	}

	if !p.expectPeek(RPAREN) {
		return nil
	}
	return params
}

func (p *Parser) parseStatement() Stmt {
	switch {
	case p.curTokenIs(RETURN):
		return p.parseReturnStatement()
	case p.curTokenIs(IDENT) && isAssign(p.peekToken.Type):
		return p.parseAssignStatement()
	default:
		return p.parseExpressionStatement()
	}
}

func isAssign(t TokenType) bool {
	_, ok := assignOps[t]
	return ok
}

func (p *Parser) parseReturnStatement() Stmt {
	stmt := &ReturnStmt{Line: p.curToken.Line}
	if p.peekTokenIs(NEWLINE) || p.peekTokenIs(RBRACE) || p.peekTokenIs(EOF) {
		return stmt
	}
	p.nextToken()
	stmt.Value = p.parseExpression(LOWEST)
	return stmt
}

func (p *Parser) parseAssignStatement() Stmt {
	stmt := &AssignStmt{Line: p.curToken.Line, Name: p.curToken.Literal}
	p.nextToken()
	stmt.Op = assignOps[p.curToken.Type]
	p.nextToken()
	stmt.Value = p.parseExpression(LOWEST)
	if stmt.Value == nil {
		return nil
	}
	return stmt
}

func (p *Parser) parseExpressionStatement() Stmt {
	stmt := &ExprStmt{Line: p.curToken.Line}
	stmt.X = p.parseExpression(LOWEST)
	if stmt.X == nil {
		return nil
	}
	return stmt
}

func (p *Parser) parseExpression(precedence int) Expr {
	var left Expr

	switch p.curToken.Type {
	case IDENT:
		if p.peekTokenIs(LPAREN) {
			left = p.parseCallExpression()
		} else {
			left = &Ident{Name: p.curToken.Literal}
		}
	case INT:
		left = p.parseIntegerLiteral()
	case FLOAT:
		left = p.parseFloatLiteral()
	case STRING:
		left = &StringLit{Value: p.curToken.Literal}
	case TRUE:
		left = &BoolLit{Value: true}
	case FALSE:
		left = &BoolLit{Value: false}
	case NOT, MINUS:
		left = p.parsePrefixExpression()
	case LPAREN:
		left = p.parseGroupedExpression()
	default:
		p.addError(fmt.Sprintf("unexpected token %s at line %d", p.curToken.Type, p.curToken.Line))
		return nil
	}
	if left == nil {
		return nil
	}

	for !p.peekTokenIs(NEWLINE) && precedence < p.peekPrecedence() {
		p.nextToken()
		left = p.parseInfixExpression(left)
		if left == nil {
			return nil
		}
	}

	return left
}

func (p *Parser) parseIntegerLiteral() Expr {
	value, err := strconv.ParseInt(p.curToken.Literal, 0, 64)
	if err != nil {
		p.addError(fmt.Sprintf("could not parse %q as integer", p.curToken.Literal))
		return nil
	}
	return &IntLit{Value: value, Text: p.curToken.Literal}
}

func (p *Parser) parseFloatLiteral() Expr {
	value, err := strconv.ParseFloat(p.curToken.Literal, 64)
	if err != nil {
		p.addError(fmt.Sprintf("could not parse %q as float", p.curToken.Literal))
		return nil
	}
	return &FloatLit{Value: value, Text: p.curToken.Literal}
}

func (p *Parser) parsePrefixExpression() Expr {
	expr := &PrefixExpr{Op: p.curToken.Literal}
	p.nextToken()
	expr.Right = p.parseExpression(PREFIX)
	if expr.Right == nil {
		return nil
	}
	return expr
}

func (p *Parser) parseInfixExpression(left Expr) Expr {
	expr := &InfixExpr{Left: left, Op: p.curToken.Literal}
	precedence := p.curPrecedence()
	p.nextToken()
	expr.Right = p.parseExpression(precedence)
	if expr.Right == nil {
		return nil
	}
	return expr
}

func (p *Parser) parseGroupedExpression() Expr {
	p.nextToken()
	exp := p.parseExpression(LOWEST)
	if !p.expectPeek(RPAREN) {
		return nil
	}
	return exp
}

func (p *Parser) parseCallExpression() Expr {
	call := &CallExpr{Func: p.curToken.Literal}
	p.nextToken() // onto '('

	if p.peekTokenIs(RPAREN) {
		p.nextToken()
		return call
	}

	p.nextToken()
	arg := p.parseExpression(LOWEST)
	if arg == nil {
		return nil
	}
	call.Args = append(call.Args, arg)

	for p.peekTokenIs(COMMA) {
		p.nextToken()
		p.nextToken()
		arg := p.parseExpression(LOWEST)
		if arg == nil {
			return nil
		}
		call.Args = append(call.Args, arg)
	}

	if !p.expectPeek(RPAREN) {
		return nil
	}
	return call
}

func (p *Parser) skipNewlines() {
	for p.curTokenIs(NEWLINE) {
		p.nextToken()
	}
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

func (p *Parser) expectPeek(t TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf("expected next token to be %s, got %s at line %d",
		t, p.peekToken.Type, p.peekToken.Line))
	return false
}

func (p *Parser) addError(msg string) {
	p.errors = append(p.errors, msg)
}

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) curPrecedence() int {
	if prec, ok := precedences[p.curToken.Type]; ok {
		return prec
	}
	return LOWEST
}
