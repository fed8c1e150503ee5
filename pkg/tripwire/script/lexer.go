package script

type TokenType int

const (
	// Special tokens
	ILLEGAL TokenType = iota
	EOF
	NEWLINE

	// Literals
	IDENT
	INT
	FLOAT
	STRING

	// Keywords
	FUNC
	RETURN
	TRUE
	FALSE

	// Operators
	ASSIGN       // =
	PLUS_ASSIGN  // +=
	MINUS_ASSIGN // -=
	STAR_ASSIGN  // *=
	SLASH_ASSIGN // /=
	EQ           // ==
	NOT_EQ       // !=
	LT           // <
	GT           // >
	LTE          // <=
	GTE          // >=
	AND          // &&
	OR           // ||
	NOT          // !
	PLUS         // +
	MINUS        // -
	STAR         // *
	SLASH        // /
	PERCENT      // %

	// Delimiters
	COMMA  // ,
	LPAREN // (
	RPAREN // )
	LBRACE // {
	RBRACE // }
)

type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Column  int
}

var keywords = map[string]TokenType{
	"func":   FUNC,
	"return": RETURN,
	"true":   TRUE,
	"false":  FALSE,
}

type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           byte // current char under examination
	line         int
	column       int
}

func NewLexer(input string) *Lexer {
	l := &Lexer{
		input:  input,
		line:   1,
		column: 0,
	}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
	if l.ch == '\n' {
		l.line++
		l.column = 0
	} else {
		l.column++
	}
}

func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

func (l *Lexer) NextToken() Token {
	var tok Token

	l.skipSpace()

	tok.Line = l.line
	tok.Column = l.column

	switch l.ch {
	case '\n':
		// Statements are newline-terminated; report the line the statement
		// ended on, not the one the lexer already advanced to.
		tok = Token{Type: NEWLINE, Literal: "\n", Line: l.line - 1, Column: l.column}
	case '=':
		tok = l.twoChar('=', EQ, ASSIGN)
	case '!':
		tok = l.twoChar('=', NOT_EQ, NOT)
	case '<':
		tok = l.twoChar('=', LTE, LT)
	case '>':
		tok = l.twoChar('=', GTE, GT)
	case '+':
		tok = l.twoChar('=', PLUS_ASSIGN, PLUS)
	case '-':
		tok = l.twoChar('=', MINUS_ASSIGN, MINUS)
	case '*':
		tok = l.twoChar('=', STAR_ASSIGN, STAR)
	case '/':
		tok = l.twoChar('=', SLASH_ASSIGN, SLASH)
	case '%':
		tok = newToken(PERCENT, l.ch, l.line, l.column)
	case '&':
		if l.peekChar() == '&' {
			l.readChar()
			tok = Token{Type: AND, Literal: "&&", Line: l.line, Column: l.column - 1}
		} else {
			tok = newToken(ILLEGAL, l.ch, l.line, l.column)
		}
	case '|':
		if l.peekChar() == '|' {
			l.readChar()
			tok = Token{Type: OR, Literal: "||", Line: l.line, Column: l.column - 1}
		} else {
			tok = newToken(ILLEGAL, l.ch, l.line, l.column)
		}
	case ',':
		tok = newToken(COMMA, l.ch, l.line, l.column)
	case '(':
		tok = newToken(LPAREN, l.ch, l.line, l.column)
	case ')':
		tok = newToken(RPAREN, l.ch, l.line, l.column)
	case '{':
		tok = newToken(LBRACE, l.ch, l.line, l.column)
	case '}':
		tok = newToken(RBRACE, l.ch, l.line, l.column)
	case '"':
		tok.Type = STRING
		tok.Literal = l.readString()
	case 0:
		tok.Literal = ""
		tok.Type = EOF
	default:
		if isLetter(l.ch) {
			tok.Literal = l.readIdentifier()
			tok.Type = lookupIdent(tok.Literal)
			return tok
		} else if isDigit(l.ch) {
			tok.Type, tok.Literal = l.readNumber()
			return tok
		}
		tok = newToken(ILLEGAL, l.ch, l.line, l.column)
	}

	l.readChar()
	return tok
}

// twoChar emits withEq when the current operator is followed by '=',
// otherwise the bare operator.
func (l *Lexer) twoChar(next byte, withEq, bare TokenType) Token {
	if l.peekChar() == next {
		ch := l.ch
		l.readChar()
		return Token{Type: withEq, Literal: string(ch) + string(l.ch), Line: l.line, Column: l.column - 1}
	}
	return newToken(bare, l.ch, l.line, l.column)
}

func newToken(tokenType TokenType, ch byte, line, column int) Token {
	return Token{Type: tokenType, Literal: string(ch), Line: line, Column: column}
}

func (l *Lexer) readIdentifier() string {
	position := l.position
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	return l.input[position:l.position]
}

func (l *Lexer) readNumber() (TokenType, string) {
	position := l.position
	tokenType := INT

	for isDigit(l.ch) {
		l.readChar()
	}

	if l.ch == '.' && isDigit(l.peekChar()) {
		tokenType = FLOAT
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}

	return tokenType, l.input[position:l.position]
}

func (l *Lexer) readString() string {
	position := l.position + 1
	for {
		l.readChar()
		if l.ch == '"' || l.ch == 0 {
			break
		}
	}
	return l.input[position:l.position]
}

// skipSpace skips blanks and comments but not newlines, which terminate
// statements.
func (l *Lexer) skipSpace() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' {
			l.readChar()
		}
		if l.ch == '#' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			continue
		}
		return
	}
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func lookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT
}

func (t TokenType) String() string {
	switch t {
	case ILLEGAL:
		return "ILLEGAL"
	case EOF:
		return "EOF"
	case NEWLINE:
		return "NEWLINE"
	case IDENT:
		return "IDENT"
	case INT:
		return "INT"
	case FLOAT:
		return "FLOAT"
	case STRING:
		return "STRING"
	case FUNC:
		return "func"
	case RETURN:
		return "return"
	case TRUE:
		return "true"
	case FALSE:
		return "false"
	case ASSIGN:
		return "="
	case PLUS_ASSIGN:
		return "+="
	case MINUS_ASSIGN:
		return "-="
	case STAR_ASSIGN:
		return "*="
	case SLASH_ASSIGN:
		return "/="
	case EQ:
		return "=="
	case NOT_EQ:
		return "!="
	case LT:
		return "<"
	case GT:
		return ">"
	case LTE:
		return "<="
	case GTE:
		return ">="
	case AND:
		return "&&"
	case OR:
		return "||"
	case NOT:
		return "!"
	case PLUS:
		return "+"
	case MINUS:
		return "-"
	case STAR:
		return "*"
	case SLASH:
		return "/"
	case PERCENT:
		return "%"
	case COMMA:
		return ","
	case LPAREN:
		return "("
	case RPAREN:
		return ")"
	case LBRACE:
		return "{"
	case RBRACE:
		return "}"
	default:
		return "UNKNOWN"
	}
}
