package script

import "testing"

func TestLexerTokens(t *testing.T) {
	input := `func add(a, b) {
	total = a + b
	total += 1.5
	return total != 0 && !false
}
# trailing comment
`
	tests := []struct {
		expectedType    TokenType
		expectedLiteral string
	}{
		{FUNC, "func"},
		{IDENT, "add"},
		{LPAREN, "("},
		{IDENT, "a"},
		{COMMA, ","},
		{IDENT, "b"},
		{RPAREN, ")"},
		{LBRACE, "{"},
		{NEWLINE, "\n"},
		{IDENT, "total"},
		{ASSIGN, "="},
		{IDENT, "a"},
		{PLUS, "+"},
		{IDENT, "b"},
		{NEWLINE, "\n"},
		{IDENT, "total"},
		{PLUS_ASSIGN, "+="},
		{FLOAT, "1.5"},
		{NEWLINE, "\n"},
		{RETURN, "return"},
		{IDENT, "total"},
		{NOT_EQ, "!="},
		{INT, "0"},
		{AND, "&&"},
		{NOT, "!"},
		{FALSE, "false"},
		{NEWLINE, "\n"},
		{RBRACE, "}"},
		{NEWLINE, "\n"},
		{NEWLINE, "\n"},
		{EOF, ""},
	}

	l := NewLexer(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - wrong token type. expected=%s, got=%s (%q)",
				i, tt.expectedType, tok.Type, tok.Literal)
		}
		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - wrong literal. expected=%q, got=%q",
				i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestLexerLineNumbers(t *testing.T) {
	input := "x = 1\ny = 2\n"
	l := NewLexer(input)

	expected := []struct {
		typ  TokenType
		line int
	}{
		{IDENT, 1},
		{ASSIGN, 1},
		{INT, 1},
		{NEWLINE, 1},
		{IDENT, 2},
		{ASSIGN, 2},
		{INT, 2},
		{NEWLINE, 2},
		{EOF, 3},
	}
	for i, tt := range expected {
		tok := l.NextToken()
		if tok.Type != tt.typ {
			t.Fatalf("tests[%d] - wrong token type. expected=%s, got=%s", i, tt.typ, tok.Type)
		}
		if tok.Line != tt.line {
			t.Errorf("tests[%d] - token %s on wrong line. expected=%d, got=%d",
				i, tok.Type, tt.line, tok.Line)
		}
	}
}

func TestLexerStringsAndComparisons(t *testing.T) {
	input := `name == "hello" <= >= < > || % * /`
	expected := []struct {
		typ     TokenType
		literal string
	}{
		{IDENT, "name"},
		{EQ, "=="},
		{STRING, "hello"},
		{LTE, "<="},
		{GTE, ">="},
		{LT, "<"},
		{GT, ">"},
		{OR, "||"},
		{PERCENT, "%"},
		{STAR, "*"},
		{SLASH, "/"},
		{EOF, ""},
	}

	l := NewLexer(input)
	for i, tt := range expected {
		tok := l.NextToken()
		if tok.Type != tt.typ || tok.Literal != tt.literal {
			t.Fatalf("tests[%d] - expected (%s, %q), got (%s, %q)",
				i, tt.typ, tt.literal, tok.Type, tok.Literal)
		}
	}
}

func TestLexerCommentsSkipped(t *testing.T) {
	input := "x = 1 # set x\ny = 2\n"
	l := NewLexer(input)

	var types []TokenType
	for {
		tok := l.NextToken()
		types = append(types, tok.Type)
		if tok.Type == EOF {
			break
		}
	}
	expected := []TokenType{IDENT, ASSIGN, INT, NEWLINE, IDENT, ASSIGN, INT, NEWLINE, EOF}
	if len(types) != len(expected) {
		t.Fatalf("expected %d tokens, got %d: %v", len(expected), len(types), types)
	}
	for i := range expected {
		if types[i] != expected[i] {
			t.Errorf("token %d: expected %s, got %s", i, expected[i], types[i])
		}
	}
}
