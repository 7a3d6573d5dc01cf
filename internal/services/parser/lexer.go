package parser

import (
	"fmt"
	"strings"
)

// TokenType represents the type of a token
type TokenType int

const (
	TOKEN_ILLEGAL TokenType = iota
	TOKEN_EOF

	// Atoms
	TOKEN_WORD   // bare check kind or match, e.g. role, admin, %(project_id)s
	TOKEN_STRING // quoted literal, e.g. 'member' or "a b"
	TOKEN_TRUE   // @
	TOKEN_FALSE  // !

	// Operators
	TOKEN_OR
	TOKEN_AND
	TOKEN_NOT

	// Delimiters
	TOKEN_COLON
	TOKEN_LPAREN
	TOKEN_RPAREN
)

var tokenNames = map[TokenType]string{
	TOKEN_ILLEGAL: "ILLEGAL",
	TOKEN_EOF:     "EOF",
	TOKEN_WORD:    "WORD",
	TOKEN_STRING:  "STRING",
	TOKEN_TRUE:    "@",
	TOKEN_FALSE:   "!",
	TOKEN_OR:      "or",
	TOKEN_AND:     "and",
	TOKEN_NOT:     "not",
	TOKEN_COLON:   ":",
	TOKEN_LPAREN:  "(",
	TOKEN_RPAREN:  ")",
}

var keywords = map[string]TokenType{
	"or":  TOKEN_OR,
	"and": TOKEN_AND,
	"not": TOKEN_NOT,
}

// Token represents a lexical token
type Token struct {
	Type   TokenType
	Value  string
	Line   int
	Column int
}

// String returns a string representation of the token
func (t *Token) String() string {
	typeName := tokenNames[t.Type]
	if typeName == "" {
		typeName = fmt.Sprintf("UNKNOWN(%d)", t.Type)
	}
	return fmt.Sprintf("%s(%s) at %d:%d", typeName, t.Value, t.Line, t.Column)
}

// Lexer performs lexical analysis of a policy check string
type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           byte // current char under examination
	line         int
	column       int
	afterColon   bool // the next word is a match and may contain ':'
}

// NewLexer creates a new Lexer
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input:  input,
		line:   1,
		column: 0,
	}
	l.readChar()
	return l
}

// readChar reads the next character and advances position
func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0 // EOF
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
	l.column++

	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
}

// peekChar returns the next character without advancing position
func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

// skipWhitespace skips whitespace characters
func (l *Lexer) skipWhitespace() {
	for isSpace(l.ch) {
		l.readChar()
	}
}

// readWord reads a bare word. Substitutions like %(project_id)s are kept
// whole even though they contain parentheses.
func (l *Lexer) readWord(allowColon bool) (string, error) {
	position := l.position
	for !isDelimiter(l.ch) || (allowColon && l.ch == ':') {
		if l.ch == '%' && l.peekChar() == '(' {
			for l.ch != ')' {
				if l.ch == 0 {
					return "", fmt.Errorf("unterminated substitution at %d:%d", l.line, l.column)
				}
				l.readChar()
			}
			l.readChar() // consume ')'
			if l.ch != 's' {
				return "", fmt.Errorf("substitution must end with ')s' at %d:%d", l.line, l.column)
			}
		}
		l.readChar()
	}
	return l.input[position:l.position], nil
}

// readString reads a literal enclosed in single or double quotes.
// Double-quoted literals accept backslash escapes.
func (l *Lexer) readString() (string, error) {
	quote := l.ch
	line, column := l.line, l.column
	var sb strings.Builder
	for {
		l.readChar()
		switch {
		case l.ch == 0:
			return "", fmt.Errorf("unterminated string starting at %d:%d", line, column)
		case l.ch == quote:
			l.readChar() // skip closing quote
			return sb.String(), nil
		case l.ch == '\\' && quote == '"':
			l.readChar()
			if l.ch == 0 {
				return "", fmt.Errorf("unterminated string starting at %d:%d", line, column)
			}
			sb.WriteByte(l.ch)
		default:
			sb.WriteByte(l.ch)
		}
	}
}

// NextToken returns the next token
func (l *Lexer) NextToken() (*Token, error) {
	l.skipWhitespace()

	line := l.line
	column := l.column
	matchMode := l.afterColon
	l.afterColon = false

	switch l.ch {
	case 0:
		return &Token{Type: TOKEN_EOF, Value: "", Line: line, Column: column}, nil
	case '(':
		l.readChar()
		return &Token{Type: TOKEN_LPAREN, Value: "(", Line: line, Column: column}, nil
	case ')':
		l.readChar()
		return &Token{Type: TOKEN_RPAREN, Value: ")", Line: line, Column: column}, nil
	case ':':
		l.readChar()
		l.afterColon = true
		return &Token{Type: TOKEN_COLON, Value: ":", Line: line, Column: column}, nil
	case '\'', '"':
		value, err := l.readString()
		if err != nil {
			return nil, err
		}
		return &Token{Type: TOKEN_STRING, Value: value, Line: line, Column: column}, nil
	}

	if !matchMode && (l.ch == '@' || l.ch == '!') && isTerminator(l.peekChar()) {
		tok := &Token{Type: TOKEN_TRUE, Value: "@", Line: line, Column: column}
		if l.ch == '!' {
			tok = &Token{Type: TOKEN_FALSE, Value: "!", Line: line, Column: column}
		}
		l.readChar()
		return tok, nil
	}

	value, err := l.readWord(matchMode)
	if err != nil {
		return nil, err
	}
	if value == "" {
		return nil, fmt.Errorf("illegal character '%c' at %d:%d", l.ch, line, column)
	}

	tokenType := TOKEN_WORD
	if !matchMode && l.ch != ':' {
		if kw, ok := keywords[strings.ToLower(value)]; ok {
			tokenType = kw
		}
	}
	return &Token{Type: tokenType, Value: value, Line: line, Column: column}, nil
}

// Tokenize returns every token of the input, excluding EOF.
func (l *Lexer) Tokenize() ([]*Token, error) {
	var tokens []*Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return nil, err
		}
		if tok.Type == TOKEN_EOF {
			return tokens, nil
		}
		tokens = append(tokens, tok)
	}
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

// isDelimiter reports whether ch ends a bare word
func isDelimiter(ch byte) bool {
	return ch == 0 || isSpace(ch) || ch == '(' || ch == ')' || ch == ':' || ch == '\'' || ch == '"'
}

// isTerminator reports whether ch may follow a standalone @ or !
func isTerminator(ch byte) bool {
	return ch == 0 || isSpace(ch) || ch == ')'
}
