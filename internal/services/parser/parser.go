package parser

import (
	"fmt"
	"strings"

	"github.com/asakaida/placement/internal/entities"
)

// Check kinds with dedicated node types. Any other kind is a generic check.
const (
	kindRole = "role"
	kindRule = "rule"
	kindCEL  = "cel"
)

// Parser parses a policy check string into a check tree
type Parser struct {
	lexer   *Lexer
	current *Token
	peek    *Token
	errors  []string
}

// NewParser creates a new Parser
func NewParser(lexer *Lexer) *Parser {
	p := &Parser{
		lexer:  lexer,
		errors: []string{},
	}

	// Read two tokens to initialize current and peek
	p.nextToken()
	p.nextToken()

	return p
}

// Parse is a shortcut for NewParser(NewLexer(checkStr)).Parse().
func Parse(checkStr string) (entities.Check, error) {
	return NewParser(NewLexer(checkStr)).Parse()
}

// nextToken advances to the next token
func (p *Parser) nextToken() {
	p.current = p.peek
	if p.current != nil && p.current.Type == TOKEN_EOF {
		// Do not read past the end once EOF has been reached.
		return
	}
	tok, err := p.lexer.NextToken()
	if err != nil {
		p.errors = append(p.errors, err.Error())
		p.peek = &Token{Type: TOKEN_EOF, Line: p.lexer.line, Column: p.lexer.column}
	} else {
		p.peek = tok
	}
}

// currentTokenIs checks if the current token is of the given type
func (p *Parser) currentTokenIs(t TokenType) bool {
	return p.current != nil && p.current.Type == t
}

// peekTokenIs checks if the peek token is of the given type
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peek != nil && p.peek.Type == t
}

// unexpected records an error for the current token
func (p *Parser) unexpected(context string) {
	p.errors = append(p.errors, fmt.Sprintf("unexpected token %s %s at %d:%d",
		tokenNames[p.current.Type], context, p.current.Line, p.current.Column))
}

// Parse parses the entire check string. An empty string always passes.
func (p *Parser) Parse() (entities.Check, error) {
	if p.currentTokenIs(TOKEN_EOF) && len(p.errors) == 0 {
		return &entities.TrueCheck{}, nil
	}

	check := p.parseOrExpression()

	if check != nil && !p.currentTokenIs(TOKEN_EOF) {
		p.unexpected("after expression")
	}

	if len(p.errors) > 0 {
		return nil, fmt.Errorf("parse errors:\n%s", strings.Join(p.errors, "\n"))
	}

	return check, nil
}

// parseOrExpression parses OR expressions
func (p *Parser) parseOrExpression() entities.Check {
	left := p.parseAndExpression()
	if left == nil {
		return nil
	}

	checks := []entities.Check{left}
	for p.currentTokenIs(TOKEN_OR) {
		p.nextToken()
		right := p.parseAndExpression()
		if right == nil {
			return nil
		}
		checks = append(checks, right)
	}

	if len(checks) == 1 {
		return left
	}
	return &entities.OrCheck{Checks: checks}
}

// parseAndExpression parses AND expressions
func (p *Parser) parseAndExpression() entities.Check {
	left := p.parseUnaryExpression()
	if left == nil {
		return nil
	}

	checks := []entities.Check{left}
	for p.currentTokenIs(TOKEN_AND) {
		p.nextToken()
		right := p.parseUnaryExpression()
		if right == nil {
			return nil
		}
		checks = append(checks, right)
	}

	if len(checks) == 1 {
		return left
	}
	return &entities.AndCheck{Checks: checks}
}

// parseUnaryExpression parses unary expressions (NOT)
func (p *Parser) parseUnaryExpression() entities.Check {
	if p.currentTokenIs(TOKEN_NOT) {
		p.nextToken()
		operand := p.parseUnaryExpression()
		if operand == nil {
			return nil
		}
		return &entities.NotCheck{Check: operand}
	}

	return p.parsePrimaryExpression()
}

// parsePrimaryExpression parses parenthesized expressions and atoms
func (p *Parser) parsePrimaryExpression() entities.Check {
	switch {
	case p.currentTokenIs(TOKEN_LPAREN):
		p.nextToken()
		inner := p.parseOrExpression()
		if inner == nil {
			return nil
		}
		if !p.currentTokenIs(TOKEN_RPAREN) {
			p.unexpected("(expected ')')")
			return nil
		}
		p.nextToken()
		return inner
	case p.currentTokenIs(TOKEN_TRUE):
		p.nextToken()
		return &entities.TrueCheck{}
	case p.currentTokenIs(TOKEN_FALSE):
		p.nextToken()
		return &entities.FalseCheck{}
	case p.currentTokenIs(TOKEN_WORD), p.currentTokenIs(TOKEN_STRING):
		return p.parseAtom()
	case p.currentTokenIs(TOKEN_EOF):
		p.errors = append(p.errors, fmt.Sprintf("unexpected end of check string at %d:%d",
			p.current.Line, p.current.Column))
		return nil
	default:
		p.unexpected("(expected a check)")
		return nil
	}
}

// parseAtom parses "kind:match"
// Examples: "role:admin", "rule:admin_api", "'member':%(role)s", `cel:"x == y"`
func (p *Parser) parseAtom() entities.Check {
	left := p.current
	if !p.peekTokenIs(TOKEN_COLON) {
		p.errors = append(p.errors, fmt.Sprintf("expected ':' after %q at %d:%d",
			left.Value, left.Line, left.Column))
		p.nextToken()
		return nil
	}
	p.nextToken() // consume kind, current is ':'

	if !p.peekTokenIs(TOKEN_WORD) && !p.peekTokenIs(TOKEN_STRING) {
		p.errors = append(p.errors, fmt.Sprintf("expected a match after '%s:' at %d:%d",
			left.Value, p.peek.Line, p.peek.Column))
		p.nextToken()
		return nil
	}
	p.nextToken()
	match := p.current.Value
	p.nextToken()

	if left.Type == TOKEN_STRING {
		return &entities.GenericCheck{Key: left.Value, Match: match, Literal: true}
	}

	switch strings.ToLower(left.Value) {
	case kindRole:
		return &entities.RoleCheck{Role: match}
	case kindRule:
		return &entities.RuleCheck{Rule: match}
	case kindCEL:
		return &entities.CELCheck{Expression: match}
	default:
		return &entities.GenericCheck{Key: left.Value, Match: match}
	}
}
