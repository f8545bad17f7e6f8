package parser

import (
	"github.com/omniql-engine/querycraft/engine/ast"
	"github.com/omniql-engine/querycraft/engine/lexer"
)

// Parser implements an LL(1) recursive descent parser for the SQL subset
type Parser struct {
	tokens []lexer.Token
	pos    int
	depth  int // subquery nesting
}

// Parse tokenizes and parses a single statement with no token ceiling
func Parse(input string) (ast.Statement, error) {
	tokens, err := lexer.Scan(input, 0)
	if err != nil {
		return nil, err
	}
	return New(tokens).Parse()
}

// New creates a parser over a token slice terminated by TOKEN_EOF
func New(tokens []lexer.Token) *Parser {
	return &Parser{tokens: tokens}
}

var statementKeywords = []string{"SELECT", "INSERT", "UPDATE", "DELETE"}

// Parse parses exactly one statement, optionally terminated by ';'
func (p *Parser) Parse() (ast.Statement, error) {
	tok := p.current()

	var stmt ast.Statement
	var err error

	switch {
	case tok.Is("SELECT"):
		stmt, err = p.parseSelect()
	case tok.Is("INSERT"):
		stmt, err = p.parseInsert()
	case tok.Is("UPDATE"):
		stmt, err = p.parseUpdate()
	case tok.Is("DELETE"):
		stmt, err = p.parseDelete()
	case tok.Is("WITH"):
		return nil, NewUnsupported(tok, "common table expression (WITH)")
	case tok.Is("CREATE"), tok.Is("DROP"), tok.Is("ALTER"), tok.Is("TRUNCATE"):
		return nil, NewUnsupported(tok, "DDL statement "+tok.Value)
	case tok.Is("GRANT"), tok.Is("REVOKE"):
		return nil, NewUnsupported(tok, "DCL statement "+tok.Value)
	case tok.Is("BEGIN"), tok.Is("COMMIT"), tok.Is("ROLLBACK"):
		return nil, NewUnsupported(tok, "transaction statement "+tok.Value)
	default:
		perr := NewParseError(tok, statementKeywords...)
		if tok.Type == lexer.TOKEN_IDENTIFIER {
			perr.Suggestion = lexer.SuggestSimilar(tok.Value)
		}
		return nil, perr
	}
	if err != nil {
		return nil, err
	}

	p.match(lexer.TOKEN_SEMICOLON)
	if !p.isAtEnd() {
		return nil, p.trailing()
	}
	return stmt, nil
}

// trailing explains a token left over after a complete statement
func (p *Parser) trailing() error {
	tok := p.current()
	switch {
	case tok.Is("UNION"), tok.Is("INTERSECT"), tok.Is("EXCEPT"):
		return NewUnsupported(tok, "set operation "+tok.Value)
	case p.previous().Type == lexer.TOKEN_SEMICOLON:
		return NewUnsupported(tok, "multiple statements")
	}
	perr := NewParseError(tok, "end of input")
	if tok.Type == lexer.TOKEN_IDENTIFIER {
		perr.Suggestion = lexer.SuggestSimilar(tok.Value)
	}
	return perr
}

// =============================================================================
// TOKEN NAVIGATION
// =============================================================================

// current returns current token without advancing
func (p *Parser) current() lexer.Token {
	if p.pos >= len(p.tokens) {
		return p.eof()
	}
	return p.tokens[p.pos]
}

func (p *Parser) eof() lexer.Token {
	if n := len(p.tokens); n > 0 && p.tokens[n-1].Type == lexer.TOKEN_EOF {
		return p.tokens[n-1]
	}
	return lexer.Token{Type: lexer.TOKEN_EOF}
}

func (p *Parser) previous() lexer.Token {
	if p.pos == 0 || p.pos > len(p.tokens) {
		return lexer.Token{}
	}
	return p.tokens[p.pos-1]
}

// peek looks ahead without advancing
func (p *Parser) peek(offset int) lexer.Token {
	pos := p.pos + offset
	if pos < 0 || pos >= len(p.tokens) {
		return p.eof()
	}
	return p.tokens[pos]
}

// advance moves to next token, returns previous
func (p *Parser) advance() lexer.Token {
	tok := p.current()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// isAtEnd checks if all tokens consumed
func (p *Parser) isAtEnd() bool {
	return p.current().Type == lexer.TOKEN_EOF
}

// match consumes the current token if it has the given type
func (p *Parser) match(tokenType lexer.TokenType) bool {
	if p.current().Type == tokenType {
		p.advance()
		return true
	}
	return false
}

// matchKeyword consumes the current token if it is one of the keywords
func (p *Parser) matchKeyword(keywords ...string) bool {
	for _, kw := range keywords {
		if p.current().Is(kw) {
			p.advance()
			return true
		}
	}
	return false
}

// expectKeyword consumes a keyword or fails
func (p *Parser) expectKeyword(keyword string) (lexer.Token, error) {
	tok := p.current()
	if !tok.Is(keyword) {
		return tok, NewParseError(tok, keyword)
	}
	return p.advance(), nil
}

// expect consumes a punctuation token or fails
func (p *Parser) expect(tokenType lexer.TokenType, display string) (lexer.Token, error) {
	tok := p.current()
	if tok.Type != tokenType {
		return tok, NewParseError(tok, display)
	}
	return p.advance(), nil
}

// expectIdentifier consumes and returns identifier
func (p *Parser) expectIdentifier(what string) (lexer.Token, error) {
	tok := p.current()
	if tok.Type != lexer.TOKEN_IDENTIFIER {
		return tok, NewParseError(tok, what)
	}
	return p.advance(), nil
}
