package lexer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/omniql-engine/querycraft/mapping"
)

// Lexer produces tokens lazily from SQL text. After the end of input it keeps
// returning TOKEN_EOF; Reset rewinds it to the first token.
type Lexer struct {
	input  string
	pos    int
	line   int
	column int
}

// New creates a lexer over input
func New(input string) *Lexer {
	return &Lexer{input: input, line: 1, column: 1}
}

// Reset restarts the token stream from the beginning of the input
func (l *Lexer) Reset() {
	l.pos = 0
	l.line = 1
	l.column = 1
}

// Scan drains the whole token stream. It fails with *InputTooLarge as soon as
// more than maxTokens tokens (EOF excluded) have been read; maxTokens <= 0
// disables the ceiling.
func Scan(input string, maxTokens int) ([]Token, error) {
	l := New(input)
	var tokens []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == TOKEN_EOF {
			return append(tokens, tok), nil
		}
		tokens = append(tokens, tok)
		if maxTokens > 0 && len(tokens) > maxTokens {
			return nil, &InputTooLarge{Limit: maxTokens, Count: len(tokens)}
		}
	}
}

// Next returns the next token, skipping whitespace and comments
func (l *Lexer) Next() (Token, error) {
	if err := l.skipTrivia(); err != nil {
		return Token{}, err
	}
	if l.pos >= len(l.input) {
		return l.token(TOKEN_EOF, ""), nil
	}

	ch := l.input[l.pos]
	switch ch {
	case '(':
		return l.single(TOKEN_LPAREN), nil
	case ')':
		return l.single(TOKEN_RPAREN), nil
	case ',':
		return l.single(TOKEN_COMMA), nil
	case ';':
		return l.single(TOKEN_SEMICOLON), nil
	case '.':
		if l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1]) {
			return l.scanNumber(), nil
		}
		return l.single(TOKEN_DOT), nil
	case '\'', '"':
		return l.scanString(ch)
	case '`':
		return l.scanQuotedIdent()
	}

	if isDigit(ch) {
		return l.scanNumber(), nil
	}
	if isOperatorChar(ch) {
		return l.scanOperator()
	}

	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	if r == '_' || unicode.IsLetter(r) {
		return l.scanWord(), nil
	}
	return Token{}, l.unexpected(r)
}

func (l *Lexer) token(tokenType TokenType, value string) Token {
	return Token{
		Type:     tokenType,
		Value:    value,
		Position: l.pos,
		Line:     l.line,
		Column:   l.column,
	}
}

func (l *Lexer) single(tokenType TokenType) Token {
	tok := l.token(tokenType, l.input[l.pos:l.pos+1])
	l.advance()
	return tok
}

// advance moves past one rune, keeping line/column in step
func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size
	if r == '\n' {
		l.line++
		l.column = 1
		return
	}
	l.column++
}

func (l *Lexer) peekByte(offset int) byte {
	if l.pos+offset < len(l.input) {
		return l.input[l.pos+offset]
	}
	return 0
}

func (l *Lexer) skipTrivia() error {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f':
			l.advance()
		case ch == '-' && l.peekByte(1) == '-':
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.advance()
			}
		case ch == '/' && l.peekByte(1) == '*':
			startPos, startLine, startCol := l.pos, l.line, l.column
			l.advance()
			l.advance()
			for {
				if l.pos >= len(l.input) {
					return &LexError{
						Message:  "unclosed block comment",
						Position: startPos,
						Line:     startLine,
						Column:   startCol,
						Char:     '/',
					}
				}
				if l.input[l.pos] == '*' && l.peekByte(1) == '/' {
					l.advance()
					l.advance()
					break
				}
				l.advance()
			}
		default:
			return nil
		}
	}
	return nil
}

func (l *Lexer) scanString(quote byte) (Token, error) {
	tok := l.token(TOKEN_STRING, "")
	l.advance() // opening quote

	var value strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]

		if ch == '\\' && l.pos+1 < len(l.input) {
			l.advance()
			switch l.input[l.pos] {
			case 'n':
				value.WriteByte('\n')
			case 't':
				value.WriteByte('\t')
			case 'r':
				value.WriteByte('\r')
			case '%', '_':
				// kept escaped so LIKE treats them literally
				value.WriteByte('\\')
				value.WriteByte(l.input[l.pos])
			default:
				value.WriteByte(l.input[l.pos])
			}
			l.advance()
			continue
		}

		if ch == quote {
			// doubled quote is an escaped quote
			if l.peekByte(1) == quote {
				value.WriteByte(quote)
				l.advance()
				l.advance()
				continue
			}
			l.advance()
			tok.Value = value.String()
			return tok, nil
		}

		value.WriteByte(ch)
		l.pos++
		if ch == '\n' {
			l.line++
			l.column = 1
		} else if ch < utf8.RuneSelf || utf8.RuneStart(ch) {
			l.column++
		}
	}

	return Token{}, &LexError{
		Message:  "unclosed string literal",
		Position: tok.Position,
		Line:     tok.Line,
		Column:   tok.Column,
		Char:     rune(quote),
	}
}

func (l *Lexer) scanQuotedIdent() (Token, error) {
	tok := l.token(TOKEN_IDENTIFIER, "")
	tok.Quoted = true
	l.advance()

	start := l.pos
	for l.pos < len(l.input) && l.input[l.pos] != '`' {
		l.advance()
	}
	if l.pos >= len(l.input) {
		return Token{}, &LexError{
			Message:  "unclosed quoted identifier",
			Position: tok.Position,
			Line:     tok.Line,
			Column:   tok.Column,
			Char:     '`',
		}
	}
	tok.Value = l.input[start:l.pos]
	l.advance()
	if tok.Value == "" {
		return Token{}, &LexError{
			Message:  "empty quoted identifier",
			Position: tok.Position,
			Line:     tok.Line,
			Column:   tok.Column,
			Char:     '`',
		}
	}
	return tok, nil
}

func (l *Lexer) scanNumber() Token {
	tok := l.token(TOKEN_NUMBER, "")
	start := l.pos

	for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
		l.advance()
	}
	if l.peekByte(0) == '.' && isDigit(l.peekByte(1)) {
		l.advance()
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.advance()
		}
	}
	// exponent only when digits follow, otherwise "1e" is a number then an identifier
	if c := l.peekByte(0); c == 'e' || c == 'E' {
		offset := 1
		if s := l.peekByte(1); s == '+' || s == '-' {
			offset = 2
		}
		if isDigit(l.peekByte(offset)) {
			for i := 0; i < offset; i++ {
				l.advance()
			}
			for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
				l.advance()
			}
		}
	}

	tok.Value = l.input[start:l.pos]
	return tok
}

func (l *Lexer) scanWord() Token {
	tok := l.token(TOKEN_IDENTIFIER, "")
	start := l.pos
	for l.pos < len(l.input) {
		r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		l.advance()
	}

	word := l.input[start:l.pos]
	if upper := strings.ToUpper(word); mapping.IsKeyword(upper) {
		tok.Type = TOKEN_KEYWORD
		tok.Value = upper
		return tok
	}
	tok.Value = word
	return tok
}

func (l *Lexer) scanOperator() (Token, error) {
	tok := l.token(TOKEN_OPERATOR, "")
	ch := l.input[l.pos]
	next := l.peekByte(1)

	switch {
	case ch == '<' && (next == '>' || next == '='),
		ch == '>' && next == '=',
		ch == '!' && next == '=':
		tok.Value = l.input[l.pos : l.pos+2]
		l.advance()
		l.advance()
		return tok, nil
	case ch == '!':
		return Token{}, l.unexpected('!')
	}

	tok.Value = string(ch)
	l.advance()
	return tok, nil
}

func (l *Lexer) unexpected(r rune) *LexError {
	return &LexError{
		Message:  "unexpected character " + quoteRune(r),
		Position: l.pos,
		Line:     l.line,
		Column:   l.column,
		Char:     r,
	}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isOperatorChar(ch byte) bool {
	return strings.IndexByte("=<>!+-*/%", ch) >= 0
}
