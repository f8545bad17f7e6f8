package lexer

// TokenType represents the category of a token
type TokenType int

const (
	TOKEN_EOF        TokenType = iota // End of input
	TOKEN_KEYWORD                     // SELECT, WHERE, JOIN... (from mapping.Keywords)
	TOKEN_IDENTIFIER                  // users, age, `order` (table/column/function names)
	TOKEN_STRING                      // 'active', "active"
	TOKEN_NUMBER                      // 25, 3.14, 1e6
	TOKEN_OPERATOR                    // = <> != < > <= >= + - * / %
	TOKEN_LPAREN                      // (
	TOKEN_RPAREN                      // )
	TOKEN_COMMA                       // ,
	TOKEN_DOT                         // .
	TOKEN_SEMICOLON                   // ;
)

var tokenTypeNames = [...]string{
	"EOF",
	"KEYWORD",
	"IDENTIFIER",
	"STRING",
	"NUMBER",
	"OPERATOR",
	"LPAREN",
	"RPAREN",
	"COMMA",
	"DOT",
	"SEMICOLON",
}

// String returns human-readable token type name
func (t TokenType) String() string {
	if int(t) < 0 || int(t) >= len(tokenTypeNames) {
		return "UNKNOWN"
	}
	return tokenTypeNames[t]
}

// Token represents a single token with position info
type Token struct {
	Type     TokenType
	Value    string // keywords are upper-cased, everything else keeps source text
	Quoted   bool   // back-quoted identifier, never a keyword
	Position int    // byte offset in input
	Line     int    // 1-indexed
	Column   int    // 1-indexed, in runes
}

// Is reports whether the token is the given keyword
func (t Token) Is(keyword string) bool {
	return t.Type == TOKEN_KEYWORD && t.Value == keyword
}

// IsOperator reports whether the token is the given operator
func (t Token) IsOperator(op string) bool {
	return t.Type == TOKEN_OPERATOR && t.Value == op
}

// Display renders the token for error messages
func (t Token) Display() string {
	switch t.Type {
	case TOKEN_EOF:
		return "end of input"
	case TOKEN_STRING:
		return "'" + t.Value + "'"
	default:
		return t.Value
	}
}
