package lexer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(tokens []Token) []TokenType {
	out := make([]TokenType, len(tokens))
	for i, t := range tokens {
		out[i] = t.Type
	}
	return out
}

func values(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Value
	}
	return out
}

func TestScanSelect(t *testing.T) {
	tokens, err := Scan("select name, u.age FROM users u WHERE age >= 25;", 0)
	require.NoError(t, err)

	require.Equal(t, []string{
		"SELECT", "name", ",", "u", ".", "age", "FROM", "users", "u",
		"WHERE", "age", ">=", "25", ";", "",
	}, values(tokens))
	require.Equal(t, []TokenType{
		TOKEN_KEYWORD, TOKEN_IDENTIFIER, TOKEN_COMMA, TOKEN_IDENTIFIER, TOKEN_DOT,
		TOKEN_IDENTIFIER, TOKEN_KEYWORD, TOKEN_IDENTIFIER, TOKEN_IDENTIFIER,
		TOKEN_KEYWORD, TOKEN_IDENTIFIER, TOKEN_OPERATOR, TOKEN_NUMBER, TOKEN_SEMICOLON,
		TOKEN_EOF,
	}, kinds(tokens))
}

func TestScanOperators(t *testing.T) {
	tokens, err := Scan("= <> != < > <= >= + - * / %", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"=", "<>", "!=", "<", ">", "<=", ">=", "+", "-", "*", "/", "%", ""}, values(tokens))
}

func TestScanLiterals(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		value string
	}{
		{`'active'`, TOKEN_STRING, "active"},
		{`'it''s'`, TOKEN_STRING, "it's"},
		{`"double"`, TOKEN_STRING, "double"},
		{`'a\'b'`, TOKEN_STRING, "a'b"},
		{`'100\%'`, TOKEN_STRING, `100\%`},
		{`'a\_b'`, TOKEN_STRING, `a\_b`},
		{`42`, TOKEN_NUMBER, "42"},
		{`3.14`, TOKEN_NUMBER, "3.14"},
		{`1e6`, TOKEN_NUMBER, "1e6"},
		{`2.5E-3`, TOKEN_NUMBER, "2.5E-3"},
		{`.5`, TOKEN_NUMBER, ".5"},
		{"`order`", TOKEN_IDENTIFIER, "order"},
		{`créé`, TOKEN_IDENTIFIER, "créé"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens, err := Scan(tt.input, 0)
			require.NoError(t, err)
			require.Len(t, tokens, 2)
			assert.Equal(t, tt.typ, tokens[0].Type)
			assert.Equal(t, tt.value, tokens[0].Value)
		})
	}
}

func TestQuotedKeywordIsIdentifier(t *testing.T) {
	tokens, err := Scan("`select`", 0)
	require.NoError(t, err)
	require.Equal(t, TOKEN_IDENTIFIER, tokens[0].Type)
	require.True(t, tokens[0].Quoted)
	require.False(t, tokens[0].Is("SELECT"))
}

func TestCommentsAreSkipped(t *testing.T) {
	tokens, err := Scan("SELECT -- trailing\n * /* block\ncomment */ FROM t", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"SELECT", "*", "FROM", "t", ""}, values(tokens))
}

func TestPositions(t *testing.T) {
	tokens, err := Scan("SELECT *\n  FROM users", 0)
	require.NoError(t, err)

	from := tokens[2]
	require.Equal(t, "FROM", from.Value)
	assert.Equal(t, 2, from.Line)
	assert.Equal(t, 3, from.Column)
	assert.Equal(t, 11, from.Position)
}

func TestLexErrors(t *testing.T) {
	tests := []struct {
		input  string
		char   rune
		line   int
		column int
	}{
		{"SELECT # FROM t", '#', 1, 8},
		{"SELECT *\nFROM t WHERE a ! b", '!', 2, 16},
		{"SELECT 'open", '\'', 1, 8},
		{"SELECT /* open", '/', 1, 8},
		{"SELECT `open", '`', 1, 8},
		{"SELECT @x", '@', 1, 8},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := Scan(tt.input, 0)
			var lexErr *LexError
			require.True(t, errors.As(err, &lexErr), "got %v", err)
			assert.Equal(t, tt.char, lexErr.Char)
			assert.Equal(t, tt.line, lexErr.Line)
			assert.Equal(t, tt.column, lexErr.Column)
		})
	}
}

func TestInputTooLarge(t *testing.T) {
	_, err := Scan("SELECT a, b, c FROM t", 5)
	var tooLarge *InputTooLarge
	require.True(t, errors.As(err, &tooLarge))
	assert.Equal(t, 5, tooLarge.Limit)
	assert.Equal(t, 6, tooLarge.Count)

	tokens, err := Scan("SELECT a FROM t", 4)
	require.NoError(t, err)
	require.Len(t, tokens, 5)
}

func TestNextIsLazyAndRestartable(t *testing.T) {
	l := New("SELECT 1")

	first, err := l.Next()
	require.NoError(t, err)
	require.True(t, first.Is("SELECT"))

	second, err := l.Next()
	require.NoError(t, err)
	require.Equal(t, "1", second.Value)

	for i := 0; i < 2; i++ {
		eof, err := l.Next()
		require.NoError(t, err)
		require.Equal(t, TOKEN_EOF, eof.Type)
	}

	l.Reset()
	again, err := l.Next()
	require.NoError(t, err)
	require.Equal(t, first, again)
}

func TestSuggestSimilar(t *testing.T) {
	assert.Equal(t, "SELECT", SuggestSimilar("SELEC"))
	assert.Equal(t, "WHERE", SuggestSimilar("whre"))
	assert.Equal(t, "COUNT", SuggestSimilar("COUNTT"))
	assert.Equal(t, "", SuggestSimilar("customers"))
	assert.Equal(t, "", SuggestSimilar("SELECT"))
}
