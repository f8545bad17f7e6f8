package lexer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/omniql-engine/querycraft/mapping"
)

// LexError reports a character outside the supported SQL character set
type LexError struct {
	Message  string
	Position int
	Line     int
	Column   int
	Char     rune
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lex error at line %d, column %d: %s", e.Line, e.Column, e.Message)
}

// InputTooLarge reports input that exceeds the configured token ceiling
type InputTooLarge struct {
	Limit int
	Count int
}

func (e *InputTooLarge) Error() string {
	return fmt.Sprintf("input too large: more than %d tokens", e.Limit)
}

// LineColumn converts a byte offset into 1-indexed line and rune column
func LineColumn(input string, offset int) (int, int) {
	if offset > len(input) {
		offset = len(input)
	}
	line, col := 1, 1
	for _, r := range input[:offset] {
		if r == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}

func quoteRune(r rune) string {
	if strconv.IsPrint(r) {
		return "'" + string(r) + "'"
	}
	return fmt.Sprintf("%U", r)
}

// SuggestSimilar finds the closest keyword or function name within two edits.
// Ties resolve alphabetically so suggestions are stable.
func SuggestSimilar(unknown string) string {
	unknown = strings.ToUpper(unknown)
	if unknown == "" || mapping.IsKeyword(unknown) {
		return ""
	}

	candidates := make([]string, 0, len(mapping.Keywords)+len(mapping.ScalarFunctions)+len(mapping.AggregateFunctions))
	for kw := range mapping.Keywords {
		candidates = append(candidates, kw)
	}
	for fn := range mapping.ScalarFunctions {
		candidates = append(candidates, fn)
	}
	for fn := range mapping.AggregateFunctions {
		candidates = append(candidates, fn)
	}
	sort.Strings(candidates)

	bestMatch := ""
	bestDistance := 3 // only suggest within 2 edits
	for _, c := range candidates {
		// a one-letter guess is noise
		if len(c) < 3 && len(unknown) < 3 {
			continue
		}
		if dist := levenshtein(unknown, c); dist < bestDistance {
			bestDistance = dist
			bestMatch = c
		}
	}
	return bestMatch
}

// levenshtein calculates edit distance between two strings
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
