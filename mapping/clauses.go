package mapping

// Keywords lists every reserved word the lexer classifies as TOKEN_KEYWORD.
// Function names (COUNT, NOW, ...) are identifiers followed by '('.
var Keywords = map[string]bool{
	// DQL
	"SELECT": true, "DISTINCT": true, "FROM": true, "WHERE": true,
	"GROUP": true, "BY": true, "HAVING": true, "ORDER": true,
	"ASC": true, "DESC": true, "LIMIT": true, "OFFSET": true, "AS": true,

	// Joins
	"JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true, "FULL": true,
	"OUTER": true, "CROSS": true, "NATURAL": true, "ON": true, "USING": true,

	// Predicates
	"AND": true, "OR": true, "NOT": true, "IN": true, "LIKE": true, "IS": true,
	"NULL": true, "BETWEEN": true, "TRUE": true, "FALSE": true, "EXISTS": true,
	"INTERVAL": true,

	// DML
	"INSERT": true, "INTO": true, "VALUES": true, "UPDATE": true, "SET": true,
	"DELETE": true,

	// Recognised only to be rejected
	"WITH": true, "RECURSIVE": true, "OVER": true, "PARTITION": true,
	"UNION": true, "INTERSECT": true, "EXCEPT": true, "ALL": true,
	"ANY": true, "SOME": true, "ESCAPE": true,
	"CASE": true, "WHEN": true, "THEN": true, "ELSE": true, "END": true,
	"CREATE": true, "DROP": true, "ALTER": true, "TRUNCATE": true,
	"GRANT": true, "REVOKE": true, "BEGIN": true, "COMMIT": true, "ROLLBACK": true,
}

// ClauseKeywords are the keywords that may legally follow a complete SELECT body.
// The parser uses them to tell an implicit alias from the next clause.
var ClauseKeywords = []string{
	"FROM", "WHERE", "GROUP BY", "HAVING", "ORDER BY", "LIMIT", "OFFSET",
	"JOIN", "INNER JOIN", "LEFT JOIN", "ON",
}

// IsKeyword checks an upper-cased word against the keyword table
func IsKeyword(upper string) bool {
	return Keywords[upper]
}
