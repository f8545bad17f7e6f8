package parser

import (
	"fmt"

	"github.com/omniql-engine/querycraft/engine/ast"
	"github.com/omniql-engine/querycraft/engine/lexer"
)

// =============================================================================
// INSERT
// =============================================================================

// INSERT INTO table (col, ...) VALUES (expr, ...) {, (expr, ...)}
func (p *Parser) parseInsert() (*ast.InsertStatement, error) {
	start := p.advance() // INSERT
	if _, err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	tableTok, err := p.expectIdentifier("table name")
	if err != nil {
		return nil, err
	}
	stmt := &ast.InsertStatement{
		Table:    ast.TableRef{Name: tableTok.Value, Position: tableTok.Position},
		Position: start.Position,
	}

	switch tok := p.current(); {
	case tok.Is("SELECT"):
		return nil, NewUnsupported(tok, "INSERT ... SELECT")
	case tok.Is("VALUES"):
		return nil, NewUnsupported(tok, "INSERT without column list")
	case tok.Type != lexer.TOKEN_LPAREN:
		return nil, NewParseError(tok, "(")
	}
	p.advance()

	seen := make(map[string]bool)
	for {
		col, err := p.expectIdentifier("column name")
		if err != nil {
			return nil, err
		}
		if seen[col.Value] {
			return nil, NewParseError(col, "distinct column name")
		}
		seen[col.Value] = true
		stmt.Columns = append(stmt.Columns, col.Value)
		if !p.match(lexer.TOKEN_COMMA) {
			break
		}
	}
	if _, err := p.expect(lexer.TOKEN_RPAREN, ")"); err != nil {
		return nil, err
	}

	if tok := p.current(); tok.Is("SELECT") {
		return nil, NewUnsupported(tok, "INSERT ... SELECT")
	}
	if _, err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}

	for {
		open, err := p.expect(lexer.TOKEN_LPAREN, "(")
		if err != nil {
			return nil, err
		}
		var row []ast.Expr
		for {
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			row = append(row, val)
			if !p.match(lexer.TOKEN_COMMA) {
				break
			}
		}
		if _, err := p.expect(lexer.TOKEN_RPAREN, ")"); err != nil {
			return nil, err
		}
		if len(row) != len(stmt.Columns) {
			perr := NewParseError(open, fmt.Sprintf("%d values", len(stmt.Columns)))
			perr.Found = fmt.Sprintf("%d values", len(row))
			return nil, perr
		}
		stmt.Rows = append(stmt.Rows, row)
		if !p.match(lexer.TOKEN_COMMA) {
			break
		}
	}

	if tok := p.current(); tok.Is("ON") {
		return nil, NewUnsupported(tok, "INSERT ... ON DUPLICATE KEY / ON CONFLICT")
	}
	return stmt, nil
}

// =============================================================================
// UPDATE
// =============================================================================

// UPDATE table SET col = expr {, col = expr} [WHERE expr]
func (p *Parser) parseUpdate() (*ast.UpdateStatement, error) {
	start := p.advance() // UPDATE
	table, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	stmt := &ast.UpdateStatement{Table: table, Position: start.Position}

	if _, err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}
	assigned := make(map[string]bool)
	for {
		col, err := p.expectIdentifier("column name")
		if err != nil {
			return nil, err
		}
		name := col.Value
		// t.col on the updated table
		if p.current().Type == lexer.TOKEN_DOT {
			p.advance()
			qualified, err := p.expectIdentifier("column name")
			if err != nil {
				return nil, err
			}
			if col.Value != table.Name && col.Value != table.Alias {
				return nil, NewParseError(col, table.Ref())
			}
			name = qualified.Value
		}
		if assigned[name] {
			return nil, NewParseError(col, "column not yet assigned")
		}
		assigned[name] = true
		if tok := p.current(); !tok.IsOperator("=") {
			return nil, NewParseError(tok, "=")
		}
		p.advance()
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Assignments = append(stmt.Assignments, ast.Assignment{Column: name, Value: val, Position: col.Position})
		if !p.match(lexer.TOKEN_COMMA) {
			break
		}
	}

	if p.matchKeyword("WHERE") {
		if stmt.Where, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if err := p.rejectMutationTail("UPDATE"); err != nil {
		return nil, err
	}
	return stmt, nil
}

// =============================================================================
// DELETE
// =============================================================================

// DELETE FROM table [WHERE expr]
func (p *Parser) parseDelete() (*ast.DeleteStatement, error) {
	start := p.advance() // DELETE
	if _, err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	stmt := &ast.DeleteStatement{Table: table, Position: start.Position}

	if p.matchKeyword("WHERE") {
		if stmt.Where, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if err := p.rejectMutationTail("DELETE"); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) rejectMutationTail(stmt string) error {
	tok := p.current()
	switch {
	case tok.Is("ORDER"):
		return NewUnsupported(tok, "ORDER BY on "+stmt)
	case tok.Is("LIMIT"):
		return NewUnsupported(tok, "LIMIT on "+stmt)
	case tok.Is("JOIN"), tok.Is("INNER"), tok.Is("LEFT"):
		return NewUnsupported(tok, "JOIN in "+stmt)
	}
	return nil
}
