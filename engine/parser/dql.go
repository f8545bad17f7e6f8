package parser

import (
	"strconv"

	"github.com/omniql-engine/querycraft/engine/ast"
	"github.com/omniql-engine/querycraft/engine/lexer"
)

// =============================================================================
// SELECT
// =============================================================================

// SELECT [DISTINCT] items FROM table {join} [WHERE] [GROUP BY] [HAVING] [ORDER BY] [LIMIT [OFFSET]]
func (p *Parser) parseSelect() (*ast.SelectStatement, error) {
	start := p.advance() // SELECT
	stmt := &ast.SelectStatement{Position: start.Position}

	if p.current().Is("ALL") {
		p.advance()
	}
	if p.matchKeyword("DISTINCT") {
		stmt.Distinct = true
	}

	items, err := p.parseSelectItems()
	if err != nil {
		return nil, err
	}
	stmt.Items = items

	if _, err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	if p.current().Type == lexer.TOKEN_LPAREN {
		return nil, NewUnsupported(p.current(), "subquery in FROM")
	}
	from, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	stmt.From = from
	if p.current().Type == lexer.TOKEN_COMMA {
		return nil, NewUnsupported(p.current(), "comma-separated FROM (implicit join)")
	}

	for {
		join, ok, err := p.parseJoin()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		stmt.Joins = append(stmt.Joins, *join)
	}

	if p.matchKeyword("WHERE") {
		if stmt.Where, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}

	if p.current().Is("GROUP") {
		if stmt.GroupBy, err = p.parseGroupBy(); err != nil {
			return nil, err
		}
	}

	if p.matchKeyword("HAVING") {
		if stmt.Having, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}

	if p.current().Is("ORDER") {
		if stmt.OrderBy, err = p.parseOrderBy(); err != nil {
			return nil, err
		}
	}

	if p.matchKeyword("LIMIT") {
		n, err := p.parseCount()
		if err != nil {
			return nil, err
		}
		// MySQL "LIMIT offset, count"
		if p.match(lexer.TOKEN_COMMA) {
			m, err := p.parseCount()
			if err != nil {
				return nil, err
			}
			stmt.Offset, stmt.Limit = &n, &m
		} else {
			stmt.Limit = &n
		}
	}
	if p.matchKeyword("OFFSET") {
		if stmt.Offset != nil {
			return nil, NewParseError(p.previous(), "end of input")
		}
		n, err := p.parseCount()
		if err != nil {
			return nil, err
		}
		stmt.Offset = &n
	}

	return stmt, nil
}

func (p *Parser) parseSelectItems() ([]ast.SelectItem, error) {
	var items []ast.SelectItem
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if !p.match(lexer.TOKEN_COMMA) {
			return items, nil
		}
	}
}

func (p *Parser) parseSelectItem() (ast.SelectItem, error) {
	tok := p.current()

	if tok.IsOperator("*") {
		p.advance()
		return ast.SelectItem{Star: true, Position: tok.Position}, nil
	}
	if tok.Type == lexer.TOKEN_IDENTIFIER && p.peek(1).Type == lexer.TOKEN_DOT && p.peek(2).IsOperator("*") {
		p.advance()
		p.advance()
		p.advance()
		return ast.SelectItem{Star: true, StarTable: tok.Value, Position: tok.Position}, nil
	}

	expr, err := p.parseExpr()
	if err != nil {
		return ast.SelectItem{}, err
	}
	item := ast.SelectItem{Expr: expr, Position: tok.Position}

	alias, err := p.parseAlias()
	if err != nil {
		return ast.SelectItem{}, err
	}
	item.Alias = alias
	return item, nil
}

// parseAlias reads [AS] name. A bare identifier is an alias; keywords end the item.
func (p *Parser) parseAlias() (string, error) {
	if p.matchKeyword("AS") {
		tok := p.current()
		if tok.Type != lexer.TOKEN_IDENTIFIER && tok.Type != lexer.TOKEN_STRING {
			return "", NewParseError(tok, "alias")
		}
		p.advance()
		return tok.Value, nil
	}
	if p.current().Type == lexer.TOKEN_IDENTIFIER {
		return p.advance().Value, nil
	}
	return "", nil
}

func (p *Parser) parseTableRef() (ast.TableRef, error) {
	tok, err := p.expectIdentifier("table name")
	if err != nil {
		return ast.TableRef{}, err
	}
	ref := ast.TableRef{Name: tok.Value, Position: tok.Position}
	// schema-qualified names keep only the table part
	if p.current().Type == lexer.TOKEN_DOT && p.peek(1).Type == lexer.TOKEN_IDENTIFIER {
		p.advance()
		ref.Name = p.advance().Value
	}
	if p.matchKeyword("AS") {
		alias, err := p.expectIdentifier("table alias")
		if err != nil {
			return ast.TableRef{}, err
		}
		ref.Alias = alias.Value
	} else if p.current().Type == lexer.TOKEN_IDENTIFIER {
		ref.Alias = p.advance().Value
	}
	return ref, nil
}

// =============================================================================
// JOIN
// =============================================================================

// [INNER | LEFT [OUTER]] JOIN table ON a.x = b.y {AND a.x = b.y}
func (p *Parser) parseJoin() (*ast.JoinClause, bool, error) {
	tok := p.current()
	join := &ast.JoinClause{Kind: ast.JoinInner, Position: tok.Position}

	switch {
	case tok.Is("JOIN"):
		p.advance()
	case tok.Is("INNER"):
		p.advance()
		if _, err := p.expectKeyword("JOIN"); err != nil {
			return nil, false, err
		}
	case tok.Is("LEFT"):
		p.advance()
		p.matchKeyword("OUTER")
		if _, err := p.expectKeyword("JOIN"); err != nil {
			return nil, false, err
		}
		join.Kind = ast.JoinLeft
	case tok.Is("RIGHT"), tok.Is("FULL"), tok.Is("CROSS"), tok.Is("NATURAL"):
		return nil, false, NewUnsupported(tok, tok.Value+" JOIN")
	default:
		return nil, false, nil
	}

	if p.current().Type == lexer.TOKEN_LPAREN {
		return nil, false, NewUnsupported(p.current(), "subquery in JOIN")
	}
	table, err := p.parseTableRef()
	if err != nil {
		return nil, false, err
	}
	join.Table = table

	if p.current().Is("USING") {
		return nil, false, NewUnsupported(p.current(), "JOIN ... USING")
	}
	if _, err := p.expectKeyword("ON"); err != nil {
		return nil, false, err
	}

	onTok := p.current()
	on, err := p.parseExpr()
	if err != nil {
		return nil, false, err
	}
	if join.On, err = joinConditions(on, onTok); err != nil {
		return nil, false, err
	}
	return join, true, nil
}

// joinConditions flattens an ON predicate that must be an AND of column equalities
func joinConditions(e ast.Expr, at lexer.Token) ([]ast.JoinCondition, error) {
	bin, ok := e.(*ast.BinaryExpr)
	if !ok {
		return nil, NewUnsupported(at, "join condition other than column equality")
	}
	switch bin.Op {
	case "AND":
		left, err := joinConditions(bin.Left, at)
		if err != nil {
			return nil, err
		}
		right, err := joinConditions(bin.Right, at)
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil
	case "OR":
		return nil, NewUnsupported(at, "OR in join condition")
	case "=":
		l, lok := bin.Left.(*ast.ColumnRef)
		r, rok := bin.Right.(*ast.ColumnRef)
		if !lok || !rok {
			return nil, NewUnsupported(at, "join condition other than column equality")
		}
		return []ast.JoinCondition{{Left: l, Right: r}}, nil
	}
	return nil, NewUnsupported(at, "non-equality join condition ("+bin.Op+")")
}

// =============================================================================
// GROUP BY / ORDER BY / LIMIT
// =============================================================================

func (p *Parser) parseGroupBy() (*ast.GroupByClause, error) {
	start := p.advance() // GROUP
	if _, err := p.expectKeyword("BY"); err != nil {
		return nil, err
	}
	clause := &ast.GroupByClause{Position: start.Position}
	for {
		tok := p.current()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		col, ok := expr.(*ast.ColumnRef)
		if !ok {
			return nil, NewUnsupported(tok, "GROUP BY expression "+expr.String())
		}
		clause.Keys = append(clause.Keys, col)
		if !p.match(lexer.TOKEN_COMMA) {
			return clause, nil
		}
	}
}

func (p *Parser) parseOrderBy() (*ast.OrderByClause, error) {
	start := p.advance() // ORDER
	if _, err := p.expectKeyword("BY"); err != nil {
		return nil, err
	}
	clause := &ast.OrderByClause{Position: start.Position}
	for {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		item := ast.OrderItem{Expr: expr}
		if p.matchKeyword("DESC") {
			item.Desc = true
		} else {
			p.matchKeyword("ASC")
		}
		clause.Items = append(clause.Items, item)
		if !p.match(lexer.TOKEN_COMMA) {
			return clause, nil
		}
	}
}

// parseCount reads a non-negative integer for LIMIT/OFFSET
func (p *Parser) parseCount() (int64, error) {
	tok := p.current()
	if tok.Type != lexer.TOKEN_NUMBER {
		return 0, NewParseError(tok, "non-negative integer")
	}
	n, err := strconv.ParseInt(tok.Value, 10, 64)
	if err != nil {
		return 0, NewParseError(tok, "non-negative integer")
	}
	p.advance()
	return n, nil
}
