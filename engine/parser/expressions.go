package parser

import (
	"fmt"
	"strings"

	"github.com/omniql-engine/querycraft/engine/ast"
	"github.com/omniql-engine/querycraft/engine/lexer"
	"github.com/omniql-engine/querycraft/mapping"
)

// =============================================================================
// BOOLEAN LEVELS: or := and {OR and} ; and := not {AND not} ; not := NOT not | pred
// =============================================================================

func (p *Parser) parseExpr() (ast.Expr, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.current().Is("OR") {
		op := p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: "OR", Left: left, Right: right, Position: op.Position}
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.current().Is("AND") {
		op := p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: "AND", Left: left, Right: right, Position: op.Position}
	}
	return left, nil
}

func (p *Parser) parseNot() (ast.Expr, error) {
	if tok := p.current(); tok.Is("NOT") {
		p.advance()
		if p.current().Is("EXISTS") {
			return nil, NewUnsupported(p.current(), "EXISTS")
		}
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: "NOT", Operand: operand, Position: tok.Position}, nil
	}
	return p.parsePredicate()
}

// =============================================================================
// PREDICATES
// =============================================================================

// pred := sum [cmp sum | [NOT] IN (...) | [NOT] LIKE 'p' | IS [NOT] NULL | [NOT] BETWEEN sum AND sum]
func (p *Parser) parsePredicate() (ast.Expr, error) {
	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}

	tok := p.current()
	if tok.Type == lexer.TOKEN_OPERATOR {
		switch tok.Value {
		case "=", "<>", "!=", "<", ">", "<=", ">=":
			p.advance()
			if next := p.current(); next.Is("ANY") || next.Is("ALL") || next.Is("SOME") {
				return nil, NewUnsupported(next, "quantified comparison "+next.Value)
			}
			right, err := p.parseSum()
			if err != nil {
				return nil, err
			}
			return &ast.BinaryExpr{Op: tok.Value, Left: left, Right: right, Position: tok.Position}, nil
		}
		return left, nil
	}

	not := false
	if tok.Is("NOT") {
		next := p.peek(1)
		if !next.Is("IN") && !next.Is("LIKE") && !next.Is("BETWEEN") {
			return nil, NewParseError(next, "IN", "LIKE", "BETWEEN")
		}
		p.advance()
		not = true
		tok = p.current()
	}

	switch {
	case tok.Is("IN"):
		return p.parseIn(left, not)
	case tok.Is("LIKE"):
		p.advance()
		pat := p.current()
		if pat.Type != lexer.TOKEN_STRING {
			return nil, NewParseError(pat, "string pattern")
		}
		p.advance()
		if p.current().Is("ESCAPE") {
			return nil, NewUnsupported(p.current(), "LIKE ... ESCAPE")
		}
		return &ast.LikeExpr{Expr: left, Pattern: pat.Value, Not: not, Position: tok.Position}, nil
	case tok.Is("BETWEEN"):
		p.advance()
		low, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectKeyword("AND"); err != nil {
			return nil, err
		}
		high, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		return &ast.BetweenExpr{Expr: left, Low: low, High: high, Not: not, Position: tok.Position}, nil
	case tok.Is("IS"):
		p.advance()
		isNot := p.matchKeyword("NOT")
		if _, err := p.expectKeyword("NULL"); err != nil {
			return nil, err
		}
		return &ast.IsNullExpr{Expr: left, Not: isNot, Position: tok.Position}, nil
	}
	return left, nil
}

func (p *Parser) parseIn(left ast.Expr, not bool) (ast.Expr, error) {
	tok := p.advance() // IN
	in := &ast.InExpr{Expr: left, Not: not, Position: tok.Position}

	if _, err := p.expect(lexer.TOKEN_LPAREN, "("); err != nil {
		return nil, err
	}

	if sel := p.current(); sel.Is("SELECT") {
		if p.depth > 0 {
			return nil, NewUnsupported(sel, "nested subquery")
		}
		p.depth++
		stmt, err := p.parseSelect()
		p.depth--
		if err != nil {
			return nil, err
		}
		in.Subquery = &ast.Subquery{Select: stmt, Position: sel.Position}
	} else {
		for {
			item, err := p.parseSum()
			if err != nil {
				return nil, err
			}
			in.List = append(in.List, item)
			if !p.match(lexer.TOKEN_COMMA) {
				break
			}
		}
	}

	if _, err := p.expect(lexer.TOKEN_RPAREN, ")"); err != nil {
		if t := p.current(); t.Is("UNION") || t.Is("INTERSECT") || t.Is("EXCEPT") {
			return nil, NewUnsupported(t, "set operation "+t.Value)
		}
		return nil, err
	}
	return in, nil
}

// =============================================================================
// ARITHMETIC: sum := term {(+|-) term} ; term := unary {(*|/|%) unary}
// =============================================================================

func (p *Parser) parseSum() (ast.Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for tok := p.current(); tok.IsOperator("+") || tok.IsOperator("-"); tok = p.current() {
		p.advance()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: tok.Value, Left: left, Right: right, Position: tok.Position}
	}
	return left, nil
}

func (p *Parser) parseTerm() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for tok := p.current(); tok.IsOperator("*") || tok.IsOperator("/") || tok.IsOperator("%"); tok = p.current() {
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: tok.Value, Left: left, Right: right, Position: tok.Position}
	}
	return left, nil
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	tok := p.current()
	if tok.IsOperator("-") || tok.IsOperator("+") {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		// fold signed numeric literals
		if lit, ok := operand.(*ast.Literal); ok && lit.Kind == ast.LiteralNumber {
			if tok.Value == "-" {
				if strings.HasPrefix(lit.Value, "-") {
					lit.Value = lit.Value[1:]
				} else {
					lit.Value = "-" + lit.Value
				}
			}
			lit.Position = tok.Position
			return lit, nil
		}
		if tok.Value == "+" {
			return operand, nil
		}
		return &ast.UnaryExpr{Op: "-", Operand: operand, Position: tok.Position}, nil
	}
	return p.parsePrimary()
}

// =============================================================================
// PRIMARY
// =============================================================================

var expressionStart = []string{"column", "literal", "function call", "("}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	tok := p.current()

	switch tok.Type {
	case lexer.TOKEN_NUMBER:
		p.advance()
		return &ast.Literal{Kind: ast.LiteralNumber, Value: tok.Value, Position: tok.Position}, nil
	case lexer.TOKEN_STRING:
		p.advance()
		return &ast.Literal{Kind: ast.LiteralString, Value: tok.Value, Position: tok.Position}, nil
	case lexer.TOKEN_LPAREN:
		p.advance()
		if p.current().Is("SELECT") {
			return nil, NewUnsupported(p.current(), "subquery outside IN")
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TOKEN_RPAREN, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	case lexer.TOKEN_IDENTIFIER:
		return p.parseIdentifierExpr()
	case lexer.TOKEN_KEYWORD:
		return p.parseKeywordExpr()
	}

	return nil, NewParseError(tok, expressionStart...)
}

func (p *Parser) parseKeywordExpr() (ast.Expr, error) {
	tok := p.current()
	switch tok.Value {
	case "TRUE", "FALSE":
		p.advance()
		return &ast.Literal{Kind: ast.LiteralBool, Value: tok.Value, Position: tok.Position}, nil
	case "NULL":
		p.advance()
		return &ast.Literal{Kind: ast.LiteralNull, Value: "NULL", Position: tok.Position}, nil
	case "INTERVAL":
		return p.parseInterval()
	case "CASE":
		return nil, NewUnsupported(tok, "CASE expression")
	case "EXISTS":
		return nil, NewUnsupported(tok, "EXISTS")
	}
	return nil, NewParseError(tok, expressionStart...)
}

// INTERVAL n UNIT
func (p *Parser) parseInterval() (ast.Expr, error) {
	tok := p.advance()
	value, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	unitTok := p.current()
	unit := strings.TrimSuffix(strings.ToUpper(unitTok.Value), "S")
	if unitTok.Type != lexer.TOKEN_IDENTIFIER {
		return nil, NewParseError(unitTok, "SECOND", "MINUTE", "HOUR", "DAY", "WEEK")
	}
	if _, ok := mapping.IntervalUnits[unit]; !ok {
		return nil, NewUnsupported(unitTok, "INTERVAL unit "+strings.ToUpper(unitTok.Value))
	}
	p.advance()
	return &ast.IntervalExpr{Value: value, Unit: unit, Position: tok.Position}, nil
}

// column | table.column | func(args) | agg([DISTINCT] * | expr)
func (p *Parser) parseIdentifierExpr() (ast.Expr, error) {
	tok := p.advance()

	if p.current().Type == lexer.TOKEN_DOT {
		p.advance()
		col, err := p.expectIdentifier("column name")
		if err != nil {
			return nil, err
		}
		return &ast.ColumnRef{Table: tok.Value, Column: col.Value, Position: tok.Position}, nil
	}

	name := strings.ToUpper(tok.Value)
	if p.current().Type != lexer.TOKEN_LPAREN || tok.Quoted {
		if mapping.NiladicFunctions[name] && !tok.Quoted {
			return &ast.FuncCall{Name: name, Position: tok.Position}, nil
		}
		return &ast.ColumnRef{Column: tok.Value, Position: tok.Position}, nil
	}

	if mapping.IsAggregate(name) {
		return p.parseAggregate(tok, name)
	}
	return p.parseFuncCall(tok, name)
}

func (p *Parser) parseAggregate(tok lexer.Token, name string) (ast.Expr, error) {
	p.advance() // (
	call := &ast.AggregateCall{Func: name, Position: tok.Position}

	if d := p.current(); d.Is("DISTINCT") {
		return nil, NewUnsupported(d, name+"(DISTINCT ...)")
	}
	if star := p.current(); star.IsOperator("*") {
		if name != "COUNT" {
			return nil, NewParseError(star, "expression")
		}
		p.advance()
		call.Star = true
	} else {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		call.Arg = arg
	}
	if _, err := p.expect(lexer.TOKEN_RPAREN, ")"); err != nil {
		return nil, err
	}
	if over := p.current(); over.Is("OVER") {
		return nil, NewUnsupported(over, "window function")
	}
	return call, nil
}

func (p *Parser) parseFuncCall(tok lexer.Token, name string) (ast.Expr, error) {
	p.advance() // (
	call := &ast.FuncCall{Name: name, Position: tok.Position}

	if p.current().Type != lexer.TOKEN_RPAREN {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
			if !p.match(lexer.TOKEN_COMMA) {
				break
			}
		}
	}
	if _, err := p.expect(lexer.TOKEN_RPAREN, ")"); err != nil {
		return nil, err
	}
	if over := p.current(); over.Is("OVER") {
		return nil, NewUnsupported(over, "window function")
	}

	fn, ok := mapping.ScalarFunctions[name]
	if !ok {
		return nil, NewUnsupported(tok, "function "+name)
	}
	if len(call.Args) < fn.MinArgs || (fn.MaxArgs >= 0 && len(call.Args) > fn.MaxArgs) {
		perr := NewParseError(tok, arity(fn))
		perr.Found = fmt.Sprintf("%d arguments to %s", len(call.Args), name)
		return nil, perr
	}
	if name == "DATE_ADD" || name == "DATE_SUB" {
		if _, ok := call.Args[1].(*ast.IntervalExpr); !ok {
			perr := NewParseError(tok, "INTERVAL n UNIT")
			perr.Found = call.Args[1].String()
			return nil, perr
		}
	}
	return call, nil
}

func arity(fn mapping.ScalarFunction) string {
	switch {
	case fn.MaxArgs < 0:
		return fmt.Sprintf("at least %d arguments", fn.MinArgs)
	case fn.MinArgs == fn.MaxArgs:
		return fmt.Sprintf("%d arguments", fn.MinArgs)
	}
	return fmt.Sprintf("%d to %d arguments", fn.MinArgs, fn.MaxArgs)
}
