package reverse

import (
	"fmt"

	"github.com/pingcap/tidb/parser"
	"github.com/pingcap/tidb/parser/ast"
	_ "github.com/pingcap/tidb/parser/test_driver"
)

// checkSQL parses the generated statements with the TiDB MySQL grammar and
// confirms each one is of the expected kind
func checkSQL(sql, kind string) error {
	p := parser.New()
	stmts, _, err := p.Parse(sql, "", "")
	if err != nil {
		return fmt.Errorf("generated SQL does not parse as MySQL: %w", err)
	}
	if len(stmts) == 0 {
		return fmt.Errorf("generated SQL is empty")
	}
	for _, stmt := range stmts {
		var got string
		switch stmt.(type) {
		case *ast.SelectStmt:
			got = "select"
		case *ast.InsertStmt:
			got = "insert"
		case *ast.UpdateStmt:
			got = "update"
		case *ast.DeleteStmt:
			got = "delete"
		default:
			got = fmt.Sprintf("%T", stmt)
		}
		if got != kind {
			return fmt.Errorf("generated SQL is a %s statement, expected %s", got, kind)
		}
	}
	return nil
}
