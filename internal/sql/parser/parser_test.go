package parser_test

import (
	"testing"

	"github.com/example/granitedb/internal/sql/parser"
)

func TestSelectProjectionParsing(t *testing.T) {
	stmt, err := parser.Parse("SELECT id, name AS n, id + 1 AS next FROM people")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	selectStmt, ok := stmt.(*parser.SelectStmt)
	if !ok {
		t.Fatalf("expected SelectStmt, got %T", stmt)
	}
	if len(selectStmt.Items) != 3 {
		t.Fatalf("expected 3 projection items, got %d", len(selectStmt.Items))
	}

	first := selectStmt.Items[0].(*parser.SelectExprItem)
	if first.Alias != "" {
		t.Fatalf("expected no alias for first column, got %q", first.Alias)
	}
	if col, ok := first.Expr.(*parser.ColumnRef); !ok || col.Name != "id" {
		t.Fatalf("expected column reference id, got %T", first.Expr)
	}

	second := selectStmt.Items[1].(*parser.SelectExprItem)
	if second.Alias != "n" {
		t.Fatalf("expected alias n, got %q", second.Alias)
	}

	third := selectStmt.Items[2].(*parser.SelectExprItem)
	if third.Alias != "next" {
		t.Fatalf("expected alias next, got %q", third.Alias)
	}
	binary, ok := third.Expr.(*parser.BinaryExpr)
	if !ok || binary.Op != parser.OpAdd {
		t.Fatalf("expected binary addition, got %T with op %v", third.Expr, binary.Op)
	}
	tableRef, ok := selectStmt.From.(*parser.TableName)
	if !ok || tableRef.Name != "people" {
		t.Fatalf("expected FROM people, got %T", selectStmt.From)
	}
}

func TestSelectFunctionParsing(t *testing.T) {
	stmt, err := parser.Parse("SELECT UPPER(name), LENGTH(name) FROM people")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	selectStmt := stmt.(*parser.SelectStmt)
	if len(selectStmt.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(selectStmt.Items))
	}
	first := selectStmt.Items[0].(*parser.SelectExprItem)
	call, ok := first.Expr.(*parser.FunctionCallExpr)
	if !ok || call.Name != "UPPER" {
		t.Fatalf("expected UPPER function, got %T", first.Expr)
	}
	if len(call.Args) != 1 {
		t.Fatalf("expected single argument to UPPER")
	}
}

func TestSelectCoalesceParsing(t *testing.T) {
	stmt, err := parser.Parse("SELECT COALESCE(nick, name) FROM people")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	selectStmt := stmt.(*parser.SelectStmt)
	item := selectStmt.Items[0].(*parser.SelectExprItem)
	call, ok := item.Expr.(*parser.FunctionCallExpr)
	if !ok || call.Name != "COALESCE" || len(call.Args) != 2 {
		t.Fatalf("expected COALESCE with two args, got %+v", call)
	}
}

func TestExpressionPrecedence(t *testing.T) {
	stmt, err := parser.Parse("SELECT 1+2*3 AS a, (1+2)*3 AS b FROM dual")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	selectStmt := stmt.(*parser.SelectStmt)

	first := selectStmt.Items[0].(*parser.SelectExprItem)
	expr := first.Expr.(*parser.BinaryExpr)
	if expr.Op != parser.OpAdd {
		t.Fatalf("expected addition for first expression, got %v", expr.Op)
	}
	if _, ok := expr.Right.(*parser.BinaryExpr); !ok {
		t.Fatalf("expected multiplication on right-hand side of first expression")
	}

	second := selectStmt.Items[1].(*parser.SelectExprItem)
	mult := second.Expr.(*parser.BinaryExpr)
	if mult.Op != parser.OpMultiply {
		t.Fatalf("expected multiplication for second expression, got %v", mult.Op)
	}
	if add, ok := mult.Left.(*parser.BinaryExpr); !ok || add.Op != parser.OpAdd {
		t.Fatalf("expected parenthesised addition on left-hand side")
	}
}

func TestSelectWithoutFrom(t *testing.T) {
	stmt, err := parser.Parse("SELECT 1+2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	selectStmt, ok := stmt.(*parser.SelectStmt)
	if !ok {
		t.Fatalf("expected SelectStmt, got %T", stmt)
	}
	if selectStmt.From != nil {
		t.Fatalf("expected SELECT without FROM to have no table")
	}
}

func TestCreateTableDecimalParsing(t *testing.T) {
	stmt, err := parser.Parse("CREATE TABLE accounts(id INT, balance DECIMAL(12,2) NOT NULL, note VARCHAR(20))")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	create, ok := stmt.(*parser.CreateTableStmt)
	if !ok {
		t.Fatalf("expected CreateTableStmt, got %T", stmt)
	}
	if len(create.Columns) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(create.Columns))
	}
	balance := create.Columns[1]
	if balance.Type != parser.DataTypeDecimal {
		t.Fatalf("expected DECIMAL type, got %v", balance.Type)
	}
	if balance.Precision != 12 || balance.Scale != 2 {
		t.Fatalf("unexpected precision/scale: %d/%d", balance.Precision, balance.Scale)
	}
	if !balance.NotNull {
		t.Fatalf("expected DECIMAL column to keep NOT NULL")
	}
}

func TestCreateTableInlinePrimaryKey(t *testing.T) {
	stmt, err := parser.Parse("CREATE TABLE t(id INT PRIMARY KEY, name VARCHAR(10))")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	create := stmt.(*parser.CreateTableStmt)
	if create.PrimaryKey != "id" {
		t.Fatalf("expected primary key id, got %s", create.PrimaryKey)
	}
}

func TestCreateTableForeignKeyParsing(t *testing.T) {
	sql := `CREATE TABLE order_items(
		id INT PRIMARY KEY,
		order_id INT,
		product_id INT,
		FOREIGN KEY(order_id) REFERENCES orders(id) ON DELETE RESTRICT ON UPDATE NO ACTION,
		CONSTRAINT fk_items_product FOREIGN KEY(product_id)
			REFERENCES products(id)
			ON DELETE CASCADE ON UPDATE RESTRICT
	)`
	stmt, err := parser.Parse(sql)
	if err != nil {
		t.Fatalf("parse foreign keys: %v", err)
	}
	create := stmt.(*parser.CreateTableStmt)
	if len(create.ForeignKeys) != 2 {
		t.Fatalf("expected 2 foreign keys, got %d", len(create.ForeignKeys))
	}
	inline := create.ForeignKeys[0]
	if len(inline.Columns) != 1 || inline.Columns[0] != "order_id" {
		t.Fatalf("unexpected inline child columns: %+v", inline.Columns)
	}
	if inline.RefTable != "orders" {
		t.Fatalf("expected inline referenced table orders, got %s", inline.RefTable)
	}
	if inline.OnDelete != parser.FKActionRestrict || inline.OnUpdate != parser.FKActionNoAction {
		t.Fatalf("unexpected inline actions: %+v", inline)
	}
	named := create.ForeignKeys[1]
	if named.Name != "fk_items_product" {
		t.Fatalf("expected named foreign key fk_items_product, got %s", named.Name)
	}
	if named.OnDelete != parser.FKActionCascade || named.OnUpdate != parser.FKActionRestrict {
		t.Fatalf("unexpected named foreign key actions: %+v", named)
	}
}

func TestJoinParsing(t *testing.T) {
	stmt, err := parser.Parse("SELECT c.name, o.total FROM customers c INNER JOIN orders o ON c.id = o.customer_id")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	selectStmt := stmt.(*parser.SelectStmt)
	join, ok := selectStmt.From.(*parser.JoinExpr)
	if !ok {
		t.Fatalf("expected join expression, got %T", selectStmt.From)
	}
	left, ok := join.Left.(*parser.TableName)
	if !ok || left.Name != "customers" || left.Alias != "c" {
		t.Fatalf("unexpected left table: %+v", join.Left)
	}
	right, ok := join.Right.(*parser.TableName)
	if !ok || right.Name != "orders" || right.Alias != "o" {
		t.Fatalf("unexpected right table: %+v", join.Right)
	}
	if join.Type != parser.JoinInner {
		t.Fatalf("expected INNER join, got %v", join.Type)
	}
	cond, ok := join.On.(*parser.BinaryExpr)
	if !ok || cond.Op != parser.OpEqual {
		t.Fatalf("expected equality condition, got %T", join.On)
	}
}

func TestLeftJoinParsing(t *testing.T) {
	stmt, err := parser.Parse("SELECT c.name FROM customers c LEFT JOIN orders o ON c.id = o.customer_id")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	selectStmt := stmt.(*parser.SelectStmt)
	join, ok := selectStmt.From.(*parser.JoinExpr)
	if !ok {
		t.Fatalf("expected join expression, got %T", selectStmt.From)
	}
	if join.Type != parser.JoinLeft {
		t.Fatalf("expected LEFT join, got %v", join.Type)
	}
}

func TestOrderByQualifiedColumn(t *testing.T) {
	stmt, err := parser.Parse("SELECT c.id FROM customers c ORDER BY c.id DESC")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	selectStmt := stmt.(*parser.SelectStmt)
	if len(selectStmt.OrderBy) != 1 {
		t.Fatalf("expected single ORDER BY term")
	}
	term := selectStmt.OrderBy[0]
	col, ok := term.Expr.(*parser.ColumnRef)
	if !ok || col.Table != "c" || col.Name != "id" {
		t.Fatalf("unexpected column reference: %+v", term.Expr)
	}
	if !term.Desc {
		t.Fatalf("expected DESC ordering")
	}
}

func TestSelectGroupByHavingOrder(t *testing.T) {
	query := "SELECT customer_id, COUNT(*) AS c FROM orders GROUP BY customer_id HAVING COUNT(*) > 1 ORDER BY c DESC, customer_id ASC"
	stmt, err := parser.Parse(query)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	selectStmt := stmt.(*parser.SelectStmt)
	if len(selectStmt.GroupBy) != 1 {
		t.Fatalf("expected single GROUP BY expression")
	}
	if selectStmt.Having == nil {
		t.Fatalf("expected HAVING clause to be parsed")
	}
	if len(selectStmt.OrderBy) != 2 {
		t.Fatalf("expected two ORDER BY terms")
	}
	if !selectStmt.OrderBy[0].Desc || selectStmt.OrderBy[1].Desc {
		t.Fatalf("unexpected ORDER BY directions: %+v", selectStmt.OrderBy)
	}
}

func TestParseCountStar(t *testing.T) {
	stmt, err := parser.Parse("SELECT COUNT(*) FROM orders")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	selectStmt := stmt.(*parser.SelectStmt)
	item := selectStmt.Items[0].(*parser.SelectExprItem)
	call, ok := item.Expr.(*parser.FunctionCallExpr)
	if !ok || call.Name != "COUNT" || !call.Star {
		t.Fatalf("expected COUNT(*) with Star set, got %+v", call)
	}
}

func TestCreateIndexParsing(t *testing.T) {
	stmt, err := parser.Parse("CREATE INDEX idx_total ON orders(total)")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	create, ok := stmt.(*parser.CreateIndexStmt)
	if !ok {
		t.Fatalf("expected CreateIndexStmt, got %T", stmt)
	}
	if create.Name != "idx_total" || create.Table != "orders" {
		t.Fatalf("unexpected definition: %+v", create)
	}
	if create.Unique {
		t.Fatalf("expected non-unique index")
	}
	if len(create.Attributes) != 1 || create.Attributes[0].Column != "total" {
		t.Fatalf("unexpected attributes: %+v", create.Attributes)
	}
}

func TestCreateUniqueIndexParsing(t *testing.T) {
	stmt, err := parser.Parse("CREATE UNIQUE INDEX idx_name ON customers(name)")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	create := stmt.(*parser.CreateIndexStmt)
	if !create.Unique {
		t.Fatalf("expected UNIQUE flag")
	}
}

func TestDropIndexParsing(t *testing.T) {
	stmt, err := parser.Parse("DROP INDEX idx_total")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	drop, ok := stmt.(*parser.DropStmt)
	if !ok || drop.Kind != parser.DropIndex {
		t.Fatalf("expected DropStmt{Kind: DropIndex}, got %+v", stmt)
	}
	if drop.Name != "idx_total" {
		t.Fatalf("unexpected index %s", drop.Name)
	}
}

func TestInsertValuesMultiRow(t *testing.T) {
	stmt, err := parser.Parse("INSERT INTO t (a, b) VALUES (1, 'x'), (2, 'y')")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	insert := stmt.(*parser.InsertStmt)
	if len(insert.Columns) != 2 || len(insert.Values) != 2 {
		t.Fatalf("unexpected insert shape: %+v", insert)
	}
}

func TestInsertSelectParsing(t *testing.T) {
	stmt, err := parser.Parse("INSERT INTO archive SELECT * FROM orders WHERE total > 100")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	insert := stmt.(*parser.InsertStmt)
	if insert.Source == nil {
		t.Fatalf("expected INSERT ... SELECT to set Source")
	}
}

func TestCaseExpressionParsing(t *testing.T) {
	stmt, err := parser.Parse("SELECT CASE WHEN total > 100 THEN 'big' ELSE 'small' END FROM orders")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	selectStmt := stmt.(*parser.SelectStmt)
	item := selectStmt.Items[0].(*parser.SelectExprItem)
	caseExpr, ok := item.Expr.(*parser.CaseExpr)
	if !ok || len(caseExpr.Whens) != 1 || caseExpr.Else == nil {
		t.Fatalf("unexpected CASE shape: %+v", item.Expr)
	}
}

func TestCastExpressionParsing(t *testing.T) {
	stmt, err := parser.Parse("SELECT CAST(total AS DECIMAL(10,2)) FROM orders")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	selectStmt := stmt.(*parser.SelectStmt)
	item := selectStmt.Items[0].(*parser.SelectExprItem)
	cast, ok := item.Expr.(*parser.CastExpr)
	if !ok || cast.TargetType != parser.DataTypeDecimal || cast.Precision != 10 || cast.Scale != 2 {
		t.Fatalf("unexpected CAST shape: %+v", item.Expr)
	}
}

func TestScalarSubqueryParsing(t *testing.T) {
	stmt, err := parser.Parse("SELECT (SELECT COUNT(*) FROM orders o WHERE o.customer_id = c.id) FROM customers c")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	selectStmt := stmt.(*parser.SelectStmt)
	item := selectStmt.Items[0].(*parser.SelectExprItem)
	if _, ok := item.Expr.(*parser.SubqueryExpr); !ok {
		t.Fatalf("expected scalar subquery, got %T", item.Expr)
	}
}

func TestDerivedTableParsing(t *testing.T) {
	stmt, err := parser.Parse("SELECT t.x FROM (SELECT id AS x FROM people) t")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	selectStmt := stmt.(*parser.SelectStmt)
	sub, ok := selectStmt.From.(*parser.SubqueryTableExpr)
	if !ok || sub.Alias != "t" {
		t.Fatalf("expected derived table aliased t, got %+v", selectStmt.From)
	}
}

func TestUpdateParsing(t *testing.T) {
	stmt, err := parser.Parse("UPDATE accounts SET balance = balance + 10 WHERE id = 1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	update := stmt.(*parser.UpdateStmt)
	if len(update.Assignments) != 1 || update.Where == nil {
		t.Fatalf("unexpected update shape: %+v", update)
	}
}

func TestDeleteParsing(t *testing.T) {
	stmt, err := parser.Parse("DELETE FROM accounts WHERE id = 1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	del := stmt.(*parser.DeleteStmt)
	if del.Table != "accounts" || del.Where == nil {
		t.Fatalf("unexpected delete shape: %+v", del)
	}
}

func TestTransactionParsing(t *testing.T) {
	for _, tc := range []struct {
		sql  string
		kind parser.TransactionKind
	}{
		{"BEGIN", parser.TransactionBegin},
		{"COMMIT", parser.TransactionCommit},
		{"ROLLBACK TRANSACTION", parser.TransactionRollback},
	} {
		stmt, err := parser.Parse(tc.sql)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.sql, err)
		}
		txn, ok := stmt.(*parser.TransactionStmt)
		if !ok || txn.Kind != tc.kind {
			t.Fatalf("unexpected statement for %q: %+v", tc.sql, stmt)
		}
	}
}

func TestAnalyzeParsing(t *testing.T) {
	stmt, err := parser.Parse("ANALYZE orders")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	analyze, ok := stmt.(*parser.AnalyzeStmt)
	if !ok || analyze.Table != "orders" {
		t.Fatalf("unexpected statement: %+v", stmt)
	}
}
