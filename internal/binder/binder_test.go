package binder_test

import (
	"path/filepath"
	"testing"

	"github.com/example/granitedb/internal/binder"
	"github.com/example/granitedb/internal/catalog"
	"github.com/example/granitedb/internal/sql/expr"
	"github.com/example/granitedb/internal/sql/parser"
	"github.com/example/granitedb/internal/storage"
)

// newTestCatalog builds a fresh on-disk catalog in a throwaway directory,
// matching the fixture style already used by internal/catalog/catalog_test.go.
func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.gdb")
	if err := storage.New(path); err != nil {
		t.Fatalf("create db: %v", err)
	}
	mgr, err := storage.Open(path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	cat, err := catalog.Load(mgr)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return cat
}

func mustCreateTable(t *testing.T, cat *catalog.Catalog, name string, pk string, cols ...catalog.Column) {
	t.Helper()
	if _, err := cat.CreateTable(name, cols, pk, nil); err != nil {
		t.Fatalf("create table %s: %v", name, err)
	}
}

func bindSQL(t *testing.T, cat *catalog.Catalog, sql string) (parser.Statement, error) {
	t.Helper()
	stmt, err := parser.Parse(sql)
	if err != nil {
		t.Fatalf("parse %q: %v", sql, err)
	}
	b := binder.NewBinder(cat, catalog.DefaultDatabaseName)
	err = b.Bind(stmt)
	return stmt, err
}

func kindOf(t *testing.T, err error) binder.Kind {
	t.Helper()
	be, ok := binder.AsBindError(err)
	if !ok {
		t.Fatalf("expected *BindError, got %T (%v)", err, err)
	}
	return be.Kind
}

// S1. SELECT name FROM users binds to users.name with return_type VARCHAR, depth 0.
func TestBindSelectSimpleColumn(t *testing.T) {
	cat := newTestCatalog(t)
	mustCreateTable(t, cat, "users", "id",
		catalog.Column{Name: "id", Type: catalog.ColumnTypeInt, NotNull: true},
		catalog.Column{Name: "name", Type: catalog.ColumnTypeVarChar, Length: 32},
	)

	stmt, err := bindSQL(t, cat, "SELECT name FROM users")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	sel := stmt.(*parser.SelectStmt)
	if len(sel.Items) != 1 {
		t.Fatalf("expected 1 select item, got %d", len(sel.Items))
	}
	item := sel.Items[0].(*parser.SelectExprItem)
	ref := item.Expr.(*parser.ColumnRef)
	if ref.ColOID == catalog.InvalidColumnOID {
		t.Fatalf("expected resolved column OID")
	}
	ann := ref.Annotation()
	if ann.ReturnType.Kind != expr.TypeVarChar {
		t.Fatalf("expected VARCHAR return type, got %v", ann.ReturnType.Kind)
	}
	if ann.Depth != 0 {
		t.Fatalf("expected depth 0, got %d", ann.Depth)
	}
	if sel.Depth != 0 {
		t.Fatalf("expected statement depth 0, got %d", sel.Depth)
	}
}

// S2. Unknown column fails with NotFound and names the identifier.
func TestBindSelectUnknownColumn(t *testing.T) {
	cat := newTestCatalog(t)
	mustCreateTable(t, cat, "users", "id", catalog.Column{Name: "id", Type: catalog.ColumnTypeInt, NotNull: true})

	_, err := bindSQL(t, cat, "SELECT x FROM users")
	if err == nil {
		t.Fatalf("expected error")
	}
	if kindOf(t, err) != binder.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

// S3. An unqualified column present in two FROM tables is ambiguous.
func TestBindSelectAmbiguousColumn(t *testing.T) {
	cat := newTestCatalog(t)
	mustCreateTable(t, cat, "users", "id", catalog.Column{Name: "id", Type: catalog.ColumnTypeInt, NotNull: true})
	mustCreateTable(t, cat, "orders", "id", catalog.Column{Name: "id", Type: catalog.ColumnTypeInt, NotNull: true})

	_, err := bindSQL(t, cat, "SELECT id FROM users, orders")
	if err == nil {
		t.Fatalf("expected error")
	}
	if kindOf(t, err) != binder.AmbiguousReference {
		t.Fatalf("expected AmbiguousReference, got %v", err)
	}
}

// S4. A derived table without an alias is rejected.
func TestBindSelectDerivedTableRequiresAlias(t *testing.T) {
	cat := newTestCatalog(t)
	mustCreateTable(t, cat, "users", "id", catalog.Column{Name: "id", Type: catalog.ColumnTypeInt, NotNull: true})

	_, err := bindSQL(t, cat, "SELECT * FROM (SELECT id FROM users)")
	if err == nil {
		t.Fatalf("expected error")
	}
	if kindOf(t, err) != binder.MissingAlias {
		t.Fatalf("expected MissingAlias, got %v", err)
	}
}

// S5. A string literal at a DATE column is coerced and binding succeeds.
func TestBindInsertCoercesDateLiteral(t *testing.T) {
	cat := newTestCatalog(t)
	mustCreateTable(t, cat, "events", "", catalog.Column{Name: "ts", Type: catalog.ColumnTypeDate})

	stmt, err := bindSQL(t, cat, "INSERT INTO events VALUES ('2020-01-01')")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	ins := stmt.(*parser.InsertStmt)
	cellType := ins.Values[0][0].Annotation().ReturnType
	if cellType.Kind != expr.TypeDate {
		t.Fatalf("expected DATE-coerced cell, got %v", cellType.Kind)
	}
}

// S6. A non-date string at a DATE column fails with TypeMismatch.
func TestBindInsertRejectsInvalidDateLiteral(t *testing.T) {
	cat := newTestCatalog(t)
	mustCreateTable(t, cat, "events", "", catalog.Column{Name: "ts", Type: catalog.ColumnTypeDate})

	_, err := bindSQL(t, cat, "INSERT INTO events VALUES ('not-a-date')")
	if err == nil {
		t.Fatalf("expected error")
	}
	if kindOf(t, err) != binder.TypeMismatch {
		t.Fatalf("expected TypeMismatch, got %v", err)
	}
}

// S7. A foreign key whose source and sink columns disagree in type fails
// with TypeMismatch at CREATE TABLE time.
func TestBindCreateTableForeignKeyTypeMismatch(t *testing.T) {
	cat := newTestCatalog(t)
	mustCreateTable(t, cat, "u", "", catalog.Column{Name: "b", Type: catalog.ColumnTypeVarChar, Length: 10})

	_, err := bindSQL(t, cat, "CREATE TABLE t (a INT, FOREIGN KEY (a) REFERENCES u(b))")
	if err == nil {
		t.Fatalf("expected error")
	}
	if kindOf(t, err) != binder.TypeMismatch {
		t.Fatalf("expected TypeMismatch, got %v", err)
	}
}

// S8. `*` expands to every column of the single FROM table, and a
// correlated scalar subquery in WHERE resolves its own `c` against the
// outer table while has_subquery is set on the WHERE expression.
func TestBindSelectStarAndCorrelatedSubquery(t *testing.T) {
	cat := newTestCatalog(t)
	mustCreateTable(t, cat, "t", "", catalog.Column{Name: "c", Type: catalog.ColumnTypeInt})

	stmt, err := bindSQL(t, cat, "SELECT * FROM t WHERE c = (SELECT MAX(c) FROM t)")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	sel := stmt.(*parser.SelectStmt)
	if len(sel.Items) != 1 {
		t.Fatalf("expected `*` to expand to 1 column, got %d", len(sel.Items))
	}
	ref := sel.Items[0].(*parser.SelectExprItem).Expr.(*parser.ColumnRef)
	if ref.Table != "t" || ref.Name != "c" {
		t.Fatalf("expected expansion to t.c, got %s.%s", ref.Table, ref.Name)
	}
	where := sel.Where.(*parser.BinaryExpr)
	if !where.Annotation().HasSubquery {
		t.Fatalf("expected has_subquery=true on WHERE expression")
	}
}

// Invariant: every ColumnRef in a successfully bound tree has non-sentinel
// OIDs.
func TestInvariantResolvedColumnsHaveOIDs(t *testing.T) {
	cat := newTestCatalog(t)
	mustCreateTable(t, cat, "users", "id",
		catalog.Column{Name: "id", Type: catalog.ColumnTypeInt, NotNull: true},
		catalog.Column{Name: "name", Type: catalog.ColumnTypeVarChar, Length: 32},
	)
	stmt, err := bindSQL(t, cat, "SELECT id, name FROM users WHERE id > 0")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	sel := stmt.(*parser.SelectStmt)
	for _, item := range sel.Items {
		ref := item.(*parser.SelectExprItem).Expr.(*parser.ColumnRef)
		if ref.TblOID == catalog.InvalidTableOID || ref.ColOID == catalog.InvalidColumnOID {
			t.Fatalf("select item has sentinel OID: %+v", ref)
		}
	}
	whereRef := sel.Where.(*parser.BinaryExpr).Left.(*parser.ColumnRef)
	if whereRef.TblOID == catalog.InvalidTableOID || whereRef.ColOID == catalog.InvalidColumnOID {
		t.Fatalf("WHERE column has sentinel OID: %+v", whereRef)
	}
}

// Invariant: the binder's internal frame stack is empty on return, for
// both a successful and a failing bind. Reusing one Binder sequentially
// (its documented reuse contract) across a failing bind and then a
// succeeding one exposes any leaked frame: a stale frame would shift the
// second SELECT's reported depth away from 0.
func TestInvariantNoFrameLeakOnSuccessOrFailure(t *testing.T) {
	cat := newTestCatalog(t)
	mustCreateTable(t, cat, "users", "id", catalog.Column{Name: "id", Type: catalog.ColumnTypeInt, NotNull: true})

	b := binder.NewBinder(cat, catalog.DefaultDatabaseName)

	bad, err := parser.Parse("SELECT missing FROM users")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := b.Bind(bad); err == nil {
		t.Fatalf("expected bind error")
	}

	good, err := parser.Parse("SELECT id FROM users")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := b.Bind(good); err != nil {
		t.Fatalf("bind after failure: %v", err)
	}
	if got := good.(*parser.SelectStmt).Depth; got != 0 {
		t.Fatalf("expected depth 0 on reused binder, got %d (frame leak)", got)
	}
}

// Inner scope shadows outer scope: a correlation name reused inside a
// scalar subquery resolves to the inner binding, not the outer one.
func TestInnerScopeShadowsOuterScope(t *testing.T) {
	cat := newTestCatalog(t)
	mustCreateTable(t, cat, "inner_t", "", catalog.Column{Name: "c", Type: catalog.ColumnTypeInt})
	mustCreateTable(t, cat, "outer_t", "", catalog.Column{Name: "c", Type: catalog.ColumnTypeBigInt})

	stmt, err := bindSQL(t, cat,
		`SELECT (SELECT t.c FROM inner_t AS t) FROM outer_t AS t`)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	sel := stmt.(*parser.SelectStmt)
	item := sel.Items[0].(*parser.SelectExprItem)
	sub := item.Expr.(*parser.SubqueryExpr)
	innerRef := sub.Query.Items[0].(*parser.SelectExprItem).Expr.(*parser.ColumnRef)
	if innerRef.Annotation().ReturnType.Kind != expr.TypeInt {
		t.Fatalf("expected inner t.c (INT) to win over outer t.c (BIGINT), got %v", innerRef.Annotation().ReturnType.Kind)
	}
}

// Case-insensitive resolution: identifiers differing only in case bind to
// the same catalog object.
func TestCaseInsensitiveResolution(t *testing.T) {
	cat := newTestCatalog(t)
	mustCreateTable(t, cat, "Users", "id", catalog.Column{Name: "ID", Type: catalog.ColumnTypeInt, NotNull: true})

	stmt, err := bindSQL(t, cat, "SELECT id FROM users")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	ref := stmt.(*parser.SelectStmt).Items[0].(*parser.SelectExprItem).Expr.(*parser.ColumnRef)
	if ref.ColOID == catalog.InvalidColumnOID {
		t.Fatalf("expected case-insensitive match to resolve")
	}
}

func TestBindInsertArityMismatch(t *testing.T) {
	cat := newTestCatalog(t)
	mustCreateTable(t, cat, "events", "",
		catalog.Column{Name: "a", Type: catalog.ColumnTypeInt},
		catalog.Column{Name: "b", Type: catalog.ColumnTypeInt},
	)

	_, err := bindSQL(t, cat, "INSERT INTO events VALUES (1)")
	if err == nil {
		t.Fatalf("expected error")
	}
	if kindOf(t, err) != binder.ArityMismatch {
		t.Fatalf("expected ArityMismatch, got %v", err)
	}
}

func TestBindCreateIndexUnknownColumn(t *testing.T) {
	cat := newTestCatalog(t)
	mustCreateTable(t, cat, "events", "", catalog.Column{Name: "a", Type: catalog.ColumnTypeInt})

	_, err := bindSQL(t, cat, "CREATE INDEX idx_a ON events (missing)")
	if err == nil {
		t.Fatalf("expected error")
	}
	if kindOf(t, err) != binder.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestBindCreateTableAlreadyExists(t *testing.T) {
	cat := newTestCatalog(t)
	mustCreateTable(t, cat, "events", "", catalog.Column{Name: "a", Type: catalog.ColumnTypeInt})

	_, err := bindSQL(t, cat, "CREATE TABLE events (a INT)")
	if err == nil {
		t.Fatalf("expected error")
	}
	if kindOf(t, err) != binder.AlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}

func TestBindUpdateSetClauseCoercion(t *testing.T) {
	cat := newTestCatalog(t)
	mustCreateTable(t, cat, "events", "", catalog.Column{Name: "n", Type: catalog.ColumnTypeBigInt})

	stmt, err := bindSQL(t, cat, "UPDATE events SET n = 5 WHERE n = 1")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	upd := stmt.(*parser.UpdateStmt)
	if upd.Assignments[0].Expr.Annotation().ReturnType.Kind != expr.TypeBigInt {
		t.Fatalf("expected SET value coerced to BIGINT, got %v", upd.Assignments[0].Expr.Annotation().ReturnType.Kind)
	}
}

func TestBindDropTableNotFound(t *testing.T) {
	cat := newTestCatalog(t)
	_, err := bindSQL(t, cat, "DROP TABLE ghost")
	if err == nil {
		t.Fatalf("expected error")
	}
	if kindOf(t, err) != binder.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
