// Package binder implements the semantic binding pass: it resolves every
// name in a parsed statement to a catalog OID, checks the statement's
// structural legality against the schema, and annotates every expression
// node with its depth, has_subquery flag, return type and display name.
// The tree is mutated in place; callers discard it on the first error.
package binder

import (
	"strings"

	"github.com/example/granitedb/internal/catalog"
	"github.com/example/granitedb/internal/sql/expr"
	"github.com/example/granitedb/internal/sql/parser"
)

// Binder binds exactly one statement tree per call to Bind. It is not
// safe for concurrent use; construct a fresh Binder (or reuse one
// sequentially) per statement.
type Binder struct {
	cat             *catalog.Catalog
	ctx             *BinderContext
	defaultDatabase string
}

// NewBinder constructs a binder against the given catalog handle, applying
// defaultDatabase to any table reference that does not name one itself.
func NewBinder(cat *catalog.Catalog, defaultDatabase string) *Binder {
	return &Binder{cat: cat, ctx: NewContext(), defaultDatabase: defaultDatabase}
}

// Bind is the single entry point: it dispatches on the statement's
// concrete kind, runs that kind's binding rules, and returns a *BindError
// (as a plain error) on the first failure. On both success and failure the
// context's frame stack is restored to empty: every statement handler
// pairs its Push with a deferred Pop, so an early return still unwinds.
func (b *Binder) Bind(stmt parser.Statement) error {
	var berr *BindError
	switch s := stmt.(type) {
	case *parser.SelectStmt:
		_, berr = b.bindSelect(s)
	case *parser.InsertStmt:
		berr = b.bindInsert(s)
	case *parser.UpdateStmt:
		berr = b.bindUpdate(s)
	case *parser.DeleteStmt:
		berr = b.bindDelete(s)
	case *parser.CopyStmt:
		berr = b.bindCopy(s)
	case *parser.CreateDatabaseStmt:
		berr = b.bindCreateDatabase(s)
	case *parser.CreateTableStmt:
		berr = b.bindCreateTable(s)
	case *parser.CreateIndexStmt:
		berr = b.bindCreateIndex(s)
	case *parser.CreateTriggerStmt:
		berr = b.bindCreateTrigger(s)
	case *parser.CreateViewStmt:
		berr = b.bindCreateView(s)
	case *parser.CreateSchemaStmt:
		// Accepted without structural binding work, per the grammar's
		// namespace-only treatment of schemas.
	case *parser.CreateFunctionStmt:
		// The body is opaque text; there is no engine to bind it against.
	case *parser.DropStmt:
		berr = b.bindDrop(s)
	case *parser.PrepareStmt:
		// Accepted without binding the wrapped statement: there is no
		// prepared-statement execution engine to bind parameters against.
	case *parser.ExecuteStmt:
		// Same as PREPARE: accepted, arguments left unannotated.
	case *parser.TransactionStmt:
		// BEGIN/COMMIT/ROLLBACK carry no names to resolve.
	case *parser.AnalyzeStmt:
		berr = b.bindAnalyze(s)
	default:
		berr = newError(InvalidReference, "Cannot bind statement of unknown kind")
	}
	if berr != nil {
		return berr
	}
	return nil
}

// bindSelect binds one SELECT, pushing a frame whose parent is whatever
// frame was on top when it was called (enabling correlated subqueries to
// resolve outer columns through the normal parent link) and popping it
// unconditionally on return. It returns the projected column list so
// callers binding a derived table or scalar subquery can install a
// NestedTableBinding or check arity.
func (b *Binder) bindSelect(stmt *parser.SelectStmt) ([]NestedColumn, *BindError) {
	b.ctx.Push(false)
	frame := b.ctx.Current()
	defer b.ctx.Pop()

	if stmt.From != nil {
		if err := b.bindTableExpr(stmt.From); err != nil {
			return nil, err
		}
	}
	if stmt.Where != nil {
		if err := b.annotateExpression(stmt.Where); err != nil {
			return nil, err
		}
	}
	for _, term := range stmt.OrderBy {
		if err := b.annotateExpression(term.Expr); err != nil {
			return nil, err
		}
	}
	for _, g := range stmt.GroupBy {
		if err := b.annotateExpression(g); err != nil {
			return nil, err
		}
	}
	if stmt.Having != nil {
		if err := b.annotateExpression(stmt.Having); err != nil {
			return nil, err
		}
	}

	items, err := b.expandSelectItems(frame, stmt.Items)
	if err != nil {
		return nil, err
	}
	stmt.Items = items
	stmt.Depth = frame.Depth()

	cols := make([]NestedColumn, 0, len(items))
	for _, item := range items {
		se := item.(*parser.SelectExprItem)
		ann := se.Expr.Annotation()
		name := se.Alias
		if name == "" {
			name = ann.DisplayName
		}
		cols = append(cols, NestedColumn{Name: name, Type: ann.ReturnType})
	}
	return cols, nil
}

// expandSelectItems replaces every `*` in items, in place, with the
// ordered projection of every column of every regular table bound in
// frame (table insertion order, then schema order), and annotates every
// other item's expression.
func (b *Binder) expandSelectItems(frame *ScopeFrame, items []parser.SelectItem) ([]parser.SelectItem, *BindError) {
	result := make([]parser.SelectItem, 0, len(items))
	for _, item := range items {
		switch it := item.(type) {
		case *parser.SelectStarItem:
			if !frame.HasAnyRegularTables() {
				return nil, newError(InvalidStar, "`*` used without any table in scope")
			}
			for _, reg := range frame.RegularTables() {
				for _, col := range reg.Schema.Columns {
					cref := &parser.ColumnRef{Table: reg.Alias, Name: col.Name}
					if err := b.annotateColumnRef(cref); err != nil {
						return nil, err
					}
					result = append(result, &parser.SelectExprItem{Expr: cref})
				}
			}
		case *parser.SelectExprItem:
			if err := b.annotateExpression(it.Expr); err != nil {
				return nil, err
			}
			result = append(result, it)
		default:
			return nil, newError(InvalidReference, "Unknown select item kind")
		}
	}
	return result, nil
}

// bindTableExpr dispatches a FROM-clause operand in the fixed order
// query-derived table, join, table list, named table.
func (b *Binder) bindTableExpr(te parser.TableExpr) *BindError {
	switch n := te.(type) {
	case *parser.SubqueryTableExpr:
		if n.Alias == "" {
			return newError(MissingAlias, "Derived table requires an alias")
		}
		cols, err := b.bindSelect(n.Query)
		if err != nil {
			return err
		}
		b.ctx.AddNestedTable(n.Alias, cols)
		return nil
	case *parser.JoinExpr:
		if err := b.bindTableExpr(n.Left); err != nil {
			return err
		}
		if err := b.bindTableExpr(n.Right); err != nil {
			return err
		}
		if n.On != nil {
			return b.annotateExpression(n.On)
		}
		return nil
	case *parser.TableList:
		for _, t := range n.Tables {
			if err := b.bindTableExpr(t); err != nil {
				return err
			}
		}
		return nil
	case *parser.TableName:
		binding, err := b.ctx.AddRegularTable(b.cat, n.Alias, b.defaultDatabase, n.Name)
		if err != nil {
			return err
		}
		n.DBOID = binding.DBOID
		n.TableOID = binding.TableOID
		return nil
	default:
		return newError(InvalidReference, "Unknown FROM clause kind")
	}
}

// bindInsert handles both VALUES and INSERT ... SELECT forms.
func (b *Binder) bindInsert(stmt *parser.InsertStmt) *BindError {
	b.ctx.Push(true)
	defer b.ctx.Pop()

	binding, err := b.ctx.AddRegularTable(b.cat, "", b.defaultDatabase, stmt.Table)
	if err != nil {
		return err
	}
	stmt.TableOID = binding.TableOID

	if stmt.Source != nil {
		_, err := b.bindSelect(stmt.Source)
		return err
	}

	var targetCols []catalog.Column
	if len(stmt.Columns) > 0 {
		for _, name := range stmt.Columns {
			col, ok := binding.Schema.GetColumn(name)
			if !ok {
				return newError(NotFound, "Cannot find column `%s` in table `%s`", name, stmt.Table)
			}
			targetCols = append(targetCols, col)
		}
	} else {
		targetCols = binding.Schema.Columns
	}

	for _, row := range stmt.Values {
		if len(row) != len(targetCols) {
			return newError(ArityMismatch, "INSERT has %d values but expected %d", len(row), len(targetCols))
		}
		for i, cell := range row {
			target := expr.FromColumn(targetCols[i])
			if err := b.coerceInsertValue(target, cell); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Binder) bindUpdate(stmt *parser.UpdateStmt) *BindError {
	b.ctx.Push(true)
	defer b.ctx.Pop()

	binding, err := b.ctx.AddRegularTable(b.cat, "", b.defaultDatabase, stmt.Table)
	if err != nil {
		return err
	}
	stmt.TableOID = binding.TableOID

	if stmt.Where != nil {
		if err := b.annotateExpression(stmt.Where); err != nil {
			return err
		}
	}
	for i := range stmt.Assignments {
		a := &stmt.Assignments[i]
		col, ok := binding.Schema.GetColumn(a.Column)
		if !ok {
			return newError(NotFound, "Cannot find column `%s` in table `%s`", a.Column, stmt.Table)
		}
		target := expr.FromColumn(col)
		if err := b.coerceInsertValue(target, a.Expr); err != nil {
			return err
		}
	}
	return nil
}

func (b *Binder) bindDelete(stmt *parser.DeleteStmt) *BindError {
	b.ctx.Push(true)
	defer b.ctx.Pop()

	binding, err := b.ctx.AddRegularTable(b.cat, "", b.defaultDatabase, stmt.Table)
	if err != nil {
		return err
	}
	stmt.TableOID = binding.TableOID

	if stmt.Where != nil {
		return b.annotateExpression(stmt.Where)
	}
	return nil
}

func (b *Binder) bindCopy(stmt *parser.CopyStmt) *BindError {
	b.ctx.Push(true)
	defer b.ctx.Pop()

	if stmt.Table != "" {
		binding, err := b.ctx.AddRegularTable(b.cat, "", b.defaultDatabase, stmt.Table)
		if err != nil {
			return err
		}
		stmt.TableOID = binding.TableOID
		stmt.Columns = make([]string, 0, len(binding.Schema.Columns))
		for _, col := range binding.Schema.Columns {
			stmt.Columns = append(stmt.Columns, col.Name)
		}
		return nil
	}
	if stmt.Query != nil {
		_, err := b.bindSelect(stmt.Query)
		return err
	}
	return nil
}

func (b *Binder) bindCreateDatabase(stmt *parser.CreateDatabaseStmt) *BindError {
	if b.cat.GetDatabaseOID(stmt.Name) != catalog.InvalidDatabaseOID {
		return newError(AlreadyExists, "Database `%s` already exists", stmt.Name)
	}
	return nil
}

func (b *Binder) bindCreateTable(stmt *parser.CreateTableStmt) *BindError {
	if b.cat.GetTableOID(stmt.Name) != catalog.InvalidTableOID {
		return newError(AlreadyExists, "Table `%s` already exists", stmt.Name)
	}

	b.ctx.Push(true)
	defer b.ctx.Pop()

	newCols := make([]NewTableColumn, 0, len(stmt.Columns))
	for _, col := range stmt.Columns {
		newCols = append(newCols, NewTableColumn{
			Name: col.Name,
			Type: dataTypeToExprType(col.Type, !col.NotNull, col.Length, col.Precision, col.Scale),
		})
	}
	b.ctx.AddNewTable(stmt.Name, newCols)

	for i := range stmt.Columns {
		col := &stmt.Columns[i]
		if col.Default != nil {
			if err := b.annotateExpression(col.Default); err != nil {
				return err
			}
		}
		if col.Check != nil {
			if err := b.annotateExpression(col.Check); err != nil {
				return err
			}
			if !isBooleanish(col.Check.Annotation().ReturnType) {
				return newError(TypeMismatch, "CHECK expression for column `%s` must be boolean", col.Name)
			}
		}
	}

	for i := range stmt.ForeignKeys {
		if err := b.bindForeignKey(stmt, &stmt.ForeignKeys[i]); err != nil {
			return err
		}
	}
	return nil
}

// bindForeignKey resolves fk's sink table and checks column arity, column
// existence on both sides, and type agreement — the one place the binder
// checks cross-table type compatibility outside a coercion.
func (b *Binder) bindForeignKey(stmt *parser.CreateTableStmt, fk *parser.ForeignKeyDef) *BindError {
	sinkOID := b.cat.GetTableOID(fk.RefTable)
	if sinkOID == catalog.InvalidTableOID {
		return newError(NotFound, "Foreign key referencing non-existing table `%s`", fk.RefTable)
	}
	fk.RefOID = sinkOID
	if len(fk.Columns) != len(fk.RefColumns) {
		return newError(ArityMismatch, "Foreign key `%s` source and sink column lists differ in length", fk.Name)
	}
	sinkSchema, ok := b.cat.GetSchema(sinkOID)
	if !ok {
		return newError(NotFound, "Foreign key referencing non-existing table `%s`", fk.RefTable)
	}
	for j, srcName := range fk.Columns {
		sinkName := fk.RefColumns[j]
		sinkCol, ok := sinkSchema.GetColumn(sinkName)
		if !ok {
			return newError(NotFound, "Cannot find column `%s` in table `%s`", sinkName, fk.RefTable)
		}
		srcCol, ok := findColumnDef(stmt.Columns, srcName)
		if !ok {
			return newError(NotFound, "Cannot find column `%s` in table `%s`", srcName, stmt.Name)
		}
		srcType := dataTypeToExprType(srcCol.Type, true, srcCol.Length, srcCol.Precision, srcCol.Scale)
		sinkType := expr.FromColumn(sinkCol)
		if srcType.Kind != sinkType.Kind {
			return newError(TypeMismatch, "Foreign key `%s` column `%s` type does not match referenced column `%s`", fk.Name, srcName, sinkName)
		}
	}
	return nil
}

func findColumnDef(cols []parser.ColumnDef, name string) (parser.ColumnDef, bool) {
	for _, c := range cols {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return parser.ColumnDef{}, false
}

func (b *Binder) bindCreateIndex(stmt *parser.CreateIndexStmt) *BindError {
	if b.cat.GetIndexOID(stmt.Name) != catalog.InvalidIndexOID {
		return newError(AlreadyExists, "Index `%s` already exists", stmt.Name)
	}

	b.ctx.Push(true)
	defer b.ctx.Pop()

	binding, err := b.ctx.AddRegularTable(b.cat, "", b.defaultDatabase, stmt.Table)
	if err != nil {
		return err
	}
	stmt.TableOID = binding.TableOID

	for i := range stmt.Attributes {
		attr := &stmt.Attributes[i]
		if attr.Expr != nil {
			if err := b.annotateExpression(attr.Expr); err != nil {
				return err
			}
			continue
		}
		if _, ok := binding.Schema.GetColumn(attr.Column); !ok {
			return newError(NotFound, "Cannot find column `%s` in table `%s`", attr.Column, stmt.Table)
		}
	}
	return nil
}

func (b *Binder) bindCreateTrigger(stmt *parser.CreateTriggerStmt) *BindError {
	b.ctx.Push(true)
	defer b.ctx.Pop()

	binding, err := b.ctx.AddRegularTable(b.cat, stmt.Table, b.defaultDatabase, stmt.Table)
	if err != nil {
		return err
	}
	stmt.TableOID = binding.TableOID
	if _, err := b.ctx.AddRegularTable(b.cat, "old", b.defaultDatabase, stmt.Table); err != nil {
		return err
	}
	if _, err := b.ctx.AddRegularTable(b.cat, "new", b.defaultDatabase, stmt.Table); err != nil {
		return err
	}
	if stmt.When != nil {
		return b.annotateExpression(stmt.When)
	}
	return nil
}

func (b *Binder) bindCreateView(stmt *parser.CreateViewStmt) *BindError {
	_, err := b.bindSelect(stmt.Query)
	return err
}

func (b *Binder) bindDrop(stmt *parser.DropStmt) *BindError {
	switch stmt.Kind {
	case parser.DropDatabase:
		if b.cat.GetDatabaseOID(stmt.Name) == catalog.InvalidDatabaseOID {
			return newError(NotFound, "Cannot find database `%s`", stmt.Name)
		}
	case parser.DropTable:
		if b.cat.GetTableOID(stmt.Name) == catalog.InvalidTableOID {
			return newError(NotFound, "Cannot find table `%s`", stmt.Name)
		}
	case parser.DropIndex:
		if b.cat.GetIndexOID(stmt.Name) == catalog.InvalidIndexOID {
			return newError(NotFound, "Cannot find index `%s`", stmt.Name)
		}
	case parser.DropTrigger, parser.DropView, parser.DropSchema, parser.DropPreparedStatement:
		// No existence check at this stage — a documented gap, not an
		// oversight (spec.md §9).
	}
	return nil
}

func (b *Binder) bindAnalyze(stmt *parser.AnalyzeStmt) *BindError {
	oid := b.cat.GetTableOID(stmt.Table)
	if oid == catalog.InvalidTableOID {
		return newError(NotFound, "Cannot find table `%s`", stmt.Table)
	}
	stmt.TableOID = oid
	return nil
}
