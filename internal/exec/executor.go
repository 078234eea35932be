package exec

import (
	"fmt"
	"sort"
	"strings"

	"github.com/example/granitedb/internal/binder"
	"github.com/example/granitedb/internal/catalog"
	"github.com/example/granitedb/internal/sql/parser"
	"github.com/example/granitedb/internal/storage"
	"github.com/example/granitedb/internal/storage/indexmgr"
	"github.com/example/granitedb/internal/txn"
	"github.com/example/granitedb/internal/wal"
)

// Result describes the outcome of executing a SQL statement.
type Result struct {
	Columns      []string
	Rows         [][]string
	RowsAffected int
	Message      string
}

// Executor evaluates bound statements against the storage layer. The index
// manager, lock manager and WAL handle are carried alongside the catalog and
// heap storage so that statements binding to indexed lookups or running
// inside an explicit transaction share the same handles the façade in
// internal/api constructs at Open time.
type Executor struct {
	catalog *catalog.Catalog
	storage *storage.Manager
	indexes *indexmgr.Manager
	locks   *txn.LockManager
	wal     *wal.Manager
}

// New creates an executor for the given catalog, heap storage, index
// manager, lock manager and write-ahead log.
func New(cat *catalog.Catalog, mgr *storage.Manager, idx *indexmgr.Manager, locks *txn.LockManager, log *wal.Manager) *Executor {
	return &Executor{catalog: cat, storage: mgr, indexes: idx, locks: locks, wal: log}
}

// Execute binds the statement against the catalog and runs it. Binding is
// the semantic pass described in internal/binder: it resolves every column
// reference to a concrete table/column OID and row index, so the rest of
// Execute never has to re-derive names from a catalog lookup.
func (e *Executor) Execute(tx *txn.Transaction, stmt parser.Statement) (*Result, error) {
	b := binder.NewBinder(e.catalog, catalog.DefaultDatabaseName)
	if err := b.Bind(stmt); err != nil {
		return nil, err
	}
	switch s := stmt.(type) {
	case *parser.CreateTableStmt:
		return e.executeCreateTable(tx, s)
	case *parser.CreateIndexStmt:
		return e.executeCreateIndex(tx, s)
	case *parser.DropStmt:
		return e.executeDrop(tx, s)
	case *parser.InsertStmt:
		return e.executeInsert(tx, s)
	case *parser.UpdateStmt:
		return e.executeUpdate(tx, s)
	case *parser.DeleteStmt:
		return e.executeDelete(tx, s)
	case *parser.SelectStmt:
		return e.executeSelect(tx, s)
	case *parser.AnalyzeStmt:
		return &Result{Message: fmt.Sprintf("Table %s analyzed", s.Table)}, nil
	default:
		return nil, fmt.Errorf("exec: unsupported statement type %T", stmt)
	}
}

// Explain builds a lightweight logical description of how the statement
// would execute. The implementation is deliberately simple but offers
// callers a stable structure for tooling to consume.
func (e *Executor) Explain(stmt parser.Statement) (*Plan, error) {
	b := binder.NewBinder(e.catalog, catalog.DefaultDatabaseName)
	if err := b.Bind(stmt); err != nil {
		return nil, err
	}
	switch s := stmt.(type) {
	case *parser.CreateTableStmt:
		return newPlan("CreateTable", map[string]interface{}{"table": s.Name}), nil
	case *parser.DropStmt:
		return newPlan("Drop", map[string]interface{}{"name": s.Name}), nil
	case *parser.InsertStmt:
		return newPlan("Insert", map[string]interface{}{"table": s.Table, "columns": s.Columns}), nil
	case *parser.UpdateStmt:
		return newPlan("Update", map[string]interface{}{"table": s.Table}), nil
	case *parser.DeleteStmt:
		return newPlan("Delete", map[string]interface{}{"table": s.Table}), nil
	case *parser.SelectStmt:
		return e.explainSelect(s)
	default:
		return nil, fmt.Errorf("exec: unsupported statement type %T", stmt)
	}
}

func (e *Executor) lockTable(tx *txn.Transaction, name string, mode txn.LockMode) error {
	if tx == nil || e.locks == nil {
		return nil
	}
	return e.locks.Acquire(tx, txn.TableResource(name), mode)
}

// --- DDL -------------------------------------------------------------------

func (e *Executor) executeCreateTable(tx *txn.Transaction, stmt *parser.CreateTableStmt) (*Result, error) {
	if len(stmt.Columns) == 0 {
		return nil, fmt.Errorf("exec: CREATE TABLE requires at least one column")
	}
	cols := make([]catalog.Column, len(stmt.Columns))
	seen := map[string]struct{}{}
	for i, col := range stmt.Columns {
		lower := strings.ToLower(col.Name)
		if _, ok := seen[lower]; ok {
			return nil, fmt.Errorf("exec: duplicate column %s", col.Name)
		}
		seen[lower] = struct{}{}
		cols[i] = catalog.Column{
			Name:      col.Name,
			Type:      convertType(col.Type),
			Length:    col.Length,
			Precision: col.Precision,
			Scale:     col.Scale,
			NotNull:   col.NotNull,
		}
	}
	fks := make([]*catalog.ForeignKey, len(stmt.ForeignKeys))
	for i, fk := range stmt.ForeignKeys {
		fks[i] = &catalog.ForeignKey{
			Name:          fk.Name,
			ChildColumns:  fk.Columns,
			ParentTable:   fk.RefTable,
			ParentColumns: fk.RefColumns,
			OnDelete:      convertFKAction(fk.OnDelete),
			OnUpdate:      convertFKAction(fk.OnUpdate),
			Valid:         true,
		}
	}
	if err := e.lockTable(tx, stmt.Name, txn.LockModeExclusive); err != nil {
		return nil, err
	}
	table, err := e.catalog.CreateTable(stmt.Name, cols, stmt.PrimaryKey, fks)
	if err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("Table %s created", table.Name)}, nil
}

// convertFKAction maps the parser's three-value action enum onto the
// catalog's two-value one. CASCADE has no catalog-side representation (the
// engine never walks a cascading delete/update), so it downgrades to
// NO ACTION: an attempted cascading write still fails referential-integrity
// enforcement rather than silently propagating.
func convertFKAction(a parser.ForeignKeyAction) catalog.ForeignKeyAction {
	switch a {
	case parser.FKActionRestrict:
		return catalog.ForeignKeyActionRestrict
	default:
		return catalog.ForeignKeyActionNoAction
	}
}

func convertType(dt parser.DataType) catalog.ColumnType {
	switch dt {
	case parser.DataTypeInt:
		return catalog.ColumnTypeInt
	case parser.DataTypeBigInt:
		return catalog.ColumnTypeBigInt
	case parser.DataTypeVarChar:
		return catalog.ColumnTypeVarChar
	case parser.DataTypeBoolean:
		return catalog.ColumnTypeBoolean
	case parser.DataTypeDate:
		return catalog.ColumnTypeDate
	case parser.DataTypeTimestamp:
		return catalog.ColumnTypeTimestamp
	case parser.DataTypeDecimal:
		return catalog.ColumnTypeDecimal
	default:
		return catalog.ColumnTypeVarChar
	}
}

func (e *Executor) executeCreateIndex(tx *txn.Transaction, stmt *parser.CreateIndexStmt) (*Result, error) {
	table, ok := e.catalog.GetTable(stmt.Table)
	if !ok {
		return nil, fmt.Errorf("exec: table %s not found", stmt.Table)
	}
	columns := make([]string, len(stmt.Attributes))
	for i, attr := range stmt.Attributes {
		if attr.Column == "" {
			return nil, fmt.Errorf("exec: CREATE INDEX on expressions is not supported")
		}
		columns[i] = attr.Column
	}
	if err := e.lockTable(tx, stmt.Table, txn.LockModeExclusive); err != nil {
		return nil, err
	}
	idx, err := e.catalog.CreateIndex(stmt.Table, stmt.Name, columns, stmt.Unique)
	if err != nil {
		return nil, err
	}
	order, err := columnOrder(table.Columns, columns)
	if err != nil {
		return nil, err
	}
	file, err := e.indexes.Create(stmt.Table, stmt.Name)
	if err != nil {
		return nil, err
	}
	heap := storage.NewHeapFile(e.storage, table.RootPage)
	var entries []indexmgr.Entry
	if err := heap.Scan(func(rid storage.RowID, record []byte) error {
		values, err := DecodeRow(table.Columns, record)
		if err != nil {
			return err
		}
		components, isNull, err := buildIndexComponents(table.Columns, order, values)
		if err != nil || isNull {
			return err
		}
		entries = append(entries, indexmgr.Entry{Key: encodeIndexKey(components), Row: rid})
		return nil
	}); err != nil {
		return nil, err
	}
	if err := file.Rebuild(entries, stmt.Unique); err != nil {
		_ = e.catalog.DropIndex(stmt.Table, stmt.Name)
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("Index %s created", idx.Name)}, nil
}

func columnOrder(columns []catalog.Column, names []string) ([]int, error) {
	order := make([]int, len(names))
	for i, name := range names {
		found := -1
		for j, col := range columns {
			if strings.EqualFold(col.Name, name) {
				found = j
				break
			}
		}
		if found < 0 {
			return nil, fmt.Errorf("exec: column %s not found", name)
		}
		order[i] = found
	}
	return order, nil
}

func (e *Executor) executeDrop(tx *txn.Transaction, stmt *parser.DropStmt) (*Result, error) {
	switch stmt.Kind {
	case parser.DropTable:
		if err := e.lockTable(tx, stmt.Name, txn.LockModeExclusive); err != nil {
			return nil, err
		}
		if err := e.catalog.DropTable(stmt.Name); err != nil {
			return nil, err
		}
		return &Result{Message: fmt.Sprintf("Table %s dropped", stmt.Name)}, nil
	case parser.DropIndex:
		table, _, ok := e.catalog.FindIndex(stmt.Name)
		if !ok {
			return nil, fmt.Errorf("exec: index %s not found", stmt.Name)
		}
		if err := e.lockTable(tx, table.Name, txn.LockModeExclusive); err != nil {
			return nil, err
		}
		if err := e.catalog.DropIndex(table.Name, stmt.Name); err != nil {
			return nil, err
		}
		if err := e.indexes.Drop(table.Name, stmt.Name); err != nil {
			return nil, err
		}
		return &Result{Message: fmt.Sprintf("Index %s dropped", stmt.Name)}, nil
	default:
		return nil, fmt.Errorf("exec: unsupported DROP kind for %s", stmt.Name)
	}
}

// --- DML --------------------------------------------------------------------

func (e *Executor) executeInsert(tx *txn.Transaction, stmt *parser.InsertStmt) (*Result, error) {
	table, ok := e.catalog.GetTableByOID(stmt.TableOID)
	if !ok {
		return nil, fmt.Errorf("exec: table %s not found", stmt.Table)
	}
	if err := e.lockTable(tx, table.Name, txn.LockModeExclusive); err != nil {
		return nil, err
	}
	if stmt.Source != nil {
		return nil, fmt.Errorf("exec: INSERT ... SELECT is not supported by this executor")
	}

	targetCols := stmt.Columns
	if len(targetCols) == 0 {
		targetCols = make([]string, len(table.Columns))
		for i, col := range table.Columns {
			targetCols[i] = col.Name
		}
	}
	order, err := columnOrder(table.Columns, targetCols)
	if err != nil {
		return nil, err
	}

	heap := storage.NewHeapFile(e.storage, table.RootPage)
	total := 0
	for _, row := range stmt.Values {
		if len(row) != len(targetCols) {
			return nil, fmt.Errorf("exec: column count %d does not match value count %d", len(targetCols), len(row))
		}
		values := make([]interface{}, len(table.Columns))
		for i, cell := range row {
			raw, err := evalExpr(cell, nil)
			if err != nil {
				return nil, err
			}
			col := table.Columns[order[i]]
			coerced, err := coerceValueForColumn(raw, col)
			if err != nil {
				return nil, err
			}
			values[order[i]] = coerced
		}
		for i, col := range table.Columns {
			if values[i] == nil && col.NotNull {
				return nil, fmt.Errorf("exec: column %s does not allow NULL", col.Name)
			}
		}
		if err := e.checkForeignKeysOnWrite(table, values); err != nil {
			return nil, err
		}
		encoded, err := EncodeRow(table.Columns, values)
		if err != nil {
			return nil, err
		}
		rid, err := heap.Insert(tx, e.wal, encoded)
		if err != nil {
			return nil, err
		}
		if err := e.insertIndexEntries(table, values, rid); err != nil {
			return nil, err
		}
		if err := e.catalog.IncrementRowCount(table.Name); err != nil {
			return nil, err
		}
		total++
	}
	return &Result{RowsAffected: total, Message: fmt.Sprintf("%d row(s) inserted", total)}, nil
}

func (e *Executor) executeUpdate(tx *txn.Transaction, stmt *parser.UpdateStmt) (*Result, error) {
	table, ok := e.catalog.GetTableByOID(stmt.TableOID)
	if !ok {
		return nil, fmt.Errorf("exec: table %s not found", stmt.Table)
	}
	if err := e.lockTable(tx, table.Name, txn.LockModeExclusive); err != nil {
		return nil, err
	}
	assignments := make([]struct {
		index int
		expr  parser.Expression
	}, len(stmt.Assignments))
	for i, a := range stmt.Assignments {
		idx := -1
		for j, col := range table.Columns {
			if strings.EqualFold(col.Name, a.Column) {
				idx = j
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("exec: column %s not found", a.Column)
		}
		assignments[i].index = idx
		assignments[i].expr = a.Expr
	}

	heap := storage.NewHeapFile(e.storage, table.RootPage)
	type pendingUpdate struct {
		rid storage.RowID
		old []interface{}
		new []interface{}
	}
	var pending []pendingUpdate
	if err := heap.Scan(func(rid storage.RowID, record []byte) error {
		values, err := DecodeRow(table.Columns, record)
		if err != nil {
			return err
		}
		if stmt.Where != nil {
			v, err := evalExpr(stmt.Where, values)
			if err != nil {
				return err
			}
			truth, err := toTruthValue(v)
			if err != nil {
				return err
			}
			if truth != truthTrue {
				return nil
			}
		}
		newValues := make([]interface{}, len(values))
		copy(newValues, values)
		for _, a := range assignments {
			raw, err := evalExpr(a.expr, values)
			if err != nil {
				return err
			}
			coerced, err := coerceValueForColumn(raw, table.Columns[a.index])
			if err != nil {
				return err
			}
			newValues[a.index] = coerced
		}
		for i, col := range table.Columns {
			if newValues[i] == nil && col.NotNull {
				return fmt.Errorf("exec: column %s does not allow NULL", col.Name)
			}
		}
		pending = append(pending, pendingUpdate{rid: rid, old: values, new: newValues})
		return nil
	}); err != nil {
		return nil, err
	}

	for _, p := range pending {
		if err := e.checkReferencingChildren(table, p.old); err != nil {
			return nil, err
		}
		if err := e.checkForeignKeysOnWrite(table, p.new); err != nil {
			return nil, err
		}
	}

	for _, p := range pending {
		if err := heap.Delete(tx, e.wal, p.rid); err != nil {
			return nil, err
		}
		encoded, err := EncodeRow(table.Columns, p.new)
		if err != nil {
			return nil, err
		}
		newRID, err := heap.Insert(tx, e.wal, encoded)
		if err != nil {
			return nil, err
		}
		if err := e.updateIndexEntries(table, p.old, p.new, p.rid, newRID); err != nil {
			return nil, err
		}
	}
	return &Result{RowsAffected: len(pending), Message: fmt.Sprintf("%d row(s) updated", len(pending))}, nil
}

func (e *Executor) executeDelete(tx *txn.Transaction, stmt *parser.DeleteStmt) (*Result, error) {
	table, ok := e.catalog.GetTableByOID(stmt.TableOID)
	if !ok {
		return nil, fmt.Errorf("exec: table %s not found", stmt.Table)
	}
	if err := e.lockTable(tx, table.Name, txn.LockModeExclusive); err != nil {
		return nil, err
	}
	heap := storage.NewHeapFile(e.storage, table.RootPage)
	type match struct {
		rid    storage.RowID
		values []interface{}
	}
	var matches []match
	if err := heap.Scan(func(rid storage.RowID, record []byte) error {
		values, err := DecodeRow(table.Columns, record)
		if err != nil {
			return err
		}
		if stmt.Where != nil {
			v, err := evalExpr(stmt.Where, values)
			if err != nil {
				return err
			}
			truth, err := toTruthValue(v)
			if err != nil {
				return err
			}
			if truth != truthTrue {
				return nil
			}
		}
		matches = append(matches, match{rid: rid, values: values})
		return nil
	}); err != nil {
		return nil, err
	}

	for _, m := range matches {
		if err := e.checkReferencingChildren(table, m.values); err != nil {
			return nil, err
		}
	}
	for _, m := range matches {
		if err := heap.Delete(tx, e.wal, m.rid); err != nil {
			return nil, err
		}
		if err := e.deleteIndexEntries(table, m.values, m.rid); err != nil {
			return nil, err
		}
		if err := e.catalog.DecrementRowCount(table.Name); err != nil {
			return nil, err
		}
	}
	return &Result{RowsAffected: len(matches), Message: fmt.Sprintf("%d row(s) deleted", len(matches))}, nil
}

// --- Foreign key enforcement -------------------------------------------

// checkForeignKeysOnWrite verifies that, for every foreign key on table,
// either the child columns contain a NULL (no check, per MATCH SIMPLE
// semantics) or a parent row with matching key values exists. Called for
// every inserted row and every updated row whose new values are being
// written.
func (e *Executor) checkForeignKeysOnWrite(table *catalog.Table, values []interface{}) error {
	for _, fk := range table.ForeignKeys {
		order, err := columnOrder(table.Columns, fk.ChildColumns)
		if err != nil {
			return err
		}
		childValues := make([]interface{}, len(order))
		anyNull := false
		for i, idx := range order {
			childValues[i] = values[idx]
			if childValues[i] == nil {
				anyNull = true
			}
		}
		if anyNull {
			continue
		}
		parent, ok := e.catalog.GetTable(fk.ParentTable)
		if !ok {
			return fmt.Errorf("exec: foreign key %q references unknown table %q", fk.Name, fk.ParentTable)
		}
		parentOrder, err := columnOrder(parent.Columns, fk.ParentColumns)
		if err != nil {
			return err
		}
		found, err := e.parentRowExists(parent, parentOrder, childValues)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("exec: INSERT/UPDATE on table %q violates foreign key %q: no parent row in %q", table.Name, fk.Name, fk.ParentTable)
		}
	}
	return nil
}

func (e *Executor) parentRowExists(parent *catalog.Table, parentOrder []int, key []interface{}) (bool, error) {
	heap := storage.NewHeapFile(e.storage, parent.RootPage)
	found := false
	err := heap.Scan(func(rid storage.RowID, record []byte) error {
		if found {
			return nil
		}
		values, err := DecodeRow(parent.Columns, record)
		if err != nil {
			return err
		}
		match := true
		for i, idx := range parentOrder {
			cmp, unknown, err := compareValues(values[idx], key[i])
			if err != nil {
				return err
			}
			if unknown || cmp != 0 {
				match = false
				break
			}
		}
		if match {
			found = true
		}
		return nil
	})
	return found, err
}

// checkReferencingChildren blocks a DELETE or UPDATE of oldValues on table if
// any other table's foreign key references it and still has a matching
// child row. Conservative: it re-validates regardless of which columns of
// oldValues are about to change, which is always safe for RESTRICT/NO ACTION
// semantics (the only two this engine's catalog represents, see
// convertFKAction).
func (e *Executor) checkReferencingChildren(table *catalog.Table, oldValues []interface{}) error {
	for _, other := range e.catalog.ListTables() {
		for _, fk := range other.ForeignKeys {
			if !strings.EqualFold(fk.ParentTable, table.Name) {
				continue
			}
			parentOrder, err := columnOrder(table.Columns, fk.ParentColumns)
			if err != nil {
				return err
			}
			key := make([]interface{}, len(parentOrder))
			anyNull := false
			for i, idx := range parentOrder {
				key[i] = oldValues[idx]
				if key[i] == nil {
					anyNull = true
				}
			}
			if anyNull {
				continue
			}
			childOrder, err := columnOrder(other.Columns, fk.ChildColumns)
			if err != nil {
				return err
			}
			referenced, err := e.childRowReferences(other, childOrder, key)
			if err != nil {
				return err
			}
			if referenced {
				return fmt.Errorf("exec: cannot modify table %q: referenced by %q", table.Name, other.Name)
			}
		}
	}
	return nil
}

func (e *Executor) childRowReferences(child *catalog.Table, childOrder []int, key []interface{}) (bool, error) {
	heap := storage.NewHeapFile(e.storage, child.RootPage)
	found := false
	err := heap.Scan(func(rid storage.RowID, record []byte) error {
		if found {
			return nil
		}
		values, err := DecodeRow(child.Columns, record)
		if err != nil {
			return err
		}
		match := true
		for i, idx := range childOrder {
			if values[idx] == nil {
				match = false
				break
			}
			cmp, unknown, err := compareValues(values[idx], key[i])
			if err != nil {
				return err
			}
			if unknown || cmp != 0 {
				match = false
				break
			}
		}
		if match {
			found = true
		}
		return nil
	})
	return found, err
}

// --- Index maintenance ------------------------------------------------

func (e *Executor) insertIndexEntries(table *catalog.Table, values []interface{}, rid storage.RowID) error {
	for _, idx := range table.Indexes {
		order, err := columnOrder(table.Columns, idx.Columns)
		if err != nil {
			return err
		}
		components, isNull, err := buildIndexComponents(table.Columns, order, values)
		if err != nil {
			return err
		}
		if isNull {
			continue
		}
		file, err := e.indexes.Open(table.Name, idx.Name)
		if err != nil {
			return err
		}
		if err := file.Insert(encodeIndexKey(components), rid, idx.IsUnique); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) deleteIndexEntries(table *catalog.Table, values []interface{}, rid storage.RowID) error {
	for _, idx := range table.Indexes {
		order, err := columnOrder(table.Columns, idx.Columns)
		if err != nil {
			return err
		}
		components, isNull, err := buildIndexComponents(table.Columns, order, values)
		if err != nil {
			return err
		}
		if isNull {
			continue
		}
		file, err := e.indexes.Open(table.Name, idx.Name)
		if err != nil {
			return err
		}
		if err := file.Delete(encodeIndexKey(components), rid); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) updateIndexEntries(table *catalog.Table, oldValues, newValues []interface{}, oldRID, newRID storage.RowID) error {
	if err := e.deleteIndexEntries(table, oldValues, oldRID); err != nil {
		return err
	}
	return e.insertIndexEntries(table, newValues, newRID)
}

// --- SELECT ------------------------------------------------------------

func (e *Executor) selectTable(stmt *parser.SelectStmt) (*catalog.Table, error) {
	name, ok := stmt.From.(*parser.TableName)
	if !ok {
		if stmt.From == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("exec: this executor only supports single-table SELECT (no joins)")
	}
	table, ok := e.catalog.GetTableByOID(name.TableOID)
	if !ok {
		return nil, fmt.Errorf("exec: table %s not found", name.Name)
	}
	return table, nil
}

func (e *Executor) executeSelect(tx *txn.Transaction, stmt *parser.SelectStmt) (*Result, error) {
	table, err := e.selectTable(stmt)
	if err != nil {
		return nil, err
	}
	if table != nil {
		if err := e.lockTable(tx, table.Name, txn.LockModeShared); err != nil {
			return nil, err
		}
	}
	if len(stmt.GroupBy) > 0 || stmt.Having != nil {
		return nil, fmt.Errorf("exec: GROUP BY/HAVING is not supported by this executor")
	}

	items := make([]*parser.SelectExprItem, len(stmt.Items))
	for i, it := range stmt.Items {
		expr, ok := it.(*parser.SelectExprItem)
		if !ok {
			return nil, fmt.Errorf("exec: unexpanded select item %T", it)
		}
		items[i] = expr
	}

	baseRows, err := e.scanRows(table, stmt.Where)
	if err != nil {
		return nil, err
	}

	if aggregateRows, handled, err := e.evalAggregateSelect(items, baseRows); err != nil {
		return nil, err
	} else if handled {
		return aggregateRows, nil
	}

	if len(stmt.OrderBy) > 0 {
		sort.SliceStable(baseRows, func(i, j int) bool {
			for _, term := range stmt.OrderBy {
				lv, err := evalExpr(term.Expr, baseRows[i])
				if err != nil {
					return false
				}
				rv, err := evalExpr(term.Expr, baseRows[j])
				if err != nil {
					return false
				}
				cmp, unknown, err := compareValues(lv, rv)
				if err != nil {
					return false
				}
				if unknown || cmp == 0 {
					continue
				}
				if term.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
			return false
		})
	}

	if stmt.Limit != nil {
		offset := stmt.Limit.Offset
		if offset < 0 {
			offset = 0
		}
		if offset >= len(baseRows) {
			baseRows = [][]interface{}{}
		} else {
			baseRows = baseRows[offset:]
			if stmt.Limit.Limit >= 0 && stmt.Limit.Limit < len(baseRows) {
				baseRows = baseRows[:stmt.Limit.Limit]
			}
		}
	}

	columns := make([]string, len(items))
	for i, it := range items {
		columns[i] = displayName(it)
	}
	rows := make([][]string, len(baseRows))
	for i, row := range baseRows {
		display := make([]string, len(items))
		for j, it := range items {
			v, err := evalExpr(it.Expr, row)
			if err != nil {
				return nil, err
			}
			s, err := formatValue(v)
			if err != nil {
				return nil, err
			}
			display[j] = s
		}
		rows[i] = display
	}
	return &Result{Columns: columns, Rows: rows, RowsAffected: len(rows), Message: fmt.Sprintf("%d row(s)", len(rows))}, nil
}

func displayName(it *parser.SelectExprItem) string {
	if it.Alias != "" {
		return it.Alias
	}
	if it.Expr.Annotation().DisplayName != "" {
		return it.Expr.Annotation().DisplayName
	}
	if ref, ok := it.Expr.(*parser.ColumnRef); ok {
		return ref.Name
	}
	return "?column?"
}

// evalAggregateSelect handles the special case of a select list made
// entirely of aggregate calls over the whole (optionally filtered) row set,
// collapsing to a single output row. It is not reached for any other query
// shape; a mix of aggregate and non-aggregate items is rejected.
func (e *Executor) evalAggregateSelect(items []*parser.SelectExprItem, rows [][]interface{}) (*Result, bool, error) {
	aggregateCount := 0
	for _, it := range items {
		if _, ok := isAggregateCall(it.Expr); ok {
			aggregateCount++
		}
	}
	if aggregateCount == 0 {
		return nil, false, nil
	}
	if aggregateCount != len(items) {
		return nil, false, fmt.Errorf("exec: select list mixes aggregate and non-aggregate expressions without GROUP BY")
	}
	columns := make([]string, len(items))
	display := make([]string, len(items))
	for i, it := range items {
		fn, _ := isAggregateCall(it.Expr)
		if it.Alias != "" {
			columns[i] = it.Alias
		} else {
			columns[i] = strings.ToUpper(fn.Name)
		}
		v, err := evalAggregate(fn, rows)
		if err != nil {
			return nil, true, err
		}
		s, err := formatValue(v)
		if err != nil {
			return nil, true, err
		}
		display[i] = s
	}
	return &Result{Columns: columns, Rows: [][]string{display}, RowsAffected: 1, Message: "1 row(s)"}, true, nil
}

// scanRows returns every row matching stmt's WHERE clause (or the single
// synthetic empty row for a table-less SELECT), decoded but not yet
// projected, ordered or limited.
func (e *Executor) scanRows(table *catalog.Table, where parser.Expression) ([][]interface{}, error) {
	var rows [][]interface{}
	if table == nil {
		include := true
		if where != nil {
			v, err := evalExpr(where, nil)
			if err != nil {
				return nil, err
			}
			truth, err := toTruthValue(v)
			if err != nil {
				return nil, err
			}
			include = truth == truthTrue
		}
		if include {
			rows = append(rows, nil)
		}
		return rows, nil
	}
	heap := storage.NewHeapFile(e.storage, table.RootPage)
	err := heap.Scan(func(rid storage.RowID, record []byte) error {
		values, err := DecodeRow(table.Columns, record)
		if err != nil {
			return err
		}
		if where != nil {
			v, err := evalExpr(where, values)
			if err != nil {
				return err
			}
			truth, err := toTruthValue(v)
			if err != nil {
				return err
			}
			if truth != truthTrue {
				return nil
			}
		}
		rows = append(rows, values)
		return nil
	})
	return rows, err
}

func (e *Executor) explainSelect(stmt *parser.SelectStmt) (*Plan, error) {
	table, err := e.selectTable(stmt)
	if err != nil {
		return nil, err
	}
	project := &PlanNode{Name: "Project"}
	current := project
	if stmt.Limit != nil {
		limitNode := &PlanNode{Name: "Limit", Detail: map[string]interface{}{"limit": stmt.Limit.Limit, "offset": stmt.Limit.Offset}}
		current.Children = append(current.Children, limitNode)
		current = limitNode
	}
	if len(stmt.OrderBy) > 0 {
		orderNode := &PlanNode{Name: "OrderBy"}
		current.Children = append(current.Children, orderNode)
		current = orderNode
	}
	if stmt.Where != nil {
		filterNode := &PlanNode{Name: "Filter"}
		current.Children = append(current.Children, filterNode)
		current = filterNode
	}
	if table != nil {
		if scanNode := e.indexScanNode(table, stmt.Where); scanNode != nil {
			current.Children = append(current.Children, scanNode)
		} else {
			current.Children = append(current.Children, &PlanNode{Name: "SeqScan", Detail: map[string]interface{}{"table": table.Name}})
		}
	} else {
		current.Children = append(current.Children, &PlanNode{Name: "Const"})
	}
	return &Plan{Root: project}, nil
}

// indexScanNode reports an IndexScan plan node when where is a simple
// equality predicate on a column covered by one of table's indexes. It only
// affects Explain's output, not execution, which always scans the heap.
func (e *Executor) indexScanNode(table *catalog.Table, where parser.Expression) *PlanNode {
	bin, ok := where.(*parser.BinaryExpr)
	if !ok || bin.Op != parser.OpEqual {
		return nil
	}
	ref, ok := bin.Left.(*parser.ColumnRef)
	if !ok {
		ref, ok = bin.Right.(*parser.ColumnRef)
		if !ok {
			return nil
		}
	}
	for _, idx := range table.Indexes {
		if len(idx.Columns) == 1 && strings.EqualFold(idx.Columns[0], ref.Name) {
			return &PlanNode{Name: "IndexScan", Detail: map[string]interface{}{"table": table.Name, "index": idx.Name}}
		}
	}
	return nil
}
