package binder

import (
	"strings"

	"github.com/example/granitedb/internal/catalog"
	"github.com/example/granitedb/internal/sql/expr"
)

// RegularTableBinding names a catalog table visible at one scope frame,
// under the alias it was introduced with (defaulting to the table name).
type RegularTableBinding struct {
	Alias    string
	DBOID    catalog.DatabaseOID
	TableOID catalog.TableOID
	Schema   *catalog.Schema
}

// NestedColumn is one projected column of a bound subselect.
type NestedColumn struct {
	Name string
	Type expr.Type
}

// NestedTableBinding is a virtual table derived from a subselect, visible
// within the enclosing query by its alias.
type NestedTableBinding struct {
	Alias   string
	Columns []NestedColumn
}

// NewTableBinding models the table under construction by an in-progress
// CREATE TABLE, so DEFAULT/CHECK expressions can reference sibling columns
// declared earlier (or later) in the same statement.
type NewTableBinding struct {
	Name    string
	Columns []NewTableColumn
}

// NewTableColumn is one column declared within the CREATE TABLE that
// installed this binding.
type NewTableColumn struct {
	Name string
	Type expr.Type
}

// ScopeFrame is the set of tables visible at one level of query nesting,
// plus a parent pointer to the enclosing frame for correlated subqueries.
type ScopeFrame struct {
	parent   *ScopeFrame
	depth    int
	regular  []*RegularTableBinding
	nested   []*NestedTableBinding
	newTable *NewTableBinding
}

// Depth reports this frame's nesting depth (root frame is 0).
func (f *ScopeFrame) Depth() int { return f.depth }

// Parent returns the enclosing frame, or nil at the root.
func (f *ScopeFrame) Parent() *ScopeFrame { return f.parent }

// HasAnyRegularTables reports whether this frame has at least one regular
// table binding, used to validate `*`.
func (f *ScopeFrame) HasAnyRegularTables() bool { return len(f.regular) > 0 }

// RegularTables exposes this frame's regular bindings in insertion order,
// used by `*` expansion.
func (f *ScopeFrame) RegularTables() []*RegularTableBinding { return f.regular }

// BinderContext owns the live stack of scope frames for one statement
// binding. It is not safe for concurrent use, matching the binder's
// single-threaded, non-suspending execution model.
type BinderContext struct {
	top *ScopeFrame
}

// NewContext constructs an empty context with no open frames.
func NewContext() *BinderContext {
	return &BinderContext{}
}

// Push creates a new frame whose parent is the current top of stack (or no
// parent, for a root-parent-less frame such as INSERT/UPDATE/DELETE).
func (c *BinderContext) Push(rootParentless bool) *ScopeFrame {
	var parent *ScopeFrame
	depth := 0
	if !rootParentless && c.top != nil {
		parent = c.top
		depth = parent.depth + 1
	}
	frame := &ScopeFrame{parent: parent, depth: depth}
	c.top = frame
	return frame
}

// Pop discards the current top frame and restores its parent. It panics if
// called with no open frame, which would indicate a binder bug (a pop not
// matched by a preceding push).
func (c *BinderContext) Pop() {
	if c.top == nil {
		panic("binder: pop with no open frame")
	}
	c.top = c.top.parent
}

// Depth reports the current number of open frames (zero when none is open).
func (c *BinderContext) Depth() int {
	n := 0
	for f := c.top; f != nil; f = f.parent {
		n++
	}
	return n
}

// Current returns the active frame, or nil if none is open.
func (c *BinderContext) Current() *ScopeFrame { return c.top }

// AddRegularTable consults the catalog for (db_oid, table_oid, schema) and
// installs a RegularTableBinding in the current frame under alias
// (defaulting to the table name). Returns NotFound if the table does not
// exist, and AlreadyExists if a regular table in the current frame is
// already bound under the same alias.
func (c *BinderContext) AddRegularTable(cat *catalog.Catalog, alias, dbName, tableName string) (*RegularTableBinding, *BindError) {
	frame := c.top
	if frame == nil {
		panic("binder: AddRegularTable with no open frame")
	}
	dbOID := cat.GetDatabaseOID(dbName)
	tableOID := cat.GetTableOID(tableName)
	if tableOID == catalog.InvalidTableOID {
		return nil, newError(NotFound, "Cannot find table `%s`", tableName)
	}
	schema, ok := cat.GetSchema(tableOID)
	if !ok {
		return nil, newError(NotFound, "Cannot find table `%s`", tableName)
	}
	if alias == "" {
		alias = tableName
	}
	for _, reg := range frame.regular {
		if strings.EqualFold(reg.Alias, alias) {
			return nil, newError(AlreadyExists, "Table alias `%s` is already bound in this scope", alias)
		}
	}
	binding := &RegularTableBinding{Alias: alias, DBOID: dbOID, TableOID: tableOID, Schema: schema}
	frame.regular = append(frame.regular, binding)
	return binding, nil
}

// AddNestedTable installs the projected columns of a bound subselect under
// its mandatory alias.
func (c *BinderContext) AddNestedTable(alias string, columns []NestedColumn) *NestedTableBinding {
	frame := c.top
	if frame == nil {
		panic("binder: AddNestedTable with no open frame")
	}
	binding := &NestedTableBinding{Alias: alias, Columns: columns}
	frame.nested = append(frame.nested, binding)
	return binding
}

// AddNewTable installs the in-progress CREATE TABLE binding for the
// current frame. There is at most one per frame.
func (c *BinderContext) AddNewTable(name string, columns []NewTableColumn) {
	frame := c.top
	if frame == nil {
		panic("binder: AddNewTable with no open frame")
	}
	frame.newTable = &NewTableBinding{Name: name, Columns: columns}
}

// ColumnResolution is the outcome of a successful column lookup.
type ColumnResolution struct {
	DBOID       catalog.DatabaseOID
	TableOID    catalog.TableOID
	ColOID      catalog.ColumnOID
	ColumnIndex int
	TableAlias  string
	DisplayName string
	Type        expr.Type
	Depth       int
}

// ResolveUnqualified searches frames from innermost to outermost. Within a
// frame: the new-table binding (if any) is tried first so sibling DEFAULT/
// CHECK references resolve without ambiguity against any table also in
// scope, then regular table bindings in insertion order (multiple matches
// within the same frame are ambiguous), then nested bindings. A match in an
// outer frame is fine even if an inner frame also had one (shadowing).
func (c *BinderContext) ResolveUnqualified(name string) (*ColumnResolution, *BindError) {
	for frame := c.top; frame != nil; frame = frame.parent {
		if frame.newTable != nil {
			for _, col := range frame.newTable.Columns {
				if strings.EqualFold(col.Name, name) {
					return &ColumnResolution{
						TableAlias:  frame.newTable.Name,
						DisplayName: col.Name,
						Type:        col.Type,
						Depth:       frame.depth,
					}, nil
				}
			}
		}
		var matches []*ColumnResolution
		for _, reg := range frame.regular {
			col, ok := reg.Schema.GetColumn(name)
			if !ok {
				continue
			}
			matches = append(matches, &ColumnResolution{
				DBOID:       reg.DBOID,
				TableOID:    reg.TableOID,
				ColOID:      col.OID,
				ColumnIndex: indexOfColumn(reg.Schema, col.Name),
				TableAlias:  reg.Alias,
				DisplayName: col.Name,
				Type:        expr.FromColumn(col),
				Depth:       frame.depth,
			})
		}
		if len(matches) > 1 {
			return nil, newError(AmbiguousReference, "Column `%s` is ambiguous", name)
		}
		if len(matches) == 1 {
			return matches[0], nil
		}
		for _, nested := range frame.nested {
			for i, col := range nested.Columns {
				if strings.EqualFold(col.Name, name) {
					return &ColumnResolution{
						ColumnIndex: i,
						TableAlias:  nested.Alias,
						DisplayName: col.Name,
						Type:        col.Type,
						Depth:       frame.depth,
					}, nil
				}
			}
		}
	}
	return nil, newError(NotFound, "Cannot find column `%s`", name)
}

// ResolveQualified searches frames innermost-to-outermost for a binding
// whose alias matches tableAlias case-insensitively. Regular bindings win
// over nested bindings with the same alias in the same frame.
func (c *BinderContext) ResolveQualified(tableAlias, name string) (*ColumnResolution, *BindError) {
	for frame := c.top; frame != nil; frame = frame.parent {
		for _, reg := range frame.regular {
			if !strings.EqualFold(reg.Alias, tableAlias) {
				continue
			}
			col, ok := reg.Schema.GetColumn(name)
			if !ok {
				return nil, newError(NotFound, "Cannot find column `%s` in table `%s`", name, tableAlias)
			}
			return &ColumnResolution{
				DBOID:       reg.DBOID,
				TableOID:    reg.TableOID,
				ColOID:      col.OID,
				ColumnIndex: indexOfColumn(reg.Schema, col.Name),
				TableAlias:  reg.Alias,
				DisplayName: col.Name,
				Type:        expr.FromColumn(col),
				Depth:       frame.depth,
			}, nil
		}
		for _, nested := range frame.nested {
			if !strings.EqualFold(nested.Alias, tableAlias) {
				continue
			}
			for i, col := range nested.Columns {
				if strings.EqualFold(col.Name, name) {
					return &ColumnResolution{
						ColumnIndex: i,
						TableAlias:  nested.Alias,
						DisplayName: col.Name,
						Type:        col.Type,
						Depth:       frame.depth,
					}, nil
				}
			}
			return nil, newError(NotFound, "Cannot find column `%s` in table `%s`", name, tableAlias)
		}
		if frame.newTable != nil && strings.EqualFold(frame.newTable.Name, tableAlias) {
			for _, col := range frame.newTable.Columns {
				if strings.EqualFold(col.Name, name) {
					return &ColumnResolution{
						TableAlias:  frame.newTable.Name,
						DisplayName: col.Name,
						Type:        col.Type,
						Depth:       frame.depth,
					}, nil
				}
			}
			return nil, newError(NotFound, "Cannot find column `%s` in table `%s`", name, tableAlias)
		}
	}
	return nil, newError(InvalidReference, "Table `%s` is not in scope", tableAlias)
}

func indexOfColumn(schema *catalog.Schema, name string) int {
	for i, col := range schema.Columns {
		if strings.EqualFold(col.Name, name) {
			return i
		}
	}
	return -1
}
