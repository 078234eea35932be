package parser

import (
	"github.com/example/granitedb/internal/catalog"
	"github.com/example/granitedb/internal/sql/expr"
)

// Statement represents a parsed SQL statement.
type Statement interface {
	stmt()
}

// Expression represents a scalar expression appearing anywhere in a
// statement. Every concrete expression embeds Annotation, which the binder
// fills in exactly once (internal/binder/annotator.go).
type Expression interface {
	expr()
	Annotation() *Annotation
}

// Annotation holds the derived semantic information the binder attaches to
// every expression node: depth, has_subquery, return_type and
// display_name. Bound guards against double annotation.
type Annotation struct {
	Depth       int
	HasSubquery bool
	ReturnType  expr.Type
	DisplayName string
	Bound       bool
}

func (a *Annotation) Annotation() *Annotation { return a }

// DataType identifies allowed column types in GraniteDB's grammar.
type DataType int

const (
	DataTypeInt DataType = iota
	DataTypeBigInt
	DataTypeVarChar
	DataTypeBoolean
	DataTypeDate
	DataTypeTimestamp
	DataTypeDecimal
)

// ColumnDef models a column definition in CREATE TABLE.
type ColumnDef struct {
	Name      string
	Type      DataType
	Length    int
	Precision int
	Scale     int
	NotNull   bool
	Default   Expression
	Check     Expression
	// References holds an inline column-level REFERENCES constraint, if any.
	// CREATE TABLE folds it into CreateTableStmt.ForeignKeys like any other
	// FOREIGN KEY clause.
	References *ForeignKeyDef
}

// ForeignKeyAction is the grammar's referential action. Unlike
// catalog.ForeignKeyAction it has a CASCADE value.
type ForeignKeyAction int

const (
	FKActionRestrict ForeignKeyAction = iota
	FKActionNoAction
	FKActionCascade
)

// ForeignKeyDef models a FOREIGN KEY clause inside CREATE TABLE.
type ForeignKeyDef struct {
	Name       string
	Columns    []string
	RefTable   string
	RefOID     catalog.TableOID
	RefColumns []string
	OnDelete   ForeignKeyAction
	OnUpdate   ForeignKeyAction
}

// CreateDatabaseStmt represents CREATE DATABASE.
type CreateDatabaseStmt struct {
	Name string
}

func (*CreateDatabaseStmt) stmt() {}

// CreateTableStmt represents CREATE TABLE, with optional FOREIGN KEY clauses.
type CreateTableStmt struct {
	Name        string
	Columns     []ColumnDef
	PrimaryKey  string
	ForeignKeys []ForeignKeyDef
}

func (*CreateTableStmt) stmt() {}

// IndexAttribute is either a bare column name or an expression, following
// CREATE INDEX's grammar.
type IndexAttribute struct {
	Column string
	Expr   Expression
}

// CreateIndexStmt represents CREATE [UNIQUE] INDEX.
type CreateIndexStmt struct {
	Name       string
	Table      string
	TableOID   catalog.TableOID
	Attributes []IndexAttribute
	Unique     bool
}

func (*CreateIndexStmt) stmt() {}

// TriggerTiming enumerates BEFORE/AFTER.
type TriggerTiming int

const (
	TriggerBefore TriggerTiming = iota
	TriggerAfter
)

// CreateTriggerStmt represents CREATE TRIGGER.
type CreateTriggerStmt struct {
	Name     string
	Timing   TriggerTiming
	Event    string
	Table    string
	TableOID catalog.TableOID
	When     Expression
}

func (*CreateTriggerStmt) stmt() {}

// CreateViewStmt represents CREATE VIEW.
type CreateViewStmt struct {
	Name  string
	Query *SelectStmt
}

func (*CreateViewStmt) stmt() {}

// CreateSchemaStmt represents CREATE SCHEMA.
type CreateSchemaStmt struct {
	Name string
}

func (*CreateSchemaStmt) stmt() {}

// CreateFunctionStmt represents CREATE FUNCTION. The body is accepted but
// never interpreted (spec.md §4.1 lists it as accept-only).
type CreateFunctionStmt struct {
	Name string
	Body string
}

func (*CreateFunctionStmt) stmt() {}

// DropKind enumerates the seven DROP target kinds the binder distinguishes.
type DropKind int

const (
	DropDatabase DropKind = iota
	DropTable
	DropIndex
	DropTrigger
	DropView
	DropSchema
	DropPreparedStatement
)

// DropStmt represents any DROP statement.
type DropStmt struct {
	Kind DropKind
	Name string
}

func (*DropStmt) stmt() {}

// NewDropTableStmt builds a DropStmt of kind DropTable.
func NewDropTableStmt(name string) *DropStmt {
	return &DropStmt{Kind: DropTable, Name: name}
}

// InsertStmt represents INSERT INTO ... VALUES (...), (...) or
// INSERT INTO ... SELECT ...
type InsertStmt struct {
	Table    string
	TableOID catalog.TableOID
	Columns  []string
	Values   [][]Expression
	Source   *SelectStmt
}

func (*InsertStmt) stmt() {}

// UpdateAssignment is one `column = expr` pair inside SET.
type UpdateAssignment struct {
	Column string
	Expr   Expression
}

// UpdateStmt represents UPDATE ... SET ... WHERE ...
type UpdateStmt struct {
	Table       string
	TableOID    catalog.TableOID
	Assignments []UpdateAssignment
	Where       Expression
}

func (*UpdateStmt) stmt() {}

// DeleteStmt represents DELETE FROM ... WHERE ...
type DeleteStmt struct {
	Table    string
	TableOID catalog.TableOID
	Where    Expression
}

func (*DeleteStmt) stmt() {}

// CopyDirection distinguishes COPY TO from COPY FROM.
type CopyDirection int

const (
	CopyTo CopyDirection = iota
	CopyFrom
)

// CopyStmt represents COPY, either naming a table (copy all columns, like
// a `*`) or wrapping an arbitrary SELECT.
type CopyStmt struct {
	Direction CopyDirection
	Table     string
	TableOID  catalog.TableOID
	Columns   []string
	Query     *SelectStmt
	Path      string
}

func (*CopyStmt) stmt() {}

// PrepareStmt represents PREPARE name AS <statement>.
type PrepareStmt struct {
	Name  string
	Query Statement
}

func (*PrepareStmt) stmt() {}

// ExecuteStmt represents EXECUTE name(args...).
type ExecuteStmt struct {
	Name string
	Args []Expression
}

func (*ExecuteStmt) stmt() {}

// TransactionKind enumerates BEGIN/COMMIT/ROLLBACK.
type TransactionKind int

const (
	TransactionBegin TransactionKind = iota
	TransactionCommit
	TransactionRollback
)

// TransactionStmt represents BEGIN/COMMIT/ROLLBACK [TRANSACTION].
type TransactionStmt struct {
	Kind TransactionKind
}

func (*TransactionStmt) stmt() {}

// AnalyzeStmt represents ANALYZE table.
type AnalyzeStmt struct {
	Table    string
	TableOID catalog.TableOID
}

func (*AnalyzeStmt) stmt() {}

// JoinType enumerates supported join kinds.
type JoinType int

const (
	JoinInner JoinType = iota
	JoinLeft
)

// TableExpr is any FROM-clause operand: a named table, a join, a
// comma-separated list, or a parenthesised derived table.
type TableExpr interface {
	tableExpr()
}

// TableName is a single FROM-clause table reference.
type TableName struct {
	Name     string
	Alias    string
	DBOID    catalog.DatabaseOID
	TableOID catalog.TableOID
}

func (*TableName) tableExpr() {}

// JoinExpr represents `left JOIN right ON cond`.
type JoinExpr struct {
	Left  TableExpr
	Right TableExpr
	Type  JoinType
	On    Expression
}

func (*JoinExpr) tableExpr() {}

// TableList represents a comma-separated FROM list (implicit cross join).
type TableList struct {
	Tables []TableExpr
}

func (*TableList) tableExpr() {}

// SubqueryTableExpr represents `(SELECT ...) AS alias`.
type SubqueryTableExpr struct {
	Query *SelectStmt
	Alias string
}

func (*SubqueryTableExpr) tableExpr() {}

// SelectItem is one entry in a SELECT list: either `*` or a single
// expression with an optional alias.
type SelectItem interface {
	selectItem()
}

// SelectStarItem represents a bare `*` in the select list.
type SelectStarItem struct{}

func (*SelectStarItem) selectItem() {}

// SelectExprItem represents a single projected expression.
type SelectExprItem struct {
	Expr  Expression
	Alias string
}

func (*SelectExprItem) selectItem() {}

// OrderByTerm describes one ORDER BY key.
type OrderByTerm struct {
	Expr Expression
	Desc bool
}

// LimitClause captures LIMIT/OFFSET information.
type LimitClause struct {
	Limit  int
	Offset int
}

// SelectStmt models a full SELECT, including joins, GROUP BY/HAVING and
// nested subselects.
type SelectStmt struct {
	From    TableExpr
	Items   []SelectItem
	Where   Expression
	GroupBy []Expression
	Having  Expression
	OrderBy []OrderByTerm
	Limit   *LimitClause
	Depth   int
}

func (*SelectStmt) stmt() {}

// LiteralKind identifies literal types.
type LiteralKind int

const (
	LiteralNumber LiteralKind = iota
	LiteralString
	LiteralBoolean
	LiteralNull
	LiteralDecimal
	// LiteralParam marks a `?` prepared-statement placeholder. It never
	// reaches the annotator: PREPARE's wrapped statement is stored but not
	// traversed by Bind, so placeholders are only ever parsed, not typed.
	LiteralParam
)

// Literal captures a literal value as scanned from source text.
type Literal struct {
	Kind  LiteralKind
	Value string
}

// ColumnRef references a column, optionally table-qualified. The binder
// fills in DBOID/TableOID/ColOID on successful resolution.
type ColumnRef struct {
	Table   string
	Name    string
	DBOID   catalog.DatabaseOID
	TblOID  catalog.TableOID
	ColOID  catalog.ColumnOID
	Index   int
	Ann     Annotation
}

func (*ColumnRef) expr()                 {}
func (c *ColumnRef) Annotation() *Annotation { return &c.Ann }

// LiteralExpr wraps a literal value.
type LiteralExpr struct {
	Literal Literal
	Ann     Annotation
}

func (*LiteralExpr) expr()                    {}
func (l *LiteralExpr) Annotation() *Annotation { return &l.Ann }

// UnaryOp enumerates unary operators.
type UnaryOp int

const (
	UnaryPlus UnaryOp = iota
	UnaryMinus
	UnaryNot
)

// UnaryExpr models a unary expression.
type UnaryExpr struct {
	Op   UnaryOp
	Expr Expression
	Ann  Annotation
}

func (*UnaryExpr) expr()                    {}
func (u *UnaryExpr) Annotation() *Annotation { return &u.Ann }

// BinaryOp enumerates binary operators: arithmetic, comparison and boolean.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo
	OpEqual
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpAnd
	OpOr
)

// BinaryExpr describes a binary expression.
type BinaryExpr struct {
	Left  Expression
	Right Expression
	Op    BinaryOp
	Ann   Annotation
}

func (*BinaryExpr) expr()                    {}
func (b *BinaryExpr) Annotation() *Annotation { return &b.Ann }

// NotExpr negates the result of its operand.
type NotExpr struct {
	Expr Expression
	Ann  Annotation
}

func (*NotExpr) expr()                    {}
func (n *NotExpr) Annotation() *Annotation { return &n.Ann }

// IsNullExpr tests whether the operand is NULL, optionally negated.
type IsNullExpr struct {
	Expr    Expression
	Negated bool
	Ann     Annotation
}

func (*IsNullExpr) expr()                    {}
func (i *IsNullExpr) Annotation() *Annotation { return &i.Ann }

// FunctionCallExpr represents a scalar or aggregate function invocation,
// including bare `COUNT(*)` via the Star flag.
type FunctionCallExpr struct {
	Name string
	Args []Expression
	Star bool
	Ann  Annotation
}

func (*FunctionCallExpr) expr()                    {}
func (f *FunctionCallExpr) Annotation() *Annotation { return &f.Ann }

// CaseWhen is one WHEN cond THEN result branch.
type CaseWhen struct {
	When Expression
	Then Expression
}

// CaseExpr represents CASE [operand] WHEN ... THEN ... ELSE ... END.
type CaseExpr struct {
	Operand Expression
	Whens   []CaseWhen
	Else    Expression
	Ann     Annotation
}

func (*CaseExpr) expr()                    {}
func (c *CaseExpr) Annotation() *Annotation { return &c.Ann }

// CastExpr represents CAST(expr AS type) and also doubles as the
// representation implied by an INSERT cell declared with an explicit cast.
type CastExpr struct {
	Expr       Expression
	TargetType DataType
	Length     int
	Precision  int
	Scale      int
	Ann        Annotation
}

func (*CastExpr) expr()                    {}
func (c *CastExpr) Annotation() *Annotation { return &c.Ann }

// SubqueryExpr represents a scalar subquery appearing inside an expression.
type SubqueryExpr struct {
	Query *SelectStmt
	Ann   Annotation
}

func (*SubqueryExpr) expr()                    {}
func (s *SubqueryExpr) Annotation() *Annotation { return &s.Ann }
