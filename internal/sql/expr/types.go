// Package expr holds the small, shared vocabulary of logical scalar types
// the binder infers and the executor evaluates against. It deliberately
// does not define its own expression tree: annotated expressions live on
// the parser's own AST nodes (see internal/sql/parser), carrying an
// expr.Type as their derived return_type.
package expr

import "github.com/example/granitedb/internal/catalog"

// TypeKind enumerates the logical scalar types supported by the expression
// layer. It intentionally mirrors the catalog's column types with the
// addition of a dedicated NULL marker used during inference.
type TypeKind int

const (
	TypeUnknown TypeKind = iota
	TypeNull
	TypeInt
	TypeBigInt
	TypeDecimal
	TypeVarChar
	TypeBoolean
	TypeDate
	TypeTimestamp
)

// Type describes the logical type and nullability of an expression. It
// doubles as the binder's TypeId.
type Type struct {
	Kind      TypeKind
	Nullable  bool
	Precision int
	Scale     int
	Length    int
}

// WithNullability produces a copy of the type with the provided nullability.
func (t Type) WithNullability(nullable bool) Type {
	t.Nullable = nullable
	return t
}

// IsNumeric reports whether the type is one of the numeric kinds.
func (t Type) IsNumeric() bool {
	switch t.Kind {
	case TypeInt, TypeBigInt, TypeDecimal:
		return true
	default:
		return false
	}
}

// IsString reports whether the type represents textual data.
func (t Type) IsString() bool {
	return t.Kind == TypeVarChar
}

// IsTemporal reports whether the type represents a date or timestamp.
func (t Type) IsTemporal() bool {
	switch t.Kind {
	case TypeDate, TypeTimestamp:
		return true
	default:
		return false
	}
}

// IsUnknown reports whether the type carries no useful information yet,
// as happens for untyped NULL literals before coercion.
func (t Type) IsUnknown() bool {
	return t.Kind == TypeUnknown || t.Kind == TypeNull
}

// String renders the canonical display form of the type, used by
// display_name derivation for casts and by error messages that name a type.
func (t Type) String() string {
	switch t.Kind {
	case TypeInt:
		return "INT"
	case TypeBigInt:
		return "BIGINT"
	case TypeDecimal:
		return "DECIMAL"
	case TypeVarChar:
		return "VARCHAR"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeDate:
		return "DATE"
	case TypeTimestamp:
		return "TIMESTAMP"
	case TypeNull:
		return "NULL"
	default:
		return "UNKNOWN"
	}
}

// FromColumn maps a catalog column into an expression type.
func FromColumn(col catalog.Column) Type {
	switch col.Type {
	case catalog.ColumnTypeInt:
		return Type{Kind: TypeInt, Nullable: !col.NotNull}
	case catalog.ColumnTypeBigInt:
		return Type{Kind: TypeBigInt, Nullable: !col.NotNull}
	case catalog.ColumnTypeVarChar:
		return Type{Kind: TypeVarChar, Nullable: !col.NotNull, Length: col.Length}
	case catalog.ColumnTypeBoolean:
		return Type{Kind: TypeBoolean, Nullable: !col.NotNull}
	case catalog.ColumnTypeDate:
		return Type{Kind: TypeDate, Nullable: !col.NotNull}
	case catalog.ColumnTypeTimestamp:
		return Type{Kind: TypeTimestamp, Nullable: !col.NotNull}
	case catalog.ColumnTypeDecimal:
		return Type{Kind: TypeDecimal, Nullable: !col.NotNull, Precision: col.Precision, Scale: col.Scale}
	default:
		return Type{Kind: TypeUnknown, Nullable: true}
	}
}

// NullType returns the canonical NULL type used during inference.
func NullType() Type { return Type{Kind: TypeNull, Nullable: true} }

// BooleanType returns the BOOLEAN type with specified nullability.
func BooleanType(nullable bool) Type { return Type{Kind: TypeBoolean, Nullable: nullable} }

// IntType returns the INT type with specified nullability.
func IntType(nullable bool) Type { return Type{Kind: TypeInt, Nullable: nullable} }

// BigIntType returns the BIGINT type with specified nullability.
func BigIntType(nullable bool) Type { return Type{Kind: TypeBigInt, Nullable: nullable} }

// DecimalType constructs a DECIMAL type.
func DecimalType(nullable bool, precision, scale int) Type {
	return Type{Kind: TypeDecimal, Nullable: nullable, Precision: precision, Scale: scale}
}

// VarCharType constructs a VARCHAR type definition.
func VarCharType(nullable bool, length int) Type {
	return Type{Kind: TypeVarChar, Nullable: nullable, Length: length}
}

// DateType constructs a DATE type definition.
func DateType(nullable bool) Type { return Type{Kind: TypeDate, Nullable: nullable} }

// TimestampType constructs a TIMESTAMP type definition.
func TimestampType(nullable bool) Type { return Type{Kind: TypeTimestamp, Nullable: nullable} }

// UnknownType returns the placeholder type for expressions that have not
// been annotated, or cannot be (a bare CREATE FUNCTION body, for instance).
func UnknownType() Type { return Type{Kind: TypeUnknown, Nullable: true} }
