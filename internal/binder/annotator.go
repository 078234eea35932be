package binder

import (
	"fmt"
	"strings"

	"github.com/example/granitedb/internal/sql/expr"
	"github.com/example/granitedb/internal/sql/parser"
)

// annotateExpression fills in expr's Annotation (depth, has_subquery,
// return_type, display_name) by recursing bottom-up over its children, then
// resolving or deriving this node's own contribution. It is the single
// place every expression in a statement passes through, so annotation
// happens exactly once per node (Bound guards against re-entry, which
// would otherwise happen for expressions shared across a rewritten tree).
func (b *Binder) annotateExpression(e parser.Expression) *BindError {
	if e == nil {
		return nil
	}
	ann := e.Annotation()
	if ann.Bound {
		return nil
	}

	switch n := e.(type) {
	case *parser.ColumnRef:
		return b.annotateColumnRef(n)
	case *parser.LiteralExpr:
		return b.annotateLiteral(n)
	case *parser.UnaryExpr:
		if err := b.annotateExpression(n.Expr); err != nil {
			return err
		}
		child := n.Expr.Annotation()
		ann.Depth = child.Depth
		ann.HasSubquery = child.HasSubquery
		switch n.Op {
		case parser.UnaryNot:
			ann.ReturnType = expr.BooleanType(child.ReturnType.Nullable)
			ann.DisplayName = "NOT " + child.DisplayName
		default:
			if !child.ReturnType.IsUnknown() && !child.ReturnType.IsNumeric() {
				return newError(TypeMismatch, "Unary %s requires a numeric operand, found %s", unaryOpText(n.Op), child.ReturnType.String())
			}
			ann.ReturnType = child.ReturnType
			ann.DisplayName = unaryOpText(n.Op) + child.DisplayName
		}
		ann.Bound = true
		return nil
	case *parser.BinaryExpr:
		return b.annotateBinary(n)
	case *parser.NotExpr:
		if err := b.annotateExpression(n.Expr); err != nil {
			return err
		}
		child := n.Expr.Annotation()
		ann.Depth = child.Depth
		ann.HasSubquery = child.HasSubquery
		ann.ReturnType = expr.BooleanType(child.ReturnType.Nullable)
		ann.DisplayName = "NOT " + child.DisplayName
		ann.Bound = true
		return nil
	case *parser.IsNullExpr:
		if err := b.annotateExpression(n.Expr); err != nil {
			return err
		}
		child := n.Expr.Annotation()
		ann.Depth = child.Depth
		ann.HasSubquery = child.HasSubquery
		ann.ReturnType = expr.BooleanType(false)
		if n.Negated {
			ann.DisplayName = child.DisplayName + " IS NOT NULL"
		} else {
			ann.DisplayName = child.DisplayName + " IS NULL"
		}
		ann.Bound = true
		return nil
	case *parser.FunctionCallExpr:
		return b.annotateFunctionCall(n)
	case *parser.CaseExpr:
		return b.annotateCase(n)
	case *parser.CastExpr:
		return b.annotateCast(n)
	case *parser.SubqueryExpr:
		return b.annotateSubqueryExpr(n)
	default:
		return newError(InvalidReference, "Cannot annotate expression of unknown kind %T", n)
	}
}

func (b *Binder) annotateColumnRef(n *parser.ColumnRef) *BindError {
	var res *ColumnResolution
	var err *BindError
	if n.Table != "" {
		res, err = b.ctx.ResolveQualified(n.Table, n.Name)
	} else {
		res, err = b.ctx.ResolveUnqualified(n.Name)
	}
	if err != nil {
		return err
	}
	n.DBOID = res.DBOID
	n.TblOID = res.TableOID
	n.ColOID = res.ColOID
	n.Index = res.ColumnIndex
	ann := n.Annotation()
	ann.Depth = res.Depth
	ann.HasSubquery = false
	ann.ReturnType = res.Type
	if res.TableAlias != "" {
		ann.DisplayName = res.TableAlias + "." + res.DisplayName
	} else {
		ann.DisplayName = res.DisplayName
	}
	ann.Bound = true
	return nil
}

func (b *Binder) annotateLiteral(n *parser.LiteralExpr) *BindError {
	ann := n.Annotation()
	ann.Depth = b.ctx.Current().Depth()
	ann.HasSubquery = false
	switch n.Literal.Kind {
	case parser.LiteralNumber:
		// Numeric literals stay untyped; only coerceInsertValue (an INSERT
		// VALUES cell or UPDATE SET value) gives one its column's type. A
		// CAST or an arithmetic/comparison peer leaves the literal untyped.
		ann.ReturnType = expr.UnknownType()
	case parser.LiteralString:
		ann.ReturnType = expr.VarCharType(false, len(n.Literal.Value))
	case parser.LiteralBoolean:
		ann.ReturnType = expr.BooleanType(false)
	case parser.LiteralNull:
		ann.ReturnType = expr.NullType()
	case parser.LiteralDecimal:
		ann.ReturnType = expr.UnknownType()
	default:
		ann.ReturnType = expr.UnknownType()
	}
	ann.DisplayName = n.Literal.Value
	if n.Literal.Kind == parser.LiteralString {
		ann.DisplayName = "'" + n.Literal.Value + "'"
	}
	ann.Bound = true
	return nil
}

func (b *Binder) annotateBinary(n *parser.BinaryExpr) *BindError {
	if err := b.annotateExpression(n.Left); err != nil {
		return err
	}
	if err := b.annotateExpression(n.Right); err != nil {
		return err
	}
	left := n.Left.Annotation()
	right := n.Right.Annotation()
	ann := n.Annotation()
	ann.Depth = maxInt(left.Depth, right.Depth)
	ann.HasSubquery = left.HasSubquery || right.HasSubquery
	ann.DisplayName = left.DisplayName + " " + binaryOpText(n.Op) + " " + right.DisplayName

	switch n.Op {
	case parser.OpAnd, parser.OpOr:
		if !isBooleanish(left.ReturnType) || !isBooleanish(right.ReturnType) {
			return newError(TypeMismatch, "%s requires boolean operands", binaryOpText(n.Op))
		}
		ann.ReturnType = expr.BooleanType(left.ReturnType.Nullable || right.ReturnType.Nullable)
	case parser.OpEqual, parser.OpNotEqual, parser.OpLess, parser.OpLessEqual, parser.OpGreater, parser.OpGreaterEqual:
		if err := checkComparable(left.ReturnType, right.ReturnType); err != nil {
			return err
		}
		ann.ReturnType = expr.BooleanType(left.ReturnType.Nullable || right.ReturnType.Nullable)
	case parser.OpAdd, parser.OpSubtract, parser.OpMultiply, parser.OpDivide, parser.OpModulo:
		resultType, err := arithmeticResultType(left.ReturnType, right.ReturnType)
		if err != nil {
			return err
		}
		ann.ReturnType = resultType
	default:
		return newError(InvalidReference, "Unknown binary operator")
	}
	ann.Bound = true
	return nil
}

// arithmeticResultType derives the widened return type of a binary
// arithmetic expression. Two INT/BIGINT operands stay integral (BIGINT
// wins if either side is BIGINT); any DECIMAL operand widens the whole
// expression to DECIMAL, with the scale set to the wider of the two
// operand scales, matching the decimal library's own addition semantics.
func arithmeticResultType(left, right expr.Type) (expr.Type, *BindError) {
	if left.IsUnknown() || right.IsUnknown() {
		return expr.UnknownType(), nil
	}
	if !left.IsNumeric() || !right.IsNumeric() {
		return expr.Type{}, newError(TypeMismatch, "Arithmetic requires numeric operands, found %s and %s", left.String(), right.String())
	}
	nullable := left.Nullable || right.Nullable
	if left.Kind == expr.TypeDecimal || right.Kind == expr.TypeDecimal {
		scale := left.Scale
		if right.Kind == expr.TypeDecimal && right.Scale > scale {
			scale = right.Scale
		}
		precision := left.Precision
		if right.Precision > precision {
			precision = right.Precision
		}
		return expr.DecimalType(nullable, precision, scale), nil
	}
	if left.Kind == expr.TypeBigInt || right.Kind == expr.TypeBigInt {
		return expr.BigIntType(nullable), nil
	}
	return expr.IntType(nullable), nil
}

func checkComparable(left, right expr.Type) *BindError {
	if left.IsUnknown() || right.IsUnknown() {
		return nil
	}
	if left.IsNumeric() && right.IsNumeric() {
		return nil
	}
	if left.Kind == right.Kind {
		return nil
	}
	return newError(TypeMismatch, "Cannot compare %s to %s", left.String(), right.String())
}

func isBooleanish(t expr.Type) bool {
	return t.IsUnknown() || t.Kind == expr.TypeBoolean
}

func (b *Binder) annotateFunctionCall(n *parser.FunctionCallExpr) *BindError {
	ann := n.Annotation()
	depth := b.ctx.Current().Depth()
	hasSubquery := false
	argNames := make([]string, 0, len(n.Args))
	for _, arg := range n.Args {
		if err := b.annotateExpression(arg); err != nil {
			return err
		}
		a := arg.Annotation()
		if a.Depth > depth {
			depth = a.Depth
		}
		hasSubquery = hasSubquery || a.HasSubquery
		argNames = append(argNames, a.DisplayName)
	}
	ann.Depth = depth
	ann.HasSubquery = hasSubquery

	name := strings.ToUpper(n.Name)
	switch name {
	case "LOWER", "UPPER":
		if !n.Star && len(n.Args) == 1 && !n.Args[0].Annotation().ReturnType.IsUnknown() && !n.Args[0].Annotation().ReturnType.IsString() {
			return newError(TypeMismatch, "%s requires a VARCHAR argument", name)
		}
		ann.ReturnType = expr.VarCharType(true, 0)
	case "LENGTH":
		ann.ReturnType = expr.IntType(true)
	case "COALESCE":
		ann.ReturnType = expr.UnknownType()
		for _, arg := range n.Args {
			t := arg.Annotation().ReturnType
			if !t.IsUnknown() {
				ann.ReturnType = t.WithNullability(true)
				break
			}
		}
	case "COUNT":
		ann.ReturnType = expr.BigIntType(false)
	case "SUM":
		ann.ReturnType = expr.DecimalType(true, 38, 6)
	case "MIN", "MAX":
		if len(n.Args) == 1 {
			ann.ReturnType = n.Args[0].Annotation().ReturnType.WithNullability(true)
		} else {
			ann.ReturnType = expr.UnknownType()
		}
	case "AVG":
		ann.ReturnType = expr.DecimalType(true, 38, 6)
	default:
		return newError(NotFound, "Cannot find function `%s`", n.Name)
	}

	if n.Star {
		ann.DisplayName = fmt.Sprintf("%s(*)", name)
	} else {
		ann.DisplayName = fmt.Sprintf("%s(%s)", name, strings.Join(argNames, ", "))
	}
	ann.Bound = true
	return nil
}

func (b *Binder) annotateCase(n *parser.CaseExpr) *BindError {
	ann := n.Annotation()
	depth := b.ctx.Current().Depth()
	hasSubquery := false

	if n.Operand != nil {
		if err := b.annotateExpression(n.Operand); err != nil {
			return err
		}
		opAnn := n.Operand.Annotation()
		depth = maxInt(depth, opAnn.Depth)
		hasSubquery = hasSubquery || opAnn.HasSubquery
	}

	var resultType expr.Type
	resultNullable := false
	for _, w := range n.Whens {
		if err := b.annotateExpression(w.When); err != nil {
			return err
		}
		if err := b.annotateExpression(w.Then); err != nil {
			return err
		}
		whenAnn := w.When.Annotation()
		thenAnn := w.Then.Annotation()
		depth = maxInt(depth, maxInt(whenAnn.Depth, thenAnn.Depth))
		hasSubquery = hasSubquery || whenAnn.HasSubquery || thenAnn.HasSubquery
		if n.Operand == nil && !isBooleanish(whenAnn.ReturnType) {
			return newError(TypeMismatch, "CASE WHEN condition must be boolean, found %s", whenAnn.ReturnType.String())
		}
		if resultType.Kind == expr.TypeUnknown && !thenAnn.ReturnType.IsUnknown() {
			resultType = thenAnn.ReturnType
		}
		if thenAnn.ReturnType.Nullable {
			resultNullable = true
		}
	}
	if n.Else != nil {
		if err := b.annotateExpression(n.Else); err != nil {
			return err
		}
		elseAnn := n.Else.Annotation()
		depth = maxInt(depth, elseAnn.Depth)
		hasSubquery = hasSubquery || elseAnn.HasSubquery
		if resultType.Kind == expr.TypeUnknown && !elseAnn.ReturnType.IsUnknown() {
			resultType = elseAnn.ReturnType
		}
		if elseAnn.ReturnType.Nullable {
			resultNullable = true
		}
	} else {
		resultNullable = true
	}

	ann.Depth = depth
	ann.HasSubquery = hasSubquery
	ann.ReturnType = resultType.WithNullability(resultNullable)
	ann.DisplayName = "CASE"
	ann.Bound = true
	return nil
}

func (b *Binder) annotateCast(n *parser.CastExpr) *BindError {
	if err := b.annotateExpression(n.Expr); err != nil {
		return err
	}
	inner := n.Expr.Annotation()
	ann := n.Annotation()
	ann.Depth = inner.Depth
	ann.HasSubquery = inner.HasSubquery
	ann.ReturnType = dataTypeToExprType(n.TargetType, true, n.Length, n.Precision, n.Scale)
	if err := coerceCastValue(ann.ReturnType, n.Expr); err != nil {
		return err
	}
	ann.DisplayName = fmt.Sprintf("CAST(%s AS %s)", inner.DisplayName, ann.ReturnType.String())
	ann.Bound = true
	return nil
}

func (b *Binder) annotateSubqueryExpr(n *parser.SubqueryExpr) *BindError {
	cols, err := b.bindSelect(n.Query)
	if err != nil {
		return err
	}
	if len(cols) != 1 {
		return newError(ArityMismatch, "Scalar subquery must return exactly one column, found %d", len(cols))
	}
	ann := n.Annotation()
	ann.Depth = n.Query.Depth
	ann.HasSubquery = true
	ann.ReturnType = cols[0].Type.WithNullability(true)
	ann.DisplayName = "(subquery)"
	ann.Bound = true
	return nil
}

func dataTypeToExprType(dt parser.DataType, nullable bool, length, precision, scale int) expr.Type {
	switch dt {
	case parser.DataTypeInt:
		return expr.IntType(nullable)
	case parser.DataTypeBigInt:
		return expr.BigIntType(nullable)
	case parser.DataTypeVarChar:
		return expr.VarCharType(nullable, length)
	case parser.DataTypeBoolean:
		return expr.BooleanType(nullable)
	case parser.DataTypeDate:
		return expr.DateType(nullable)
	case parser.DataTypeTimestamp:
		return expr.TimestampType(nullable)
	case parser.DataTypeDecimal:
		return expr.DecimalType(nullable, precision, scale)
	default:
		return expr.UnknownType()
	}
}

func unaryOpText(op parser.UnaryOp) string {
	switch op {
	case parser.UnaryPlus:
		return "+"
	case parser.UnaryMinus:
		return "-"
	case parser.UnaryNot:
		return "NOT "
	default:
		return "?"
	}
}

func binaryOpText(op parser.BinaryOp) string {
	switch op {
	case parser.OpAdd:
		return "+"
	case parser.OpSubtract:
		return "-"
	case parser.OpMultiply:
		return "*"
	case parser.OpDivide:
		return "/"
	case parser.OpModulo:
		return "%"
	case parser.OpEqual:
		return "="
	case parser.OpNotEqual:
		return "<>"
	case parser.OpLess:
		return "<"
	case parser.OpLessEqual:
		return "<="
	case parser.OpGreater:
		return ">"
	case parser.OpGreaterEqual:
		return ">="
	case parser.OpAnd:
		return "AND"
	case parser.OpOr:
		return "OR"
	default:
		return "?"
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
