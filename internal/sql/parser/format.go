package parser

import (
	"fmt"
	"strings"
)

// FormatExpression renders an expression back to SQL text, used for
// display_name derivation and EXPLAIN output. It does not attempt to
// reproduce the original source exactly, only an equivalent rendering.
func FormatExpression(e Expression) string {
	return formatExpressionWithPrecedence(e, lowestPrecedence)
}

func formatExpressionWithPrecedence(e Expression, parent int) string {
	switch n := e.(type) {
	case *ColumnRef:
		if n.Table != "" {
			return n.Table + "." + n.Name
		}
		return n.Name
	case *LiteralExpr:
		return formatLiteral(n.Literal)
	case *UnaryExpr:
		prec := precedenceForUnary(n.Op)
		inner := formatExpressionWithPrecedence(n.Expr, prec)
		text := unaryOpText(n.Op) + inner
		if n.Op == UnaryNot {
			text = unaryOpText(n.Op) + " " + inner
		}
		return wrapIfLower(text, prec, parent)
	case *BinaryExpr:
		prec := precedenceForBinary(n.Op)
		left := formatExpressionWithPrecedence(n.Left, prec)
		right := formatExpressionWithPrecedence(n.Right, prec+1)
		text := fmt.Sprintf("%s %s %s", left, binaryOpText(n.Op), right)
		return wrapIfLower(text, prec, parent)
	case *NotExpr:
		inner := formatExpressionWithPrecedence(n.Expr, notPrecedence)
		return wrapIfLower("NOT "+inner, notPrecedence, parent)
	case *IsNullExpr:
		inner := formatExpressionWithPrecedence(n.Expr, comparisonPrecedence)
		if n.Negated {
			return wrapIfLower(inner+" IS NOT NULL", comparisonPrecedence, parent)
		}
		return wrapIfLower(inner+" IS NULL", comparisonPrecedence, parent)
	case *FunctionCallExpr:
		if n.Star {
			return n.Name + "(*)"
		}
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = FormatExpression(a)
		}
		return n.Name + "(" + strings.Join(args, ", ") + ")"
	case *CaseExpr:
		var b strings.Builder
		b.WriteString("CASE")
		if n.Operand != nil {
			b.WriteString(" " + FormatExpression(n.Operand))
		}
		for _, w := range n.Whens {
			b.WriteString(" WHEN " + FormatExpression(w.When) + " THEN " + FormatExpression(w.Then))
		}
		if n.Else != nil {
			b.WriteString(" ELSE " + FormatExpression(n.Else))
		}
		b.WriteString(" END")
		return b.String()
	case *CastExpr:
		return fmt.Sprintf("CAST(%s AS %s)", FormatExpression(n.Expr), formatDataType(n.TargetType, n.Length, n.Precision, n.Scale))
	case *SubqueryExpr:
		return "(" + FormatSelect(n.Query) + ")"
	default:
		return "?"
	}
}

// FormatSelect renders a SELECT statement back to SQL text for EXPLAIN
// output and debugging.
func FormatSelect(stmt *SelectStmt) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	items := make([]string, len(stmt.Items))
	for i, item := range stmt.Items {
		switch it := item.(type) {
		case *SelectStarItem:
			items[i] = "*"
		case *SelectExprItem:
			items[i] = FormatExpression(it.Expr)
			if it.Alias != "" {
				items[i] += " AS " + it.Alias
			}
		}
	}
	b.WriteString(strings.Join(items, ", "))
	if stmt.From != nil {
		b.WriteString(" FROM " + formatTableExpr(stmt.From))
	}
	if stmt.Where != nil {
		b.WriteString(" WHERE " + FormatExpression(stmt.Where))
	}
	if len(stmt.GroupBy) > 0 {
		terms := make([]string, len(stmt.GroupBy))
		for i, g := range stmt.GroupBy {
			terms[i] = FormatExpression(g)
		}
		b.WriteString(" GROUP BY " + strings.Join(terms, ", "))
	}
	if stmt.Having != nil {
		b.WriteString(" HAVING " + FormatExpression(stmt.Having))
	}
	if len(stmt.OrderBy) > 0 {
		terms := make([]string, len(stmt.OrderBy))
		for i, t := range stmt.OrderBy {
			terms[i] = FormatExpression(t.Expr)
			if t.Desc {
				terms[i] += " DESC"
			}
		}
		b.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}
	if stmt.Limit != nil {
		b.WriteString(fmt.Sprintf(" LIMIT %d", stmt.Limit.Limit))
		if stmt.Limit.Offset > 0 {
			b.WriteString(fmt.Sprintf(" OFFSET %d", stmt.Limit.Offset))
		}
	}
	return b.String()
}

func formatTableExpr(te TableExpr) string {
	switch n := te.(type) {
	case *TableName:
		if n.Alias != "" && !strings.EqualFold(n.Alias, n.Name) {
			return n.Name + " " + n.Alias
		}
		return n.Name
	case *JoinExpr:
		kind := "JOIN"
		if n.Type == JoinLeft {
			kind = "LEFT JOIN"
		}
		return fmt.Sprintf("%s %s %s ON %s", formatTableExpr(n.Left), kind, formatTableExpr(n.Right), FormatExpression(n.On))
	case *TableList:
		parts := make([]string, len(n.Tables))
		for i, t := range n.Tables {
			parts[i] = formatTableExpr(t)
		}
		return strings.Join(parts, ", ")
	case *SubqueryTableExpr:
		return "(" + FormatSelect(n.Query) + ") " + n.Alias
	default:
		return "?"
	}
}

func formatDataType(dt DataType, length, precision, scale int) string {
	switch dt {
	case DataTypeInt:
		return "INT"
	case DataTypeBigInt:
		return "BIGINT"
	case DataTypeVarChar:
		return fmt.Sprintf("VARCHAR(%d)", length)
	case DataTypeBoolean:
		return "BOOLEAN"
	case DataTypeDate:
		return "DATE"
	case DataTypeTimestamp:
		return "TIMESTAMP"
	case DataTypeDecimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", precision, scale)
	default:
		return "UNKNOWN"
	}
}

func formatLiteral(lit Literal) string {
	switch lit.Kind {
	case LiteralBoolean:
		return strings.ToUpper(lit.Value)
	case LiteralString:
		return "'" + strings.ReplaceAll(lit.Value, "'", "''") + "'"
	case LiteralNull:
		return "NULL"
	case LiteralParam:
		return "?"
	default:
		return lit.Value
	}
}

func precedenceForUnary(op UnaryOp) int {
	if op == UnaryNot {
		return notPrecedence
	}
	return unaryPrecedence
}

func precedenceForBinary(op BinaryOp) int {
	switch op {
	case OpAnd:
		return andPrecedence
	case OpOr:
		return orPrecedence
	case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		return comparisonPrecedence
	case OpAdd, OpSubtract:
		return additivePrecedence
	case OpMultiply, OpDivide, OpModulo:
		return multiplicativePrecedence
	default:
		return lowestPrecedence
	}
}

func wrapIfLower(text string, prec, parent int) string {
	if prec < parent {
		return "(" + text + ")"
	}
	return text
}

func unaryOpText(op UnaryOp) string {
	switch op {
	case UnaryPlus:
		return "+"
	case UnaryMinus:
		return "-"
	case UnaryNot:
		return "NOT"
	default:
		return "?"
	}
}

func binaryOpText(op BinaryOp) string {
	switch op {
	case OpAdd:
		return "+"
	case OpSubtract:
		return "-"
	case OpMultiply:
		return "*"
	case OpDivide:
		return "/"
	case OpModulo:
		return "%"
	case OpEqual:
		return "="
	case OpNotEqual:
		return "<>"
	case OpLess:
		return "<"
	case OpLessEqual:
		return "<="
	case OpGreater:
		return ">"
	case OpGreaterEqual:
		return ">="
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	default:
		return "?"
	}
}
