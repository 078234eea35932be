package exec

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/granitedb/internal/catalog"
	"github.com/example/granitedb/internal/sql/parser"
)

// truthValue is SQL's three-valued logic: a boolean predicate evaluates to
// true, false, or unknown (NULL propagated through a comparison or a NULL
// operand to AND/OR).
type truthValue int

const (
	truthFalse truthValue = iota
	truthTrue
	truthUnknown
)

func toTruthValue(v interface{}) (truthValue, error) {
	if v == nil {
		return truthUnknown, nil
	}
	b, ok := v.(bool)
	if !ok {
		return truthUnknown, fmt.Errorf("exec: expected boolean expression, got %T", v)
	}
	if b {
		return truthTrue, nil
	}
	return truthFalse, nil
}

func truthToValue(t truthValue) interface{} {
	switch t {
	case truthTrue:
		return true
	case truthFalse:
		return false
	default:
		return nil
	}
}

func truthAnd(a, b truthValue) truthValue {
	if a == truthFalse || b == truthFalse {
		return truthFalse
	}
	if a == truthUnknown || b == truthUnknown {
		return truthUnknown
	}
	return truthTrue
}

func truthOr(a, b truthValue) truthValue {
	if a == truthTrue || b == truthTrue {
		return truthTrue
	}
	if a == truthUnknown || b == truthUnknown {
		return truthUnknown
	}
	return truthFalse
}

func truthNot(a truthValue) truthValue {
	switch a {
	case truthTrue:
		return truthFalse
	case truthFalse:
		return truthTrue
	default:
		return truthUnknown
	}
}

func evalExpr(e parser.Expression, row []interface{}) (interface{}, error) {
	switch n := e.(type) {
	case *parser.LiteralExpr:
		return parseLiteralValue(n.Literal)
	case *parser.ColumnRef:
		if n.Index < 0 || n.Index >= len(row) {
			return nil, fmt.Errorf("exec: column %s has no bound row position", n.Name)
		}
		return row[n.Index], nil
	case *parser.UnaryExpr:
		return evalUnary(n, row)
	case *parser.BinaryExpr:
		return evalBinary(n, row)
	case *parser.NotExpr:
		v, err := evalExpr(n.Expr, row)
		if err != nil {
			return nil, err
		}
		t, err := toTruthValue(v)
		if err != nil {
			return nil, err
		}
		return truthToValue(truthNot(t)), nil
	case *parser.IsNullExpr:
		v, err := evalExpr(n.Expr, row)
		if err != nil {
			return nil, err
		}
		result := v == nil
		if n.Negated {
			result = !result
		}
		return result, nil
	case *parser.FunctionCallExpr:
		return evalScalarFunction(n, row)
	case *parser.CaseExpr:
		return evalCase(n, row)
	case *parser.CastExpr:
		return evalCast(n, row)
	case *parser.SubqueryExpr:
		return nil, fmt.Errorf("exec: scalar subqueries are not evaluated by this executor")
	default:
		return nil, fmt.Errorf("exec: unsupported expression type %T", e)
	}
}

func evalUnary(n *parser.UnaryExpr, row []interface{}) (interface{}, error) {
	v, err := evalExpr(n.Expr, row)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case parser.UnaryNot:
		t, err := toTruthValue(v)
		if err != nil {
			return nil, err
		}
		return truthToValue(truthNot(t)), nil
	case parser.UnaryPlus:
		if v == nil {
			return nil, nil
		}
		if !isNumeric(v) {
			return nil, fmt.Errorf("exec: unary + requires a numeric operand")
		}
		return v, nil
	case parser.UnaryMinus:
		if v == nil {
			return nil, nil
		}
		dec, err := toDecimalValue(v)
		if err != nil {
			return nil, fmt.Errorf("exec: unary - requires a numeric operand: %w", err)
		}
		return decimalToNative(dec.Neg(), numericKind(v)), nil
	default:
		return nil, fmt.Errorf("exec: unsupported unary operator")
	}
}

func evalBinary(n *parser.BinaryExpr, row []interface{}) (interface{}, error) {
	switch n.Op {
	case parser.OpAnd, parser.OpOr:
		left, err := evalExpr(n.Left, row)
		if err != nil {
			return nil, err
		}
		right, err := evalExpr(n.Right, row)
		if err != nil {
			return nil, err
		}
		lt, err := toTruthValue(left)
		if err != nil {
			return nil, err
		}
		rt, err := toTruthValue(right)
		if err != nil {
			return nil, err
		}
		if n.Op == parser.OpAnd {
			return truthToValue(truthAnd(lt, rt)), nil
		}
		return truthToValue(truthOr(lt, rt)), nil
	}

	left, err := evalExpr(n.Left, row)
	if err != nil {
		return nil, err
	}
	right, err := evalExpr(n.Right, row)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case parser.OpEqual, parser.OpNotEqual, parser.OpLess, parser.OpLessEqual, parser.OpGreater, parser.OpGreaterEqual:
		cmp, unknown, err := compareValues(left, right)
		if err != nil {
			return nil, err
		}
		if unknown {
			return nil, nil
		}
		switch n.Op {
		case parser.OpEqual:
			return cmp == 0, nil
		case parser.OpNotEqual:
			return cmp != 0, nil
		case parser.OpLess:
			return cmp < 0, nil
		case parser.OpLessEqual:
			return cmp <= 0, nil
		case parser.OpGreater:
			return cmp > 0, nil
		case parser.OpGreaterEqual:
			return cmp >= 0, nil
		}
	}

	if left == nil || right == nil {
		return nil, nil
	}
	ld, err := toDecimalValue(left)
	if err != nil {
		return nil, fmt.Errorf("exec: arithmetic requires numeric operands: %w", err)
	}
	rd, err := toDecimalValue(right)
	if err != nil {
		return nil, fmt.Errorf("exec: arithmetic requires numeric operands: %w", err)
	}
	kind := promoteKind(numericKind(left), numericKind(right))
	switch n.Op {
	case parser.OpAdd:
		return decimalToNative(ld.Add(rd), kind), nil
	case parser.OpSubtract:
		return decimalToNative(ld.Sub(rd), kind), nil
	case parser.OpMultiply:
		return decimalToNative(ld.Mul(rd), kind), nil
	case parser.OpDivide:
		if rd.IsZero() {
			return nil, fmt.Errorf("exec: division by zero")
		}
		return ld.DivRound(rd, 10), nil
	case parser.OpModulo:
		if rd.IsZero() {
			return nil, fmt.Errorf("exec: modulo by zero")
		}
		return decimalToNative(ld.Mod(rd), kind), nil
	default:
		return nil, fmt.Errorf("exec: unsupported binary operator")
	}
}

func evalCase(n *parser.CaseExpr, row []interface{}) (interface{}, error) {
	var operand interface{}
	var hasOperand bool
	if n.Operand != nil {
		v, err := evalExpr(n.Operand, row)
		if err != nil {
			return nil, err
		}
		operand = v
		hasOperand = true
	}
	for _, when := range n.Whens {
		if hasOperand {
			whenVal, err := evalExpr(when.When, row)
			if err != nil {
				return nil, err
			}
			cmp, unknown, err := compareValues(operand, whenVal)
			if err != nil {
				return nil, err
			}
			if unknown || cmp != 0 {
				continue
			}
		} else {
			whenVal, err := evalExpr(when.When, row)
			if err != nil {
				return nil, err
			}
			truth, err := toTruthValue(whenVal)
			if err != nil {
				return nil, err
			}
			if truth != truthTrue {
				continue
			}
		}
		return evalExpr(when.Then, row)
	}
	if n.Else != nil {
		return evalExpr(n.Else, row)
	}
	return nil, nil
}

func evalCast(n *parser.CastExpr, row []interface{}) (interface{}, error) {
	v, err := evalExpr(n.Expr, row)
	if err != nil {
		return nil, err
	}
	return castValue(v, n.TargetType, n.Length, n.Precision, n.Scale)
}

func castValue(v interface{}, target parser.DataType, length, precision, scale int) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch target {
	case parser.DataTypeInt:
		d, err := toDecimalValue(v)
		if err != nil {
			return nil, err
		}
		return int32(d.IntPart()), nil
	case parser.DataTypeBigInt:
		d, err := toDecimalValue(v)
		if err != nil {
			return nil, err
		}
		return d.IntPart(), nil
	case parser.DataTypeDecimal:
		d, err := toDecimalValue(v)
		if err != nil {
			return nil, err
		}
		return d.Round(int32(scale)), nil
	case parser.DataTypeVarChar:
		s, err := stringifyValue(v)
		if err != nil {
			return nil, err
		}
		if length > 0 && len(s) > length {
			return nil, fmt.Errorf("exec: CAST result exceeds length %d", length)
		}
		return s, nil
	case parser.DataTypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("exec: cannot CAST %T to BOOLEAN", v)
		}
		return b, nil
	case parser.DataTypeDate, parser.DataTypeTimestamp:
		if t, ok := v.(time.Time); ok {
			return t, nil
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("exec: cannot CAST %T to %v", v, target)
		}
		return parseTemporal(s, target)
	default:
		return nil, fmt.Errorf("exec: unsupported CAST target type")
	}
}

func evalScalarFunction(n *parser.FunctionCallExpr, row []interface{}) (interface{}, error) {
	name := strings.ToUpper(n.Name)
	switch name {
	case "LOWER", "UPPER":
		if len(n.Args) != 1 {
			return nil, fmt.Errorf("exec: %s takes exactly one argument", name)
		}
		v, err := evalExpr(n.Args[0], row)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, nil
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("exec: %s requires a VARCHAR argument", name)
		}
		if name == "LOWER" {
			return strings.ToLower(s), nil
		}
		return strings.ToUpper(s), nil
	case "LENGTH":
		if len(n.Args) != 1 {
			return nil, fmt.Errorf("exec: LENGTH takes exactly one argument")
		}
		v, err := evalExpr(n.Args[0], row)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, nil
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("exec: LENGTH requires a VARCHAR argument")
		}
		return int32(len(s)), nil
	case "COALESCE":
		for _, arg := range n.Args {
			v, err := evalExpr(arg, row)
			if err != nil {
				return nil, err
			}
			if v != nil {
				return v, nil
			}
		}
		return nil, nil
	case "COUNT", "SUM", "AVG", "MIN", "MAX":
		return nil, fmt.Errorf("exec: %s is an aggregate function and must appear in a select list with no non-aggregate columns", name)
	default:
		return nil, fmt.Errorf("exec: unknown function %s", n.Name)
	}
}

// evalAggregate computes an aggregate function over a whole result set. It is
// only reachable for SELECT statements whose entire select list is
// aggregates, since this executor has no GROUP BY execution path.
func evalAggregate(n *parser.FunctionCallExpr, rows [][]interface{}) (interface{}, error) {
	name := strings.ToUpper(n.Name)
	switch name {
	case "COUNT":
		if n.Star {
			return int64(len(rows)), nil
		}
		if len(n.Args) != 1 {
			return nil, fmt.Errorf("exec: COUNT takes exactly one argument")
		}
		count := int64(0)
		for _, row := range rows {
			v, err := evalExpr(n.Args[0], row)
			if err != nil {
				return nil, err
			}
			if v != nil {
				count++
			}
		}
		return count, nil
	case "SUM", "AVG":
		if len(n.Args) != 1 {
			return nil, fmt.Errorf("exec: %s takes exactly one argument", name)
		}
		sum := decimal.Zero
		count := 0
		for _, row := range rows {
			v, err := evalExpr(n.Args[0], row)
			if err != nil {
				return nil, err
			}
			if v == nil {
				continue
			}
			d, err := toDecimalValue(v)
			if err != nil {
				return nil, fmt.Errorf("exec: %s requires a numeric argument: %w", name, err)
			}
			sum = sum.Add(d)
			count++
		}
		if count == 0 {
			return nil, nil
		}
		if name == "SUM" {
			return sum, nil
		}
		return sum.DivRound(decimal.NewFromInt(int64(count)), 10), nil
	case "MIN", "MAX":
		if len(n.Args) != 1 {
			return nil, fmt.Errorf("exec: %s takes exactly one argument", name)
		}
		var best interface{}
		for _, row := range rows {
			v, err := evalExpr(n.Args[0], row)
			if err != nil {
				return nil, err
			}
			if v == nil {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			cmp, unknown, err := compareValues(v, best)
			if err != nil {
				return nil, err
			}
			if unknown {
				continue
			}
			if (name == "MIN" && cmp < 0) || (name == "MAX" && cmp > 0) {
				best = v
			}
		}
		return best, nil
	default:
		return nil, fmt.Errorf("exec: %s is not an aggregate function", name)
	}
}

// isAggregateCall reports whether e is a direct call to one of the five
// supported aggregate functions.
func isAggregateCall(e parser.Expression) (*parser.FunctionCallExpr, bool) {
	fn, ok := e.(*parser.FunctionCallExpr)
	if !ok {
		return nil, false
	}
	switch strings.ToUpper(fn.Name) {
	case "COUNT", "SUM", "AVG", "MIN", "MAX":
		return fn, true
	default:
		return nil, false
	}
}

func parseLiteralValue(lit parser.Literal) (interface{}, error) {
	switch lit.Kind {
	case parser.LiteralNull:
		return nil, nil
	case parser.LiteralBoolean:
		return strings.EqualFold(lit.Value, "TRUE"), nil
	case parser.LiteralString:
		return lit.Value, nil
	case parser.LiteralNumber:
		if strings.ContainsAny(lit.Value, ".eE") {
			d, err := decimal.NewFromString(lit.Value)
			if err != nil {
				return nil, fmt.Errorf("exec: invalid numeric literal %s", lit.Value)
			}
			return d, nil
		}
		v, err := strconv.ParseInt(lit.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("exec: invalid numeric literal %s", lit.Value)
		}
		return v, nil
	case parser.LiteralDecimal:
		d, err := decimal.NewFromString(lit.Value)
		if err != nil {
			return nil, fmt.Errorf("exec: invalid decimal literal %s", lit.Value)
		}
		return d, nil
	case parser.LiteralParam:
		return nil, fmt.Errorf("exec: parameter placeholders are not supported at execution time")
	default:
		return nil, fmt.Errorf("exec: unsupported literal kind")
	}
}

func isNumeric(v interface{}) bool {
	switch v.(type) {
	case int32, int64, decimal.Decimal:
		return true
	default:
		return false
	}
}

type numKind int

const (
	numKindInt numKind = iota
	numKindBigInt
	numKindDecimal
)

func numericKind(v interface{}) numKind {
	switch v.(type) {
	case int32:
		return numKindInt
	case int64:
		return numKindBigInt
	default:
		return numKindDecimal
	}
}

func promoteKind(a, b numKind) numKind {
	if a == numKindDecimal || b == numKindDecimal {
		return numKindDecimal
	}
	if a == numKindBigInt || b == numKindBigInt {
		return numKindBigInt
	}
	return numKindInt
}

func toDecimalValue(v interface{}) (decimal.Decimal, error) {
	switch t := v.(type) {
	case int32:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case decimal.Decimal:
		return t, nil
	default:
		return decimal.Decimal{}, fmt.Errorf("value of type %T is not numeric", v)
	}
}

func decimalToNative(d decimal.Decimal, kind numKind) interface{} {
	switch kind {
	case numKindInt:
		return int32(d.IntPart())
	case numKindBigInt:
		return d.IntPart()
	default:
		return d
	}
}

// compareValues compares two row values of the same SQL domain. unknown is
// true when either operand is NULL, in which case SQL comparison semantics
// say the comparison's truth value is unknown rather than false.
func compareValues(left, right interface{}) (cmp int, unknown bool, err error) {
	if left == nil || right == nil {
		return 0, true, nil
	}
	if isNumeric(left) && isNumeric(right) {
		ld, err := toDecimalValue(left)
		if err != nil {
			return 0, false, err
		}
		rd, err := toDecimalValue(right)
		if err != nil {
			return 0, false, err
		}
		return ld.Cmp(rd), false, nil
	}
	switch l := left.(type) {
	case string:
		r, ok := right.(string)
		if !ok {
			return 0, false, fmt.Errorf("exec: cannot compare VARCHAR with %T", right)
		}
		return strings.Compare(l, r), false, nil
	case bool:
		r, ok := right.(bool)
		if !ok {
			return 0, false, fmt.Errorf("exec: cannot compare BOOLEAN with %T", right)
		}
		if l == r {
			return 0, false, nil
		}
		if !l && r {
			return -1, false, nil
		}
		return 1, false, nil
	case time.Time:
		r, ok := right.(time.Time)
		if !ok {
			return 0, false, fmt.Errorf("exec: cannot compare DATE/TIMESTAMP with %T", right)
		}
		switch {
		case l.Before(r):
			return -1, false, nil
		case l.After(r):
			return 1, false, nil
		default:
			return 0, false, nil
		}
	default:
		return 0, false, fmt.Errorf("exec: unsupported comparison operand type %T", left)
	}
}

func stringifyValue(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case decimal.Decimal:
		return t.String(), nil
	case bool:
		if t {
			return "TRUE", nil
		}
		return "FALSE", nil
	case time.Time:
		return t.Format(time.RFC3339), nil
	default:
		return "", fmt.Errorf("exec: cannot convert %T to VARCHAR", v)
	}
}

// formatValue renders a decoded/evaluated value the way Result.Rows reports
// it: plain text, NULL spelled out, decimals via their own canonical string
// form rather than float formatting.
func formatValue(v interface{}) (string, error) {
	if v == nil {
		return "NULL", nil
	}
	switch t := v.(type) {
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case decimal.Decimal:
		return t.String(), nil
	case string:
		return t, nil
	case bool:
		if t {
			return "TRUE", nil
		}
		return "FALSE", nil
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format("2006-01-02"), nil
		}
		return t.Format(time.RFC3339), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

// parseTemporal parses a DATE/TIMESTAMP literal the same way
// internal/binder/coerce.go's parsesAsTemporal validates one, so a value the
// binder accepted at bind time is guaranteed to parse here too.
func parseTemporal(value string, target parser.DataType) (time.Time, error) {
	if target == parser.DataTypeDate {
		t, err := time.Parse("2006-01-02", value)
		if err != nil {
			return time.Time{}, fmt.Errorf("exec: invalid DATE literal %s", value)
		}
		return t, nil
	}
	layouts := []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("exec: invalid TIMESTAMP literal %s", value)
}

// coerceValueForColumn converts a runtime-evaluated expression value into the
// Go representation EncodeRow expects for col, validating range/length/
// precision the same way internal/binder/coerce.go validates literal text at
// bind time.
func coerceValueForColumn(v interface{}, col catalog.Column) (interface{}, error) {
	if v == nil {
		if col.NotNull {
			return nil, fmt.Errorf("exec: column %s does not allow NULL", col.Name)
		}
		return nil, nil
	}
	switch col.Type {
	case catalog.ColumnTypeInt:
		d, err := toDecimalValue(v)
		if err != nil {
			return nil, fmt.Errorf("exec: column %s expects an INT value: %w", col.Name, err)
		}
		return int32(d.IntPart()), nil
	case catalog.ColumnTypeBigInt:
		d, err := toDecimalValue(v)
		if err != nil {
			return nil, fmt.Errorf("exec: column %s expects a BIGINT value: %w", col.Name, err)
		}
		return d.IntPart(), nil
	case catalog.ColumnTypeDecimal:
		d, err := toDecimalValue(v)
		if err != nil {
			return nil, fmt.Errorf("exec: column %s expects a DECIMAL value: %w", col.Name, err)
		}
		return validateDecimalColumn(d, col)
	case catalog.ColumnTypeVarChar:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("exec: column %s expects a VARCHAR value", col.Name)
		}
		if col.Length > 0 && len(s) > col.Length {
			return nil, fmt.Errorf("exec: value for column %s exceeds length %d", col.Name, col.Length)
		}
		return s, nil
	case catalog.ColumnTypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("exec: column %s expects a BOOLEAN value", col.Name)
		}
		return b, nil
	case catalog.ColumnTypeDate:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Truncate(24 * time.Hour), nil
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("exec: column %s expects a DATE value", col.Name)
		}
		return parseTemporal(s, parser.DataTypeDate)
	case catalog.ColumnTypeTimestamp:
		if t, ok := v.(time.Time); ok {
			return t, nil
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("exec: column %s expects a TIMESTAMP value", col.Name)
		}
		return parseTemporal(s, parser.DataTypeTimestamp)
	default:
		return nil, fmt.Errorf("exec: unsupported column type for %s", col.Name)
	}
}

func validateDecimalColumn(d decimal.Decimal, col catalog.Column) (decimal.Decimal, error) {
	scaled := d.Round(int32(col.Scale))
	if int(-d.Exponent()) > col.Scale && !d.Equal(scaled) {
		return decimal.Decimal{}, fmt.Errorf("exec: value %s exceeds scale %d of DECIMAL(%d,%d)", d.String(), col.Scale, col.Precision, col.Scale)
	}
	digits := len(strings.TrimLeft(scaled.Abs().Shift(int32(col.Scale)).Truncate(0).Coefficient().String(), "0"))
	if digits == 0 {
		digits = 1
	}
	if digits > col.Precision {
		return decimal.Decimal{}, fmt.Errorf("exec: value %s exceeds precision %d of DECIMAL(%d,%d)", d.String(), col.Precision, col.Precision, col.Scale)
	}
	return scaled, nil
}

// compareColumn orders two already-decoded column values of the same
// catalog type, honouring SQL's NULLS-first ordering convention.
func compareColumn(column catalog.Column, left, right interface{}) int {
	if left == nil && right == nil {
		return 0
	}
	if left == nil {
		return -1
	}
	if right == nil {
		return 1
	}
	cmp, unknown, err := compareValues(left, right)
	if err != nil || unknown {
		return 0
	}
	return cmp
}
