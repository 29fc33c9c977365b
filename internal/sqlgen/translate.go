// Package sqlgen translates a parsed FetchXML filter tree into a SQL boolean
// expression under one connector dialect. Values are inlined with
// dialect-aware escaping and typing; unsupported operators degrade to
// warnings instead of failing the surrounding table build.
package sqlgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/modelstack-labs/tmdlgen/internal/fetchxml"
	"github.com/modelstack-labs/tmdlgen/internal/metadata"
	"github.com/modelstack-labs/tmdlgen/pkg/dialect"
	"github.com/modelstack-labs/tmdlgen/pkg/dialects/fabric"
	"github.com/modelstack-labs/tmdlgen/pkg/dialects/tds"
)

// ForMode returns the dialect for a connection mode.
func ForMode(mode metadata.ConnectionMode) *dialect.Dialect {
	if mode == metadata.ModeFabricLink {
		return fabric.Config
	}
	return tds.Config
}

// Warning records a filter fragment that could not be translated and was
// dropped from the emitted WHERE clause. The caller surfaces these as
// partial-support notices.
type Warning struct {
	Attribute string
	Operator  fetchxml.Operator
	Message   string
}

// Result is the outcome of translating one filter tree.
type Result struct {
	// Where is the boolean expression, without the WHERE keyword. Empty
	// when the filter had no translatable conditions.
	Where string
	// Joins are extra joins required by label-resolving predicates.
	Joins []dialect.Join
	// Warnings lists dropped fragments.
	Warnings []Warning
}

// Translator translates filters of one table under one dialect.
type Translator struct {
	d     *dialect.Dialect
	table string
	attrs map[string]metadata.AttributeInfo
}

// NewTranslator creates a translator for the given table. attrs are the
// table's known attributes, used to type condition values.
func NewTranslator(d *dialect.Dialect, table string, attrs []metadata.AttributeInfo) *Translator {
	byName := make(map[string]metadata.AttributeInfo, len(attrs))
	for _, a := range attrs {
		byName[a.LogicalName] = a
	}
	return &Translator{d: d, table: table, attrs: byName}
}

// Translate walks the filter tree and returns the SQL predicate. A nil or
// empty filter yields an empty Where.
func (t *Translator) Translate(f *fetchxml.Filter) Result {
	var res Result
	if f.Empty() {
		return res
	}
	res.Where = t.filter(f, &res, true)
	return res
}

// filter renders one filter node. Nested nodes are parenthesized; the top
// level is left bare for the caller's WHERE clause.
func (t *Translator) filter(f *fetchxml.Filter, res *Result, top bool) string {
	var parts []string
	for _, c := range f.Conditions {
		if expr, ok := t.condition(c, res); ok {
			parts = append(parts, expr)
		}
	}
	for _, nested := range f.Filters {
		if expr := t.filter(nested, res, false); expr != "" {
			parts = append(parts, expr)
		}
	}
	if len(parts) == 0 {
		return ""
	}

	sep := " AND "
	if f.Type == fetchxml.FilterOr {
		sep = " OR "
	}
	joined := strings.Join(parts, sep)
	if top || len(parts) == 1 {
		return joined
	}
	return "(" + joined + ")"
}

func (t *Translator) condition(c fetchxml.Condition, res *Result) (string, bool) {
	attr, known := t.attrs[c.Attribute]
	if !known {
		attr = metadata.AttributeInfo{LogicalName: c.Attribute, Type: metadata.TypeString}
	}
	col := t.d.ColumnRef(c.Attribute)

	switch c.Operator {
	case fetchxml.OpEq, fetchxml.OpNe, fetchxml.OpGt, fetchxml.OpGe, fetchxml.OpLt, fetchxml.OpLe:
		lhs, rhs, ok := t.comparison(attr, c, res)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("%s %s %s", lhs, comparisonOp(c.Operator), rhs), true

	case fetchxml.OpLike:
		return fmt.Sprintf("%s LIKE %s", col, t.d.StringLiteral(c.Value)), true
	case fetchxml.OpNotLike:
		return fmt.Sprintf("%s NOT LIKE %s", col, t.d.StringLiteral(c.Value)), true

	case fetchxml.OpIn, fetchxml.OpNotIn:
		if len(c.Values) == 0 {
			t.warn(res, c, "in/not-in condition has no values")
			return "", false
		}
		vals := make([]string, 0, len(c.Values))
		for _, v := range c.Values {
			rendered, ok := t.value(attr, v, c, res)
			if !ok {
				return "", false
			}
			vals = append(vals, rendered)
		}
		op := "IN"
		if c.Operator == fetchxml.OpNotIn {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", col, op, strings.Join(vals, ", ")), true

	case fetchxml.OpNull:
		return col + " IS NULL", true
	case fetchxml.OpNotNull:
		return col + " IS NOT NULL", true

	case fetchxml.OpOn:
		return fmt.Sprintf("%s = %s", t.d.CastDate(col), t.d.StringLiteral(c.Value)), true
	case fetchxml.OpOnOrBefore:
		return fmt.Sprintf("%s <= %s", t.d.CastDate(col), t.d.StringLiteral(c.Value)), true
	case fetchxml.OpOnOrAfter:
		return fmt.Sprintf("%s >= %s", t.d.CastDate(col), t.d.StringLiteral(c.Value)), true

	case fetchxml.OpLastXDays:
		n, err := strconv.Atoi(c.Value)
		if err != nil {
			t.warn(res, c, "last-x-days requires an integer value")
			return "", false
		}
		return fmt.Sprintf("%s >= %s", col, t.d.DateAdd("day", -n, t.d.Now())), true
	case fetchxml.OpNextXDays:
		n, err := strconv.Atoi(c.Value)
		if err != nil {
			t.warn(res, c, "next-x-days requires an integer value")
			return "", false
		}
		return fmt.Sprintf("(%s >= %s AND %s <= %s)", col, t.d.Now(), col, t.d.DateAdd("day", n, t.d.Now())), true

	case fetchxml.OpToday:
		return fmt.Sprintf("%s = %s", t.d.CastDate(col), t.d.CastDate(t.d.Now())), true
	case fetchxml.OpYesterday:
		return fmt.Sprintf("%s = %s", t.d.CastDate(col), t.d.CastDate(t.d.DateAdd("day", -1, t.d.Now()))), true
	case fetchxml.OpThisYear:
		return fmt.Sprintf("%s = %s", t.d.Year(col), t.d.Year(t.d.Now())), true
	}

	t.warn(res, c, fmt.Sprintf("operator %q is not supported", c.Operator))
	return "", false
}

// comparison resolves the left- and right-hand side of a comparison
// predicate. Choice attributes compared against a non-numeric value switch
// to the dialect's label resolution (virtual name column or metadata join).
func (t *Translator) comparison(attr metadata.AttributeInfo, c fetchxml.Condition, res *Result) (string, string, bool) {
	if attr.Type.IsChoiceKind() && !isNumeric(c.Value) {
		expr, join := t.d.LabelRef(t.table, attr.LogicalName, false)
		if join != nil {
			res.Joins = appendJoin(res.Joins, *join)
		}
		return expr, t.d.StringLiteral(c.Value), true
	}

	rhs, ok := t.value(attr, c.Value, c, res)
	if !ok {
		return "", "", false
	}
	return t.d.ColumnRef(attr.LogicalName), rhs, true
}

// value renders a condition value according to the attribute type.
func (t *Translator) value(attr metadata.AttributeInfo, raw string, c fetchxml.Condition, res *Result) (string, bool) {
	switch {
	case attr.Type.IsNumeric() || attr.Type.IsChoiceKind():
		if !isNumeric(raw) {
			t.warn(res, c, fmt.Sprintf("value %q is not numeric for attribute type %s", raw, attr.Type))
			return "", false
		}
		return raw, true
	case attr.Type.IsDateKind():
		return t.d.StringLiteral(raw), true
	default:
		return t.d.StringLiteral(raw), true
	}
}

func (t *Translator) warn(res *Result, c fetchxml.Condition, msg string) {
	res.Warnings = append(res.Warnings, Warning{
		Attribute: c.Attribute,
		Operator:  c.Operator,
		Message:   msg,
	})
}

func comparisonOp(op fetchxml.Operator) string {
	switch op {
	case fetchxml.OpEq:
		return "="
	case fetchxml.OpNe:
		return "<>"
	case fetchxml.OpGt:
		return ">"
	case fetchxml.OpGe:
		return ">="
	case fetchxml.OpLt:
		return "<"
	default:
		return "<="
	}
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func appendJoin(joins []dialect.Join, j dialect.Join) []dialect.Join {
	for _, existing := range joins {
		if existing.Alias == j.Alias {
			return joins
		}
	}
	return append(joins, j)
}
