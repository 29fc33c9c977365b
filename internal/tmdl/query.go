package tmdl

import (
	"strings"

	"github.com/modelstack-labs/tmdlgen/internal/calendar"
	"github.com/modelstack-labs/tmdlgen/internal/metadata"
	"github.com/modelstack-labs/tmdlgen/pkg/dialect"
)

// labelSuffix is the Dataverse convention for display-name companions of
// choice and lookup columns: "{attribute}name".
const labelSuffix = "name"

// buildQuery assembles the dialect-specific partition SELECT for one table:
// base columns, label columns (virtual or join-resolved depending on the
// connector), calendar-wrapped datetime expressions, and the translated view
// filter. The output is a single line so it embeds cleanly in an M query.
func buildQuery(d *dialect.Dialect, t metadata.ExportTable, cal *calendar.Generator) string {
	wrapped := map[string]metadata.WrappedField{}
	if cal != nil {
		for _, wf := range cal.WrappedFieldsFor(t.LogicalName) {
			wrapped[wf.Field] = wf
		}
	}

	var cols []string
	var joins []dialect.Join

	for _, a := range t.Attributes {
		col := d.ColumnRef(a.LogicalName)

		switch {
		case a.Type.IsDateKind():
			if wf, ok := wrapped[a.LogicalName]; ok && cal != nil {
				cols = append(cols, cal.WrapExpression(d, a.LogicalName, wf.ConvertToDateOnly)+" AS "+col)
			} else {
				cols = append(cols, col)
			}
		case a.Type.IsChoiceKind() && a.Type != metadata.TypeMultiSelectPicklist:
			cols = append(cols, col)
			expr, join := d.LabelRef(t.LogicalName, a.LogicalName, false)
			if join != nil {
				joins = appendJoin(joins, *join)
			}
			cols = append(cols, expr+" AS "+d.QuoteIdent(a.LogicalName+labelSuffix))
		case a.Type.IsLookupKind():
			cols = append(cols, col)
			// Lookup display names are only materialized by connectors
			// with virtual name columns.
			if d.VirtualNameColumns {
				cols = append(cols, d.QuoteIdent(a.LogicalName+labelSuffix))
			}
		default:
			cols = append(cols, col)
		}
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(" FROM ")
	b.WriteString(d.TableRef(t.LogicalName))

	for _, j := range joins {
		b.WriteString(" ")
		b.WriteString(j.Render())
	}
	for _, j := range t.FilterJoins {
		if !containsJoin(joins, j) {
			b.WriteString(" ")
			b.WriteString(j)
		}
	}
	if t.FilterWhere != "" {
		b.WriteString(" WHERE ")
		b.WriteString(t.FilterWhere)
	}
	return b.String()
}

func appendJoin(joins []dialect.Join, j dialect.Join) []dialect.Join {
	for _, existing := range joins {
		if existing.Alias == j.Alias {
			return joins
		}
	}
	return append(joins, j)
}

func containsJoin(joins []dialect.Join, rendered string) bool {
	for _, j := range joins {
		if j.Render() == rendered {
			return true
		}
	}
	return false
}
