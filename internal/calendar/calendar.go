// Package calendar synthesizes the generated date dimension: a standalone
// calculated table covering the configured year range, plus the
// timezone-shifted wrapped-field expressions injected into the owning
// tables' partition queries.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelstack-labs/tmdlgen/internal/metadata"
	"github.com/modelstack-labs/tmdlgen/pkg/dialect"
)

// TableName is the name of the generated date dimension table.
const TableName = "Date"

// KeyColumn is the date key column of the generated table.
const KeyColumn = "Date"

// ErrInvalidYearRange is returned when the configured end year precedes the
// start year. Caught at validation, never generated as an empty table.
var ErrInvalidYearRange = errors.New("calendar: end year precedes start year")

// ErrNoPrimaryPair is returned when no primary (table, field) pair is
// configured to receive the active relationship.
var ErrNoPrimaryPair = errors.New("calendar: no primary date table/field configured")

// Column describes one column of the generated table.
type Column struct {
	Name     string
	DataType string
}

// Columns is the fixed column set of the generated date dimension, in
// emission order.
var Columns = []Column{
	{Name: KeyColumn, DataType: "dateTime"},
	{Name: "Year", DataType: "int64"},
	{Name: "Quarter", DataType: "string"},
	{Name: "Month Number", DataType: "int64"},
	{Name: "Month Name", DataType: "string"},
	{Name: "Day", DataType: "int64"},
	{Name: "Day of Week Number", DataType: "int64"},
	{Name: "Day of Week Name", DataType: "string"},
	{Name: "ISO Week", DataType: "int64"},
	{Name: "Is Current Year", DataType: "boolean"},
	{Name: "Is Current Month", DataType: "boolean"},
	{Name: "Is Current Day", DataType: "boolean"},
}

// Generator produces the date dimension for one DateTableConfig.
type Generator struct {
	cfg metadata.DateTableConfig
}

// New creates a generator. Call Validate before generating.
func New(cfg metadata.DateTableConfig) *Generator {
	return &Generator{cfg: cfg}
}

// Config returns the underlying configuration.
func (g *Generator) Config() metadata.DateTableConfig { return g.cfg }

// Validate checks the configuration: year ordering, a resolvable timezone,
// and the presence of the primary pair.
func (g *Generator) Validate() error {
	if g.cfg.EndYear < g.cfg.StartYear {
		return fmt.Errorf("%w: start=%d end=%d", ErrInvalidYearRange, g.cfg.StartYear, g.cfg.EndYear)
	}
	if g.cfg.PrimaryTable == "" || g.cfg.PrimaryField == "" {
		return ErrNoPrimaryPair
	}
	if g.cfg.TimeZone != "" {
		if _, err := time.LoadLocation(g.cfg.TimeZone); err != nil {
			return fmt.Errorf("calendar: unknown timezone %q: %w", g.cfg.TimeZone, err)
		}
	}
	return nil
}

// RowCount returns the number of generated rows: every day from 1 Jan of the
// start year through 31 Dec of the end year, inclusive.
func (g *Generator) RowCount() int {
	start := time.Date(g.cfg.StartYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(g.cfg.EndYear, time.December, 31, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours()/24) + 1
}

// Expression returns the DAX calculated-table expression of the date
// dimension. The output is deterministic for a fixed configuration.
func (g *Generator) Expression() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ADDCOLUMNS(\n")
	fmt.Fprintf(&b, "\tCALENDAR(DATE(%d, 1, 1), DATE(%d, 12, 31)),\n", g.cfg.StartYear, g.cfg.EndYear)
	b.WriteString("\t\"Year\", YEAR([Date]),\n")
	b.WriteString("\t\"Quarter\", \"Q\" & FORMAT([Date], \"Q\"),\n")
	b.WriteString("\t\"Month Number\", MONTH([Date]),\n")
	b.WriteString("\t\"Month Name\", FORMAT([Date], \"MMMM\"),\n")
	b.WriteString("\t\"Day\", DAY([Date]),\n")
	b.WriteString("\t\"Day of Week Number\", WEEKDAY([Date], 2),\n")
	b.WriteString("\t\"Day of Week Name\", FORMAT([Date], \"dddd\"),\n")
	b.WriteString("\t\"ISO Week\", WEEKNUM([Date], 21),\n")
	b.WriteString("\t\"Is Current Year\", YEAR([Date]) = YEAR(TODAY()),\n")
	b.WriteString("\t\"Is Current Month\", YEAR([Date]) = YEAR(TODAY()) && MONTH([Date]) = MONTH(TODAY()),\n")
	b.WriteString("\t\"Is Current Day\", [Date] = TODAY()\n")
	b.WriteString(")")
	return b.String()
}

// WrapExpression returns the timezone-shifted SQL expression of one wrapped
// datetime column, optionally truncated to date-only.
func (g *Generator) WrapExpression(d *dialect.Dialect, column string, dateOnly bool) string {
	expr := d.DateAdd("hour", g.cfg.UTCOffsetHours, d.ColumnRef(column))
	if dateOnly {
		expr = d.CastDate(expr)
	}
	return expr
}

// WrappedFieldsFor returns the wrapped fields owned by the given table,
// always including the primary pair when it belongs to that table.
func (g *Generator) WrappedFieldsFor(table string) []metadata.WrappedField {
	var fields []metadata.WrappedField
	seen := map[string]bool{}
	if g.cfg.PrimaryTable == table {
		fields = append(fields, metadata.WrappedField{Table: table, Field: g.cfg.PrimaryField})
		seen[g.cfg.PrimaryField] = true
	}
	for _, wf := range g.cfg.WrappedFields {
		if wf.Table == table && !seen[wf.Field] {
			fields = append(fields, wf)
			seen[wf.Field] = true
		}
	}
	return fields
}

// Relationships returns the relationships wiring the date dimension in:
// exactly one active relationship for the primary pair, inactive
// relationships for every other wrapped field.
func (g *Generator) Relationships() []metadata.ExportRelationship {
	rels := []metadata.ExportRelationship{{
		FromTable:  g.cfg.PrimaryTable,
		FromColumn: g.cfg.PrimaryField,
		ToTable:    TableName,
		ToColumn:   KeyColumn,
		IsActive:   true,
	}}

	seen := map[string]bool{g.cfg.PrimaryTable + "|" + g.cfg.PrimaryField: true}
	for _, wf := range g.cfg.WrappedFields {
		key := wf.Table + "|" + wf.Field
		if seen[key] {
			continue
		}
		seen[key] = true
		rels = append(rels, metadata.ExportRelationship{
			FromTable:  wf.Table,
			FromColumn: wf.Field,
			ToTable:    TableName,
			ToColumn:   KeyColumn,
			IsActive:   false,
		})
	}
	metadata.SortRelationships(rels)
	return rels
}
