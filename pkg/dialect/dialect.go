// Package dialect defines the connector-dialect contract shared by the query
// translator and the TMDL emitter. A dialect describes how one SQL-reachable
// Dataverse connector spells identifiers, literals, date arithmetic, and
// option-set label resolution. Concrete dialects are registered from
// pkg/dialects/*/ packages; the dialect is selected once per build from the
// connection mode, never per statement.
package dialect

import (
	"fmt"
	"strings"
)

// Join is an extra join a predicate or projection requires, e.g. the
// option-set metadata joins of the Fabric Lakehouse connector.
type Join struct {
	Table string // quoted table reference
	Alias string
	On    string
}

// Render returns the JOIN clause text.
func (j Join) Render() string {
	return fmt.Sprintf("JOIN %s AS %s ON %s", j.Table, j.Alias, j.On)
}

// Dialect is the configuration of one connector dialect. It is pure data
// plus spelling helpers; it holds no connection state.
type Dialect struct {
	Name string

	// Identifier quoting.
	QuoteStart string
	QuoteEnd   string

	// SchemaPrefix qualifies table names (e.g. "dbo").
	SchemaPrefix string

	// VirtualNameColumns: the connector materializes choice and lookup
	// labels as virtual "{attribute}name" columns (Dataverse TDS endpoint).
	VirtualNameColumns bool

	// OptionsetJoins: labels live in OptionsetMetadata reference tables and
	// must be joined explicitly (Fabric Lakehouse SQL has no native choice
	// label materialization).
	OptionsetJoins bool

	// NowExpr is the current-timestamp expression.
	NowExpr string

	// PartitionSourceExpr is the M source expression of a generated
	// partition; %s receives the escaped SQL query text. The Server and
	// Database identifiers refer to the shared M parameters.
	PartitionSourceExpr string
}

// PartitionSource renders the M source expression around an escaped query.
func (d *Dialect) PartitionSource(query string) string {
	return fmt.Sprintf(d.PartitionSourceExpr, query)
}

// QuoteIdent quotes a single identifier.
func (d *Dialect) QuoteIdent(name string) string {
	return d.QuoteStart + name + d.QuoteEnd
}

// TableRef returns the schema-qualified quoted table reference.
func (d *Dialect) TableRef(logicalName string) string {
	if d.SchemaPrefix == "" {
		return d.QuoteIdent(logicalName)
	}
	return d.QuoteIdent(d.SchemaPrefix) + "." + d.QuoteIdent(logicalName)
}

// ColumnRef returns the quoted reference of a base column.
func (d *Dialect) ColumnRef(attribute string) string {
	return d.QuoteIdent(attribute)
}

// StringLiteral renders v as a SQL string literal with quotes escaped.
func (d *Dialect) StringLiteral(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// LabelRef returns an expression that resolves the localized label of a
// choice attribute, plus the join it requires (nil when the connector
// virtualizes labels as columns). global selects the shared option-set
// metadata table.
func (d *Dialect) LabelRef(table, attribute string, global bool) (string, *Join) {
	if d.VirtualNameColumns {
		return d.QuoteIdent(attribute + "name"), nil
	}

	alias := "opt_" + attribute
	metaTable := "OptionsetMetadata"
	nameCol := "OptionSetName"
	if global {
		metaTable = "GlobalOptionsetMetadata"
		nameCol = "GlobalOptionSetName"
	}

	var on strings.Builder
	if !global {
		fmt.Fprintf(&on, "%s.%s = %s AND ", alias, d.QuoteIdent("EntityName"), d.StringLiteral(table))
	}
	fmt.Fprintf(&on, "%s.%s = %s AND %s.%s = %s AND %s.%s = 1",
		alias, d.QuoteIdent(nameCol), d.StringLiteral(attribute),
		alias, d.QuoteIdent("Option"), d.ColumnRef(attribute),
		alias, d.QuoteIdent("IsUserLocalizedLabel"))

	join := &Join{Table: d.TableRef(metaTable), Alias: alias, On: on.String()}
	return alias + "." + d.QuoteIdent("LocalizedLabel"), join
}

// DateAdd renders date arithmetic: DATEADD(unit, n, expr).
func (d *Dialect) DateAdd(unit string, n int, expr string) string {
	return fmt.Sprintf("DATEADD(%s, %d, %s)", unit, n, expr)
}

// CastDate truncates a datetime expression to its date part.
func (d *Dialect) CastDate(expr string) string {
	return fmt.Sprintf("CAST(%s AS date)", expr)
}

// Year extracts the year of a datetime expression.
func (d *Dialect) Year(expr string) string {
	return fmt.Sprintf("YEAR(%s)", expr)
}

// Now returns the current-timestamp expression.
func (d *Dialect) Now() string {
	return d.NowExpr
}
