// Package tds provides the Dataverse TDS endpoint dialect. The endpoint
// speaks T-SQL and projects choice and lookup labels as virtual
// "{attribute}name" columns, so no metadata joins are needed.
package tds

import "github.com/modelstack-labs/tmdlgen/pkg/dialect"

// Config is the DataverseTDS dialect configuration.
var Config = &dialect.Dialect{
	Name:               "tds",
	QuoteStart:         "[",
	QuoteEnd:           "]",
	SchemaPrefix:       "dbo",
	VirtualNameColumns: true,
	NowExpr:            "GETUTCDATE()",

	PartitionSourceExpr: `Sql.Database(Server, Database, [Query="%s"])`,
}

func init() {
	dialect.Register(Config)
}
