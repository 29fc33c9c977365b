// Package fabric provides the Fabric Lakehouse SQL endpoint dialect used by
// Dataverse link to Fabric. Lakehouse SQL has no native choice-label
// materialization; labels are resolved through explicit joins against the
// OptionsetMetadata and GlobalOptionsetMetadata reference tables.
package fabric

import "github.com/modelstack-labs/tmdlgen/pkg/dialect"

// Config is the FabricLink dialect configuration.
var Config = &dialect.Dialect{
	Name:           "fabric",
	QuoteStart:     "[",
	QuoteEnd:       "]",
	SchemaPrefix:   "dbo",
	OptionsetJoins: true,
	NowExpr:        "CURRENT_TIMESTAMP",

	// the Lakehouse SQL analytics endpoint folds native queries
	PartitionSourceExpr: `Value.NativeQuery(Sql.Database(Server, Database), "%s", null, [EnableFolding=true])`,
}

func init() {
	dialect.Register(Config)
}
