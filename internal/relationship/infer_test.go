package relationship

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelstack-labs/tmdlgen/internal/metadata"
)

func table(name string) metadata.TableInfo {
	return metadata.TableInfo{
		LogicalName:          name,
		DisplayName:          name,
		SchemaName:           name,
		PrimaryIDAttribute:   name + "id",
		PrimaryNameAttribute: "name",
	}
}

func lookup(name string, targets ...string) metadata.AttributeInfo {
	return metadata.AttributeInfo{
		LogicalName: name,
		DisplayName: name,
		SchemaName:  name,
		Type:        metadata.TypeLookup,
		Targets:     targets,
	}
}

func TestInfer_TwoLookupsSameTarget(t *testing.T) {
	// opportunity carries two lookups to account: exactly one edge may be
	// active, the other is declared inactive.
	in := Input{
		Tables: []metadata.TableInfo{table("opportunity"), table("account")},
		Attributes: map[string][]metadata.AttributeInfo{
			"opportunity": {
				lookup("parentaccountid", "account"),
				lookup("originatingaccountid", "account"),
			},
		},
		FactTable: "opportunity",
	}

	set, diags := Infer(in)
	require.Empty(t, diags)
	require.Len(t, set.Edges, 2)

	var activeCount int
	for _, e := range set.Edges {
		if e.IsActive {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)

	// Attribute logical name ascending breaks the tie.
	assert.Equal(t, "originatingaccountid", set.Edges[0].SourceAttribute)
	assert.True(t, set.Edges[0].IsActive)
	assert.False(t, set.Edges[1].IsActive)
}

func TestInfer_SingleActiveEdgePerTarget(t *testing.T) {
	in := Input{
		Tables: []metadata.TableInfo{
			table("opportunity"), table("account"), table("contact"),
		},
		Attributes: map[string][]metadata.AttributeInfo{
			"opportunity": {
				lookup("parentaccountid", "account"),
				lookup("parentcontactid", "contact"),
			},
			"contact": {
				lookup("accountid", "account"),
			},
		},
		FactTable: "opportunity",
	}

	set, _ := Infer(in)

	inbound := map[string]int{}
	for _, e := range set.Edges {
		if e.IsActive {
			inbound[e.TargetTable]++
		}
	}
	for target, n := range inbound {
		assert.LessOrEqual(t, n, 1, "target %s has %d active inbound edges", target, n)
	}
}

func TestInfer_FactEdgeWinsOverDimensionEdge(t *testing.T) {
	// Both the fact table and a dimension point at account. The fact edge
	// is processed first and takes the active slot.
	in := Input{
		Tables: []metadata.TableInfo{
			table("opportunity"), table("account"), table("contact"),
		},
		Attributes: map[string][]metadata.AttributeInfo{
			"contact":     {lookup("accountid", "account")},
			"opportunity": {lookup("customerid", "account")},
		},
		FactTable: "opportunity",
	}

	set, _ := Infer(in)
	for _, e := range set.Edges {
		if e.SourceTable == "opportunity" && e.TargetTable == "account" {
			assert.True(t, e.IsActive, "fact edge should be active")
		}
		if e.SourceTable == "contact" && e.TargetTable == "account" {
			assert.False(t, e.IsActive, "dimension edge should lose to fact edge")
		}
	}
}

func TestInfer_SnowflakeDepth(t *testing.T) {
	in := Input{
		Tables: []metadata.TableInfo{
			table("opportunity"), table("account"), table("industry"),
		},
		Attributes: map[string][]metadata.AttributeInfo{
			"opportunity": {lookup("parentaccountid", "account")},
			"account":     {lookup("industryid", "industry")},
		},
		FactTable: "opportunity",
	}

	set, _ := Infer(in)
	require.Len(t, set.Edges, 2)
	for _, e := range set.Edges {
		switch e.SourceTable {
		case "opportunity":
			assert.Equal(t, 0, e.SnowflakeLevel)
			assert.False(t, e.IsSnowflake)
		case "account":
			assert.Equal(t, 1, e.SnowflakeLevel)
			assert.True(t, e.IsSnowflake)
		}
	}
}

func TestInfer_ExternalTargetYieldsWarning(t *testing.T) {
	in := Input{
		Tables: []metadata.TableInfo{table("opportunity")},
		Attributes: map[string][]metadata.AttributeInfo{
			"opportunity": {lookup("parentaccountid", "account")},
		},
		FactTable: "opportunity",
	}

	set, diags := Infer(in)
	assert.Empty(t, set.Edges)
	require.Len(t, diags, 1)
	assert.Equal(t, SeverityWarning, diags[0].Severity)
	assert.Equal(t, "parentaccountid", diags[0].Attribute)
}

func TestInfer_PolymorphicLookup(t *testing.T) {
	// A customer lookup targeting both account and contact yields one edge
	// per target.
	in := Input{
		Tables: []metadata.TableInfo{
			table("opportunity"), table("account"), table("contact"),
		},
		Attributes: map[string][]metadata.AttributeInfo{
			"opportunity": {{
				LogicalName: "customerid",
				DisplayName: "Customer",
				Type:        metadata.TypeCustomer,
				Targets:     []string{"account", "contact"},
			}},
		},
		FactTable: "opportunity",
	}

	set, diags := Infer(in)
	assert.Empty(t, diags)
	require.Len(t, set.Edges, 2)
	assert.True(t, set.Edges[0].IsActive)
	assert.True(t, set.Edges[1].IsActive) // different targets, both may be active
}

func TestInfer_SelfReferenceStaysInactive(t *testing.T) {
	in := Input{
		Tables: []metadata.TableInfo{table("account")},
		Attributes: map[string][]metadata.AttributeInfo{
			"account": {lookup("parentaccountid", "account")},
		},
		FactTable: "account",
	}

	set, _ := Infer(in)
	require.Len(t, set.Edges, 1)
	assert.False(t, set.Edges[0].IsActive)
}

func TestInfer_CycleBrokenByDeactivation(t *testing.T) {
	in := Input{
		Tables: []metadata.TableInfo{table("account"), table("contact")},
		Attributes: map[string][]metadata.AttributeInfo{
			"account": {lookup("primarycontactid", "contact")},
			"contact": {lookup("accountid", "account")},
		},
		FactTable: "account",
	}

	set, _ := Infer(in)
	require.Len(t, set.Edges, 2)

	var activeCount int
	for _, e := range set.Edges {
		if e.IsActive {
			activeCount++
		}
	}
	// The edge closing the cycle is deactivated, never dropped.
	assert.Equal(t, 1, activeCount)
}

func TestInfer_Idempotent(t *testing.T) {
	in := Input{
		Tables: []metadata.TableInfo{
			table("opportunity"), table("account"), table("contact"), table("industry"),
		},
		Attributes: map[string][]metadata.AttributeInfo{
			"opportunity": {
				lookup("parentaccountid", "account"),
				lookup("parentcontactid", "contact"),
				lookup("originatingaccountid", "account"),
			},
			"account": {lookup("industryid", "industry")},
			"contact": {lookup("accountid", "account")},
		},
		FactTable: "opportunity",
	}

	first, _ := Infer(in)
	second, _ := Infer(in)
	assert.Equal(t, first.Edges, second.Edges)
}

func TestExport_ResolvesPrimaryKeyColumns(t *testing.T) {
	tables := []metadata.TableInfo{table("opportunity"), table("account")}
	in := Input{
		Tables: tables,
		Attributes: map[string][]metadata.AttributeInfo{
			"opportunity": {lookup("parentaccountid", "account")},
		},
		FactTable: "opportunity",
	}

	set, _ := Infer(in)
	rels := Export(set, tables)
	require.Len(t, rels, 1)
	assert.Equal(t, "opportunity", rels[0].FromTable)
	assert.Equal(t, "parentaccountid", rels[0].FromColumn)
	assert.Equal(t, "account", rels[0].ToTable)
	assert.Equal(t, "accountid", rels[0].ToColumn)
}
