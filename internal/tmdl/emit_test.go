package tmdl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelstack-labs/tmdlgen/internal/calendar"
	"github.com/modelstack-labs/tmdlgen/internal/metadata"
	"github.com/modelstack-labs/tmdlgen/pkg/dialects/fabric"
	"github.com/modelstack-labs/tmdlgen/pkg/dialects/tds"
)

func testModel() *Model {
	return &Model{
		Name:           "Sales",
		ConnectionMode: metadata.ModeTDS,
		Source:         DataSource{Server: "org.crm.dynamics.com", Database: "org"},
		Tables: []metadata.ExportTable{
			{
				LogicalName:        "opportunity",
				DisplayName:        "Opportunity",
				PrimaryIDAttribute: "opportunityid",
				Role:               metadata.RoleFact,
				StorageMode:        metadata.StorageDirectQuery,
				Attributes: []metadata.ExportAttribute{
					{LogicalName: "estimatedvalue", DisplayName: "Est. Value", Type: metadata.TypeMoney},
					{LogicalName: "name", DisplayName: "Topic", Type: metadata.TypeString},
					{LogicalName: "opportunityid", DisplayName: "Opportunity ID", Type: metadata.TypeUniqueIdentifier},
					{LogicalName: "parentaccountid", DisplayName: "Account", Type: metadata.TypeLookup},
					{LogicalName: "statuscode", DisplayName: "Status Reason", Type: metadata.TypeStatus},
				},
			},
			{
				LogicalName:        "account",
				DisplayName:        "Account",
				PrimaryIDAttribute: "accountid",
				Role:               metadata.RoleDimension,
				StorageMode:        metadata.StorageDirectQuery,
				Attributes: []metadata.ExportAttribute{
					{LogicalName: "accountid", DisplayName: "Account ID", Type: metadata.TypeUniqueIdentifier},
					{LogicalName: "name", DisplayName: "Account Name", Type: metadata.TypeString},
				},
			},
		},
		Relationships: []metadata.ExportRelationship{
			{
				FromTable: "opportunity", FromColumn: "parentaccountid",
				ToTable: "account", ToColumn: "accountid",
				IsActive: true, AssumeReferentialIntegrity: true,
			},
		},
	}
}

func TestEmitProjectFiles(t *testing.T) {
	p, diags, err := NewEmitter(tds.Config).Emit(testModel())
	require.NoError(t, err)
	assert.Empty(t, diags)

	assert.Equal(t, []string{
		DatabaseFile,
		ExpressionsFile,
		ModelFile,
		RelationshipsFile,
		"definition/tables/Account.tmdl",
		"definition/tables/Opportunity.tmdl",
	}, p.Paths())
	assert.Equal(t, "definition/tables/Opportunity.tmdl", p.TableFiles["opportunity"])
}

func TestEmitDeterministic(t *testing.T) {
	a, _, err := NewEmitter(tds.Config).Emit(testModel())
	require.NoError(t, err)
	b, _, err := NewEmitter(tds.Config).Emit(testModel())
	require.NoError(t, err)
	require.Equal(t, a.Paths(), b.Paths())
	for _, f := range a.Paths() {
		assert.Equal(t, a.Files[f], b.Files[f], f)
	}
}

func TestEmitLineEndings(t *testing.T) {
	p, _, err := NewEmitter(tds.Config).Emit(testModel())
	require.NoError(t, err)
	for f, content := range p.Files {
		assert.True(t, strings.HasSuffix(content, "\r\n"), "%s missing trailing CRLF", f)
		for i, line := range strings.Split(content, "\r\n") {
			assert.NotContains(t, line, "\n", "%s line %d has bare LF", f, i)
			assert.False(t, strings.HasPrefix(line, " "), "%s line %d indented with spaces", f, i)
		}
	}
}

func TestEmitTableContent(t *testing.T) {
	p, _, err := NewEmitter(tds.Config).Emit(testModel())
	require.NoError(t, err)
	content := p.Files["definition/tables/Opportunity.tmdl"]

	assert.Contains(t, content, "table Opportunity\r\n")
	assert.Contains(t, content, "annotation tmdlgen_source = opportunity")
	assert.Contains(t, content, "annotation tmdlgen_storage = directQuery")
	assert.Contains(t, content, "column 'Est. Value'\r\n\t\tdataType: decimal")
	assert.Contains(t, content, "summarizeBy: sum")
	// choice and lookup attributes get linked label columns under TDS
	assert.Contains(t, content, "column 'Status Reason Label'")
	assert.Contains(t, content, "sourceColumn: statuscodename")
	assert.Contains(t, content, "column 'Account Label'")
	assert.Contains(t, content, "sourceColumn: parentaccountidname")

	assert.Contains(t, content, "measure 'Opportunity Row Count' = COUNTROWS('Opportunity')")
	assert.Contains(t, content, "measure 'Sum of Est. Value' = SUM('Opportunity'[Est. Value])")

	assert.Contains(t, content, "partition Opportunity = m")
	assert.Contains(t, content, "mode: directQuery")
	assert.Contains(t, content, `Sql.Database(Server, Database, [Query="SELECT `)
	// SQL quotes are doubled inside the M literal
	assert.Contains(t, content, `AS [statuscodename]`)
}

func TestEmitDimensionMeasure(t *testing.T) {
	p, _, err := NewEmitter(tds.Config).Emit(testModel())
	require.NoError(t, err)
	content := p.Files["definition/tables/Account.tmdl"]
	assert.Contains(t, content, "measure 'Account Count' = DISTINCTCOUNT('Account'[Account ID])")
}

func TestEmitFabricSkipsLookupLabels(t *testing.T) {
	p, _, err := NewEmitter(fabric.Config).Emit(testModel())
	require.NoError(t, err)
	content := p.Files["definition/tables/Opportunity.tmdl"]
	// choice labels come from metadata joins, lookup labels are unavailable
	assert.Contains(t, content, "column 'Status Reason Label'")
	assert.NotContains(t, content, "column 'Account Label'")
	assert.Contains(t, content, "JOIN [dbo].[OptionsetMetadata]")

	// the Lakehouse endpoint gets its own M connector shape
	assert.Contains(t, content, `Source = Value.NativeQuery(Sql.Database(Server, Database), "SELECT `)
	assert.NotContains(t, content, `[Query=`)
}

func TestEmitModelFile(t *testing.T) {
	p, _, err := NewEmitter(tds.Config).Emit(testModel())
	require.NoError(t, err)
	content := p.Files[ModelFile]
	assert.Contains(t, content, "annotation tmdlgen_mode = tds")
	// sorted refs
	refs := []string{}
	for _, l := range strings.Split(content, "\r\n") {
		if strings.HasPrefix(l, "ref table ") {
			refs = append(refs, l)
		}
	}
	assert.Equal(t, []string{"ref table Account", "ref table Opportunity"}, refs)
}

func TestEmitExpressionsFile(t *testing.T) {
	p, _, err := NewEmitter(tds.Config).Emit(testModel())
	require.NoError(t, err)

	content := p.Files[ExpressionsFile]
	assert.Contains(t, content, `expression Server = "org.crm.dynamics.com" meta [IsParameterQuery = true`)
	assert.Contains(t, content, `expression Database = "org" meta `)
	assert.Contains(t, content, "annotation PBI_ResultType = Text")
}

func TestEmitRelationshipNamesStable(t *testing.T) {
	e := NewEmitter(tds.Config)
	a, _, err := e.Emit(testModel())
	require.NoError(t, err)
	b, _, err := e.Emit(testModel())
	require.NoError(t, err)
	assert.Equal(t, a.Files[RelationshipsFile], b.Files[RelationshipsFile])

	content := a.Files[RelationshipsFile]
	assert.Contains(t, content, "fromColumn: Opportunity.Account")
	assert.Contains(t, content, "toColumn: Account.'Account ID'")
	assert.Contains(t, content, "relyOnReferentialIntegrity")
	assert.NotContains(t, content, "isActive: false")
}

func TestEmitCalendarTable(t *testing.T) {
	m := testModel()
	gen := calendar.New(metadata.DateTableConfig{
		PrimaryTable:   "opportunity",
		PrimaryField:   "createdon",
		TimeZone:       "UTC",
		UTCOffsetHours: 0,
		StartYear:      2023,
		EndYear:        2024,
	})
	m.Calendar = gen
	m.Tables[0].Attributes = append(m.Tables[0].Attributes, metadata.ExportAttribute{
		LogicalName: "createdon", DisplayName: "Created On", Type: metadata.TypeDateTime,
	})

	p, _, err := NewEmitter(tds.Config).Emit(m)
	require.NoError(t, err)

	content := p.Files["definition/tables/Date.tmdl"]
	assert.Contains(t, content, "table Date")
	assert.Contains(t, content, "dataCategory: Time")
	assert.Contains(t, content, "partition Date = calculated")
	assert.Contains(t, content, "ADDCOLUMNS(")
	assert.Contains(t, content, "isKey")
	assert.Contains(t, content, "annotation tmdlgen_source = _calendar")

	rels := p.Files[RelationshipsFile]
	assert.Contains(t, rels, "fromColumn: Opportunity.'Created On'")
	assert.Contains(t, rels, "toColumn: Date.Date")
}

func TestEmitUnknownTypeDiagnostic(t *testing.T) {
	m := testModel()
	m.Tables[0].Attributes = append(m.Tables[0].Attributes, metadata.ExportAttribute{
		LogicalName: "custom_blob", DisplayName: "Blob", Type: metadata.AttributeType("Virtual"),
	})
	p, diags, err := NewEmitter(tds.Config).Emit(m)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "opportunity", diags[0].Table)
	assert.Equal(t, "custom_blob", diags[0].Attribute)
	assert.Contains(t, p.Files["definition/tables/Opportunity.tmdl"],
		"column Blob\r\n\t\tdataType: string")
}
