package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelstack-labs/tmdlgen/internal/fetchxml"
	"github.com/modelstack-labs/tmdlgen/internal/metadata"
	"github.com/modelstack-labs/tmdlgen/pkg/dialects/fabric"
	"github.com/modelstack-labs/tmdlgen/pkg/dialects/tds"
)

var opportunityAttrs = []metadata.AttributeInfo{
	{LogicalName: "statecode", Type: metadata.TypeState},
	{LogicalName: "statuscode", Type: metadata.TypeStatus},
	{LogicalName: "industrycode", Type: metadata.TypePicklist},
	{LogicalName: "estimatedvalue", Type: metadata.TypeMoney},
	{LogicalName: "name", Type: metadata.TypeString},
	{LogicalName: "createdon", Type: metadata.TypeDateTime},
	{LogicalName: "parentaccountid", Type: metadata.TypeLookup, Targets: []string{"account"}},
}

func parseFilter(t *testing.T, raw string) *fetchxml.Filter {
	t.Helper()
	doc, err := fetchxml.Parse(raw, "test")
	require.NoError(t, err)
	require.NotNil(t, doc.Filter)
	return doc.Filter
}

func TestTranslate_SimpleEquality(t *testing.T) {
	f := parseFilter(t, `<filter type="and"><condition attribute="statecode" operator="eq" value="0"/></filter>`)

	tr := NewTranslator(tds.Config, "opportunity", opportunityAttrs)
	res := tr.Translate(f)

	assert.Equal(t, "[statecode] = 0", res.Where)
	assert.Empty(t, res.Joins)
	assert.Empty(t, res.Warnings)
}

func TestTranslate_NestedOrParenthesization(t *testing.T) {
	f := parseFilter(t, `<filter type="and">
      <condition attribute="statecode" operator="eq" value="0"/>
      <filter type="or">
        <condition attribute="estimatedvalue" operator="gt" value="10000"/>
        <condition attribute="name" operator="like" value="%Contoso%"/>
      </filter>
    </filter>`)

	tr := NewTranslator(tds.Config, "opportunity", opportunityAttrs)
	res := tr.Translate(f)

	assert.Equal(t, "[statecode] = 0 AND ([estimatedvalue] > 10000 OR [name] LIKE '%Contoso%')", res.Where)
}

func TestTranslate_PicklistLabel_TDSVirtualColumn(t *testing.T) {
	f := parseFilter(t, `<filter type="and"><condition attribute="statuscode" operator="eq" value="Won"/></filter>`)

	tr := NewTranslator(tds.Config, "opportunity", opportunityAttrs)
	res := tr.Translate(f)

	assert.Equal(t, "[statuscodename] = 'Won'", res.Where)
	assert.Empty(t, res.Joins)
}

func TestTranslate_PicklistLabel_FabricJoin(t *testing.T) {
	f := parseFilter(t, `<filter type="and"><condition attribute="statuscode" operator="eq" value="Won"/></filter>`)

	tr := NewTranslator(fabric.Config, "opportunity", opportunityAttrs)
	res := tr.Translate(f)

	assert.Equal(t, "opt_statuscode.[LocalizedLabel] = 'Won'", res.Where)
	require.Len(t, res.Joins, 1)
	assert.Equal(t, "[dbo].[OptionsetMetadata]", res.Joins[0].Table)
}

func TestTranslate_FabricJoinDeduplicated(t *testing.T) {
	f := parseFilter(t, `<filter type="or">
      <condition attribute="statuscode" operator="eq" value="Won"/>
      <condition attribute="statuscode" operator="eq" value="Lost"/>
    </filter>`)

	tr := NewTranslator(fabric.Config, "opportunity", opportunityAttrs)
	res := tr.Translate(f)

	assert.Len(t, res.Joins, 1)
}

func TestTranslate_InOperator(t *testing.T) {
	f := parseFilter(t, `<filter type="and">
      <condition attribute="industrycode" operator="in">
        <value>1</value><value>2</value><value>7</value>
      </condition>
    </filter>`)

	tr := NewTranslator(tds.Config, "opportunity", opportunityAttrs)
	res := tr.Translate(f)

	assert.Equal(t, "[industrycode] IN (1, 2, 7)", res.Where)
}

func TestTranslate_NullOperators(t *testing.T) {
	f := parseFilter(t, `<filter type="and">
      <condition attribute="parentaccountid" operator="null"/>
      <condition attribute="name" operator="not-null"/>
    </filter>`)

	tr := NewTranslator(tds.Config, "opportunity", opportunityAttrs)
	res := tr.Translate(f)

	assert.Equal(t, "[parentaccountid] IS NULL AND [name] IS NOT NULL", res.Where)
}

func TestTranslate_DateOperators(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{
			"on",
			`<condition attribute="createdon" operator="on" value="2024-06-01"/>`,
			"CAST([createdon] AS date) = '2024-06-01'",
		},
		{
			"on-or-before",
			`<condition attribute="createdon" operator="on-or-before" value="2024-06-01"/>`,
			"CAST([createdon] AS date) <= '2024-06-01'",
		},
		{
			"on-or-after",
			`<condition attribute="createdon" operator="on-or-after" value="2024-06-01"/>`,
			"CAST([createdon] AS date) >= '2024-06-01'",
		},
		{
			"last-x-days",
			`<condition attribute="createdon" operator="last-x-days" value="30"/>`,
			"[createdon] >= DATEADD(day, -30, GETUTCDATE())",
		},
		{
			"next-x-days",
			`<condition attribute="createdon" operator="next-x-days" value="7"/>`,
			"([createdon] >= GETUTCDATE() AND [createdon] <= DATEADD(day, 7, GETUTCDATE()))",
		},
		{
			"today",
			`<condition attribute="createdon" operator="today"/>`,
			"CAST([createdon] AS date) = CAST(GETUTCDATE() AS date)",
		},
		{
			"yesterday",
			`<condition attribute="createdon" operator="yesterday"/>`,
			"CAST([createdon] AS date) = CAST(DATEADD(day, -1, GETUTCDATE()) AS date)",
		},
		{
			"this-year",
			`<condition attribute="createdon" operator="this-year"/>`,
			"YEAR([createdon]) = YEAR(GETUTCDATE())",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := parseFilter(t, `<filter type="and">`+tc.raw+`</filter>`)
			tr := NewTranslator(tds.Config, "opportunity", opportunityAttrs)
			res := tr.Translate(f)
			assert.Equal(t, tc.want, res.Where)
			assert.Empty(t, res.Warnings)
		})
	}
}

func TestTranslate_UnsupportedOperatorDegradesToWarning(t *testing.T) {
	f := parseFilter(t, `<filter type="and">
      <condition attribute="statecode" operator="eq" value="0"/>
      <condition attribute="createdon" operator="olderthan-x-months" value="3"/>
    </filter>`)

	tr := NewTranslator(tds.Config, "opportunity", opportunityAttrs)
	res := tr.Translate(f)

	// The unsupported condition is dropped, the rest survives.
	assert.Equal(t, "[statecode] = 0", res.Where)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "createdon", res.Warnings[0].Attribute)
}

func TestTranslate_StringEscaping(t *testing.T) {
	f := parseFilter(t, `<filter type="and"><condition attribute="name" operator="eq" value="O'Brien &amp; Co"/></filter>`)

	tr := NewTranslator(tds.Config, "opportunity", opportunityAttrs)
	res := tr.Translate(f)

	assert.Equal(t, "[name] = 'O''Brien & Co'", res.Where)
}

func TestTranslate_NonNumericValueForNumericAttr(t *testing.T) {
	f := parseFilter(t, `<filter type="and"><condition attribute="estimatedvalue" operator="gt" value="lots"/></filter>`)

	tr := NewTranslator(tds.Config, "opportunity", opportunityAttrs)
	res := tr.Translate(f)

	assert.Empty(t, res.Where)
	require.Len(t, res.Warnings, 1)
}

func TestTranslate_EmptyFilter(t *testing.T) {
	tr := NewTranslator(tds.Config, "opportunity", opportunityAttrs)
	res := tr.Translate(&fetchxml.Filter{Type: fetchxml.FilterAnd})
	assert.Empty(t, res.Where)
}

func TestForMode(t *testing.T) {
	assert.Same(t, tds.Config, ForMode(metadata.ModeTDS))
	assert.Same(t, fabric.Config, ForMode(metadata.ModeFabricLink))
}
