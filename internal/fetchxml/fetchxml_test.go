package fetchxml

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFetch = `<fetch version="1.0">
  <entity name="opportunity">
    <attribute name="name"/>
    <attribute name="estimatedvalue"/>
    <filter type="and">
      <condition attribute="statecode" operator="eq" value="0"/>
      <filter type="or">
        <condition attribute="estimatedvalue" operator="gt" value="10000"/>
        <condition attribute="createdon" operator="last-x-days" value="30"/>
      </filter>
    </filter>
  </entity>
</fetch>`

func TestParse_FullDocument(t *testing.T) {
	doc, err := Parse(sampleFetch, "Open Opportunities")
	require.NoError(t, err)

	assert.Equal(t, "opportunity", doc.Entity)
	assert.Equal(t, []string{"name", "estimatedvalue"}, doc.Attributes)

	require.NotNil(t, doc.Filter)
	assert.Equal(t, FilterAnd, doc.Filter.Type)
	require.Len(t, doc.Filter.Conditions, 1)
	assert.Equal(t, Condition{Attribute: "statecode", Operator: OpEq, Value: "0"}, doc.Filter.Conditions[0])

	require.Len(t, doc.Filter.Filters, 1)
	nested := doc.Filter.Filters[0]
	assert.Equal(t, FilterOr, nested.Type)
	assert.Len(t, nested.Conditions, 2)
}

func TestParse_BareFilter(t *testing.T) {
	doc, err := Parse(`<filter type="and"><condition attribute="statecode" operator="eq" value="0"/></filter>`, "")
	require.NoError(t, err)
	require.NotNil(t, doc.Filter)
	assert.False(t, doc.Filter.Empty())
}

func TestParse_InValues(t *testing.T) {
	raw := `<filter type="and">
      <condition attribute="industrycode" operator="in">
        <value>1</value>
        <value>2</value>
        <value>7</value>
      </condition>
    </filter>`

	doc, err := Parse(raw, "")
	require.NoError(t, err)
	require.Len(t, doc.Filter.Conditions, 1)
	assert.Equal(t, OpIn, doc.Filter.Conditions[0].Operator)
	assert.Equal(t, []string{"1", "2", "7"}, doc.Filter.Conditions[0].Values)
}

func TestParse_RejectsDoctype(t *testing.T) {
	raw := `<!DOCTYPE foo [<!ENTITY xxe SYSTEM "file:///etc/passwd">]>
<fetch><entity name="account"><filter><condition attribute="name" operator="eq" value="&xxe;"/></filter></entity></fetch>`

	_, err := Parse(raw, "evil view")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsecureXML))
}

func TestParse_RejectsDoctypeCaseInsensitive(t *testing.T) {
	_, err := Parse(`<!doctype foo><fetch><entity name="a"/></fetch>`, "")
	assert.True(t, errors.Is(err, ErrInsecureXML))
}

func TestParse_MalformedIsParseError(t *testing.T) {
	_, err := Parse(`<fetch><entity name="account">`, "broken view")
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Error(), "broken view")
	assert.False(t, errors.Is(err, ErrInsecureXML))
}

func TestParse_EmptyFilter(t *testing.T) {
	doc, err := Parse(`<fetch><entity name="account"><filter type="and"/></entity></fetch>`, "")
	require.NoError(t, err)
	assert.True(t, doc.Filter.Empty())
}

func TestExtractFormFields(t *testing.T) {
	formXML := `<form>
  <tabs>
    <tab>
      <sections>
        <section>
          <rows>
            <row><cell><control id="c1" datafieldname="Name"/></cell></row>
            <row><cell><control id="c2" datafieldname="parentaccountid"/></cell></row>
            <row><cell><control id="c3" datafieldname="name"/></cell></row>
            <row><cell><control id="c4"/></cell></row>
          </rows>
        </section>
      </sections>
    </tab>
  </tabs>
</form>`

	fields, err := ExtractFormFields(formXML)
	require.NoError(t, err)
	// Lowercased and deduplicated.
	assert.Equal(t, []string{"name", "parentaccountid"}, fields)
}

func TestExtractFormFields_RejectsDTD(t *testing.T) {
	_, err := ExtractFormFields(`<!DOCTYPE form><form/>`)
	assert.True(t, errors.Is(err, ErrInsecureXML))
}
