package tmdl

import "github.com/modelstack-labs/tmdlgen/internal/metadata"

// Diagnostic reports a non-fatal emission finding, e.g. an attribute type
// with no mapping.
type Diagnostic struct {
	Table     string
	Attribute string
	Message   string
}

// MapType maps a Dataverse attribute type to its TMDL data type. Every known
// type maps to exactly one TMDL type; unknown types fall back to string and
// report ok=false so the caller can raise a warning instead of crashing.
func MapType(t metadata.AttributeType) (dataType string, ok bool) {
	switch t {
	case metadata.TypeString, metadata.TypeMemo:
		return "string", true
	case metadata.TypeInteger, metadata.TypeBigInt:
		return "int64", true
	case metadata.TypeDecimal, metadata.TypeDouble, metadata.TypeMoney:
		return "decimal", true
	case metadata.TypeBoolean:
		return "boolean", true
	case metadata.TypeDateTime, metadata.TypeDate:
		return "dateTime", true
	case metadata.TypePicklist, metadata.TypeState, metadata.TypeStatus, metadata.TypeMultiSelectPicklist:
		// Numeric option value; the label rides in a linked label column.
		return "int64", true
	case metadata.TypeLookup, metadata.TypeCustomer, metadata.TypeOwner, metadata.TypeUniqueIdentifier:
		// Relationship key column, never measure-bearing.
		return "string", true
	}
	return "string", false
}

// summarizeBy returns the default summarization of a column.
func summarizeBy(t metadata.AttributeType, role metadata.TableRole) string {
	if role == metadata.RoleFact && t.IsNumeric() {
		return "sum"
	}
	return "none"
}
