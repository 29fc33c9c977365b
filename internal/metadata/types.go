// Package metadata defines the shared data model for Dataverse schema
// metadata: tables, attributes, inferred relationships, and the flattened
// export projections consumed by the TMDL emitter.
package metadata

import (
	"fmt"
	"sort"
	"strings"
)

// AttributeType is the Dataverse attribute type tag as returned by the
// metadata Web API.
type AttributeType string

const (
	TypeString              AttributeType = "String"
	TypeMemo                AttributeType = "Memo"
	TypeInteger             AttributeType = "Integer"
	TypeBigInt              AttributeType = "BigInt"
	TypeDecimal             AttributeType = "Decimal"
	TypeDouble              AttributeType = "Double"
	TypeMoney               AttributeType = "Money"
	TypeBoolean             AttributeType = "Boolean"
	TypeDateTime            AttributeType = "DateTime"
	TypeDate                AttributeType = "Date"
	TypeLookup              AttributeType = "Lookup"
	TypePicklist            AttributeType = "Picklist"
	TypeMultiSelectPicklist AttributeType = "MultiSelectPicklist"
	TypeState               AttributeType = "State"
	TypeStatus              AttributeType = "Status"
	TypeOwner               AttributeType = "Owner"
	TypeCustomer            AttributeType = "Customer"
	TypeUniqueIdentifier    AttributeType = "Uniqueidentifier"
)

// IsLookupKind reports whether the type carries a reference to another table.
func (t AttributeType) IsLookupKind() bool {
	switch t {
	case TypeLookup, TypeCustomer, TypeOwner:
		return true
	}
	return false
}

// IsChoiceKind reports whether the type is backed by an option set and may
// carry a localized label alongside its numeric value.
func (t AttributeType) IsChoiceKind() bool {
	switch t {
	case TypePicklist, TypeState, TypeStatus, TypeMultiSelectPicklist, TypeBoolean:
		return true
	}
	return false
}

// IsNumeric reports whether the type holds a measurable numeric value.
func (t AttributeType) IsNumeric() bool {
	switch t {
	case TypeInteger, TypeBigInt, TypeDecimal, TypeDouble, TypeMoney:
		return true
	}
	return false
}

// IsDateKind reports whether the type holds a point in time.
func (t AttributeType) IsDateKind() bool {
	return t == TypeDateTime || t == TypeDate
}

// TableInfo describes one Dataverse table. Instances are created at metadata
// load and treated as read-only afterwards.
type TableInfo struct {
	LogicalName          string
	DisplayName          string
	SchemaName           string
	PrimaryIDAttribute   string
	PrimaryNameAttribute string
	ObjectTypeCode       int
}

// AttributeInfo describes one attribute of a table. Targets is populated for
// lookup-kind attributes; more than one target means a polymorphic lookup.
type AttributeInfo struct {
	LogicalName string
	DisplayName string
	SchemaName  string
	Type        AttributeType
	Required    bool
	IsCustom    bool
	Targets     []string
}

// IsPolymorphic reports whether the attribute can reference more than one
// target table.
func (a AttributeInfo) IsPolymorphic() bool {
	return len(a.Targets) > 1
}

// TableRole is the star-schema role assigned to a selected table.
type TableRole string

const (
	RoleFact      TableRole = "fact"
	RoleDimension TableRole = "dimension"
)

// ParseTableRole parses a role string from configuration.
func ParseTableRole(s string) (TableRole, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fact":
		return RoleFact, nil
	case "dimension", "dim", "":
		return RoleDimension, nil
	}
	return "", fmt.Errorf("unknown table role %q", s)
}

// ConnectionMode selects the source connector and with it the generated SQL
// shape and partition source.
type ConnectionMode string

const (
	// ModeTDS targets the Dataverse TDS endpoint.
	ModeTDS ConnectionMode = "tds"
	// ModeFabricLink targets a Fabric Lakehouse SQL endpoint fed by
	// Dataverse link to Fabric.
	ModeFabricLink ConnectionMode = "fabric"
)

// ParseConnectionMode parses a connection mode string from configuration.
func ParseConnectionMode(s string) (ConnectionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tds", "dataverse", "":
		return ModeTDS, nil
	case "fabric", "fabriclink", "lakehouse":
		return ModeFabricLink, nil
	}
	return "", fmt.Errorf("unknown connection mode %q", s)
}

// StorageMode is the Power BI storage mode of a table.
type StorageMode string

const (
	StorageDirectQuery StorageMode = "directQuery"
	StorageImport      StorageMode = "import"
	StorageDual        StorageMode = "dual"
)

// ParseStorageMode parses a storage mode string from configuration.
func ParseStorageMode(s string) (StorageMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "directquery", "":
		return StorageDirectQuery, nil
	case "import":
		return StorageImport, nil
	case "dual":
		return StorageDual, nil
	}
	return "", fmt.Errorf("unknown storage mode %q", s)
}

// RelationshipEdge is one inferred edge of the star schema. The triple
// (SourceTable, SourceAttribute, TargetTable) is the natural key.
//
// Invariant: at most one edge with IsActive=true may target any given table.
type RelationshipEdge struct {
	SourceTable     string
	SourceAttribute string
	TargetTable     string

	DisplayName                string
	IsActive                   bool
	IsSnowflake                bool
	SnowflakeLevel             int
	AssumeReferentialIntegrity bool
}

// Key returns the natural key of the edge.
func (e RelationshipEdge) Key() string {
	return e.SourceTable + "|" + e.SourceAttribute + "|" + e.TargetTable
}

// WrappedField names a datetime attribute that receives a timezone-shifted
// copy in its owning table's partition query.
type WrappedField struct {
	Table             string
	Field             string
	ConvertToDateOnly bool
}

// DateTableConfig configures the generated calendar dimension.
type DateTableConfig struct {
	// PrimaryTable/PrimaryField receive the single active relationship to
	// the calendar table.
	PrimaryTable string
	PrimaryField string

	// TimeZone is an IANA timezone identifier, informational alongside the
	// fixed UTCOffsetHours (DST is not modeled).
	TimeZone       string
	UTCOffsetHours int

	// Inclusive year range covered by the calendar.
	StartYear int
	EndYear   int

	WrappedFields []WrappedField
}

// ExportAttribute is the flattened, serialization-ready projection of an
// attribute, the direct input to the TMDL emitter.
type ExportAttribute struct {
	LogicalName string
	DisplayName string
	SchemaName  string
	Type        AttributeType
	Required    bool
	Targets     []string
}

// ExportTable is the flattened projection of a selected table.
type ExportTable struct {
	LogicalName          string
	DisplayName          string
	SchemaName           string
	PrimaryIDAttribute   string
	PrimaryNameAttribute string
	Role                 TableRole
	StorageMode          StorageMode
	Attributes           []ExportAttribute

	// FilterWhere is the translated view filter, empty when the table has
	// no view filter or translation dropped all conditions.
	FilterWhere string
	// FilterJoins are rendered dialect joins required by the filter
	// (FabricLink option-set label resolution).
	FilterJoins []string
}

// Attribute returns the attribute with the given logical name, if present.
func (t *ExportTable) Attribute(logicalName string) (ExportAttribute, bool) {
	for _, a := range t.Attributes {
		if a.LogicalName == logicalName {
			return a, true
		}
	}
	return ExportAttribute{}, false
}

// ExportRelationship is the flattened projection of a relationship edge,
// resolved down to from/to columns.
type ExportRelationship struct {
	Name       string
	FromTable  string
	FromColumn string
	ToTable    string
	ToColumn   string

	IsActive                   bool
	AssumeReferentialIntegrity bool
}

// Key returns the natural key used to match relationships across desired and
// existing models.
func (r ExportRelationship) Key() string {
	return r.FromTable + "|" + r.FromColumn + "|" + r.ToTable
}

// SortRelationships orders relationships by natural key for deterministic
// emission.
func SortRelationships(rels []ExportRelationship) {
	sort.Slice(rels, func(i, j int) bool { return rels[i].Key() < rels[j].Key() })
}
