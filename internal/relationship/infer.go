// Package relationship infers the star-schema relationship set from the
// lookup attributes of the selected tables.
package relationship

import (
	"fmt"
	"sort"

	"github.com/modelstack-labs/tmdlgen/internal/dag"
	"github.com/modelstack-labs/tmdlgen/internal/metadata"
)

// Severity classifies a diagnostic produced during inference.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic reports a non-fatal finding, e.g. a lookup whose target table
// is not part of the selection.
type Diagnostic struct {
	Severity  Severity
	Table     string
	Attribute string
	Message   string
}

// Input is the immutable input of one inference pass.
type Input struct {
	// Tables are the selected tables.
	Tables []metadata.TableInfo
	// Attributes holds the selected attributes per table logical name.
	Attributes map[string][]metadata.AttributeInfo
	// FactTable is the logical name of the designated fact table. Edges
	// from the fact table win active status over later candidates.
	FactTable string
}

// Set is the inferred relationship set.
type Set struct {
	Edges []metadata.RelationshipEdge
}

// ActiveTargets returns the set of tables that already have an active
// inbound edge.
func (s *Set) ActiveTargets() map[string]bool {
	active := make(map[string]bool)
	for _, e := range s.Edges {
		if e.IsActive {
			active[e.TargetTable] = true
		}
	}
	return active
}

// Infer derives the relationship edges implied by lookup-kind attributes
// whose target is itself a selected table. It is a pure function: re-running
// it on unchanged input reproduces the identical edge set, including
// active/inactive assignment, so the reconciliation diff reports Preserve
// rather than spurious updates.
func Infer(in Input) (*Set, []Diagnostic) {
	selected := make(map[string]metadata.TableInfo, len(in.Tables))
	for _, t := range in.Tables {
		selected[t.LogicalName] = t
	}

	// Fact table first, remaining tables by logical name ascending.
	order := make([]string, 0, len(in.Tables))
	for name := range selected {
		if name != in.FactTable {
			order = append(order, name)
		}
	}
	sort.Strings(order)
	if _, ok := selected[in.FactTable]; ok {
		order = append([]string{in.FactTable}, order...)
	}

	active := dag.New()
	for name := range selected {
		active.AddNode(name)
	}

	set := &Set{}
	var diags []Diagnostic
	hasActiveInbound := make(map[string]bool)

	for _, source := range order {
		attrs := append([]metadata.AttributeInfo(nil), in.Attributes[source]...)
		sort.Slice(attrs, func(i, j int) bool { return attrs[i].LogicalName < attrs[j].LogicalName })

		for _, attr := range attrs {
			if !attr.Type.IsLookupKind() {
				continue
			}
			if len(attr.Targets) == 0 {
				diags = append(diags, Diagnostic{
					Severity:  SeverityWarning,
					Table:     source,
					Attribute: attr.LogicalName,
					Message:   "lookup attribute declares no target table",
				})
				continue
			}
			for _, target := range attr.Targets {
				if _, ok := selected[target]; !ok {
					diags = append(diags, Diagnostic{
						Severity:  SeverityWarning,
						Table:     source,
						Attribute: attr.LogicalName,
						Message:   fmt.Sprintf("lookup target %q is not a selected table; relationship skipped", target),
					})
					continue
				}

				edge := metadata.RelationshipEdge{
					SourceTable:     source,
					SourceAttribute: attr.LogicalName,
					TargetTable:     target,
					DisplayName:     attr.DisplayName,
					// A required single-target lookup always resolves,
					// so the join can assume referential integrity.
					AssumeReferentialIntegrity: attr.Required && !attr.IsPolymorphic(),
				}

				// One active inbound edge per target; everything else is
				// declared inactive and needs explicit activation at query
				// time. Activating must also keep the active graph acyclic.
				if source != target && !hasActiveInbound[target] && !active.HasPath(target, source) {
					edge.IsActive = true
					hasActiveInbound[target] = true
					_ = active.AddEdge(source, target)
				}

				set.Edges = append(set.Edges, edge)
			}
		}
	}

	// Snowflake depth is the BFS distance of the edge's source from the
	// fact table over active edges: 0 = direct fact->dimension, 1 =
	// snowflake, 2 = double snowflake (capped).
	dist := active.Distances(in.FactTable)
	for i := range set.Edges {
		level, ok := dist[set.Edges[i].SourceTable]
		if !ok {
			level = 0
		}
		if level > 2 {
			level = 2
		}
		set.Edges[i].SnowflakeLevel = level
		set.Edges[i].IsSnowflake = level > 0
	}

	return set, diags
}

// Export resolves the edge set down to from/to columns using the selected
// tables' primary key attributes, producing the flattened projection
// consumed by the TMDL emitter.
func Export(set *Set, tables []metadata.TableInfo) []metadata.ExportRelationship {
	byName := make(map[string]metadata.TableInfo, len(tables))
	for _, t := range tables {
		byName[t.LogicalName] = t
	}

	rels := make([]metadata.ExportRelationship, 0, len(set.Edges))
	for _, e := range set.Edges {
		target, ok := byName[e.TargetTable]
		if !ok {
			continue
		}
		rels = append(rels, metadata.ExportRelationship{
			FromTable:                  e.SourceTable,
			FromColumn:                 e.SourceAttribute,
			ToTable:                    e.TargetTable,
			ToColumn:                   target.PrimaryIDAttribute,
			IsActive:                   e.IsActive,
			AssumeReferentialIntegrity: e.AssumeReferentialIntegrity,
		})
	}
	metadata.SortRelationships(rels)
	return rels
}
