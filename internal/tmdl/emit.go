// Package tmdl assembles the desired semantic model into TMDL project text,
// and parses existing project text back into comparable shapes for the
// reconciliation diff. Emission is deterministic: identical input state
// reproduces byte-identical output.
package tmdl

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/modelstack-labs/tmdlgen/internal/calendar"
	"github.com/modelstack-labs/tmdlgen/internal/metadata"
	"github.com/modelstack-labs/tmdlgen/pkg/dialect"
)

// Project file paths, relative to the semantic-model folder.
const (
	DatabaseFile      = "definition/database.tmdl"
	ModelFile         = "definition/model.tmdl"
	ExpressionsFile   = "definition/expressions.tmdl"
	RelationshipsFile = "definition/relationships.tmdl"
	TablesDir         = "definition/tables"
)

// Annotations carrying generator state through the round trip.
const (
	annotationSource  = "tmdlgen_source"
	annotationStorage = "tmdlgen_storage"
	annotationMode    = "tmdlgen_mode"
)

// calendarSource marks the generated date table in the source annotation.
const calendarSource = "_calendar"

// lineageNamespace seeds the deterministic lineage tags and relationship
// names. Fixed so that regeneration reproduces identical ids.
var lineageNamespace = uuid.MustParse("6f9e2d4b-8a31-4c5e-9d17-b02c7f4a8e53")

// DataSource locates the SQL endpoint embedded in partition M queries.
type DataSource struct {
	Server   string
	Database string
}

// Model is the desired semantic model handed to the emitter.
type Model struct {
	Name           string
	Culture        string
	ConnectionMode metadata.ConnectionMode
	Source         DataSource
	Tables         []metadata.ExportTable
	Relationships  []metadata.ExportRelationship
	Calendar       *calendar.Generator
}

// Project is the emitted file tree, in memory.
type Project struct {
	// Files maps relative path to file content (CRLF, tab-indented).
	Files map[string]string
	// TableFiles maps table logical name to its file path.
	TableFiles map[string]string
}

// Paths returns the file paths in sorted order.
func (p *Project) Paths() []string {
	paths := make([]string, 0, len(p.Files))
	for f := range p.Files {
		paths = append(paths, f)
	}
	sort.Strings(paths)
	return paths
}

// Emitter turns a Model into TMDL text under one connector dialect.
type Emitter struct {
	d     *dialect.Dialect
	title cases.Caser
}

// NewEmitter creates an emitter for the given dialect.
func NewEmitter(d *dialect.Dialect) *Emitter {
	return &Emitter{d: d, title: cases.Title(language.English)}
}

// Emit produces the complete project tree for the model. Unknown attribute
// types degrade to string columns and are reported as diagnostics.
func (e *Emitter) Emit(m *Model) (*Project, []Diagnostic, error) {
	if m.Name == "" {
		return nil, nil, fmt.Errorf("tmdl: model name is required")
	}

	p := &Project{
		Files:      make(map[string]string),
		TableFiles: make(map[string]string),
	}
	var diags []Diagnostic

	p.Files[DatabaseFile] = e.emitDatabase(m)
	p.Files[ModelFile] = e.emitModel(m)
	p.Files[ExpressionsFile] = e.emitExpressions(m)
	p.Files[RelationshipsFile] = e.emitRelationships(m)

	for _, t := range m.Tables {
		content, tableDiags := e.emitTable(m, t)
		diags = append(diags, tableDiags...)
		file := path.Join(TablesDir, safeFileName(e.tableName(t))+".tmdl")
		p.Files[file] = content
		p.TableFiles[t.LogicalName] = file
	}

	if m.Calendar != nil {
		if err := m.Calendar.Validate(); err != nil {
			return nil, diags, err
		}
		file := path.Join(TablesDir, calendar.TableName+".tmdl")
		p.Files[file] = e.emitCalendarTable(m)
		p.TableFiles[calendarSource] = file
	}

	return p, diags, nil
}

// tableName returns the Power BI table name: the display name, falling back
// to a title-cased logical name.
func (e *Emitter) tableName(t metadata.ExportTable) string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return e.title.String(t.LogicalName)
}

func (e *Emitter) columnName(a metadata.ExportAttribute) string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return e.title.String(a.LogicalName)
}

func (e *Emitter) emitDatabase(m *Model) string {
	w := &writer{}
	w.line(0, "database "+quoteName(m.Name))
	w.line(1, "compatibilityLevel: 1604")
	return w.render()
}

// emitExpressions writes the shared M parameters the partition queries
// reference, so server and database can be switched in one place.
func (e *Emitter) emitExpressions(m *Model) string {
	w := &writer{}
	params := []struct{ name, value string }{
		{"Server", m.Source.Server},
		{"Database", m.Source.Database},
	}
	for i, p := range params {
		if i > 0 {
			w.blank()
		}
		w.line(0, fmt.Sprintf("expression %s = \"%s\" meta [IsParameterQuery = true, Type = \"Text\", IsParameterQueryRequired = true]", p.name, p.value))
		w.line(1, "lineageTag: "+e.lineageTag("expression", p.name))
		w.blank()
		w.line(1, "annotation PBI_ResultType = Text")
	}
	return w.render()
}

func (e *Emitter) emitModel(m *Model) string {
	culture := m.Culture
	if culture == "" {
		culture = "en-US"
	}

	w := &writer{}
	w.line(0, "model Model")
	w.line(1, "culture: "+culture)
	w.line(1, "defaultPowerBIDataSourceVersion: powerBI_V3")
	w.line(1, "discourageImplicitMeasures")
	w.blank()
	w.line(1, fmt.Sprintf("annotation %s = %s", annotationMode, m.ConnectionMode))
	w.blank()

	names := make([]string, 0, len(m.Tables)+1)
	for _, t := range m.Tables {
		names = append(names, e.tableName(t))
	}
	if m.Calendar != nil {
		names = append(names, calendar.TableName)
	}
	sort.Strings(names)
	for _, n := range names {
		w.line(0, "ref table "+quoteName(n))
	}
	return w.render()
}

func (e *Emitter) emitRelationships(m *Model) string {
	rels := append([]metadata.ExportRelationship(nil), m.Relationships...)
	if m.Calendar != nil {
		rels = append(rels, m.Calendar.Relationships()...)
	}
	metadata.SortRelationships(rels)

	w := &writer{}
	for i, r := range rels {
		if i > 0 {
			w.blank()
		}
		name := r.Name
		if name == "" {
			name = uuid.NewSHA1(lineageNamespace, []byte("relationship:"+r.Key())).String()
		}
		w.line(0, "relationship "+name)
		w.line(1, "fromColumn: "+e.columnRefName(m, r.FromTable, r.FromColumn))
		w.line(1, "toColumn: "+e.columnRefName(m, r.ToTable, r.ToColumn))
		if !r.IsActive {
			w.line(1, "isActive: false")
		}
		if r.AssumeReferentialIntegrity {
			w.line(1, "relyOnReferentialIntegrity")
		}
	}
	if len(rels) == 0 {
		return ""
	}
	return w.render()
}

// columnRefName renders Table.Column using display names, resolving logical
// names through the model's tables. Calendar references pass through as-is.
func (e *Emitter) columnRefName(m *Model, table, column string) string {
	tableName := table
	columnName := column
	for _, t := range m.Tables {
		if t.LogicalName != table {
			continue
		}
		tableName = e.tableName(t)
		if a, ok := t.Attribute(column); ok {
			columnName = e.columnName(a)
		}
		break
	}
	return quoteName(tableName) + "." + quoteName(columnName)
}

func (e *Emitter) emitTable(m *Model, t metadata.ExportTable) (string, []Diagnostic) {
	var diags []Diagnostic
	name := e.tableName(t)

	w := &writer{}
	w.line(0, "table "+quoteName(name))
	w.line(1, "lineageTag: "+e.lineageTag("table", t.LogicalName))
	w.blank()
	w.line(1, fmt.Sprintf("annotation %s = %s", annotationSource, t.LogicalName))
	w.blank()
	w.line(1, fmt.Sprintf("annotation %s = %s", annotationStorage, t.StorageMode))

	for _, a := range t.Attributes {
		dataType, known := MapType(a.Type)
		if !known {
			diags = append(diags, Diagnostic{
				Table:     t.LogicalName,
				Attribute: a.LogicalName,
				Message:   fmt.Sprintf("attribute type %q has no TMDL mapping, emitted as string", a.Type),
			})
		}

		w.blank()
		e.emitColumn(w, t, columnSpec{
			name:         e.columnName(a),
			dataType:     dataType,
			sourceColumn: a.LogicalName,
			summarize:    summarizeBy(a.Type, t.Role),
		})

		if label, ok := e.labelColumn(a); ok {
			w.blank()
			e.emitColumn(w, t, label)
		}
	}

	for _, measure := range e.measures(t, name) {
		w.blank()
		w.line(1, fmt.Sprintf("measure %s = %s", quoteName(measure.name), measure.expression))
		w.line(2, "lineageTag: "+e.lineageTag("measure", t.LogicalName+"/"+measure.name))
	}

	w.blank()
	w.line(1, fmt.Sprintf("partition %s = m", quoteName(name)))
	w.line(2, "mode: "+string(t.StorageMode))
	w.line(2, "source =")
	w.line(3, "let")
	w.line(4, "Source = "+e.d.PartitionSource(escapeM(buildQuery(e.d, t, m.Calendar))))
	w.line(3, "in")
	w.line(4, "Source")

	return w.render(), diags
}

type columnSpec struct {
	name         string
	dataType     string
	sourceColumn string
	summarize    string
}

func (e *Emitter) emitColumn(w *writer, t metadata.ExportTable, c columnSpec) {
	w.line(1, "column "+quoteName(c.name))
	w.line(2, "dataType: "+c.dataType)
	w.line(2, "lineageTag: "+e.lineageTag("column", t.LogicalName+"/"+c.sourceColumn))
	w.line(2, "sourceColumn: "+c.sourceColumn)
	w.line(2, "summarizeBy: "+c.summarize)
}

// labelColumn returns the linked label column of a choice or lookup
// attribute, when the connector provides one.
func (e *Emitter) labelColumn(a metadata.ExportAttribute) (columnSpec, bool) {
	choice := a.Type.IsChoiceKind() && a.Type != metadata.TypeMultiSelectPicklist
	lookupLabel := a.Type.IsLookupKind() && e.d.VirtualNameColumns
	if !choice && !lookupLabel {
		return columnSpec{}, false
	}
	return columnSpec{
		name:         e.columnName(a) + " Label",
		dataType:     "string",
		sourceColumn: a.LogicalName + labelSuffix,
		summarize:    "none",
	}, true
}

type measureSpec struct {
	name       string
	expression string
}

// measures returns the default measures of a table per its role: row-count
// and per-numeric-column sums for facts, a distinct count for dimensions.
func (e *Emitter) measures(t metadata.ExportTable, name string) []measureSpec {
	quoted := "'" + strings.ReplaceAll(name, "'", "''") + "'"

	if t.Role == metadata.RoleFact {
		specs := []measureSpec{{
			name:       name + " Row Count",
			expression: fmt.Sprintf("COUNTROWS(%s)", quoted),
		}}
		for _, a := range t.Attributes {
			if a.Type.IsNumeric() {
				col := e.columnName(a)
				specs = append(specs, measureSpec{
					name:       "Sum of " + col,
					expression: fmt.Sprintf("SUM(%s[%s])", quoted, col),
				})
			}
		}
		return specs
	}

	if pk, ok := t.Attribute(t.PrimaryIDAttribute); ok {
		return []measureSpec{{
			name:       name + " Count",
			expression: fmt.Sprintf("DISTINCTCOUNT(%s[%s])", quoted, e.columnName(pk)),
		}}
	}
	return []measureSpec{{
		name:       name + " Count",
		expression: fmt.Sprintf("COUNTROWS(%s)", quoted),
	}}
}

func (e *Emitter) emitCalendarTable(m *Model) string {
	w := &writer{}
	w.line(0, "table "+calendar.TableName)
	w.line(1, "lineageTag: "+e.lineageTag("table", calendarSource))
	w.line(1, "dataCategory: Time")
	w.blank()
	w.line(1, fmt.Sprintf("annotation %s = %s", annotationSource, calendarSource))
	w.blank()
	w.line(1, fmt.Sprintf("annotation %s = import", annotationStorage))

	for _, col := range calendar.Columns {
		w.blank()
		w.line(1, "column "+quoteName(col.Name))
		w.line(2, "dataType: "+col.DataType)
		w.line(2, "lineageTag: "+e.lineageTag("column", calendarSource+"/"+col.Name))
		if col.Name == calendar.KeyColumn {
			w.line(2, "isKey")
		}
		w.line(2, "summarizeBy: none")
	}

	w.blank()
	w.line(1, fmt.Sprintf("partition %s = calculated", calendar.TableName))
	w.line(2, "mode: import")
	w.line(2, "source =")
	w.raw(indentBlock(m.Calendar.Expression(), 3))

	return w.render()
}

// lineageTag returns the deterministic lineage id of one object.
func (e *Emitter) lineageTag(kind, key string) string {
	return uuid.NewSHA1(lineageNamespace, []byte(kind+":"+key)).String()
}

// escapeM escapes a SQL string for embedding in an M text literal.
func escapeM(sql string) string {
	return strings.ReplaceAll(sql, `"`, `""`)
}
