// Package engine orchestrates one model generation: load metadata, resolve
// attribute selections and view filters, infer relationships, and emit the
// TMDL project. The engine is deterministic end to end, so regenerating from
// unchanged metadata and configuration reproduces byte-identical output.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/modelstack-labs/tmdlgen/internal/calendar"
	"github.com/modelstack-labs/tmdlgen/internal/config"
	"github.com/modelstack-labs/tmdlgen/internal/fetchxml"
	"github.com/modelstack-labs/tmdlgen/internal/metadata"
	"github.com/modelstack-labs/tmdlgen/internal/relationship"
	"github.com/modelstack-labs/tmdlgen/internal/sqlgen"
	"github.com/modelstack-labs/tmdlgen/internal/tmdl"
	"github.com/modelstack-labs/tmdlgen/pkg/dialect"
)

// fetchConcurrency bounds parallel per-table form and view document loads.
const fetchConcurrency = 4

// Notice is a non-fatal finding surfaced to the user after a build.
type Notice struct {
	Stage     string
	Table     string
	Attribute string
	Message   string
}

// Report aggregates the non-fatal findings of one build.
type Report struct {
	Notices []Notice
}

func (r *Report) add(stage, table, attribute, message string) {
	r.Notices = append(r.Notices, Notice{Stage: stage, Table: table, Attribute: attribute, Message: message})
}

// Engine builds semantic model projects from a metadata source.
type Engine struct {
	cfg    *config.ProjectConfig
	source metadata.Source
	logger *slog.Logger
}

// New creates an engine. A nil logger discards output.
func New(cfg *config.ProjectConfig, source metadata.Source, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{cfg: cfg, source: source, logger: logger}
}

// tableDocs holds the lazily fetched documents of one table.
type tableDocs struct {
	formXML      string
	viewFetchXML string
	viewName     string
}

// Build generates the full project for the configured model.
func (e *Engine) Build(ctx context.Context) (*tmdl.Project, *Report, error) {
	report := &Report{}

	mode, err := metadata.ParseConnectionMode(e.cfg.Connection.Mode)
	if err != nil {
		return nil, nil, err
	}
	d := sqlgen.ForMode(mode)

	loader := metadata.NewLoader(e.source, e.logger)
	snap, err := loader.Load(ctx, e.cfg.Solution, e.cfg.TableNames())
	if err != nil {
		return nil, nil, err
	}

	docs, err := e.fetchDocs(ctx, snap)
	if err != nil {
		return nil, nil, err
	}

	var cal *calendar.Generator
	if e.cfg.DateTable != nil && e.cfg.DateTable.Enabled {
		cal = calendar.New(e.cfg.DateTable.ToMetadata())
		if err := cal.Validate(); err != nil {
			return nil, nil, fmt.Errorf("date table: %w", err)
		}
	}

	selected := make(map[string][]metadata.AttributeInfo, len(snap.Tables))
	var exports []metadata.ExportTable
	for _, t := range snap.Tables {
		tc := e.cfg.Tables[t.LogicalName]

		attrs, err := e.selectAttributes(t, snap, docs[t.LogicalName], cal, report)
		if err != nil {
			return nil, nil, err
		}
		selected[t.LogicalName] = attrs

		export, err := e.exportTable(d, t, tc, attrs, docs[t.LogicalName], report)
		if err != nil {
			return nil, nil, err
		}
		exports = append(exports, export)
	}

	set, diags := relationship.Infer(relationship.Input{
		Tables:     snap.Tables,
		Attributes: selected,
		FactTable:  e.cfg.FactTable(),
	})
	for _, diag := range diags {
		report.add("relationships", diag.Table, diag.Attribute, diag.Message)
	}

	model := &tmdl.Model{
		Name:           e.cfg.Project,
		Culture:        e.cfg.Culture,
		ConnectionMode: mode,
		Source: tmdl.DataSource{
			Server:   e.cfg.Connection.Server,
			Database: e.cfg.Connection.Database,
		},
		Tables:        exports,
		Relationships: relationship.Export(set, snap.Tables),
		Calendar:      cal,
	}

	project, emitDiags, err := tmdl.NewEmitter(d).Emit(model)
	if err != nil {
		return nil, nil, err
	}
	for _, diag := range emitDiags {
		report.add("emit", diag.Table, diag.Attribute, diag.Message)
	}

	e.logger.Info("model generated",
		slog.String("project", e.cfg.Project),
		slog.String("mode", string(mode)),
		slog.Int("tables", len(exports)),
		slog.Int("notices", len(report.Notices)))
	return project, report, nil
}

// fetchDocs loads the form and view documents of every table in parallel.
// Only the documents named in the configuration are fetched.
func (e *Engine) fetchDocs(ctx context.Context, snap *metadata.Snapshot) (map[string]*tableDocs, error) {
	docs := make(map[string]*tableDocs, len(snap.Tables))
	for _, t := range snap.Tables {
		docs[t.LogicalName] = &tableDocs{}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	for _, t := range snap.Tables {
		t := t
		tc := e.cfg.Tables[t.LogicalName]
		doc := docs[t.LogicalName]

		if tc.Form != "" && len(tc.Attributes) == 0 {
			form, ok := findForm(snap.Forms[t.LogicalName], tc.Form)
			if !ok {
				return nil, fmt.Errorf("table %s: form %q not found", t.LogicalName, tc.Form)
			}
			g.Go(func() error {
				xml, err := e.source.FormXML(gctx, form.ID)
				if err != nil {
					return fmt.Errorf("loading form %q of %s: %w", form.Name, t.LogicalName, err)
				}
				doc.formXML = xml
				return nil
			})
		}

		if tc.View != "" {
			view, ok := findView(snap.Views[t.LogicalName], tc.View)
			if !ok {
				return nil, fmt.Errorf("table %s: view %q not found", t.LogicalName, tc.View)
			}
			doc.viewName = view.Name
			g.Go(func() error {
				xml, err := e.source.ViewFetchXML(gctx, view.ID)
				if err != nil {
					return fmt.Errorf("loading view %q of %s: %w", view.Name, t.LogicalName, err)
				}
				doc.viewFetchXML = xml
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// selectAttributes resolves the attribute set of one table: an explicit
// configuration list wins, then form fields, then every attribute. The
// primary id, primary name, and calendar-wrapped fields are always included
// when they exist.
func (e *Engine) selectAttributes(t metadata.TableInfo, snap *metadata.Snapshot, docs *tableDocs, cal *calendar.Generator, report *Report) ([]metadata.AttributeInfo, error) {
	all := snap.Attributes[t.LogicalName]
	byName := make(map[string]metadata.AttributeInfo, len(all))
	for _, a := range all {
		byName[a.LogicalName] = a
	}

	tc := e.cfg.Tables[t.LogicalName]
	var wanted []string
	switch {
	case len(tc.Attributes) > 0:
		for _, name := range tc.Attributes {
			if _, ok := byName[name]; !ok {
				return nil, fmt.Errorf("table %s: attribute %q does not exist", t.LogicalName, name)
			}
		}
		wanted = tc.Attributes
	case docs.formXML != "":
		fields, err := fetchxml.ExtractFormFields(docs.formXML)
		if err != nil {
			// rejecting one form's XML falls back to the full attribute set
			report.add("selection", t.LogicalName, "",
				fmt.Sprintf("form %q rejected, selecting every attribute: %v", tc.Form, err))
			for _, a := range all {
				wanted = append(wanted, a.LogicalName)
			}
			break
		}
		for _, f := range fields {
			if _, ok := byName[f]; ok {
				wanted = append(wanted, f)
			} else {
				report.add("selection", t.LogicalName, f, "form field has no matching attribute, skipped")
			}
		}
	default:
		for _, a := range all {
			wanted = append(wanted, a.LogicalName)
		}
	}

	// mandatory columns ride along regardless of the selection
	mandatory := []string{t.PrimaryIDAttribute, t.PrimaryNameAttribute}
	if cal != nil {
		for _, wf := range cal.WrappedFieldsFor(t.LogicalName) {
			mandatory = append(mandatory, wf.Field)
		}
	}
	seen := make(map[string]bool, len(wanted))
	for _, name := range wanted {
		seen[name] = true
	}
	for _, name := range mandatory {
		if name == "" || seen[name] {
			continue
		}
		if _, ok := byName[name]; ok {
			wanted = append(wanted, name)
			seen[name] = true
		}
	}

	attrs := make([]metadata.AttributeInfo, 0, len(wanted))
	for _, name := range wanted {
		attrs = append(attrs, byName[name])
	}
	sort.Slice(attrs, func(i, j int) bool {
		if attrs[i].DisplayName != attrs[j].DisplayName {
			return attrs[i].DisplayName < attrs[j].DisplayName
		}
		return attrs[i].LogicalName < attrs[j].LogicalName
	})
	return attrs, nil
}

// exportTable flattens one table with its translated view filter.
func (e *Engine) exportTable(d *dialect.Dialect, t metadata.TableInfo, tc config.TableConfig, attrs []metadata.AttributeInfo, docs *tableDocs, report *Report) (metadata.ExportTable, error) {
	role, err := metadata.ParseTableRole(tc.Role)
	if err != nil {
		return metadata.ExportTable{}, fmt.Errorf("table %s: %w", t.LogicalName, err)
	}
	storage, err := metadata.ParseStorageMode(tc.Storage)
	if err != nil {
		return metadata.ExportTable{}, fmt.Errorf("table %s: %w", t.LogicalName, err)
	}

	export := metadata.ExportTable{
		LogicalName:          t.LogicalName,
		DisplayName:          t.DisplayName,
		SchemaName:           t.SchemaName,
		PrimaryIDAttribute:   t.PrimaryIDAttribute,
		PrimaryNameAttribute: t.PrimaryNameAttribute,
		Role:                 role,
		StorageMode:          storage,
	}
	for _, a := range attrs {
		export.Attributes = append(export.Attributes, metadata.ExportAttribute{
			LogicalName: a.LogicalName,
			DisplayName: a.DisplayName,
			SchemaName:  a.SchemaName,
			Type:        a.Type,
			Required:    a.Required,
			Targets:     a.Targets,
		})
	}

	if docs.viewFetchXML != "" {
		doc, err := fetchxml.Parse(docs.viewFetchXML, docs.viewName)
		if err != nil {
			// rejecting one view's XML only costs that view's filter
			report.add("filter", t.LogicalName, "",
				fmt.Sprintf("view %q rejected, table built without its filter: %v", docs.viewName, err))
		} else if doc.Filter != nil {
			result := sqlgen.NewTranslator(d, t.LogicalName, attrs).Translate(doc.Filter)
			export.FilterWhere = result.Where
			for _, j := range result.Joins {
				export.FilterJoins = append(export.FilterJoins, j.Render())
			}
			for _, w := range result.Warnings {
				report.add("filter", t.LogicalName, w.Attribute,
					fmt.Sprintf("operator %q: %s", w.Operator, w.Message))
			}
		}
	}
	return export, nil
}

// TableHashes computes the content hash of every emitted table file, for
// run-history recording.
func TableHashes(p *tmdl.Project) map[string]string {
	hashes := make(map[string]string, len(p.TableFiles))
	for logical, file := range p.TableFiles {
		sum := sha256.Sum256([]byte(p.Files[file]))
		hashes[logical] = hex.EncodeToString(sum[:])
	}
	return hashes
}

func findForm(forms []metadata.Form, name string) (metadata.Form, bool) {
	for _, f := range forms {
		if f.Name == name {
			return f, true
		}
	}
	return metadata.Form{}, false
}

func findView(views []metadata.View, name string) (metadata.View, bool) {
	for _, v := range views {
		if v.Name == name {
			return v, true
		}
	}
	return metadata.View{}, false
}
