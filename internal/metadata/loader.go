package metadata

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// defaultConcurrency bounds parallel per-table metadata fetches.
const defaultConcurrency = 4

// Snapshot is an immutable view of the metadata needed for one build:
// the selected tables plus their attributes, forms, and views. Once returned
// by the Loader it is never mutated.
type Snapshot struct {
	Tables     []TableInfo
	Attributes map[string][]AttributeInfo
	Forms      map[string][]Form
	Views      map[string][]View
}

// Table returns the table with the given logical name, if present.
func (s *Snapshot) Table(logicalName string) (TableInfo, bool) {
	for _, t := range s.Tables {
		if t.LogicalName == logicalName {
			return t, true
		}
	}
	return TableInfo{}, false
}

// Loader fetches per-table metadata from a Source with bounded parallelism.
type Loader struct {
	src         Source
	logger      *slog.Logger
	concurrency int
}

// NewLoader creates a loader. A nil logger discards output.
func NewLoader(src Source, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loader{src: src, logger: logger, concurrency: defaultConcurrency}
}

// Load fetches attributes, forms, and views for every selected table of the
// solution, returning an immutable snapshot. Tables named in selected but
// absent from the solution are an error: the selection refers to schema that
// does not exist.
func (l *Loader) Load(ctx context.Context, solution string, selected []string) (*Snapshot, error) {
	tables, err := l.src.Tables(ctx, solution)
	if err != nil {
		return nil, fmt.Errorf("listing tables of solution %q: %w", solution, err)
	}

	byName := make(map[string]TableInfo, len(tables))
	for _, t := range tables {
		byName[t.LogicalName] = t
	}

	snap := &Snapshot{
		Attributes: make(map[string][]AttributeInfo, len(selected)),
		Forms:      make(map[string][]Form, len(selected)),
		Views:      make(map[string][]View, len(selected)),
	}
	for _, name := range selected {
		t, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("table %q not found in solution %q", name, solution)
		}
		snap.Tables = append(snap.Tables, t)
	}
	sort.Slice(snap.Tables, func(i, j int) bool {
		return snap.Tables[i].LogicalName < snap.Tables[j].LogicalName
	})

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)

	for _, t := range snap.Tables {
		t := t
		g.Go(func() error {
			l.logger.Debug("loading table metadata", slog.String("table", t.LogicalName))

			attrs, err := l.src.Attributes(gctx, t.LogicalName)
			if err != nil {
				return fmt.Errorf("loading attributes of %q: %w", t.LogicalName, err)
			}
			normalizeAttributes(attrs)

			forms, err := l.src.Forms(gctx, t.LogicalName)
			if err != nil {
				return fmt.Errorf("loading forms of %q: %w", t.LogicalName, err)
			}

			views, err := l.src.Views(gctx, t.LogicalName)
			if err != nil {
				return fmt.Errorf("loading views of %q: %w", t.LogicalName, err)
			}

			mu.Lock()
			snap.Attributes[t.LogicalName] = attrs
			snap.Forms[t.LogicalName] = forms
			snap.Views[t.LogicalName] = views
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

// normalizeAttributes applies the display conventions of the metadata API:
// a missing display name falls back to the schema name, and attributes are
// ordered by display name.
func normalizeAttributes(attrs []AttributeInfo) {
	for i := range attrs {
		if attrs[i].DisplayName == "" {
			attrs[i].DisplayName = attrs[i].SchemaName
		}
	}
	sort.Slice(attrs, func(i, j int) bool {
		if attrs[i].DisplayName != attrs[j].DisplayName {
			return attrs[i].DisplayName < attrs[j].DisplayName
		}
		return attrs[i].LogicalName < attrs[j].LogicalName
	})
}
