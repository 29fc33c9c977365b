package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// snapshotFile is the on-disk schema of a metadata snapshot, as exported by
// the extraction tooling. Documents (FormXML, FetchXML) are embedded so a
// snapshot is self-contained and builds run fully offline.
type snapshotFile struct {
	Solutions []snapshotSolution       `json:"solutions"`
	Tables    map[string]snapshotTable `json:"tables"`
}

type snapshotSolution struct {
	ID           string `json:"id"`
	UniqueName   string `json:"unique_name"`
	FriendlyName string `json:"friendly_name"`
	Managed      bool   `json:"managed"`
	Tables       []string `json:"tables"`
}

type snapshotTable struct {
	DisplayName          string              `json:"display_name"`
	SchemaName           string              `json:"schema_name"`
	PrimaryIDAttribute   string              `json:"primary_id_attribute"`
	PrimaryNameAttribute string              `json:"primary_name_attribute"`
	ObjectTypeCode       int                 `json:"object_type_code"`
	Attributes           []snapshotAttribute `json:"attributes"`
	Forms                []snapshotDocument  `json:"forms"`
	Views                []snapshotDocument  `json:"views"`
}

type snapshotAttribute struct {
	LogicalName string   `json:"logical_name"`
	DisplayName string   `json:"display_name"`
	SchemaName  string   `json:"schema_name"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	IsCustom    bool     `json:"is_custom"`
	Targets     []string `json:"targets"`
	// ValidForRead mirrors the metadata API flag; absent means readable.
	ValidForRead *bool `json:"valid_for_read"`
}

type snapshotDocument struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	XML  string `json:"xml"`
}

// FileSource is a Source backed by a metadata snapshot file. It satisfies
// the same contract as a live connection but reads everything from the
// snapshot, keyed the way the live API keys it.
type FileSource struct {
	snap snapshotFile
	docs map[string]string
}

// OpenFileSource reads a metadata snapshot from path.
func OpenFileSource(path string) (*FileSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata snapshot: %w", err)
	}
	var snap snapshotFile
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("parse metadata snapshot %s: %w", path, err)
	}

	docs := make(map[string]string)
	for _, t := range snap.Tables {
		for _, f := range t.Forms {
			docs[f.ID] = f.XML
		}
		for _, v := range t.Views {
			docs[v.ID] = v.XML
		}
	}
	return &FileSource{snap: snap, docs: docs}, nil
}

// Solutions lists the solutions recorded in the snapshot.
func (s *FileSource) Solutions(ctx context.Context) ([]Solution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Solution
	for _, sol := range s.snap.Solutions {
		out = append(out, Solution{
			ID:           sol.ID,
			UniqueName:   sol.UniqueName,
			FriendlyName: sol.FriendlyName,
			Managed:      sol.Managed,
		})
	}
	return out, nil
}

// Tables lists the tables of a solution. An unknown solution name matches
// nothing; a snapshot without solution groupings exposes every table.
func (s *FileSource) Tables(ctx context.Context, solution string) ([]TableInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	include := func(string) bool { return true }
	for _, sol := range s.snap.Solutions {
		if sol.UniqueName != solution || len(sol.Tables) == 0 {
			continue
		}
		members := make(map[string]bool, len(sol.Tables))
		for _, name := range sol.Tables {
			members[name] = true
		}
		include = func(name string) bool { return members[name] }
		break
	}

	var out []TableInfo
	for name, t := range s.snap.Tables {
		if !include(name) {
			continue
		}
		out = append(out, TableInfo{
			LogicalName:          name,
			DisplayName:          t.DisplayName,
			SchemaName:           t.SchemaName,
			PrimaryIDAttribute:   t.PrimaryIDAttribute,
			PrimaryNameAttribute: t.PrimaryNameAttribute,
			ObjectTypeCode:       t.ObjectTypeCode,
		})
	}
	return out, nil
}

// Attributes lists the attributes of a table.
func (s *FileSource) Attributes(ctx context.Context, table string) ([]AttributeInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, ok := s.snap.Tables[table]
	if !ok {
		return nil, fmt.Errorf("table %q not in snapshot", table)
	}
	var out []AttributeInfo
	for _, a := range t.Attributes {
		if a.ValidForRead != nil && !*a.ValidForRead {
			continue
		}
		out = append(out, AttributeInfo{
			LogicalName: a.LogicalName,
			DisplayName: a.DisplayName,
			SchemaName:  a.SchemaName,
			Type:        AttributeType(a.Type),
			Required:    a.Required,
			IsCustom:    a.IsCustom,
			Targets:     a.Targets,
		})
	}
	return out, nil
}

// Forms lists the main forms of a table.
func (s *FileSource) Forms(ctx context.Context, table string) ([]Form, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, ok := s.snap.Tables[table]
	if !ok {
		return nil, fmt.Errorf("table %q not in snapshot", table)
	}
	var out []Form
	for _, f := range t.Forms {
		out = append(out, Form{ID: f.ID, Name: f.Name})
	}
	return out, nil
}

// FormXML returns the FormXML of one form.
func (s *FileSource) FormXML(ctx context.Context, formID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	xml, ok := s.docs[formID]
	if !ok {
		return "", fmt.Errorf("form %q not in snapshot", formID)
	}
	return xml, nil
}

// Views lists the saved queries of a table.
func (s *FileSource) Views(ctx context.Context, table string) ([]View, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, ok := s.snap.Tables[table]
	if !ok {
		return nil, fmt.Errorf("table %q not in snapshot", table)
	}
	var out []View
	for _, v := range t.Views {
		out = append(out, View{ID: v.ID, Name: v.Name})
	}
	return out, nil
}

// ViewFetchXML returns the stored FetchXML of one view.
func (s *FileSource) ViewFetchXML(ctx context.Context, viewID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	xml, ok := s.docs[viewID]
	if !ok {
		return "", fmt.Errorf("view %q not in snapshot", viewID)
	}
	return xml, nil
}
