package tmdl

import (
	"fmt"
	"sort"
	"strings"

	"github.com/modelstack-labs/tmdlgen/internal/metadata"
)

// ParsedColumn is a column block read from an existing table file.
type ParsedColumn struct {
	Name         string
	DataType     string
	SourceColumn string
	SummarizeBy  string
	Block        string
}

// ParsedMeasure is a measure block read from an existing table file, kept
// verbatim so hand-written expressions survive regeneration untouched.
type ParsedMeasure struct {
	Name  string
	Block string
}

// ParsedTable is one table file in block form. Recognized blocks are typed;
// everything else (hierarchies, extra annotations, custom content) rides
// along verbatim in Extra.
type ParsedTable struct {
	Name        string
	LineageTag  string
	LogicalName string
	StorageMode metadata.StorageMode
	Annotations map[string]string
	Columns     []ParsedColumn
	Measures    []ParsedMeasure
	Partition   string
	Extra       []string

	header []string
}

// Column returns the column with the given name.
func (t *ParsedTable) Column(name string) (ParsedColumn, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ParsedColumn{}, false
}

// Measure returns the measure with the given name.
func (t *ParsedTable) Measure(name string) (ParsedMeasure, bool) {
	for _, m := range t.Measures {
		if m.Name == name {
			return m, true
		}
	}
	return ParsedMeasure{}, false
}

// ParsedRelationship is one relationship block from relationships.tmdl.
type ParsedRelationship struct {
	Name       string
	FromColumn string
	ToColumn   string
	IsActive   bool
	Block      string
}

// ParsedProject is an existing project tree in comparable form.
type ParsedProject struct {
	ConnectionMode metadata.ConnectionMode
	// Tables is keyed by source logical name when the table carries the
	// source annotation, otherwise by its display name.
	Tables        map[string]*ParsedTable
	Relationships []ParsedRelationship
	// TableFiles maps the Tables key back to the file the table came from.
	TableFiles map[string]string
	// Unparsed holds table-directory files that did not parse, verbatim.
	// Reconciliation preserves them instead of failing.
	Unparsed map[string]string
}

// ParseProject reads an existing project's files into comparable form.
// Unknown files are ignored; table files that fail to parse are captured
// verbatim in Unparsed.
func ParseProject(files map[string]string) (*ParsedProject, error) {
	p := &ParsedProject{
		Tables:     make(map[string]*ParsedTable),
		TableFiles: make(map[string]string),
		Unparsed:   make(map[string]string),
	}

	paths := make([]string, 0, len(files))
	for f := range files {
		paths = append(paths, f)
	}
	sort.Strings(paths)

	for _, f := range paths {
		content := files[f]
		switch {
		case f == ModelFile:
			p.ConnectionMode = parseModelMode(content)
		case f == RelationshipsFile:
			p.Relationships = parseRelationships(content)
		case strings.HasPrefix(f, TablesDir+"/") && strings.HasSuffix(f, ".tmdl"):
			t, err := ParseTable(content)
			if err != nil {
				p.Unparsed[f] = content
				continue
			}
			key := t.LogicalName
			if key == "" {
				key = t.Name
			}
			p.Tables[key] = t
			p.TableFiles[key] = f
		}
	}
	return p, nil
}

// ParseTable parses one table file. The parse is line-based and lenient:
// recognized level-one blocks are typed, the rest is preserved verbatim.
func ParseTable(content string) (*ParsedTable, error) {
	lines := splitLines(content)
	if len(lines) == 0 {
		return nil, fmt.Errorf("tmdl: empty table file")
	}

	first := strings.TrimSpace(lines[0])
	if !strings.HasPrefix(first, "table ") {
		return nil, fmt.Errorf("tmdl: expected table declaration, got %q", first)
	}

	t := &ParsedTable{
		Name:        unquoteName(strings.TrimPrefix(first, "table ")),
		Annotations: make(map[string]string),
	}

	for _, b := range splitBlocks(lines[1:]) {
		head := strings.TrimSpace(b[0])
		switch {
		case strings.HasPrefix(head, "annotation "):
			k, v := parseAnnotation(head)
			t.Annotations[k] = v
		case strings.HasPrefix(head, "column "):
			t.Columns = append(t.Columns, parseColumn(b))
		case strings.HasPrefix(head, "measure "):
			t.Measures = append(t.Measures, ParsedMeasure{
				Name:  measureName(head),
				Block: strings.Join(b, "\n"),
			})
		case strings.HasPrefix(head, "partition "):
			t.Partition = strings.Join(b, "\n")
		case strings.HasPrefix(head, "lineageTag:"):
			t.LineageTag = strings.TrimSpace(strings.TrimPrefix(head, "lineageTag:"))
			t.header = append(t.header, b[0])
		case strings.HasPrefix(head, "dataCategory:") || strings.Contains(head, ":") && len(b) == 1:
			t.header = append(t.header, b[0])
		default:
			t.Extra = append(t.Extra, strings.Join(b, "\n"))
		}
	}

	t.LogicalName = t.Annotations[annotationSource]
	if s, err := metadata.ParseStorageMode(t.Annotations[annotationStorage]); err == nil {
		t.StorageMode = s
	}
	return t, nil
}

// splitLines normalizes line endings and drops a trailing empty line.
func splitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// splitBlocks groups level-one lines with their deeper-indented bodies.
// Blank lines separate blocks and are not retained.
func splitBlocks(lines []string) [][]string {
	var blocks [][]string
	var cur []string
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			if cur != nil {
				blocks = append(blocks, cur)
				cur = nil
			}
			continue
		}
		if indentOf(l) <= 1 && cur != nil {
			blocks = append(blocks, cur)
			cur = nil
		}
		cur = append(cur, l)
	}
	if cur != nil {
		blocks = append(blocks, cur)
	}
	return blocks
}

func indentOf(l string) int {
	n := 0
	for _, r := range l {
		if r != '\t' {
			break
		}
		n++
	}
	return n
}

func parseAnnotation(head string) (string, string) {
	rest := strings.TrimPrefix(head, "annotation ")
	k, v, ok := strings.Cut(rest, "=")
	if !ok {
		return strings.TrimSpace(rest), ""
	}
	return strings.TrimSpace(k), strings.TrimSpace(v)
}

func parseColumn(block []string) ParsedColumn {
	c := ParsedColumn{
		Name:  unquoteName(strings.TrimPrefix(strings.TrimSpace(block[0]), "column ")),
		Block: strings.Join(block, "\n"),
	}
	for _, l := range block[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(l), ":")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		switch k {
		case "dataType":
			c.DataType = v
		case "sourceColumn":
			c.SourceColumn = v
		case "summarizeBy":
			c.SummarizeBy = v
		}
	}
	return c
}

// measureName extracts the name from a measure header, which may carry an
// inline expression after the equals sign.
func measureName(head string) string {
	rest := strings.TrimPrefix(head, "measure ")
	if strings.HasPrefix(rest, "'") {
		// quoted name, terminated by a non-doubled quote
		for i := 1; i < len(rest); i++ {
			if rest[i] != '\'' {
				continue
			}
			if i+1 < len(rest) && rest[i+1] == '\'' {
				i++
				continue
			}
			return unquoteName(rest[:i+1])
		}
		return unquoteName(rest)
	}
	name, _, _ := strings.Cut(rest, "=")
	return strings.TrimSpace(name)
}

func parseModelMode(content string) metadata.ConnectionMode {
	for _, l := range splitLines(content) {
		head := strings.TrimSpace(l)
		if !strings.HasPrefix(head, "annotation "+annotationMode) {
			continue
		}
		_, v := parseAnnotation(head)
		if m, err := metadata.ParseConnectionMode(v); err == nil {
			return m
		}
	}
	return ""
}

// ParseRelationshipBlocks parses the content of a relationships file.
func ParseRelationshipBlocks(content string) []ParsedRelationship {
	return parseRelationships(content)
}

func parseRelationships(content string) []ParsedRelationship {
	var rels []ParsedRelationship
	var cur *ParsedRelationship
	flush := func() {
		if cur != nil {
			rels = append(rels, *cur)
			cur = nil
		}
	}
	var block []string
	for _, l := range splitLines(content) {
		head := strings.TrimSpace(l)
		if strings.HasPrefix(head, "relationship ") && indentOf(l) == 0 {
			if cur != nil {
				cur.Block = strings.Join(block, "\n")
			}
			flush()
			cur = &ParsedRelationship{
				Name:     strings.TrimSpace(strings.TrimPrefix(head, "relationship ")),
				IsActive: true,
			}
			block = []string{l}
			continue
		}
		if cur == nil || head == "" {
			continue
		}
		block = append(block, l)
		k, v, ok := strings.Cut(head, ":")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		switch k {
		case "fromColumn":
			cur.FromColumn = v
		case "toColumn":
			cur.ToColumn = v
		case "isActive":
			cur.IsActive = v != "false"
		}
	}
	if cur != nil {
		cur.Block = strings.Join(block, "\n")
	}
	flush()
	return rels
}

// RenderParsedTable re-renders a parsed table, used when preserving
// hand-edited blocks through regeneration. Column and measure blocks keep
// their verbatim text.
func RenderParsedTable(t *ParsedTable) string {
	w := &writer{}
	w.line(0, "table "+quoteName(t.Name))
	for _, h := range t.header {
		w.raw(h)
	}

	keys := make([]string, 0, len(t.Annotations))
	for k := range t.Annotations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		w.blank()
		if v := t.Annotations[k]; v != "" {
			w.line(1, fmt.Sprintf("annotation %s = %s", k, v))
		} else {
			w.line(1, "annotation "+k)
		}
	}

	for _, c := range t.Columns {
		w.blank()
		w.raw(c.Block)
	}
	for _, m := range t.Measures {
		w.blank()
		w.raw(m.Block)
	}
	for _, x := range t.Extra {
		w.blank()
		w.raw(x)
	}
	if t.Partition != "" {
		w.blank()
		w.raw(t.Partition)
	}
	return w.render()
}
