package tmdl

import "strings"

// lineEnding is the hard output format requirement: downstream tooling is
// line-ending sensitive, so every emitted file uses CRLF and tab indents.
const lineEnding = "\r\n"

// writer accumulates TMDL text with tab indentation and CRLF line endings.
type writer struct {
	lines []string
}

// line appends one line at the given indent level. Embedded newlines split
// into multiple lines at the same level.
func (w *writer) line(indent int, text string) {
	prefix := strings.Repeat("\t", indent)
	for _, part := range strings.Split(text, "\n") {
		part = strings.TrimRight(part, "\r")
		if part == "" {
			w.lines = append(w.lines, "")
			continue
		}
		w.lines = append(w.lines, prefix+part)
	}
}

// blank appends an empty line, collapsing consecutive blanks.
func (w *writer) blank() {
	if n := len(w.lines); n > 0 && w.lines[n-1] == "" {
		return
	}
	w.lines = append(w.lines, "")
}

// raw appends pre-indented text verbatim, line by line.
func (w *writer) raw(text string) {
	for _, part := range strings.Split(text, "\n") {
		w.lines = append(w.lines, strings.TrimRight(part, "\r"))
	}
}

// render joins the accumulated lines with CRLF, with a trailing newline.
func (w *writer) render() string {
	return strings.Join(w.lines, lineEnding) + lineEnding
}

// quoteName quotes a TMDL object name when it contains characters outside
// the bare-identifier set.
func quoteName(name string) string {
	for _, r := range name {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
			continue
		}
		return "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	if name == "" {
		return "''"
	}
	return name
}

// unquoteName reverses quoteName for parsing.
func unquoteName(name string) string {
	name = strings.TrimSpace(name)
	if len(name) >= 2 && strings.HasPrefix(name, "'") && strings.HasSuffix(name, "'") {
		return strings.ReplaceAll(name[1:len(name)-1], "''", "'")
	}
	return name
}

// indentBlock prefixes every line of a multi-line block with the given
// indent level, preserving the block's own internal indentation.
func indentBlock(text string, level int) string {
	prefix := strings.Repeat("\t", level)
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

// safeFileName maps a table name to a file name, replacing characters that
// are unsafe on common filesystems.
func safeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
