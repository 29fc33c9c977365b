package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelstack-labs/tmdlgen/internal/tmdl"
)

// ErrDestructive is returned when a plan contains destructive changes and
// the caller has not opted in to applying them.
var ErrDestructive = errors.New("plan contains destructive changes")

// Options control how a plan is applied.
type Options struct {
	// AcceptDestructive allows destructive changes; a full project backup is
	// taken before the first write.
	AcceptDestructive bool
	// RemoveOrphans deletes table files that are no longer generated.
	// Without it orphans are left in place and reported as warnings.
	RemoveOrphans bool
}

// Result reports what an apply did on disk.
type Result struct {
	Written   []string
	Deleted   []string
	BackupDir string
}

// Apply reconciles the generated project into the directory at root. All
// merged content is computed before the first write, so cancellation or a
// planning error never leaves a half-written project.
func Apply(ctx context.Context, root string, desired *tmdl.Project, opts Options, logger *slog.Logger) (*Result, *Plan, error) {
	existing, err := LoadProjectFiles(root)
	if err != nil {
		return nil, nil, err
	}

	plan, err := Diff(desired, existing)
	if err != nil {
		return nil, nil, err
	}
	if plan.HasDestructive() && !opts.AcceptDestructive {
		return nil, plan, ErrDestructive
	}

	var deletions []string
	dropped := map[string]bool{}
	if opts.RemoveOrphans {
		deletions, dropped = orphanFiles(desired, existing)
	}

	writes, err := mergeProject(desired, existing, dropped)
	if err != nil {
		return nil, plan, err
	}

	if err := ctx.Err(); err != nil {
		return nil, plan, err
	}

	result := &Result{}
	needBackup := plan.HasDestructive() || len(deletions) > 0
	if needBackup && (len(writes) > 0 || len(deletions) > 0) {
		dir, err := backupProject(root)
		if err != nil {
			return nil, plan, fmt.Errorf("backup before destructive apply: %w", err)
		}
		result.BackupDir = dir
		logger.Info("project backed up", "dir", dir)
	}

	for _, rel := range sortedKeys(writes) {
		if existing[rel] == writes[rel] {
			continue
		}
		if err := writeFileAtomic(filepath.Join(root, filepath.FromSlash(rel)), writes[rel]); err != nil {
			return result, plan, err
		}
		result.Written = append(result.Written, rel)
		logger.Debug("file written", "path", rel)
	}

	for _, rel := range deletions {
		if err := os.Remove(filepath.Join(root, filepath.FromSlash(rel))); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return result, plan, err
		}
		result.Deleted = append(result.Deleted, rel)
		logger.Debug("orphan removed", "path", rel)
	}

	return result, plan, nil
}

// mergeProject computes the final content of every desired file, folding
// preserved customization from the existing project into generated text.
// Relationships touching a table in dropTables are not carried over.
func mergeProject(desired *tmdl.Project, existing map[string]string, dropTables map[string]bool) (map[string]string, error) {
	out := make(map[string]string, len(desired.Files))
	for path, content := range desired.Files {
		out[path] = content
	}

	if len(existing) == 0 {
		return out, nil
	}
	have, err := tmdl.ParseProject(existing)
	if err != nil {
		return nil, fmt.Errorf("existing project: %w", err)
	}

	for key, path := range desired.TableFiles {
		ht, ok := have.Tables[key]
		if !ok {
			continue
		}
		merged, err := mergeTable(desired.Files[path], ht)
		if err != nil {
			return nil, fmt.Errorf("merge table %s: %w", key, err)
		}
		out[path] = merged
	}

	if rels, ok := out[tmdl.RelationshipsFile]; ok {
		out[tmdl.RelationshipsFile] = mergeRelationships(rels, have.Relationships, dropTables)
	}

	// files that did not parse are never overwritten
	for f, content := range have.Unparsed {
		out[f] = content
	}
	return out, nil
}

// mergeTable folds preserved blocks of the existing table into the
// generated text: hand-edited measures win over generated ones, and custom
// columns, measures and other blocks are appended.
func mergeTable(generated string, existing *tmdl.ParsedTable) (string, error) {
	t, err := tmdl.ParseTable(generated)
	if err != nil {
		return "", err
	}

	for i, m := range t.Measures {
		if em, ok := existing.Measure(m.Name); ok {
			t.Measures[i] = em
		}
	}
	for _, em := range existing.Measures {
		if _, ok := t.Measure(em.Name); !ok {
			t.Measures = append(t.Measures, em)
		}
	}
	for _, ec := range existing.Columns {
		if _, ok := t.Column(ec.Name); !ok {
			t.Columns = append(t.Columns, ec)
		}
	}
	t.Extra = append(t.Extra, existing.Extra...)

	return tmdl.RenderParsedTable(t), nil
}

// mergeRelationships appends existing relationships that the generator does
// not produce (hand-added ones) after the generated blocks, skipping any
// that reference a table being removed.
func mergeRelationships(generated string, existing []tmdl.ParsedRelationship, dropTables map[string]bool) string {
	want := tmdl.ParseRelationshipBlocks(generated)
	known := make(map[string]bool, len(want))
	for _, r := range want {
		known[r.FromColumn+"|"+r.ToColumn] = true
	}

	var extra []string
	for _, r := range existing {
		if known[r.FromColumn+"|"+r.ToColumn] {
			continue
		}
		if dropTables[refTable(r.FromColumn)] || dropTables[refTable(r.ToColumn)] {
			continue
		}
		extra = append(extra, r.Block)
	}
	if len(extra) == 0 {
		return generated
	}

	var b strings.Builder
	b.WriteString(generated)
	for _, block := range extra {
		b.WriteString("\r\n")
		b.WriteString(strings.ReplaceAll(block, "\n", "\r\n"))
		b.WriteString("\r\n")
	}
	return b.String()
}

// orphanFiles lists existing generated table files whose tables are no
// longer produced, plus the display names of those tables. Hand-added
// tables are never orphans.
func orphanFiles(desired *tmdl.Project, existing map[string]string) ([]string, map[string]bool) {
	have, err := tmdl.ParseProject(existing)
	if err != nil {
		return nil, nil
	}
	var orphans []string
	names := map[string]bool{}
	for _, key := range sortedKeys(have.Tables) {
		if have.Tables[key].LogicalName == "" {
			continue
		}
		if _, ok := desired.TableFiles[key]; ok {
			continue
		}
		orphans = append(orphans, have.TableFiles[key])
		names[have.Tables[key].Name] = true
	}
	return orphans, names
}

// refTable extracts the table part of a Table.Column reference, honoring
// quoted names that may themselves contain dots.
func refTable(ref string) string {
	if strings.HasPrefix(ref, "'") {
		for i := 1; i < len(ref); i++ {
			if ref[i] != '\'' {
				continue
			}
			if i+1 < len(ref) && ref[i+1] == '\'' {
				i++
				continue
			}
			return strings.ReplaceAll(ref[1:i], "''", "'")
		}
		return ref
	}
	table, _, _ := strings.Cut(ref, ".")
	return table
}

// LoadProjectFiles reads every TMDL file under the project root into a map
// keyed by slash-separated relative path. A missing root is an empty
// project, not an error.
func LoadProjectFiles(root string) (map[string]string, error) {
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".tmdl") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(content)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func writeFileAtomic(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmdlgen-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
