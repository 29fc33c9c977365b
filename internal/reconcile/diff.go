package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"

	"github.com/modelstack-labs/tmdlgen/internal/tmdl"
)

// Diff compares the freshly generated project against the files of an
// existing one and produces a change plan. Both sides go through the same
// parser so that formatting differences never register as changes.
func Diff(desired *tmdl.Project, existingFiles map[string]string) (*Plan, error) {
	plan := &Plan{}

	if len(existingFiles) == 0 {
		for _, key := range sortedKeys(desired.TableFiles) {
			t, err := tmdl.ParseTable(desired.Files[desired.TableFiles[key]])
			if err != nil {
				return nil, err
			}
			plan.Changes = append(plan.Changes, Change{
				Type: ChangeNew, Impact: ImpactAdditive, Object: ObjectTable,
				Name:        t.Name,
				Description: "new table",
			})
		}
		return plan, nil
	}

	want, err := tmdl.ParseProject(desired.Files)
	if err != nil {
		return nil, fmt.Errorf("generated project: %w", err)
	}
	have, err := tmdl.ParseProject(existingFiles)
	if err != nil {
		return nil, fmt.Errorf("existing project: %w", err)
	}

	if have.ConnectionMode != "" && have.ConnectionMode != want.ConnectionMode {
		plan.Changes = append(plan.Changes, Change{
			Type: ChangeUpdate, Impact: ImpactDestructive, Object: ObjectModel,
			Name:        "Model",
			Description: fmt.Sprintf("connection mode changes %s -> %s, all partition queries are rewritten", have.ConnectionMode, want.ConnectionMode),
		})
	}

	for _, key := range sortedKeys(want.Tables) {
		wt := want.Tables[key]
		ht, ok := have.Tables[key]
		if !ok {
			plan.Changes = append(plan.Changes, Change{
				Type: ChangeNew, Impact: ImpactAdditive, Object: ObjectTable,
				Name:        wt.Name,
				Description: "new table",
			})
			continue
		}
		diffTable(plan, wt, ht)
	}

	for _, key := range sortedKeys(have.Tables) {
		if _, ok := want.Tables[key]; ok {
			continue
		}
		ht := have.Tables[key]
		if ht.LogicalName == "" {
			// hand-added table, never generated: reconciliation leaves it alone
			plan.Changes = append(plan.Changes, Change{
				Type: ChangePreserve, Impact: ImpactSafe, Object: ObjectTable,
				Name:        ht.Name,
				Description: "custom table kept",
			})
			continue
		}
		plan.Changes = append(plan.Changes, Change{
			Type: ChangeWarning, Impact: ImpactModerate, Object: ObjectTable,
			Name:        ht.Name,
			Description: "orphaned: table is no longer generated, remove with --remove-orphans",
		})
	}

	for _, f := range sortedKeys(have.Unparsed) {
		plan.Changes = append(plan.Changes, Change{
			Type: ChangePreserve, Impact: ImpactSafe, Object: ObjectTable,
			Name:        f,
			Description: "file not recognized as a generated table, kept verbatim",
		})
	}

	diffRelationships(plan, want.Relationships, have.Relationships)
	return plan, nil
}

func diffTable(plan *Plan, want, have *tmdl.ParsedTable) {
	storageChanged := want.StorageMode != have.StorageMode
	if storageChanged {
		plan.Changes = append(plan.Changes, Change{
			Type: ChangeUpdate, Impact: ImpactDestructive, Object: ObjectStorageMode,
			Table: want.Name, Name: want.Name,
			Description: fmt.Sprintf("storage mode changes %s -> %s, delete the local cache.abf before the next refresh", have.StorageMode, want.StorageMode),
		})
	} else {
		plan.Changes = append(plan.Changes, Change{
			Type: ChangePreserve, Impact: ImpactSafe, Object: ObjectTable,
			Name:        want.Name,
			Description: "table unchanged",
		})
	}

	for _, wc := range want.Columns {
		hc, ok := have.Column(wc.Name)
		if !ok {
			plan.Changes = append(plan.Changes, Change{
				Type: ChangeNew, Impact: ImpactAdditive, Object: ObjectColumn,
				Table: want.Name, Name: wc.Name,
				Description: "new column",
			})
			continue
		}
		if wc.DataType != hc.DataType || wc.SourceColumn != hc.SourceColumn || wc.SummarizeBy != hc.SummarizeBy {
			plan.Changes = append(plan.Changes, Change{
				Type: ChangeUpdate, Impact: ImpactModerate, Object: ObjectColumn,
				Table: want.Name, Name: wc.Name,
				Description: "column definition changes",
				Detail:      unified(wc.Name, hc.Block, wc.Block),
			})
			continue
		}
		plan.Changes = append(plan.Changes, Change{
			Type: ChangePreserve, Impact: ImpactSafe, Object: ObjectColumn,
			Table: want.Name, Name: wc.Name,
			Description: "column unchanged",
		})
	}
	for _, hc := range have.Columns {
		if _, ok := want.Column(hc.Name); !ok {
			plan.Changes = append(plan.Changes, Change{
				Type: ChangePreserve, Impact: ImpactSafe, Object: ObjectColumn,
				Table: want.Name, Name: hc.Name,
				Description: "custom column kept",
			})
		}
	}

	for _, wm := range want.Measures {
		hm, ok := have.Measure(wm.Name)
		if !ok {
			plan.Changes = append(plan.Changes, Change{
				Type: ChangeNew, Impact: ImpactAdditive, Object: ObjectMeasure,
				Table: want.Name, Name: wm.Name,
				Description: "new measure",
			})
			continue
		}
		desc := "measure unchanged"
		if hm.Block != wm.Block {
			// existing definition wins over the generated default
			desc = "edited measure kept"
		}
		plan.Changes = append(plan.Changes, Change{
			Type: ChangePreserve, Impact: ImpactSafe, Object: ObjectMeasure,
			Table: want.Name, Name: wm.Name,
			Description: desc,
		})
	}
	for _, hm := range have.Measures {
		if _, ok := want.Measure(hm.Name); !ok {
			plan.Changes = append(plan.Changes, Change{
				Type: ChangePreserve, Impact: ImpactSafe, Object: ObjectMeasure,
				Table: want.Name, Name: hm.Name,
				Description: "custom measure kept",
			})
		}
	}

	wp, hp := want.Partition, have.Partition
	if storageChanged {
		// the mode line lives inside the partition block; a pure storage
		// switch is already covered by the storageMode change above
		wp, hp = stripModeLine(wp), stripModeLine(hp)
	}
	if wp != hp {
		plan.Changes = append(plan.Changes, Change{
			Type: ChangeUpdate, Impact: ImpactSafe, Object: ObjectPartition,
			Table: want.Name, Name: want.Name,
			Description: "partition query regenerated",
			Detail:      unified(want.Name, have.Partition, want.Partition),
		})
		return
	}
	plan.Changes = append(plan.Changes, Change{
		Type: ChangePreserve, Impact: ImpactSafe, Object: ObjectPartition,
		Table: want.Name, Name: want.Name,
		Description: "partition unchanged",
	})
}

// stripModeLine removes the storage-mode line from a partition block.
func stripModeLine(block string) string {
	lines := strings.Split(block, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "mode:") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}

func diffRelationships(plan *Plan, want, have []tmdl.ParsedRelationship) {
	key := func(r tmdl.ParsedRelationship) string { return r.FromColumn + " -> " + r.ToColumn }

	haveByKey := make(map[string]tmdl.ParsedRelationship, len(have))
	for _, r := range have {
		haveByKey[key(r)] = r
	}
	wantKeys := make(map[string]bool, len(want))

	for _, wr := range want {
		k := key(wr)
		wantKeys[k] = true
		hr, ok := haveByKey[k]
		if !ok {
			plan.Changes = append(plan.Changes, Change{
				Type: ChangeNew, Impact: ImpactAdditive, Object: ObjectRelationship,
				Name:        k,
				Description: "new relationship",
			})
			continue
		}
		if hr.IsActive != wr.IsActive {
			plan.Changes = append(plan.Changes, Change{
				Type: ChangeUpdate, Impact: ImpactModerate, Object: ObjectRelationship,
				Name:        k,
				Description: fmt.Sprintf("active flag changes %t -> %t", hr.IsActive, wr.IsActive),
				Detail:      unified(k, hr.Block, wr.Block),
			})
			continue
		}
		plan.Changes = append(plan.Changes, Change{
			Type: ChangePreserve, Impact: ImpactSafe, Object: ObjectRelationship,
			Name:        k,
			Description: "relationship unchanged",
		})
	}

	for _, hr := range have {
		if !wantKeys[key(hr)] {
			plan.Changes = append(plan.Changes, Change{
				Type: ChangePreserve, Impact: ImpactSafe, Object: ObjectRelationship,
				Name:        key(hr),
				Description: "custom relationship kept",
			})
		}
	}
}

// unified renders a unified diff between the current and generated text of
// one object.
func unified(name, have, want string) string {
	edits := myers.ComputeEdits(span.URIFromPath(name), have+"\n", want+"\n")
	return fmt.Sprint(gotextdiff.ToUnified("current", "generated", have+"\n", edits))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
