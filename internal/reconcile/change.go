// Package reconcile compares a freshly generated semantic model against an
// existing project on disk and produces a change plan: what is new, what
// must be updated, and what the user has customized and must be preserved.
// Applying a plan never destroys customization without an explicit opt-in,
// and destructive applies are preceded by a full project backup.
package reconcile

import "fmt"

// ChangeType classifies one planned change.
type ChangeType string

const (
	ChangeNew      ChangeType = "new"
	ChangeUpdate   ChangeType = "update"
	ChangePreserve ChangeType = "preserve"
	ChangeWarning  ChangeType = "warning"
	ChangeError    ChangeType = "error"
	ChangeInfo     ChangeType = "info"
)

// Impact grades how disruptive applying a change is to an existing model.
type Impact int

const (
	ImpactSafe Impact = iota
	ImpactAdditive
	ImpactModerate
	ImpactDestructive
)

func (i Impact) String() string {
	switch i {
	case ImpactSafe:
		return "safe"
	case ImpactAdditive:
		return "additive"
	case ImpactModerate:
		return "moderate"
	case ImpactDestructive:
		return "destructive"
	default:
		return fmt.Sprintf("impact(%d)", int(i))
	}
}

// ObjectType names the kind of model object a change touches.
type ObjectType string

const (
	ObjectModel        ObjectType = "model"
	ObjectTable        ObjectType = "table"
	ObjectStorageMode  ObjectType = "storageMode"
	ObjectColumn       ObjectType = "column"
	ObjectMeasure      ObjectType = "measure"
	ObjectRelationship ObjectType = "relationship"
	ObjectPartition    ObjectType = "partition"
)

// Change is one entry of a reconciliation plan.
type Change struct {
	Type        ChangeType
	Impact      Impact
	Object      ObjectType
	Table       string
	Name        string
	Description string
	// Detail carries a unified diff for updates, empty otherwise.
	Detail string
}

// Plan is the ordered set of changes produced by Diff.
type Plan struct {
	Changes []Change
}

// HasDestructive reports whether any change in the plan is destructive.
func (p *Plan) HasDestructive() bool {
	for _, c := range p.Changes {
		if c.Impact == ImpactDestructive {
			return true
		}
	}
	return false
}

// HasWork reports whether applying the plan would modify any file.
func (p *Plan) HasWork() bool {
	for _, c := range p.Changes {
		if c.Type == ChangeNew || c.Type == ChangeUpdate {
			return true
		}
	}
	return false
}

// Counts tallies changes by type.
func (p *Plan) Counts() map[ChangeType]int {
	counts := make(map[ChangeType]int)
	for _, c := range p.Changes {
		counts[c.Type]++
	}
	return counts
}
