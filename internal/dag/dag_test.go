package dag

import (
	"testing"
)

func TestGraph_AddNodeAndEdge(t *testing.T) {
	g := New()

	g.AddNode("opportunity")
	g.AddNode("account")
	g.AddNode("industry")

	if g.NodeCount() != 3 {
		t.Errorf("expected 3 nodes, got %d", g.NodeCount())
	}

	if err := g.AddEdge("opportunity", "account"); err != nil {
		t.Errorf("failed to add edge: %v", err)
	}
	if err := g.AddEdge("account", "industry"); err != nil {
		t.Errorf("failed to add edge: %v", err)
	}
	// Duplicate edges collapse
	if err := g.AddEdge("opportunity", "account"); err != nil {
		t.Errorf("failed to re-add edge: %v", err)
	}

	if g.EdgeCount() != 2 {
		t.Errorf("expected 2 edges, got %d", g.EdgeCount())
	}
}

func TestGraph_AddEdge_InvalidNodes(t *testing.T) {
	g := New()
	g.AddNode("a")

	if err := g.AddEdge("a", "missing"); err == nil {
		t.Error("expected error for missing target node")
	}
	if err := g.AddEdge("missing", "a"); err == nil {
		t.Error("expected error for missing source node")
	}
}

func TestGraph_AddEdge_SelfLoop(t *testing.T) {
	g := New()
	g.AddNode("account")

	if err := g.AddEdge("account", "account"); err == nil {
		t.Error("expected error for self-loop")
	}
}

func TestGraph_HasPath(t *testing.T) {
	g := New()
	for _, n := range []string{"fact", "dim1", "dim2", "island"} {
		g.AddNode(n)
	}
	_ = g.AddEdge("fact", "dim1")
	_ = g.AddEdge("dim1", "dim2")

	if !g.HasPath("fact", "dim2") {
		t.Error("expected path fact -> dim2")
	}
	if g.HasPath("dim2", "fact") {
		t.Error("unexpected reverse path")
	}
	if g.HasPath("fact", "island") {
		t.Error("unexpected path to island")
	}
}

func TestGraph_Distances(t *testing.T) {
	g := New()
	for _, n := range []string{"fact", "account", "industry", "region"} {
		g.AddNode(n)
	}
	_ = g.AddEdge("fact", "account")
	_ = g.AddEdge("account", "industry")
	_ = g.AddEdge("industry", "region")

	dist := g.Distances("fact")
	want := map[string]int{"fact": 0, "account": 1, "industry": 2, "region": 3}
	for node, d := range want {
		if dist[node] != d {
			t.Errorf("distance(%s) = %d, want %d", node, dist[node], d)
		}
	}
}
