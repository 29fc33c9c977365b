// Package dag provides directed graph operations for the star-schema
// relationship set: reachability checks used to keep the active-edge graph
// acyclic, and BFS distances used to compute snowflake depth.
package dag

import (
	"fmt"
	"sort"
)

// Graph is a directed graph keyed by node id.
type Graph struct {
	nodes map[string]struct{}
	out   map[string][]string // node -> successors
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]struct{}),
		out:   make(map[string][]string),
	}
}

// AddNode adds a node. Adding an existing node is a no-op.
func (g *Graph) AddNode(id string) {
	if _, ok := g.nodes[id]; !ok {
		g.nodes[id] = struct{}{}
		g.out[id] = nil
	}
}

// AddEdge adds a directed edge. Both nodes must exist; self-loops are
// rejected.
func (g *Graph) AddEdge(from, to string) error {
	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("node %q does not exist", from)
	}
	if _, ok := g.nodes[to]; !ok {
		return fmt.Errorf("node %q does not exist", to)
	}
	if from == to {
		return fmt.Errorf("self-loop on %q", from)
	}
	for _, s := range g.out[from] {
		if s == to {
			return nil
		}
	}
	g.out[from] = append(g.out[from], to)
	return nil
}

// HasPath reports whether to is reachable from from.
func (g *Graph) HasPath(from, to string) bool {
	if from == to {
		return true
	}
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.out[cur] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// Distances returns the BFS distance from root to every reachable node.
// Successors are visited in sorted order so the result is deterministic.
func (g *Graph) Distances(root string) map[string]int {
	dist := map[string]int{}
	if _, ok := g.nodes[root]; !ok {
		return dist
	}
	dist[root] = 0
	queue := []string{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		next := append([]string(nil), g.out[cur]...)
		sort.Strings(next)
		for _, n := range next {
			if _, ok := dist[n]; !ok {
				dist[n] = dist[cur] + 1
				queue = append(queue, n)
			}
		}
	}
	return dist
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, s := range g.out {
		n += len(s)
	}
	return n
}
