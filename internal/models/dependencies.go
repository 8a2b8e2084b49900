package models

import (
	"slices"
	"strings"

	"github.com/google/uuid"
)

// DependencyGraph maps a requirement id to the ids of its predecessors.
// Requirements refer to each other only through this arena of ids.
type DependencyGraph map[uuid.UUID][]uuid.UUID

// BuildDependencyGraph collects the predecessor edges of reqs.
func BuildDependencyGraph(reqs []Requirement) DependencyGraph {
	g := make(DependencyGraph, len(reqs))
	for _, r := range reqs {
		g[r.ID] = r.Predecessors
	}
	return g
}

// Successors returns the ids that list id as a predecessor, in sorted order.
func (g DependencyGraph) Successors(id uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	for node, preds := range g {
		if slices.Contains(preds, id) {
			out = append(out, node)
		}
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })
	return out
}

// findCycle performs a depth-first search from start, following predecessor
// edges, with root already on the recursion path. It returns the path that
// leads back onto the recursion path, or nil when no cycle is reachable.
func findCycle(root, start uuid.UUID, preds func(uuid.UUID) []uuid.UUID) []uuid.UUID {
	visited := make(map[uuid.UUID]bool)
	onPath := map[uuid.UUID]bool{root: true}

	var dfs func(node uuid.UUID, path []uuid.UUID) []uuid.UUID
	dfs = func(node uuid.UUID, path []uuid.UUID) []uuid.UUID {
		if onPath[node] {
			return append(path, node)
		}
		if visited[node] {
			return nil
		}
		visited[node] = true
		onPath[node] = true
		path = append(path, node)

		for _, next := range preds(node) {
			if cycle := dfs(next, path); cycle != nil {
				return cycle
			}
		}

		onPath[node] = false
		return nil
	}

	return dfs(start, []uuid.UUID{root})
}

func formatPath(path []uuid.UUID) string {
	parts := make([]string, len(path))
	for i, id := range path {
		parts[i] = id.String()
	}
	return strings.Join(parts, " -> ")
}
