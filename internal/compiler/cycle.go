package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/pitwall/internal/ir"
)

// Cycle is a set of entities whose parent references loop back on
// themselves. No load order can satisfy a cycle.
type Cycle struct {
	Path    []string `json:"path"` // ["race", "circuit", "race"]
	Message string   `json:"message"`
}

// dependencyGraph maps an entity to the parent entities it references.
// nodes keeps declaration order so traversal is deterministic.
type dependencyGraph struct {
	nodes []string
	edges map[string][]string
}

// AnalyzeCycles detects parent-reference cycles among entities.
//
// The algorithm:
//  1. Build entity → parent entity graph from ref attributes
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-reference as a cycle
//
// An acyclic catalog returns an empty list. References to unknown entities
// are ignored here; ValidateCatalog reports them separately.
func AnalyzeCycles(entities []ir.Entity) []Cycle {
	graph := buildDependencyGraph(entities)

	var cycles []Cycle
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			cycles = append(cycles, sccToCycle(scc, graph))
		}
	}
	if cycles == nil {
		return []Cycle{}
	}
	return cycles
}

func buildDependencyGraph(entities []ir.Entity) dependencyGraph {
	graph := dependencyGraph{edges: make(map[string][]string, len(entities))}
	known := make(map[string]bool, len(entities))
	for _, e := range entities {
		if !known[e.Name] {
			graph.nodes = append(graph.nodes, e.Name)
		}
		known[e.Name] = true
	}
	for i := range entities {
		e := &entities[i]
		for _, parent := range e.ParentEntities() {
			if known[parent] {
				graph.edges[e.Name] = append(graph.edges[e.Name], parent)
			}
		}
	}
	return graph
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph.edges[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph.edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range graph.nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

func sccToCycle(scc []string, graph dependencyGraph) Cycle {
	if len(scc) == 1 {
		name := scc[0]
		return Cycle{
			Path:    []string{name, name},
			Message: fmt.Sprintf("entity %s references itself as a parent", name),
		}
	}

	path := reconstructCyclePath(scc, graph)
	return Cycle{
		Path:    path,
		Message: fmt.Sprintf("parent reference cycle: %s", strings.Join(path, " → ")),
	}
}

// reconstructCyclePath builds a cycle path from an SCC by following edges
// between SCC members until the start node is reached again.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[len(scc)-1]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph.edges[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}
