// Package modelgraph holds the reference graph between model definitions.
// An edge from A to B means A references B, either because A extends B or
// because A uses B as the schema of a component. A model with referrers
// cannot be deleted from the service.
package modelgraph

import (
	"fmt"
	"slices"
	"sort"
	"sync"
)

// Graph is a directed graph of model ids. It is safe for concurrent use.
type Graph struct {
	mutex sync.RWMutex
	nodes map[string]*node
}

type node struct {
	id         string
	references map[string]*node
	referrers  map[string]*node
}

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*node),
	}
}

// AddNode adds a model with the given id. Adding an existing id is a no-op.
func (g *Graph) AddNode(id string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.addNodeLocked(id)
}

func (g *Graph) addNodeLocked(id string) *node {
	if n, ok := g.nodes[id]; ok {
		return n
	}
	n := &node{
		id:         id,
		references: make(map[string]*node),
		referrers:  make(map[string]*node),
	}
	g.nodes[id] = n
	return n
}

// AddReference records that fromID references toID. Both models must
// already be in the graph, and a model cannot reference itself.
func (g *Graph) AddReference(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential model not allowed: %s -> %s", fromID, fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	from, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("referring model not found: %s", fromID)
	}
	to, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("referenced model not found: %s", toID)
	}

	from.references[toID] = to
	to.referrers[fromID] = from
	return nil
}

// Has reports whether id is a node of the graph.
func (g *Graph) Has(id string) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// Len returns the number of models in the graph.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

// References returns the sorted ids the given model references.
func (g *Graph) References(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("model not found: %s", id)
	}
	return sortedKeys(n.references), nil
}

// Referrers returns the sorted ids of the models that reference id.
func (g *Graph) Referrers(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("model not found: %s", id)
	}
	return sortedKeys(n.referrers), nil
}

// Leaves returns the sorted ids of every model nobody references.
func (g *Graph) Leaves() []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	var leaves []string
	for id, n := range g.nodes {
		if len(n.referrers) == 0 {
			leaves = append(leaves, id)
		}
	}
	sort.Strings(leaves)
	return leaves
}

// DetectCycles checks the graph for any cycles. It returns a non-nil error
// if a cycle is found, naming a model involved in it.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// permanent: fully visited and not on a cycle.
	// temporary: on the current DFS stack.
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *node) error
	visit = func(n *node) error {
		if permanent[n.id] {
			return nil
		}
		if temporary[n.id] {
			return fmt.Errorf("cycle detected involving model '%s'", n.id)
		}

		temporary[n.id] = true
		for _, ref := range n.references {
			if err := visit(ref); err != nil {
				return err
			}
		}
		delete(temporary, n.id)
		permanent[n.id] = true
		return nil
	}

	for _, id := range g.sortedIDsLocked() {
		if err := visit(g.nodes[id]); err != nil {
			return err
		}
	}
	return nil
}

// Components returns the strongly connected components that contain a
// reference cycle, each sorted, ordered by their first id. Every model of a
// component is on some cycle.
func (g *Graph) Components() [][]string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.componentsLocked()
}

// Cycles returns one reference cycle per component, following real edges.
// Each cycle starts at the smallest id of its component and is the shortest
// path from there back to it; the closing edge to the first id is implied.
// Models of a component that are not on that path are left out, see
// Components.
func (g *Graph) Cycles() [][]string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	components := g.componentsLocked()
	cycles := make([][]string, 0, len(components))
	for _, component := range components {
		cycles = append(cycles, g.shortestCycleLocked(component))
	}
	return cycles
}

// shortestCycleLocked walks references breadth first inside component from
// its first id until an edge leads back to it.
func (g *Graph) shortestCycleLocked(component []string) []string {
	start := component[0]
	inside := make(map[string]bool, len(component))
	for _, id := range component {
		inside[id] = true
	}

	prev := map[string]string{}
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, refID := range sortedKeys(g.nodes[id].references) {
			if refID == start {
				var path []string
				for at := id; at != start; at = prev[at] {
					path = append(path, at)
				}
				path = append(path, start)
				slices.Reverse(path)
				return path
			}
			if !inside[refID] {
				continue
			}
			if _, seen := prev[refID]; seen {
				continue
			}
			prev[refID] = id
			queue = append(queue, refID)
		}
	}
	// Unreachable for a strongly connected component.
	return component
}

func (g *Graph) componentsLocked() [][]string {
	// Tarjan's algorithm.
	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var components [][]string

	var strongConnect func(n *node)
	strongConnect = func(n *node) {
		indices[n.id] = index
		lowlink[n.id] = index
		index++
		stack = append(stack, n.id)
		onStack[n.id] = true

		for _, refID := range sortedKeys(n.references) {
			ref := n.references[refID]
			if _, seen := indices[ref.id]; !seen {
				strongConnect(ref)
				lowlink[n.id] = min(lowlink[n.id], lowlink[ref.id])
			} else if onStack[ref.id] {
				lowlink[n.id] = min(lowlink[n.id], indices[ref.id])
			}
		}

		if lowlink[n.id] != indices[n.id] {
			return
		}
		var component []string
		for {
			last := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[last] = false
			component = append(component, last)
			if last == n.id {
				break
			}
		}
		if len(component) > 1 {
			sort.Strings(component)
			components = append(components, component)
		}
	}

	for _, id := range g.sortedIDsLocked() {
		if _, seen := indices[id]; !seen {
			strongConnect(g.nodes[id])
		}
	}

	sort.Slice(components, func(i, j int) bool { return components[i][0] < components[j][0] })
	return components
}

// LongestChain returns the number of models on the longest reference chain.
// It is the number of leaf-peeling passes needed to empty the graph.
func (g *Graph) LongestChain() (int, error) {
	if err := g.DetectCycles(); err != nil {
		return 0, err
	}

	g.mutex.RLock()
	defer g.mutex.RUnlock()

	depth := make(map[string]int)
	var visit func(n *node) int
	visit = func(n *node) int {
		if d, ok := depth[n.id]; ok {
			return d
		}
		best := 0
		for _, ref := range n.references {
			best = max(best, visit(ref))
		}
		depth[n.id] = best + 1
		return best + 1
	}

	longest := 0
	for _, n := range g.nodes {
		longest = max(longest, visit(n))
	}
	return longest, nil
}

func (g *Graph) sortedIDsLocked() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedKeys(m map[string]*node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
