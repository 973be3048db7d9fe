package engine

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/ir"
	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/vars"
)

const refPrefix = "ptr://"

// Graph is a dependency graph stored as an arena: nodes are indexed in
// lexicographic id order and edges refer to node indices.
type Graph struct {
	ids   []string
	index map[string]int
	deps  [][]int // node -> nodes it depends on
	rdeps [][]int // node -> nodes depending on it
	order []int   // topological order
}

// BuildGraph constructs the dependency graph of a declaration set from both
// explicit DependsOn ids and implicit ptr:// references. A reference to an
// undeclared id is a validation error.
func BuildGraph(resources []*ir.Resource) (*Graph, error) {
	ids := make([]string, 0, len(resources))
	byID := make(map[string]*ir.Resource, len(resources))
	for _, res := range resources {
		addr := res.Address()
		if _, dup := byID[addr]; dup {
			return nil, &vars.ValidationError{Subject: "resource " + addr, Reason: "declared more than once"}
		}
		byID[addr] = res
		ids = append(ids, addr)
	}

	g := newGraph(ids)
	for _, addr := range g.ids {
		res := byID[addr]
		for _, dep := range DeclaredReferences(res) {
			if _, ok := g.index[dep]; !ok {
				return nil, &vars.ValidationError{
					Subject: "resource " + addr,
					Reason:  fmt.Sprintf("references undeclared resource %s", dep),
				}
			}
			if dep == addr {
				return nil, &CycleError{Cycle: []string{addr, addr}}
			}
			g.addEdge(addr, dep)
		}
	}

	if err := g.sort(); err != nil {
		return nil, err
	}
	return g, nil
}

// BuildStateGraph constructs the graph recorded in state. Dependencies on
// resources no longer in state are dropped.
func BuildStateGraph(resources []*ir.ResourceState) (*Graph, error) {
	ids := make([]string, 0, len(resources))
	for _, res := range resources {
		ids = append(ids, res.Address())
	}
	g := newGraph(ids)
	for _, res := range resources {
		addr := res.Address()
		for _, dep := range res.Dependencies {
			if _, ok := g.index[dep]; ok && dep != addr {
				g.addEdge(addr, dep)
			}
		}
	}
	if err := g.sort(); err != nil {
		return nil, err
	}
	return g, nil
}

func newGraph(ids []string) *Graph {
	sorted := slices.Clone(ids)
	sort.Strings(sorted)
	sorted = slices.Compact(sorted)

	g := &Graph{
		ids:   sorted,
		index: make(map[string]int, len(sorted)),
		deps:  make([][]int, len(sorted)),
		rdeps: make([][]int, len(sorted)),
	}
	for i, id := range sorted {
		g.index[id] = i
	}
	return g
}

func (g *Graph) addEdge(from, to string) {
	f, t := g.index[from], g.index[to]
	if slices.Contains(g.deps[f], t) {
		return
	}
	g.deps[f] = append(g.deps[f], t)
	g.rdeps[t] = append(g.rdeps[t], f)
}

// sort runs Kahn's algorithm. Ready nodes are taken lowest index first, which
// is lexicographic id order, so the result is deterministic.
func (g *Graph) sort() error {
	inDegree := make([]int, len(g.ids))
	var ready []int
	for i := range g.ids {
		inDegree[i] = len(g.deps[i])
		if inDegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, len(g.ids))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)

		for _, dependent := range g.rdeps[n] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				pos, _ := slices.BinarySearch(ready, dependent)
				ready = slices.Insert(ready, pos, dependent)
			}
		}
	}

	if len(order) != len(g.ids) {
		return &CycleError{Cycle: g.findCycle(inDegree)}
	}
	g.order = order
	return nil
}

// findCycle walks the nodes left unsorted and returns one cycle among them.
func (g *Graph) findCycle(inDegree []int) []string {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(g.ids))
	var stack []int
	var cycle []string

	var visit func(n int) bool
	visit = func(n int) bool {
		color[n] = grey
		stack = append(stack, n)
		deps := slices.Clone(g.deps[n])
		slices.Sort(deps)
		for _, d := range deps {
			if inDegree[d] == 0 {
				continue
			}
			if color[d] == grey {
				start := slices.Index(stack, d)
				for _, s := range stack[start:] {
					cycle = append(cycle, g.ids[s])
				}
				cycle = append(cycle, g.ids[d])
				return true
			}
			if color[d] == white && visit(d) {
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return false
	}

	for n := range g.ids {
		if inDegree[n] > 0 && color[n] == white && visit(n) {
			return cycle
		}
	}
	return nil
}

// CreationOrder returns ids with every node after all nodes it depends on.
func (g *Graph) CreationOrder() []string {
	out := make([]string, len(g.order))
	for i, n := range g.order {
		out[i] = g.ids[n]
	}
	return out
}

// DestructionOrder returns the reverse of CreationOrder, dependents first.
func (g *Graph) DestructionOrder() []string {
	out := g.CreationOrder()
	slices.Reverse(out)
	return out
}

// Has reports whether id is a node of the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Dependencies returns the direct dependencies of id, sorted.
func (g *Graph) Dependencies(id string) []string {
	return g.names(g.deps, id)
}

// Dependents returns the nodes that directly depend on id, sorted.
func (g *Graph) Dependents(id string) []string {
	return g.names(g.rdeps, id)
}

// TransitiveDeps returns every node id depends on, directly or not, sorted.
func (g *Graph) TransitiveDeps(id string) []string {
	return g.reach(g.deps, id)
}

// TransitiveDependents returns every node depending on id, directly or not,
// sorted.
func (g *Graph) TransitiveDependents(id string) []string {
	return g.reach(g.rdeps, id)
}

func (g *Graph) reach(edges [][]int, id string) []string {
	start, ok := g.index[id]
	if !ok {
		return nil
	}
	seen := make([]bool, len(g.ids))
	queue := slices.Clone(edges[start])
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if seen[n] {
			continue
		}
		seen[n] = true
		queue = append(queue, edges[n]...)
	}
	var out []string
	for n, ok := range seen {
		if ok {
			out = append(out, g.ids[n])
		}
	}
	return out
}

func (g *Graph) names(edges [][]int, id string) []string {
	n, ok := g.index[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(edges[n]))
	for _, e := range edges[n] {
		out = append(out, g.ids[e])
	}
	sort.Strings(out)
	return out
}

// DeclaredReferences returns the union of a declaration's explicit DependsOn
// ids and the ids named by ptr:// references in its properties, sorted.
func DeclaredReferences(res *ir.Resource) []string {
	seen := map[string]bool{}
	for _, dep := range res.DependsOn {
		seen[dep] = true
	}
	for _, ref := range extractRefs(res.Properties) {
		if addr := refToAddr(ref); addr != "" {
			seen[addr] = true
		}
	}
	out := make([]string, 0, len(seen))
	for dep := range seen {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// extractRefs extracts all ptr:// references from a property value.
func extractRefs(v any) []string {
	var refs []string
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, refPrefix) {
			refs = append(refs, val)
		}
	case map[string]any:
		for _, v := range val {
			refs = append(refs, extractRefs(v)...)
		}
	case map[any]any:
		for _, v := range val {
			refs = append(refs, extractRefs(v)...)
		}
	case []any:
		for _, v := range val {
			refs = append(refs, extractRefs(v)...)
		}
	case []string:
		for _, v := range val {
			refs = append(refs, extractRefs(v)...)
		}
	}
	return refs
}

// parseRef splits ptr://aws:EC2.Vpc/main/id into the id aws:EC2.Vpc.main and
// the attribute "id".
func parseRef(ref string) (addr, attr string, ok bool) {
	if !strings.HasPrefix(ref, refPrefix) {
		return "", "", false
	}
	parts := strings.SplitN(ref[len(refPrefix):], "/", 3)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return ir.Address(parts[0], parts[1]), parts[2], true
}

func refToAddr(ref string) string {
	addr, _, _ := parseRef(ref)
	return addr
}
