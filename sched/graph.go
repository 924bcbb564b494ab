package sched

import (
	"container/heap"
	"sort"
)

type graphNode struct {
	id    SystemID
	order uint64
	name  string
	desc  Desc
}

// A Graph holds the fully resolved ordering constraints of one plan build:
// the phase ranks flattened into edges plus every explicit edge. Nodes are
// kept in registration order. The graph is immutable once built.
type Graph struct {
	nodes []graphNode
	index map[SystemID]int

	// succ[i] lists the nodes that must run after node i. kind[i][j] is
	// the strongest edge kind declared between i and its successor j.
	succ [][]int
	pred [][]int
	kind []map[int]EdgeKind
}

// buildGraph snapshots the registry and resolves phase ranks and explicit
// edges into a single edge set. A cycle anywhere in the result, including
// one that passes through phase edges, yields a CyclicDependencyError.
func buildGraph(reg *Registry) (*Graph, error) {
	recs := reg.byOrder()
	edges := reg.edgeSnapshot()

	g := new(Graph)
	g.index = make(map[SystemID]int, len(recs))
	g.nodes = make([]graphNode, 0, len(recs))
	g.succ = make([][]int, len(recs))
	g.pred = make([][]int, len(recs))
	g.kind = make([]map[int]EdgeKind, len(recs))

	for i, rec := range recs {
		g.nodes = append(g.nodes, graphNode{
			id:    rec.id,
			order: rec.order,
			name:  rec.desc.Name,
			desc:  rec.desc,
		})
		g.index[rec.id] = i
		g.kind[i] = make(map[int]EdgeKind)
	}

	g.addPhaseEdges(reg)
	g.addExplicitEdges(edges)

	if cycle := g.findCycle(); cycle != nil {
		return nil, &CyclicDependencyError{Cycle: cycle}
	}

	return g, nil
}

// addPhaseEdges links each occupied phase rank to the next occupied rank.
// Transitivity makes edges between non-adjacent ranks redundant.
func (g *Graph) addPhaseEdges(reg *Registry) {
	byRank := make(map[int][]int)
	for i := range g.nodes {
		rank := reg.phaseRank(g.nodes[i].desc.Phase)
		byRank[rank] = append(byRank[rank], i)
	}

	ranks := make([]int, 0, len(byRank))
	for rank := range byRank {
		ranks = append(ranks, rank)
	}

	sort.Ints(ranks)

	for i := 1; i < len(ranks); i++ {
		for _, later := range byRank[ranks[i]] {
			for _, earlier := range byRank[ranks[i-1]] {
				g.addEdge(later, earlier, EdgeAfter)
			}
		}
	}
}

func (g *Graph) addExplicitEdges(edges map[SystemID]map[SystemID]EdgeKind) {
	for a, m := range edges {
		ai, ok := g.index[a]
		if !ok {
			continue
		}

		for b, kind := range m {
			bi, ok := g.index[b]
			if !ok {
				continue
			}

			g.addEdge(ai, bi, kind)
		}
	}
}

// addEdge records that node a runs after node b.
func (g *Graph) addEdge(a, b int, kind EdgeKind) {
	existing, ok := g.kind[a][b]
	if ok {
		if kind == EdgeDependsOn && existing == EdgeAfter {
			g.kind[a][b] = EdgeDependsOn
		}

		return
	}

	g.kind[a][b] = kind
	g.pred[a] = append(g.pred[a], b)
	g.succ[b] = append(g.succ[b], a)
}

// findCycle runs an iterative three-color search over the predecessor
// relation. It returns the names on the first cycle found, rotated so the
// earliest-registered participant comes first, or nil when the graph is
// acyclic.
func (g *Graph) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make([]int, len(g.nodes))
	parent := make([]int, len(g.nodes))
	for i := range parent {
		parent[i] = -1
	}

	for start := range g.nodes {
		if color[start] != white {
			continue
		}

		stack := []int{start}
		for len(stack) > 0 {
			n := stack[len(stack)-1]

			if color[n] == white {
				color[n] = gray

				for _, p := range g.pred[n] {
					switch color[p] {
					case white:
						parent[p] = n
						stack = append(stack, p)
					case gray:
						return g.extractCycle(parent, n, p)
					}
				}

				continue
			}

			color[n] = black
			stack = stack[:len(stack)-1]
		}
	}

	return nil
}

// extractCycle walks the parent chain from the node that closed the cycle
// back to where the cycle re-enters itself.
func (g *Graph) extractCycle(parent []int, from, to int) []string {
	members := []int{from}
	for n := from; n != to; n = parent[n] {
		members = append(members, parent[n])
	}

	lowest := 0
	for i, n := range members {
		if g.nodes[n].order < g.nodes[members[lowest]].order {
			lowest = i
		}
	}

	names := make([]string, 0, len(members))
	for i := 0; i < len(members); i++ {
		n := members[(lowest+i)%len(members)]
		names = append(names, g.nodes[n].name)
	}

	return names
}

// Topo returns the node indices in dependency order. When several nodes are
// ready at once, the earliest-registered one comes first, which makes the
// order a pure function of the registry content.
func (g *Graph) Topo() []int {
	indegree := make([]int, len(g.nodes))
	for i := range g.nodes {
		indegree[i] = len(g.pred[i])
	}

	ready := &nodeHeap{graph: g}
	heap.Init(ready)

	for i := range g.nodes {
		if indegree[i] == 0 {
			heap.Push(ready, i)
		}
	}

	order := make([]int, 0, len(g.nodes))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		order = append(order, n)

		for _, s := range g.succ[n] {
			indegree[s]--
			if indegree[s] == 0 {
				heap.Push(ready, s)
			}
		}
	}

	return order
}

// dependsOnPreds returns the indices of the depends-on predecessors of a
// node.
func (g *Graph) dependsOnPreds(n int) []int {
	var out []int
	for _, p := range g.pred[n] {
		if g.kind[n][p] == EdgeDependsOn {
			out = append(out, p)
		}
	}

	return out
}

type nodeHeap struct {
	graph *Graph
	items []int
}

func (h nodeHeap) Len() int {
	return len(h.items)
}

// Less orders ready nodes by registration order.
func (h nodeHeap) Less(i, j int) bool {
	return h.graph.nodes[h.items[i]].order < h.graph.nodes[h.items[j]].order
}

func (h nodeHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

func (h *nodeHeap) Push(x interface{}) {
	h.items = append(h.items, x.(int))
}

func (h *nodeHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[0 : n-1]

	return item
}
