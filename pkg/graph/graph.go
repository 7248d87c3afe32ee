// Package graph provides adjacency-indexed structural queries over a
// workflow definition's node and edge sets. It is pure data access: indices
// are built once per definition load and all queries are O(1) amortized.
package graph

import (
	"errors"

	"github.com/campusflow/campusflow/pkg/models"
)

// ErrCycle is returned by TopologicalOrder when the edge set contains a cycle.
// Validated definitions never hit this.
var ErrCycle = errors.New("workflow graph contains a cycle")

// Graph indexes a definition's nodes and edges for structural queries.
type Graph struct {
	def      *models.WorkflowDefinition
	nodes    map[string]*models.Node
	outgoing map[string][]*models.Edge
	incoming map[string][]*models.Edge
	triggers []*models.Node
}

// New builds the adjacency indices for a definition.
func New(def *models.WorkflowDefinition) *Graph {
	g := &Graph{
		def:      def,
		nodes:    make(map[string]*models.Node, len(def.Nodes)),
		outgoing: make(map[string][]*models.Edge),
		incoming: make(map[string][]*models.Edge),
	}

	for _, n := range def.Nodes {
		g.nodes[n.ID] = n

		if n.IsTriggerNode() {
			g.triggers = append(g.triggers, n)
		}
	}

	for _, e := range def.Edges {
		g.outgoing[e.SourceNodeID] = append(g.outgoing[e.SourceNodeID], e)
		g.incoming[e.TargetNodeID] = append(g.incoming[e.TargetNodeID], e)
	}

	return g
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*models.Node, bool) {
	n, ok := g.nodes[id]

	return n, ok
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// OutgoingEdges returns the edges leaving the given node.
func (g *Graph) OutgoingEdges(nodeID string) []*models.Edge {
	return g.outgoing[nodeID]
}

// IncomingEdges returns the edges entering the given node.
func (g *Graph) IncomingEdges(nodeID string) []*models.Edge {
	return g.incoming[nodeID]
}

// TriggerNodes returns the graph's entry points.
func (g *Graph) TriggerNodes() []*models.Node {
	return g.triggers
}

// Successors returns the distinct downstream node ids of the given node.
func (g *Graph) Successors(nodeID string) []string {
	seen := make(map[string]bool)
	ids := make([]string, 0, len(g.outgoing[nodeID]))

	for _, e := range g.outgoing[nodeID] {
		if !seen[e.TargetNodeID] {
			seen[e.TargetNodeID] = true
			ids = append(ids, e.TargetNodeID)
		}
	}

	return ids
}

// Predecessors returns the distinct upstream node ids of the given node.
func (g *Graph) Predecessors(nodeID string) []string {
	seen := make(map[string]bool)
	ids := make([]string, 0, len(g.incoming[nodeID]))

	for _, e := range g.incoming[nodeID] {
		if !seen[e.SourceNodeID] {
			seen[e.SourceNodeID] = true
			ids = append(ids, e.SourceNodeID)
		}
	}

	return ids
}

// ReachableFromTriggers returns the set of node ids reachable by a directed
// path from any trigger node, trigger nodes included (BFS).
func (g *Graph) ReachableFromTriggers() map[string]bool {
	reachable := make(map[string]bool, len(g.nodes))
	queue := make([]string, 0, len(g.triggers))

	for _, t := range g.triggers {
		reachable[t.ID] = true
		queue = append(queue, t.ID)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range g.Successors(current) {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	return reachable
}

// TopologicalOrder returns the node ids reachable from the trigger nodes in
// dependency order using Kahn's algorithm. Only edges between reachable nodes
// count toward in-degrees, so an unreachable island never blocks the order.
func (g *Graph) TopologicalOrder() ([]string, error) {
	reachable := g.ReachableFromTriggers()

	indegree := make(map[string]int, len(reachable))
	for id := range reachable {
		indegree[id] = 0
	}

	for id := range reachable {
		for _, next := range g.Successors(id) {
			if reachable[next] {
				indegree[next]++
			}
		}
	}

	queue := make([]string, 0, len(reachable))

	for _, n := range g.def.Nodes {
		if reachable[n.ID] && indegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	order := make([]string, 0, len(reachable))

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, next := range g.Successors(current) {
			if !reachable[next] {
				continue
			}

			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(reachable) {
		return nil, ErrCycle
	}

	return order, nil
}

// HasCycle runs DFS with a recursion stack over the full node set, reporting
// one node id on the first cycle found. Unlike TopologicalOrder it considers
// unreachable nodes too, so validation can flag a cyclic island.
func (g *Graph) HasCycle() (string, bool) {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)

	state := make(map[string]int, len(g.nodes))

	var visit func(id string) (string, bool)

	visit = func(id string) (string, bool) {
		state[id] = inStack

		for _, next := range g.Successors(id) {
			switch state[next] {
			case inStack:
				return next, true
			case unvisited:
				if at, found := visit(next); found {
					return at, true
				}
			}
		}

		state[id] = done

		return "", false
	}

	for _, n := range g.def.Nodes {
		if state[n.ID] == unvisited {
			if at, found := visit(n.ID); found {
				return at, true
			}
		}
	}

	return "", false
}

// SubgraphFrom returns the set of node ids reachable strictly downstream of
// the given node, the node itself excluded. Used for branch skipping and for
// loop body discovery.
func (g *Graph) SubgraphFrom(nodeID string) map[string]bool {
	downstream := make(map[string]bool)
	queue := []string{nodeID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range g.Successors(current) {
			if !downstream[next] {
				downstream[next] = true
				queue = append(queue, next)
			}
		}
	}

	return downstream
}

// SubgraphFromEdges returns the node ids reachable by following only the
// given edges out of a node, plus everything downstream of those targets.
func (g *Graph) SubgraphFromEdges(edges []*models.Edge) map[string]bool {
	downstream := make(map[string]bool)
	queue := make([]string, 0, len(edges))

	for _, e := range edges {
		if !downstream[e.TargetNodeID] {
			downstream[e.TargetNodeID] = true
			queue = append(queue, e.TargetNodeID)
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range g.Successors(current) {
			if !downstream[next] {
				downstream[next] = true
				queue = append(queue, next)
			}
		}
	}

	return downstream
}
