// Package evidence implements the typed evidence graph that accumulates
// discovered facts about the artifact under investigation.
//
// Node identity is the node id. Two fragments describing the same real
// entity must reuse the same id for merge deduplication to work; the
// reasoning service upholds that contract by emitting canonical ids per
// internal object reference (e.g. "obj_12", "url_3").
package evidence

import (
	"encoding/json"
	"fmt"
	"sort"
)

// NodeKind classifies evidence nodes.
type NodeKind string

const (
	KindArtifactObject        NodeKind = "/artifact_object"
	KindExtractedPayload      NodeKind = "/extracted_payload"
	KindIndicatorOfCompromise NodeKind = "/indicator_of_compromise"
	KindFile                  NodeKind = "/file"
)

// ValidKind reports whether k is one of the known node kinds.
func ValidKind(k NodeKind) bool {
	switch k {
	case KindArtifactObject, KindExtractedPayload, KindIndicatorOfCompromise, KindFile:
		return true
	}
	return false
}

// Property is a single key/value annotation on a node.
// Properties are ordered; order is preserved through merge.
type Property struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Node is one discovered fact about the artifact.
type Node struct {
	ID         string     `json:"id"`
	Kind       NodeKind   `json:"kind"`
	Label      string     `json:"label"`
	Properties []Property `json:"properties,omitempty"`
}

// Edge is a directed, labeled relationship between two nodes.
// Identity is the (source, target, label) triple.
type Edge struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Label    string `json:"label"`
}

func (e Edge) key() string {
	return e.SourceID + "\x00" + e.TargetID + "\x00" + e.Label
}

// Graph is an in-memory evidence graph: nodes keyed by id, edges keyed
// by their triple. The zero value is not usable; call NewGraph.
//
// The graph is not safe for concurrent mutation. The orchestrator owns
// the master graph and mutates it from a single task; per-mission
// fragments are owned by exactly one investigator until merge.
type Graph struct {
	nodes map[string]Node
	edges map[string]Edge

	// nodeOrder preserves insertion order for deterministic serialization.
	nodeOrder []string
	edgeOrder []string
}

// NewGraph creates an empty evidence graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]Node),
		edges: make(map[string]Edge),
	}
}

// AddNode inserts or replaces a node. When a node with the same id
// already exists, the qualitatively more complete version wins: the one
// carrying more properties. On a tie the incumbent is kept.
func (g *Graph) AddNode(n Node) {
	existing, ok := g.nodes[n.ID]
	if !ok {
		g.nodes[n.ID] = n
		g.nodeOrder = append(g.nodeOrder, n.ID)
		return
	}
	if len(n.Properties) > len(existing.Properties) {
		g.nodes[n.ID] = n
	}
}

// AddEdge inserts an edge. Exact-triple duplicates are dropped.
func (g *Graph) AddEdge(e Edge) {
	k := e.key()
	if _, ok := g.edges[k]; ok {
		return
	}
	g.edges[k] = e
	g.edgeOrder = append(g.edgeOrder, k)
}

// Node returns the node with the given id, if present.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// HasNode reports whether a node with the given id exists.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// HasEdge reports whether the exact triple exists.
func (g *Graph) HasEdge(e Edge) bool {
	_, ok := g.edges[e.key()]
	return ok
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.nodes))
	for _, id := range g.nodeOrder {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, k := range g.edgeOrder {
		out = append(out, g.edges[k])
	}
	return out
}

// EdgesFrom returns all edges whose source is the given node id.
func (g *Graph) EdgesFrom(id string) []Edge {
	var out []Edge
	for _, k := range g.edgeOrder {
		if e := g.edges[k]; e.SourceID == id {
			out = append(out, e)
		}
	}
	return out
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	out := NewGraph()
	for _, n := range g.Nodes() {
		cp := n
		cp.Properties = append([]Property(nil), n.Properties...)
		out.AddNode(cp)
	}
	for _, e := range g.Edges() {
		out.AddEdge(e)
	}
	return out
}

// Union folds the given fragments into a copy of g and returns it.
// Node conflicts keep the more complete version; edges are unioned with
// exact-triple deduplication. This is the structural merge used as a
// fallback when the semantic merge call is unavailable, and the baseline
// for merge-completeness checks: every node id present in any fragment
// appears in the result.
func (g *Graph) Union(fragments ...*Graph) *Graph {
	out := g.Clone()
	for _, f := range fragments {
		if f == nil {
			continue
		}
		for _, n := range f.Nodes() {
			out.AddNode(n)
		}
		for _, e := range f.Edges() {
			out.AddEdge(e)
		}
	}
	return out
}

// graphWire is the JSON transport form of a graph.
type graphWire struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// MarshalJSON serializes the graph with nodes and edges in stable order.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(graphWire{Nodes: g.Nodes(), Edges: g.Edges()})
}

// UnmarshalJSON parses the wire form produced by MarshalJSON and by the
// reasoning service.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var w graphWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("evidence graph: %w", err)
	}
	g.nodes = make(map[string]Node, len(w.Nodes))
	g.edges = make(map[string]Edge, len(w.Edges))
	g.nodeOrder = nil
	g.edgeOrder = nil
	for _, n := range w.Nodes {
		g.AddNode(n)
	}
	for _, e := range w.Edges {
		g.AddEdge(e)
	}
	return nil
}

// SortedNodeIDs returns all node ids in lexical order. Used for
// deterministic summaries and comparisons.
func (g *Graph) SortedNodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
