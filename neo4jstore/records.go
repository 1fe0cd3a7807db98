package neo4jstore

import (
	"fmt"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/saulfrancisco-ruizacevedo/go-neosession/graph"
)

// subgraphBuilder translates the raw graph elements of a fetch result into a
// graph.SubGraph. A node or relationship that is returned in several rows (it
// lies on several paths) appears only once in the result.
type subgraphBuilder struct {
	sg        *graph.SubGraph
	seenNodes map[string]bool
	seenEdges map[string]bool
	roots     map[int64]string
}

func newSubgraphBuilder() *subgraphBuilder {
	return &subgraphBuilder{
		sg: &graph.SubGraph{
			Roots: make([]string, 0),
			Nodes: make([]graph.Node, 0),
			Edges: make([]graph.Edge, 0),
		},
		seenNodes: make(map[string]bool),
		seenEdges: make(map[string]bool),
		roots:     make(map[int64]string),
	}
}

// addRecord folds one `idx, n[, p]` row into the subgraph.
func (b *subgraphBuilder) addRecord(record *neo4j.Record) error {
	idxValue, ok := record.Get("idx")
	if !ok {
		return fmt.Errorf("could not find return value 'idx' in query result")
	}
	idx, ok := idxValue.(int64)
	if !ok {
		return fmt.Errorf("return value 'idx' is not an integer")
	}

	nodeValue, ok := record.Get("n")
	if !ok {
		return fmt.Errorf("could not find return value 'n' in query result")
	}
	root, ok := nodeValue.(neo4j.Node)
	if !ok {
		return fmt.Errorf("return value 'n' is not a node")
	}
	b.roots[idx] = root.ElementId
	b.addValue(root)

	// p is absent at depth 0 and nil when OPTIONAL MATCH found no path.
	if pathValue, ok := record.Get("p"); ok && pathValue != nil {
		b.addValue(pathValue)
	}
	return nil
}

func (b *subgraphBuilder) addValue(value any) {
	// Use a type switch to process nodes, relationships and paths.
	switch v := value.(type) {
	case neo4j.Node:
		if !b.seenNodes[v.ElementId] {
			b.sg.Nodes = append(b.sg.Nodes, graph.Node{
				ID:     v.ElementId,
				Labels: v.Labels,
				Props:  v.Props,
			})
			b.seenNodes[v.ElementId] = true
		}

	case neo4j.Relationship:
		if !b.seenEdges[v.ElementId] {
			b.sg.Edges = append(b.sg.Edges, graph.Edge{
				ID:    v.ElementId,
				From:  v.StartElementId,
				To:    v.EndElementId,
				Type:  v.Type,
				Props: v.Props,
			})
			b.seenEdges[v.ElementId] = true
		}

	case neo4j.Path:
		for _, n := range v.Nodes {
			b.addValue(n)
		}
		for _, r := range v.Relationships {
			b.addValue(r)
		}
	}
}

// result returns the subgraph with its roots in idx order.
func (b *subgraphBuilder) result() *graph.SubGraph {
	idxs := make([]int64, 0, len(b.roots))
	for idx := range b.roots {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })

	for _, idx := range idxs {
		b.sg.Roots = append(b.sg.Roots, b.roots[idx])
	}
	return b.sg
}
