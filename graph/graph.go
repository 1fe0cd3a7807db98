// Package graph contains the domain-agnostic representation of a graph store
// as seen by the session layer: raw nodes, raw relationships, the bounded
// subgraph returned by a fetch, and the Store interface every backing store
// implements.
//
// The structs in this package are designed to be easily serialized to JSON,
// which is how the graphdump tool prints a fetched subgraph.
package graph

import (
	"context"
	"errors"
	"fmt"
)

// ErrNodeNotFound is returned by write operations that address a node id
// which does not exist in the store.
var ErrNodeNotFound = errors.New("graph: node not found")

// ErrInvalidRequest is returned by FetchSubgraph for a request it cannot
// execute.
var ErrInvalidRequest = errors.New("graph: invalid fetch request")

// Unbounded is the depth value requesting the full reachable subgraph.
const Unbounded = -1

// Node is a raw node of the backing store.
type Node struct {
	// ID is the store-assigned identifier of the node.
	ID string `json:"id"`

	// Labels holds every label attached to the node (e.g., ["Artist"]).
	// The session layer resolves a node's mapped type from these labels.
	Labels []string `json:"labels"`

	// Props holds the scalar properties stored on the node.
	Props map[string]any `json:"properties"`
}

// HasLabel reports whether the node carries the given label.
func (n Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Edge is a raw, directed relationship between two nodes.
type Edge struct {
	// ID is the store-assigned identifier of the relationship.
	ID string `json:"id"`

	// From is the ID of the node where the relationship starts.
	From string `json:"source"`

	// To is the ID of the node where the relationship ends.
	To string `json:"target"`

	// Type is the relationship type (e.g., "HAS_ALBUM").
	Type string `json:"type"`

	// Props holds the properties stored on the relationship, if any.
	Props map[string]any `json:"properties,omitempty"`
}

// SubGraph is the result of a bounded fetch.
type SubGraph struct {
	// Roots lists the ids of the root nodes that matched the request, in the
	// order requested by the sort and pagination of the fetch.
	Roots []string `json:"roots"`

	// Nodes contains every unique node reached within the requested depth,
	// roots included.
	Nodes []Node `json:"nodes"`

	// Edges contains every unique relationship traversed within the
	// requested depth.
	Edges []Edge `json:"edges"`
}

// SortField orders root nodes by one property.
type SortField struct {
	Property   string `json:"property"`
	Descending bool   `json:"descending,omitempty"`
}

// FetchRequest describes one bounded traversal.
type FetchRequest struct {
	// Label restricts root nodes to those carrying this label.
	Label string

	// IDs restricts root nodes to this id set. An empty set means every node
	// carrying Label.
	IDs []string

	// Depth is the maximum number of hops expanded from each root. Zero
	// returns the roots alone and Unbounded returns everything reachable.
	Depth int

	// Sort orders the roots. It never affects which relationships are expanded.
	Sort []SortField

	// Skip and Limit window the sorted roots. A nil Limit means no limit.
	Skip  int
	Limit *int
}

// Validate reports requests with a depth below Unbounded or a negative window.
func (r FetchRequest) Validate() error {
	switch {
	case r.Depth < Unbounded:
		return fmt.Errorf("%w: depth %d is below %d", ErrInvalidRequest, r.Depth, Unbounded)
	case r.Skip < 0:
		return fmt.Errorf("%w: skip %d is negative", ErrInvalidRequest, r.Skip)
	case r.Limit != nil && *r.Limit < 0:
		return fmt.Errorf("%w: limit %d is negative", ErrInvalidRequest, *r.Limit)
	}
	return nil
}

// Store is the contract between the session layer and a graph backing store.
//
// Implementations must guarantee termination of FetchSubgraph with Depth set
// to Unbounded even when the stored graph contains cycles. Concurrency control
// for writes belongs to the implementation.
type Store interface {
	// FetchSubgraph returns the roots selected by req together with every node
	// and relationship reached within req.Depth hops, traversing relationships
	// in both directions.
	FetchSubgraph(ctx context.Context, req FetchRequest) (*SubGraph, error)

	// CreateNode stores a new node and returns its assigned id.
	CreateNode(ctx context.Context, labels []string, props map[string]any) (string, error)

	// UpdateNode replaces the properties of an existing node. Returns
	// ErrNodeNotFound when the id is unknown.
	UpdateNode(ctx context.Context, id string, props map[string]any) error

	// MergeRelationship creates the relationship (from)-[relType]->(to) unless
	// it already exists.
	MergeRelationship(ctx context.Context, from, to, relType string) error

	// DeleteNode removes a node together with all of its relationships.
	// Deleting an unknown id is not an error.
	DeleteNode(ctx context.Context, id string) error

	// CountNodes returns the number of nodes carrying label.
	CountNodes(ctx context.Context, label string) (int64, error)

	// Purge removes every node and relationship.
	Purge(ctx context.Context) error
}
