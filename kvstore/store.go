package kvstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/saulfrancisco-ruizacevedo/go-neosession/graph"
)

// Key layout (relative to the configured prefix):
//
//	{prefix}:n:{id}                 → msgpack-encoded nodeRecord
//	{prefix}:l:{label}:{id}         → empty (label index)
//	{prefix}:r:{from}:{type}:{to}   → empty (forward index)
//	{prefix}:ri:{to}:{type}:{from}  → empty (reverse index)

// GraphStore is a graph.Store backed by an Engine. Node ids are random UUIDs.
// Writes are serialized; reads run concurrently with each other.
type GraphStore struct {
	engine Engine
	prefix Key
	logger *zap.Logger

	mu sync.RWMutex
}

// Option configures a GraphStore.
type Option func(*GraphStore)

// WithLogger sets the logger used for debug traces of fetches and writes.
func WithLogger(logger *zap.Logger) Option {
	return func(g *GraphStore) {
		g.logger = logger
	}
}

// New creates a GraphStore whose keys all live below prefix.
func New(engine Engine, prefix Key, opts ...Option) *GraphStore {
	g := &GraphStore{
		engine: engine,
		prefix: prefix,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.Named("kvstore")
	return g
}

// Close closes the underlying engine.
func (g *GraphStore) Close() error {
	return g.engine.Close()
}

type nodeRecord struct {
	Labels []string       `msgpack:"labels"`
	Props  map[string]any `msgpack:"props"`
}

func (g *GraphStore) nodeKey(id string) Key { return g.prefix.child("n", id) }

func (g *GraphStore) labelKey(label, id string) Key { return g.prefix.child("l", label, id) }

func (g *GraphStore) fwdKey(from, relType, to string) Key {
	return g.prefix.child("r", from, relType, to)
}

func (g *GraphStore) revKey(to, relType, from string) Key {
	return g.prefix.child("ri", to, relType, from)
}

func validSegments(segs ...string) error {
	for _, s := range segs {
		if s == "" || strings.IndexByte(s, Separator) >= 0 {
			return fmt.Errorf("%w: %q", ErrInvalidSegment, s)
		}
	}
	return nil
}

func encodeRecord(rec nodeRecord) ([]byte, error) {
	return msgpack.Marshal(rec)
}

func decodeRecord(data []byte) (nodeRecord, error) {
	var rec nodeRecord
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(&rec); err != nil {
		return rec, fmt.Errorf("could not decode node record: %w", err)
	}
	for k, v := range rec.Props {
		rec.Props[k] = normalizeValue(v)
	}
	return rec, nil
}

// normalizeValue presents integers as int64, the way the Neo4j driver
// returns them, whatever width msgpack chose on the wire.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case uint64:
		if val <= math.MaxInt64 {
			return int64(val)
		}
	case []any:
		for i := range val {
			val[i] = normalizeValue(val[i])
		}
	}
	return v
}

// getNode returns the node stored under id, or ErrNotFound.
func (g *GraphStore) getNode(ctx context.Context, id string) (graph.Node, error) {
	if validSegments(id) != nil {
		return graph.Node{}, ErrNotFound
	}
	data, err := g.engine.Get(ctx, g.nodeKey(id))
	if err != nil {
		return graph.Node{}, err
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return graph.Node{}, err
	}
	if rec.Props == nil {
		rec.Props = map[string]any{}
	}
	return graph.Node{ID: id, Labels: rec.Labels, Props: rec.Props}, nil
}

// relations returns every relationship touching id, outgoing first.
func (g *GraphStore) relations(ctx context.Context, id string) ([]graph.Edge, error) {
	var edges []graph.Edge
	plen := len(g.prefix)

	for entry, err := range g.engine.List(ctx, g.prefix.child("r", id)) {
		if err != nil {
			return nil, err
		}
		if len(entry.Key) != plen+4 {
			continue
		}
		edges = append(edges, newEdge(entry.Key[plen+1], entry.Key[plen+3], entry.Key[plen+2]))
	}

	for entry, err := range g.engine.List(ctx, g.prefix.child("ri", id)) {
		if err != nil {
			return nil, err
		}
		if len(entry.Key) != plen+4 {
			continue
		}
		from := entry.Key[plen+3]
		// self-loops were already seen by the forward scan
		if from == id {
			continue
		}
		edges = append(edges, newEdge(from, entry.Key[plen+1], entry.Key[plen+2]))
	}
	return edges, nil
}

func newEdge(from, to, relType string) graph.Edge {
	return graph.Edge{
		ID:   from + "-" + relType + "->" + to,
		From: from,
		To:   to,
		Type: relType,
	}
}

// FetchSubgraph selects the roots, sorts and windows them, then expands
// breadth-first in both directions. An edge is part of the result when one of
// its endpoints lies closer to a root than req.Depth; the visited set keeps
// unbounded expansion finite on cyclic graphs.
func (g *GraphStore) FetchSubgraph(ctx context.Context, req graph.FetchRequest) (*graph.SubGraph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validSegments(req.Label); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	roots, err := g.selectRoots(ctx, req)
	if err != nil {
		return nil, err
	}
	sortNodes(roots, req.Sort)
	roots = window(roots, req.Skip, req.Limit)

	result := &graph.SubGraph{
		Roots: make([]string, 0, len(roots)),
		Nodes: make([]graph.Node, 0, len(roots)),
		Edges: make([]graph.Edge, 0),
	}

	dist := make(map[string]int, len(roots))
	queue := make([]string, 0, len(roots))
	for _, n := range roots {
		result.Roots = append(result.Roots, n.ID)
		if _, seen := dist[n.ID]; seen {
			continue
		}
		dist[n.ID] = 0
		result.Nodes = append(result.Nodes, n)
		queue = append(queue, n.ID)
	}

	seenEdges := make(map[string]bool)
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := queue[0]
		queue = queue[1:]

		if req.Depth != graph.Unbounded && dist[id] >= req.Depth {
			continue
		}

		rels, err := g.relations(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, e := range rels {
			other := e.To
			if other == id {
				other = e.From
			}
			if _, seen := dist[other]; !seen {
				n, err := g.getNode(ctx, other)
				if errors.Is(err, ErrNotFound) {
					// dangling index entry
					continue
				}
				if err != nil {
					return nil, err
				}
				dist[other] = dist[id] + 1
				result.Nodes = append(result.Nodes, n)
				queue = append(queue, other)
			}
			if !seenEdges[e.ID] {
				seenEdges[e.ID] = true
				result.Edges = append(result.Edges, e)
			}
		}
	}

	g.logger.Debug("fetched subgraph",
		zap.String("label", req.Label),
		zap.Int("depth", req.Depth),
		zap.Int("roots", len(result.Roots)),
		zap.Int("nodes", len(result.Nodes)),
		zap.Int("edges", len(result.Edges)))

	return result, nil
}

func (g *GraphStore) selectRoots(ctx context.Context, req graph.FetchRequest) ([]graph.Node, error) {
	var roots []graph.Node

	if len(req.IDs) == 0 {
		plen := len(g.prefix)
		for entry, err := range g.engine.List(ctx, g.prefix.child("l", req.Label)) {
			if err != nil {
				return nil, err
			}
			if len(entry.Key) != plen+3 {
				continue
			}
			n, err := g.getNode(ctx, entry.Key[plen+2])
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			roots = append(roots, n)
		}
		return roots, nil
	}

	seen := make(map[string]bool, len(req.IDs))
	for _, id := range req.IDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		n, err := g.getNode(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !n.HasLabel(req.Label) {
			continue
		}
		roots = append(roots, n)
	}
	return roots, nil
}

func window(nodes []graph.Node, skip int, limit *int) []graph.Node {
	if skip >= len(nodes) {
		return nil
	}
	nodes = nodes[skip:]
	if limit != nil && *limit < len(nodes) {
		nodes = nodes[:*limit]
	}
	return nodes
}

// sortNodes orders nodes by the given fields. Missing properties sort last
// in ascending order and first in descending order.
func sortNodes(nodes []graph.Node, fields []graph.SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		for _, f := range fields {
			c := compareProps(nodes[i].Props[f.Property], nodes[j].Props[f.Property])
			if c == 0 {
				continue
			}
			if f.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareProps(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}

	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// CreateNode stores a new node under a fresh UUID.
func (g *GraphStore) CreateNode(ctx context.Context, labels []string, props map[string]any) (string, error) {
	if err := validSegments(labels...); err != nil {
		return "", err
	}
	id := uuid.NewString()

	data, err := encodeRecord(nodeRecord{Labels: labels, Props: props})
	if err != nil {
		return "", err
	}

	entries := make([]Entry, 0, 1+len(labels))
	entries = append(entries, Entry{Key: g.nodeKey(id), Value: data})
	for _, l := range labels {
		entries = append(entries, Entry{Key: g.labelKey(l, id)})
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.engine.BatchSet(ctx, entries); err != nil {
		return "", err
	}
	g.logger.Debug("created node", zap.String("id", id), zap.Strings("labels", labels))
	return id, nil
}

// UpdateNode replaces the properties of a node, keeping its labels.
func (g *GraphStore) UpdateNode(ctx context.Context, id string, props map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, err := g.getNode(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", graph.ErrNodeNotFound, id)
	}
	if err != nil {
		return err
	}

	data, err := encodeRecord(nodeRecord{Labels: n.Labels, Props: props})
	if err != nil {
		return err
	}
	return g.engine.BatchSet(ctx, []Entry{{Key: g.nodeKey(id), Value: data}})
}

// MergeRelationship writes both indexes of the relationship. Writing an
// existing relationship again leaves the store unchanged.
func (g *GraphStore) MergeRelationship(ctx context.Context, from, to, relType string) error {
	if err := validSegments(from, to, relType); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range []string{from, to} {
		if _, err := g.engine.Get(ctx, g.nodeKey(id)); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: %s", graph.ErrNodeNotFound, id)
			}
			return err
		}
	}

	return g.engine.BatchSet(ctx, []Entry{
		{Key: g.fwdKey(from, relType, to)},
		{Key: g.revKey(to, relType, from)},
	})
}

// DeleteNode removes the node, its label index entries and every
// relationship index entry touching it.
func (g *GraphStore) DeleteNode(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, err := g.getNode(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	rels, err := g.relations(ctx, id)
	if err != nil {
		return err
	}

	keys := make([]Key, 0, 1+len(n.Labels)+2*len(rels))
	keys = append(keys, g.nodeKey(id))
	for _, l := range n.Labels {
		keys = append(keys, g.labelKey(l, id))
	}
	for _, r := range rels {
		keys = append(keys, g.fwdKey(r.From, r.Type, r.To), g.revKey(r.To, r.Type, r.From))
	}
	return g.engine.BatchDelete(ctx, keys)
}

// CountNodes counts the label index entries for label.
func (g *GraphStore) CountNodes(ctx context.Context, label string) (int64, error) {
	if err := validSegments(label); err != nil {
		return 0, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	var count int64
	for _, err := range g.engine.List(ctx, g.prefix.child("l", label)) {
		if err != nil {
			return 0, err
		}
		count++
	}
	return count, nil
}

// Purge deletes every key below the store prefix.
func (g *GraphStore) Purge(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var keys []Key
	for entry, err := range g.engine.List(ctx, g.prefix) {
		if err != nil {
			return err
		}
		keys = append(keys, entry.Key)
	}
	if len(keys) == 0 {
		return nil
	}
	g.logger.Debug("purging store", zap.Int("keys", len(keys)))
	return g.engine.BatchDelete(ctx, keys)
}
