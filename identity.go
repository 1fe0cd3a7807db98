package neosession

import (
	"fmt"
	"reflect"
)

// EntityKey identifies an entity within a session: its label and its
// store-assigned id.
type EntityKey struct {
	Label string
	ID    string
}

func (k EntityKey) String() string {
	return fmt.Sprintf("%s(%s)", k.Label, k.ID)
}

// edgeKey identifies a relationship the session has materialized, in store
// orientation.
type edgeKey struct {
	From EntityKey
	Type string
	To   EntityKey
}

// objectGraph is the per-session identity map plus the set of relationships
// already wired between its entities. Entities are held as reflect.Values of
// pointers so relationship fields can share them.
type objectGraph struct {
	entities map[EntityKey]reflect.Value
	keys     map[any]EntityKey
	edges    map[edgeKey]struct{}
}

func newObjectGraph() *objectGraph {
	return &objectGraph{
		entities: make(map[EntityKey]reflect.Value),
		keys:     make(map[any]EntityKey),
		edges:    make(map[edgeKey]struct{}),
	}
}

func (g *objectGraph) get(key EntityKey) (reflect.Value, bool) {
	v, ok := g.entities[key]
	return v, ok
}

func (g *objectGraph) put(key EntityKey, ptr reflect.Value) {
	g.entities[key] = ptr
	g.keys[ptr.Interface()] = key
}

// keyOf returns the key under which the given pointer is registered.
func (g *objectGraph) keyOf(entity any) (EntityKey, bool) {
	k, ok := g.keys[entity]
	return k, ok
}

func (g *objectGraph) hasEdge(e edgeKey) bool {
	_, ok := g.edges[e]
	return ok
}

func (g *objectGraph) addEdge(e edgeKey) {
	g.edges[e] = struct{}{}
}

// remove evicts the entity and every relationship touching it.
func (g *objectGraph) remove(key EntityKey) {
	if ptr, ok := g.entities[key]; ok {
		delete(g.keys, ptr.Interface())
		delete(g.entities, key)
	}
	for e := range g.edges {
		if e.From == key || e.To == key {
			delete(g.edges, e)
		}
	}
}

func (g *objectGraph) len() int {
	return len(g.entities)
}

func (g *objectGraph) reset() {
	clear(g.entities)
	clear(g.keys)
	clear(g.edges)
}
