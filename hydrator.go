package neosession

import (
	"context"
	"fmt"
	"reflect"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/saulfrancisco-ruizacevedo/go-neosession/graph"
)

const (
	TraceAttributeLabel   string = "entity-label"
	TraceAttributeDepth   string = "load-depth"
	TraceAttributeSession string = "session-id"
)

var tracer = otel.Tracer("neosession")

// hydrator folds fetched subgraphs into a session's object graph.
type hydrator struct {
	store    graph.Store
	registry *Registry
	logger   *zap.Logger
}

type nodePlan struct {
	key    EntityKey
	meta   *entityMetadata
	values []reflect.Value
}

type linkPlan struct {
	owner  EntityKey
	field  *relationshipMapping
	target EntityKey
}

// plan is everything a fetch will change in the object graph. It is built
// without touching the graph so a failed fetch or conversion leaves the
// session as it was.
type plan struct {
	nodes []*nodePlan
	links []linkPlan
	edges []edgeKey
	roots []EntityKey
}

// hydrate fetches the subgraph described by q and merges it into og. It
// returns the root entities of type meta in store order.
func (h *hydrator) hydrate(ctx context.Context, og *objectGraph, q Query, meta *entityMetadata) ([]reflect.Value, error) {
	var err error

	ctx, span := tracer.Start(ctx, "hydrate",
		trace.WithAttributes(attribute.String(TraceAttributeLabel, q.Label)),
		trace.WithAttributes(attribute.Int(TraceAttributeDepth, q.Depth)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	sg, err := h.store.FetchSubgraph(ctx, q.FetchRequest())
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		return nil, err
	}

	p, err := h.plan(sg, meta)
	if err != nil {
		return nil, err
	}

	roots := h.apply(og, p)

	h.logger.Debug("hydrated subgraph",
		zap.String("label", q.Label),
		zap.Int("depth", q.Depth),
		zap.Int("roots", len(roots)),
		zap.Int("nodes", len(p.nodes)),
		zap.Int("links", len(p.links)),
		zap.Int("entities", og.len()))

	return roots, nil
}

func (h *hydrator) plan(sg *graph.SubGraph, meta *entityMetadata) (*plan, error) {
	p := &plan{}
	byID := make(map[string]*nodePlan, len(sg.Nodes))

	isRoot := make(map[string]bool, len(sg.Roots))
	for _, id := range sg.Roots {
		isRoot[id] = true
	}

	for _, n := range sg.Nodes {
		// Roots carrying the requested label are materialized as that type
		// whatever other mapped labels they have.
		nodeMeta, ok := meta, isRoot[n.ID] && n.HasLabel(meta.Label)
		if !ok {
			nodeMeta, ok = h.registry.metadataForLabels(n.Labels)
		}
		if !ok {
			h.logger.Warn("skipping node with unmapped labels",
				zap.String("id", n.ID),
				zap.Strings("labels", n.Labels))
			continue
		}

		values, err := nodeMeta.scalarValues(n.Props)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}

		np := &nodePlan{key: EntityKey{Label: nodeMeta.Label, ID: n.ID}, meta: nodeMeta, values: values}
		byID[n.ID] = np
		p.nodes = append(p.nodes, np)
	}

	for _, e := range sg.Edges {
		from, to := byID[e.From], byID[e.To]
		if from == nil || to == nil {
			continue
		}
		p.edges = append(p.edges, edgeKey{From: from.key, Type: e.Type, To: to.key})

		for _, f := range from.meta.Relationships {
			if f.Target == to.meta && f.accepts(e.Type, true) {
				p.links = append(p.links, linkPlan{owner: from.key, field: f, target: to.key})
			}
		}
		for _, f := range to.meta.Relationships {
			if f.Target == from.meta && f.accepts(e.Type, false) {
				p.links = append(p.links, linkPlan{owner: to.key, field: f, target: from.key})
			}
		}
	}

	seen := make(map[string]bool, len(sg.Roots))
	for _, id := range sg.Roots {
		np := byID[id]
		// Roots resolving to another mapped type are filtered out.
		if np == nil || np.meta != meta || seen[id] {
			continue
		}
		seen[id] = true
		p.roots = append(p.roots, np.key)
	}

	return p, nil
}

// apply merges a plan into og. Entities already present keep their identity
// and have their properties refreshed.
func (h *hydrator) apply(og *objectGraph, p *plan) []reflect.Value {
	for _, np := range p.nodes {
		ptr, ok := og.get(np.key)
		if !ok {
			ptr = reflect.New(np.meta.Type)
			np.meta.setID(ptr, np.key.ID)
			og.put(np.key, ptr)
		}
		np.meta.applyScalars(ptr, np.values)
	}

	for _, l := range p.links {
		owner, _ := og.get(l.owner)
		target, _ := og.get(l.target)
		l.field.link(owner, target)
	}
	for _, e := range p.edges {
		og.addEdge(e)
	}

	roots := make([]reflect.Value, 0, len(p.roots))
	for _, k := range p.roots {
		ptr, _ := og.get(k)
		roots = append(roots, ptr)
	}
	return roots
}
