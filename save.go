package neosession

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/saulfrancisco-ruizacevedo/go-neosession/graph"
)

// storeError wraps a store failure in ErrStoreUnavailable. Addressing a node
// that does not exist is reported as is.
func storeError(err error) error {
	if err == nil || errors.Is(err, graph.ErrNodeNotFound) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// entityValue retrieves an entity's pointer value and metadata.
func (s *Session) entityValue(entity any) (reflect.Value, *entityMetadata, error) {
	val := reflect.ValueOf(entity)
	if !val.IsValid() || val.Kind() != reflect.Ptr || val.IsNil() {
		return reflect.Value{}, nil, fmt.Errorf("entity must be a non-nil pointer, got %T", entity)
	}
	meta, err := s.registry.metadataFor(val.Type())
	if err != nil {
		return reflect.Value{}, nil, err
	}
	return val, meta, nil
}

type saveItem struct {
	ptr  reflect.Value
	meta *entityMetadata
	key  EntityKey
}

// Save writes entity and every entity reachable through its relationship
// fields. Entities without an id are created and receive the store-assigned
// id, the others have their properties overwritten. Relationships are merged,
// so saving an unchanged graph twice writes no new relationships.
//
// Saved entities join the identity map unless the session already holds
// another instance for the same node. Writes are not atomic: a failure part
// way leaves the entities written so far in the store.
func (s *Session) Save(ctx context.Context, entity any) error {
	if s.state == StateClosed {
		return ErrSessionClosed
	}

	root, rootMeta, err := s.entityValue(entity)
	if err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "save",
		trace.WithAttributes(attribute.String(TraceAttributeLabel, rootMeta.Label)),
		trace.WithAttributes(attribute.String(TraceAttributeSession, s.id)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	var items []*saveItem
	visited := make(map[uintptr]bool)
	var walk func(ptr reflect.Value, meta *entityMetadata)
	walk = func(ptr reflect.Value, meta *entityMetadata) {
		if visited[ptr.Pointer()] {
			return
		}
		visited[ptr.Pointer()] = true
		items = append(items, &saveItem{ptr: ptr, meta: meta})
		for _, f := range meta.Relationships {
			for _, t := range f.targets(ptr) {
				walk(t, f.Target)
			}
		}
	}
	walk(root, rootMeta)

	store := s.hydrator.store
	created := 0

	for _, it := range items {
		props := it.meta.propertiesOf(it.ptr)
		id := it.meta.idOf(it.ptr)

		if id == "" {
			id, err = store.CreateNode(ctx, []string{it.meta.Label}, props)
			if err != nil {
				err = storeError(err)
				return err
			}
			it.meta.setID(it.ptr, id)
			created++
		} else if err = store.UpdateNode(ctx, id, props); err != nil {
			err = storeError(err)
			return err
		}

		it.key = EntityKey{Label: it.meta.Label, ID: id}
		if _, ok := s.graph.get(it.key); !ok {
			s.graph.put(it.key, it.ptr)
		}
	}

	merged := 0
	for _, it := range items {
		for _, f := range it.meta.Relationships {
			for _, t := range f.targets(it.ptr) {
				other := EntityKey{Label: f.Target.Label, ID: f.Target.idOf(t)}

				e := edgeKey{From: it.key, Type: f.RelType, To: other}
				if f.Dir == Incoming {
					e = edgeKey{From: other, Type: f.RelType, To: it.key}
				}
				if s.graph.hasEdge(e) {
					continue
				}
				if f.Dir == Undirected && s.graph.hasEdge(edgeKey{From: other, Type: f.RelType, To: it.key}) {
					continue
				}

				if err = store.MergeRelationship(ctx, e.From.ID, e.To.ID, e.Type); err != nil {
					err = storeError(err)
					return err
				}
				s.graph.addEdge(e)
				merged++
			}
		}
	}

	s.state = StatePopulated
	s.logger.Debug("saved entity graph",
		zap.String("label", rootMeta.Label),
		zap.Int("entities", len(items)),
		zap.Int("created", created),
		zap.Int("relationships", merged))

	return nil
}

// Delete removes the entity's node and all of its relationships from the
// store, evicts it from the session and clears every relationship field of
// held entities that referenced it.
func (s *Session) Delete(ctx context.Context, entity any) error {
	if s.state == StateClosed {
		return ErrSessionClosed
	}

	ptr, meta, err := s.entityValue(entity)
	if err != nil {
		return err
	}
	id := meta.idOf(ptr)
	if id == "" {
		return ErrTransient
	}

	if err := s.hydrator.store.DeleteNode(ctx, id); err != nil {
		return storeError(err)
	}

	key := EntityKey{Label: meta.Label, ID: id}
	if held, ok := s.graph.get(key); ok {
		s.unlinkEverywhere(held)
		s.graph.remove(key)
	}
	s.logger.Debug("deleted entity", zap.Stringer("key", key))
	return nil
}

// unlinkEverywhere removes target from the relationship fields of every held entity.
func (s *Session) unlinkEverywhere(target reflect.Value) {
	for _, owner := range s.graph.entities {
		meta, err := s.registry.metadataFor(owner.Type())
		if err != nil {
			continue
		}
		for _, f := range meta.Relationships {
			if f.Target.Type == target.Type().Elem() {
				f.unlink(owner, target)
			}
		}
	}
}

// Purge deletes every node and relationship in the store and clears the session.
func (s *Session) Purge(ctx context.Context) error {
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	if err := s.hydrator.store.Purge(ctx); err != nil {
		return storeError(err)
	}
	s.logger.Info("purged store")
	return s.Clear()
}

// Count returns the number of stored entities of type T.
func Count[T any](ctx context.Context, s *Session) (int64, error) {
	if s.state == StateClosed {
		return 0, ErrSessionClosed
	}
	meta, err := metadataOf[T](s.registry)
	if err != nil {
		return 0, err
	}
	count, err := s.hydrator.store.CountNodes(ctx, meta.Label)
	if err != nil {
		return 0, storeError(err)
	}
	return count, nil
}
