// Package neosession is an object-graph session layer for graph stores.
//
// A SessionFactory maps Go structs to node labels through `crud` struct tags
// and opens Sessions. Each Session keeps an identity map: loading a node that
// the session already holds refreshes and returns the same pointer, and
// relationships fetched by later, deeper loads are wired into the existing
// entities. Loads are depth-bounded, may be sorted and paginated, and only
// ever return entities of the requested type.
package neosession

import (
	"context"
)

// Repository provides a generic abstraction for the operations on one entity
// type T within a Session.
type Repository[T any] struct {
	session *Session
	meta    *entityMetadata
}

// RepositoryFor creates a repository for the struct type T over the given
// session. It parses the struct tags of T to understand its mapping to a node.
//
// Parameters:
//   - s: The session every operation of the repository runs in.
//
// Returns:
//
//	A new Repository instance or an error if the struct tags are invalid.
func RepositoryFor[T any](s *Session) (*Repository[T], error) {
	meta, err := metadataOf[T](s.registry)
	if err != nil {
		return nil, err
	}
	return &Repository[T]{
		session: s,
		meta:    meta,
	}, nil
}

// Label returns the node label T is mapped to.
func (r *Repository[T]) Label() string {
	return r.meta.Label
}

// Save creates or updates the entity and everything reachable from it.
//
// Parameters:
//   - ctx: The context for the store writes.
//   - entity: A pointer to the struct instance to be saved.
//
// Returns:
//
//	An error if any store write fails.
func (r *Repository[T]) Save(ctx context.Context, entity *T) error {
	return r.session.Save(ctx, entity)
}

// FindByID retrieves a single entity by its id.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - id: The id of the entity to find.
//   - opts: Optional depth.
//
// Returns:
//
//	A pointer to the session's instance of the entity, ErrNotFound if no
//	entity of type T has the id, or another error if the load fails.
func (r *Repository[T]) FindByID(ctx context.Context, id string, opts ...QueryOption) (*T, error) {
	entity, err := Load[T](ctx, r.session, id, opts...)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, ErrNotFound
	}
	return entity, nil
}

// FindAll loads the entities among ids, or all entities of type T when ids is empty.
func (r *Repository[T]) FindAll(ctx context.Context, ids []string, opts ...QueryOption) ([]*T, error) {
	return LoadAll[T](ctx, r.session, ids, opts...)
}

// Delete removes the entity and its relationships from the store and the session.
func (r *Repository[T]) Delete(ctx context.Context, entity *T) error {
	return r.session.Delete(ctx, entity)
}

// Count returns the number of stored entities of type T.
func (r *Repository[T]) Count(ctx context.Context) (int64, error) {
	return Count[T](ctx, r.session)
}
