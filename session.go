package neosession

import (
	"context"
	"reflect"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the lifecycle state of a Session.
type State int

const (
	// StateEmpty is a session without entities, either new or cleared.
	StateEmpty State = iota
	// StatePopulated is a session that has completed at least one load or save.
	StatePopulated
	// StateClosed is terminal. Every operation returns ErrSessionClosed.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePopulated:
		return "populated"
	case StateClosed:
		return "closed"
	default:
		return "empty"
	}
}

// Session is a unit of work over a graph store. Within one session every
// stored node is materialized as at most one Go value, so loading the same
// node twice, by any route, yields the same pointer with refreshed properties.
//
// A Session is not safe for concurrent use. Sessions opened from the same
// factory share nothing but the store and the type registry.
type Session struct {
	id       string
	state    State
	graph    *objectGraph
	registry *Registry
	hydrator *hydrator
	logger   *zap.Logger
}

func newSession(f *SessionFactory) *Session {
	id := uuid.NewString()
	logger := f.logger.With(zap.String("session", id))
	return &Session{
		id:       id,
		graph:    newObjectGraph(),
		registry: f.registry,
		hydrator: &hydrator{store: f.store, registry: f.registry, logger: logger},
		logger:   logger,
	}
}

// ID returns the random identifier of the session, used in log output.
func (s *Session) ID() string {
	return s.id
}

// State returns the lifecycle state of the session.
func (s *Session) State() State {
	return s.state
}

// Len returns the number of entities held by the session.
func (s *Session) Len() int {
	return s.graph.len()
}

// Contains reports whether entity is the instance the session holds for its
// node. A structurally equal copy is not contained.
func (s *Session) Contains(entity any) bool {
	_, ok := s.graph.keyOf(entity)
	return ok
}

// KeyOf returns the identity of an entity held by the session.
func (s *Session) KeyOf(entity any) (EntityKey, bool) {
	return s.graph.keyOf(entity)
}

// Clear evicts every entity. Entities obtained earlier stay valid as plain
// values but are no longer tracked, and a later load yields fresh instances.
func (s *Session) Clear() error {
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	s.graph.reset()
	s.state = StateEmpty
	s.logger.Debug("session cleared")
	return nil
}

// Close releases the identity map. Closing twice is a no-op.
func (s *Session) Close() error {
	if s.state == StateClosed {
		return nil
	}
	s.graph.reset()
	s.state = StateClosed
	s.logger.Debug("session closed")
	return nil
}

// load runs one validated query for entities of meta and marks the session
// populated on success.
func (s *Session) load(ctx context.Context, meta *entityMetadata, ids []string, opts []QueryOption) ([]reflect.Value, error) {
	if s.state == StateClosed {
		return nil, ErrSessionClosed
	}

	q, err := NewQuery(meta.Label, ids, opts...)
	if err != nil {
		return nil, err
	}

	roots, err := s.hydrator.hydrate(ctx, s.graph, q, meta)
	if err != nil {
		s.logger.Error("load failed", zap.String("label", meta.Label), zap.Error(err))
		return nil, err
	}

	s.state = StatePopulated
	return roots, nil
}

// Load returns the entity of type T stored under id together with its
// neighbourhood up to the requested depth (DefaultDepth unless WithDepth is
// given). It returns nil and no error when no entity of type T has that id,
// including when the id belongs to a node of another type.
func Load[T any](ctx context.Context, s *Session, id string, opts ...QueryOption) (*T, error) {
	if s.state == StateClosed {
		return nil, ErrSessionClosed
	}
	meta, err := metadataOf[T](s.registry)
	if err != nil {
		return nil, err
	}

	roots, err := s.load(ctx, meta, []string{id}, opts)
	if err != nil || len(roots) == 0 {
		return nil, err
	}
	return roots[0].Interface().(*T), nil
}

// LoadAll returns the entities of type T among ids, in store order and
// subject to sort and pagination. Ids of absent or differently typed nodes
// are silently dropped. An empty ids slice loads every entity of type T.
func LoadAll[T any](ctx context.Context, s *Session, ids []string, opts ...QueryOption) ([]*T, error) {
	if s.state == StateClosed {
		return nil, ErrSessionClosed
	}
	meta, err := metadataOf[T](s.registry)
	if err != nil {
		return nil, err
	}

	roots, err := s.load(ctx, meta, ids, opts)
	if err != nil {
		return nil, err
	}

	result := make([]*T, 0, len(roots))
	for _, r := range roots {
		result = append(result, r.Interface().(*T))
	}
	return result, nil
}
