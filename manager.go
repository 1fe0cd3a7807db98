package neosession

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/saulfrancisco-ruizacevedo/go-neosession/graph"
)

// SessionFactory is the central orchestrator for the session layer.
// It owns the connection to the graph store and the registry of mapped
// types, and opens independent sessions over them.
type SessionFactory struct {
	store    graph.Store
	registry *Registry
	logger   *zap.Logger
}

// FactoryOption configures a SessionFactory.
type FactoryOption func(*factoryConfig)

type factoryConfig struct {
	logger *zap.Logger
	types  []any
}

// WithLogger sets the logger handed to every session.
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(c *factoryConfig) {
		c.logger = logger
	}
}

// WithTypes registers the types of the given sample values up front, e.g.
// WithTypes(Artist{}, &Album{}). Types are otherwise registered on first use.
//
// Nodes reached by a traversal are only materialized when their label
// belongs to a registered type, so every type that can appear at depth
// greater than zero should be registered, directly or through a
// relationship field of another registered type.
func WithTypes(samples ...any) FactoryOption {
	return func(c *factoryConfig) {
		c.types = append(c.types, samples...)
	}
}

// NewSessionFactory creates a new SessionFactory over store.
//
// Parameters:
//   - store: The graph.Store every session reads from and writes to.
//   - opts: Optional logger and up-front type registrations.
//
// Returns:
//
//	A new SessionFactory, or an error wrapping ErrNotMapped if a type
//	passed to WithTypes has invalid `crud` tags.
func NewSessionFactory(store graph.Store, opts ...FactoryOption) (*SessionFactory, error) {
	cfg := factoryConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	f := &SessionFactory{
		store:    store,
		registry: newRegistry(),
		logger:   cfg.logger.Named("neosession"),
	}
	if err := f.Register(cfg.types...); err != nil {
		return nil, err
	}
	return f, nil
}

// Register parses and registers the types of the given sample values
// together with every type reachable through their relationship fields.
func (f *SessionFactory) Register(samples ...any) error {
	for _, sample := range samples {
		if sample == nil {
			return fmt.Errorf("%w: cannot register a nil value", ErrNotMapped)
		}
		meta, err := f.registry.metadataFor(reflect.TypeOf(sample))
		if err != nil {
			return err
		}
		f.logger.Debug("registered type",
			zap.String("type", meta.Type.String()),
			zap.String("label", meta.Label))
	}
	return nil
}

// Registry returns the type registry shared by all sessions of the factory.
func (f *SessionFactory) Registry() *Registry {
	return f.registry
}

// Store returns the graph store behind the factory.
func (f *SessionFactory) Store() graph.Store {
	return f.store
}

// OpenSession opens a new, empty session.
func (f *SessionFactory) OpenSession() *Session {
	s := newSession(f)
	s.logger.Debug("session opened")
	return s
}
