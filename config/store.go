package config

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/saulfrancisco-ruizacevedo/go-neosession/graph"
	"github.com/saulfrancisco-ruizacevedo/go-neosession/kvstore"
	"github.com/saulfrancisco-ruizacevedo/go-neosession/neo4jstore"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// OpenStore bootstraps the configured graph store. The returned closer
// releases the driver or engine behind it.
func OpenStore(ctx context.Context, cfg StoreConfig, logger *zap.Logger) (graph.Store, io.Closer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Driver {
	case DriverNeo4j:
		executor, err := neo4jstore.NewNeo4jExecutor(
			cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database,
			neo4jstore.WithExecutorLogger(logger),
		)
		if err != nil {
			return nil, nil, err
		}
		if err := executor.Verify(ctx); err != nil {
			executor.Close(ctx)
			return nil, nil, fmt.Errorf("could not reach neo4j at %s: %w", cfg.Neo4j.URI, err)
		}
		closer := closerFunc(func() error { return executor.Close(context.Background()) })
		return neo4jstore.New(executor, logger), closer, nil

	case DriverBadger:
		engine, err := kvstore.OpenBadger(kvstore.BadgerOptions{
			Dir:      cfg.Badger.Dir,
			InMemory: cfg.Badger.InMemory,
			Logger:   logger,
		})
		if err != nil {
			return nil, nil, err
		}
		store := kvstore.New(engine, kvstore.Key(cfg.Prefix), kvstore.WithLogger(logger))
		return store, store, nil

	case DriverMemory, "":
		store := kvstore.New(kvstore.NewMemory(), kvstore.Key(cfg.Prefix), kvstore.WithLogger(logger))
		return store, store, nil
	}

	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
