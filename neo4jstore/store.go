package neo4jstore

import (
	"context"
	"fmt"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/saulfrancisco-ruizacevedo/gocypher"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/saulfrancisco-ruizacevedo/go-neosession/graph"
)

const (
	TraceAttributeLabel  string = "graph-label"
	TraceAttributeDepth  string = "graph-depth"
	TraceAttributeNodeID string = "graph-node-id"
)

var tracer = otel.Tracer("neosession/neo4jstore")

// Store is a graph.Store that talks Cypher to Neo4j. Node and relationship
// ids are Neo4j element ids.
type Store struct {
	runner DBRunner
	logger *zap.Logger
}

// New creates a Store executing every statement through runner.
func New(runner DBRunner, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{runner: runner, logger: logger.Named("neo4jstore")}
}

// FetchSubgraph runs the bounded traversal and de-duplicates the returned
// nodes and relationships. Cycle handling for unbounded depth is left to
// Neo4j, whose variable-length patterns never traverse a relationship twice
// within one path.
func (s *Store) FetchSubgraph(ctx context.Context, req graph.FetchRequest) (*graph.SubGraph, error) {
	var err error

	ctx, span := tracer.Start(ctx, "fetch-subgraph",
		trace.WithAttributes(attribute.String(TraceAttributeLabel, req.Label)),
		trace.WithAttributes(attribute.Int(TraceAttributeDepth, req.Depth)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	if err = req.Validate(); err != nil {
		return nil, err
	}
	query, params := fetchStatement(req)

	result, err := s.runner.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}

	b := newSubgraphBuilder()
	for _, record := range result.Records {
		if err = b.addRecord(record); err != nil {
			return nil, err
		}
	}
	sg := b.result()

	s.logger.Debug("fetched subgraph",
		zap.String("label", req.Label),
		zap.Int("depth", req.Depth),
		zap.Int("roots", len(sg.Roots)),
		zap.Int("nodes", len(sg.Nodes)),
		zap.Int("edges", len(sg.Edges)))

	return sg, nil
}

// CreateNode creates the node with its first label and properties, then
// attaches any further labels.
func (s *Store) CreateNode(ctx context.Context, labels []string, props map[string]any) (string, error) {
	var err error

	if len(labels) == 0 {
		err = fmt.Errorf("a node needs at least one label")
		return "", err
	}

	ctx, span := tracer.Start(ctx, "create-node",
		trace.WithAttributes(attribute.String(TraceAttributeLabel, labels[0])),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	if props == nil {
		props = map[string]any{}
	}

	query, params, err := gocypher.NewQueryBuilder().
		Create(gocypher.N("n", labels[0]).WithProperties(props)).
		Return("n").
		Build()
	if err != nil {
		return "", err
	}

	result, err := s.runner.Run(ctx, query, params)
	if err != nil {
		return "", err
	}
	if len(result.Records) != 1 {
		err = fmt.Errorf("expected 1 record but found %d", len(result.Records))
		return "", err
	}

	nodeValue, ok := result.Records[0].Get("n")
	if !ok {
		err = fmt.Errorf("could not find return value 'n' in query result")
		return "", err
	}
	node, ok := nodeValue.(neo4j.Node)
	if !ok {
		err = fmt.Errorf("return value 'n' is not a node")
		return "", err
	}

	if len(labels) > 1 {
		_, err = s.runner.Run(ctx, addLabelsStatement(labels[1:]), map[string]any{"id": node.ElementId})
		if err != nil {
			return "", err
		}
	}

	return node.ElementId, nil
}

// UpdateNode overwrites the full property map of the node.
func (s *Store) UpdateNode(ctx context.Context, id string, props map[string]any) error {
	var err error

	ctx, span := tracer.Start(ctx, "update-node",
		trace.WithAttributes(attribute.String(TraceAttributeNodeID, id)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	if props == nil {
		props = map[string]any{}
	}

	result, err := s.runner.Run(ctx, updateNodeStatement, map[string]any{"id": id, "props": props})
	if err != nil {
		return err
	}
	if len(result.Records) == 0 {
		err = fmt.Errorf("%w: %s", graph.ErrNodeNotFound, id)
		return err
	}
	return nil
}

// MergeRelationship creates a directed relationship between two existing
// nodes unless one with the same type already connects them.
func (s *Store) MergeRelationship(ctx context.Context, from, to, relType string) error {
	var err error

	ctx, span := tracer.Start(ctx, "merge-relationship",
		trace.WithAttributes(attribute.String(TraceAttributeNodeID, from)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	result, err := s.runner.Run(ctx, mergeRelationshipStatement(relType), map[string]any{"from": from, "to": to})
	if err != nil {
		return err
	}
	if len(result.Records) == 0 {
		err = fmt.Errorf("%w: %s or %s", graph.ErrNodeNotFound, from, to)
		return err
	}
	return nil
}

// DeleteNode detach-deletes the node.
func (s *Store) DeleteNode(ctx context.Context, id string) error {
	var err error

	ctx, span := tracer.Start(ctx, "delete-node",
		trace.WithAttributes(attribute.String(TraceAttributeNodeID, id)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	_, err = s.runner.Run(ctx, deleteNodeStatement, map[string]any{"id": id})
	return err
}

// CountNodes counts the nodes carrying label.
func (s *Store) CountNodes(ctx context.Context, label string) (int64, error) {
	var err error

	ctx, span := tracer.Start(ctx, "count-nodes",
		trace.WithAttributes(attribute.String(TraceAttributeLabel, label)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	result, err := s.runner.Run(ctx, countStatement(label), nil)
	if err != nil {
		return 0, err
	}
	if len(result.Records) != 1 {
		err = fmt.Errorf("expected 1 record but found %d", len(result.Records))
		return 0, err
	}

	value, ok := result.Records[0].Get("count")
	if !ok {
		err = fmt.Errorf("could not find return value 'count' in query result")
		return 0, err
	}
	count, ok := value.(int64)
	if !ok {
		err = fmt.Errorf("return value 'count' is not an integer")
		return 0, err
	}
	return count, nil
}

// Purge detach-deletes every node in the database.
func (s *Store) Purge(ctx context.Context) error {
	var err error

	ctx, span := tracer.Start(ctx, "purge")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	query, params, err := gocypher.NewQueryBuilder().
		Match(gocypher.N("n", "")).
		DetachDelete("n").
		Build()
	if err != nil {
		return err
	}

	s.logger.Debug("purging database")
	_, err = s.runner.Run(ctx, query, params)
	return err
}
