package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/process-failed-successfully/codegraph-indexer/internal/telemetry"
)

// Neo4jSink is the production Sink implementation, backed by
// github.com/neo4j/neo4j-go-driver/v5.
type Neo4jSink struct {
	driver   neo4j.DriverWithContext
	uri      string
	database string
}

// NewNeo4jSink constructs an unconnected sink; call Connect before use.
func NewNeo4jSink() *Neo4jSink {
	return &Neo4jSink{}
}

// Connect implements Sink. It is idempotent: a sink already connected to
// the same URI/database is a no-op, since GraphUpdateTask calls Connect
// on every job run and must not leak a new driver each time.
func (s *Neo4jSink) Connect(ctx context.Context, cfg Config) error {
	if s.driver != nil && s.uri == cfg.URI && s.database == cfg.Database {
		return nil
	}
	if s.driver != nil {
		_ = s.driver.Close(ctx)
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return fmt.Errorf("connect neo4j: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	s.driver = driver
	s.uri = cfg.URI
	s.database = cfg.Database
	return nil
}

func (s *Neo4jSink) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
}

// UpsertNode implements Sink. It issues a parameterized MERGE statement
// keyed by n.Keys, sets n.Properties, and infers created-vs-updated from
// the result summary's NodesCreated counter.
func (s *Neo4jSink) UpsertNode(ctx context.Context, n NodeUpsert) (UpsertResult, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	cypher := fmt.Sprintf(
		"MERGE (n:%s {%s}) SET n += $props, n.updatedAt = timestamp()",
		n.Label, mergeKeyClause("k", n.Keys),
	)

	outcome, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransactionWithContext) (any, error) {
		params := mergeKeyParams("k", n.Keys)
		params["props"] = n.Properties
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		summary, err := result.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return summary.Counters().NodesCreated(), nil
	})
	if err != nil {
		return "", fmt.Errorf("upsert node %s: %w", n.Label, err)
	}
	telemetry.RecordGraphWrite("upsert_node")
	return resultFromCreatedCount(outcome.(int)), nil
}

// UpsertEdge implements Sink. It MATCHes the two endpoint nodes by their
// label+key tuples and MERGEs the relationship between them.
func (s *Neo4jSink) UpsertEdge(ctx context.Context, e EdgeUpsert) (UpsertResult, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	cypher := fmt.Sprintf(
		"MATCH (a:%s {%s}) MATCH (b:%s {%s}) MERGE (a)-[r:%s]->(b) SET r += $props",
		e.FromLabel, mergeKeyClause("from", e.FromKeys),
		e.ToLabel, mergeKeyClause("to", e.ToKeys),
		e.Type,
	)

	outcome, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransactionWithContext) (any, error) {
		params := mergeKeyParams("from", e.FromKeys)
		for k, v := range mergeKeyParams("to", e.ToKeys) {
			params[k] = v
		}
		params["props"] = e.Properties
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		summary, err := result.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return summary.Counters().RelationshipsCreated(), nil
	})
	if err != nil {
		return "", fmt.Errorf("upsert edge %s: %w", e.Type, err)
	}
	telemetry.RecordGraphWrite("upsert_edge")
	return resultFromCreatedCount(outcome.(int)), nil
}

// DeleteFile implements Sink. It detach-deletes the File node for
// (codebaseID, path) and every Symbol defined only by that file, per
// §4.3.3 step 5.
func (s *Neo4jSink) DeleteFile(ctx context.Context, codebaseID, path string) (DeleteFileResult, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	cypher := `
MATCH (f:File {codebaseId: $codebaseId, path: $path})
OPTIONAL MATCH (f)-[:DEFINES]->(sym:Symbol)
WHERE NOT EXISTS {
  MATCH (other:File)-[:DEFINES]->(sym)
  WHERE other.path <> $path OR other.codebaseId <> $codebaseId
}
WITH f, collect(sym) AS symbols
DETACH DELETE f
FOREACH (s IN symbols | DETACH DELETE s)
RETURN size(symbols) AS symbolsDeleted`

	outcome, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransactionWithContext) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{"codebaseId": codebaseID, "path": path})
		if err != nil {
			return nil, err
		}
		summary, err := result.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return summary.Counters(), nil
	})
	if err != nil {
		return DeleteFileResult{}, fmt.Errorf("delete file %s: %w", path, err)
	}
	telemetry.RecordGraphWrite("delete_file")
	counters := outcome.(neo4j.Counters)
	return DeleteFileResult{
		NodesDeleted: counters.NodesDeleted(),
		EdgesDeleted: counters.RelationshipsDeleted(),
	}, nil
}

// Close implements Sink.
func (s *Neo4jSink) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

func resultFromCreatedCount(created int) UpsertResult {
	if created > 0 {
		return ResultCreated
	}
	return ResultUpdated
}

// mergeKeyClause renders a deterministic `{k0: $prefix_k0, k1: $prefix_k1}`
// style clause for use inside a Cypher pattern; keys are sorted so
// generated queries are stable and cacheable by the driver.
func mergeKeyClause(prefix string, keys map[string]any) string {
	names := sortedKeys(keys)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: $%s_%s", name, prefix, sanitizeParam(name)))
	}
	return strings.Join(parts, ", ")
}

func mergeKeyParams(prefix string, keys map[string]any) map[string]any {
	params := make(map[string]any, len(keys))
	for name, value := range keys {
		params[prefix+"_"+sanitizeParam(name)] = value
	}
	return params
}

func sanitizeParam(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}

func sortedKeys(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
