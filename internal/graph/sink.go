// Package graph defines the GraphSink collaborator contract consumed by
// GraphUpdate and its Neo4j-backed implementation.
package graph

import "context"

// UpsertResult reports whether an upsert created or updated an existing
// node/edge, inferred from the driver's result counters.
type UpsertResult string

const (
	ResultCreated UpsertResult = "created"
	ResultUpdated UpsertResult = "updated"
)

// NodeUpsert describes a MERGE-by-key node write.
type NodeUpsert struct {
	Label      string
	Keys       map[string]any
	Properties map[string]any
}

// EdgeUpsert describes a MERGE-by-key relationship write between two
// already-upserted nodes, identified by their label+key tuples.
type EdgeUpsert struct {
	FromLabel  string
	FromKeys   map[string]any
	ToLabel    string
	ToKeys     map[string]any
	Type       string
	Properties map[string]any
}

// DeleteFileResult reports how many nodes/edges a deleteFile call
// removed.
type DeleteFileResult struct {
	NodesDeleted int
	EdgesDeleted int
}

// Config carries connection parameters, sourced from
// config.EngineConfig.Graph.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// Sink is the graph-database collaborator used by GraphUpdate.
// Connect must be called before any other method; Close releases the
// underlying driver and session resources.
type Sink interface {
	Connect(ctx context.Context, cfg Config) error
	UpsertNode(ctx context.Context, n NodeUpsert) (UpsertResult, error)
	UpsertEdge(ctx context.Context, e EdgeUpsert) (UpsertResult, error)
	DeleteFile(ctx context.Context, codebaseID, path string) (DeleteFileResult, error)
	Close(ctx context.Context) error
}
