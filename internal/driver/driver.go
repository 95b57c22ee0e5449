// Package driver declares the Driver Contract: the single
// abstraction every storage back-end implements. internal/driver/memory,
// internal/driver/neo4j, and internal/driver/kuzu are the pluggable
// implementations; the extractor pipeline talks only to this interface.
package driver

import (
	"context"

	"github.com/cpgkit/jvmcpg/internal/cpg"
)

// Driver is the storage-backend abstraction every extraction run talks
// to. All operations are synchronous and single-writer: no
// back-end is required to support concurrent writers, and callers must
// treat every call as potentially blocking on I/O.
type Driver interface {
	// AddVertex persists node, assigning its id if it is still
	// tentative (node.ID == -1), and rewrites node.ID in place.
	// Idempotent.
	AddVertex(ctx context.Context, node *cpg.Node) error

	// Exists reports whether an equivalent node is already persisted.
	Exists(ctx context.Context, node *cpg.Node) (bool, error)

	// ExistsEdge reports whether (src, dst, label) is already persisted.
	ExistsEdge(ctx context.Context, src, dst *cpg.Node, label cpg.EdgeKind) (bool, error)

	// AddEdge persists (src, dst, label), inserting either endpoint
	// first if it is not yet persisted. Returns a *cpgerr.SchemaViolation
	// if the triple is not schema.IsAllowed. Idempotent.
	AddEdge(ctx context.Context, src, dst *cpg.Node, label cpg.EdgeKind) error

	// DeleteVertex removes node. Idempotent: no error if absent.
	DeleteVertex(ctx context.Context, node *cpg.Node) error

	// DeleteMethod removes the method's AST/body closure identified by
	// (fullName, signature), the METHOD node included. Inbound CALL
	// edges are removed with the METHOD node; the calling CALL nodes,
	// which lie outside the closure, remain.
	DeleteMethod(ctx context.Context, fullName, signature string) error

	// GetMethod returns the method head and, when includeBody is true,
	// its transitive AST/CFG/REF/ARGUMENT/BINDS closure.
	GetMethod(ctx context.Context, fullName, signature string, includeBody bool) (*Subgraph, error)

	// GetProgramStructure returns the subgraph of FILE and
	// NAMESPACE_BLOCK nodes connected by AST edges.
	GetProgramStructure(ctx context.Context) (*Subgraph, error)

	// GetNeighbours returns node's one-hop in- and out-neighbourhood,
	// including node itself.
	GetNeighbours(ctx context.Context, node *cpg.Node) (*Subgraph, error)

	// GetWholeGraph returns the full store.
	GetWholeGraph(ctx context.Context) (*Subgraph, error)

	// GetVertexIDs returns every id in [lo, hi].
	GetVertexIDs(ctx context.Context, lo, hi int64) ([]int64, error)

	// Clear empties the store.
	Clear(ctx context.Context) error

	// Close releases any held resources (connections, file handles).
	Close() error
}
