// Package neo4j implements the Driver Contract against a remote Neo4j
// labelled-graph database: parameterized MERGE-by-id Cypher,
// property-map SET clauses, and "md_"-prefixed flattening of metadata
// the schema does not name.
package neo4j

import (
	"context"
	"fmt"

	neo "github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/cpgkit/jvmcpg/internal/cpg"
	"github.com/cpgkit/jvmcpg/internal/cpgerr"
	"github.com/cpgkit/jvmcpg/internal/driver"
	"github.com/cpgkit/jvmcpg/internal/ids"
	"github.com/cpgkit/jvmcpg/internal/schema"
)

// Config parameterizes a connection to a Neo4j instance.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// Driver is the Neo4j-backed Driver Contract implementation.
type Driver struct {
	drv    neo.DriverWithContext
	db     string
	alloc  *ids.Allocator
	logger *zap.Logger
}

// New dials uri and verifies connectivity before returning. The id
// allocator is seeded once here from the store's current maximum id,
// so AddVertex never needs a max-id round trip of its own.
func New(cfg Config, logger *zap.Logger) (*Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	drv, err := neo.NewDriverWithContext(cfg.URI, neo.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, &cpgerr.DriverUnavailable{Backend: "neo4j", Cause: err}
	}
	ctx := context.Background()
	if err := drv.VerifyConnectivity(ctx); err != nil {
		return nil, &cpgerr.DriverUnavailable{Backend: "neo4j", Cause: err}
	}
	d := &Driver{drv: drv, db: cfg.Database, logger: logger}
	session := d.session(ctx)
	defer session.Close(ctx)
	maxID, err := d.queryMaxID(ctx, session)
	if err != nil {
		return nil, err
	}
	d.alloc = ids.NewAllocator(maxID)
	return d, nil
}

func (d *Driver) session(ctx context.Context) neo.SessionWithContext {
	return d.drv.NewSession(ctx, neo.SessionConfig{DatabaseName: d.db})
}

// propsMap flattens a node's properties into a Cypher parameter map.
// First-class schema properties map 1:1; anything in Props.Extra gets
// an "md_" prefix so it never collides with a real property name.
func propsMap(n *cpg.Node) map[string]any {
	m := map[string]any{
		"order":              n.Order,
		"argumentIndex":      n.ArgumentIndex,
		"lineNumber":         n.LineNumber,
		"columnNumber":       n.ColumnNumber,
		"code":               n.Code,
		"name":               n.Props.Name,
		"fullName":           n.Props.FullName,
		"signature":          n.Props.Signature,
		"filename":           n.Props.Filename,
		"hash":               n.Props.Hash,
		"astParentFullName":  n.Props.AstParentFullName,
		"astParentType":      n.Props.AstParentType,
		"typeFullName":       n.Props.TypeFullName,
		"methodFullName":     n.Props.MethodFullName,
		"dispatchType":       n.Props.DispatchType,
		"evaluationStrategy": n.Props.EvaluationStrategy,
		"modifierType":       n.Props.ModifierType,
		"language":           n.Props.Language,
		"version":            n.Props.Version,
	}
	for k, v := range n.Props.Extra {
		m["md_"+k] = v
	}
	return m
}

// AddVertex MERGEs node by id (or, for a tentative node, by an
// `apoc.create.uuid`-free client-assigned id reserved up front), then
// SETs every property.
func (d *Driver) AddVertex(ctx context.Context, node *cpg.Node) error {
	session := d.session(ctx)
	defer session.Close(ctx)

	if node.Pending() {
		node.ID = d.alloc.Reserve()
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo.ManagedTransaction) (any, error) {
		query := fmt.Sprintf("MERGE (n:%s {id: $id}) SET n += $props", string(node.Kind))
		_, err := tx.Run(ctx, query, map[string]any{"id": node.ID, "props": propsMap(node)})
		return nil, err
	})
	if err != nil {
		return &cpgerr.DriverUnavailable{Backend: "neo4j", Cause: err}
	}
	return nil
}

func (d *Driver) queryMaxID(ctx context.Context, session neo.SessionWithContext) (int64, error) {
	result, err := session.ExecuteRead(ctx, func(tx neo.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, "MATCH (n) RETURN coalesce(max(n.id), -1) AS maxID", nil)
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		maxID, _ := record.Get("maxID")
		return maxID, nil
	})
	if err != nil {
		return -1, &cpgerr.DriverUnavailable{Backend: "neo4j", Cause: err}
	}
	maxID, _ := result.(int64)
	return maxID, nil
}

// Exists reports whether a node of the same kind and id is already
// persisted. Matching is by id only: a tentative node (id -1) is never
// reported as present, whatever its properties.
func (d *Driver) Exists(ctx context.Context, node *cpg.Node) (bool, error) {
	session := d.session(ctx)
	defer session.Close(ctx)

	query := fmt.Sprintf("MATCH (n:%s {id: $id}) RETURN count(n) > 0 AS found", string(node.Kind))
	result, err := session.ExecuteRead(ctx, func(tx neo.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"id": node.ID})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		found, _ := record.Get("found")
		return found, nil
	})
	if err != nil {
		return false, &cpgerr.DriverUnavailable{Backend: "neo4j", Cause: err}
	}
	found, _ := result.(bool)
	return found, nil
}

// ExistsEdge reports whether (src, dst, label) is persisted.
func (d *Driver) ExistsEdge(ctx context.Context, src, dst *cpg.Node, label cpg.EdgeKind) (bool, error) {
	session := d.session(ctx)
	defer session.Close(ctx)

	query := fmt.Sprintf("MATCH (a {id: $src})-[:%s]->(b {id: $dst}) RETURN count(*) > 0 AS found", string(label))
	result, err := session.ExecuteRead(ctx, func(tx neo.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"src": src.ID, "dst": dst.ID})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		found, _ := record.Get("found")
		return found, nil
	})
	if err != nil {
		return false, &cpgerr.DriverUnavailable{Backend: "neo4j", Cause: err}
	}
	found, _ := result.(bool)
	return found, nil
}

// AddEdge schema-checks first (fail closed), auto-inserts either
// endpoint if absent, then MERGEs the relationship.
func (d *Driver) AddEdge(ctx context.Context, src, dst *cpg.Node, label cpg.EdgeKind) error {
	if !schema.IsAllowed(src.Kind, label, dst.Kind) {
		return &cpgerr.SchemaViolation{
			MethodFullName: src.Props.FullName,
			Signature:      src.Props.Signature,
			Reason:         fmt.Sprintf("%s -%s-> %s is not a legal triple", src.Kind, label, dst.Kind),
		}
	}
	if err := d.AddVertex(ctx, src); err != nil {
		return err
	}
	if err := d.AddVertex(ctx, dst); err != nil {
		return err
	}

	session := d.session(ctx)
	defer session.Close(ctx)
	query := fmt.Sprintf("MATCH (a {id: $src}), (b {id: $dst}) MERGE (a)-[:%s]->(b)", string(label))
	_, err := session.ExecuteWrite(ctx, func(tx neo.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, map[string]any{"src": src.ID, "dst": dst.ID})
		return nil, err
	})
	if err != nil {
		return &cpgerr.DriverUnavailable{Backend: "neo4j", Cause: err}
	}
	return nil
}

// DeleteVertex removes node and its incident edges. Idempotent.
func (d *Driver) DeleteVertex(ctx context.Context, node *cpg.Node) error {
	session := d.session(ctx)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, "MATCH (n {id: $id}) DETACH DELETE n", map[string]any{"id": node.ID})
		return nil, err
	})
	if err != nil {
		return &cpgerr.DriverUnavailable{Backend: "neo4j", Cause: err}
	}
	return nil
}

// DeleteMethod removes the method's AST closure. Neo4j cannot hold a
// relationship to a deleted node, so inbound CALL edges go with the
// METHOD node; the pipeline captures them before deleting and replays
// them in LINKING_CALLS.
func (d *Driver) DeleteMethod(ctx context.Context, fullName, signature string) error {
	session := d.session(ctx)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MATCH (m:METHOD {fullName: $fullName, signature: $signature})
			OPTIONAL MATCH (m)-[:AST*0..]->(n)
			DETACH DELETE n`,
			map[string]any{"fullName": fullName, "signature": signature})
		return nil, err
	})
	if err != nil {
		return &cpgerr.DriverUnavailable{Backend: "neo4j", Cause: err}
	}
	return nil
}

var methodClosureLabels = []cpg.EdgeKind{
	cpg.EdgeAST, cpg.EdgeRef, cpg.EdgeCFG, cpg.EdgeArgument,
	cpg.EdgeCapturedBy, cpg.EdgeBindsTo, cpg.EdgeReceiver, cpg.EdgeCondition, cpg.EdgeBinds,
}

// GetMethod returns the method head and, when includeBody is true, its
// transitive closure along the method-subgraph labels.
func (d *Driver) GetMethod(ctx context.Context, fullName, signature string, includeBody bool) (*driver.Subgraph, error) {
	session := d.session(ctx)
	defer session.Close(ctx)

	labelPattern := relTypePattern(methodClosureLabels)
	query := fmt.Sprintf(`
		MATCH (m:METHOD {fullName: $fullName, signature: $signature})
		OPTIONAL MATCH p = (m)-[:%s*0..]->(n)
		UNWIND nodes(p) AS node
		WITH collect(DISTINCT node) AS ns
		UNWIND ns AS a
		OPTIONAL MATCH (a)-[r]->(b) WHERE b IN ns
		RETURN ns AS nodes, collect(DISTINCT r) AS rels`, labelPattern)
	if !includeBody {
		query = `MATCH (m:METHOD {fullName: $fullName, signature: $signature}) RETURN [m] AS nodes, [] AS rels`
	}

	return d.runSubgraphQuery(ctx, session, query, map[string]any{"fullName": fullName, "signature": signature})
}

// GetProgramStructure returns the FILE/NAMESPACE_BLOCK subgraph.
func (d *Driver) GetProgramStructure(ctx context.Context) (*driver.Subgraph, error) {
	session := d.session(ctx)
	defer session.Close(ctx)
	query := `
		MATCH (f:FILE)
		OPTIONAL MATCH p = (f)-[:AST*0..]->(ns:NAMESPACE_BLOCK)
		UNWIND nodes(p) AS node
		WITH collect(DISTINCT node) AS ns
		UNWIND ns AS a
		OPTIONAL MATCH (a)-[r:AST]->(b) WHERE b IN ns
		RETURN ns AS nodes, collect(DISTINCT r) AS rels`
	return d.runSubgraphQuery(ctx, session, query, nil)
}

// GetNeighbours returns node's one-hop in/out neighbourhood.
func (d *Driver) GetNeighbours(ctx context.Context, node *cpg.Node) (*driver.Subgraph, error) {
	session := d.session(ctx)
	defer session.Close(ctx)
	query := `
		MATCH (n {id: $id})
		OPTIONAL MATCH (n)-[ro]->(out)
		OPTIONAL MATCH (in)-[ri]->(n)
		WITH n, collect(DISTINCT out) + collect(DISTINCT in) + [n] AS ns,
		     collect(DISTINCT ro) + collect(DISTINCT ri) AS rels
		RETURN ns AS nodes, rels`
	return d.runSubgraphQuery(ctx, session, query, map[string]any{"id": node.ID})
}

// GetWholeGraph returns the full store.
func (d *Driver) GetWholeGraph(ctx context.Context) (*driver.Subgraph, error) {
	session := d.session(ctx)
	defer session.Close(ctx)
	query := `MATCH (n) OPTIONAL MATCH (n)-[r]->(m) RETURN collect(DISTINCT n) AS nodes, collect(DISTINCT r) AS rels`
	return d.runSubgraphQuery(ctx, session, query, nil)
}

// GetVertexIDs returns every id in [lo, hi].
func (d *Driver) GetVertexIDs(ctx context.Context, lo, hi int64) ([]int64, error) {
	session := d.session(ctx)
	defer session.Close(ctx)
	result, err := session.ExecuteRead(ctx, func(tx neo.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, "MATCH (n) WHERE n.id >= $lo AND n.id <= $hi RETURN collect(n.id) AS ids",
			map[string]any{"lo": lo, "hi": hi})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		ids, _ := record.Get("ids")
		return ids, nil
	})
	if err != nil {
		return nil, &cpgerr.DriverUnavailable{Backend: "neo4j", Cause: err}
	}
	raw, _ := result.([]any)
	out := make([]int64, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(int64); ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// Clear empties the store.
func (d *Driver) Clear(ctx context.Context) error {
	session := d.session(ctx)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, "MATCH (n) DETACH DELETE n", nil)
		return nil, err
	})
	if err != nil {
		return &cpgerr.DriverUnavailable{Backend: "neo4j", Cause: err}
	}
	d.alloc = ids.NewAllocator(-1)
	return nil
}

// Close releases the underlying driver's connection pool.
func (d *Driver) Close() error {
	return d.drv.Close(context.Background())
}

func relTypePattern(labels []cpg.EdgeKind) string {
	s := ""
	for i, l := range labels {
		if i > 0 {
			s += "|"
		}
		s += string(l)
	}
	return s
}

func (d *Driver) runSubgraphQuery(ctx context.Context, session neo.SessionWithContext, query string, params map[string]any) (*driver.Subgraph, error) {
	result, err := session.ExecuteRead(ctx, func(tx neo.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return &driver.Subgraph{}, nil
		}
		nodesRaw, _ := record.Get("nodes")
		relsRaw, _ := record.Get("rels")
		return decodeSubgraph(nodesRaw, relsRaw), nil
	})
	if err != nil {
		return nil, &cpgerr.DriverUnavailable{Backend: "neo4j", Cause: err}
	}
	sg, _ := result.(*driver.Subgraph)
	if sg == nil {
		sg = &driver.Subgraph{}
	}
	return sg, nil
}

func decodeSubgraph(nodesRaw, relsRaw any) *driver.Subgraph {
	sg := &driver.Subgraph{}
	nodeList, _ := nodesRaw.([]any)
	for _, v := range nodeList {
		n, ok := v.(neo.Node)
		if !ok {
			continue
		}
		sg.Nodes = append(sg.Nodes, decodeNode(n))
	}
	relList, _ := relsRaw.([]any)
	for _, v := range relList {
		r, ok := v.(neo.Relationship)
		if !ok {
			continue
		}
		sg.Edges = append(sg.Edges, &cpg.Edge{Src: r.StartId, Dst: r.EndId, Label: cpg.EdgeKind(r.Type)})
	}
	return sg
}

func decodeNode(n neo.Node) *cpg.Node {
	var kind cpg.NodeKind
	if len(n.Labels) > 0 {
		kind = cpg.NodeKind(n.Labels[0])
	}
	node := cpg.NewNode(kind)
	str := func(key string) string {
		if v, ok := n.Props[key].(string); ok {
			return v
		}
		return ""
	}
	num := func(key string) int {
		if v, ok := n.Props[key].(int64); ok {
			return int(v)
		}
		return cpg.DefaultInt
	}
	node.ID = num64(n.Props["id"])
	node.Order = num("order")
	node.ArgumentIndex = num("argumentIndex")
	node.LineNumber = num("lineNumber")
	node.ColumnNumber = num("columnNumber")
	node.Code = str("code")
	node.Props.Name = str("name")
	node.Props.FullName = str("fullName")
	node.Props.Signature = str("signature")
	node.Props.Filename = str("filename")
	node.Props.Hash = str("hash")
	node.Props.AstParentFullName = str("astParentFullName")
	node.Props.AstParentType = str("astParentType")
	node.Props.TypeFullName = str("typeFullName")
	node.Props.MethodFullName = str("methodFullName")
	node.Props.DispatchType = str("dispatchType")
	node.Props.EvaluationStrategy = str("evaluationStrategy")
	node.Props.ModifierType = str("modifierType")
	node.Props.Language = str("language")
	node.Props.Version = str("version")
	for k, v := range n.Props {
		if len(k) > 3 && k[:3] == "md_" {
			s, ok := v.(string)
			if !ok {
				continue
			}
			if node.Props.Extra == nil {
				node.Props.Extra = make(map[string]string)
			}
			node.Props.Extra[k[3:]] = s
		}
	}
	return node
}

func num64(v any) int64 {
	if i, ok := v.(int64); ok {
		return i
	}
	return -1
}

var _ driver.Driver = (*Driver)(nil)
