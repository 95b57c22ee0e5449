// Package kuzu implements the Driver Contract against an embedded,
// disk-spilling Kuzu graph database, alongside the remote Neo4j
// back-end. Kuzu requires an explicit node/relationship DDL up front
// (unlike Neo4j's schema-free labels), so every CPG node kind is
// stored in one CpgNode table keyed
// by id, with its kind carried as a column, and every edge in one
// CpgEdge relationship table with its label carried as a column; the
// schema package's allowed-triples table is still the authority on
// legality, this is purely a storage-layout decision.
package kuzu

import (
	"context"
	"encoding/json"
	"fmt"

	kuzu "github.com/kuzudb/go-kuzu"
	"go.uber.org/zap"

	"github.com/cpgkit/jvmcpg/internal/cpg"
	"github.com/cpgkit/jvmcpg/internal/cpgerr"
	"github.com/cpgkit/jvmcpg/internal/driver"
	"github.com/cpgkit/jvmcpg/internal/ids"
	"github.com/cpgkit/jvmcpg/internal/schema"
)

// Config parameterizes the on-disk database location.
type Config struct {
	Path string
}

// Driver is the Kuzu-backed Driver Contract implementation.
type Driver struct {
	db     *kuzu.Database
	conn   *kuzu.Connection
	alloc  *ids.Allocator
	logger *zap.Logger
}

const ddl = `
CREATE NODE TABLE IF NOT EXISTS CpgNode(
	id INT64,
	kind STRING,
	nodeOrder INT64,
	argumentIndex INT64,
	lineNumber INT64,
	columnNumber INT64,
	code STRING,
	name STRING,
	fullName STRING,
	signature STRING,
	filename STRING,
	hash STRING,
	astParentFullName STRING,
	astParentType STRING,
	typeFullName STRING,
	methodFullName STRING,
	dispatchType STRING,
	evaluationStrategy STRING,
	modifierType STRING,
	language STRING,
	version STRING,
	extraJSON STRING,
	PRIMARY KEY(id)
);
CREATE REL TABLE IF NOT EXISTS CpgEdge(FROM CpgNode TO CpgNode, label STRING);
`

// New opens (creating if absent) the database at cfg.Path and ensures
// the CpgNode/CpgEdge tables exist.
func New(cfg Config, logger *zap.Logger) (*Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := kuzu.OpenDatabase(cfg.Path, kuzu.DefaultSystemConfig())
	if err != nil {
		return nil, &cpgerr.DriverUnavailable{Backend: "kuzu", Cause: err}
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		return nil, &cpgerr.DriverUnavailable{Backend: "kuzu", Cause: err}
	}
	d := &Driver{db: db, conn: conn, logger: logger}
	if err := d.execClose(ddl, nil); err != nil {
		return nil, fmt.Errorf("initializing kuzu schema: %w", err)
	}
	maxID, err := d.maxID()
	if err != nil {
		return nil, err
	}
	d.alloc = ids.NewAllocator(maxID)
	return d, nil
}

func (d *Driver) exec(query string, params map[string]any) (*kuzu.QueryResult, error) {
	stmt, err := d.conn.Prepare(query)
	if err != nil {
		return nil, &cpgerr.DriverUnavailable{Backend: "kuzu", Cause: err}
	}
	defer stmt.Close()
	result, err := d.conn.Execute(stmt, params)
	if err != nil {
		return nil, &cpgerr.DriverUnavailable{Backend: "kuzu", Cause: err}
	}
	return result, nil
}

// execClose runs a statement whose result carries no rows the caller
// needs.
func (d *Driver) execClose(query string, params map[string]any) error {
	result, err := d.exec(query, params)
	if err != nil {
		return err
	}
	result.Close()
	return nil
}

func nodeParams(n *cpg.Node) map[string]any {
	extraJSON := "{}"
	if len(n.Props.Extra) > 0 {
		if b, err := json.Marshal(n.Props.Extra); err == nil {
			extraJSON = string(b)
		}
	}
	return map[string]any{
		"id":                 n.ID,
		"kind":               string(n.Kind),
		"nodeOrder":          int64(n.Order),
		"argumentIndex":      int64(n.ArgumentIndex),
		"lineNumber":         int64(n.LineNumber),
		"columnNumber":       int64(n.ColumnNumber),
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
		"extraJSON":          extraJSON,
	}
}

// AddVertex MERGEs the node by id, assigning one from the allocator
// first if tentative.
func (d *Driver) AddVertex(_ context.Context, node *cpg.Node) error {
	if node.Pending() {
		node.ID = d.alloc.Reserve()
	}
	query := `
		MERGE (n:CpgNode {id: $id})
		SET n.kind = $kind, n.nodeOrder = $nodeOrder, n.argumentIndex = $argumentIndex,
		    n.lineNumber = $lineNumber, n.columnNumber = $columnNumber, n.code = $code,
		    n.name = $name, n.fullName = $fullName, n.signature = $signature,
		    n.filename = $filename, n.hash = $hash,
		    n.astParentFullName = $astParentFullName, n.astParentType = $astParentType,
		    n.typeFullName = $typeFullName, n.methodFullName = $methodFullName,
		    n.dispatchType = $dispatchType, n.evaluationStrategy = $evaluationStrategy,
		    n.modifierType = $modifierType, n.language = $language, n.version = $version,
		    n.extraJSON = $extraJSON`
	return d.execClose(query, nodeParams(node))
}

func (d *Driver) maxID() (int64, error) {
	result, err := d.exec("MATCH (n:CpgNode) RETURN coalesce(max(n.id), -1) AS maxID", nil)
	if err != nil {
		return -1, err
	}
	defer result.Close()
	if !result.HasNext() {
		return -1, nil
	}
	tuple, err := result.Next()
	if err != nil {
		return -1, &cpgerr.DriverUnavailable{Backend: "kuzu", Cause: err}
	}
	v, err := tuple.GetValue(0)
	if err != nil {
		return -1, &cpgerr.DriverUnavailable{Backend: "kuzu", Cause: err}
	}
	id, _ := v.(int64)
	return id, nil
}

// Exists reports whether a node with node.ID is persisted.
func (d *Driver) Exists(_ context.Context, node *cpg.Node) (bool, error) {
	result, err := d.exec("MATCH (n:CpgNode {id: $id}) RETURN count(n) > 0 AS found", map[string]any{"id": node.ID})
	if err != nil {
		return false, err
	}
	defer result.Close()
	return scanBool(result)
}

// ExistsEdge reports whether (src, dst, label) is persisted.
func (d *Driver) ExistsEdge(_ context.Context, src, dst *cpg.Node, label cpg.EdgeKind) (bool, error) {
	query := `MATCH (a:CpgNode {id: $src})-[e:CpgEdge {label: $label}]->(b:CpgNode {id: $dst}) RETURN count(e) > 0 AS found`
	result, err := d.exec(query, map[string]any{"src": src.ID, "dst": dst.ID, "label": string(label)})
	if err != nil {
		return false, err
	}
	defer result.Close()
	return scanBool(result)
}

// AddEdge schema-checks first, auto-inserts either endpoint, then MERGEs
// the relationship, tagged with its label.
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
	query := `MATCH (a:CpgNode {id: $src}), (b:CpgNode {id: $dst}) MERGE (a)-[:CpgEdge {label: $label}]->(b)`
	return d.execClose(query, map[string]any{"src": src.ID, "dst": dst.ID, "label": string(label)})
}

// DeleteVertex removes node and its incident edges. Idempotent.
func (d *Driver) DeleteVertex(_ context.Context, node *cpg.Node) error {
	return d.execClose("MATCH (n:CpgNode {id: $id}) DETACH DELETE n", map[string]any{"id": node.ID})
}

// DeleteMethod removes the method's AST closure: the METHOD node and
// the nodes reachable from it via CpgEdge{label:"AST"} are
// DETACH-deleted, which removes inbound CALL edges as well; the calling
// CALL nodes remain.
func (d *Driver) DeleteMethod(_ context.Context, fullName, signature string) error {
	query := `
		MATCH (m:CpgNode {kind: 'METHOD', fullName: $fullName, signature: $signature})
		OPTIONAL MATCH (m)-[:CpgEdge* {label: 'AST'}]->(n:CpgNode)
		DETACH DELETE n, m`
	return d.execClose(query, map[string]any{"fullName": fullName, "signature": signature})
}

var methodClosureLabels = []string{"AST", "REF", "CFG", "ARGUMENT", "CAPTURED_BY", "BINDS_TO", "RECEIVER", "CONDITION", "BINDS"}

// GetMethod returns the method head and, when includeBody is true, its
// transitive closure.
func (d *Driver) GetMethod(_ context.Context, fullName, signature string, includeBody bool) (*driver.Subgraph, error) {
	if !includeBody {
		result, err := d.exec(`MATCH (m:CpgNode {kind: 'METHOD', fullName: $fullName, signature: $signature}) RETURN m`,
			map[string]any{"fullName": fullName, "signature": signature})
		if err != nil {
			return nil, err
		}
		defer result.Close()
		return scanNodesOnly(result)
	}
	query := fmt.Sprintf(`
		MATCH (m:CpgNode {kind: 'METHOD', fullName: $fullName, signature: $signature})
		OPTIONAL MATCH (m)-[e:CpgEdge* WHERE all(x IN e WHERE x.label IN %s)]->(n:CpgNode)
		WITH collect(DISTINCT m) + collect(DISTINCT n) AS ns
		UNWIND ns AS a
		OPTIONAL MATCH (a)-[r:CpgEdge]->(b) WHERE b IN ns
		RETURN ns, collect(DISTINCT r)`, listLiteral(methodClosureLabels))
	result, err := d.exec(query, map[string]any{"fullName": fullName, "signature": signature})
	if err != nil {
		return nil, err
	}
	defer result.Close()
	return scanSubgraph(result)
}

func listLiteral(labels []string) string {
	s := "["
	for i, l := range labels {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%q", l)
	}
	return s + "]"
}

// GetProgramStructure returns the FILE/NAMESPACE_BLOCK subgraph.
func (d *Driver) GetProgramStructure(_ context.Context) (*driver.Subgraph, error) {
	query := `
		MATCH (f:CpgNode {kind: 'FILE'})
		OPTIONAL MATCH (f)-[e:CpgEdge* {label: 'AST'}]->(n:CpgNode {kind: 'NAMESPACE_BLOCK'})
		WITH collect(DISTINCT f) + collect(DISTINCT n) AS ns
		UNWIND ns AS a
		OPTIONAL MATCH (a)-[r:CpgEdge {label: 'AST'}]->(b) WHERE b IN ns
		RETURN ns, collect(DISTINCT r)`
	result, err := d.exec(query, nil)
	if err != nil {
		return nil, err
	}
	defer result.Close()
	return scanSubgraph(result)
}

// GetNeighbours returns node's one-hop in/out neighbourhood.
func (d *Driver) GetNeighbours(_ context.Context, node *cpg.Node) (*driver.Subgraph, error) {
	query := `
		MATCH (n:CpgNode {id: $id})
		OPTIONAL MATCH (n)-[ro]->(out)
		OPTIONAL MATCH (in)-[ri]->(n)
		WITH collect(DISTINCT out) + collect(DISTINCT in) + [n] AS ns,
		     collect(DISTINCT ro) + collect(DISTINCT ri) AS rels
		RETURN ns, rels`
	result, err := d.exec(query, map[string]any{"id": node.ID})
	if err != nil {
		return nil, err
	}
	defer result.Close()
	return scanSubgraph(result)
}

// GetWholeGraph returns the full store.
func (d *Driver) GetWholeGraph(_ context.Context) (*driver.Subgraph, error) {
	result, err := d.exec(`MATCH (n:CpgNode) OPTIONAL MATCH (n)-[r:CpgEdge]->(m:CpgNode) RETURN collect(DISTINCT n), collect(DISTINCT r)`, nil)
	if err != nil {
		return nil, err
	}
	defer result.Close()
	return scanSubgraph(result)
}

// GetVertexIDs returns every id in [lo, hi].
func (d *Driver) GetVertexIDs(_ context.Context, lo, hi int64) ([]int64, error) {
	result, err := d.exec(`MATCH (n:CpgNode) WHERE n.id >= $lo AND n.id <= $hi RETURN n.id`,
		map[string]any{"lo": lo, "hi": hi})
	if err != nil {
		return nil, err
	}
	defer result.Close()
	var out []int64
	for result.HasNext() {
		tuple, err := result.Next()
		if err != nil {
			return nil, &cpgerr.DriverUnavailable{Backend: "kuzu", Cause: err}
		}
		v, err := tuple.GetValue(0)
		if err != nil {
			return nil, &cpgerr.DriverUnavailable{Backend: "kuzu", Cause: err}
		}
		if id, ok := v.(int64); ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// Clear empties the store.
func (d *Driver) Clear(_ context.Context) error {
	if err := d.execClose("MATCH (n:CpgNode) DETACH DELETE n", nil); err != nil {
		return err
	}
	d.alloc = ids.NewAllocator(-1)
	return nil
}

// Close releases the database handle.
func (d *Driver) Close() error {
	d.conn.Close()
	d.db.Close()
	return nil
}

func scanBool(result *kuzu.QueryResult) (bool, error) {
	if !result.HasNext() {
		return false, nil
	}
	tuple, err := result.Next()
	if err != nil {
		return false, &cpgerr.DriverUnavailable{Backend: "kuzu", Cause: err}
	}
	v, err := tuple.GetValue(0)
	if err != nil {
		return false, &cpgerr.DriverUnavailable{Backend: "kuzu", Cause: err}
	}
	b, _ := v.(bool)
	return b, nil
}

func scanNodesOnly(result *kuzu.QueryResult) (*driver.Subgraph, error) {
	sg := &driver.Subgraph{}
	for result.HasNext() {
		tuple, err := result.Next()
		if err != nil {
			return nil, &cpgerr.DriverUnavailable{Backend: "kuzu", Cause: err}
		}
		v, err := tuple.GetValue(0)
		if err != nil {
			return nil, &cpgerr.DriverUnavailable{Backend: "kuzu", Cause: err}
		}
		if n := decodeNodeValue(v); n != nil {
			sg.Nodes = append(sg.Nodes, n)
		}
	}
	return sg, nil
}

func scanSubgraph(result *kuzu.QueryResult) (*driver.Subgraph, error) {
	sg := &driver.Subgraph{}
	for result.HasNext() {
		tuple, err := result.Next()
		if err != nil {
			return nil, &cpgerr.DriverUnavailable{Backend: "kuzu", Cause: err}
		}
		nodesV, err := tuple.GetValue(0)
		if err != nil {
			return nil, &cpgerr.DriverUnavailable{Backend: "kuzu", Cause: err}
		}
		relsV, err := tuple.GetValue(1)
		if err != nil {
			return nil, &cpgerr.DriverUnavailable{Backend: "kuzu", Cause: err}
		}
		if nodeList, ok := nodesV.([]any); ok {
			for _, nv := range nodeList {
				if n := decodeNodeValue(nv); n != nil {
					sg.Nodes = append(sg.Nodes, n)
				}
			}
		}
		if relList, ok := relsV.([]any); ok {
			for _, rv := range relList {
				if e := decodeEdgeValue(rv); e != nil {
					sg.Edges = append(sg.Edges, e)
				}
			}
		}
	}
	return sg, nil
}

// decodeNodeValue decodes a CpgNode property map returned by the Kuzu
// Go bindings (map[string]any per the driver's node-value representation).
func decodeNodeValue(v any) *cpg.Node {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	num := func(k string) int {
		if i, ok := m[k].(int64); ok {
			return int(i)
		}
		return cpg.DefaultInt
	}
	node := cpg.NewNode(cpg.NodeKind(str("kind")))
	if id, ok := m["id"].(int64); ok {
		node.ID = id
	}
	node.Order = num("nodeOrder")
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
	if extraJSON := str("extraJSON"); extraJSON != "" && extraJSON != "{}" {
		var extra map[string]string
		if err := json.Unmarshal([]byte(extraJSON), &extra); err == nil {
			node.Props.Extra = extra
		}
	}
	return node
}

func decodeEdgeValue(v any) *cpg.Edge {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	src, _ := m["_src"].(int64)
	dst, _ := m["_dst"].(int64)
	label, _ := m["label"].(string)
	return &cpg.Edge{Src: src, Dst: dst, Label: cpg.EdgeKind(label)}
}

var _ driver.Driver = (*Driver)(nil)
