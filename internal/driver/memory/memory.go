// Package memory implements the in-memory reference driver: a
// straightforward adjacency-list store that serves as the correctness
// oracle the other back-ends are tested against.
package memory

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cpgkit/jvmcpg/internal/cpg"
	"github.com/cpgkit/jvmcpg/internal/cpgerr"
	"github.com/cpgkit/jvmcpg/internal/driver"
	"github.com/cpgkit/jvmcpg/internal/schema"
)

type adjacency struct {
	label cpg.EdgeKind
	other int64
}

// Driver is the in-memory reference back-end. The zero value is not
// usable; construct with New.
type Driver struct {
	mu       sync.RWMutex
	nodes    map[int64]*cpg.Node
	outAdj   map[int64][]adjacency
	inAdj    map[int64][]adjacency
	byKind   map[cpg.NodeKind]map[int64]bool
	nextID   int64
	logger   *zap.Logger
}

// New constructs an empty in-memory store.
func New(logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		nodes:  make(map[int64]*cpg.Node),
		outAdj: make(map[int64][]adjacency),
		inAdj:  make(map[int64][]adjacency),
		byKind: make(map[cpg.NodeKind]map[int64]bool),
		logger: logger,
	}
}

func (d *Driver) indexKind(kind cpg.NodeKind, id int64) {
	if d.byKind[kind] == nil {
		d.byKind[kind] = make(map[int64]bool)
	}
	d.byKind[kind][id] = true
}

// identityKinds are the kinds whose nodes are identified by their
// properties: re-inserting an equal node must land on the existing
// one, keeping FILE names and NAMESPACE_BLOCK fullNames unique.
// Body nodes are excluded: two methods may legitimately contain
// property-identical body nodes, and their idempotence is by id (the
// driver rewrites the builder's handle on first insert).
var identityKinds = map[cpg.NodeKind]bool{
	cpg.KindMetaData:       true,
	cpg.KindFile:           true,
	cpg.KindNamespaceBlock: true,
	cpg.KindTypeDecl:       true,
	cpg.KindMember:         true,
	cpg.KindMethod:         true,
}

// equivalentExisting finds a persisted identity-bearing node of the
// same kind whose non-id properties equal node's, used for idempotent
// AddVertex.
func (d *Driver) equivalentExisting(node *cpg.Node) (*cpg.Node, bool) {
	if !identityKinds[node.Kind] {
		return nil, false
	}
	for id := range d.byKind[node.Kind] {
		existing := d.nodes[id]
		if sameProps(existing, node) {
			return existing, true
		}
	}
	return nil, false
}

func sameProps(a, b *cpg.Node) bool {
	return a.Kind == b.Kind && a.Order == b.Order && a.ArgumentIndex == b.ArgumentIndex &&
		a.LineNumber == b.LineNumber && a.ColumnNumber == b.ColumnNumber && a.Code == b.Code &&
		a.Props.Equal(b.Props)
}

// AddVertex persists node, assigning its id if tentative. Idempotent:
// adding an equivalent identity-bearing node twice returns the
// existing id rather than a duplicate.
func (d *Driver) AddVertex(_ context.Context, node *cpg.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addVertexLocked(node)
}

func (d *Driver) addVertexLocked(node *cpg.Node) error {
	if !node.Pending() {
		if _, ok := d.nodes[node.ID]; ok {
			return nil
		}
	} else if existing, ok := d.equivalentExisting(node); ok {
		node.ID = existing.ID
		return nil
	}

	if node.Pending() {
		node.ID = d.nextID
		d.nextID++
	} else if node.ID >= d.nextID {
		d.nextID = node.ID + 1
	}

	cp := *node
	d.nodes[node.ID] = &cp
	d.indexKind(node.Kind, node.ID)
	return nil
}

// Exists reports whether an equivalent node is persisted.
func (d *Driver) Exists(_ context.Context, node *cpg.Node) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !node.Pending() {
		_, ok := d.nodes[node.ID]
		return ok, nil
	}
	_, ok := d.equivalentExisting(node)
	return ok, nil
}

// ExistsEdge reports whether (src, dst, label) is persisted.
func (d *Driver) ExistsEdge(_ context.Context, src, dst *cpg.Node, label cpg.EdgeKind) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.hasEdgeLocked(src.ID, dst.ID, label), nil
}

func (d *Driver) hasEdgeLocked(src, dst int64, label cpg.EdgeKind) bool {
	for _, a := range d.outAdj[src] {
		if a.label == label && a.other == dst {
			return true
		}
	}
	return false
}

// AddEdge persists (src, dst, label), schema-checking first (fail
// closed) and auto-inserting either endpoint that is not yet
// persisted.
func (d *Driver) AddEdge(_ context.Context, src, dst *cpg.Node, label cpg.EdgeKind) error {
	if !schema.IsAllowed(src.Kind, label, dst.Kind) {
		return &cpgerr.SchemaViolation{
			MethodFullName: src.Props.FullName,
			Signature:      src.Props.Signature,
			Reason:         fmt.Sprintf("%s -%s-> %s is not a legal triple", src.Kind, label, dst.Kind),
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.addVertexLocked(src); err != nil {
		return err
	}
	if err := d.addVertexLocked(dst); err != nil {
		return err
	}

	if d.hasEdgeLocked(src.ID, dst.ID, label) {
		return nil
	}
	d.outAdj[src.ID] = append(d.outAdj[src.ID], adjacency{label, dst.ID})
	d.inAdj[dst.ID] = append(d.inAdj[dst.ID], adjacency{label, src.ID})
	return nil
}

// DeleteVertex removes node and every edge touching it. Idempotent.
func (d *Driver) DeleteVertex(_ context.Context, node *cpg.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleteVertexLocked(node.ID)
	return nil
}

func (d *Driver) deleteVertexLocked(id int64) {
	n, ok := d.nodes[id]
	if !ok {
		return
	}
	for _, a := range d.outAdj[id] {
		d.inAdj[a.other] = removeAdj(d.inAdj[a.other], a.label, id)
	}
	for _, a := range d.inAdj[id] {
		d.outAdj[a.other] = removeAdj(d.outAdj[a.other], a.label, id)
	}
	delete(d.outAdj, id)
	delete(d.inAdj, id)
	delete(d.nodes, id)
	delete(d.byKind[n.Kind], id)
}

func removeAdj(list []adjacency, label cpg.EdgeKind, other int64) []adjacency {
	out := list[:0]
	for _, a := range list {
		if a.label == label && a.other == other {
			continue
		}
		out = append(out, a)
	}
	return out
}

// DeleteMethod removes the method's AST/body closure, deleting the
// METHOD node itself last. Every edge incident to a deleted node goes
// with it, so inbound CALL edges targeting the METHOD node are removed;
// the calling CALL nodes outside the closure remain.
func (d *Driver) DeleteMethod(_ context.Context, fullName, signature string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	methodID, ok := d.findMethodLocked(fullName, signature)
	if !ok {
		return nil
	}

	closure := d.astClosureLocked(methodID)

	// Tear down the method's subtree, then the METHOD node. Source CALL
	// nodes of inbound CALL edges live outside this closure and are not
	// deleted.
	for id := range closure {
		if id == methodID {
			continue
		}
		d.deleteVertexLocked(id)
	}
	d.deleteVertexLocked(methodID)
	return nil
}

func (d *Driver) findMethodLocked(fullName, signature string) (int64, bool) {
	for id := range d.byKind[cpg.KindMethod] {
		n := d.nodes[id]
		if n.Props.FullName == fullName && n.Props.Signature == signature {
			return id, true
		}
	}
	return 0, false
}

// astClosureLocked returns every node reachable from root by outbound
// AST edges, including root.
func (d *Driver) astClosureLocked(root int64) map[int64]bool {
	seen := map[int64]bool{root: true}
	queue := []int64{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, a := range d.outAdj[cur] {
			if a.label != cpg.EdgeAST || seen[a.other] {
				continue
			}
			seen[a.other] = true
			queue = append(queue, a.other)
		}
	}
	return seen
}

// bfsLabels is the edge-label set GetMethod traverses outward along.
var bfsLabels = map[cpg.EdgeKind]bool{
	cpg.EdgeAST: true, cpg.EdgeRef: true, cpg.EdgeCFG: true, cpg.EdgeArgument: true,
	cpg.EdgeCapturedBy: true, cpg.EdgeBindsTo: true, cpg.EdgeReceiver: true,
	cpg.EdgeCondition: true, cpg.EdgeBinds: true,
}

// GetMethod returns the method head and, when includeBody is true, its
// transitive AST/CFG/REF/ARGUMENT/BINDS closure.
func (d *Driver) GetMethod(_ context.Context, fullName, signature string, includeBody bool) (*driver.Subgraph, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	methodID, ok := d.findMethodLocked(fullName, signature)
	if !ok {
		return &driver.Subgraph{}, nil
	}
	if !includeBody {
		return d.inducedSubgraphLocked(map[int64]bool{methodID: true}), nil
	}

	seen := map[int64]bool{methodID: true}
	queue := []int64{methodID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, a := range d.outAdj[cur] {
			if !bfsLabels[a.label] || seen[a.other] {
				continue
			}
			seen[a.other] = true
			queue = append(queue, a.other)
		}
	}
	return d.inducedSubgraphLocked(seen), nil
}

// GetProgramStructure returns the subgraph of FILE/NAMESPACE_BLOCK
// nodes connected by AST edges: a BFS from all FILE nodes, restricted
// to NAMESPACE_BLOCK destinations.
func (d *Driver) GetProgramStructure(_ context.Context) (*driver.Subgraph, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := map[int64]bool{}
	var queue []int64
	for id := range d.byKind[cpg.KindFile] {
		seen[id] = true
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, a := range d.outAdj[cur] {
			if a.label != cpg.EdgeAST || seen[a.other] {
				continue
			}
			if d.nodes[a.other].Kind != cpg.KindNamespaceBlock {
				continue
			}
			seen[a.other] = true
			queue = append(queue, a.other)
		}
	}
	return d.inducedSubgraphLocked(seen), nil
}

// GetNeighbours returns node's one-hop in- and out-neighbourhood,
// including node itself.
func (d *Driver) GetNeighbours(_ context.Context, node *cpg.Node) (*driver.Subgraph, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := map[int64]bool{node.ID: true}
	for _, a := range d.outAdj[node.ID] {
		seen[a.other] = true
	}
	for _, a := range d.inAdj[node.ID] {
		seen[a.other] = true
	}
	return d.inducedSubgraphLocked(seen), nil
}

// GetWholeGraph returns the full store.
func (d *Driver) GetWholeGraph(_ context.Context) (*driver.Subgraph, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	seen := map[int64]bool{}
	for id := range d.nodes {
		seen[id] = true
	}
	return d.inducedSubgraphLocked(seen), nil
}

// GetVertexIDs returns every id in [lo, hi].
func (d *Driver) GetVertexIDs(_ context.Context, lo, hi int64) ([]int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []int64
	for id := range d.nodes {
		if id >= lo && id <= hi {
			out = append(out, id)
		}
	}
	return out, nil
}

// Clear empties the store.
func (d *Driver) Clear(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nodes = make(map[int64]*cpg.Node)
	d.outAdj = make(map[int64][]adjacency)
	d.inAdj = make(map[int64][]adjacency)
	d.byKind = make(map[cpg.NodeKind]map[int64]bool)
	d.nextID = 0
	return nil
}

// Close is a no-op for the in-memory back-end.
func (d *Driver) Close() error { return nil }

// inducedSubgraphLocked builds a transient view containing the selected
// nodes plus every edge whose endpoints are both in the selection.
func (d *Driver) inducedSubgraphLocked(selected map[int64]bool) *driver.Subgraph {
	sg := &driver.Subgraph{}
	for id := range selected {
		if n, ok := d.nodes[id]; ok {
			cp := *n
			sg.Nodes = append(sg.Nodes, &cp)
		}
	}
	seenEdge := map[cpg.Edge]bool{}
	for id := range selected {
		for _, a := range d.outAdj[id] {
			if !selected[a.other] {
				continue
			}
			e := cpg.Edge{Src: id, Dst: a.other, Label: a.label}
			if seenEdge[e] {
				continue
			}
			seenEdge[e] = true
			sg.Edges = append(sg.Edges, &e)
		}
	}
	return sg
}

var _ driver.Driver = (*Driver)(nil)
