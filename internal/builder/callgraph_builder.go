package builder

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/cpgkit/jvmcpg/internal/cpg"
	"github.com/cpgkit/jvmcpg/internal/cpgerr"
	"github.com/cpgkit/jvmcpg/internal/driver"
	"github.com/cpgkit/jvmcpg/internal/unitgraph"
)

// methodRegistryKey is the build-order-independent key the call-graph
// builder uses to find a method's head node regardless of which method
// BUILDING_CPG visited it from.
func methodRegistryKey(fullName, signature string) string {
	return fullName + "#" + signature
}

func callSiteKey(fullName, signature, unitID string) string {
	return methodRegistryKey(fullName, signature) + "#call:" + unitID
}

// CallRegistry is the run-scoped lookup BUILDING_CPG populates and
// LINKING_CALLS consumes. Unlike ids.AssocMap, which a fresh Builder
// resets per method so two methods' unit ids never collide,
// CallRegistry is deliberately shared across every method in one
// extraction run: a call's target can only be resolved once every
// method in the run has registered its head.
type CallRegistry struct {
	mu      sync.Mutex
	methods map[string]*cpg.Node
	calls   map[string]*cpg.Node
}

// NewCallRegistry returns an empty registry for one extraction run.
func NewCallRegistry() *CallRegistry {
	return &CallRegistry{
		methods: make(map[string]*cpg.Node),
		calls:   make(map[string]*cpg.Node),
	}
}

func (r *CallRegistry) registerMethod(fullName, signature string, node *cpg.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[methodRegistryKey(fullName, signature)] = node
}

func (r *CallRegistry) registerCall(fullName, signature, unitID string, node *cpg.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[callSiteKey(fullName, signature, unitID)] = node
}

// discard drops a method's head and call-site entries after a failed
// build, so the rolled-back nodes are unreachable from LINKING_CALLS.
func (r *CallRegistry) discard(fullName, signature string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := methodRegistryKey(fullName, signature)
	delete(r.methods, key)
	prefix := key + "#call:"
	for k := range r.calls {
		if strings.HasPrefix(k, prefix) {
			delete(r.calls, k)
		}
	}
}

func (r *CallRegistry) method(fullName, signature string) (*cpg.Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.methods[methodRegistryKey(fullName, signature)]
	return n, ok
}

// MethodFor looks up a method head already registered for
// (fullName, signature), exported so internal/extractor's LINKING_CALLS
// step can check for a rebuilt head before minting a phantom one when
// replaying a saved inbound CALL edge.
func (r *CallRegistry) MethodFor(fullName, signature string) (*cpg.Node, bool) {
	return r.method(fullName, signature)
}

func (r *CallRegistry) call(fullName, signature, unitID string) (*cpg.Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.calls[callSiteKey(fullName, signature, unitID)]
	return n, ok
}

// CallGraphBuilder links the call graph: once every method in an
// extraction run has been lowered, it asks the Oracle for each method's
// outgoing call edges and persists a CALL edge from the call site's CALL
// node to the resolved target's METHOD head, minting a phantom head for
// any target whose body was never built.
type CallGraphBuilder struct {
	Driver   driver.Driver
	Registry *CallRegistry
	Oracle   unitgraph.Oracle
	Logger   *zap.Logger
}

// NewCallGraphBuilder constructs a CallGraphBuilder. oracle may be nil,
// in which case LinkMethod is a no-op (call_graph_alg "NONE").
func NewCallGraphBuilder(d driver.Driver, registry *CallRegistry, oracle unitgraph.Oracle, logger *zap.Logger) *CallGraphBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CallGraphBuilder{Driver: d, Registry: registry, Oracle: oracle, Logger: logger}
}

// LinkMethod resolves every call edge the Oracle reports for one method
// (fullName, signature) and persists the corresponding CALL edges. A
// site whose CALL node was never registered (schema violation aborted
// that part of the method, or the unit lowered to something other than
// an invocation) is skipped; a target with no known body becomes a
// phantom METHOD head.
func (c *CallGraphBuilder) LinkMethod(ctx context.Context, fullName, signature string) error {
	if c.Oracle == nil {
		return nil
	}
	edges, err := c.Oracle.OutEdges(fullName, signature)
	if err != nil {
		return err
	}
	for _, e := range edges {
		callNode, ok := c.Registry.call(e.Site.MethodFullName, e.Site.Signature, e.Site.UnitID)
		if !ok {
			continue
		}
		targetNode, err := c.ResolveTarget(ctx, e.Target)
		if err != nil {
			return err
		}
		if err := c.Driver.AddEdge(ctx, callNode, targetNode, cpg.EdgeCall); err != nil {
			return err
		}
	}
	return nil
}

// ResolveTarget returns the target method's head node, registering and
// persisting a phantom head when no body was ever built for it.
// Exported so the extractor's LINKING_CALLS step can reuse the same
// phantom-minting path when replaying saved inbound edges.
func (c *CallGraphBuilder) ResolveTarget(ctx context.Context, target unitgraph.Target) (*cpg.Node, error) {
	if node, ok := c.Registry.method(target.MethodFullName, target.Signature); ok {
		return node, nil
	}

	c.Logger.Warn("phantom call target",
		zap.Error(&cpgerr.PhantomTarget{MethodFullName: target.MethodFullName, Signature: target.Signature}))

	sig := target.Signature
	if sig == "" {
		sig = cpg.DefaultSignature
	}
	phantom := cpg.NewBuilder(cpg.KindMethod).
		Name(simpleName(target.MethodFullName)).
		FullName(target.MethodFullName).
		Signature(sig).
		Build()
	phantom.Props.Extra = map[string]string{"phantom": "true"}
	if err := c.Driver.AddVertex(ctx, phantom); err != nil {
		return nil, err
	}
	c.Registry.registerMethod(target.MethodFullName, sig, phantom)
	return phantom, nil
}
