// Package builder implements the AST, CFG, PDG, and call-graph
// builders that lower one method's UnitGraph into persisted CPG nodes
// and edges. The lowering never parses source itself; it consumes the
// already-three-address unitgraph.Graph view a lifter provides.
package builder

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cpgkit/jvmcpg/internal/cpg"
	"github.com/cpgkit/jvmcpg/internal/driver"
	"github.com/cpgkit/jvmcpg/internal/ids"
	"github.com/cpgkit/jvmcpg/internal/render"
	"github.com/cpgkit/jvmcpg/internal/unitgraph"
)

// Builder runs the per-method passes in a fixed order, sharing one
// association map and order-counter set across them: method head, then
// AST body, then CFG, then PDG.
type Builder struct {
	Driver driver.Driver
	Assoc  *ids.AssocMap
	Order  *ids.OrderCounters
	Logger *zap.Logger

	// Registry is shared across every Builder in one extraction run
	// (see CallRegistry's doc comment), unlike Assoc and Order, which
	// are fresh per method. Nil disables call-graph registration, which
	// is harmless since a nil Oracle makes call-graph linking a no-op
	// anyway.
	Registry *CallRegistry

	// Src, when non-nil, replaces the lowering's synthetic code
	// rendering with the actual source expression at each node's
	// position. Set by the extractor when the input was a .java source
	// rather than bare bytecode.
	Src *render.Source

	// pendingRefs accumulates IDENTIFIER/FIELD_IDENTIFIER nodes emitted
	// by buildBody for the method currently being built; buildPDG
	// drains it. Reset at the start of every BuildMethod call, so two
	// methods never see each other's references.
	pendingRefs []pendingRef

	// pendingArgs accumulates, for every CALL node built, the children
	// that are real operands (not the callee symbol) in positional
	// order, plus which one (if any) is the receiver; buildPDG drains
	// it into ARGUMENT/RECEIVER edges. Reset with pendingRefs.
	pendingArgs []pendingArgs

	// chains records, per statement-level unit id, every body node the
	// statement's lowering emitted in evaluation order (operands before
	// the node consuming them, the statement's own node last). buildCFG
	// threads control flow through each chain, so nested expression
	// nodes participate in the CFG rather than only the statement
	// heads. chain is the accumulator for the statement currently being
	// lowered. Both reset per BuildMethod.
	chains map[string][]*cpg.Node
	chain  []*cpg.Node

	// staged is the undo log for the method currently being built: every
	// node addVertex newly persisted, in emission order. On a failed
	// build, rollback deletes each staged node (taking its incident
	// edges with it), so no partial method ever outlives its
	// BuildMethod call. Reset per BuildMethod.
	staged []*cpg.Node
}

// pendingArgs is one CALL node's operand list, captured at AST-build
// time so the PDG builder doesn't need to re-derive which already-built
// child node corresponds to which IR operand.
type pendingArgs struct {
	call     *cpg.Node
	args     []*cpg.Node
	receiver *cpg.Node
}

// New constructs a Builder for one method's build, registering method
// heads and call sites into registry so a later CallGraphBuilder sharing
// the same registry can resolve them. Callers construct a fresh Builder
// per method (Assoc and Order must never leak across methods, since
// unitgraph.Unit ids are only stable within one method's graph) but pass
// the same registry to every Builder in an extraction run.
func New(d driver.Driver, registry *CallRegistry, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		Driver:   d,
		Assoc:    ids.NewAssocMap(),
		Order:    ids.NewOrderCounters(),
		Registry: registry,
		Logger:   logger,
	}
}

// BuildMethod runs the full per-method pipeline: method head, AST body,
// CFG, PDG. A *cpgerr.SchemaViolation from any step aborts just this
// method and rolls back every node it staged, leaving the store exactly
// as it was before the call; the caller recovers and continues with the
// next method.
func (b *Builder) BuildMethod(ctx context.Context, g *unitgraph.Graph) (*cpg.Node, error) {
	b.pendingRefs = nil
	b.pendingArgs = nil
	b.chains = make(map[string][]*cpg.Node)
	b.chain = nil
	b.staged = nil
	method, err := b.buildMethod(ctx, g)
	if err != nil {
		b.rollback(ctx, g)
		return nil, err
	}
	b.staged = nil
	return method, nil
}

// buildMethod runs the head, body, CFG, and PDG passes in order.
func (b *Builder) buildMethod(ctx context.Context, g *unitgraph.Graph) (*cpg.Node, error) {
	method, block, methodReturn, err := b.buildMethodHead(ctx, g)
	if err != nil {
		return nil, err
	}
	if g.Entry != nil {
		if err := b.buildBody(ctx, g, block); err != nil {
			return nil, err
		}
	}
	if err := b.buildCFG(ctx, g, block, methodReturn); err != nil {
		return nil, err
	}
	if err := b.buildPDG(ctx, g); err != nil {
		return nil, err
	}
	return method, nil
}

// rollback undoes a failed method build: every staged node is deleted
// in reverse emission order (DeleteVertex removes incident edges too,
// and every edge the builders emit has at least one staged endpoint),
// and the method's registry entries are discarded so LINKING_CALLS
// cannot resurrect a deleted call site through AddEdge's
// auto-insertion.
func (b *Builder) rollback(ctx context.Context, g *unitgraph.Graph) {
	for i := len(b.staged) - 1; i >= 0; i-- {
		if err := b.Driver.DeleteVertex(ctx, b.staged[i]); err != nil {
			b.Logger.Warn("rollback of staged node failed",
				zap.String("method", g.MethodFullName),
				zap.Int64("id", b.staged[i].ID),
				zap.Error(err))
		}
	}
	if b.Registry != nil {
		b.Registry.discard(g.MethodFullName, signatureOf(g))
	}
	b.staged = nil
}

func (b *Builder) addVertex(ctx context.Context, node *cpg.Node) error {
	pending := node.Pending()
	if err := b.Driver.AddVertex(ctx, node); err != nil {
		return fmt.Errorf("add vertex %s: %w", node.Kind, err)
	}
	if pending {
		b.staged = append(b.staged, node)
	}
	return nil
}

func (b *Builder) addEdge(ctx context.Context, src, dst *cpg.Node, label cpg.EdgeKind) error {
	if err := b.Driver.AddEdge(ctx, src, dst, label); err != nil {
		return fmt.Errorf("add edge %s -%s-> %s: %w", src.Kind, label, dst.Kind, err)
	}
	return nil
}

// addASTChild persists child, assigns its dense per-parent order, and
// links it to parent via AST. The argumentIndex defaults to the same
// order unless the caller overrides it.
func (b *Builder) addASTChild(ctx context.Context, parent, child *cpg.Node) error {
	if err := b.addVertex(ctx, parent); err != nil {
		return err
	}
	child.Order = b.Order.Next(parent.ID)
	if child.ArgumentIndex == cpg.DefaultInt {
		child.ArgumentIndex = child.Order
	}
	if err := b.addVertex(ctx, child); err != nil {
		return err
	}
	return b.addEdge(ctx, parent, child, cpg.EdgeAST)
}

// attach finalizes a body node emitted for unit u and links it under
// parent: source position, argumentIndex override, source-text code
// rendering, then the AST edge. Must run before the node is persisted,
// since drivers snapshot properties at insert. Rendering applies only
// to statement-level nodes (nested operands keep the lowering's
// rendering, since a source position alone cannot distinguish an inner
// expression from the statement enclosing it), and never to the
// synthetic CONTROL_STRUCTURE/JUMP_TARGET nodes whose code values are
// fixed by the branch lowering.
func (b *Builder) attach(ctx context.Context, parent, node *cpg.Node, loc unitgraph.Location, argIndex int) error {
	if loc.Line > 0 {
		node.LineNumber = loc.Line
		node.ColumnNumber = loc.Column
	}
	if argIndex != cpg.DefaultInt {
		node.ArgumentIndex = argIndex
	}
	if b.Src != nil && argIndex == cpg.DefaultInt && node.LineNumber > 0 &&
		node.Kind != cpg.KindControlStructure && node.Kind != cpg.KindJumpTarget {
		if code := b.Src.ExprAt(node.LineNumber, node.ColumnNumber); code != "" {
			node.Code = code
		}
	}
	return b.addASTChild(ctx, parent, node)
}

// RegisterMember makes a class's MEMBER node visible to this method's
// PDG pass, so FIELD_IDENTIFIER nodes can resolve their REF edges.
// Called by the extractor before BuildMethod, once the enclosing
// TYPE_DECL and its members are persisted.
func (b *Builder) RegisterMember(classFullName, name string, node *cpg.Node) {
	b.Assoc.Append("member:"+classFullName+"."+name, node)
}
