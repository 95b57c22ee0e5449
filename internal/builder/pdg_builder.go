package builder

import (
	"context"

	"github.com/cpgkit/jvmcpg/internal/cpg"
	"github.com/cpgkit/jvmcpg/internal/unitgraph"
)

// buildPDG emits the semantic edges the AST alone doesn't carry: a
// REF edge from every IDENTIFIER/FIELD_IDENTIFIER to the
// LOCAL/METHOD_PARAMETER_IN/MEMBER it denotes, an ARGUMENT edge from
// every CALL to each of its positional children, and a RECEIVER edge
// for instance-dispatch calls. Runs after buildCFG so it can drain
// b.pendingRefs and b.pendingArgs, both populated by buildBody.
func (b *Builder) buildPDG(ctx context.Context, g *unitgraph.Graph) error {
	key := methodKey(g)

	for _, ref := range b.pendingRefs {
		var target *cpg.Node
		switch ref.kind {
		case refLocalOrParam:
			if n, ok := b.Assoc.First(key + "#local:" + ref.name); ok {
				target = n
			} else if n, ok := b.Assoc.First(key + "#param:" + ref.name); ok {
				target = n
			}
		case refField:
			// MEMBER nodes are registered by the extractor (via
			// RegisterMember) under the declaring class's fullName. The
			// receiver text is tried first for an explicitly qualified
			// access; "this.x" and other same-class accesses fall back
			// to the enclosing class. A receiver of a foreign,
			// unanalyzed class leaves the FIELD_IDENTIFIER without a
			// REF edge, the same outcome as an unresolved call target.
			if n, ok := b.Assoc.First("member:" + ref.fieldRecv + "." + ref.name); ok {
				target = n
			} else if n, ok := b.Assoc.First("member:" + g.AstParentFullName + "." + ref.name); ok {
				target = n
			}
		}
		if target == nil {
			continue
		}
		if err := b.addEdge(ctx, ref.node, target, cpg.EdgeRef); err != nil {
			return err
		}
	}

	for _, pa := range b.pendingArgs {
		if pa.receiver != nil {
			if err := b.addEdge(ctx, pa.call, pa.receiver, cpg.EdgeReceiver); err != nil {
				return err
			}
		}
		for _, arg := range pa.args {
			if arg == nil {
				continue
			}
			if err := b.addEdge(ctx, pa.call, arg, cpg.EdgeArgument); err != nil {
				return err
			}
		}
	}

	return nil
}
