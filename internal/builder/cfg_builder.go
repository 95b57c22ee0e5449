package builder

import (
	"context"

	"github.com/cpgkit/jvmcpg/internal/cpg"
	"github.com/cpgkit/jvmcpg/internal/unitgraph"
)

// buildCFG threads CFG edges along the unit graph's Next/True/False
// successor relations: BLOCK to the first evaluated node of the first
// statement, each node in a statement's evaluation chain to the next
// (so nested expression nodes carry control flow, not just statement
// heads), a branch's node to both its JUMP_TARGET children, and every
// node with no successor to METHOD_RETURN.
func (b *Builder) buildCFG(ctx context.Context, g *unitgraph.Graph, block, methodReturn *cpg.Node) error {
	if g.Entry == nil {
		return b.addEdge(ctx, block, methodReturn, cpg.EdgeCFG)
	}

	entry := b.firstReachable(g.Entry, methodReturn)
	if err := b.addEdge(ctx, block, entry, cpg.EdgeCFG); err != nil {
		return err
	}

	visited := map[string]bool{}
	stack := []*unitgraph.Unit{g.Entry}
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if u == nil || visited[u.ID] {
			continue
		}
		visited[u.ID] = true

		chain := b.chains[u.ID]
		for i := 0; i+1 < len(chain); i++ {
			if err := b.addEdge(ctx, chain[i], chain[i+1], cpg.EdgeCFG); err != nil {
				return err
			}
		}
		var node *cpg.Node
		if len(chain) > 0 {
			node = chain[len(chain)-1]
		}

		if u.Kind == unitgraph.OpBranch {
			trueJT, _ := b.Assoc.First(u.ID + "#true_jt")
			falseJT, _ := b.Assoc.First(u.ID + "#false_jt")
			if node != nil && trueJT != nil {
				if err := b.addEdge(ctx, node, trueJT, cpg.EdgeCFG); err != nil {
					return err
				}
			}
			if node != nil && falseJT != nil {
				if err := b.addEdge(ctx, node, falseJT, cpg.EdgeCFG); err != nil {
					return err
				}
			}
			if trueJT != nil {
				if err := b.addEdge(ctx, trueJT, b.firstReachable(u.True, methodReturn), cpg.EdgeCFG); err != nil {
					return err
				}
			}
			if falseJT != nil {
				if err := b.addEdge(ctx, falseJT, b.firstReachable(u.False, methodReturn), cpg.EdgeCFG); err != nil {
					return err
				}
			}
			stack = append(stack, u.True, u.False)
			continue
		}

		if node != nil {
			if err := b.addEdge(ctx, node, b.firstReachable(u.Next, methodReturn), cpg.EdgeCFG); err != nil {
				return err
			}
		}
		stack = append(stack, u.Next)
	}
	return nil
}

// firstReachable returns the CPG node that control flow reaches when
// entering u: the first node of u's evaluation chain, or (for a unit
// that emits no nodes, e.g. a goto) the first reachable node of its
// successor, or methodReturn once the chain runs off the end of the
// method.
func (b *Builder) firstReachable(u *unitgraph.Unit, methodReturn *cpg.Node) *cpg.Node {
	seen := map[string]bool{}
	for u != nil && !seen[u.ID] {
		if chain := b.chains[u.ID]; len(chain) > 0 {
			return chain[0]
		}
		seen[u.ID] = true
		u = u.Next
	}
	return methodReturn
}
