package builder

import (
	"context"
	"fmt"

	"github.com/cpgkit/jvmcpg/internal/cpg"
	"github.com/cpgkit/jvmcpg/internal/unitgraph"
)

// pendingRef records an IDENTIFIER/FIELD_IDENTIFIER node emitted during
// AST lowering that still needs its REF edge (emitted later by the PDG
// builder, once every LOCAL/MEMBER/METHOD_PARAMETER_IN in the method
// is known). Scoped to one BuildMethod call, never shared across
// methods, so two methods declaring a local with the same name never
// collide.
type pendingRef struct {
	node      *cpg.Node
	kind      refKind
	name      string
	fieldRecv string
}

type refKind int

const (
	refLocalOrParam refKind = iota
	refField
)

// buildMethodHead emits the METHOD node and its direct children: access
// modifiers, formal parameters, the entry BLOCK, and METHOD_RETURN.
// Locals are attached as children of the entry BLOCK, not of METHOD
// itself.
func (b *Builder) buildMethodHead(ctx context.Context, g *unitgraph.Graph) (method, block, methodReturn *cpg.Node, err error) {
	sig := signatureOf(g)

	method = cpg.NewBuilder(cpg.KindMethod).
		Name(g.MethodName).
		FullName(g.MethodFullName).
		Signature(sig).
		Filename(g.Filename).
		Line(g.Line).Column(g.Column).
		AstParentFullName(g.AstParentFullName).
		AstParentType(g.AstParentType).
		Build()
	if err := b.addVertex(ctx, method); err != nil {
		return nil, nil, nil, err
	}
	// Registered under a build-order-independent key so the call-graph
	// builder, which runs after every method in the run has been
	// built, can resolve call targets regardless of the order
	// BUILDING_CPG visited methods in.
	if b.Registry != nil {
		b.Registry.registerMethod(g.MethodFullName, sig, method)
	}

	for _, m := range g.Modifiers {
		modNode := cpg.NewBuilder(cpg.KindModifier).ModifierType(string(m)).Build()
		if err := b.addASTChild(ctx, method, modNode); err != nil {
			return nil, nil, nil, err
		}
	}

	key := methodKey(g)
	for i, p := range g.Params {
		strategy := cpg.ByReference
		if p.IsPrimitive {
			strategy = cpg.ByValue
		}
		paramNode := cpg.NewBuilder(cpg.KindMethodParameterIn).
			Name(p.Name).Code(p.Name).TypeFullName(p.TypeFullName).
			EvaluationStrategy(strategy).
			Build()
		paramNode.ArgumentIndex = i + 1
		if err := b.addASTChild(ctx, method, paramNode); err != nil {
			return nil, nil, nil, err
		}
		b.Assoc.Append(key+"#param:"+p.Name, paramNode)
	}

	block = cpg.NewBuilder(cpg.KindBlock).TypeFullName("void").Code("<empty>").Build()
	if err := b.addASTChild(ctx, method, block); err != nil {
		return nil, nil, nil, err
	}

	methodReturn = cpg.NewBuilder(cpg.KindMethodReturn).
		Code(orDefault(g.ReturnType)).TypeFullName(orDefault(g.ReturnType)).
		EvaluationStrategy(cpg.ByReference).
		Build()
	if err := b.addASTChild(ctx, method, methodReturn); err != nil {
		return nil, nil, nil, err
	}

	for _, l := range g.Locals {
		localNode := cpg.NewBuilder(cpg.KindLocal).Name(l.Name).Code(l.Name).TypeFullName(l.TypeFullName).Build()
		if err := b.addASTChild(ctx, block, localNode); err != nil {
			return nil, nil, nil, err
		}
		b.Assoc.Append(key+"#local:"+l.Name, localNode)
	}

	return method, block, methodReturn, nil
}

// buildBody lowers every statement-level unit in g.Units as a direct
// AST child of block, recording each statement's evaluation chain for
// the CFG pass. IDENTIFIER/FIELD_IDENTIFIER nodes emitted along the
// way are queued in b.pendingRefs so the PDG builder can resolve their
// REF edges afterward.
func (b *Builder) buildBody(ctx context.Context, g *unitgraph.Graph, block *cpg.Node) error {
	for _, u := range g.Units {
		b.chain = nil
		if _, err := b.lowerUnit(ctx, g, u, block, cpg.DefaultInt); err != nil {
			return err
		}
		b.chains[u.ID] = b.chain
	}
	b.chain = nil
	return nil
}

// lowerUnit lowers one IR unit into its node kind, attaches it as an
// AST child of parent, and recurses into its operands. argIndex, when
// not the default sentinel, overrides the emitted node's argumentIndex
// (used when a unit appears as a call argument rather than a top-level
// statement).
func (b *Builder) lowerUnit(ctx context.Context, g *unitgraph.Graph, u *unitgraph.Unit, parent *cpg.Node, argIndex int) (*cpg.Node, error) {
	var node *cpg.Node
	viaOperand := false

	switch u.Kind {
	case unitgraph.OpAssignment:
		node = cpg.NewBuilder(cpg.KindCall).
			Name("<operator>.assignment").MethodFullName("<operator>.assignment").
			DispatchType(cpg.StaticDispatch).
			Code(fmt.Sprintf("%s = ...", u.Target)).
			Build()
		if err := b.attach(ctx, parent, node, u.Loc, argIndex); err != nil {
			return nil, err
		}
		lhs := cpg.NewBuilder(cpg.KindIdentifier).Name(u.Target).Code(u.Target).Build()
		if err := b.attach(ctx, node, lhs, u.Loc, 1); err != nil {
			return nil, err
		}
		b.chain = append(b.chain, lhs)
		b.pendingRefs = append(b.pendingRefs, pendingRef{node: lhs, kind: refLocalOrParam, name: u.Target})
		pa := pendingArgs{call: node, args: []*cpg.Node{lhs}}
		if len(u.Operands) > 0 {
			rhs, err := b.lowerOperand(ctx, g, u.Operands[0], node, 2)
			if err != nil {
				return nil, err
			}
			pa.args = append(pa.args, rhs)
		}
		b.pendingArgs = append(b.pendingArgs, pa)

	case unitgraph.OpBinary:
		node = cpg.NewBuilder(cpg.KindCall).
			Name(u.Operator).MethodFullName(u.Operator).DispatchType(cpg.StaticDispatch).
			Code(u.Operator).
			Build()
		if err := b.attach(ctx, parent, node, u.Loc, argIndex); err != nil {
			return nil, err
		}
		pa := pendingArgs{call: node}
		for i, op := range u.Operands {
			argNode, err := b.lowerOperand(ctx, g, op, node, i+1)
			if err != nil {
				return nil, err
			}
			pa.args = append(pa.args, argNode)
		}
		b.pendingArgs = append(b.pendingArgs, pa)

	case unitgraph.OpConstant, unitgraph.OpLocalRead, unitgraph.OpFieldRead, unitgraph.OpNew, unitgraph.OpMethodRef:
		// Rare as a bare top-level statement (e.g. a field access kept
		// only for its side effect), but the lifter is not forbidden
		// from emitting one; lower it exactly as a nested operand would
		// be.
		if len(u.Operands) > 0 {
			n, err := b.lowerOperand(ctx, g, u.Operands[0], parent, cpg.DefaultInt)
			if err != nil {
				return nil, err
			}
			node = n
			viaOperand = true
		} else {
			node = cpg.NewBuilder(cpg.KindUnknown).Code(string(u.Kind)).Build()
			if err := b.attach(ctx, parent, node, u.Loc, argIndex); err != nil {
				return nil, err
			}
		}

	case unitgraph.OpInvoke:
		target := ""
		dispatch := cpg.StaticDispatch
		for _, op := range u.Operands {
			if op.IsReceiver {
				dispatch = cpg.DynamicDispatch
			}
			if op.MethodSym != "" && op.Unit == nil {
				target = op.MethodSym
			}
		}
		node = cpg.NewBuilder(cpg.KindCall).
			Name(simpleName(target)).MethodFullName(target).DispatchType(dispatch).
			Code(target).
			Build()
		if err := b.attach(ctx, parent, node, u.Loc, argIndex); err != nil {
			return nil, err
		}
		if b.Registry != nil {
			b.Registry.registerCall(g.MethodFullName, signatureOf(g), u.ID, node)
		}
		argIdx := 1
		pa := pendingArgs{call: node}
		for _, op := range u.Operands {
			if op.MethodSym != "" && op.Unit == nil {
				continue
			}
			idx := argIdx
			if op.IsReceiver {
				idx = 0
			}
			argNode, err := b.lowerOperand(ctx, g, op, node, idx)
			if err != nil {
				return nil, err
			}
			if op.IsReceiver {
				pa.receiver = argNode
			} else {
				pa.args = append(pa.args, argNode)
				argIdx++
			}
		}
		b.pendingArgs = append(b.pendingArgs, pa)

	case unitgraph.OpBranch:
		node = cpg.NewBuilder(cpg.KindControlStructure).Code("IF").Build()
		if err := b.attach(ctx, parent, node, u.Loc, argIndex); err != nil {
			return nil, err
		}
		var condNode *cpg.Node
		if len(u.Operands) > 0 {
			cn, err := b.lowerOperand(ctx, g, u.Operands[0], node, 1)
			if err != nil {
				return nil, err
			}
			condNode = cn
		}
		if condNode != nil {
			if err := b.addEdge(ctx, node, condNode, cpg.EdgeCondition); err != nil {
				return nil, err
			}
		}
		// Jump targets are synthetic, but they carry the branch's
		// position so that the targets of two structurally identical
		// branches stay distinct under idempotent insertion.
		trueJT := cpg.NewBuilder(cpg.KindJumpTarget).Name(cpg.JumpTrue).Code(cpg.JumpTrue).Build()
		if err := b.attach(ctx, node, trueJT, u.Loc, cpg.DefaultInt); err != nil {
			return nil, err
		}
		falseJT := cpg.NewBuilder(cpg.KindJumpTarget).Name(cpg.JumpFalse).Code(cpg.JumpFalse).Build()
		if err := b.attach(ctx, node, falseJT, u.Loc, cpg.DefaultInt); err != nil {
			return nil, err
		}
		b.Assoc.Append(u.ID+"#true_jt", trueJT)
		b.Assoc.Append(u.ID+"#false_jt", falseJT)

	case unitgraph.OpReturn:
		node = cpg.NewBuilder(cpg.KindReturn).Code("return").Build()
		if err := b.attach(ctx, parent, node, u.Loc, argIndex); err != nil {
			return nil, err
		}
		if len(u.Operands) > 0 {
			if _, err := b.lowerOperand(ctx, g, u.Operands[0], node, 1); err != nil {
				return nil, err
			}
		}

	case unitgraph.OpGoto:
		// Pure control-flow: no CPG node. The CFG builder resolves
		// "the first node for this unit" by following Next through any
		// run of goto units with no associated node.

	default:
		node = cpg.NewBuilder(cpg.KindUnknown).Code(string(u.Kind)).Build()
		if err := b.attach(ctx, parent, node, u.Loc, argIndex); err != nil {
			return nil, err
		}
	}

	if node != nil {
		// Evaluation chain: operands were appended as they were lowered
		// above; the unit's own node evaluates last. A node produced by
		// lowerOperand is already on the chain.
		if !viaOperand {
			b.chain = append(b.chain, node)
		}
		b.Assoc.Append(u.ID, node)
	}
	return node, nil
}

// lowerOperand lowers a single call/binary/branch operand: either a
// nested Unit (compound expression), a local read, a field read, a
// literal constant, or a bare method symbol.
func (b *Builder) lowerOperand(ctx context.Context, g *unitgraph.Graph, op unitgraph.Operand, parent *cpg.Node, argIndex int) (*cpg.Node, error) {
	if op.Unit != nil {
		return b.lowerUnit(ctx, g, op.Unit, parent, argIndex)
	}
	switch {
	case op.FieldName != "":
		node := cpg.NewBuilder(cpg.KindFieldIdentifier).Name(op.FieldName).Code(op.FieldRecv + "." + op.FieldName).Build()
		if err := b.attach(ctx, parent, node, op.Loc, argIndex); err != nil {
			return nil, err
		}
		b.chain = append(b.chain, node)
		b.pendingRefs = append(b.pendingRefs, pendingRef{node: node, kind: refField, name: op.FieldName, fieldRecv: op.FieldRecv})
		return node, nil
	case op.LocalName != "":
		node := cpg.NewBuilder(cpg.KindIdentifier).Name(op.LocalName).Code(op.LocalName).Build()
		if err := b.attach(ctx, parent, node, op.Loc, argIndex); err != nil {
			return nil, err
		}
		b.chain = append(b.chain, node)
		b.pendingRefs = append(b.pendingRefs, pendingRef{node: node, kind: refLocalOrParam, name: op.LocalName})
		return node, nil
	case op.Literal != "":
		node := cpg.NewBuilder(cpg.KindLiteral).Code(op.Literal).Build()
		if err := b.attach(ctx, parent, node, op.Loc, argIndex); err != nil {
			return nil, err
		}
		b.chain = append(b.chain, node)
		return node, nil
	case op.MethodSym != "":
		node := cpg.NewBuilder(cpg.KindMethodRef).MethodFullName(op.MethodSym).Code(op.MethodSym).Build()
		if err := b.attach(ctx, parent, node, op.Loc, argIndex); err != nil {
			return nil, err
		}
		b.chain = append(b.chain, node)
		return node, nil
	default:
		node := cpg.NewBuilder(cpg.KindUnknown).Build()
		if err := b.attach(ctx, parent, node, op.Loc, argIndex); err != nil {
			return nil, err
		}
		b.chain = append(b.chain, node)
		return node, nil
	}
}

func methodKey(g *unitgraph.Graph) string { return g.MethodFullName }

func signatureOf(g *unitgraph.Graph) string { return g.Signature() }

func orDefault(s string) string {
	if s == "" {
		return cpg.DefaultString
	}
	return s
}

func simpleName(methodFullName string) string {
	for i := len(methodFullName) - 1; i >= 0; i-- {
		if methodFullName[i] == '.' {
			return methodFullName[i+1:]
		}
	}
	return methodFullName
}
