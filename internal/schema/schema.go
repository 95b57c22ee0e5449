// Package schema is the single source of truth for legal (src kind, edge
// kind, dst kind) triples. Both builders (producers) and drivers
// (consumers) consult it: builders to avoid constructing illegal
// graphs, drivers as the defensive second line that actually enforces
// schema closure.
package schema

import "github.com/cpgkit/jvmcpg/internal/cpg"

// Triple is one legal (src kind, edge kind, dst kind) combination.
type Triple struct {
	Src   cpg.NodeKind
	Edge  cpg.EdgeKind
	Dst   cpg.NodeKind
}

// allowed is the closed table of legal triples, built once at package
// init. The table is static, so it stays enumerable at compile time.
var allowed = map[Triple]bool{}

func allow(src cpg.NodeKind, edge cpg.EdgeKind, dst cpg.NodeKind) {
	allowed[Triple{src, edge, dst}] = true
}

func allowAST(src cpg.NodeKind, dsts ...cpg.NodeKind) {
	for _, d := range dsts {
		allow(src, cpg.EdgeAST, d)
	}
}

func init() {
	// Program structure.
	allowAST(cpg.KindFile, cpg.KindNamespaceBlock, cpg.KindTypeDecl, cpg.KindMetaData)
	allowAST(cpg.KindNamespaceBlock, cpg.KindNamespaceBlock, cpg.KindTypeDecl)
	allowAST(cpg.KindTypeDecl, cpg.KindMethod, cpg.KindMember, cpg.KindModifier, cpg.KindBinding)
	allow(cpg.KindTypeDecl, cpg.EdgeBinds, cpg.KindBinding)

	// Method head.
	allowAST(cpg.KindMethod, cpg.KindBlock, cpg.KindMethodReturn, cpg.KindModifier,
		cpg.KindMethodParameterIn)
	allow(cpg.KindMethod, cpg.EdgeSourceFile, cpg.KindFile)

	// Method body: everything that can appear under a BLOCK or as a
	// nested AST child of a body node.
	bodyKinds := []cpg.NodeKind{
		cpg.KindCall, cpg.KindLiteral, cpg.KindIdentifier, cpg.KindFieldIdentifier,
		cpg.KindMethodRef, cpg.KindTypeRef, cpg.KindReturn, cpg.KindJumpTarget,
		cpg.KindControlStructure, cpg.KindUnknown, cpg.KindArrayInitializer,
		cpg.KindTypeArgument, cpg.KindTypeParameter, cpg.KindLocal, cpg.KindBlock,
	}
	allowAST(cpg.KindBlock, bodyKinds...)
	for _, parent := range []cpg.NodeKind{
		cpg.KindCall, cpg.KindControlStructure, cpg.KindReturn,
		cpg.KindArrayInitializer, cpg.KindFieldIdentifier,
	} {
		allowAST(parent, bodyKinds...)
	}

	// Call-site structure.
	for _, arg := range []cpg.NodeKind{
		cpg.KindCall, cpg.KindLiteral, cpg.KindIdentifier, cpg.KindFieldIdentifier,
		cpg.KindTypeRef, cpg.KindMethodRef, cpg.KindUnknown, cpg.KindArrayInitializer,
	} {
		allow(cpg.KindCall, cpg.EdgeArgument, arg)
	}
	allow(cpg.KindCall, cpg.EdgeReceiver, cpg.KindIdentifier)
	allow(cpg.KindCall, cpg.EdgeReceiver, cpg.KindFieldIdentifier)
	allow(cpg.KindCall, cpg.EdgeReceiver, cpg.KindCall)
	allow(cpg.KindCall, cpg.EdgeReceiver, cpg.KindTypeRef)
	allow(cpg.KindCall, cpg.EdgeCall, cpg.KindMethod)

	// Def/use.
	allow(cpg.KindIdentifier, cpg.EdgeRef, cpg.KindLocal)
	allow(cpg.KindIdentifier, cpg.EdgeRef, cpg.KindMethodParameterIn)
	allow(cpg.KindFieldIdentifier, cpg.EdgeRef, cpg.KindMember)

	// Control structure.
	for _, cond := range []cpg.NodeKind{
		cpg.KindCall, cpg.KindIdentifier, cpg.KindLiteral, cpg.KindFieldIdentifier, cpg.KindUnknown,
	} {
		allow(cpg.KindControlStructure, cpg.EdgeCondition, cond)
	}
	allow(cpg.KindControlStructure, cpg.EdgeCFG, cpg.KindJumpTarget)

	// CFG: legal between any two body-capable node kinds, plus the
	// method-entry BLOCK and METHOD_RETURN endpoints.
	cfgCapable := append(append([]cpg.NodeKind{}, bodyKinds...), cpg.KindMethodReturn)
	for _, src := range cfgCapable {
		for _, dst := range cfgCapable {
			allow(src, cpg.EdgeCFG, dst)
		}
	}

	// Bindings.
	allow(cpg.KindTypeArgument, cpg.EdgeBindsTo, cpg.KindTypeParameter)
}

// IsAllowed is the pure predicate every builder and driver consults
// before persisting an edge.
func IsAllowed(src cpg.NodeKind, edge cpg.EdgeKind, dst cpg.NodeKind) bool {
	return allowed[Triple{src, edge, dst}]
}
