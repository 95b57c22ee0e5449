// Package cpg defines the node and edge model of the Code Property Graph:
// the closed set of node/edge kinds and the node/edge value types builders
// and drivers exchange. The legality of (src kind, edge kind, dst kind)
// triples lives in internal/schema, which depends on this package.
package cpg

// NodeKind is the closed enumeration of node labels the schema recognizes.
type NodeKind string

const (
	KindMetaData          NodeKind = "META_DATA"
	KindFile              NodeKind = "FILE"
	KindNamespaceBlock    NodeKind = "NAMESPACE_BLOCK"
	KindTypeDecl          NodeKind = "TYPE_DECL"
	KindMember            NodeKind = "MEMBER"
	KindMethod            NodeKind = "METHOD"
	KindMethodParameterIn NodeKind = "METHOD_PARAMETER_IN"
	KindMethodReturn      NodeKind = "METHOD_RETURN"
	KindModifier          NodeKind = "MODIFIER"
	KindLocal             NodeKind = "LOCAL"
	KindBlock             NodeKind = "BLOCK"
	KindCall              NodeKind = "CALL"
	KindLiteral           NodeKind = "LITERAL"
	KindIdentifier        NodeKind = "IDENTIFIER"
	KindFieldIdentifier   NodeKind = "FIELD_IDENTIFIER"
	KindMethodRef         NodeKind = "METHOD_REF"
	KindTypeRef           NodeKind = "TYPE_REF"
	KindReturn            NodeKind = "RETURN"
	KindJumpTarget        NodeKind = "JUMP_TARGET"
	KindControlStructure  NodeKind = "CONTROL_STRUCTURE"
	KindUnknown           NodeKind = "UNKNOWN"
	KindArrayInitializer  NodeKind = "ARRAY_INITIALIZER"
	KindTypeArgument      NodeKind = "TYPE_ARGUMENT"
	KindTypeParameter     NodeKind = "TYPE_PARAMETER"
	KindBinding           NodeKind = "BINDING"
)

// AllNodeKinds enumerates every recognized node kind, in schema order.
// internal/schema names each kind explicitly in its allowed-triple
// table and keeps no per-kind property-descriptor table; its tests
// check that every kind listed here has a legal AST parent.
var AllNodeKinds = []NodeKind{
	KindMetaData, KindFile, KindNamespaceBlock, KindTypeDecl, KindMember,
	KindMethod, KindMethodParameterIn, KindMethodReturn, KindModifier,
	KindLocal, KindBlock, KindCall, KindLiteral, KindIdentifier,
	KindFieldIdentifier, KindMethodRef, KindTypeRef, KindReturn,
	KindJumpTarget, KindControlStructure, KindUnknown, KindArrayInitializer,
	KindTypeArgument, KindTypeParameter, KindBinding,
}

// EdgeKind is the closed enumeration of edge labels the schema recognizes.
type EdgeKind string

const (
	EdgeAST        EdgeKind = "AST"
	EdgeCFG        EdgeKind = "CFG"
	EdgeArgument   EdgeKind = "ARGUMENT"
	EdgeReceiver   EdgeKind = "RECEIVER"
	EdgeRef        EdgeKind = "REF"
	EdgeCondition  EdgeKind = "CONDITION"
	EdgeCall       EdgeKind = "CALL"
	EdgeBinds      EdgeKind = "BINDS"
	EdgeBindsTo    EdgeKind = "BINDS_TO"
	EdgeSourceFile EdgeKind = "SOURCE_FILE"
	EdgeCapturedBy EdgeKind = "CAPTURED_BY"
)

// AllEdgeKinds enumerates every recognized edge kind.
var AllEdgeKinds = []EdgeKind{
	EdgeAST, EdgeCFG, EdgeArgument, EdgeReceiver, EdgeRef, EdgeCondition,
	EdgeCall, EdgeBinds, EdgeBindsTo, EdgeSourceFile, EdgeCapturedBy,
}

// DispatchType values for CALL.dispatchType.
const (
	StaticDispatch  = "STATIC_DISPATCH"
	DynamicDispatch = "DYNAMIC_DISPATCH"
)

// EvaluationStrategy values for METHOD_PARAMETER_IN.evaluationStrategy and
// METHOD_RETURN.evaluationStrategy.
const (
	ByReference = "BY_REFERENCE"
	ByValue     = "BY_VALUE"
	ByRefShared = "BY_SHARED_REFERENCE"
)

// JumpTarget names, the only two legal values for JUMP_TARGET.name in
// branch lowering: a CONTROL_STRUCTURE gets exactly these two
// JUMP_TARGET children.
const (
	JumpTrue  = "TRUE"
	JumpFalse = "FALSE"
)
