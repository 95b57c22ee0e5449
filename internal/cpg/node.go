package cpg

import "maps"

// Node is the shared header every node kind carries, plus a property
// bag for the kind-specific fields the schema defines. ID is -1 until
// a driver assigns it on first AddVertex.
type Node struct {
	ID            int64
	Kind          NodeKind
	Order         int
	ArgumentIndex int
	LineNumber    int
	ColumnNumber  int
	Code          string
	Props         Properties
}

// Properties holds every kind-specific property the schema recognizes.
// Not every field applies to every kind; internal/schema's property
// descriptors say which. NewNode presets Signature, EvaluationStrategy,
// DispatchType, Language and Version to their defaults; the other
// string fields start empty.
type Properties struct {
	Name               string
	FullName           string
	Signature          string
	Filename           string
	Hash               string
	AstParentFullName  string
	AstParentType      string
	TypeFullName       string
	MethodFullName     string
	DispatchType       string
	EvaluationStrategy string
	ModifierType       string
	Language           string
	Version            string
	// Extra carries anything not promoted to a typed field above, so a
	// driver back-end can round-trip arbitrary metadata it attaches
	// itself without the schema needing to know about it.
	Extra map[string]string
}

// Equal reports whether p and q carry the same values. The Extra bag is
// compared by content; Properties itself is not a comparable type
// because of that map field.
func (p Properties) Equal(q Properties) bool {
	return p.Name == q.Name &&
		p.FullName == q.FullName &&
		p.Signature == q.Signature &&
		p.Filename == q.Filename &&
		p.Hash == q.Hash &&
		p.AstParentFullName == q.AstParentFullName &&
		p.AstParentType == q.AstParentType &&
		p.TypeFullName == q.TypeFullName &&
		p.MethodFullName == q.MethodFullName &&
		p.DispatchType == q.DispatchType &&
		p.EvaluationStrategy == q.EvaluationStrategy &&
		p.ModifierType == q.ModifierType &&
		p.Language == q.Language &&
		p.Version == q.Version &&
		maps.Equal(p.Extra, q.Extra)
}

// Schema-mandated defaults for unset properties.
const (
	DefaultString             = "null"
	DefaultInt                = -1
	DefaultSignature          = "()"
	DefaultEvaluationStrategy = ByReference
	DefaultDispatchType       = StaticDispatch
	DefaultLanguage           = "JAVA"
	DefaultVersion            = "1.8"
)

// NewNode constructs a tentative node (ID -1) of the given kind with
// schema defaults applied, ready for a Builder to customize and a driver
// to persist.
func NewNode(kind NodeKind) *Node {
	return &Node{
		ID:            -1,
		Kind:          kind,
		Order:         DefaultInt,
		ArgumentIndex: DefaultInt,
		LineNumber:    DefaultInt,
		ColumnNumber:  DefaultInt,
		Props: Properties{
			Signature:          DefaultSignature,
			EvaluationStrategy: DefaultEvaluationStrategy,
			DispatchType:       DefaultDispatchType,
			Language:           DefaultLanguage,
			Version:            DefaultVersion,
		},
	}
}

// Pending reports whether the node has not yet been assigned a real id
// by a driver.
func (n *Node) Pending() bool { return n.ID < 0 }

// Edge is a directed, labelled edge between two persisted node ids.
type Edge struct {
	Src   int64
	Dst   int64
	Label EdgeKind
}
