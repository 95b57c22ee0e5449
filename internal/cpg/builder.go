package cpg

// Builder wraps a tentative Node with fluent setters for every schema
// property. It is a pointer wrapper so a driver's AddVertex can
// rewrite the underlying Node's ID in place once persisted, and every
// holder of the Builder observes the finalized id.
type Builder struct {
	Node *Node
}

// NewBuilder starts building a node of the given kind.
func NewBuilder(kind NodeKind) *Builder {
	return &Builder{Node: NewNode(kind)}
}

func (b *Builder) Name(v string) *Builder               { b.Node.Props.Name = v; return b }
func (b *Builder) FullName(v string) *Builder           { b.Node.Props.FullName = v; return b }
func (b *Builder) Signature(v string) *Builder          { b.Node.Props.Signature = v; return b }
func (b *Builder) Filename(v string) *Builder           { b.Node.Props.Filename = v; return b }
func (b *Builder) Hash(v string) *Builder               { b.Node.Props.Hash = v; return b }
func (b *Builder) AstParentFullName(v string) *Builder  { b.Node.Props.AstParentFullName = v; return b }
func (b *Builder) AstParentType(v string) *Builder      { b.Node.Props.AstParentType = v; return b }
func (b *Builder) TypeFullName(v string) *Builder       { b.Node.Props.TypeFullName = v; return b }
func (b *Builder) MethodFullName(v string) *Builder     { b.Node.Props.MethodFullName = v; return b }
func (b *Builder) DispatchType(v string) *Builder       { b.Node.Props.DispatchType = v; return b }
func (b *Builder) EvaluationStrategy(v string) *Builder { b.Node.Props.EvaluationStrategy = v; return b }
func (b *Builder) ModifierType(v string) *Builder       { b.Node.Props.ModifierType = v; return b }
func (b *Builder) Language(v string) *Builder           { b.Node.Props.Language = v; return b }
func (b *Builder) Version(v string) *Builder            { b.Node.Props.Version = v; return b }
func (b *Builder) Code(v string) *Builder               { b.Node.Code = v; return b }
func (b *Builder) Order(v int) *Builder                 { b.Node.Order = v; return b }
func (b *Builder) ArgumentIndex(v int) *Builder         { b.Node.ArgumentIndex = v; return b }
func (b *Builder) Line(v int) *Builder                  { b.Node.LineNumber = v; return b }
func (b *Builder) Column(v int) *Builder                { b.Node.ColumnNumber = v; return b }

func (b *Builder) Extra(key, value string) *Builder {
	if b.Node.Props.Extra == nil {
		b.Node.Props.Extra = make(map[string]string)
	}
	b.Node.Props.Extra[key] = value
	return b
}

// ID returns the node's current id: -1 until a driver finalizes it.
func (b *Builder) ID() int64 { return b.Node.ID }

// Build returns the underlying Node, still tentative until inserted.
func (b *Builder) Build() *Node { return b.Node }
