// Package javalift lifts Java source files into the unitgraph view the
// builders consume, so the extractor can be pointed at a source tree
// without an external bytecode toolchain. Node traversal is a
// tree-sitter visitor (kind switch, child-by-field lookups, byte-range
// text extraction); the output is the three-address unit form rather
// than a syntax tree.
//
// The Lifter doubles as the call-graph oracle for the methods it has
// lifted: call sites are recorded during lifting and resolved against
// the set of lifted method declarations when OutEdges is asked, the
// class-hierarchy-free analogue of the CHA oracle the configuration
// can select.
package javalift

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	"go.uber.org/zap"

	"github.com/cpgkit/jvmcpg/internal/unitgraph"
)

// Lifter parses Java sources and lowers each method body into units.
// Safe for concurrent Lift calls; a parser is created per call.
type Lifter struct {
	logger *zap.Logger

	mu      sync.Mutex
	methods map[string]string        // method fullName -> signature
	sites   map[string][]pendingEdge // caller fullName#signature -> call sites
}

type pendingEdge struct {
	site      unitgraph.CallSite
	targetSym string
}

// New constructs an empty Lifter.
func New(logger *zap.Logger) *Lifter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifter{
		logger:  logger,
		methods: make(map[string]string),
		sites:   make(map[string][]pendingEdge),
	}
}

// Lift parses content as a Java compilation unit and returns one Graph
// per method declared in a top-level class (a bodiless declaration
// yields a Graph with no Entry), recording every call site for later
// OutEdges resolution.
func (l *Lifter) Lift(_ context.Context, filePath string, content []byte) ([]*unitgraph.Graph, error) {
	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(tree_sitter.NewLanguage(java.Language())); err != nil {
		return nil, fmt.Errorf("set java grammar: %w", err)
	}
	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, fmt.Errorf("parse %s: no tree produced", filePath)
	}
	defer tree.Close()

	root := tree.RootNode()
	pkg := l.packageName(root, content)

	var graphs []*unitgraph.Graph
	for i := uint(0); i < root.NamedChildCount(); i++ {
		decl := root.NamedChild(i)
		if decl.Kind() != "class_declaration" {
			continue
		}
		className := l.text(childByField(decl, "name"), content)
		classFullName := className
		if pkg != "" {
			classFullName = pkg + "." + className
		}
		body := childByField(decl, "body")
		if body == nil {
			continue
		}
		fields := l.classFields(body, content)
		for j := uint(0); j < body.NamedChildCount(); j++ {
			member := body.NamedChild(j)
			if member.Kind() != "method_declaration" {
				continue
			}
			g := l.liftMethod(member, content, filePath, pkg, classFullName)
			if g != nil {
				g.Fields = fields
				graphs = append(graphs, g)
			}
		}
	}
	l.logger.Debug("lifted compilation unit",
		zap.String("file", filePath), zap.String("package", pkg), zap.Int("methods", len(graphs)))
	return graphs, nil
}

// OutEdges resolves the call sites recorded while lifting
// (fullName, signature) against every method declaration seen so far.
// A target that was never lifted comes back with HasBody false, which
// the Call-Graph Builder turns into a phantom head.
func (l *Lifter) OutEdges(fullName, signature string) ([]unitgraph.Edge, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pending := l.sites[fullName+"#"+signature]
	edges := make([]unitgraph.Edge, 0, len(pending))
	for _, p := range pending {
		target := unitgraph.Target{MethodFullName: p.targetSym}
		if sig, ok := l.methods[p.targetSym]; ok {
			target.Signature = sig
			target.HasBody = true
		}
		edges = append(edges, unitgraph.Edge{Site: p.site, Target: target})
	}
	return edges, nil
}

var _ unitgraph.Oracle = (*Lifter)(nil)

// liftMethod lowers one method_declaration into a Graph. A bodiless
// declaration (abstract, native) yields a Graph with no Entry, which
// the AST builder turns into a bare method head.
func (l *Lifter) liftMethod(decl *tree_sitter.Node, content []byte, filePath, pkg, classFullName string) *unitgraph.Graph {
	name := l.text(childByField(decl, "name"), content)
	retType := qualifyType(l.text(childByField(decl, "type"), content))

	g := &unitgraph.Graph{
		MethodName:        name,
		MethodFullName:    classFullName + "." + name,
		ReturnType:        retType,
		Filename:          filePath,
		Package:           pkg,
		AstParentFullName: classFullName,
		AstParentType:     "TYPE_DECL",
	}
	start := decl.StartPosition()
	g.Line, g.Column = int(start.Row)+1, int(start.Column)

	if mods := childByKind(decl, "modifiers"); mods != nil {
		for i := uint(0); i < mods.ChildCount(); i++ {
			g.Modifiers = append(g.Modifiers, unitgraph.Modifier(l.text(mods.Child(i), content)))
		}
	}

	if params := childByField(decl, "parameters"); params != nil {
		for i := uint(0); i < params.NamedChildCount(); i++ {
			p := params.NamedChild(i)
			if p.Kind() != "formal_parameter" {
				continue
			}
			typeName := l.text(childByField(p, "type"), content)
			g.Params = append(g.Params, unitgraph.Param{
				Name:         l.text(childByField(p, "name"), content),
				TypeFullName: qualifyType(typeName),
				IsPrimitive:  isPrimitive(typeName),
			})
		}
	}

	body := childByField(decl, "body")
	if body == nil {
		l.registerMethod(g)
		return g
	}

	lm := &methodLowering{lifter: l, content: content, graph: g}
	head, _ := lm.lowerStatements(namedChildren(body))
	g.Entry = head
	g.Units = lm.units
	g.Locals = lm.locals
	l.registerMethod(g)
	return g
}

func (l *Lifter) registerMethod(g *unitgraph.Graph) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.methods[g.MethodFullName] = g.Signature()
}

func (l *Lifter) recordCall(g *unitgraph.Graph, unitID, targetSym string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := g.MethodFullName + "#" + g.Signature()
	l.sites[key] = append(l.sites[key], pendingEdge{
		site: unitgraph.CallSite{
			UnitID:         unitID,
			MethodFullName: g.MethodFullName,
			Signature:      g.Signature(),
		},
		targetSym: targetSym,
	})
}

// classFields collects the member variables a class body declares, one
// Field per declarator.
func (l *Lifter) classFields(body *tree_sitter.Node, content []byte) []unitgraph.Field {
	var fields []unitgraph.Field
	for i := uint(0); i < body.NamedChildCount(); i++ {
		member := body.NamedChild(i)
		if member.Kind() != "field_declaration" {
			continue
		}
		typeName := qualifyType(l.text(childByField(member, "type"), content))
		for j := uint(0); j < member.NamedChildCount(); j++ {
			d := member.NamedChild(j)
			if d.Kind() != "variable_declarator" {
				continue
			}
			fields = append(fields, unitgraph.Field{
				Name:         l.text(childByField(d, "name"), content),
				TypeFullName: typeName,
			})
		}
	}
	return fields
}

// packageName returns the dotted package of the compilation unit, ""
// for the default package.
func (l *Lifter) packageName(root *tree_sitter.Node, content []byte) string {
	pkgDecl := childByKind(root, "package_declaration")
	if pkgDecl == nil {
		return ""
	}
	for i := uint(0); i < pkgDecl.NamedChildCount(); i++ {
		c := pkgDecl.NamedChild(i)
		if c.Kind() == "scoped_identifier" || c.Kind() == "identifier" {
			return l.text(c, content)
		}
	}
	return ""
}

func (l *Lifter) text(node *tree_sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	return string(content[node.StartByte():node.EndByte()])
}

func childByField(node *tree_sitter.Node, field string) *tree_sitter.Node {
	if node == nil {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if node.FieldNameForChild(uint32(i)) == field {
			return node.Child(i)
		}
	}
	return nil
}

func childByKind(node *tree_sitter.Node, kind string) *tree_sitter.Node {
	if node == nil {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if c := node.Child(i); c.Kind() == kind {
			return c
		}
	}
	return nil
}

func namedChildren(node *tree_sitter.Node) []*tree_sitter.Node {
	if node == nil {
		return nil
	}
	out := make([]*tree_sitter.Node, 0, node.NamedChildCount())
	for i := uint(0); i < node.NamedChildCount(); i++ {
		out = append(out, node.NamedChild(i))
	}
	return out
}

var primitives = map[string]bool{
	"boolean": true, "byte": true, "char": true, "short": true,
	"int": true, "long": true, "float": true, "double": true,
}

func isPrimitive(typeName string) bool {
	return primitives[typeName]
}

// javaLang qualifies the java.lang simple names that appear unqualified
// in source, so signatures match their bytecode form (e.g.
// "void(java.lang.String[])" for main).
var javaLang = map[string]string{
	"String": "java.lang.String", "Object": "java.lang.Object",
	"Integer": "java.lang.Integer", "Long": "java.lang.Long",
	"Double": "java.lang.Double", "Float": "java.lang.Float",
	"Boolean": "java.lang.Boolean", "Character": "java.lang.Character",
	"Byte": "java.lang.Byte", "Short": "java.lang.Short",
	"StringBuilder": "java.lang.StringBuilder", "Exception": "java.lang.Exception",
	"RuntimeException": "java.lang.RuntimeException", "Throwable": "java.lang.Throwable",
}

func qualifyType(typeName string) string {
	base := typeName
	suffix := ""
	for strings.HasSuffix(base, "[]") {
		base = strings.TrimSuffix(base, "[]")
		suffix += "[]"
	}
	if qualified, ok := javaLang[base]; ok {
		return qualified + suffix
	}
	return typeName
}
