package javalift

import (
	"fmt"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/cpgkit/jvmcpg/internal/unitgraph"
)

// methodLowering carries the per-method lowering state: statement-level
// units in control-flow order, declared locals, and the unit-id
// counter. Nested expression units get ids from the same counter but
// stay out of the Units list, which the AST builder walks
// statement-by-statement.
type methodLowering struct {
	lifter  *Lifter
	content []byte
	graph   *unitgraph.Graph
	units   []*unitgraph.Unit
	locals  []unitgraph.Local
	seq     int
}

// hole is a pending successor link, filled once the following
// statement's head unit is known. A hole left unfilled at the end of
// the method means control falls off the end, which the CFG builder
// resolves to METHOD_RETURN.
type hole func(*unitgraph.Unit)

func (m *methodLowering) newUnit(kind unitgraph.OpKind, node *tree_sitter.Node) *unitgraph.Unit {
	u := m.newExprUnit(kind, node)
	m.units = append(m.units, u)
	return u
}

func (m *methodLowering) newExprUnit(kind unitgraph.OpKind, node *tree_sitter.Node) *unitgraph.Unit {
	u := &unitgraph.Unit{ID: fmt.Sprintf("u%d", m.seq), Kind: kind, Loc: loc(node)}
	m.seq++
	return u
}

func loc(node *tree_sitter.Node) unitgraph.Location {
	if node == nil {
		return unitgraph.Location{}
	}
	p := node.StartPosition()
	return unitgraph.Location{Line: int(p.Row) + 1, Column: int(p.Column)}
}

// lowerStatements lowers a statement list, chaining each statement's
// dangling successors to the next statement's head. Returns the list's
// head unit (nil for an empty list) and the dangling successors of its
// tail.
func (m *methodLowering) lowerStatements(stmts []*tree_sitter.Node) (*unitgraph.Unit, []hole) {
	var head *unitgraph.Unit
	var holes []hole
	for _, s := range stmts {
		h, hh := m.lowerStatement(s)
		if h == nil {
			continue
		}
		if head == nil {
			head = h
		}
		for _, fill := range holes {
			fill(h)
		}
		holes = hh
	}
	return head, holes
}

func (m *methodLowering) lowerStatement(stmt *tree_sitter.Node) (*unitgraph.Unit, []hole) {
	switch stmt.Kind() {
	case "local_variable_declaration":
		return m.lowerLocalDeclaration(stmt)

	case "expression_statement":
		expr := stmt.NamedChild(0)
		if expr == nil {
			return nil, nil
		}
		return m.lowerExprStatement(expr)

	case "if_statement":
		return m.lowerIf(stmt)

	case "return_statement":
		u := m.newUnit(unitgraph.OpReturn, stmt)
		if v := stmt.NamedChild(0); v != nil {
			u.Operands = []unitgraph.Operand{m.lowerExpr(v)}
		}
		return u, nil

	case "block":
		return m.lowerStatements(namedChildren(stmt))

	default:
		u := m.newUnit(unitgraph.OpUnknown, stmt)
		return u, []hole{func(n *unitgraph.Unit) { u.Next = n }}
	}
}

// lowerLocalDeclaration records each declared local and emits an
// assignment unit per initializer, chained in declaration order.
func (m *methodLowering) lowerLocalDeclaration(stmt *tree_sitter.Node) (*unitgraph.Unit, []hole) {
	typeName := m.text(childByField(stmt, "type"))
	var head *unitgraph.Unit
	var holes []hole
	for i := uint(0); i < stmt.NamedChildCount(); i++ {
		d := stmt.NamedChild(i)
		if d.Kind() != "variable_declarator" {
			continue
		}
		name := m.text(childByField(d, "name"))
		m.locals = append(m.locals, unitgraph.Local{Name: name, TypeFullName: qualifyType(typeName)})
		value := childByField(d, "value")
		if value == nil {
			continue
		}
		u := m.newUnit(unitgraph.OpAssignment, d)
		u.Target = name
		u.Operands = []unitgraph.Operand{m.lowerExpr(value)}
		if head == nil {
			head = u
		}
		for _, fill := range holes {
			fill(u)
		}
		holes = []hole{func(n *unitgraph.Unit) { u.Next = n }}
	}
	return head, holes
}

func (m *methodLowering) lowerExprStatement(expr *tree_sitter.Node) (*unitgraph.Unit, []hole) {
	switch expr.Kind() {
	case "assignment_expression":
		u := m.newUnit(unitgraph.OpAssignment, expr)
		u.Target = m.text(childByField(expr, "left"))
		if right := childByField(expr, "right"); right != nil {
			u.Operands = []unitgraph.Operand{m.lowerExpr(right)}
		}
		return u, []hole{func(n *unitgraph.Unit) { u.Next = n }}

	case "method_invocation":
		u := m.lowerInvocation(expr, true)
		return u, []hole{func(n *unitgraph.Unit) { u.Next = n }}

	default:
		u := m.newUnit(unitgraph.OpUnknown, expr)
		return u, []hole{func(n *unitgraph.Unit) { u.Next = n }}
	}
}

// lowerIf lowers an if/else to a branch unit whose True/False
// successors are the lowered arms; an absent arm leaves the successor
// as a hole pointing at whatever follows the statement.
func (m *methodLowering) lowerIf(stmt *tree_sitter.Node) (*unitgraph.Unit, []hole) {
	b := m.newUnit(unitgraph.OpBranch, stmt)
	if cond := unwrapParens(childByField(stmt, "condition")); cond != nil {
		b.Operands = []unitgraph.Operand{m.lowerExpr(cond)}
	}

	var holes []hole
	thenHead, thenHoles := m.lowerStatements(armStatements(childByField(stmt, "consequence")))
	if thenHead != nil {
		b.True = thenHead
		holes = append(holes, thenHoles...)
	} else {
		holes = append(holes, func(n *unitgraph.Unit) { b.True = n })
	}
	elseHead, elseHoles := m.lowerStatements(armStatements(childByField(stmt, "alternative")))
	if elseHead != nil {
		b.False = elseHead
		holes = append(holes, elseHoles...)
	} else {
		holes = append(holes, func(n *unitgraph.Unit) { b.False = n })
	}
	return b, holes
}

// lowerInvocation lowers a method call. stmtLevel distinguishes a call
// statement (a unit of its own in control-flow order) from a call
// nested inside an expression.
func (m *methodLowering) lowerInvocation(node *tree_sitter.Node, stmtLevel bool) *unitgraph.Unit {
	var u *unitgraph.Unit
	if stmtLevel {
		u = m.newUnit(unitgraph.OpInvoke, node)
	} else {
		u = m.newExprUnit(unitgraph.OpInvoke, node)
	}

	name := m.text(childByField(node, "name"))
	object := childByField(node, "object")
	sym := m.graph.AstParentFullName + "." + name
	var operands []unitgraph.Operand
	if object != nil {
		objText := m.text(object)
		sym = objText + "." + name
		if object.Kind() == "identifier" && m.isLocal(objText) {
			operands = append(operands, unitgraph.Operand{LocalName: objText, IsReceiver: true, Loc: loc(object)})
		}
	}
	operands = append(operands, unitgraph.Operand{MethodSym: sym, Loc: loc(node)})
	if args := childByField(node, "arguments"); args != nil {
		for i := uint(0); i < args.NamedChildCount(); i++ {
			operands = append(operands, m.lowerExpr(args.NamedChild(i)))
		}
	}
	u.Operands = operands
	m.lifter.recordCall(m.graph, u.ID, sym)
	return u
}

func (m *methodLowering) lowerExpr(node *tree_sitter.Node) unitgraph.Operand {
	switch node.Kind() {
	case "parenthesized_expression":
		if inner := node.NamedChild(0); inner != nil {
			return m.lowerExpr(inner)
		}
		return unitgraph.Operand{Loc: loc(node)}

	case "binary_expression":
		u := m.newExprUnit(unitgraph.OpBinary, node)
		u.Operator = operatorName(m.text(childByField(node, "operator")))
		if left := childByField(node, "left"); left != nil {
			u.Operands = append(u.Operands, m.lowerExpr(left))
		}
		if right := childByField(node, "right"); right != nil {
			u.Operands = append(u.Operands, m.lowerExpr(right))
		}
		return unitgraph.Operand{Unit: u, Loc: loc(node)}

	case "identifier":
		return unitgraph.Operand{LocalName: m.text(node), Loc: loc(node)}

	case "field_access":
		return unitgraph.Operand{
			FieldRecv: m.text(childByField(node, "object")),
			FieldName: m.text(childByField(node, "field")),
			Loc:       loc(node),
		}

	case "method_invocation":
		return unitgraph.Operand{Unit: m.lowerInvocation(node, false), Loc: loc(node)}

	case "decimal_integer_literal", "hex_integer_literal", "octal_integer_literal",
		"binary_integer_literal", "decimal_floating_point_literal",
		"string_literal", "character_literal", "true", "false", "null_literal":
		return unitgraph.Operand{Literal: m.text(node), Loc: loc(node)}

	default:
		return unitgraph.Operand{Unit: m.newExprUnit(unitgraph.OpUnknown, node), Loc: loc(node)}
	}
}

func (m *methodLowering) isLocal(name string) bool {
	for _, l := range m.locals {
		if l.Name == name {
			return true
		}
	}
	for _, p := range m.graph.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

func (m *methodLowering) text(node *tree_sitter.Node) string {
	return m.lifter.text(node, m.content)
}

func unwrapParens(node *tree_sitter.Node) *tree_sitter.Node {
	for node != nil && node.Kind() == "parenthesized_expression" {
		node = node.NamedChild(0)
	}
	return node
}

// armStatements normalizes an if arm: a block yields its statements, a
// bare statement yields itself, an absent arm yields nothing.
func armStatements(node *tree_sitter.Node) []*tree_sitter.Node {
	if node == nil {
		return nil
	}
	if node.Kind() == "block" {
		return namedChildren(node)
	}
	return []*tree_sitter.Node{node}
}

// operatorName maps a Java operator token to the call name the graph
// carries; an operator outside the table keeps its source spelling.
var operatorNames = map[string]string{
	"+": "ADD", "-": "SUB", "*": "MUL", "/": "DIV", "%": "MOD",
	">": "GT", "<": "LT", ">=": "GE", "<=": "LE", "==": "EQ", "!=": "NEQ",
	"&&": "AND", "||": "OR", "&": "BITAND", "|": "BITOR", "^": "XOR",
	"<<": "SHL", ">>": "SHR", ">>>": "USHR",
}

func operatorName(op string) string {
	if name, ok := operatorNames[op]; ok {
		return name
	}
	return op
}
