package extractor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cpgkit/jvmcpg/internal/config"
	"github.com/cpgkit/jvmcpg/internal/cpg"
	"github.com/cpgkit/jvmcpg/internal/driver"
	"github.com/cpgkit/jvmcpg/internal/driver/memory"
	"github.com/cpgkit/jvmcpg/internal/javalift"
	"github.com/cpgkit/jvmcpg/internal/unitgraph"
	"github.com/cpgkit/jvmcpg/internal/versionstore"
)

const conditional1 = `public class Conditional1 {
    public static void main(String[] args) {
        int a = 5;
        int b = 3;
        if (a > b) {
            a = a + b;
        } else {
            b = a - b;
        }
        a = a - b;
    }
}
`

const conditional4 = `public class Conditional4 {
    public static void main(String[] args) {
        int a = 5;
        int b = 3;
        int c = 0;
        if (a > b) {
            a = a + b;
        } else {
            b = a - b;
        }
        if (a == b) {
            c = a * b;
        } else {
            c = a - b;
        }
    }
}
`

const conditional5 = `public class Conditional5 {
    public static void main(String[] args) {
        int a = 5;
        int b = 3;
        if (a > b) {
            a = a - b;
        }
        if (a == b) {
            a = a * b;
        }
        if (a < b) {
            a = a / b;
        }
    }
}
`

const conditional6 = `public class Conditional6 {
    public static void main(String[] args) {
        int a = 5;
        int b = 3;
        int c = 4;
        if (a > b && (a == c || a < c)) {
            a = a * b;
        }
    }
}
`

// newPipeline writes files into a fresh repository directory and wires
// a pipeline over the in-memory reference driver with the Java source
// lifter doubling as the call-graph oracle.
func newPipeline(t *testing.T, files map[string]string) (*Pipeline, *memory.Driver, config.Repository) {
	t.Helper()
	dir := t.TempDir()
	writeFiles(t, dir, files)

	d := memory.New(nil)
	lifter := javalift.New(nil)
	p := New(d, versionstore.NewDriverBacked(d), lifter, nil, lifter, nil)
	return p, d, config.Repository{Name: "test", Path: dir}
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func wholeGraph(t *testing.T, d *memory.Driver) *driver.Subgraph {
	t.Helper()
	sub, err := d.GetWholeGraph(context.Background())
	if err != nil {
		t.Fatalf("GetWholeGraph: %v", err)
	}
	return sub
}

func countKind(sub *driver.Subgraph, kind cpg.NodeKind) int {
	n := 0
	for _, node := range sub.Nodes {
		if node.Kind == kind {
			n++
		}
	}
	return n
}

func countCallsNamed(sub *driver.Subgraph, name string) int {
	n := 0
	for _, node := range sub.Nodes {
		if node.Kind == cpg.KindCall && node.Props.Name == name {
			n++
		}
	}
	return n
}

func countControlStructures(sub *driver.Subgraph) int {
	n := 0
	for _, node := range sub.Nodes {
		if node.Kind == cpg.KindControlStructure && node.Code == "IF" {
			n++
		}
	}
	return n
}

func TestRun_SingleConditional(t *testing.T) {
	p, d, repo := newPipeline(t, map[string]string{"Conditional1.java": conditional1})
	res, err := p.Run(context.Background(), repo)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.MethodsBuilt != 1 {
		t.Fatalf("MethodsBuilt = %d, want 1", res.MethodsBuilt)
	}

	sub := wholeGraph(t, d)
	locals := map[string]bool{}
	for _, n := range sub.Nodes {
		if n.Kind == cpg.KindLocal {
			locals[n.Props.Name] = true
		}
	}
	if !locals["a"] || !locals["b"] {
		t.Errorf("LOCAL nodes = %v, want a and b", locals)
	}
	if got := countCallsNamed(sub, "ADD"); got != 1 {
		t.Errorf("ADD calls = %d, want 1", got)
	}
	if got := countCallsNamed(sub, "SUB"); got != 2 {
		t.Errorf("SUB calls = %d, want 2", got)
	}
	if got := countCallsNamed(sub, "GT"); got != 1 {
		t.Errorf("GT calls = %d, want 1", got)
	}
	if got := countControlStructures(sub); got != 1 {
		t.Errorf("CONTROL_STRUCTURE count = %d, want 1", got)
	}
	if got := countKind(sub, cpg.KindJumpTarget); got != 2 {
		t.Errorf("JUMP_TARGET count = %d, want 2", got)
	}

	// The IF's CFG successors are its TRUE and FALSE jump targets.
	byID := map[int64]*cpg.Node{}
	for _, n := range sub.Nodes {
		byID[n.ID] = n
	}
	jumpNames := map[string]bool{}
	cfgIn, cfgOut := map[int64]int{}, map[int64]int{}
	for _, e := range sub.Edges {
		if e.Label != cpg.EdgeCFG {
			continue
		}
		cfgOut[e.Src]++
		cfgIn[e.Dst]++
		if byID[e.Src].Kind == cpg.KindControlStructure {
			jumpNames[byID[e.Dst].Props.Name] = true
		}
	}
	if !jumpNames[cpg.JumpTrue] || !jumpNames[cpg.JumpFalse] {
		t.Errorf("IF CFG successors = %v, want TRUE and FALSE", jumpNames)
	}

	// The operator calls are nested expression nodes; control flow must
	// still pass through every one of them.
	for _, n := range sub.Nodes {
		if n.Kind != cpg.KindCall {
			continue
		}
		switch n.Props.Name {
		case "ADD", "SUB", "GT":
			if cfgIn[n.ID] == 0 || cfgOut[n.ID] == 0 {
				t.Errorf("%s call (id %d) has CFG in/out = %d/%d, want both > 0",
					n.Props.Name, n.ID, cfgIn[n.ID], cfgOut[n.ID])
			}
		}
	}
}

func TestRun_TwoSequentialConditionals(t *testing.T) {
	p, d, repo := newPipeline(t, map[string]string{"Conditional4.java": conditional4})
	if _, err := p.Run(context.Background(), repo); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sub := wholeGraph(t, d)
	if got := countControlStructures(sub); got != 2 {
		t.Errorf("CONTROL_STRUCTURE count = %d, want 2", got)
	}
	for name, want := range map[string]int{"GT": 1, "EQ": 1, "ADD": 1, "SUB": 2, "MUL": 1} {
		if got := countCallsNamed(sub, name); got != want {
			t.Errorf("%s calls = %d, want %d", name, got, want)
		}
	}
	if got := countKind(sub, cpg.KindJumpTarget); got != 4 {
		t.Errorf("JUMP_TARGET count = %d, want 4", got)
	}
}

func TestRun_ThreeConditionals(t *testing.T) {
	p, d, repo := newPipeline(t, map[string]string{"Conditional5.java": conditional5})
	if _, err := p.Run(context.Background(), repo); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sub := wholeGraph(t, d)
	if got := countControlStructures(sub); got != 3 {
		t.Errorf("CONTROL_STRUCTURE count = %d, want 3", got)
	}
	for name, want := range map[string]int{"GT": 1, "EQ": 1, "LT": 1, "SUB": 1, "MUL": 1, "DIV": 1} {
		if got := countCallsNamed(sub, name); got != want {
			t.Errorf("%s calls = %d, want %d", name, got, want)
		}
	}
	if got := countKind(sub, cpg.KindJumpTarget); got != 6 {
		t.Errorf("JUMP_TARGET count = %d, want 6", got)
	}
}

func TestRun_ShortCircuitCondition(t *testing.T) {
	p, d, repo := newPipeline(t, map[string]string{"Conditional6.java": conditional6})
	if _, err := p.Run(context.Background(), repo); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sub := wholeGraph(t, d)
	if got := countControlStructures(sub); got != 1 {
		t.Errorf("CONTROL_STRUCTURE count = %d, want 1", got)
	}
	if got := countCallsNamed(sub, "MUL"); got != 1 {
		t.Errorf("MUL calls = %d, want 1", got)
	}
	if got := countKind(sub, cpg.KindJumpTarget); got != 2 {
		t.Errorf("JUMP_TARGET count = %d, want 2", got)
	}
	for _, name := range []string{"GT", "EQ", "LT"} {
		if got := countCallsNamed(sub, name); got != 1 {
			t.Errorf("%s calls = %d, want 1", name, got)
		}
	}
}

func TestRun_ProgramStructure(t *testing.T) {
	p, d, repo := newPipeline(t, map[string]string{
		"Bar.java": "package Foo;\n\npublic class Bar {\n    void m() {\n        int a = 1;\n    }\n}\n",
	})
	if _, err := p.Run(context.Background(), repo); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sub, err := d.GetProgramStructure(context.Background())
	if err != nil {
		t.Fatalf("GetProgramStructure: %v", err)
	}
	if got := len(sub.Nodes); got != 3 {
		t.Fatalf("program structure node count = %d, want 3 (FILE + 2 NAMESPACE_BLOCK)", got)
	}
	if got := len(sub.Edges); got != 2 {
		t.Fatalf("program structure edge count = %d, want 2", got)
	}
	if got := countKind(sub, cpg.KindFile); got != 1 {
		t.Errorf("FILE count = %d, want 1", got)
	}
	if got := countKind(sub, cpg.KindNamespaceBlock); got != 2 {
		t.Errorf("NAMESPACE_BLOCK count = %d, want 2", got)
	}
}

func TestRun_DeleteMethodPreservesFile(t *testing.T) {
	ctx := context.Background()
	p, d, repo := newPipeline(t, map[string]string{"Conditional1.java": conditional1})
	if _, err := p.Run(ctx, repo); err != nil {
		t.Fatalf("Run: %v", err)
	}

	before, err := d.GetVertexIDs(ctx, 0, 1<<62)
	if err != nil {
		t.Fatalf("GetVertexIDs: %v", err)
	}

	if err := d.DeleteMethod(ctx, "Conditional1.main", "void(java.lang.String[])"); err != nil {
		t.Fatalf("DeleteMethod: %v", err)
	}

	sub := wholeGraph(t, d)
	for _, n := range sub.Nodes {
		switch n.Kind {
		case cpg.KindMethod, cpg.KindBlock, cpg.KindCall, cpg.KindIdentifier,
			cpg.KindLiteral, cpg.KindControlStructure, cpg.KindJumpTarget,
			cpg.KindLocal, cpg.KindReturn, cpg.KindMethodReturn:
			t.Errorf("body node survived DeleteMethod: %s %+v", n.Kind, n.Props)
		}
	}
	if got := countKind(sub, cpg.KindFile); got != 1 {
		t.Errorf("FILE count after DeleteMethod = %d, want 1", got)
	}

	after, err := d.GetVertexIDs(ctx, 0, 1<<62)
	if err != nil {
		t.Fatalf("GetVertexIDs: %v", err)
	}
	if len(after) >= len(before) {
		t.Errorf("vertex id count %d not a strict subset of pre-delete %d", len(after), len(before))
	}
	beforeSet := map[int64]bool{}
	for _, id := range before {
		beforeSet[id] = true
	}
	for _, id := range after {
		if !beforeSet[id] {
			t.Errorf("post-delete id %d was not present before deletion", id)
		}
	}
}

func TestRun_UnchangedInputIsNoop(t *testing.T) {
	ctx := context.Background()
	p, d, repo := newPipeline(t, map[string]string{"Conditional1.java": conditional1})
	if _, err := p.Run(ctx, repo); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	firstNodes := len(wholeGraph(t, d).Nodes)
	firstEdges := len(wholeGraph(t, d).Edges)

	res, err := p.Run(ctx, repo)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.FilesUnchanged != 1 || res.FilesChanged != 0 || res.FilesNew != 0 {
		t.Errorf("second Run diff = unchanged %d / changed %d / new %d, want 1/0/0",
			res.FilesUnchanged, res.FilesChanged, res.FilesNew)
	}
	if res.MethodsBuilt != 0 {
		t.Errorf("second Run rebuilt %d methods, want 0", res.MethodsBuilt)
	}
	sub := wholeGraph(t, d)
	if len(sub.Nodes) != firstNodes || len(sub.Edges) != firstEdges {
		t.Errorf("graph changed on no-op run: %d/%d nodes, want %d; %d/%d edges",
			len(sub.Nodes), firstNodes, firstNodes, len(sub.Edges), firstEdges)
	}
}

func TestRun_StaleFileRebuiltAndCallEdgesReplayed(t *testing.T) {
	ctx := context.Background()
	helperV1 := `public class Helper {
    static int help() {
        return 1;
    }
}
`
	helperV2 := `public class Helper {
    static int help() {
        return 2;
    }
}
`
	caller := `public class Caller {
    static void run() {
        Helper.help();
    }
}
`
	p, d, repo := newPipeline(t, map[string]string{"Helper.java": helperV1, "Caller.java": caller})
	if _, err := p.Run(ctx, repo); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	writeFiles(t, repo.Path, map[string]string{"Helper.java": helperV2})
	res, err := p.Run(ctx, repo)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.FilesChanged != 1 || res.FilesUnchanged != 1 {
		t.Fatalf("second Run diff = changed %d / unchanged %d, want 1/1", res.FilesChanged, res.FilesUnchanged)
	}

	sub := wholeGraph(t, d)
	byID := map[int64]*cpg.Node{}
	var helperMethods []*cpg.Node
	for _, n := range sub.Nodes {
		byID[n.ID] = n
		if n.Kind == cpg.KindMethod && n.Props.FullName == "Helper.help" {
			helperMethods = append(helperMethods, n)
		}
	}
	if len(helperMethods) != 1 {
		t.Fatalf("Helper.help METHOD count = %d, want 1 after rebuild", len(helperMethods))
	}

	linked := false
	for _, e := range sub.Edges {
		if e.Label == cpg.EdgeCall && e.Dst == helperMethods[0].ID && byID[e.Src].Kind == cpg.KindCall {
			linked = true
		}
	}
	if !linked {
		t.Errorf("caller's CALL edge was not replayed onto the rebuilt Helper.help")
	}
}

func TestRun_TypeDeclAndFieldMembers(t *testing.T) {
	source := `public class Counter {
    int total;
    void bump(int n) {
        this.total = this.total + n;
    }
}
`
	p, d, repo := newPipeline(t, map[string]string{"Counter.java": source})
	if _, err := p.Run(context.Background(), repo); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sub := wholeGraph(t, d)
	byID := map[int64]*cpg.Node{}
	var typeDecl, member, method, ns *cpg.Node
	for _, n := range sub.Nodes {
		byID[n.ID] = n
		switch {
		case n.Kind == cpg.KindTypeDecl && n.Props.FullName == "Counter":
			typeDecl = n
		case n.Kind == cpg.KindMember && n.Props.Name == "total":
			member = n
		case n.Kind == cpg.KindMethod && n.Props.FullName == "Counter.bump":
			method = n
		case n.Kind == cpg.KindNamespaceBlock:
			ns = n
		}
	}
	if typeDecl == nil {
		t.Fatalf("no TYPE_DECL node for Counter")
	}
	if member == nil {
		t.Fatalf("no MEMBER node for field total")
	}
	if member.Props.TypeFullName != "int" {
		t.Errorf("MEMBER type = %q, want int", member.Props.TypeFullName)
	}
	if method == nil || ns == nil {
		t.Fatalf("method or namespace block missing")
	}

	hasEdge := func(src, dst int64, label cpg.EdgeKind) bool {
		for _, e := range sub.Edges {
			if e.Src == src && e.Dst == dst && e.Label == label {
				return true
			}
		}
		return false
	}
	if !hasEdge(ns.ID, typeDecl.ID, cpg.EdgeAST) {
		t.Errorf("missing NAMESPACE_BLOCK -AST-> TYPE_DECL edge")
	}
	if !hasEdge(typeDecl.ID, member.ID, cpg.EdgeAST) {
		t.Errorf("missing TYPE_DECL -AST-> MEMBER edge")
	}
	if !hasEdge(typeDecl.ID, method.ID, cpg.EdgeAST) {
		t.Errorf("missing TYPE_DECL -AST-> METHOD edge")
	}

	// The this.total read resolves to the declared member.
	refResolved := false
	for _, e := range sub.Edges {
		if e.Label == cpg.EdgeRef && e.Dst == member.ID && byID[e.Src].Kind == cpg.KindFieldIdentifier {
			refResolved = true
		}
	}
	if !refResolved {
		t.Errorf("no FIELD_IDENTIFIER -REF-> MEMBER edge for this.total")
	}
}

// stubLifter hands back a fixed set of unit graphs for every file,
// letting a test feed the pipeline a method shape the Java lifter would
// never produce.
type stubLifter struct {
	graphs []*unitgraph.Graph
}

func (s *stubLifter) Lift(context.Context, string, []byte) ([]*unitgraph.Graph, error) {
	return s.graphs, nil
}

func TestRun_SchemaViolationRollsBackMethodAndContinues(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"Bad.java": "public class Bad {}\n"})

	assign := &unitgraph.Unit{ID: "u0", Kind: unitgraph.OpAssignment, Target: "a",
		Operands: []unitgraph.Operand{{Literal: "1"}}}
	good := &unitgraph.Graph{
		MethodName:        "ok",
		MethodFullName:    "Bad.ok",
		ReturnType:        "void",
		Filename:          "Bad.java",
		AstParentFullName: "Bad",
		AstParentType:     "TYPE_DECL",
		Locals:            []unitgraph.Local{{Name: "a", TypeFullName: "int"}},
		Entry:             assign,
		Units:             []*unitgraph.Unit{assign},
	}

	// A branch conditioned on a bare method symbol lowers to a
	// METHOD_REF, which no CONDITION edge may point at; the violation
	// fires after the method head and several body nodes are persisted.
	branch := &unitgraph.Unit{ID: "u0", Kind: unitgraph.OpBranch,
		Operands: []unitgraph.Operand{{MethodSym: "Bad.pick"}}}
	bad := &unitgraph.Graph{
		MethodName:        "bad",
		MethodFullName:    "Bad.bad",
		ReturnType:        "void",
		Filename:          "Bad.java",
		AstParentFullName: "Bad",
		AstParentType:     "TYPE_DECL",
		Entry:             branch,
		Units:             []*unitgraph.Unit{branch},
	}

	d := memory.New(nil)
	lifter := &stubLifter{graphs: []*unitgraph.Graph{good, bad}}
	p := New(d, versionstore.NewDriverBacked(d), lifter, nil, nil, nil)

	res, err := p.Run(ctx, config.Repository{Name: "stub", Path: dir})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.MethodsBuilt != 1 || res.MethodsFailed != 1 {
		t.Fatalf("built/failed = %d/%d, want 1/1", res.MethodsBuilt, res.MethodsFailed)
	}
	if len(res.Errors) != 1 {
		t.Errorf("recorded errors = %d, want 1", len(res.Errors))
	}

	sub := wholeGraph(t, d)
	var okMethod bool
	for _, n := range sub.Nodes {
		switch {
		case n.Kind == cpg.KindMethod && n.Props.FullName == "Bad.bad":
			t.Errorf("failed method's head survived the rollback")
		case n.Kind == cpg.KindControlStructure || n.Kind == cpg.KindMethodRef:
			t.Errorf("failed method left a %s node behind", n.Kind)
		case n.Kind == cpg.KindMethod && n.Props.FullName == "Bad.ok":
			okMethod = true
		}
	}
	if !okMethod {
		t.Errorf("the method built before the violation is missing")
	}
	if got := countKind(sub, cpg.KindFile); got != 1 {
		t.Errorf("FILE count = %d, want 1 (the file itself is kept)", got)
	}
}

func TestRun_MissingRepository(t *testing.T) {
	d := memory.New(nil)
	lifter := javalift.New(nil)
	p := New(d, versionstore.NewDriverBacked(d), lifter, nil, lifter, nil)

	_, err := p.Run(context.Background(), config.Repository{Name: "ghost", Path: "/does/not/exist"})
	if err == nil {
		t.Fatalf("expected MissingInput error for an absent repository root")
	}
	if len(wholeGraph(t, d).Nodes) != 0 {
		t.Errorf("failed load left state behind")
	}
}
