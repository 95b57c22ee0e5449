package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/cpgkit/jvmcpg/internal/cpg"
	"github.com/cpgkit/jvmcpg/internal/cpgerr"
)

func TestAddVertexAssignsIDAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	d := New(nil)

	n := cpg.NewNode(cpg.KindFile)
	n.Props.Name = "Foo.java"
	if err := d.AddVertex(ctx, n); err != nil {
		t.Fatalf("AddVertex: %v", err)
	}
	if n.ID < 0 {
		t.Fatalf("AddVertex did not assign an id: %+v", n)
	}
	firstID := n.ID

	// Re-adding the same handle is idempotent by id.
	if err := d.AddVertex(ctx, n); err != nil {
		t.Fatalf("AddVertex (same handle): %v", err)
	}
	if n.ID != firstID {
		t.Fatalf("re-adding rewrote the id to %d", n.ID)
	}

	// An identity-bearing node with equal properties lands on the
	// existing vertex rather than duplicating it.
	dup := cpg.NewNode(cpg.KindFile)
	dup.Props.Name = "Foo.java"
	if err := d.AddVertex(ctx, dup); err != nil {
		t.Fatalf("AddVertex (duplicate): %v", err)
	}
	if dup.ID != firstID {
		t.Fatalf("AddVertex on equivalent node assigned a new id %d, want %d", dup.ID, firstID)
	}

	ids, err := d.GetVertexIDs(ctx, 0, 1<<62)
	if err != nil {
		t.Fatalf("GetVertexIDs: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("GetVertexIDs returned %d ids, want 1 (idempotent insert)", len(ids))
	}
}

func TestAddVertexKeepsEqualBodyNodesDistinct(t *testing.T) {
	ctx := context.Background()
	d := New(nil)

	// Two methods may both declare a local named a; the nodes are
	// distinct entities even with identical properties.
	first := cpg.NewNode(cpg.KindLocal)
	first.Props.Name = "a"
	second := cpg.NewNode(cpg.KindLocal)
	second.Props.Name = "a"
	must(t, d.AddVertex(ctx, first))
	must(t, d.AddVertex(ctx, second))
	if first.ID == second.ID {
		t.Fatalf("equal body nodes were merged into id %d", first.ID)
	}
}

func TestAddEdgeRejectsSchemaViolation(t *testing.T) {
	ctx := context.Background()
	d := New(nil)

	lit := cpg.NewNode(cpg.KindLiteral)
	method := cpg.NewNode(cpg.KindMethod)
	method.Props.FullName = "Foo.bar"

	err := d.AddEdge(ctx, lit, method, cpg.EdgeAST)
	var violation *cpgerr.SchemaViolation
	if !errors.As(err, &violation) {
		t.Fatalf("AddEdge(LITERAL, AST, METHOD) error = %v, want *cpgerr.SchemaViolation", err)
	}
}

func TestAddEdgeIsIdempotentAndAutoInsertsEndpoints(t *testing.T) {
	ctx := context.Background()
	d := New(nil)

	method := cpg.NewNode(cpg.KindMethod)
	block := cpg.NewNode(cpg.KindBlock)

	if err := d.AddEdge(ctx, method, block, cpg.EdgeAST); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if method.Pending() || block.Pending() {
		t.Fatalf("AddEdge did not auto-insert endpoints: method=%+v block=%+v", method, block)
	}
	if err := d.AddEdge(ctx, method, block, cpg.EdgeAST); err != nil {
		t.Fatalf("AddEdge (repeat): %v", err)
	}

	sg, err := d.GetNeighbours(ctx, method)
	if err != nil {
		t.Fatalf("GetNeighbours: %v", err)
	}
	if len(sg.Edges) != 1 {
		t.Fatalf("GetNeighbours returned %d edges, want 1 (idempotent AddEdge)", len(sg.Edges))
	}
}

func TestDeleteMethodKeepsInboundCallers(t *testing.T) {
	ctx := context.Background()
	d := New(nil)

	method := cpg.NewNode(cpg.KindMethod)
	method.Props.FullName = "Foo.bar"
	method.Props.Signature = "void()"
	block := cpg.NewNode(cpg.KindBlock)
	ret := cpg.NewNode(cpg.KindMethodReturn)
	caller := cpg.NewNode(cpg.KindCall)
	caller.Props.MethodFullName = "Foo.bar"

	must(t, d.AddEdge(ctx, method, block, cpg.EdgeAST))
	must(t, d.AddEdge(ctx, method, ret, cpg.EdgeAST))
	must(t, d.AddEdge(ctx, caller, method, cpg.EdgeCall))

	if err := d.DeleteMethod(ctx, "Foo.bar", "void()"); err != nil {
		t.Fatalf("DeleteMethod: %v", err)
	}

	exists, err := d.Exists(ctx, method)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatalf("method node still exists after DeleteMethod")
	}
	existsCaller, err := d.Exists(ctx, caller)
	if err != nil {
		t.Fatalf("Exists(caller): %v", err)
	}
	if !existsCaller {
		t.Fatalf("DeleteMethod removed the calling CALL node, want it preserved (dangling ok)")
	}
}

func TestGetProgramStructure(t *testing.T) {
	ctx := context.Background()
	d := New(nil)

	file := cpg.NewNode(cpg.KindFile)
	file.Props.Name = "Foo.java"
	ns1 := cpg.NewNode(cpg.KindNamespaceBlock)
	ns1.Props.FullName = "com"
	ns2 := cpg.NewNode(cpg.KindNamespaceBlock)
	ns2.Props.FullName = "com.foo"
	typeDecl := cpg.NewNode(cpg.KindTypeDecl)
	typeDecl.Props.FullName = "com.foo.Foo"

	must(t, d.AddEdge(ctx, file, ns1, cpg.EdgeAST))
	must(t, d.AddEdge(ctx, ns1, ns2, cpg.EdgeAST))
	must(t, d.AddEdge(ctx, file, typeDecl, cpg.EdgeAST))

	sg, err := d.GetProgramStructure(ctx)
	if err != nil {
		t.Fatalf("GetProgramStructure: %v", err)
	}
	if len(sg.Nodes) != 3 {
		t.Fatalf("GetProgramStructure returned %d nodes, want 3 (FILE + 2 NAMESPACE_BLOCK)", len(sg.Nodes))
	}
	if len(sg.Edges) != 2 {
		t.Fatalf("GetProgramStructure returned %d edges, want 2", len(sg.Edges))
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
