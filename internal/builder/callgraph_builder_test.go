package builder

import (
	"context"
	"testing"

	"github.com/cpgkit/jvmcpg/internal/cpg"
	"github.com/cpgkit/jvmcpg/internal/driver/memory"
	"github.com/cpgkit/jvmcpg/internal/unitgraph"
)

// stubOracle resolves exactly the call edges it's constructed with,
// keyed by the caller's (fullName, signature).
type stubOracle struct {
	edges map[string][]unitgraph.Edge
}

func (o *stubOracle) OutEdges(fullName, signature string) ([]unitgraph.Edge, error) {
	return o.edges[methodRegistryKey(fullName, signature)], nil
}

func callerGraph() *unitgraph.Graph {
	call := &unitgraph.Unit{
		ID:   "u0",
		Kind: unitgraph.OpInvoke,
		Operands: []unitgraph.Operand{
			{MethodSym: "com.example.Callee.target"},
		},
	}
	ret := &unitgraph.Unit{ID: "u1", Kind: unitgraph.OpReturn}
	call.Next = ret

	return &unitgraph.Graph{
		MethodName:     "caller",
		MethodFullName: "com.example.Caller.caller",
		ReturnType:     "void",
		Entry:          call,
		Units:          []*unitgraph.Unit{call, ret},
	}
}

func calleeGraph() *unitgraph.Graph {
	return &unitgraph.Graph{
		MethodName:     "target",
		MethodFullName: "com.example.Callee.target",
		ReturnType:     "void",
		Entry:          nil,
	}
}

func TestCallGraphBuilder_LinksResolvedTarget(t *testing.T) {
	ctx := context.Background()
	d := memory.New(nil)
	registry := NewCallRegistry()

	callerB := New(d, registry, nil)
	callerMethod, err := callerB.BuildMethod(ctx, callerGraph())
	if err != nil {
		t.Fatalf("build caller: %v", err)
	}

	calleeB := New(d, registry, nil)
	calleeMethod, err := calleeB.BuildMethod(ctx, calleeGraph())
	if err != nil {
		t.Fatalf("build callee: %v", err)
	}

	oracle := &stubOracle{edges: map[string][]unitgraph.Edge{
		methodRegistryKey(callerMethod.Props.FullName, signatureOf(callerGraph())): {
			{
				Site: unitgraph.CallSite{
					UnitID:         "u0",
					MethodFullName: "com.example.Caller.caller",
					Signature:      signatureOf(callerGraph()),
				},
				Target: unitgraph.Target{
					MethodFullName: "com.example.Callee.target",
					Signature:      signatureOf(calleeGraph()),
					HasBody:        true,
				},
			},
		},
	}}

	cgb := NewCallGraphBuilder(d, registry, oracle, nil)
	if err := cgb.LinkMethod(ctx, "com.example.Caller.caller", signatureOf(callerGraph())); err != nil {
		t.Fatalf("LinkMethod: %v", err)
	}

	sub, err := d.GetWholeGraph(ctx)
	if err != nil {
		t.Fatalf("GetWholeGraph: %v", err)
	}

	found := false
	for _, e := range sub.Edges {
		if e.Label == cpg.EdgeCall && e.Dst == calleeMethod.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a CALL edge into the callee method, got edges: %+v", sub.Edges)
	}
}

func TestCallGraphBuilder_PhantomTarget(t *testing.T) {
	ctx := context.Background()
	d := memory.New(nil)
	registry := NewCallRegistry()

	callerB := New(d, registry, nil)
	g := callerGraph()
	if _, err := callerB.BuildMethod(ctx, g); err != nil {
		t.Fatalf("build caller: %v", err)
	}

	oracle := &stubOracle{edges: map[string][]unitgraph.Edge{
		methodRegistryKey(g.MethodFullName, signatureOf(g)): {
			{
				Site: unitgraph.CallSite{UnitID: "u0", MethodFullName: g.MethodFullName, Signature: signatureOf(g)},
				Target: unitgraph.Target{
					MethodFullName: "com.example.Unknown.missing",
					Signature:      "void()",
					HasBody:        false,
				},
			},
		},
	}}

	cgb := NewCallGraphBuilder(d, registry, oracle, nil)
	if err := cgb.LinkMethod(ctx, g.MethodFullName, signatureOf(g)); err != nil {
		t.Fatalf("LinkMethod: %v", err)
	}

	sub, err := d.GetWholeGraph(ctx)
	if err != nil {
		t.Fatalf("GetWholeGraph: %v", err)
	}

	var phantom *cpg.Node
	for _, n := range sub.Nodes {
		if n.Kind == cpg.KindMethod && n.Props.FullName == "com.example.Unknown.missing" {
			phantom = n
		}
	}
	if phantom == nil {
		t.Fatalf("expected a phantom METHOD head for the unresolved target")
	}
	if phantom.Props.Extra["phantom"] != "true" {
		t.Errorf("expected phantom method to be marked, got Extra=%v", phantom.Props.Extra)
	}

	hasCall := false
	for _, e := range sub.Edges {
		if e.Label == cpg.EdgeCall && e.Dst == phantom.ID {
			hasCall = true
		}
	}
	if !hasCall {
		t.Errorf("expected a CALL edge into the phantom method")
	}
}

func TestCallGraphBuilder_NilOracleIsNoop(t *testing.T) {
	ctx := context.Background()
	d := memory.New(nil)
	registry := NewCallRegistry()
	cgb := NewCallGraphBuilder(d, registry, nil, nil)
	if err := cgb.LinkMethod(ctx, "anything", "()"); err != nil {
		t.Fatalf("expected nil-oracle LinkMethod to be a no-op, got %v", err)
	}
}
