package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/cpgkit/jvmcpg/internal/cpg"
	"github.com/cpgkit/jvmcpg/internal/driver/memory"
)

func seededServer(t *testing.T) (*Server, *memory.Driver) {
	t.Helper()
	ctx := context.Background()
	d := memory.New(nil)

	file := cpg.NewBuilder(cpg.KindFile).Name("Foo.java").Filename("Foo.java").Hash("abc").Build()
	ns := cpg.NewBuilder(cpg.KindNamespaceBlock).Name("Foo").FullName("Foo").Build()
	method := cpg.NewBuilder(cpg.KindMethod).Name("m").FullName("Foo.Bar.m").Signature("void()").Build()
	if err := d.AddEdge(ctx, file, ns, cpg.EdgeAST); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := d.AddEdge(ctx, method, file, cpg.EdgeSourceFile); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	return New(d, nil), d
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _ := seededServer(t)
	w := get(t, s.SetupRouter(), "/api/v1/health")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
}

func TestGetProgramStructure(t *testing.T) {
	s, _ := seededServer(t)
	w := get(t, s.SetupRouter(), "/api/v1/structure")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var dto SubgraphDTO
	if err := json.Unmarshal(w.Body.Bytes(), &dto); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(dto.Nodes) != 2 || len(dto.Edges) != 1 {
		t.Errorf("structure = %d nodes / %d edges, want 2/1", len(dto.Nodes), len(dto.Edges))
	}
}

func TestGetMethod(t *testing.T) {
	s, _ := seededServer(t)
	router := s.SetupRouter()

	w := get(t, router, "/api/v1/method?fullName=Foo.Bar.m&signature=void()")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var dto SubgraphDTO
	if err := json.Unmarshal(w.Body.Bytes(), &dto); err != nil {
		t.Fatalf("decode: %v", err)
	}
	found := false
	for _, n := range dto.Nodes {
		if n.Label == string(cpg.KindMethod) && n.Properties["fullName"] == "Foo.Bar.m" {
			found = true
		}
	}
	if !found {
		t.Errorf("method node missing from response: %+v", dto.Nodes)
	}

	if w := get(t, router, "/api/v1/method"); w.Code != http.StatusBadRequest {
		t.Errorf("missing fullName status = %d, want 400", w.Code)
	}
}

func TestGetVertexIDs(t *testing.T) {
	s, _ := seededServer(t)
	w := get(t, s.SetupRouter(), "/api/v1/ids?lo=0&hi=100")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var out struct {
		IDs []int64 `json:"ids"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.IDs) != 3 {
		t.Errorf("id count = %d, want 3", len(out.IDs))
	}

	if w := get(t, s.SetupRouter(), "/api/v1/ids?lo=x"); w.Code != http.StatusBadRequest {
		t.Errorf("bad lo status = %d, want 400", w.Code)
	}
}

func TestGetNeighbours(t *testing.T) {
	s, d := seededServer(t)
	ctx := context.Background()

	sub, err := d.GetProgramStructure(ctx)
	if err != nil {
		t.Fatalf("GetProgramStructure: %v", err)
	}
	var fileID int64 = -1
	for _, n := range sub.Nodes {
		if n.Kind == cpg.KindFile {
			fileID = n.ID
		}
	}
	if fileID < 0 {
		t.Fatalf("no FILE node seeded")
	}

	w := get(t, s.SetupRouter(), "/api/v1/neighbours/"+strconv.FormatInt(fileID, 10))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var dto SubgraphDTO
	if err := json.Unmarshal(w.Body.Bytes(), &dto); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// FILE itself plus the namespace block and the method.
	if len(dto.Nodes) != 3 {
		t.Errorf("neighbourhood = %d nodes, want 3", len(dto.Nodes))
	}

	if w := get(t, s.SetupRouter(), "/api/v1/neighbours/notanumber"); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", w.Code)
	}
}
