package versionstore

import (
	"context"
	"testing"

	"github.com/cpgkit/jvmcpg/internal/cpg"
	"github.com/cpgkit/jvmcpg/internal/driver/memory"
)

func TestDriverBacked_HashRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := memory.New(nil)
	store := NewDriverBacked(d)

	if _, ok, err := store.Hash(ctx, "repo", "com/example/Foo.java"); err != nil {
		t.Fatalf("Hash: %v", err)
	} else if ok {
		t.Fatalf("expected no recorded hash before any FILE node is persisted")
	}

	file := cpg.NewBuilder(cpg.KindFile).Filename("com/example/Foo.java").Hash("deadbeef").Build()
	if err := d.AddVertex(ctx, file); err != nil {
		t.Fatalf("AddVertex: %v", err)
	}

	hash, ok, err := store.Hash(ctx, "repo", "com/example/Foo.java")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !ok {
		t.Fatalf("expected a recorded hash after AddVertex")
	}
	if hash != "deadbeef" {
		t.Errorf("Hash = %q, want %q", hash, "deadbeef")
	}
}
