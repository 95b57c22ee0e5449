package wiring

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cpgkit/jvmcpg/internal/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		App:          config.App{CallGraphAlg: "CHA", ParallelThreshold: 100_000},
		Driver:       config.DriverConfig{Kind: "memory"},
		VersionStore: config.VersionStoreConfig{Kind: "store"},
	}
}

func TestAssembleMemoryService(t *testing.T) {
	svc, err := Assemble(memoryConfig(), nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	defer svc.Close()

	if svc.Pipeline == nil || svc.Pipeline.Oracle == nil {
		t.Fatalf("pipeline not wired with the CHA oracle: %+v", svc.Pipeline)
	}
	if svc.Pipeline.ParallelThreshold != 100_000 {
		t.Errorf("ParallelThreshold = %d", svc.Pipeline.ParallelThreshold)
	}
}

func TestAssembleNoneDisablesOracle(t *testing.T) {
	cfg := memoryConfig()
	cfg.App.CallGraphAlg = "NONE"
	svc, err := Assemble(cfg, nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	defer svc.Close()
	if svc.Pipeline.Oracle != nil {
		t.Errorf("oracle should be disabled for call_graph_alg NONE")
	}
}

func TestAssembleRejectsUnknownAlgorithm(t *testing.T) {
	cfg := memoryConfig()
	cfg.App.CallGraphAlg = "POINTS_TO_MAGIC"
	if _, err := Assemble(cfg, nil); err == nil {
		t.Fatalf("expected an error for an unknown call-graph algorithm")
	}
}

func TestAssembledPipelineExtracts(t *testing.T) {
	dir := t.TempDir()
	src := "public class Tiny {\n    static void m() {\n        int a = 1;\n        a = a + 1;\n    }\n}\n"
	if err := os.WriteFile(filepath.Join(dir, "Tiny.java"), []byte(src), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	svc, err := Assemble(memoryConfig(), nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	defer svc.Close()

	res, err := svc.Pipeline.Run(context.Background(), config.Repository{Name: "tiny", Path: dir})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.MethodsBuilt != 1 {
		t.Errorf("MethodsBuilt = %d, want 1", res.MethodsBuilt)
	}
}
