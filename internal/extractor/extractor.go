// Package extractor implements the extraction pipeline: the state
// machine that drives one repository through load, compile,
// class-loading, diff scan, stale deletion, CPG construction, and
// call-graph linking.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cpgkit/jvmcpg/internal/builder"
	"github.com/cpgkit/jvmcpg/internal/config"
	"github.com/cpgkit/jvmcpg/internal/cpg"
	"github.com/cpgkit/jvmcpg/internal/cpgerr"
	"github.com/cpgkit/jvmcpg/internal/driver"
	"github.com/cpgkit/jvmcpg/internal/render"
	"github.com/cpgkit/jvmcpg/internal/unitgraph"
	"github.com/cpgkit/jvmcpg/internal/util"
	"github.com/cpgkit/jvmcpg/internal/versionstore"
)

// State is one node of the extraction state machine: IDLE ->
// LOADED -> COMPILING -> LOADING_CLASSES -> DIFF_SCAN -> DELETE_STALE ->
// BUILDING_CPG -> LINKING_CALLS -> IDLE.
type State string

const (
	StateIdle           State = "IDLE"
	StateLoaded         State = "LOADED"
	StateCompiling      State = "COMPILING"
	StateLoadingClasses State = "LOADING_CLASSES"
	StateDiffScan       State = "DIFF_SCAN"
	StateDeleteStale    State = "DELETE_STALE"
	StateBuildingCPG    State = "BUILDING_CPG"
	StateLinkingCalls   State = "LINKING_CALLS"
)

// Lifter turns one discovered file's path and bytes into the UnitGraph
// of every method the file declares. internal/javalift is the built-in
// implementation for Java source; a bytecode front end plugs in the
// same way.
type Lifter interface {
	Lift(ctx context.Context, filePath string, content []byte) ([]*unitgraph.Graph, error)
}

// Compiler turns a repository of .java sources into .class files under
// outputDir (the configured compile_dir), run during the COMPILING
// state whenever the Pipeline has a Compiler; the repository's
// Language is not consulted.
type Compiler interface {
	Compile(ctx context.Context, repo config.Repository, outputDir string) error
}

// Pipeline runs one extraction cycle at a time against a single Driver.
// Not safe to run two repositories concurrently against the same
// Pipeline (the core is single-writer); callers wanting concurrent
// repositories construct one Pipeline per Driver connection or serialize
// calls to Run.
type Pipeline struct {
	Driver   driver.Driver
	Store    versionstore.Store
	Lifter   Lifter
	Compiler Compiler
	Oracle   unitgraph.Oracle // nil when App.CallGraphAlg == "NONE"
	Logger   *zap.Logger

	ParallelThreshold int
	CompileDir        string

	mu    sync.Mutex
	state State
}

// New constructs a Pipeline. oracle may be nil (call_graph_alg
// "NONE"); compiler may be nil for repositories that are already
// compiled .class trees.
func New(d driver.Driver, store versionstore.Store, lifter Lifter, compiler Compiler, oracle unitgraph.Oracle, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		Driver:            d,
		Store:             store,
		Lifter:            lifter,
		Compiler:          compiler,
		Oracle:            oracle,
		Logger:            logger,
		ParallelThreshold: 100_000,
		state:             StateIdle,
	}
}

// State reports the pipeline's current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Result summarizes one Run call: what changed and what failed,
// without aborting the whole run for a single method's schema
// violation.
type Result struct {
	RunID           string
	FilesScanned    int
	FilesUnchanged  int
	FilesChanged    int
	FilesNew        int
	MethodsBuilt    int
	MethodsFailed   int
	CallsLinked     int
	PhantomTargets  int
	Errors          []error
}

// Run drives repo through every state of the pipeline once: load,
// (optionally) compile, load classes, diff scan against repo's prior
// content hashes, delete stale methods while saving their inbound CALL
// edges, rebuild changed/new files' CPG, then link the call graph and
// replay saved edges. Returns to IDLE on both success and failure.
func (p *Pipeline) Run(ctx context.Context, repo config.Repository) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	log := p.Logger.With(zap.String("run_id", res.RunID), zap.String("repo", repo.Name))
	log.Info("starting extraction run")
	defer p.setState(StateIdle)

	files, err := p.load(ctx, repo)
	if err != nil {
		return res, fmt.Errorf("load: %w", err)
	}
	p.setState(StateLoaded)
	res.FilesScanned = len(files)

	if p.Compiler != nil {
		p.setState(StateCompiling)
		if err := p.Compiler.Compile(ctx, repo, p.CompileDir); err != nil {
			return res, &cpgerr.CompileError{Filename: repo.Path, Cause: err}
		}
	}

	p.setState(StateLoadingClasses)
	loaded := p.liftAll(ctx, files, log, res)

	p.setState(StateDiffScan)
	var changed, unchanged []fileRecord
	for _, f := range files {
		prevHash, ok, err := p.Store.Hash(ctx, repo.Name, f.relPath)
		if err != nil {
			return res, fmt.Errorf("diff scan %s: %w", f.relPath, err)
		}
		if ok && prevHash == f.hash {
			unchanged = append(unchanged, f)
			res.FilesUnchanged++
			continue
		}
		changed = append(changed, f)
		if ok {
			res.FilesChanged++
		} else {
			res.FilesNew++
		}
	}

	p.setState(StateDeleteStale)
	var saved []savedEdge
	for _, f := range changed {
		edges, err := p.deleteFile(ctx, f.relPath)
		if err != nil {
			return res, fmt.Errorf("delete stale %s: %w", f.relPath, err)
		}
		saved = append(saved, edges...)
	}

	p.setState(StateBuildingCPG)
	registry := builder.NewCallRegistry()
	for _, f := range changed {
		graphs := loaded[f.path]
		fileNode := cpg.NewBuilder(cpg.KindFile).Name(f.relPath).Filename(f.relPath).Hash(f.hash).Build()
		if err := p.Driver.AddVertex(ctx, fileNode); err != nil {
			return res, fmt.Errorf("persist file node %s: %w", f.relPath, err)
		}
		leafNS, err := p.ensureNamespaceChain(ctx, fileNode, packageOf(graphs))
		if err != nil {
			return res, fmt.Errorf("persist namespace chain %s: %w", f.relPath, err)
		}
		typeDecls, members, err := p.ensureTypeDecls(ctx, leafNS, f.relPath, graphs)
		if err != nil {
			return res, fmt.Errorf("persist type decls %s: %w", f.relPath, err)
		}

		var src *render.Source
		if util.IsJavaSource(f.path) {
			parsed, err := render.Parse(f.content)
			if err != nil {
				log.Warn("source rendering unavailable", zap.String("file", f.path), zap.Error(err))
			} else {
				src = parsed
			}
		}

		for _, g := range graphs {
			b := builder.New(p.Driver, registry, p.Logger)
			b.Src = src
			for _, m := range members[g.AstParentFullName] {
				b.RegisterMember(g.AstParentFullName, m.Props.Name, m)
			}
			method, err := b.BuildMethod(ctx, g)
			if err != nil {
				var schemaErr *cpgerr.SchemaViolation
				if asSchemaViolation(err, &schemaErr) {
					log.Warn("schema violation, skipping method", zap.String("method", g.MethodFullName), zap.Error(err))
					res.MethodsFailed++
					res.Errors = append(res.Errors, err)
					continue
				}
				return res, fmt.Errorf("build method %s: %w", g.MethodFullName, err)
			}
			if td, ok := typeDecls[g.AstParentFullName]; ok {
				if err := p.Driver.AddEdge(ctx, td, method, cpg.EdgeAST); err != nil {
					return res, fmt.Errorf("link method to type decl %s: %w", g.MethodFullName, err)
				}
			}
			if err := p.Driver.AddEdge(ctx, method, fileNode, cpg.EdgeSourceFile); err != nil {
				return res, fmt.Errorf("link method to file %s: %w", g.MethodFullName, err)
			}
			res.MethodsBuilt++
		}
		if src != nil {
			src.Close()
		}

		if err := p.Store.Record(ctx, repo.Name, f.relPath, f.hash); err != nil {
			return res, fmt.Errorf("record hash %s: %w", f.relPath, err)
		}
	}

	p.setState(StateLinkingCalls)
	cgb := builder.NewCallGraphBuilder(p.Driver, registry, p.Oracle, p.Logger)
	for _, f := range changed {
		for _, g := range loaded[f.path] {
			if err := cgb.LinkMethod(ctx, g.MethodFullName, g.Signature()); err != nil {
				return res, fmt.Errorf("link calls for %s: %w", g.MethodFullName, err)
			}
		}
	}
	linked, phantoms, err := p.replaySavedEdges(ctx, cgb, saved)
	if err != nil {
		return res, fmt.Errorf("replay saved edges: %w", err)
	}
	res.CallsLinked += linked
	res.PhantomTargets += phantoms

	log.Info("extraction run complete",
		zap.Int("files_scanned", res.FilesScanned),
		zap.Int("files_changed", res.FilesChanged),
		zap.Int("files_new", res.FilesNew),
		zap.Int("methods_built", res.MethodsBuilt),
		zap.Int("methods_failed", res.MethodsFailed))
	return res, nil
}

func asSchemaViolation(err error, target **cpgerr.SchemaViolation) bool {
	return errors.As(err, target)
}

// savedEdge is one inbound CALL edge captured before its target method
// was deleted, so LINKING_CALLS can replay it against whatever node
// (real rebuild or phantom head) now answers to the same
// (fullName, signature); an edge is never silently dropped.
type savedEdge struct {
	callNode       *cpg.Node
	targetFullName string
	targetSig      string
}

// deleteFile removes every method whose FILE node matches relPath,
// first capturing each method's inbound CALL edges for replay, then
// deletes the FILE node itself. Absent files are a no-op (first run).
func (p *Pipeline) deleteFile(ctx context.Context, relPath string) ([]savedEdge, error) {
	structure, err := p.Driver.GetProgramStructure(ctx)
	if err != nil {
		return nil, err
	}
	var fileNode *cpg.Node
	for _, n := range structure.Nodes {
		if n.Kind == cpg.KindFile && n.Props.Filename == relPath {
			fileNode = n
			break
		}
	}
	if fileNode == nil {
		return nil, nil
	}

	whole, err := p.Driver.GetWholeGraph(ctx)
	if err != nil {
		return nil, err
	}

	var methodIDs []int64
	for _, e := range whole.Edges {
		if e.Label == cpg.EdgeSourceFile && e.Dst == fileNode.ID {
			methodIDs = append(methodIDs, e.Src)
		}
	}

	var saved []savedEdge
	for _, id := range methodIDs {
		method, ok := whole.NodeByID(id)
		if !ok {
			continue
		}
		neighbours, err := p.Driver.GetNeighbours(ctx, method)
		if err != nil {
			return nil, err
		}
		for _, e := range neighbours.Edges {
			if e.Label != cpg.EdgeCall || e.Dst != method.ID {
				continue
			}
			callNode, ok := neighbours.NodeByID(e.Src)
			if !ok {
				continue
			}
			saved = append(saved, savedEdge{
				callNode:       callNode,
				targetFullName: method.Props.FullName,
				targetSig:      method.Props.Signature,
			})
		}
		if err := p.Driver.DeleteMethod(ctx, method.Props.FullName, method.Props.Signature); err != nil {
			return nil, err
		}
	}

	// The file's TYPE_DECL nodes and their MEMBER children go with it;
	// they are rebuilt from the fresh lift. Methods are already gone,
	// so only the member children remain under each TYPE_DECL.
	for _, n := range whole.Nodes {
		if n.Kind != cpg.KindTypeDecl || n.Props.Filename != relPath {
			continue
		}
		neighbours, err := p.Driver.GetNeighbours(ctx, n)
		if err != nil {
			return nil, err
		}
		for _, e := range neighbours.Edges {
			if e.Label != cpg.EdgeAST || e.Src != n.ID {
				continue
			}
			child, ok := neighbours.NodeByID(e.Dst)
			if !ok || child.Kind != cpg.KindMember {
				continue
			}
			if err := p.Driver.DeleteVertex(ctx, child); err != nil {
				return nil, err
			}
		}
		if err := p.Driver.DeleteVertex(ctx, n); err != nil {
			return nil, err
		}
	}

	if err := p.Driver.DeleteVertex(ctx, fileNode); err != nil {
		return nil, err
	}
	return saved, nil
}

// replaySavedEdges re-links every edge captured by deleteFile against
// whatever node now answers to its target (fullName, signature),
// minting a phantom head via the same path CallGraphBuilder uses for an
// unresolved Oracle target.
func (p *Pipeline) replaySavedEdges(ctx context.Context, cgb *builder.CallGraphBuilder, saved []savedEdge) (linked, phantoms int, err error) {
	for _, s := range saved {
		target, ok := cgb.Registry.MethodFor(s.targetFullName, s.targetSig)
		if !ok {
			target, err = cgb.ResolveTarget(ctx, unitgraph.Target{
				MethodFullName: s.targetFullName,
				Signature:      s.targetSig,
				HasBody:        false,
			})
			if err != nil {
				return linked, phantoms, err
			}
			phantoms++
		}
		if err := p.Driver.AddEdge(ctx, s.callNode, target, cpg.EdgeCall); err != nil {
			return linked, phantoms, err
		}
		linked++
	}
	return linked, phantoms, nil
}

// packageOf returns the declaring package shared by a file's methods:
// the first non-empty Package any lifted graph reports.
func packageOf(graphs []*unitgraph.Graph) string {
	for _, g := range graphs {
		if g.Package != "" {
			return g.Package
		}
	}
	return ""
}

// ensureNamespaceChain persists the program-structure spine for one
// file: FILE -> root namespace -> one NAMESPACE_BLOCK per cumulative
// package segment, all linked by AST. Namespace nodes carry no
// filename so that two files in the same package share one chain,
// keeping NAMESPACE_BLOCK fullNames unique. Returns the chain's leaf
// block, the AST parent for the file's TYPE_DECL nodes.
func (p *Pipeline) ensureNamespaceChain(ctx context.Context, fileNode *cpg.Node, pkg string) (*cpg.Node, error) {
	prev := cpg.NewBuilder(cpg.KindNamespaceBlock).Name("<global>").FullName("<global>").Build()
	if err := p.Driver.AddEdge(ctx, fileNode, prev, cpg.EdgeAST); err != nil {
		return nil, err
	}
	if pkg == "" {
		return prev, nil
	}
	full := ""
	for _, seg := range strings.Split(pkg, ".") {
		if full == "" {
			full = seg
		} else {
			full = full + "." + seg
		}
		ns := cpg.NewBuilder(cpg.KindNamespaceBlock).Name(seg).FullName(full).Build()
		if err := p.Driver.AddEdge(ctx, prev, ns, cpg.EdgeAST); err != nil {
			return nil, err
		}
		prev = ns
	}
	return prev, nil
}

// ensureTypeDecls persists one TYPE_DECL per class declared in a file
// (an AST child of the namespace chain's leaf) and one MEMBER per
// declared field. The returned member map is keyed by class fullName,
// for registration into each method builder's PDG pass.
func (p *Pipeline) ensureTypeDecls(ctx context.Context, leafNS *cpg.Node, relPath string, graphs []*unitgraph.Graph) (map[string]*cpg.Node, map[string][]*cpg.Node, error) {
	typeDecls := make(map[string]*cpg.Node)
	members := make(map[string][]*cpg.Node)
	for _, g := range graphs {
		if g.AstParentFullName == "" {
			continue
		}
		if _, ok := typeDecls[g.AstParentFullName]; ok {
			continue
		}
		td := cpg.NewBuilder(cpg.KindTypeDecl).
			Name(simpleTypeName(g.AstParentFullName)).
			FullName(g.AstParentFullName).
			AstParentFullName(leafNS.Props.FullName).
			AstParentType(string(cpg.KindNamespaceBlock)).
			Filename(relPath).
			Build()
		if err := p.Driver.AddEdge(ctx, leafNS, td, cpg.EdgeAST); err != nil {
			return nil, nil, err
		}
		typeDecls[g.AstParentFullName] = td

		for _, fd := range g.Fields {
			m := cpg.NewBuilder(cpg.KindMember).
				Name(fd.Name).Code(fd.Name).TypeFullName(fd.TypeFullName).
				AstParentFullName(g.AstParentFullName).
				Build()
			if err := p.Driver.AddEdge(ctx, td, m, cpg.EdgeAST); err != nil {
				return nil, nil, err
			}
			members[g.AstParentFullName] = append(members[g.AstParentFullName], m)
		}
	}
	return typeDecls, members, nil
}

func simpleTypeName(fullName string) string {
	if i := strings.LastIndex(fullName, "."); i >= 0 {
		return fullName[i+1:]
	}
	return fullName
}
