package extractor

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/cpgkit/jvmcpg/internal/config"
	"github.com/cpgkit/jvmcpg/internal/cpgerr"
	"github.com/cpgkit/jvmcpg/internal/unitgraph"
	"github.com/cpgkit/jvmcpg/internal/util"
	"github.com/cpgkit/jvmcpg/internal/versionstore"
)

// fileRecord is one discovered input file: its absolute path, its path
// relative to the repository root (the FILE.name persisted in the
// store), its raw bytes, and the content hash DIFF_SCAN compares
// against the store.
type fileRecord struct {
	path    string
	relPath string
	content []byte
	hash    string
}

// load discovers every .java/.class file under repo.Path, reading and
// hashing each. A missing repository root is a MissingInput and leaves
// all state unchanged.
func (p *Pipeline) load(_ context.Context, repo config.Repository) ([]fileRecord, error) {
	info, err := os.Stat(repo.Path)
	if err != nil {
		return nil, &cpgerr.MissingInput{Path: repo.Path}
	}

	var files []fileRecord
	add := func(path, relPath string) error {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		files = append(files, fileRecord{
			path:    path,
			relPath: relPath,
			content: content,
			hash:    versionstore.ContentHash(content),
		})
		return nil
	}

	if !info.IsDir() {
		if err := add(repo.Path, filepath.Base(repo.Path)); err != nil {
			return nil, err
		}
		return files, nil
	}

	err = filepath.WalkDir(repo.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != repo.Path && util.ShouldSkipDirectory(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if util.ShouldSkipFile(path) {
			return nil
		}
		return add(path, util.ToRelativePath(repo.Path, path))
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", repo.Path, err)
	}
	return files, nil
}

// liftAll runs the Lifter over every discovered file. Lifting is
// per-file independent, so when the input count exceeds
// ParallelThreshold it fans out over a worker pool; results are merged
// serially into one map either way, keeping the driver single-writer.
func (p *Pipeline) liftAll(ctx context.Context, files []fileRecord, log *zap.Logger, res *Result) map[string][]*unitgraph.Graph {
	loaded := make(map[string][]*unitgraph.Graph, len(files))

	if len(files) <= p.ParallelThreshold {
		for _, f := range files {
			graphs, err := p.Lifter.Lift(ctx, f.path, f.content)
			if err != nil {
				log.Warn("lift failed, skipping file", zap.String("file", f.path), zap.Error(err))
				res.Errors = append(res.Errors, fmt.Errorf("lift %s: %w", f.path, err))
				continue
			}
			loaded[f.path] = graphs
		}
		return loaded
	}

	type liftResult struct {
		path   string
		graphs []*unitgraph.Graph
		err    error
	}

	jobs := make(chan fileRecord)
	results := make(chan liftResult, len(files))
	var wg sync.WaitGroup
	for w := 0; w < runtime.NumCPU(); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range jobs {
				graphs, err := p.Lifter.Lift(ctx, f.path, f.content)
				results <- liftResult{path: f.path, graphs: graphs, err: err}
			}
		}()
	}
	go func() {
		for _, f := range files {
			jobs <- f
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	for r := range results {
		if r.err != nil {
			log.Warn("lift failed, skipping file", zap.String("file", r.path), zap.Error(r.err))
			res.Errors = append(res.Errors, fmt.Errorf("lift %s: %w", r.path, r.err))
			continue
		}
		loaded[r.path] = r.graphs
	}
	return loaded
}
