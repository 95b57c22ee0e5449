// Package versionstore answers DIFF_SCAN's one question: "has this
// file's content changed since it was last extracted?". The default
// Store compares against the FILE.hash property already persisted in
// the Driver, so no auxiliary index is kept beyond what the schema
// mandates. An optional MySQL-backed ledger is offered for back-ends
// too slow to scan for staleness at repository scale.
package versionstore

import (
	"context"

	"github.com/cpgkit/jvmcpg/internal/cpg"
	"github.com/cpgkit/jvmcpg/internal/driver"
)

// Store reports and records a file's last-seen content hash.
type Store interface {
	// Hash returns the content hash last recorded for path, and whether
	// one was found at all (a never-seen file reports ok == false).
	Hash(ctx context.Context, repo, path string) (hash string, ok bool, err error)

	// Record persists path's new content hash, superseding any prior
	// value for the same (repo, path).
	Record(ctx context.Context, repo, path, hash string) error

	// Close releases any held resources.
	Close() error
}

// DriverBacked is the default Store (config "store" mode): it reads the
// content hash straight off the FILE node already persisted in the
// Driver, so DIFF_SCAN never grows an index beyond the schema. repo is
// accepted for interface symmetry with MySQLStore
// but ignored: a Driver instance is already scoped to one store, and
// FILE.filename is unique within it.
type DriverBacked struct {
	Driver driver.Driver
}

// NewDriverBacked wraps d as a Store.
func NewDriverBacked(d driver.Driver) *DriverBacked {
	return &DriverBacked{Driver: d}
}

func (s *DriverBacked) Hash(ctx context.Context, _, path string) (string, bool, error) {
	sub, err := s.Driver.GetProgramStructure(ctx)
	if err != nil {
		return "", false, err
	}
	for _, n := range sub.Nodes {
		if n.Kind == cpg.KindFile && n.Props.Filename == path {
			return n.Props.Hash, true, nil
		}
	}
	return "", false, nil
}

// Record is a no-op: the hash is whatever FILE.hash the extractor's own
// AddVertex call for that FILE node persisted; there is nothing further
// for a driver-backed store to write.
func (s *DriverBacked) Record(context.Context, string, string, string) error { return nil }

func (s *DriverBacked) Close() error { return nil }
