// Package wiring assembles a runnable extraction service from loaded
// configuration: driver, staleness store, lifter, oracle, and
// pipeline. One assembly point owns every factory decision.
package wiring

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cpgkit/jvmcpg/internal/config"
	"github.com/cpgkit/jvmcpg/internal/driver"
	"github.com/cpgkit/jvmcpg/internal/driver/kuzu"
	"github.com/cpgkit/jvmcpg/internal/driver/memory"
	"github.com/cpgkit/jvmcpg/internal/driver/neo4j"
	"github.com/cpgkit/jvmcpg/internal/extractor"
	"github.com/cpgkit/jvmcpg/internal/javalift"
	"github.com/cpgkit/jvmcpg/internal/unitgraph"
	"github.com/cpgkit/jvmcpg/internal/versionstore"
)

// Service is the assembled object graph for one process.
type Service struct {
	Config   *config.Config
	Driver   driver.Driver
	Store    versionstore.Store
	Pipeline *extractor.Pipeline
	Logger   *zap.Logger
}

// Assemble opens the configured driver and staleness store and builds
// the pipeline around them. The built-in lifter handles .java sources;
// a caller embedding this module with a bytecode toolchain can swap
// Pipeline.Lifter and Pipeline.Oracle before the first Run.
func Assemble(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	d, err := openDriver(cfg.Driver, logger)
	if err != nil {
		return nil, fmt.Errorf("open driver: %w", err)
	}

	var store versionstore.Store
	switch cfg.VersionStore.Kind {
	case "mysql":
		store, err = versionstore.NewMySQLStore(cfg.VersionStore.MySQL, logger)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("open version store: %w", err)
		}
	default:
		store = versionstore.NewDriverBacked(d)
	}

	lifter := javalift.New(logger)

	// The lifter doubles as the call-graph oracle for source inputs;
	// CHA vs SPARK only matters to an external bytecode oracle, so both
	// select it here and NONE disables linking entirely.
	var oracle unitgraph.Oracle
	switch cfg.App.CallGraphAlg {
	case "NONE", "":
	case "CHA", "SPARK":
		oracle = lifter
		if cfg.App.SparkOpts != "" {
			logger.Info("spark options recorded", zap.String("spark_opts", cfg.App.SparkOpts))
		}
	default:
		d.Close()
		store.Close()
		return nil, fmt.Errorf("unknown call_graph_alg %q", cfg.App.CallGraphAlg)
	}

	pipeline := extractor.New(d, store, lifter, nil, oracle, logger)
	pipeline.ParallelThreshold = cfg.App.ParallelThreshold
	pipeline.CompileDir = cfg.App.CompileDir

	return &Service{
		Config:   cfg,
		Driver:   d,
		Store:    store,
		Pipeline: pipeline,
		Logger:   logger,
	}, nil
}

// openDriver constructs the configured storage back-end. Each back-end
// is a thin capability-implementing object behind the same Driver
// interface; this is the only place in the program aware of which
// concrete type is in use.
func openDriver(cfg config.DriverConfig, logger *zap.Logger) (driver.Driver, error) {
	switch cfg.Kind {
	case "memory", "":
		return memory.New(logger), nil
	case "neo4j":
		d, err := neo4j.New(neo4j.Config{
			URI:      cfg.Neo4jURI,
			Username: cfg.Neo4jUsername,
			Password: cfg.Neo4jPassword,
			Database: cfg.Neo4jDatabase,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("opening neo4j driver: %w", err)
		}
		return d, nil
	case "kuzu":
		d, err := kuzu.New(kuzu.Config{Path: cfg.KuzuPath}, logger)
		if err != nil {
			return nil, fmt.Errorf("opening kuzu driver: %w", err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown driver kind %q", cfg.Kind)
	}
}

// Close releases the store and driver.
func (s *Service) Close() {
	if err := s.Store.Close(); err != nil {
		s.Logger.Warn("closing version store", zap.Error(err))
	}
	if err := s.Driver.Close(); err != nil {
		s.Logger.Warn("closing driver", zap.Error(err))
	}
}
