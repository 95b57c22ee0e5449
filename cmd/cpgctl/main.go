package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cpgkit/jvmcpg/internal/config"
	"github.com/cpgkit/jvmcpg/internal/httpapi"
	"github.com/cpgkit/jvmcpg/internal/mcpserver"
	"github.com/cpgkit/jvmcpg/internal/wiring"
)

// stringSliceFlag is a custom flag type that allows multiple values
type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func main() {
	var appConfigPath = flag.String("app", "app.yaml", "Path to app configuration file")
	var sourceConfigPath = flag.String("source", "source.yaml", "Path to source configuration file")
	var serve = flag.Bool("serve", false, "Serve the HTTP and MCP retrieval APIs after extraction")
	var mcpStdio = flag.Bool("mcp-stdio", false, "Serve the MCP protocol over stdin/stdout instead of HTTP")
	var projects stringSliceFlag
	flag.Var(&projects, "project", "Repository name to extract (can be specified multiple times; default: all enabled)")
	flag.Parse()

	cfgZap := zap.NewProductionConfig()
	cfgZap.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfgZap.Build()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig(*appConfigPath, *sourceConfigPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	svc, err := wiring.Assemble(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to assemble service", zap.Error(err))
	}
	defer svc.Close()

	ctx := context.Background()

	names := []string(projects)
	if len(names) == 0 {
		for _, repo := range cfg.Source.Repositories {
			if !repo.Disabled {
				names = append(names, repo.Name)
			}
		}
	}
	for _, name := range names {
		repo, err := cfg.GetRepository(name)
		if err != nil {
			logger.Error("Repository not found in configuration", zap.String("repo", name), zap.Error(err))
			continue
		}
		res, err := svc.Pipeline.Run(ctx, *repo)
		if err != nil {
			logger.Error("Extraction failed", zap.String("repo", name), zap.Error(err))
			continue
		}
		logger.Info("Extraction complete",
			zap.String("repo", name),
			zap.String("run_id", res.RunID),
			zap.Int("files_scanned", res.FilesScanned),
			zap.Int("files_unchanged", res.FilesUnchanged),
			zap.Int("methods_built", res.MethodsBuilt),
			zap.Int("methods_failed", res.MethodsFailed),
			zap.Int("calls_linked", res.CallsLinked),
			zap.Int("phantom_targets", res.PhantomTargets))
	}

	if *mcpStdio {
		if err := mcpserver.New(svc.Driver, logger).RunStdio(ctx); err != nil {
			logger.Fatal("MCP stdio server failed", zap.Error(err))
		}
		return
	}

	if *serve {
		router := httpapi.New(svc.Driver, logger).SetupRouter()
		mcpserver.New(svc.Driver, logger).SetupHTTPRoutes(router)

		port := cfg.App.HTTPPort
		if port == 0 {
			port = 8080
		}
		logger.Info("Starting server", zap.Int("port", port))
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), router); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}
}
