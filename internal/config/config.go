// Package config loads the two-YAML-file application configuration: an
// app config (driver selection, versionstore connection, server ports)
// and a source config (repositories to extract, per-repository
// language/skip settings).
package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v2"
)

// SourceConfig lists the repositories DIFF_SCAN should consider.
type SourceConfig struct {
	Repositories []Repository `yaml:"repositories"`
}

// Repository is one unit of compilation the extractor can be pointed at:
// either a directory of .java sources or a directory of compiled
// .class files.
type Repository struct {
	Name     string `yaml:"name"`
	Path     string `yaml:"path"`
	Language string `yaml:"language,omitempty"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

// App holds process-wide settings: server ports and extraction
// options.
type App struct {
	// HTTPPort serves both the bulk-retrieval REST API and the MCP
	// endpoint mounted on the same router.
	HTTPPort int `yaml:"http_port"`

	// CallGraphAlg selects the call-graph oracle: "NONE",
	// "CHA", or "SPARK".
	CallGraphAlg string `yaml:"call_graph_alg,omitempty"`
	// SparkOpts is an opaque string bag forwarded to the SPARK oracle
	// when CallGraphAlg == "SPARK".
	SparkOpts string `yaml:"spark_opts,omitempty"`
	// ParallelThreshold is the IR-lifting parallelism trigger
	// (default 100000).
	ParallelThreshold int `yaml:"parallel_threshold,omitempty"`
	// CompileDir is the scratch directory for compiled class files
	// when a repository's Language is "java" source.
	CompileDir string `yaml:"compile_dir,omitempty"`
}

// DriverConfig selects and parameterizes the storage back-end.
type DriverConfig struct {
	Kind string `yaml:"kind"` // "memory", "neo4j", or "kuzu"

	Neo4jURI      string `yaml:"neo4j_uri,omitempty"`
	Neo4jUsername string `yaml:"neo4j_username,omitempty"`
	Neo4jPassword string `yaml:"neo4j_password,omitempty"`
	Neo4jDatabase string `yaml:"neo4j_database,omitempty"`

	KuzuPath string `yaml:"kuzu_path,omitempty"`
}

// MySQLConfig parameterizes the MySQL connection used when
// VersionStore.Kind == "mysql" (the staleness ledger in
// internal/versionstore).
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// VersionStoreConfig selects where DIFF_SCAN's content-hash records
// live. "store" compares against FILE.hash already persisted in the
// Driver (no auxiliary index at all); "mysql" keeps a
// separate hash ledger for back-ends too slow to scan for staleness
// (see internal/versionstore).
type VersionStoreConfig struct {
	Kind  string      `yaml:"kind"` // "store" or "mysql"
	MySQL MySQLConfig `yaml:"mysql,omitempty"`
}

// Config is the merged application configuration.
type Config struct {
	Source       SourceConfig       `yaml:"source"`
	App          App                `yaml:"app"`
	Driver       DriverConfig       `yaml:"driver"`
	VersionStore VersionStoreConfig `yaml:"version_store"`
}

// LoadConfig reads appConfigPath and sourceConfigPath, unmarshals each
// into a Config, and merges sourceConfigPath's Source section into the
// app config. The raw text of both files is passed through
// expandEnvVars before unmarshalling so secrets and environment-specific values (hosts, ports, credentials)
// never need to be hard-coded into the YAML.
func LoadConfig(appConfigPath, sourceConfigPath string) (*Config, error) {
	if _, err := os.Stat(appConfigPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("app config file does not exist: %s", appConfigPath)
	}
	if _, err := os.Stat(sourceConfigPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("source config file does not exist: %s", sourceConfigPath)
	}

	dataApp, err := os.ReadFile(appConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read app config file: %w", err)
	}
	dataSource, err := os.ReadFile(sourceConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read source config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(dataApp))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal app config: %w", err)
	}

	var source Config
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(dataSource))), &source); err != nil {
		return nil, fmt.Errorf("failed to unmarshal source config: %w", err)
	}
	cfg.Source = source.Source

	if err := validateRepositories(&cfg); err != nil {
		return nil, fmt.Errorf("invalid repository configuration: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.ParallelThreshold == 0 {
		cfg.App.ParallelThreshold = 100_000
	}
	if cfg.App.CallGraphAlg == "" {
		cfg.App.CallGraphAlg = "NONE"
	}
	if cfg.Driver.Kind == "" {
		cfg.Driver.Kind = "memory"
	}
	if cfg.VersionStore.Kind == "" {
		cfg.VersionStore.Kind = "store"
	}
}

// GetRepository looks up a repository by name.
func (c *Config) GetRepository(name string) (*Repository, error) {
	for _, repo := range c.Source.Repositories {
		if repo.Name == name {
			return &repo, nil
		}
	}
	return nil, fmt.Errorf("repository not found: %s", name)
}

func validateRepositories(cfg *Config) error {
	for _, repo := range cfg.Source.Repositories {
		if repo.Path == "" {
			return fmt.Errorf("repository '%s': path is required", repo.Name)
		}
	}
	return nil
}

// envVarPattern matches both ${VAR}/${VAR:-default} and bare $VAR forms.
// Nothing in the retrieved pack implements shell-style default-value
// substitution inside already-unmarshalled config strings (godotenv,
// the nearest candidate, only loads .env files into the process
// environment); regexp+os.Getenv is the stdlib-only exception here.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars substitutes ${VAR}, ${VAR:-default}, and $VAR
// occurrences in s with the named environment variable's value (or the
// given default, or the empty string for the braced form when unset).
// A bare $VAR with no environment entry is left untouched, matching
// shell behavior for an unquoted undefined variable reference.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if groups[1] != "" {
			if v, ok := os.LookupEnv(groups[1]); ok {
				return v
			}
			return groups[3]
		}
		if v, ok := os.LookupEnv(groups[4]); ok {
			return v
		}
		return match
	})
}
