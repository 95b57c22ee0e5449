package versionstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/cpgkit/jvmcpg/internal/config"
)

// MySQLStore keeps a per-repository hash ledger in MySQL, tracking
// the one thing DIFF_SCAN needs: the last hash seen for a path.
// Intended for back-ends (the "mysql" version_store.kind) whose own
// GetProgramStructure scan is too slow to use as the staleness source
// of truth at repository scale; every other back-end should prefer
// DriverBacked.
type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

var invalidTableNameChars = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

func tableNameFor(repo string) string {
	sanitized := invalidTableNameChars.ReplaceAllString(repo, "_")
	sanitized = regexp.MustCompile(`^_+|_+$`).ReplaceAllString(sanitized, "")
	if sanitized == "" {
		sanitized = "default"
	}
	return fmt.Sprintf("`%s_file_hashes`", sanitized)
}

// NewMySQLStore opens the connection pool and ensures the schema exists.
func NewMySQLStore(cfg config.MySQLConfig, logger *zap.Logger) (*MySQLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	logger.Info("connecting to mysql version store",
		zap.String("host", cfg.Host), zap.Int("port", cfg.Port), zap.String("database", cfg.Database))

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	return &MySQLStore{db: db, logger: logger}, nil
}

func (s *MySQLStore) ensureTable(ctx context.Context, repo string) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			relative_path VARCHAR(512) NOT NULL PRIMARY KEY,
			file_hash VARCHAR(64) NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`, tableNameFor(repo))
	_, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("ensure file-hash table: %w", err)
	}
	return nil
}

func (s *MySQLStore) Hash(ctx context.Context, repo, path string) (string, bool, error) {
	if err := s.ensureTable(ctx, repo); err != nil {
		return "", false, err
	}
	query := fmt.Sprintf("SELECT file_hash FROM %s WHERE relative_path = ?", tableNameFor(repo))
	var hash string
	err := s.db.QueryRowContext(ctx, query, path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query file hash: %w", err)
	}
	return hash, true, nil
}

func (s *MySQLStore) Record(ctx context.Context, repo, path, hash string) error {
	if err := s.ensureTable(ctx, repo); err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (relative_path, file_hash) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE file_hash = VALUES(file_hash)
	`, tableNameFor(repo))
	if _, err := s.db.ExecContext(ctx, query, path, hash); err != nil {
		return fmt.Errorf("record file hash: %w", err)
	}
	return nil
}

func (s *MySQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
