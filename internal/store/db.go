package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a referenced unit, comment or vote does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConcurrentModification is returned when an optimistic update lost a race.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// DB wraps the seedbed SQLite database. Raw SQL goes through the embedded
// sql.DB; composed queries go through Bun.
type DB struct {
	*sql.DB
	Bun  *bun.DB
	Path string
}

// DefaultDBPath returns the default database path: ~/.seedbed/seedbed.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".seedbed", "seedbed.db"), nil
}

// Open opens (or creates) the SQLite database at the given path,
// configures pragmas, and runs migrations. A nil logger disables query logging.
func Open(path string, logger *zap.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return setup(sqlDB, path, logger)
}

// OpenMemory opens an in-memory SQLite database for testing.
func OpenMemory(logger *zap.Logger) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	return setup(sqlDB, ":memory:", logger)
}

func setup(sqlDB *sql.DB, path string, logger *zap.Logger) (*DB, error) {
	// One connection: SQLite has a single writer and :memory: databases are
	// private to the connection that created them.
	sqlDB.SetMaxOpenConns(1)

	if logger == nil {
		logger = zap.NewNop()
	}

	db := &DB{DB: sqlDB, Path: path}
	if err := db.configurePragmas(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	db.Bun = bun.NewDB(sqlDB, sqlitedialect.New())
	db.Bun.AddQueryHook(NewQueryHook(logger.Named("store")))
	return db, nil
}

func (db *DB) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA mmap_size=268435456", // 256MB
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}
