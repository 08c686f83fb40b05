package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"medreport/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the configured database.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "sqlite3":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		if path, _, _ := strings.Cut(cfg.DSN, "?"); path != ":memory:" && !strings.HasPrefix(path, "file:") {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		db, err = sql.Open("sqlite3", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// one connection keeps ":memory:" databases shared and serializes writers
		db.SetMaxOpenConns(1)
	case "mysql":
		dsn := cfg.DSN
		if !strings.Contains(dsn, "parseTime=") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "parseTime=true"
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	case "pgx", "postgres":
		db, err = sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS analyses (
				id TEXT PRIMARY KEY,
				filename TEXT NOT NULL,
				mime_type TEXT NOT NULL,
				model_choice TEXT NOT NULL,
				medical INTEGER NOT NULL,
				record TEXT NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at DESC)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS analyses (
				id CHAR(36) NOT NULL,
				filename VARCHAR(255) NOT NULL,
				mime_type VARCHAR(255) NOT NULL,
				model_choice VARCHAR(32) NOT NULL,
				medical BOOLEAN NOT NULL,
				record MEDIUMTEXT NOT NULL,
				created_at DATETIME(6) NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_analyses_created_at (created_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	case "pgx", "postgres":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS analyses (
				id TEXT PRIMARY KEY,
				filename TEXT NOT NULL,
				mime_type TEXT NOT NULL,
				model_choice TEXT NOT NULL,
				medical BOOLEAN NOT NULL,
				record TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at DESC)`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}

// rebind rewrites '?' placeholders to '$n' for postgres.
func rebind(driver, query string) string {
	switch strings.ToLower(driver) {
	case "pgx", "postgres":
	default:
		return query
	}
	var (
		b strings.Builder
		n int
	)
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
