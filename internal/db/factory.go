package db

import (
	"fmt"
	"strings"
)

// StoreConfig holds configuration for the storage backend.
type StoreConfig struct {
	Type             string // "sqlite" or "postgres"
	ConnectionString string // file path for SQLite, DSN for Postgres
}

// NewRepositories builds the job/project/codebase repositories for the
// configured backend.
func NewRepositories(config StoreConfig) (Repositories, error) {
	switch strings.ToLower(config.Type) {
	case "postgres", "postgresql":
		if config.ConnectionString == "" {
			return Repositories{}, fmt.Errorf("postgres connection string is required")
		}
		return NewPostgresRepositories(config.ConnectionString)
	case "sqlite", "sqlite3", "":
		connStr := config.ConnectionString
		if connStr == "" {
			connStr = ".codegraph-indexer.db"
		}
		return NewSQLiteRepositories(connStr)
	default:
		return Repositories{}, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}
