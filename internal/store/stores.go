package store

import (
	"context"
	"fmt"
)

// RankingStore persists the emoji ranking table (normalized name -> use count).
// Load on a store that has never been written returns an empty map and no error.
type RankingStore interface {
	Load(ctx context.Context) (map[string]int, error)
	Save(ctx context.Context, rankings map[string]int) error
	Close() error
}

// Backend names accepted by StoreConfig.Backend.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// StoreConfig selects and configures a RankingStore backend.
type StoreConfig struct {
	Backend     string
	Path        string // file / sqlite
	PostgresDSN string // postgres
}

// Validate checks that the selected backend has what it needs.
func (c StoreConfig) Validate() error {
	switch c.Backend {
	case "", BackendFile, BackendSQLite:
		if c.Path == "" {
			return fmt.Errorf("ranking store %q: path is required", c.backend())
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("ranking store postgres: dsn is required")
		}
	default:
		return fmt.Errorf("unknown ranking store backend %q", c.Backend)
	}
	return nil
}

func (c StoreConfig) backend() string {
	if c.Backend == "" {
		return BackendFile
	}
	return c.Backend
}

// Copy returns a detached copy of a ranking table.
func Copy(rankings map[string]int) map[string]int {
	out := make(map[string]int, len(rankings))
	for k, v := range rankings {
		out[k] = v
	}
	return out
}
