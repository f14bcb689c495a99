package pg

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// RankingStore keeps emoji rankings in Postgres, shared by every bot instance
// pointed at the same database.
type RankingStore struct {
	db *sql.DB
}

// OpenDB opens a pgx-backed database/sql handle and checks connectivity.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	db.SetMaxOpenConns(4)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

// NewRankingStore migrates the schema and opens the store.
func NewRankingStore(dsn string) (*RankingStore, error) {
	if err := MigrateUp(dsn); err != nil {
		return nil, err
	}
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &RankingStore{db: db}, nil
}

func (s *RankingStore) Load(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, count FROM emoji_rankings`)
	if err != nil {
		return nil, fmt.Errorf("query rankings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		out[name] = count
	}
	return out, rows.Err()
}

// Save upserts every entry in one transaction. GREATEST keeps counts monotone
// when several instances write to the same table.
func (s *RankingStore) Save(ctx context.Context, rankings map[string]int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO emoji_rankings (name, count, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET
			count = GREATEST(emoji_rankings.count, EXCLUDED.count),
			updated_at = now()`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for name, count := range rankings {
		if _, err := stmt.ExecContext(ctx, name, count); err != nil {
			return fmt.Errorf("upsert %s: %w", name, err)
		}
	}
	return tx.Commit()
}

func (s *RankingStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
