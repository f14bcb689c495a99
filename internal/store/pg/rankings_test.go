package pg

import (
	"context"
	"io/fs"
	"os"
	"testing"
)

// TestEmbeddedMigrations verifies the schema files ship inside the binary.
func TestEmbeddedMigrations(t *testing.T) {
	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) < 2 {
		t.Fatalf("expected up and down migrations, got: %v", files)
	}
}

// TestRankingStoreRoundTrip runs against a live database when CHATTERBOX_TEST_POSTGRES_DSN is set.
func TestRankingStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("CHATTERBOX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CHATTERBOX_TEST_POSTGRES_DSN not set")
	}

	s, err := NewRankingStore(dsn)
	if err != nil {
		t.Fatalf("NewRankingStore: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM emoji_rankings WHERE name LIKE 'test_%'`); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	if err := s.Save(ctx, map[string]int{"test_wave": 4}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, map[string]int{"test_wave": 2}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got["test_wave"] != 4 {
		t.Fatalf("expected monotone count 4, got: %d", got["test_wave"])
	}
}
