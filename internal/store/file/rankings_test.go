package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// TestRankingStoreMissingFile verifies a fresh store loads as an empty table.
func TestRankingStoreMissingFile(t *testing.T) {
	s, err := NewRankingStore(filepath.Join(t.TempDir(), "data", "rankings.json"))
	if err != nil {
		t.Fatalf("NewRankingStore: %v", err)
	}

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty table, got: %v", got)
	}
}

// TestRankingStoreSaveLoad verifies counts survive a save and a fresh store instance.
func TestRankingStoreSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rankings.json")
	s, err := NewRankingStore(path)
	if err != nil {
		t.Fatalf("NewRankingStore: %v", err)
	}

	if err := s.Save(context.Background(), map[string]int{"wave": 3, "pog": 0}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened, _ := NewRankingStore(path)
	got, err := reopened.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got["wave"] != 3 || got["pog"] != 0 || len(got) != 2 {
		t.Fatalf("unexpected table: %v", got)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

// TestRankingStoreCorruptFile verifies a corrupt document is reported, not silently emptied.
func TestRankingStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rankings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	s, _ := NewRankingStore(path)
	if _, err := s.Load(context.Background()); err == nil {
		t.Fatal("expected decode error for corrupt file")
	}
}
