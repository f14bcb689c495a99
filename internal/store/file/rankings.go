package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// rankingsDocument is the on-disk shape of the ranking file.
type rankingsDocument struct {
	Rankings map[string]int `json:"rankings"`
	Updated  time.Time      `json:"updated"`
}

// RankingStore keeps the whole ranking table in one JSON document.
type RankingStore struct {
	path string
	mu   sync.Mutex
}

func NewRankingStore(path string) (*RankingStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create ranking dir: %w", err)
	}
	return &RankingStore{path: path}, nil
}

// Path returns the backing file path.
func (s *RankingStore) Path() string { return s.path }

func (s *RankingStore) Load(_ context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]int{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rankings: %w", err)
	}

	var doc rankingsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode rankings %s: %w", s.path, err)
	}
	if doc.Rankings == nil {
		doc.Rankings = map[string]int{}
	}
	return doc.Rankings, nil
}

func (s *RankingStore) Save(_ context.Context, rankings map[string]int) error {
	data, err := json.MarshalIndent(rankingsDocument{Rankings: rankings, Updated: time.Now().UTC()}, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Atomic write: temp file → rename
	tmpFile, err := os.CreateTemp(filepath.Dir(s.path), "rankings-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	tmpFile.Close()

	if err := os.Rename(tmpPath, s.path); err != nil {
		return err
	}
	cleanup = false
	return nil
}

func (s *RankingStore) Close() error { return nil }
