package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeQueues map[string]int

func (f fakeQueues) Stats() map[string]int { return f }

type fakeRankings map[string]int

func (f fakeRankings) Snapshot() map[string]int { return f }
func (f fakeRankings) HotSetDisplay() []string  { return []string{"[wave]"} }
func (f fakeRankings) Known() int               { return len(f) }

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.BuildMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v (body %q)", path, err, rec.Body.String())
	}
	return rec, body
}

type fakeChannels struct{}

func (fakeChannels) GetStatus() map[string]interface{} {
	return map[string]interface{}{"discord": map[string]interface{}{"running": true}}
}

func TestHealth(t *testing.T) {
	s := NewServer("", "v1", fakeQueues{"g:1": 2, "dm:2": 1}, fakeRankings{"wave": 3})
	s.SetChannels(fakeChannels{})
	rec, body := get(t, s, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "ok" || body["version"] != "v1" {
		t.Fatalf("unexpected body: %v", body)
	}
	if body["pending"].(float64) != 3 {
		t.Fatalf("expected 3 pending, got %v", body["pending"])
	}
	if _, ok := body["channels"].(map[string]interface{})["discord"]; !ok {
		t.Fatalf("expected discord channel status, got %v", body["channels"])
	}
	if body["known_emoji"].(float64) != 1 {
		t.Fatalf("expected 1 known emoji, got %v", body["known_emoji"])
	}
}

// TestRankingsOrder verifies entries are sorted by count, then name.
func TestRankingsOrder(t *testing.T) {
	s := NewServer("", "v1", nil, fakeRankings{"b": 2, "a": 2, "c": 5, "d": 0})
	rec, body := get(t, s, "/rankings")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	entries := body["rankings"].([]interface{})
	want := []string{"c", "a", "b", "d"}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, name := range want {
		if got := entries[i].(map[string]interface{})["name"]; got != name {
			t.Fatalf("entry %d: expected %s, got %v", i, name, got)
		}
	}
}

func TestRankingsUnavailable(t *testing.T) {
	s := NewServer("", "v1", nil, nil)
	rec, _ := get(t, s, "/rankings")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := NewServer("", "v1", nil, nil)
	rec := httptest.NewRecorder()
	s.BuildMux().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
