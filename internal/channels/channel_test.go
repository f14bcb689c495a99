package channels

import (
	"context"
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/nextlevelbuilder/chatterbox/internal/bus"
)

type stubChannel struct {
	*BaseChannel
	startErr error
	sent     []bus.OutboundMessage
}

func (s *stubChannel) Start(context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.SetRunning(true)
	return nil
}

func (s *stubChannel) Stop(context.Context) error {
	s.SetRunning(false)
	return nil
}

func (s *stubChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	s.sent = append(s.sent, msg)
	return nil
}

type admitFunc func(key string, msg bus.InboundMessage) bool

func (f admitFunc) Admit(key string, msg bus.InboundMessage) bool { return f(key, msg) }

func TestIsAllowed(t *testing.T) {
	open := NewBaseChannel("x", nil)
	if !open.IsAllowed("anyone") {
		t.Fatal("empty allowlist must allow everyone")
	}

	c := NewBaseChannel("x", []string{"123", "@Alice"})
	tests := []struct {
		sender string
		want   bool
	}{
		{"123", true},
		{"alice", true},
		{"ALICE", true},
		{"@Alice", false},
		{"456", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := c.IsAllowed(tt.sender); got != tt.want {
			t.Errorf("IsAllowed(%q) = %v, want %v", tt.sender, got, tt.want)
		}
	}
}

// TestHandleMessage verifies messages reach the admitter with the conversation key.
func TestHandleMessage(t *testing.T) {
	c := NewBaseChannel("discord", nil)
	if c.HandleMessage(bus.InboundMessage{ChatID: "c1"}) {
		t.Fatal("expected rejection without an admitter")
	}

	var gotKey string
	var gotMsg bus.InboundMessage
	c.SetAdmitter(admitFunc(func(key string, msg bus.InboundMessage) bool {
		gotKey, gotMsg = key, msg
		return false
	}))
	if c.HandleMessage(bus.InboundMessage{ChatID: "c1", GuildID: "g1"}) {
		t.Fatal("expected admitter's rejection to be returned")
	}
	if gotKey != "g1:c1" || gotMsg.Channel != "discord" {
		t.Fatalf("unexpected admission: %q %+v", gotKey, gotMsg)
	}
}

func TestManagerLifecycle(t *testing.T) {
	m := NewManager()
	if err := m.StartAll(context.Background()); err == nil {
		t.Fatal("expected error with no channels")
	}

	good := &stubChannel{BaseChannel: NewBaseChannel("good", nil)}
	bad := &stubChannel{BaseChannel: NewBaseChannel("bad", nil), startErr: errors.New("no token")}
	m.RegisterChannel("good", good)
	m.RegisterChannel("bad", bad)

	if err := m.StartAll(context.Background()); err == nil {
		t.Fatal("expected start error to be reported")
	}
	if !good.IsRunning() || bad.IsRunning() {
		t.Fatal("expected only the good channel running")
	}
	status := m.GetStatus()["good"].(map[string]interface{})
	if status["running"] != true {
		t.Fatalf("unexpected status: %v", status)
	}

	if err := m.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if good.IsRunning() {
		t.Fatal("expected channel stopped")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"hello", 10, "hello"},
		{"hello world", 5, "hello..."},
		{"héllo", 2, "h..."},
		{"日本語", 4, "日..."},
		{"日本語", 6, "日本..."},
	}
	for _, tt := range tests {
		got := Truncate(tt.in, tt.maxLen)
		if got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("Truncate(%q, %d) produced invalid UTF-8", tt.in, tt.maxLen)
		}
	}
}
