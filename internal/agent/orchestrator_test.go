package agent

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/chatterbox/internal/bus"
	"github.com/nextlevelbuilder/chatterbox/internal/config"
	"github.com/nextlevelbuilder/chatterbox/internal/emoji"
	"github.com/nextlevelbuilder/chatterbox/internal/fallback"
	"github.com/nextlevelbuilder/chatterbox/internal/history"
	"github.com/nextlevelbuilder/chatterbox/internal/providers"
	"github.com/nextlevelbuilder/chatterbox/internal/queue"
)

type fakePlatform struct {
	mu         sync.Mutex
	history    []history.Entry
	historyErr error
	fetched    map[string]*history.Entry
	replies    []bus.OutboundMessage
	typing     int
}

func (f *fakePlatform) RecentHistory(ctx context.Context, chatID string, limit int, before string) ([]history.Entry, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

func (f *fakePlatform) FetchMessage(ctx context.Context, chatID, messageID string) (*history.Entry, error) {
	if e, ok := f.fetched[messageID]; ok {
		return e, nil
	}
	return nil, errors.New("unknown message")
}

func (f *fakePlatform) Typing(ctx context.Context, chatID string) error {
	f.mu.Lock()
	f.typing++
	f.mu.Unlock()
	return nil
}

func (f *fakePlatform) Reply(ctx context.Context, msg bus.OutboundMessage) error {
	f.mu.Lock()
	f.replies = append(f.replies, msg)
	f.mu.Unlock()
	return nil
}

type fakeProvider struct {
	mu       sync.Mutex
	requests []providers.ChatRequest
	respond  func(req providers.ChatRequest) (string, error)
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	text, err := f.respond(req)
	if err != nil {
		return nil, err
	}
	return &providers.ChatResponse{Content: text, FinishReason: "stop"}, nil
}

type staticPersona struct{ name, prompt string }

func (p staticPersona) Name() string   { return p.name }
func (p staticPersona) Prompt() string { return p.prompt }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fixture struct {
	orch     *Orchestrator
	platform *fakePlatform
	provider *fakeProvider
	cache    *emoji.Cache
	history  *history.Store
	text     *fallback.Ladder
}

func newFixture(t *testing.T, respond func(req providers.ChatRequest) (string, error)) *fixture {
	t.Helper()
	text, err := fallback.NewLadder("text", []string{"big", "small"})
	if err != nil {
		t.Fatal(err)
	}
	vision, err := fallback.NewLadder("vision", []string{"eyes"})
	if err != nil {
		t.Fatal(err)
	}
	cache := emoji.New(context.Background(), nil, emoji.Options{Logger: discard()})
	t.Cleanup(func() { cache.Close(context.Background()) })
	cache.IngestKnownSymbols("guild", []emoji.Symbol{{Name: "wave", ID: "123", Group: "guild"}})

	f := &fixture{
		platform: &fakePlatform{fetched: map[string]*history.Entry{}},
		provider: &fakeProvider{respond: respond},
		cache:    cache,
		history:  history.NewStore(10),
		text:     text,
	}
	f.orch, err = NewOrchestrator(Config{
		Platform:     f.platform,
		Provider:     f.provider,
		Retrier:      fallback.NewRetrier(fallback.Config{MaxRetries: -1}, providers.Classify, discard()),
		TextLadder:   text,
		VisionLadder: vision,
		Symbols:      cache,
		History:      f.history,
		Persona:      staticPersona{name: "Pip", prompt: "You are cheerful."},
		Pacing:       config.PacingConfig{Disabled: true},
		Logger:       discard(),
	})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return f
}

func item(msg bus.InboundMessage) queue.Item[bus.InboundMessage] {
	return queue.Item[bus.InboundMessage]{ID: "item-1", Payload: msg, EnqueuedAt: time.Now()}
}

var hello = bus.InboundMessage{
	Channel:    "discord",
	SenderName: "alice",
	ChatID:     "c1",
	GuildID:    "guild",
	MessageID:  "m9",
	Content:    "hello",
}

// TestProcessSendsRewrittenReply covers the happy path: prompt, rewrite, reply, history.
func TestProcessSendsRewrittenReply(t *testing.T) {
	f := newFixture(t, func(req providers.ChatRequest) (string, error) { return "  hi :wave:  ", nil })
	f.platform.history = []history.Entry{
		{MessageID: "m1", Author: "bob", Content: "morning"},
		{MessageID: "m2", Author: "Pip", Content: "hey bob", FromBot: true},
	}

	if err := f.orch.Process(context.Background(), "guild:c1", item(hello)); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(f.platform.replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(f.platform.replies))
	}
	out := f.platform.replies[0]
	if out.Content != "hi <:wave:123>" || out.ReplyToID != "m9" || out.ChatID != "c1" {
		t.Fatalf("unexpected reply: %+v", out)
	}
	if n := f.cache.Snapshot()["wave"]; n != 0 {
		t.Fatalf("own reply must not count emoji use, got %d", n)
	}

	req := f.provider.requests[0]
	if req.Model != "big" {
		t.Fatalf("expected first tier, got %q", req.Model)
	}
	if !strings.Contains(req.System, "You are cheerful.") || !strings.Contains(req.System, "Emoji you can use: [wave]") {
		t.Fatalf("unexpected system prompt: %q", req.System)
	}
	roles := make([]string, len(req.Messages))
	for i, m := range req.Messages {
		roles[i] = m.Role
	}
	if strings.Join(roles, ",") != "user,assistant,user" {
		t.Fatalf("unexpected turn layout: %v", roles)
	}
	if last := req.Messages[2].Content; last != "alice: hello" {
		t.Fatalf("unexpected final turn: %q", last)
	}

	recent := f.history.Recent("c1", 10, "")
	if len(recent) != 1 || !recent[0].FromBot || recent[0].Content != "hi <:wave:123>" {
		t.Fatalf("expected reply recorded in history, got %+v", recent)
	}
}

func TestProcessHistoryFallback(t *testing.T) {
	f := newFixture(t, func(req providers.ChatRequest) (string, error) { return "ok", nil })
	f.platform.historyErr = errors.New("missing access")
	f.history.Add("c1", history.Entry{MessageID: "m1", Author: "carol", Content: "local line"})

	if err := f.orch.Process(context.Background(), "guild:c1", item(hello)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	req := f.provider.requests[0]
	if len(req.Messages) != 1 || req.Messages[0].Content != "carol: local line\nalice: hello" {
		t.Fatalf("expected local transcript in prompt, got %+v", req.Messages)
	}
}

// TestProcessReplyContext verifies referenced messages are quoted, and dropped when unavailable.
func TestProcessReplyContext(t *testing.T) {
	f := newFixture(t, func(req providers.ChatRequest) (string, error) { return "sure", nil })
	f.platform.fetched["m5"] = &history.Entry{MessageID: "m5", Author: "bob", Content: "pizza tonight?"}

	msg := hello
	msg.ReplyToID = "m5"
	if err := f.orch.Process(context.Background(), "guild:c1", item(msg)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	last := f.provider.requests[0].Messages[0].Content
	if !strings.HasPrefix(last, "(in reply to bob: pizza tonight?)\n") {
		t.Fatalf("expected quoted reference, got %q", last)
	}

	msg.ReplyToID = "gone"
	if err := f.orch.Process(context.Background(), "guild:c1", item(msg)); err != nil {
		t.Fatalf("Process with missing reference: %v", err)
	}
	if got := f.provider.requests[1].Messages; strings.Contains(got[len(got)-1].Content, "in reply to") {
		t.Fatalf("expected missing reference to be omitted, got %q", got[len(got)-1].Content)
	}
	if len(f.platform.replies) != 2 {
		t.Fatalf("expected 2 replies, got %d", len(f.platform.replies))
	}
}

func TestProcessOverloadSwitchesTier(t *testing.T) {
	f := newFixture(t, func(req providers.ChatRequest) (string, error) {
		if req.Model == "big" {
			return "", &providers.HTTPError{Status: http.StatusTooManyRequests, Body: "slow down"}
		}
		return "from small", nil
	})

	if err := f.orch.Process(context.Background(), "guild:c1", item(hello)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(f.provider.requests) != 2 || f.provider.requests[1].Model != "small" {
		t.Fatalf("expected fallback to second tier, got %d requests", len(f.provider.requests))
	}
	if f.text.Current() != "small" {
		t.Fatalf("expected ladder to stay on small, got %q", f.text.Current())
	}
	if f.platform.replies[0].Content != "from small" {
		t.Fatalf("unexpected reply: %q", f.platform.replies[0].Content)
	}
}

// TestProcessFailure verifies exhaustion is returned to the worker and the
// failure notice is sent as an apology.
func TestProcessFailure(t *testing.T) {
	f := newFixture(t, func(req providers.ChatRequest) (string, error) { return "", errors.New("bad request") })

	err := f.orch.Process(context.Background(), "guild:c1", item(hello))
	if !fallback.IsExhausted(err) {
		t.Fatalf("expected exhausted error, got %v", err)
	}
	if len(f.platform.replies) != 0 {
		t.Fatalf("expected no reply on failure, got %d", len(f.platform.replies))
	}

	if err := f.orch.NotifyFailure(context.Background(), "guild:c1", item(hello), err); err != nil {
		t.Fatalf("NotifyFailure: %v", err)
	}
	if len(f.platform.replies) != 1 || f.platform.replies[0].Content != defaultFailureReply || f.platform.replies[0].ReplyToID != "m9" {
		t.Fatalf("unexpected failure notice: %+v", f.platform.replies)
	}
}

func TestProcessEmptyReply(t *testing.T) {
	f := newFixture(t, func(req providers.ChatRequest) (string, error) { return "   ", nil })
	if err := f.orch.Process(context.Background(), "guild:c1", item(hello)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(f.platform.replies) != 0 {
		t.Fatalf("expected no reply for empty output, got %+v", f.platform.replies)
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x += 7 {
		img.Set(x, h/2, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// TestProcessDescribesImages verifies attachments are downscaled and described.
func TestProcessDescribesImages(t *testing.T) {
	data := pngBytes(t, 2048, 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer srv.Close()

	f := newFixture(t, func(req providers.ChatRequest) (string, error) {
		if len(req.Messages) == 1 && len(req.Messages[0].Images) > 0 {
			return "a red line", nil
		}
		return "nice picture", nil
	})

	msg := hello
	msg.Media = []bus.MediaAttachment{
		{URL: srv.URL + "/cat.png", ContentType: "image/png", Filename: "cat.png"},
		{URL: srv.URL + "/missing.png", ContentType: "image/png", Filename: "missing.png"},
		{URL: srv.URL + "/notes.txt", ContentType: "text/plain", Filename: "notes.txt"},
	}
	if err := f.orch.Process(context.Background(), "guild:c1", item(msg)); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(f.provider.requests) != 2 {
		t.Fatalf("expected one vision and one text request, got %d", len(f.provider.requests))
	}
	vision := f.provider.requests[0]
	if vision.Model != "eyes" {
		t.Fatalf("expected vision tier, got %q", vision.Model)
	}
	img := vision.Messages[0].Images[0]
	if img.MimeType != "image/jpeg" {
		t.Fatalf("expected re-encoded jpeg, got %s", img.MimeType)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		t.Fatalf("decode sent image: %v", err)
	}
	if cfg.Width != 1024 || cfg.Height != 512 {
		t.Fatalf("expected 1024x512, got %dx%d", cfg.Width, cfg.Height)
	}

	text := f.provider.requests[1].Messages
	if !strings.HasSuffix(text[len(text)-1].Content, "[image: a red line]") {
		t.Fatalf("expected description in prompt, got %q", text[len(text)-1].Content)
	}
}

func TestDownscaleUnknownFormat(t *testing.T) {
	f := newFixture(t, func(req providers.ChatRequest) (string, error) { return "", nil })
	raw := []byte("RIFF....WEBPVP8 ")
	got := f.orch.downscale(raw, "image/webp")
	if got.MimeType != "image/webp" || !bytes.Equal(got.Data, raw) {
		t.Fatalf("expected passthrough, got %s (%d bytes)", got.MimeType, len(got.Data))
	}
}

func TestNewOrchestratorRequiresCollaborators(t *testing.T) {
	if _, err := NewOrchestrator(Config{}); err == nil {
		t.Fatal("expected error for empty config")
	}
}
