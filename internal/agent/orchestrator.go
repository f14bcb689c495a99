package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/chatterbox/internal/bus"
	"github.com/nextlevelbuilder/chatterbox/internal/config"
	"github.com/nextlevelbuilder/chatterbox/internal/fallback"
	"github.com/nextlevelbuilder/chatterbox/internal/history"
	"github.com/nextlevelbuilder/chatterbox/internal/providers"
	"github.com/nextlevelbuilder/chatterbox/internal/queue"
	"github.com/nextlevelbuilder/chatterbox/internal/tracing"
)

const (
	defaultHistoryLimit = 20
	defaultMaxImages    = 3
	defaultFailureReply = "Sorry, I couldn't come up with a reply right now. Please try again in a bit."
)

// Config configures an Orchestrator. Platform, Provider, Retrier, TextLadder,
// Symbols, History and Persona are required.
type Config struct {
	Platform     Platform
	Provider     providers.Provider
	Retrier      *fallback.Retrier
	TextLadder   *fallback.Ladder
	VisionLadder *fallback.Ladder // nil disables image descriptions
	Symbols      Symbols
	History      *history.Store
	Persona      Persona

	Pacing       config.PacingConfig
	HistoryLimit int
	MaxImages    int
	MaxTokens    int
	Temperature  float64
	VisionPrompt string
	FailureReply string

	HTTPClient *http.Client // image downloads
	Logger     *slog.Logger
}

// Orchestrator produces the reply for one queued message.
type Orchestrator struct {
	platform     Platform
	provider     providers.Provider
	retrier      *fallback.Retrier
	textLadder   *fallback.Ladder
	visionLadder *fallback.Ladder
	symbols      Symbols
	history      *history.Store
	persona      Persona
	pacer        *Pacer

	historyLimit int
	maxImages    int
	maxTokens    int
	temperature  float64
	visionPrompt string
	failureReply string

	httpClient *http.Client
	logger     *slog.Logger
}

func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Platform == nil || cfg.Provider == nil || cfg.Retrier == nil || cfg.TextLadder == nil {
		return nil, errors.New("agent: platform, provider, retrier and text ladder are required")
	}
	if cfg.Symbols == nil || cfg.History == nil || cfg.Persona == nil {
		return nil, errors.New("agent: symbols, history and persona are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "agent")

	o := &Orchestrator{
		platform:     cfg.Platform,
		provider:     cfg.Provider,
		retrier:      cfg.Retrier,
		textLadder:   cfg.TextLadder,
		visionLadder: cfg.VisionLadder,
		symbols:      cfg.Symbols,
		history:      cfg.History,
		persona:      cfg.Persona,
		pacer:        NewPacer(cfg.Pacing, cfg.Platform, logger),
		historyLimit: cfg.HistoryLimit,
		maxImages:    cfg.MaxImages,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		visionPrompt: cfg.VisionPrompt,
		failureReply: cfg.FailureReply,
		httpClient:   cfg.HTTPClient,
		logger:       logger,
	}
	if o.historyLimit <= 0 {
		o.historyLimit = defaultHistoryLimit
	}
	if o.maxImages <= 0 {
		o.maxImages = defaultMaxImages
	}
	if o.failureReply == "" {
		o.failureReply = defaultFailureReply
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return o, nil
}

// Process generates and sends the reply to one queued message. Generation
// errors are returned to the queue worker; pacing never fails the reply.
func (o *Orchestrator) Process(ctx context.Context, key string, item queue.Item[bus.InboundMessage]) (err error) {
	msg := item.Payload
	ctx, span := tracing.Tracer().Start(ctx, "agent.process", trace.WithAttributes(
		attribute.String("conversation", key),
		attribute.String("message_id", msg.MessageID),
		attribute.String("item_id", item.ID),
	))
	defer func() { tracing.End(span, err) }()

	start := time.Now()
	req := o.buildRequest(ctx, msg)

	var reply string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := fallback.Run(gctx, o.retrier, o.textLadder, func(ctx context.Context, tier string) (string, error) {
			r := req
			r.Model = tier
			return o.chat(ctx, r)
		})
		if err != nil {
			return err
		}
		reply = out
		return nil
	})
	g.Go(func() error {
		o.pacer.Think(gctx, msg.ChatID)
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("generate reply: %w", err)
	}

	reply = sanitizeReply(reply, o.persona.Name())
	if reply == "" {
		o.logger.Warn("model returned an empty reply, nothing sent", "conversation", key, "message_id", msg.MessageID)
		return nil
	}

	o.pacer.Finish(ctx, msg.ChatID, reply)
	reply = o.symbols.Rewrite(reply, true)

	if err := o.platform.Reply(ctx, bus.OutboundMessage{
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		GuildID:   msg.GuildID,
		ReplyToID: msg.MessageID,
		Content:   reply,
	}); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	o.history.Add(msg.ChatID, history.Entry{
		Author:  o.persona.Name(),
		Content: reply,
		FromBot: true,
	})

	o.logger.Info("reply sent", "conversation", key, "message_id", msg.MessageID,
		"chars", len(reply), "waited", time.Since(item.EnqueuedAt).Round(time.Millisecond),
		"took", time.Since(start).Round(time.Millisecond))
	return nil
}

// NotifyFailure tells the sender their message could not be answered.
func (o *Orchestrator) NotifyFailure(ctx context.Context, key string, item queue.Item[bus.InboundMessage], cause error) error {
	msg := item.Payload
	var exhausted *fallback.ExhaustedError
	if errors.As(cause, &exhausted) {
		o.logger.Error("backend exhausted", "conversation", key, "ladder", exhausted.Ladder,
			"tier", exhausted.Tier, "outcome", exhausted.Outcome, "attempts", exhausted.Attempts)
	}
	return o.platform.Reply(ctx, bus.OutboundMessage{
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		GuildID:   msg.GuildID,
		ReplyToID: msg.MessageID,
		Content:   o.failureReply,
	})
}

// chat makes one backend call under its own span.
func (o *Orchestrator) chat(ctx context.Context, req providers.ChatRequest) (text string, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "llm.chat", trace.WithAttributes(
		attribute.String("provider", o.provider.Name()),
		attribute.String("model", req.Model),
		attribute.Int("images", countImages(req.Messages)),
	))
	defer func() { tracing.End(span, err) }()

	resp, err := o.provider.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	if resp.Usage != nil {
		span.SetAttributes(
			attribute.Int("usage.prompt_tokens", resp.Usage.PromptTokens),
			attribute.Int("usage.completion_tokens", resp.Usage.CompletionTokens),
		)
	}
	return resp.Content, nil
}

func countImages(msgs []providers.Message) int {
	n := 0
	for _, m := range msgs {
		n += len(m.Images)
	}
	return n
}
