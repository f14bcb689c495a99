package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chatterbox/internal/agent"
	"github.com/nextlevelbuilder/chatterbox/internal/bus"
	"github.com/nextlevelbuilder/chatterbox/internal/channels"
	"github.com/nextlevelbuilder/chatterbox/internal/channels/discord"
	"github.com/nextlevelbuilder/chatterbox/internal/config"
	"github.com/nextlevelbuilder/chatterbox/internal/emoji"
	"github.com/nextlevelbuilder/chatterbox/internal/fallback"
	"github.com/nextlevelbuilder/chatterbox/internal/health"
	"github.com/nextlevelbuilder/chatterbox/internal/history"
	"github.com/nextlevelbuilder/chatterbox/internal/providers"
	"github.com/nextlevelbuilder/chatterbox/internal/queue"
	"github.com/nextlevelbuilder/chatterbox/internal/tracing"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and start replying (default command)",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	if err := emoji.ValidateSchedule(cfg.Emoji.Schedule); err != nil {
		slog.Error("invalid emoji schedule", "error", err)
		os.Exit(1)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	persona, err := config.NewPersona(cfg.Persona, slog.Default())
	if err != nil {
		slog.Error("failed to load persona", "error", err)
		os.Exit(1)
	}
	if err := persona.Watch(); err != nil {
		slog.Warn("persona watcher unavailable", "error", err)
	}
	defer persona.Close()

	// Ranking table + emoji cache
	rankStore, err := openRankingStore(rankingStoreConfig(cfg))
	if err != nil {
		slog.Error("failed to open ranking store", "backend", cfg.Emoji.Store, "error", err)
		os.Exit(1)
	}
	cache := emoji.New(ctx, rankStore, emoji.Options{HotSetSize: cfg.Emoji.HotSetSize})
	scheduleDone := make(chan struct{})
	go func() {
		defer close(scheduleDone)
		if err := cache.RunSchedule(ctx, cfg.Emoji.Schedule); err != nil && ctx.Err() == nil {
			slog.Error("emoji schedule stopped", "error", err)
		}
	}()

	// Backend
	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		slog.Error("failed to create provider", "error", err)
		os.Exit(1)
	}
	textLadder, err := fallback.NewLadder("text", cfg.Backend.TextModels)
	if err != nil {
		slog.Error("invalid text models", "error", err)
		os.Exit(1)
	}
	visionLadder, err := fallback.NewLadder("vision", cfg.Backend.VisionModels)
	if err != nil {
		slog.Error("invalid vision models", "error", err)
		os.Exit(1)
	}
	retrier := fallback.NewRetrier(fallback.Config{
		MaxRetries:    cfg.Retry.MaxRetries,
		InitialDelay:  cfg.Retry.InitialDelayDuration(),
		WaitBuffer:    cfg.Retry.WaitBufferDuration(),
		ResetCooldown: cfg.Retry.ResetCooldownDuration(),
	}, providers.Classify, slog.Default())

	// Discord + orchestrator + queues
	hist := history.NewStore(cfg.History.Capacity)
	dc, err := discord.New(cfg.Discord, cache, hist, slog.Default())
	if err != nil {
		slog.Error("failed to create discord channel", "error", err)
		os.Exit(1)
	}
	orch, err := agent.NewOrchestrator(agent.Config{
		Platform:     dc,
		Provider:     provider,
		Retrier:      retrier,
		TextLadder:   textLadder,
		VisionLadder: visionLadder,
		Symbols:      cache,
		History:      hist,
		Persona:      persona,
		Pacing:       cfg.Pacing,
		HistoryLimit: cfg.History.Limit,
		MaxImages:    cfg.Discord.MaxImages,
		MaxTokens:    cfg.Backend.MaxTokens,
		Temperature:  cfg.Backend.Temperature,
		VisionPrompt: cfg.Persona.VisionPrompt,
		FailureReply: cfg.Discord.FailureReply,
		Logger:       slog.Default(),
	})
	if err != nil {
		slog.Error("failed to create orchestrator", "error", err)
		os.Exit(1)
	}
	queues := queue.NewManager(queue.Options[bus.InboundMessage]{
		MaxDepth:        cfg.Queue.MaxDepth,
		ProcessingDelay: cfg.Queue.ProcessingDelayDuration(),
		Process:         orch.Process,
		OnFailure:       orch.NotifyFailure,
		Logger:          slog.Default(),
	})
	dc.SetAdmitter(queues)

	channelMgr := channels.NewManager()
	channelMgr.RegisterChannel(dc.Name(), dc)
	if err := channelMgr.StartAll(ctx); err != nil {
		slog.Error("failed to start channels", "error", err)
		os.Exit(1)
	}

	if cfg.Health.Addr != "" {
		hs := health.NewServer(cfg.Health.Addr, Version, queues, cache)
		hs.SetChannels(channelMgr)
		go func() {
			if err := hs.Start(ctx); err != nil {
				slog.Error("health server stopped", "error", err)
			}
		}()
	}

	slog.Info("chatterbox started",
		"version", Version,
		"config_hash", cfg.Hash(),
		"provider", provider.Name(),
		"text_models", textLadder.Tiers(),
		"vision_models", visionLadder.Tiers(),
		"emoji_store", cfg.Emoji.Store,
		"max_depth", cfg.Queue.MaxDepth,
	)

	sig := <-sigCh
	slog.Info("graceful shutdown initiated", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := channelMgr.StopAll(shutdownCtx); err != nil {
		slog.Warn("channel stop failed", "error", err)
	}
	queues.Close()
	if err := queues.Wait(shutdownCtx); err != nil {
		slog.Warn("queue workers still running at shutdown", "error", err)
	}
	cancel()
	select {
	case <-scheduleDone:
	case <-shutdownCtx.Done():
	}

	if err := cache.Close(shutdownCtx); err != nil {
		slog.Warn("final ranking save failed", "error", err)
	}
	if err := rankStore.Close(); err != nil {
		slog.Warn("ranking store close failed", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Warn("tracing shutdown failed", "error", err)
	}
	slog.Info("chatterbox stopped")
}
