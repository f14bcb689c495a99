package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/chatterbox/internal/config"
	"github.com/nextlevelbuilder/chatterbox/internal/providers"
	"github.com/nextlevelbuilder/chatterbox/internal/store"
	"github.com/nextlevelbuilder/chatterbox/internal/store/file"
	"github.com/nextlevelbuilder/chatterbox/internal/store/pg"
	"github.com/nextlevelbuilder/chatterbox/internal/store/sqlite"
)

// buildProvider creates the configured backend, rate limited when rpm is set.
func buildProvider(ctx context.Context, cfg *config.Config) (providers.Provider, error) {
	var p providers.Provider
	switch cfg.Backend.Provider {
	case "", "gemini":
		gp, err := providers.NewGeminiProvider(ctx, cfg.Backend.APIKey)
		if err != nil {
			return nil, err
		}
		p = gp
	case "openai":
		p = providers.NewOpenAIProvider("openai", cfg.Backend.APIKey, cfg.Backend.APIBase)
	default:
		return nil, fmt.Errorf("unknown backend provider %q", cfg.Backend.Provider)
	}
	slog.Info("registered provider", "name", p.Name(), "rpm", cfg.Backend.RPM)
	return providers.NewRateLimited(p, cfg.Backend.RPM), nil
}

// rankingStoreConfig maps the emoji settings onto a store selection.
func rankingStoreConfig(cfg *config.Config) store.StoreConfig {
	return store.StoreConfig{
		Backend:     cfg.Emoji.Store,
		Path:        config.ExpandHome(cfg.Emoji.Path),
		PostgresDSN: cfg.Emoji.PostgresDSN,
	}
}

// openRankingStore opens the configured ranking table backend.
func openRankingStore(sc store.StoreConfig) (store.RankingStore, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	switch sc.Backend {
	case store.BackendSQLite:
		s, err := sqlite.NewRankingStore(sc.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite ranking store: %w", err)
		}
		return s, nil
	case store.BackendPostgres:
		s, err := pg.NewRankingStore(sc.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres ranking store: %w", err)
		}
		return s, nil
	default:
		s, err := file.NewRankingStore(sc.Path)
		if err != nil {
			return nil, fmt.Errorf("open file ranking store: %w", err)
		}
		return s, nil
	}
}
